package repositories

import (
	"context"
	"time"

	"chamapesa/internal/adapters/persistence/models"
)

// UserRepository defines user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
}

// RefreshTokenRepository defines refresh token data access
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uint) error
	DeleteExpired(ctx context.Context) error
}

// GroupRepository defines savings group data access
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id uint) (*models.Group, error)
	List(ctx context.Context, offset, limit int) ([]*models.Group, int64, error)
}

// MembershipRepository defines membership data access
type MembershipRepository interface {
	Create(ctx context.Context, membership *models.Membership) error
	GetByID(ctx context.Context, id uint) (*models.Membership, error)
	GetByUserAndGroup(ctx context.Context, userID, groupID uint) (*models.Membership, error)
	ListByGroup(ctx context.Context, groupID uint) ([]*models.Membership, error)
	UpdateRole(ctx context.Context, id uint, role string) error
	CountByGroupAndRole(ctx context.Context, groupID uint, role string) (int64, error)
}

// ContributionRepository defines contribution data access
type ContributionRepository interface {
	Create(ctx context.Context, contribution *models.Contribution) error
	GetByID(ctx context.Context, id uint) (*models.Contribution, error)
	ListByMembership(ctx context.Context, membershipID uint, offset, limit int) ([]*models.Contribution, int64, error)
	ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Contribution, int64, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	SumPaidByMembership(ctx context.Context, membershipID uint) (float64, error)
}

// LoanRepository defines loan data access. Every mutating method that spans
// more than one row runs inside a single database transaction, and every
// status transition is guarded by a compare-on-status WHERE clause so that
// concurrent callers serialize per loan.
type LoanRepository interface {
	Create(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id uint) (*models.Loan, error)
	ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Loan, int64, error)
	ListByMembership(ctx context.Context, membershipID uint) ([]*models.Loan, error)
	// UpdateStatusIf applies updates only when the loan is currently in
	// fromStatus. Returns false when the guard did not match.
	UpdateStatusIf(ctx context.Context, loanID uint, fromStatus string, updates map[string]interface{}) (bool, error)
	// Disburse atomically moves an APPROVED loan to ACTIVE, stamps the
	// disbursement, and appends the outflow to the group ledger.
	Disburse(ctx context.Context, loanID uint, disbursedAt, dueDate time.Time, entry *models.GroupTransaction) (bool, error)
	// UndoDisburse compensates a disbursement whose gateway initiation
	// failed before a correlation id was assigned.
	UndoDisburse(ctx context.Context, loanID uint, entry *models.GroupTransaction) (bool, error)
	// RegisterDisbursement stores the rail correlation id on the loan and
	// opens the matching pending gateway transaction.
	RegisterDisbursement(ctx context.Context, loanID uint, pending *models.PendingGatewayTransaction) error
	FindOverdue(ctx context.Context, groupID uint, asOf time.Time) ([]*models.Loan, error)
	FindAllOverdue(ctx context.Context, asOf time.Time) ([]*models.Loan, error)
}

// SettlementFunc decides how the loan record moves after a payment. It
// runs inside RecordAndRoll's transaction with the loan row locked:
// loan is the row as re-read under that lock and totalPaid is the sum
// of all payments including the one being recorded.
type SettlementFunc func(loan *models.Loan, totalPaid float64) map[string]interface{}

// LoanPaymentRepository defines repayment ledger data access
type LoanPaymentRepository interface {
	ExistsByReference(ctx context.Context, reference string) (bool, error)
	SumByLoan(ctx context.Context, loanID uint) (float64, error)
	ListByLoan(ctx context.Context, loanID uint) ([]*models.LoanPayment, error)
	// RecordAndRoll locks the loan row, inserts the payment, sums the
	// loan's payments within the same transaction, applies the updates
	// decide returns, and appends the ledger entry. Concurrent payments
	// against one loan serialize on the row lock, so decide always sees
	// the freshest total and due date. Returns false when the loan was
	// not ACTIVE.
	RecordAndRoll(ctx context.Context, payment *models.LoanPayment, entry *models.GroupTransaction, decide SettlementFunc) (bool, error)
}

// ResolveOutcome reports what a webhook resolution did
type ResolveOutcome struct {
	// AlreadyResolved is true when the pending transaction was terminal
	// before this call (webhook replay).
	AlreadyResolved bool
	// NotFound is true when no pending transaction matches the key.
	NotFound bool
	// TargetMissing is true when the pending row resolved but its
	// contribution/loan no longer matched (logged and dropped).
	TargetMissing  bool
	ContributionID *uint
	LoanID         *uint
}

// PushResolution carries a decoded STK callback result
type PushResolution struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	ReceiptNumber     string
	Amount            float64
	PhoneNumber       string
	PaidAt            time.Time
}

// DisbursementResolution carries a decoded B2C result
type DisbursementResolution struct {
	ConversationID string
	ResultCode     int
	ResultDesc     string
	ReceiptNumber  string
	Amount         float64
}

// GatewayRepository defines pending gateway transaction data access. The
// three Resolve methods each run one database transaction that first claims
// the pending row with a compare-on-status update (the idempotency gate) and
// then applies the domain effect, so a replayed webhook can never apply
// twice or leave a half-applied state.
type GatewayRepository interface {
	CreatePending(ctx context.Context, pending *models.PendingGatewayTransaction) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.PendingGatewayTransaction, error)
	FindOpenPushByContribution(ctx context.Context, contributionID uint) (*models.PendingGatewayTransaction, error)
	ResolvePush(ctx context.Context, res PushResolution) (*ResolveOutcome, error)
	ResolveDisbursementResult(ctx context.Context, res DisbursementResolution) (*ResolveOutcome, error)
	ResolveDisbursementTimeout(ctx context.Context, conversationID string) (*ResolveOutcome, error)
	ExpireStalePush(ctx context.Context, olderThan time.Time) (int64, error)
	ListStaleDisbursements(ctx context.Context, olderThan time.Time) ([]*models.PendingGatewayTransaction, error)
}

// GroupTransactionRepository defines group ledger data access
type GroupTransactionRepository interface {
	Create(ctx context.Context, tx *models.GroupTransaction) error
	ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.GroupTransaction, int64, error)
	SumByGroup(ctx context.Context, groupID uint) (float64, error)
}

// AuditLogRepository defines audit trail data access
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}
