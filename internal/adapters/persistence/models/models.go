package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSON is a map persisted as a MySQL JSON column. Used for audit snapshots.
type JSON map[string]interface{}

// Value implements driver.Valuer
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSON) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("models: cannot scan JSON column")
	}
	return json.Unmarshal(b, j)
}

// ============================================================
// Users & Auth
// ============================================================

// User represents users table
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	FullName  string         `gorm:"size:100;not null" json:"full_name"`
	Phone     string         `gorm:"uniqueIndex;size:20;not null" json:"phone"`
	Email     string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	Role      string         `gorm:"size:20;default:'MEMBER'" json:"role"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// ============================================================
// Groups & Memberships
// ============================================================

// Group represents a savings group (chama)
type Group struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedBy   uint           `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Creator *User `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
}

func (Group) TableName() string {
	return "groups"
}

// Membership joins a user to a group with a role
type Membership struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index;uniqueIndex:idx_user_group" json:"user_id"`
	GroupID   uint           `gorm:"not null;index;uniqueIndex:idx_user_group" json:"group_id"`
	Role      string         `gorm:"size:20;not null;default:'member'" json:"role"`
	JoinedAt  time.Time      `gorm:"autoCreateTime" json:"joined_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	User  *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group *Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

func (Membership) TableName() string {
	return "memberships"
}

// Membership roles
const (
	RoleAdmin     = "admin"
	RoleTreasurer = "treasurer"
	RoleSecretary = "secretary"
	RoleMember    = "member"
)

// ============================================================
// Contributions
// ============================================================

// Contribution statuses
const (
	ContributionPending = "PENDING"
	ContributionPaid    = "PAID"
	ContributionFailed  = "FAILED"
)

// Contribution represents a member's contribution to the group pot
type Contribution struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	MembershipID  uint       `gorm:"not null;index" json:"membership_id"`
	GroupID       uint       `gorm:"not null;index" json:"group_id"`
	Amount        float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Status        string     `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	PaymentMethod string     `gorm:"size:30" json:"payment_method"`
	ReceiptNumber *string    `gorm:"size:50;index" json:"receipt_number"`
	PaidAt        *time.Time `json:"paid_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Membership *Membership `gorm:"foreignKey:MembershipID" json:"membership,omitempty"`
}

func (Contribution) TableName() string {
	return "contributions"
}

// ============================================================
// Loans
// ============================================================

// Loan statuses
const (
	LoanPending   = "PENDING"
	LoanApproved  = "APPROVED"
	LoanRejected  = "REJECTED"
	LoanActive    = "ACTIVE"
	LoanPaid      = "PAID"
	LoanDefaulted = "DEFAULTED"
)

// Loan represents one loan contract belonging to a membership
type Loan struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	MembershipID       uint       `gorm:"not null;index" json:"membership_id"`
	GroupID            uint       `gorm:"not null;index" json:"group_id"`
	Amount             float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	InterestRate       float64    `gorm:"type:decimal(6,4);not null" json:"interest_rate"`
	DurationMonths     int        `gorm:"not null" json:"duration_months"`
	Purpose            string     `gorm:"type:text" json:"purpose"`
	Status             string     `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	RepaymentAmount    *float64   `gorm:"type:decimal(15,2)" json:"repayment_amount"`
	MonthlyInstallment *float64   `gorm:"type:decimal(15,2)" json:"monthly_installment"`
	AppliedAt          time.Time  `gorm:"autoCreateTime" json:"applied_at"`
	ApprovedAt         *time.Time `json:"approved_at"`
	DisbursedAt        *time.Time `json:"disbursed_at"`
	DueDate            *time.Time `gorm:"index" json:"due_date"`
	IsRestructured     bool       `gorm:"default:false" json:"is_restructured"`
	RestructureNotes   string     `gorm:"type:text" json:"restructure_notes"`
	// Correlation to an in-flight B2C disbursement, cleared once resolved.
	DisbursementConversationID *string   `gorm:"size:60;index" json:"disbursement_conversation_id"`
	UpdatedAt                  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Membership *Membership   `gorm:"foreignKey:MembershipID" json:"membership,omitempty"`
	Payments   []LoanPayment `gorm:"foreignKey:LoanID" json:"payments,omitempty"`
}

func (Loan) TableName() string {
	return "loans"
}

// LoanPayment is an immutable repayment record, many per loan
type LoanPayment struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	LoanID        uint    `gorm:"not null;index" json:"loan_id"`
	Amount        float64 `gorm:"type:decimal(15,2);not null" json:"amount"`
	PaymentMethod string  `gorm:"size:30;not null" json:"payment_method"`
	// Payment-network receipt number. Globally unique when present: this is
	// the sole defense against double-counting a rail confirmation.
	ExternalReferenceCode *string   `gorm:"size:50;uniqueIndex" json:"external_reference_code"`
	PaidAt                time.Time `gorm:"not null" json:"paid_at"`
	RecordedBy            uint      `gorm:"not null" json:"recorded_by"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Loan *Loan `gorm:"foreignKey:LoanID" json:"loan,omitempty"`
}

func (LoanPayment) TableName() string {
	return "loan_payments"
}

// ScheduleEntry is one row of a generated repayment schedule (not persisted)
type ScheduleEntry struct {
	InstallmentNumber int       `json:"installment_number"`
	DueDate           time.Time `json:"due_date"`
	PaymentAmount     float64   `json:"payment_amount"`
	RemainingBalance  float64   `json:"remaining_balance"`
}

// ============================================================
// Group ledger
// ============================================================

// Group transaction types
const (
	TxContribution          = "CONTRIBUTION"
	TxLoanDisbursement      = "LOAN_DISBURSEMENT"
	TxLoanRepayment         = "LOAN_REPAYMENT"
	TxDisbursementConfirmed = "DISBURSEMENT_CONFIRMED"
	TxDisbursementReversal  = "DISBURSEMENT_REVERSAL"
)

// GroupTransaction is an append-only entry in the group's books
type GroupTransaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	GroupID     uint      `gorm:"not null;index" json:"group_id"`
	LoanID      *uint     `gorm:"index" json:"loan_id"`
	Type        string    `gorm:"size:30;not null" json:"type"`
	Amount      float64   `gorm:"type:decimal(15,2);not null" json:"amount"`
	Reference   string    `gorm:"size:60;uniqueIndex;not null" json:"reference"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (GroupTransaction) TableName() string {
	return "group_transactions"
}

// ============================================================
// Gateway correlation
// ============================================================

// Pending gateway transaction kinds and statuses
const (
	GatewayKindPush         = "PUSH_PAYMENT"
	GatewayKindDisbursement = "DISBURSEMENT"

	GatewayPending   = "PENDING"
	GatewayCompleted = "COMPLETED"
	GatewayFailed    = "FAILED"
	GatewayExpired   = "EXPIRED"
)

// PendingGatewayTransaction correlates an outbound rail request with the
// domain object it affects. At most one unresolved row per correlation key;
// once resolved it is terminal.
type PendingGatewayTransaction struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CorrelationID  string     `gorm:"size:60;uniqueIndex;not null" json:"correlation_id"`
	Kind           string     `gorm:"size:20;not null" json:"kind"`
	Status         string     `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	ContributionID *uint      `gorm:"index" json:"contribution_id"`
	LoanID         *uint      `gorm:"index" json:"loan_id"`
	ResultCode     *int       `json:"result_code"`
	ResultDesc     string     `gorm:"type:text" json:"result_desc"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PendingGatewayTransaction) TableName() string {
	return "pending_gateway_transactions"
}

// ============================================================
// Audit trail
// ============================================================

// Audit actions
const (
	AuditLoanApply       = "LOAN_APPLY"
	AuditLoanApprove     = "LOAN_APPROVE"
	AuditLoanReject      = "LOAN_REJECT"
	AuditLoanDisburse    = "LOAN_DISBURSE"
	AuditLoanRestructure = "LOAN_RESTRUCTURE"
	AuditLoanDefaulted   = "LOAN_MARK_DEFAULTED"
	AuditLoanPayment     = "LOAN_PAYMENT"
	AuditContribution    = "CONTRIBUTION_CREATE"
	AuditCallbackApplied = "GATEWAY_CALLBACK"
)

// AuditLog is an append-only record of a financial mutation
type AuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ActorID        uint      `gorm:"not null;index" json:"actor_id"`
	Action         string    `gorm:"size:50;not null;index" json:"action"`
	TargetID       *uint     `json:"target_id"`
	LoanID         *uint     `gorm:"index" json:"loan_id"`
	ContributionID *uint     `json:"contribution_id"`
	MembershipID   *uint     `json:"membership_id"`
	OldValue       JSON      `gorm:"type:json" json:"old_value"`
	NewValue       JSON      `gorm:"type:json" json:"new_value"`
	IPAddress      string    `gorm:"size:50" json:"ip_address"`
	UserAgent      string    `gorm:"size:255" json:"user_agent"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate creates/updates all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Group{},
		&Membership{},
		&Contribution{},
		&Loan{},
		&LoanPayment{},
		&GroupTransaction{},
		&PendingGatewayTransaction{},
		&AuditLog{},
	)
}
