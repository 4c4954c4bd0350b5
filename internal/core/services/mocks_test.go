package services

import (
	"context"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"

	"github.com/stretchr/testify/mock"
)

// ---- repository mocks ----

type mockLoanRepo struct {
	mock.Mock
}

func (m *mockLoanRepo) Create(ctx context.Context, loan *models.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *mockLoanRepo) GetByID(ctx context.Context, id uint) (*models.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *mockLoanRepo) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Loan, int64, error) {
	args := m.Called(ctx, groupID, offset, limit)
	var loans []*models.Loan
	if args.Get(0) != nil {
		loans = args.Get(0).([]*models.Loan)
	}
	return loans, args.Get(1).(int64), args.Error(2)
}

func (m *mockLoanRepo) ListByMembership(ctx context.Context, membershipID uint) ([]*models.Loan, error) {
	args := m.Called(ctx, membershipID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *mockLoanRepo) UpdateStatusIf(ctx context.Context, loanID uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	args := m.Called(ctx, loanID, fromStatus, updates)
	return args.Bool(0), args.Error(1)
}

func (m *mockLoanRepo) Disburse(ctx context.Context, loanID uint, disbursedAt, dueDate time.Time, entry *models.GroupTransaction) (bool, error) {
	args := m.Called(ctx, loanID, disbursedAt, dueDate, entry)
	return args.Bool(0), args.Error(1)
}

func (m *mockLoanRepo) UndoDisburse(ctx context.Context, loanID uint, entry *models.GroupTransaction) (bool, error) {
	args := m.Called(ctx, loanID, entry)
	return args.Bool(0), args.Error(1)
}

func (m *mockLoanRepo) RegisterDisbursement(ctx context.Context, loanID uint, pending *models.PendingGatewayTransaction) error {
	args := m.Called(ctx, loanID, pending)
	return args.Error(0)
}

func (m *mockLoanRepo) FindOverdue(ctx context.Context, groupID uint, asOf time.Time) ([]*models.Loan, error) {
	args := m.Called(ctx, groupID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *mockLoanRepo) FindAllOverdue(ctx context.Context, asOf time.Time) ([]*models.Loan, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

type mockMembershipRepo struct {
	mock.Mock
}

func (m *mockMembershipRepo) Create(ctx context.Context, membership *models.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *mockMembershipRepo) GetByID(ctx context.Context, id uint) (*models.Membership, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *mockMembershipRepo) GetByUserAndGroup(ctx context.Context, userID, groupID uint) (*models.Membership, error) {
	args := m.Called(ctx, userID, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Membership), args.Error(1)
}

func (m *mockMembershipRepo) ListByGroup(ctx context.Context, groupID uint) ([]*models.Membership, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Membership), args.Error(1)
}

func (m *mockMembershipRepo) UpdateRole(ctx context.Context, id uint, role string) error {
	args := m.Called(ctx, id, role)
	return args.Error(0)
}

func (m *mockMembershipRepo) CountByGroupAndRole(ctx context.Context, groupID uint, role string) (int64, error) {
	args := m.Called(ctx, groupID, role)
	return args.Get(0).(int64), args.Error(1)
}

type mockContributionRepo struct {
	mock.Mock
}

func (m *mockContributionRepo) Create(ctx context.Context, contribution *models.Contribution) error {
	args := m.Called(ctx, contribution)
	return args.Error(0)
}

func (m *mockContributionRepo) GetByID(ctx context.Context, id uint) (*models.Contribution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contribution), args.Error(1)
}

func (m *mockContributionRepo) ListByMembership(ctx context.Context, membershipID uint, offset, limit int) ([]*models.Contribution, int64, error) {
	args := m.Called(ctx, membershipID, offset, limit)
	var out []*models.Contribution
	if args.Get(0) != nil {
		out = args.Get(0).([]*models.Contribution)
	}
	return out, args.Get(1).(int64), args.Error(2)
}

func (m *mockContributionRepo) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Contribution, int64, error) {
	args := m.Called(ctx, groupID, offset, limit)
	var out []*models.Contribution
	if args.Get(0) != nil {
		out = args.Get(0).([]*models.Contribution)
	}
	return out, args.Get(1).(int64), args.Error(2)
}

func (m *mockContributionRepo) UpdateStatus(ctx context.Context, id uint, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockContributionRepo) SumPaidByMembership(ctx context.Context, membershipID uint) (float64, error) {
	args := m.Called(ctx, membershipID)
	return args.Get(0).(float64), args.Error(1)
}

type mockLoanPaymentRepo struct {
	mock.Mock
}

func (m *mockLoanPaymentRepo) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	args := m.Called(ctx, reference)
	return args.Bool(0), args.Error(1)
}

func (m *mockLoanPaymentRepo) SumByLoan(ctx context.Context, loanID uint) (float64, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockLoanPaymentRepo) ListByLoan(ctx context.Context, loanID uint) ([]*models.LoanPayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LoanPayment), args.Error(1)
}

func (m *mockLoanPaymentRepo) RecordAndRoll(ctx context.Context, payment *models.LoanPayment, entry *models.GroupTransaction, decide repositories.SettlementFunc) (bool, error) {
	args := m.Called(ctx, payment, entry, decide)
	return args.Bool(0), args.Error(1)
}

type mockGatewayRepo struct {
	mock.Mock
}

func (m *mockGatewayRepo) CreatePending(ctx context.Context, pending *models.PendingGatewayTransaction) error {
	args := m.Called(ctx, pending)
	return args.Error(0)
}

func (m *mockGatewayRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*models.PendingGatewayTransaction, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingGatewayTransaction), args.Error(1)
}

func (m *mockGatewayRepo) FindOpenPushByContribution(ctx context.Context, contributionID uint) (*models.PendingGatewayTransaction, error) {
	args := m.Called(ctx, contributionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingGatewayTransaction), args.Error(1)
}

func (m *mockGatewayRepo) ResolvePush(ctx context.Context, res repositories.PushResolution) (*repositories.ResolveOutcome, error) {
	args := m.Called(ctx, res)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.ResolveOutcome), args.Error(1)
}

func (m *mockGatewayRepo) ResolveDisbursementResult(ctx context.Context, res repositories.DisbursementResolution) (*repositories.ResolveOutcome, error) {
	args := m.Called(ctx, res)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.ResolveOutcome), args.Error(1)
}

func (m *mockGatewayRepo) ResolveDisbursementTimeout(ctx context.Context, conversationID string) (*repositories.ResolveOutcome, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.ResolveOutcome), args.Error(1)
}

func (m *mockGatewayRepo) ExpireStalePush(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockGatewayRepo) ListStaleDisbursements(ctx context.Context, olderThan time.Time) ([]*models.PendingGatewayTransaction, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PendingGatewayTransaction), args.Error(1)
}

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type mockMpesaClient struct {
	mock.Mock
}

func (m *mockMpesaClient) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*STKPushResponse), args.Error(1)
}

func (m *mockMpesaClient) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*STKQueryResponse), args.Error(1)
}

func (m *mockMpesaClient) InitiateDisbursement(ctx context.Context, req B2CRequest) (*B2CResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*B2CResponse), args.Error(1)
}

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	args := m.Called(ctx, phone)
	return args.Bool(0), args.Error(1)
}

type mockRefreshTokenRepo struct{ mock.Mock }

func (m *mockRefreshTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockRefreshTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepo) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *mockRefreshTokenRepo) RevokeAllByUserID(ctx context.Context, userID uint) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockRefreshTokenRepo) DeleteExpired(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockGroupRepo struct{ mock.Mock }

func (m *mockGroupRepo) Create(ctx context.Context, group *models.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *mockGroupRepo) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *mockGroupRepo) List(ctx context.Context, offset, limit int) ([]*models.Group, int64, error) {
	args := m.Called(ctx, offset, limit)
	var groups []*models.Group
	if args.Get(0) != nil {
		groups = args.Get(0).([]*models.Group)
	}
	return groups, args.Get(1).(int64), args.Error(2)
}

type mockGroupTransactionRepo struct{ mock.Mock }

func (m *mockGroupTransactionRepo) Create(ctx context.Context, tx *models.GroupTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockGroupTransactionRepo) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.GroupTransaction, int64, error) {
	args := m.Called(ctx, groupID, offset, limit)
	var txs []*models.GroupTransaction
	if args.Get(0) != nil {
		txs = args.Get(0).([]*models.GroupTransaction)
	}
	return txs, args.Get(1).(int64), args.Error(2)
}

func (m *mockGroupTransactionRepo) SumByGroup(ctx context.Context, groupID uint) (float64, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(float64), args.Error(1)
}
