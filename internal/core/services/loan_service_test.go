package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newLoanServiceForTest(
	loanRepo *mockLoanRepo,
	membershipRepo *mockMembershipRepo,
	contributionRepo *mockContributionRepo,
	mpesa *mockMpesaClient,
) *LoanService {
	logger := zap.NewNop()
	auditRepo := new(mockAuditRepo)
	auditRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewLoanService(
		loanRepo,
		membershipRepo,
		NewEligibilityService(contributionRepo, 3.0, logger),
		NewPolicyService(membershipRepo, logger),
		mpesa,
		NewAuditService(auditRepo, logger),
		nil,
		logger,
	)
}

func TestComputeRepaymentTerms(t *testing.T) {
	tests := []struct {
		name            string
		principal       float64
		rate            float64
		months          int
		wantRepayment   float64
		wantInstallment float64
	}{
		{
			name:            "ten percent over six months",
			principal:       10000,
			rate:            0.10,
			months:          6,
			wantRepayment:   10500,
			wantInstallment: 1750,
		},
		{
			name:            "twelve percent over one year",
			principal:       50000,
			rate:            0.12,
			months:          12,
			wantRepayment:   56000,
			wantInstallment: 4666.67,
		},
		{
			name:            "zero interest",
			principal:       9000,
			rate:            0,
			months:          3,
			wantRepayment:   9000,
			wantInstallment: 3000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repayment, installment := ComputeRepaymentTerms(tt.principal, tt.rate, tt.months)
			assert.Equal(t, tt.wantRepayment, repayment)
			assert.Equal(t, tt.wantInstallment, installment)
		})
	}
}

func TestBuildSchedule(t *testing.T) {
	disbursed := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	repayment := 10500.0
	installment := 1750.0

	t.Run("full schedule from disbursement date", func(t *testing.T) {
		loan := &models.Loan{
			DurationMonths:     6,
			DisbursedAt:        &disbursed,
			RepaymentAmount:    &repayment,
			MonthlyInstallment: &installment,
		}

		entries := BuildSchedule(loan)

		assert.Len(t, entries, 6)
		assert.Equal(t, 1, entries[0].InstallmentNumber)
		assert.Equal(t, disbursed.AddDate(0, 1, 0), entries[0].DueDate)
		assert.Equal(t, disbursed.AddDate(0, 6, 0), entries[5].DueDate)
		assert.Equal(t, 1750.0, entries[0].PaymentAmount)
		assert.Equal(t, 8750.0, entries[0].RemainingBalance)
		assert.Equal(t, 0.0, entries[5].RemainingBalance)
	})

	t.Run("undisbursed loan has empty schedule", func(t *testing.T) {
		loan := &models.Loan{DurationMonths: 6}
		assert.Empty(t, BuildSchedule(loan))
	})
}

func TestLoanServiceApply(t *testing.T) {
	ctx := context.Background()
	membership := &models.Membership{
		ID:      7,
		UserID:  42,
		GroupID: 3,
		Role:    models.RoleMember,
		User:    &models.User{ID: 42, Phone: "254700000001"},
	}

	t.Run("creates pending loan within eligibility", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)
		contributionRepo := new(mockContributionRepo)

		membershipRepo.On("GetByID", ctx, uint(7)).Return(membership, nil)
		contributionRepo.On("SumPaidByMembership", ctx, uint(7)).Return(5000.0, nil)
		loanRepo.On("Create", ctx, mock.MatchedBy(func(l *models.Loan) bool {
			return l.Status == models.LoanPending && l.MembershipID == 7 && l.GroupID == 3
		})).Return(nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, contributionRepo, new(mockMpesaClient))

		loan, err := svc.Apply(ctx, &ApplyLoanInput{
			MembershipID:   7,
			Amount:         12000,
			DurationMonths: 6,
			InterestRate:   0.10,
		}, 42, "127.0.0.1")

		assert.NoError(t, err)
		assert.Equal(t, models.LoanPending, loan.Status)
		assert.Nil(t, loan.RepaymentAmount)
		loanRepo.AssertExpectations(t)
	})

	t.Run("rejects amount above eligibility ceiling", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)
		contributionRepo := new(mockContributionRepo)

		membershipRepo.On("GetByID", ctx, uint(7)).Return(membership, nil)
		contributionRepo.On("SumPaidByMembership", ctx, uint(7)).Return(5000.0, nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, contributionRepo, new(mockMpesaClient))

		_, err := svc.Apply(ctx, &ApplyLoanInput{
			MembershipID:   7,
			Amount:         15001,
			DurationMonths: 6,
		}, 42, "")

		var eligErr *EligibilityError
		assert.ErrorAs(t, err, &eligErr)
		assert.Equal(t, 15000.0, eligErr.MaxLoanable)
		assert.Contains(t, err.Error(), "15000.00")
		loanRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("accepts amount exactly at the ceiling", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)
		contributionRepo := new(mockContributionRepo)

		membershipRepo.On("GetByID", ctx, uint(7)).Return(membership, nil)
		contributionRepo.On("SumPaidByMembership", ctx, uint(7)).Return(5000.0, nil)
		loanRepo.On("Create", ctx, mock.Anything).Return(nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, contributionRepo, new(mockMpesaClient))

		_, err := svc.Apply(ctx, &ApplyLoanInput{
			MembershipID:   7,
			Amount:         15000,
			DurationMonths: 6,
		}, 42, "")
		assert.NoError(t, err)
	})

	t.Run("rejects application for someone else's membership", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)
		membershipRepo.On("GetByID", ctx, uint(7)).Return(membership, nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		_, err := svc.Apply(ctx, &ApplyLoanInput{MembershipID: 7, Amount: 100, DurationMonths: 1}, 99, "")
		assert.ErrorIs(t, err, domain.ErrNotMembershipOwner)
	})

	t.Run("zero contributions means zero ceiling", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)
		contributionRepo := new(mockContributionRepo)

		membershipRepo.On("GetByID", ctx, uint(7)).Return(membership, nil)
		contributionRepo.On("SumPaidByMembership", ctx, uint(7)).Return(0.0, nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, contributionRepo, new(mockMpesaClient))

		_, err := svc.Apply(ctx, &ApplyLoanInput{MembershipID: 7, Amount: 1, DurationMonths: 1}, 42, "")

		var eligErr *EligibilityError
		assert.ErrorAs(t, err, &eligErr)
		assert.Equal(t, 0.0, eligErr.MaxLoanable)
	})
}

func TestLoanServiceApproveOrReject(t *testing.T) {
	ctx := context.Background()
	treasurer := &models.Membership{ID: 2, UserID: 10, GroupID: 3, Role: models.RoleTreasurer}

	pendingLoan := func() *models.Loan {
		return &models.Loan{
			ID:             5,
			MembershipID:   7,
			GroupID:        3,
			Amount:         10000,
			InterestRate:   0.10,
			DurationMonths: 6,
			Status:         models.LoanPending,
		}
	}

	t.Run("approval computes repayment terms", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		loan := pendingLoan()
		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(treasurer, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(loan, nil).Once()
		loanRepo.On("UpdateStatusIf", ctx, uint(5), models.LoanPending, mock.MatchedBy(func(u map[string]interface{}) bool {
			return u["status"] == models.LoanApproved &&
				u["repayment_amount"] == 10500.0 &&
				u["monthly_installment"] == 1750.0
		})).Return(true, nil)

		repayment := 10500.0
		installment := 1750.0
		approved := pendingLoan()
		approved.Status = models.LoanApproved
		approved.RepaymentAmount = &repayment
		approved.MonthlyInstallment = &installment
		loanRepo.On("GetByID", ctx, uint(5)).Return(approved, nil).Once()

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		result, err := svc.ApproveOrReject(ctx, 5, models.LoanApproved, 10, "")
		assert.NoError(t, err)
		assert.Equal(t, models.LoanApproved, result.Status)
		assert.Equal(t, 10500.0, *result.RepaymentAmount)
		loanRepo.AssertExpectations(t)
	})

	t.Run("rejection leaves terms empty", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(treasurer, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(pendingLoan(), nil).Once()
		loanRepo.On("UpdateStatusIf", ctx, uint(5), models.LoanPending, mock.MatchedBy(func(u map[string]interface{}) bool {
			_, hasTerms := u["repayment_amount"]
			return u["status"] == models.LoanRejected && !hasTerms
		})).Return(true, nil)

		rejected := pendingLoan()
		rejected.Status = models.LoanRejected
		loanRepo.On("GetByID", ctx, uint(5)).Return(rejected, nil).Once()

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		result, err := svc.ApproveOrReject(ctx, 5, models.LoanRejected, 10, "")
		assert.NoError(t, err)
		assert.Equal(t, models.LoanRejected, result.Status)
		assert.Nil(t, result.RepaymentAmount)
	})

	t.Run("concurrent decision loses the guard", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(treasurer, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(pendingLoan(), nil)
		loanRepo.On("UpdateStatusIf", ctx, uint(5), models.LoanPending, mock.Anything).Return(false, nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		_, err := svc.ApproveOrReject(ctx, 5, models.LoanApproved, 10, "")
		assert.ErrorIs(t, err, domain.ErrLoanNotUpdatable)
	})

	t.Run("plain member may not decide", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		member := &models.Membership{ID: 8, UserID: 11, GroupID: 3, Role: models.RoleMember}
		membershipRepo.On("GetByUserAndGroup", ctx, uint(11), uint(3)).Return(member, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(pendingLoan(), nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		_, err := svc.ApproveOrReject(ctx, 5, models.LoanApproved, 11, "")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		loanRepo.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown decision value rejected", func(t *testing.T) {
		svc := newLoanServiceForTest(new(mockLoanRepo), new(mockMembershipRepo), new(mockContributionRepo), new(mockMpesaClient))
		_, err := svc.ApproveOrReject(ctx, 5, "MAYBE", 10, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestLoanServiceDisburse(t *testing.T) {
	ctx := context.Background()
	treasurer := &models.Membership{ID: 2, UserID: 10, GroupID: 3, Role: models.RoleTreasurer}

	approvedLoan := func() *models.Loan {
		repayment := 10500.0
		return &models.Loan{
			ID:              5,
			MembershipID:    7,
			GroupID:         3,
			Amount:          10000,
			DurationMonths:  6,
			Status:          models.LoanApproved,
			RepaymentAmount: &repayment,
			Membership: &models.Membership{
				ID:     7,
				UserID: 42,
				User:   &models.User{ID: 42, Phone: "254700000001"},
			},
		}
	}

	t.Run("activates loan and registers correlation id", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)
		mpesa := new(mockMpesaClient)

		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(treasurer, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(approvedLoan(), nil).Once()
		loanRepo.On("Disburse", ctx, uint(5), mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.GroupTransaction) bool {
			return e.Type == models.TxLoanDisbursement && e.Amount == -10000.0
		})).Return(true, nil)
		mpesa.On("InitiateDisbursement", ctx, mock.MatchedBy(func(r B2CRequest) bool {
			return r.PhoneNumber == "254700000001" && r.Amount == 10000.0
		})).Return(&B2CResponse{ConversationID: "AG_123", ResponseCode: "0"}, nil)
		loanRepo.On("RegisterDisbursement", ctx, uint(5), mock.MatchedBy(func(p *models.PendingGatewayTransaction) bool {
			return p.CorrelationID == "AG_123" && p.Kind == models.GatewayKindDisbursement
		})).Return(nil)

		active := approvedLoan()
		active.Status = models.LoanActive
		loanRepo.On("GetByID", ctx, uint(5)).Return(active, nil).Once()

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), mpesa)

		result, err := svc.Disburse(ctx, 5, 10, "")
		assert.NoError(t, err)
		assert.Equal(t, models.LoanActive, result.Status)
		loanRepo.AssertExpectations(t)
		mpesa.AssertExpectations(t)
	})

	t.Run("gateway rejection compensates the activation", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)
		mpesa := new(mockMpesaClient)

		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(treasurer, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(approvedLoan(), nil)
		loanRepo.On("Disburse", ctx, uint(5), mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		mpesa.On("InitiateDisbursement", ctx, mock.Anything).Return(nil, errors.New("rail unavailable"))
		loanRepo.On("UndoDisburse", ctx, uint(5), mock.MatchedBy(func(e *models.GroupTransaction) bool {
			return e.Type == models.TxDisbursementReversal && e.Amount == 10000.0
		})).Return(true, nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), mpesa)

		_, err := svc.Disburse(ctx, 5, 10, "")
		assert.Error(t, err)
		loanRepo.AssertCalled(t, "UndoDisburse", ctx, uint(5), mock.Anything)
		loanRepo.AssertNotCalled(t, "RegisterDisbursement", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("non-approved loan cannot be disbursed", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(treasurer, nil)
		active := approvedLoan()
		active.Status = models.LoanActive
		loanRepo.On("GetByID", ctx, uint(5)).Return(active, nil)
		loanRepo.On("Disburse", ctx, uint(5), mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		_, err := svc.Disburse(ctx, 5, 10, "")
		assert.ErrorIs(t, err, domain.ErrLoanNotApproved)
	})
}

func TestLoanServiceRestructure(t *testing.T) {
	ctx := context.Background()
	treasurer := &models.Membership{ID: 2, UserID: 10, GroupID: 3, Role: models.RoleTreasurer}

	activeLoan := func() *models.Loan {
		repayment := 10500.0
		installment := 1750.0
		return &models.Loan{
			ID:                 5,
			GroupID:            3,
			Amount:             10000,
			InterestRate:       0.10,
			DurationMonths:     6,
			Status:             models.LoanActive,
			RepaymentAmount:    &repayment,
			MonthlyInstallment: &installment,
		}
	}

	t.Run("new duration recomputes terms and flags restructure", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(treasurer, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(activeLoan(), nil).Once()
		loanRepo.On("UpdateStatusIf", ctx, uint(5), models.LoanActive, mock.MatchedBy(func(u map[string]interface{}) bool {
			// 10000 * 0.10 * (12/12) = 1000 interest over 12 months
			return u["repayment_amount"] == 11000.0 &&
				u["monthly_installment"] == 916.67 &&
				u["is_restructured"] == true &&
				u["restructure_notes"] == "member lost income source"
		})).Return(true, nil)

		restructured := activeLoan()
		restructured.IsRestructured = true
		loanRepo.On("GetByID", ctx, uint(5)).Return(restructured, nil).Once()

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		months := 12
		result, err := svc.Restructure(ctx, 5, &RestructureInput{
			NewDuration: &months,
			Notes:       "member lost income source",
		}, 10, "")
		assert.NoError(t, err)
		assert.True(t, result.IsRestructured)
		loanRepo.AssertExpectations(t)
	})

	t.Run("missing notes rejected", func(t *testing.T) {
		svc := newLoanServiceForTest(new(mockLoanRepo), new(mockMembershipRepo), new(mockContributionRepo), new(mockMpesaClient))
		_, err := svc.Restructure(ctx, 5, &RestructureInput{}, 10, "")
		assert.ErrorIs(t, err, domain.ErrRestructureNotes)
	})

	t.Run("paid loan cannot be restructured", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		paid := activeLoan()
		paid.Status = models.LoanPaid
		loanRepo.On("GetByID", ctx, uint(5)).Return(paid, nil)

		svc := newLoanServiceForTest(loanRepo, new(mockMembershipRepo), new(mockContributionRepo), new(mockMpesaClient))

		_, err := svc.Restructure(ctx, 5, &RestructureInput{Notes: "n/a"}, 10, "")
		assert.ErrorIs(t, err, domain.ErrLoanNotUpdatable)
	})
}

func TestLoanServiceMarkDefaulted(t *testing.T) {
	ctx := context.Background()
	admin := &models.Membership{ID: 2, UserID: 10, GroupID: 3, Role: models.RoleAdmin}

	t.Run("overdue active loan becomes defaulted", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		pastDue := time.Now().AddDate(0, -1, 0)
		loan := &models.Loan{ID: 5, GroupID: 3, Status: models.LoanActive, DueDate: &pastDue}
		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(admin, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(loan, nil).Once()
		loanRepo.On("UpdateStatusIf", ctx, uint(5), models.LoanActive, mock.MatchedBy(func(u map[string]interface{}) bool {
			return u["status"] == models.LoanDefaulted
		})).Return(true, nil)

		defaulted := &models.Loan{ID: 5, GroupID: 3, Status: models.LoanDefaulted, DueDate: &pastDue}
		loanRepo.On("GetByID", ctx, uint(5)).Return(defaulted, nil).Once()

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		result, err := svc.MarkDefaulted(ctx, 5, 10, "")
		assert.NoError(t, err)
		assert.Equal(t, models.LoanDefaulted, result.Status)
	})

	t.Run("loan not yet overdue cannot default", func(t *testing.T) {
		loanRepo := new(mockLoanRepo)
		membershipRepo := new(mockMembershipRepo)

		future := time.Now().AddDate(0, 1, 0)
		loan := &models.Loan{ID: 5, GroupID: 3, Status: models.LoanActive, DueDate: &future}
		membershipRepo.On("GetByUserAndGroup", ctx, uint(10), uint(3)).Return(admin, nil)
		loanRepo.On("GetByID", ctx, uint(5)).Return(loan, nil)

		svc := newLoanServiceForTest(loanRepo, membershipRepo, new(mockContributionRepo), new(mockMpesaClient))

		_, err := svc.MarkDefaulted(ctx, 5, 10, "")
		assert.ErrorIs(t, err, domain.ErrLoanNotUpdatable)
	})
}

func TestLoanServiceGetByID(t *testing.T) {
	ctx := context.Background()
	loanRepo := new(mockLoanRepo)
	loanRepo.On("GetByID", ctx, uint(99)).Return(nil, gorm.ErrRecordNotFound)

	svc := newLoanServiceForTest(loanRepo, new(mockMembershipRepo), new(mockContributionRepo), new(mockMpesaClient))

	_, err := svc.GetByID(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)
}
