package services

import (
	"testing"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func newSchedulerForTest(loanRepo *mockLoanRepo, gatewayRepo *mockGatewayRepo) *SchedulerService {
	logger := zap.NewNop()
	return NewSchedulerService(loanRepo, gatewayRepo, NewNotificationService(config.SMSConfig{}, logger), logger)
}

func TestSchedulerScanOverdueLoans(t *testing.T) {
	loanRepo := new(mockLoanRepo)
	gatewayRepo := new(mockGatewayRepo)

	due := time.Now().AddDate(0, 0, -3)
	installment := 1750.0
	loanRepo.On("FindAllOverdue", mock.Anything, mock.AnythingOfType("time.Time")).Return([]*models.Loan{
		{
			ID:                 1,
			Status:             models.LoanActive,
			DueDate:            &due,
			MonthlyInstallment: &installment,
			Membership:         &models.Membership{User: &models.User{Phone: "254700000001"}},
		},
		{ID: 2, Status: models.LoanActive, DueDate: &due}, // no preloaded borrower, skipped
	}, nil)

	svc := newSchedulerForTest(loanRepo, gatewayRepo)

	assert.NotPanics(t, svc.ScanOverdueLoans)
	loanRepo.AssertExpectations(t)
	// advisory only: the scan never touches loan status
	loanRepo.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerSweepStaleGatewayTransactions(t *testing.T) {
	loanRepo := new(mockLoanRepo)
	gatewayRepo := new(mockGatewayRepo)

	gatewayRepo.On("ExpireStalePush", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		age := time.Since(cutoff)
		return age > stalePushAge-time.Minute && age < stalePushAge+time.Minute
	})).Return(int64(3), nil)
	gatewayRepo.On("ListStaleDisbursements", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		age := time.Since(cutoff)
		return age > staleDisbursementAge-time.Minute && age < staleDisbursementAge+time.Minute
	})).Return([]*models.PendingGatewayTransaction{
		{CorrelationID: "AG_stuck_1", Kind: models.GatewayKindDisbursement, Status: models.GatewayPending},
	}, nil)

	svc := newSchedulerForTest(loanRepo, gatewayRepo)

	assert.NotPanics(t, svc.SweepStaleGatewayTransactions)
	gatewayRepo.AssertExpectations(t)
	// stuck disbursements are reported, never auto-resolved
	gatewayRepo.AssertNotCalled(t, "ResolveDisbursementTimeout", mock.Anything, mock.Anything)
}
