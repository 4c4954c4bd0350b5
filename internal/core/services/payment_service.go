package services

import (
	"context"
	"errors"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"
	"chamapesa/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService records loan repayments and rolls loan state forward.
// External reference codes are globally unique: a replayed receipt is
// rejected as a duplicate, never double-credited.
type PaymentService struct {
	loanRepo    repositories.LoanRepository
	paymentRepo repositories.LoanPaymentRepository
	policy      *PolicyService
	audit       *AuditService
	notify      *NotificationService
	logger      *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	loanRepo repositories.LoanRepository,
	paymentRepo repositories.LoanPaymentRepository,
	policy *PolicyService,
	audit *AuditService,
	notify *NotificationService,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		loanRepo:    loanRepo,
		paymentRepo: paymentRepo,
		policy:      policy,
		audit:       audit,
		notify:      notify,
		logger:      logger,
	}
}

// RecordPaymentInput represents a repayment against an active loan.
// PaidAt allows back-dated cash or bank receipts; it defaults to now.
type RecordPaymentInput struct {
	LoanID                uint       `json:"loan_id" validate:"required"`
	Amount                float64    `json:"amount" validate:"required,gt=0"`
	PaymentMethod         string     `json:"payment_method" validate:"required,oneof=MPESA CASH BANK"`
	ExternalReferenceCode *string    `json:"external_reference_code,omitempty"`
	PaidAt                *time.Time `json:"paid_at,omitempty"`
}

// RecordPayment appends a repayment and advances the loan: the due date
// rolls one month forward from its previous value (not from today), and
// once cumulative payments reach the repayment amount the loan settles
// to PAID with its due date cleared. The settle-or-roll decision is made
// inside the repository transaction against the loan row as locked
// there, so concurrent payments cannot decide from a stale total.
func (s *PaymentService) RecordPayment(ctx context.Context, input *RecordPaymentInput, actorID uint, ip string) (*models.LoanPayment, error) {
	loan, err := s.loanRepo.GetByID(ctx, input.LoanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	if s.policy != nil {
		if err := s.policy.CanPerform(ctx, actorID, ActionRecordPayment, loan.GroupID); err != nil {
			return nil, err
		}
	}
	if loan.Status != models.LoanActive {
		return nil, domain.ErrLoanNotActive
	}

	if input.ExternalReferenceCode != nil && *input.ExternalReferenceCode != "" {
		exists, err := s.paymentRepo.ExistsByReference(ctx, *input.ExternalReferenceCode)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateReference
		}
	}

	paidAt := time.Now()
	if input.PaidAt != nil {
		paidAt = *input.PaidAt
	}
	payment := &models.LoanPayment{
		LoanID:                loan.ID,
		Amount:                input.Amount,
		PaymentMethod:         input.PaymentMethod,
		ExternalReferenceCode: input.ExternalReferenceCode,
		RecordedBy:            actorID,
		PaidAt:                paidAt,
	}
	entry := &models.GroupTransaction{
		GroupID:     loan.GroupID,
		LoanID:      &loan.ID,
		Type:        models.TxLoanRepayment,
		Amount:      input.Amount,
		Reference:   uuid.NewString(),
		Description: "loan repayment",
	}

	var updates map[string]interface{}
	applied, err := s.paymentRepo.RecordAndRoll(ctx, payment, entry,
		func(current *models.Loan, totalPaid float64) map[string]interface{} {
			updates = s.settlementUpdates(current, totalPaid)
			return updates
		})
	if err != nil {
		// The unique index backstops the pre-check under concurrent
		// submissions of the same receipt.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrDuplicateReference
		}
		return nil, err
	}
	if !applied {
		return nil, domain.ErrLoanNotActive
	}

	s.audit.Record(ctx, AuditEntry{
		Action:  models.AuditLoanPayment,
		ActorID: actorID,
		LoanID:  &loan.ID,
		NewValue: models.JSON{
			"payment_id": payment.ID,
			"amount":     input.Amount,
			"method":     input.PaymentMethod,
		},
		IPAddress: ip,
	})

	s.logger.Info("loan payment recorded",
		zap.Uint("loan_id", loan.ID),
		zap.Uint("payment_id", payment.ID),
		zap.Float64("amount", input.Amount),
	)

	if status, ok := updates["status"]; ok && status == models.LoanPaid {
		s.logger.Info("loan fully settled", zap.Uint("loan_id", loan.ID))
		if s.notify != nil && loan.Membership != nil && loan.Membership.User != nil {
			s.notify.NotifyLoanSettled(loan, loan.Membership.User.Phone)
		}
	}
	return payment, nil
}

// settlementUpdates decides how the loan record moves after a payment.
// loan and totalPaid come from inside RecordAndRoll's transaction, with
// totalPaid already including the payment being recorded.
func (s *PaymentService) settlementUpdates(loan *models.Loan, totalPaid float64) map[string]interface{} {
	repayment := decimal.Zero
	if loan.RepaymentAmount != nil {
		repayment = decimal.NewFromFloat(*loan.RepaymentAmount)
	}

	if repayment.GreaterThan(decimal.Zero) && decimal.NewFromFloat(totalPaid).GreaterThanOrEqual(repayment) {
		return map[string]interface{}{
			"status":   models.LoanPaid,
			"due_date": nil,
		}
	}

	// updated_at keeps the guarded update non-empty even when there is
	// no due date to roll.
	updates := map[string]interface{}{"updated_at": time.Now()}
	if loan.DueDate != nil {
		updates["due_date"] = loan.DueDate.AddDate(0, 1, 0)
	}
	return updates
}

// ListByLoan returns a loan's full payment history
func (s *PaymentService) ListByLoan(ctx context.Context, loanID uint) ([]*models.LoanPayment, error) {
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return s.paymentRepo.ListByLoan(ctx, loanID)
}

// OutstandingBalance returns repayment amount minus total paid
func (s *PaymentService) OutstandingBalance(ctx context.Context, loanID uint) (float64, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrLoanNotFound
		}
		return 0, err
	}
	paid, err := s.paymentRepo.SumByLoan(ctx, loanID)
	if err != nil {
		return 0, err
	}
	repayment := decimal.Zero
	if loan.RepaymentAmount != nil {
		repayment = decimal.NewFromFloat(*loan.RepaymentAmount)
	}
	out, _ := repayment.Sub(decimal.NewFromFloat(paid)).Round(2).Float64()
	if out < 0 {
		out = 0
	}
	return out, nil
}
