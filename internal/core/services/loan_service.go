package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"
	"chamapesa/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LoanService owns the loan state machine:
//
//	PENDING --approve--> APPROVED --disburse--> ACTIVE --full payment--> PAID
//	PENDING --reject--> REJECTED
//	ACTIVE --mark defaulted--> DEFAULTED
//
// Transitions only move forward; every guarded update compares on the
// current status so concurrent callers serialize per loan.
type LoanService struct {
	loanRepo       repositories.LoanRepository
	membershipRepo repositories.MembershipRepository
	eligibility    *EligibilityService
	policy         *PolicyService
	mpesa          MpesaClient
	audit          *AuditService
	notify         *NotificationService
	logger         *zap.Logger
}

// NewLoanService creates a new loan service
func NewLoanService(
	loanRepo repositories.LoanRepository,
	membershipRepo repositories.MembershipRepository,
	eligibility *EligibilityService,
	policy *PolicyService,
	mpesa MpesaClient,
	audit *AuditService,
	notify *NotificationService,
	logger *zap.Logger,
) *LoanService {
	return &LoanService{
		loanRepo:       loanRepo,
		membershipRepo: membershipRepo,
		eligibility:    eligibility,
		policy:         policy,
		mpesa:          mpesa,
		audit:          audit,
		notify:         notify,
		logger:         logger,
	}
}

// ComputeRepaymentTerms applies flat-rate interest:
//
//	totalInterest      = principal × annualRate × (months / 12)
//	repaymentAmount    = principal + totalInterest
//	monthlyInstallment = repaymentAmount / months
//
// The same formula runs at approval, at restructure, and when the
// schedule is generated. Outputs are rounded to 2 decimal places.
func ComputeRepaymentTerms(principal, annualRate float64, months int) (repaymentAmount, monthlyInstallment float64) {
	p := decimal.NewFromFloat(principal)
	interest := p.
		Mul(decimal.NewFromFloat(annualRate)).
		Mul(decimal.NewFromInt(int64(months))).
		Div(decimal.NewFromInt(12))
	total := p.Add(interest).Round(2)
	installment := total.Div(decimal.NewFromInt(int64(months))).Round(2)

	repaymentAmount, _ = total.Float64()
	monthlyInstallment, _ = installment.Float64()
	return repaymentAmount, monthlyInstallment
}

// ApplyLoanInput represents a loan application
type ApplyLoanInput struct {
	MembershipID   uint    `json:"membership_id" validate:"required"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	DurationMonths int     `json:"duration_months" validate:"required,gt=0"`
	InterestRate   float64 `json:"interest_rate" validate:"gte=0"`
	Purpose        string  `json:"purpose,omitempty"`
}

// Apply creates a PENDING loan after ownership and eligibility checks
func (s *LoanService) Apply(ctx context.Context, input *ApplyLoanInput, actorID uint, ip string) (*models.Loan, error) {
	membership, err := s.membershipRepo.GetByID(ctx, input.MembershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	if membership.UserID != actorID {
		return nil, domain.ErrNotMembershipOwner
	}

	result, err := s.eligibility.Calculate(ctx, membership.ID, input.Amount)
	if err != nil {
		return nil, err
	}
	if !result.IsEligible {
		return nil, &EligibilityError{Requested: input.Amount, MaxLoanable: result.MaxLoanable}
	}

	loan := &models.Loan{
		MembershipID:   membership.ID,
		GroupID:        membership.GroupID,
		Amount:         input.Amount,
		InterestRate:   input.InterestRate,
		DurationMonths: input.DurationMonths,
		Purpose:        input.Purpose,
		Status:         models.LoanPending,
	}
	if err := s.loanRepo.Create(ctx, loan); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Action:       models.AuditLoanApply,
		ActorID:      actorID,
		LoanID:       &loan.ID,
		MembershipID: &membership.ID,
		NewValue:     LoanSnapshot(loan),
		IPAddress:    ip,
	})

	s.logger.Info("loan application created",
		zap.Uint("loan_id", loan.ID),
		zap.Uint("membership_id", membership.ID),
		zap.Float64("amount", input.Amount),
	)
	return loan, nil
}

// ApproveOrReject decides a PENDING loan. Approval computes flat-rate
// repayment terms and stamps the approval time; any non-PENDING current
// status is a hard error.
func (s *LoanService) ApproveOrReject(ctx context.Context, loanID uint, decision string, actorID uint, ip string) (*models.Loan, error) {
	if decision != models.LoanApproved && decision != models.LoanRejected {
		return nil, domain.ErrInvalidInput
	}

	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	if err := s.policy.CanPerform(ctx, actorID, ActionApproveLoan, loan.GroupID); err != nil {
		return nil, err
	}

	oldSnap := LoanSnapshot(loan)
	updates := map[string]interface{}{"status": decision}
	action := models.AuditLoanReject
	if decision == models.LoanApproved {
		repayment, installment := ComputeRepaymentTerms(loan.Amount, loan.InterestRate, loan.DurationMonths)
		now := time.Now()
		updates["approved_at"] = now
		updates["repayment_amount"] = repayment
		updates["monthly_installment"] = installment
		action = models.AuditLoanApprove
	}

	applied, err := s.loanRepo.UpdateStatusIf(ctx, loanID, models.LoanPending, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrLoanNotUpdatable
	}

	updated, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Action:    action,
		ActorID:   actorID,
		LoanID:    &loanID,
		OldValue:  oldSnap,
		NewValue:  LoanSnapshot(updated),
		IPAddress: ip,
	})
	s.notifyDecision(updated)
	return updated, nil
}

// Disburse moves an APPROVED loan to ACTIVE as one atomic unit (status,
// disbursement stamp, due date one month out, negative ledger movement),
// then initiates the B2C payout and registers its correlation id. A
// gateway rejection compensates the activation so the loan returns to
// APPROVED; an in-flight timeout is resolved by the timeout webhook.
func (s *LoanService) Disburse(ctx context.Context, loanID uint, actorID uint, ip string) (*models.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	if err := s.policy.CanPerform(ctx, actorID, ActionDisburseLoan, loan.GroupID); err != nil {
		return nil, err
	}

	oldSnap := LoanSnapshot(loan)
	now := time.Now()
	dueDate := now.AddDate(0, 1, 0)

	applied, err := s.loanRepo.Disburse(ctx, loanID, now, dueDate, &models.GroupTransaction{
		GroupID:     loan.GroupID,
		LoanID:      &loanID,
		Type:        models.TxLoanDisbursement,
		Amount:      -loan.Amount,
		Reference:   uuid.NewString(),
		Description: fmt.Sprintf("loan %d disbursement", loanID),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrLoanNotApproved
	}

	phone := ""
	if loan.Membership != nil && loan.Membership.User != nil {
		phone = loan.Membership.User.Phone
	}

	b2c, err := s.mpesa.InitiateDisbursement(ctx, B2CRequest{
		PhoneNumber: phone,
		Amount:      loan.Amount,
		Remarks:     fmt.Sprintf("loan %d disbursement", loanID),
	})
	if err != nil {
		s.logger.Error("b2c initiation failed, compensating disbursement",
			zap.Uint("loan_id", loanID),
			zap.Error(err),
		)
		if _, undoErr := s.loanRepo.UndoDisburse(ctx, loanID, &models.GroupTransaction{
			GroupID:     loan.GroupID,
			LoanID:      &loanID,
			Type:        models.TxDisbursementReversal,
			Amount:      loan.Amount,
			Reference:   uuid.NewString(),
			Description: fmt.Sprintf("loan %d disbursement reversed: gateway rejection", loanID),
		}); undoErr != nil {
			s.logger.Error("disbursement compensation failed",
				zap.Uint("loan_id", loanID),
				zap.Error(undoErr),
			)
		}
		return nil, fmt.Errorf("disbursement initiation failed: %w", err)
	}

	if err := s.loanRepo.RegisterDisbursement(ctx, loanID, &models.PendingGatewayTransaction{
		CorrelationID: b2c.ConversationID,
		Kind:          models.GatewayKindDisbursement,
		Status:        models.GatewayPending,
		LoanID:        &loanID,
	}); err != nil {
		return nil, err
	}

	updated, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Action:    models.AuditLoanDisburse,
		ActorID:   actorID,
		LoanID:    &loanID,
		OldValue:  oldSnap,
		NewValue:  LoanSnapshot(updated),
		IPAddress: ip,
	})
	s.notifyDisbursement(updated)
	return updated, nil
}

// RestructureInput represents new loan terms
type RestructureInput struct {
	NewInterestRate *float64 `json:"new_interest_rate,omitempty" validate:"omitempty,gte=0"`
	NewDuration     *int     `json:"new_duration,omitempty" validate:"omitempty,gt=0"`
	Notes           string   `json:"notes" validate:"required"`
}

// Restructure recomputes repayment terms for an APPROVED or ACTIVE loan.
// Missing fields keep their current values; notes are mandatory.
func (s *LoanService) Restructure(ctx context.Context, loanID uint, input *RestructureInput, actorID uint, ip string) (*models.Loan, error) {
	if input.Notes == "" {
		return nil, domain.ErrRestructureNotes
	}

	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	if loan.Status != models.LoanApproved && loan.Status != models.LoanActive {
		return nil, domain.ErrLoanNotUpdatable
	}
	if err := s.policy.CanPerform(ctx, actorID, ActionRestructureLoan, loan.GroupID); err != nil {
		return nil, err
	}

	rate := loan.InterestRate
	if input.NewInterestRate != nil {
		rate = *input.NewInterestRate
	}
	months := loan.DurationMonths
	if input.NewDuration != nil {
		months = *input.NewDuration
	}

	repayment, installment := ComputeRepaymentTerms(loan.Amount, rate, months)
	oldSnap := LoanSnapshot(loan)

	applied, err := s.loanRepo.UpdateStatusIf(ctx, loanID, loan.Status, map[string]interface{}{
		"interest_rate":       rate,
		"duration_months":     months,
		"repayment_amount":    repayment,
		"monthly_installment": installment,
		"is_restructured":     true,
		"restructure_notes":   input.Notes,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrLoanNotUpdatable
	}

	updated, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Action:    models.AuditLoanRestructure,
		ActorID:   actorID,
		LoanID:    &loanID,
		OldValue:  oldSnap,
		NewValue:  LoanSnapshot(updated),
		IPAddress: ip,
	})
	return updated, nil
}

// GenerateSchedule derives the full amortization schedule from the loan
// record alone. Empty if the loan was never disbursed.
func (s *LoanService) GenerateSchedule(ctx context.Context, loanID uint) ([]models.ScheduleEntry, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return BuildSchedule(loan), nil
}

// BuildSchedule is the pure schedule computation behind GenerateSchedule
func BuildSchedule(loan *models.Loan) []models.ScheduleEntry {
	if loan.DisbursedAt == nil || loan.RepaymentAmount == nil || loan.MonthlyInstallment == nil {
		return []models.ScheduleEntry{}
	}

	installment := decimal.NewFromFloat(*loan.MonthlyInstallment)
	balance := decimal.NewFromFloat(*loan.RepaymentAmount)
	entries := make([]models.ScheduleEntry, 0, loan.DurationMonths)

	for i := 1; i <= loan.DurationMonths; i++ {
		balance = balance.Sub(installment).Round(2)
		amount, _ := installment.Float64()
		remaining, _ := balance.Float64()
		entries = append(entries, models.ScheduleEntry{
			InstallmentNumber: i,
			DueDate:           loan.DisbursedAt.AddDate(0, i, 0),
			PaymentAmount:     amount,
			RemainingBalance:  remaining,
		})
	}
	return entries
}

// FindDefaulters returns ACTIVE loans in a group whose due date has
// passed, with owner and payment history attached. Advisory only: no
// status is mutated here.
func (s *LoanService) FindDefaulters(ctx context.Context, groupID uint, actorID uint) ([]*models.Loan, error) {
	if err := s.policy.CanPerform(ctx, actorID, ActionViewDefaulters, groupID); err != nil {
		return nil, err
	}
	return s.loanRepo.FindOverdue(ctx, groupID, time.Now())
}

// MarkDefaulted explicitly moves an overdue ACTIVE loan to DEFAULTED
func (s *LoanService) MarkDefaulted(ctx context.Context, loanID uint, actorID uint, ip string) (*models.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	if err := s.policy.CanPerform(ctx, actorID, ActionMarkDefaulted, loan.GroupID); err != nil {
		return nil, err
	}
	if loan.DueDate == nil || loan.DueDate.After(time.Now()) {
		return nil, domain.ErrLoanNotUpdatable
	}

	oldSnap := LoanSnapshot(loan)
	applied, err := s.loanRepo.UpdateStatusIf(ctx, loanID, models.LoanActive, map[string]interface{}{
		"status": models.LoanDefaulted,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrLoanNotUpdatable
	}

	updated, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Action:    models.AuditLoanDefaulted,
		ActorID:   actorID,
		LoanID:    &loanID,
		OldValue:  oldSnap,
		NewValue:  LoanSnapshot(updated),
		IPAddress: ip,
	})
	return updated, nil
}

// GetByID returns a loan with membership and payments
func (s *LoanService) GetByID(ctx context.Context, loanID uint) (*models.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// ListByGroup lists loans in a group with pagination
func (s *LoanService) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Loan, int64, error) {
	return s.loanRepo.ListByGroup(ctx, groupID, offset, limit)
}

func (s *LoanService) notifyDecision(loan *models.Loan) {
	if s.notify == nil || loan.Membership == nil || loan.Membership.User == nil {
		return
	}
	s.notify.NotifyLoanDecision(loan, loan.Membership.User.Phone)
}

func (s *LoanService) notifyDisbursement(loan *models.Loan) {
	if s.notify == nil || loan.Membership == nil || loan.Membership.User == nil {
		return
	}
	s.notify.NotifyDisbursement(loan, loan.Membership.User.Phone)
}
