package services

import (
	"context"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"

	"go.uber.org/zap"
)

// AuditService records before/after snapshots for every financial
// mutation. Recording is best-effort: a failed write is logged and
// swallowed so it can never roll back or block the triggering operation.
type AuditService struct {
	auditRepo repositories.AuditLogRepository
	logger    *zap.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo repositories.AuditLogRepository, logger *zap.Logger) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// AuditEntry carries one audit record
type AuditEntry struct {
	Action         string
	ActorID        uint
	TargetID       *uint
	LoanID         *uint
	ContributionID *uint
	MembershipID   *uint
	OldValue       models.JSON
	NewValue       models.JSON
	IPAddress      string
	UserAgent      string
}

// Record appends an audit entry, fire-and-forget
func (s *AuditService) Record(ctx context.Context, e AuditEntry) {
	entry := &models.AuditLog{
		ActorID:        e.ActorID,
		Action:         e.Action,
		TargetID:       e.TargetID,
		LoanID:         e.LoanID,
		ContributionID: e.ContributionID,
		MembershipID:   e.MembershipID,
		OldValue:       e.OldValue,
		NewValue:       e.NewValue,
		IPAddress:      e.IPAddress,
		UserAgent:      e.UserAgent,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.Error("audit record failed",
			zap.String("action", e.Action),
			zap.Uint("actor_id", e.ActorID),
			zap.Error(err),
		)
	}
}

// LoanSnapshot captures the audit-relevant fields of a loan
func LoanSnapshot(loan *models.Loan) models.JSON {
	if loan == nil {
		return nil
	}
	snap := models.JSON{
		"id":              loan.ID,
		"membership_id":   loan.MembershipID,
		"amount":          loan.Amount,
		"interest_rate":   loan.InterestRate,
		"duration_months": loan.DurationMonths,
		"status":          loan.Status,
		"is_restructured": loan.IsRestructured,
	}
	if loan.RepaymentAmount != nil {
		snap["repayment_amount"] = *loan.RepaymentAmount
	}
	if loan.MonthlyInstallment != nil {
		snap["monthly_installment"] = *loan.MonthlyInstallment
	}
	if loan.DueDate != nil {
		snap["due_date"] = loan.DueDate.Format("2006-01-02")
	}
	return snap
}
