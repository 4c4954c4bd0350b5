package services

import (
	"context"
	"errors"

	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/adapters/persistence/repositories"
	"chamapesa/internal/core/domain"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Actions evaluated by the policy service
const (
	ActionApplyLoan       = "loan:apply"
	ActionApproveLoan     = "loan:approve"
	ActionDisburseLoan    = "loan:disburse"
	ActionRestructureLoan = "loan:restructure"
	ActionRecordPayment   = "loan:record_payment"
	ActionMarkDefaulted   = "loan:mark_defaulted"
	ActionViewDefaulters  = "loan:view_defaulters"
	ActionManageGroup     = "group:manage"
)

// PolicyService is the single authorization decision point for group-scoped
// operations. Every core entry checks here instead of repeating role logic.
type PolicyService struct {
	membershipRepo repositories.MembershipRepository
	logger         *zap.Logger
}

// NewPolicyService creates a new policy service
func NewPolicyService(membershipRepo repositories.MembershipRepository, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		membershipRepo: membershipRepo,
		logger:         logger,
	}
}

// CanPerform returns nil when the actor may perform the action within the
// group, domain.ErrForbidden otherwise.
func (s *PolicyService) CanPerform(ctx context.Context, actorID uint, action string, groupID uint) error {
	membership, err := s.membershipRepo.GetByUserAndGroup(ctx, actorID, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrForbidden
		}
		return err
	}

	allowed := false
	switch action {
	case ActionApplyLoan:
		allowed = true
	case ActionViewDefaulters:
		allowed = membership.Role == models.RoleAdmin ||
			membership.Role == models.RoleTreasurer ||
			membership.Role == models.RoleSecretary
	case ActionApproveLoan, ActionDisburseLoan, ActionRestructureLoan,
		ActionRecordPayment, ActionMarkDefaulted, ActionManageGroup:
		allowed = membership.Role == models.RoleAdmin || membership.Role == models.RoleTreasurer
	}

	if !allowed {
		s.logger.Warn("action denied",
			zap.Uint("actor_id", actorID),
			zap.String("action", action),
			zap.Uint("group_id", groupID),
			zap.String("role", membership.Role),
		)
		return domain.ErrForbidden
	}
	return nil
}
