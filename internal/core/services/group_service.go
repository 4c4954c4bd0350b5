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

// GroupService manages savings groups and their memberships
type GroupService struct {
	groupRepo      repositories.GroupRepository
	membershipRepo repositories.MembershipRepository
	userRepo       repositories.UserRepository
	txRepo         repositories.GroupTransactionRepository
	policy         *PolicyService
	logger         *zap.Logger
}

// NewGroupService creates a new group service
func NewGroupService(
	groupRepo repositories.GroupRepository,
	membershipRepo repositories.MembershipRepository,
	userRepo repositories.UserRepository,
	txRepo repositories.GroupTransactionRepository,
	policy *PolicyService,
	logger *zap.Logger,
) *GroupService {
	return &GroupService{
		groupRepo:      groupRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		txRepo:         txRepo,
		policy:         policy,
		logger:         logger,
	}
}

// CreateGroupInput represents a new savings group
type CreateGroupInput struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description,omitempty"`
}

// AddMemberInput adds a user to a group
type AddMemberInput struct {
	UserID uint   `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=admin treasurer secretary member"`
}

// Create makes a new group with the creator as its first admin
func (s *GroupService) Create(ctx context.Context, input *CreateGroupInput, creatorID uint) (*models.Group, error) {
	group := &models.Group{
		Name:        input.Name,
		Description: input.Description,
		CreatedBy:   creatorID,
	}
	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, err
	}

	membership := &models.Membership{
		UserID:  creatorID,
		GroupID: group.ID,
		Role:    models.RoleAdmin,
	}
	if err := s.membershipRepo.Create(ctx, membership); err != nil {
		return nil, err
	}

	s.logger.Info("group created",
		zap.Uint("group_id", group.ID),
		zap.Uint("creator_id", creatorID),
	)
	return group, nil
}

// AddMember enrolls a user into a group. Only group managers may do this
func (s *GroupService) AddMember(ctx context.Context, groupID uint, input *AddMemberInput, actorID uint) (*models.Membership, error) {
	if err := s.policy.CanPerform(ctx, actorID, ActionManageGroup, groupID); err != nil {
		return nil, err
	}
	if _, err := s.groupRepo.GetByID(ctx, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, err
	}
	if _, err := s.userRepo.GetByID(ctx, input.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if existing, err := s.membershipRepo.GetByUserAndGroup(ctx, input.UserID, groupID); err == nil && existing != nil {
		return nil, domain.ErrAlreadyMember
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	membership := &models.Membership{
		UserID:  input.UserID,
		GroupID: groupID,
		Role:    input.Role,
	}
	if err := s.membershipRepo.Create(ctx, membership); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrAlreadyMember
		}
		return nil, err
	}
	return membership, nil
}

// UpdateMemberRole changes a membership's role. Demoting the group's
// sole remaining admin is rejected.
func (s *GroupService) UpdateMemberRole(ctx context.Context, membershipID uint, newRole string, actorID uint) (*models.Membership, error) {
	membership, err := s.membershipRepo.GetByID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	if err := s.policy.CanPerform(ctx, actorID, ActionManageGroup, membership.GroupID); err != nil {
		return nil, err
	}

	if membership.Role == models.RoleAdmin && newRole != models.RoleAdmin {
		admins, err := s.membershipRepo.CountByGroupAndRole(ctx, membership.GroupID, models.RoleAdmin)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, domain.ErrLastAdmin
		}
	}

	if err := s.membershipRepo.UpdateRole(ctx, membershipID, newRole); err != nil {
		return nil, err
	}
	membership.Role = newRole
	return membership, nil
}

// GetByID returns a group
func (s *GroupService) GetByID(ctx context.Context, groupID uint) (*models.Group, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, err
	}
	return group, nil
}

// List returns groups with pagination
func (s *GroupService) List(ctx context.Context, offset, limit int) ([]*models.Group, int64, error) {
	return s.groupRepo.List(ctx, offset, limit)
}

// ListMembers returns a group's memberships
func (s *GroupService) ListMembers(ctx context.Context, groupID uint, actorID uint) ([]*models.Membership, error) {
	if _, err := s.membershipRepo.GetByUserAndGroup(ctx, actorID, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrForbidden
		}
		return nil, err
	}
	return s.membershipRepo.ListByGroup(ctx, groupID)
}

// Ledger returns a group's transaction history, newest first
func (s *GroupService) Ledger(ctx context.Context, groupID uint, actorID uint, offset, limit int) ([]*models.GroupTransaction, int64, error) {
	if _, err := s.membershipRepo.GetByUserAndGroup(ctx, actorID, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, domain.ErrForbidden
		}
		return nil, 0, err
	}
	return s.txRepo.ListByGroup(ctx, groupID, offset, limit)
}

// Balance returns the group's pot: contributions plus repayments minus
// disbursements, as recorded in the ledger.
func (s *GroupService) Balance(ctx context.Context, groupID uint, actorID uint) (float64, error) {
	if _, err := s.membershipRepo.GetByUserAndGroup(ctx, actorID, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrForbidden
		}
		return 0, err
	}
	return s.txRepo.SumByGroup(ctx, groupID)
}
