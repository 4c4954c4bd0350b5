package repositories

import (
	"context"

	"chamapesa/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// membershipRepository implements MembershipRepository interface
type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

// Create creates a new membership
func (r *membershipRepository) Create(ctx context.Context, membership *models.Membership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

// GetByID gets a membership by ID with its user and group
func (r *membershipRepository) GetByID(ctx context.Context, id uint) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Group").
		First(&membership, id).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// GetByUserAndGroup gets a membership by user and group
func (r *membershipRepository) GetByUserAndGroup(ctx context.Context, userID, groupID uint) (*models.Membership, error) {
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// ListByGroup lists memberships in a group
func (r *membershipRepository) ListByGroup(ctx context.Context, groupID uint) ([]*models.Membership, error) {
	var memberships []*models.Membership
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Find(&memberships).Error
	return memberships, err
}

// UpdateRole updates a membership role
func (r *membershipRepository) UpdateRole(ctx context.Context, id uint, role string) error {
	return r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ?", id).
		Update("role", role).Error
}

// CountByGroupAndRole counts memberships holding a role in a group
func (r *membershipRepository) CountByGroupAndRole(ctx context.Context, groupID uint, role string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("group_id = ? AND role = ?", groupID, role).
		Count(&count).Error
	return count, err
}
