package repositories

import (
	"context"

	"chamapesa/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// groupRepository implements GroupRepository interface
type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

// Create creates a new group
func (r *groupRepository) Create(ctx context.Context, group *models.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

// GetByID gets a group by ID
func (r *groupRepository) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).First(&group, id).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// List lists groups with pagination
func (r *groupRepository) List(ctx context.Context, offset, limit int) ([]*models.Group, int64, error) {
	var groups []*models.Group
	var total int64

	r.db.WithContext(ctx).Model(&models.Group{}).Count(&total)

	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&groups).Error

	return groups, total, err
}
