package repositories

import (
	"context"

	"chamapesa/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// contributionRepository implements ContributionRepository interface
type contributionRepository struct {
	db *gorm.DB
}

// NewContributionRepository creates a new contribution repository
func NewContributionRepository(db *gorm.DB) ContributionRepository {
	return &contributionRepository{db: db}
}

// Create creates a new contribution
func (r *contributionRepository) Create(ctx context.Context, contribution *models.Contribution) error {
	return r.db.WithContext(ctx).Create(contribution).Error
}

// GetByID gets a contribution by ID
func (r *contributionRepository) GetByID(ctx context.Context, id uint) (*models.Contribution, error) {
	var contribution models.Contribution
	err := r.db.WithContext(ctx).First(&contribution, id).Error
	if err != nil {
		return nil, err
	}
	return &contribution, nil
}

// ListByMembership lists contributions for a membership
func (r *contributionRepository) ListByMembership(ctx context.Context, membershipID uint, offset, limit int) ([]*models.Contribution, int64, error) {
	var contributions []*models.Contribution
	var total int64

	r.db.WithContext(ctx).Model(&models.Contribution{}).
		Where("membership_id = ?", membershipID).
		Count(&total)

	err := r.db.WithContext(ctx).
		Where("membership_id = ?", membershipID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&contributions).Error

	return contributions, total, err
}

// ListByGroup lists a group's contributions newest first
func (r *contributionRepository) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Contribution, int64, error) {
	var contributions []*models.Contribution
	var total int64

	r.db.WithContext(ctx).Model(&models.Contribution{}).
		Where("group_id = ?", groupID).
		Count(&total)

	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Preload("Membership.User").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&contributions).Error

	return contributions, total, err
}

// UpdateStatus sets a contribution's status
func (r *contributionRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// SumPaidByMembership sums all PAID contributions for a membership
func (r *contributionRepository) SumPaidByMembership(ctx context.Context, membershipID uint) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("membership_id = ? AND status = ?", membershipID, models.ContributionPaid).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
