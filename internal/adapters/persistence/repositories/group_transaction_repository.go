package repositories

import (
	"context"

	"chamapesa/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// groupTransactionRepository implements GroupTransactionRepository interface
type groupTransactionRepository struct {
	db *gorm.DB
}

// NewGroupTransactionRepository creates a new group transaction repository
func NewGroupTransactionRepository(db *gorm.DB) GroupTransactionRepository {
	return &groupTransactionRepository{db: db}
}

// Create appends a ledger entry
func (r *groupTransactionRepository) Create(ctx context.Context, tx *models.GroupTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// ListByGroup lists ledger entries for a group
func (r *groupTransactionRepository) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.GroupTransaction, int64, error) {
	var txs []*models.GroupTransaction
	var total int64

	r.db.WithContext(ctx).Model(&models.GroupTransaction{}).
		Where("group_id = ?", groupID).
		Count(&total)

	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&txs).Error

	return txs, total, err
}

// SumByGroup nets all ledger movements for a group
func (r *groupTransactionRepository) SumByGroup(ctx context.Context, groupID uint) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&models.GroupTransaction{}).
		Where("group_id = ?", groupID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
