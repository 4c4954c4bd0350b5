package repositories

import (
	"context"
	"time"

	"chamapesa/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// loanRepository implements LoanRepository interface
type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

// Create creates a new loan
func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

// GetByID gets a loan by ID with its membership and payments
func (r *loanRepository) GetByID(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("Membership").
		Preload("Membership.User").
		Preload("Payments").
		First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// ListByGroup lists loans in a group with pagination
func (r *loanRepository) ListByGroup(ctx context.Context, groupID uint, offset, limit int) ([]*models.Loan, int64, error) {
	var loans []*models.Loan
	var total int64

	r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("group_id = ?", groupID).
		Count(&total)

	err := r.db.WithContext(ctx).
		Preload("Membership").
		Preload("Membership.User").
		Where("group_id = ?", groupID).
		Order("applied_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&loans).Error

	return loans, total, err
}

// ListByMembership lists loans belonging to a membership
func (r *loanRepository) ListByMembership(ctx context.Context, membershipID uint) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Where("membership_id = ?", membershipID).
		Order("applied_at DESC").
		Find(&loans).Error
	return loans, err
}

// UpdateStatusIf applies updates only when the loan currently holds
// fromStatus. The WHERE guard is what serializes concurrent transitions:
// of two simultaneous callers exactly one sees RowsAffected == 1.
func (r *loanRepository) UpdateStatusIf(ctx context.Context, loanID uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status = ?", loanID, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Disburse atomically activates an APPROVED loan and records the outflow
func (r *loanRepository) Disburse(ctx context.Context, loanID uint, disbursedAt, dueDate time.Time, entry *models.GroupTransaction) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND status = ?", loanID, models.LoanApproved).
			Updates(map[string]interface{}{
				"status":       models.LoanActive,
				"disbursed_at": disbursedAt,
				"due_date":     dueDate,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// UndoDisburse reverts an ACTIVE loan that never reached the rail
func (r *loanRepository) UndoDisburse(ctx context.Context, loanID uint, entry *models.GroupTransaction) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND status = ? AND disbursement_conversation_id IS NULL", loanID, models.LoanActive).
			Updates(map[string]interface{}{
				"status":       models.LoanApproved,
				"disbursed_at": nil,
				"due_date":     nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// RegisterDisbursement stores the rail correlation id and opens the
// pending gateway transaction
func (r *loanRepository) RegisterDisbursement(ctx context.Context, loanID uint, pending *models.PendingGatewayTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Loan{}).
			Where("id = ?", loanID).
			Update("disbursement_conversation_id", pending.CorrelationID).Error; err != nil {
			return err
		}
		return tx.Create(pending).Error
	})
}

// FindOverdue returns ACTIVE loans in a group whose due date has passed
func (r *loanRepository) FindOverdue(ctx context.Context, groupID uint, asOf time.Time) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Preload("Membership").
		Preload("Membership.User").
		Preload("Payments").
		Where("group_id = ? AND status = ? AND due_date < ?", groupID, models.LoanActive, asOf).
		Order("due_date ASC").
		Find(&loans).Error
	return loans, err
}

// FindAllOverdue returns overdue ACTIVE loans across all groups
func (r *loanRepository) FindAllOverdue(ctx context.Context, asOf time.Time) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Preload("Membership").
		Preload("Membership.User").
		Where("status = ? AND due_date < ?", models.LoanActive, asOf).
		Order("due_date ASC").
		Find(&loans).Error
	return loans, err
}
