package repositories

import (
	"context"
	"errors"

	"chamapesa/internal/adapters/persistence/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// loanPaymentRepository implements LoanPaymentRepository interface
type loanPaymentRepository struct {
	db *gorm.DB
}

// NewLoanPaymentRepository creates a new loan payment repository
func NewLoanPaymentRepository(db *gorm.DB) LoanPaymentRepository {
	return &loanPaymentRepository{db: db}
}

// ExistsByReference checks an external reference code across all payments
func (r *loanPaymentRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoanPayment{}).
		Where("external_reference_code = ?", reference).
		Count(&count).Error
	return count > 0, err
}

// SumByLoan sums all payments recorded against a loan
func (r *loanPaymentRepository) SumByLoan(ctx context.Context, loanID uint) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&models.LoanPayment{}).
		Where("loan_id = ?", loanID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// ListByLoan lists payments for a loan, oldest first
func (r *loanPaymentRepository) ListByLoan(ctx context.Context, loanID uint) ([]*models.LoanPayment, error) {
	var payments []*models.LoanPayment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("paid_at ASC").
		Find(&payments).Error
	return payments, err
}

// RecordAndRoll performs the whole payment mutation as one transaction:
// loan row lock, payment insert, in-transaction payment sum, the loan
// update decide derives from that sum, ledger append. The SELECT FOR
// UPDATE serializes concurrent payments per loan, so two racing partials
// cannot both read the same stale total and each roll the due date once
// when together they settle the loan. A duplicate external reference
// slipping past the caller's pre-check still fails here on the unique
// index and rolls the insert back.
func (r *loanPaymentRepository) RecordAndRoll(ctx context.Context, payment *models.LoanPayment, entry *models.GroupTransaction, decide SettlementFunc) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loan models.Loan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", payment.LoanID).
			First(&loan).Error; err != nil {
			return err
		}
		if loan.Status != models.LoanActive {
			return errLoanGuard
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		var totalPaid float64
		if err := tx.Model(&models.LoanPayment{}).
			Where("loan_id = ?", payment.LoanID).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&totalPaid).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Loan{}).
			Where("id = ?", loan.ID).
			Updates(decide(&loan, totalPaid)).Error; err != nil {
			return err
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, errLoanGuard) {
		return false, nil
	}
	return applied, err
}

// errLoanGuard aborts the transaction when the loan left ACTIVE between
// the caller's read and the locked re-read.
var errLoanGuard = errors.New("loan status guard failed")
