package repositories

import (
	"context"
	"time"

	"chamapesa/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// gatewayRepository implements GatewayRepository interface
type gatewayRepository struct {
	db *gorm.DB
}

// NewGatewayRepository creates a new gateway repository
func NewGatewayRepository(db *gorm.DB) GatewayRepository {
	return &gatewayRepository{db: db}
}

// CreatePending opens a new pending gateway transaction
func (r *gatewayRepository) CreatePending(ctx context.Context, pending *models.PendingGatewayTransaction) error {
	return r.db.WithContext(ctx).Create(pending).Error
}

// FindOpenPushByContribution finds the unresolved push row for a
// contribution, if any
func (r *gatewayRepository) FindOpenPushByContribution(ctx context.Context, contributionID uint) (*models.PendingGatewayTransaction, error) {
	var pending models.PendingGatewayTransaction
	err := r.db.WithContext(ctx).
		Where("contribution_id = ? AND kind = ? AND status = ?",
			contributionID, models.GatewayKindPush, models.GatewayPending).
		First(&pending).Error
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// GetByCorrelationID gets a pending gateway transaction by its rail key
func (r *gatewayRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.PendingGatewayTransaction, error) {
	var pending models.PendingGatewayTransaction
	err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		First(&pending).Error
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// claim moves a pending row to a terminal status. The compare-on-status
// WHERE clause is the idempotency gate: a replayed webhook finds zero rows.
func claim(tx *gorm.DB, correlationID, toStatus string, resultCode *int, resultDesc string, now time.Time) (int64, error) {
	res := tx.Model(&models.PendingGatewayTransaction{}).
		Where("correlation_id = ? AND status = ?", correlationID, models.GatewayPending).
		Updates(map[string]interface{}{
			"status":      toStatus,
			"result_code": resultCode,
			"result_desc": resultDesc,
			"resolved_at": now,
		})
	return res.RowsAffected, res.Error
}

// ResolvePush reconciles an STK push callback in one transaction
func (r *gatewayRepository) ResolvePush(ctx context.Context, res PushResolution) (*ResolveOutcome, error) {
	outcome := &ResolveOutcome{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending models.PendingGatewayTransaction
		if err := tx.Where("correlation_id = ?", res.CheckoutRequestID).First(&pending).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				outcome.NotFound = true
				return nil
			}
			return err
		}
		if pending.Status != models.GatewayPending {
			outcome.AlreadyResolved = true
			return nil
		}

		status := models.GatewayCompleted
		if res.ResultCode != 0 {
			status = models.GatewayFailed
		}
		rows, err := claim(tx, res.CheckoutRequestID, status, &res.ResultCode, res.ResultDesc, time.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			outcome.AlreadyResolved = true
			return nil
		}
		outcome.ContributionID = pending.ContributionID

		// Failed pushes change nothing beyond the pending row.
		if res.ResultCode != 0 || pending.ContributionID == nil {
			return nil
		}

		upd := tx.Model(&models.Contribution{}).
			Where("id = ? AND status = ?", *pending.ContributionID, models.ContributionPending).
			Updates(map[string]interface{}{
				"status":         models.ContributionPaid,
				"receipt_number": res.ReceiptNumber,
				"paid_at":        res.PaidAt,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			// Already-processed or unknown contribution: not an error.
			outcome.TargetMissing = true
			return nil
		}

		var contribution models.Contribution
		if err := tx.First(&contribution, *pending.ContributionID).Error; err != nil {
			return err
		}
		return tx.Create(&models.GroupTransaction{
			GroupID:     contribution.GroupID,
			Type:        models.TxContribution,
			Amount:      contribution.Amount,
			Reference:   res.ReceiptNumber,
			Description: "M-Pesa contribution " + res.ReceiptNumber,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ResolveDisbursementResult reconciles a B2C result callback in one
// transaction. On success the loan's correlation marker is cleared and a
// confirmation entry lands in the group ledger; on failure only the pending
// row is closed (the loan keeps whatever state disburse left it in).
func (r *gatewayRepository) ResolveDisbursementResult(ctx context.Context, res DisbursementResolution) (*ResolveOutcome, error) {
	outcome := &ResolveOutcome{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending models.PendingGatewayTransaction
		if err := tx.Where("correlation_id = ?", res.ConversationID).First(&pending).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				outcome.NotFound = true
				return nil
			}
			return err
		}
		if pending.Status != models.GatewayPending {
			outcome.AlreadyResolved = true
			return nil
		}

		status := models.GatewayCompleted
		if res.ResultCode != 0 {
			status = models.GatewayFailed
		}
		rows, err := claim(tx, res.ConversationID, status, &res.ResultCode, res.ResultDesc, time.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			outcome.AlreadyResolved = true
			return nil
		}
		outcome.LoanID = pending.LoanID

		if res.ResultCode != 0 || pending.LoanID == nil {
			return nil
		}

		var loan models.Loan
		if err := tx.First(&loan, *pending.LoanID).Error; err != nil {
			return err
		}
		upd := tx.Model(&models.Loan{}).
			Where("id = ? AND disbursement_conversation_id = ?", loan.ID, res.ConversationID).
			Update("disbursement_conversation_id", nil)
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			outcome.TargetMissing = true
			return nil
		}
		return tx.Create(&models.GroupTransaction{
			GroupID:     loan.GroupID,
			LoanID:      &loan.ID,
			Type:        models.TxDisbursementConfirmed,
			Amount:      res.Amount,
			Reference:   res.ReceiptNumber,
			Description: "B2C disbursement confirmed " + res.ReceiptNumber,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ResolveDisbursementTimeout reverts the loan tied to a timed-out B2C
// request back to APPROVED so the operator can retry disbursement.
func (r *gatewayRepository) ResolveDisbursementTimeout(ctx context.Context, conversationID string) (*ResolveOutcome, error) {
	outcome := &ResolveOutcome{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending models.PendingGatewayTransaction
		if err := tx.Where("correlation_id = ?", conversationID).First(&pending).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				outcome.NotFound = true
				return nil
			}
			return err
		}
		if pending.Status != models.GatewayPending {
			outcome.AlreadyResolved = true
			return nil
		}

		rows, err := claim(tx, conversationID, models.GatewayExpired, nil, "disbursement timeout", time.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			outcome.AlreadyResolved = true
			return nil
		}
		outcome.LoanID = pending.LoanID

		if pending.LoanID == nil {
			return nil
		}

		var loan models.Loan
		if err := tx.First(&loan, *pending.LoanID).Error; err != nil {
			return err
		}
		upd := tx.Model(&models.Loan{}).
			Where("id = ? AND disbursement_conversation_id = ?", loan.ID, conversationID).
			Updates(map[string]interface{}{
				"status":                       models.LoanApproved,
				"disbursed_at":                 nil,
				"due_date":                     nil,
				"disbursement_conversation_id": nil,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			outcome.TargetMissing = true
			return nil
		}
		// Books must not keep an outflow that never settled.
		return tx.Create(&models.GroupTransaction{
			GroupID:     loan.GroupID,
			LoanID:      &loan.ID,
			Type:        models.TxDisbursementReversal,
			Amount:      loan.Amount,
			Reference:   "TIMEOUT-" + conversationID,
			Description: "disbursement timeout reversal",
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ExpireStalePush closes PUSH_PAYMENT rows the rail never confirmed
func (r *gatewayRepository) ExpireStalePush(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PendingGatewayTransaction{}).
		Where("kind = ? AND status = ? AND created_at < ?", models.GatewayKindPush, models.GatewayPending, olderThan).
		Updates(map[string]interface{}{
			"status":      models.GatewayExpired,
			"result_desc": "no callback received",
			"resolved_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// ListStaleDisbursements lists DISBURSEMENT rows still pending past the cutoff
func (r *gatewayRepository) ListStaleDisbursements(ctx context.Context, olderThan time.Time) ([]*models.PendingGatewayTransaction, error) {
	var pendings []*models.PendingGatewayTransaction
	err := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND created_at < ?", models.GatewayKindDisbursement, models.GatewayPending, olderThan).
		Order("created_at ASC").
		Find(&pendings).Error
	return pendings, err
}
