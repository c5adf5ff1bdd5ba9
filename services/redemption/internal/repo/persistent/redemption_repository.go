package persistent

import (
	"errors"
	"strings"
	"time"

	"perkloop/services/redemption/internal/entity"
	"perkloop/services/redemption/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// txRetries bounds the retry budget for transactions that lost a lock race.
// After the budget is exhausted the caller sees entity.ErrConflict.
const txRetries = 3

type RedemptionRepository interface {
	CreateWithHold(redemption *entity.Redemption) (*entity.Redemption, error)
	GetByID(id string) (*entity.Redemption, error)
	ListByUser(userID string, limit, offset int) ([]*entity.Redemption, error)
	ListBySeller(sellerID string, status entity.RedemptionStatus, limit, offset int) ([]*entity.Redemption, error)
	GetHoldByRedemption(redemptionID string) (*entity.Hold, error)
	CommitPending(redemptionID string) (*entity.Redemption, error)
	MarkTerminal(redemptionID string, status entity.RedemptionStatus) (*entity.Redemption, error)
	FindStalePending(now time.Time, limit int) ([]*entity.Redemption, error)
	UpdateNotes(redemptionID, sellerNotes, customerNotes string) error
	SellerExists(sellerID string) (bool, error)
}

type redemptionRepository struct {
	db *gorm.DB
}

func NewRedemptionRepository(db *gorm.DB) RedemptionRepository {
	return &redemptionRepository{db: db}
}

func (r *redemptionRepository) SellerExists(sellerID string) (bool, error) {
	var seller model.SellerModel
	err := r.db.Select("id").Where("id = ?", sellerID).First(&seller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateWithHold implements the check-and-reserve step: inside a single
// transaction it locks the balance row, sums the outstanding reserved holds,
// verifies available >= requested and only then writes the hold plus the
// pending redemption. Two concurrent creates against the same balance
// serialize on the row lock, so both can never pass the availability check
// when the balance covers only one.
func (r *redemptionRepository) CreateWithHold(redemption *entity.Redemption) (*entity.Redemption, error) {
	redemptionModel := ToRedemptionModel(redemption)

	err := r.withRetry(func(tx *gorm.DB) error {
		balance, err := lockBalanceRow(tx, redemption.UserID, redemption.SellerID)
		if err != nil {
			return err
		}

		reserved, err := sumReservedHolds(tx, redemption.UserID, redemption.SellerID)
		if err != nil {
			return err
		}

		if balance.Points-reserved < redemption.Points {
			return entity.ErrInsufficientPoints
		}

		if err := tx.Create(redemptionModel).Error; err != nil {
			return err
		}

		hold := &model.HoldModel{
			UserID:       redemption.UserID,
			SellerID:     redemption.SellerID,
			RedemptionID: redemptionModel.ID,
			Points:       redemption.Points,
			Status:       string(entity.HoldReserved),
		}
		return tx.Create(hold).Error
	})
	if err != nil {
		return nil, err
	}

	return ToRedemptionEntity(redemptionModel), nil
}

func (r *redemptionRepository) GetByID(id string) (*entity.Redemption, error) {
	var redemptionModel model.RedemptionModel
	err := r.db.Where("id = ?", id).First(&redemptionModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entity.ErrRedemptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return ToRedemptionEntity(&redemptionModel), nil
}

func (r *redemptionRepository) ListByUser(userID string, limit, offset int) ([]*entity.Redemption, error) {
	var redemptionModels []model.RedemptionModel
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&redemptionModels).Error; err != nil {
		return nil, err
	}
	return toRedemptionEntities(redemptionModels), nil
}

func (r *redemptionRepository) ListBySeller(sellerID string, status entity.RedemptionStatus, limit, offset int) ([]*entity.Redemption, error) {
	var redemptionModels []model.RedemptionModel
	query := r.db.Where("seller_id = ?", sellerID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	query = query.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&redemptionModels).Error; err != nil {
		return nil, err
	}
	return toRedemptionEntities(redemptionModels), nil
}

func (r *redemptionRepository) GetHoldByRedemption(redemptionID string) (*entity.Hold, error) {
	var holdModel model.HoldModel
	err := r.db.Where("redemption_id = ?", redemptionID).First(&holdModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entity.ErrHoldNotFound
	}
	if err != nil {
		return nil, err
	}
	return ToHoldEntity(&holdModel), nil
}

// CommitPending finalizes a redemption: under the balance row lock it
// re-verifies the pending status and the ledger balance, decrements the
// ledger, records the debit, bumps seller aggregates and releases the hold.
// The whole step is one transaction, so the hold can never outlive a landed
// decrement or vice versa.
func (r *redemptionRepository) CommitPending(redemptionID string) (*entity.Redemption, error) {
	var result *model.RedemptionModel

	err := r.withRetry(func(tx *gorm.DB) error {
		var redemptionModel model.RedemptionModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", redemptionID).
			First(&redemptionModel).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.ErrRedemptionNotFound
		}
		if err != nil {
			return err
		}

		if redemptionModel.Status != string(entity.StatusPending) {
			return entity.ErrAlreadyProcessed
		}

		// Expiry is judged under the row lock so a commit racing the expiry
		// instant cannot redeem a redemption that has already lapsed.
		if time.Now().After(redemptionModel.ExpiresAt) {
			return entity.ErrExpired
		}

		balance, err := lockBalanceRow(tx, redemptionModel.UserID, redemptionModel.SellerID)
		if err != nil {
			return err
		}

		// Defensive re-check: the hold guarantees availability, but an
		// out-of-band balance mutation must still never drive points negative.
		if balance.Points < redemptionModel.Points {
			return entity.ErrInsufficientPoints
		}

		err = tx.Model(&model.BalanceModel{}).
			Where("id = ?", balance.ID).
			Update("points", gorm.Expr("points - ?", redemptionModel.Points)).Error
		if err != nil {
			return err
		}

		now := time.Now()
		redemptionModel.Status = string(entity.StatusRedeemed)
		redemptionModel.RedeemedAt = &now
		if err := tx.Save(&redemptionModel).Error; err != nil {
			return err
		}

		// Debit entry: redeemed points are stored negative in the history.
		debit := &model.TransactionModel{
			UserID:       redemptionModel.UserID,
			SellerID:     redemptionModel.SellerID,
			Type:         "redeem",
			Points:       -redemptionModel.Points,
			RedemptionID: &redemptionModel.ID,
		}
		if err := tx.Create(debit).Error; err != nil {
			return err
		}

		err = tx.Model(&model.SellerModel{}).
			Where("id = ?", redemptionModel.SellerID).
			Updates(map[string]interface{}{
				"total_redemptions":     gorm.Expr("total_redemptions + 1"),
				"total_points_redeemed": gorm.Expr("total_points_redeemed + ?", redemptionModel.Points),
			}).Error
		if err != nil {
			return err
		}

		if err := releaseHold(tx, redemptionModel.ID); err != nil {
			return err
		}

		result = &redemptionModel
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ToRedemptionEntity(result), nil
}

// MarkTerminal moves a pending redemption to cancelled or expired and
// releases its hold, all in one transaction. A redemption that already left
// pending surfaces ErrAlreadyProcessed; the hold release itself is an
// idempotent no-op when the hold is already released.
func (r *redemptionRepository) MarkTerminal(redemptionID string, status entity.RedemptionStatus) (*entity.Redemption, error) {
	var result *model.RedemptionModel

	err := r.withRetry(func(tx *gorm.DB) error {
		update := tx.Model(&model.RedemptionModel{}).
			Where("id = ? AND status = ?", redemptionID, string(entity.StatusPending)).
			Update("status", string(status))
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			var existing model.RedemptionModel
			err := tx.Where("id = ?", redemptionID).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrRedemptionNotFound
			}
			if err != nil {
				return err
			}
			return entity.ErrAlreadyProcessed
		}

		if err := releaseHold(tx, redemptionID); err != nil {
			return err
		}

		var redemptionModel model.RedemptionModel
		if err := tx.Where("id = ?", redemptionID).First(&redemptionModel).Error; err != nil {
			return err
		}
		result = &redemptionModel
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ToRedemptionEntity(result), nil
}

func (r *redemptionRepository) FindStalePending(now time.Time, limit int) ([]*entity.Redemption, error) {
	var redemptionModels []model.RedemptionModel
	query := r.db.Where("status = ? AND expires_at < ?", string(entity.StatusPending), now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&redemptionModels).Error; err != nil {
		return nil, err
	}
	return toRedemptionEntities(redemptionModels), nil
}

func (r *redemptionRepository) UpdateNotes(redemptionID, sellerNotes, customerNotes string) error {
	updates := map[string]interface{}{}
	if sellerNotes != "" {
		updates["seller_notes"] = sellerNotes
	}
	if customerNotes != "" {
		updates["customer_notes"] = customerNotes
	}
	if len(updates) == 0 {
		return nil
	}

	update := r.db.Model(&model.RedemptionModel{}).
		Where("id = ?", redemptionID).
		Updates(updates)
	if update.Error != nil {
		return update.Error
	}
	if update.RowsAffected == 0 {
		return entity.ErrRedemptionNotFound
	}
	return nil
}

// releaseHold flips a reserved hold to released. Zero rows affected means the
// hold is already released, which is success: every terminal transition calls
// this and double-release must be a no-op.
func releaseHold(tx *gorm.DB, redemptionID string) error {
	now := time.Now()
	return tx.Model(&model.HoldModel{}).
		Where("redemption_id = ? AND status = ?", redemptionID, string(entity.HoldReserved)).
		Updates(map[string]interface{}{
			"status":      string(entity.HoldReleased),
			"released_at": &now,
		}).Error
}

func (r *redemptionRepository) withRetry(fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < txRetries; attempt++ {
		err = r.db.Transaction(fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return entity.ErrConflict
}

// isRetryable matches postgres serialization failures, deadlocks and unique
// violations from concurrent first inserts; domain errors and plain query
// failures are surfaced immediately.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not serialize") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "duplicate key value")
}

func toRedemptionEntities(redemptionModels []model.RedemptionModel) []*entity.Redemption {
	redemptions := make([]*entity.Redemption, len(redemptionModels))
	for i := range redemptionModels {
		redemptions[i] = ToRedemptionEntity(&redemptionModels[i])
	}
	return redemptions
}
