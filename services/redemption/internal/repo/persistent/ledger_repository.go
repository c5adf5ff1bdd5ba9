package persistent

import (
	"errors"

	"perkloop/services/redemption/internal/entity"
	"perkloop/services/redemption/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository interface {
	GetBalance(userID, sellerID string) (int, error)
	SumReservedHolds(userID, sellerID string) (int, error)
	GetTransactions(userID, sellerID string, limit, offset int) ([]*entity.Transaction, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// GetBalance returns the ledger points for a (user, seller) pair, 0 when no
// row exists yet.
func (r *ledgerRepository) GetBalance(userID, sellerID string) (int, error) {
	var balance model.BalanceModel
	err := r.db.Where("user_id = ? AND seller_id = ?", userID, sellerID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Points, nil
}

func (r *ledgerRepository) SumReservedHolds(userID, sellerID string) (int, error) {
	return sumReservedHolds(r.db, userID, sellerID)
}

func (r *ledgerRepository) GetTransactions(userID, sellerID string, limit, offset int) ([]*entity.Transaction, error) {
	var txModels []model.TransactionModel
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if sellerID != "" {
		query = query.Where("seller_id = ?", sellerID)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&txModels).Error; err != nil {
		return nil, err
	}

	transactions := make([]*entity.Transaction, len(txModels))
	for i := range txModels {
		transactions[i] = ToTransactionEntity(&txModels[i])
	}
	return transactions, nil
}

func sumReservedHolds(tx *gorm.DB, userID, sellerID string) (int, error) {
	var total int64
	err := tx.Model(&model.HoldModel{}).
		Where("user_id = ? AND seller_id = ? AND status = ?", userID, sellerID, string(entity.HoldReserved)).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// lockBalanceRow loads the balance row FOR UPDATE, creating it at zero if it
// does not exist yet so the lock has a row to land on. Serializes every
// concurrent reserve/commit for the same (user, seller) pair.
func lockBalanceRow(tx *gorm.DB, userID, sellerID string) (*model.BalanceModel, error) {
	var balance model.BalanceModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND seller_id = ?", userID, sellerID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// ON CONFLICT DO NOTHING: a concurrent first insert for the same pair
		// must not bubble up as a unique violation.
		balance = model.BalanceModel{UserID: userID, SellerID: sellerID, Points: 0}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&balance).Error; err != nil {
			return nil, err
		}
		// Re-read under the lock; a concurrent insert may have won the race.
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND seller_id = ?", userID, sellerID).
			First(&balance).Error
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}
