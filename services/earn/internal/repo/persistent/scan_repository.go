package persistent

import (
	"errors"
	"time"

	"perkloop/pkg/models"
	"perkloop/services/earn/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScanRepository interface {
	ResolveToken(token string) (*entity.EarnToken, error)
	CreateToken(token, userID string) (*entity.EarnToken, error)
	TokenForUser(userID string) (*entity.EarnToken, error)
	TouchToken(token string, at time.Time) error
	GetSeller(sellerID string) (*models.Seller, error)
	HasEarned(userID, sellerID string) (bool, error)
	RecordEarn(earn *EarnRecord) (int, error)
}

// EarnRecord is the unit RecordEarn persists in one transaction: the balance
// increment, the history row and the seller counters.
type EarnRecord struct {
	UserID      string
	SellerID    string
	BasePoints  int
	BonusPoints int
	FirstScan   bool
	Month       string // YYYY-MM the scan counts against
	ScanLimit   int    // seller's monthly cap, 0 = unlimited
}

func (e *EarnRecord) total() int {
	return e.BasePoints + e.BonusPoints
}

type scanRepository struct {
	db *gorm.DB
}

func NewScanRepository(db *gorm.DB) ScanRepository {
	return &scanRepository{db: db}
}

func (r *scanRepository) ResolveToken(token string) (*entity.EarnToken, error) {
	var tokenModel models.EarnToken
	if err := r.db.Where("token = ?", token).First(&tokenModel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrInvalidToken
		}
		return nil, err
	}
	return toTokenEntity(&tokenModel), nil
}

func (r *scanRepository) CreateToken(token, userID string) (*entity.EarnToken, error) {
	tokenModel := models.EarnToken{Token: token, UserID: userID}
	if err := r.db.Create(&tokenModel).Error; err != nil {
		return nil, err
	}
	return toTokenEntity(&tokenModel), nil
}

func (r *scanRepository) TokenForUser(userID string) (*entity.EarnToken, error) {
	var tokenModel models.EarnToken
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").First(&tokenModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toTokenEntity(&tokenModel), nil
}

func (r *scanRepository) TouchToken(token string, at time.Time) error {
	return r.db.Model(&models.EarnToken{}).
		Where("token = ?", token).
		Update("last_used_at", at).Error
}

func (r *scanRepository) GetSeller(sellerID string) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.Where("id = ?", sellerID).First(&seller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrSellerNotFound
		}
		return nil, err
	}
	return &seller, nil
}

// HasEarned reports whether the user already has an earn transaction with
// this seller; used to detect the first-ever scan.
func (r *scanRepository) HasEarned(userID, sellerID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.PointTransaction{}).
		Where("user_id = ? AND seller_id = ? AND type = ?",
			userID, sellerID, string(models.PointTransactionEarn)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordEarn commits the whole earn as one transaction. The balance mutation
// is an upsert with an atomic SQL increment, never a read-then-write, so
// concurrent scans for the same (user, seller) pair cannot lose updates.
// Returns the balance after the increment.
func (r *scanRepository) RecordEarn(earn *EarnRecord) (int, error) {
	var newBalance int

	err := r.db.Transaction(func(tx *gorm.DB) error {
		balance := models.PointBalance{
			UserID:   earn.UserID,
			SellerID: earn.SellerID,
			Points:   earn.total(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "seller_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"points":     gorm.Expr("point_balances.points + ?", earn.total()),
				"updated_at": time.Now(),
			}),
		}).Create(&balance).Error; err != nil {
			return err
		}

		var current models.PointBalance
		if err := tx.Where("user_id = ? AND seller_id = ?", earn.UserID, earn.SellerID).
			First(&current).Error; err != nil {
			return err
		}
		newBalance = current.Points

		transaction := models.PointTransaction{
			UserID:      earn.UserID,
			SellerID:    earn.SellerID,
			Type:        models.PointTransactionEarn,
			Points:      earn.total(),
			BasePoints:  earn.BasePoints,
			BonusPoints: earn.BonusPoints,
			FirstScan:   earn.FirstScan,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}

		return r.bumpSellerCounters(tx, earn)
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// bumpSellerCounters enforces the monthly cap and updates the seller
// aggregates inside the earn transaction. The counter is read under a row
// lock, so the cap holds no matter how concurrent the scans are or how stale
// any cached seller copy is. The counter resets when the stored month differs
// from the scan's month.
func (r *scanRepository) bumpSellerCounters(tx *gorm.DB, earn *EarnRecord) error {
	var seller models.Seller
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", earn.SellerID).
		First(&seller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.ErrSellerNotFound
	}
	if err != nil {
		return err
	}

	monthlyCount := int64(0)
	if seller.ScanMonth == earn.Month {
		monthlyCount = seller.MonthlyScanCount
	}
	if earn.ScanLimit > 0 && monthlyCount >= int64(earn.ScanLimit) {
		return entity.ErrMonthlyLimitReached
	}

	updates := map[string]interface{}{
		"total_scans":         gorm.Expr("total_scans + 1"),
		"total_points_issued": gorm.Expr("total_points_issued + ?", earn.total()),
		"monthly_scan_count":  monthlyCount + 1,
		"scan_month":          earn.Month,
	}
	if earn.FirstScan {
		updates["active_customers"] = gorm.Expr("active_customers + 1")
	}
	return tx.Model(&models.Seller{}).
		Where("id = ?", earn.SellerID).
		Updates(updates).Error
}

func toTokenEntity(m *models.EarnToken) *entity.EarnToken {
	if m == nil {
		return nil
	}
	return &entity.EarnToken{
		Token:      m.Token,
		UserID:     m.UserID,
		LastUsedAt: m.LastUsedAt,
	}
}
