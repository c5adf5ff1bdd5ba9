package persistent

import (
	"errors"
	"time"

	"perkloop/pkg/models"
	"perkloop/services/offers/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OfferRepository interface {
	GetSeller(sellerID string) (*models.Seller, error)
	GetClaim(userID, sellerID, date string) (*entity.Claim, error)
	CreateClaim(claim *entity.Claim) (*entity.Claim, error)
	AttachCode(claimID, code string) (*entity.Claim, error)
	RedeemCode(code, sellerID string, at time.Time) (*entity.VerifiedCode, error)
	ListClaims(userID string, limit, offset int) ([]*entity.Claim, error)
}

type offerRepository struct {
	db *gorm.DB
}

func NewOfferRepository(db *gorm.DB) OfferRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) GetSeller(sellerID string) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.Where("id = ?", sellerID).First(&seller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrSellerNotFound
		}
		return nil, err
	}
	return &seller, nil
}

func (r *offerRepository) GetClaim(userID, sellerID, date string) (*entity.Claim, error) {
	var claim models.OfferClaim
	err := r.db.Where("user_id = ? AND seller_id = ? AND date = ?", userID, sellerID, date).
		First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrClaimNotFound
		}
		return nil, err
	}
	return toClaimEntity(&claim), nil
}

// CreateClaim inserts the day's claim. A concurrent assign for the same
// (user, seller, date) loses against the unique index; the winner's row is
// returned in that case, keeping assignment idempotent under races.
func (r *offerRepository) CreateClaim(claim *entity.Claim) (*entity.Claim, error) {
	claimModel := toClaimModel(claim)
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "seller_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(claimModel).Error
	if err != nil {
		return nil, err
	}
	return r.GetClaim(claim.UserID, claim.SellerID, claim.Date)
}

// AttachCode creates the redemption code row and moves the claim to CLAIMED
// in one transaction. A claim that already carries a code keeps it: a second
// generate attempt (including a concurrent one that lost the row lock) gets
// the existing code back instead of minting a competing one.
func (r *offerRepository) AttachCode(claimID, code string) (*entity.Claim, error) {
	var updated models.OfferClaim

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var claim models.OfferClaim
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", claimID).First(&claim).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrClaimNotFound
			}
			return err
		}
		if claim.Status == models.OfferClaimRedeemed {
			return entity.ErrAlreadyRedeemed
		}
		if claim.RedeemCode != nil && *claim.RedeemCode != "" {
			updated = claim
			return nil
		}

		codeModel := models.OfferRedemptionCode{
			Code:     code,
			UserID:   claim.UserID,
			SellerID: claim.SellerID,
			OfferID:  claim.OfferID,
			Date:     claim.Date,
			Status:   models.OfferCodePending,
		}
		if err := tx.Create(&codeModel).Error; err != nil {
			return err
		}

		if err := tx.Model(&claim).Updates(map[string]interface{}{
			"status":      string(models.OfferClaimClaimed),
			"redeem_code": code,
		}).Error; err != nil {
			return err
		}

		claim.Status = models.OfferClaimClaimed
		claim.RedeemCode = &code
		updated = claim
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toClaimEntity(&updated), nil
}

// RedeemCode marks the code and its parent claim REDEEMED in one
// transaction. The row lock on the code serializes concurrent verifications
// so only the first can observe PENDING.
func (r *offerRepository) RedeemCode(code, sellerID string, at time.Time) (*entity.VerifiedCode, error) {
	var verified *entity.VerifiedCode

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var codeModel models.OfferRedemptionCode
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).First(&codeModel).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrCodeNotFound
			}
			return err
		}
		if codeModel.SellerID != sellerID {
			return entity.ErrForbidden
		}
		if codeModel.Status == models.OfferCodeRedeemed {
			return entity.ErrAlreadyRedeemed
		}

		if err := tx.Model(&codeModel).Updates(map[string]interface{}{
			"status":      string(models.OfferCodeRedeemed),
			"redeemed_at": at,
		}).Error; err != nil {
			return err
		}

		var claim models.OfferClaim
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND seller_id = ? AND date = ?",
				codeModel.UserID, codeModel.SellerID, codeModel.Date).First(&claim).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrClaimNotFound
			}
			return err
		}
		// The claim is the single-use guard. Even if another code for the
		// same day somehow exists, only one can ever redeem the perk.
		if claim.Status == models.OfferClaimRedeemed {
			return entity.ErrAlreadyRedeemed
		}
		if err := tx.Model(&claim).Update("status", string(models.OfferClaimRedeemed)).Error; err != nil {
			return err
		}

		verified = &entity.VerifiedCode{
			Code:       codeModel.Code,
			UserID:     codeModel.UserID,
			SellerID:   codeModel.SellerID,
			OfferID:    codeModel.OfferID,
			Title:      claim.Title,
			Date:       codeModel.Date,
			RedeemedAt: &at,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

func (r *offerRepository) ListClaims(userID string, limit, offset int) ([]*entity.Claim, error) {
	var claimModels []models.OfferClaim
	query := r.db.Where("user_id = ?", userID).Order("date DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&claimModels).Error; err != nil {
		return nil, err
	}

	claims := make([]*entity.Claim, len(claimModels))
	for i := range claimModels {
		claims[i] = toClaimEntity(&claimModels[i])
	}
	return claims, nil
}

func toClaimEntity(m *models.OfferClaim) *entity.Claim {
	if m == nil {
		return nil
	}
	return &entity.Claim{
		ID:         m.ID,
		UserID:     m.UserID,
		SellerID:   m.SellerID,
		Date:       m.Date,
		OfferID:    m.OfferID,
		Title:      m.Title,
		MinSpend:   m.MinSpend,
		Terms:      m.Terms,
		Status:     entity.ClaimStatus(m.Status),
		RedeemCode: m.RedeemCode,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toClaimModel(e *entity.Claim) *models.OfferClaim {
	if e == nil {
		return nil
	}
	return &models.OfferClaim{
		ID:         e.ID,
		UserID:     e.UserID,
		SellerID:   e.SellerID,
		Date:       e.Date,
		OfferID:    e.OfferID,
		Title:      e.Title,
		MinSpend:   e.MinSpend,
		Terms:      e.Terms,
		Status:     models.OfferClaimStatus(e.Status),
		RedeemCode: e.RedeemCode,
	}
}
