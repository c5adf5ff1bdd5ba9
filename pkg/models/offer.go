package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OfferClaimStatus string

const (
	OfferClaimAssigned OfferClaimStatus = "ASSIGNED"
	OfferClaimClaimed  OfferClaimStatus = "CLAIMED"
	OfferClaimRedeemed OfferClaimStatus = "REDEEMED"
)

type OfferCodeStatus string

const (
	OfferCodePending  OfferCodeStatus = "PENDING"
	OfferCodeRedeemed OfferCodeStatus = "REDEEMED"
)

// OfferClaim is the daily perk assignment, one per (user, seller, date).
// The composite unique index is the identity key, so re-assigning the same
// day is a natural no-op.
type OfferClaim struct {
	ID         string           `gorm:"type:uuid;primary_key" json:"id"`
	UserID     string           `gorm:"type:uuid;not null;uniqueIndex:idx_claim_user_seller_date" json:"user_id"`
	SellerID   string           `gorm:"type:uuid;not null;uniqueIndex:idx_claim_user_seller_date" json:"seller_id"`
	Date       string           `gorm:"type:varchar(10);not null;uniqueIndex:idx_claim_user_seller_date" json:"date"` // YYYY-MM-DD (UTC)
	OfferID    string           `gorm:"not null" json:"offer_id"`
	Title      string           `json:"title"`
	MinSpend   float64          `json:"min_spend"`
	Terms      string           `json:"terms"`
	Status     OfferClaimStatus `gorm:"type:varchar(20);not null;default:'ASSIGNED'" json:"status"`
	RedeemCode *string          `json:"redeem_code,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (c *OfferClaim) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// OfferRedemptionCode is the single-use code generated for a claimed offer,
// keyed by the code itself.
type OfferRedemptionCode struct {
	Code       string          `gorm:"primary_key" json:"code"`
	UserID     string          `gorm:"type:uuid;not null;index" json:"user_id"`
	SellerID   string          `gorm:"type:uuid;not null;index" json:"seller_id"`
	OfferID    string          `gorm:"not null" json:"offer_id"`
	Date       string          `gorm:"type:varchar(10);not null" json:"date"`
	Status     OfferCodeStatus `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	RedeemedAt *time.Time      `json:"redeemed_at,omitempty"`
}
