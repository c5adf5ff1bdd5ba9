package entity

import (
	"errors"
	"time"
)

var (
	ErrSellerNotFound     = errors.New("seller not found")
	ErrNoOffersConfigured = errors.New("seller has no daily offers configured")
	ErrClaimNotFound      = errors.New("offer claim not found")
	ErrCodeNotFound       = errors.New("redemption code not found")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyRedeemed    = errors.New("offer already redeemed")
)

type ClaimStatus string

const (
	ClaimAssigned ClaimStatus = "ASSIGNED"
	ClaimClaimed  ClaimStatus = "CLAIMED"
	ClaimRedeemed ClaimStatus = "REDEEMED"
)

// DailyOffer is one entry of a seller's configured daily offer list, as
// stored in the seller's daily_offers JSON column.
type DailyOffer struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	MinSpend float64 `json:"min_spend"`
	Terms    string  `json:"terms"`
}

// Claim is the perk assigned to one (user, seller, date). The date is the
// UTC calendar day and, with user and seller, forms the claim's identity.
type Claim struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	SellerID   string      `json:"seller_id"`
	Date       string      `json:"date"`
	OfferID    string      `json:"offer_id"`
	Title      string      `json:"title"`
	MinSpend   float64     `json:"min_spend"`
	Terms      string      `json:"terms"`
	Status     ClaimStatus `json:"status"`
	RedeemCode *string     `json:"redeem_code,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// VerifiedCode is what a successful seller-side code verification returns.
type VerifiedCode struct {
	Code       string     `json:"code"`
	UserID     string     `json:"user_id"`
	SellerID   string     `json:"seller_id"`
	OfferID    string     `json:"offer_id"`
	Title      string     `json:"title"`
	Date       string     `json:"date"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
}
