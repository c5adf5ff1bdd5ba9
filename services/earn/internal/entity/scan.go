package entity

import (
	"errors"
	"time"
)

// Scan rejections, surfaced in the validation order the processor applies
// them. None of them mutates any state.
var (
	ErrInvalidToken         = errors.New("invalid earn token")
	ErrTooSoon              = errors.New("token scanned too soon")
	ErrSubscriptionInactive = errors.New("seller subscription inactive")
	ErrSubscriptionExpired  = errors.New("seller subscription expired")
	ErrMonthlyLimitReached  = errors.New("monthly scan limit reached")
	ErrTooFarFromStore      = errors.New("customer too far from store")
	ErrSellerNotFound       = errors.New("seller not found")
	ErrInvalidAmount        = errors.New("amount must not be negative")
)

const (
	RewardTypeDefault    = "default"
	RewardTypeFlat       = "flat"
	RewardTypePercentage = "percentage"
	RewardTypeSlab       = "slab"
)

// SlabRule is one tier of a slab reward configuration. Rules are ordered by
// Min ascending; amounts above the top tier's Max still earn the top tier.
type SlabRule struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Points int     `json:"points"`
}

// RewardConfig is the parsed, type-discriminated reward configuration a
// seller carries. Only the fields for the configured Type are meaningful.
type RewardConfig struct {
	Type            string     `json:"type"`
	Value           int        `json:"value"`
	PercentageValue float64    `json:"percentage_value"`
	Slabs           []SlabRule `json:"slabs"`
}

type EarnToken struct {
	Token      string     `json:"token"`
	UserID     string     `json:"user_id"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Location is the scanning customer's reported position; nil means the
// client sent none and the geofence check is skipped.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ScanResult is what a successful earn produces.
type ScanResult struct {
	UserID      string `json:"user_id"`
	SellerID    string `json:"seller_id"`
	BasePoints  int    `json:"base_points"`
	BonusPoints int    `json:"bonus_points"`
	TotalPoints int    `json:"total_points"`
	FirstScan   bool   `json:"first_scan"`
	NewBalance  int    `json:"new_balance"`
}

// EarnQRPayload is the persistent customer earn QR. Downstream systems treat
// it as opaque apart from the T discriminator.
type EarnQRPayload struct {
	V     int    `json:"v"`
	T     string `json:"t"`
	Token string `json:"token"`
}

const EarnQRType = "USER_EARN"
