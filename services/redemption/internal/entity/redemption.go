package entity

import (
	"errors"
	"time"
)

// Stable error kinds surfaced by the redemption core. Handlers map these to
// HTTP statuses with errors.Is; none of them is retried internally.
var (
	ErrSellerNotFound     = errors.New("seller not found")
	ErrRedemptionNotFound = errors.New("redemption not found")
	ErrHoldNotFound       = errors.New("hold not found")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyProcessed   = errors.New("redemption already processed")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidPoints      = errors.New("points must be positive")
	ErrExpired            = errors.New("redemption expired")
	ErrConflict           = errors.New("conflicting concurrent update")
)

type RedemptionStatus string

const (
	StatusPending   RedemptionStatus = "pending"
	StatusRedeemed  RedemptionStatus = "redeemed"
	StatusCancelled RedemptionStatus = "cancelled"
	StatusExpired   RedemptionStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s RedemptionStatus) Terminal() bool {
	return s == StatusRedeemed || s == StatusCancelled || s == StatusExpired
}

type Redemption struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	SellerID      string           `json:"seller_id"`
	Points        int              `json:"points"`
	OfferID       string           `json:"offer_id,omitempty"`
	OfferName     string           `json:"offer_name,omitempty"`
	Status        RedemptionStatus `json:"status"`
	QRData        string           `json:"qr_data"`
	SellerNotes   string           `json:"seller_notes,omitempty"`
	CustomerNotes string           `json:"customer_notes,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	RedeemedAt    *time.Time       `json:"redeemed_at,omitempty"`
}

type HoldStatus string

const (
	HoldReserved HoldStatus = "reserved"
	HoldReleased HoldStatus = "released"
)

type Hold struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	SellerID     string     `json:"seller_id"`
	RedemptionID string     `json:"redemption_id"`
	Points       int        `json:"points"`
	Status       HoldStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
}

// Balance is the customer-facing view of a ledger row: the raw ledger points
// and the portion still spendable once reserved holds are subtracted.
type Balance struct {
	UserID    string `json:"user_id"`
	SellerID  string `json:"seller_id"`
	Points    int    `json:"points"`
	Available int    `json:"available"`
}

// QRPayload is embedded in the redemption QR code. The hash binds all fields
// plus a random nonce so one redemption's QR cannot be replayed for another.
type QRPayload struct {
	Type         string `json:"type"`
	RedemptionID string `json:"redemption_id"`
	SellerID     string `json:"seller_id"`
	UserID       string `json:"user_id"`
	Points       int    `json:"points"`
	Timestamp    int64  `json:"timestamp"`
	Hash         string `json:"hash"`
}

type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SellerID     string    `json:"seller_id"`
	Type         string    `json:"type"`
	Points       int       `json:"points"`
	BasePoints   int       `json:"base_points"`
	BonusPoints  int       `json:"bonus_points"`
	FirstScan    bool      `json:"first_scan"`
	RedemptionID string    `json:"redemption_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
