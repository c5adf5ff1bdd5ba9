package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionRedeemed  RedemptionStatus = "redeemed"
	RedemptionCancelled RedemptionStatus = "cancelled"
	RedemptionExpired   RedemptionStatus = "expired"
)

type Redemption struct {
	ID        string `gorm:"type:uuid;primary_key" json:"id"`
	UserID    string `gorm:"type:uuid;not null;index" json:"user_id"`
	SellerID  string `gorm:"type:uuid;not null;index" json:"seller_id"`
	Points    int    `gorm:"not null" json:"points"`
	OfferID   string `json:"offer_id,omitempty"`
	OfferName string `json:"offer_name,omitempty"`

	Status RedemptionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Opaque QR payload binding redemption, parties, points and a nonce
	QRData string `gorm:"type:jsonb" json:"qr_data"`

	SellerNotes   string `json:"seller_notes,omitempty"`
	CustomerNotes string `json:"customer_notes,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
}

func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
