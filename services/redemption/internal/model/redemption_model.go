package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RedemptionModel struct {
	ID            string     `gorm:"type:uuid;primary_key"`
	UserID        string     `gorm:"type:uuid;not null;index"`
	SellerID      string     `gorm:"type:uuid;not null;index"`
	Points        int        `gorm:"not null"`
	OfferID       string
	OfferName     string
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index"`
	QRData        string     `gorm:"type:jsonb"`
	SellerNotes   string
	CustomerNotes string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time  `gorm:"not null;index"`
	RedeemedAt    *time.Time
}

func (RedemptionModel) TableName() string {
	return "redemptions"
}

func (r *RedemptionModel) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

type HoldModel struct {
	ID           string     `gorm:"type:uuid;primary_key"`
	UserID       string     `gorm:"type:uuid;not null;index:idx_hold_user_seller"`
	SellerID     string     `gorm:"type:uuid;not null;index:idx_hold_user_seller"`
	RedemptionID string     `gorm:"type:uuid;not null;uniqueIndex"`
	Points       int        `gorm:"not null"`
	Status       string     `gorm:"type:varchar(20);not null;default:'reserved';index"`
	CreatedAt    time.Time
	ReleasedAt   *time.Time
}

func (HoldModel) TableName() string {
	return "point_holds"
}

func (h *HoldModel) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}

type BalanceModel struct {
	ID        string    `gorm:"type:uuid;primary_key"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_balance_user_seller"`
	SellerID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_balance_user_seller"`
	Points    int       `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BalanceModel) TableName() string {
	return "point_balances"
}

func (b *BalanceModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

type TransactionModel struct {
	ID           string    `gorm:"type:uuid;primary_key"`
	UserID       string    `gorm:"type:uuid;not null;index"`
	SellerID     string    `gorm:"type:uuid;not null;index"`
	Type         string    `gorm:"type:varchar(20);not null"`
	Points       int       `gorm:"not null"`
	BasePoints   int
	BonusPoints  int
	FirstScan    bool      `gorm:"default:false"`
	RedemptionID *string   `gorm:"type:uuid"`
	CreatedAt    time.Time
}

func (TransactionModel) TableName() string {
	return "point_transactions"
}

func (t *TransactionModel) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// SellerModel covers the seller columns this service reads and the aggregate
// counters the commit path bumps.
type SellerModel struct {
	ID                  string `gorm:"type:uuid;primary_key"`
	Name                string
	TotalRedemptions    int64
	TotalPointsRedeemed int64
}

func (SellerModel) TableName() string {
	return "sellers"
}
