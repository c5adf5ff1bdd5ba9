package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

type RewardType string

const (
	RewardTypeDefault    RewardType = "default"
	RewardTypeFlat       RewardType = "flat"
	RewardTypePercentage RewardType = "percentage"
	RewardTypeSlab       RewardType = "slab"
)

// Seller carries the configuration the loyalty core consumes read-only:
// subscription gating for scans, the reward configuration that drives the
// calculator, geofence settings and the daily offer list. Aggregate counters
// are maintained by the earn and redemption services.
type Seller struct {
	ID   string `gorm:"type:uuid;primary_key" json:"id"`
	Name string `gorm:"not null" json:"name"`

	// Subscription
	SubscriptionStatus    SubscriptionStatus `gorm:"type:varchar(20);default:'active'" json:"subscription_status"`
	SubscriptionExpiresAt *time.Time         `json:"subscription_expires_at,omitempty"`
	MonthlyScanLimit      int                `gorm:"default:1000" json:"monthly_scan_limit"`

	// Reward configuration (RewardParams is the JSON-encoded parameter set
	// for the configured type: value, percentage_value, slab rules, ...)
	RewardType   RewardType `gorm:"type:varchar(20);default:'default'" json:"reward_type"`
	RewardParams string     `gorm:"type:jsonb;default:'{}'" json:"reward_params"`

	// First-ever scan bonus for a new customer, 0 disables it
	FirstScanBonus int `gorm:"default:0" json:"first_scan_bonus"`

	// Geofence; RadiusMeters <= 0 disables the proximity check
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `gorm:"default:0" json:"radius_meters"`

	// Daily offers the perk flow assigns from (JSON array)
	DailyOffers string `gorm:"type:jsonb;default:'[]'" json:"daily_offers"`

	// Aggregates
	TotalScans          int64 `gorm:"default:0" json:"total_scans"`
	TotalPointsIssued   int64 `gorm:"default:0" json:"total_points_issued"`
	TotalRedemptions    int64 `gorm:"default:0" json:"total_redemptions"`
	TotalPointsRedeemed int64 `gorm:"default:0" json:"total_points_redeemed"`
	ActiveCustomers     int64 `gorm:"default:0" json:"active_customers"`
	MonthlyScanCount    int64 `gorm:"default:0" json:"monthly_scan_count"`
	ScanMonth           string `gorm:"type:varchar(7)" json:"scan_month"` // YYYY-MM the monthly counter belongs to

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Seller) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
