package models

import "time"

// EarnToken is a customer's persistent earn-QR token. The token resolves a
// scan to a user identity; LastUsedAt anchors the anti-replay cooldown when
// redis is unavailable.
type EarnToken struct {
	Token      string     `gorm:"primary_key" json:"token"`
	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
