package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"perkloop/pkg/logger"
	"perkloop/pkg/models"
	"perkloop/pkg/queue"
	"perkloop/services/earn/internal/entity"
	"perkloop/services/earn/internal/repo/persistent"
)

type ScanUseCase interface {
	ProcessScan(ctx context.Context, sellerID, token string, amount float64, loc *entity.Location) (*entity.ScanResult, error)
	EarnQR(userID string) (string, error)
}

// CooldownGuard claims the anti-replay window for a token. false means the
// token was scanned too recently; an error means the guard itself is down
// and the caller falls back to the token's last_used_at.
type CooldownGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// SellerConfigCache is the TTL cache in front of the sellers table.
type SellerConfigCache interface {
	Get(ctx context.Context, sellerID string) (*models.Seller, error)
	Set(ctx context.Context, seller *models.Seller) error
}

type NotificationPublisher interface {
	PublishNotificationTask(routingKey string, task map[string]interface{}) error
}

type scanUseCase struct {
	repo        persistent.ScanRepository
	cooldown    CooldownGuard
	sellerCache SellerConfigCache
	publisher   NotificationPublisher
	window      time.Duration
	logger      *logger.Logger
}

func NewScanUseCase(
	repo persistent.ScanRepository,
	cooldown CooldownGuard,
	sellerCache SellerConfigCache,
	publisher NotificationPublisher,
	window time.Duration,
	log *logger.Logger,
) ScanUseCase {
	return &scanUseCase{
		repo:        repo,
		cooldown:    cooldown,
		sellerCache: sellerCache,
		publisher:   publisher,
		window:      window,
		logger:      log,
	}
}

// ProcessScan runs the full earn pipeline for one seller-side scan of a
// customer's earn QR. Validation is strictly ordered: token resolution,
// anti-replay, subscription, geofence, then the monthly cap inside the earn
// transaction itself. A rejection at any step mutates nothing.
func (uc *scanUseCase) ProcessScan(ctx context.Context, sellerID, token string, amount float64, loc *entity.Location) (*entity.ScanResult, error) {
	if amount < 0 {
		return nil, entity.ErrInvalidAmount
	}

	earnToken, err := uc.repo.ResolveToken(token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := uc.checkReplay(ctx, earnToken, now); err != nil {
		return nil, err
	}

	seller, err := uc.getSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	if err := checkSubscription(seller, now); err != nil {
		return nil, err
	}
	if err := checkGeofence(seller, loc); err != nil {
		return nil, err
	}

	cfg := ParseRewardConfig(string(seller.RewardType), seller.RewardParams)
	basePoints := CalculateRewardPoints(amount, cfg)

	firstScan := false
	bonusPoints := 0
	hasEarned, err := uc.repo.HasEarned(earnToken.UserID, sellerID)
	if err != nil {
		return nil, err
	}
	if !hasEarned {
		firstScan = true
		if seller.FirstScanBonus > 0 {
			bonusPoints = seller.FirstScanBonus
		}
	}

	record := &persistent.EarnRecord{
		UserID:      earnToken.UserID,
		SellerID:    sellerID,
		BasePoints:  basePoints,
		BonusPoints: bonusPoints,
		FirstScan:   firstScan,
		Month:       now.UTC().Format("2006-01"),
		ScanLimit:   seller.MonthlyScanLimit,
	}
	newBalance, err := uc.repo.RecordEarn(record)
	if err != nil {
		return nil, err
	}

	if err := uc.repo.TouchToken(token, now); err != nil {
		uc.logger.Warn("Failed to update token last_used_at: %v", err)
	}

	result := &entity.ScanResult{
		UserID:      earnToken.UserID,
		SellerID:    sellerID,
		BasePoints:  basePoints,
		BonusPoints: bonusPoints,
		TotalPoints: basePoints + bonusPoints,
		FirstScan:   firstScan,
		NewBalance:  newBalance,
	}

	uc.notify(queue.RoutingKeyPointsEarned, map[string]interface{}{
		"user_id":      result.UserID,
		"seller_id":    sellerID,
		"seller_name":  seller.Name,
		"points":       result.TotalPoints,
		"first_scan":   firstScan,
		"new_balance":  newBalance,
		"notification": "points_earned",
	})

	uc.logger.Info("Scan processed: user %s earned %d points at seller %s (first_scan=%v)",
		result.UserID, result.TotalPoints, sellerID, firstScan)
	return result, nil
}

// EarnQR returns the user's persistent earn QR payload, minting a token on
// first use.
func (uc *scanUseCase) EarnQR(userID string) (string, error) {
	earnToken, err := uc.repo.TokenForUser(userID)
	if err != nil {
		return "", err
	}
	if earnToken == nil {
		token, err := newEarnToken()
		if err != nil {
			return "", err
		}
		earnToken, err = uc.repo.CreateToken(token, userID)
		if err != nil {
			return "", err
		}
	}

	payload := entity.EarnQRPayload{V: 1, T: entity.EarnQRType, Token: earnToken.Token}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// checkReplay enforces the cooldown window. Redis is authoritative; when it
// is unavailable the token's last_used_at carries the check instead.
func (uc *scanUseCase) checkReplay(ctx context.Context, earnToken *entity.EarnToken, now time.Time) error {
	if uc.cooldown != nil {
		acquired, err := uc.cooldown.Acquire(ctx, earnToken.Token)
		if err == nil {
			if !acquired {
				return entity.ErrTooSoon
			}
			return nil
		}
		uc.logger.Warn("Cooldown guard unavailable, falling back to last_used_at: %v", err)
	}

	if earnToken.LastUsedAt != nil && now.Sub(*earnToken.LastUsedAt) < uc.window {
		return entity.ErrTooSoon
	}
	return nil
}

func (uc *scanUseCase) getSeller(ctx context.Context, sellerID string) (*models.Seller, error) {
	if uc.sellerCache != nil {
		if seller, err := uc.sellerCache.Get(ctx, sellerID); err == nil && seller != nil {
			return seller, nil
		}
	}

	seller, err := uc.repo.GetSeller(sellerID)
	if err != nil {
		return nil, err
	}

	if uc.sellerCache != nil {
		if err := uc.sellerCache.Set(ctx, seller); err != nil {
			uc.logger.Warn("Failed to cache seller %s: %v", sellerID, err)
		}
	}
	return seller, nil
}

// checkSubscription gates on configuration fields only. The monthly scan
// counter lives out of the cached copy on purpose: the cap is enforced
// against the live counter inside RecordEarn's transaction, where a cached
// snapshot can never understate it.
func checkSubscription(seller *models.Seller, now time.Time) error {
	if seller.SubscriptionStatus != models.SubscriptionActive {
		return entity.ErrSubscriptionInactive
	}
	if seller.SubscriptionExpiresAt != nil && seller.SubscriptionExpiresAt.Before(now) {
		return entity.ErrSubscriptionExpired
	}
	return nil
}

// checkGeofence rejects scans reported from outside the seller's radius.
// Sellers with no radius configured, and clients that send no location,
// skip the check.
func checkGeofence(seller *models.Seller, loc *entity.Location) error {
	if seller.RadiusMeters <= 0 || loc == nil {
		return nil
	}
	distance := haversineMeters(seller.Latitude, seller.Longitude, loc.Latitude, loc.Longitude)
	if distance > seller.RadiusMeters {
		return entity.ErrTooFarFromStore
	}
	return nil
}

const earthRadiusMeters = 6371000

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func newEarnToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate earn token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (uc *scanUseCase) notify(routingKey string, task map[string]interface{}) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.PublishNotificationTask(routingKey, task); err != nil {
		uc.logger.Error("Failed to publish %s notification: %v", routingKey, err)
	}
}
