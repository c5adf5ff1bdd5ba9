package usecase

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"perkloop/pkg/logger"
	"perkloop/pkg/models"
	"perkloop/pkg/queue"
	"perkloop/services/offers/internal/entity"
	"perkloop/services/offers/internal/repo/persistent"
)

type OfferUseCase interface {
	AssignDaily(ctx context.Context, userID, sellerID string) (*entity.Claim, error)
	GenerateCode(ctx context.Context, userID, sellerID string) (*entity.Claim, error)
	VerifyCode(sellerID, code string) (*entity.VerifiedCode, error)
	ListClaims(userID string, limit, offset int) ([]*entity.Claim, error)
}

// SellerConfigCache is the TTL cache in front of the sellers table.
type SellerConfigCache interface {
	Get(ctx context.Context, sellerID string) (*models.Seller, error)
	Set(ctx context.Context, seller *models.Seller) error
}

type NotificationPublisher interface {
	PublishNotificationTask(routingKey string, task map[string]interface{}) error
}

type offerUseCase struct {
	repo        persistent.OfferRepository
	sellerCache SellerConfigCache
	publisher   NotificationPublisher
	logger      *logger.Logger
}

func NewOfferUseCase(
	repo persistent.OfferRepository,
	sellerCache SellerConfigCache,
	publisher NotificationPublisher,
	log *logger.Logger,
) OfferUseCase {
	return &offerUseCase{
		repo:        repo,
		sellerCache: sellerCache,
		publisher:   publisher,
		logger:      log,
	}
}

// AssignDaily returns the user's perk for today at this seller, assigning
// one at random from the seller's daily offer list on first call. Repeat
// calls on the same UTC day return the existing claim unchanged.
func (uc *offerUseCase) AssignDaily(ctx context.Context, userID, sellerID string) (*entity.Claim, error) {
	date := todayUTC()

	claim, err := uc.repo.GetClaim(userID, sellerID, date)
	if err == nil {
		return claim, nil
	}
	if err != entity.ErrClaimNotFound {
		return nil, err
	}

	seller, err := uc.getSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	offers, err := parseDailyOffers(seller.DailyOffers)
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, entity.ErrNoOffersConfigured
	}

	picked, err := pickOffer(offers)
	if err != nil {
		return nil, err
	}

	claim, err = uc.repo.CreateClaim(&entity.Claim{
		UserID:   userID,
		SellerID: sellerID,
		Date:     date,
		OfferID:  picked.ID,
		Title:    picked.Title,
		MinSpend: picked.MinSpend,
		Terms:    picked.Terms,
		Status:   entity.ClaimAssigned,
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Assigned offer %s to user %s at seller %s for %s",
		claim.OfferID, userID, sellerID, date)
	return claim, nil
}

// GenerateCode attaches a single-use redemption code to today's claim,
// assigning the claim first when needed. Calling it again returns the same
// code; a claim that was already redeemed cannot get a new one.
func (uc *offerUseCase) GenerateCode(ctx context.Context, userID, sellerID string) (*entity.Claim, error) {
	claim, err := uc.AssignDaily(ctx, userID, sellerID)
	if err != nil {
		return nil, err
	}

	if claim.Status == entity.ClaimRedeemed {
		return nil, entity.ErrAlreadyRedeemed
	}
	if claim.RedeemCode != nil {
		return claim, nil
	}

	code, err := newRedemptionCode()
	if err != nil {
		return nil, err
	}
	return uc.repo.AttachCode(claim.ID, code)
}

// VerifyCode is the seller-side redemption of an offer code.
func (uc *offerUseCase) VerifyCode(sellerID, code string) (*entity.VerifiedCode, error) {
	verified, err := uc.repo.RedeemCode(code, sellerID, time.Now())
	if err != nil {
		return nil, err
	}

	uc.notify(queue.RoutingKeyOfferRedeemed, map[string]interface{}{
		"user_id":      verified.UserID,
		"seller_id":    verified.SellerID,
		"offer_id":     verified.OfferID,
		"offer_title":  verified.Title,
		"notification": "offer_redeemed",
	})

	uc.logger.Info("Offer code %s redeemed at seller %s for user %s",
		code, sellerID, verified.UserID)
	return verified, nil
}

func (uc *offerUseCase) ListClaims(userID string, limit, offset int) ([]*entity.Claim, error) {
	return uc.repo.ListClaims(userID, limit, offset)
}

func (uc *offerUseCase) getSeller(ctx context.Context, sellerID string) (*models.Seller, error) {
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

func (uc *offerUseCase) notify(routingKey string, task map[string]interface{}) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.PublishNotificationTask(routingKey, task); err != nil {
		uc.logger.Error("Failed to publish %s notification: %v", routingKey, err)
	}
}

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

func parseDailyOffers(raw string) ([]entity.DailyOffer, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var offers []entity.DailyOffer
	if err := json.Unmarshal([]byte(raw), &offers); err != nil {
		return nil, fmt.Errorf("parse daily offers: %w", err)
	}
	return offers, nil
}

func pickOffer(offers []entity.DailyOffer) (entity.DailyOffer, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(offers))))
	if err != nil {
		return entity.DailyOffer{}, err
	}
	return offers[n.Int64()], nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newRedemptionCode returns an 8 character code from an alphabet without
// easily confused characters.
func newRedemptionCode() (string, error) {
	code := make([]byte, 8)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
