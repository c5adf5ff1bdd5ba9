package usecase

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"perkloop/pkg/logger"
	"perkloop/pkg/queue"
	"perkloop/services/redemption/internal/entity"
	"perkloop/services/redemption/internal/repo/persistent"

	"github.com/google/uuid"
)

type RedemptionUseCase interface {
	Create(userID, sellerID string, points int, offerID, offerName string) (*entity.Redemption, error)
	Commit(sellerID, redemptionID, sellerNotes string) (*entity.Redemption, error)
	Cancel(userID, redemptionID string) (*entity.Redemption, error)
	Expire(redemptionID string) (*entity.Redemption, error)
	ExpireStale(limit int) (int, error)
	Get(actorID, redemptionID string) (*entity.Redemption, error)
	GetHold(actorID, redemptionID string) (*entity.Hold, error)
	ListForUser(userID string, limit, offset int) ([]*entity.Redemption, error)
	ListForSeller(sellerID string, status entity.RedemptionStatus, limit, offset int) ([]*entity.Redemption, error)
	Balance(userID, sellerID string) (*entity.Balance, error)
	Transactions(userID, sellerID string, limit, offset int) ([]*entity.Transaction, error)
	UpdateCustomerNotes(userID, redemptionID, notes string) (*entity.Redemption, error)
}

// NotificationPublisher is the best-effort notification boundary; a publish
// failure is logged and never fails or rolls back the mutation it follows.
type NotificationPublisher interface {
	PublishNotificationTask(routingKey string, task map[string]interface{}) error
}

type redemptionUseCase struct {
	redemptionRepo persistent.RedemptionRepository
	ledgerRepo     persistent.LedgerRepository
	publisher      NotificationPublisher
	ttl            time.Duration
	logger         *logger.Logger
}

func NewRedemptionUseCase(
	redemptionRepo persistent.RedemptionRepository,
	ledgerRepo persistent.LedgerRepository,
	publisher NotificationPublisher,
	ttl time.Duration,
	log *logger.Logger,
) RedemptionUseCase {
	return &redemptionUseCase{
		redemptionRepo: redemptionRepo,
		ledgerRepo:     ledgerRepo,
		publisher:      publisher,
		ttl:            ttl,
		logger:         log,
	}
}

func (uc *redemptionUseCase) Create(userID, sellerID string, points int, offerID, offerName string) (*entity.Redemption, error) {
	if points <= 0 {
		return nil, entity.ErrInvalidPoints
	}

	exists, err := uc.redemptionRepo.SellerExists(sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up seller: %w", err)
	}
	if !exists {
		return nil, entity.ErrSellerNotFound
	}

	now := time.Now()
	redemption := &entity.Redemption{
		ID:        uuid.New().String(),
		UserID:    userID,
		SellerID:  sellerID,
		Points:    points,
		OfferID:   offerID,
		OfferName: offerName,
		Status:    entity.StatusPending,
		ExpiresAt: now.Add(uc.ttl),
	}

	qrData, err := buildQRData(redemption, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr payload: %w", err)
	}
	redemption.QRData = qrData

	created, err := uc.redemptionRepo.CreateWithHold(redemption)
	if err != nil {
		if errors.Is(err, entity.ErrInsufficientPoints) || errors.Is(err, entity.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create redemption: %w", err)
	}

	return created, nil
}

// Commit is the seller-side "process redemption". Expiry is discovered lazily
// here: a commit attempt on an expired redemption first transitions it to
// expired (releasing the hold) and then fails with ErrExpired.
func (uc *redemptionUseCase) Commit(sellerID, redemptionID, sellerNotes string) (*entity.Redemption, error) {
	redemption, err := uc.redemptionRepo.GetByID(redemptionID)
	if err != nil {
		return nil, err
	}

	if redemption.SellerID != sellerID {
		return nil, entity.ErrForbidden
	}

	if redemption.Status != entity.StatusPending {
		return nil, entity.ErrAlreadyProcessed
	}

	if time.Now().After(redemption.ExpiresAt) {
		if _, err := uc.redemptionRepo.MarkTerminal(redemptionID, entity.StatusExpired); err != nil && !errors.Is(err, entity.ErrAlreadyProcessed) {
			uc.logger.Error("Failed to expire redemption %s: %v", redemptionID, err)
		}
		return nil, entity.ErrExpired
	}

	committed, err := uc.redemptionRepo.CommitPending(redemptionID)
	if errors.Is(err, entity.ErrExpired) {
		// The TTL lapsed between the snapshot read and the row lock.
		if _, expireErr := uc.redemptionRepo.MarkTerminal(redemptionID, entity.StatusExpired); expireErr != nil && !errors.Is(expireErr, entity.ErrAlreadyProcessed) {
			uc.logger.Error("Failed to expire redemption %s: %v", redemptionID, expireErr)
		}
		return nil, entity.ErrExpired
	}
	if errors.Is(err, entity.ErrInsufficientPoints) {
		// The balance no longer covers the redemption despite the hold;
		// cancel so the hold stops blocking the remaining balance.
		if _, cancelErr := uc.redemptionRepo.MarkTerminal(redemptionID, entity.StatusCancelled); cancelErr != nil && !errors.Is(cancelErr, entity.ErrAlreadyProcessed) {
			uc.logger.Error("Failed to cancel underfunded redemption %s: %v", redemptionID, cancelErr)
		}
		return nil, entity.ErrInsufficientPoints
	}
	if err != nil {
		return nil, err
	}

	if sellerNotes != "" {
		if err := uc.redemptionRepo.UpdateNotes(redemptionID, sellerNotes, ""); err != nil {
			uc.logger.Error("Failed to save seller notes on %s: %v", redemptionID, err)
		} else {
			committed.SellerNotes = sellerNotes
		}
	}

	uc.notify(queue.RoutingKeyRedemption, map[string]interface{}{
		"type":          "redemption_processed",
		"user_id":       committed.UserID,
		"seller_id":     committed.SellerID,
		"redemption_id": committed.ID,
		"points":        committed.Points,
		"title":         "Reward redeemed",
		"body":          fmt.Sprintf("You spent %d points", committed.Points),
		"deep_link":     fmt.Sprintf("/redemptions/%s", committed.ID),
	})

	return committed, nil
}

func (uc *redemptionUseCase) Cancel(userID, redemptionID string) (*entity.Redemption, error) {
	redemption, err := uc.redemptionRepo.GetByID(redemptionID)
	if err != nil {
		return nil, err
	}

	if redemption.UserID != userID {
		return nil, entity.ErrForbidden
	}

	if redemption.Status != entity.StatusPending {
		return nil, entity.ErrAlreadyProcessed
	}

	return uc.redemptionRepo.MarkTerminal(redemptionID, entity.StatusCancelled)
}

// Expire moves a single stale pending redemption to expired. Only valid when
// the TTL has actually passed; the daily sweep calls this per stale record.
func (uc *redemptionUseCase) Expire(redemptionID string) (*entity.Redemption, error) {
	redemption, err := uc.redemptionRepo.GetByID(redemptionID)
	if err != nil {
		return nil, err
	}

	if redemption.Status != entity.StatusPending {
		return nil, entity.ErrAlreadyProcessed
	}

	if time.Now().Before(redemption.ExpiresAt) {
		return nil, entity.ErrForbidden
	}

	return uc.redemptionRepo.MarkTerminal(redemptionID, entity.StatusExpired)
}

func (uc *redemptionUseCase) ExpireStale(limit int) (int, error) {
	stale, err := uc.redemptionRepo.FindStalePending(time.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale redemptions: %w", err)
	}

	expired := 0
	for _, redemption := range stale {
		if _, err := uc.redemptionRepo.MarkTerminal(redemption.ID, entity.StatusExpired); err != nil {
			// A concurrent commit or cancel got there first; fine either way.
			if errors.Is(err, entity.ErrAlreadyProcessed) {
				continue
			}
			uc.logger.Error("Failed to expire redemption %s: %v", redemption.ID, err)
			continue
		}
		expired++
	}

	return expired, nil
}

func (uc *redemptionUseCase) Get(actorID, redemptionID string) (*entity.Redemption, error) {
	redemption, err := uc.redemptionRepo.GetByID(redemptionID)
	if err != nil {
		return nil, err
	}

	if redemption.UserID != actorID && redemption.SellerID != actorID {
		return nil, entity.ErrForbidden
	}

	return redemption, nil
}

// GetHold exposes the reservation backing a redemption, so clients can see
// whether the points are still reserved or already released.
func (uc *redemptionUseCase) GetHold(actorID, redemptionID string) (*entity.Hold, error) {
	redemption, err := uc.redemptionRepo.GetByID(redemptionID)
	if err != nil {
		return nil, err
	}

	if redemption.UserID != actorID && redemption.SellerID != actorID {
		return nil, entity.ErrForbidden
	}

	return uc.redemptionRepo.GetHoldByRedemption(redemptionID)
}

func (uc *redemptionUseCase) ListForUser(userID string, limit, offset int) ([]*entity.Redemption, error) {
	return uc.redemptionRepo.ListByUser(userID, limit, offset)
}

func (uc *redemptionUseCase) ListForSeller(sellerID string, status entity.RedemptionStatus, limit, offset int) ([]*entity.Redemption, error) {
	return uc.redemptionRepo.ListBySeller(sellerID, status, limit, offset)
}

// Balance reports the ledger points alongside the available balance, which
// subtracts every outstanding reserved hold.
func (uc *redemptionUseCase) Balance(userID, sellerID string) (*entity.Balance, error) {
	points, err := uc.ledgerRepo.GetBalance(userID, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	reserved, err := uc.ledgerRepo.SumReservedHolds(userID, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum holds: %w", err)
	}

	return &entity.Balance{
		UserID:    userID,
		SellerID:  sellerID,
		Points:    points,
		Available: points - reserved,
	}, nil
}

func (uc *redemptionUseCase) Transactions(userID, sellerID string, limit, offset int) ([]*entity.Transaction, error) {
	return uc.ledgerRepo.GetTransactions(userID, sellerID, limit, offset)
}

// UpdateCustomerNotes lets the owning customer annotate their redemption,
// e.g. after pickup. Only the customer_notes column is touched.
func (uc *redemptionUseCase) UpdateCustomerNotes(userID, redemptionID, notes string) (*entity.Redemption, error) {
	redemption, err := uc.redemptionRepo.GetByID(redemptionID)
	if err != nil {
		return nil, err
	}
	if redemption.UserID != userID {
		return nil, entity.ErrForbidden
	}

	if err := uc.redemptionRepo.UpdateNotes(redemptionID, "", notes); err != nil {
		return nil, err
	}
	return uc.redemptionRepo.GetByID(redemptionID)
}

func (uc *redemptionUseCase) notify(routingKey string, task map[string]interface{}) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.PublishNotificationTask(routingKey, task); err != nil {
		uc.logger.Error("Failed to publish notification: %v", err)
	}
}

// buildQRData encodes the redemption QR payload. The hash covers every field
// plus a random nonce, binding the QR to this exact redemption.
func buildQRData(redemption *entity.Redemption, now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	raw := fmt.Sprintf("%s|%s|%s|%d|%d|%s",
		redemption.ID,
		redemption.SellerID,
		redemption.UserID,
		redemption.Points,
		now.Unix(),
		hex.EncodeToString(nonce),
	)
	sum := sha256.Sum256([]byte(raw))

	payload := entity.QRPayload{
		Type:         "redemption",
		RedemptionID: redemption.ID,
		SellerID:     redemption.SellerID,
		UserID:       redemption.UserID,
		Points:       redemption.Points,
		Timestamp:    now.Unix(),
		Hash:         hex.EncodeToString(sum[:]),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
