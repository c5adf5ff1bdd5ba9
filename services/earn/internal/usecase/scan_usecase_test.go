package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"perkloop/pkg/logger"
	"perkloop/pkg/models"
	"perkloop/services/earn/internal/entity"
	"perkloop/services/earn/internal/repo/persistent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockScanRepository is a mock implementation of ScanRepository
type MockScanRepository struct {
	mock.Mock
}

func (m *MockScanRepository) ResolveToken(token string) (*entity.EarnToken, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EarnToken), args.Error(1)
}

func (m *MockScanRepository) CreateToken(token, userID string) (*entity.EarnToken, error) {
	args := m.Called(token, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EarnToken), args.Error(1)
}

func (m *MockScanRepository) TokenForUser(userID string) (*entity.EarnToken, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EarnToken), args.Error(1)
}

func (m *MockScanRepository) TouchToken(token string, at time.Time) error {
	args := m.Called(token, at)
	return args.Error(0)
}

func (m *MockScanRepository) GetSeller(sellerID string) (*models.Seller, error) {
	args := m.Called(sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Seller), args.Error(1)
}

func (m *MockScanRepository) HasEarned(userID, sellerID string) (bool, error) {
	args := m.Called(userID, sellerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockScanRepository) RecordEarn(earn *persistent.EarnRecord) (int, error) {
	args := m.Called(earn)
	return args.Int(0), args.Error(1)
}

// MockCooldownGuard is a mock implementation of CooldownGuard
type MockCooldownGuard struct {
	mock.Mock
}

func (m *MockCooldownGuard) Acquire(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockSellerCache is a mock implementation of SellerConfigCache
type MockSellerCache struct {
	mock.Mock
}

func (m *MockSellerCache) Get(ctx context.Context, sellerID string) (*models.Seller, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Seller), args.Error(1)
}

func (m *MockSellerCache) Set(ctx context.Context, seller *models.Seller) error {
	args := m.Called(ctx, seller)
	return args.Error(0)
}

// MockPublisher is a mock implementation of NotificationPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishNotificationTask(routingKey string, task map[string]interface{}) error {
	args := m.Called(routingKey, task)
	return args.Error(0)
}

// Ensure mocks implement the interfaces
var _ persistent.ScanRepository = (*MockScanRepository)(nil)
var _ CooldownGuard = (*MockCooldownGuard)(nil)
var _ SellerConfigCache = (*MockSellerCache)(nil)
var _ NotificationPublisher = (*MockPublisher)(nil)

func activeSeller() *models.Seller {
	return &models.Seller{
		ID:                 "seller-1",
		Name:               "Corner Coffee",
		SubscriptionStatus: models.SubscriptionActive,
		MonthlyScanLimit:   1000,
		RewardType:         models.RewardTypeFlat,
		RewardParams:       `{"value":10}`,
		FirstScanBonus:     25,
	}
}

func newTestScanUseCase(repo *MockScanRepository, cooldown *MockCooldownGuard, sellerCache *MockSellerCache, publisher *MockPublisher) ScanUseCase {
	// Pass untyped nil interfaces when no mock is supplied, so the use case's
	// nil checks see a nil interface rather than a typed nil pointer.
	var cache SellerConfigCache
	if sellerCache != nil {
		cache = sellerCache
	}
	var pub NotificationPublisher
	if publisher != nil {
		pub = publisher
	}
	return NewScanUseCase(repo, cooldown, cache, pub, 10*time.Second, logger.New())
}

func TestProcessScan_Success(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	sellerCache := new(MockSellerCache)
	publisher := new(MockPublisher)
	uc := newTestScanUseCase(repo, cooldown, sellerCache, publisher)

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	sellerCache.On("Get", mock.Anything, "seller-1").Return(nil, errors.New("cache miss"))
	repo.On("GetSeller", "seller-1").Return(activeSeller(), nil)
	sellerCache.On("Set", mock.Anything, mock.Anything).Return(nil)
	repo.On("TouchToken", "tok-1", mock.Anything).Return(nil)
	repo.On("HasEarned", "user-1", "seller-1").Return(true, nil)
	repo.On("RecordEarn", mock.MatchedBy(func(e *persistent.EarnRecord) bool {
		return e.UserID == "user-1" && e.SellerID == "seller-1" &&
			e.BasePoints == 10 && e.BonusPoints == 0 && !e.FirstScan
	})).Return(110, nil)
	publisher.On("PublishNotificationTask", "points_earned", mock.Anything).Return(nil)

	result, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.NoError(t, err)
	assert.Equal(t, 10, result.TotalPoints)
	assert.Equal(t, 110, result.NewBalance)
	assert.False(t, result.FirstScan)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestProcessScan_FirstScanBonus(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	publisher := new(MockPublisher)
	uc := newTestScanUseCase(repo, cooldown, nil, publisher)

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	repo.On("GetSeller", "seller-1").Return(activeSeller(), nil)
	repo.On("TouchToken", "tok-1", mock.Anything).Return(nil)
	repo.On("HasEarned", "user-1", "seller-1").Return(false, nil)
	repo.On("RecordEarn", mock.MatchedBy(func(e *persistent.EarnRecord) bool {
		return e.BasePoints == 10 && e.BonusPoints == 25 && e.FirstScan
	})).Return(35, nil)
	publisher.On("PublishNotificationTask", "points_earned", mock.Anything).Return(nil)

	result, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.NoError(t, err)
	assert.True(t, result.FirstScan)
	assert.Equal(t, 35, result.TotalPoints)
	assert.Equal(t, 25, result.BonusPoints)
	repo.AssertExpectations(t)
}

func TestProcessScan_InvalidToken(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	uc := newTestScanUseCase(repo, cooldown, nil, nil)

	repo.On("ResolveToken", "bogus").Return(nil, entity.ErrInvalidToken)

	_, err := uc.ProcessScan(context.Background(), "seller-1", "bogus", 42, nil)

	assert.ErrorIs(t, err, entity.ErrInvalidToken)
	repo.AssertNotCalled(t, "RecordEarn", mock.Anything)
}

func TestProcessScan_TooSoon(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	uc := newTestScanUseCase(repo, cooldown, nil, nil)

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(false, nil)

	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.ErrorIs(t, err, entity.ErrTooSoon)
	repo.AssertNotCalled(t, "RecordEarn", mock.Anything)
}

func TestProcessScan_TooSoon_RedisDownFallback(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	uc := newTestScanUseCase(repo, cooldown, nil, nil)

	lastUsed := time.Now().Add(-3 * time.Second)
	repo.On("ResolveToken", "tok-1").Return(
		&entity.EarnToken{Token: "tok-1", UserID: "user-1", LastUsedAt: &lastUsed}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(false, errors.New("redis down"))

	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.ErrorIs(t, err, entity.ErrTooSoon)
}

func TestProcessScan_SubscriptionInactive(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	uc := newTestScanUseCase(repo, cooldown, nil, nil)

	seller := activeSeller()
	seller.SubscriptionStatus = models.SubscriptionInactive

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	repo.On("GetSeller", "seller-1").Return(seller, nil)

	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.ErrorIs(t, err, entity.ErrSubscriptionInactive)
	repo.AssertNotCalled(t, "RecordEarn", mock.Anything)
}

func TestProcessScan_SubscriptionExpired(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	uc := newTestScanUseCase(repo, cooldown, nil, nil)

	expired := time.Now().Add(-24 * time.Hour)
	seller := activeSeller()
	seller.SubscriptionExpiresAt = &expired

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	repo.On("GetSeller", "seller-1").Return(seller, nil)

	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.ErrorIs(t, err, entity.ErrSubscriptionExpired)
}

func TestProcessScan_MonthlyLimitReached(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	uc := newTestScanUseCase(repo, cooldown, nil, nil)

	seller := activeSeller()
	seller.MonthlyScanLimit = 100

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	repo.On("GetSeller", "seller-1").Return(seller, nil)
	repo.On("HasEarned", "user-1", "seller-1").Return(true, nil)
	repo.On("RecordEarn", mock.MatchedBy(func(e *persistent.EarnRecord) bool {
		return e.ScanLimit == 100
	})).Return(0, entity.ErrMonthlyLimitReached)

	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.ErrorIs(t, err, entity.ErrMonthlyLimitReached)
	repo.AssertNotCalled(t, "TouchToken", mock.Anything, mock.Anything)
}

func TestProcessScan_CachedCounterDoesNotGate(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	sellerCache := new(MockSellerCache)
	publisher := new(MockPublisher)
	uc := newTestScanUseCase(repo, cooldown, sellerCache, publisher)

	// The cached copy shows the counter already at the cap. The cache is
	// only authoritative for configuration; the cap decision belongs to
	// RecordEarn, which sees the live counter. The scan must reach it.
	seller := activeSeller()
	seller.MonthlyScanLimit = 100
	seller.MonthlyScanCount = 100
	seller.ScanMonth = time.Now().UTC().Format("2006-01")

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	sellerCache.On("Get", mock.Anything, "seller-1").Return(seller, nil)
	repo.On("HasEarned", "user-1", "seller-1").Return(true, nil)
	repo.On("RecordEarn", mock.MatchedBy(func(e *persistent.EarnRecord) bool {
		return e.ScanLimit == 100
	})).Return(10, nil)
	repo.On("TouchToken", "tok-1", mock.Anything).Return(nil)
	publisher.On("PublishNotificationTask", "points_earned", mock.Anything).Return(nil)

	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "GetSeller", mock.Anything)
}

func TestProcessScan_TooFarFromStore(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	uc := newTestScanUseCase(repo, cooldown, nil, nil)

	// Store in central Berlin with a 200m radius.
	seller := activeSeller()
	seller.Latitude = 52.5200
	seller.Longitude = 13.4050
	seller.RadiusMeters = 200

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	repo.On("GetSeller", "seller-1").Return(seller, nil)

	// Customer roughly 5km away.
	far := &entity.Location{Latitude: 52.4700, Longitude: 13.4050}
	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, far)

	assert.ErrorIs(t, err, entity.ErrTooFarFromStore)
	repo.AssertNotCalled(t, "RecordEarn", mock.Anything)
}

func TestProcessScan_InsideGeofence(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	publisher := new(MockPublisher)
	uc := newTestScanUseCase(repo, cooldown, nil, publisher)

	seller := activeSeller()
	seller.Latitude = 52.5200
	seller.Longitude = 13.4050
	seller.RadiusMeters = 200

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	repo.On("GetSeller", "seller-1").Return(seller, nil)
	repo.On("TouchToken", "tok-1", mock.Anything).Return(nil)
	repo.On("HasEarned", "user-1", "seller-1").Return(true, nil)
	repo.On("RecordEarn", mock.Anything).Return(10, nil)
	publisher.On("PublishNotificationTask", "points_earned", mock.Anything).Return(nil)

	// ~50m away.
	near := &entity.Location{Latitude: 52.52045, Longitude: 13.4050}
	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, near)

	assert.NoError(t, err)
}

func TestProcessScan_NegativeAmount(t *testing.T) {
	uc := newTestScanUseCase(new(MockScanRepository), new(MockCooldownGuard), nil, nil)

	_, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", -1, nil)

	assert.ErrorIs(t, err, entity.ErrInvalidAmount)
}

func TestProcessScan_NotificationFailureDoesNotFailScan(t *testing.T) {
	repo := new(MockScanRepository)
	cooldown := new(MockCooldownGuard)
	publisher := new(MockPublisher)
	uc := newTestScanUseCase(repo, cooldown, nil, publisher)

	repo.On("ResolveToken", "tok-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)
	cooldown.On("Acquire", mock.Anything, "tok-1").Return(true, nil)
	repo.On("GetSeller", "seller-1").Return(activeSeller(), nil)
	repo.On("TouchToken", "tok-1", mock.Anything).Return(nil)
	repo.On("HasEarned", "user-1", "seller-1").Return(true, nil)
	repo.On("RecordEarn", mock.Anything).Return(10, nil)
	publisher.On("PublishNotificationTask", "points_earned", mock.Anything).Return(errors.New("broker down"))

	result, err := uc.ProcessScan(context.Background(), "seller-1", "tok-1", 42, nil)

	assert.NoError(t, err)
	assert.Equal(t, 10, result.NewBalance)
}

func TestEarnQR_ExistingToken(t *testing.T) {
	repo := new(MockScanRepository)
	uc := newTestScanUseCase(repo, new(MockCooldownGuard), nil, nil)

	repo.On("TokenForUser", "user-1").Return(&entity.EarnToken{Token: "tok-1", UserID: "user-1"}, nil)

	data, err := uc.EarnQR("user-1")

	assert.NoError(t, err)
	var payload entity.EarnQRPayload
	assert.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.Equal(t, 1, payload.V)
	assert.Equal(t, entity.EarnQRType, payload.T)
	assert.Equal(t, "tok-1", payload.Token)
	repo.AssertNotCalled(t, "CreateToken", mock.Anything, mock.Anything)
}

func TestEarnQR_MintsTokenOnFirstUse(t *testing.T) {
	repo := new(MockScanRepository)
	uc := newTestScanUseCase(repo, new(MockCooldownGuard), nil, nil)

	repo.On("TokenForUser", "user-1").Return(nil, nil)
	repo.On("CreateToken", mock.AnythingOfType("string"), "user-1").
		Return(&entity.EarnToken{Token: "minted", UserID: "user-1"}, nil)

	data, err := uc.EarnQR("user-1")

	assert.NoError(t, err)
	var payload entity.EarnQRPayload
	assert.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.Equal(t, "minted", payload.Token)
	repo.AssertExpectations(t)
}
