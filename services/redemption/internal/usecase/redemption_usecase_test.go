package usecase

import (
	"encoding/json"
	"testing"
	"time"

	"perkloop/pkg/logger"
	"perkloop/services/redemption/internal/entity"
	"perkloop/services/redemption/internal/repo/persistent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRedemptionRepository is a mock implementation of RedemptionRepository
type MockRedemptionRepository struct {
	mock.Mock
}

func (m *MockRedemptionRepository) CreateWithHold(redemption *entity.Redemption) (*entity.Redemption, error) {
	args := m.Called(redemption)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Allow tests to echo back the redemption they were handed
	if fn, ok := args.Get(0).(func(*entity.Redemption) *entity.Redemption); ok {
		return fn(redemption), args.Error(1)
	}
	return args.Get(0).(*entity.Redemption), args.Error(1)
}

func (m *MockRedemptionRepository) GetByID(id string) (*entity.Redemption, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Redemption), args.Error(1)
}

func (m *MockRedemptionRepository) ListByUser(userID string, limit, offset int) ([]*entity.Redemption, error) {
	args := m.Called(userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Redemption), args.Error(1)
}

func (m *MockRedemptionRepository) ListBySeller(sellerID string, status entity.RedemptionStatus, limit, offset int) ([]*entity.Redemption, error) {
	args := m.Called(sellerID, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Redemption), args.Error(1)
}

func (m *MockRedemptionRepository) GetHoldByRedemption(redemptionID string) (*entity.Hold, error) {
	args := m.Called(redemptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Hold), args.Error(1)
}

func (m *MockRedemptionRepository) CommitPending(redemptionID string) (*entity.Redemption, error) {
	args := m.Called(redemptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Redemption), args.Error(1)
}

func (m *MockRedemptionRepository) MarkTerminal(redemptionID string, status entity.RedemptionStatus) (*entity.Redemption, error) {
	args := m.Called(redemptionID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Redemption), args.Error(1)
}

func (m *MockRedemptionRepository) FindStalePending(now time.Time, limit int) ([]*entity.Redemption, error) {
	args := m.Called(now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Redemption), args.Error(1)
}

func (m *MockRedemptionRepository) UpdateNotes(redemptionID, sellerNotes, customerNotes string) error {
	args := m.Called(redemptionID, sellerNotes, customerNotes)
	return args.Error(0)
}

func (m *MockRedemptionRepository) SellerExists(sellerID string) (bool, error) {
	args := m.Called(sellerID)
	return args.Bool(0), args.Error(1)
}

var _ persistent.RedemptionRepository = (*MockRedemptionRepository)(nil)

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetBalance(userID, sellerID string) (int, error) {
	args := m.Called(userID, sellerID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerRepository) SumReservedHolds(userID, sellerID string) (int, error) {
	args := m.Called(userID, sellerID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerRepository) GetTransactions(userID, sellerID string, limit, offset int) ([]*entity.Transaction, error) {
	args := m.Called(userID, sellerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Transaction), args.Error(1)
}

var _ persistent.LedgerRepository = (*MockLedgerRepository)(nil)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishNotificationTask(routingKey string, task map[string]interface{}) error {
	args := m.Called(routingKey, task)
	return args.Error(0)
}

func newTestUseCase(redemptionRepo *MockRedemptionRepository, ledgerRepo *MockLedgerRepository, publisher NotificationPublisher) RedemptionUseCase {
	return NewRedemptionUseCase(redemptionRepo, ledgerRepo, publisher, 5*time.Minute, logger.New())
}

func TestCreate_InvalidPoints(t *testing.T) {
	uc := newTestUseCase(new(MockRedemptionRepository), new(MockLedgerRepository), nil)

	_, err := uc.Create("user-1", "seller-1", 0, "", "")
	assert.ErrorIs(t, err, entity.ErrInvalidPoints)

	_, err = uc.Create("user-1", "seller-1", -5, "", "")
	assert.ErrorIs(t, err, entity.ErrInvalidPoints)
}

func TestCreate_SellerNotFound(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("SellerExists", "seller-missing").Return(false, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Create("user-1", "seller-missing", 30, "", "")
	assert.ErrorIs(t, err, entity.ErrSellerNotFound)
}

func TestCreate_Success(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("SellerExists", "seller-1").Return(true, nil)
	redemptionRepo.On("CreateWithHold", mock.AnythingOfType("*entity.Redemption")).
		Return(func(r *entity.Redemption) *entity.Redemption { return r }, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	created, err := uc.Create("user-1", "seller-1", 30, "offer-1", "Free Coffee")
	assert.NoError(t, err)
	assert.Equal(t, entity.StatusPending, created.Status)
	assert.Equal(t, 30, created.Points)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), created.ExpiresAt, 2*time.Second)

	// QR payload binds redemption, parties and points and carries a hash
	var payload entity.QRPayload
	assert.NoError(t, json.Unmarshal([]byte(created.QRData), &payload))
	assert.Equal(t, "redemption", payload.Type)
	assert.Equal(t, created.ID, payload.RedemptionID)
	assert.Equal(t, "seller-1", payload.SellerID)
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, 30, payload.Points)
	assert.Len(t, payload.Hash, 64)

	redemptionRepo.AssertExpectations(t)
}

func TestCreate_InsufficientPoints(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("SellerExists", "seller-1").Return(true, nil)
	redemptionRepo.On("CreateWithHold", mock.AnythingOfType("*entity.Redemption")).
		Return(nil, entity.ErrInsufficientPoints)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Create("user-1", "seller-1", 100, "", "")
	assert.ErrorIs(t, err, entity.ErrInsufficientPoints)
}

func pendingRedemption(id string) *entity.Redemption {
	return &entity.Redemption{
		ID:        id,
		UserID:    "user-1",
		SellerID:  "seller-1",
		Points:    30,
		Status:    entity.StatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
}

func TestCommit_Success(t *testing.T) {
	redemption := pendingRedemption("red-1")
	now := time.Now()
	committed := *redemption
	committed.Status = entity.StatusRedeemed
	committed.RedeemedAt = &now

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)
	redemptionRepo.On("CommitPending", "red-1").Return(&committed, nil)

	publisher := new(MockPublisher)
	publisher.On("PublishNotificationTask", "redemption_processed", mock.Anything).Return(nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), publisher)

	result, err := uc.Commit("seller-1", "red-1", "")
	assert.NoError(t, err)
	assert.Equal(t, entity.StatusRedeemed, result.Status)
	assert.NotNil(t, result.RedeemedAt)

	publisher.AssertExpectations(t)
	redemptionRepo.AssertExpectations(t)
}

func TestCommit_Forbidden(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(pendingRedemption("red-1"), nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Commit("seller-other", "red-1", "")
	assert.ErrorIs(t, err, entity.ErrForbidden)
	redemptionRepo.AssertNotCalled(t, "CommitPending", mock.Anything)
}

func TestCommit_AlreadyProcessed(t *testing.T) {
	redemption := pendingRedemption("red-1")
	redemption.Status = entity.StatusRedeemed

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Commit("seller-1", "red-1", "")
	assert.ErrorIs(t, err, entity.ErrAlreadyProcessed)
}

func TestCommit_Expired(t *testing.T) {
	redemption := pendingRedemption("red-1")
	redemption.ExpiresAt = time.Now().Add(-time.Minute)
	expired := *redemption
	expired.Status = entity.StatusExpired

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)
	redemptionRepo.On("MarkTerminal", "red-1", entity.StatusExpired).Return(&expired, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Commit("seller-1", "red-1", "")
	assert.ErrorIs(t, err, entity.ErrExpired)

	// Lazy expiry: the commit attempt itself transitioned the redemption
	redemptionRepo.AssertCalled(t, "MarkTerminal", "red-1", entity.StatusExpired)
	redemptionRepo.AssertNotCalled(t, "CommitPending", mock.Anything)
}

func TestCommit_InsufficientCancels(t *testing.T) {
	redemption := pendingRedemption("red-1")
	cancelled := *redemption
	cancelled.Status = entity.StatusCancelled

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)
	redemptionRepo.On("CommitPending", "red-1").Return(nil, entity.ErrInsufficientPoints)
	redemptionRepo.On("MarkTerminal", "red-1", entity.StatusCancelled).Return(&cancelled, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Commit("seller-1", "red-1", "")
	assert.ErrorIs(t, err, entity.ErrInsufficientPoints)
	redemptionRepo.AssertCalled(t, "MarkTerminal", "red-1", entity.StatusCancelled)
}

func TestCancel_Success(t *testing.T) {
	redemption := pendingRedemption("red-1")
	cancelled := *redemption
	cancelled.Status = entity.StatusCancelled

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)
	redemptionRepo.On("MarkTerminal", "red-1", entity.StatusCancelled).Return(&cancelled, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	result, err := uc.Cancel("user-1", "red-1")
	assert.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, result.Status)
}

func TestCancel_Forbidden(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(pendingRedemption("red-1"), nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Cancel("user-other", "red-1")
	assert.ErrorIs(t, err, entity.ErrForbidden)
	redemptionRepo.AssertNotCalled(t, "MarkTerminal", mock.Anything, mock.Anything)
}

func TestCancel_AlreadyProcessed(t *testing.T) {
	redemption := pendingRedemption("red-1")
	redemption.Status = entity.StatusExpired

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Cancel("user-1", "red-1")
	assert.ErrorIs(t, err, entity.ErrAlreadyProcessed)
}

func TestExpire_NotYetExpired(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(pendingRedemption("red-1"), nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Expire("red-1")
	assert.ErrorIs(t, err, entity.ErrForbidden)
}

func TestExpireStale(t *testing.T) {
	first := pendingRedemption("red-1")
	second := pendingRedemption("red-2")
	expired := *first
	expired.Status = entity.StatusExpired

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("FindStalePending", mock.AnythingOfType("time.Time"), 500).
		Return([]*entity.Redemption{first, second}, nil)
	redemptionRepo.On("MarkTerminal", "red-1", entity.StatusExpired).Return(&expired, nil)
	// red-2 was committed concurrently; the sweep skips it without failing
	redemptionRepo.On("MarkTerminal", "red-2", entity.StatusExpired).Return(nil, entity.ErrAlreadyProcessed)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	count, err := uc.ExpireStale(500)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBalance_SubtractsReservedHolds(t *testing.T) {
	ledgerRepo := new(MockLedgerRepository)
	ledgerRepo.On("GetBalance", "user-1", "seller-1").Return(50, nil)
	ledgerRepo.On("SumReservedHolds", "user-1", "seller-1").Return(30, nil)

	uc := newTestUseCase(new(MockRedemptionRepository), ledgerRepo, nil)

	balance, err := uc.Balance("user-1", "seller-1")
	assert.NoError(t, err)
	assert.Equal(t, 50, balance.Points)
	assert.Equal(t, 20, balance.Available)
}

func TestCommit_NotificationFailureDoesNotFail(t *testing.T) {
	redemption := pendingRedemption("red-1")
	committed := *redemption
	committed.Status = entity.StatusRedeemed

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)
	redemptionRepo.On("CommitPending", "red-1").Return(&committed, nil)

	publisher := new(MockPublisher)
	publisher.On("PublishNotificationTask", mock.Anything, mock.Anything).
		Return(assert.AnError)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), publisher)

	result, err := uc.Commit("seller-1", "red-1", "")
	assert.NoError(t, err)
	assert.Equal(t, entity.StatusRedeemed, result.Status)
}

func TestUpdateCustomerNotes_Success(t *testing.T) {
	redemption := pendingRedemption("red-1")
	annotated := *redemption
	annotated.CustomerNotes = "picked up after lunch"

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil).Once()
	redemptionRepo.On("UpdateNotes", "red-1", "", "picked up after lunch").Return(nil)
	redemptionRepo.On("GetByID", "red-1").Return(&annotated, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	result, err := uc.UpdateCustomerNotes("user-1", "red-1", "picked up after lunch")
	assert.NoError(t, err)
	assert.Equal(t, "picked up after lunch", result.CustomerNotes)
	redemptionRepo.AssertExpectations(t)
}

func TestUpdateCustomerNotes_Forbidden(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(pendingRedemption("red-1"), nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.UpdateCustomerNotes("someone-else", "red-1", "mine now")
	assert.ErrorIs(t, err, entity.ErrForbidden)
	redemptionRepo.AssertNotCalled(t, "UpdateNotes", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_ConflictSurfacesAsIs(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("SellerExists", "seller-1").Return(true, nil)
	redemptionRepo.On("CreateWithHold", mock.AnythingOfType("*entity.Redemption")).
		Return(nil, entity.ErrConflict)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Create("user-1", "seller-1", 30, "", "")
	assert.ErrorIs(t, err, entity.ErrConflict)
}

func TestCommit_ConflictSurfacesAsIs(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(pendingRedemption("red-1"), nil)
	redemptionRepo.On("CommitPending", "red-1").Return(nil, entity.ErrConflict)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Commit("seller-1", "red-1", "")
	assert.ErrorIs(t, err, entity.ErrConflict)

	// Retry exhaustion leaves the redemption pending; nothing transitions it.
	redemptionRepo.AssertNotCalled(t, "MarkTerminal", mock.Anything, mock.Anything)
}

func TestCommit_ExpiryRacingTheRowLock(t *testing.T) {
	// The snapshot still looks live, but the TTL lapses before the commit
	// takes the row lock and re-checks expiry there.
	redemption := pendingRedemption("red-1")
	expired := *redemption
	expired.Status = entity.StatusExpired

	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(redemption, nil)
	redemptionRepo.On("CommitPending", "red-1").Return(nil, entity.ErrExpired)
	redemptionRepo.On("MarkTerminal", "red-1", entity.StatusExpired).Return(&expired, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.Commit("seller-1", "red-1", "")
	assert.ErrorIs(t, err, entity.ErrExpired)
	redemptionRepo.AssertCalled(t, "MarkTerminal", "red-1", entity.StatusExpired)
}

func TestGetHold_Success(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(pendingRedemption("red-1"), nil)
	redemptionRepo.On("GetHoldByRedemption", "red-1").Return(&entity.Hold{
		ID:           "hold-1",
		UserID:       "user-1",
		SellerID:     "seller-1",
		RedemptionID: "red-1",
		Points:       30,
		Status:       entity.HoldReserved,
	}, nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	hold, err := uc.GetHold("user-1", "red-1")
	assert.NoError(t, err)
	assert.Equal(t, entity.HoldReserved, hold.Status)
	assert.Equal(t, 30, hold.Points)

	// The seller side of the redemption sees the hold too.
	hold, err = uc.GetHold("seller-1", "red-1")
	assert.NoError(t, err)
	assert.Equal(t, "red-1", hold.RedemptionID)
}

func TestGetHold_Forbidden(t *testing.T) {
	redemptionRepo := new(MockRedemptionRepository)
	redemptionRepo.On("GetByID", "red-1").Return(pendingRedemption("red-1"), nil)

	uc := newTestUseCase(redemptionRepo, new(MockLedgerRepository), nil)

	_, err := uc.GetHold("stranger", "red-1")
	assert.ErrorIs(t, err, entity.ErrForbidden)
	redemptionRepo.AssertNotCalled(t, "GetHoldByRedemption", mock.Anything)
}
