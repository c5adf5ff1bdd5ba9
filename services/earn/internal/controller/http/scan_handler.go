package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"perkloop/pkg/logger"
	"perkloop/services/earn/internal/entity"
	"perkloop/services/earn/internal/usecase"

	"github.com/gin-gonic/gin"
)

type ScanHandler struct {
	scanUseCase usecase.ScanUseCase
	logger      *logger.Logger
}

func NewScanHandler(scanUseCase usecase.ScanUseCase, logger *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scanUseCase: scanUseCase,
		logger:      logger,
	}
}

// ScanRequest accepts either the raw earn token or the full QR payload the
// customer app renders.
type ScanRequest struct {
	Token     string   `json:"token"`
	QRData    string   `json:"qr_data"`
	Amount    float64  `json:"amount"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ProcessScan godoc
// @Summary      Process scan
// @Description  Resolve a customer earn QR and award points for a purchase
// @Tags         scans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ScanRequest true "Scan request"
// @Success      200  {object}  entity.ScanResult
// @Failure      400  {object}  map[string]string
// @Failure      402  {object}  map[string]string
// @Failure      429  {object}  map[string]string
// @Router       /scan [post]
func (h *ScanHandler) ProcessScan(c *gin.Context) {
	sellerID := c.GetString("user_id")

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := resolveScanToken(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var loc *entity.Location
	if req.Latitude != nil && req.Longitude != nil {
		loc = &entity.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	result, err := h.scanUseCase.ProcessScan(c.Request.Context(), sellerID, token, req.Amount, loc)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEarnQR godoc
// @Summary      Get earn QR
// @Description  Return the caller's persistent earn QR payload, minting a token on first use
// @Tags         scans
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]string
// @Router       /earn-qr [get]
func (h *ScanHandler) GetEarnQR(c *gin.Context) {
	userID := c.GetString("user_id")

	payload, err := h.scanUseCase.EarnQR(userID)
	if err != nil {
		h.logger.Error("Failed to build earn QR for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"qr_data": payload})
}

// resolveScanToken extracts the earn token from the request, preferring the
// full QR payload when both are present.
func resolveScanToken(req *ScanRequest) (string, error) {
	if req.QRData != "" {
		var payload entity.EarnQRPayload
		if err := json.Unmarshal([]byte(req.QRData), &payload); err != nil {
			return "", errors.New("malformed qr_data")
		}
		if payload.T != entity.EarnQRType || payload.Token == "" {
			return "", errors.New("not an earn QR")
		}
		return payload.Token, nil
	}
	if req.Token == "" {
		return "", errors.New("token or qr_data is required")
	}
	return req.Token, nil
}

func (h *ScanHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrSellerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrTooSoon):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrSubscriptionInactive),
		errors.Is(err, entity.ErrSubscriptionExpired),
		errors.Is(err, entity.ErrMonthlyLimitReached):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrInvalidToken),
		errors.Is(err, entity.ErrTooFarFromStore),
		errors.Is(err, entity.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Scan request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
