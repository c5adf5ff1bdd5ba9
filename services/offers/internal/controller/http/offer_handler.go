package http

import (
	"errors"
	"net/http"
	"strconv"

	"perkloop/pkg/logger"
	"perkloop/services/offers/internal/entity"
	"perkloop/services/offers/internal/usecase"

	"github.com/gin-gonic/gin"
)

type OfferHandler struct {
	offerUseCase usecase.OfferUseCase
	logger       *logger.Logger
}

func NewOfferHandler(offerUseCase usecase.OfferUseCase, logger *logger.Logger) *OfferHandler {
	return &OfferHandler{
		offerUseCase: offerUseCase,
		logger:       logger,
	}
}

type VerifyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetTodayOffer godoc
// @Summary      Get today's offer
// @Description  Return the caller's daily perk for a seller, assigning one on first call
// @Tags         offers
// @Produce      json
// @Security     BearerAuth
// @Param        seller_id path string true "Seller ID"
// @Success      200  {object}  entity.Claim
// @Failure      404  {object}  map[string]string
// @Router       /offers/{seller_id}/today [get]
func (h *OfferHandler) GetTodayOffer(c *gin.Context) {
	userID := c.GetString("user_id")

	claim, err := h.offerUseCase.AssignDaily(c.Request.Context(), userID, c.Param("seller_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

// RedeemTodayOffer godoc
// @Summary      Redeem today's offer
// @Description  Generate (or return) the single-use redemption code for today's claim
// @Tags         offers
// @Produce      json
// @Security     BearerAuth
// @Param        seller_id path string true "Seller ID"
// @Success      200  {object}  entity.Claim
// @Failure      409  {object}  map[string]string
// @Router       /offers/{seller_id}/redeem [post]
func (h *OfferHandler) RedeemTodayOffer(c *gin.Context) {
	userID := c.GetString("user_id")

	claim, err := h.offerUseCase.GenerateCode(c.Request.Context(), userID, c.Param("seller_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

// VerifyCode godoc
// @Summary      Verify offer code
// @Description  Seller-side redemption of an offer code; a code can only be verified once
// @Tags         offers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body VerifyCodeRequest true "Code to verify"
// @Success      200  {object}  entity.VerifiedCode
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /offers/verify [post]
func (h *OfferHandler) VerifyCode(c *gin.Context) {
	sellerID := c.GetString("user_id")

	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verified, err := h.offerUseCase.VerifyCode(sellerID, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verified)
}

// ListClaims godoc
// @Summary      List offer claims
// @Description  List the caller's offer claims, newest day first
// @Tags         offers
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Page size"
// @Param        offset query int false "Offset"
// @Success      200  {array}  entity.Claim
// @Router       /offers/claims [get]
func (h *OfferHandler) ListClaims(c *gin.Context) {
	userID := c.GetString("user_id")
	limit, offset := pagination(c)

	claims, err := h.offerUseCase.ListClaims(userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list claims for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list claims"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"claims": claims, "count": len(claims)})
}

func (h *OfferHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrSellerNotFound),
		errors.Is(err, entity.ErrClaimNotFound),
		errors.Is(err, entity.ErrCodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrAlreadyRedeemed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrNoOffersConfigured):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Offer request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
