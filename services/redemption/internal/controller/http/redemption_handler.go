package http

import (
	"errors"
	"net/http"
	"strconv"

	"perkloop/pkg/logger"
	"perkloop/services/redemption/internal/entity"
	"perkloop/services/redemption/internal/usecase"

	"github.com/gin-gonic/gin"
)

type RedemptionHandler struct {
	redemptionUseCase usecase.RedemptionUseCase
	logger            *logger.Logger
}

func NewRedemptionHandler(redemptionUseCase usecase.RedemptionUseCase, logger *logger.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		redemptionUseCase: redemptionUseCase,
		logger:            logger,
	}
}

type CreateRedemptionRequest struct {
	SellerID  string `json:"seller_id" binding:"required"`
	Points    int    `json:"points" binding:"required"`
	OfferID   string `json:"offer_id"`
	OfferName string `json:"offer_name"`
}

type ProcessRedemptionRequest struct {
	SellerNotes string `json:"seller_notes"`
}

// CreateRedemption godoc
// @Summary      Create redemption
// @Description  Reserve points and create a pending redemption with a QR payload
// @Tags         redemptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateRedemptionRequest true "Redemption request"
// @Success      201  {object}  entity.Redemption
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /redemptions [post]
func (h *RedemptionHandler) CreateRedemption(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreateRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	redemption, err := h.redemptionUseCase.Create(userID, req.SellerID, req.Points, req.OfferID, req.OfferName)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, redemption)
}

// GetRedemption godoc
// @Summary      Get redemption
// @Description  Get a redemption visible to its customer or seller
// @Tags         redemptions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Redemption ID"
// @Success      200  {object}  entity.Redemption
// @Router       /redemptions/{id} [get]
func (h *RedemptionHandler) GetRedemption(c *gin.Context) {
	actorID := c.GetString("user_id")

	redemption, err := h.redemptionUseCase.Get(actorID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, redemption)
}

// GetHold godoc
// @Summary      Get redemption hold
// @Description  Reservation state backing a redemption
// @Tags         redemptions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Redemption ID"
// @Success      200  {object}  entity.Hold
// @Failure      404  {object}  map[string]string
// @Router       /redemptions/{id}/hold [get]
func (h *RedemptionHandler) GetHold(c *gin.Context) {
	actorID := c.GetString("user_id")

	hold, err := h.redemptionUseCase.GetHold(actorID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, hold)
}

// ProcessRedemption godoc
// @Summary      Process redemption
// @Description  Seller commits a pending redemption, decrementing the ledger
// @Tags         redemptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Redemption ID"
// @Param        request body ProcessRedemptionRequest false "Seller notes"
// @Success      200  {object}  entity.Redemption
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /redemptions/{id}/process [post]
func (h *RedemptionHandler) ProcessRedemption(c *gin.Context) {
	sellerID := c.GetString("user_id")

	var req ProcessRedemptionRequest
	_ = c.ShouldBindJSON(&req)

	redemption, err := h.redemptionUseCase.Commit(sellerID, c.Param("id"), req.SellerNotes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, redemption)
}

// CancelRedemption godoc
// @Summary      Cancel redemption
// @Description  Owner cancels a pending redemption, releasing its hold
// @Tags         redemptions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Redemption ID"
// @Success      200  {object}  entity.Redemption
// @Router       /redemptions/{id}/cancel [post]
func (h *RedemptionHandler) CancelRedemption(c *gin.Context) {
	userID := c.GetString("user_id")

	redemption, err := h.redemptionUseCase.Cancel(userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, redemption)
}

// ListRedemptions godoc
// @Summary      List my redemptions
// @Tags         redemptions
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Limit"
// @Param        offset query int false "Offset"
// @Success      200  {array}  entity.Redemption
// @Router       /redemptions [get]
func (h *RedemptionHandler) ListRedemptions(c *gin.Context) {
	userID := c.GetString("user_id")
	limit, offset := pagination(c)

	redemptions, err := h.redemptionUseCase.ListForUser(userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list redemptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list redemptions"})
		return
	}

	c.JSON(http.StatusOK, redemptions)
}

// ListSellerRedemptions godoc
// @Summary      List redemptions for my store
// @Tags         redemptions
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "Filter by status"
// @Success      200  {array}  entity.Redemption
// @Router       /seller/redemptions [get]
func (h *RedemptionHandler) ListSellerRedemptions(c *gin.Context) {
	sellerID := c.GetString("user_id")
	limit, offset := pagination(c)
	status := entity.RedemptionStatus(c.Query("status"))

	redemptions, err := h.redemptionUseCase.ListForSeller(sellerID, status, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list seller redemptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list redemptions"})
		return
	}

	c.JSON(http.StatusOK, redemptions)
}

// GetBalance godoc
// @Summary      Get point balance
// @Description  Ledger points and available balance for one seller
// @Tags         balance
// @Produce      json
// @Security     BearerAuth
// @Param        seller_id path string true "Seller ID"
// @Success      200  {object}  entity.Balance
// @Router       /balance/{seller_id} [get]
func (h *RedemptionHandler) GetBalance(c *gin.Context) {
	userID := c.GetString("user_id")

	balance, err := h.redemptionUseCase.Balance(userID, c.Param("seller_id"))
	if err != nil {
		h.logger.Error("Failed to get balance: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get balance"})
		return
	}

	c.JSON(http.StatusOK, balance)
}

// GetTransactions godoc
// @Summary      Point activity history
// @Tags         balance
// @Produce      json
// @Security     BearerAuth
// @Param        seller_id query string false "Filter by seller"
// @Success      200  {array}  entity.Transaction
// @Router       /transactions [get]
func (h *RedemptionHandler) GetTransactions(c *gin.Context) {
	userID := c.GetString("user_id")
	limit, offset := pagination(c)

	transactions, err := h.redemptionUseCase.Transactions(userID, c.Query("seller_id"), limit, offset)
	if err != nil {
		h.logger.Error("Failed to get transactions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get transactions"})
		return
	}

	c.JSON(http.StatusOK, transactions)
}

type UpdateNotesRequest struct {
	CustomerNotes string `json:"customer_notes" binding:"required"`
}

// UpdateNotes godoc
// @Summary      Update redemption notes
// @Description  Set the customer notes on an owned redemption
// @Tags         redemptions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Redemption ID"
// @Param        request body UpdateNotesRequest true "Notes"
// @Success      200  {object}  entity.Redemption
// @Failure      403  {object}  map[string]string
// @Router       /redemptions/{id}/notes [patch]
func (h *RedemptionHandler) UpdateNotes(c *gin.Context) {
	userID := c.GetString("user_id")

	var req UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	redemption, err := h.redemptionUseCase.UpdateCustomerNotes(userID, c.Param("id"), req.CustomerNotes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, redemption)
}

func (h *RedemptionHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrRedemptionNotFound), errors.Is(err, entity.ErrSellerNotFound), errors.Is(err, entity.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrAlreadyProcessed), errors.Is(err, entity.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, entity.ErrInsufficientPoints), errors.Is(err, entity.ErrInvalidPoints), errors.Is(err, entity.ErrExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Redemption request failed: %v", err)
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
