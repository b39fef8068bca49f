package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

type SwapHandler struct {
	swaps *service.SwapService
}

func NewSwapHandler(swaps *service.SwapService) *SwapHandler {
	return &SwapHandler{swaps: swaps}
}

// Create POST /swaps
func (h *SwapHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		ProductID        string  `json:"product_id" binding:"required"`
		OfferedProductID *string `json:"offered_product_id"`
		DeliveryType     string  `json:"delivery_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid request body"))
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		common.Fail(c, apperror.New(apperror.ErrCodeValidation, "invalid product_id"))
		return
	}

	in := service.CreateSwapInput{
		RequesterID:  userID,
		ProductID:    productID,
		DeliveryType: req.DeliveryType,
	}
	if req.OfferedProductID != nil {
		offeredID, err := uuid.Parse(*req.OfferedProductID)
		if err != nil {
			common.Fail(c, apperror.New(apperror.ErrCodeValidation, "invalid offered_product_id"))
			return
		}
		in.OfferedProductID = &offeredID
	}

	swap, err := h.swaps.CreateSwap(c.Request.Context(), in)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, swap)
}

// Get GET /swaps/:id
func (h *SwapHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	swapID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	actor := userID
	if common.CurrentUserRole(c) == "admin" {
		actor = service.SystemActor
	}

	swap, err := h.swaps.GetSwap(c.Request.Context(), swapID, actor)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, swap)
}

// List GET /swaps
func (h *SwapHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	limit, offset := common.Pagination(c)

	swaps, err := h.swaps.ListMySwaps(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"swaps": swaps})
}

// Transition POST /swaps/:id/events
func (h *SwapHandler) Transition(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	swapID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Event string `json:"event" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid request body"))
		return
	}

	swap, err := h.swaps.Transition(c.Request.Context(), swapID, req.Event, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, swap)
}

// Resolve POST /admin/swaps/:id/resolve
func (h *SwapHandler) Resolve(c *gin.Context) {
	swapID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Outcome string `json:"outcome" binding:"required,oneof=complete cancel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "outcome must be complete or cancel"))
		return
	}

	event := models.SwapEventResolveComplete
	if req.Outcome == "cancel" {
		event = models.SwapEventResolveCancel
	}

	swap, err := h.swaps.Transition(c.Request.Context(), swapID, event, service.SystemActor)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, swap)
}
