package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

type NegotiationHandler struct {
	negotiations *service.NegotiationService
}

func NewNegotiationHandler(negotiations *service.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{negotiations: negotiations}
}

// Act POST /swaps/:id/negotiation
func (h *NegotiationHandler) Act(c *gin.Context) {
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
		Action        string  `json:"action" binding:"required,oneof=propose counter accept reject"`
		Price         *int64  `json:"price"`
		PreviousPrice *int64  `json:"previous_price"`
		Message       *string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid request body"))
		return
	}

	result, err := h.negotiations.Negotiate(c.Request.Context(), service.NegotiationInput{
		SwapID:        swapID,
		ActorID:       userID,
		Action:        req.Action,
		Price:         req.Price,
		PreviousPrice: req.PreviousPrice,
		Message:       req.Message,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// History GET /swaps/:id/negotiation
func (h *NegotiationHandler) History(c *gin.Context) {
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

	events, err := h.negotiations.GetHistory(c.Request.Context(), swapID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
