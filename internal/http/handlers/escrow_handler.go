package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

type EscrowHandler struct {
	escrow *service.EscrowService
}

func NewEscrowHandler(escrow *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

// Balance GET /escrow/balance
func (h *EscrowHandler) Balance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	balance, err := h.escrow.GetBalance(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valor_balance": balance.ValorAmount,
		"locked_valor":  balance.LockedValor,
		"available":     balance.Available(),
	})
}

// Entries GET /escrow/entries
func (h *EscrowHandler) Entries(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	limit, offset := common.Pagination(c)

	entries, err := h.escrow.ListEntries(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Deposit POST /escrow/deposit
// Entry point for the external top-up provider callback.
func (h *EscrowHandler) Deposit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		Amount int64  `json:"amount" binding:"required,gt=0"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "amount must be positive"))
		return
	}

	entry, err := h.escrow.Credit(c.Request.Context(), userID, req.Amount, models.EscrowEntryCredit, req.Reason)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// SwapEntries GET /swaps/:id/escrow
func (h *EscrowHandler) SwapEntries(c *gin.Context) {
	if _, err := common.CurrentUserID(c); err != nil {
		common.Fail(c, err)
		return
	}
	swapID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	entries, err := h.escrow.ListEntriesBySwap(c.Request.Context(), swapID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
