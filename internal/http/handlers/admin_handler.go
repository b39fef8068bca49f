package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

// AdminHandler exposes operational endpoints: the manual deadline sweep
// and pricing cache invalidation.
type AdminHandler struct {
	swaps  *service.SwapService
	chains *service.MultiSwapService
	demand *service.DemandService
}

func NewAdminHandler(swaps *service.SwapService, chains *service.MultiSwapService, demand *service.DemandService) *AdminHandler {
	return &AdminHandler{swaps: swaps, chains: chains, demand: demand}
}

// Sweep POST /admin/sweep
// Runs the same pass as the background ticker. Safe to trigger at any
// time; the sweep is idempotent.
func (h *AdminHandler) Sweep(c *gin.Context) {
	now := time.Now()

	swapCount, err := h.swaps.SweepExpired(c.Request.Context(), now)
	if err != nil {
		common.Fail(c, err)
		return
	}
	chainCount, err := h.chains.SweepExpiredChains(c.Request.Context(), now)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"swaps_transitioned": swapCount,
		"chains_cancelled":   chainCount,
	})
}

// InvalidatePricing POST /admin/pricing/invalidate
func (h *AdminHandler) InvalidatePricing(c *gin.Context) {
	if err := h.demand.Invalidate(c.Request.Context()); err != nil {
		common.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
