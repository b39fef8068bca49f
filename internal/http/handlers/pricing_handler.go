package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

type PricingHandler struct {
	engine *service.ValorPricingEngine
	demand *service.DemandService
}

func NewPricingHandler(engine *service.ValorPricingEngine, demand *service.DemandService) *PricingHandler {
	return &PricingHandler{engine: engine, demand: demand}
}

// Quote POST /pricing/quote
func (h *PricingHandler) Quote(c *gin.Context) {
	if _, err := common.CurrentUserID(c); err != nil {
		common.Fail(c, err)
		return
	}

	var req struct {
		ReferenceValue float64 `json:"reference_value" binding:"required,gt=0"`
		Condition      string  `json:"condition" binding:"required"`
		Category       string  `json:"category" binding:"required"`
		Region         string  `json:"region"`
		Vehicle        *struct {
			MileageKM     int `json:"mileage_km"`
			Year          int `json:"year"`
			AccidentCount int `json:"accident_count"`
		} `json:"vehicle"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid request body"))
		return
	}

	snap, err := h.demand.Snapshot(c.Request.Context())
	if err != nil {
		common.Fail(c, err)
		return
	}

	in := service.PriceInput{
		ReferenceValue: req.ReferenceValue,
		Condition:      req.Condition,
		Category:       req.Category,
		Region:         req.Region,
		Extra:          service.NoFactors{},
	}
	if req.Vehicle != nil {
		in.Extra = service.VehicleFactors{
			MileageKM:     req.Vehicle.MileageKM,
			Year:          req.Vehicle.Year,
			AccidentCount: req.Vehicle.AccidentCount,
		}
	}

	price, breakdown, err := h.engine.Price(in, *snap)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valor_price":      price,
		"snapshot_version": snap.Version,
		"breakdown":        breakdown,
	})
}

// Snapshot GET /pricing/snapshot
func (h *PricingHandler) Snapshot(c *gin.Context) {
	if _, err := common.CurrentUserID(c); err != nil {
		common.Fail(c, err)
		return
	}

	snap, err := h.demand.Snapshot(c.Request.Context())
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}
