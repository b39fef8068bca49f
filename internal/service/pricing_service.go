package service

import (
	"fmt"
	"math"
	"time"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
)

// PricingSnapshot carries every time-varying pricing input. It is taken
// once (demand service) and passed explicitly into Price, so the formula
// stays a pure function with no hidden time-dependence.
type PricingSnapshot struct {
	Version             string           `json:"version"`
	TakenAt             time.Time        `json:"taken_at"`
	InflationMultiplier float64          `json:"inflation_multiplier"`
	DemandScores        map[string]int   `json:"demand_scores"`
}

// PriceInput is one valuation request. ReferenceValue comes from the
// external valuation source and is the only non-platform input.
type PriceInput struct {
	ReferenceValue float64
	Condition      string
	Region         string
	Category       string
	Extra          ExtraFactors
}

// ExtraFactors is a category-specific multiplicative adjustment. Explicit
// typed variants instead of free-form metadata blobs. The reference time
// comes from the snapshot so the adjustment never reads the wall clock.
type ExtraFactors interface {
	Multiplier(at time.Time) float64
}

// NoFactors is the neutral adjustment for categories without extras.
type NoFactors struct{}

func (NoFactors) Multiplier(time.Time) float64 { return 1.0 }

// VehicleFactors adjusts vehicle listings by mileage, age and accident
// history bands.
type VehicleFactors struct {
	MileageKM     int
	Year          int
	AccidentCount int
}

func (v VehicleFactors) Multiplier(at time.Time) float64 {
	m := 1.0

	switch {
	case v.MileageKM > 200000:
		m *= 0.70
	case v.MileageKM > 100000:
		m *= 0.85
	case v.MileageKM > 50000:
		m *= 0.95
	}

	age := at.Year() - v.Year
	switch {
	case age > 15:
		m *= 0.75
	case age > 8:
		m *= 0.90
	}

	switch {
	case v.AccidentCount >= 3:
		m *= 0.70
	case v.AccidentCount >= 1:
		m *= 0.90
	}

	return m
}

// PriceBreakdown exposes every factor of a computed price for auditability.
type PriceBreakdown struct {
	ReferenceValue      float64 `json:"reference_value"`
	BaseRate            float64 `json:"base_rate"`
	InflationMultiplier float64 `json:"inflation_multiplier"`
	ConditionMultiplier float64 `json:"condition_multiplier"`
	DemandMultiplier    float64 `json:"demand_multiplier"`
	RegionMultiplier    float64 `json:"region_multiplier"`
	ExtraMultiplier     float64 `json:"extra_multiplier"`
	RawValor            float64 `json:"raw_valor"`
	ValorPrice          int64   `json:"valor_price"`
}

// conditionMultipliers is the fixed ordered condition table.
var conditionMultipliers = map[string]float64{
	models.ProductConditionNew:     1.00,
	models.ProductConditionLikeNew: 0.85,
	models.ProductConditionGood:    0.70,
	models.ProductConditionFair:    0.50,
	models.ProductConditionPoor:    0.30,
}

// ValorPricingEngine converts an external reference value into valor.
// Deterministic and side-effect free; everything time-varying arrives in
// the snapshot parameter.
type ValorPricingEngine struct {
	cfg     config.PricingConfig
	regions map[string]float64
}

// NewValorPricingEngine creates the engine with the static rate tables.
func NewValorPricingEngine(cfg config.PricingConfig) *ValorPricingEngine {
	return &ValorPricingEngine{
		cfg: cfg,
		regions: map[string]float64{
			"istanbul": 1.10,
			"ankara":   1.05,
			"izmir":    1.05,
			"bursa":    1.00,
			"antalya":  1.00,
		},
	}
}

// Price computes the valor price and its breakdown.
func (e *ValorPricingEngine) Price(in PriceInput, snap PricingSnapshot) (int64, *PriceBreakdown, error) {
	if in.ReferenceValue <= 0 {
		return 0, nil, fmt.Errorf("pricing: reference value must be positive")
	}

	condition, ok := conditionMultipliers[in.Condition]
	if !ok {
		return 0, nil, fmt.Errorf("pricing: unknown condition %q", in.Condition)
	}

	region, ok := e.regions[in.Region]
	if !ok {
		region = e.cfg.DefaultRegion
	}

	extra := 1.0
	if in.Extra != nil {
		extra = in.Extra.Multiplier(snap.TakenAt)
	}

	// Categories without analytics data price neutrally, not as low demand.
	score, ok := snap.DemandScores[in.Category]
	if !ok {
		score = 50
	}
	demand := DemandMultiplier(score)

	inflation := snap.InflationMultiplier
	if inflation <= 0 {
		inflation = 1.0
	}

	raw := in.ReferenceValue * e.cfg.BaseRate * inflation * condition * demand * region * extra
	valor := roundTen(raw)
	if valor < e.cfg.MinimumValor {
		valor = e.cfg.MinimumValor
	}

	return valor, &PriceBreakdown{
		ReferenceValue:      in.ReferenceValue,
		BaseRate:            e.cfg.BaseRate,
		InflationMultiplier: inflation,
		ConditionMultiplier: condition,
		DemandMultiplier:    demand,
		RegionMultiplier:    region,
		ExtraMultiplier:     extra,
		RawValor:            raw,
		ValorPrice:          valor,
	}, nil
}

// DemandMultiplier maps a category demand score (0-100) piecewise-linearly
// to [0.8, 1.3], with 50 mapping to the neutral 1.0.
func DemandMultiplier(score int) float64 {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if score <= 50 {
		return 0.8 + 0.2*float64(score)/50
	}
	return 1.0 + 0.3*float64(score-50)/50
}

// roundTen rounds to the nearest multiple of ten.
func roundTen(v float64) int64 {
	return int64(math.Round(v/10) * 10)
}
