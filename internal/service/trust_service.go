package service

import (
	"time"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
)

// RiskProfile is the risk classification derived from a trust score.
type RiskProfile struct {
	Tier               string `json:"tier"`
	DepositPercent     int    `json:"deposit_percent"`
	DisputeWindowHours int    `json:"dispute_window_hours"`
	CanAutoComplete    bool   `json:"can_auto_complete"`
}

// tierRule is one row of the tier table, matched top-down by MinScore.
type tierRule struct {
	MinScore           int
	Tier               string
	DepositPercent     int
	DisputeWindowHours int
	AutoComplete       bool
}

// TrustRiskModel is a pure mapping from trust score to risk parameters.
// Trust scores are mutated elsewhere; this model only reads them.
type TrustRiskModel struct {
	tiers               []tierRule
	autoCompleteCeiling int64
}

// NewTrustRiskModel creates the model with the default tier table.
// Lower trust means a higher tier, a larger deposit and a longer window.
func NewTrustRiskModel(autoCompleteCeiling int64) *TrustRiskModel {
	return &TrustRiskModel{
		autoCompleteCeiling: autoCompleteCeiling,
		tiers: []tierRule{
			{MinScore: 75, Tier: models.RiskTierLow, DepositPercent: 5, DisputeWindowHours: 24, AutoComplete: true},
			{MinScore: 50, Tier: models.RiskTierMedium, DepositPercent: 10, DisputeWindowHours: 48, AutoComplete: false},
			{MinScore: 25, Tier: models.RiskTierHigh, DepositPercent: 20, DisputeWindowHours: 72, AutoComplete: false},
			{MinScore: 0, Tier: models.RiskTierCritical, DepositPercent: 35, DisputeWindowHours: 96, AutoComplete: false},
		},
	}
}

// RiskTier maps a trust score to its risk profile. The score is clamped
// to [0,100] first.
func (m *TrustRiskModel) RiskTier(trustScore int) RiskProfile {
	trustScore = models.ClampTrustScore(trustScore)
	for _, rule := range m.tiers {
		if trustScore >= rule.MinScore {
			return RiskProfile{
				Tier:               rule.Tier,
				DepositPercent:     rule.DepositPercent,
				DisputeWindowHours: rule.DisputeWindowHours,
				CanAutoComplete:    rule.AutoComplete,
			}
		}
	}
	// Unreachable with a table anchored at MinScore 0.
	last := m.tiers[len(m.tiers)-1]
	return RiskProfile{Tier: last.Tier, DepositPercent: last.DepositPercent, DisputeWindowHours: last.DisputeWindowHours}
}

// ProfileFor evaluates the full eligibility of a user for a swap of the
// given valor value: auto-completion additionally requires the value to be
// under the ceiling and no open fraud flags.
func (m *TrustRiskModel) ProfileFor(user *models.User, valorValue int64) RiskProfile {
	profile := m.RiskTier(user.TrustScore)
	if profile.CanAutoComplete {
		if valorValue > m.autoCompleteCeiling || user.OpenFraudFlags > 0 {
			profile.CanAutoComplete = false
		}
	}
	return profile
}

// DepositAmount sizes the required deposit for a trust score and item value.
func (m *TrustRiskModel) DepositAmount(trustScore int, valorValue int64) int64 {
	profile := m.RiskTier(trustScore)
	return valorValue * int64(profile.DepositPercent) / 100
}

// WindowHoursForTier looks up the dispute window of a tier by name.
// Unknown tiers get the longest window.
func (m *TrustRiskModel) WindowHoursForTier(tier string) int {
	for _, rule := range m.tiers {
		if rule.Tier == tier {
			return rule.DisputeWindowHours
		}
	}
	return m.tiers[len(m.tiers)-1].DisputeWindowHours
}

// DisputeWindow returns the dispute window as a duration.
func (m *TrustRiskModel) DisputeWindow(trustScore int) time.Duration {
	return time.Duration(m.RiskTier(trustScore).DisputeWindowHours) * time.Hour
}

// HigherRisk returns the riskier of two profiles; the swap inherits the
// worse tier of its two parties.
func HigherRisk(a, b RiskProfile) RiskProfile {
	if a.DepositPercent >= b.DepositPercent {
		return a
	}
	return b
}
