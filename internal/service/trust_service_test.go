package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
)

func TestTrustRiskModel_TierBoundaries(t *testing.T) {
	m := NewTrustRiskModel(5000)

	cases := []struct {
		score int
		tier  string
	}{
		{100, models.RiskTierLow},
		{75, models.RiskTierLow},
		{74, models.RiskTierMedium},
		{50, models.RiskTierMedium},
		{49, models.RiskTierHigh},
		{25, models.RiskTierHigh},
		{24, models.RiskTierCritical},
		{0, models.RiskTierCritical},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.tier, m.RiskTier(tc.score).Tier, "score %d", tc.score)
	}
}

func TestTrustRiskModel_DepositScalesWithRisk(t *testing.T) {
	m := NewTrustRiskModel(5000)

	// High trust pays a small deposit, low trust a large one.
	assert.Equal(t, int64(50), m.DepositAmount(90, 1000))
	assert.Equal(t, int64(100), m.DepositAmount(60, 1000))
	assert.Equal(t, int64(200), m.DepositAmount(30, 1000))
	assert.Equal(t, int64(350), m.DepositAmount(20, 1000))
}

func TestTrustRiskModel_DisputeWindow(t *testing.T) {
	m := NewTrustRiskModel(5000)

	assert.Equal(t, 24*time.Hour, m.DisputeWindow(90))
	assert.Equal(t, 96*time.Hour, m.DisputeWindow(10))
	assert.Equal(t, 24, m.WindowHoursForTier(models.RiskTierLow))
	assert.Equal(t, 96, m.WindowHoursForTier("unknown"))
}

func TestTrustRiskModel_AutoComplete(t *testing.T) {
	m := NewTrustRiskModel(5000)

	trusted := &models.User{TrustScore: 90}
	assert.True(t, m.ProfileFor(trusted, 1000).CanAutoComplete)

	// Value above the ceiling disables auto-completion.
	assert.False(t, m.ProfileFor(trusted, 6000).CanAutoComplete)

	// Open fraud flags disable it regardless of score.
	flagged := &models.User{TrustScore: 90, OpenFraudFlags: 1}
	assert.False(t, m.ProfileFor(flagged, 1000).CanAutoComplete)

	// Lower tiers never auto-complete.
	medium := &models.User{TrustScore: 60}
	assert.False(t, m.ProfileFor(medium, 100).CanAutoComplete)
}

func TestTrustRiskModel_ClampsScore(t *testing.T) {
	m := NewTrustRiskModel(5000)

	assert.Equal(t, models.RiskTierLow, m.RiskTier(140).Tier)
	assert.Equal(t, models.RiskTierCritical, m.RiskTier(-10).Tier)
}

func TestHigherRisk_PicksWorseTier(t *testing.T) {
	m := NewTrustRiskModel(5000)

	low := m.RiskTier(90)
	critical := m.RiskTier(10)

	assert.Equal(t, critical, HigherRisk(low, critical))
	assert.Equal(t, critical, HigherRisk(critical, low))
	assert.Equal(t, low, HigherRisk(low, low))
}
