package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var thresholds = FrequencyThresholds{Tier2Hz: 0.1, Tier3Hz: 0.2}

func TestClassifyFrequency(t *testing.T) {
	cases := []struct {
		freq float64
		want int
	}{
		{0, TierUnknown},
		{50.00, TierNominal},
		{50.05, TierNominal},
		{49.95, TierNominal},
		{50.10, TierNominal}, // exactly at threshold stays nominal
		{50.15, TierWarning},
		{49.85, TierWarning},
		{50.25, TierCritical},
		{49.70, TierCritical},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyFrequency(c.freq, thresholds), "freq %.2f", c.freq)
	}
}

func TestTierTrackerHysteresis(t *testing.T) {
	tr := NewTierTracker()

	// first nominal reading is not committed yet, the second is
	tier, changed := tr.Update(TierNominal)
	assert.Equal(t, TierUnknown, tier)
	assert.False(t, changed)
	tier, changed = tr.Update(TierNominal)
	assert.Equal(t, TierNominal, tier)
	assert.True(t, changed)

	// a single noisy critical sample cannot change tier
	tier, changed = tr.Update(TierCritical)
	assert.Equal(t, TierNominal, tier)
	assert.False(t, changed)
	tier, changed = tr.Update(TierNominal)
	assert.Equal(t, TierNominal, tier)
	assert.False(t, changed)

	// two consecutive warning samples commit the new tier exactly once
	_, changed = tr.Update(TierWarning)
	assert.False(t, changed)
	tier, changed = tr.Update(TierWarning)
	assert.Equal(t, TierWarning, tier)
	assert.True(t, changed)
	_, changed = tr.Update(TierWarning)
	assert.False(t, changed)
}

func TestTierTrackerAlternatingNoise(t *testing.T) {
	tr := NewTierTracker()
	tr.Update(TierNominal)
	tr.Update(TierNominal)

	// alternating samples never agree twice in a row, so nothing commits
	for i := 0; i < 10; i++ {
		var tier int
		if i%2 == 0 {
			tier = TierWarning
		} else {
			tier = TierCritical
		}
		committed, changed := tr.Update(tier)
		assert.Equal(t, TierNominal, committed)
		assert.False(t, changed)
	}
}
