package service

import "math"

// NominalGridFrequencyHz is the European grid nominal.
const NominalGridFrequencyHz = 50.0

// Grid-frequency alarm tiers.
const (
	TierUnknown  = 0
	TierNominal  = 1
	TierWarning  = 2
	TierCritical = 3
)

// FrequencyThresholds are the absolute deviations from nominal that raise
// the warning and critical tiers. Tier3 must be greater than Tier2.
type FrequencyThresholds struct {
	Tier2Hz float64
	Tier3Hz float64
}

// ClassifyFrequency maps a reading to an alarm tier. A zero reading means
// the sensor value is unavailable and classifies as unknown. Larger
// deviation means higher tier.
func ClassifyFrequency(freq float64, t FrequencyThresholds) int {
	if freq == 0 {
		return TierUnknown
	}
	deviation := math.Abs(freq - NominalGridFrequencyHz)
	switch {
	case deviation > t.Tier3Hz:
		return TierCritical
	case deviation > t.Tier2Hz:
		return TierWarning
	default:
		return TierNominal
	}
}

// tierConfirmCount is how many consecutive readings must agree before a
// new tier is committed.
const tierConfirmCount = 2

// TierTracker debounces tier transitions: a candidate tier must be seen on
// tierConfirmCount consecutive readings before it becomes current, so one
// noisy sample cannot flip the alarm state.
type TierTracker struct {
	current   int
	candidate int
	seen      int
}

// NewTierTracker starts at the unknown tier.
func NewTierTracker() *TierTracker {
	return &TierTracker{current: TierUnknown}
}

// Current returns the committed tier.
func (t *TierTracker) Current() int {
	return t.current
}

// Update feeds one classified reading. It returns the committed tier and
// whether this call changed it.
func (t *TierTracker) Update(tier int) (int, bool) {
	if tier == t.current {
		t.candidate = tier
		t.seen = 0
		return t.current, false
	}
	if tier != t.candidate {
		t.candidate = tier
		t.seen = 1
	} else {
		t.seen++
	}
	if t.seen >= tierConfirmCount {
		t.current = tier
		t.seen = 0
		return t.current, true
	}
	return t.current, false
}
