package service

import (
	"testing"
	"time"

	"chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func testConfig() domain.ChargingStrategyConfig {
	return domain.ChargingStrategyConfig{
		MinStartPowerWatt:        1400,
		StopThresholdWatt:        600,
		StartDelaySeconds:        120,
		StopDelaySeconds:         300,
		MinCurrentChangeAmpere:   1,
		MinChangeIntervalSeconds: 60,
		PhysicalPhaseSwitch:      3,
		InputX1Strategy:          domain.StrategyMaxWithoutBattery,
	}
}

func TestAvailableSurplus(t *testing.T) {
	d := &domain.LiveData{
		PVPowerWatt:      5000,
		HousePowerWatt:   3000, // includes 2000 W wallbox draw
		WallboxPowerWatt: 2000,
		BatteryPowerWatt: 800, // charging
	}

	// battery priority: battery keeps its charge power
	assert.EqualValues(t, 4000, AvailableSurplusWatt(d, domain.StrategySurplusBatteryPrio))

	// vehicle priority: power flowing into the battery counts as available
	assert.EqualValues(t, 4800, AvailableSurplusWatt(d, domain.StrategySurplusVehiclePrio))

	// a discharging battery adds nothing either way
	d.BatteryPowerWatt = -500
	assert.EqualValues(t, 4000, AvailableSurplusWatt(d, domain.StrategySurplusVehiclePrio))
}

func TestTargetCurrent(t *testing.T) {
	assert.Equal(t, 10, TargetCurrentAmpere(7000, 3))
	assert.Equal(t, 30, TargetCurrentAmpere(7000, 1))
	// clamped to wallbox limits
	assert.Equal(t, 6, TargetCurrentAmpere(100, 3))
	assert.Equal(t, 32, TargetCurrentAmpere(50000, 1))
}

func TestDebouncerStartDelay(t *testing.T) {
	cfg := testConfig()
	var deb StartStopDebouncer
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// crossing must persist for startDelaySeconds before acting
	assert.Equal(t, ActionNone, deb.Decide(now, 2000, cfg, false))
	assert.Equal(t, ActionNone, deb.Decide(now.Add(60*time.Second), 2000, cfg, false))
	assert.Equal(t, ActionStart, deb.Decide(now.Add(120*time.Second), 2000, cfg, false))
}

func TestDebouncerCloudResetsPending(t *testing.T) {
	cfg := testConfig()
	var deb StartStopDebouncer
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, ActionNone, deb.Decide(now, 2000, cfg, false))
	// a transient cloud drops the surplus and resets the pending crossing
	assert.Equal(t, ActionNone, deb.Decide(now.Add(60*time.Second), 500, cfg, false))
	assert.Equal(t, ActionNone, deb.Decide(now.Add(120*time.Second), 2000, cfg, false))
	assert.Equal(t, ActionNone, deb.Decide(now.Add(179*time.Second), 2000, cfg, false))
	assert.Equal(t, ActionStart, deb.Decide(now.Add(240*time.Second), 2000, cfg, false))
}

func TestDebouncerStopDelay(t *testing.T) {
	cfg := testConfig()
	var deb StartStopDebouncer
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, ActionNone, deb.Decide(now, 300, cfg, true))
	assert.Equal(t, ActionNone, deb.Decide(now.Add(299*time.Second), 300, cfg, true))
	assert.Equal(t, ActionStop, deb.Decide(now.Add(300*time.Second), 300, cfg, true))
}

func TestAllowCurrentChange(t *testing.T) {
	cfg := testConfig()
	cfg.MinCurrentChangeAmpere = 2
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// both conditions hold
	assert.True(t, AllowCurrentChange(8, 10, now.Add(-2*time.Minute), now, cfg))
	// delta too small
	assert.False(t, AllowCurrentChange(8, 9, now.Add(-2*time.Minute), now, cfg))
	// too soon after the last change
	assert.False(t, AllowCurrentChange(8, 10, now.Add(-30*time.Second), now, cfg))
	// first ever change is not interval-limited
	assert.True(t, AllowCurrentChange(0, 8, time.Time{}, now, cfg))
}
