package storage

import (
	"testing"
	"time"

	"chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestFileStorageRoundTrip(t *testing.T) {
	store, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Error(err)
		return
	}

	// missing blobs read as zero values
	settings, err := store.GetSettings()
	assert.NoError(t, err)
	assert.Equal(t, domain.Settings{}, settings)

	chargeCtx, err := store.GetChargingContext()
	assert.NoError(t, err)
	assert.Equal(t, domain.StrategyOff, chargeCtx.Strategy)

	settings.Strategy = domain.StrategySurplusVehiclePrio
	settings.NightCharging = domain.NightChargingSchedule{
		Enabled:   true,
		StartTime: "22:00",
		EndTime:   "06:00",
	}
	assert.NoError(t, store.SaveSettings(settings))

	loaded, err := store.GetSettings()
	assert.NoError(t, err)
	assert.Equal(t, settings, loaded)

	control := domain.ControlState{NightCharging: true, BatteryLock: true}
	assert.NoError(t, store.SaveControlState(control))
	loadedControl, err := store.GetControlState()
	assert.NoError(t, err)
	assert.Equal(t, control, loadedControl)
}

func TestFileStoragePlugTracking(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStorage(dir)
	if err != nil {
		t.Error(err)
		return
	}

	var tracking domain.PlugStatusTracking
	assert.False(t, tracking.Observe(7, time.Now()), "first observation seeds the baseline")
	assert.NoError(t, store.SavePlugStatusTracking(tracking))

	// survives a reopen
	store2, err := NewFileStorage(dir)
	if err != nil {
		t.Error(err)
		return
	}
	loaded, err := store2.GetPlugStatusTracking()
	assert.NoError(t, err)
	assert.NotNil(t, loaded.LastPlugStatus)
	assert.Equal(t, 7, *loaded.LastPlugStatus)
	assert.Nil(t, loaded.LastPlugChange)

	assert.True(t, loaded.Observe(5, time.Now()))
	assert.NotNil(t, loaded.LastPlugChange)
}
