package service

import (
	"errors"
	"testing"

	"chargepilot/internal/adapter/storage"
	"chargepilot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaCommitsOnSuccess(t *testing.T) {
	store := storage.NewMemoryStorage()

	err := ControlStateSaga(store, func(cs *domain.ControlState) {
		cs.NightCharging = true
		cs.BatteryLock = true
	}, func() error { return nil })
	require.NoError(t, err)

	cs, _ := store.GetControlState()
	assert.True(t, cs.NightCharging)
	assert.True(t, cs.BatteryLock)
}

func TestSagaRollsBackOnEffectFailure(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.SaveControlState(domain.ControlState{PVSurplus: true}))
	prior, _ := store.GetControlState()

	boom := errors.New("battery command failed")
	err := ControlStateSaga(store, func(cs *domain.ControlState) {
		cs.NightCharging = true
		cs.BatteryLock = true
		cs.GridCharging = true
	}, func() error { return boom })

	assert.ErrorIs(t, err, boom)
	after, _ := store.GetControlState()
	assert.Equal(t, prior, after, "persisted state must equal the state captured before the tick")
}

func TestSagaNoopMutationStillRunsEffect(t *testing.T) {
	store := storage.NewMemoryStorage()
	ran := false
	err := ControlStateSaga(store, func(*domain.ControlState) {}, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
