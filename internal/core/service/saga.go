package service

import (
	"errors"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/port"
)

// ControlStateSaga is the optimistic-write-then-rollback pattern used by
// the night-charging scheduler and the broadcast listener: capture the
// prior persisted state, write the new state first so concurrent ticks see
// it immediately, then attempt the slow device side effect. If the side
// effect fails, the prior state is written back so no partial commit
// remains.
func ControlStateSaga(store port.Storage, mutate func(*domain.ControlState), effect func() error) error {
	prior, err := store.GetControlState()
	if err != nil {
		return err
	}
	next := prior
	mutate(&next)
	if next == prior {
		// nothing to change, still run the effect for idempotent retries
		return effect()
	}
	if err := store.SaveControlState(next); err != nil {
		return err
	}
	if err := effect(); err != nil {
		if rbErr := store.SaveControlState(prior); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}
