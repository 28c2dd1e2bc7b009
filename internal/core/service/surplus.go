package service

import (
	"math"
	"time"

	"chargepilot/internal/core/domain"
)

const phaseVoltage = 230.0

// AvailableSurplusWatt computes the PV power left over for the vehicle.
// House consumption excludes the wallbox itself (the wallbox draw is the
// thing being decided). Under vehicle priority the home battery may not
// take the surplus first, so power currently flowing into the battery is
// counted as available.
func AvailableSurplusWatt(d *domain.LiveData, strategy domain.ChargingStrategy) float64 {
	house := float64(d.HousePowerWatt) - float64(d.WallboxPowerWatt)
	surplus := float64(d.PVPowerWatt) - house
	if strategy == domain.StrategySurplusVehiclePrio && d.BatteryPowerWatt > 0 {
		surplus += float64(d.BatteryPowerWatt)
	}
	return surplus
}

// TargetCurrentAmpere converts a surplus power into a per-phase charge
// current, clamped to the wallbox limits.
func TargetCurrentAmpere(surplusWatt float64, phases int) int {
	if phases != 1 && phases != 3 {
		phases = 3
	}
	amps := int(math.Floor(surplusWatt / (phaseVoltage * float64(phases))))
	if amps < 6 {
		amps = 6
	}
	if amps > 32 {
		amps = 32
	}
	return amps
}

// StartStopAction is a debounced start/stop decision.
type StartStopAction int

const (
	ActionNone StartStopAction = iota
	ActionStart
	ActionStop
)

// StartStopDebouncer holds the pending threshold crossings of the surplus
// strategies. A crossing must persist for the configured delay before it
// becomes an action, which keeps transient PV clouds from toggling the
// wallbox.
type StartStopDebouncer struct {
	startPendingSince *time.Time
	stopPendingSince  *time.Time
}

// Decide feeds one surplus sample. isActive is whether charging currently
// runs under the strategy.
func (d *StartStopDebouncer) Decide(now time.Time, surplusWatt float64, cfg domain.ChargingStrategyConfig, isActive bool) StartStopAction {
	if !isActive {
		d.stopPendingSince = nil
		if surplusWatt >= float64(cfg.MinStartPowerWatt) {
			if d.startPendingSince == nil {
				d.startPendingSince = &now
			}
			if now.Sub(*d.startPendingSince) >= time.Duration(cfg.StartDelaySeconds)*time.Second {
				d.startPendingSince = nil
				return ActionStart
			}
		} else {
			d.startPendingSince = nil
		}
		return ActionNone
	}

	d.startPendingSince = nil
	if surplusWatt <= float64(cfg.StopThresholdWatt) {
		if d.stopPendingSince == nil {
			d.stopPendingSince = &now
		}
		if now.Sub(*d.stopPendingSince) >= time.Duration(cfg.StopDelaySeconds)*time.Second {
			d.stopPendingSince = nil
			return ActionStop
		}
	} else {
		d.stopPendingSince = nil
	}
	return ActionNone
}

// Reset drops any pending crossing, used when the strategy changes.
func (d *StartStopDebouncer) Reset() {
	d.startPendingSince = nil
	d.stopPendingSince = nil
}

// AllowCurrentChange rate-limits current adjustments: the new target must
// differ from the last applied value by at least MinCurrentChangeAmpere
// AND at least MinChangeIntervalSeconds must have elapsed since the last
// change. Both must hold.
func AllowCurrentChange(lastAmpere, newAmpere int, lastChange time.Time, now time.Time, cfg domain.ChargingStrategyConfig) bool {
	if absInt(newAmpere-lastAmpere) < cfg.MinCurrentChangeAmpere {
		return false
	}
	if !lastChange.IsZero() && now.Sub(lastChange) < time.Duration(cfg.MinChangeIntervalSeconds)*time.Second {
		return false
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
