package domain

import (
	"fmt"
	"time"

	"chargepilot/pkg/e3dc"
)

// ChargingStrategy is the user-selected charging policy. Exactly one is
// active at a time, stored in Settings.
type ChargingStrategy string

const (
	StrategyOff                ChargingStrategy = "off"
	StrategySurplusBatteryPrio ChargingStrategy = "surplus_battery_prio"
	StrategySurplusVehiclePrio ChargingStrategy = "surplus_vehicle_prio"
	StrategyMaxWithBattery     ChargingStrategy = "max_with_battery"
	StrategyMaxWithoutBattery  ChargingStrategy = "max_without_battery"
)

// Valid reports whether s is one of the known strategies.
func (s ChargingStrategy) Valid() bool {
	switch s {
	case StrategyOff, StrategySurplusBatteryPrio, StrategySurplusVehiclePrio,
		StrategyMaxWithBattery, StrategyMaxWithoutBattery:
		return true
	}
	return false
}

// IsSurplus reports whether the strategy charges from PV surplus.
func (s ChargingStrategy) IsSurplus() bool {
	return s == StrategySurplusBatteryPrio || s == StrategySurplusVehiclePrio
}

// IsMax reports whether the strategy charges at full power.
func (s ChargingStrategy) IsMax() bool {
	return s == StrategyMaxWithBattery || s == StrategyMaxWithoutBattery
}

// NeedsDischargeLock reports whether the strategy reserves the home battery
// by locking its discharge while the vehicle charges.
func (s ChargingStrategy) NeedsDischargeLock() bool {
	return s == StrategySurplusVehiclePrio || s == StrategyMaxWithoutBattery
}

// ChargingStrategyConfig carries the numeric policy bounds. Every field
// must be set before a strategy tick runs; an incomplete config skips the
// tick.
type ChargingStrategyConfig struct {
	MinStartPowerWatt        int              `json:"minStartPowerWatt" mapstructure:"min_start_power_watt"`
	StopThresholdWatt        int              `json:"stopThresholdWatt" mapstructure:"stop_threshold_watt"`
	StartDelaySeconds        int              `json:"startDelaySeconds" mapstructure:"start_delay_seconds"`
	StopDelaySeconds         int              `json:"stopDelaySeconds" mapstructure:"stop_delay_seconds"`
	MinCurrentChangeAmpere   int              `json:"minCurrentChangeAmpere" mapstructure:"min_current_change_ampere"`
	MinChangeIntervalSeconds int              `json:"minChangeIntervalSeconds" mapstructure:"min_change_interval_seconds"`
	PhysicalPhaseSwitch      int              `json:"physicalPhaseSwitch" mapstructure:"physical_phase_switch"`
	InputX1Strategy          ChargingStrategy `json:"inputX1Strategy" mapstructure:"input_x1_strategy"`
}

// Complete reports whether all fields are present. PhysicalPhaseSwitch must
// be 1 or 3.
func (c ChargingStrategyConfig) Complete() bool {
	return c.MinStartPowerWatt > 0 &&
		c.StopThresholdWatt > 0 &&
		c.StartDelaySeconds > 0 &&
		c.StopDelaySeconds > 0 &&
		c.MinCurrentChangeAmpere > 0 &&
		c.MinChangeIntervalSeconds > 0 &&
		(c.PhysicalPhaseSwitch == 1 || c.PhysicalPhaseSwitch == 3) &&
		c.InputX1Strategy.Valid()
}

// ControlState is the set of currently-active home-automation toggles,
// persisted as a shared blob. NightCharging is writable only by the
// night-charging scheduler.
type ControlState struct {
	PVSurplus     bool `json:"pvSurplus"`
	NightCharging bool `json:"nightCharging"`
	BatteryLock   bool `json:"batteryLock"`
	GridCharging  bool `json:"gridCharging"`
}

// ChargingContext is the runtime state of the strategy controller. Created
// on first activation, mutated every tick, only ever reset to off.
type ChargingContext struct {
	Strategy        ChargingStrategy `json:"strategy"`
	IsActive        bool             `json:"isActive"`
	CurrentAmpere   int              `json:"currentAmpere"`
	TargetAmpere    int              `json:"targetAmpere"`
	CurrentPhases   int              `json:"currentPhases"`
	AdjustmentCount int              `json:"adjustmentCount"`
	LastChange      time.Time        `json:"lastChange"`
}

// Reset returns the context to the off state without discarding counters.
func (c *ChargingContext) Reset() {
	c.Strategy = StrategyOff
	c.IsActive = false
	c.TargetAmpere = 0
}

// PlugStatusTracking remembers the last observed plug code and when it
// changed. The first observation seeds the baseline without recording a
// change.
type PlugStatusTracking struct {
	LastPlugStatus *int       `json:"lastPlugStatus,omitempty"`
	LastPlugChange *time.Time `json:"lastPlugChange,omitempty"`
}

// Observe records a plug code. It returns true when the code differs from
// the tracked baseline (a real change, not the seeding observation).
func (p *PlugStatusTracking) Observe(plug int, now time.Time) bool {
	if p.LastPlugStatus == nil {
		p.LastPlugStatus = &plug
		return false
	}
	if *p.LastPlugStatus == plug {
		return false
	}
	p.LastPlugStatus = &plug
	p.LastPlugChange = &now
	return true
}

// NightChargingSchedule is the configured charging window. Overnight
// windows (end before start) wrap past midnight.
type NightChargingSchedule struct {
	Enabled      bool   `json:"enabled"`
	StartTime    string `json:"startTime"` // "HH:MM"
	EndTime      string `json:"endTime"`   // "HH:MM"
	GridCharging bool   `json:"gridCharging"`
}

// GridFrequencyState is the monitor's committed view of the grid.
type GridFrequencyState struct {
	Tier           int       `json:"tier"` // 0 unknown, 1 nominal, 2 warning, 3 critical
	Frequency      float64   `json:"frequency"`
	Deviation      float64   `json:"deviation"`
	ChargingActive bool      `json:"chargingActive"`
	LastUpdate     time.Time `json:"lastUpdate"`
}

// Settings is the persisted user configuration blob.
type Settings struct {
	WallboxHost    string                 `json:"wallboxHost"`
	Strategy       ChargingStrategy       `json:"strategy"`
	StrategyConfig ChargingStrategyConfig `json:"strategyConfig"`
	NightCharging  NightChargingSchedule  `json:"nightCharging"`
	ProwlAPIKey    string                 `json:"prowlApiKey,omitempty"`
}

// LiveData aliases the device snapshot so core packages do not import the
// device package everywhere.
type LiveData = e3dc.LiveData

func (s ChargingStrategy) String() string {
	return string(s)
}

// ParseChargingStrategy validates a strategy received from the outside.
func ParseChargingStrategy(v string) (ChargingStrategy, error) {
	s := ChargingStrategy(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown charging strategy %q", v)
	}
	return s, nil
}
