package events

import (
	. "chargepilot/internal/core/domain"
	"chargepilot/pkg/keba"
)

const (
	SENSOR_ID_BRIDGE_STATE           = "bridge"
	SENSOR_ID_PV_POWER               = "pv_power"
	SENSOR_ID_BATTERY_POWER          = "battery_power"
	SENSOR_ID_BATTERY_SOC            = "battery_soc"
	SENSOR_ID_HOUSE_POWER            = "house_power"
	SENSOR_ID_GRID_POWER             = "grid_power"
	SENSOR_ID_WALLBOX_POWER          = "wallbox_power"
	SENSOR_ID_AUTARKY                = "autarky"
	SENSOR_ID_SELF_CONSUMPTION       = "self_consumption"
	SENSOR_ID_GRID_FREQUENCY         = "grid_frequency"
	SENSOR_ID_WALLBOX_STATE          = "wallbox_state"
	SENSOR_ID_WALLBOX_PLUG           = "wallbox_plug"
	SENSOR_ID_WALLBOX_SESSION_ENERGY = "wallbox_session_energy"
	SENSOR_ID_WALLBOX_ACTIVE_PHASES  = "wallbox_active_phases"
	SENSOR_ID_CHARGING_ACTIVE        = "charging_active"
	SENSOR_ID_CHARGING_STRATEGY      = "charging_strategy"
	SENSOR_ID_GRID_FREQUENCY_TIER    = "grid_frequency_tier"
	SENSOR_ID_E3DC_LINK              = "e3dc_link"
)

// LiveDataToUpdateEvents fans a live snapshot out into per-sensor update
// events for the MQTT bridge.
func LiveDataToUpdateEvents(d *LiveData) []any {
	var events []any

	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_PV_POWER},
		Value:                  float64(d.PVPowerWatt),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_BATTERY_POWER},
		Value:                  float64(d.BatteryPowerWatt),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_HOUSE_POWER},
		Value:                  float64(d.HousePowerWatt),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_POWER},
		Value:                  float64(d.GridPowerWatt),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_WALLBOX_POWER},
		Value:                  float64(d.WallboxPowerWatt),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_BATTERY_SOC},
		Value:                  float64(d.BatterySoCPercent),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_AUTARKY},
		Value:                  float64(d.AutarkyPercent),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_SELF_CONSUMPTION},
		Value:                  float64(d.SelfConsumptionPercent),
	})
	if d.FrequencyAvailable() {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_FREQUENCY},
			Value:                  d.GridFrequencyHz,
			Decimals:               2,
		})
	}

	return events
}

// WallboxStatusToUpdateEvents fans decoded wallbox telemetry out into
// per-sensor update events.
func WallboxStatusToUpdateEvents(s keba.WallboxStatus) []any {
	var events []any

	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_WALLBOX_STATE},
		Value:                  float64(s.State),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_WALLBOX_PLUG},
		Value:                  float64(s.Plug),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_WALLBOX_SESSION_ENERGY},
		Value:                  s.SessionEnergy / 10000, // 0.1 Wh on the wire -> kWh
		Decimals:               4,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_WALLBOX_ACTIVE_PHASES},
		Value:                  float64(s.ActivePhases()),
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_CHARGING_ACTIVE},
		Value:                  s.Charging(),
	})

	return events
}

// SessionEnergyUpdateEvent is the fast-path event emitted by the broadcast
// listener on energy-delta broadcasts, without a full status read.
func SessionEnergyUpdateEvent(tenthsWh float64) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_WALLBOX_SESSION_ENERGY},
		Value:                  tenthsWh / 10000,
		Decimals:               4,
	}
}

// StrategyUpdateEvent reflects the active charging strategy.
func StrategyUpdateEvent(s ChargingStrategy) TextSensorUpdateEvent {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_CHARGING_STRATEGY},
		Value:                  s.String(),
	}
}

// GridFrequencyTierUpdateEvent reflects the committed alarm tier.
func GridFrequencyTierUpdateEvent(tier int) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_GRID_FREQUENCY_TIER},
		Value:                  float64(tier),
	}
}

// LinkStateUpdateEvent reflects the battery system link health.
func LinkStateUpdateEvent(connected bool) BinarySensorUpdateEvent {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_E3DC_LINK},
		Value:                  connected,
	}
}
