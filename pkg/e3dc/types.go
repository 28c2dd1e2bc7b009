package e3dc

import (
	"math"
	"time"
)

// LiveData is one snapshot of the home power ecosystem as read from the
// battery system's Modbus map. Power values follow the device convention:
// positive battery power = charging, positive grid power = import.
type LiveData struct {
	PVPowerWatt            int32
	BatteryPowerWatt       int32
	HousePowerWatt         int32
	GridPowerWatt          int32
	WallboxPowerWatt       int32
	AutarkyPercent         uint8
	SelfConsumptionPercent uint8
	BatterySoCPercent      uint8
	EMSStatus              uint16
	GridFrequencyHz        float64
	Timestamp              time.Time
}

// BalanceErrorWatt returns the absolute energy-balance residual
// |pv + grid - house - battery|. Device rounding keeps it within a couple
// of watts on a sane reading.
func (d LiveData) BalanceErrorWatt() float64 {
	return math.Abs(float64(d.PVPowerWatt) + float64(d.GridPowerWatt) -
		float64(d.HousePowerWatt) - float64(d.BatteryPowerWatt))
}

// FrequencyAvailable reports whether the grid frequency reading is usable.
// The device writes 0 while the sensor value is not available.
func (d LiveData) FrequencyAvailable() bool {
	return d.GridFrequencyHz != 0
}

// Reader is the battery system device link.
type Reader interface {
	Open() error
	Close() error
	LiveData() (*LiveData, error)
	SetDischargeLock(enabled bool) error
	SetGridCharge(enabled bool) error
}
