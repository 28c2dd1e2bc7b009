package e3dc

import (
	"sync"
	"time"
)

// TestReader simulates the battery system behind the Reader interface.
// Tests mutate the exported fields to shape the next LiveData reading.
type TestReader struct {
	mu sync.Mutex

	PVPowerWatt      int32
	BatteryPowerWatt int32
	HousePowerWatt   int32
	WallboxPowerWatt int32
	BatterySoC       uint8
	GridFrequencyHz  float64

	DischargeLock bool
	GridCharge    bool

	// FailReads makes LiveData return ReadErr until cleared.
	FailReads bool
	ReadErr   error
	// FailWrites makes the Set* commands return WriteErr until cleared.
	FailWrites bool
	WriteErr   error

	Reads  int
	Writes int
}

func NewTestReader() *TestReader {
	return &TestReader{
		PVPowerWatt:     3000,
		HousePowerWatt:  500,
		BatterySoC:      75,
		GridFrequencyHz: 50.0,
	}
}

func (r *TestReader) Open() error  { return nil }
func (r *TestReader) Close() error { return nil }

func (r *TestReader) LiveData() (*LiveData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reads++
	if r.FailReads {
		return nil, r.ReadErr
	}
	// grid power balances the other flows, as the real meter does
	grid := r.HousePowerWatt + r.BatteryPowerWatt - r.PVPowerWatt
	return &LiveData{
		PVPowerWatt:            r.PVPowerWatt,
		BatteryPowerWatt:       r.BatteryPowerWatt,
		HousePowerWatt:         r.HousePowerWatt,
		GridPowerWatt:          grid,
		WallboxPowerWatt:       r.WallboxPowerWatt,
		AutarkyPercent:         80,
		SelfConsumptionPercent: 60,
		BatterySoCPercent:      r.BatterySoC,
		EMSStatus:              0,
		GridFrequencyHz:        r.GridFrequencyHz,
		Timestamp:              time.Now(),
	}, nil
}

func (r *TestReader) SetDischargeLock(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.FailWrites {
		return r.WriteErr
	}
	r.DischargeLock = enabled
	return nil
}

func (r *TestReader) SetGridCharge(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes++
	if r.FailWrites {
		return r.WriteErr
	}
	r.GridCharge = enabled
	return nil
}

// ensure interface compliance
var _ Reader = (*TestReader)(nil)
