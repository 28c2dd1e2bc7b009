package e3dc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Register layout of the device's "simple" Modbus profile. All registers
// are holding registers at a fixed base offset. 32-bit power values are
// split across two registers with the low word first.
const (
	regBase = 40000

	regMagic = regBase + 0 // identification word, always 0xE3DC

	regPVPower      = regBase + 67 // int32, 2 regs
	regBatteryPower = regBase + 69 // int32, 2 regs, >0 = charging
	regHousePower   = regBase + 71 // int32, 2 regs
	regGridPower    = regBase + 73 // int32, 2 regs, >0 = import
	regWallboxPower = regBase + 77 // int32, 2 regs

	regAutarky       = regBase + 81 // autarky high byte, self-consumption low byte
	regBatterySoC    = regBase + 82 // uint16, percent
	regEMSStatus     = regBase + 83 // uint16 status word
	regGridFrequency = regBase + 84 // uint16, round(freq * 100)

	regDischargeLock = regBase + 85 // uint16, 1 = battery discharge locked
	regGridCharge    = regBase + 86 // uint16, 1 = charge from grid allowed

	magicWord = 0xE3DC
)

type ModbusReader struct {
	client *modbus.ModbusClient
	logger *zap.Logger
}

// CreateModbusReader builds a Modbus TCP reader for the battery system at
// host:port with the given unit id.
func CreateModbusReader(host string, port uint, unitID uint8, timeout time.Duration, logger *zap.Logger) (*ModbusReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := client.SetUnitId(unitID); err != nil {
		return nil, err
	}
	// power values are little-endian word order on this device
	if err := client.SetEncoding(modbus.BIG_ENDIAN, modbus.LOW_WORD_FIRST); err != nil {
		return nil, err
	}
	return &ModbusReader{
		client: client,
		logger: logger.With(zap.String("device", host)),
	}, nil
}

func (r *ModbusReader) Open() error {
	if err := r.client.Open(); err != nil {
		return err
	}
	return r.validate()
}

func (r *ModbusReader) Close() error {
	return r.client.Close()
}

func (r *ModbusReader) validate() error {
	magic, err := r.client.ReadRegister(regMagic, modbus.HOLDING_REGISTER)
	if err != nil {
		return err
	}
	if magic != magicWord {
		return errors.New("e3dc: identification register mismatch, not an E3DC device")
	}
	return nil
}

// LiveData reads the full live snapshot in a small number of bulk reads.
func (r *ModbusReader) LiveData() (*LiveData, error) {
	pv, err := r.readPower(regPVPower)
	if err != nil {
		return nil, err
	}
	battery, err := r.readPower(regBatteryPower)
	if err != nil {
		return nil, err
	}
	house, err := r.readPower(regHousePower)
	if err != nil {
		return nil, err
	}
	grid, err := r.readPower(regGridPower)
	if err != nil {
		return nil, err
	}
	wallbox, err := r.readPower(regWallboxPower)
	if err != nil {
		return nil, err
	}
	words, err := r.client.ReadRegisters(regAutarky, 4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	return &LiveData{
		PVPowerWatt:            pv,
		BatteryPowerWatt:       battery,
		HousePowerWatt:         house,
		GridPowerWatt:          grid,
		WallboxPowerWatt:       wallbox,
		AutarkyPercent:         uint8(words[0] >> 8),
		SelfConsumptionPercent: uint8(words[0] & 0xff),
		BatterySoCPercent:      uint8(words[1]),
		EMSStatus:              words[2],
		GridFrequencyHz:        decodeFrequency(words[3]),
		Timestamp:              time.Now(),
	}, nil
}

// SetDischargeLock engages or releases the battery discharge lock.
func (r *ModbusReader) SetDischargeLock(enabled bool) error {
	return r.client.WriteRegister(regDischargeLock, flagWord(enabled))
}

// SetGridCharge allows or forbids charging the battery from the grid.
func (r *ModbusReader) SetGridCharge(enabled bool) error {
	return r.client.WriteRegister(regGridCharge, flagWord(enabled))
}

func (r *ModbusReader) readPower(addr uint16) (int32, error) {
	v, err := r.client.ReadUint32(addr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func decodeFrequency(word uint16) float64 {
	// the device stores round(freq * 100); 0 means sensor unavailable
	return math.Round(float64(word)) / 100
}

func flagWord(enabled bool) uint16 {
	if enabled {
		return 1
	}
	return 0
}

// ensure interface compliance
var _ Reader = (*ModbusReader)(nil)
