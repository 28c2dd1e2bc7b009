package keba

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAckLine(t *testing.T) {
	resp := ParseResponse("TCH-OK :done\n")
	ack, ok := resp.(Ack)
	require.True(t, ok, "expected an Ack")
	assert.Equal(t, "TCH-OK", ack.Key)
	assert.Equal(t, "done", ack.Value)
	assert.True(t, ack.Success())

	resp = ParseResponse("TCH-ERR :invalid parameter")
	ack, ok = resp.(Ack)
	require.True(t, ok)
	assert.False(t, ack.Success())
}

func TestParseJSONReport(t *testing.T) {
	resp := ParseResponse(`{"ID": "2", "State": 3, "Plug": 7, "Max curr": 16000, "Serial": "18711111"}`)
	report, ok := resp.(Report)
	require.True(t, ok, "expected a Report")
	assert.Equal(t, 2, report.ID())

	state, ok := report.Int("State")
	require.True(t, ok)
	assert.Equal(t, 3, state)

	curr, ok := report.Float("Max curr")
	require.True(t, ok)
	assert.EqualValues(t, 16000, curr)

	serial, ok := report.String("Serial")
	require.True(t, ok)
	assert.Equal(t, "18711111", serial)

	_, ok = report.Int("missing")
	assert.False(t, ok)
}

func TestParseKeyValueLines(t *testing.T) {
	resp := ParseResponse("Product = Test-Wallbox\nCurr HW = 32000\nVoltage = 229.7\n")
	report, ok := resp.(Report)
	require.True(t, ok, "expected a Report")

	product, ok := report.String("Product")
	require.True(t, ok)
	assert.Equal(t, "Test-Wallbox", product)

	// numeric coercion
	curr, ok := report.Int("Curr HW")
	require.True(t, ok)
	assert.Equal(t, 32000, curr)

	voltage, ok := report.Float("Voltage")
	require.True(t, ok)
	assert.InDelta(t, 229.7, voltage, 0.001)
}

func TestParseEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t\n"} {
		resp := ParseResponse(input)
		report, ok := resp.(Report)
		require.True(t, ok, "empty input must decode to an empty report")
		assert.Equal(t, 0, report.Len())
	}
}

func TestParseUnknown(t *testing.T) {
	resp := ParseResponse("certainly not a known format")
	_, ok := resp.(Unknown)
	assert.True(t, ok)

	// truncated JSON is unknown, not an error
	resp = ParseResponse(`{"ID": "2", "State"`)
	_, ok = resp.(Unknown)
	assert.True(t, ok)
}

func TestParseBroadcast(t *testing.T) {
	bc, err := ParseBroadcast(`{"State": 3}`)
	require.NoError(t, err)
	require.NotNil(t, bc.State)
	assert.Equal(t, 3, *bc.State)
	assert.Nil(t, bc.Plug)
	assert.Nil(t, bc.Input)
	assert.Nil(t, bc.SessionEnergy)

	bc, err = ParseBroadcast(`{"E pres": 51234}`)
	require.NoError(t, err)
	require.NotNil(t, bc.SessionEnergy)
	assert.EqualValues(t, 51234, *bc.SessionEnergy)

	_, err = ParseBroadcast("garbage")
	assert.Error(t, err)
}

func TestStatusFromReports(t *testing.T) {
	r2 := ParseResponse(`{"ID": "2", "State": 3, "Plug": 7, "Input": 1, "Enable sys": 1, "Max curr": 16000}`).(Report)
	r3 := ParseResponse(`{"ID": "3", "I1": 15980, "I2": 15890, "I3": 90, "P": 7350000, "E pres": 66742, "E total": 12345678}`).(Report)

	status := StatusFromReports(r2, r3)
	assert.Equal(t, StateCharging, status.State)
	assert.Equal(t, PlugStationVehicleLocked, status.Plug)
	assert.Equal(t, 1, status.Input)
	assert.Equal(t, 16000, status.MaxCurrentMilliAmps)
	assert.True(t, status.Charging())
	assert.True(t, status.PlugConnected())
	// I3 is below the 100 mA threshold and must not count
	assert.Equal(t, 2, status.ActivePhases())
}
