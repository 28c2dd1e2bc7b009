package keba

import "fmt"

// Current bounds accepted by the wallbox, in milliamps. Values outside the
// range are clamped by the device itself; we clamp before sending to avoid
// a pointless round-trip ending in TCH-ERR.
const (
	MinCurrentMilliAmps = 6000
	MaxCurrentMilliAmps = 32000
)

func EnableCommand(on bool) string {
	if on {
		return "ena 1"
	}
	return "ena 0"
}

func CurrentCommand(milliAmps int) string {
	if milliAmps < MinCurrentMilliAmps {
		milliAmps = MinCurrentMilliAmps
	}
	if milliAmps > MaxCurrentMilliAmps {
		milliAmps = MaxCurrentMilliAmps
	}
	return fmt.Sprintf("curr %d", milliAmps)
}
