package keba

import (
	"fmt"
	"strings"
	"sync"
)

// TestWallboxClient simulates a wallbox behind the Client interface. It
// keeps enable/current state, answers reports from it, and lets tests push
// broadcasts through the registered handler.
type TestWallboxClient struct {
	mu          sync.Mutex
	broadcastFn func(Broadcast)

	Enabled          bool
	CurrentMilliAmps int
	State            int
	Plug             int
	Input            int
	SessionEnergy    float64

	// Commands records every command text received, in order.
	Commands []string
	// FailNext makes the next Send return a timeout error.
	FailNext bool
	// FailAll makes every Send return a timeout error until cleared.
	FailAll bool
	// FailPrefix makes Sends whose command starts with the prefix time out.
	FailPrefix string
}

func NewTestWallboxClient() *TestWallboxClient {
	return &TestWallboxClient{
		State:            StateReady,
		Plug:             PlugStationVehicleLocked,
		CurrentMilliAmps: MinCurrentMilliAmps,
	}
}

func (c *TestWallboxClient) Open() error  { return nil }
func (c *TestWallboxClient) Close() error { return nil }

func (c *TestWallboxClient) SetBroadcastHandler(fn func(Broadcast)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastFn = fn
}

func (c *TestWallboxClient) Send(command string) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Commands = append(c.Commands, command)
	if c.FailAll || c.FailNext || (c.FailPrefix != "" && strings.HasPrefix(command, c.FailPrefix)) {
		c.FailNext = false
		return nil, &TimeoutError{Command: command, Attempts: 3}
	}
	switch {
	case command == CommandReport1:
		return ParseResponse(`{"ID": "1", "Product": "Test-Wallbox", "Serial": "000000", "Firmware": "0.0"}`), nil
	case command == CommandReport2:
		return ParseResponse(fmt.Sprintf(
			`{"ID": "2", "State": %d, "Plug": %d, "Input": %d, "Enable sys": %d, "Max curr": %d}`,
			c.State, c.Plug, c.Input, boolToInt(c.Enabled), c.CurrentMilliAmps)), nil
	case command == CommandReport3:
		power := 0.0
		i := 0
		if c.Enabled && c.State == StateCharging {
			i = c.CurrentMilliAmps
			power = float64(3 * 230 * c.CurrentMilliAmps) // mW at 3x230V
		}
		return ParseResponse(fmt.Sprintf(
			`{"ID": "3", "I1": %d, "I2": %d, "I3": %d, "P": %f, "E pres": %f, "E total": 1234567}`,
			i, i, i, power, c.SessionEnergy)), nil
	case strings.HasPrefix(command, "ena "):
		c.Enabled = strings.TrimPrefix(command, "ena ") == "1"
		return Ack{Key: AckSuccessKey, Value: "done"}, nil
	case strings.HasPrefix(command, "curr "):
		fmt.Sscanf(command, "curr %d", &c.CurrentMilliAmps)
		return Ack{Key: AckSuccessKey, Value: "done"}, nil
	}
	return Unknown{Raw: command}, nil
}

func (c *TestWallboxClient) SendFireAndForget(command string) error {
	_, err := c.Send(command)
	if IsTimeout(err) {
		return nil
	}
	return err
}

// PushBroadcast delivers an unsolicited message as the device would.
func (c *TestWallboxClient) PushBroadcast(bc Broadcast) {
	c.mu.Lock()
	fn := c.broadcastFn
	c.mu.Unlock()
	if fn != nil {
		fn(bc)
	}
}

// SentCommands returns a copy of the recorded command log.
func (c *TestWallboxClient) SentCommands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Commands))
	copy(out, c.Commands)
	return out
}

// ResetCommands clears the recorded command log.
func (c *TestWallboxClient) ResetCommands() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Commands = nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ensure interface compliance
var _ Client = (*TestWallboxClient)(nil)
var _ Client = (*UDPClient)(nil)
