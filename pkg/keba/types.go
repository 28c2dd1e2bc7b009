package keba

const (
	// default UDP port used by the wallbox for commands and broadcasts
	DefaultPort = 7090

	CommandReport1 = "report 1"
	CommandReport2 = "report 2"
	CommandReport3 = "report 3"

	AckSuccessKey = "TCH-OK"
	AckErrorKey   = "TCH-ERR"

	// per-phase currents above this value count as an active phase.
	// Voltage is not a reliable indicator because all phases are energized
	// regardless of load.
	activePhaseThresholdMilliAmps = 100
)

// Charging state codes as reported in the "State" field.
const (
	StateStarting    = 0
	StateNotReady    = 1
	StateReady       = 2
	StateCharging    = 3
	StateError       = 4
	StateInterrupted = 5
)

// Plug state codes as reported in the "Plug" field.
const (
	PlugUnplugged            = 0
	PlugStation              = 1
	PlugStationLocked        = 3
	PlugStationVehicle       = 5
	PlugStationVehicleLocked = 7
)

// Response is the decoded form of a wallbox reply. Exactly one concrete
// type is produced per datagram: Ack for "KEY :value" acknowledgements,
// Report for JSON or key=value bodies, Unknown for anything else.
type Response interface {
	responseKind() string
}

// Ack is a "KEY :value" acknowledgement line, e.g. "TCH-OK :done".
type Ack struct {
	Key   string
	Value string
}

func (Ack) responseKind() string { return "ack" }

// Success reports whether the acknowledgement is the success marker.
func (a Ack) Success() bool {
	return a.Key == AckSuccessKey
}

// Report is a decoded JSON object or key=value body. Field access goes
// through typed getters; the raw map never leaves the package boundary.
type Report struct {
	fields map[string]any
}

func (Report) responseKind() string { return "report" }

// ID returns the numeric report identifier, or 0 if absent.
func (r Report) ID() int {
	id, _ := r.Int("ID")
	return id
}

// Has reports whether the field is present.
func (r Report) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Len returns the number of decoded fields.
func (r Report) Len() int {
	return len(r.fields)
}

// Int returns the field as an integer. JSON numbers and numeric strings
// both coerce.
func (r Report) Int(key string) (int, bool) {
	f, ok := r.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Float returns the field as a float64.
func (r Report) Float(key string) (float64, bool) {
	v, ok := r.fields[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		f, err := parseNumber(n)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// String returns the field as a string.
func (r Report) String(key string) (string, bool) {
	v, ok := r.fields[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return "", false
	}
}

// Unknown is a reply that matched no known wire format.
type Unknown struct {
	Raw string
}

func (Unknown) responseKind() string { return "unknown" }

// WallboxStatus is the decoded device telemetry from report 2 + report 3.
type WallboxStatus struct {
	State                  int
	Plug                   int
	Input                  int
	EnableSys              int
	MaxCurrentMilliAmps    int
	SessionEnergy          float64 // 0.1 Wh units as sent on the wire
	TotalEnergy            float64 // 0.1 Wh units
	PowerMilliWatt         float64
	PhaseCurrentsMilliAmps [3]int
}

// ActivePhases derives the number of phases currently carrying charge
// current.
func (s WallboxStatus) ActivePhases() int {
	n := 0
	for _, c := range s.PhaseCurrentsMilliAmps {
		if c > activePhaseThresholdMilliAmps {
			n++
		}
	}
	return n
}

// Charging reports whether the wallbox is in the charging state.
func (s WallboxStatus) Charging() bool {
	return s.State == StateCharging
}

// PlugConnected reports whether a vehicle is plugged in.
func (s WallboxStatus) PlugConnected() bool {
	return s.Plug >= PlugStationVehicle
}

// StatusFromReports merges a report 2 and a report 3 into a WallboxStatus.
// Either report may be absent (zero Report); missing fields stay zero.
func StatusFromReports(r2, r3 Report) WallboxStatus {
	var s WallboxStatus
	s.State, _ = r2.Int("State")
	s.Plug, _ = r2.Int("Plug")
	s.Input, _ = r2.Int("Input")
	s.EnableSys, _ = r2.Int("Enable sys")
	s.MaxCurrentMilliAmps, _ = r2.Int("Max curr")
	s.SessionEnergy, _ = r3.Float("E pres")
	s.TotalEnergy, _ = r3.Float("E total")
	s.PowerMilliWatt, _ = r3.Float("P")
	for i, key := range [3]string{"I1", "I2", "I3"} {
		s.PhaseCurrentsMilliAmps[i], _ = r3.Int(key)
	}
	return s
}

// Broadcast is an unsolicited wallbox datagram. Only the fields present in
// the JSON body are set.
type Broadcast struct {
	State         *int
	Plug          *int
	Input         *int
	SessionEnergy *float64
}
