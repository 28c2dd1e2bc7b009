package port

// Notifier is the push-notification collaborator. TriggerEvent is
// fire-and-forget: it must never block the caller and never let a delivery
// failure escape as a panic or error.
type Notifier interface {
	TriggerEvent(eventKey string, message string)
}

// Well-known notification event keys.
const (
	EventConnectionLost      = "e3dc_connection_lost"
	EventConnectionRestored  = "e3dc_connection_restored"
	EventGridFrequencyWarn   = "grid_frequency_warning"
	EventGridFrequencyCrit   = "grid_frequency_critical"
	EventEmergencyChargeDone = "emergency_charge_done"
)

// NopNotifier discards all events. Used where notifications are not
// configured.
type NopNotifier struct{}

func (NopNotifier) TriggerEvent(string, string) {}

var _ Notifier = NopNotifier{}
