package port

import (
	"chargepilot/internal/core/domain"
)

// Storage is the external persistence collaborator. Reads are synchronous,
// saves may complete asynchronously, and nothing is transactional: callers
// must re-read before deciding an action and write back only the fields
// they changed.
type Storage interface {
	GetSettings() (domain.Settings, error)
	SaveSettings(domain.Settings) error

	GetControlState() (domain.ControlState, error)
	SaveControlState(domain.ControlState) error

	GetChargingContext() (domain.ChargingContext, error)
	SaveChargingContext(domain.ChargingContext) error

	GetPlugStatusTracking() (domain.PlugStatusTracking, error)
	SavePlugStatusTracking(domain.PlugStatusTracking) error
}
