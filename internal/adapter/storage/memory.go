package storage

import (
	"sync"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/port"
)

// MemoryStorage keeps all blobs in memory. Used by tests and demo mode.
type MemoryStorage struct {
	mu sync.Mutex

	settings domain.Settings
	control  domain.ControlState
	context  domain.ChargingContext
	plug     domain.PlugStatusTracking

	// FailControlSave makes SaveControlState fail with SaveErr until
	// cleared, for rollback tests.
	FailControlSave bool
	SaveErr         error

	ControlSaves int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		context: domain.ChargingContext{Strategy: domain.StrategyOff},
	}
}

func (s *MemoryStorage) GetSettings() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *MemoryStorage) SaveSettings(v domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = v
	return nil
}

func (s *MemoryStorage) GetControlState() (domain.ControlState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control, nil
}

func (s *MemoryStorage) SaveControlState(v domain.ControlState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailControlSave {
		return s.SaveErr
	}
	s.control = v
	s.ControlSaves++
	return nil
}

func (s *MemoryStorage) GetChargingContext() (domain.ChargingContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context, nil
}

func (s *MemoryStorage) SaveChargingContext(v domain.ChargingContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = v
	return nil
}

func (s *MemoryStorage) GetPlugStatusTracking() (domain.PlugStatusTracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plug, nil
}

func (s *MemoryStorage) SavePlugStatusTracking(v domain.PlugStatusTracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plug = v
	return nil
}

// ensure interface compliance
var _ port.Storage = (*MemoryStorage)(nil)
