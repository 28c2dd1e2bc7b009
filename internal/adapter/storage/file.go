package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"chargepilot/internal/core/domain"
	"chargepilot/internal/core/port"
)

// FileStorage persists each state blob as a JSON file in a directory.
// Saves go through a temp file plus rename so a crash mid-write never
// leaves a truncated blob. There are no transactions; each blob has its
// own lock and callers follow read-modify-write.
type FileStorage struct {
	dir string

	settingsMu sync.Mutex
	controlMu  sync.Mutex
	contextMu  sync.Mutex
	plugMu     sync.Mutex
}

const (
	settingsFile = "settings.json"
	controlFile  = "controlstate.json"
	contextFile  = "chargingcontext.json"
	plugFile     = "plugstatus.json"
)

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) GetSettings() (domain.Settings, error) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	var v domain.Settings
	err := s.read(settingsFile, &v)
	return v, err
}

func (s *FileStorage) SaveSettings(v domain.Settings) error {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.write(settingsFile, v)
}

func (s *FileStorage) GetControlState() (domain.ControlState, error) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	var v domain.ControlState
	err := s.read(controlFile, &v)
	return v, err
}

func (s *FileStorage) SaveControlState(v domain.ControlState) error {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	return s.write(controlFile, v)
}

func (s *FileStorage) GetChargingContext() (domain.ChargingContext, error) {
	s.contextMu.Lock()
	defer s.contextMu.Unlock()
	v := domain.ChargingContext{Strategy: domain.StrategyOff}
	err := s.read(contextFile, &v)
	return v, err
}

func (s *FileStorage) SaveChargingContext(v domain.ChargingContext) error {
	s.contextMu.Lock()
	defer s.contextMu.Unlock()
	return s.write(contextFile, v)
}

func (s *FileStorage) GetPlugStatusTracking() (domain.PlugStatusTracking, error) {
	s.plugMu.Lock()
	defer s.plugMu.Unlock()
	var v domain.PlugStatusTracking
	err := s.read(plugFile, &v)
	return v, err
}

func (s *FileStorage) SavePlugStatusTracking(v domain.PlugStatusTracking) error {
	s.plugMu.Lock()
	defer s.plugMu.Unlock()
	return s.write(plugFile, v)
}

func (s *FileStorage) read(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		// a missing blob reads as the zero value
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *FileStorage) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ensure interface compliance
var _ port.Storage = (*FileStorage)(nil)
