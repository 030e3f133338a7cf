// Package toggles persists the boolean feature flags consulted by the
// probability mapper and snapshotter.
package toggles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// StationCalibration gates the per-station bias correction in the
// probability mapper.
const StationCalibration = "station_calibration"

var defaults = map[string]bool{
	StationCalibration: false,
}

// Toggles is the persisted flag set. Unknown keys in the file are
// ignored; there is no schema migration.
type Toggles struct {
	path string

	mu    sync.RWMutex
	flags map[string]bool
}

// Load reads the toggle file, writing defaults on first run.
func Load(path string) (*Toggles, error) {
	t := &Toggles{path: path, flags: make(map[string]bool)}
	for k, v := range defaults {
		t.flags[k] = v
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := t.save(); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("feature toggles initialized with defaults")
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read toggles: %w", err)
	}

	var onDisk map[string]bool
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("parse toggles %s: %w", path, err)
	}
	for k := range defaults {
		if v, ok := onDisk[k]; ok {
			t.flags[k] = v
		}
	}
	return t, nil
}

// Enabled reports whether a known flag is on.
func (t *Toggles) Enabled(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.flags[name]
}

// Set updates a flag and saves immediately.
func (t *Toggles) Set(name string, value bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, known := defaults[name]; !known {
		return fmt.Errorf("unknown feature toggle %q", name)
	}
	t.flags[name] = value
	return t.save()
}

func (t *Toggles) save() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create toggles dir: %w", err)
	}
	data, err := json.MarshalIndent(t.flags, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal toggles: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("write toggles: %w", err)
	}
	return nil
}
