// Package persistence saves the room store to a single dump file and restores
// it at startup.
//
// A dump is written to a temporary file in the data directory, fsynced, and
// renamed over the canonical path, followed by an fsync of the directory. A
// crash at any point before the rename leaves the previous dump untouched;
// after it the new dump is complete.
package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/ASHISH26940/globby/internal/metrics"
	"github.com/ASHISH26940/globby/internal/store"
)

const (
	// BaseName is the canonical dump file name without its codec extension.
	BaseName = "room_data"

	tempPrefix = "tmp."
)

// rename is swapped out by tests to simulate a crash before the rename.
var rename = os.Rename

// Manager owns the dump file in one data directory.
type Manager struct {
	dir   string
	codec Codec
	log   hclog.Logger
}

// NewManager returns a Manager for dir. The directory must already exist.
func NewManager(dir string, codec Codec, logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Manager{dir: dir, codec: codec, log: logger}
}

// Path returns the canonical dump path.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, BaseName+m.codec.Extension())
}

// Load reads the dump. A missing dump is an empty snapshot, not an error;
// anything else that prevents reading it is returned.
func (m *Manager) Load() (store.Snapshot, error) {
	m.removeStaleTemps()

	path := m.Path()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.log.Info("no dump file, starting empty", "path", path)
			return store.Snapshot{}, nil
		}
		return nil, fmt.Errorf("could not open dump file %s: %w", path, err)
	}

	snap, err := m.codec.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading dump file %s: %w", path, err)
	}
	for key, rec := range snap {
		if rec.Version == 0 {
			return nil, fmt.Errorf("error reading dump file %s: room %q has version 0", path, key)
		}
	}
	m.log.Info("loaded dump", "path", path, "format", m.codec.Name(), "rooms", len(snap))
	return snap, nil
}

// Dump atomically replaces the dump file with snap.
func (m *Manager) Dump(snap store.Snapshot) error {
	defer metrics.MeasureSince(metrics.KeyDumpDuration, time.Now())

	path := m.Path()
	tempPath := filepath.Join(m.dir, tempPrefix+strings.ReplaceAll(uuid.NewString(), "-", ""))
	m.log.Info("dumping state", "path", path, "format", m.codec.Name(), "rooms", len(snap))

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := m.codec.WriteFile(tempPath, snap); err != nil {
		return fmt.Errorf("error writing to data dump: %w", err)
	}
	if err := syncFile(tempPath); err != nil {
		return fmt.Errorf("error syncing data dump: %w", err)
	}
	if err := rename(tempPath, path); err != nil {
		return fmt.Errorf("error renaming data dump into place: %w", err)
	}
	success = true

	// The rename is only durable once the directory entry is on disk.
	if err := syncFile(m.dir); err != nil {
		m.log.Warn("could not sync data directory", "dir", m.dir, "error", err)
	}
	return nil
}

// removeStaleTemps deletes temporary files left behind by a dump that never
// reached its rename.
func (m *Manager) removeStaleTemps() {
	matches, err := filepath.Glob(filepath.Join(m.dir, tempPrefix+"*"))
	if err != nil {
		return
	}
	for _, stale := range matches {
		if err := os.Remove(stale); err != nil {
			m.log.Warn("could not remove stale dump temp file", "path", stale, "error", err)
			continue
		}
		m.log.Warn("removed stale dump temp file", "path", stale)
	}
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
