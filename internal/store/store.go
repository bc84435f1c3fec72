// Package store contains the versioned room store.
// It is designed to be thread-safe for concurrent access: one RWMutex guards
// the room map, and readers wait for changes outside of it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ASHISH26940/globby/internal/metrics"
	"github.com/ASHISH26940/globby/internal/notify"
	"github.com/ASHISH26940/globby/internal/words"
)

// ErrNotFound is returned by Read for a room key the store has never created.
var ErrNotFound = errors.New("room not found")

// namePartsStart is the number of words in a freshly drawn room key.
const namePartsStart = 2

// KeySpaceFull reports whether used keys out of size leave too few free ones
// for random draws. Create moves on to longer keys once three quarters of a
// key length are taken, so a draw succeeds with probability at least 1/4.
func KeySpaceFull(used, size int) bool {
	return used*4 >= size*3
}

// Record is the externally visible state of a room.
type Record struct {
	Version uint64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Snapshot is the whole store as plain values, keyed by room.
type Snapshot map[string]Record

// Namer draws candidate room keys.
type Namer interface {
	Name(parts int) string
	// Size is the number of distinct keys Name(parts) can return.
	Size(parts int) int
}

type room struct {
	version uint64
	data    json.RawMessage
	changed notify.Event
}

func (r *room) record() Record {
	return Record{Version: r.version, Data: r.data}
}

// Store is a thread-safe in-memory map from room key to versioned document.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*room
	names Namer
	// lengths counts rooms by the number of words in their key.
	lengths map[int]int
}

// NewStore returns a store seeded with snap, which may be nil. Every restored
// room gets a fresh wait handle.
func NewStore(names Namer, snap Snapshot) *Store {
	s := &Store{
		rooms:   make(map[string]*room, len(snap)),
		names:   names,
		lengths: make(map[int]int),
	}
	for key, rec := range snap {
		s.rooms[key] = &room{
			version: rec.Version,
			data:    rec.Data,
			changed: notify.NewEvent(),
		}
		s.lengths[wordCount(key)]++
	}
	metrics.SetGauge(metrics.KeyRoomCount, len(s.rooms))
	return s
}

// Read waits for the room to move away from version known.
//
// If the room's version already differs from known, its record is returned
// at once with changed set. Otherwise Read blocks until a write to the room,
// the timeout, or ctx ends the wait. A timeout returns changed == false and a
// nil error so the caller can simply ask again. A non-positive timeout checks
// once without waiting.
func (s *Store) Read(ctx context.Context, key string, known uint64, timeout time.Duration) (Record, bool, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		s.mu.RLock()
		r, ok := s.rooms[key]
		if !ok {
			s.mu.RUnlock()
			return Record{}, false, ErrNotFound
		}
		if r.version != known {
			rec := r.record()
			s.mu.RUnlock()
			return rec, true, nil
		}
		ev := r.changed
		s.mu.RUnlock()

		if expired == nil {
			return Record{}, false, nil
		}
		select {
		case <-ev.Done():
			// Woken by a write; loop to re-check against known.
		case <-expired:
			return Record{}, false, nil
		case <-ctx.Done():
			return Record{}, false, ctx.Err()
		}
	}
}

// Write replaces the room's data if its current version is exactly expected.
// On success the version is incremented and every waiter on the room is woken.
// It returns false, mutating nothing, when the room is unknown or the version
// does not match.
func (s *Store) Write(key string, expected uint64, data json.RawMessage) bool {
	data = bytes.Clone(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[key]
	if !ok {
		return false
	}
	if r.version != expected {
		metrics.IncrCounter(metrics.KeyRoomConflict)
		return false
	}
	r.data = data
	r.version++
	r.changed.Fire()
	r.changed = notify.NewEvent()
	metrics.IncrCounter(metrics.KeyRoomCommitted)
	return true
}

// Create inserts a new room at version 1 holding data and returns its key.
// Keys have two words until that key space is mostly taken, then one more
// word at a time. Taken keys are redrawn.
func (s *Store) Create(data json.RawMessage) string {
	data = bytes.Clone(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	parts := namePartsStart
	for KeySpaceFull(s.lengths[parts], s.names.Size(parts)) {
		parts++
	}
	for {
		key := s.names.Name(parts)
		if _, taken := s.rooms[key]; taken {
			continue
		}
		s.rooms[key] = &room{
			version: 1,
			data:    data,
			changed: notify.NewEvent(),
		}
		s.lengths[wordCount(key)]++
		metrics.IncrCounter(metrics.KeyRoomCreated)
		metrics.SetGauge(metrics.KeyRoomCount, len(s.rooms))
		return key
	}
}

func wordCount(key string) int {
	return strings.Count(key, words.Separator) + 1
}

// Len returns the number of rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Snapshot copies every room's record under the read lock. Stored data is
// never mutated in place, so the copies may share their byte slices.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(Snapshot, len(s.rooms))
	for key, r := range s.rooms {
		snap[key] = r.record()
	}
	return snap
}
