// Package notify provides the single-shot broadcast event used to wake
// goroutines waiting for a room to change.
//
// An Event fires at most once. Every goroutine selecting on Done at the time
// of Fire, or afterwards, observes the close. Owners replace a fired event
// with a fresh one instead of resetting it, so a waiter holding an old event
// and a waiter holding the new one never interfere.
package notify

import "sync"

// Event is a fire-once signal observed by any number of waiters.
type Event interface {
	// Done returns a channel that is closed when the event fires.
	Done() <-chan struct{}
	// Fire closes the Done channel. Calling Fire more than once is a no-op.
	Fire()
}

// Broadcast is the channel-backed Event.
type Broadcast struct {
	once sync.Once
	ch   chan struct{}
}

// New returns an unfired Broadcast.
func New() *Broadcast {
	return &Broadcast{ch: make(chan struct{})}
}

// NewEvent is New typed as an Event, for use as a factory.
func NewEvent() Event {
	return New()
}

func (b *Broadcast) Done() <-chan struct{} {
	return b.ch
}

func (b *Broadcast) Fire() {
	b.once.Do(func() { close(b.ch) })
}
