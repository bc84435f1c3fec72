package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcast_FireWakesAllWaiters(t *testing.T) {
	ev := New()

	const waiters = 50
	var wg sync.WaitGroup
	woken := make(chan struct{}, waiters)
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			<-ev.Done()
			woken <- struct{}{}
		}()
	}

	ev.Fire()
	wg.Wait()
	assert.Len(t, woken, waiters)
}

func TestBroadcast_FireIsIdempotent(t *testing.T) {
	ev := New()
	ev.Fire()
	assert.NotPanics(t, ev.Fire)

	select {
	case <-ev.Done():
	default:
		t.Fatal("expected Done to be closed after Fire")
	}
}

func TestBroadcast_LateWaiterSeesFiredEvent(t *testing.T) {
	ev := NewEvent()
	ev.Fire()

	select {
	case <-ev.Done():
	case <-time.After(time.Second):
		t.Fatal("waiter arriving after Fire should not block")
	}
}

func TestBroadcast_UnfiredDoesNotWake(t *testing.T) {
	ev := New()
	select {
	case <-ev.Done():
		t.Fatal("unfired event must not be done")
	case <-time.After(20 * time.Millisecond):
	}
}
