// Package metrics configures the process-wide go-metrics sink and names the
// metrics emitted by the room store and the HTTP layer.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

// ServiceName prefixes every emitted metric key.
const ServiceName = "globby"

var (
	KeyRoomCreated   = []string{"room", "created"}
	KeyRoomCommitted = []string{"room", "committed"}
	KeyRoomConflict  = []string{"room", "conflict"}
	KeyRoomCount     = []string{"room", "count"}
	KeyListChanged   = []string{"list", "changed"}
	KeyListTimedOut  = []string{"list", "timed_out"}
	KeyListNotFound  = []string{"list", "not_found"}
	KeyListWait      = []string{"list", "wait"}
	KeyWatchOpen     = []string{"watch", "open"}
	KeyDumpDuration  = []string{"persistence", "dump"}
)

// Setup installs an in-memory sink as the global metrics destination.
// Intervals are aggregated over interval and kept for retain.
func Setup(interval, retain time.Duration) (*gometrics.InmemSink, error) {
	sink := gometrics.NewInmemSink(interval, retain)
	cfg := gometrics.DefaultConfig(ServiceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	if _, err := gometrics.NewGlobal(cfg, sink); err != nil {
		return nil, err
	}
	return sink, nil
}

// IncrCounter increments a counter on the global sink.
func IncrCounter(key []string) {
	gometrics.IncrCounter(key, 1)
}

// SetGauge sets a gauge on the global sink.
func SetGauge(key []string, val int) {
	gometrics.SetGauge(key, float32(val))
}

// MeasureSince records the elapsed time since start.
func MeasureSince(key []string, start time.Time) {
	gometrics.MeasureSince(key, start)
}

// Handler serves the current contents of sink as JSON.
func Handler(sink *gometrics.InmemSink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := sink.DisplayMetrics(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	})
}
