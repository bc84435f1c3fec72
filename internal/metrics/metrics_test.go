package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupAndHandler(t *testing.T) {
	sink, err := Setup(time.Minute, 5*time.Minute)
	require.NoError(t, err)

	IncrCounter(KeyRoomCreated)
	SetGauge(KeyRoomCount, 3)

	rr := httptest.NewRecorder()
	Handler(sink).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var summary struct {
		Counters []struct {
			Name  string
			Count int
		}
		Gauges []struct {
			Name  string
			Value float32
		}
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&summary))

	var sawCounter, sawGauge bool
	for _, c := range summary.Counters {
		if c.Name == "globby.room.created" {
			sawCounter = true
			assert.Equal(t, 1, c.Count)
		}
	}
	for _, g := range summary.Gauges {
		if g.Name == "globby.room.count" {
			sawGauge = true
			assert.Equal(t, float32(3), g.Value)
		}
	}
	assert.True(t, sawCounter, "counter missing from %+v", summary.Counters)
	assert.True(t, sawGauge, "gauge missing from %+v", summary.Gauges)
}
