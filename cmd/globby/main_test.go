package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASHISH26940/globby/internal/config"
	"github.com/ASHISH26940/globby/internal/persistence"
)

func TestRun_RequiresPositionalArgs(t *testing.T) {
	err := run([]string{"localhost:0", "static"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 positional arguments")

	err = run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 positional arguments, got 0")
}

func TestRun_RejectsUnknownDumpFormat(t *testing.T) {
	err := run([]string{"--dump-format", "xml", "localhost:0", t.TempDir(), t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dump format")
}

func TestRun_RejectsBadConfigFile(t *testing.T) {
	err := run([]string{"--config", "/nonexistent/globby.toml", "localhost:0", "static", "data"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_Help(t *testing.T) {
	assert.NoError(t, run([]string{"--help"}))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "globby.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_PathsFromConfigFile(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:9000"
static_dir = "/srv/static"
data_dir = "/srv/data"
`)

	cfg, err := loadConfig([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "/srv/static", cfg.StaticDir)
	assert.Equal(t, "/srv/data", cfg.DataDir)

	// Positional arguments win over the file.
	cfg, err = loadConfig([]string{"--config", path, "localhost:0", "static", "data"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:0", cfg.Listen)
	assert.Equal(t, "static", cfg.StaticDir)
	assert.Equal(t, "data", cfg.DataDir)
}

func TestLoadConfig_IncompleteConfigFile(t *testing.T) {
	path := writeConfig(t, `listen = "127.0.0.1:9000"`)

	_, err := loadConfig([]string{"--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static directory is required")
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
log_level = "warn"
dump_format = "bolt"
`)

	cfg, err := loadConfig([]string{"--config", path, "--dump-format", "sqlite", "localhost:0", "static", "data"})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.DumpFormat)
}

func TestServe_ShutdownReleasesLongPollAndDumps(t *testing.T) {
	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	cfg := config.New()
	cfg.Listen = listener.Addr().String()
	cfg.StaticDir = t.TempDir()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.ListTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- serve(ctx, cfg, listener, hclog.NewNullLogger())
	}()

	base := "http://" + listener.Addr().String()
	resp, err := http.Post(base+"/make_room", "application/json", strings.NewReader(`{"data":{"board":[1,2]}}`))
	require.NoError(t, err)
	var made struct {
		Room string `json:"room"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&made))
	resp.Body.Close()
	require.NotEmpty(t, made.Room)

	// Park a long poll on the room's current version.
	pollStatus := make(chan int, 1)
	go func() {
		body := `{"version":1,"room":"` + made.Room + `"}`
		resp, err := http.Post(base+"/list", "application/json", strings.NewReader(body))
		if err != nil {
			t.Error(err)
			pollStatus <- 0
			return
		}
		resp.Body.Close()
		pollStatus <- resp.StatusCode
	}()
	time.Sleep(100 * time.Millisecond)

	cancel()

	select {
	case status := <-pollStatus:
		assert.Equal(t, http.StatusNoContent, status)
	case <-time.After(5 * time.Second):
		t.Fatal("long poll was not released at shutdown")
	}
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}

	assert.FileExists(t, filepath.Join(cfg.DataDir, "room_data.json"))
	snap, err := persistence.NewManager(cfg.DataDir, persistence.JSONCodec{}, nil).Load()
	require.NoError(t, err)
	require.Contains(t, snap, made.Room)
	assert.Equal(t, uint64(1), snap[made.Room].Version)
	assert.JSONEq(t, `{"board":[1,2]}`, string(snap[made.Room].Data))
}
