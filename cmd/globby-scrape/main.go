// Command globby-scrape rebuilds a dump file from a running globby server.
//
// It asks the server for every two-word room key the generator can produce
// and writes the rooms that exist into a dump in the given directory. Keys
// only grow past two words once most two-word keys are taken, in which case
// the tool warns that the dump is incomplete. The
// result can be loaded by a fresh server started on that directory.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/ASHISH26940/globby/internal/logging"
	"github.com/ASHISH26940/globby/internal/persistence"
	"github.com/ASHISH26940/globby/internal/store"
	"github.com/ASHISH26940/globby/internal/words"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("globby-scrape", pflag.ContinueOnError)
	baseURL := flags.String("url", "", "base URL of the globby server, e.g. http://localhost:8080")
	outDir := flags.String("out", "", "directory to write the dump into")
	format := flags.String("format", persistence.DefaultFormat, "dump file format")
	force := flags.Bool("force", false, "overwrite an existing dump in --out")
	timeout := flags.Duration("timeout", 10*time.Second, "per-request timeout")
	logLevel := flags.String("log-level", "info", "log level")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *baseURL == "" || *outDir == "" {
		flags.PrintDefaults()
		return errors.New("--url and --out are required")
	}

	logger, closer, err := logging.New("globby-scrape", logging.Options{Level: *logLevel})
	if err != nil {
		return err
	}
	defer closer.Close()

	codec, err := persistence.CodecFor(*format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	dumps := persistence.NewManager(*outDir, codec, logger.Named("persistence"))
	if _, err := os.Stat(dumps.Path()); err == nil && !*force {
		return fmt.Errorf("%s already exists, pass --force to overwrite", dumps.Path())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: *timeout}
	snap, err := scrape(ctx, client, *baseURL, words.Fruits, logger)
	if err != nil {
		return err
	}
	if err := dumps.Dump(snap); err != nil {
		return err
	}
	logger.Info("wrote dump", "path", filepath.Clean(dumps.Path()), "rooms", len(snap))
	return nil
}

type listRequest struct {
	Version uint64 `json:"version"`
	Room    string `json:"room"`
}

// scrape asks baseURL for every two-word key over list. Version 0 never
// matches a live room, so each call answers without waiting.
func scrape(ctx context.Context, client *http.Client, baseURL string, list []string, logger hclog.Logger) (store.Snapshot, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/list"
	snap := store.Snapshot{}

	var scrapeErr error
	words.Pairs(list, func(key string) bool {
		rec, found, err := fetchRoom(ctx, client, endpoint, key)
		if err != nil {
			scrapeErr = fmt.Errorf("fetching %s: %w", key, err)
			return false
		}
		if found {
			logger.Info("found room", "room", key, "version", rec.Version)
			snap[key] = rec
		}
		return true
	})
	if scrapeErr != nil {
		return nil, scrapeErr
	}
	if store.KeySpaceFull(len(snap), words.NewGenerator(list, nil).Size(2)) {
		logger.Warn("two-word keys are mostly taken, rooms with longer keys are not included", "rooms", len(snap))
	}
	return snap, nil
}

func fetchRoom(ctx context.Context, client *http.Client, endpoint, key string) (store.Record, bool, error) {
	body, err := json.Marshal(listRequest{Version: 0, Room: key})
	if err != nil {
		return store.Record{}, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return store.Record{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return store.Record{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var rec store.Record
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return store.Record{}, false, fmt.Errorf("decoding reply: %w", err)
		}
		return rec, true, nil
	case http.StatusNotFound:
		return store.Record{}, false, nil
	default:
		return store.Record{}, false, fmt.Errorf("unexpected status %s", resp.Status)
	}
}
