package persistence

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/ASHISH26940/globby/internal/store"
)

// JSONCodec writes {"rooms": {key: {"version": n, "data": ...}}}.
type JSONCodec struct{}

type jsonDump struct {
	Rooms store.Snapshot `json:"rooms"`
}

func (JSONCodec) Name() string      { return "json" }
func (JSONCodec) Extension() string { return ".json" }

func (JSONCodec) WriteFile(path string, snap store.Snapshot) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := json.NewEncoder(w).Encode(jsonDump{Rooms: snap}); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (JSONCodec) ReadFile(path string) (store.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dump jsonDump
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&dump); err != nil {
		return nil, err
	}
	if dump.Rooms == nil {
		dump.Rooms = store.Snapshot{}
	}
	return dump.Rooms, nil
}
