package persistence

import (
	"fmt"
	"sort"

	"github.com/ASHISH26940/globby/internal/store"
)

// Codec encodes a whole snapshot as one file.
type Codec interface {
	// Name is the value used to select the codec in configuration.
	Name() string
	// Extension is appended to BaseName to form the dump path.
	Extension() string
	// WriteFile creates path and writes snap to it. The file must not exist.
	WriteFile(path string, snap store.Snapshot) error
	// ReadFile decodes a file produced by WriteFile.
	ReadFile(path string) (store.Snapshot, error)
}

// DefaultFormat is the codec used when none is configured.
const DefaultFormat = "json"

var codecs = map[string]Codec{
	"json":   JSONCodec{},
	"bolt":   BoltCodec{},
	"sqlite": SQLiteCodec{},
}

// CodecFor returns the codec registered under name.
func CodecFor(name string) (Codec, error) {
	if name == "" {
		name = DefaultFormat
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown dump format %q (known: %v)", name, Formats())
	}
	return c, nil
}

// Formats lists the registered codec names.
func Formats() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
