package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lazypower/tether/internal/registry"
)

// FileStore persists the registry as a single JSON document with
// whole-document read/overwrite semantics. It is the tracker's only durable
// state; the sqlite history store is best-effort on top.
type FileStore struct {
	path string
	log  zerolog.Logger
}

// NewFileStore creates a FileStore for the given path. The file is not
// touched until the first Load or Save.
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{
		path: path,
		log:  log.With().Str("component", "filestore").Logger(),
	}
}

// Path returns the document path.
func (f *FileStore) Path() string { return f.path }

// DefaultStorePath returns the default registry document path:
// ~/.tether/registry.json
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".tether", "registry.json"), nil
}

// Load reads the persisted document. A missing or unparsable file yields an
// empty document; a broken store must never stop the tracker from starting.
func (f *FileStore) Load() registry.Document {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.log.Warn().Err(err).Str("path", f.path).Msg("registry document unreadable, starting empty")
		}
		return emptyDocument()
	}

	var doc registry.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).Msg("registry document invalid, starting empty")
		return emptyDocument()
	}
	if doc.Devices == nil {
		doc.Devices = make(map[string]registry.Receiver)
	}
	if doc.Beacons == nil {
		doc.Beacons = make(map[string]registry.Beacon)
	}
	return doc
}

// Save overwrites the whole document atomically: write a sibling temp file,
// then rename over the target. A failed save leaves the previous document
// intact on disk.
func (f *FileStore) Save(doc registry.Document) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry document: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write registry document: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace registry document: %w", err)
	}
	return nil
}

func emptyDocument() registry.Document {
	return registry.Document{
		Devices: make(map[string]registry.Receiver),
		Beacons: make(map[string]registry.Beacon),
	}
}
