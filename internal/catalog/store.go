package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/0xADE/ade-launchd/internal/indexer"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// readSnapshot decodes a persisted snapshot and repairs what older or hand
// edited files may lack: ids, keywords, duplicate paths and ordering.
func readSnapshot(path string) (*indexer.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var snap indexer.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if snap.SchemaVersion == "" {
		return nil, fmt.Errorf("no schema version in %s", path)
	}

	byPath := make(map[string]int, len(snap.Entries))
	entries := make([]indexer.Application, 0, len(snap.Entries))
	for _, app := range snap.Entries {
		if app.Path == "" {
			continue
		}
		if app.ID == "" {
			app.ID = uuid.New().String()
		}
		if len(app.Keywords) == 0 {
			app.Keywords = indexer.Keywords(app.Name)
		}
		if i, ok := byPath[app.Path]; ok {
			entries[i] = app
			continue
		}
		byPath[app.Path] = len(entries)
		entries = append(entries, app)
	}
	indexer.SortByName(entries)
	snap.Entries = entries

	return &snap, nil
}

// writeSnapshot replaces the file at path atomically.
func writeSnapshot(path string, snap *indexer.Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
