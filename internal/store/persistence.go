package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/pixoo/daemon/internal/log"
)

// persistedFile is the JSON document written to disk (spec.md §6
// "Persisted state layout"): an object keyed by device identity.
type persistedFile struct {
	Devices map[string]DurableSnapshot `json:"devices"`
}

// saveSnapshot writes the durable subset of state atomically
// (write-to-temp + rename, via google/renameio) so a crash mid-write
// never corrupts the previous, still-valid file.
func saveSnapshot(path string, snapshots map[string]DurableSnapshot) error {
	doc := persistedFile{Devices: snapshots}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", path, err)
	}
	return nil
}

// loadSnapshot reads a previously-persisted state file. A missing
// file is not an error (fresh install); a corrupt/empty file logs a
// warning and returns an empty snapshot set rather than failing
// startup (spec.md §8 "Persisted file corrupt/empty -> defaults").
func loadSnapshot(path string) (map[string]DurableSnapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]DurableSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	}
	if len(data) == 0 {
		log.WithComponent("store").Warn().Str("path", path).Msg("persisted state file is empty, starting from defaults")
		return map[string]DurableSnapshot{}, nil
	}

	var doc persistedFile
	if err := json.Unmarshal(data, &doc); err != nil {
		log.WithComponent("store").Warn().Err(err).Str("path", path).Msg("persisted state file is corrupt, starting from defaults")
		return map[string]DurableSnapshot{}, nil
	}
	if doc.Devices == nil {
		doc.Devices = map[string]DurableSnapshot{}
	}
	return doc.Devices, nil
}
