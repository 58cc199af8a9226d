// Package state persists small JSON documents (breaker state, recovery
// state, outage history) atomically to disk, guarded by a non-blocking
// file lock so a skipped write never corrupts a concurrent one.
package state

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/trek-e/stash2plex-sync/internal/filelock"
)

// Save writes v to path as JSON via a temp-file-then-rename, so readers
// never observe a partially written file. If the advisory lock is held by
// another process, Save skips the write and returns nil — the holder of
// the lock is assumed to be writing a version at least as fresh.
func Save(path string, v any) error {
	lock, acquired, err := filelock.TryAcquire(path)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer lock.Release()

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal %s: %w", path, err)
	}
	return renameio.WriteFile(path, b, 0o644)
}

// Load reads and unmarshals the JSON document at path into v. A missing
// file is not an error; v is left at its zero value and found is false.
func Load(path string, v any) (found bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("state: read %s: %w", path, err)
	}
	if len(b) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("state: unmarshal %s: %w", path, err)
	}
	return true, nil
}
