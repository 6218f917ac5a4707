package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FamilyPoints/internal/model"
)

// errCorruptState marks a state file that exists but cannot be decoded.
var errCorruptState = errors.New("corrupt ledger state")

// LoadState reads the ledger snapshot from a JSON file. A missing file yields
// an empty state. Missing fields default to empty values.
func LoadState(filePath string) (*model.LedgerState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewLedgerState(), nil
		}
		return nil, fmt.Errorf("read ledger state: %w", err)
	}
	state := model.NewLedgerState()
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptState, err)
	}
	state.Normalize()
	return state, nil
}

func encodeState(state *model.LedgerState) ([]byte, error) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal ledger state: %w", err)
	}
	return data, nil
}

func writeFileAtomic(filePath string, data []byte) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// quarantine moves an unreadable state file aside so the fresh empty state
// does not overwrite it.
func quarantine(filePath string, now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%s", filePath, now.UTC().Format("20060102T150405Z"))
	if err := os.Rename(filePath, dst); err != nil {
		return "", err
	}
	return dst, nil
}
