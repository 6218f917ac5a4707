package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"FamilyPoints/internal/model"
)

const (
	backupPrefix = "ledger-"
	backupSuffix = ".json.zst"
)

// backupWriter keeps zstd-compressed, timestamped copies of every persisted
// snapshot and rotates them down to the newest keep files.
type backupWriter struct {
	dir  string
	keep int
	enc  *zstd.Encoder
}

func newBackupWriter(dir string, keep int) (*backupWriter, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	return &backupWriter{dir: dir, keep: keep, enc: enc}, nil
}

func (b *backupWriter) write(data []byte, at time.Time) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := backupPrefix + at.UTC().Format("20060102T150405.000000000Z") + backupSuffix
	path := filepath.Join(b.dir, name)
	if err := writeFileAtomic(path, b.enc.EncodeAll(data, nil)); err != nil {
		return "", err
	}
	if err := b.rotate(); err != nil {
		return path, fmt.Errorf("rotate backups: %w", err)
	}
	return path, nil
}

func (b *backupWriter) rotate() error {
	if b.keep <= 0 {
		return nil
	}
	names, err := ListBackups(b.dir)
	if err != nil {
		return err
	}
	if len(names) <= b.keep {
		return nil
	}
	for _, name := range names[:len(names)-b.keep] {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (b *backupWriter) close() {
	b.enc.Close()
}

// ListBackups returns the backup files in dir, oldest first.
func ListBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, backupPrefix) || !strings.HasSuffix(n, backupSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, n))
	}
	sort.Strings(out)
	return out, nil
}

// ReadBackup decodes a compressed backup file into a ledger state.
func ReadBackup(path string) (*model.LedgerState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress backup: %w", err)
	}
	state := model.NewLedgerState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	state.Normalize()
	return state, nil
}
