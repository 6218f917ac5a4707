package recorder

import (
	"time"

	"FamilyPoints/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordEntry(_ model.HistoryEntry, _ map[model.AccountID]int64) error {
	return nil
}
func (n *NoopRecorder) RecordPrune(_ int, _ time.Time) error { return nil }
func (n *NoopRecorder) Close() error                         { return nil }
