package recorder

import (
	"time"

	"FamilyPoints/internal/model"
)

// Recorder mirrors ledger activity for analysis. The JSON snapshot stays the
// source of truth; nothing is ever read back from a Recorder to rebuild
// balances.
type Recorder interface {
	RecordEntry(entry model.HistoryEntry, balancesAfter map[model.AccountID]int64) error
	RecordPrune(removed int, cutoff time.Time) error
	Close() error
}
