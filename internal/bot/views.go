package bot

import (
	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/notifier"
)

// Views renders the read-only leaderboard and history screens.
type Views struct {
	store    *ledger.Store
	registry *ledger.Registry
	limit    int
}

// NewViews creates Views showing at most limit history entries.
func NewViews(store *ledger.Store, registry *ledger.Registry, limit int) *Views {
	if limit <= 0 {
		limit = 10
	}
	return &Views{store: store, registry: registry, limit: limit}
}

func (v *Views) Leaderboard() string {
	return notifier.FormatLeaderboard(v.store.Standings())
}

func (v *Views) History() string {
	return notifier.FormatHistory(v.store.RecentHistory(v.limit), v.registry.Resolve)
}
