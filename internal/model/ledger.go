package model

import "time"

// GoalPool is the shared, non-personal account.
type GoalPool struct {
	ID      AccountID `json:"id"`
	Name    string    `json:"name"`
	Balance int64     `json:"balance"`
}

// LedgerState is the durable snapshot of the whole ledger.
type LedgerState struct {
	Balances  map[AccountID]int64  `json:"balances"`
	History   []HistoryEntry       `json:"history"`
	Registry  map[AccountID]string `json:"registry"`
	GoalPool  GoalPool             `json:"goal_pool"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewLedgerState returns an empty state with non-nil maps.
func NewLedgerState() *LedgerState {
	return &LedgerState{
		Balances: make(map[AccountID]int64),
		Registry: make(map[AccountID]string),
	}
}

// Normalize replaces nil maps so a partially-populated snapshot behaves like
// an empty one.
func (s *LedgerState) Normalize() {
	if s.Balances == nil {
		s.Balances = make(map[AccountID]int64)
	}
	if s.Registry == nil {
		s.Registry = make(map[AccountID]string)
	}
}

// Clone returns a deep copy. History entries are values and never mutated,
// so the slice is copied but entries are shared by value.
func (s *LedgerState) Clone() *LedgerState {
	cp := &LedgerState{
		Balances:  make(map[AccountID]int64, len(s.Balances)),
		Registry:  make(map[AccountID]string, len(s.Registry)),
		History:   make([]HistoryEntry, len(s.History)),
		GoalPool:  s.GoalPool,
		UpdatedAt: s.UpdatedAt,
	}
	for k, v := range s.Balances {
		cp.Balances[k] = v
	}
	for k, v := range s.Registry {
		cp.Registry[k] = v
	}
	copy(cp.History, s.History)
	return cp
}
