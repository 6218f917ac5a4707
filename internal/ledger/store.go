package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"FamilyPoints/internal/model"
)

// PoolPolicy configures the shared goal pool. The pool always accepts credits
// and transfers in; debits and outgoing transfers are opt-in.
type PoolPolicy struct {
	ID               model.AccountID
	Name             string
	AllowDebit       bool
	AllowTransferOut bool
}

// CanDebit reports whether id may be debited directly.
func (p PoolPolicy) CanDebit(id model.AccountID) bool {
	return id != p.ID || p.AllowDebit
}

// CanTransferFrom reports whether id may be the source of a transfer.
func (p PoolPolicy) CanTransferFrom(id model.AccountID) bool {
	return id != p.ID || p.AllowTransferOut
}

// Options configures a Store.
type Options struct {
	// Members are merged into the registry on open. Existing names and
	// balances are never overwritten.
	Members    map[model.AccountID]string
	Pool       PoolPolicy
	BackupDir  string
	BackupKeep int
	Logger     *zap.Logger
	Now        func() time.Time
}

// Store owns the ledger state and serializes every mutation behind one lock.
// Mutations run against a clone which replaces the live state only after it
// has been written to disk.
type Store struct {
	mu       sync.RWMutex
	state    *model.LedgerState
	filePath string
	pool     PoolPolicy
	backups  *backupWriter
	logger   *zap.Logger
	now      func() time.Time
}

// Open loads the ledger from filePath, merges configured members and persists
// the result. Missing or corrupt state is replaced by an empty ledger; any
// other read failure is returned and the file is left alone.
func Open(filePath string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.Named("ledger")

	state, err := LoadState(filePath)
	switch {
	case errors.Is(err, errCorruptState):
		logger.Warn("ledger state corrupt, starting empty", zap.String("path", filePath), zap.Error(err))
		moved, qerr := quarantine(filePath, opts.Now())
		if qerr != nil {
			return nil, fmt.Errorf("quarantine corrupt state: %w", qerr)
		}
		logger.Warn("corrupt state moved aside", zap.String("path", moved))
		state = model.NewLedgerState()
	case err != nil:
		// The file exists but could not be read; writing now would replace it.
		return nil, err
	}
	mergeDefaults(state, opts.Members, opts.Pool)

	s := &Store{
		state:    state,
		filePath: filePath,
		pool:     opts.Pool,
		logger:   logger,
		now:      opts.Now,
	}
	if opts.BackupDir != "" {
		bw, err := newBackupWriter(opts.BackupDir, opts.BackupKeep)
		if err != nil {
			return nil, err
		}
		s.backups = bw
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(s.state); err != nil {
		if s.backups != nil {
			s.backups.close()
		}
		return nil, err
	}
	logger.Info("ledger opened",
		zap.String("path", filePath),
		zap.Int("accounts", len(state.Registry)),
		zap.Int("history", len(state.History)))
	return s, nil
}

func mergeDefaults(state *model.LedgerState, members map[model.AccountID]string, pool PoolPolicy) {
	for id, name := range members {
		if _, ok := state.Registry[id]; !ok {
			state.Registry[id] = name
		}
	}
	for id := range state.Registry {
		if _, ok := state.Balances[id]; !ok {
			state.Balances[id] = 0
		}
	}
	state.GoalPool.ID = pool.ID
	if pool.Name != "" {
		state.GoalPool.Name = pool.Name
	}
}

// Close releases the backup encoder. Later persists skip backups.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backups != nil {
		s.backups.close()
		s.backups = nil
	}
	return nil
}

// Policy returns the goal pool policy.
func (s *Store) Policy() PoolPolicy {
	return s.pool
}

// persist must be called with mu held.
func (s *Store) persist(state *model.LedgerState) error {
	state.UpdatedAt = s.now()
	data, err := encodeState(state)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := writeFileAtomic(s.filePath, data); err != nil {
		s.logger.Error("persist ledger", zap.String("path", s.filePath), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if s.backups != nil {
		if path, err := s.backups.write(data, state.UpdatedAt); err != nil {
			s.logger.Warn("write ledger backup", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// tx is the mutable view handed to update callbacks.
type tx struct {
	st    *model.LedgerState
	pool  PoolPolicy
	dirty bool
}

func (t *tx) known(id model.AccountID) bool {
	if id == "" {
		return false
	}
	if id == t.pool.ID {
		return true
	}
	_, ok := t.st.Registry[id]
	return ok
}

func (t *tx) balance(id model.AccountID) int64 {
	if id == t.pool.ID {
		return t.st.GoalPool.Balance
	}
	return t.st.Balances[id]
}

func (t *tx) setBalance(id model.AccountID, v int64) {
	if id == t.pool.ID {
		t.st.GoalPool.Balance = v
	} else {
		t.st.Balances[id] = v
	}
	t.dirty = true
}

func (t *tx) appendEntry(e model.HistoryEntry) {
	t.st.History = append(t.st.History, e)
	t.dirty = true
}

// update runs fn against a clone of the state under the write lock. The clone
// becomes live only if fn succeeds and, when it changed anything, the new
// snapshot was persisted. Balances and history therefore change together or
// not at all.
func (s *Store) update(fn func(t *tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	t := &tx{st: next, pool: s.pool}
	if err := fn(t); err != nil {
		return err
	}
	if !t.dirty {
		return nil
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) view(fn func(st *model.LedgerState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Balance returns the balance of id and whether the account is known.
func (s *Store) Balance(id model.AccountID) (int64, bool) {
	var (
		bal int64
		ok  bool
	)
	s.view(func(st *model.LedgerState) {
		t := tx{st: st, pool: s.pool}
		ok = t.known(id)
		bal = t.balance(id)
	})
	return bal, ok
}

// Standings returns every account sorted by balance, highest first. Ties are
// broken by name. The goal pool is included and flagged.
func (s *Store) Standings() []model.Standing {
	var out []model.Standing
	s.view(func(st *model.LedgerState) {
		out = make([]model.Standing, 0, len(st.Balances)+1)
		for id, bal := range st.Balances {
			out = append(out, model.Standing{ID: id, Name: resolveName(st, s.pool, id), Balance: bal})
		}
		if s.pool.ID != "" {
			out = append(out, model.Standing{
				ID:      s.pool.ID,
				Name:    resolveName(st, s.pool, s.pool.ID),
				Balance: st.GoalPool.Balance,
				Pool:    true,
			})
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// RecentHistory returns up to n of the newest entries in chronological order.
func (s *Store) RecentHistory(n int) []model.HistoryEntry {
	var out []model.HistoryEntry
	s.view(func(st *model.LedgerState) {
		start := 0
		if n >= 0 && len(st.History) > n {
			start = len(st.History) - n
		}
		out = make([]model.HistoryEntry, len(st.History)-start)
		copy(out, st.History[start:])
	})
	return out
}

// HistorySince returns entries with a timestamp at or after t.
func (s *Store) HistorySince(t time.Time) []model.HistoryEntry {
	var out []model.HistoryEntry
	s.view(func(st *model.LedgerState) {
		for _, e := range st.History {
			if !e.Timestamp.Before(t) {
				out = append(out, e)
			}
		}
	})
	return out
}

// HistoryLen returns the number of stored history entries.
func (s *Store) HistoryLen() int {
	var n int
	s.view(func(st *model.LedgerState) { n = len(st.History) })
	return n
}

// Snapshot returns a deep copy of the live state.
func (s *Store) Snapshot() *model.LedgerState {
	var cp *model.LedgerState
	s.view(func(st *model.LedgerState) { cp = st.Clone() })
	return cp
}

// PruneHistoryOlderThan removes entries older than now minus d.
func (s *Store) PruneHistoryOlderThan(d time.Duration) (int, error) {
	return s.PruneHistoryBefore(s.now().Add(-d))
}

// PruneHistoryBefore removes entries strictly older than cutoff and returns
// how many were removed. Nothing is written when nothing matches.
func (s *Store) PruneHistoryBefore(cutoff time.Time) (int, error) {
	removed := 0
	err := s.update(func(t *tx) error {
		kept := make([]model.HistoryEntry, 0, len(t.st.History))
		for _, e := range t.st.History {
			if e.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if removed > 0 {
			t.st.History = kept
			t.dirty = true
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func resolveName(st *model.LedgerState, pool PoolPolicy, id model.AccountID) string {
	if id == pool.ID && id != "" {
		if st.GoalPool.Name != "" {
			return st.GoalPool.Name
		}
		return pool.Name
	}
	if name, ok := st.Registry[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%s)", id)
}
