package ledger

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"FamilyPoints/internal/model"
)

const (
	papa  model.AccountID = "15260416"
	mama  model.AccountID = "441113371"
	danya model.AccountID = "1059153162"
	vlad  model.AccountID = "5678069063"
	tima  model.AccountID = "5863747570"
	goal  model.AccountID = "goal"
)

func family() map[model.AccountID]string {
	return map[model.AccountID]string{
		papa:  "Papa",
		mama:  "Mama",
		danya: "Danya",
		vlad:  "Vlad",
		tima:  "Tima",
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	path  string
	clock *fakeClock
	store *Store
	eng   *Engine
	reg   *Registry
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		path:  filepath.Join(t.TempDir(), "points_data.json"),
		clock: newFakeClock(),
	}
	opts := Options{
		Members: family(),
		Pool:    PoolPolicy{ID: goal, Name: "Goal Pool"},
		Logger:  zaptest.NewLogger(t),
		Now:     f.clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	store, err := Open(f.path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.store = store
	f.eng = NewEngine(store, nil, zaptest.NewLogger(t))
	f.reg = NewRegistry(store)
	return f
}

// seed credits id so tests can start from a known balance.
func (f *fixture) seed(t *testing.T, id model.AccountID, amount int64) {
	t.Helper()
	_, err := f.eng.Credit(papa, id, amount, "starting balance")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, id model.AccountID) int64 {
	t.Helper()
	bal, ok := f.store.Balance(id)
	require.True(t, ok, "account %s should be known", id)
	return bal
}
