package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"FamilyPoints/internal/model"
)

func TestOpen_FreshStateSeedsMembers(t *testing.T) {
	f := newFixture(t)

	snap := f.store.Snapshot()
	assert.Len(t, snap.Registry, 5)
	for id := range family() {
		assert.Equal(t, int64(0), snap.Balances[id])
	}
	assert.Equal(t, goal, snap.GoalPool.ID)
	assert.Equal(t, "Goal Pool", snap.GoalPool.Name)

	_, err := os.Stat(f.path)
	require.NoError(t, err, "open should persist the merged state")
}

func TestOpen_CorruptStateIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points_data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := Open(path, Options{Members: family(), Pool: PoolPolicy{ID: goal, Name: "Goal Pool"}, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, 0, store.HistoryLen())
	assert.Len(t, store.Snapshot().Registry, 5)

	moved, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, moved, 1)
	raw, err := os.ReadFile(moved[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
}

func TestOpen_UnreadableStateIsNotOverwritten(t *testing.T) {
	f := newFixture(t)
	f.seed(t, danya, 42)
	require.NoError(t, f.store.Close())
	before, err := os.ReadFile(f.path)
	require.NoError(t, err)

	// A path that exists but cannot be read as a file.
	dir := t.TempDir()
	asDir := filepath.Join(dir, "points_data.json")
	require.NoError(t, os.Mkdir(asDir, 0o755))
	_, err = Open(asDir, Options{Members: family(), Pool: PoolPolicy{ID: goal, Name: "Goal Pool"}})
	require.Error(t, err)
	info, err := os.Stat(asDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	if os.Geteuid() == 0 {
		t.Log("running as root, skipping the permission case")
		return
	}
	require.NoError(t, os.Chmod(f.path, 0))
	t.Cleanup(func() { os.Chmod(f.path, 0o644) })

	_, err = Open(f.path, Options{Members: family(), Pool: PoolPolicy{ID: goal, Name: "Goal Pool"}})
	require.Error(t, err)
	require.NoError(t, os.Chmod(f.path, 0o644))
	after, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	moved, _ := filepath.Glob(f.path + ".corrupt-*")
	assert.Empty(t, moved)
}

func TestOpen_AppliesConfiguredPoolName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	store, err := Open(f.path, Options{Members: family(), Pool: PoolPolicy{ID: goal, Name: "Bike Fund"}})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "Bike Fund", store.Snapshot().GoalPool.Name)
	assert.Equal(t, "Bike Fund", NewRegistry(store).Resolve(goal))
}

func TestOpen_PartialStateDefaultsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"balances":{"1059153162":7},"extra":true}`), 0o644))

	store, err := Open(path, Options{Members: family(), Pool: PoolPolicy{ID: goal, Name: "Goal Pool"}})
	require.NoError(t, err)
	defer store.Close()

	bal, ok := store.Balance(danya)
	require.True(t, ok)
	assert.Equal(t, int64(7), bal)
	assert.Equal(t, 0, store.HistoryLen())
}

func TestOpen_MergeKeepsExistingNamesAndBalances(t *testing.T) {
	f := newFixture(t)
	f.seed(t, danya, 12)
	require.NoError(t, f.reg.Add("777", "Grandma"))
	require.NoError(t, f.store.Close())

	members := family()
	members[danya] = "Daniil"
	members["888"] = "Grandpa"
	store, err := Open(f.path, Options{Members: members, Pool: PoolPolicy{ID: goal, Name: "Goal Pool"}})
	require.NoError(t, err)
	defer store.Close()

	snap := store.Snapshot()
	assert.Equal(t, "Danya", snap.Registry[danya])
	assert.Equal(t, int64(12), snap.Balances[danya])
	assert.Equal(t, "Grandma", snap.Registry["777"])
	assert.Equal(t, int64(0), snap.Balances["888"])
	assert.Len(t, snap.History, 1)
}

func TestStore_ReopenRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tima, 30)
	_, err := f.eng.Transfer(papa, tima, goal, 10, "saving up")
	require.NoError(t, err)
	want := f.store.Snapshot()
	require.NoError(t, f.store.Close())

	store, err := Open(f.path, Options{Members: family(), Pool: PoolPolicy{ID: goal, Name: "Goal Pool"}})
	require.NoError(t, err)
	defer store.Close()
	got := store.Snapshot()

	assert.Equal(t, want.Balances, got.Balances)
	assert.Equal(t, want.Registry, got.Registry)
	assert.Equal(t, want.GoalPool, got.GoalPool)
	require.Len(t, got.History, 2)
	for i := range want.History {
		assert.Equal(t, want.History[i].ID, got.History[i].ID)
		assert.True(t, want.History[i].Timestamp.Equal(got.History[i].Timestamp))
		assert.Equal(t, want.History[i].SourceID, got.History[i].SourceID)
	}
}

func TestStore_PersistFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, danya, 5)

	// A directory where the state file should be makes the rename fail.
	require.NoError(t, os.Remove(f.path))
	require.NoError(t, os.Mkdir(f.path, 0o755))

	_, err := f.eng.Credit(papa, danya, 10, "cleaned room")
	require.ErrorIs(t, err, ErrPersist)

	assert.Equal(t, int64(5), f.balance(t, danya))
	assert.Equal(t, 1, f.store.HistoryLen())
}

func TestStore_PruneHistoryOlderThan(t *testing.T) {
	f := newFixture(t)
	f.seed(t, danya, 1) // day 0
	f.clock.Advance(5 * 24 * time.Hour)
	f.seed(t, danya, 2) // day 5
	f.clock.Advance(4 * 24 * time.Hour)
	f.seed(t, danya, 3) // day 9
	f.clock.Advance(24 * time.Hour)

	// now = day 10, cutoff = day 5 exactly: the day 5 entry is not strictly older.
	removed, err := f.store.PruneHistoryOlderThan(5 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left := f.store.RecentHistory(10)
	require.Len(t, left, 2)
	assert.Equal(t, int64(2), left[0].Amount)
	assert.Equal(t, int64(3), left[1].Amount)
	assert.Equal(t, int64(6), f.balance(t, danya), "pruning never touches balances")
}

func TestStore_PruneNothingDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	f.seed(t, danya, 1)
	before, err := LoadState(f.path)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	removed, err := f.store.PruneHistoryOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	after, err := LoadState(f.path)
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt), "no-op prune must not rewrite the snapshot")
}

func TestStore_Backups(t *testing.T) {
	backupDir := filepath.Join(t.TempDir(), "backups")
	f := newFixture(t, func(o *Options) {
		o.BackupDir = backupDir
		o.BackupKeep = 2
	})
	for i := 0; i < 4; i++ {
		f.clock.Advance(time.Second)
		f.seed(t, vlad, 1)
	}

	names, err := ListBackups(backupDir)
	require.NoError(t, err)
	require.Len(t, names, 2)

	latest, err := ReadBackup(names[len(names)-1])
	require.NoError(t, err)
	assert.Equal(t, int64(4), latest.Balances[vlad])
	assert.Len(t, latest.History, 4)
}

func TestStore_StandingsAndRecentHistory(t *testing.T) {
	f := newFixture(t)
	f.seed(t, vlad, 5)
	f.seed(t, tima, 30)
	_, err := f.eng.Transfer(papa, tima, goal, 10, "saving up")
	require.NoError(t, err)

	st := f.store.Standings()
	require.Len(t, st, 6)
	assert.Equal(t, model.Standing{ID: tima, Name: "Tima", Balance: 20}, st[0])
	assert.Equal(t, model.Standing{ID: goal, Name: "Goal Pool", Balance: 10, Pool: true}, st[1])
	assert.Equal(t, vlad, st[2].ID)

	recent := f.store.RecentHistory(2)
	require.Len(t, recent, 2)
	assert.Equal(t, model.OpCredit, recent[0].Operation)
	assert.Equal(t, model.OpTransfer, recent[1].Operation)
}
