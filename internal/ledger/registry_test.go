package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FamilyPoints/internal/model"
)

func TestRegistry_Resolve(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Danya", f.reg.Resolve(danya))
	assert.Equal(t, "Goal Pool", f.reg.Resolve(goal))
	assert.Equal(t, "Unknown (99)", f.reg.Resolve("99"))
}

func TestRegistry_LookupByName(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"danya", "DANYA", " Danya "} {
		id, ok := f.reg.LookupByName(name)
		require.True(t, ok, name)
		assert.Equal(t, danya, id)
	}
	id, ok := f.reg.LookupByName("goal pool")
	require.True(t, ok)
	assert.Equal(t, goal, id)

	_, ok = f.reg.LookupByName("Dan")
	assert.False(t, ok, "match is exact, not prefix")
	_, ok = f.reg.LookupByName("")
	assert.False(t, ok)

	require.NoError(t, f.reg.Add("100", "Papa"))
	_, ok = f.reg.LookupByName("papa")
	assert.False(t, ok, "ambiguous names are not resolved")
	assert.Equal(t, "Papa", f.reg.Resolve("100"))
}

func TestRegistry_Add(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.reg.Add("777", "Grandma"))
	assert.True(t, f.reg.IsMember("777"))
	assert.Equal(t, int64(0), f.balance(t, "777"))

	err := f.reg.Add("777", "Someone else")
	require.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, "Grandma", f.reg.Resolve("777"))

	require.ErrorIs(t, f.reg.Add(goal, "Shadow pool"), ErrAccountExists)
	require.Error(t, f.reg.Add("778", "  "))

	reloaded, err := LoadState(f.path)
	require.NoError(t, err)
	assert.Equal(t, "Grandma", reloaded.Registry["777"])
	assert.Equal(t, int64(0), reloaded.Balances["777"])
}

func TestRegistry_AddStartsAtZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"balances":{"999":5}}`), 0o644))
	store, err := Open(path, Options{Members: family(), Pool: PoolPolicy{ID: goal, Name: "Goal Pool"}})
	require.NoError(t, err)
	defer store.Close()

	reg := NewRegistry(store)
	require.NoError(t, reg.Add("999", "Cousin"))
	bal, ok := store.Balance("999")
	require.True(t, ok)
	assert.Equal(t, int64(0), bal)
}

func TestRegistry_Accounts(t *testing.T) {
	f := newFixture(t)
	accts := f.reg.Accounts()
	require.Len(t, accts, 6)

	var names []string
	for _, a := range accts {
		names = append(names, a.DisplayName)
	}
	assert.Equal(t, []string{"Danya", "Mama", "Papa", "Tima", "Vlad", "Goal Pool"}, names)
	assert.Equal(t, model.Account{ID: goal, DisplayName: "Goal Pool", Pool: true}, accts[5])
	assert.False(t, f.reg.IsMember(goal))
}
