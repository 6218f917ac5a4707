package ledger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"FamilyPoints/internal/model"
)

// Registry maps account ids to display names. It reads and writes through the
// Store so registry changes share the ledger's lock and snapshot.
type Registry struct {
	store *Store
}

// NewRegistry returns a Registry backed by store.
func NewRegistry(store *Store) *Registry {
	return &Registry{store: store}
}

// Resolve returns the display name of id, or "Unknown (id)" when the account
// is not registered.
func (r *Registry) Resolve(id model.AccountID) string {
	var name string
	r.store.view(func(st *model.LedgerState) {
		name = resolveName(st, r.store.pool, id)
	})
	return name
}

// LookupByName finds an account by case-insensitive exact name. A name shared
// by several accounts is reported as not found.
func (r *Registry) LookupByName(name string) (model.AccountID, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return "", false
	}
	var matches []model.AccountID
	r.store.view(func(st *model.LedgerState) {
		for id, n := range st.Registry {
			if strings.ToLower(n) == want {
				matches = append(matches, id)
			}
		}
		pool := r.store.pool
		if pool.ID != "" && strings.ToLower(resolveName(st, pool, pool.ID)) == want {
			matches = append(matches, pool.ID)
		}
	})
	if len(matches) != 1 {
		return "", false
	}
	return matches[0], true
}

// IsMember reports whether id is a registered participant. The goal pool is
// not a member.
func (r *Registry) IsMember(id model.AccountID) bool {
	var ok bool
	r.store.view(func(st *model.LedgerState) {
		_, ok = st.Registry[id]
	})
	return ok
}

// Accounts lists members ordered by name, then the goal pool.
func (r *Registry) Accounts() []model.Account {
	var out []model.Account
	pool := r.store.pool
	r.store.view(func(st *model.LedgerState) {
		for id, name := range st.Registry {
			out = append(out, model.Account{ID: id, DisplayName: name})
		}
		sort.Slice(out, func(i, j int) bool {
			a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
			if a != b {
				return a < b
			}
			return out[i].ID < out[j].ID
		})
		if pool.ID != "" {
			out = append(out, model.Account{ID: pool.ID, DisplayName: resolveName(st, pool, pool.ID), Pool: true})
		}
	})
	return out
}

// Add registers a new account with balance 0 and persists it.
func (r *Registry) Add(id model.AccountID, name string) error {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return fmt.Errorf("add account: id and name are required")
	}
	if id == r.store.pool.ID {
		return fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	err := r.store.update(func(t *tx) error {
		if _, ok := t.st.Registry[id]; ok {
			return fmt.Errorf("%w: %s", ErrAccountExists, id)
		}
		t.st.Registry[id] = name
		t.st.Balances[id] = 0
		t.dirty = true
		return nil
	})
	if err != nil {
		return err
	}
	r.store.logger.Info("account added", zap.String("id", string(id)), zap.String("name", name))
	return nil
}
