package recorder

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"FamilyPoints/internal/model"
)

// SQLiteRecorder persists committed ledger activity to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// WAL lets dashboards read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger.Named("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id           TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			performer_id TEXT NOT NULL,
			operation    TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			reason       TEXT NOT NULL,
			source_id    TEXT,
			target_id    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_ts ON ledger_entries(timestamp)`,

		`CREATE TABLE IF NOT EXISTS balance_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id   TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			account_id TEXT NOT NULL,
			balance    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_account ON balance_snapshots(account_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS prune_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			cutoff    INTEGER NOT NULL,
			removed   INTEGER NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordEntry stores the entry and the post-commit balances of the accounts
// it touched. Replaying an entry id is ignored.
func (r *SQLiteRecorder) RecordEntry(entry model.HistoryEntry, balancesAfter map[model.AccountID]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT OR IGNORE INTO ledger_entries
		(id, timestamp, performer_id, operation, amount, reason, source_id, target_id)
		VALUES (?,?,?,?,?,?,?,?)`,
		entry.ID, entry.Timestamp.Unix(), string(entry.PerformerID), string(entry.Operation),
		entry.Amount, entry.Reason, nullable(entry.SourceID), nullable(entry.TargetID),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	ids := make([]string, 0, len(balancesAfter))
	for id := range balancesAfter {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := tx.Exec(`INSERT INTO balance_snapshots
			(entry_id, timestamp, account_id, balance) VALUES (?,?,?,?)`,
			entry.ID, entry.Timestamp.Unix(), id, balancesAfter[model.AccountID(id)],
		); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordPrune(removed int, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO prune_events (timestamp, cutoff, removed) VALUES (?,?,?)`,
		time.Now().Unix(), cutoff.Unix(), removed,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}

func nullable(id model.AccountID) sql.NullString {
	return sql.NullString{String: string(id), Valid: id != ""}
}
