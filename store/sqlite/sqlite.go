/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Implements ledger.Store and modifier.Provider over a single SQLite
  database. Suitable for a single game-server node; the same patterns
  apply to PostgreSQL (see store/postgres) with only dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch the journal table
  - Balances are updated only inside WithUnit

KEY TABLES:
  accounts:    One balance per character, CHECK(balance >= 0)
  journal:     Immutable audit log with before/after snapshots
  bonus_rules: Active world-event modifiers (read by the pipeline)

INDEXES:
  idx_journal_account_seq:    Reverse-chronological history (hot path)
  idx_journal_account_source: "By source" analytics queries

CONCURRENCY:
  Units of work are serialized with a mutex around a database/sql
  transaction. SQLite is opened in WAL mode so readers do not block
  behind a unit in flight.

USAGE:
  store, err := sqlite.New("./data/gold.db")  // or ":memory:"
  svc := ledger.NewService(store)
  svc.Modifier = modifier.NewPipeline(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/memory:    In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/stormhold/gold-engine/ledger"
	"github.com/stormhold/gold-engine/modifier"
)

// Store implements ledger.Store and modifier.Provider using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Accounts (one balance per character)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL CHECK (balance >= 0),
		created_at TEXT NOT NULL
	);

	-- Journal (append-only audit log)
	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL CHECK (balance_after = balance_before + amount),
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Reverse-chronological history (hot path)
	CREATE INDEX IF NOT EXISTS idx_journal_account_seq
		ON journal(account_id, seq DESC);

	-- "By source" analytics
	CREATE INDEX IF NOT EXISTS idx_journal_account_source
		ON journal(account_id, source);

	-- Bonus rules for the modifier pipeline
	CREATE TABLE IF NOT EXISTS bonus_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sources TEXT NOT NULL DEFAULT '',
		multiplier TEXT NOT NULL,
		bonus INTEGER NOT NULL DEFAULT 0,
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bonus_rules_window
		ON bonus_rules(starts_at, ends_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, id ledger.AccountID, openingBalance int64) error {
	if openingBalance < 0 {
		return &ledger.InvalidAmountError{Amount: openingBalance}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance, created_at) VALUES (?, ?, ?)`,
		string(id), openingBalance, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		balance   int64
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, created_at FROM accounts WHERE id = ?`, string(id),
	).Scan(&balance, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Account{}, &ledger.AccountNotFoundError{AccountID: id}
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	return ledger.Account{ID: id, Balance: balance, CreatedAt: created}, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, balance, created_at FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			id        string
			balance   int64
			createdAt string
		)
		if err := rows.Scan(&id, &balance, &createdAt); err != nil {
			return nil, err
		}
		created, _ := time.Parse(time.RFC3339Nano, createdAt)
		accounts = append(accounts, ledger.Account{ID: ledger.AccountID(id), Balance: balance, CreatedAt: created})
	}
	return accounts, rows.Err()
}

// =============================================================================
// JOURNAL QUERIES
// =============================================================================

const entryColumns = `id, account_id, amount, kind, source, balance_before, balance_after, metadata_json, created_at`

func (s *Store) Entries(ctx context.Context, id ledger.AccountID, opts ledger.EntryQuery) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM journal WHERE account_id = ?`
	args := []any{string(id)}
	if opts.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(opts.Source))
	}
	query += ` ORDER BY seq DESC`

	// SQLite requires a LIMIT clause before OFFSET; -1 means unlimited.
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	return s.queryEntries(ctx, query, args...)
}

func (s *Store) AllEntries(ctx context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM journal WHERE account_id = ? ORDER BY seq ASC`
	return s.queryEntries(ctx, query, string(id))
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e            ledger.Entry
		id           string
		accountID    string
		kind         string
		source       string
		metadataJSON sql.NullString
		createdAt    string
	)
	err := rows.Scan(&id, &accountID, &e.Amount, &kind, &source,
		&e.BalanceBefore, &e.BalanceAfter, &metadataJSON, &createdAt)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ID = ledger.EntryID(id)
	e.AccountID = ledger.AccountID(accountID)
	e.Kind = ledger.Kind(kind)
	e.Source = ledger.Source(source)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return ledger.Entry{}, fmt.Errorf("failed to decode entry metadata: %w", err)
		}
	}
	return e, nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithUnit runs fn inside one database transaction. The store mutex
// serializes units so concurrent mutations on the same account cannot
// interleave.
func (s *Store) WithUnit(ctx context.Context, fn func(ledger.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin unit: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&unit{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unit: %w", err)
	}
	return nil
}

type unit struct {
	tx *sql.Tx
}

func (u *unit) Balance(ctx context.Context, id ledger.AccountID) (int64, error) {
	var balance int64
	err := u.tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ?`, string(id),
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, &ledger.AccountNotFoundError{AccountID: id}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

func (u *unit) SetBalance(ctx context.Context, id ledger.AccountID, balance int64) error {
	res, err := u.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`, balance, string(id))
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ledger.AccountNotFoundError{AccountID: id}
	}
	return nil
}

func (u *unit) Append(ctx context.Context, e ledger.Entry) error {
	metadataJSON, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	_, err = u.tx.ExecContext(ctx, `
		INSERT INTO journal
		(id, account_id, amount, kind, source, balance_before, balance_after, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID),
		string(e.AccountID),
		e.Amount,
		string(e.Kind),
		string(e.Source),
		e.BalanceBefore,
		e.BalanceAfter,
		metadataJSON,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// =============================================================================
// BONUS RULES (modifier.Provider)
// =============================================================================

// ActiveRules returns the bonus rules whose window covers now. Account and
// source filtering happens in the pipeline.
func (s *Store) ActiveRules(ctx context.Context, _ ledger.AccountID, _ ledger.Source) ([]modifier.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sources, multiplier, bonus, starts_at, ends_at
		FROM bonus_rules
		WHERE starts_at <= ? AND ends_at > ?`, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query bonus rules: %w", err)
	}
	defer rows.Close()

	var rules []modifier.Rule
	for rows.Next() {
		var (
			r          modifier.Rule
			sources    string
			multiplier string
			startsAt   string
			endsAt     string
		)
		if err := rows.Scan(&r.ID, &r.Name, &sources, &multiplier, &r.Bonus, &startsAt, &endsAt); err != nil {
			return nil, err
		}
		r.Multiplier, err = decimal.NewFromString(multiplier)
		if err != nil {
			return nil, fmt.Errorf("bad multiplier for rule %s: %w", r.ID, err)
		}
		r.Sources = splitSources(sources)
		r.StartsAt, _ = time.Parse(time.RFC3339Nano, startsAt)
		r.EndsAt, _ = time.Parse(time.RFC3339Nano, endsAt)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// PutRule inserts or replaces a bonus rule. Admin/seeding surface.
func (s *Store) PutRule(ctx context.Context, r modifier.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bonus_rules
		(id, name, sources, multiplier, bonus, starts_at, ends_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, joinSources(r.Sources), r.Multiplier.String(), r.Bonus,
		r.StartsAt.UTC().Format(time.RFC3339Nano),
		r.EndsAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to put bonus rule: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeMetadata(m ledger.Metadata) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode entry metadata: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func splitSources(s string) []ledger.Source {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	sources := make([]ledger.Source, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sources = append(sources, ledger.Source(p))
		}
	}
	return sources
}

func joinSources(sources []ledger.Source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

var (
	_ ledger.Store      = (*Store)(nil)
	_ modifier.Provider = (*Store)(nil)
)
