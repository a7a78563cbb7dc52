/*
Package postgres provides a PostgreSQL-backed implementation of the ledger
store.

PURPOSE:
  Production store for multi-process deployments. Unlike the SQLite store,
  concurrency control is delegated to the database: a unit of work locks
  the account rows it reads (SELECT ... FOR UPDATE), so two units touching
  the same account serialize at the row level while unrelated accounts
  proceed in parallel.

ISOLATION:
  Balance reads inside a unit take a row lock held until commit/rollback.
  That makes the read-check-write sequence of a debit safe: a concurrent
  debit on the same account blocks on the lock and then observes the
  committed balance, so overdrafts cannot slip through the gap.

MIGRATION:
  Schema is auto-migrated on New(). For fleets, use a versioned migration
  tool instead and point New at an already-migrated database.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/sqlite:    Single-node equivalent
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stormhold/gold-engine/ledger"
	"github.com/stormhold/gold-engine/modifier"
)

// Store implements ledger.Store and modifier.Provider using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New connects to the database named by dsn and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
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
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance BIGINT NOT NULL CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS journal (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount BIGINT NOT NULL,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		balance_before BIGINT NOT NULL,
		balance_after BIGINT NOT NULL CHECK (balance_after = balance_before + amount),
		metadata_json JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_account_seq
		ON journal(account_id, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_journal_account_source
		ON journal(account_id, source);

	CREATE TABLE IF NOT EXISTS bonus_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sources TEXT NOT NULL DEFAULT '',
		multiplier TEXT NOT NULL,
		bonus BIGINT NOT NULL DEFAULT 0,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, $2)`,
		string(id), openingBalance,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	var account ledger.Account
	var rawID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance, created_at FROM accounts WHERE id = $1`, string(id),
	).Scan(&rawID, &account.Balance, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return ledger.Account{}, &ledger.AccountNotFoundError{AccountID: id}
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	account.ID = ledger.AccountID(rawID)
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, balance, created_at FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			account ledger.Account
			rawID   string
		)
		if err := rows.Scan(&rawID, &account.Balance, &account.CreatedAt); err != nil {
			return nil, err
		}
		account.ID = ledger.AccountID(rawID)
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// =============================================================================
// JOURNAL QUERIES
// =============================================================================

const entryColumns = `id, account_id, amount, kind, source, balance_before, balance_after, metadata_json, created_at`

func (s *Store) Entries(ctx context.Context, id ledger.AccountID, opts ledger.EntryQuery) ([]ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal WHERE account_id = $1`
	args := []any{string(id)}
	if opts.Source != "" {
		query += ` AND source = $2`
		args = append(args, string(opts.Source))
	}
	query += ` ORDER BY seq DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	return s.queryEntries(ctx, query, args...)
}

func (s *Store) AllEntries(ctx context.Context, id ledger.AccountID) ([]ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal WHERE account_id = $1 ORDER BY seq ASC`
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
		var (
			e            ledger.Entry
			rawID        string
			rawAccount   string
			kind         string
			source       string
			metadataJSON sql.NullString
		)
		err := rows.Scan(&rawID, &rawAccount, &e.Amount, &kind, &source,
			&e.BalanceBefore, &e.BalanceAfter, &metadataJSON, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.ID = ledger.EntryID(rawID)
		e.AccountID = ledger.AccountID(rawAccount)
		e.Kind = ledger.Kind(kind)
		e.Source = ledger.Source(source)
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode entry metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithUnit runs fn inside one database transaction. Balance reads take row
// locks, so units touching the same account serialize at the database.
func (s *Store) WithUnit(ctx context.Context, fn func(ledger.UnitOfWork) error) error {
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

// Balance locks the account row for the remainder of the unit.
func (u *unit) Balance(ctx context.Context, id ledger.AccountID) (int64, error) {
	var balance int64
	err := u.tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, string(id),
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
		`UPDATE accounts SET balance = $1 WHERE id = $2`, balance, string(id))
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
	var metadataJSON any
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode entry metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO journal
		(id, account_id, amount, kind, source, balance_before, balance_after, metadata_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(e.ID),
		string(e.AccountID),
		e.Amount,
		string(e.Kind),
		string(e.Source),
		e.BalanceBefore,
		e.BalanceAfter,
		metadataJSON,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// =============================================================================
// BONUS RULES (modifier.Provider)
// =============================================================================

// ActiveRules returns the bonus rules whose window covers now.
func (s *Store) ActiveRules(ctx context.Context, _ ledger.AccountID, _ ledger.Source) ([]modifier.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sources, multiplier, bonus, starts_at, ends_at
		FROM bonus_rules
		WHERE starts_at <= now() AND ends_at > now()`)
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
		)
		if err := rows.Scan(&r.ID, &r.Name, &sources, &multiplier, &r.Bonus, &r.StartsAt, &r.EndsAt); err != nil {
			return nil, err
		}
		r.Multiplier, err = decimal.NewFromString(multiplier)
		if err != nil {
			return nil, fmt.Errorf("bad multiplier for rule %s: %w", r.ID, err)
		}
		r.Sources = splitSources(sources)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// PutRule inserts or updates a bonus rule. Admin/seeding surface.
func (s *Store) PutRule(ctx context.Context, r modifier.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bonus_rules (id, name, sources, multiplier, bonus, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			sources = EXCLUDED.sources,
			multiplier = EXCLUDED.multiplier,
			bonus = EXCLUDED.bonus,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at`,
		r.ID, r.Name, joinSources(r.Sources), r.Multiplier.String(), r.Bonus,
		r.StartsAt.UTC(), r.EndsAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to put bonus rule: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

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

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate key value") ||
		strings.Contains(err.Error(), "unique constraint"))
}

var (
	_ ledger.Store      = (*Store)(nil)
	_ modifier.Provider = (*Store)(nil)
)
