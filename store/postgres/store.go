// Package postgres provides a PostgreSQL storage adapter for Tally.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	tally "github.com/tallyhq/tally"
	"github.com/tallyhq/tally/account"
	"github.com/tallyhq/tally/audit"
	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Store implements store.Store on PostgreSQL via database/sql and lib/pq.
type Store struct {
	db *sql.DB
}

// New creates a store on an existing database handle. The caller owns pool
// configuration; Close closes the handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given DSN and returns a store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: open: %w", err)
	}

	return New(db), nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// mapConstraintErr translates a unique violation into the sentinel error the
// engine expects, keyed by which constraint fired.
func mapConstraintErr(err error, e *event.Event) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return nil
	}

	switch pqErr.Constraint {
	case "idx_tally_events_idem":
		return fmt.Errorf("%w: %q", tally.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
	case "idx_tally_events_seq":
		return fmt.Errorf("%w: account %s sequence %d",
			tally.ErrSequenceConflict, e.AccountID, e.SequenceNumber)
	case "tally_events_pkey":
		return fmt.Errorf("%w: event %s", tally.ErrInvalidInput, e.ID)
	default:
		return nil
	}
}

// ==================== Account methods ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	metadata, err := marshalMetadata(a.Metadata)
	if err != nil {
		return fmt.Errorf("tally/postgres: create account %s: %w", a.ID, err)
	}

	const query = `
INSERT INTO tally_accounts (id, tenant_id, account_type, currency, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.TenantID, a.Type, a.Currency, metadata, a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("%w: account %s", tally.ErrAccountExists, a.ID)
		}
		return fmt.Errorf("tally/postgres: create account %s: %w", a.ID, err)
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, tenantID string, accountID id.AccountID) (*account.Account, error) {
	const query = `
SELECT id, tenant_id, account_type, currency, metadata, created_at
FROM tally_accounts
WHERE tenant_id = $1 AND id = $2`

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, tenantID, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", tally.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: get account %s: %w", accountID, err)
	}

	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, tenantID string) ([]*account.Account, error) {
	const query = `
SELECT id, tenant_id, account_type, currency, metadata, created_at
FROM tally_accounts
WHERE tenant_id = $1
ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/postgres: list accounts: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tally/postgres: list accounts: %w", err)
	}

	return accounts, nil
}

// ==================== Event methods ====================

func (s *Store) CreateEvent(ctx context.Context, e *event.Event) error {
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("tally/postgres: create event %s: %w", e.ID, err)
	}

	const query = `
INSERT INTO tally_events (
    id, tenant_id, account_id, event_type, amount, currency,
    idempotency_key, reverses_event_id, description, metadata,
    sequence_number, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.AccountID, e.Type, e.Amount, e.Currency,
		e.IdempotencyKey, e.Reverses, e.Description, metadata,
		e.SequenceNumber, e.CreatedAt)
	if err != nil {
		if mapped := mapConstraintErr(err, e); mapped != nil {
			return mapped
		}
		return fmt.Errorf("tally/postgres: create event %s: %w", e.ID, err)
	}

	return nil
}

func (s *Store) GetEventByID(ctx context.Context, tenantID string, eventID id.EventID) (*event.Event, error) {
	const query = eventSelect + ` WHERE tenant_id = $1 AND id = $2`

	e, err := scanEvent(s.db.QueryRowContext(ctx, query, tenantID, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s", tally.ErrEventNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: get event %s: %w", eventID, err)
	}

	return e, nil
}

func (s *Store) GetEventByIdempotencyKey(ctx context.Context, tenantID, idemKey string) (*event.Event, error) {
	const query = eventSelect + ` WHERE tenant_id = $1 AND idempotency_key = $2`

	e, err := scanEvent(s.db.QueryRowContext(ctx, query, tenantID, idemKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: idempotency key %q", tally.ErrEventNotFound, idemKey)
	}
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: get event by idempotency key: %w", err)
	}

	return e, nil
}

func (s *Store) ListEventsByAccount(ctx context.Context, tenantID string, accountID id.AccountID) ([]*event.Event, error) {
	const query = eventSelect + `
 WHERE tenant_id = $1 AND account_id = $2
 ORDER BY sequence_number`

	rows, err := s.db.QueryContext(ctx, query, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: list events for account %s: %w", accountID, err)
	}
	defer rows.Close()

	events := make([]*event.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/postgres: list events for account %s: %w", accountID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tally/postgres: list events for account %s: %w", accountID, err)
	}

	return events, nil
}

func (s *Store) NextSequenceNumber(ctx context.Context, tenantID string, accountID id.AccountID) (int64, error) {
	const query = `
SELECT COALESCE(MAX(sequence_number), 0) + 1
FROM tally_events
WHERE tenant_id = $1 AND account_id = $2`

	var next int64
	if err := s.db.QueryRowContext(ctx, query, tenantID, accountID).Scan(&next); err != nil {
		return 0, fmt.Errorf("tally/postgres: next sequence for account %s: %w", accountID, err)
	}

	return next, nil
}

// ==================== Audit methods ====================

func (s *Store) CreateAuditEvent(ctx context.Context, e *audit.Event) error {
	var payload []byte
	if e.Payload != nil {
		var err error
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("tally/postgres: create audit event %s: %w", e.ID, err)
		}
	}

	const query = `
INSERT INTO tally_audit_events (id, tenant_id, entity_type, entity_id, action, actor, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.EntityType, e.EntityID, e.Action, e.Actor, payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("tally/postgres: create audit event %s: %w", e.ID, err)
	}

	return nil
}

// ==================== Lifecycle methods ====================

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Row scanning ====================

const eventSelect = `
SELECT id, tenant_id, account_id, event_type, amount, currency,
       idempotency_key, reverses_event_id, description, metadata,
       sequence_number, created_at
FROM tally_events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		a        account.Account
		metadata []byte
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.Type, &a.Currency, &metadata, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalMetadata(metadata, &a.Metadata); err != nil {
		return nil, err
	}

	return &a, nil
}

func scanEvent(row rowScanner) (*event.Event, error) {
	var (
		e        event.Event
		metadata []byte
	)
	err := row.Scan(
		&e.ID, &e.TenantID, &e.AccountID, &e.Type, &e.Amount, &e.Currency,
		&e.IdempotencyKey, &e.Reverses, &e.Description, &metadata,
		&e.SequenceNumber, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalMetadata(metadata, &e.Metadata); err != nil {
		return nil, err
	}

	return &e, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(m)
}

func unmarshalMetadata(data []byte, dst *map[string]string) error {
	if len(data) == 0 {
		return nil
	}

	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) > 0 {
		*dst = m
	}

	return nil
}
