// Package store defines the storage port consumed by the Tally engine.
package store

import (
	"context"

	"github.com/tallyhq/tally/account"
	"github.com/tallyhq/tally/audit"
	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
)

// Store is the storage port: every persistence primitive the engine consumes,
// implemented by an adapter (memory, postgres, sqlite, mongo) chosen at
// construction time.
//
// The interface exposes no update or delete operations on accounts or events.
// Append-only is enforced by the shape of this contract, not by convention.
//
// Adapters must enforce three uniqueness constraints as hard constraints at
// the storage layer, surfacing them as the sentinel errors named below:
//
//   - (tenant, account id)                    -> tally.ErrAccountExists
//   - (tenant, idempotency key)               -> tally.ErrDuplicateIdempotencyKey
//   - (tenant, account id, sequence number)   -> tally.ErrSequenceConflict
//
// The engine serializes same-account writes in process, but the constraints
// are what keep the ledger correct against concurrent writers the engine
// cannot see.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, tenantID string, accountID id.AccountID) (*account.Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]*account.Account, error)

	// Event methods
	CreateEvent(ctx context.Context, e *event.Event) error
	GetEventByID(ctx context.Context, tenantID string, eventID id.EventID) (*event.Event, error)
	GetEventByIdempotencyKey(ctx context.Context, tenantID, key string) (*event.Event, error)
	ListEventsByAccount(ctx context.Context, tenantID string, accountID id.AccountID) ([]*event.Event, error)
	NextSequenceNumber(ctx context.Context, tenantID string, accountID id.AccountID) (int64, error)

	// Audit methods
	CreateAuditEvent(ctx context.Context, e *audit.Event) error

	// Lifecycle methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
