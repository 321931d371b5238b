// Package tally provides an embedded, event-sourced accounting ledger for Go applications.
//
// Tally is designed as a library, not a service. Import it directly into your
// multi-tenant application as its accounting primitive. It provides:
//
//   - Append-only event recording with caller-supplied idempotency keys
//   - Strictly monotonic, gap-free per-account sequence numbers
//   - Compensating reversals instead of edits or deletes
//   - Balances and statements derived from the event history on every call
//   - Integrity verification across sequence, tenancy, and balance invariants
//   - A write-only audit trail shadowing every mutation
//
// # Quick Start
//
// Create a ledger instance bound to a tenant with your preferred store:
//
//	import (
//	    "github.com/tallyhq/tally"
//	    "github.com/tallyhq/tally/store/memory"
//	)
//
//	ledger, err := tally.New("tenant-a", memory.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	acct, err := ledger.OpenAccount(ctx, tally.OpenAccountParams{
//	    Type:     "CASH",
//	    Currency: "USD",
//	})
//
//	evt, err := ledger.RecordEvent(ctx, tally.RecordEventParams{
//	    AccountID:      acct.ID,
//	    Type:           "DEPOSIT",
//	    Amount:         decimal.NewFromInt(100),
//	    Currency:       "USD",
//	    IdempotencyKey: "dep-001",
//	})
//
//	bal, err := ledger.Balance(ctx, acct.ID)
//
// # Core Concepts
//
// Events are immutable. Recording the same idempotency key twice returns the
// original event verbatim, which makes RecordEvent safe to retry after a
// timeout. Corrections are additive: ReverseEvent appends a new event that
// exactly negates the original, and an original can be reversed at most once.
//
// Balances are never stored. Every Balance, Statement, and VerifyIntegrity
// call recomputes from the full event history, so the event log is the single
// source of truth.
//
// All monetary arithmetic uses exact decimals (shopspring/decimal); amounts
// are rendered at a fixed 8 fraction digits and binary floating point is
// never involved.
//
// # Concurrency
//
// A Ledger is safe for concurrent use. Writes to the same account are
// serialized through a per-account lock table, and the storage adapters
// enforce uniqueness on idempotency keys and sequence numbers as hard
// constraints, so the sequence run 1..N stays contiguous even under
// concurrent recordings and out-of-process writers.
//
// # Storage
//
// The engine consumes the store.Store port. Four adapters ship with Tally:
// store/memory (tests and embedding), store/postgres, store/sqlite, and
// store/mongo. The port exposes no update or delete operations on events, so
// append-only is a property of the interface itself.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41 // Account ID
//	evt_01h2xcejqtf2nbrexx3vqjhp41  // Event ID
//	adt_01h455vb4pex5vsknk084sn02q  // Audit record ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package tally
