// Package event defines the immutable financial event model.
package event

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/types"
)

// TypeReversal is the event type assigned to compensating reversal events.
// All other event types are free-form and caller-defined.
const TypeReversal = "REVERSAL"

// Event is a single immutable financial movement against an account.
// Once recorded an event is never mutated or deleted; corrections are
// expressed as new reversal events that negate the original amount.
type Event struct {
	types.Entity
	ID             id.EventID        `json:"id"`
	TenantID       string            `json:"tenant_id"`
	AccountID      id.AccountID      `json:"account_id"`
	Type           string            `json:"event_type"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotency_key"`
	Reverses       id.EventID        `json:"reverses_event_id,omitempty"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SequenceNumber int64             `json:"sequence_number"`
}

// IsReversal reports whether the event compensates an earlier event.
func (e *Event) IsReversal() bool {
	return !e.Reverses.IsNil()
}

// SortBySequence orders events by their per-account sequence number
// ascending. Sequence order is the ledger's total order; wall-clock
// timestamps are never used for ordering.
func SortBySequence(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].SequenceNumber < events[j].SequenceNumber
	})
}

// SumAmounts returns the exact sum of the events' amounts.
func SumAmounts(events []*Event) decimal.Decimal {
	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.Amount)
	}

	return total
}
