package tally

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/types"
)

// Balance is an account's derived position. It is recomputed from the full
// event history on every call; no stored running total is ever trusted.
type Balance struct {
	AccountID  id.AccountID    `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
	EventCount int             `json:"event_count"`
}

// Formatted renders the balance at the fixed ledger precision.
func (b *Balance) Formatted() string {
	return types.FormatAmount(b.Balance)
}

// Balance derives an account's balance as the exact sum of every event's
// amount, reversals included.
func (l *Ledger) Balance(ctx context.Context, accountID id.AccountID) (*Balance, error) {
	acct, err := l.store.GetAccount(ctx, l.tenantID, accountID)
	if err != nil {
		return nil, err
	}

	events, err := l.store.ListEventsByAccount(ctx, l.tenantID, accountID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		AccountID:  acct.ID,
		Balance:    event.SumAmounts(events),
		Currency:   acct.Currency,
		EventCount: len(events),
	}, nil
}

// StatementOpts optionally narrows a statement to a timestamp window.
// A zero From or To leaves that side unbounded; bounds are inclusive.
type StatementOpts struct {
	From time.Time
	To   time.Time
}

func (o StatementOpts) includes(t time.Time) bool {
	if !o.From.IsZero() && t.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && t.After(o.To) {
		return false
	}

	return true
}

// StatementEntry is one event together with the account's running balance
// after applying it.
type StatementEntry struct {
	Event          *event.Event    `json:"event"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// Statement is an ordered view of an account's events with running balances.
type Statement struct {
	AccountID      id.AccountID     `json:"account_id"`
	Currency       string           `json:"currency"`
	Entries        []StatementEntry `json:"entries"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	ClosingBalance decimal.Decimal  `json:"closing_balance"`
}

// Statement derives an account statement. Entries are ordered strictly by
// sequence number; running balances are computed over the full ordered
// history before the window filter is applied, so the opening balance is the
// account's true running balance at the window start — the sum of every event
// the filter excluded before the first included entry. Both balances are zero
// when no entries fall inside the window.
func (l *Ledger) Statement(ctx context.Context, accountID id.AccountID, opts StatementOpts) (*Statement, error) {
	acct, err := l.store.GetAccount(ctx, l.tenantID, accountID)
	if err != nil {
		return nil, err
	}

	events, err := l.store.ListEventsByAccount(ctx, l.tenantID, accountID)
	if err != nil {
		return nil, err
	}
	event.SortBySequence(events)

	stmt := &Statement{
		AccountID:      acct.ID,
		Currency:       acct.Currency,
		Entries:        make([]StatementEntry, 0, len(events)),
		OpeningBalance: decimal.Zero,
		ClosingBalance: decimal.Zero,
	}

	running := decimal.Zero
	for _, e := range events {
		running = running.Add(e.Amount)
		if !opts.includes(e.CreatedAt) {
			continue
		}
		if len(stmt.Entries) == 0 {
			stmt.OpeningBalance = running.Sub(e.Amount)
		}
		stmt.Entries = append(stmt.Entries, StatementEntry{
			Event:          e,
			RunningBalance: running,
		})
	}

	if n := len(stmt.Entries); n > 0 {
		stmt.ClosingBalance = stmt.Entries[n-1].RunningBalance
	}

	return stmt, nil
}
