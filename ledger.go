package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/account"
	"github.com/tallyhq/tally/audit"
	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/store"
	"github.com/tallyhq/tally/types"
)

// maxSequenceRetries bounds how often a sequence assignment is retried when an
// out-of-process writer takes the assigned slot first.
const maxSequenceRetries = 5

// Ledger is the tenant-scoped accounting engine. It holds no shared mutable
// ledger state: every operation flows through the storage port, so a Ledger
// is safe for concurrent use. Same-account writes are additionally serialized
// through a per-account lock table so that sequence assignment and the
// duplicate-reversal check are atomic read-then-write regions.
type Ledger struct {
	tenantID string
	store    store.Store
	logger   *slog.Logger

	// Configuration
	actor       string
	strictAudit bool
	sinks       []audit.Sink
	now         func() time.Time

	// Per-account serialization
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// New creates a Ledger bound to one tenant identity. It fails fast with
// ErrTenantRequired when no tenant is supplied; tenant identity is trusted as
// given, the engine performs no authentication.
func New(tenantID string, s store.Store, opts ...Option) (*Ledger, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}
	if s == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidInput)
	}

	l := &Ledger{
		tenantID: tenantID,
		store:    s,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithActor attributes all audit records emitted by this instance to the
// given actor.
func WithActor(actor string) Option {
	return func(l *Ledger) {
		l.actor = actor
	}
}

// WithStrictAudit makes a failed audit emission surface as the operation's
// error. The primary ledger write is durable either way; strict mode only
// changes whether the caller hears about the missing audit shadow.
func WithStrictAudit() Option {
	return func(l *Ledger) {
		l.strictAudit = true
	}
}

// WithAuditSinks registers best-effort fan-out targets that receive a copy of
// every audit record after it is durably written.
func WithAuditSinks(sinks ...audit.Sink) Option {
	return func(l *Ledger) {
		l.sinks = append(l.sinks, sinks...)
	}
}

// WithClock overrides the time source. Test support.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// TenantID returns the tenant identity this instance is bound to.
func (l *Ledger) TenantID() string {
	return l.tenantID
}

// accountLock returns the mutex serializing writes to one account. The lock
// table grows with distinct accounts touched by this instance; storage-level
// uniqueness constraints cover writers that do not share this table.
func (l *Ledger) accountLock(accountID id.AccountID) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	mu, ok := l.locks[accountID.String()]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[accountID.String()] = mu
	}

	return mu
}

// ──────────────────────────────────────────────────
// Account Lifecycle
// ──────────────────────────────────────────────────

// OpenAccountParams are the inputs to OpenAccount.
type OpenAccountParams struct {
	AccountID id.AccountID // optional; generated when nil
	Type      string       // free-form classification, e.g. "CASH"
	Currency  string       // ISO 4217, fixed for the account's lifetime
	Metadata  map[string]string
}

// OpenAccount creates a new account for the tenant. Exactly one account row
// and one ACCOUNT_OPENED audit row are written; accounts are immutable after
// this point.
func (l *Ledger) OpenAccount(ctx context.Context, p OpenAccountParams) (*account.Account, error) {
	if strings.TrimSpace(p.Type) == "" {
		return nil, ValidationError{Field: "Type", Message: "account type is required"}
	}
	currency, err := types.NormalizeCurrency(p.Currency)
	if err != nil {
		return nil, ValidationError{Field: "Currency", Message: err.Error()}
	}

	accountID := p.AccountID
	if accountID.IsNil() {
		accountID = id.NewAccountID()
	}

	acct := &account.Account{
		Entity:   types.NewEntityAt(l.now()),
		ID:       accountID,
		TenantID: l.tenantID,
		Type:     p.Type,
		Currency: currency,
		Metadata: p.Metadata,
	}

	if err := l.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	if err := l.emitAudit(ctx, audit.EntityAccount, acct.ID.String(), audit.ActionAccountOpened, map[string]any{
		"account_type": acct.Type,
		"currency":     acct.Currency,
	}); err != nil {
		return acct, err
	}

	return acct, nil
}

// GetAccount retrieves an account by ID within the tenant.
func (l *Ledger) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return l.store.GetAccount(ctx, l.tenantID, accountID)
}

// ListAccounts returns all of the tenant's accounts.
func (l *Ledger) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	return l.store.ListAccounts(ctx, l.tenantID)
}

// ──────────────────────────────────────────────────
// Event Recording
// ──────────────────────────────────────────────────

// RecordEventParams are the inputs to RecordEvent.
type RecordEventParams struct {
	AccountID      id.AccountID
	EventID        id.EventID // optional; generated when nil
	Type           string
	Amount         decimal.Decimal // sign is caller-determined: credits positive, debits negative by convention
	Currency       string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// RecordEvent appends a financial event to an account.
//
// If an event with the same idempotency key already exists for the tenant it
// is returned verbatim: no new event, no new audit row, no error. This makes
// the call safe to retry after a caller-side timeout.
func (l *Ledger) RecordEvent(ctx context.Context, p RecordEventParams) (*event.Event, error) {
	if p.AccountID.IsNil() {
		return nil, ValidationError{Field: "AccountID", Message: "account id is required"}
	}
	if strings.TrimSpace(p.Type) == "" {
		return nil, ValidationError{Field: "Type", Message: "event type is required"}
	}
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return nil, ValidationError{Field: "IdempotencyKey", Message: "idempotency key is required"}
	}
	currency, err := types.NormalizeCurrency(p.Currency)
	if err != nil {
		return nil, ValidationError{Field: "Currency", Message: err.Error()}
	}

	if existing, err := l.store.GetEventByIdempotencyKey(ctx, l.tenantID, p.IdempotencyKey); err == nil {
		return existing, nil
	} else if !IsNotFound(err) {
		return nil, err
	}

	mu := l.accountLock(p.AccountID)
	mu.Lock()
	defer mu.Unlock()

	acct, err := l.store.GetAccount(ctx, l.tenantID, p.AccountID)
	if err != nil {
		return nil, err
	}
	if acct.Currency != currency {
		return nil, fmt.Errorf("%w: account %s holds %s, event is %s",
			ErrCurrencyMismatch, acct.ID, acct.Currency, currency)
	}

	eventID := p.EventID
	if eventID.IsNil() {
		eventID = id.NewEventID()
	}

	evt := &event.Event{
		Entity:         types.NewEntityAt(l.now()),
		ID:             eventID,
		TenantID:       l.tenantID,
		AccountID:      p.AccountID,
		Type:           p.Type,
		Amount:         p.Amount,
		Currency:       currency,
		IdempotencyKey: p.IdempotencyKey,
		Description:    p.Description,
		Metadata:       p.Metadata,
	}

	evt, created, err := l.appendEvent(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !created {
		return evt, nil
	}

	if err := l.emitAudit(ctx, audit.EntityEvent, evt.ID.String(), audit.ActionEventRecorded, map[string]any{
		"account_id": evt.AccountID.String(),
		"event_type": evt.Type,
		"amount":     evt.Amount.String(),
		"currency":   evt.Currency,
	}); err != nil {
		return evt, err
	}

	return evt, nil
}

// ──────────────────────────────────────────────────
// Reversal Protocol
// ──────────────────────────────────────────────────

// ReverseEventParams are the inputs to ReverseEvent.
type ReverseEventParams struct {
	EventID         id.EventID // the original event to reverse
	ReversalEventID id.EventID // optional; generated when nil
	IdempotencyKey  string
	Description     string // optional; defaults to a reference to the original
}

// ReverseEvent appends a compensating event that exactly negates an earlier
// event. The original is never altered; the account's effective position is
// the sum including the reversal. At most one reversal may target a given
// original: a second attempt fails with ErrAlreadyReversed.
func (l *Ledger) ReverseEvent(ctx context.Context, p ReverseEventParams) (*event.Event, error) {
	if p.EventID.IsNil() {
		return nil, ValidationError{Field: "EventID", Message: "original event id is required"}
	}
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return nil, ValidationError{Field: "IdempotencyKey", Message: "idempotency key is required"}
	}

	if existing, err := l.store.GetEventByIdempotencyKey(ctx, l.tenantID, p.IdempotencyKey); err == nil {
		return existing, nil
	} else if !IsNotFound(err) {
		return nil, err
	}

	original, err := l.store.GetEventByID(ctx, l.tenantID, p.EventID)
	if err != nil {
		return nil, err
	}

	mu := l.accountLock(original.AccountID)
	mu.Lock()
	defer mu.Unlock()

	// Full-history scan for an existing reversal of the original. Runs under
	// the account lock so two concurrent reversal attempts cannot both pass.
	history, err := l.store.ListEventsByAccount(ctx, l.tenantID, original.AccountID)
	if err != nil {
		return nil, err
	}
	for _, e := range history {
		if e.Reverses.Equal(original.ID) {
			return nil, fmt.Errorf("%w: event %s reversed by %s",
				ErrAlreadyReversed, original.ID, e.ID)
		}
	}

	reversalID := p.ReversalEventID
	if reversalID.IsNil() {
		reversalID = id.NewEventID()
	}
	description := p.Description
	if description == "" {
		description = fmt.Sprintf("Reversal of event %s", original.ID)
	}

	reversal := &event.Event{
		Entity:         types.NewEntityAt(l.now()),
		ID:             reversalID,
		TenantID:       l.tenantID,
		AccountID:      original.AccountID,
		Type:           event.TypeReversal,
		Amount:         original.Amount.Neg(),
		Currency:       original.Currency,
		IdempotencyKey: p.IdempotencyKey,
		Reverses:       original.ID,
		Description:    description,
	}

	reversal, created, err := l.appendEvent(ctx, reversal)
	if err != nil {
		return nil, err
	}
	if !created {
		return reversal, nil
	}

	if err := l.emitAudit(ctx, audit.EntityEvent, reversal.ID.String(), audit.ActionEventReversed, map[string]any{
		"original_event_id": original.ID.String(),
		"reversal_amount":   reversal.Amount.String(),
	}); err != nil {
		return reversal, err
	}

	return reversal, nil
}

// ──────────────────────────────────────────────────
// Shared append path
// ──────────────────────────────────────────────────

// appendEvent assigns the next sequence number and inserts the event.
// Returns created=false when a concurrent retry with the same idempotency key
// won the race, in which case the existing event is returned instead.
//
// The caller holds the account lock, so in-process callers never conflict.
// The retry loop covers out-of-process writers: a sequence slot taken between
// NextSequenceNumber and CreateEvent surfaces as ErrSequenceConflict from the
// store's uniqueness constraint.
func (l *Ledger) appendEvent(ctx context.Context, evt *event.Event) (*event.Event, bool, error) {
	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		seq, err := l.store.NextSequenceNumber(ctx, evt.TenantID, evt.AccountID)
		if err != nil {
			return nil, false, err
		}
		evt.SequenceNumber = seq

		err = l.store.CreateEvent(ctx, evt)
		switch {
		case err == nil:
			return evt, true, nil

		case errors.Is(err, ErrSequenceConflict):
			l.logger.Debug("sequence slot taken, retrying",
				"account_id", evt.AccountID.String(),
				"sequence", seq,
				"attempt", attempt+1,
			)
			continue

		case errors.Is(err, ErrDuplicateIdempotencyKey):
			existing, lookupErr := l.store.GetEventByIdempotencyKey(ctx, evt.TenantID, evt.IdempotencyKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, false, nil

		default:
			return nil, false, err
		}
	}

	return nil, false, fmt.Errorf("%w: account %s: gave up after %d attempts",
		ErrSequenceConflict, evt.AccountID, maxSequenceRetries)
}

// ──────────────────────────────────────────────────
// Audit emission
// ──────────────────────────────────────────────────

// emitAudit appends an audit record through the storage port and fans it out
// to any configured sinks. The ledger write preceding this call is already
// durable; by default a failure here is logged and swallowed so the financial
// event stays authoritative even when its audit shadow is lost.
func (l *Ledger) emitAudit(ctx context.Context, entityType, entityID, action string, payload map[string]any) error {
	rec := &audit.Event{
		Entity:     types.NewEntityAt(l.now()),
		ID:         id.NewAuditEventID(),
		TenantID:   l.tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      l.actor,
		Payload:    payload,
	}

	if err := l.store.CreateAuditEvent(ctx, rec); err != nil {
		l.logger.Warn("audit emission failed, ledger write remains authoritative",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
		if l.strictAudit {
			return fmt.Errorf("%w: %s on %s: %v", ErrAuditEmission, action, entityID, err)
		}
		return nil
	}

	for _, sink := range l.sinks {
		if err := sink.Emit(ctx, rec); err != nil {
			l.logger.Warn("audit sink emission failed",
				"action", action,
				"audit_id", rec.ID.String(),
				"error", err,
			)
		}
	}

	return nil
}
