package tally_test

import (
	"context"
	"errors"
	"testing"

	tally "github.com/tallyhq/tally"
	"github.com/tallyhq/tally/audit"
	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/store/memory"
	"github.com/tallyhq/tally/types"
)

// failingAuditStore drops every audit write while leaving ledger writes intact.
type failingAuditStore struct {
	*memory.Store
}

func (s *failingAuditStore) CreateAuditEvent(_ context.Context, _ *audit.Event) error {
	return errors.New("audit backend unavailable")
}

func TestAuditFailureNonStrict(t *testing.T) {
	inner := memory.New()
	l, err := tally.New("tenant-a", &failingAuditStore{Store: inner})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	acct, err := l.OpenAccount(ctx, tally.OpenAccountParams{Type: "CASH", Currency: "USD"})
	if err != nil {
		t.Fatalf("OpenAccount should succeed despite audit failure: %v", err)
	}

	evt, err := l.RecordEvent(ctx, tally.RecordEventParams{
		AccountID:      acct.ID,
		Type:           "DEPOSIT",
		Amount:         types.MustAmount("10"),
		Currency:       "USD",
		IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("RecordEvent should succeed despite audit failure: %v", err)
	}

	// The ledger write itself is durable.
	if _, err := inner.GetEventByID(ctx, "tenant-a", evt.ID); err != nil {
		t.Errorf("recorded event not durable: %v", err)
	}
}

func TestAuditFailureStrict(t *testing.T) {
	inner := memory.New()
	l, err := tally.New("tenant-a", &failingAuditStore{Store: inner}, tally.WithStrictAudit())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	_, err = l.OpenAccount(ctx, tally.OpenAccountParams{Type: "CASH", Currency: "USD"})
	if !errors.Is(err, tally.ErrAuditEmission) {
		t.Fatalf("expected ErrAuditEmission, got %v", err)
	}

	// Strict mode surfaces the audit failure but the primary write stands.
	accounts, err := inner.ListAccounts(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("expected the account write to be durable, got %d accounts", len(accounts))
	}
}

func TestAuditSinkFanOut(t *testing.T) {
	var received []*audit.Event
	sink := audit.SinkFunc(func(_ context.Context, e *audit.Event) error {
		received = append(received, e)
		return nil
	})

	st := memory.New()
	l, err := tally.New("tenant-a", st,
		tally.WithActor("ops@example.com"),
		tally.WithAuditSinks(sink),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	acct, err := l.OpenAccount(ctx, tally.OpenAccountParams{Type: "CASH", Currency: "USD"})
	if err != nil {
		t.Fatalf("OpenAccount failed: %v", err)
	}
	if _, err := l.RecordEvent(ctx, tally.RecordEventParams{
		AccountID:      acct.ID,
		Type:           "DEPOSIT",
		Amount:         types.MustAmount("10"),
		Currency:       "USD",
		IdempotencyKey: "k1",
	}); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	if len(received) != 2 {
		t.Fatalf("expected 2 sink deliveries, got %d", len(received))
	}
	for _, e := range received {
		if e.Actor != "ops@example.com" {
			t.Errorf("expected actor attribution, got %q", e.Actor)
		}
	}
}

func TestAuditSinkErrorIgnored(t *testing.T) {
	sink := audit.SinkFunc(func(_ context.Context, _ *audit.Event) error {
		return errors.New("broker down")
	})

	st := memory.New()
	l, err := tally.New("tenant-a", st, tally.WithStrictAudit(), tally.WithAuditSinks(sink))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Sink delivery is best effort even in strict mode; only the durable
	// audit write participates in strictness.
	if _, err := l.OpenAccount(context.Background(), tally.OpenAccountParams{
		Type: "CASH", Currency: "USD",
	}); err != nil {
		t.Errorf("sink failure must not fail the operation: %v", err)
	}
}

// blindOnceStore hides idempotency lookups once, forcing the engine down the
// duplicate-key recovery path that a concurrent writer would trigger.
type blindOnceStore struct {
	*memory.Store
	misses int
}

func (s *blindOnceStore) GetEventByIdempotencyKey(ctx context.Context, tenantID, key string) (*event.Event, error) {
	if s.misses > 0 {
		s.misses--
		return nil, tally.ErrEventNotFound
	}
	return s.Store.GetEventByIdempotencyKey(ctx, tenantID, key)
}

func TestRecordEventDuplicateKeyRace(t *testing.T) {
	inner := memory.New()
	st := &blindOnceStore{Store: inner, misses: 1}

	l, err := tally.New("tenant-a", st)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	acct, err := l.OpenAccount(ctx, tally.OpenAccountParams{Type: "CASH", Currency: "USD"})
	if err != nil {
		t.Fatalf("OpenAccount failed: %v", err)
	}

	first, err := l.RecordEvent(ctx, tally.RecordEventParams{
		AccountID:      acct.ID,
		Type:           "DEPOSIT",
		Amount:         types.MustAmount("42"),
		Currency:       "USD",
		IdempotencyKey: "raced",
	})
	if err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	// The next call misses the idempotency pre-check, hits the storage
	// uniqueness constraint, and must recover by returning the winner.
	st.misses = 1
	second, err := l.RecordEvent(ctx, tally.RecordEventParams{
		AccountID:      acct.ID,
		Type:           "DEPOSIT",
		Amount:         types.MustAmount("999"),
		Currency:       "USD",
		IdempotencyKey: "raced",
	})
	if err != nil {
		t.Fatalf("raced RecordEvent failed: %v", err)
	}
	if !second.ID.Equal(first.ID) {
		t.Errorf("race recovery returned a different event: %q != %q", second.ID, first.ID)
	}
	if !second.Amount.Equal(types.MustAmount("42")) {
		t.Errorf("race recovery must return the winner's amount, got %s", second.Amount)
	}

	events, err := inner.ListEventsByAccount(ctx, "tenant-a", acct.ID)
	if err != nil {
		t.Fatalf("ListEventsByAccount failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected a single durable event, got %d", len(events))
	}
}
