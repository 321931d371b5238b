// Package memory provides an in-memory storage adapter for Tally.
//
// It is the reference implementation of the storage port and the test double
// for the engine. It enforces the same uniqueness constraints the durable
// adapters do, so engine behavior under constraint violations can be
// exercised without a database.
package memory

import (
	"context"
	"fmt"
	"sync"

	tally "github.com/tallyhq/tally"
	"github.com/tallyhq/tally/account"
	"github.com/tallyhq/tally/audit"
	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store is a mutex-guarded in-memory implementation of store.Store.
// All reads return copies so callers can never mutate stored records.
type Store struct {
	mu sync.RWMutex

	accounts        map[string]*account.Account // key: tenant/accountID
	events          map[string]*event.Event     // key: tenant/eventID
	eventsByIdem    map[string]*event.Event     // key: tenant/idempotencyKey
	eventsByAccount map[string][]*event.Event   // key: tenant/accountID

	audits []*audit.Event

	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:        make(map[string]*account.Account),
		events:          make(map[string]*event.Event),
		eventsByIdem:    make(map[string]*event.Event),
		eventsByAccount: make(map[string][]*event.Event),
		audits:          make([]*audit.Event, 0),
	}
}

func key(tenantID, suffix string) string {
	return tenantID + "/" + suffix
}

// ==================== Account methods ====================

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tally.ErrStoreClosed
	}

	k := key(a.TenantID, a.ID.String())
	if _, exists := s.accounts[k]; exists {
		return fmt.Errorf("%w: account %s", tally.ErrAccountExists, a.ID)
	}
	s.accounts[k] = cloneAccount(a)

	return nil
}

func (s *Store) GetAccount(_ context.Context, tenantID string, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	if a, ok := s.accounts[key(tenantID, accountID.String())]; ok {
		return cloneAccount(a), nil
	}

	return nil, fmt.Errorf("%w: account %s", tally.ErrAccountNotFound, accountID)
}

func (s *Store) ListAccounts(_ context.Context, tenantID string) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if a.TenantID == tenantID {
			result = append(result, cloneAccount(a))
		}
	}

	return result, nil
}

// ==================== Event methods ====================

func (s *Store) CreateEvent(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tally.ErrStoreClosed
	}

	eventKey := key(e.TenantID, e.ID.String())
	if _, exists := s.events[eventKey]; exists {
		return fmt.Errorf("%w: event %s", tally.ErrInvalidInput, e.ID)
	}

	idemKey := key(e.TenantID, e.IdempotencyKey)
	if _, exists := s.eventsByIdem[idemKey]; exists {
		return fmt.Errorf("%w: %q", tally.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
	}

	accountKey := key(e.TenantID, e.AccountID.String())
	for _, existing := range s.eventsByAccount[accountKey] {
		if existing.SequenceNumber == e.SequenceNumber {
			return fmt.Errorf("%w: account %s sequence %d",
				tally.ErrSequenceConflict, e.AccountID, e.SequenceNumber)
		}
	}

	stored := cloneEvent(e)
	s.events[eventKey] = stored
	s.eventsByIdem[idemKey] = stored
	s.eventsByAccount[accountKey] = append(s.eventsByAccount[accountKey], stored)

	return nil
}

func (s *Store) GetEventByID(_ context.Context, tenantID string, eventID id.EventID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	if e, ok := s.events[key(tenantID, eventID.String())]; ok {
		return cloneEvent(e), nil
	}

	return nil, fmt.Errorf("%w: event %s", tally.ErrEventNotFound, eventID)
}

func (s *Store) GetEventByIdempotencyKey(_ context.Context, tenantID, idemKey string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	if e, ok := s.eventsByIdem[key(tenantID, idemKey)]; ok {
		return cloneEvent(e), nil
	}

	return nil, fmt.Errorf("%w: idempotency key %q", tally.ErrEventNotFound, idemKey)
}

func (s *Store) ListEventsByAccount(_ context.Context, tenantID string, accountID id.AccountID) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	stored := s.eventsByAccount[key(tenantID, accountID.String())]
	result := make([]*event.Event, 0, len(stored))
	for _, e := range stored {
		result = append(result, cloneEvent(e))
	}

	return result, nil
}

func (s *Store) NextSequenceNumber(_ context.Context, tenantID string, accountID id.AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, tally.ErrStoreClosed
	}

	var maxSeq int64
	for _, e := range s.eventsByAccount[key(tenantID, accountID.String())] {
		if e.SequenceNumber > maxSeq {
			maxSeq = e.SequenceNumber
		}
	}

	return maxSeq + 1, nil
}

// ==================== Audit methods ====================

func (s *Store) CreateAuditEvent(_ context.Context, e *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tally.ErrStoreClosed
	}

	s.audits = append(s.audits, cloneAudit(e))

	return nil
}

// AuditEvents returns a copy of the audit trail. The engine never reads
// audit records back; this accessor exists for embedders and tests that
// consume the trail out-of-band.
func (s *Store) AuditEvents() []*audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Event, 0, len(s.audits))
	for _, e := range s.audits {
		result = append(result, cloneAudit(e))
	}

	return result
}

// ==================== Lifecycle methods ====================

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tally.ErrStoreClosed
	}

	return nil
}

// Close marks the store closed. Subsequent calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

// ==================== Clone helpers ====================

func cloneAccount(a *account.Account) *account.Account {
	c := *a
	c.Metadata = cloneStringMap(a.Metadata)

	return &c
}

func cloneEvent(e *event.Event) *event.Event {
	c := *e
	c.Metadata = cloneStringMap(e.Metadata)

	return &c
}

func cloneAudit(e *audit.Event) *audit.Event {
	c := *e
	if e.Payload != nil {
		c.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			c.Payload[k] = v
		}
	}

	return &c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}

	return c
}
