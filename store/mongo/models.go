package mongo

import (
	"fmt"
	"time"

	"github.com/tallyhq/tally/account"
	"github.com/tallyhq/tally/audit"
	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/types"
)

// Document models. IDs are stored as TypeID strings and amounts as exact
// decimal strings; BSON doubles would round-trip through binary floating
// point.

type accountDoc struct {
	ID        string            `bson:"id"`
	TenantID  string            `bson:"tenant_id"`
	Type      string            `bson:"account_type"`
	Currency  string            `bson:"currency"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
}

type eventDoc struct {
	ID             string            `bson:"id"`
	TenantID       string            `bson:"tenant_id"`
	AccountID      string            `bson:"account_id"`
	Type           string            `bson:"event_type"`
	Amount         string            `bson:"amount"`
	Currency       string            `bson:"currency"`
	IdempotencyKey string            `bson:"idempotency_key"`
	Reverses       string            `bson:"reverses_event_id,omitempty"`
	Description    string            `bson:"description,omitempty"`
	Metadata       map[string]string `bson:"metadata,omitempty"`
	SequenceNumber int64             `bson:"sequence_number"`
	CreatedAt      time.Time         `bson:"created_at"`
}

type auditDoc struct {
	ID         string         `bson:"id"`
	TenantID   string         `bson:"tenant_id"`
	EntityType string         `bson:"entity_type"`
	EntityID   string         `bson:"entity_id"`
	Action     string         `bson:"action"`
	Actor      string         `bson:"actor,omitempty"`
	Payload    map[string]any `bson:"payload,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
}

func toAccountDoc(a *account.Account) *accountDoc {
	return &accountDoc{
		ID:        a.ID.String(),
		TenantID:  a.TenantID,
		Type:      a.Type,
		Currency:  a.Currency,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
}

func fromAccountDoc(d *accountDoc) (*account.Account, error) {
	accountID, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", d.ID, err)
	}

	return &account.Account{
		Entity:   types.NewEntityAt(d.CreatedAt),
		ID:       accountID,
		TenantID: d.TenantID,
		Type:     d.Type,
		Currency: d.Currency,
		Metadata: d.Metadata,
	}, nil
}

func toEventDoc(e *event.Event) *eventDoc {
	return &eventDoc{
		ID:             e.ID.String(),
		TenantID:       e.TenantID,
		AccountID:      e.AccountID.String(),
		Type:           e.Type,
		Amount:         e.Amount.String(),
		Currency:       e.Currency,
		IdempotencyKey: e.IdempotencyKey,
		Reverses:       e.Reverses.String(),
		Description:    e.Description,
		Metadata:       e.Metadata,
		SequenceNumber: e.SequenceNumber,
		CreatedAt:      e.CreatedAt,
	}
}

func fromEventDoc(d *eventDoc) (*event.Event, error) {
	eventID, err := id.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", d.ID, err)
	}
	accountID, err := id.Parse(d.AccountID)
	if err != nil {
		return nil, fmt.Errorf("event %s account: %w", d.ID, err)
	}
	amount, err := types.ParseAmount(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", d.ID, err)
	}

	var reverses id.EventID
	if d.Reverses != "" {
		reverses, err = id.Parse(d.Reverses)
		if err != nil {
			return nil, fmt.Errorf("event %s reverses: %w", d.ID, err)
		}
	}

	return &event.Event{
		Entity:         types.NewEntityAt(d.CreatedAt),
		ID:             eventID,
		TenantID:       d.TenantID,
		AccountID:      accountID,
		Type:           d.Type,
		Amount:         amount,
		Currency:       d.Currency,
		IdempotencyKey: d.IdempotencyKey,
		Reverses:       reverses,
		Description:    d.Description,
		Metadata:       d.Metadata,
		SequenceNumber: d.SequenceNumber,
	}, nil
}

func toAuditDoc(e *audit.Event) *auditDoc {
	return &auditDoc{
		ID:         e.ID.String(),
		TenantID:   e.TenantID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Actor:      e.Actor,
		Payload:    e.Payload,
		CreatedAt:  e.CreatedAt,
	}
}
