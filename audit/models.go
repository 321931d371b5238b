// Package audit defines the write-only audit trail model.
//
// Audit records shadow every ledger mutation. The engine only ever appends
// them; they are consumed externally for compliance and observability and are
// never read back by the ledger itself.
package audit

import (
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/types"
)

// Action tags for audit records, one per ledger mutation.
const (
	ActionAccountOpened = "ACCOUNT_OPENED"
	ActionEventRecorded = "EVENT_RECORDED"
	ActionEventReversed = "EVENT_REVERSED"
)

// Entity type tags identifying what an audit record describes.
const (
	EntityAccount = "account"
	EntityEvent   = "event"
)

// Event is a single audit trail record: what happened, to which entity,
// and optionally by whom.
type Event struct {
	types.Entity
	ID         id.AuditEventID `json:"id"`
	TenantID   string          `json:"tenant_id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Actor      string          `json:"actor,omitempty"`
	Payload    map[string]any  `json:"payload,omitempty"`
}
