package tally

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyhq/tally/event"
	"github.com/tallyhq/tally/id"
	"github.com/tallyhq/tally/types"
)

func seqEvent(tenantID string, seq int64, amount string) *event.Event {
	return &event.Event{
		Entity:         types.Entity{CreatedAt: time.Now().UTC()},
		ID:             id.NewEventID(),
		TenantID:       tenantID,
		Type:           "DEPOSIT",
		Amount:         types.MustAmount(amount),
		Currency:       "USD",
		SequenceNumber: seq,
	}
}

func TestAuditEvents(t *testing.T) {
	tests := []struct {
		name       string
		events     []*event.Event
		derived    string
		violations []string
	}{
		{
			name:    "empty history",
			events:  nil,
			derived: "0",
		},
		{
			name: "contiguous run",
			events: []*event.Event{
				seqEvent("tenant-a", 1, "10"),
				seqEvent("tenant-a", 2, "20"),
				seqEvent("tenant-a", 3, "-5"),
			},
			derived: "25",
		},
		{
			name: "unsorted input is sorted before checking",
			events: []*event.Event{
				seqEvent("tenant-a", 3, "1"),
				seqEvent("tenant-a", 1, "1"),
				seqEvent("tenant-a", 2, "1"),
			},
			derived: "3",
		},
		{
			name: "single gap",
			events: []*event.Event{
				seqEvent("tenant-a", 1, "10"),
				seqEvent("tenant-a", 3, "10"),
			},
			derived:    "20",
			violations: []string{"sequence gap at position 2: expected sequence 2, found 3"},
		},
		{
			name: "everything after a gap is off by one",
			events: []*event.Event{
				seqEvent("tenant-a", 2, "10"),
				seqEvent("tenant-a", 3, "10"),
			},
			derived: "20",
			violations: []string{
				"expected sequence 1, found 2",
				"expected sequence 2, found 3",
			},
		},
		{
			name: "foreign tenant row",
			events: []*event.Event{
				seqEvent("tenant-a", 1, "10"),
				seqEvent("tenant-b", 2, "10"),
			},
			derived:    "20",
			violations: []string{`event %s belongs to tenant "tenant-b"`},
		},
		{
			name: "balance mismatch",
			events: []*event.Event{
				seqEvent("tenant-a", 1, "10"),
			},
			derived:    "11",
			violations: []string{"balance mismatch: derived 11.00000000, independently calculated 10.00000000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calculated, violations := auditEvents("tenant-a", tt.events, types.MustAmount(tt.derived))

			if len(violations) != len(tt.violations) {
				t.Fatalf("expected %d violations, got %d: %v",
					len(tt.violations), len(violations), violations)
			}
			for i, want := range tt.violations {
				// Violation messages embed generated event IDs; match on the
				// stable fragment only.
				fragment := want
				if idx := strings.Index(fragment, "%s"); idx >= 0 {
					fragment = fragment[:idx]
				}
				if !strings.Contains(violations[i], fragment) {
					t.Errorf("violation %d = %q, want fragment %q", i, violations[i], fragment)
				}
			}

			var want decimal.Decimal
			for _, e := range tt.events {
				want = want.Add(e.Amount)
			}
			if !calculated.Equal(want) {
				t.Errorf("calculated balance %s, want %s", calculated, want)
			}
		})
	}
}

func TestAuditEventsToleranceBoundary(t *testing.T) {
	events := []*event.Event{seqEvent("tenant-a", 1, "10")}

	// A discrepancy at exactly the rendering precision is tolerated; one
	// step beyond it is not.
	within := types.MustAmount("10").Add(types.Tolerance)
	if _, violations := auditEvents("tenant-a", events, within); len(violations) != 0 {
		t.Errorf("discrepancy within tolerance should pass: %v", violations)
	}

	beyond := types.MustAmount("10").Add(types.Tolerance.Mul(decimal.NewFromInt(2)))
	if _, violations := auditEvents("tenant-a", events, beyond); len(violations) != 1 {
		t.Errorf("discrepancy beyond tolerance should fail, got %v", violations)
	}
}
