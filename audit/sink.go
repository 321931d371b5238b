package audit

import "context"

// Sink receives a copy of every audit record after it has been durably
// written through the storage port. Sinks are best-effort fan-out: a sink
// failure is logged by the engine and never affects the ledger write or the
// primary audit row.
type Sink interface {
	Emit(ctx context.Context, event *Event) error
}

// SinkFunc is an adapter to use a plain function as a Sink.
type SinkFunc func(ctx context.Context, event *Event) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
