// Package notify publishes best-effort pipeline/task lifecycle events to
// NATS for external observers. It is fire-and-forget: nothing in this
// module ever subscribes back to its own events, so enabling it does not
// make execution distributed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
)

var propagator = propagation.TraceContext{}

// Event describes one run or task transition.
type Event struct {
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"` // run.started, run.finished or run.failed; no task-level kinds are published
	TaskName  string    `json:"task_name,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes Events to one NATS subject. A nil Publisher (no
// NATS_URL configured) is a safe no-op, so callers never need to branch
// on whether notification is enabled.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// Connect dials url and returns a Publisher that emits to subject. If url
// is empty it returns a nil *Publisher whose methods are no-ops.
func Connect(url, subject string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Close closes the underlying NATS connection (nats.Conn.Close; the
// connection is not drained first).
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.nc.Close()
}

// Publish best-effort publishes ev, injecting the current trace context
// into the message headers. Errors are logged, never returned, since a
// dropped lifecycle event must never fail a run.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("marshal lifecycle event failed", "error", err)
		return
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: p.subject, Data: data, Header: hdr}
	if err := p.nc.PublishMsg(msg); err != nil {
		slog.Warn("publish lifecycle event failed", "error", err, "subject", p.subject)
	}
}
