// Package updates delivers pushed ledger changes to their consumers: the
// websocket hub, the revenue event journal and anything else that implements
// Sink.
package updates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/revenue"
)

// Kind classifies an event.
type Kind string

const (
	// KindRevenueStatus reports a new revenue balance of a dialog.
	KindRevenueStatus Kind = "revenue_status"
	// KindRaw carries an update the client forwards without interpreting,
	// such as the updates returned by a refund.
	KindRaw Kind = "raw"
)

// Event is one delivered update.
type Event struct {
	Kind       Kind            `json:"type"`
	Dialog     dialog.ID       `json:"dialog"`
	Status     *revenue.Status `json:"status,omitempty"`
	Raw        json.RawMessage `json:"update,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Sink consumes events. Publish must not block for long; sinks that do I/O
// log their own failures.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, s := range f {
		s.Publish(ctx, e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
