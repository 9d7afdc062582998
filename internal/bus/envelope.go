// Package bus fans committed order events, and (via internal/edgesync)
// catalog invalidations, out to subscribed clients such as thin terminals.
// Order-event envelopes are schema-validated before publication, and all
// envelopes are broadcast through Redis pub/sub so more than one
// edge-server process (or a restarted one) can share the same fan-out
// without re-deriving subscriber state.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tallyforge/edge/internal/order"
)

// Envelope is the wire-level wrapper every published event travels in.
type Envelope struct {
	Type        string          `json:"type"`
	TenantID    string          `json:"tenant_id"`
	OrderID     string          `json:"order_id"`
	Sequence    uint64          `json:"sequence"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

func envelopeFor(tenantID string, ev order.Event, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("bus: encode payload for %s: %w", ev.EventType, err)
	}
	return Envelope{
		Type:        ev.EventType,
		TenantID:    tenantID,
		OrderID:     ev.OrderID,
		Sequence:    ev.Sequence,
		Payload:     payload,
		PublishedAt: now,
	}, nil
}
