package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tallyforge/edge/internal/order"
)

const envelopeSchemaKey = "__envelope__"

// Clock lets tests control "now" the same way order.Clock does.
type Clock func() time.Time

// Bus publishes committed order events to Redis pub/sub channels scoped
// per tenant, the same role go-redis plays in Sergey-Bar-Alfred's gateway
// for fanning responses out across replicas — here it's edge-server
// replicas (and reconnecting thin clients) instead of gateway workers.
type Bus struct {
	rdb     *redis.Client
	schemas *SchemaRegistry
	clock   Clock
}

// New dials Redis from a redis:// URL and registers the baseline envelope
// schema. clock defaults to time.Now when nil.
func New(redisURL string, clock Clock) (*Bus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("bus: invalid redis url: %w", err)
	}
	if clock == nil {
		clock = time.Now
	}
	registry := NewSchemaRegistry()
	if err := registry.Register(envelopeSchemaKey, envelopeSchema); err != nil {
		return nil, fmt.Errorf("bus: register envelope schema: %w", err)
	}
	return &Bus{rdb: redis.NewClient(opt), schemas: registry, clock: clock}, nil
}

// RegisterPayloadSchema adds a JSON Schema for a specific event type's
// payload, validated in addition to the baseline envelope shape.
func (b *Bus) RegisterPayloadSchema(eventType, schemaJSON string) error {
	return b.schemas.Register(eventType, schemaJSON)
}

func channelFor(tenantID string) string {
	return "edge:" + tenantID + ":events"
}

// Publish validates and broadcasts each event from a committed batch. A
// schema failure on one event does not stop the rest of the batch from
// publishing — bus delivery is best-effort relative to the durable
// storage commit, which already happened by the time Publish is called.
func (b *Bus) Publish(ctx context.Context, tenantID string, events []order.Event) error {
	var errs []error
	for _, ev := range events {
		env, err := envelopeFor(tenantID, ev, b.clock())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.publishEnvelope(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishCatalogInvalidation announces that a catalog entity changed, so
// any in-process read caches for it (thin clients, the REST layer) should
// re-fetch rather than keep serving their stale copy. It travels the same
// per-tenant channel as order events — internal/edgesync is the only
// producer. It carries no order id or sequence, so it is not checked
// against the order-event envelope schema.
func (b *Bus) PublishCatalogInvalidation(ctx context.Context, tenantID, entityKind, entityID string) error {
	payload, err := json.Marshal(map[string]string{"entity_kind": entityKind, "entity_id": entityID})
	if err != nil {
		return fmt.Errorf("bus: encode catalog invalidation: %w", err)
	}
	env := Envelope{
		Type:        "CatalogInvalidate",
		TenantID:    tenantID,
		Payload:     payload,
		PublishedAt: b.clock(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, channelFor(tenantID), raw).Err(); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", channelFor(tenantID), err)
	}
	return nil
}

func (b *Bus) publishEnvelope(ctx context.Context, env Envelope) error {
	if err := b.validate(env); err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, channelFor(env.TenantID), raw).Err(); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", channelFor(env.TenantID), err)
	}
	return nil
}

func (b *Bus) validate(env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope for validation: %w", err)
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("bus: decode envelope for validation: %w", err)
	}
	if err := b.schemas.Validate(envelopeSchemaKey, decoded); err != nil {
		return err
	}
	var payload interface{}
	if len(env.Payload) > 0 {
		payload, err = jsonschema.UnmarshalJSON(bytes.NewReader(env.Payload))
		if err != nil {
			return fmt.Errorf("bus: decode payload for validation: %w", err)
		}
	}
	return b.schemas.Validate(env.Type, payload)
}

// Subscription is a live feed of envelopes for one tenant.
type Subscription struct {
	Envelopes <-chan Envelope
	Close     func() error
}

// Subscribe opens a Redis subscription for a tenant's channel and decodes
// envelopes as they arrive. The returned channel closes when the
// subscription's context is cancelled or Close is called.
func (b *Bus) Subscribe(ctx context.Context, tenantID string) (*Subscription, error) {
	sub := b.rdb.Subscribe(ctx, channelFor(tenantID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("bus: subscribe to %s: %w", channelFor(tenantID), err)
	}

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{Envelopes: out, Close: sub.Close}, nil
}

// Close releases the underlying Redis client connection pool.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
