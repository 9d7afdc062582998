package bus

import (
	"bytes"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/edge/internal/order"
)

func TestSchemaRegistry_ValidatesRegisteredType(t *testing.T) {
	r := NewSchemaRegistry()
	require.NoError(t, r.Register("ItemsAdded", `{
		"type": "object",
		"required": ["order_id"],
		"properties": {"order_id": {"type": "string"}}
	}`))

	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(`{"order_id": "o1"}`)))
	require.NoError(t, err)
	assert.NoError(t, r.Validate("ItemsAdded", decoded))

	badDecoded, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	assert.Error(t, r.Validate("ItemsAdded", badDecoded))
}

func TestSchemaRegistry_UnregisteredTypePassesThrough(t *testing.T) {
	r := NewSchemaRegistry()
	assert.NoError(t, r.Validate("UnknownEventType", nil))
}

func TestEnvelopeFor_CopiesSequenceAndOrderID(t *testing.T) {
	ev := order.Event{Sequence: 7, OrderID: "order-1", EventType: "ItemsAdded", Payload: map[string]interface{}{"quantity": 2}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	env, err := envelopeFor("tenant-1", ev, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), env.Sequence)
	assert.Equal(t, "order-1", env.OrderID)
	assert.Equal(t, "tenant-1", env.TenantID)
	assert.Equal(t, now, env.PublishedAt)
}
