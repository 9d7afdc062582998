package bus

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry validates event payloads against a JSON Schema keyed by
// event type before they're allowed onto the bus. An event type with no
// registered schema passes through unvalidated — schemas are opt-in,
// added as each event payload's shape stabilizes.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles and stores the schema document for an event type.
func (r *SchemaRegistry) Register(eventType, schemaJSON string) error {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + eventType + ".json"
	if err := compiler.AddResource(url, bytes.NewReader([]byte(schemaJSON))); err != nil {
		return fmt.Errorf("bus: add schema resource for %s: %w", eventType, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("bus: compile schema for %s: %w", eventType, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[eventType] = schema
	return nil
}

// Validate checks a decoded JSON value (as produced by json.Unmarshal into
// interface{} or jsonschema.UnmarshalJSON) against the registered schema
// for eventType. A missing schema is not an error.
func (r *SchemaRegistry) Validate(eventType string, payload interface{}) error {
	r.mu.RLock()
	schema, ok := r.schemas[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("bus: payload for %s failed schema validation: %w", eventType, err)
	}
	return nil
}

// envelopeSchema is the minimal shape every envelope itself must satisfy,
// independent of its payload's own schema.
const envelopeSchema = `{
  "type": "object",
  "required": ["type", "order_id", "sequence"],
  "properties": {
    "type": {"type": "string", "minLength": 1},
    "order_id": {"type": "string", "minLength": 1},
    "sequence": {"type": "integer", "minimum": 1}
  }
}`
