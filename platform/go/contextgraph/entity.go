package contextgraph

import (
	"encoding/json"
	"fmt"
)

// Entity is a typed context-graph record addressed by a URN-style identifier.
// Everything besides id and type is kept as named properties.
type Entity struct {
	ID         string
	Type       string
	Properties map[string]Property
}

// Property returns the named property; the zero Property means absent.
func (e Entity) Property(name string) Property {
	return e.Properties[name]
}

// UnmarshalJSON splits the identity fields from the attribute payload.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Entity{Properties: make(map[string]Property, len(raw))}
	for key, value := range raw {
		switch key {
		case "id":
			if err := json.Unmarshal(value, &out.ID); err != nil {
				return fmt.Errorf("decode entity id: %w", err)
			}
		case "type":
			if err := json.Unmarshal(value, &out.Type); err != nil {
				return fmt.Errorf("decode entity type: %w", err)
			}
		case "@context":
			// JSON-LD context metadata, not an attribute.
		default:
			var prop Property
			if err := json.Unmarshal(value, &prop); err != nil {
				return fmt.Errorf("decode property %q: %w", key, err)
			}
			out.Properties[key] = prop
		}
	}

	*e = out
	return nil
}

// MarshalJSON flattens the entity back into the broker wire shape.
func (e Entity) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(e.Properties)+2)
	raw["id"] = e.ID
	raw["type"] = e.Type
	for key, prop := range e.Properties {
		raw[key] = prop
	}
	return json.Marshal(raw)
}

// Notification is the payload delivered to a subscription endpoint.
type Notification struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	SubscriptionID string   `json:"subscriptionId"`
	NotifiedAt     string   `json:"notifiedAt"`
	Data           []Entity `json:"data"`
}
