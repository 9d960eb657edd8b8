package contextgraph

import "encoding/json"

type propertyKind int

const (
	propertyAbsent propertyKind = iota
	propertyBare
	propertyWrapped
)

// Property is a single attribute as delivered by the context broker. Brokers
// emit either a bare JSON value or a one-level `{"value": ...}` wrapper (some
// use `"@value"`); the zero Property is the explicit absent state, so callers
// never have to do key-presence checks on raw maps.
type Property struct {
	kind  propertyKind
	value any
}

// Bare builds a property holding a plain value.
func Bare(v any) Property {
	return Property{kind: propertyBare, value: v}
}

// Wrapped builds a property holding a `{"value": ...}` shaped value.
func Wrapped(v any) Property {
	return Property{kind: propertyWrapped, value: v}
}

// Defined reports whether the property was present at all.
func (p Property) Defined() bool {
	return p.kind != propertyAbsent
}

// Value returns the unwrapped value. The second return is false when the
// property is absent.
func (p Property) Value() (any, bool) {
	if p.kind == propertyAbsent {
		return nil, false
	}
	return p.value, true
}

// String returns the value as a string when it is one.
func (p Property) String() (string, bool) {
	v, ok := p.Value()
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the value as a float64 when it is numeric.
func (p Property) Float() (float64, bool) {
	v, ok := p.Value()
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the value as a bool when it is one.
func (p Property) Bool() (bool, bool) {
	v, ok := p.Value()
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Object returns the value as a JSON object when it is one. Used for nested
// structures such as postal addresses.
func (p Property) Object() (map[string]any, bool) {
	v, ok := p.Value()
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// UnmarshalJSON decodes the broker wire shape into the tagged form.
func (p *Property) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if obj, ok := raw.(map[string]any); ok {
		if v, ok := obj["value"]; ok {
			*p = Wrapped(v)
			return nil
		}
		if v, ok := obj["@value"]; ok {
			*p = Wrapped(v)
			return nil
		}
	}

	*p = Bare(raw)
	return nil
}

// MarshalJSON writes the property back in its original shape.
func (p Property) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case propertyWrapped:
		return json.Marshal(map[string]any{"value": p.value})
	case propertyBare:
		return json.Marshal(p.value)
	default:
		return []byte("null"), nil
	}
}
