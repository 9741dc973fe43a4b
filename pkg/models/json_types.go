// Package models contains domain models for conductor.
package models

import (
	"database/sql/driver"
	"fmt"

	json "github.com/goccy/go-json"
)

// JSONMap is an opaque string-keyed payload stored as a JSON text
// column. The core never inspects its contents beyond the fields it
// validates explicitly.
type JSONMap map[string]any

// Value implements driver.Valuer, serializing the map to JSON text.
// A nil map stores as NULL.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json map: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner, deserializing JSON text into the map.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Clone returns a shallow copy of the map. Nested values are shared.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with the entries of over applied on top.
// Used to layer per-step inputs over the session config.
func (m JSONMap) Merge(over JSONMap) JSONMap {
	if m == nil && over == nil {
		return nil
	}
	out := make(JSONMap, len(m)+len(over))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
