package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is an opaque string-keyed JSON value. Processors read and write it
// by key; it is deliberately left untyped. It backs a Job's data bag, per-job
// config overrides, and an Artifact's metadata map.
type JSONMap map[string]interface{}

func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	var buf []byte
	switch v := src.(type) {
	case string:
		buf = []byte(v)
	case []byte:
		buf = v
	default:
		return fmt.Errorf("unsupported type for json column: %[1]T (%[1]v)", src)
	}
	if len(buf) == 0 {
		*m = JSONMap{}
		return nil
	}
	out := JSONMap{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return fmt.Errorf("error unmarshalling json column: %w", err)
	}
	*m = out
	return nil
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, fmt.Errorf("error marshalling json column: %w", err)
	}
	return string(buf), nil
}

// Merge shallow-merges other into m, overwriting existing keys.
func (m JSONMap) Merge(other JSONMap) {
	for k, v := range other {
		m[k] = v
	}
}

// Clone returns a shallow copy of m.
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StringSlice is a JSON-backed []string column, used for tags.
type StringSlice []string

func (s *StringSlice) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	var buf []byte
	switch v := src.(type) {
	case string:
		buf = []byte(v)
	case []byte:
		buf = v
	default:
		return fmt.Errorf("unsupported type for string slice column: %[1]T (%[1]v)", src)
	}
	if len(buf) == 0 {
		*s = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(buf, &out); err != nil {
		return fmt.Errorf("error unmarshalling string slice column: %w", err)
	}
	*s = out
	return nil
}

func (s StringSlice) Value() (driver.Value, error) {
	buf, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("error marshalling string slice column: %w", err)
	}
	return string(buf), nil
}
