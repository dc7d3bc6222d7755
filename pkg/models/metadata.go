package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a free-form JSONB document attached to a customer query.
// Prototype clients were never consistent about its shape, so it is kept
// schemaless and probed by the signal extractor.
type Metadata map[string]interface{}

// Value implements driver.Valuer for JSONB columns
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata source type %T", src)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}

	return json.Unmarshal(data, m)
}

// Child returns a nested object under key, or nil when the key is absent
// or holds a non-object value.
func (m Metadata) Child(key string) Metadata {
	if m == nil {
		return nil
	}
	if child, ok := m[key].(map[string]interface{}); ok {
		return Metadata(child)
	}
	return nil
}
