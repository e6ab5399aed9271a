package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Details is free-form event context stored as a JSONB column
type Details map[string]interface{}

// Value stores the map as JSON; an empty map is stored as NULL.
func (d Details) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	return b, nil
}

// Scan reads a JSONB column. NULL yields an empty map.
func (d *Details) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Details{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan details: unsupported type %T", src)
	}
	return json.Unmarshal(raw, d)
}
