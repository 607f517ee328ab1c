package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap handles PostgreSQL JSONB columns (the job's schema document and
// an extraction's extracted_data), implementing sql.Scanner and
// driver.Valuer to convert seamlessly between map[string]any and JSONB.
type JSONBMap map[string]any

// Scan implements sql.Scanner.
func (j *JSONBMap) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("unsupported type for JSONBMap")
	}

	if len(data) == 0 {
		*j = JSONBMap{}
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer.
func (j JSONBMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// CanonicalJSON serializes j with sorted keys and no extraneous whitespace,
// so that same-input implies same-hash across process restarts regardless
// of map iteration order. encoding/json already sorts object keys when
// marshaling a Go map, which is what makes this safe to use directly for
// change-detection hashing.
func (j JSONBMap) CanonicalJSON() ([]byte, error) {
	return json.Marshal(j)
}
