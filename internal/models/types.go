package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()

	ErrInvalidJSON = errors.New("invalid JSON value")
)

// Validate runs struct-tag validation against v using the package validator
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// JSONMap represents a map that can be stored as JSON in a database column
type JSONMap map[string]interface{}

// Scan implements the sql.Scanner interface for database deserialization
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(JSONMap)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("%w: cannot scan type %T into JSONMap", ErrInvalidJSON, value)
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*m = make(JSONMap)
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for database serialization
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshaling JSONMap: %w", err)
	}
	return string(bytes), nil
}

// Clone returns a shallow copy of the map
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StringArray represents a slice that can be stored as JSON in a database column
type StringArray []string

// Scan implements the sql.Scanner interface for database deserialization
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = make(StringArray, 0)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("%w: cannot scan type %T into StringArray", ErrInvalidJSON, value)
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*a = make(StringArray, 0)
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Value implements the driver.Valuer interface for database serialization
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	bytes, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("error marshaling StringArray: %w", err)
	}
	return string(bytes), nil
}

// RawJSON is an arbitrary JSON document stored in a text column
type RawJSON json.RawMessage

// Scan implements the sql.Scanner interface
func (r *RawJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case string:
		*r = RawJSON(v)
	case []byte:
		*r = append((*r)[0:0], v...)
	default:
		return fmt.Errorf("%w: cannot scan type %T into RawJSON", ErrInvalidJSON, value)
	}
	return nil
}

// Value implements the driver.Valuer interface
func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

// MarshalJSON emits the stored document as-is, or null when empty
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores a copy of data
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	if r == nil {
		return errors.New("models.RawJSON: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[0:0], data...)
	return nil
}
