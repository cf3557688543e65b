package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 1000

	listDelimiter = ";"
)

// Descriptor is the search request accepted by every listing endpoint.
type Descriptor struct {
	Search       []Predicate `json:"search"`
	Order        []Order     `json:"order"`
	PageNumber   int         `json:"page_number"`
	ItemsPerPage int         `json:"items_per_page"`
}

type Predicate struct {
	FieldName     string `json:"field_name"`
	FieldOperator string `json:"field_operator"`
	FieldValue    Value  `json:"field_value"`
}

type Order struct {
	FieldName string `json:"field_name"`
	Sorting   string `json:"sorting"`
}

// Value holds a JSON scalar as text. Numbers keep their literal form.
type Value struct {
	raw   string
	valid bool
}

func StringValue(s string) Value {
	return Value{raw: s, valid: true}
}

func (v Value) String() string {
	return v.raw
}

// Valid is false when the value was absent or null.
func (v Value) Valid() bool {
	return v.valid
}

// Blank reports a value made only of whitespace.
func (v Value) Blank() bool {
	return strings.TrimSpace(v.raw) == ""
}

// List splits the value on ';' and trims every item. Empty items are dropped.
func (v Value) List() []string {
	parts := strings.Split(v.raw, listDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{raw: s, valid: true}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Value{raw: strconv.FormatBool(b), valid: true}
	case '{', '[':
		return fmt.Errorf("field_value must be a scalar")
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Value{raw: n.String(), valid: true}
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}
