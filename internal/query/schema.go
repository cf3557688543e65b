package query

import "sort"

// Kind selects the operator set and value coercion of a field.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindTime
	KindDate
	KindEnum
	KindID
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	case KindDate:
		return "date"
	case KindEnum:
		return "enum"
	case KindID:
		return "id"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

type Field struct {
	Column string
	Kind   Kind
	// Values lists the accepted values of an enum field.
	Values []string
}

// Schema is the filterable and sortable surface of one entity.
type Schema struct {
	entity string
	fields map[string]Field
}

func NewSchema(entity string, fields map[string]Field) *Schema {
	cp := make(map[string]Field, len(fields))
	for name, f := range fields {
		if f.Column == "" {
			f.Column = name
		}
		cp[name] = f
	}
	return &Schema{entity: entity, fields: cp}
}

func (s *Schema) Entity() string {
	return s.entity
}

func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// FieldNames returns the declared names in lexical order.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operator is a case-sensitive comparison keyword.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
	OpBetween    Operator = "between"
	OpContains   Operator = "contains"
	OpNContains  Operator = "ncontains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
)

var (
	stringOperators  = []Operator{OpEq, OpNe, OpContains, OpNContains, OpStartsWith, OpEndsWith}
	orderedOperators = []Operator{OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpNin, OpBetween}
	setOperators     = []Operator{OpEq, OpNe, OpIn, OpNin}
)

// Operators returns the operators accepted by fields of kind k.
func Operators(k Kind) []Operator {
	switch k {
	case KindString:
		return stringOperators
	case KindInt, KindTime, KindDate, KindID:
		return orderedOperators
	case KindEnum, KindBool:
		return setOperators
	default:
		return nil
	}
}

func supports(k Kind, op Operator) bool {
	for _, o := range Operators(k) {
		if o == op {
			return true
		}
	}
	return false
}
