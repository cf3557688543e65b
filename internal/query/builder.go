package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Query is a validated descriptor ready to be applied to a gorm chain.
type Query struct {
	Filters        []clause.Expression
	Orders         []clause.OrderByColumn
	Page           int
	PerPage        int
	IncludeDeleted bool
}

// Default is the unfiltered first page ordered by id.
func Default() Query {
	return Query{
		Orders:  []clause.OrderByColumn{{Column: column("id")}},
		Page:    DefaultPage,
		PerPage: DefaultPerPage,
	}
}

func (q Query) Offset() int {
	return (q.Page - 1) * q.PerPage
}

func (q Query) Limit() int {
	return q.PerPage
}

// Where returns a copy with extra filters appended.
func (q Query) Where(exprs ...clause.Expression) Query {
	filters := make([]clause.Expression, 0, len(q.Filters)+len(exprs))
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, exprs...)
	return q
}

// Filter applies the filter expressions only.
func (q Query) Filter(db *gorm.DB) *gorm.DB {
	for _, f := range q.Filters {
		db = db.Where(f)
	}
	return db
}

// Paginate applies ordering, offset and limit.
func (q Query) Paginate(db *gorm.DB) *gorm.DB {
	for _, o := range q.Orders {
		db = db.Order(o)
	}
	return db.Offset(q.Offset()).Limit(q.Limit())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Build validates d against s and translates it into a Query. Every problem
// is reported, keyed by its position in the descriptor.
func Build(s *Schema, d Descriptor) (Query, error) {
	q := Default()
	var problems []*internal.AppError

	switch {
	case d.PageNumber < 0:
		problems = append(problems, fieldError("page_number", "page_number must be greater than or equal to 1", internal.ErrCodeInvalidValue))
	case d.PageNumber > 0:
		q.Page = d.PageNumber
	}

	switch {
	case d.ItemsPerPage < 0:
		problems = append(problems, fieldError("items_per_page", "items_per_page must be greater than or equal to 1", internal.ErrCodeInvalidValue))
	case d.ItemsPerPage > MaxPerPage:
		problems = append(problems, fieldError("items_per_page", fmt.Sprintf("items_per_page must not exceed %d", MaxPerPage), internal.ErrCodeInvalidValue))
	case d.ItemsPerPage > 0:
		q.PerPage = d.ItemsPerPage
	}

	for i, p := range d.Search {
		expr, skip, errs := buildPredicate(s, i, p)
		if len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		if !skip {
			q.Filters = append(q.Filters, expr)
		}
	}

	if len(d.Order) > 0 {
		orders := make([]clause.OrderByColumn, 0, len(d.Order))
		for i, o := range d.Order {
			key := fmt.Sprintf("order.%d", i)
			f, ok := s.Field(o.FieldName)
			if !ok {
				problems = append(problems, fieldError(key+".field_name", fmt.Sprintf("unknown field %q", o.FieldName), internal.ErrCodeInvalidField))
				continue
			}
			var desc bool
			switch o.Sorting {
			case "", "asc":
			case "desc":
				desc = true
			default:
				problems = append(problems, fieldError(key+".sorting", "sorting must be one of: asc, desc", internal.ErrCodeInvalidValue))
				continue
			}
			orders = append(orders, clause.OrderByColumn{Column: column(f.Column), Desc: desc})
		}
		q.Orders = orders
	}

	if merged := internal.MergeValidation(problems...); merged != nil {
		return Query{}, merged
	}
	return q, nil
}

func buildPredicate(s *Schema, i int, p Predicate) (clause.Expression, bool, []*internal.AppError) {
	key := fmt.Sprintf("search.%d", i)

	f, ok := s.Field(p.FieldName)
	if !ok {
		return nil, false, []*internal.AppError{fieldError(key+".field_name", fmt.Sprintf("unknown field %q", p.FieldName), internal.ErrCodeInvalidField)}
	}

	op := Operator(p.FieldOperator)
	if !supports(f.Kind, op) {
		return nil, false, []*internal.AppError{fieldError(key+".field_operator",
			fmt.Sprintf("operator %q is not valid for %s field %q", p.FieldOperator, f.Kind, p.FieldName), internal.ErrCodeInvalidOperator)}
	}

	if !p.FieldValue.Valid() {
		return nil, false, []*internal.AppError{fieldError(key+".field_value", "field_value is required", internal.ErrCodeInvalidValue)}
	}

	valueKey := key + ".field_value"
	col := column(f.Column)

	switch op {
	case OpIn, OpNin:
		items := p.FieldValue.List()
		if len(items) == 0 {
			return nil, false, []*internal.AppError{fieldError(valueKey, fmt.Sprintf("%s requires a non-empty list", op), internal.ErrCodeInvalidValue)}
		}
		values, errs := coerceAll(f, valueKey, items)
		if len(errs) > 0 {
			return nil, false, errs
		}
		in := clause.IN{Column: col, Values: values}
		if op == OpNin {
			return clause.Not(in), false, nil
		}
		return in, false, nil

	case OpBetween:
		items := p.FieldValue.List()
		if len(items) != 2 {
			return nil, false, []*internal.AppError{fieldError(valueKey, "between requires exactly two values separated by ';'", internal.ErrCodeInvalidValue)}
		}
		values, errs := coerceAll(f, valueKey, items)
		if len(errs) > 0 {
			return nil, false, errs
		}
		return clause.And(clause.Gte{Column: col, Value: values[0]}, clause.Lte{Column: col, Value: values[1]}), false, nil
	}

	if p.FieldValue.Blank() {
		return nil, true, nil
	}

	items := p.FieldValue.List()
	if f.Kind == KindString && len(items) == 0 {
		return nil, true, nil
	}
	values, errs := coerceAll(f, valueKey, items)
	if len(errs) > 0 {
		return nil, false, errs
	}

	exprs := make([]clause.Expression, 0, len(values))
	for _, v := range values {
		exprs = append(exprs, comparison(op, col, v))
	}
	if len(exprs) == 1 {
		return exprs[0], false, nil
	}
	// Negative operators join with AND so they stay the complement of
	// their positive counterpart.
	if op == OpNe || op == OpNContains {
		return clause.And(exprs...), false, nil
	}
	return clause.Or(exprs...), false, nil
}

func comparison(op Operator, col clause.Column, v interface{}) clause.Expression {
	switch op {
	case OpEq:
		return clause.Eq{Column: col, Value: v}
	case OpNe:
		return clause.Neq{Column: col, Value: v}
	case OpLt:
		return clause.Lt{Column: col, Value: v}
	case OpLte:
		return clause.Lte{Column: col, Value: v}
	case OpGt:
		return clause.Gt{Column: col, Value: v}
	case OpGte:
		return clause.Gte{Column: col, Value: v}
	case OpContains:
		return like(col, "%"+escapeLike(v.(string))+"%", false)
	case OpNContains:
		return like(col, "%"+escapeLike(v.(string))+"%", true)
	case OpStartsWith:
		return like(col, escapeLike(v.(string))+"%", false)
	case OpEndsWith:
		return like(col, "%"+escapeLike(v.(string)), false)
	}
	return nil
}

func like(col clause.Column, pattern string, negate bool) clause.Expression {
	sql := "? LIKE ? ESCAPE '\\'"
	if negate {
		sql = "? NOT LIKE ? ESCAPE '\\'"
	}
	return clause.Expr{SQL: sql, Vars: []interface{}{col, pattern}}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func coerceAll(f Field, key string, items []string) ([]interface{}, []*internal.AppError) {
	values := make([]interface{}, 0, len(items))
	var errs []*internal.AppError
	for _, item := range items {
		v, err := Coerce(f, item)
		if err != nil {
			errs = append(errs, fieldError(key, err.Error(), internal.ErrCodeInvalidValue))
			continue
		}
		values = append(values, v)
	}
	return values, errs
}

// Coerce converts raw into the native type of f.
func Coerce(f Field, raw string) (interface{}, error) {
	switch f.Kind {
	case KindString:
		return raw, nil
	case KindInt, KindID:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid integer", raw)
		}
		return n, nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid boolean", raw)
		}
		return b, nil
	case KindEnum:
		for _, allowed := range f.Values {
			if raw == allowed {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("%q must be one of: %s", raw, strings.Join(f.Values, ", "))
	case KindTime:
		return parseTime(raw)
	case KindDate:
		t, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return nil, fmt.Errorf("unsupported field kind %s", f.Kind)
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid ISO-8601 date or date-time", raw)
}

func column(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

func fieldError(field, message string, code internal.ErrorCode) *internal.AppError {
	return internal.NewValidationFieldError(field, message, code)
}
