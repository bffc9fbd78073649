// Package condition evaluates the named comparison predicates used by
// retry_on, skip_if and field validation rules.
//
// Operands are compared by their rendered string form, except greater_than and
// less_than (numeric, false when either side is not a number) and the
// emptiness checks (which only look at the left operand).
package condition

import (
	"reflect"
	"strconv"
	"strings"

	"flowload/internal/template"
)

type Type string

const (
	Equals      Type = "equals"
	NotEquals   Type = "not_equals"
	Contains    Type = "contains"
	NotContains Type = "not_contains"
	GreaterThan Type = "greater_than"
	LessThan    Type = "less_than"
	IsEmpty     Type = "is_empty"
	IsNotEmpty  Type = "is_not_empty"
)

// Types lists every supported condition.
var Types = []Type{Equals, NotEquals, Contains, NotContains, GreaterThan, LessThan, IsEmpty, IsNotEmpty}

// Known reports whether t names a supported condition.
func Known(t Type) bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

// Combinator joins several right-hand values.
type Combinator int

const (
	Single Combinator = iota
	Or
	And
)

const (
	orToken  = "||"
	andToken = "&&"
)

// Evaluate applies t to a single pair of operands. Unknown types yield false.
func Evaluate(t Type, left, right any) bool {
	switch t {
	case Equals:
		return template.Stringify(left) == template.Stringify(right)
	case NotEquals:
		return template.Stringify(left) != template.Stringify(right)
	case Contains:
		return strings.Contains(template.Stringify(left), template.Stringify(right))
	case NotContains:
		return !strings.Contains(template.Stringify(left), template.Stringify(right))
	case GreaterThan:
		l, r, ok := numbers(left, right)
		return ok && l > r
	case LessThan:
		l, r, ok := numbers(left, right)
		return ok && l < r
	case IsEmpty:
		return empty(left)
	case IsNotEmpty:
		return !empty(left)
	}
	return false
}

// EvaluateMany tests left against each right value. Or needs one match, And
// needs all of them; Single uses only the first value.
func EvaluateMany(t Type, left any, rights []string, c Combinator) bool {
	switch c {
	case Or:
		for _, r := range rights {
			if Evaluate(t, left, r) {
				return true
			}
		}
		return false
	case And:
		for _, r := range rights {
			if !Evaluate(t, left, r) {
				return false
			}
		}
		return true
	default:
		if len(rights) == 0 {
			return Evaluate(t, left, "")
		}
		return Evaluate(t, left, rights[0])
	}
}

// EvaluateRule evaluates a rendered rule whose right side may join several
// alternatives with "||" or "&&".
func EvaluateRule(t Type, left, right string) bool {
	rights, c := Split(right)
	return EvaluateMany(t, left, rights, c)
}

// Split breaks right on "||" or "&&" and trims each piece. "||" is checked
// first; a value with neither is returned as a single piece.
func Split(right string) ([]string, Combinator) {
	var sep string
	var c Combinator
	switch {
	case strings.Contains(right, orToken):
		sep, c = orToken, Or
	case strings.Contains(right, andToken):
		sep, c = andToken, And
	default:
		return []string{right}, Single
	}

	parts := strings.Split(right, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, c
}

// Mixed reports whether right uses both "||" and "&&". Such rules have no
// defined precedence and are rejected by config validation.
func Mixed(right string) bool {
	return strings.Contains(right, orToken) && strings.Contains(right, andToken)
}

func numbers(left, right any) (float64, float64, bool) {
	l, ok := number(left)
	if !ok {
		return 0, 0, false
	}
	r, ok := number(right)
	if !ok {
		return 0, 0, false
	}
	return l, r, true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case nil:
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(template.Stringify(v)), 64)
	return f, err == nil
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
