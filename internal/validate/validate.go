// Package validate checks request parameters against a declarative schema
// before a handler runs.
//
// A Schema is an ordered list of fields. Validate walks it in order and
// stops at the first failure, so the reported field is deterministic.
//
// Values gathered from the query string are always strings. A TypeNumber or
// TypeBool rule on a query parameter can therefore never pass; use a Pattern
// or Tag for those instead.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Type is the expected runtime type of a parameter.
type Type uint8

const (
	// TypeAny declares no type rule.
	TypeAny Type = iota
	TypeString
	// TypeNumber accepts any JSON number.
	TypeNumber
	// TypeInteger accepts JSON numbers without a fractional part.
	TypeInteger
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeInteger:
		return "integer"
	case TypeBool:
		return "bool"
	default:
		return "any"
	}
}

// Field is one rule in a Schema.
type Field struct {
	Name     string
	Type     Type
	Required bool
	// Pattern must match at the start of the value's string form. It is not
	// implicitly anchored at the end; add $ for a full match.
	Pattern *regexp.Regexp
	// Tag is a go-playground/validator tag such as "max=32" or "alpha".
	Tag string
}

// Schema is evaluated in order.
type Schema []Field

// Params maps parameter names to raw values.
type Params map[string]any

// FieldError is the first rule that failed.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Reason }

func missing(f string) *FieldError {
	return &FieldError{Field: f, Reason: "Missing required field: " + f}
}

func badType(f string) *FieldError {
	return &FieldError{Field: f, Reason: "Invalid type for " + f}
}

func badFormat(f string) *FieldError {
	return &FieldError{Field: f, Reason: "Invalid format for " + f}
}

var (
	tagsOnce sync.Once
	tags     *validator.Validate
)

func tagValidator() *validator.Validate {
	tagsOnce.Do(func() {
		tags = validator.New(validator.WithRequiredStructEnabled())
	})
	return tags
}

// Validate returns nil when params satisfy schema, otherwise a *FieldError
// for the first failing field. Parameters the schema does not mention are
// ignored.
func Validate(params Params, schema Schema) error {
	for _, f := range schema {
		v, ok := params[f.Name]
		if !ok {
			if f.Required {
				return missing(f.Name)
			}
			continue
		}
		if !typeMatches(f.Type, v) {
			return badType(f.Name)
		}
		if f.Pattern != nil && !matchesAtStart(f.Pattern, fmt.Sprint(v)) {
			return badFormat(f.Name)
		}
		if f.Tag != "" {
			if err := tagValidator().Var(v, f.Tag); err != nil {
				return badFormat(f.Name)
			}
		}
	}
	return nil
}

func typeMatches(t Type, v any) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case TypeInteger:
		switch n := v.(type) {
		case int, int64, int32:
			return true
		case float64:
			return n == math.Trunc(n) && !math.IsInf(n, 0)
		}
		return false
	case TypeBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

func matchesAtStart(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}
