package validation

import (
	"regexp"
	"strings"
)

// Violation codes, one per rule kind.
const (
	CodeRequired = "required"
	CodeFormat   = "format"
	CodeRange    = "range"
	CodeEnum     = "enum"
	CodeRegex    = "regex"
	CodeCustom   = "custom"
)

// Violation is the output of a failed rule check.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Rule is a single declarative check bound to a field name. The set of
// implementations is closed: Required, Format, Range, Enum, Regex and Custom.
type Rule interface {
	rule()
}

// Required fails when the value is nil or the empty string. Zero numbers are
// present values.
type Required struct {
	Message string
}

// Format fails when a non-empty value does not parse under the named format.
type Format struct {
	Name    string
	Parse   func(string) bool
	Message string
}

// Range checks textual length and numeric magnitude. Every bound that is set
// is checked on its own and may add its own violation.
type Range struct {
	MinLength *int
	MaxLength *int
	Min       *float64
	Max       *float64
	Message   string
}

// Enum fails when the value is not one of Values.
type Enum struct {
	Values  []string
	Message string
}

// Regex fails when the value does not match Pattern.
type Regex struct {
	Pattern *regexp.Regexp
	Message string
}

// Custom delegates to Check, which returns its own violations. The field name
// is stamped by the engine.
type Custom struct {
	Check func(value any) []Violation
}

func (Required) rule() {}
func (Format) rule()   {}
func (Range) rule()    {}
func (Enum) rule()     {}
func (Regex) rule()    {}
func (Custom) rule()   {}

// IntBound and FloatBound build optional Range bounds.
func IntBound(n int) *int { return &n }

func FloatBound(n float64) *float64 { return &n }

// Field is one present input field handed to the engine.
type Field struct {
	Name  string
	Value any
}

// FieldSet is implemented by the fixed-shape input structs. Fields returns
// only the fields that are present, in declaration order.
type FieldSet interface {
	Fields() []Field
}

// Error is returned when a write is rejected because of violations.
type Error struct {
	Violations []Violation `json:"violations"`
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Violations is the result of a validation pass.
type Violations []Violation

// Err returns nil when there are no violations and an *Error otherwise.
func (vs Violations) Err() error {
	if len(vs) == 0 {
		return nil
	}
	return &Error{Violations: vs}
}
