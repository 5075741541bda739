package validation

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// Catalog holds the ordered rule list registered for each field name.
type Catalog struct {
	rules map[string][]Rule
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{rules: make(map[string][]Rule)}
}

// Register appends rules to the field's list. Rules run in registration order.
func (c *Catalog) Register(field string, rules ...Rule) {
	c.rules[field] = append(c.rules[field], rules...)
}

// Rules returns the rules registered for field.
func (c *Catalog) Rules(field string) []Rule {
	return c.rules[field]
}

// Child validators only look at their own fields, and only when present.
var (
	examinationFields  = []string{"exam_type", "exam_date", "exam_result"}
	prescriptionFields = []string{"medication_name", "dosage", "frequency", "duration"}
	operationFields    = []string{"operation_name", "operation_date", "surgeon", "operation_level"}
	attachmentFields   = []string{"file_name", "file_type", "file_size"}
)

// Engine evaluates catalog rules. It holds no state besides the catalog and
// is safe for concurrent use.
type Engine struct {
	catalog *Catalog
}

// NewEngine returns an engine over catalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// NewDefaultEngine returns an engine over the built-in catalog using the wall clock.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultCatalog(time.Now))
}

// ValidateField runs every rule registered for field against value. Fields
// without rules always pass. A failing Required rule stops evaluation.
func (e *Engine) ValidateField(field string, value any) Violations {
	var out Violations
	for _, r := range e.catalog.Rules(field) {
		found := check(r, value)
		out = append(out, found...)
		if _, ok := r.(Required); ok && len(found) > 0 {
			break
		}
	}
	for i := range out {
		out[i].Field = field
	}
	return out
}

// ValidateRecord checks every present field. Absent fields are never checked,
// so omitting a required field does not produce a violation.
func (e *Engine) ValidateRecord(fs FieldSet) Violations {
	var out Violations
	for _, f := range fs.Fields() {
		out = append(out, e.ValidateField(f.Name, f.Value)...)
	}
	return out
}

func (e *Engine) ValidateExamination(fs FieldSet) Violations {
	return e.validateSubset(fs, examinationFields)
}

func (e *Engine) ValidatePrescription(fs FieldSet) Violations {
	return e.validateSubset(fs, prescriptionFields)
}

func (e *Engine) ValidateOperation(fs FieldSet) Violations {
	return e.validateSubset(fs, operationFields)
}

func (e *Engine) ValidateAttachment(fs FieldSet) Violations {
	return e.validateSubset(fs, attachmentFields)
}

func (e *Engine) validateSubset(fs FieldSet, names []string) Violations {
	present := make(map[string]any)
	for _, f := range fs.Fields() {
		present[f.Name] = f.Value
	}
	var out Violations
	for _, name := range names {
		if v, ok := present[name]; ok {
			out = append(out, e.ValidateField(name, v)...)
		}
	}
	return out
}

func check(r Rule, value any) []Violation {
	switch r := r.(type) {
	case Required:
		if isMissing(value) {
			return []Violation{{Message: r.Message, Code: CodeRequired}}
		}
	case Format:
		s := text(value)
		if s != "" && !r.Parse(s) {
			return []Violation{{Message: r.Message, Code: CodeFormat}}
		}
	case Range:
		return checkRange(r, value)
	case Enum:
		s := text(value)
		for _, allowed := range r.Values {
			if s == allowed {
				return nil
			}
		}
		return []Violation{{Message: r.Message, Code: CodeEnum}}
	case Regex:
		if !r.Pattern.MatchString(text(value)) {
			return []Violation{{Message: r.Message, Code: CodeRegex}}
		}
	case Custom:
		return r.Check(value)
	default:
		panic(fmt.Sprintf("validation: unknown rule type %T", r))
	}
	return nil
}

func checkRange(r Range, value any) []Violation {
	var out []Violation
	fail := func() { out = append(out, Violation{Message: r.Message, Code: CodeRange}) }

	length := utf8.RuneCountInString(text(value))
	if r.MinLength != nil && length < *r.MinLength {
		fail()
	}
	if r.MaxLength != nil && length > *r.MaxLength {
		fail()
	}
	if r.Min == nil && r.Max == nil {
		return out
	}
	// A value that is not a number cannot satisfy a numeric bound.
	n, ok := number(value)
	if r.Min != nil && (!ok || n < *r.Min) {
		fail()
	}
	if r.Max != nil && (!ok || n > *r.Max) {
		fail()
	}
	return out
}

func isMissing(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case *string:
		return v == nil || *v == ""
	}
	return false
}

func text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	}
	return fmt.Sprint(value)
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		return n, err == nil
	}
	return 0, false
}
