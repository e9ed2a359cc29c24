// Package mode defines the catalog of task modes the gateway can run.
// A mode binds an input schema, an engine and its configuration under a
// stable identifier; the registry is built once at startup and never
// mutated afterwards.
package mode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/UJ2202/TOMAS/internal/engine"
)

var ErrNotFound = errors.New("mode not found")

type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldFile        FieldType = "file"
	FieldSelect      FieldType = "select"
	FieldMultiselect FieldType = "multiselect"
	FieldNumber      FieldType = "number"
	FieldCheckbox    FieldType = "checkbox"
)

type InputField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	Default  any       `json:"default,omitempty"`
	Help     string    `json:"help,omitempty"`
}

type OutputField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Format      string `json:"format"`
	Description string `json:"description"`
}

type Mode struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	Category           string         `json:"category"`
	Engine             engine.Kind    `json:"engine"`
	Inputs             []InputField   `json:"inputs"`
	Outputs            []OutputField  `json:"outputs"`
	EngineConfig       map[string]any `json:"engine_config,omitempty"`
	InterventionPoints []string       `json:"intervention_points,omitempty"`
	Timeout            time.Duration  `json:"-"`
	Tags               []string       `json:"tags,omitempty"`
	EstimatedTime      string         `json:"estimated_time,omitempty"`
	CostEstimate       string         `json:"cost_estimate,omitempty"`
}

type Filter struct {
	Engine   engine.Kind
	Category string
}

// FieldError names one input field that failed validation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	ModeID string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return fmt.Sprintf("invalid input for mode %s: %s", e.ModeID, strings.Join(parts, "; "))
}

// Registry is the immutable mode catalog. Builders run exactly once in
// NewRegistry; there is no runtime registration path.
type Registry struct {
	order []string
	modes map[string]Mode
}

func NewRegistry(builders ...func() Mode) (*Registry, error) {
	r := &Registry{modes: make(map[string]Mode, len(builders))}
	for _, build := range builders {
		m := build()
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("mode with empty id")
		}
		if _, ok := r.modes[m.ID]; ok {
			return nil, fmt.Errorf("mode %q registered twice", m.ID)
		}
		if _, err := engine.ParseKind(string(m.Engine)); err != nil {
			return nil, fmt.Errorf("mode %q: %w", m.ID, err)
		}
		r.modes[m.ID] = m
		r.order = append(r.order, m.ID)
	}
	return r, nil
}

func (r *Registry) Get(id string) (Mode, error) {
	m, ok := r.modes[id]
	if !ok {
		return Mode{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// List returns modes in registration order, optionally filtered.
func (r *Registry) List(filter Filter) []Mode {
	out := make([]Mode, 0, len(r.order))
	for _, id := range r.order {
		m := r.modes[id]
		if filter.Engine != "" && m.Engine != filter.Engine {
			continue
		}
		if filter.Category != "" && m.Category != filter.Category {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	for _, m := range r.modes {
		seen[m.Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ValidateInput checks input against the mode's schema and returns a
// copy with declared defaults filled in for absent optional fields.
func ValidateInput(m Mode, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}

	var fieldErrs []FieldError
	for _, field := range m.Inputs {
		value, present := out[field.Name]
		if !present || isEmptyValue(value) {
			if field.Default != nil {
				out[field.Name] = field.Default
				continue
			}
			if field.Required {
				fieldErrs = append(fieldErrs, FieldError{Field: field.Name, Reason: "required field is missing"})
			}
			continue
		}

		switch field.Type {
		case FieldSelect:
			str, ok := value.(string)
			if !ok || !contains(field.Options, str) {
				fieldErrs = append(fieldErrs, FieldError{
					Field:  field.Name,
					Reason: fmt.Sprintf("value must be one of %s", strings.Join(field.Options, ", ")),
				})
			}
		case FieldMultiselect:
			for _, item := range toStringSlice(value) {
				if !contains(field.Options, item) {
					fieldErrs = append(fieldErrs, FieldError{
						Field:  field.Name,
						Reason: fmt.Sprintf("%q is not an allowed value", item),
					})
					break
				}
			}
		}
	}

	if len(fieldErrs) > 0 {
		return nil, &ValidationError{ModeID: m.ID, Fields: fieldErrs}
	}
	return out, nil
}

func isEmptyValue(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(tv) == ""
	default:
		return false
	}
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

func toStringSlice(v any) []string {
	switch tv := v.(type) {
	case []string:
		return tv
	case []any:
		out := make([]string, 0, len(tv))
		for _, item := range tv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
