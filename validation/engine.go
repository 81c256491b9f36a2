// Package validation coerces and validates attribute bags against a resource
// schema. Field definitions are compiled into reusable checkers the first
// time a resource is validated, not re-interpreted per call.
package validation

import (
	"sort"
	"sync"

	"github.com/strata-db/strata/schema"
)

// Mode selects how much of the schema is enforced.
type Mode int

const (
	// Full enforces every required field and applies defaults. Used for
	// create and full-replace.
	Full Mode = iota
	// Partial checks only the provided fields. Used for merge-update and
	// for filter parameters.
	Partial
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	if m == Partial {
		return "partial"
	}
	return "full"
}

// Engine validates attribute bags. Safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	compiled map[string]*compiledResource
}

// NewEngine creates a validation engine.
func NewEngine() *Engine {
	return &Engine{compiled: make(map[string]*compiledResource)}
}

type compiledResource struct {
	// fields holds one compiled checker per scalar field, in sorted order
	// so violations come out deterministically.
	fields []*fieldChecker
	byName map[string]*fieldChecker
}

type fieldChecker struct {
	field *schema.Field
	check checkFunc
}

// compile builds the per-field checkers for a resource once.
func (e *Engine) compile(res *schema.ResourceType) *compiledResource {
	e.mu.RLock()
	cr, ok := e.compiled[res.Name]
	e.mu.RUnlock()
	if ok {
		return cr
	}

	cr = &compiledResource{byName: make(map[string]*fieldChecker)}

	names := make([]string, 0, len(res.Fields))
	for name := range res.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := res.Fields[name]
		if f.Kind.IsRelational() {
			continue
		}
		fc := &fieldChecker{field: f, check: compileField(f)}
		cr.fields = append(cr.fields, fc)
		cr.byName[name] = fc
	}

	e.mu.Lock()
	e.compiled[res.Name] = cr
	e.mu.Unlock()
	return cr
}

// Validate coerces and validates an attribute bag. In Full mode every
// required field is enforced and defaults are applied; in Partial mode only
// the provided fields are checked. The input map is never mutated.
func (e *Engine) Validate(res *schema.ResourceType, attrs map[string]any, mode Mode) (map[string]any, error) {
	cr := e.compile(res)
	errs := NewErrors()
	out := make(map[string]any, len(attrs))

	// Unknown attributes are rejected; relationship-backed columns must
	// arrive through the relationships map, never as raw attributes.
	unknown := make([]string, 0)
	for name := range attrs {
		if _, ok := cr.byName[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		if f, ok := res.Fields[name]; ok && f.Kind.IsRelational() {
			errs.Add(name, "unknown", "foreign keys are set through relationships, not attributes")
		} else {
			errs.Add(name, "unknown", "unknown attribute")
		}
	}

	for _, fc := range cr.fields {
		value, present := attrs[fc.field.Name]
		if !present {
			if mode == Partial {
				continue
			}
			if fc.field.Default != nil {
				out[fc.field.Name] = fc.field.Default
				continue
			}
			if fc.field.Required {
				errs.Add(fc.field.Name, "required", "is required")
			}
			continue
		}

		coerced, violation := fc.check(value)
		if violation != nil {
			errs.Violations = append(errs.Violations, *violation)
			continue
		}
		out[fc.field.Name] = coerced
	}

	if errs.HasViolations() {
		return nil, errs
	}
	return out, nil
}
