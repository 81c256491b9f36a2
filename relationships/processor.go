// Package relationships splits the relationship declarations on an incoming
// resource object into scalar foreign-key column updates, merged into the
// attribute bag before the main write, and many-to-many pivot operations,
// executed against the join table after it.
//
// Relationship names not declared on the resource type are silently ignored
// to keep payloads forward-compatible. That policy is deliberate but awaits
// product-owner confirmation; see DESIGN.md.
package relationships

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/validation"
)

// Mode selects the replace-vs-merge semantics for relationships absent from
// the input.
type Mode int

const (
	// Merge leaves omitted relationships untouched (PATCH, POST).
	Merge Mode = iota
	// Replace clears omitted relationships: foreign keys are nulled and
	// many-to-many sets are emptied (PUT).
	Replace
)

// PivotOp is one queued many-to-many replacement, applied by the pivot
// manager after the main record write, inside the same transaction.
type PivotOp struct {
	Name       string
	Definition *schema.Relationship
	Targets    []document.ResourceIdentifier
}

// Process resolves the declared relationships of one input object. It returns
// the foreign-key column updates to merge into the attribute bag and the
// pivot operations to run after the main write.
func Process(res *schema.ResourceType, input map[string]*document.Relationship, mode Mode) (map[string]any, []PivotOp, error) {
	columns := make(map[string]any)
	var pivots []PivotOp
	errs := validation.NewErrors()

	names := make([]string, 0, len(input))
	for name := range input {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rel := input[name]
		def, declared := res.Relationships[name]
		if !declared {
			// Unknown relationship names are ignored by policy.
			continue
		}
		if rel == nil {
			rel = document.ToOneNull()
		}

		switch def.Kind {
		case schema.BelongsTo:
			processBelongsTo(name, def, &rel.Data, columns, errs)
		case schema.BelongsToPolymorphic:
			processPolymorphic(name, def, &rel.Data, columns, errs)
		case schema.ManyToMany:
			op, ok := buildPivotOp(name, def, &rel.Data, errs)
			if ok {
				pivots = append(pivots, op)
			}
		case schema.HasMany:
			// The foreign key lives on the other side; linkage is
			// read-only through this resource.
		}
	}

	if mode == Replace {
		clearOmitted(res, input, columns, &pivots)
	}

	if errs.HasViolations() {
		return nil, nil, errs
	}
	return columns, pivots, nil
}

func processBelongsTo(name string, def *schema.Relationship, data *document.RelationshipData, columns map[string]any, errs *validation.Errors) {
	switch {
	case data.IsMany():
		errs.Add(name, "data", "to-one relationship data must be an object or null")
	case data.IsNull():
		columns[def.ForeignKey] = nil
	default:
		if data.One.Type != def.Target {
			errs.Add(name, "type", fmt.Sprintf("must reference a %s resource", def.Target))
			return
		}
		columns[def.ForeignKey] = data.One.ID
	}
}

func processPolymorphic(name string, def *schema.Relationship, data *document.RelationshipData, columns map[string]any, errs *validation.Errors) {
	switch {
	case data.IsMany():
		errs.Add(name, "data", "to-one relationship data must be an object or null")
	case data.IsNull():
		columns[def.TypeColumn] = nil
		columns[def.IDColumn] = nil
	default:
		if !def.AllowsTarget(data.One.Type) {
			errs.Add(name, "oneOf", fmt.Sprintf("type must be one of: %s", strings.Join(def.AllowedTypes, ", ")))
			return
		}
		columns[def.TypeColumn] = data.One.Type
		columns[def.IDColumn] = data.One.ID
	}
}

func buildPivotOp(name string, def *schema.Relationship, data *document.RelationshipData, errs *validation.Errors) (PivotOp, bool) {
	switch {
	case data.IsNull():
		// Explicit null clears the set.
		return PivotOp{Name: name, Definition: def, Targets: []document.ResourceIdentifier{}}, true
	case !data.IsMany():
		errs.Add(name, "data", "to-many relationship data must be an array or null")
		return PivotOp{}, false
	default:
		return PivotOp{Name: name, Definition: def, Targets: data.Many}, true
	}
}

// clearOmitted implements the defining PUT behavior: every declared
// relationship not present in the input is explicitly cleared.
func clearOmitted(res *schema.ResourceType, input map[string]*document.Relationship, columns map[string]any, pivots *[]PivotOp) {
	names := make([]string, 0, len(res.Relationships))
	for name := range res.Relationships {
		if _, present := input[name]; !present {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		def := res.Relationships[name]
		switch def.Kind {
		case schema.BelongsTo:
			columns[def.ForeignKey] = nil
		case schema.BelongsToPolymorphic:
			columns[def.TypeColumn] = nil
			columns[def.IDColumn] = nil
		case schema.ManyToMany:
			*pivots = append(*pivots, PivotOp{
				Name:       name,
				Definition: def,
				Targets:    []document.ResourceIdentifier{},
			})
		}
	}
}
