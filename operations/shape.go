package operations

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/hooks"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/transaction"
)

// shape finalizes a document before it is returned: foreign-key columns are
// projected into relationship linkage, sparse fieldsets are applied, and the
// enrichment hooks run over every attribute bag.
func (e *Engine) shape(ctx context.Context, tx *transaction.Transaction, verb hooks.Verb, doc *document.Document, fields map[string][]string) error {
	if doc == nil {
		return nil
	}
	for _, obj := range doc.Resources() {
		res, ok := e.registry.Get(obj.Type)
		if !ok {
			continue
		}
		projectForeignKeys(res, obj)
		applySparseFields(obj, fields)
	}
	return e.enrich(ctx, tx, verb, doc)
}

// projectForeignKeys lifts belongs-to and polymorphic columns out of the
// attribute bag and into to-one relationship linkage under the field's alias.
// Linkage already resolved by the storage layer, for example by an include,
// is left in place.
func projectForeignKeys(res *schema.ResourceType, obj *document.ResourceObject) {
	for _, f := range res.Fields {
		if !f.Kind.IsRelational() {
			continue
		}
		alias := f.Name
		if f.As != "" {
			alias = f.As
		}

		switch f.Kind {
		case schema.FieldBelongsTo:
			value, present := obj.Attributes[f.Name]
			if !present {
				continue
			}
			delete(obj.Attributes, f.Name)
			if _, done := obj.Relationships[alias]; done {
				continue
			}
			ensureRelationships(obj)
			if value == nil {
				obj.Relationships[alias] = document.ToOneNull()
			} else {
				obj.Relationships[alias] = document.ToOne(f.Target, stringify(value))
			}

		case schema.FieldBelongsToPolymorphic:
			typeValue, typePresent := obj.Attributes[f.TypeColumn]
			idValue, idPresent := obj.Attributes[f.IDColumn]
			delete(obj.Attributes, f.TypeColumn)
			delete(obj.Attributes, f.IDColumn)
			if !typePresent && !idPresent {
				continue
			}
			if _, done := obj.Relationships[alias]; done {
				continue
			}
			ensureRelationships(obj)
			if typeValue == nil || idValue == nil {
				obj.Relationships[alias] = document.ToOneNull()
			} else {
				obj.Relationships[alias] = document.ToOne(stringify(typeValue), stringify(idValue))
			}
		}
	}
}

// applySparseFields drops attributes outside the requested fieldset for the
// resource's type. An absent entry leaves the resource untouched.
func applySparseFields(obj *document.ResourceObject, fields map[string][]string) {
	requested, ok := fields[obj.Type]
	if !ok {
		return
	}
	keep := make(map[string]bool, len(requested))
	for _, name := range requested {
		keep[name] = true
	}
	for name := range obj.Attributes {
		if !keep[name] {
			delete(obj.Attributes, name)
		}
	}
}

// enrich runs the EnrichAttributes hooks over every resource in the document,
// primary and included alike, letting hooks project computed attributes.
func (e *Engine) enrich(ctx context.Context, tx *transaction.Transaction, verb hooks.Verb, doc *document.Document) error {
	if !e.pipeline.Has(hooks.EnrichAttributes) {
		return nil
	}
	hctx := hooks.NewContext(ctx, tx)
	for _, obj := range doc.Resources() {
		res, _ := e.registry.Get(obj.Type)
		state := &hooks.State{
			Verb:       verb,
			Resource:   res,
			ID:         obj.ID,
			Attributes: obj.Attributes,
		}
		if err := e.pipeline.Run(hctx, hooks.EnrichAttributes, state); err != nil {
			return err
		}
		obj.Attributes = state.Attributes
	}
	return nil
}

func ensureRelationships(obj *document.ResourceObject) {
	if obj.Relationships == nil {
		obj.Relationships = make(map[string]*document.Relationship)
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
