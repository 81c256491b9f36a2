package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all registered resource types. It is populated during
// startup, frozen, and from then on shared read-only by every operation;
// there is no ambient global registry.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*ResourceType
	frozen    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]*ResourceType),
	}
}

// Register validates and stores a resource type. Belongs-to relationships are
// derived from the relational fields, and a search schema is derived when the
// resource declares none. Cross-resource references are checked in Freeze to
// allow forward references between resources.
func (r *Registry) Register(res *ResourceType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen; resources must be registered before freeze")
	}
	if err := validateName("resource", res.Name); err != nil {
		return err
	}
	if _, exists := r.resources[res.Name]; exists {
		return fmt.Errorf("resource %s is already registered", res.Name)
	}

	if err := validateStructural(res); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", res.Name, err)
	}

	deriveRelationships(res)
	deriveSearchSchema(res)

	r.resources[res.Name] = res
	return nil
}

// Freeze validates cross-resource references and makes the registry
// immutable. It must be called once after all resources are registered.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateReferences(r.resources); err != nil {
		return err
	}
	r.frozen = true
	return nil
}

// Get retrieves a resource type by name.
func (r *Registry) Get(name string) (*ResourceType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[name]
	return res, ok
}

// Exists reports whether a resource type is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered resource names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered resource types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.resources)
}

// deriveRelationships folds the relational fields into the relationship map
// so the relationship processor sees one uniform declaration set.
func deriveRelationships(res *ResourceType) {
	if res.Relationships == nil {
		res.Relationships = make(map[string]*Relationship)
	}
	for name, rel := range res.Relationships {
		if rel.Name == "" {
			rel.Name = name
		}
	}

	for _, f := range res.Fields {
		switch f.Kind {
		case FieldBelongsTo:
			alias := f.As
			if alias == "" {
				alias = f.Name
			}
			res.Relationships[alias] = &Relationship{
				Name:       alias,
				Kind:       BelongsTo,
				Target:     f.Target,
				ForeignKey: f.Name,
			}
		case FieldBelongsToPolymorphic:
			res.Relationships[f.Name] = &Relationship{
				Name:         f.Name,
				Kind:         BelongsToPolymorphic,
				AllowedTypes: f.AllowedTypes,
				TypeColumn:   f.TypeColumn,
				IDColumn:     f.IDColumn,
			}
		}
	}
}

// deriveSearchSchema fills in the default search schema from scalar fields
// when the resource declares none.
func deriveSearchSchema(res *ResourceType) {
	if res.SearchFields != nil {
		for name, sf := range res.SearchFields {
			if sf.Field == "" {
				sf.Field = name
			}
		}
		return
	}

	res.SearchFields = make(map[string]*SearchField)
	for name, f := range res.Fields {
		if sf := deriveSearchField(f); sf != nil {
			res.SearchFields[name] = sf
		}
	}
}
