package schema

import (
	"fmt"
	"sort"
)

// validateStructural checks a single resource type in isolation: field and
// relationship declarations must be internally consistent before the resource
// is accepted into the registry.
func validateStructural(res *ResourceType) error {
	if res.Fields == nil {
		return fmt.Errorf("resource %s declares no fields", res.Name)
	}

	// Aliases and column names must not collide across fields.
	columns := make(map[string]string)
	claim := func(col, owner string) error {
		if prev, taken := columns[col]; taken {
			return fmt.Errorf("duplicate field declaration: column %s claimed by both %s and %s", col, prev, owner)
		}
		columns[col] = owner
		return nil
	}

	names := make([]string, 0, len(res.Fields))
	for name := range res.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := res.Fields[name]
		if f.Name == "" {
			f.Name = name
		}
		if f.Name != name {
			return fmt.Errorf("field %s declares mismatched name %s", name, f.Name)
		}
		if err := validateField(f); err != nil {
			return err
		}

		switch f.Kind {
		case FieldBelongsToPolymorphic:
			if err := claim(f.TypeColumn, name); err != nil {
				return err
			}
			if err := claim(f.IDColumn, name); err != nil {
				return err
			}
		default:
			if err := claim(f.Name, name); err != nil {
				return err
			}
		}
	}

	for name, rel := range res.Relationships {
		if rel.Name == "" {
			rel.Name = name
		}
		if err := validateRelationship(res, name, rel); err != nil {
			return err
		}
	}

	for _, field := range res.SortableFields {
		if res.AttributeField(field) == nil && field != "id" {
			return fmt.Errorf("sortable field %s is not a scalar field of %s", field, res.Name)
		}
	}

	return nil
}

// validateField checks one field definition.
func validateField(f *Field) error {
	switch f.Kind {
	case FieldEnum:
		if len(f.EnumValues) == 0 {
			return fmt.Errorf("enum field %s declares no values", f.Name)
		}
	case FieldBelongsTo:
		if f.Target == "" {
			return fmt.Errorf("belongs_to field %s declares no target resource", f.Name)
		}
	case FieldBelongsToPolymorphic:
		if len(f.AllowedTypes) == 0 {
			return fmt.Errorf("polymorphic field %s declares no allowed types", f.Name)
		}
		if f.TypeColumn == "" || f.IDColumn == "" {
			return fmt.Errorf("polymorphic field %s must declare a type column and an id column", f.Name)
		}
	}

	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("field %s declares min greater than max", f.Name)
	}
	return nil
}

// validateRelationship checks one declared relationship definition.
func validateRelationship(res *ResourceType, name string, rel *Relationship) error {
	switch rel.Kind {
	case HasMany:
		if rel.Target == "" {
			return fmt.Errorf("has_many relationship %s declares no target resource", name)
		}
		if rel.ForeignKey == "" && rel.Via == "" {
			return fmt.Errorf("has_many relationship %s must declare a foreign key or a via", name)
		}
	case ManyToMany:
		if rel.Target == "" {
			return fmt.Errorf("many_to_many relationship %s declares no target resource", name)
		}
		if rel.JoinTable == "" || rel.ThisKey == "" || rel.OtherKey == "" {
			return fmt.Errorf("many_to_many relationship %s must declare a join table and both keys", name)
		}
	case BelongsTo, BelongsToPolymorphic:
		// Derived from fields; a direct declaration must not shadow a field.
		if _, ok := res.Fields[name]; !ok && rel.ForeignKey == "" && rel.IDColumn == "" {
			return fmt.Errorf("relationship %s of kind %s must be declared through a field", name, rel.Kind)
		}
	}
	return nil
}

// validateReferences checks cross-resource references once all resources are
// known. Run by Freeze.
func validateReferences(resources map[string]*ResourceType) error {
	exists := func(name string) bool {
		_, ok := resources[name]
		return ok
	}

	for resName, res := range resources {
		for relName, rel := range res.Relationships {
			switch rel.Kind {
			case BelongsTo, HasMany, ManyToMany:
				if !exists(rel.Target) {
					return fmt.Errorf("%s.%s references unknown resource %s", resName, relName, rel.Target)
				}
			case BelongsToPolymorphic:
				for _, t := range rel.AllowedTypes {
					if !exists(t) {
						return fmt.Errorf("%s.%s allows unknown resource %s", resName, relName, t)
					}
				}
			}
		}
	}
	return nil
}
