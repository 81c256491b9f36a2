// Package schema provides the type definitions and registry for resource
// types: attribute fields, relationship declarations, search definitions, and
// per-resource operation options. A registry is built once at startup,
// validated, frozen, and then shared read-only by every operation.
package schema

import (
	"fmt"
	"regexp"
)

// FieldKind is the tagged variant over field definitions: scalar kinds plus
// the two foreign-key-backed kinds.
type FieldKind int

const (
	// Scalar kinds
	FieldString FieldKind = iota
	FieldText
	FieldInt
	FieldFloat
	FieldBool
	FieldTimestamp
	FieldUUID
	FieldJSON
	FieldEnum

	// FieldBelongsTo is a scalar foreign-key column referencing exactly one
	// record of another resource type. The field name is the column name;
	// the relationship is exposed under the field's alias.
	FieldBelongsTo

	// FieldBelongsToPolymorphic is a foreign key whose target type varies
	// per record, stored as a type-column/id-column pair. The field name is
	// the relationship name.
	FieldBelongsToPolymorphic
)

// String returns the string representation of the field kind.
func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldText:
		return "text"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldTimestamp:
		return "timestamp"
	case FieldUUID:
		return "uuid"
	case FieldJSON:
		return "json"
	case FieldEnum:
		return "enum"
	case FieldBelongsTo:
		return "belongs_to"
	case FieldBelongsToPolymorphic:
		return "belongs_to_polymorphic"
	default:
		return "unknown"
	}
}

// IsRelational reports whether the field backs a declared relationship
// rather than a plain attribute.
func (k FieldKind) IsRelational() bool {
	return k == FieldBelongsTo || k == FieldBelongsToPolymorphic
}

// Field describes one schema field of a resource type.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	Nullable bool
	Default  any

	// Scalar constraints. Min/Max bound numeric values, or the length for
	// text kinds.
	Min     *float64
	Max     *float64
	Pattern *regexp.Regexp

	// For FieldEnum.
	EnumValues []string

	// For FieldBelongsTo: the target resource type and the relationship
	// alias under which the link is exposed in documents.
	Target string
	As     string

	// For FieldBelongsToPolymorphic: the allowed target types and the two
	// backing columns.
	AllowedTypes []string
	TypeColumn   string
	IDColumn     string
}

// RelationshipKind enumerates the declared relationship variants.
type RelationshipKind int

const (
	BelongsTo RelationshipKind = iota
	BelongsToPolymorphic
	HasMany
	ManyToMany
)

// String returns the string representation of the relationship kind.
func (k RelationshipKind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case BelongsToPolymorphic:
		return "belongs_to_polymorphic"
	case HasMany:
		return "has_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Relationship describes one relationship of a resource type. BelongsTo and
// BelongsToPolymorphic entries are derived from fields at registration time;
// HasMany and ManyToMany are declared directly.
type Relationship struct {
	Name string
	Kind RelationshipKind

	// Target resource type (belongs_to, has_many, many_to_many).
	Target string

	// For BelongsTo: the foreign-key column on this resource.
	// For HasMany: the foreign-key column on the target resource.
	ForeignKey string

	// For BelongsToPolymorphic.
	AllowedTypes []string
	TypeColumn   string
	IDColumn     string

	// For HasMany with a polymorphic inverse: the name of the polymorphic
	// relationship on the target resource.
	Via string

	// For ManyToMany.
	JoinTable string
	ThisKey   string
	OtherKey  string

	// SkipVerify disables the existence check on related resources during
	// pivot writes.
	SkipVerify bool
}

// Operator enumerates the filter operators a search field may allow.
type Operator int

const (
	OpEq Operator = iota
	OpLike
	OpLT
	OpGT
	OpLTE
	OpGTE
	OpIn
)

// String returns the string representation of the operator.
func (o Operator) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpLike:
		return "like"
	case OpLT:
		return "lt"
	case OpGT:
		return "gt"
	case OpLTE:
		return "lte"
	case OpGTE:
		return "gte"
	case OpIn:
		return "oneOf"
	default:
		return "unknown"
	}
}

// SearchField declares which operators a field accepts in query filters.
type SearchField struct {
	Field     string
	Operators []Operator
}

// Allows reports whether the search field accepts the operator.
func (s *SearchField) Allows(op Operator) bool {
	for _, o := range s.Operators {
		if o == op {
			return true
		}
	}
	return false
}

// ReturnPolicy controls whether write operations re-read and return the full
// record after the write, per verb. AllowRemoteOverride lets a request
// override the registered policy.
type ReturnPolicy struct {
	Post                bool
	Put                 bool
	Patch               bool
	AllowRemoteOverride bool
}

// DefaultPageSize is used when a resource type declares none.
const DefaultPageSize = 20

// ResourceType is the registered definition of a named resource collection.
type ResourceType struct {
	// Name is the resource type name, e.g. "books". It doubles as the
	// backing table name unless Table overrides it.
	Name  string
	Table string

	Fields        map[string]*Field
	Relationships map[string]*Relationship

	// SearchFields is the explicit search schema. When nil, one is derived
	// from the scalar fields at registration time.
	SearchFields map[string]*SearchField

	SortableFields []string
	PageSize       int
	ReturnFull     ReturnPolicy

	// LoadRecordOnPut makes PUT load the current record instead of running
	// a bare existence check.
	LoadRecordOnPut bool
}

// TableName returns the backing table for the resource.
func (r *ResourceType) TableName() string {
	if r.Table != "" {
		return r.Table
	}
	return r.Name
}

// DefaultLimit returns the page size to use when the request names none.
func (r *ResourceType) DefaultLimit() int {
	if r.PageSize > 0 {
		return r.PageSize
	}
	return DefaultPageSize
}

// Sortable reports whether the field is in the sort allow-list.
func (r *ResourceType) Sortable(field string) bool {
	for _, f := range r.SortableFields {
		if f == field {
			return true
		}
	}
	return false
}

// AttributeField returns the scalar field definition for an attribute name,
// or nil when the name is unknown or backs a relationship.
func (r *ResourceType) AttributeField(name string) *Field {
	f, ok := r.Fields[name]
	if !ok || f.Kind.IsRelational() {
		return nil
	}
	return f
}

// allowsType reports whether typ is in the allowed-types set.
func allowsType(allowed []string, typ string) bool {
	for _, t := range allowed {
		if t == typ {
			return true
		}
	}
	return false
}

// AllowsTarget reports whether the polymorphic relationship accepts the
// given target type.
func (rel *Relationship) AllowsTarget(typ string) bool {
	return allowsType(rel.AllowedTypes, typ)
}

// deriveSearchField builds the default search definition for a scalar field.
func deriveSearchField(f *Field) *SearchField {
	switch f.Kind {
	case FieldString, FieldText:
		return &SearchField{Field: f.Name, Operators: []Operator{OpEq, OpLike, OpIn}}
	case FieldInt, FieldFloat, FieldTimestamp:
		return &SearchField{Field: f.Name, Operators: []Operator{OpEq, OpLT, OpGT, OpLTE, OpGTE, OpIn}}
	case FieldBool, FieldUUID, FieldEnum:
		return &SearchField{Field: f.Name, Operators: []Operator{OpEq, OpIn}}
	default:
		return nil
	}
}

// validateName rejects empty identifiers early with a pointed message.
func validateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", kind)
	}
	return nil
}
