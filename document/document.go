// Package document defines the wire-level document format exchanged with the
// engine: resources, relationship linkage, and the top-level envelope. The
// shapes follow the JSON:API convention of type/id/attributes/relationships
// with an optional included array on responses.
package document

import (
	"encoding/json"
	"fmt"

	"github.com/strata-db/strata/validation"
)

// ResourceIdentifier uniquely names a single resource. It is immutable once
// created.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String returns "type/id", used in error messages.
func (r ResourceIdentifier) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.ID)
}

// ResourceObject is a full resource representation. Attributes never carry
// the raw foreign-key columns backing a declared relationship; those are
// projected into Relationships on output.
type ResourceObject struct {
	Type          string                   `json:"type"`
	ID            string                   `json:"id,omitempty"`
	Attributes    map[string]any           `json:"attributes,omitempty"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
}

// Identifier returns the resource's identifier.
func (r *ResourceObject) Identifier() ResourceIdentifier {
	return ResourceIdentifier{Type: r.Type, ID: r.ID}
}

// Relationship is one entry under a resource's relationships map.
type Relationship struct {
	Data RelationshipData `json:"data"`
}

// ToOne builds a to-one relationship pointing at the given resource.
func ToOne(typ, id string) *Relationship {
	return &Relationship{Data: RelationshipData{One: &ResourceIdentifier{Type: typ, ID: id}}}
}

// ToOneNull builds an explicit null to-one relationship.
func ToOneNull() *Relationship {
	return &Relationship{}
}

// ToMany builds a to-many relationship. An empty slice is a valid, explicit
// empty set.
func ToMany(identifiers ...ResourceIdentifier) *Relationship {
	if identifiers == nil {
		identifiers = []ResourceIdentifier{}
	}
	return &Relationship{Data: RelationshipData{Many: identifiers, many: true}}
}

// RelationshipData is the data member of a relationship. It distinguishes the
// three wire shapes: explicit null, a single identifier, and an ordered
// identifier list (where an empty list is not the same as null).
type RelationshipData struct {
	One  *ResourceIdentifier
	Many []ResourceIdentifier

	many bool
}

// IsNull reports whether the data is an explicit null.
func (d *RelationshipData) IsNull() bool {
	return d.One == nil && !d.many
}

// IsMany reports whether the data is an identifier list.
func (d *RelationshipData) IsMany() bool {
	return d.many
}

// MarshalJSON implements json.Marshaler.
func (d RelationshipData) MarshalJSON() ([]byte, error) {
	switch {
	case d.many:
		if d.Many == nil {
			return json.Marshal([]ResourceIdentifier{})
		}
		return json.Marshal(d.Many)
	case d.One != nil:
		return json.Marshal(d.One)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *RelationshipData) UnmarshalJSON(data []byte) error {
	*d = RelationshipData{}

	trimmed := firstNonSpace(data)
	switch trimmed {
	case 0, 'n': // empty or null
		return nil
	case '[':
		d.many = true
		d.Many = []ResourceIdentifier{}
		return json.Unmarshal(data, &d.Many)
	case '{':
		d.One = &ResourceIdentifier{}
		return json.Unmarshal(data, d.One)
	default:
		return &PayloadError{Message: "relationship data must be null, an object, or an array"}
	}
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// PrimaryData is the data member of a document: a single resource or a
// collection.
type PrimaryData struct {
	One  *ResourceObject
	Many []*ResourceObject

	many bool
}

// SingleResource wraps one resource as primary data.
func SingleResource(obj *ResourceObject) PrimaryData {
	return PrimaryData{One: obj}
}

// ResourceCollection wraps a list of resources as primary data.
func ResourceCollection(objs []*ResourceObject) PrimaryData {
	if objs == nil {
		objs = []*ResourceObject{}
	}
	return PrimaryData{Many: objs, many: true}
}

// IsMany reports whether the primary data is a collection.
func (p *PrimaryData) IsMany() bool {
	return p.many
}

// MarshalJSON implements json.Marshaler.
func (p PrimaryData) MarshalJSON() ([]byte, error) {
	switch {
	case p.many:
		if p.Many == nil {
			return json.Marshal([]*ResourceObject{})
		}
		return json.Marshal(p.Many)
	case p.One != nil:
		return json.Marshal(p.One)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PrimaryData) UnmarshalJSON(data []byte) error {
	*p = PrimaryData{}

	switch firstNonSpace(data) {
	case 0, 'n':
		return nil
	case '[':
		p.many = true
		p.Many = []*ResourceObject{}
		return json.Unmarshal(data, &p.Many)
	case '{':
		p.One = &ResourceObject{}
		return json.Unmarshal(data, p.One)
	default:
		return &PayloadError{Message: "document data must be null, an object, or an array"}
	}
}

// Document is the top-level envelope. Included is populated on read
// responses only; it is never part of the write contract.
type Document struct {
	Data     PrimaryData       `json:"data"`
	Included []*ResourceObject `json:"included,omitempty"`
	Meta     map[string]any    `json:"meta,omitempty"`
}

// Single builds a document with one primary resource.
func Single(obj *ResourceObject) *Document {
	return &Document{Data: SingleResource(obj)}
}

// Collection builds a document with a resource collection.
func Collection(objs []*ResourceObject) *Document {
	return &Document{Data: ResourceCollection(objs)}
}

// Resources returns every attribute-bearing resource in the document, primary
// first, then included.
func (d *Document) Resources() []*ResourceObject {
	var out []*ResourceObject
	if d.Data.One != nil {
		out = append(out, d.Data.One)
	}
	out = append(out, d.Data.Many...)
	out = append(out, d.Included...)
	return out
}

// ValidateWrite checks that the document satisfies the write input contract:
// a single primary resource whose type matches the resource type under which
// the operation was invoked, and no included array. Structural defects are
// payload errors; a type mismatch is a validation failure on the type member.
func (d *Document) ValidateWrite(resourceType string) (*ResourceObject, error) {
	if len(d.Included) > 0 {
		return nil, &PayloadError{Message: "included is not accepted on write operations"}
	}
	if d.Data.IsMany() {
		return nil, &PayloadError{Message: "write operations accept a single resource object"}
	}
	obj := d.Data.One
	if obj == nil {
		return nil, &PayloadError{Message: "document has no primary data"}
	}
	if obj.Type != resourceType {
		return nil, validation.Single("type", "mismatch",
			fmt.Sprintf("resource type %q does not match endpoint type %q", obj.Type, resourceType))
	}
	return obj, nil
}
