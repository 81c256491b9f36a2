package relationships

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/validation"
)

func postResource() *schema.ResourceType {
	return &schema.ResourceType{
		Name: "posts",
		Fields: map[string]*schema.Field{
			"title": {Name: "title", Kind: schema.FieldString},
		},
		Relationships: map[string]*schema.Relationship{
			"author": {
				Name:       "author",
				Kind:       schema.BelongsTo,
				Target:     "authors",
				ForeignKey: "author_id",
			},
			"subject": {
				Name:         "subject",
				Kind:         schema.BelongsToPolymorphic,
				AllowedTypes: []string{"books", "films"},
				TypeColumn:   "subject_type",
				IDColumn:     "subject_id",
			},
			"tags": {
				Name:      "tags",
				Kind:      schema.ManyToMany,
				Target:    "tags",
				JoinTable: "post_tags",
				ThisKey:   "post_id",
				OtherKey:  "tag_id",
			},
			"comments": {
				Name:       "comments",
				Kind:       schema.HasMany,
				Target:     "comments",
				ForeignKey: "post_id",
			},
		},
	}
}

func TestProcessBelongsTo(t *testing.T) {
	res := postResource()

	columns, pivots, err := Process(res, map[string]*document.Relationship{
		"author": document.ToOne("authors", "a1"),
	}, Merge)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"author_id": "a1"}, columns)
	assert.Empty(t, pivots)
}

func TestProcessBelongsToNull(t *testing.T) {
	res := postResource()

	columns, _, err := Process(res, map[string]*document.Relationship{
		"author": document.ToOneNull(),
	}, Merge)
	require.NoError(t, err)
	require.Contains(t, columns, "author_id")
	assert.Nil(t, columns["author_id"])
}

func TestProcessBelongsToTypeMismatch(t *testing.T) {
	res := postResource()

	_, _, err := Process(res, map[string]*document.Relationship{
		"author": document.ToOne("books", "b1"),
	}, Merge)
	require.Error(t, err)
	require.True(t, validation.IsValidation(err))

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "author", verr.Violations[0].Field)
	assert.Equal(t, "type", verr.Violations[0].Rule)
}

func TestProcessBelongsToRejectsArray(t *testing.T) {
	res := postResource()

	_, _, err := Process(res, map[string]*document.Relationship{
		"author": document.ToMany(document.ResourceIdentifier{Type: "authors", ID: "a1"}),
	}, Merge)
	require.Error(t, err)

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "data", verr.Violations[0].Rule)
}

func TestProcessPolymorphic(t *testing.T) {
	res := postResource()

	columns, _, err := Process(res, map[string]*document.Relationship{
		"subject": document.ToOne("films", "f1"),
	}, Merge)
	require.NoError(t, err)
	assert.Equal(t, "films", columns["subject_type"])
	assert.Equal(t, "f1", columns["subject_id"])
}

func TestProcessPolymorphicRejectsDisallowedType(t *testing.T) {
	res := postResource()

	_, _, err := Process(res, map[string]*document.Relationship{
		"subject": document.ToOne("users", "u1"),
	}, Merge)
	require.Error(t, err)

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "subject", verr.Violations[0].Field)
	assert.Equal(t, "oneOf", verr.Violations[0].Rule)
	assert.Contains(t, verr.Violations[0].Message, "books, films")
}

func TestProcessPolymorphicNullClearsBothColumns(t *testing.T) {
	res := postResource()

	columns, _, err := Process(res, map[string]*document.Relationship{
		"subject": document.ToOneNull(),
	}, Merge)
	require.NoError(t, err)
	require.Contains(t, columns, "subject_type")
	require.Contains(t, columns, "subject_id")
	assert.Nil(t, columns["subject_type"])
	assert.Nil(t, columns["subject_id"])
}

func TestProcessManyToMany(t *testing.T) {
	res := postResource()

	columns, pivots, err := Process(res, map[string]*document.Relationship{
		"tags": document.ToMany(
			document.ResourceIdentifier{Type: "tags", ID: "t1"},
			document.ResourceIdentifier{Type: "tags", ID: "t2"},
		),
	}, Merge)
	require.NoError(t, err)
	assert.Empty(t, columns)
	require.Len(t, pivots, 1)
	assert.Equal(t, "tags", pivots[0].Name)
	require.Len(t, pivots[0].Targets, 2)
	assert.Equal(t, "t1", pivots[0].Targets[0].ID)
}

func TestProcessManyToManyNullClears(t *testing.T) {
	res := postResource()

	_, pivots, err := Process(res, map[string]*document.Relationship{
		"tags": document.ToOneNull(),
	}, Merge)
	require.NoError(t, err)
	require.Len(t, pivots, 1)
	assert.Empty(t, pivots[0].Targets)
}

func TestProcessManyToManyRejectsObject(t *testing.T) {
	res := postResource()

	_, _, err := Process(res, map[string]*document.Relationship{
		"tags": document.ToOne("tags", "t1"),
	}, Merge)
	require.Error(t, err)

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tags", verr.Violations[0].Field)
	assert.Equal(t, "data", verr.Violations[0].Rule)
}

func TestProcessIgnoresUnknownNames(t *testing.T) {
	res := postResource()

	columns, pivots, err := Process(res, map[string]*document.Relationship{
		"reviewers": document.ToOne("users", "u1"),
	}, Merge)
	require.NoError(t, err)
	assert.Empty(t, columns)
	assert.Empty(t, pivots)
}

func TestProcessHasManyIsReadOnly(t *testing.T) {
	res := postResource()

	columns, pivots, err := Process(res, map[string]*document.Relationship{
		"comments": document.ToMany(document.ResourceIdentifier{Type: "comments", ID: "c1"}),
	}, Merge)
	require.NoError(t, err)
	assert.Empty(t, columns)
	assert.Empty(t, pivots)
}

func TestProcessReplaceClearsOmitted(t *testing.T) {
	res := postResource()

	columns, pivots, err := Process(res, map[string]*document.Relationship{
		"author": document.ToOne("authors", "a1"),
	}, Replace)
	require.NoError(t, err)

	// The provided relationship is set; omitted ones are cleared.
	assert.Equal(t, "a1", columns["author_id"])
	require.Contains(t, columns, "subject_type")
	require.Contains(t, columns, "subject_id")
	assert.Nil(t, columns["subject_type"])
	assert.Nil(t, columns["subject_id"])

	require.Len(t, pivots, 1)
	assert.Equal(t, "tags", pivots[0].Name)
	assert.Empty(t, pivots[0].Targets)
}

func TestProcessMergePreservesOmitted(t *testing.T) {
	res := postResource()

	columns, pivots, err := Process(res, map[string]*document.Relationship{
		"author": document.ToOne("authors", "a1"),
	}, Merge)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"author_id": "a1"}, columns)
	assert.Empty(t, pivots)
}
