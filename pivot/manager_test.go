package pivot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/relationships"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/transaction"
	"github.com/strata-db/strata/validation"
)

// fakeAdapter answers existence checks from a fixed set of known ids.
type fakeAdapter struct {
	storage.Adapter

	known     map[string]bool
	existsErr error
}

func (f *fakeAdapter) Exists(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.known[res.Name+"/"+id], nil
}

// fakeStore records the join-table calls it receives.
type fakeStore struct {
	deletes   []string
	inserts   []map[string]any
	insertErr error
}

func (f *fakeStore) DeletePivotRows(ctx context.Context, tx *transaction.Transaction, table, ownerKey string, value any) error {
	f.deletes = append(f.deletes, table)
	return nil
}

func (f *fakeStore) InsertPivotRow(ctx context.Context, tx *transaction.Transaction, table string, row map[string]any) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts = append(f.inserts, row)
	return nil
}

func tagsOp(targets ...document.ResourceIdentifier) relationships.PivotOp {
	return relationships.PivotOp{
		Name: "tags",
		Definition: &schema.Relationship{
			Name:      "tags",
			Kind:      schema.ManyToMany,
			Target:    "tags",
			JoinTable: "post_tags",
			ThisKey:   "post_id",
			OtherKey:  "tag_id",
		},
		Targets: targets,
	}
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.ResourceType{
		Name:   "tags",
		Fields: map[string]*schema.Field{"name": {Kind: schema.FieldString}},
	}))
	require.NoError(t, reg.Freeze())
	return reg
}

func TestReplaceDeletesThenInserts(t *testing.T) {
	adapter := &fakeAdapter{known: map[string]bool{"tags/t1": true, "tags/t2": true}}
	store := &fakeStore{}
	m := NewManager(testRegistry(t), adapter, store, nil)

	op := tagsOp(
		document.ResourceIdentifier{Type: "tags", ID: "t1"},
		document.ResourceIdentifier{Type: "tags", ID: "t2"},
	)
	require.NoError(t, m.Replace(context.Background(), nil, "p1", op))

	assert.Equal(t, []string{"post_tags"}, store.deletes)
	require.Len(t, store.inserts, 2)
	assert.Equal(t, map[string]any{"post_id": "p1", "tag_id": "t1"}, store.inserts[0])
	assert.Equal(t, map[string]any{"post_id": "p1", "tag_id": "t2"}, store.inserts[1])
}

func TestReplaceEmptySetClears(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(testRegistry(t), &fakeAdapter{}, store, nil)

	require.NoError(t, m.Replace(context.Background(), nil, "p1", tagsOp()))
	assert.Equal(t, []string{"post_tags"}, store.deletes)
	assert.Empty(t, store.inserts)
}

func TestReplaceIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{known: map[string]bool{"tags/t1": true, "tags/t2": true}}
	store := &fakeStore{}
	m := NewManager(testRegistry(t), adapter, store, nil)

	op := tagsOp(
		document.ResourceIdentifier{Type: "tags", ID: "t1"},
		document.ResourceIdentifier{Type: "tags", ID: "t2"},
	)
	require.NoError(t, m.Replace(context.Background(), nil, "p1", op))
	require.NoError(t, m.Replace(context.Background(), nil, "p1", op))

	// Each call clears and rewrites, so the second pass inserts exactly the
	// rows the first one did and the final join-table state is the same set.
	assert.Equal(t, []string{"post_tags", "post_tags"}, store.deletes)
	require.Len(t, store.inserts, 4)
	assert.Equal(t, store.inserts[:2], store.inserts[2:])
}

func TestReplaceRejectsDuplicatePairs(t *testing.T) {
	adapter := &fakeAdapter{known: map[string]bool{"tags/t1": true}}
	store := &fakeStore{}
	m := NewManager(testRegistry(t), adapter, store, nil)

	op := tagsOp(
		document.ResourceIdentifier{Type: "tags", ID: "t1"},
		document.ResourceIdentifier{Type: "tags", ID: "t1"},
	)
	err := m.Replace(context.Background(), nil, "p1", op)
	require.Error(t, err)
	assert.True(t, storage.IsConflict(err))
	// Validation fails before any row is touched.
	assert.Empty(t, store.deletes)
}

func TestReplaceRejectsWrongType(t *testing.T) {
	m := NewManager(testRegistry(t), &fakeAdapter{}, &fakeStore{}, nil)

	op := tagsOp(document.ResourceIdentifier{Type: "authors", ID: "a1"})
	err := m.Replace(context.Background(), nil, "p1", op)
	require.Error(t, err)
	assert.True(t, validation.IsValidation(err))
}

func TestReplaceRejectsMissingTarget(t *testing.T) {
	adapter := &fakeAdapter{known: map[string]bool{}}
	m := NewManager(testRegistry(t), adapter, &fakeStore{}, nil)

	op := tagsOp(document.ResourceIdentifier{Type: "tags", ID: "ghost"})
	err := m.Replace(context.Background(), nil, "p1", op)
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
}

func TestReplaceSkipVerify(t *testing.T) {
	adapter := &fakeAdapter{existsErr: errors.New("must not be called")}
	store := &fakeStore{}
	m := NewManager(testRegistry(t), adapter, store, nil)

	op := tagsOp(document.ResourceIdentifier{Type: "tags", ID: "t1"})
	op.Definition.SkipVerify = true
	require.NoError(t, m.Replace(context.Background(), nil, "p1", op))
	assert.Len(t, store.inserts, 1)
}

func TestReplaceRejectsNonPivotRelationship(t *testing.T) {
	m := NewManager(testRegistry(t), &fakeAdapter{}, &fakeStore{}, nil)

	op := relationships.PivotOp{
		Name:       "author",
		Definition: &schema.Relationship{Name: "author", Kind: schema.BelongsTo, Target: "authors"},
	}
	err := m.Replace(context.Background(), nil, "p1", op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not many-to-many")
}

func TestReplacePropagatesInsertFailure(t *testing.T) {
	adapter := &fakeAdapter{known: map[string]bool{"tags/t1": true}}
	store := &fakeStore{insertErr: errors.New("disk full")}
	m := NewManager(testRegistry(t), adapter, store, nil)

	op := tagsOp(document.ResourceIdentifier{Type: "tags", ID: "t1"})
	err := m.Replace(context.Background(), nil, "p1", op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	// The delete ran; the caller's transaction rollback undoes it.
	assert.Equal(t, []string{"post_tags"}, store.deletes)
}
