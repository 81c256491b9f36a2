package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()

	require.NoError(t, reg.Register(&schema.ResourceType{
		Name: "books",
		Fields: map[string]*schema.Field{
			"title":     {Kind: schema.FieldString, Required: true},
			"pages":     {Kind: schema.FieldInt},
			"author_id": {Kind: schema.FieldBelongsTo, Target: "authors", As: "author"},
		},
		Relationships: map[string]*schema.Relationship{
			"tags": {
				Kind:      schema.ManyToMany,
				Target:    "tags",
				JoinTable: "book_tags",
				ThisKey:   "book_id",
				OtherKey:  "tag_id",
			},
		},
		SortableFields: []string{"title", "pages"},
	}))
	require.NoError(t, reg.Register(&schema.ResourceType{
		Name:   "authors",
		Fields: map[string]*schema.Field{"name": {Kind: schema.FieldString}},
	}))
	require.NoError(t, reg.Register(&schema.ResourceType{
		Name:   "tags",
		Fields: map[string]*schema.Field{"name": {Kind: schema.FieldString}},
	}))
	require.NoError(t, reg.Freeze())
	return reg
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *schema.Registry) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := testRegistry(t)
	return NewStore(db, reg, nil), mock, reg
}

func books(reg *schema.Registry) *schema.ResourceType {
	res, _ := reg.Get("books")
	return res
}

// Book columns come back in sorted order: author_id, id, pages, title.
func bookRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"author_id", "id", "pages", "title"})
}

func TestExists(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM books WHERE id = \$1\)`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.Exists(context.Background(), nil, books(reg), "b1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(bookRows().AddRow("a1", "b1", int64(412), "Dune"))

	doc, err := store.Get(context.Background(), nil, books(reg), "b1", storage.QueryParams{})
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.NotNil(t, doc.Data.One)

	obj := doc.Data.One
	assert.Equal(t, "books", obj.Type)
	assert.Equal(t, "b1", obj.ID)
	assert.Equal(t, "Dune", obj.Attributes["title"])
	assert.Equal(t, "a1", obj.Attributes["author_id"])
	_, hasID := obj.Attributes["id"]
	assert.False(t, hasID, "id is never an attribute")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAbsentReturnsNil(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(bookRows())

	doc, err := store.Get(context.Background(), nil, books(reg), "ghost", storage.QueryParams{})
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGetWithBelongsToInclude(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(bookRows().AddRow("a1", "b1", int64(412), "Dune"))
	mock.ExpectQuery(`SELECT id, name FROM authors WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("a1", "Frank Herbert"))

	doc, err := store.Get(context.Background(), nil, books(reg), "b1", storage.QueryParams{Include: []string{"author"}})
	require.NoError(t, err)
	require.NotNil(t, doc)

	rel := doc.Data.One.Relationships["author"]
	require.NotNil(t, rel)
	require.NotNil(t, rel.Data.One)
	assert.Equal(t, "a1", rel.Data.One.ID)

	require.Len(t, doc.Included, 1)
	assert.Equal(t, "authors", doc.Included[0].Type)
	assert.Equal(t, "Frank Herbert", doc.Included[0].Attributes["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWithManyToManyInclude(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(bookRows().AddRow(nil, "b1", nil, "Dune"))
	mock.ExpectQuery(`SELECT t.id, t.name FROM tags t JOIN book_tags j ON t.id = j.tag_id WHERE j.book_id = \$1 ORDER BY t.id`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("t1", "classics").
			AddRow("t2", "sci-fi"))

	doc, err := store.Get(context.Background(), nil, books(reg), "b1", storage.QueryParams{Include: []string{"tags"}})
	require.NoError(t, err)

	rel := doc.Data.One.Relationships["tags"]
	require.NotNil(t, rel)
	require.Len(t, rel.Data.Many, 2)
	assert.Equal(t, "t1", rel.Data.Many[0].ID)
	assert.Len(t, doc.Included, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIgnoresUnknownInclude(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(bookRows().AddRow(nil, "b1", nil, "Dune"))

	doc, err := store.Get(context.Background(), nil, books(reg), "b1", storage.QueryParams{Include: []string{"reviews"}})
	require.NoError(t, err)
	assert.Empty(t, doc.Included)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books WHERE title ILIKE '%' \|\| \$1 \|\| '%' ORDER BY pages DESC LIMIT 10 OFFSET 20`).
		WithArgs("dune").
		WillReturnRows(bookRows().
			AddRow("a1", "b1", int64(412), "Dune").
			AddRow("a1", "b2", int64(700), "Dune Messiah"))

	doc, err := store.Query(context.Background(), nil, books(reg), storage.QueryParams{
		Conditions: []storage.Condition{{Field: "title", Op: schema.OpLike, Value: "dune"}},
		Sort:       []storage.SortField{{Field: "pages", Descending: true}},
		Limit:      10,
		Offset:     20,
	})
	require.NoError(t, err)
	assert.True(t, doc.Data.IsMany())
	require.Len(t, doc.Data.Many, 2)
	assert.Equal(t, "b2", doc.Data.Many[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEmptyResultIsEmptyCollection(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books`).
		WillReturnRows(bookRows())

	doc, err := store.Query(context.Background(), nil, books(reg), storage.QueryParams{})
	require.NoError(t, err)
	assert.True(t, doc.Data.IsMany())
	assert.Len(t, doc.Data.Many, 0)
}

func TestInsert(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`INSERT INTO books \(author_id, id, title\) VALUES \(\$1, \$2, \$3\) RETURNING author_id, id, pages, title`).
		WithArgs("a1", "b1", "Dune").
		WillReturnRows(bookRows().AddRow("a1", "b1", nil, "Dune"))

	obj := &document.ResourceObject{
		Type:       "books",
		ID:         "b1",
		Attributes: map[string]any{"title": "Dune", "author_id": "a1"},
	}
	doc, err := store.Insert(context.Background(), nil, books(reg), obj)
	require.NoError(t, err)
	assert.Equal(t, "b1", doc.Data.One.ID)
	assert.Equal(t, "Dune", doc.Data.One.Attributes["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceClearsAbsentColumns(t *testing.T) {
	store, mock, reg := newTestStore(t)

	// Every non-id column is written; absent ones as NULL.
	mock.ExpectQuery(`UPDATE books SET author_id = \$1, pages = \$2, title = \$3 WHERE id = \$4 RETURNING author_id, id, pages, title`).
		WithArgs(nil, nil, "New Title", "b1").
		WillReturnRows(bookRows().AddRow(nil, "b1", nil, "New Title"))

	obj := &document.ResourceObject{Type: "books", Attributes: map[string]any{"title": "New Title"}}
	doc, err := store.Replace(context.Background(), nil, books(reg), "b1", obj, false)
	require.NoError(t, err)
	assert.Equal(t, "New Title", doc.Data.One.Attributes["title"])
	assert.Nil(t, doc.Data.One.Attributes["pages"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceCreatesWhenAsked(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`INSERT INTO books \(id, title\) VALUES \(\$1, \$2\) RETURNING author_id, id, pages, title`).
		WithArgs("b9", "Fresh").
		WillReturnRows(bookRows().AddRow(nil, "b9", nil, "Fresh"))

	obj := &document.ResourceObject{Type: "books", Attributes: map[string]any{"title": "Fresh"}}
	doc, err := store.Replace(context.Background(), nil, books(reg), "b9", obj, true)
	require.NoError(t, err)
	assert.Equal(t, "b9", doc.Data.One.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeWritesOnlyProvidedColumns(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`UPDATE books SET pages = \$1 WHERE id = \$2 RETURNING author_id, id, pages, title`).
		WithArgs(int64(500), "b1").
		WillReturnRows(bookRows().AddRow("a1", "b1", int64(500), "Dune"))

	obj := &document.ResourceObject{Type: "books", Attributes: map[string]any{"pages": int64(500)}}
	doc, err := store.Merge(context.Background(), nil, books(reg), "b1", obj)
	require.NoError(t, err)
	assert.Equal(t, int64(500), doc.Data.One.Attributes["pages"])
	assert.Equal(t, "Dune", doc.Data.One.Attributes["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeWithNoColumnsFallsBackToRead(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`SELECT author_id, id, pages, title FROM books WHERE id = \$1`).
		WithArgs("b1").
		WillReturnRows(bookRows().AddRow(nil, "b1", nil, "Dune"))

	obj := &document.ResourceObject{Type: "books", Attributes: map[string]any{}}
	doc, err := store.Merge(context.Background(), nil, books(reg), "b1", obj)
	require.NoError(t, err)
	assert.Equal(t, "Dune", doc.Data.One.Attributes["title"])
}

func TestMergeMissingRecordIsNotFound(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectQuery(`UPDATE books SET pages = \$1 WHERE id = \$2`).
		WithArgs(int64(500), "ghost").
		WillReturnRows(bookRows())

	obj := &document.ResourceObject{Type: "books", Attributes: map[string]any{"pages": int64(500)}}
	_, err := store.Merge(context.Background(), nil, books(reg), "ghost", obj)
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectExec(`DELETE FROM books WHERE id = \$1`).
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), nil, books(reg), "b1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRecordIsNotFound(t *testing.T) {
	store, mock, reg := newTestStore(t)

	mock.ExpectExec(`DELETE FROM books WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), nil, books(reg), "ghost")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
}

func TestPivotStore(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectExec(`DELETE FROM book_tags WHERE book_id = \$1`).
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO book_tags \(book_id, tag_id\) VALUES \(\$1, \$2\)`).
		WithArgs("b1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, store.DeletePivotRows(ctx, nil, "book_tags", "book_id", "b1"))
	require.NoError(t, store.InsertPivotRow(ctx, nil, "book_tags", map[string]any{"book_id": "b1", "tag_id": "t1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
