// Package postgres provides the default storage adapter, backed by
// database/sql over the pgx driver. One table per resource type; attribute
// bags are written column-per-field and read back with explicit column lists
// in sorted order for determinism.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	"go.uber.org/zap"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/transaction"
)

// Store implements storage.Adapter and storage.PivotStore for PostgreSQL.
// The registry is used to resolve included relationship targets.
type Store struct {
	db       *sql.DB
	registry *schema.Registry
	log      *zap.Logger
}

// Open connects to PostgreSQL with the pgx driver and wraps the connection
// in a store.
func Open(dsn string, registry *schema.Registry) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewStore(db, registry, nil), nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB, registry *schema.Registry, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, registry: registry, log: log}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// querier returns the transaction when one is supplied, else the pool.
func (s *Store) querier(tx *transaction.Transaction) storage.Querier {
	if tx != nil {
		return tx
	}
	return s.db
}

// columnsFor returns every backing column of the resource, sorted: the id,
// one column per scalar and belongs-to field, and the type/id column pair of
// each polymorphic field.
func columnsFor(res *schema.ResourceType) []string {
	cols := []string{"id"}
	for _, f := range res.Fields {
		if f.Kind == schema.FieldBelongsToPolymorphic {
			cols = append(cols, f.TypeColumn, f.IDColumn)
			continue
		}
		cols = append(cols, f.Name)
	}
	sort.Strings(cols)
	return cols
}

// Exists implements storage.Adapter.
func (s *Store) Exists(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", res.TableName())

	var exists bool
	if err := s.querier(tx).QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s/%s: %w", res.Name, id, err)
	}
	return exists, nil
}

// Get implements storage.Adapter. It returns nil when the record is absent.
func (s *Store) Get(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string, params storage.QueryParams) (*document.Document, error) {
	cols := columnsFor(res)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", strings.Join(cols, ", "), res.TableName())

	row := s.querier(tx).QueryRowContext(ctx, query, id)
	record, err := scanRowWithColumns(row, cols)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", res.Name, id, err)
	}

	obj := toResourceObject(res, record)
	doc := document.Single(obj)
	if err := s.loadIncluded(ctx, tx, res, obj, record, params.Include, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Query implements storage.Adapter.
func (s *Store) Query(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, params storage.QueryParams) (*document.Document, error) {
	cols := columnsFor(res)

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), res.TableName())

	where, args := buildWhereClause(params.Conditions, 1)
	if where != "" {
		sb.WriteString(" ")
		sb.WriteString(where)
	}
	if order := buildOrderClause(params.Sort); order != "" {
		sb.WriteString(" ")
		sb.WriteString(order)
	}
	if params.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", params.Limit)
	}
	if params.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", params.Offset)
	}

	rows, err := s.querier(tx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", res.Name, err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s rows: %w", res.Name, err)
	}

	objs := make([]*document.ResourceObject, 0, len(records))
	for _, record := range records {
		objs = append(objs, toResourceObject(res, record))
	}
	return document.Collection(objs), nil
}

// Insert implements storage.Adapter.
func (s *Store) Insert(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, obj *document.ResourceObject) (*document.Document, error) {
	values := map[string]any{"id": obj.ID}
	for col, v := range obj.Attributes {
		values[col] = v
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	returning := columnsFor(res)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		res.TableName(),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(returning, ", "),
	)

	row := s.querier(tx).QueryRowContext(ctx, query, args...)
	record, err := scanRowWithColumns(row, returning)
	if err != nil {
		return nil, storage.ConvertError(err, res.Name, obj.ID)
	}
	return document.Single(toResourceObject(res, record)), nil
}

// Replace implements storage.Adapter. Every column absent from the attribute
// bag is cleared; with isCreate the record is inserted under the given id.
func (s *Store) Replace(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string, obj *document.ResourceObject, isCreate bool) (*document.Document, error) {
	if isCreate {
		created := &document.ResourceObject{Type: obj.Type, ID: id, Attributes: obj.Attributes}
		return s.Insert(ctx, tx, res, created)
	}

	all := columnsFor(res)
	var assignments []string
	var args []any
	idx := 1
	for _, col := range all {
		if col == "id" {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, obj.Attributes[col]) // absent -> nil -> NULL
		idx++
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		res.TableName(),
		strings.Join(assignments, ", "),
		idx,
		strings.Join(all, ", "),
	)

	row := s.querier(tx).QueryRowContext(ctx, query, args...)
	record, err := scanRowWithColumns(row, all)
	if err != nil {
		return nil, storage.ConvertError(err, res.Name, id)
	}
	return document.Single(toResourceObject(res, record)), nil
}

// Merge implements storage.Adapter. Only columns present in the attribute bag
// are written.
func (s *Store) Merge(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string, obj *document.ResourceObject) (*document.Document, error) {
	all := columnsFor(res)

	cols := make([]string, 0, len(obj.Attributes))
	for col := range obj.Attributes {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	if len(cols) == 0 {
		// Nothing to write; behave as a read inside the transaction.
		doc, err := s.Get(ctx, tx, res, id, storage.QueryParams{})
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, storage.NewNotFound(res.Name, id)
		}
		return doc, nil
	}

	assignments := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, obj.Attributes[col])
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		res.TableName(),
		strings.Join(assignments, ", "),
		len(cols)+1,
		strings.Join(all, ", "),
	)

	row := s.querier(tx).QueryRowContext(ctx, query, args...)
	record, err := scanRowWithColumns(row, all)
	if err != nil {
		return nil, storage.ConvertError(err, res.Name, id)
	}
	return document.Single(toResourceObject(res, record)), nil
}

// Delete implements storage.Adapter.
func (s *Store) Delete(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", res.TableName())

	result, err := s.querier(tx).ExecContext(ctx, query, id)
	if err != nil {
		return storage.ConvertError(err, res.Name, id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", res.Name, id, err)
	}
	if affected == 0 {
		return storage.NewNotFound(res.Name, id)
	}
	return nil
}

// toResourceObject converts a scanned row to a resource object. The id is
// lifted out of the attribute bag; foreign-key projection into relationship
// linkage happens in the operations layer.
func toResourceObject(res *schema.ResourceType, record map[string]any) *document.ResourceObject {
	attrs := make(map[string]any, len(record))
	for col, v := range record {
		if col == "id" {
			continue
		}
		attrs[col] = normalizeValue(v)
	}
	return &document.ResourceObject{
		Type:       res.Name,
		ID:         valueToString(record["id"]),
		Attributes: attrs,
	}
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func valueToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
