// Package storage declares the contracts the engine expects from a storage
// backend: row I/O for resources, join-table I/O for many-to-many
// relationships, and the resource error taxonomy the engine raises on their
// behalf.
package storage

import (
	"context"
	"database/sql"

	"github.com/strata-db/strata/document"
	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/transaction"
)

// Querier is the subset of database/sql both *sql.DB and a transaction
// satisfy; adapters use it to run against whichever the operation supplies.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Condition is one resolved filter predicate, validated against the search
// schema before it reaches the adapter.
type Condition struct {
	Field string
	Op    schema.Operator
	Value any

	// Values is set instead of Value for OpIn.
	Values []any
}

// SortField is one resolved sort term.
type SortField struct {
	Field      string
	Descending bool
}

// QueryParams carries the resolved, validated read parameters handed to the
// adapter. Field names have already passed the allow-lists.
type QueryParams struct {
	Conditions []Condition
	Sort       []SortField
	Offset     int
	Limit      int

	// Include names relationships whose targets should be returned in the
	// document's included array.
	Include []string
}

// Adapter performs the actual row I/O for resource records. Attribute bags on
// the resource objects it receives have already been validated and merged
// with resolved foreign-key columns. Every method takes an optional
// transaction; nil means the adapter runs outside one.
type Adapter interface {
	// Exists reports whether a record with the id exists.
	Exists(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string) (bool, error)

	// Get returns the record by id, or nil when absent.
	Get(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string, params QueryParams) (*document.Document, error)

	// Query returns the records matching the params.
	Query(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, params QueryParams) (*document.Document, error)

	// Insert writes a new record and returns it as stored.
	Insert(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, obj *document.ResourceObject) (*document.Document, error)

	// Replace fully replaces the record: every column not present in the
	// attribute bag is cleared. With isCreate it inserts under the given id
	// instead.
	Replace(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string, obj *document.ResourceObject, isCreate bool) (*document.Document, error)

	// Merge updates only the columns present in the attribute bag.
	Merge(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string, obj *document.ResourceObject) (*document.Document, error)

	// Delete removes the record by id.
	Delete(ctx context.Context, tx *transaction.Transaction, res *schema.ResourceType, id string) error
}

// PivotStore performs join-table row I/O for many-to-many relationships. The
// engine requires it from any adapter serving resources with many-to-many
// declarations.
type PivotStore interface {
	// DeletePivotRows removes every join-table row whose owner-side key
	// equals value.
	DeletePivotRows(ctx context.Context, tx *transaction.Transaction, table, ownerKey string, value any) error

	// InsertPivotRow writes one join-table row.
	InsertPivotRow(ctx context.Context, tx *transaction.Transaction, table string, row map[string]any) error
}
