// Package transaction coordinates database transactions around multi-step
// writes. An operation either opens its own transaction (and owns its
// commit/rollback) or participates in one supplied by the caller, whose
// lifecycle stays with the caller.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCommitted is returned when Commit is called twice.
	ErrAlreadyCommitted = errors.New("transaction already committed")
	// ErrAlreadyRolledBack is returned when Commit follows a rollback.
	ErrAlreadyRolledBack = errors.New("transaction already rolled back")
)

// IsolationLevel represents the transaction isolation level.
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (PostgreSQL default).
	ReadCommitted IsolationLevel = iota
	// RepeatableRead prevents non-repeatable reads.
	RepeatableRead
	// Serializable provides full isolation.
	Serializable
)

// ToSQLOptions converts the isolation level to sql.TxOptions.
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	var level sql.IsolationLevel
	switch l {
	case RepeatableRead:
		level = sql.LevelRepeatableRead
	case Serializable:
		level = sql.LevelSerializable
	default:
		level = sql.LevelReadCommitted
	}
	return &sql.TxOptions{Isolation: level}
}

// Transaction wraps a database transaction handle.
type Transaction struct {
	tx         *sql.Tx
	committed  bool
	rolledBack bool
}

// Manager opens transactions against one database.
type Manager struct {
	db        *sql.DB
	isolation IsolationLevel
}

// NewManager creates a transaction manager with ReadCommitted isolation.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// NewManagerWithIsolation creates a transaction manager with the given
// isolation level.
func NewManagerWithIsolation(db *sql.DB, level IsolationLevel) *Manager {
	return &Manager{db: db, isolation: level}
}

// Begin opens a new transaction.
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, m.isolation.ToSQLOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx}, nil
}

// Acquire returns the transaction an operation should run in, plus whether
// the operation owns it. An explicitly supplied transaction wins, then one
// embedded in the context; otherwise a fresh transaction is opened and owned
// by the caller of Acquire, which must commit or roll it back on every path.
func (m *Manager) Acquire(ctx context.Context, existing *Transaction) (*Transaction, bool, error) {
	if existing != nil {
		return existing, false, nil
	}
	if tx, ok := FromContext(ctx); ok {
		return tx, false, nil
	}
	tx, err := m.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

// WithTransaction executes fn inside a transaction this manager owns,
// committing on success and rolling back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Commit commits the transaction.
func (t *Transaction) Commit() error {
	if t.committed {
		return ErrAlreadyCommitted
	}
	if t.rolledBack {
		return ErrAlreadyRolledBack
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.committed = true
	return nil
}

// Rollback rolls back the transaction. Rolling back twice is a no-op.
func (t *Transaction) Rollback() error {
	if t.committed {
		return ErrAlreadyCommitted
	}
	if t.rolledBack {
		return nil
	}
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.rolledBack = true
	return nil
}

// Finished reports whether the transaction has been committed or rolled back.
func (t *Transaction) Finished() bool {
	return t.committed || t.rolledBack
}

// ExecContext executes a statement inside the transaction.
func (t *Transaction) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryContext executes a query inside the transaction.
func (t *Transaction) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a single-row query inside the transaction.
func (t *Transaction) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}
