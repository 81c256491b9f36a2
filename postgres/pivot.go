package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/strata-db/strata/transaction"
)

// DeletePivotRows implements storage.PivotStore.
func (s *Store) DeletePivotRows(ctx context.Context, tx *transaction.Transaction, table, ownerKey string, value any) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, ownerKey)

	if _, err := s.querier(tx).ExecContext(ctx, query, value); err != nil {
		return fmt.Errorf("failed to delete pivot rows from %s: %w", table, err)
	}
	return nil
}

// InsertPivotRow implements storage.PivotStore.
func (s *Store) InsertPivotRow(ctx context.Context, tx *transaction.Transaction, table string, row map[string]any) error {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)

	s.log.Debug("inserting pivot row", zap.String("table", table))
	if _, err := s.querier(tx).ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}
