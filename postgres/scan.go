package postgres

import (
	"database/sql"
)

// scanRowWithColumns scans a single row with a known column order into a map.
func scanRowWithColumns(row *sql.Row, columns []string) (map[string]any, error) {
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	if err := row.Scan(pointers...); err != nil {
		return nil, err
	}

	record := make(map[string]any, len(columns))
	for i, col := range columns {
		record[col] = values[i]
	}
	return record, nil
}

// scanRows scans every row into a slice of maps keyed by column name.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
