package postgres

import (
	"fmt"
	"strings"

	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
)

// buildWhereClause generates a parameterized WHERE clause from resolved
// filter conditions. Field names have already passed the search-schema
// allow-list, so they are safe to interpolate; values are always
// parameterized.
func buildWhereClause(conditions []storage.Condition, startIndex int) (string, []any) {
	if len(conditions) == 0 {
		return "", nil
	}

	var predicates []string
	var args []any
	idx := startIndex

	for _, cond := range conditions {
		switch cond.Op {
		case schema.OpIn:
			placeholders := make([]string, len(cond.Values))
			for i, v := range cond.Values {
				placeholders[i] = fmt.Sprintf("$%d", idx)
				args = append(args, v)
				idx++
			}
			predicates = append(predicates,
				fmt.Sprintf("%s IN (%s)", cond.Field, strings.Join(placeholders, ", ")))
		case schema.OpLike:
			predicates = append(predicates,
				fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", cond.Field, idx))
			args = append(args, cond.Value)
			idx++
		default:
			predicates = append(predicates,
				fmt.Sprintf("%s %s $%d", cond.Field, sqlOperator(cond.Op), idx))
			args = append(args, cond.Value)
			idx++
		}
	}

	return "WHERE " + strings.Join(predicates, " AND "), args
}

func sqlOperator(op schema.Operator) string {
	switch op {
	case schema.OpLT:
		return "<"
	case schema.OpGT:
		return ">"
	case schema.OpLTE:
		return "<="
	case schema.OpGTE:
		return ">="
	default:
		return "="
	}
}

// buildOrderClause generates an ORDER BY clause from resolved sort terms.
// Fields have already passed the sortable allow-list.
func buildOrderClause(sorts []storage.SortField) string {
	if len(sorts) == 0 {
		return ""
	}

	terms := make([]string, len(sorts))
	for i, s := range sorts {
		direction := "ASC"
		if s.Descending {
			direction = "DESC"
		}
		terms[i] = fmt.Sprintf("%s %s", s.Field, direction)
	}
	return "ORDER BY " + strings.Join(terms, ", ")
}
