package operations

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strata-db/strata/schema"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/validation"
)

// resolveQueryParams validates the caller's filter, sort, and page parameters
// against the resource's search schema and translates them into storage
// conditions. Every violation is collected so the caller sees the full set in
// one response.
func resolveQueryParams(res *schema.ResourceType, p Params) (storage.QueryParams, error) {
	errs := validation.NewErrors()
	qp := storage.QueryParams{Include: p.Include}

	names := make([]string, 0, len(p.Filter))
	for name := range p.Filter {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cond, ok := resolveCondition(res, name, p.Filter[name], errs)
		if ok {
			qp.Conditions = append(qp.Conditions, cond)
		}
	}

	for _, term := range p.Sort {
		field := term
		descending := false
		if strings.HasPrefix(term, "-") {
			field = term[1:]
			descending = true
		}
		if !res.Sortable(field) {
			errs.Add(field, "sort", fmt.Sprintf("%s is not sortable", field))
			continue
		}
		qp.Sort = append(qp.Sort, storage.SortField{Field: field, Descending: descending})
	}

	qp.Limit = p.PageLimit
	if qp.Limit <= 0 {
		qp.Limit = res.DefaultLimit()
	}
	if p.PageOffset > 0 {
		qp.Offset = p.PageOffset
	}

	return qp, errs.ErrOrNil()
}

// resolveCondition parses one filter entry: the operator prefix or list form,
// the search-schema permission, and the value coercion.
func resolveCondition(res *schema.ResourceType, name, raw string, errs *validation.Errors) (storage.Condition, bool) {
	sf, ok := res.SearchFields[name]
	if !ok {
		errs.Add(name, "filter", fmt.Sprintf("%s cannot be filtered", name))
		return storage.Condition{}, false
	}

	op, value := splitOperator(raw)
	if op == schema.OpEq && strings.Contains(value, ",") {
		op = schema.OpIn
	}
	if !sf.Allows(op) {
		errs.Add(name, op.String(), fmt.Sprintf("%s does not support the %s operator", name, op))
		return storage.Condition{}, false
	}

	field := res.AttributeField(sf.Field)
	cond := storage.Condition{Field: sf.Field, Op: op}

	if op == schema.OpIn {
		for _, part := range strings.Split(value, ",") {
			coerced, err := coerceFilterValue(field, part)
			if err != nil {
				errs.Add(name, "type", err.Error())
				return storage.Condition{}, false
			}
			cond.Values = append(cond.Values, coerced)
		}
		return cond, true
	}

	coerced, err := coerceFilterValue(field, value)
	if err != nil {
		errs.Add(name, "type", err.Error())
		return storage.Condition{}, false
	}
	cond.Value = coerced
	return cond, true
}

// splitOperator strips a leading comparison prefix off a filter value.
func splitOperator(raw string) (schema.Operator, string) {
	switch {
	case strings.HasPrefix(raw, ">="):
		return schema.OpGTE, raw[2:]
	case strings.HasPrefix(raw, "<="):
		return schema.OpLTE, raw[2:]
	case strings.HasPrefix(raw, ">"):
		return schema.OpGT, raw[1:]
	case strings.HasPrefix(raw, "<"):
		return schema.OpLT, raw[1:]
	case strings.HasPrefix(raw, "~"):
		return schema.OpLike, raw[1:]
	}
	return schema.OpEq, raw
}

// coerceFilterValue converts the raw string into the field's native type.
// Fields outside the attribute schema, like the id column, pass through as
// strings.
func coerceFilterValue(field *schema.Field, raw string) (any, error) {
	if field == nil {
		return raw, nil
	}
	return validation.CoerceString(field, raw)
}
