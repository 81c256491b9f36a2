package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strata-db/strata/schema"
)

// checkFunc coerces one value and reports the first failed rule, if any.
type checkFunc func(value any) (any, *Violation)

// compileField builds the checker for a single scalar field.
func compileField(f *schema.Field) checkFunc {
	return func(value any) (any, *Violation) {
		if value == nil {
			if !f.Nullable {
				return nil, violation(f.Name, "nullable", "must not be null")
			}
			return nil, nil
		}

		coerced, v := coerceKind(f, value)
		if v != nil {
			return nil, v
		}
		if v := checkBounds(f, coerced); v != nil {
			return nil, v
		}
		if v := checkPattern(f, coerced); v != nil {
			return nil, v
		}
		return coerced, nil
	}
}

func violation(field, rule, message string) *Violation {
	return &Violation{Field: field, Rule: rule, Message: message}
}

// coerceKind converts the raw JSON-decoded value to the field's Go
// representation, or reports a type violation.
func coerceKind(f *schema.Field, value any) (any, *Violation) {
	switch f.Kind {
	case schema.FieldString, schema.FieldText:
		s, ok := value.(string)
		if !ok {
			return nil, violation(f.Name, "type", "must be a string")
		}
		return s, nil

	case schema.FieldInt:
		switch n := value.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, violation(f.Name, "type", "must be an integer")
			}
			return int64(n), nil
		default:
			return nil, violation(f.Name, "type", "must be an integer")
		}

	case schema.FieldFloat:
		switch n := value.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return nil, violation(f.Name, "type", "must be a number")
		}

	case schema.FieldBool:
		b, ok := value.(bool)
		if !ok {
			return nil, violation(f.Name, "type", "must be a boolean")
		}
		return b, nil

	case schema.FieldTimestamp:
		switch t := value.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, violation(f.Name, "type", "must be an RFC 3339 timestamp")
			}
			return parsed, nil
		default:
			return nil, violation(f.Name, "type", "must be an RFC 3339 timestamp")
		}

	case schema.FieldUUID:
		switch u := value.(type) {
		case uuid.UUID:
			return u, nil
		case string:
			parsed, err := uuid.Parse(u)
			if err != nil {
				return nil, violation(f.Name, "type", "must be a UUID")
			}
			return parsed, nil
		default:
			return nil, violation(f.Name, "type", "must be a UUID")
		}

	case schema.FieldJSON:
		return value, nil

	case schema.FieldEnum:
		s, ok := value.(string)
		if !ok {
			return nil, violation(f.Name, "type", "must be a string")
		}
		for _, allowed := range f.EnumValues {
			if s == allowed {
				return s, nil
			}
		}
		return nil, violation(f.Name, "oneOf",
			fmt.Sprintf("must be one of: %s", strings.Join(f.EnumValues, ", ")))

	default:
		return nil, violation(f.Name, "type", "unsupported field kind")
	}
}

// checkBounds enforces min/max: numeric value bounds, or length for text.
func checkBounds(f *schema.Field, value any) *Violation {
	if f.Min == nil && f.Max == nil {
		return nil
	}

	var n float64
	switch v := value.(type) {
	case string:
		n = float64(len(v))
		if f.Min != nil && n < *f.Min {
			return violation(f.Name, "min", fmt.Sprintf("must be at least %d characters", int(*f.Min)))
		}
		if f.Max != nil && n > *f.Max {
			return violation(f.Name, "max", fmt.Sprintf("must be at most %d characters", int(*f.Max)))
		}
		return nil
	case int64:
		n = float64(v)
	case float64:
		n = v
	default:
		return nil
	}

	if f.Min != nil && n < *f.Min {
		return violation(f.Name, "min", fmt.Sprintf("must be at least %v", *f.Min))
	}
	if f.Max != nil && n > *f.Max {
		return violation(f.Name, "max", fmt.Sprintf("must be at most %v", *f.Max))
	}
	return nil
}

// checkPattern enforces the field's regexp on text values.
func checkPattern(f *schema.Field, value any) *Violation {
	if f.Pattern == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if !f.Pattern.MatchString(s) {
		return violation(f.Name, "pattern", fmt.Sprintf("must match %s", f.Pattern.String()))
	}
	return nil
}

// CoerceString converts a filter parameter, which always arrives as a string,
// to the field's Go representation. Used when resolving query filters against
// the search schema.
func CoerceString(f *schema.Field, raw string) (any, error) {
	switch f.Kind {
	case schema.FieldString, schema.FieldText, schema.FieldEnum:
		return raw, nil
	case schema.FieldInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return n, nil
	case schema.FieldFloat:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return n, nil
	case schema.FieldBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil
	case schema.FieldTimestamp:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("must be an RFC 3339 timestamp")
		}
		return t, nil
	case schema.FieldUUID:
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("must be a UUID")
		}
		return u, nil
	default:
		return raw, nil
	}
}
