package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies resource errors.
type ErrorKind int

const (
	// NotFound means the named resource does not exist.
	NotFound ErrorKind = iota
	// Conflict means the write collides with existing state, such as a
	// duplicate join-table pair or a unique constraint violation.
	Conflict
	// Forbidden means a permission hook rejected the operation.
	Forbidden
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// ResourceError names the resource an operation failed on and why.
type ResourceError struct {
	Kind     ErrorKind
	Resource string
	ID       string
	Detail   string
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Resource)
	if e.ID != "" {
		msg += "/" + e.ID
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// NewNotFound builds a not_found resource error.
func NewNotFound(resource, id string) *ResourceError {
	return &ResourceError{Kind: NotFound, Resource: resource, ID: id}
}

// NewConflict builds a conflict resource error.
func NewConflict(resource, id, detail string) *ResourceError {
	return &ResourceError{Kind: Conflict, Resource: resource, ID: id, Detail: detail}
}

// NewForbidden builds a forbidden resource error.
func NewForbidden(resource, id, detail string) *ResourceError {
	return &ResourceError{Kind: Forbidden, Resource: resource, ID: id, Detail: detail}
}

// IsNotFound reports whether err is a not_found resource error.
func IsNotFound(err error) bool {
	return isKind(err, NotFound)
}

// IsConflict reports whether err is a conflict resource error.
func IsConflict(err error) bool {
	return isKind(err, Conflict)
}

// IsForbidden reports whether err is a forbidden resource error.
func IsForbidden(err error) bool {
	return isKind(err, Forbidden)
}

func isKind(err error, kind ErrorKind) bool {
	var re *ResourceError
	return errors.As(err, &re) && re.Kind == kind
}

// ConvertError maps database-level failures to resource errors: missing rows
// become not_found, unique and foreign-key violations become conflicts.
// Anything else passes through unchanged.
func ConvertError(err error, resource, id string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFound(resource, id)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return NewConflict(resource, id, pgErr.Detail)
		case "23503": // foreign_key_violation
			return NewConflict(resource, id, pgErr.Detail)
		case "23514": // check_violation
			return NewConflict(resource, id, pgErr.Detail)
		}
	}

	return err
}
