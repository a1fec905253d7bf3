// Package remote defines the capability the reconciliation core consumes from
// the backing data store: select, mutate and subscribe-to-changes per
// collection. Implementations live in internal/storeclient (HTTP) and in
// tests (fakes).
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/hearth/internal/record"
)

// Op is the kind of a change event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a single change pushed by the store's subscription stream.
type Change struct {
	Seq        int64         `json:"seq"`
	Collection string        `json:"collection"`
	Op         Op            `json:"op"`
	Record     record.Record `json:"record"`
}

// CondOp is a comparison used in a query condition.
type CondOp string

const (
	Eq  CondOp = "eq"
	Gte CondOp = "gte"
	Lte CondOp = "lte"
)

// Cond restricts a select or subscription to records whose field compares
// to Value. Values are compared as strings (RFC3339 timestamps sort).
type Cond struct {
	Field string `json:"field"`
	Op    CondOp `json:"op"`
	Value string `json:"value"`
}

// Query describes a select: conditions, ordering and an optional limit.
type Query struct {
	Where   []Cond
	OrderBy string
	Desc    bool
	Limit   int
}

// Subscription is a live change stream. Changes is closed after Close or
// when the underlying connection is lost for good.
type Subscription interface {
	Changes() <-chan Change
	Close() error
}

// Store is the remote data store collaborator.
type Store interface {
	Select(ctx context.Context, collection string, q Query) ([]record.Record, error)
	Insert(ctx context.Context, collection string, rec record.Record) (record.Record, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) (record.Record, error)
	Delete(ctx context.Context, collection, id string) error
	Subscribe(ctx context.Context, collection string, where []Cond) (Subscription, error)
}

// Store error codes. The values follow the hosted Postgres/PostgREST codes so
// that records coming from either side classify the same way.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeCheckViolation      = "23514"
	CodePermissionDenied    = "42501"
	CodeUndefinedTable      = "42P01"
	CodeUndefinedColumn     = "42703"
	CodeNoRows              = "PGRST116"

	CodeUnavailable = "unavailable"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
	CodeBadRequest  = "bad_request"
)

// permanentCodes are failures retrying cannot fix.
var permanentCodes = map[string]bool{
	CodeUniqueViolation:     true,
	CodeForeignKeyViolation: true,
	CodeNotNullViolation:    true,
	CodeCheckViolation:      true,
	CodePermissionDenied:    true,
	CodeUndefinedTable:      true,
	CodeUndefinedColumn:     true,
	CodeNoRows:              true,
	CodeBadRequest:          true,
}

// Error is a store-reported failure carrying a machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the store code carried by err, or "" for errors that did not
// come from the store (network failures, context errors).
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsPermanent reports whether err is a store error that retrying cannot fix.
// Errors without a code (transport failures) are transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return permanentCodes[CodeOf(err)]
}

// IsNotFound reports whether err is a single-row not-found failure.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNoRows
}
