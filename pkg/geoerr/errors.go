// Package geoerr defines the error taxonomy shared by the store locator
// components and the mapping from errors to kinds.
package geoerr

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput is returned when a location string does not hold exactly two tokens.
	ErrMalformedInput = errors.New("malformed location input")
	// ErrNonNumericToken is returned when a location token is not a finite decimal.
	ErrNonNumericToken = errors.New("non-numeric location token")
	// ErrOutOfBounds is returned when a coordinate is outside its legal range.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrInvalidQuery is returned when query parameters are rejected before reaching storage.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidRecord is returned when a store record cannot be indexed.
	ErrInvalidRecord = errors.New("invalid store record")
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIndexUnavailable is returned when the spatial index structure is missing or closed.
	ErrIndexUnavailable = errors.New("spatial index unavailable")
	// ErrStorageUnavailable is returned when the storage backend cannot serve a request.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEmptyOrMalformedSource is returned when an import source yields no usable rows.
	ErrEmptyOrMalformedSource = errors.New("empty or malformed import source")
)

// OutOfBoundsError carries the offending coordinate field and value.
type OutOfBoundsError struct {
	Field string
	Value float64
}

func (e *OutOfBoundsError) Error() string {
	limit := 180
	if e.Field == "latitude" {
		limit = 90
	}
	return fmt.Sprintf("%s must be between -%d and %d, got: %f", e.Field, limit, limit, e.Value)
}

func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// NonNumericError carries the token that failed to parse.
type NonNumericError struct {
	Token string
	cause error
}

// NewNonNumericError wraps a parse failure for token.
func NewNonNumericError(token string, cause error) *NonNumericError {
	return &NonNumericError{Token: token, cause: cause}
}

func (e *NonNumericError) Error() string {
	return fmt.Sprintf("coordinates must be valid numbers: %q", e.Token)
}

func (e *NonNumericError) Is(target error) bool { return target == ErrNonNumericToken }

func (e *NonNumericError) Unwrap() error { return e.cause }

// Kind is the externally meaningful classification of an error.
type Kind string

const (
	KindUnknown                Kind = "Unknown"
	KindMalformedInput         Kind = "MalformedInput"
	KindNonNumericToken        Kind = "NonNumericToken"
	KindOutOfBounds            Kind = "OutOfBounds"
	KindInvalidQuery           Kind = "InvalidQuery"
	KindInvalidRecord          Kind = "InvalidRecord"
	KindNotFound               Kind = "NotFound"
	KindIndexUnavailable       Kind = "IndexUnavailable"
	KindStorageUnavailable     Kind = "StorageUnavailable"
	KindEmptyOrMalformedSource Kind = "EmptyOrMalformedSource"
)

// IsClientError reports whether errors of this kind are caused by the caller.
func (k Kind) IsClientError() bool {
	switch k {
	case KindMalformedInput, KindNonNumericToken, KindOutOfBounds,
		KindInvalidQuery, KindInvalidRecord, KindNotFound:
		return true
	}
	return false
}

// Ordered from most to least specific.
var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrOutOfBounds, KindOutOfBounds},
	{ErrNonNumericToken, KindNonNumericToken},
	{ErrMalformedInput, KindMalformedInput},
	{ErrInvalidRecord, KindInvalidRecord},
	{ErrInvalidQuery, KindInvalidQuery},
	{ErrNotFound, KindNotFound},
	{ErrIndexUnavailable, KindIndexUnavailable},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrEmptyOrMalformedSource, KindEmptyOrMalformedSource},
}

// KindOf classifies err. Errors outside the taxonomy are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// Error is a classified error returned from a component boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Wrap classifies err and tags it with op. A nil err yields nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Op: op, Err: err}
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
