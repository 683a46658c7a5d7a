package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable classification of an error.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindAccessDenied Kind = "access_denied"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindStoreFailure Kind = "store_failure"
)

// Error carries a kind alongside a human-readable message. Failed mutations
// surface one of these; the HTTP layer maps kinds to status codes.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the kind from an error chain. Unclassified errors report
// KindStoreFailure so that nothing leaks to callers as a success.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStoreFailure
}

// NotFound marks a missing or soft-deleted entity.
func NotFound(resource, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", resource, id)}
}

// AccessDenied marks a Deny decision from the access gate.
func AccessDenied(resource, id string) error {
	return &Error{Kind: KindAccessDenied, Msg: fmt.Sprintf("access denied: %s %s", resource, id)}
}

// Validationf marks malformed input.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Conflict marks a position-sequence conflict detected under concurrent writes.
func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// StoreFailure wraps an underlying persistence error.
func StoreFailure(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStoreFailure, Msg: "store failure", Err: err}
}
