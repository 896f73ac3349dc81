// Package engine implements the extraction core: it joins uploaded CSV
// payloads along declared cross-reference edges and projects them onto the
// canonical vocabulary, one output row per master row.
package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an extraction failure. The transport layer maps kinds to
// HTTP statuses; the engine itself only distinguishes fatal kinds from the
// warn-and-continue conditions it logs.
type Kind string

const (
	// KindBadInput rejects a malformed request before any work happens.
	KindBadInput Kind = "bad_input"
	// KindNotFound means the requested data system does not exist.
	KindNotFound Kind = "not_found"
	// KindNoMaster means the system has no active master data source.
	KindNoMaster Kind = "no_master"
	// KindEmptyResult means no output rows were produced across all masters.
	KindEmptyResult Kind = "empty_result"
	// KindParse means an uploaded CSV could not be decoded.
	KindParse Kind = "parse_error"
	// KindInternal covers unexpected I/O and invariant violations.
	KindInternal Kind = "internal"
)

// Error is a classified extraction failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
