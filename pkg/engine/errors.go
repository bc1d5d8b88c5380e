package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"metamirror/pkg/meta"
)

// ErrorKind is the machine-checkable classification of a failed mutation.
type ErrorKind string

const (
	// KindValidation: bad or missing caller input. Local, fast, no side
	// effects of any sort.
	KindValidation ErrorKind = "VALIDATION"
	// KindNotFound: the operation targets an entity (or parent) the mirror
	// does not hold. No remote call is made.
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindRemote: the remote platform rejected or could not process the
	// call. Local state is untouched.
	KindRemote ErrorKind = "REMOTE"
	// KindStorage: local persistence failed after a successful remote
	// call. The remote now has state the mirror does not reflect.
	KindStorage ErrorKind = "STORAGE"
	// KindAudit: the audit append failed. Non-fatal; the mutation stands.
	KindAudit ErrorKind = "AUDIT"
)

// Error carries the kind, a human-readable detail, and, for remote
// failures, the platform's raw error body and HTTP status.
type Error struct {
	Kind       ErrorKind
	Detail     string
	RemoteBody json.RawMessage
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Transport reports whether a remote failure happened below the
// application layer (useful for HTTP status mapping).
func (e *Error) Transport() bool {
	return e.Kind == KindRemote && (e.HTTPStatus == 0 || e.HTTPStatus >= 500)
}

func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsRemote(err error) bool     { return KindOf(err) == KindRemote }
func IsStorage(err error) bool    { return KindOf(err) == KindStorage }

func validationErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

func remoteErr(err error) *Error {
	var apiErr *meta.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:       KindRemote,
			Detail:     apiErr.Message,
			RemoteBody: apiErr.Body,
			HTTPStatus: apiErr.HTTPStatus,
			Err:        err,
		}
	}
	return &Error{Kind: KindRemote, Detail: err.Error(), Err: err}
}

func storageErr(err error, detail string) *Error {
	return &Error{Kind: KindStorage, Detail: detail + ": " + err.Error(), Err: err}
}
