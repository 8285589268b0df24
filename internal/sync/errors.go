package sync

import (
	"errors"
	"fmt"
)

// Kind classifies an operation error so the transport layer can map it to a
// status code without parsing messages.
type Kind int

const (
	// KindValidation rejects a malformed or incomplete request (400).
	KindValidation Kind = iota + 1

	// KindNotFound means the referenced item or document is absent (404).
	KindNotFound

	// KindConflict means the operation would clobber existing local state
	// without permission (409).
	KindConflict

	// KindGone means the remote item is tombstoned (410).
	KindGone

	// KindRemoteConfig means the object store or RAG service is not
	// configured well enough to attempt the call (500).
	KindRemoteConfig

	// KindRemoteFailure means a configured remote side returned an error
	// or was unreachable (500).
	KindRemoteFailure

	// KindIntegrity means downloaded content failed verification: hash
	// mismatch, identity mismatch, or an unreadable bundle (500).
	KindIntegrity
)

// Error couples a user-facing message with a transport kind. The message is
// returned verbatim in the response envelope.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}

	return "sync operation failed"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from an error chain, or 0 for errors this package
// did not classify.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return 0
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func gonef(format string, args ...any) *Error {
	return &Error{Kind: KindGone, Msg: fmt.Sprintf(format, args...)}
}

func remoteConfigErr(err error) *Error {
	return &Error{Kind: KindRemoteConfig, Msg: err.Error(), Err: err}
}

func remoteFailure(err error) *Error {
	return &Error{Kind: KindRemoteFailure, Msg: err.Error(), Err: err}
}

func remoteFailuref(format string, args ...any) *Error {
	return &Error{Kind: KindRemoteFailure, Msg: fmt.Sprintf(format, args...)}
}

func integrityf(format string, args ...any) *Error {
	return &Error{Kind: KindIntegrity, Msg: fmt.Sprintf(format, args...)}
}
