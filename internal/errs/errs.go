// Package errs defines the typed error kinds shared by the cache, remote
// and reconciliation layers.
//
// Every failure that crosses a package boundary is either one of the
// sentinels below or an *Error carrying a Kind. Callers branch on kinds with
// IsKind rather than on message text.
package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// Kind classifies a failure for propagation policy and display.
type Kind string

const (
	// KindNetwork means the remote side could not be reached (offline,
	// DNS, timeout).
	KindNetwork Kind = "network_unavailable"
	// KindTransport means the remote answered with a failure status.
	KindTransport Kind = "transport"
	// KindUnauthorized covers bad credentials and missing or expired sessions.
	KindUnauthorized Kind = "unauthorized"
	// KindMalformed means a payload could not be decoded.
	KindMalformed Kind = "malformed_payload"
	// KindStorage means the local storage engine failed.
	KindStorage Kind = "storage_io"
	// KindNotFound covers missing records and spots that are already taken.
	KindNotFound Kind = "not_found"
	// KindNoData means there is nothing to show and no way to fetch it.
	KindNoData Kind = "no_data"
)

// Error is a kind-tagged error. Status is only meaningful for KindTransport.
type Error struct {
	Kind   Kind
	Status int
	msg    string
	err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.msg != "" {
		b.WriteString(": ")
		b.WriteString(e.msg)
	}
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.err
}

// E builds a kind-tagged error wrapping err (which may be nil).
func E(kind Kind, msg string, err error) error {
	if err != nil {
		err = cr.WithStack(err)
	}
	return &Error{Kind: kind, msg: msg, err: err}
}

// Transport builds a KindTransport error for an HTTP-style status code.
func Transport(status int, msg string) error {
	return &Error{Kind: KindTransport, Status: status, msg: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if cr.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusOf returns the transport status code carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if cr.As(err, &e) {
		return e.Status
	}
	return 0
}

// Wrap annotates err with msg, keeping its kind and stack.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

// New returns a plain error with a stack trace.
func New(msg string) error {
	return cr.New(msg)
}

// Newf is New with formatting.
func Newf(format string, args ...interface{}) error {
	return cr.Newf(format, args...)
}

// Mark tags err so that errors.Is(err, mark) holds without changing its text.
func Mark(err error, mark error) error {
	if err == nil {
		return mark
	}
	return cr.Mark(err, mark)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return cr.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return cr.As(err, target)
}

// UserMessage renders err for display to an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNetwork:
		return "Network unavailable. Changes are saved on this device and will sync later."
	case KindTransport:
		if s := StatusOf(err); s != 0 {
			return fmt.Sprintf("The server returned an error (%d). Please try again.", s)
		}
		return "The server returned an error. Please try again."
	case KindUnauthorized:
		return "Invalid email or password, or your session has expired."
	case KindMalformed:
		return "Received data could not be read."
	case KindStorage:
		return "Local storage is unavailable. Favorites and reservations cannot be saved."
	case KindNotFound:
		return "The requested item was not found or is no longer available."
	case KindNoData:
		return "No data available offline. Connect to the network and try again."
	}
	return err.Error()
}
