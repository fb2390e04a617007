package adbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidData reports malformed wire bytes: failed grammar or
	// UTF-8 validation, bad alignment padding, or an over-long array.
	ErrInvalidData = errors.New("adbus: invalid message data")

	// ErrInvalidVersion reports a message with a protocol version
	// other than 1.
	ErrInvalidVersion = errors.New("adbus: invalid protocol version")

	// ErrArgumentMismatch reports a check helper that consumed a field
	// of the wrong type.
	ErrArgumentMismatch = errors.New("adbus: argument type mismatch")

	// ErrStreamCorrupt reports a stream whose framing has failed; no
	// further messages can be extracted from it.
	ErrStreamCorrupt = errors.New("adbus: stream corrupt")
)

// Error is a D-Bus level error: a dotted error name plus a
// human-readable message.  Method handlers may return one to control
// the error name of the generated reply.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprint(e.Name, ": ", e.Message)
}

// Stable error names used by the dispatcher for its own failures.
const (
	errNameObjectNotFound    = "nz.co.foobar.adbus.Error.ObjectNotFound"
	errNameInterfaceNotFound = "nz.co.foobar.adbus.Error.InterfaceNotFound"
	errNameMethodNotFound    = "nz.co.foobar.adbus.Error.MethodNotFound"
	errNamePropertyNotFound  = "nz.co.foobar.adbus.Error.PropertyNotFound"
	errNameReadOnlyProperty  = "nz.co.foobar.adbus.Error.ReadOnlyProperty"
	errNameWriteOnlyProperty = "nz.co.foobar.adbus.Error.WriteOnlyProperty"
	errNameInvalidArgument   = "nz.co.foobar.adbus.Error.InvalidArgument"
	errNameFailed            = "org.freedesktop.DBus.Error.Failed"
)
