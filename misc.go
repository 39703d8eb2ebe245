package bes

import (
	"fmt"
	goLog "log"
)

// Class of failure reported by an Error.
type ErrorKind uint8

const (
	// Bad caller-supplied values: user out of range, N not a power of
	// two, malformed input sizes.
	ErrParameters ErrorKind = iota

	// Operation called in the wrong order or by the wrong role.
	ErrSequence

	// A required optional input was not supplied, or an unsupported
	// option was requested.
	ErrNotImplemented

	// Structural contradiction that a conforming master cannot produce.
	ErrInvariant

	// A key container is locked by another process.
	ErrLocked

	// Filesystem trouble in a key container.
	ErrStorage
)

func (kind ErrorKind) String() string {
	switch kind {
	case ErrParameters:
		return "Parameters"
	case ErrSequence:
		return "Sequence"
	case ErrNotImplemented:
		return "NotImplemented"
	case ErrInvariant:
		return "Invariant"
	case ErrLocked:
		return "Locked"
	case ErrStorage:
		return "Storage"
	}
	return "Unknown"
}

type Error interface {
	error
	Kind() ErrorKind // Class of this error
	Inner() error    // Returns the wrapped error, if any
}

type errorImpl struct {
	msg   string
	kind  ErrorKind
	inner error
}

func (err *errorImpl) Kind() ErrorKind { return err.kind }
func (err *errorImpl) Inner() error    { return err.inner }

func (err *errorImpl) Error() string {
	if err.inner != nil {
		return fmt.Sprintf("%s: %s", err.msg, err.inner.Error())
	}
	return err.msg
}

// Formats a new Error of the given kind
func errorf(kind ErrorKind, format string, a ...interface{}) *errorImpl {
	return &errorImpl{msg: fmt.Sprintf(format, a...), kind: kind}
}

// Formats a new Storage Error that wraps another
func wrapErrorf(err error, format string, a ...interface{}) *errorImpl {
	return &errorImpl{
		msg:   fmt.Sprintf(format, a...),
		kind:  ErrStorage,
		inner: err,
	}
}

// Encodes the given uint64 into the buffer out in Big Endian
func encodeUint64Into(x uint64, out []byte) {
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = byte(x)
		x >>= 8
	}
}

// Encodes the given uint64 as [outLen]byte in Big Endian.
func encodeUint64(x uint64, outLen int) []byte {
	ret := make([]byte, outLen)
	encodeUint64Into(x, ret)
	return ret
}

// Interpret []byte as Big Endian int.
func decodeUint64(in []byte) (ret uint64) {
	for i := 0; i < len(in); i++ {
		ret |= uint64(in[i]) << uint64(8*(len(in)-1-i))
	}
	return
}

type dummyLogger struct{}
type stdlibLogger struct{}

func (logger *dummyLogger) Logf(format string, a ...interface{}) {}

func (logger *stdlibLogger) Logf(format string, a ...interface{}) {
	goLog.Printf(format, a...)
}

var log Logger = &dummyLogger{}

type Logger interface {
	Logf(format string, a ...interface{})
}

// Enables logging to log package.  For more flexibility, see SetLogger().
func EnableLogging() {
	SetLogger(&stdlibLogger{})
}

// Enables logging.  Disable logging by passing nil.
//
// Use EnableLogging if you want to log to the log package.
func SetLogger(logger Logger) {
	if logger == nil {
		log = &dummyLogger{}
		return
	}
	log = logger
}
