package wpilog

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so callers can branch on it without
// matching message text.
type Kind uint8

const (
	KindInvalidFormat Kind = iota + 1
	KindParse
	KindSchema
	KindInvalidEntry
	KindIo
)

func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "invalid format"
	case KindParse:
		return "parse error"
	case KindSchema:
		return "schema error"
	case KindInvalidEntry:
		return "invalid entry"
	case KindIo:
		return "io error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrInvalidFormat = &Error{Kind: KindInvalidFormat}
	ErrParse         = &Error{Kind: KindParse}
	ErrSchema        = &Error{Kind: KindSchema}
	ErrInvalidEntry  = &Error{Kind: KindInvalidEntry}
	ErrIo            = &Error{Kind: KindIo}
)

// ErrUnexpectedEnd is returned by Cursor reads that would cross the end of the span.
var ErrUnexpectedEnd = errors.New("unexpected end of data")

// Error is the single error type produced by the engine.
type Error struct {
	Kind     Kind
	Offset   int    // byte offset of the record (or header field) that failed
	EntryID  uint32 // valid only when HasEntry is set
	HasEntry bool
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	s += fmt.Sprintf(" (offset %d", e.Offset)
	if e.HasEntry {
		s += fmt.Sprintf(", entry %d", e.EntryID)
	}
	s += ")"
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so that errors.Is(err, ErrSchema) works for any
// schema error regardless of its context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

func newError(kind Kind, offset int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func newEntryError(kind Kind, offset int, entry uint32, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Offset: offset, EntryID: entry, HasEntry: true, Msg: fmt.Sprintf(format, args...)}
}

// IoError wraps a failure from the byte-source collaborator.
func IoError(err error) *Error {
	return &Error{Kind: KindIo, Msg: "read source", Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
