// Package flterr defines the error taxonomy shared by every stage of the
// flight-log decoding pipeline.
package flterr

import (
	"errors"
	"fmt"
)

// Kind classifies a decode failure or diagnostic
type Kind int

const (
	KindUnknown Kind = iota
	KindUnexpectedEnd
	KindTruncatedRecord
	KindDecryptionFailed
	KindMalformedField
	KindEmptyModel
	KindInvalidArgument
	KindInvalidLayout
	KindMetadataConflict
	KindBadTerminator
)

// Sentinel errors, one per kind. Typed errors unwrap to these so callers can
// use errors.Is without caring about offsets.
var (
	ErrUnexpectedEnd    = errors.New("unexpected end of buffer")
	ErrTruncatedRecord  = errors.New("truncated record")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrMalformedField   = errors.New("malformed field")
	ErrEmptyModel       = errors.New("no usable telemetry samples")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidLayout    = errors.New("invalid layout")
	ErrMetadataConflict = errors.New("conflicting metadata")
	ErrBadTerminator    = errors.New("missing record terminator")
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	KindUnexpectedEnd:    "UnexpectedEnd",
	KindTruncatedRecord:  "TruncatedRecord",
	KindDecryptionFailed: "DecryptionFailed",
	KindMalformedField:   "MalformedField",
	KindEmptyModel:       "EmptyModel",
	KindInvalidArgument:  "InvalidArgument",
	KindInvalidLayout:    "InvalidLayout",
	KindMetadataConflict: "MetadataConflict",
	KindBadTerminator:    "BadTerminator",
}

var kindSentinels = map[Kind]error{
	KindUnexpectedEnd:    ErrUnexpectedEnd,
	KindTruncatedRecord:  ErrTruncatedRecord,
	KindDecryptionFailed: ErrDecryptionFailed,
	KindMalformedField:   ErrMalformedField,
	KindEmptyModel:       ErrEmptyModel,
	KindInvalidArgument:  ErrInvalidArgument,
	KindInvalidLayout:    ErrInvalidLayout,
	KindMetadataConflict: ErrMetadataConflict,
	KindBadTerminator:    ErrBadTerminator,
}

// String returns the kind name
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether an error of this kind aborts the invocation
func (k Kind) Fatal() bool {
	switch k {
	case KindTruncatedRecord, KindMalformedField, KindMetadataConflict, KindBadTerminator:
		return false
	default:
		return true
	}
}

// Error is a decode failure annotated with where it happened. Offset and
// Record are -1 when not applicable.
type Error struct {
	Kind   Kind
	Offset int
	Record int
	Tag    int
	Msg    string
	Err    error
}

// New creates an Error with no position information
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Offset: -1, Record: -1, Tag: -1, Msg: msg}
}

// Newf creates an Error with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error that carries an underlying cause
func Wrap(kind Kind, err error, msg string) *Error {
	e := New(kind, msg)
	e.Err = err
	return e
}

// At sets the buffer offset of the failure
func (e *Error) At(offset int) *Error {
	e.Offset = offset
	return e
}

// InRecord sets the record index and tag of the failure
func (e *Error) InRecord(index int, tag uint8) *Error {
	e.Record = index
	e.Tag = int(tag)
	return e
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Record >= 0 {
		s += fmt.Sprintf(" in record %d (tag %d)", e.Record, e.Tag)
	}
	if e.Offset >= 0 {
		s += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the kind of err, or KindUnknown for foreign errors
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}
