package identity

import (
	"errors"
	"fmt"
)

// Kind classifies failures so transports can map them without inspecting messages.
type Kind int

const (
	KindSystem Kind = iota
	KindValidation
	KindNoFace
	KindQuality
	KindDuplicateIdentifier
	KindDuplicateFace
	KindNotFound
	KindPersistence
)

var kindNames = map[Kind]string{
	KindSystem:              "system",
	KindValidation:          "validation",
	KindNoFace:              "no_face",
	KindQuality:             "quality",
	KindDuplicateIdentifier: "duplicate_identifier",
	KindDuplicateFace:       "duplicate_face",
	KindNotFound:            "not_found",
	KindPersistence:         "persistence",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the structured failure returned by registration, recognition and
// maintenance operations. Gate failures carry the measured value and the
// threshold it was compared against.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string

	// Identifier and DisplayName name the conflicting or missing identity.
	Identifier  string
	DisplayName string
	Measured    float64
	Threshold   float64

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// KindOf returns the kind of the first *Error in err's chain, or KindSystem.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

func newError(kind Kind, stage Stage, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, stage Stage, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}
