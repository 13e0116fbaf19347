package utils

import (
	"errors"
	"fmt"
)

// Error kinds reported by the extraction pipeline. Callers are expected to
// match on the kind rather than the message text.
const (
	KindMissingFile         = "MissingFile"
	KindDiffStacksLength    = "DiffStacksLength"
	KindWrongTimeLineLength = "WrongTimeLineLength"
	KindOutOfBounds         = "OutOfBounds"
	KindInvalidBoundBox     = "InvalidBoundBox"
	KindRequiredTagMissing  = "RequiredTagMissing"
	KindBandsTagsError      = "BandsTagsError"
)

// Error carries a named failure kind together with a human readable message.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an Error of the given kind with a formatted message.
func NewError(kind string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrKind reports whether err is an Error of the given kind anywhere in its
// chain.
func ErrKind(err error, kind string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
