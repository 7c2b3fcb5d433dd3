// Package apperr holds the marketplace error taxonomy. Every error a caller can
// act on carries a Kind; errors.Is matches on Kind alone, so detailed messages
// still compare equal to the package sentinels.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindDuplicateRequest
	KindDuplicateFeedback
	KindInvalidTransition
	KindMaterialUnavailable
	KindInsufficientQuantity
	KindOrganizationBlocked
	KindValidation
	// KindUnavailable marks transient persistence failures. Nothing was committed.
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindNotFound:             "not_found",
	KindForbidden:            "forbidden",
	KindDuplicateRequest:     "duplicate_request",
	KindDuplicateFeedback:    "duplicate_feedback",
	KindInvalidTransition:    "invalid_transition",
	KindMaterialUnavailable:  "material_unavailable",
	KindInsufficientQuantity: "insufficient_quantity",
	KindOrganizationBlocked:  "organization_blocked",
	KindValidation:           "validation",
	KindUnavailable:          "unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrDuplicateRequest     = &Error{Kind: KindDuplicateRequest}
	ErrDuplicateFeedback    = &Error{Kind: KindDuplicateFeedback}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition}
	ErrMaterialUnavailable  = &Error{Kind: KindMaterialUnavailable}
	ErrInsufficientQuantity = &Error{Kind: KindInsufficientQuantity}
	ErrOrganizationBlocked  = &Error{Kind: KindOrganizationBlocked}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrUnavailable          = &Error{Kind: KindUnavailable}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
