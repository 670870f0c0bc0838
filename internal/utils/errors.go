package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors into the categories the scan pipeline reports to users.
type Kind string

const (
	KindParseRejection Kind = "parse-rejection"
	KindDuplicateScan  Kind = "duplicate-scan"
	KindImageDecode    Kind = "image-decode"
	KindImageLoad      Kind = "image-load"
	KindPersistence    Kind = "persistence"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not-found"
)

// Error is a categorized error. Code is the HTTP status the API answers with.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var kindCodes = map[Kind]int{
	KindParseRejection: http.StatusUnprocessableEntity,
	KindDuplicateScan:  http.StatusConflict,
	KindImageDecode:    http.StatusUnprocessableEntity,
	KindImageLoad:      http.StatusBadRequest,
	KindPersistence:    http.StatusInternalServerError,
	KindValidation:     http.StatusBadRequest,
	KindNotFound:       http.StatusNotFound,
}

// New returns an Error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Code: codeFor(kind), Message: message}
}

// Wrap returns an Error of the given kind wrapping err. A nil err yields nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: codeFor(kind), Message: message, Err: err}
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCode returns the HTTP status for err, defaulting to 500.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

func codeFor(kind Kind) int {
	if c, ok := kindCodes[kind]; ok {
		return c
	}
	return http.StatusInternalServerError
}
