// Package errors defines typed application failures shared by the
// onboarding service layers.
//
// Every failure carries a Kind that drives recovery and HTTP mapping, and an
// optional localization Key that the transport layer resolves against the
// message catalog. Message is internal text for logs.
package errors

import (
	stderrors "errors"
	"net/http"
	"strings"
)

// Kind classifies application failures.
type Kind string

const (
	KindUnknown Kind = "unknown"
	// KindInvalidInput is a user-correctable validation failure.
	KindInvalidInput Kind = "invalid_input"
	// KindUnavailable is a network or upstream failure.
	KindUnavailable Kind = "unavailable"
	// KindConflict marks an account that already exists upstream.
	KindConflict Kind = "conflict"
	// KindPayment is a rejected or incomplete payment.
	KindPayment Kind = "payment"
	// KindOutOfRange is a programming error such as an unmapped step.
	KindOutOfRange Kind = "out_of_range"
	KindNotFound   Kind = "not_found"
	// KindCanceled marks a flow the user aborted.
	KindCanceled Kind = "canceled"
)

// Error is a typed application failure.
type Error struct {
	Kind    Kind
	Key     string
	Message string
	Cause   error
}

// Error renders the internal message.
func (e Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause for errors.Is and errors.As.
func (e Error) Unwrap() error {
	return e.Cause
}

// E builds a typed Error.
func E(kind Kind, message string) error {
	return Error{Kind: kind, Message: message}
}

// EK builds a typed Error with a localization key.
func EK(kind Kind, key string, message string) error {
	return Error{Kind: kind, Key: strings.TrimSpace(key), Message: message}
}

// Wrap builds a typed Error around cause. A nil cause yields nil.
func Wrap(kind Kind, key string, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return Error{Kind: kind, Key: strings.TrimSpace(key), Message: message, Cause: cause}
}

// KindOf returns the outermost typed kind, or KindUnknown.
func KindOf(err error) Kind {
	var appErr Error
	if !stderrors.As(err, &appErr) {
		return KindUnknown
	}
	return appErr.Kind
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// LocalizationKey returns the structured localization key when available.
func LocalizationKey(err error) string {
	if err == nil {
		return ""
	}
	var appErr Error
	if !stderrors.As(err, &appErr) {
		return ""
	}
	return strings.TrimSpace(appErr.Key)
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayment:
		return http.StatusPaymentRequired
	case KindUnavailable:
		return http.StatusBadGateway
	case KindCanceled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
