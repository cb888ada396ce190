// Package apperr defines the error taxonomy surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindAuth            Kind = "AUTH"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindExternalService Kind = "EXTERNAL_SERVICE"
	KindBusinessRule    Kind = "BUSINESS_RULE"
)

// Error codes
const (
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeNotAdmin               = "NOT_ADMIN"
	CodeNotFound               = "NOT_FOUND"
	CodeEmptyCart              = "EMPTY_CART"
	CodeCheckoutFailed         = "CHECKOUT_FAILED"
	CodePaymentIncomplete      = "PAYMENT_INCOMPLETE"
	CodeVerificationInProgress = "VERIFICATION_IN_PROGRESS"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeOutOfStock             = "OUT_OF_STOCK"
	CodeAdminPurchase          = "ADMIN_PURCHASE"
	CodeOrderFinal             = "ORDER_FINAL"
	CodeConversationClosed     = "CONVERSATION_CLOSED"
	CodeEmailTaken             = "EMAIL_TAKEN"
	CodeInvalidCredentials     = "INVALID_CREDENTIALS"
	CodeInvalidResetToken      = "INVALID_RESET_TOKEN"
	CodeSelfRevoke             = "SELF_REVOKE"
	CodeSessionMismatch        = "SESSION_MISMATCH"
	CodeUpstream               = "UPSTREAM_FAILURE"
)

type Error struct {
	Kind     Kind
	Code     string
	Message  string
	Redirect string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithRedirect returns a copy of e carrying a client navigation hint.
func (e *Error) WithRedirect(path string) *Error {
	cp := *e
	cp.Redirect = path
	return &cp
}

// Status maps the error onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindExternalService:
		return http.StatusBadGateway
	case KindBusinessRule:
		if e.Code == CodeVerificationInProgress {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, CodeInvalidInput, message)
}

func NotFound(what string) *Error {
	return New(KindNotFound, CodeNotFound, what+" not found")
}

func Rule(code, message string) *Error {
	return New(KindBusinessRule, code, message)
}

func External(message string, err error) *Error {
	return Wrap(KindExternalService, CodeUpstream, message, err)
}

// From extracts an *Error from err's chain.
func From(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	appErr, ok := From(err)
	return ok && appErr.Code == code
}
