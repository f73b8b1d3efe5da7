package billing

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation_error"
	KindForbidden     ErrorKind = "forbidden"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
	KindUpstream      ErrorKind = "upstream_error"
	KindConfiguration ErrorKind = "configuration_error"
)

// Error is a typed engine failure. The kind decides the HTTP status.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ProviderStatus returns the status code PayPal answered with, or 0.
func (e *Error) ProviderStatus() int {
	var apiErr *paypal.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ProviderBody returns PayPal's response body for diagnostics, or "".
func (e *Error) ProviderBody() string {
	var apiErr *paypal.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Body
	}
	return ""
}

func validationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func forbiddenError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func configurationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// providerError classifies a failed PayPal call. Missing credentials are a
// configuration problem; everything else is a bad upstream.
func providerError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, paypal.ErrNotConfigured) || errors.Is(err, paypal.ErrWebhookNotConfigured) {
		return &Error{Kind: KindConfiguration, Message: "paypal is not configured", Err: err}
	}
	return &Error{Kind: KindUpstream, Message: "paypal " + operation + " failed", Err: err}
}

// PaymentRequiredError is returned by the enforcement gate when the owner's
// subscription is blocked. It carries the boundaries for a "renew now" prompt.
type PaymentRequiredError struct {
	OwnerID          uint
	CurrentPeriodEnd *time.Time
	GracePeriodEnd   *time.Time
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment required: subscription of owner %d is blocked", e.OwnerID)
}

func (e *PaymentRequiredError) HTTPStatus() int {
	return http.StatusPaymentRequired
}

// IsPaymentRequired reports whether err is a blocked-subscription outcome.
func IsPaymentRequired(err error) bool {
	var pr *PaymentRequiredError
	return errors.As(err, &pr)
}

// HTTPStatus maps any error returned by the engine to a status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var pr *PaymentRequiredError
	if errors.As(err, &pr) {
		return pr.HTTPStatus()
	}
	var be *Error
	if errors.As(err, &be) {
		return be.HTTPStatus()
	}
	return http.StatusInternalServerError
}
