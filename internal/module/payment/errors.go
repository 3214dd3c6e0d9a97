package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tripfare/payments/internal/module/payment/domain"
)

// Service error codes. Validation codes are raised locally before any
// network call; the rest categorize processor and network failures.
const (
	CodeInitializationFailed = "INITIALIZATION_FAILED"
	CodeNotInitialized       = "NOT_INITIALIZED"
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeInvalidCurrency      = "INVALID_CURRENCY"
	CodeMissingMetadata      = "MISSING_METADATA"
	CodeInvalidPaymentMethod = "INVALID_PAYMENT_METHOD"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeThreeDSFailed        = "THREEDS_FAILED"
	CodeCardError            = "CARD_ERROR"
	CodePaymentDeclined      = "PAYMENT_DECLINED"
	CodeNetworkError         = "NETWORK_ERROR"
	CodeProcessingError      = "PROCESSING_ERROR"
)

// Error is the single uniform error type the service returns. Callers never
// see processor-specific error shapes.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a service error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a service error wrapping a cause.
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err is a service error with the given code.
func IsCode(err error, code string) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}

// vendorCodeTaxonomy maps normalized vendor error codes to service codes.
// Adapters produce these through domain.PaymentError.Code; the table is the
// authoritative mapping and substring matching below is only a fallback for
// codes no adapter has claimed.
var vendorCodeTaxonomy = map[string]string{
	"card_declined":           CodePaymentDeclined,
	"insufficient_funds":      CodePaymentDeclined,
	"expired_card":            CodeCardError,
	"incorrect_cvc":           CodeCardError,
	"incorrect_number":        CodeCardError,
	"invalid_card":            CodeCardError,
	"processing_error":        CodeProcessingError,
	"rate_limit":              CodeNetworkError,
	"api_connection_error":    CodeNetworkError,
	"authentication_required": CodeAuthenticationFailed,
	"authentication_failure":  CodeAuthenticationFailed,
}

// categorize wraps any error into the uniform service error type. Service
// errors pass through unchanged; normalized payment errors are mapped by
// code then by type; everything else falls back to message substrings.
func categorize(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	var pe *domain.PaymentError
	if errors.As(err, &pe) {
		if code, ok := vendorCodeTaxonomy[pe.Code]; ok {
			return WrapError(code, pe.Message, pe)
		}
		switch pe.Type {
		case domain.ErrTypeCard:
			return WrapError(CodeCardError, pe.Message, pe)
		case domain.ErrTypeAuthentication:
			return WrapError(CodeAuthenticationFailed, pe.Message, pe)
		case domain.ErrTypeValidation:
			return WrapError(CodeProcessingError, pe.Message, pe)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "card"):
		return WrapError(CodeCardError, "card error", err)
	case strings.Contains(msg, "insufficient"), strings.Contains(msg, "declined"):
		return WrapError(CodePaymentDeclined, "payment declined", err)
	case strings.Contains(msg, "network"), strings.Contains(msg, "timeout"):
		return WrapError(CodeNetworkError, "network error", err)
	default:
		return WrapError(CodeProcessingError, "payment processing failed", err)
	}
}
