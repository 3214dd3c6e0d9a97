package domain

import "fmt"

// ErrorType classifies a payment error regardless of which processor
// produced the underlying failure.
type ErrorType string

const (
	ErrTypeCard           ErrorType = "card_error"
	ErrTypeValidation     ErrorType = "validation_error"
	ErrTypeAPI            ErrorType = "api_error"
	ErrTypeAuthentication ErrorType = "authentication_error"
)

// PaymentError is the normalized error shape returned to callers. Adapters
// translate vendor error payloads into this type; vendor shapes never leak
// past the adapter boundary.
type PaymentError struct {
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Type        ErrorType `json:"type"`
	Param       string    `json:"param,omitempty"`
	DeclineCode string    `json:"decline_code,omitempty"`
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("%s (%s): %s [decline: %s]", e.Code, e.Type, e.Message, e.DeclineCode)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Type, e.Message)
}

// NewPaymentError creates a PaymentError.
func NewPaymentError(code, message string, errType ErrorType) *PaymentError {
	return &PaymentError{Code: code, Message: message, Type: errType}
}
