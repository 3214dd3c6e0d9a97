// Package processor defines the plug-in contract payment processors
// implement and the adapters that translate it into vendor wire formats.
package processor

import (
	"context"
	"errors"

	"github.com/tripfare/payments/internal/module/payment/domain"
)

// ErrNotInitialized is returned when an adapter is used before a successful
// Initialize.
var ErrNotInitialized = errors.New("processor not initialized")

// Capabilities declares what a processor can do. The manager selects
// processors by these rows, never by vendor name.
type Capabilities struct {
	ThreeDSecure   bool
	DelayedCapture bool
	PartialRefunds bool
	Currencies     []string // empty means all
	Regions        []string // empty means all
}

// SupportsCurrency reports whether the processor accepts the currency.
func (c Capabilities) SupportsCurrency(currency string) bool {
	if len(c.Currencies) == 0 {
		return true
	}
	for _, cur := range c.Currencies {
		if cur == currency {
			return true
		}
	}
	return false
}

// Processor is the contract the orchestrator drives. Implementations own
// intent state; the orchestrator only reads what they return.
//
// Initialize must succeed a connectivity probe before any other call is
// legal; connection failures surface there, not lazily on first payment.
type Processor interface {
	Name() string
	Capabilities() Capabilities

	Initialize(ctx context.Context) error
	CreateIntent(ctx context.Context, params domain.CreateIntentParams) (*domain.PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)

	// ConfirmIntent attaches the method and confirms. On failure the adapter
	// still attempts to fetch and return the current server-side intent
	// state, so the caller may receive both an intent and an error.
	ConfirmIntent(ctx context.Context, intentID string, method *domain.Method, returnURL string) (*domain.PaymentIntent, error)

	CaptureIntent(ctx context.Context, intentID string, amount int64) (*domain.PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
	Refund(ctx context.Context, intentID string, amount int64) (*domain.RefundResult, error)
}
