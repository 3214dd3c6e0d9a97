package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/balance"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"

	"github.com/tripfare/payments/internal/module/payment/domain"
)

// StripeConfig holds Stripe adapter configuration.
type StripeConfig struct {
	APIKey string
}

// StripeProcessor implements the Processor contract on the Stripe SDK. It
// declares delayed capture and a broad currency set, so capability-based
// selection between it and Duffel is meaningful.
type StripeProcessor struct {
	cfg         StripeConfig
	initialized bool
}

// NewStripeProcessor creates a Stripe adapter.
func NewStripeProcessor(cfg StripeConfig) *StripeProcessor {
	stripe.Key = cfg.APIKey
	return &StripeProcessor{cfg: cfg}
}

// Name returns the processor name.
func (p *StripeProcessor) Name() string { return "stripe" }

// Capabilities returns the Stripe capability row.
func (p *StripeProcessor) Capabilities() Capabilities {
	return Capabilities{
		ThreeDSecure:   true,
		DelayedCapture: true,
		PartialRefunds: true,
	}
}

// Initialize probes connectivity with a balance read.
func (p *StripeProcessor) Initialize(ctx context.Context) error {
	if _, err := balance.Get(&stripe.BalanceParams{}); err != nil {
		return fmt.Errorf("stripe connectivity probe: %w", mapStripeError(err))
	}
	p.initialized = true
	return nil
}

var stripeStatusTable = map[stripe.PaymentIntentStatus]domain.PaymentStatus{
	stripe.PaymentIntentStatusRequiresPaymentMethod: domain.StatusRequiresPaymentMethod,
	stripe.PaymentIntentStatusRequiresConfirmation:  domain.StatusRequiresConfirmation,
	stripe.PaymentIntentStatusRequiresAction:        domain.StatusRequiresAction,
	stripe.PaymentIntentStatusProcessing:            domain.StatusProcessing,
	stripe.PaymentIntentStatusRequiresCapture:       domain.StatusRequiresCapture,
	stripe.PaymentIntentStatusSucceeded:             domain.StatusSucceeded,
	stripe.PaymentIntentStatusCanceled:              domain.StatusCanceled,
}

// CreateIntent creates a Stripe PaymentIntent.
func (p *StripeProcessor) CreateIntent(ctx context.Context, params domain.CreateIntentParams) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.Amount),
		Currency: stripe.String(params.Currency),
	}
	if len(params.PaymentMethodTypes) > 0 {
		for _, t := range params.PaymentMethodTypes {
			piParams.PaymentMethodTypes = append(piParams.PaymentMethodTypes, stripe.String(string(t)))
		}
	} else {
		piParams.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	if params.CaptureMethod == domain.CaptureManual {
		piParams.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}
	if params.IdempotencyKey != "" {
		piParams.IdempotencyKey = stripe.String(params.IdempotencyKey)
	}

	piParams.Metadata = map[string]string{"booking_type": string(params.Metadata.BookingType)}
	if params.Metadata.BookingID != "" {
		piParams.Metadata["booking_id"] = params.Metadata.BookingID
	}
	if params.Metadata.CustomerID != "" {
		piParams.Metadata["customer_id"] = params.Metadata.CustomerID
	}
	if params.Metadata.OrderReference != "" {
		piParams.Metadata["order_reference"] = params.Metadata.OrderReference
	}

	pi, err := paymentintent.New(piParams)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapStripeIntent(pi)
}

// GetIntent fetches the current intent state.
func (p *StripeProcessor) GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	pi, err := paymentintent.Get(intentID, nil)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapStripeIntent(pi)
}

// ConfirmIntent confirms with the given method. On failure the current
// intent state is still fetched and returned when possible.
func (p *StripeProcessor) ConfirmIntent(ctx context.Context, intentID string, method *domain.Method, returnURL string) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(method.ID),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}

	pi, err := paymentintent.Confirm(intentID, params)
	if err != nil {
		mapped := mapStripeError(err)
		if current, getErr := p.GetIntent(ctx, intentID); getErr == nil {
			return current, mapped
		}
		return nil, mapped
	}
	return mapStripeIntent(pi)
}

// CaptureIntent captures an authorized intent, optionally partially.
func (p *StripeProcessor) CaptureIntent(ctx context.Context, intentID string, amount int64) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	params := &stripe.PaymentIntentCaptureParams{}
	if amount > 0 {
		params.AmountToCapture = stripe.Int64(amount)
	}
	pi, err := paymentintent.Capture(intentID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapStripeIntent(pi)
}

// CancelIntent cancels a not-yet-succeeded intent.
func (p *StripeProcessor) CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	pi, err := paymentintent.Cancel(intentID, nil)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return mapStripeIntent(pi)
}

// Refund refunds a captured intent, optionally partially.
func (p *StripeProcessor) Refund(ctx context.Context, intentID string, amount int64) (*domain.RefundResult, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	r, err := refund.New(params)
	if err != nil {
		mapped := mapStripeError(err)
		var pe *domain.PaymentError
		if errors.As(mapped, &pe) {
			return &domain.RefundResult{Success: false, Status: domain.RefundFailed, Error: pe}, mapped
		}
		return nil, mapped
	}

	status := domain.RefundPending
	switch r.Status {
	case stripe.RefundStatusSucceeded:
		status = domain.RefundSucceeded
	case stripe.RefundStatusFailed:
		status = domain.RefundFailed
	}
	return &domain.RefundResult{
		Success:  status != domain.RefundFailed,
		RefundID: r.ID,
		Amount:   r.Amount,
		Currency: string(r.Currency),
		Status:   status,
	}, nil
}

// mapStripeIntent converts an SDK intent to the shared shape.
func mapStripeIntent(pi *stripe.PaymentIntent) (*domain.PaymentIntent, error) {
	status, ok := stripeStatusTable[pi.Status]
	if !ok {
		return nil, fmt.Errorf("unknown stripe intent status %q", pi.Status)
	}

	capture := domain.CaptureAutomatic
	if pi.CaptureMethod == stripe.PaymentIntentCaptureMethodManual {
		capture = domain.CaptureManual
	}
	confirmation := domain.ConfirmationAutomatic
	if pi.ConfirmationMethod == stripe.PaymentIntentConfirmationMethodManual {
		confirmation = domain.ConfirmationManual
	}

	intent := &domain.PaymentIntent{
		ID:                 pi.ID,
		Amount:             pi.Amount,
		Currency:           string(pi.Currency),
		Status:             status,
		ClientSecret:       pi.ClientSecret,
		ConfirmationMethod: confirmation,
		CaptureMethod:      capture,
	}
	if pi.PaymentMethod != nil {
		intent.PaymentMethodID = pi.PaymentMethod.ID
	}
	if pi.Metadata != nil {
		intent.Metadata = domain.Metadata{
			BookingType:    domain.BookingType(pi.Metadata["booking_type"]),
			BookingID:      pi.Metadata["booking_id"],
			CustomerID:     pi.Metadata["customer_id"],
			OrderReference: pi.Metadata["order_reference"],
		}
	}
	if pi.NextAction != nil && pi.NextAction.Type == "redirect_to_url" && pi.NextAction.RedirectToURL != nil {
		intent.NextAction = &domain.NextAction{
			Type:      "redirect_to_url",
			URL:       pi.NextAction.RedirectToURL.URL,
			ReturnURL: pi.NextAction.RedirectToURL.ReturnURL,
		}
	}
	return intent, nil
}

// mapStripeError converts SDK errors to the shared taxonomy.
func mapStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}

	var errType domain.ErrorType
	switch se.Type {
	case stripe.ErrorTypeCard:
		errType = domain.ErrTypeCard
	// stripe-go defines no constant for "authentication_error"; match the raw value.
	case stripe.ErrorType("authentication_error"):
		errType = domain.ErrTypeAuthentication
	case stripe.ErrorTypeInvalidRequest:
		errType = domain.ErrTypeValidation
	default:
		errType = domain.ErrTypeAPI
	}

	pe := domain.NewPaymentError(string(se.Code), se.Msg, errType)
	pe.Param = se.Param
	pe.DeclineCode = string(se.DeclineCode)
	return pe
}
