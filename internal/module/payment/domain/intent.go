package domain

import "time"

// PaymentIntent is the processor-owned representation of one payment attempt.
// The orchestrator reads and forwards intents; only processor calls mutate
// them. Once succeeded or canceled an intent never changes again.
type PaymentIntent struct {
	ID                 string             `json:"id"`
	Amount             int64              `json:"amount"` // minor units
	Currency           string             `json:"currency"`
	Status             PaymentStatus      `json:"status"`
	ClientSecret       string             `json:"client_secret,omitempty"`
	ConfirmationMethod ConfirmationMethod `json:"confirmation_method"`
	CaptureMethod      CaptureMethod      `json:"capture_method"`
	PaymentMethodID    string             `json:"payment_method_id,omitempty"`
	NextAction         *NextAction        `json:"next_action,omitempty"`
	Metadata           Metadata           `json:"metadata"`
	LastError          *PaymentError      `json:"last_error,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NextAction describes what the caller must do before an intent can proceed,
// currently always a redirect to a 3DS challenge.
type NextAction struct {
	Type      string `json:"type"` // "redirect_to_url"
	URL       string `json:"url"`
	ReturnURL string `json:"return_url,omitempty"`
}

// RequiresRedirect returns true if the intent is blocked on a browser redirect.
func (pi *PaymentIntent) RequiresRedirect() bool {
	return pi.Status == StatusRequiresAction && pi.NextAction != nil && pi.NextAction.Type == "redirect_to_url"
}

// Metadata links an intent to the booking that created it. BookingType is
// mandatory on every intent.
type Metadata struct {
	BookingType    BookingType `json:"booking_type"`
	BookingID      string      `json:"booking_id,omitempty"`
	CustomerID     string      `json:"customer_id,omitempty"`
	OrderReference string      `json:"order_reference,omitempty"`
}

// Method is a tokenized payment method supplied by the caller. Raw card data
// never enters this type; only processor tokens and display attributes.
type Method struct {
	ID        string     `json:"id"`
	Type      MethodType `json:"type"`
	Brand     string     `json:"brand,omitempty"`
	Last4     string     `json:"last4,omitempty"`
	ExpMonth  int        `json:"exp_month,omitempty"`
	ExpYear   int        `json:"exp_year,omitempty"`
	IsDefault bool       `json:"is_default,omitempty"`
}

// CreateIntentParams are the processor-agnostic inputs for creating an intent.
type CreateIntentParams struct {
	Amount             int64
	Currency           string
	Metadata           Metadata
	PaymentMethodTypes []MethodType
	ConfirmationMethod ConfirmationMethod
	CaptureMethod      CaptureMethod
	ReturnURL          string
	IdempotencyKey     string
}

// RefundStatus represents the state of a refund.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// RefundResult is the normalized outcome of a refund request.
type RefundResult struct {
	Success  bool          `json:"success"`
	RefundID string        `json:"refund_id,omitempty"`
	Amount   int64         `json:"amount"`
	Currency string        `json:"currency"`
	Status   RefundStatus  `json:"status"`
	Error    *PaymentError `json:"error,omitempty"`
}

// ThreeDSStatus is the outcome class of a 3DS authentication attempt.
type ThreeDSStatus string

const (
	ThreeDSSuccess     ThreeDSStatus = "3ds_success"
	ThreeDSFailed      ThreeDSStatus = "3ds_failed"
	ThreeDSNotRequired ThreeDSStatus = "3ds_not_required"
	ThreeDSChallenge   ThreeDSStatus = "3ds_challenge"
)

// ThreeDSecureResult is produced once per authentication attempt and is
// immutable.
type ThreeDSecureResult struct {
	Authenticated bool          `json:"authenticated"`
	Status        ThreeDSStatus `json:"status"`
	ChallengeURL  string        `json:"challenge_url,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
}
