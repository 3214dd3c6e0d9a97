package domain

// PaymentStatus represents the lifecycle state of a payment intent.
type PaymentStatus string

const (
	StatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	StatusRequiresConfirmation  PaymentStatus = "requires_confirmation"
	StatusRequiresAction        PaymentStatus = "requires_action"
	StatusProcessing            PaymentStatus = "processing"
	StatusRequiresCapture       PaymentStatus = "requires_capture"
	StatusSucceeded             PaymentStatus = "succeeded"
	StatusFailed                PaymentStatus = "failed"
	StatusCanceled              PaymentStatus = "canceled"
)

// IsTerminal returns true if the status is a terminal state.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// IsSucceeded returns true if the status is succeeded.
func (s PaymentStatus) IsSucceeded() bool {
	return s == StatusSucceeded
}

// CanTransitionTo returns true if the status can transition to the target
// status. Canceled is reachable from every pre-succeeded state; nothing
// leaves a terminal state.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case StatusRequiresPaymentMethod:
		return target == StatusRequiresConfirmation || target == StatusFailed || target == StatusCanceled
	case StatusRequiresConfirmation:
		return target == StatusRequiresAction || target == StatusProcessing ||
			target == StatusRequiresCapture || target == StatusSucceeded ||
			target == StatusFailed || target == StatusCanceled
	case StatusRequiresAction:
		return target == StatusProcessing || target == StatusRequiresCapture ||
			target == StatusSucceeded || target == StatusFailed || target == StatusCanceled
	case StatusProcessing:
		return target == StatusRequiresCapture || target == StatusSucceeded ||
			target == StatusFailed || target == StatusCanceled
	case StatusRequiresCapture:
		return target == StatusSucceeded || target == StatusFailed || target == StatusCanceled
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return false
	default:
		return false
	}
}

// MethodType represents a payment method type.
type MethodType string

const (
	MethodCard          MethodType = "card"
	MethodBankTransfer  MethodType = "bank_transfer"
	MethodDigitalWallet MethodType = "digital_wallet"
)

// Valid returns true for a known method type.
func (m MethodType) Valid() bool {
	return m == MethodCard || m == MethodBankTransfer || m == MethodDigitalWallet
}

// BookingType represents what kind of booking a payment pays for.
type BookingType string

const (
	BookingFlight  BookingType = "flight"
	BookingHotel   BookingType = "hotel"
	BookingPackage BookingType = "package"
)

// Valid returns true for a known booking type.
func (b BookingType) Valid() bool {
	return b == BookingFlight || b == BookingHotel || b == BookingPackage
}

// ConfirmationMethod controls whether confirmation happens automatically.
type ConfirmationMethod string

const (
	ConfirmationAutomatic ConfirmationMethod = "automatic"
	ConfirmationManual    ConfirmationMethod = "manual"
)

// CaptureMethod controls whether funds are captured automatically on confirm.
type CaptureMethod string

const (
	CaptureAutomatic CaptureMethod = "automatic"
	CaptureManual    CaptureMethod = "manual"
)
