package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Payment record errors.
var (
	ErrPaymentNotSucceeded     = errors.New("payment is not succeeded")
	ErrInvalidRefundAmount     = errors.New("invalid refund amount")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Payment is the locally persisted record of a payment attempt. It links a
// processor-owned intent to a booking and tracks refund accounting; the
// intent itself stays processor-owned.
type Payment struct {
	id             uuid.UUID
	intentID       string
	processor      string
	bookingType    BookingType
	bookingID      string
	customerID     string
	amount         int64
	currency       string
	status         PaymentStatus
	refundedAmount int64
	failureCode    *string
	failureMessage *string
	succeededAt    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewPayment creates a new payment record for a freshly created intent.
func NewPayment(intentID, processorName string, meta Metadata, amount int64, currency string) *Payment {
	now := time.Now()
	return &Payment{
		id:          uuid.New(),
		intentID:    intentID,
		processor:   processorName,
		bookingType: meta.BookingType,
		bookingID:   meta.BookingID,
		customerID:  meta.CustomerID,
		amount:      amount,
		currency:    currency,
		status:      StatusRequiresPaymentMethod,
		createdAt:   now,
		updatedAt:   now,
	}
}

// RestorePayment recreates a payment record from persisted data.
func RestorePayment(
	id uuid.UUID,
	intentID, processorName string,
	bookingType BookingType,
	bookingID, customerID string,
	amount int64,
	currency string,
	status PaymentStatus,
	refundedAmount int64,
	failureCode, failureMessage *string,
	succeededAt *time.Time,
	createdAt, updatedAt time.Time,
) *Payment {
	return &Payment{
		id:             id,
		intentID:       intentID,
		processor:      processorName,
		bookingType:    bookingType,
		bookingID:      bookingID,
		customerID:     customerID,
		amount:         amount,
		currency:       currency,
		status:         status,
		refundedAmount: refundedAmount,
		failureCode:    failureCode,
		failureMessage: failureMessage,
		succeededAt:    succeededAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

func (p *Payment) ID() uuid.UUID            { return p.id }
func (p *Payment) IntentID() string         { return p.intentID }
func (p *Payment) Processor() string        { return p.processor }
func (p *Payment) BookingType() BookingType { return p.bookingType }
func (p *Payment) BookingID() string        { return p.bookingID }
func (p *Payment) CustomerID() string       { return p.customerID }
func (p *Payment) Amount() int64            { return p.amount }
func (p *Payment) Currency() string         { return p.currency }
func (p *Payment) Status() PaymentStatus    { return p.status }
func (p *Payment) RefundedAmount() int64    { return p.refundedAmount }
func (p *Payment) FailureCode() *string     { return p.failureCode }
func (p *Payment) FailureMessage() *string  { return p.failureMessage }
func (p *Payment) SucceededAt() *time.Time  { return p.succeededAt }
func (p *Payment) CreatedAt() time.Time     { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time     { return p.updatedAt }

// SyncStatus applies a status observed from the processor, enforcing the
// state machine. Observing the current status again is a no-op.
func (p *Payment) SyncStatus(observed PaymentStatus) error {
	if observed == p.status {
		return nil
	}
	if !p.status.CanTransitionTo(observed) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	p.status = observed
	if observed == StatusSucceeded {
		p.succeededAt = &now
	}
	p.updatedAt = now
	return nil
}

// MarkFailed records a processor-declared failure.
func (p *Payment) MarkFailed(code, message string) error {
	if !p.status.CanTransitionTo(StatusFailed) {
		return ErrInvalidStatusTransition
	}
	p.status = StatusFailed
	p.failureCode = &code
	p.failureMessage = &message
	p.updatedAt = time.Now()
	return nil
}

// ApplyRefund books a refund against the payment. If amount is 0 the full
// remaining amount is refunded. Refunds act on amount sub-allocations; the
// payment never leaves succeeded.
func (p *Payment) ApplyRefund(amount int64) (int64, error) {
	if !p.status.IsSucceeded() {
		return 0, ErrPaymentNotSucceeded
	}

	refundAmount := amount
	if refundAmount == 0 {
		refundAmount = p.amount - p.refundedAmount
	}
	if refundAmount <= 0 || refundAmount > p.amount-p.refundedAmount {
		return 0, ErrInvalidRefundAmount
	}

	p.refundedAmount += refundAmount
	p.updatedAt = time.Now()
	return refundAmount, nil
}

// FullyRefunded returns true once the whole amount has been refunded.
func (p *Payment) FullyRefunded() bool {
	return p.refundedAmount >= p.amount
}
