package payment

import (
	"time"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/module/payment/threeds"
)

// CreatePaymentRequest is the payload for starting a booking payment.
type CreatePaymentRequest struct {
	Amount         int64  `json:"amount" binding:"required"`
	Currency       string `json:"currency" binding:"required"`
	BookingType    string `json:"booking_type" binding:"required"`
	BookingID      string `json:"booking_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ProcessPaymentRequest is the payload for confirming a payment with a
// tokenized method. The optional card number feeds the 3DS device
// fingerprint only; it is masked before leaving the process.
type ProcessPaymentRequest struct {
	PaymentMethodID   string      `json:"payment_method_id" binding:"required"`
	PaymentMethodType string      `json:"payment_method_type" binding:"required"`
	ReturnURL         string      `json:"return_url"`
	CardNumber        string      `json:"card_number"`
	Browser           BrowserInfo `json:"browser"`
}

// BrowserInfo carries the browser fingerprint for 3DS.
type BrowserInfo struct {
	ColorDepth        int    `json:"color_depth"`
	Language          string `json:"language"`
	TimezoneOffset    int    `json:"timezone_offset"`
	ScreenWidth       int    `json:"screen_width"`
	ScreenHeight      int    `json:"screen_height"`
	UserAgent         string `json:"user_agent"`
	JavaEnabled       bool   `json:"java_enabled"`
	JavaScriptEnabled bool   `json:"javascript_enabled"`
}

func (b BrowserInfo) toDomain() threeds.BrowserInfo {
	return threeds.BrowserInfo{
		ColorDepth:        b.ColorDepth,
		Language:          b.Language,
		TimezoneOffset:    b.TimezoneOffset,
		ScreenWidth:       b.ScreenWidth,
		ScreenHeight:      b.ScreenHeight,
		UserAgent:         b.UserAgent,
		JavaEnabled:       b.JavaEnabled,
		JavaScriptEnabled: b.JavaScriptEnabled,
	}
}

// AmountRequest is the payload for capture and refund operations.
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// PaymentRecordResponse is the JSON shape of a persisted payment record.
type PaymentRecordResponse struct {
	ID             string     `json:"id"`
	IntentID       string     `json:"intent_id"`
	Processor      string     `json:"processor"`
	BookingType    string     `json:"booking_type"`
	BookingID      string     `json:"booking_id,omitempty"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	RefundedAmount int64      `json:"refunded_amount"`
	SucceededAt    *time.Time `json:"succeeded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toPaymentRecordResponse(p *domain.Payment) PaymentRecordResponse {
	return PaymentRecordResponse{
		ID:             p.ID().String(),
		IntentID:       p.IntentID(),
		Processor:      p.Processor(),
		BookingType:    string(p.BookingType()),
		BookingID:      p.BookingID(),
		Amount:         p.Amount(),
		Currency:       p.Currency(),
		Status:         string(p.Status()),
		RefundedAmount: p.RefundedAmount(),
		SucceededAt:    p.SucceededAt(),
		CreatedAt:      p.CreatedAt(),
	}
}
