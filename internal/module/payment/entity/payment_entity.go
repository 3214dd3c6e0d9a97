package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/tripfare/payments/internal/module/payment/domain"
)

// PaymentEntity is the GORM entity for Payment.
type PaymentEntity struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	IntentID       string    `gorm:"uniqueIndex;not null"`
	Processor      string    `gorm:"not null"`
	BookingType    string    `gorm:"not null"`
	BookingID      string    `gorm:"index"`
	CustomerID     string    `gorm:"index"`
	Amount         int64
	Currency       string `gorm:"default:USD"`
	Status         string `gorm:"not null;default:requires_payment_method"`
	RefundedAmount int64  `gorm:"default:0"`
	FailureCode    *string
	FailureMessage *string
	SucceededAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the database table name.
func (PaymentEntity) TableName() string {
	return "payments"
}

// ToDomain converts entity to domain Payment.
func (e *PaymentEntity) ToDomain() *domain.Payment {
	return domain.RestorePayment(
		e.ID,
		e.IntentID,
		e.Processor,
		domain.BookingType(e.BookingType),
		e.BookingID,
		e.CustomerID,
		e.Amount,
		e.Currency,
		domain.PaymentStatus(e.Status),
		e.RefundedAmount,
		e.FailureCode,
		e.FailureMessage,
		e.SucceededAt,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// FromDomainPayment converts domain Payment to entity.
func FromDomainPayment(p *domain.Payment) *PaymentEntity {
	return &PaymentEntity{
		ID:             p.ID(),
		IntentID:       p.IntentID(),
		Processor:      p.Processor(),
		BookingType:    string(p.BookingType()),
		BookingID:      p.BookingID(),
		CustomerID:     p.CustomerID(),
		Amount:         p.Amount(),
		Currency:       p.Currency(),
		Status:         string(p.Status()),
		RefundedAmount: p.RefundedAmount(),
		FailureCode:    p.FailureCode(),
		FailureMessage: p.FailureMessage(),
		SucceededAt:    p.SucceededAt(),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
	}
}
