package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/module/payment/entity"
)

// ErrPaymentNotFound is returned when no payment record matches the lookup.
var ErrPaymentNotFound = errors.New("payment not found")

// Repository defines the interface for payment data access.
type Repository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, payment *domain.Payment) error
	ListPaymentsByBooking(ctx context.Context, bookingID string) ([]*domain.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	ent := entity.FromDomainPayment(payment)
	if err := r.db.WithContext(ctx).Create(ent).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *repository) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var ent entity.PaymentEntity
	err := r.db.WithContext(ctx).First(&ent, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) GetPaymentByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	var ent entity.PaymentEntity
	err := r.db.WithContext(ctx).First(&ent, "intent_id = ?", intentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment by intent id: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) UpdatePayment(ctx context.Context, payment *domain.Payment) error {
	ent := entity.FromDomainPayment(payment)
	if err := r.db.WithContext(ctx).Save(ent).Error; err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

func (r *repository) ListPaymentsByBooking(ctx context.Context, bookingID string) ([]*domain.Payment, error) {
	var entities []*entity.PaymentEntity
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("list payments by booking: %w", err)
	}

	payments := make([]*domain.Payment, len(entities))
	for i, ent := range entities {
		payments[i] = ent.ToDomain()
	}
	return payments, nil
}
