package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/shared/cache"
	"github.com/tripfare/payments/internal/utils/metrics"
)

// idemPending marks an idempotency key whose first request has not finished
// creating its intent yet.
const idemPending = "__pending__"

// BookingPaymentParams are the inputs for starting a booking payment.
type BookingPaymentParams struct {
	Amount         int64
	Currency       string
	BookingType    domain.BookingType
	BookingID      string
	CustomerID     string
	IdempotencyKey string
}

// GatewayStatus reports the gateway's operational state.
type GatewayStatus struct {
	Mode      string   `json:"mode"`
	Ready     bool     `json:"ready"`
	Processor string   `json:"processor"`
	Services  []string `json:"services"`
}

// Gateway is the booking-facing facade over the payment service. It pairs
// every processor intent with a locally persisted payment record, applies
// idempotency on creation and records outcome metrics. The service stays
// unaware of persistence; the gateway owns that linkage.
type Gateway struct {
	svc     *Service
	repo    Repository
	idem    cache.IdempotencyStore
	metrics *metrics.Metrics
	mode    string
	logger  *zap.Logger
}

// NewGateway creates the booking payment facade.
func NewGateway(svc *Service, repo Repository, idem cache.IdempotencyStore, m *metrics.Metrics, mode string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{svc: svc, repo: repo, idem: idem, metrics: m, mode: mode, logger: logger}
}

// CreateBookingPayment creates a processor intent for a booking and persists
// the linking payment record. A repeated call with the same idempotency key
// returns the intent from the first call instead of charging again.
func (g *Gateway) CreateBookingPayment(ctx context.Context, params BookingPaymentParams) (*domain.PaymentIntent, error) {
	if params.IdempotencyKey != "" && g.idem != nil {
		stored, claimed, err := g.idem.Reserve(ctx, params.IdempotencyKey, idemPending)
		if err != nil {
			return nil, WrapError(CodeProcessingError, "idempotency check failed", err)
		}
		if !claimed {
			if stored == idemPending {
				return nil, NewError(CodeProcessingError, "a payment for this idempotency key is already in flight")
			}
			if g.metrics != nil {
				g.metrics.RecordCacheHit("idempotency")
			}
			return g.svc.GetIntent(ctx, stored)
		}
		if g.metrics != nil {
			g.metrics.RecordCacheMiss("idempotency")
		}
	}

	intent, err := g.svc.CreatePaymentIntent(ctx, domain.CreateIntentParams{
		Amount:   params.Amount,
		Currency: params.Currency,
		Metadata: domain.Metadata{
			BookingType: params.BookingType,
			BookingID:   params.BookingID,
			CustomerID:  params.CustomerID,
		},
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		if params.IdempotencyKey != "" && g.idem != nil {
			// Free the key so the caller can retry the failed create.
			if relErr := g.idem.Release(ctx, params.IdempotencyKey); relErr != nil {
				g.logger.Warn("idempotency key release failed",
					zap.String("key", params.IdempotencyKey), zap.Error(relErr))
			}
		}
		return nil, err
	}

	record := domain.NewPayment(intent.ID, g.processorName(), intent.Metadata, intent.Amount, intent.Currency)
	if err := record.SyncStatus(intent.Status); err != nil {
		g.logger.Warn("intent created in unexpected status",
			zap.String("payment_intent_id", intent.ID),
			zap.String("status", string(intent.Status)))
	}
	if err := g.repo.CreatePayment(ctx, record); err != nil {
		g.logger.Error("payment record creation failed",
			zap.String("payment_intent_id", intent.ID), zap.Error(err))
	}

	if params.IdempotencyKey != "" && g.idem != nil {
		if err := g.idem.Store(ctx, params.IdempotencyKey, intent.ID); err != nil {
			g.logger.Warn("idempotency key store failed",
				zap.String("key", params.IdempotencyKey), zap.Error(err))
		}
	}
	return intent, nil
}

// ProcessBookingPayment confirms the intent, runs 3DS when demanded, and
// syncs the outcome onto the persisted record.
func (g *Gateway) ProcessBookingPayment(ctx context.Context, intentID string, method *domain.Method, opts *ProcessOptions) (*domain.PaymentIntent, error) {
	intent, err := g.svc.ProcessPayment(ctx, intentID, method, opts)
	if err != nil {
		g.recordFailure(ctx, intentID, err)
		return nil, err
	}

	g.syncRecord(ctx, intent)

	if g.metrics != nil {
		outcome := string(intent.Status)
		g.metrics.RecordPayment(g.processorName(), string(intent.Metadata.BookingType), outcome)
		if intent.Status.IsSucceeded() {
			g.metrics.RecordPaymentAmount(g.processorName(), intent.Currency, intent.Amount)
		}
	}
	return intent, nil
}

// CaptureBookingPayment captures an authorized intent and syncs the record.
func (g *Gateway) CaptureBookingPayment(ctx context.Context, intentID string, amount int64) (*domain.PaymentIntent, error) {
	intent, err := g.svc.CapturePayment(ctx, intentID, amount)
	if err != nil {
		return nil, err
	}
	g.syncRecord(ctx, intent)
	return intent, nil
}

// RefundBookingPayment refunds against a succeeded payment. Amount zero
// refunds the full remainder. The refund is booked on the local record
// before the processor is asked, so an over-refund never reaches the vendor.
func (g *Gateway) RefundBookingPayment(ctx context.Context, intentID string, amount int64) (*domain.RefundResult, error) {
	record, err := g.repo.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, NewError(CodeProcessingError, "no payment record for intent")
		}
		return nil, WrapError(CodeProcessingError, "payment lookup failed", err)
	}

	refundAmount, err := record.ApplyRefund(amount)
	if err != nil {
		return nil, WrapError(CodeInvalidAmount, "refund rejected", err)
	}

	result, err := g.svc.RefundPayment(ctx, intentID, refundAmount)
	if err != nil {
		return result, err
	}

	if err := g.repo.UpdatePayment(ctx, record); err != nil {
		g.logger.Error("refund accounting update failed",
			zap.String("payment_intent_id", intentID), zap.Error(err))
	}
	if g.metrics != nil {
		g.metrics.RecordRefund(g.processorName(), string(result.Status))
	}
	return result, nil
}

// ProcessorEvent is a status notification pushed by the payment vendor.
type ProcessorEvent struct {
	IntentID string               `json:"payment_intent_id" binding:"required"`
	Status   domain.PaymentStatus `json:"status" binding:"required"`
}

// ApplyProcessorEvent syncs a vendor-pushed status change onto the persisted
// record. Unlike syncRecord, failures are surfaced so the vendor retries the
// delivery.
func (g *Gateway) ApplyProcessorEvent(ctx context.Context, event ProcessorEvent) error {
	record, err := g.repo.GetPaymentByIntentID(ctx, event.IntentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return NewError(CodeProcessingError, "no payment record for intent")
		}
		return WrapError(CodeProcessingError, "payment lookup failed", err)
	}

	if record.Status() == event.Status {
		// Redelivery of an event already applied.
		return nil
	}
	if err := record.SyncStatus(event.Status); err != nil {
		return WrapError(CodeProcessingError, "status transition rejected", err)
	}
	if err := g.repo.UpdatePayment(ctx, record); err != nil {
		return WrapError(CodeProcessingError, "payment record update failed", err)
	}

	g.logger.Info("processor event applied",
		zap.String("payment_intent_id", event.IntentID),
		zap.String("status", string(event.Status)))
	return nil
}

// CancelBookingPayment cancels a not-yet-succeeded intent and syncs the
// record.
func (g *Gateway) CancelBookingPayment(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	intent, err := g.svc.CancelPayment(ctx, intentID)
	if err != nil {
		return nil, err
	}
	g.syncRecord(ctx, intent)
	return intent, nil
}

// GetBookingPayment reads the current intent state from the processor.
func (g *Gateway) GetBookingPayment(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	return g.svc.GetIntent(ctx, intentID)
}

// ListBookingPayments returns the persisted payment records for a booking.
func (g *Gateway) ListBookingPayments(ctx context.Context, bookingID string) ([]*domain.Payment, error) {
	return g.repo.ListPaymentsByBooking(ctx, bookingID)
}

// Status reports the gateway mode and readiness.
func (g *Gateway) Status() GatewayStatus {
	ready := g.svc.Processor() != nil
	services := []string{"payments"}
	if g.idem != nil {
		services = append(services, "idempotency")
	}
	return GatewayStatus{
		Mode:      g.mode,
		Ready:     ready,
		Processor: g.processorName(),
		Services:  services,
	}
}

func (g *Gateway) processorName() string {
	if proc := g.svc.Processor(); proc != nil {
		return proc.Name()
	}
	return ""
}

// syncRecord applies the observed intent status to the persisted record.
// Persistence failures are logged, never surfaced; the processor response
// is authoritative for the caller.
func (g *Gateway) syncRecord(ctx context.Context, intent *domain.PaymentIntent) {
	record, err := g.repo.GetPaymentByIntentID(ctx, intent.ID)
	if err != nil {
		g.logger.Warn("payment record lookup failed",
			zap.String("payment_intent_id", intent.ID), zap.Error(err))
		return
	}
	if err := record.SyncStatus(intent.Status); err != nil {
		g.logger.Warn("payment record status sync rejected",
			zap.String("payment_intent_id", intent.ID),
			zap.String("observed", string(intent.Status)), zap.Error(err))
		return
	}
	if err := g.repo.UpdatePayment(ctx, record); err != nil {
		g.logger.Error("payment record update failed",
			zap.String("payment_intent_id", intent.ID), zap.Error(err))
	}
}

// recordFailure marks the persisted record failed with the normalized error.
func (g *Gateway) recordFailure(ctx context.Context, intentID string, cause error) {
	record, err := g.repo.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		return
	}

	code := CodeProcessingError
	var se *Error
	if errors.As(cause, &se) {
		code = se.Code
	}
	if err := record.MarkFailed(code, cause.Error()); err != nil {
		return
	}
	if err := g.repo.UpdatePayment(ctx, record); err != nil {
		g.logger.Error("payment record update failed",
			zap.String("payment_intent_id", intentID), zap.Error(err))
	}

	if g.metrics != nil {
		g.metrics.RecordPayment(g.processorName(), string(record.BookingType()), "failed")
	}
}
