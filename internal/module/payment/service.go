package payment

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/module/payment/processor"
	"github.com/tripfare/payments/internal/module/payment/threeds"
	"github.com/tripfare/payments/internal/utils/metrics"
)

// ChallengeHandler runs a 3DS authentication attempt. Implemented by
// threeds.Handler; an interface here so the service is testable with a stub.
type ChallengeHandler interface {
	Authenticate(ctx context.Context, req *threeds.Request) (*domain.ThreeDSecureResult, error)
}

// ServiceConfig holds orchestrator configuration.
type ServiceConfig struct {
	DefaultCurrency string // used when CreateIntentParams.Currency is empty
	ReturnURL       string
	EnableLogging   bool
	Metrics         *metrics.Metrics // optional; nil disables instrumentation
}

// ProcessOptions carries per-request context for ProcessPayment: the
// browser fingerprint and masked card input used if a 3DS challenge is
// demanded, and an optional return URL override.
type ProcessOptions struct {
	Browser    threeds.BrowserInfo
	CardNumber string
	ReturnURL  string
}

// Service orchestrates payments: it validates inputs, drives exactly one
// processor through the intent lifecycle, gates on 3DS, normalizes errors
// and emits audit events. It owns which processor is active but never owns
// intent data; intents are owned by the processor that created them.
//
// Operations on the same intent ID must be serialized by the caller; the
// service performs no per-intent locking.
type Service struct {
	mu      sync.RWMutex
	proc    processor.Processor
	threeDS ChallengeHandler
	cfg     ServiceConfig
	logger  *zap.Logger
}

// NewService creates a payment service. Initialize must be called with a
// processor before any payment operation.
func NewService(threeDS ChallengeHandler, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{threeDS: threeDS, cfg: cfg, logger: logger}
}

// Initialize binds exactly one processor instance. A repeated call replaces
// the previous processor.
func (s *Service) Initialize(ctx context.Context, proc processor.Processor) error {
	if err := proc.Initialize(ctx); err != nil {
		return WrapError(CodeInitializationFailed, "processor initialization failed", err)
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	s.audit("payment_service_initialized", zap.String("processor", proc.Name()))
	return nil
}

// Processor returns the active processor, or nil before Initialize.
func (s *Service) Processor() processor.Processor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proc
}

func (s *Service) activeProcessor() (processor.Processor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.proc == nil {
		return nil, NewError(CodeNotInitialized, "payment service not initialized")
	}
	return s.proc, nil
}

// CreatePaymentIntent validates params and delegates creation to the active
// processor. All validation failures are raised before any network call.
func (s *Service) CreatePaymentIntent(ctx context.Context, params domain.CreateIntentParams) (*domain.PaymentIntent, error) {
	proc, err := s.activeProcessor()
	if err != nil {
		return nil, err
	}

	if params.Currency == "" {
		params.Currency = s.cfg.DefaultCurrency
	}

	if params.Amount <= 0 {
		return nil, NewError(CodeInvalidAmount, "amount must be greater than zero")
	}
	if !ValidCurrency(params.Currency) {
		return nil, NewError(CodeInvalidCurrency, "currency must be a 3-letter ISO code")
	}
	if !params.Metadata.BookingType.Valid() {
		return nil, NewError(CodeMissingMetadata, "metadata.booking_type is required")
	}

	start := time.Now()
	intent, err := proc.CreateIntent(ctx, params)
	s.observe(proc, "create_intent", start)
	if err != nil {
		se := categorize(err)
		s.auditError("payment_intent_creation_failed", se, zap.String("processor", proc.Name()))
		return nil, se
	}

	s.audit("payment_intent_created",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
		zap.String("currency", intent.Currency),
		zap.String("booking_type", string(intent.Metadata.BookingType)),
	)
	return intent, nil
}

// ProcessPayment confirms an intent with the given payment method and, when
// the processor demands a redirect, drives the 3DS challenge. A challenge
// that does not authenticate fails the whole operation with
// AUTHENTICATION_FAILED regardless of what the processor reported for the
// raw charge: 3DS gating is mandatory, not advisory.
func (s *Service) ProcessPayment(ctx context.Context, intentID string, method *domain.Method, opts *ProcessOptions) (*domain.PaymentIntent, error) {
	proc, err := s.activeProcessor()
	if err != nil {
		return nil, err
	}

	if method == nil || method.ID == "" || !method.Type.Valid() {
		return nil, NewError(CodeInvalidPaymentMethod, "payment method requires id and type")
	}
	if opts == nil {
		opts = &ProcessOptions{}
	}
	returnURL := opts.ReturnURL
	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}

	start := time.Now()
	intent, err := proc.ConfirmIntent(ctx, intentID, method, returnURL)
	s.observe(proc, "confirm_intent", start)
	if err != nil {
		se := categorize(err)
		s.auditError("payment_processing_failed", se, zap.String("payment_intent_id", intentID))
		return nil, se
	}

	if intent.RequiresRedirect() {
		result, err := s.threeDS.Authenticate(ctx, &threeds.Request{
			IntentID:   intent.ID,
			Amount:     intent.Amount,
			Currency:   intent.Currency,
			CardNumber: opts.CardNumber,
			Browser:    opts.Browser,
			ReturnURL:  returnURL,
		})
		if err != nil {
			se := WrapError(CodeThreeDSFailed, "3ds challenge could not run", err)
			s.auditError("payment_processing_failed", se, zap.String("payment_intent_id", intentID))
			return nil, se
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordThreeDSOutcome(string(result.Status))
		}
		if !result.Authenticated {
			se := NewError(CodeAuthenticationFailed, "3ds authentication failed")
			s.auditError("payment_processing_failed", se,
				zap.String("payment_intent_id", intentID),
				zap.String("threeds_status", string(result.Status)),
			)
			return nil, se
		}

		// Re-read the intent so the caller sees its post-challenge state.
		start = time.Now()
		intent, err = proc.GetIntent(ctx, intentID)
		s.observe(proc, "get_intent", start)
		if err != nil {
			se := categorize(err)
			s.auditError("payment_processing_failed", se, zap.String("payment_intent_id", intentID))
			return nil, se
		}
	}

	s.audit("payment_processed",
		zap.String("payment_intent_id", intent.ID),
		zap.String("status", string(intent.Status)),
	)
	return intent, nil
}

// CapturePayment captures an authorized intent; a smaller amount than the
// authorized one captures partially. Capture on a terminal intent is
// rejected, never silently re-charged.
func (s *Service) CapturePayment(ctx context.Context, intentID string, amount int64) (*domain.PaymentIntent, error) {
	proc, err := s.activeProcessor()
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, NewError(CodeInvalidAmount, "amount must not be negative")
	}

	start := time.Now()
	current, err := proc.GetIntent(ctx, intentID)
	s.observe(proc, "get_intent", start)
	if err != nil {
		return nil, categorize(err)
	}
	if current.Status.IsTerminal() {
		se := NewError(CodeProcessingError, "intent is in a terminal state")
		s.auditError("payment_capture_failed", se,
			zap.String("payment_intent_id", intentID),
			zap.String("status", string(current.Status)),
		)
		return nil, se
	}

	start = time.Now()
	intent, err := proc.CaptureIntent(ctx, intentID, amount)
	s.observe(proc, "capture_intent", start)
	if err != nil {
		se := categorize(err)
		s.auditError("payment_capture_failed", se, zap.String("payment_intent_id", intentID))
		return nil, se
	}

	s.audit("payment_captured",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", amount),
		zap.String("status", string(intent.Status)),
	)
	return intent, nil
}

// RefundPayment refunds a captured intent; a smaller amount refunds
// partially. Refunds never transition the intent out of succeeded.
func (s *Service) RefundPayment(ctx context.Context, intentID string, amount int64) (*domain.RefundResult, error) {
	proc, err := s.activeProcessor()
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, NewError(CodeInvalidAmount, "amount must not be negative")
	}

	start := time.Now()
	result, err := proc.Refund(ctx, intentID, amount)
	s.observe(proc, "refund", start)
	if err != nil {
		se := categorize(err)
		s.auditError("payment_refund_failed", se, zap.String("payment_intent_id", intentID))
		if result != nil {
			return result, se
		}
		return nil, se
	}

	s.audit("payment_refunded",
		zap.String("payment_intent_id", intentID),
		zap.String("refund_id", result.RefundID),
		zap.Int64("amount", result.Amount),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

// CancelPayment cancels a not-yet-succeeded intent.
func (s *Service) CancelPayment(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	proc, err := s.activeProcessor()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	intent, err := proc.CancelIntent(ctx, intentID)
	s.observe(proc, "cancel_intent", start)
	if err != nil {
		se := categorize(err)
		s.auditError("payment_cancel_failed", se, zap.String("payment_intent_id", intentID))
		return nil, se
	}

	s.audit("payment_canceled", zap.String("payment_intent_id", intent.ID))
	return intent, nil
}

// GetIntent reads the current intent state from the processor.
func (s *Service) GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	proc, err := s.activeProcessor()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	intent, err := proc.GetIntent(ctx, intentID)
	s.observe(proc, "get_intent", start)
	if err != nil {
		return nil, categorize(err)
	}
	return intent, nil
}

// observe records the latency of one processor API call.
func (s *Service) observe(proc processor.Processor, op string, start time.Time) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordProcessorRequest(proc.Name(), op, time.Since(start))
	}
}

func (s *Service) audit(event string, fields ...zap.Field) {
	if !s.cfg.EnableLogging {
		return
	}
	s.logger.Info(event, fields...)
}

func (s *Service) auditError(event string, err error, fields ...zap.Field) {
	if !s.cfg.EnableLogging {
		return
	}
	s.logger.Error(event, append(fields, zap.Error(err))...)
}
