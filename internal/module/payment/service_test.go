package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/module/payment/processor"
	"github.com/tripfare/payments/internal/module/payment/threeds"
	"github.com/tripfare/payments/internal/utils/metrics"
)

// --- Stubs ---

type stubProcessor struct {
	name          string
	initErr       error
	createCalls   int
	lastCreate    domain.CreateIntentParams
	created       *domain.PaymentIntent
	createErr     error
	confirmResult *domain.PaymentIntent
	confirmErr    error
	getResult     *domain.PaymentIntent
	getErr        error
	captureResult *domain.PaymentIntent
	captureErr    error
	refundResult  *domain.RefundResult
	refundErr     error
}

func (s *stubProcessor) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubProcessor) Capabilities() processor.Capabilities {
	return processor.Capabilities{ThreeDSecure: true, PartialRefunds: true}
}

func (s *stubProcessor) Initialize(context.Context) error { return s.initErr }

func (s *stubProcessor) CreateIntent(_ context.Context, params domain.CreateIntentParams) (*domain.PaymentIntent, error) {
	s.createCalls++
	s.lastCreate = params
	return s.created, s.createErr
}

func (s *stubProcessor) GetIntent(context.Context, string) (*domain.PaymentIntent, error) {
	return s.getResult, s.getErr
}

func (s *stubProcessor) ConfirmIntent(context.Context, string, *domain.Method, string) (*domain.PaymentIntent, error) {
	return s.confirmResult, s.confirmErr
}

func (s *stubProcessor) CaptureIntent(context.Context, string, int64) (*domain.PaymentIntent, error) {
	return s.captureResult, s.captureErr
}

func (s *stubProcessor) CancelIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	return s.getResult, s.getErr
}

func (s *stubProcessor) Refund(context.Context, string, int64) (*domain.RefundResult, error) {
	return s.refundResult, s.refundErr
}

type stubChallenge struct {
	calls  int
	result *domain.ThreeDSecureResult
	err    error
}

func (s *stubChallenge) Authenticate(context.Context, *threeds.Request) (*domain.ThreeDSecureResult, error) {
	s.calls++
	return s.result, s.err
}

func newInitializedService(t *testing.T, proc *stubProcessor, ch ChallengeHandler) *Service {
	t.Helper()
	if ch == nil {
		ch = &stubChallenge{result: &domain.ThreeDSecureResult{Authenticated: true, Status: domain.ThreeDSNotRequired}}
	}
	svc := NewService(ch, ServiceConfig{EnableLogging: true, ReturnURL: "https://app.example.com/return"}, zap.NewNop())
	require.NoError(t, svc.Initialize(context.Background(), proc))
	return svc
}

func validParams() domain.CreateIntentParams {
	return domain.CreateIntentParams{
		Amount:             5000,
		Currency:           "USD",
		Metadata:           domain.Metadata{BookingType: domain.BookingFlight},
		PaymentMethodTypes: []domain.MethodType{domain.MethodCard},
	}
}

// --- Tests ---

func TestServiceRequiresInitialization(t *testing.T) {
	svc := NewService(&stubChallenge{}, ServiceConfig{}, zap.NewNop())

	_, err := svc.CreatePaymentIntent(context.Background(), validParams())
	assert.True(t, IsCode(err, CodeNotInitialized))

	_, err = svc.ProcessPayment(context.Background(), "pit_1", &domain.Method{ID: "pm_1", Type: domain.MethodCard}, nil)
	assert.True(t, IsCode(err, CodeNotInitialized))

	_, err = svc.RefundPayment(context.Background(), "pit_1", 0)
	assert.True(t, IsCode(err, CodeNotInitialized))
}

func TestServiceInitializationFailure(t *testing.T) {
	svc := NewService(&stubChallenge{}, ServiceConfig{}, zap.NewNop())
	err := svc.Initialize(context.Background(), &stubProcessor{initErr: errors.New("bad credentials")})
	assert.True(t, IsCode(err, CodeInitializationFailed))
}

func TestCreatePaymentIntentValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CreateIntentParams)
		code   string
	}{
		{"zero amount", func(p *domain.CreateIntentParams) { p.Amount = 0 }, CodeInvalidAmount},
		{"negative amount", func(p *domain.CreateIntentParams) { p.Amount = -100 }, CodeInvalidAmount},
		{"two-letter currency", func(p *domain.CreateIntentParams) { p.Currency = "US" }, CodeInvalidCurrency},
		{"four-letter currency", func(p *domain.CreateIntentParams) { p.Currency = "USDT" }, CodeInvalidCurrency},
		{"missing booking type", func(p *domain.CreateIntentParams) { p.Metadata.BookingType = "" }, CodeMissingMetadata},
		{"unknown booking type", func(p *domain.CreateIntentParams) { p.Metadata.BookingType = "cruise" }, CodeMissingMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &stubProcessor{}
			svc := newInitializedService(t, proc, nil)

			params := validParams()
			tt.mutate(&params)

			_, err := svc.CreatePaymentIntent(context.Background(), params)
			assert.True(t, IsCode(err, tt.code), "got %v", err)
			assert.Zero(t, proc.createCalls, "validation must fail before any processor call")
		})
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	proc := &stubProcessor{created: &domain.PaymentIntent{
		ID:       "pit_1",
		Amount:   5000,
		Currency: "USD",
		Status:   domain.StatusRequiresPaymentMethod,
		Metadata: domain.Metadata{BookingType: domain.BookingFlight},
	}}
	svc := newInitializedService(t, proc, nil)

	intent, err := svc.CreatePaymentIntent(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, "pit_1", intent.ID)
	assert.Equal(t, domain.StatusRequiresPaymentMethod, intent.Status)
}

func TestProcessPaymentInvalidMethod(t *testing.T) {
	svc := newInitializedService(t, &stubProcessor{}, nil)

	for _, method := range []*domain.Method{
		nil,
		{Type: domain.MethodCard},
		{ID: "pm_1"},
		{ID: "pm_1", Type: "crypto"},
	} {
		_, err := svc.ProcessPayment(context.Background(), "pit_1", method, nil)
		assert.True(t, IsCode(err, CodeInvalidPaymentMethod), "method %+v", method)
	}
}

func TestProcessPaymentWithoutChallenge(t *testing.T) {
	ch := &stubChallenge{}
	proc := &stubProcessor{confirmResult: &domain.PaymentIntent{
		ID: "pit_1", Status: domain.StatusSucceeded,
	}}
	svc := newInitializedService(t, proc, ch)

	intent, err := svc.ProcessPayment(context.Background(), "pit_1", &domain.Method{ID: "pm_1", Type: domain.MethodCard}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, intent.Status)
	assert.Zero(t, ch.calls, "no redirect means no 3ds path")
}

func requiresActionIntent() *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:     "pit_1",
		Amount: 5000, Currency: "USD",
		Status: domain.StatusRequiresAction,
		NextAction: &domain.NextAction{
			Type: "redirect_to_url",
			URL:  "https://acs.example.com/challenge",
		},
	}
}

func TestProcessPaymentChallengeSuccess(t *testing.T) {
	ch := &stubChallenge{result: &domain.ThreeDSecureResult{Authenticated: true, Status: domain.ThreeDSSuccess, TransactionID: "trans_1"}}
	proc := &stubProcessor{
		confirmResult: requiresActionIntent(),
		getResult:     &domain.PaymentIntent{ID: "pit_1", Status: domain.StatusSucceeded},
	}
	svc := newInitializedService(t, proc, ch)

	intent, err := svc.ProcessPayment(context.Background(), "pit_1", &domain.Method{ID: "pm_1", Type: domain.MethodCard}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.calls)
	assert.Equal(t, domain.StatusSucceeded, intent.Status, "post-challenge state re-read from processor")
}

func TestProcessPaymentChallengeFailureGatesResult(t *testing.T) {
	ch := &stubChallenge{result: &domain.ThreeDSecureResult{Authenticated: false, Status: domain.ThreeDSFailed}}
	proc := &stubProcessor{
		confirmResult: requiresActionIntent(),
		// Processor claims the charge went through anyway; gating must win.
		getResult: &domain.PaymentIntent{ID: "pit_1", Status: domain.StatusSucceeded},
	}
	svc := newInitializedService(t, proc, ch)

	_, err := svc.ProcessPayment(context.Background(), "pit_1", &domain.Method{ID: "pm_1", Type: domain.MethodCard}, nil)
	assert.True(t, IsCode(err, CodeAuthenticationFailed), "got %v", err)
}

func TestProcessPaymentChallengeUnexpectedError(t *testing.T) {
	ch := &stubChallenge{err: threeds.ErrWindowOpenFailed}
	proc := &stubProcessor{confirmResult: requiresActionIntent()}
	svc := newInitializedService(t, proc, ch)

	_, err := svc.ProcessPayment(context.Background(), "pit_1", &domain.Method{ID: "pm_1", Type: domain.MethodCard}, nil)
	assert.True(t, IsCode(err, CodeThreeDSFailed))
}

func TestCreatePaymentIntentDefaultCurrency(t *testing.T) {
	proc := &stubProcessor{created: &domain.PaymentIntent{ID: "pit_1", Status: domain.StatusRequiresConfirmation}}
	ch := &stubChallenge{}
	svc := NewService(ch, ServiceConfig{DefaultCurrency: "EUR"}, zap.NewNop())
	require.NoError(t, svc.Initialize(context.Background(), proc))

	params := validParams()
	params.Currency = ""
	_, err := svc.CreatePaymentIntent(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "EUR", proc.lastCreate.Currency)

	t.Run("no default configured", func(t *testing.T) {
		svc := newInitializedService(t, proc, ch)
		params := validParams()
		params.Currency = ""
		_, err := svc.CreatePaymentIntent(context.Background(), params)
		assert.True(t, IsCode(err, CodeInvalidCurrency))
	})
}

func TestProcessPaymentRecordsMetrics(t *testing.T) {
	m := metrics.NewWith("test", prometheus.NewRegistry())
	ch := &stubChallenge{result: &domain.ThreeDSecureResult{Authenticated: true, Status: domain.ThreeDSSuccess}}
	proc := &stubProcessor{
		confirmResult: requiresActionIntent(),
		getResult:     &domain.PaymentIntent{ID: "pit_1", Status: domain.StatusSucceeded},
	}
	svc := NewService(ch, ServiceConfig{Metrics: m}, zap.NewNop())
	require.NoError(t, svc.Initialize(context.Background(), proc))

	_, err := svc.ProcessPayment(context.Background(), "pit_1", &domain.Method{ID: "pm_1", Type: domain.MethodCard}, nil)
	require.NoError(t, err)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.ThreeDSOutcomesTotal.WithLabelValues(string(domain.ThreeDSSuccess))))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ProcessorRequestDuration),
		"confirm plus the post-challenge re-read")
}

func TestCapturePaymentTerminalGuard(t *testing.T) {
	for _, status := range []domain.PaymentStatus{domain.StatusSucceeded, domain.StatusCanceled} {
		proc := &stubProcessor{getResult: &domain.PaymentIntent{ID: "pit_1", Status: status}}
		svc := newInitializedService(t, proc, nil)

		_, err := svc.CapturePayment(context.Background(), "pit_1", 0)
		assert.True(t, IsCode(err, CodeProcessingError), "capture on %s must be rejected", status)
	}
}

func TestCapturePaymentPartial(t *testing.T) {
	proc := &stubProcessor{
		getResult:     &domain.PaymentIntent{ID: "pit_1", Status: domain.StatusRequiresCapture},
		captureResult: &domain.PaymentIntent{ID: "pit_1", Status: domain.StatusSucceeded},
	}
	svc := newInitializedService(t, proc, nil)

	intent, err := svc.CapturePayment(context.Background(), "pit_1", 3000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, intent.Status)
}

func TestRefundPaymentPartial(t *testing.T) {
	proc := &stubProcessor{refundResult: &domain.RefundResult{
		Success:  true,
		RefundID: "ref_1",
		Amount:   2000,
		Currency: "USD",
		Status:   domain.RefundSucceeded,
	}}
	svc := newInitializedService(t, proc, nil)

	res, err := svc.RefundPayment(context.Background(), "pit_1", 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.Amount)
	assert.Equal(t, domain.RefundSucceeded, res.Status)
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"card substring", errors.New("the card has expired"), CodeCardError},
		{"insufficient substring", errors.New("insufficient funds available"), CodePaymentDeclined},
		{"declined substring", errors.New("transaction declined by issuer"), CodePaymentDeclined},
		{"network substring", errors.New("network unreachable"), CodeNetworkError},
		{"timeout substring", errors.New("request timeout"), CodeNetworkError},
		{"fallback", errors.New("something odd"), CodeProcessingError},
		{"taxonomy table wins", domain.NewPaymentError("insufficient_funds", "no funds", domain.ErrTypeCard), CodePaymentDeclined},
		{"payment error by type", domain.NewPaymentError("weird_code", "bad key", domain.ErrTypeAuthentication), CodeAuthenticationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &stubProcessor{confirmErr: tt.err}
			svc := newInitializedService(t, proc, nil)

			_, err := svc.ProcessPayment(context.Background(), "pit_1", &domain.Method{ID: "pm_1", Type: domain.MethodCard}, nil)
			assert.True(t, IsCode(err, tt.code), "want %s, got %v", tt.code, err)
		})
	}
}
