package payment

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tripfare/payments/internal/module/payment/processor"
	"github.com/tripfare/payments/internal/module/payment/threeds"
	"github.com/tripfare/payments/internal/utils/metrics"
)

// Environment selects vendor endpoints and credentials.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	Environment     Environment
	DuffelAPIKey    string
	DuffelBaseURL   string // override, used in tests
	StripeAPIKey    string
	DefaultCurrency string
	ReturnURL       string
	EnableLogging   bool
	ThreeDS         threeds.Config
	Metrics         *metrics.Metrics // optional; nil disables instrumentation
}

// Factory wires preconfigured Service and ThreeDSecureHandler pairs for an
// environment. It is an explicitly constructed, injected object; "one
// active processor per application instance" is the active field below,
// overwritten (not merged) by ActivateProcessor.
type Factory struct {
	mu        sync.Mutex
	cfg       FactoryConfig
	manager   *ProcessorManager
	transport threeds.ChallengeTransport
	windows   threeds.WindowOpener
	logger    *zap.Logger
	service   *Service
	active    processor.Processor
}

// NewFactory validates configuration and creates a factory. The challenge
// transport and window opener are supplied by the embedding application.
func NewFactory(cfg FactoryConfig, transport threeds.ChallengeTransport, windows threeds.WindowOpener, logger *zap.Logger) (*Factory, error) {
	if cfg.Environment != EnvSandbox && cfg.Environment != EnvProduction {
		return nil, NewError(CodeInvalidConfig, "environment must be sandbox or production")
	}
	if cfg.DuffelAPIKey == "" && cfg.StripeAPIKey == "" {
		return nil, NewError(CodeInvalidConfig, "at least one processor api key is required")
	}
	if cfg.DefaultCurrency != "" && !ValidCurrency(cfg.DefaultCurrency) {
		return nil, NewError(CodeInvalidConfig, "default currency must be a 3-letter ISO code")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Factory{
		cfg:       cfg,
		manager:   NewProcessorManager(),
		transport: transport,
		windows:   windows,
		logger:    logger,
	}
	f.registerProcessors()
	return f, nil
}

func (f *Factory) registerProcessors() {
	if f.cfg.DuffelAPIKey != "" {
		f.manager.Register(processor.NewDuffelProcessor(processor.DuffelConfig{
			APIKey:     f.cfg.DuffelAPIKey,
			Production: f.cfg.Environment == EnvProduction,
			BaseURL:    f.cfg.DuffelBaseURL,
		}))
	}
	if f.cfg.StripeAPIKey != "" {
		f.manager.Register(processor.NewStripeProcessor(processor.StripeConfig{
			APIKey: f.cfg.StripeAPIKey,
		}))
	}
}

// Manager exposes the processor registry.
func (f *Factory) Manager() *ProcessorManager { return f.manager }

// BuildService selects a processor for the default currency, wires the 3DS
// handler against it and returns an initialized service. The service is
// built once; repeated calls return the same instance.
func (f *Factory) BuildService(ctx context.Context) (*Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.service != nil {
		return f.service, nil
	}

	proc, err := f.manager.Select(SelectionConstraints{
		Currency:       f.cfg.DefaultCurrency,
		RequireThreeDS: true,
	})
	if err != nil {
		return nil, WrapError(CodeInvalidConfig, "processor selection failed", err)
	}

	requestor := f.authRequestor(proc)
	if requestor == nil {
		return nil, NewError(CodeInvalidConfig, "no registered processor implements 3ds authentication")
	}

	handler := threeds.NewHandler(requestor, f.transport, f.windows, f.cfg.ThreeDS, f.cfg.Metrics, f.logger)
	svc := NewService(handler, ServiceConfig{
		DefaultCurrency: f.cfg.DefaultCurrency,
		ReturnURL:       f.cfg.ReturnURL,
		EnableLogging:   f.cfg.EnableLogging,
		Metrics:         f.cfg.Metrics,
	}, f.logger)

	if err := svc.Initialize(ctx, proc); err != nil {
		return nil, err
	}

	f.service = svc
	f.active = proc
	return svc, nil
}

// ActivateProcessor rebinds the service to a registered processor,
// overwriting the active pointer.
func (f *Factory) ActivateProcessor(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.service == nil {
		return NewError(CodeNotInitialized, "service not built")
	}
	proc, err := f.manager.Get(name)
	if err != nil {
		return WrapError(CodeInvalidConfig, "unknown processor", err)
	}
	if err := f.service.Initialize(ctx, proc); err != nil {
		return err
	}
	f.active = proc
	return nil
}

// ActiveProcessorName returns the active processor's name, or empty before
// the service is built.
func (f *Factory) ActiveProcessorName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return ""
	}
	return f.active.Name()
}

// authRequestor prefers the selected processor's own 3DS endpoint; adapters
// that run 3DS internally fall back to the first registered one that
// speaks the protocol.
func (f *Factory) authRequestor(proc processor.Processor) threeds.AuthRequestor {
	if r, ok := proc.(threeds.AuthRequestor); ok {
		return r
	}
	for _, name := range f.manager.List() {
		p, err := f.manager.Get(name)
		if err != nil {
			continue
		}
		if r, ok := p.(threeds.AuthRequestor); ok {
			return r
		}
	}
	return nil
}
