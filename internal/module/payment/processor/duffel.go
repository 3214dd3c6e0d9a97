package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/module/payment/threeds"
)

const (
	duffelSandboxURL    = "https://api.sandbox.duffel.com"
	duffelProductionURL = "https://api.duffel.com"
	duffelAPIVersion    = "v2"
)

// DuffelConfig holds Duffel adapter configuration.
type DuffelConfig struct {
	APIKey     string
	Production bool
	BaseURL    string // override, used in tests
	Timeout    time.Duration
}

// DuffelProcessor implements the Processor contract against the Duffel
// payments REST API. It is the only place that knows Duffel's wire format.
type DuffelProcessor struct {
	cfg         DuffelConfig
	baseURL     string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[[]byte]
	initialized bool
}

// NewDuffelProcessor creates a Duffel adapter. Initialize must succeed
// before the adapter is usable.
func NewDuffelProcessor(cfg DuffelConfig) *DuffelProcessor {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Production {
			baseURL = duffelProductionURL
		} else {
			baseURL = duffelSandboxURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:     "duffel",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &DuffelProcessor{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Name returns the processor name.
func (p *DuffelProcessor) Name() string { return "duffel" }

// Capabilities returns the Duffel capability row.
func (p *DuffelProcessor) Capabilities() Capabilities {
	return Capabilities{
		ThreeDSecure:   true,
		DelayedCapture: false,
		PartialRefunds: true,
		Currencies:     []string{"USD", "EUR", "GBP", "AUD", "CAD"},
	}
}

// Initialize probes connectivity so broken credentials surface immediately,
// not lazily on the first real payment.
func (p *DuffelProcessor) Initialize(ctx context.Context) error {
	if _, err := p.do(ctx, http.MethodGet, "/payments/payment_intents?limit=1", nil); err != nil {
		return fmt.Errorf("duffel connectivity probe: %w", err)
	}
	p.initialized = true
	return nil
}

// --- Vendor wire types ---

type duffelIntent struct {
	ID              string            `json:"id"`
	Amount          string            `json:"amount"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	ClientToken     string            `json:"client_token,omitempty"`
	PaymentMethodID string            `json:"payment_method_id,omitempty"`
	CaptureMethod   string            `json:"capture_method,omitempty"`
	RedirectURL     string            `json:"redirect_url,omitempty"`
	ReturnURL       string            `json:"return_url,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type duffelRefund struct {
	ID       string `json:"id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type duffelEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []duffelError   `json:"errors,omitempty"`
}

type duffelError struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// duffelStatusTable maps Duffel status vocabulary to the shared enum. Never
// a pass-through: unknown vendor statuses fail loudly in mapIntent.
var duffelStatusTable = map[string]domain.PaymentStatus{
	"requires_payment_method": domain.StatusRequiresPaymentMethod,
	"requires_confirmation":   domain.StatusRequiresConfirmation,
	"requires_action":         domain.StatusRequiresAction,
	"processing":              domain.StatusProcessing,
	"requires_capture":        domain.StatusRequiresCapture,
	"succeeded":               domain.StatusSucceeded,
	"failed":                  domain.StatusFailed,
	"cancelled":               domain.StatusCanceled,
}

var duffelRefundStatusTable = map[string]domain.RefundStatus{
	"pending":   domain.RefundPending,
	"succeeded": domain.RefundSucceeded,
	"failed":    domain.RefundFailed,
}

// --- Processor contract ---

// CreateIntent creates a payment intent.
func (p *DuffelProcessor) CreateIntent(ctx context.Context, params domain.CreateIntentParams) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	meta := map[string]string{"booking_type": string(params.Metadata.BookingType)}
	if params.Metadata.BookingID != "" {
		meta["booking_id"] = params.Metadata.BookingID
	}
	if params.Metadata.CustomerID != "" {
		meta["customer_id"] = params.Metadata.CustomerID
	}
	if params.Metadata.OrderReference != "" {
		meta["order_reference"] = params.Metadata.OrderReference
	}

	body := map[string]any{
		"amount":   minorToDecimal(params.Amount, params.Currency),
		"currency": params.Currency,
		"metadata": meta,
	}
	if params.CaptureMethod != "" {
		body["capture_method"] = string(params.CaptureMethod)
	}
	if params.ReturnURL != "" {
		body["return_url"] = params.ReturnURL
	}

	raw, err := p.do(ctx, http.MethodPost, "/payments/payment_intents", map[string]any{"data": body})
	if err != nil {
		return nil, err
	}
	return p.decodeIntent(raw)
}

// GetIntent fetches the current server-side intent state.
func (p *DuffelProcessor) GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	raw, err := p.do(ctx, http.MethodGet, "/payments/payment_intents/"+intentID, nil)
	if err != nil {
		return nil, err
	}
	return p.decodeIntent(raw)
}

// ConfirmIntent confirms with the given method. On failure it still fetches
// and returns the current intent state, so the caller is never left without
// a status.
func (p *DuffelProcessor) ConfirmIntent(ctx context.Context, intentID string, method *domain.Method, returnURL string) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	body := map[string]any{"data": map[string]any{
		"payment_method_id": method.ID,
		"return_url":        returnURL,
	}}
	raw, err := p.do(ctx, http.MethodPost, "/payments/payment_intents/"+intentID+"/actions/confirm", body)
	if err != nil {
		if current, getErr := p.GetIntent(ctx, intentID); getErr == nil {
			return current, err
		}
		return nil, err
	}
	return p.decodeIntent(raw)
}

// CaptureIntent captures an authorized intent, optionally partially.
func (p *DuffelProcessor) CaptureIntent(ctx context.Context, intentID string, amount int64) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	data := map[string]any{}
	if amount > 0 {
		current, err := p.GetIntent(ctx, intentID)
		if err != nil {
			return nil, err
		}
		data["amount"] = minorToDecimal(amount, current.Currency)
	}
	raw, err := p.do(ctx, http.MethodPost, "/payments/payment_intents/"+intentID+"/actions/capture", map[string]any{"data": data})
	if err != nil {
		return nil, err
	}
	return p.decodeIntent(raw)
}

// CancelIntent cancels a not-yet-succeeded intent.
func (p *DuffelProcessor) CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}
	raw, err := p.do(ctx, http.MethodPost, "/payments/payment_intents/"+intentID+"/actions/cancel", map[string]any{"data": map[string]any{}})
	if err != nil {
		return nil, err
	}
	return p.decodeIntent(raw)
}

// Refund refunds a captured intent, optionally partially.
func (p *DuffelProcessor) Refund(ctx context.Context, intentID string, amount int64) (*domain.RefundResult, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	data := map[string]any{"payment_intent_id": intentID}
	if amount > 0 {
		current, err := p.GetIntent(ctx, intentID)
		if err != nil {
			return nil, err
		}
		data["amount"] = minorToDecimal(amount, current.Currency)
		data["currency"] = current.Currency
	}
	raw, err := p.do(ctx, http.MethodPost, "/payments/refunds", map[string]any{"data": data})
	if err != nil {
		var pe *domain.PaymentError
		if errors.As(err, &pe) {
			return &domain.RefundResult{Success: false, Status: domain.RefundFailed, Error: pe}, err
		}
		return nil, err
	}

	var ref duffelRefund
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("decode refund: %w", err)
	}

	status, ok := duffelRefundStatusTable[ref.Status]
	if !ok {
		return nil, fmt.Errorf("unknown duffel refund status %q", ref.Status)
	}
	refunded, err := decimalToMinor(ref.Amount, ref.Currency)
	if err != nil {
		return nil, fmt.Errorf("decode refund amount: %w", err)
	}
	return &domain.RefundResult{
		Success:  status != domain.RefundFailed,
		RefundID: ref.ID,
		Amount:   refunded,
		Currency: ref.Currency,
		Status:   status,
	}, nil
}

// RequestAuthentication implements threeds.AuthRequestor against Duffel's
// 3DS session endpoint.
func (p *DuffelProcessor) RequestAuthentication(ctx context.Context, req *threeds.AuthRequest) (*threeds.AuthResponse, error) {
	if !p.initialized {
		return nil, ErrNotInitialized
	}

	body := map[string]any{"data": map[string]any{
		"payment_intent_id":     req.IntentID,
		"acct_number_masked":    req.AcctNumberMasked,
		"challenge_window_size": req.ChallengeWindowSize,
		"return_url":            req.ReturnURL,
		"browser": map[string]any{
			"color_depth":        req.Browser.ColorDepth,
			"language":           req.Browser.Language,
			"timezone_offset":    req.Browser.TimezoneOffset,
			"screen_width":       req.Browser.ScreenWidth,
			"screen_height":      req.Browser.ScreenHeight,
			"user_agent":         req.Browser.UserAgent,
			"java_enabled":       req.Browser.JavaEnabled,
			"javascript_enabled": req.Browser.JavaScriptEnabled,
		},
	}}

	raw, err := p.do(ctx, http.MethodPost, "/payments/three_d_secure_sessions", body)
	if err != nil {
		return nil, err
	}

	var session struct {
		TransStatus string `json:"trans_status"`
		ID          string `json:"id"`
		AcsURL      string `json:"acs_url"`
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode 3ds session: %w", err)
	}
	return &threeds.AuthResponse{
		TransStatus:          session.TransStatus,
		ThreeDSServerTransID: session.ID,
		AcsURL:               session.AcsURL,
	}, nil
}

// --- Wire plumbing ---

// do executes one API call through the circuit breaker and returns the data
// payload. Vendor error payloads come back as *domain.PaymentError.
func (p *DuffelProcessor) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	return p.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request: %w", err)
			}
			reader = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		req.Header.Set("Duffel-Version", duffelAPIVersion)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		var envelope duffelEnvelope
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return nil, fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
		}

		if resp.StatusCode >= 400 || len(envelope.Errors) > 0 {
			if len(envelope.Errors) > 0 {
				return nil, classifyDuffelError(envelope.Errors[0])
			}
			return nil, fmt.Errorf("duffel api error: status %d", resp.StatusCode)
		}
		return envelope.Data, nil
	})
}

func (p *DuffelProcessor) decodeIntent(raw []byte) (*domain.PaymentIntent, error) {
	var di duffelIntent
	if err := json.Unmarshal(raw, &di); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	return p.mapIntent(&di)
}

// mapIntent converts a vendor intent into the shared shape.
func (p *DuffelProcessor) mapIntent(di *duffelIntent) (*domain.PaymentIntent, error) {
	status, ok := duffelStatusTable[di.Status]
	if !ok {
		return nil, fmt.Errorf("unknown duffel intent status %q", di.Status)
	}

	capture := domain.CaptureAutomatic
	if di.CaptureMethod == "manual" {
		capture = domain.CaptureManual
	}

	amount, err := decimalToMinor(di.Amount, di.Currency)
	if err != nil {
		return nil, fmt.Errorf("decode intent amount: %w", err)
	}

	intent := &domain.PaymentIntent{
		ID:                 di.ID,
		Amount:             amount,
		Currency:           di.Currency,
		Status:             status,
		ClientSecret:       di.ClientToken,
		ConfirmationMethod: domain.ConfirmationAutomatic,
		CaptureMethod:      capture,
		PaymentMethodID:    di.PaymentMethodID,
		Metadata: domain.Metadata{
			BookingType:    domain.BookingType(di.Metadata["booking_type"]),
			BookingID:      di.Metadata["booking_id"],
			CustomerID:     di.Metadata["customer_id"],
			OrderReference: di.Metadata["order_reference"],
		},
		CreatedAt: di.CreatedAt,
		UpdatedAt: di.UpdatedAt,
	}

	if status == domain.StatusRequiresAction && di.RedirectURL != "" {
		intent.NextAction = &domain.NextAction{
			Type:      "redirect_to_url",
			URL:       di.RedirectURL,
			ReturnURL: di.ReturnURL,
		}
	}
	return intent, nil
}

// classifyDuffelError maps a vendor error payload into the shared taxonomy
// by inspecting the error code.
func classifyDuffelError(de duffelError) *domain.PaymentError {
	code := strings.ToLower(de.Code)
	var errType domain.ErrorType
	switch {
	case strings.Contains(code, "card"), strings.Contains(code, "payment_method"):
		errType = domain.ErrTypeCard
	case strings.Contains(code, "auth"), strings.Contains(code, "key"):
		errType = domain.ErrTypeAuthentication
	case strings.Contains(code, "validation"), strings.Contains(code, "invalid"):
		errType = domain.ErrTypeValidation
	default:
		errType = domain.ErrTypeAPI
	}

	msg := de.Message
	if msg == "" {
		msg = de.Title
	}
	return domain.NewPaymentError(de.Code, msg, errType)
}

// --- Amount conversion ---

// currencyExponent returns the number of minor-unit digits for a currency.
func currencyExponent(currency string) int {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "CLP", "ISK":
		return 0
	default:
		return 2
	}
}

// minorToDecimal renders minor units as the decimal string Duffel expects.
func minorToDecimal(amount int64, currency string) string {
	exp := currencyExponent(currency)
	if exp == 0 {
		return strconv.FormatInt(amount, 10)
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// decimalToMinor parses Duffel's decimal amount string into minor units.
func decimalToMinor(amount, currency string) (int64, error) {
	s := strings.TrimSpace(amount)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if s == "" || strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("malformed amount %q", amount)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q: %w", amount, err)
	}

	exp := currencyExponent(currency)
	v := w
	if exp > 0 {
		for len(frac) < exp {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac[:exp], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed amount %q: %w", amount, err)
		}
		v = w*100 + f
	}
	if neg {
		v = -v
	}
	return v, nil
}
