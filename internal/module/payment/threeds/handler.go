package threeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/utils/metrics"
)

// DefaultChallengeTimeout bounds how long a challenge may stay pending.
const DefaultChallengeTimeout = 5 * time.Minute

// ErrWindowOpenFailed is returned when the challenge window cannot be
// opened (popup blocked). This is the one failure mode that surfaces as an
// error instead of a failed result.
var ErrWindowOpenFailed = errors.New("challenge window open failed")

// Config holds handler configuration.
type Config struct {
	ChallengeTimeout time.Duration
	WindowSize       string   // EMVCo preset code, default 03 (500x600)
	AllowedOrigins   []string // origins trusted to deliver challenge results
}

// Handler runs 3DS2 authentication attempts. One challenge is in flight at a
// time per handler instance; serializing concurrent challenges is the
// caller's contract.
type Handler struct {
	requestor AuthRequestor
	transport ChallengeTransport
	windows   WindowOpener
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHandler creates a 3DS handler. metrics may be nil.
func NewHandler(requestor AuthRequestor, transport ChallengeTransport, windows WindowOpener, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = DefaultChallengeTimeout
	}
	if _, ok := windowDimensions[cfg.WindowSize]; !ok {
		cfg.WindowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		requestor: requestor,
		transport: transport,
		windows:   windows,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// Request carries the inputs for one authentication attempt. CardNumber, if
// present, is masked before it enters the AReq.
type Request struct {
	IntentID   string
	Amount     int64
	Currency   string
	CardNumber string
	Browser    BrowserInfo
	ReturnURL  string
}

// Authenticate runs the full AReq/ARes handshake and, when demanded, the
// challenge. Expected failure modes (declined authentication, timeout,
// dismissed window, invalid messages) resolve to a failed result; only a
// blocked challenge window returns an error.
func (h *Handler) Authenticate(ctx context.Context, req *Request) (*domain.ThreeDSecureResult, error) {
	areq := &AuthRequest{
		IntentID:            req.IntentID,
		AcctNumberMasked:    maskPAN(req.CardNumber),
		Amount:              req.Amount,
		Currency:            req.Currency,
		Browser:             req.Browser,
		ChallengeWindowSize: h.cfg.WindowSize,
		ReturnURL:           req.ReturnURL,
	}

	ares, err := h.requestor.RequestAuthentication(ctx, areq)
	if err != nil {
		h.logger.Warn("3ds authentication request failed",
			zap.String("payment_intent_id", req.IntentID),
			zap.Error(err),
		)
		return failedResult(), nil
	}

	switch ares.TransStatus {
	case "Y", "A":
		return &domain.ThreeDSecureResult{
			Authenticated: true,
			Status:        domain.ThreeDSSuccess,
			TransactionID: ares.ThreeDSServerTransID,
		}, nil
	case "U":
		return &domain.ThreeDSecureResult{
			Authenticated: true,
			Status:        domain.ThreeDSNotRequired,
			TransactionID: ares.ThreeDSServerTransID,
		}, nil
	case "C":
		return h.runChallenge(ctx, ares)
	default: // N, R, anything unknown
		return failedResult(), nil
	}
}

// runChallenge opens the challenge window and awaits a trusted CRes. The
// window is closed on every exit path.
func (h *Handler) runChallenge(ctx context.Context, ares *AuthResponse) (*domain.ThreeDSecureResult, error) {
	dims := windowDimensions[h.cfg.WindowSize]
	win, err := h.windows.Open(ares.AcsURL, dims[0], dims[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWindowOpenFailed, err)
	}
	defer win.Close()

	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.ObserveThreeDSChallenge(time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, h.cfg.ChallengeTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.logger.Warn("3ds challenge timed out",
				zap.String("three_ds_server_trans_id", ares.ThreeDSServerTransID),
			)
			return failedResult(), nil

		case <-win.Done():
			// User dismissed the window; same outcome as a failed challenge.
			return failedResult(), nil

		case msg, ok := <-h.transport.Messages():
			if !ok {
				return failedResult(), nil
			}
			if !h.trusted(msg, ares.ThreeDSServerTransID) {
				continue
			}
			result := &domain.ThreeDSecureResult{
				TransactionID: msg.ThreeDSServerTransID,
				ChallengeURL:  ares.AcsURL,
			}
			if msg.TransStatus == "Y" || msg.TransStatus == "A" {
				result.Authenticated = true
				result.Status = domain.ThreeDSSuccess
			} else {
				result.Status = domain.ThreeDSFailed
			}
			return result, nil
		}
	}
}

// trusted validates origin and shape before a message is believed. Failing
// messages are dropped silently and the challenge stays pending.
func (h *Handler) trusted(msg ChallengeMessage, transID string) bool {
	if msg.MessageType != "CRes" {
		return false
	}
	if msg.ThreeDSServerTransID != "" && msg.ThreeDSServerTransID != transID {
		return false
	}
	for _, origin := range h.cfg.AllowedOrigins {
		if strings.EqualFold(origin, msg.Origin) {
			return true
		}
	}
	return false
}

func failedResult() *domain.ThreeDSecureResult {
	return &domain.ThreeDSecureResult{Authenticated: false, Status: domain.ThreeDSFailed}
}

// maskPAN keeps the first four and last four digits. Short inputs are fully
// masked; the AReq never carries a usable PAN.
func maskPAN(number string) string {
	var digits []byte
	for i := 0; i < len(number); i++ {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) <= 8 {
		return strings.Repeat("*", len(digits))
	}
	return string(digits[:4]) + strings.Repeat("*", len(digits)-8) + string(digits[len(digits)-4:])
}
