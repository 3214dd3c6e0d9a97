package threeds

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripfare/payments/internal/module/payment/domain"
	"github.com/tripfare/payments/internal/utils/metrics"
)

// --- Fakes ---

type fakeRequestor struct {
	resp *AuthResponse
	err  error
}

func (f *fakeRequestor) RequestAuthentication(_ context.Context, _ *AuthRequest) (*AuthResponse, error) {
	return f.resp, f.err
}

type fakeTransport struct {
	ch chan ChallengeMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ch: make(chan ChallengeMessage, 8)}
}

func (f *fakeTransport) Messages() <-chan ChallengeMessage { return f.ch }

type fakeWindow struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{done: make(chan struct{})}
}

func (w *fakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *fakeWindow) Done() <-chan struct{} { return w.done }

func (w *fakeWindow) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type fakeOpener struct {
	window  *fakeWindow
	err     error
	lastURL string
	lastW   int
	lastH   int
}

func (o *fakeOpener) Open(url string, width, height int) (ChallengeWindow, error) {
	o.lastURL, o.lastW, o.lastH = url, width, height
	if o.err != nil {
		return nil, o.err
	}
	return o.window, nil
}

func newHandler(req *fakeRequestor, tr *fakeTransport, op *fakeOpener, cfg Config) *Handler {
	return NewHandler(req, tr, op, cfg, nil, zap.NewNop())
}

var testCfg = Config{
	ChallengeTimeout: 200 * time.Millisecond,
	AllowedOrigins:   []string{"https://acs.example.com"},
}

// --- Tests ---

func TestAuthenticateFrictionless(t *testing.T) {
	tests := []struct {
		transStatus   string
		authenticated bool
		status        domain.ThreeDSStatus
	}{
		{"Y", true, domain.ThreeDSSuccess},
		{"A", true, domain.ThreeDSSuccess},
		{"U", true, domain.ThreeDSNotRequired},
		{"N", false, domain.ThreeDSFailed},
		{"R", false, domain.ThreeDSFailed},
		{"X", false, domain.ThreeDSFailed},
	}

	for _, tt := range tests {
		t.Run(tt.transStatus, func(t *testing.T) {
			h := newHandler(
				&fakeRequestor{resp: &AuthResponse{TransStatus: tt.transStatus, ThreeDSServerTransID: "trans_1"}},
				newFakeTransport(), &fakeOpener{}, testCfg,
			)
			res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
			require.NoError(t, err)
			assert.Equal(t, tt.authenticated, res.Authenticated)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestAuthenticateRequestorErrorResolvesFailed(t *testing.T) {
	h := newHandler(&fakeRequestor{err: errors.New("3ds server unreachable")}, newFakeTransport(), &fakeOpener{}, testCfg)

	res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err, "expected a definite verdict, not an error")
	assert.False(t, res.Authenticated)
	assert.Equal(t, domain.ThreeDSFailed, res.Status)
}

func challengeResponse() *fakeRequestor {
	return &fakeRequestor{resp: &AuthResponse{
		TransStatus:          "C",
		ThreeDSServerTransID: "trans_1",
		AcsURL:               "https://acs.example.com/challenge",
	}}
}

func TestChallengeSuccess(t *testing.T) {
	tr := newFakeTransport()
	win := newFakeWindow()
	op := &fakeOpener{window: win}
	h := newHandler(challengeResponse(), tr, op, testCfg)

	tr.ch <- ChallengeMessage{
		Origin:               "https://acs.example.com",
		MessageType:          "CRes",
		TransStatus:          "Y",
		ThreeDSServerTransID: "trans_1",
	}

	res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, domain.ThreeDSSuccess, res.Status)
	assert.Equal(t, "trans_1", res.TransactionID)
	assert.True(t, win.isClosed(), "window must be closed after completion")
	assert.Equal(t, "https://acs.example.com/challenge", op.lastURL)
	assert.Equal(t, 500, op.lastW)
	assert.Equal(t, 600, op.lastH)
}

func TestChallengeObservesDuration(t *testing.T) {
	m := metrics.NewWith("test", prometheus.NewRegistry())
	tr := newFakeTransport()
	op := &fakeOpener{window: newFakeWindow()}
	h := NewHandler(challengeResponse(), tr, op, testCfg, m, zap.NewNop())

	tr.ch <- ChallengeMessage{
		Origin:               "https://acs.example.com",
		MessageType:          "CRes",
		TransStatus:          "Y",
		ThreeDSServerTransID: "trans_1",
	}

	_, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ThreeDSChallengeDuration))
}

func TestChallengeFailedCRes(t *testing.T) {
	tr := newFakeTransport()
	win := newFakeWindow()
	h := newHandler(challengeResponse(), tr, &fakeOpener{window: win}, testCfg)

	tr.ch <- ChallengeMessage{
		Origin:               "https://acs.example.com",
		MessageType:          "CRes",
		TransStatus:          "N",
		ThreeDSServerTransID: "trans_1",
	}

	res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, domain.ThreeDSFailed, res.Status)
	assert.True(t, win.isClosed())
}

func TestChallengeIgnoresUntrustedMessages(t *testing.T) {
	tr := newFakeTransport()
	win := newFakeWindow()
	h := newHandler(challengeResponse(), tr, &fakeOpener{window: win}, testCfg)

	// Wrong origin, wrong shape, wrong transaction: all silently dropped.
	tr.ch <- ChallengeMessage{Origin: "https://evil.example.com", MessageType: "CRes", TransStatus: "Y", ThreeDSServerTransID: "trans_1"}
	tr.ch <- ChallengeMessage{Origin: "https://acs.example.com", MessageType: "Ping", TransStatus: "Y", ThreeDSServerTransID: "trans_1"}
	tr.ch <- ChallengeMessage{Origin: "https://acs.example.com", MessageType: "CRes", TransStatus: "Y", ThreeDSServerTransID: "trans_other"}

	start := time.Now()
	res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err)
	assert.False(t, res.Authenticated, "untrusted messages must never resolve the challenge")
	assert.Equal(t, domain.ThreeDSFailed, res.Status)
	assert.GreaterOrEqual(t, time.Since(start), testCfg.ChallengeTimeout, "challenge should stay pending until timeout")
	assert.True(t, win.isClosed())
}

func TestChallengeTimeout(t *testing.T) {
	tr := newFakeTransport()
	win := newFakeWindow()
	h := newHandler(challengeResponse(), tr, &fakeOpener{window: win}, testCfg)

	res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, domain.ThreeDSFailed, res.Status)
	assert.True(t, win.isClosed(), "window must be force-closed on timeout")
}

func TestChallengeWindowDismissed(t *testing.T) {
	tr := newFakeTransport()
	win := newFakeWindow()
	h := newHandler(challengeResponse(), tr, &fakeOpener{window: win}, Config{
		ChallengeTimeout: 5 * time.Second,
		AllowedOrigins:   testCfg.AllowedOrigins,
	})

	close(win.done)

	res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, domain.ThreeDSFailed, res.Status)
	assert.True(t, win.isClosed())
}

func TestChallengeWindowBlocked(t *testing.T) {
	h := newHandler(challengeResponse(), newFakeTransport(), &fakeOpener{err: errors.New("popup blocked")}, testCfg)

	res, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.ErrorIs(t, err, ErrWindowOpenFailed)
	assert.Nil(t, res)
}

func TestMaskPAN(t *testing.T) {
	assert.Equal(t, "4242********4242", maskPAN("4242424242424242"))
	assert.Equal(t, "4242********4242", maskPAN("4242 4242 4242 4242"))
	assert.Equal(t, "********", maskPAN("42424242"))
	assert.Equal(t, "", maskPAN(""))
}

func TestWindowSizePresets(t *testing.T) {
	tr := newFakeTransport()
	win := newFakeWindow()
	op := &fakeOpener{window: win}
	cfg := testCfg
	cfg.WindowSize = WindowSize250x400
	h := newHandler(challengeResponse(), tr, op, cfg)

	tr.ch <- ChallengeMessage{Origin: "https://acs.example.com", MessageType: "CRes", TransStatus: "Y", ThreeDSServerTransID: "trans_1"}

	_, err := h.Authenticate(context.Background(), &Request{IntentID: "pit_1"})
	require.NoError(t, err)
	assert.Equal(t, 250, op.lastW)
	assert.Equal(t, 400, op.lastH)
}
