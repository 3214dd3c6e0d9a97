// Package threeds runs the EMVCo 3DS2 authentication and challenge flow
// against a 3DS server, independent of which payment processor is in use.
package threeds

import "context"

// Challenge window size presets per EMVCo challengeWindowSize codes.
const (
	WindowSize250x400   = "01"
	WindowSize390x400   = "02"
	WindowSize500x600   = "03"
	WindowSize600x400   = "04"
	WindowSizeFullscreen = "05"
)

// windowDimensions maps a preset code to pixel dimensions. Zero means
// fullscreen.
var windowDimensions = map[string][2]int{
	WindowSize250x400:    {250, 400},
	WindowSize390x400:    {390, 400},
	WindowSize500x600:    {500, 600},
	WindowSize600x400:    {600, 400},
	WindowSizeFullscreen: {0, 0},
}

// DefaultWindowSize is used when no preset is configured.
const DefaultWindowSize = WindowSize500x600

// BrowserInfo is the device fingerprint collected for the authentication
// request.
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

// AuthRequest is the AReq submitted to the 3DS server.
type AuthRequest struct {
	IntentID            string      `json:"payment_intent_id"`
	AcctNumberMasked    string      `json:"acct_number_masked"`
	Amount              int64       `json:"amount"`
	Currency            string      `json:"currency"`
	Browser             BrowserInfo `json:"browser"`
	ChallengeWindowSize string      `json:"challenge_window_size"`
	ReturnURL           string      `json:"return_url,omitempty"`
}

// AuthResponse is the ARes returned by the 3DS server. TransStatus carries
// the EMVCo verdict: Y/A authenticated, N/R failed, U unavailable,
// C challenge required.
type AuthResponse struct {
	TransStatus          string `json:"trans_status"`
	ThreeDSServerTransID string `json:"three_ds_server_trans_id"`
	AcsURL               string `json:"acs_url,omitempty"`
}

// AuthRequestor submits an AReq to the 3DS server. Processor adapters
// provide the concrete client.
type AuthRequestor interface {
	RequestAuthentication(ctx context.Context, req *AuthRequest) (*AuthResponse, error)
}

// ChallengeMessage is one message received from the challenge context. Only
// messages from an allow-listed origin with MessageType "CRes" are trusted.
type ChallengeMessage struct {
	Origin               string `json:"origin"`
	MessageType          string `json:"messageType"`
	TransStatus          string `json:"transStatus"`
	ThreeDSServerTransID string `json:"threeDSServerTransID"`
}

// ChallengeTransport delivers messages posted back from the challenge
// context. Implementations bridge whatever channel the embedding
// application uses (browser postMessage relay, webhook, test fake).
type ChallengeTransport interface {
	Messages() <-chan ChallengeMessage
}

// ChallengeWindow is the scoped resource holding an open challenge context.
// Close must be safe to call multiple times. Done is closed when the user
// dismisses the window.
type ChallengeWindow interface {
	Close()
	Done() <-chan struct{}
}

// WindowOpener opens a challenge window at the ACS URL. Width and height of
// zero request fullscreen.
type WindowOpener interface {
	Open(url string, width, height int) (ChallengeWindow, error)
}
