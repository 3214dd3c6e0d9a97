package threeds

import (
	"errors"
	"sync"
)

// ErrTransportClosed is returned when delivering on a closed transport.
var ErrTransportClosed = errors.New("challenge transport closed")

// CallbackTransport is a ChallengeTransport fed by an HTTP callback: the
// challenge page posts its result to the server, which delivers it here.
type CallbackTransport struct {
	mu     sync.Mutex
	ch     chan ChallengeMessage
	closed bool
}

// NewCallbackTransport creates a transport buffering up to size messages.
func NewCallbackTransport(size int) *CallbackTransport {
	if size <= 0 {
		size = 16
	}
	return &CallbackTransport{ch: make(chan ChallengeMessage, size)}
}

// Messages implements ChallengeTransport.
func (t *CallbackTransport) Messages() <-chan ChallengeMessage {
	return t.ch
}

// Deliver hands a received challenge result to any waiting handler. It never
// blocks: when no handler is draining the channel and the buffer is full the
// message is dropped, matching a result arriving after the challenge timed
// out.
func (t *CallbackTransport) Deliver(msg ChallengeMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}

	select {
	case t.ch <- msg:
	default:
	}
	return nil
}

// Close stops the transport. Deliver fails afterwards.
func (t *CallbackTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.ch)
	}
}

// redirectWindow is the server-side stand-in for a challenge window: the end
// user's own browser shows the ACS page, so there is nothing to close here
// and no way to observe a dismissal.
type redirectWindow struct {
	once sync.Once
	done chan struct{}
}

func (w *redirectWindow) Close()                { w.once.Do(func() { close(w.done) }) }
func (w *redirectWindow) Done() <-chan struct{} { return w.done }

// RedirectOpener is a WindowOpener for server deployments. Open always
// succeeds; the ACS URL travels to the client in the intent's next action.
type RedirectOpener struct{}

// Open implements WindowOpener.
func (RedirectOpener) Open(string, int, int) (ChallengeWindow, error) {
	return &redirectWindow{done: make(chan struct{})}, nil
}

var (
	_ ChallengeTransport = (*CallbackTransport)(nil)
	_ WindowOpener       = RedirectOpener{}
)
