package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	defaultDebuggerURL = "http://127.0.0.1:9222"
	defaultCallTimeout = 20 * time.Second
	readLimit          = 32 << 20
)

// PageTarget is one entry of the browser's /json/list endpoint.
type PageTarget struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type envelope struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DiscoverPage returns the first page target exposed by a browser started
// with --remote-debugging-port.
func DiscoverPage(ctx context.Context, baseURL string) (PageTarget, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultDebuggerURL
	}
	trimmed = strings.TrimSuffix(trimmed, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed+"/json/list", nil)
	if err != nil {
		return PageTarget{}, fmt.Errorf("build target request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return PageTarget{}, fmt.Errorf("query cdp target endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PageTarget{}, fmt.Errorf("cdp target endpoint returned status %d", resp.StatusCode)
	}

	var targets []PageTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return PageTarget{}, fmt.Errorf("decode cdp target response: %w", err)
	}
	for _, target := range targets {
		if target.Type == "page" && strings.TrimSpace(target.WebSocketDebuggerURL) != "" {
			return target, nil
		}
	}
	return PageTarget{}, fmt.Errorf("no page target websocket found at %s", trimmed)
}

// WSTransport speaks the protocol directly over a page target websocket.
type WSTransport struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	idCounter atomic.Int64
	writeMu   sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan envelope

	events emitter

	closed     chan struct{}
	closeOnce  sync.Once
	readCancel context.CancelFunc
}

// DialWS connects to a page target websocket and starts the read loop.
func DialWS(ctx context.Context, socketURL string, logger zerolog.Logger) (*WSTransport, error) {
	conn, _, err := websocket.Dial(ctx, socketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial cdp websocket: %w", err)
	}
	conn.SetReadLimit(readLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	t := &WSTransport{
		conn:       conn,
		logger:     logger.With().Str("comp", "cdp-ws").Logger(),
		pending:    make(map[int64]chan envelope),
		closed:     make(chan struct{}),
		readCancel: cancel,
	}
	go t.readLoop(readCtx)
	return t, nil
}

func (t *WSTransport) readLoop(ctx context.Context) {
	defer t.shutdown()
	for {
		_, message, err := t.conn.Read(ctx)
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.logger.Debug().Err(err).Msg("read loop stopped")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			t.logger.Debug().Err(err).Msg("skip undecodable message")
			continue
		}

		if env.ID != 0 {
			t.pendingMu.Lock()
			ch, ok := t.pending[env.ID]
			delete(t.pending, env.ID)
			t.pendingMu.Unlock()
			if ok {
				ch <- env
			}
			continue
		}
		if env.Method != "" {
			t.events.emit(env.Method, env.Params)
		}
	}
}

// Send implements Transport.
func (t *WSTransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.IsActive() {
		return nil, fmt.Errorf("%s: %w", method, ErrSessionClosed)
	}

	requestID := t.idCounter.Add(1)
	payload := map[string]any{
		"id":     requestID,
		"method": method,
	}
	if params != nil {
		payload["params"] = params
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	ch := make(chan envelope, 1)
	t.pendingMu.Lock()
	t.pending[requestID] = ch
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, requestID)
		t.pendingMu.Unlock()
	}()

	deadline := time.Now().Add(defaultCallTimeout)
	if explicit, ok := ctx.Deadline(); ok {
		deadline = explicit
	}
	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	t.writeMu.Lock()
	err = t.conn.Write(callCtx, websocket.MessageText, raw)
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write cdp request %s: %w", method, err)
	}

	select {
	case env := <-ch:
		if env.Error != nil {
			return nil, &ProtocolError{Method: method, Code: env.Error.Code, Message: env.Error.Message}
		}
		return env.Result, nil
	case <-t.closed:
		return nil, fmt.Errorf("%s: %w", method, ErrSessionClosed)
	case <-callCtx.Done():
		return nil, fmt.Errorf("wait for %s response: %w", method, callCtx.Err())
	}
}

// On implements Transport.
func (t *WSTransport) On(event string, handler EventHandler) ListenerID {
	return t.events.add(event, handler, false)
}

// Once implements Transport.
func (t *WSTransport) Once(event string, handler EventHandler) ListenerID {
	return t.events.add(event, handler, true)
}

// Off implements Transport.
func (t *WSTransport) Off(event string, id ListenerID) {
	t.events.remove(event, id)
}

// IsActive implements Transport.
func (t *WSTransport) IsActive() bool {
	select {
	case <-t.closed:
		return false
	default:
		return true
	}
}

// Close implements Transport.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.readCancel()
		t.events.reset()
		err = t.conn.Close(websocket.StatusNormalClosure, "closing")
	})
	return err
}

// shutdown marks the transport inactive after the read loop ends.
func (t *WSTransport) shutdown() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.readCancel()
		t.events.reset()
		_ = t.conn.Close(websocket.StatusGoingAway, "read loop ended")
	})
}
