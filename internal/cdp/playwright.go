package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightTransport adapts a playwright CDPSession to Transport.
//
// playwright removes listeners by function identity, so the transport keeps
// a single session listener per event and fans out to its own registry.
type PlaywrightTransport struct {
	session  playwright.CDPSession
	detached atomic.Bool

	events emitter

	mu         sync.Mutex
	subscribed map[string]bool
}

// NewPlaywrightTransport wraps session. The caller keeps ownership of the
// page the session was created for.
func NewPlaywrightTransport(session playwright.CDPSession) *PlaywrightTransport {
	return &PlaywrightTransport{
		session:    session,
		subscribed: make(map[string]bool),
	}
}

// Send implements Transport. playwright calls are not context aware, so the
// call runs in its own goroutine and ctx only bounds the wait.
func (t *PlaywrightTransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.IsActive() {
		return nil, fmt.Errorf("%s: %w", method, ErrSessionClosed)
	}
	args, err := toParamMap(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}

	type reply struct {
		raw json.RawMessage
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := t.session.Send(method, args)
		if err != nil {
			done <- reply{err: wrap(method, err)}
			return
		}
		raw, err := json.Marshal(res)
		if err != nil {
			done <- reply{err: fmt.Errorf("encode %s result: %w", method, err)}
			return
		}
		done <- reply{raw: raw}
	}()

	select {
	case r := <-done:
		if r.err != nil && IsCritical(r.err) {
			t.detached.Store(true)
		}
		return r.raw, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s response: %w", method, ctx.Err())
	}
}

// On implements Transport.
func (t *PlaywrightTransport) On(event string, handler EventHandler) ListenerID {
	t.subscribe(event)
	return t.events.add(event, handler, false)
}

// Once implements Transport.
func (t *PlaywrightTransport) Once(event string, handler EventHandler) ListenerID {
	t.subscribe(event)
	return t.events.add(event, handler, true)
}

// Off implements Transport.
func (t *PlaywrightTransport) Off(event string, id ListenerID) {
	t.events.remove(event, id)
}

// subscribe attaches the session listener for event on first use. It stays
// attached for the life of the session.
func (t *PlaywrightTransport) subscribe(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribed[event] {
		return
	}
	t.subscribed[event] = true
	t.session.On(event, func(payload interface{}) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		t.events.emit(event, raw)
	})
}

// IsActive implements Transport.
func (t *PlaywrightTransport) IsActive() bool {
	return !t.detached.Load()
}

// Close detaches the session.
func (t *PlaywrightTransport) Close() error {
	if t.detached.Swap(true) {
		return nil
	}
	t.events.reset()
	if err := t.session.Detach(); err != nil {
		return wrap("detach", err)
	}
	return nil
}

func toParamMap(params any) (map[string]interface{}, error) {
	if params == nil {
		return nil, nil
	}
	if m, ok := params.(map[string]interface{}); ok {
		return m, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright %s: %w", method, err)
}
