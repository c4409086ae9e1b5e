// Package cdptest provides a scripted in-memory Transport and a small DOM/AX
// page builder for tests that exercise protocol-level code.
package cdptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

// HandlerFunc answers one command. A json.RawMessage result is returned
// verbatim, anything else is JSON encoded.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Call records one command sent through the fake.
type Call struct {
	Method string
	Params json.RawMessage
}

type listener struct {
	id      cdp.ListenerID
	event   string
	handler cdp.EventHandler
	once    bool
}

// Fake is a Transport whose commands are answered by registered handlers.
type Fake struct {
	mu        sync.Mutex
	handlers  map[string]HandlerFunc
	calls     []Call
	listeners []listener
	nextID    cdp.ListenerID
	closed    bool
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for method, replacing any previous handler.
func (f *Fake) Handle(method string, fn HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = fn
}

// Reply registers a handler that always returns result.
func (f *Fake) Reply(method string, result any) {
	f.Handle(method, func(context.Context, json.RawMessage) (any, error) { return result, nil })
}

// Fail registers a handler that always fails with a protocol error.
func (f *Fake) Fail(method, message string) {
	f.Handle(method, func(context.Context, json.RawMessage) (any, error) {
		return nil, &cdp.ProtocolError{Method: method, Code: -32000, Message: message}
	})
}

// Send implements cdp.Transport.
func (f *Fake) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		raw = b
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", method, cdp.ErrSessionClosed)
	}
	f.calls = append(f.calls, Call{Method: method, Params: raw})
	fn, ok := f.handlers[method]
	f.mu.Unlock()

	if !ok {
		return nil, &cdp.ProtocolError{Method: method, Code: -32601, Message: fmt.Sprintf("'%s' wasn't found", method)}
	}
	res, err := fn(ctx, raw)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return json.RawMessage(`{}`), nil
	}
	if r, ok := res.(json.RawMessage); ok {
		return r, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", method, err)
	}
	return b, nil
}

// Calls returns the commands sent so far, optionally filtered by method.
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// On implements cdp.Transport.
func (f *Fake) On(event string, handler cdp.EventHandler) cdp.ListenerID {
	return f.add(event, handler, false)
}

// Once implements cdp.Transport.
func (f *Fake) Once(event string, handler cdp.EventHandler) cdp.ListenerID {
	return f.add(event, handler, true)
}

func (f *Fake) add(event string, handler cdp.EventHandler, once bool) cdp.ListenerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.listeners = append(f.listeners, listener{id: f.nextID, event: event, handler: handler, once: once})
	return f.nextID
}

// Off implements cdp.Transport.
func (f *Fake) Off(_ string, id cdp.ListenerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.listeners {
		if l.id == id {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return
		}
	}
}

// Emit delivers an event to the registered handlers.
func (f *Fake) Emit(event string, params any) {
	raw, _ := json.Marshal(params)
	f.mu.Lock()
	var fire []cdp.EventHandler
	kept := f.listeners[:0]
	for _, l := range f.listeners {
		if l.event == event {
			fire = append(fire, l.handler)
			if l.once {
				continue
			}
		}
		kept = append(kept, l)
	}
	f.listeners = kept
	f.mu.Unlock()
	for _, h := range fire {
		h(raw)
	}
}

// IsActive implements cdp.Transport.
func (f *Fake) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

// Close implements cdp.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
