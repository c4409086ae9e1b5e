package cdp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport is the narrow command/event surface the snapshot engine needs
// from a DevTools connection. One Transport is owned by one page chain.
type Transport interface {
	// Send issues a protocol command and returns its raw result object.
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	// On registers handler for every occurrence of event.
	On(event string, handler EventHandler) ListenerID
	// Off removes a handler registered with On or Once.
	Off(event string, id ListenerID)
	// Once registers handler for the next occurrence of event only.
	Once(event string, handler EventHandler) ListenerID
	Close() error
	IsActive() bool
}

// EventHandler receives the raw params object of a protocol event.
type EventHandler func(params json.RawMessage)

// ListenerID identifies a registered event handler.
type ListenerID uint64

// Handle binds a page identity to the transport that drives it.
type Handle struct {
	PageID string
	Conn   Transport
}

// Call sends method and decodes the result into T.
func Call[T any](ctx context.Context, t Transport, method string, params any) (T, error) {
	var out T
	raw, err := t.Send(ctx, method, params)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", method, err)
	}
	return out, nil
}

// Exec sends method and discards the result.
func Exec(ctx context.Context, t Transport, method string, params any) error {
	_, err := t.Send(ctx, method, params)
	return err
}
