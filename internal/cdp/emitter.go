package cdp

import (
	"encoding/json"
	"sync"
)

type listener struct {
	id      ListenerID
	handler EventHandler
	once    bool
}

// emitter is the listener registry shared by the transports.
type emitter struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[string][]listener
}

func (e *emitter) add(event string, handler EventHandler, once bool) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]listener)
	}
	e.nextID++
	e.listeners[event] = append(e.listeners[event], listener{id: e.nextID, handler: handler, once: once})
	return e.nextID
}

func (e *emitter) remove(event string, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.listeners[event]
	for i, l := range list {
		if l.id == id {
			e.listeners[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(e.listeners[event]) == 0 {
		delete(e.listeners, event)
	}
}

// has reports whether any handler is registered for event.
func (e *emitter) has(event string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event]) > 0
}

// emit calls the handlers for event outside the lock, dropping once-handlers
// before they run.
func (e *emitter) emit(event string, params json.RawMessage) {
	e.mu.Lock()
	list := e.listeners[event]
	handlers := make([]EventHandler, 0, len(list))
	kept := list[:0:0]
	for _, l := range list {
		handlers = append(handlers, l.handler)
		if !l.once {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, event)
	} else {
		e.listeners[event] = kept
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(params)
	}
}

func (e *emitter) reset() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}
