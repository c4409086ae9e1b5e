package cdp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterOnceFiresOnce(t *testing.T) {
	var e emitter
	calls := 0
	e.add("Page.loadEventFired", func(json.RawMessage) { calls++ }, true)
	assert.True(t, e.has("Page.loadEventFired"))

	e.emit("Page.loadEventFired", nil)
	e.emit("Page.loadEventFired", nil)
	assert.Equal(t, 1, calls)
	assert.False(t, e.has("Page.loadEventFired"))
}

func TestEmitterOffDuringEmit(t *testing.T) {
	var e emitter
	var got []string
	var second ListenerID
	e.add("DOM.documentUpdated", func(json.RawMessage) {
		got = append(got, "first")
		e.remove("DOM.documentUpdated", second)
	}, false)
	second = e.add("DOM.documentUpdated", func(json.RawMessage) { got = append(got, "second") }, false)

	e.emit("DOM.documentUpdated", nil)
	e.emit("DOM.documentUpdated", nil)
	assert.Equal(t, []string{"first", "second", "first"}, got)
}

func TestEmitterPassesParams(t *testing.T) {
	var e emitter
	var got json.RawMessage
	e.add("Network.loadingFinished", func(raw json.RawMessage) { got = raw }, false)
	e.emit("Network.loadingFinished", json.RawMessage(`{"requestId":"1"}`))
	assert.JSONEq(t, `{"requestId":"1"}`, string(got))

	e.emit("Network.loadingFailed", nil)
}

func TestEmitterRemoveAndReset(t *testing.T) {
	var e emitter
	a := e.add("x", func(json.RawMessage) {}, false)
	b := e.add("x", func(json.RawMessage) {}, false)
	assert.NotEqual(t, a, b)

	e.remove("x", a)
	assert.True(t, e.has("x"))
	e.remove("x", 999)
	assert.True(t, e.has("x"))
	e.remove("x", b)
	assert.False(t, e.has("x"))

	e.add("y", func(json.RawMessage) { t.Fatal("handler ran after reset") }, false)
	e.reset()
	e.emit("y", nil)
	assert.False(t, e.has("y"))
}
