package action

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp/cdptest"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/element"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/stabilize"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/store"
)

const pageID = "page-1"

func form(button string) *cdptest.Node {
	return cdptest.El("main", nil,
		cdptest.El("input", map[string]string{"name": "email"}).AX("textbox", "Email"),
		cdptest.El("button", nil, cdptest.Text(button)).AX("button", button),
	)
}

type fixture struct {
	page     *cdptest.Page
	handle   cdp.Handle
	compiler *snapshot.Compiler
	exec     *Executor
}

func newFixture() *fixture {
	p := cdptest.NewPage(form("Save"))
	c := snapshot.NewCompiler(zerolog.Nop(), snapshot.DefaultOptions())
	return &fixture{
		page:     p,
		handle:   p.PageHandle(pageID),
		compiler: c,
		exec:     NewExecutor(zerolog.Nop(), c, stabilize.New(zerolog.Nop()), stabilize.DefaultOptions()),
	}
}

func (f *fixture) node(t require.TestingT, label string, kind snapshot.NodeKind) snapshot.ReadableNode {
	snap, err := f.compiler.Compile(context.Background(), f.handle)
	require.NoError(t, err)
	n, ok := element.FindByLabelKind(snap, label, kind)
	require.True(t, ok, "no %s %q in snapshot", kind, label)
	return n
}

func TestIsStale(t *testing.T) {
	stale := []error{
		&cdp.ProtocolError{Method: "DOM.getBoxModel", Code: -32000, Message: "No node found for given backend id"},
		&cdp.ProtocolError{Method: "DOM.focus", Code: -32000, Message: "No node with given id found"},
		&cdp.ProtocolError{Method: "DOM.scrollIntoViewIfNeeded", Code: -32000, Message: "Node does not have a layout object"},
		errors.New("Could not find node with given id"),
		errors.New("click: Node is detached from document"),
		errors.New("NODE HAS BEEN DELETED"),
	}
	for _, err := range stale {
		assert.True(t, IsStale(err), err.Error())
	}
	for _, err := range []error{nil, errors.New("element is not clickable"), cdp.ErrSessionClosed} {
		assert.False(t, IsStale(err))
	}
}

func TestExecuteClickSucceeds(t *testing.T) {
	f := newFixture()
	save := f.node(t, "Save", snapshot.KindButton)

	res, err := f.exec.ExecuteWithRetry(context.Background(), f.handle, save, Click(), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Retried)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Error)
	assert.Equal(t, stabilize.StatusStable, res.Stabilization.Status)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, pageID, res.Snapshot.PageID)

	events := f.page.Calls("Input.dispatchMouseEvent")
	require.Len(t, events, 3)
	var pressed struct {
		Type       string  `json:"type"`
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Button     string  `json:"button"`
		ClickCount int     `json:"clickCount"`
	}
	require.NoError(t, json.Unmarshal(events[1].Params, &pressed))
	assert.Equal(t, "mousePressed", pressed.Type)
	assert.Equal(t, "left", pressed.Button)
	assert.Equal(t, 1, pressed.ClickCount)
	require.NotNil(t, save.Layout.BBox)
	assert.InDelta(t, save.Layout.BBox.X+save.Layout.BBox.Width/2, pressed.X, 1e-9)
	assert.InDelta(t, save.Layout.BBox.Y+save.Layout.BBox.Height/2, pressed.Y, 1e-9)
}

func TestExecuteTypeText(t *testing.T) {
	f := newFixture()
	email := f.node(t, "Email", snapshot.KindInput)

	res, err := f.exec.ExecuteWithRetry(context.Background(), f.handle, email, TypeText("me@example.test"), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	focus := f.page.Calls("DOM.focus")
	require.Len(t, focus, 1)
	assert.JSONEq(t, `{"backendNodeId":`+jsonNumber(int64(email.BackendNodeID))+`}`, string(focus[0].Params))

	inserted := f.page.Calls("Input.insertText")
	require.Len(t, inserted, 1)
	assert.JSONEq(t, `{"text":"me@example.test"}`, string(inserted[0].Params))
}

func TestExecuteRetriesStaleReference(t *testing.T) {
	f := newFixture()
	save := f.node(t, "Save", snapshot.KindButton)
	st := store.NewMemoryStore()

	f.page.SetBody(form("Save"))
	require.False(t, f.page.Has(int64(save.BackendNodeID)))

	res, err := f.exec.ExecuteWithRetry(context.Background(), f.handle, save, Click(), st)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Retried)
	assert.Equal(t, 2, res.Attempts)
	assert.Empty(t, res.Error)
	assert.Contains(t, res.Note, "retried")
	assert.NotEqual(t, save.BackendNodeID, res.Node.BackendNodeID)
	assert.Equal(t, "Save", res.Node.Label)
	assert.Len(t, f.page.Calls("DOM.scrollIntoViewIfNeeded"), 2)

	stored, ok, err := st.GetByPageID(context.Background(), pageID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Snapshot.ID, stored.ID, "final snapshot replaces the retry snapshot")
}

func TestExecuteRetryFindsNoMatch(t *testing.T) {
	f := newFixture()
	save := f.node(t, "Save", snapshot.KindButton)
	f.page.SetBody(form("Cancel"))

	res, err := f.exec.ExecuteWithRetry(context.Background(), f.handle, save, Click(), nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Retried)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, `Retry failed: no button labelled "Save" in the refreshed snapshot`, res.Error)
	require.NotNil(t, res.Snapshot, "a final snapshot is taken even on failure")
	_, ok := element.FindByLabelKind(res.Snapshot, "Cancel", snapshot.KindButton)
	assert.True(t, ok)
}

func TestExecuteNonStaleErrorIsNotRetried(t *testing.T) {
	f := newFixture()
	save := f.node(t, "Save", snapshot.KindButton)

	var calls int
	act := func(context.Context, cdp.Handle, snapshot.BackendNodeID) error {
		calls++
		return errors.New("element is not clickable")
	}
	res, err := f.exec.ExecuteWithRetry(context.Background(), f.handle, save, act, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, res.Success)
	assert.False(t, res.Retried)
	assert.Equal(t, `button "Save": element is not clickable`, res.Error)
	assert.NotNil(t, res.Snapshot)
}

func TestExecuteClickWithoutBox(t *testing.T) {
	p := cdptest.NewPage(cdptest.El("button", nil, cdptest.Text("Ghost")).AX("button", "Ghost").Invisible())
	h := p.PageHandle(pageID)
	c := snapshot.NewCompiler(zerolog.Nop(), snapshot.DefaultOptions())
	snap, err := c.Compile(context.Background(), h)
	require.NoError(t, err)
	ghost, ok := element.FindByLabelKind(snap, "Ghost", snapshot.KindButton)
	require.True(t, ok)
	assert.False(t, ghost.State.Visible)

	exec := NewExecutor(zerolog.Nop(), c, stabilize.New(zerolog.Nop()), stabilize.DefaultOptions())
	res, err := exec.ExecuteWithRetry(context.Background(), h, ghost, Click(), nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Retried)
	assert.Contains(t, res.Error, "Could not compute box model.")
	assert.Empty(t, p.Calls("Input.dispatchMouseEvent"))
}

func TestExecuteCriticalErrorsPropagate(t *testing.T) {
	f := newFixture()
	save := f.node(t, "Save", snapshot.KindButton)

	crash := func(context.Context, cdp.Handle, snapshot.BackendNodeID) error {
		return &cdp.ProtocolError{Method: "Input.dispatchMouseEvent", Code: -32000, Message: "Target closed."}
	}
	res, err := f.exec.ExecuteWithRetry(context.Background(), f.handle, save, crash, nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, cdp.IsCritical(err))
	assert.Contains(t, err.Error(), `button "Save"`)

	require.NoError(t, f.page.Close())
	_, err = f.exec.ExecuteWithRetry(context.Background(), f.handle, save, Click(), nil)
	assert.ErrorIs(t, err, cdp.ErrSessionClosed)

	_, err = f.exec.ExecuteWithRetry(context.Background(), cdp.Handle{PageID: "none"}, save, Click(), nil)
	assert.Error(t, err)
}

type failingCompiler struct{ err error }

func (c failingCompiler) Compile(context.Context, cdp.Handle) (*snapshot.Snapshot, error) {
	return nil, c.err
}

func TestExecuteRecompileFailure(t *testing.T) {
	f := newFixture()
	save := f.node(t, "Save", snapshot.KindButton)

	exec := NewExecutor(zerolog.Nop(), failingCompiler{err: errors.New("DOM.getDocument: boom")}, stabilize.New(zerolog.Nop()), stabilize.DefaultOptions())
	stale := func(context.Context, cdp.Handle, snapshot.BackendNodeID) error {
		return errors.New("Node has been deleted")
	}
	res, err := exec.ExecuteWithRetry(context.Background(), f.handle, save, stale, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Retry failed: recompile")
	assert.Nil(t, res.Snapshot)
	assert.Contains(t, res.Warning, "final snapshot")

	exec = NewExecutor(zerolog.Nop(), failingCompiler{err: cdp.ErrSessionClosed}, stabilize.New(zerolog.Nop()), stabilize.DefaultOptions())
	_, err = exec.ExecuteWithRetry(context.Background(), f.handle, save, stale, nil)
	assert.ErrorIs(t, err, cdp.ErrSessionClosed)
}

func TestExecuteRetriesAtMostOnce(t *testing.T) {
	staleErrs := []string{
		"No node found for given backend id",
		"Node is detached from document",
		"Could not find node with given id",
		"Node has been deleted",
	}
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture()
		save := f.node(t, "Save", snapshot.KindButton)

		first := rapid.SampledFrom(staleErrs).Draw(t, "first")
		second := rapid.SampledFrom(append([]string{"", "element is not clickable"}, staleErrs...)).Draw(t, "second")

		var calls atomic.Int32
		act := func(context.Context, cdp.Handle, snapshot.BackendNodeID) error {
			n := calls.Add(1)
			if n == 1 {
				return errors.New(first)
			}
			if second == "" {
				return nil
			}
			return errors.New(second)
		}

		res, err := f.exec.ExecuteWithRetry(context.Background(), f.handle, save, act, nil)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
		assert.True(t, res.Retried)
		assert.Equal(t, second == "", res.Success)
		if second != "" {
			assert.Contains(t, res.Error, "Retry failed: ")
		}
		assert.NotNil(t, res.Snapshot)
	})
}

func jsonNumber(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
