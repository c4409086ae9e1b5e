package action

import (
	"context"
	"errors"
	"fmt"

	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

// Action performs one interaction against the element with the given
// backend node id.
type Action func(ctx context.Context, h cdp.Handle, id snapshot.BackendNodeID) error

// ErrNoBox is returned when an element to click has no rendered box.
var ErrNoBox = errors.New("element has no rendered box")

// Click scrolls the element into view and clicks the centre of its border box.
func Click() Action {
	return func(ctx context.Context, h cdp.Handle, id snapshot.BackendNodeID) error {
		backend := cdptypes.BackendNodeID(id)
		if err := cdp.Exec(ctx, h.Conn, dom.CommandScrollIntoViewIfNeeded, dom.ScrollIntoViewIfNeeded().WithBackendNodeID(backend)); err != nil {
			return fmt.Errorf("click: %w", err)
		}
		box, err := cdp.Call[dom.GetBoxModelReturns](ctx, h.Conn, dom.CommandGetBoxModel, dom.GetBoxModel().WithBackendNodeID(backend))
		if err != nil {
			return fmt.Errorf("click: %w", err)
		}
		if box.Model == nil {
			return fmt.Errorf("click: %w", ErrNoBox)
		}
		x, y, ok := centre(box.Model.Border)
		if !ok {
			return fmt.Errorf("click: %w", ErrNoBox)
		}
		for _, typ := range []input.MouseType{input.MouseMoved, input.MousePressed, input.MouseReleased} {
			ev := input.DispatchMouseEvent(typ, x, y)
			if typ != input.MouseMoved {
				ev = ev.WithButton(input.Left).WithClickCount(1)
			}
			if err := cdp.Exec(ctx, h.Conn, input.CommandDispatchMouseEvent, ev); err != nil {
				return fmt.Errorf("click: %s: %w", typ, err)
			}
		}
		return nil
	}
}

// Focus moves keyboard focus to the element.
func Focus() Action {
	return func(ctx context.Context, h cdp.Handle, id snapshot.BackendNodeID) error {
		if err := cdp.Exec(ctx, h.Conn, dom.CommandFocus, dom.Focus().WithBackendNodeID(cdptypes.BackendNodeID(id))); err != nil {
			return fmt.Errorf("focus: %w", err)
		}
		return nil
	}
}

// TypeText focuses the element and inserts text at the caret.
func TypeText(text string) Action {
	focus := Focus()
	return func(ctx context.Context, h cdp.Handle, id snapshot.BackendNodeID) error {
		if err := focus(ctx, h, id); err != nil {
			return fmt.Errorf("type: %w", err)
		}
		if err := cdp.Exec(ctx, h.Conn, input.CommandInsertText, input.InsertText(text)); err != nil {
			return fmt.Errorf("type: %w", err)
		}
		return nil
	}
}

func centre(q dom.Quad) (float64, float64, bool) {
	if len(q) < 8 {
		return 0, 0, false
	}
	x := (q[0] + q[2] + q[4] + q[6]) / 4
	y := (q[1] + q[3] + q[5] + q[7]) / 4
	return x, y, true
}
