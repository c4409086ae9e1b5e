package snapshot

import (
	"context"
	"fmt"
	"math"
	"strings"

	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

// LayoutProvider resolves the geometry the compiler needs. Box returns a
// nil box with a nil error for nodes that are not rendered.
type LayoutProvider interface {
	Box(ctx context.Context, id BackendNodeID) (*BBox, error)
	Viewport() Viewport
}

// CDPLayout answers box queries with DOM.getBoxModel.
type CDPLayout struct {
	conn cdp.Transport
	vp   Viewport
}

// NewCDPLayout reads the visual viewport once so every box of a compile is
// measured against the same viewport.
func NewCDPLayout(ctx context.Context, conn cdp.Transport) (*CDPLayout, error) {
	m, err := cdp.Call[page.GetLayoutMetricsReturns](ctx, conn, page.CommandGetLayoutMetrics, nil)
	if err != nil {
		return nil, fmt.Errorf("layout metrics: %w", err)
	}
	l := &CDPLayout{conn: conn}
	switch {
	case m.CSSVisualViewport != nil:
		l.vp = Viewport{Width: m.CSSVisualViewport.ClientWidth, Height: m.CSSVisualViewport.ClientHeight}
	case m.CSSLayoutViewport != nil:
		l.vp = Viewport{Width: float64(m.CSSLayoutViewport.ClientWidth), Height: float64(m.CSSLayoutViewport.ClientHeight)}
	}
	return l, nil
}

// Viewport implements LayoutProvider.
func (l *CDPLayout) Viewport() Viewport { return l.vp }

// Box implements LayoutProvider. Nodes the browser cannot lay out yield a
// nil box; other failures are returned for the caller to judge.
func (l *CDPLayout) Box(ctx context.Context, id BackendNodeID) (*BBox, error) {
	params := dom.GetBoxModel().WithBackendNodeID(cdptypes.BackendNodeID(id))
	res, err := cdp.Call[dom.GetBoxModelReturns](ctx, l.conn, dom.CommandGetBoxModel, params)
	if err != nil {
		if isUnrendered(err) {
			return nil, nil
		}
		return nil, err
	}
	if res.Model == nil {
		return nil, nil
	}
	return quadBox(res.Model.Border), nil
}

func isUnrendered(err error) bool {
	msg := err.Error()
	return containsFold(msg, "could not compute box model") || containsFold(msg, "no node found")
}

// quadBox converts a border quad to an axis-aligned box.
func quadBox(q dom.Quad) *BBox {
	if len(q) < 8 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(q); i += 2 {
		minX = math.Min(minX, q[i])
		maxX = math.Max(maxX, q[i])
		minY = math.Min(minY, q[i+1])
		maxY = math.Max(maxY, q[i+1])
	}
	return &BBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ZoneFor places a box relative to a viewport. Boxes inside the viewport
// are split into thirds by their vertical centre.
func ZoneFor(b *BBox, vp Viewport) ScreenZone {
	if b == nil || vp.Height <= 0 {
		return ZoneUnknown
	}
	if b.Y+b.Height <= 0 {
		return ZoneAboveViewport
	}
	if b.Y >= vp.Height {
		return ZoneBelowFold
	}
	cy := math.Max(0, math.Min(vp.Height, b.Y+b.Height/2))
	switch {
	case cy < vp.Height/3:
		return ZoneTop
	case cy < 2*vp.Height/3:
		return ZoneCenter
	default:
		return ZoneBottom
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
