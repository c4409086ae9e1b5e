package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

// MaxDOMDepth caps DOM retrieval depth, also when unlimited depth (-1) is
// requested.
const MaxDOMDepth = 50

// Options configures a Compiler.
type Options struct {
	Depth   int            `yaml:"depth"`
	Pierce  bool           `yaml:"pierce"`
	Extract ExtractOptions `yaml:"extract"`
}

// DefaultOptions requests the full pierced tree with default extraction.
func DefaultOptions() Options {
	return Options{Depth: -1, Pierce: true, Extract: DefaultExtractOptions()}
}

// EffectiveDepth clamps a requested depth into [1, MaxDOMDepth]. Zero and
// negative values mean "as deep as allowed".
func EffectiveDepth(depth int) int {
	if depth <= 0 || depth > MaxDOMDepth {
		return MaxDOMDepth
	}
	return depth
}

// Compiler turns the live state of a page into a Snapshot.
type Compiler struct {
	logger zerolog.Logger
	opts   Options
	now    func() time.Time
	newID  func() string
}

// NewCompiler creates a compiler.
func NewCompiler(logger zerolog.Logger, opts Options) *Compiler {
	return &Compiler{
		logger: logger.With().Str("comp", "snapshot").Logger(),
		opts:   opts,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Compile captures the DOM and accessibility trees of the page behind h
// and fuses them into a new snapshot. Box model queries are issued one at a
// time on the page's transport.
func (c *Compiler) Compile(ctx context.Context, h cdp.Handle) (*Snapshot, error) {
	if h.Conn == nil {
		return nil, errors.New("compile snapshot: nil transport")
	}
	start := c.now()
	log := c.logger.With().Str("page", h.PageID).Logger()

	url, loaders, err := frameInfo(ctx, h.Conn)
	if err != nil {
		if cdp.IsCritical(err) {
			return nil, fmt.Errorf("compile snapshot: %w", err)
		}
		log.Debug().Err(err).Msg("frame tree unavailable")
	}

	depth := EffectiveDepth(c.opts.Depth)
	doc, err := cdp.Call[dom.GetDocumentReturns](ctx, h.Conn, dom.CommandGetDocument,
		dom.GetDocument().WithDepth(int64(depth)).WithPierce(c.opts.Pierce))
	if err != nil {
		return nil, fmt.Errorf("compile snapshot: %w", err)
	}
	tree := IngestDOM(doc.Root)

	var axNodes []*RawAxNode
	axTree, err := cdp.Call[accessibility.GetFullAXTreeReturns](ctx, h.Conn, accessibility.CommandGetFullAXTree, accessibility.GetFullAXTree())
	switch {
	case err == nil:
		axNodes = IngestAX(axTree.Nodes)
	case cdp.IsCritical(err):
		return nil, fmt.Errorf("compile snapshot: %w", err)
	default:
		log.Debug().Err(err).Msg("accessibility tree unavailable, labels fall back to DOM")
	}

	layout, err := NewCDPLayout(ctx, h.Conn)
	if err != nil {
		if cdp.IsCritical(err) {
			return nil, fmt.Errorf("compile snapshot: %w", err)
		}
		log.Debug().Err(err).Msg("viewport unavailable, zones unknown")
		layout = &CDPLayout{conn: h.Conn}
	}

	nodes, err := Fuse(ctx, tree, axNodes, layout, FuseOptions{Extract: c.opts.Extract, LoaderIDs: loaders})
	if err != nil {
		return nil, fmt.Errorf("compile snapshot: %w", err)
	}

	snap := newSnapshot(c.newID(), h.PageID, url, c.now(), layout.Viewport(), nodes)
	log.Debug().
		Str("snapshot", snap.ID).
		Int("nodes", snap.NodeCount).
		Int("interactive", snap.InteractiveCount).
		Int("dom_nodes", len(tree.Nodes)).
		Int("ax_nodes", len(axNodes)).
		Dur("took", c.now().Sub(start)).
		Msg("snapshot compiled")
	return snap, nil
}

// frameInfo returns the main frame URL and the loader id of every frame.
func frameInfo(ctx context.Context, conn cdp.Transport) (string, map[string]string, error) {
	res, err := cdp.Call[page.GetFrameTreeReturns](ctx, conn, page.CommandGetFrameTree, nil)
	if err != nil {
		return "", nil, err
	}
	if res.FrameTree == nil || res.FrameTree.Frame == nil {
		return "", nil, nil
	}
	loaders := make(map[string]string)
	var rec func(*page.FrameTree)
	rec = func(ft *page.FrameTree) {
		if ft == nil || ft.Frame == nil {
			return
		}
		loaders[string(ft.Frame.ID)] = string(ft.Frame.LoaderID)
		for _, child := range ft.ChildFrames {
			rec(child)
		}
	}
	rec(res.FrameTree)
	return res.FrameTree.Frame.URL, loaders, nil
}
