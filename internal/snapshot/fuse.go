package snapshot

import (
	"context"
	"strings"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

// FuseOptions parameterises Fuse.
type FuseOptions struct {
	Extract ExtractOptions
	// LoaderIDs maps frame ids to the loader id of their current document.
	LoaderIDs map[string]string
}

// walkState is what a node inherits from its ancestors.
type walkState struct {
	region     Region
	inDialog   bool
	ariaHidden bool
	groupPath  []string
}

type fuser struct {
	tree   *DomTree
	ax     *axIndex
	layout LayoutProvider
	opts   FuseOptions
	vp     Viewport
	out    []ReadableNode
}

// Fuse merges an ingested DOM tree, its accessibility nodes and layout data
// into readable nodes in pre-order. Only critical transport failures and
// context cancellation abort the walk; any other box query failure makes the
// node invisible.
func Fuse(ctx context.Context, tree *DomTree, ax []*RawAxNode, layout LayoutProvider, opts FuseOptions) ([]ReadableNode, error) {
	if tree == nil || tree.Node(tree.Root) == nil {
		return nil, nil
	}
	f := &fuser{
		tree:   tree,
		ax:     newAXIndex(ax),
		layout: layout,
		opts:   opts,
	}
	if layout != nil {
		f.vp = layout.Viewport()
	}
	if err := f.walk(ctx, tree.Node(tree.Root), walkState{region: RegionUnknown}); err != nil {
		return nil, err
	}
	return f.out, nil
}

func (f *fuser) walk(ctx context.Context, n *RawDomNode, st walkState) error {
	if n == nil || skippedTags[n.Tag] {
		return nil
	}
	child := st
	if n.isElement() {
		var err error
		child, err = f.visit(ctx, n, st)
		if err != nil {
			return err
		}
	}
	for _, id := range n.ChildIDs {
		if err := f.walk(ctx, f.tree.Node(id), child); err != nil {
			return err
		}
	}
	return nil
}

// visit emits n when it qualifies and returns the state its children
// inherit.
func (f *fuser) visit(ctx context.Context, n *RawDomNode, st walkState) (walkState, error) {
	hidden := st.ariaHidden || strings.EqualFold(n.Attr("aria-hidden"), "true")
	ax := f.ax.lookup(n)
	kind, ok := Classify(n, ax)

	var label string
	var source LabelSource
	if ok {
		label, source = ResolveLabel(n, ax, f.tree.ByElementID)
		if source == SourceNone && textBearing[kind] {
			if t := normalizeLabel(f.subtreeText(n)); t != "" {
				label, source = t, SourceTextContent
			}
		}
		if IsInteractiveKind(kind) || label != "" || keptWithoutLabel[kind] {
			node, err := f.build(ctx, n, ax, kind, label, source, st, hidden)
			if err != nil {
				return st, err
			}
			f.out = append(f.out, node)
		}
	}

	child := st
	child.ariaHidden = hidden
	if isDialogNode(n, kind) {
		child.inDialog = true
		child.region = RegionDialog
	} else if r, landmark := landmarkRegion(kind); ok && landmark && !st.inDialog {
		child.region = r
	}
	if ok && groupingKinds[kind] && label != "" {
		path := make([]string, len(st.groupPath), len(st.groupPath)+1)
		copy(path, st.groupPath)
		child.groupPath = append(path, label)
	}
	return child, nil
}

func (f *fuser) build(ctx context.Context, n *RawDomNode, ax *RawAxNode, kind NodeKind, label string, source LabelSource, st walkState, hidden bool) (ReadableNode, error) {
	node := ReadableNode{
		NodeID:        n.NodeID,
		BackendNodeID: n.BackendNodeID,
		FrameID:       n.FrameID,
		LoaderID:      f.opts.LoaderIDs[n.FrameID],
		Kind:          kind,
		Label:         label,
		LabelSource:   source,
		Where:         Where{Region: st.region},
		Attributes:    ExtractAttributes(n, kind, f.opts.Extract, ax),
		Hints: LocatorHints{
			DataTestID: n.Attr("data-testid"),
			Name:       n.Attr("name"),
			AriaLabel:  n.Attr("aria-label"),
		},
	}
	if len(st.groupPath) > 0 {
		node.Where.GroupPath = append([]string(nil), st.groupPath...)
	}

	box, err := f.box(ctx, n.BackendNodeID)
	if err != nil {
		return node, err
	}
	node.Layout = Layout{BBox: box, Zone: ZoneFor(box, f.vp)}

	node.State.Visible = box != nil && box.Width > 0 && box.Height > 0 &&
		!hidden && !n.HasAttr("hidden") && !ax.flag("hidden")
	node.State.Enabled = !n.HasAttr("disabled") &&
		!strings.EqualFold(n.Attr("aria-disabled"), "true") && !ax.flag("disabled")
	node.State.Focused = ax.flag("focused")
	return node, nil
}

func (f *fuser) box(ctx context.Context, id BackendNodeID) (*BBox, error) {
	if f.layout == nil || id == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	box, err := f.layout.Box(ctx, id)
	if err != nil {
		if cdp.IsCritical(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, nil
	}
	return box, nil
}

// subtreeText joins every descendant text node, skipping script-like
// subtrees.
func (f *fuser) subtreeText(n *RawDomNode) string {
	var b strings.Builder
	var rec func(*RawDomNode)
	rec = func(c *RawDomNode) {
		if c == nil || skippedTags[c.Tag] || b.Len() > 4*MaxLabelLength {
			return
		}
		if c.isText() {
			b.WriteString(c.Text)
			b.WriteByte(' ')
			return
		}
		for _, id := range c.ChildIDs {
			rec(f.tree.Node(id))
		}
	}
	rec(n)
	return b.String()
}
