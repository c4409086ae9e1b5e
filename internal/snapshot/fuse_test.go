package snapshot

import (
	"context"
	"errors"
	"testing"

	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

type staticLayout struct {
	boxes map[BackendNodeID]*BBox
	err   error
	calls int
}

func (l *staticLayout) Viewport() Viewport { return Viewport{Width: 800, Height: 600} }

func (l *staticLayout) Box(_ context.Context, id BackendNodeID) (*BBox, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if b, ok := l.boxes[id]; ok {
		return b, nil
	}
	return &BBox{X: 1, Y: 1, Width: 10, Height: 10}, nil
}

type treeBuilder struct{ next int64 }

func (b *treeBuilder) node(tag string, attrs []string, children ...*cdptypes.Node) *cdptypes.Node {
	b.next++
	return &cdptypes.Node{
		NodeID:        cdptypes.NodeID(b.next),
		BackendNodeID: cdptypes.BackendNodeID(b.next + 100),
		NodeType:      cdptypes.NodeTypeElement,
		NodeName:      tag,
		LocalName:     tag,
		Attributes:    attrs,
		Children:      children,
	}
}

func (b *treeBuilder) text(s string) *cdptypes.Node {
	b.next++
	return &cdptypes.Node{
		NodeID:        cdptypes.NodeID(b.next),
		BackendNodeID: cdptypes.BackendNodeID(b.next + 100),
		NodeType:      cdptypes.NodeTypeText,
		NodeName:      "#text",
		NodeValue:     s,
	}
}

func (b *treeBuilder) doc(children ...*cdptypes.Node) *cdptypes.Node {
	b.next++
	return &cdptypes.Node{
		NodeID:        cdptypes.NodeID(b.next),
		BackendNodeID: cdptypes.BackendNodeID(b.next + 100),
		NodeType:      cdptypes.NodeTypeDocument,
		NodeName:      "#document",
		FrameID:       "F1",
		Children:      children,
	}
}

func TestFuseRegionsAndGroups(t *testing.T) {
	b := &treeBuilder{}
	root := b.doc(
		b.node("nav", []string{"aria-label", "Primary"},
			b.node("ul", []string{"aria-label", "Links"},
				b.node("li", nil, b.node("a", []string{"href", "/docs", "title", "Docs link"}, b.text("Docs"))),
			),
		),
		b.node("div", []string{"role", "dialog", "aria-label", "Cookies"},
			b.node("nav", nil,
				b.node("button", []string{"aria-label", "Accept"}),
			),
		),
		b.node("div", []string{"aria-modal", "true"},
			b.node("button", []string{"title", "X"}),
		),
		b.node("section", nil,
			b.node("fieldset", []string{"aria-label", "Shipping"},
				b.node("input", []string{"name", "zip"}),
			),
		),
	)
	tree := IngestDOM(root)
	nodes, err := Fuse(context.Background(), tree, nil, &staticLayout{}, FuseOptions{})
	require.NoError(t, err)

	byLabel := map[string]ReadableNode{}
	for _, n := range nodes {
		byLabel[n.Label] = n
	}

	docs := byLabel["Docs link"]
	assert.Equal(t, KindLink, docs.Kind)
	assert.Equal(t, RegionNav, docs.Where.Region)
	assert.Equal(t, []string{"Primary", "Links"}, docs.Where.GroupPath)
	assert.Equal(t, "F1", docs.FrameID)

	accept := byLabel["Accept"]
	assert.Equal(t, RegionDialog, accept.Where.Region, "dialog ancestor beats nearer landmark")
	assert.Equal(t, []string{"Cookies"}, accept.Where.GroupPath)

	assert.Equal(t, RegionDialog, byLabel["X"].Where.Region)

	zip := byLabel["zip"]
	assert.Equal(t, RegionUnknown, zip.Where.Region)
	assert.Equal(t, []string{"Shipping"}, zip.Where.GroupPath)

	item := byLabel["Docs"]
	assert.Equal(t, KindListItem, item.Kind)
	assert.Equal(t, SourceTextContent, item.LabelSource)

	for _, n := range nodes {
		assert.NotEqual(t, KindSection, n.Kind, "unlabelled sections are dropped")
	}
}

func TestFuseAXFallbackByRoleAndLabel(t *testing.T) {
	b := &treeBuilder{}
	btn := b.node("div", []string{"role", "button", "aria-label", "Menu"})
	tree := IngestDOM(b.doc(btn))

	ax := []*RawAxNode{{
		Role:       "button",
		Name:       "Menu",
		Properties: []AxProperty{{Name: "focused", Value: "true"}},
	}}
	nodes, err := Fuse(context.Background(), tree, ax, &staticLayout{}, FuseOptions{})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].State.Focused)
	assert.Equal(t, SourceAXName, nodes[0].LabelSource)
}

func TestFuseLayoutErrors(t *testing.T) {
	b := &treeBuilder{}
	tree := IngestDOM(b.doc(b.node("button", []string{"aria-label", "A"}), b.node("button", []string{"aria-label", "B"})))

	soft := &staticLayout{err: errors.New("Protocol error (DOM.getBoxModel): something odd")}
	nodes, err := Fuse(context.Background(), tree, nil, soft, FuseOptions{})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.False(t, nodes[0].State.Visible)

	hard := &staticLayout{err: cdp.ErrSessionClosed}
	_, err = Fuse(context.Background(), tree, nil, hard, FuseOptions{})
	assert.ErrorIs(t, err, cdp.ErrSessionClosed)
	assert.Equal(t, 1, hard.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fuse(ctx, tree, nil, &staticLayout{}, FuseOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIngestDOMPierces(t *testing.T) {
	b := &treeBuilder{}
	inner := b.doc(b.node("button", []string{"aria-label", "Pay"}))
	inner.FrameID = "F2"
	iframe := b.node("iframe", nil)
	iframe.ContentDocument = inner
	host := b.node("div", nil)
	host.ShadowRoots = []*cdptypes.Node{b.node("button", []string{"aria-label", "Shadow"})}
	tree := IngestDOM(b.doc(iframe, host, b.node("span", []string{"ID", "x", "id", "y"}, b.text(" a "), b.text("b"))))

	nodes, err := Fuse(context.Background(), tree, nil, &staticLayout{}, FuseOptions{LoaderIDs: map[string]string{"F2": "L2"}})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Pay", nodes[0].Label)
	assert.Equal(t, "F2", nodes[0].FrameID)
	assert.Equal(t, "L2", nodes[0].LoaderID)
	assert.Equal(t, "Shadow", nodes[1].Label)
	assert.Equal(t, "F1", nodes[1].FrameID)

	span := tree.ByElementID["x"]
	require.NotNil(t, span)
	assert.Equal(t, "a b", span.Text)
}
