package element

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

var (
	hexEID      = regexp.MustCompile(`^[0-9a-f]{16}$`)
	readableEID = regexp.MustCompile(`^rd-[0-9a-f]{10}$`)
	layers      = []snapshot.Layer{snapshot.LayerMain, snapshot.LayerModal, snapshot.LayerDrawer, snapshot.LayerPopover}
)

func drawNode(t *rapid.T) snapshot.ReadableNode {
	return snapshot.ReadableNode{
		NodeID: snapshot.NodeID(rapid.Int64Range(1, 1000).Draw(t, "id")),
		Kind:   rapid.SampledFrom(snapshot.Kinds()).Draw(t, "kind"),
		Label:  rapid.String().Draw(t, "label"),
	}
}

func TestEIDIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := drawNode(t)
		layer := rapid.SampledFrom(layers).Draw(t, "layer")

		first := EID(n, layer)
		assert.Equal(t, first, EID(n, layer))
		assert.Regexp(t, hexEID, first)
		assert.Regexp(t, readableEID, ReadableEID(n, layer))

		// Only kind, label and layer feed the digest.
		moved := n
		moved.NodeID += 7
		moved.BackendNodeID = 99
		moved.Where.Region = snapshot.RegionFooter
		assert.Equal(t, first, EID(moved, layer))
	})
}

func TestEIDIsSensitive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := drawNode(t)
		layer := rapid.SampledFrom(layers).Draw(t, "layer")
		base := EID(n, layer)

		other := rapid.SampledFrom(layers).Filter(func(l snapshot.Layer) bool { return l != layer }).Draw(t, "other")
		assert.NotEqual(t, base, EID(n, other))

		relabelled := n
		relabelled.Label = n.Label + rapid.StringN(1, 8, -1).Draw(t, "suffix")
		assert.NotEqual(t, base, EID(relabelled, layer))

		rekinded := n
		rekinded.Kind = rapid.SampledFrom(snapshot.Kinds()).Filter(func(k snapshot.NodeKind) bool { return k != n.Kind }).Draw(t, "kind2")
		assert.NotEqual(t, base, EID(rekinded, layer))
	})
}

func TestEIDCanonicalEncoding(t *testing.T) {
	// A separator inside the label must not collide with a split tuple.
	a := snapshot.ReadableNode{Kind: snapshot.KindButton, Label: `a","main`}
	b := snapshot.ReadableNode{Kind: snapshot.KindButton, Label: "a"}
	assert.NotEqual(t, EID(a, snapshot.LayerMain), EID(b, snapshot.LayerMain))
}

func TestDuplicatesShareEID(t *testing.T) {
	a := snapshot.ReadableNode{NodeID: 1, Kind: snapshot.KindButton, Label: "Close"}
	b := snapshot.ReadableNode{NodeID: 2, Kind: snapshot.KindButton, Label: "Close"}
	assert.Equal(t, EID(a, snapshot.LayerMain), EID(b, snapshot.LayerMain))

	b.Where.Region = snapshot.RegionDialog
	assert.NotEqual(t, NodeEID(a), NodeEID(b), "same control in a modal gets its own eid")
}

func TestNodeEID(t *testing.T) {
	p := snapshot.ReadableNode{Kind: snapshot.KindParagraph, Label: "Hello"}
	assert.Equal(t, ReadableEID(p, snapshot.LayerMain), NodeEID(p))
	btn := snapshot.ReadableNode{Kind: snapshot.KindButton, Label: "Hello"}
	assert.Equal(t, EID(btn, snapshot.LayerMain), NodeEID(btn))
}

func TestFindByEID(t *testing.T) {
	snap := &snapshot.Snapshot{Nodes: []snapshot.ReadableNode{
		{NodeID: 1, Kind: snapshot.KindButton, Label: "Save"},
		{NodeID: 2, Kind: snapshot.KindButton, Label: "Save"},
		{NodeID: 3, Kind: snapshot.KindButton, Label: "Save", Where: snapshot.Where{Region: snapshot.RegionDialog}},
		{NodeID: 4, Kind: snapshot.KindHeading, Label: "Intro"},
	}}

	n, ok := FindByEID(snap, EID(snap.Nodes[0], snapshot.LayerMain))
	require.True(t, ok)
	assert.Equal(t, snapshot.NodeID(1), n.NodeID, "first duplicate wins")

	n, ok = FindByEID(snap, EID(snap.Nodes[2], snapshot.LayerModal))
	require.True(t, ok)
	assert.Equal(t, snapshot.NodeID(3), n.NodeID)

	n, ok = FindByEID(snap, NodeEID(snap.Nodes[3]))
	require.True(t, ok)
	assert.Equal(t, snapshot.NodeID(4), n.NodeID)

	_, ok = FindByEID(snap, "0000000000000000")
	assert.False(t, ok)
	_, ok = FindByEID(nil, "x")
	assert.False(t, ok)

	n, ok = FindByLabelKind(snap, "Save", snapshot.KindButton)
	require.True(t, ok)
	assert.Equal(t, snapshot.NodeID(1), n.NodeID)
	_, ok = FindByLabelKind(snap, "Save", snapshot.KindLink)
	assert.False(t, ok)
}
