package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

func button(id snapshot.NodeID, label string) snapshot.ReadableNode {
	return snapshot.ReadableNode{
		NodeID: id,
		Kind:   snapshot.KindButton,
		Label:  label,
		Where:  snapshot.Where{Region: snapshot.RegionMain},
		Layout: snapshot.Layout{Zone: snapshot.ZoneCenter},
		State:  snapshot.State{Visible: true, Enabled: true},
	}
}

func TestScore(t *testing.T) {
	plain := snapshot.ReadableNode{
		Kind:  snapshot.KindTab,
		Where: snapshot.Where{Region: snapshot.RegionUnknown},
		State: snapshot.State{Visible: true},
	}
	assert.InDelta(t, 0.6, Score(plain, nil), 1e-9, "base plus default kind weight")

	link := plain
	link.Kind = snapshot.KindLink
	link.State.Enabled = true
	link.Label = "  "
	assert.InDelta(t, 0.85, Score(link, nil), 1e-9)

	slider := plain
	slider.Kind = snapshot.KindSlider
	slider.Where.Region = snapshot.RegionDialog
	slider.Layout.Zone = snapshot.ZoneBelowFold
	assert.InDelta(t, 0.85, Score(slider, nil), 1e-9)

	input := plain
	input.Kind = snapshot.KindInput
	input.Label = "Email"
	assert.InDelta(t, 0.95, Score(input, nil), 1e-9)

	assert.Equal(t, 1.0, Score(button(1, "Go"), nil), "clamped")

	hidden := button(1, "Go")
	hidden.State.Visible = false
	hidden.State.Focused = true
	id := snapshot.NodeID(1)
	assert.Equal(t, 0.0, Score(hidden, &ScoringContext{PrimaryCTA: &id}))
}

func TestScoreHints(t *testing.T) {
	n := snapshot.ReadableNode{NodeID: 5, Kind: snapshot.KindCheckbox, State: snapshot.State{Visible: true}}
	base := Score(n, nil)

	cta := snapshot.NodeID(5)
	other := snapshot.NodeID(6)
	assert.InDelta(t, base+0.3, Score(n, &ScoringContext{PrimaryCTA: &cta}), 1e-9)
	assert.InDelta(t, base, Score(n, &ScoringContext{PrimaryCTA: &other}), 1e-9)
	assert.InDelta(t, base, Score(n, &ScoringContext{}), 1e-9)

	n.State.Focused = true
	assert.InDelta(t, base+0.2, Score(n, nil), 1e-9)
}

func TestSelectActionables(t *testing.T) {
	weak := button(1, "")
	weak.State.Enabled = false
	weak.Layout.Zone = snapshot.ZoneBelowFold
	weak.Where.Region = snapshot.RegionUnknown

	hidden := button(2, "Hidden")
	hidden.State.Visible = false

	modal := button(3, "Close")
	modal.Where.Region = snapshot.RegionDialog

	heading := snapshot.ReadableNode{NodeID: 4, Kind: snapshot.KindHeading, Label: "Title", State: snapshot.State{Visible: true}}

	snap := &snapshot.Snapshot{Nodes: []snapshot.ReadableNode{
		weak, hidden, modal, heading, button(5, "A"), button(6, "B"), button(7, "C"),
	}}

	got := SelectActionables(snap, snapshot.LayerMain, 10, nil)
	var ids []snapshot.NodeID
	for _, s := range got {
		ids = append(ids, s.Node.NodeID)
		assert.Equal(t, EID(s.Node, snapshot.LayerMain), s.EID)
	}
	assert.Equal(t, []snapshot.NodeID{5, 6, 7, 1}, ids, "ties keep traversal order")

	top := SelectActionables(snap, snapshot.LayerMain, 2, nil)
	require.Len(t, top, 2)
	assert.Equal(t, snapshot.NodeID(5), top[0].Node.NodeID)
	assert.Equal(t, snapshot.NodeID(6), top[1].Node.NodeID)

	inModal := SelectActionables(snap, snapshot.LayerModal, 10, nil)
	require.Len(t, inModal, 1)
	assert.Equal(t, snapshot.NodeID(3), inModal[0].Node.NodeID)

	assert.Empty(t, SelectActionables(snap, snapshot.LayerDrawer, 10, nil))
	assert.Len(t, SelectActionables(snap, snapshot.LayerMain, 0, nil), 4)
	assert.Nil(t, SelectActionables(nil, snapshot.LayerMain, 3, nil))
}

func TestSelectActionablesPrimaryCTA(t *testing.T) {
	a := button(1, "")
	a.Where.Region = snapshot.RegionUnknown
	a.State.Enabled = false
	b := button(2, "Buy")
	b.Where.Region = snapshot.RegionUnknown
	b.State.Enabled = false
	b.Layout.Zone = snapshot.ZoneBelowFold
	snap := &snapshot.Snapshot{Nodes: []snapshot.ReadableNode{a, b}}

	cta := b.NodeID
	got := SelectActionables(snap, snapshot.LayerMain, 1, &ScoringContext{PrimaryCTA: &cta})
	require.Len(t, got, 1)
	assert.Equal(t, "Buy", got[0].Node.Label)
}

func TestSelectActionablesInvariants(t *testing.T) {
	kinds := snapshot.Kinds()
	regions := []snapshot.Region{snapshot.RegionMain, snapshot.RegionDialog, snapshot.RegionNav, snapshot.RegionUnknown}
	zones := []snapshot.ScreenZone{snapshot.ZoneTop, snapshot.ZoneBottom, snapshot.ZoneBelowFold, snapshot.ZoneUnknown}

	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(0, 30).Draw(t, "count")
		nodes := make([]snapshot.ReadableNode, count)
		for i := range nodes {
			nodes[i] = snapshot.ReadableNode{
				NodeID: snapshot.NodeID(i + 1),
				Kind:   rapid.SampledFrom(kinds).Draw(t, "kind"),
				Label:  rapid.SampledFrom([]string{"", "Go", "Save", " "}).Draw(t, "label"),
				Where:  snapshot.Where{Region: rapid.SampledFrom(regions).Draw(t, "region")},
				Layout: snapshot.Layout{Zone: rapid.SampledFrom(zones).Draw(t, "zone")},
				State: snapshot.State{
					Visible: rapid.Bool().Draw(t, "visible"),
					Enabled: rapid.Bool().Draw(t, "enabled"),
					Focused: rapid.Bool().Draw(t, "focused"),
				},
			}
		}
		snap := &snapshot.Snapshot{Nodes: nodes}
		layer := rapid.SampledFrom(layers).Draw(t, "layer")
		limit := rapid.IntRange(1, 10).Draw(t, "limit")

		got := SelectActionables(snap, layer, limit, nil)
		assert.LessOrEqual(t, len(got), limit)
		for i, s := range got {
			assert.True(t, s.Node.State.Visible)
			assert.True(t, snapshot.IsInteractiveKind(s.Node.Kind))
			assert.Equal(t, layer, s.Node.Layer())
			assert.LessOrEqual(t, s.Score, 1.0)
			assert.Greater(t, s.Score, 0.0)
			if i > 0 {
				prev := got[i-1]
				assert.GreaterOrEqual(t, prev.Score, s.Score)
				if prev.Score == s.Score {
					assert.Less(t, prev.Node.NodeID, s.Node.NodeID)
				}
			}
		}
	})
}
