package element

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

// ScoringContext carries page-level hints from a caller that has already
// analysed the page.
type ScoringContext struct {
	PrimaryCTA *snapshot.NodeID
}

// ScoredNode is a selected actionable with its score and eid.
type ScoredNode struct {
	Node  snapshot.ReadableNode `json:"node"  yaml:"node"`
	EID   string                `json:"eid"   yaml:"eid"`
	Score float64               `json:"score" yaml:"score"`
}

const (
	baseScore      = 0.5
	enabledBonus   = 0.1
	defaultWeight  = 0.1
	aboveFoldBonus = 0.1
	labelBonus     = 0.15
	primaryBonus   = 0.3
	focusedBonus   = 0.2
	maxScore       = 1.0
)

var kindWeights = map[snapshot.NodeKind]float64{
	snapshot.KindInput:    0.3,
	snapshot.KindTextarea: 0.3,
	snapshot.KindButton:   0.3,
	snapshot.KindLink:     0.25,
	snapshot.KindSelect:   0.25,
	snapshot.KindCombobox: 0.25,
	snapshot.KindCheckbox: 0.2,
	snapshot.KindRadio:    0.2,
	snapshot.KindSwitch:   0.2,
	snapshot.KindSlider:   0.15,
}

var regionBonus = map[snapshot.Region]float64{
	snapshot.RegionMain:   0.15,
	snapshot.RegionDialog: 0.2,
}

// Score rates how likely node is to be the next useful action target. An
// invisible node always scores 0.
func Score(node snapshot.ReadableNode, sc *ScoringContext) float64 {
	if !node.State.Visible {
		return 0
	}
	s := baseScore
	if node.State.Enabled {
		s += enabledBonus
	}
	if w, ok := kindWeights[node.Kind]; ok {
		s += w
	} else {
		s += defaultWeight
	}
	s += regionBonus[node.Where.Region]
	if node.Layout.Zone.AboveFold() {
		s += aboveFoldBonus
	}
	if strings.TrimSpace(node.Label) != "" {
		s += labelBonus
	}
	if sc != nil && sc.PrimaryCTA != nil && *sc.PrimaryCTA == node.NodeID {
		s += primaryBonus
	}
	if node.State.Focused {
		s += focusedBonus
	}
	return math.Min(s, maxScore)
}

// SelectActionables returns the visible interactive nodes of layer, best
// first. Equal scores keep traversal order. maxCount <= 0 means no limit.
func SelectActionables(snap *snapshot.Snapshot, layer snapshot.Layer, maxCount int, sc *ScoringContext) []ScoredNode {
	if snap == nil {
		return nil
	}
	out := make([]ScoredNode, 0, snap.InteractiveCount)
	for _, n := range snap.Nodes {
		if !snapshot.IsInteractiveKind(n.Kind) || !n.State.Visible || n.Layer() != layer {
			continue
		}
		out = append(out, ScoredNode{Node: n, EID: EID(n, layer), Score: Score(n, sc)})
	}
	slices.SortStableFunc(out, func(a, b ScoredNode) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out
}
