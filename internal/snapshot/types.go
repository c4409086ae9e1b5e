package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// NodeID is the session-local DOM node id.
type NodeID int64

// BackendNodeID is the protocol node id that stays valid until the node is
// removed or replaced.
type BackendNodeID int64

// LabelSource names the rule of the label chain that produced a label.
type LabelSource string

const (
	SourceAXName         LabelSource = "ax-name"
	SourceAriaLabelledBy LabelSource = "aria-labelledby"
	SourceAriaLabel      LabelSource = "aria-label"
	SourceTitle          LabelSource = "title"
	SourcePlaceholder    LabelSource = "placeholder"
	SourceAlt            LabelSource = "alt"
	SourceValue          LabelSource = "value"
	SourceName           LabelSource = "name"
	SourceTestID         LabelSource = "test-id"
	SourceTextContent    LabelSource = "text-content"
	SourceNone           LabelSource = "none"
)

// Region is the semantic page region a node sits in.
type Region string

const (
	RegionMain    Region = "main"
	RegionDialog  Region = "dialog"
	RegionNav     Region = "nav"
	RegionHeader  Region = "header"
	RegionFooter  Region = "footer"
	RegionAside   Region = "aside"
	RegionUnknown Region = "unknown"
)

// Layer is the coarse stacking layer used to scope identity and locators.
type Layer string

const (
	LayerMain    Layer = "main"
	LayerModal   Layer = "modal"
	LayerDrawer  Layer = "drawer"
	LayerPopover Layer = "popover"
)

// ParseLayer validates a layer name.
func ParseLayer(s string) (Layer, error) {
	switch l := Layer(strings.ToLower(strings.TrimSpace(s))); l {
	case LayerMain, LayerModal, LayerDrawer, LayerPopover:
		return l, nil
	default:
		return "", fmt.Errorf("unknown layer %q (expected main, modal, drawer or popover)", s)
	}
}

// LayerForRegion maps a region to its layer. Only dialogs are detected as a
// separate layer; drawers and popovers are never inferred.
func LayerForRegion(r Region) Layer {
	if r == RegionDialog {
		return LayerModal
	}
	return LayerMain
}

// ScreenZone places a node relative to the visible viewport.
type ScreenZone string

const (
	ZoneTop           ScreenZone = "top"
	ZoneCenter        ScreenZone = "center"
	ZoneBottom        ScreenZone = "bottom"
	ZoneBelowFold     ScreenZone = "below-fold"
	ZoneAboveViewport ScreenZone = "above-viewport"
	ZoneUnknown       ScreenZone = "unknown"
)

// AboveFold reports whether the zone lies inside the current viewport.
func (z ScreenZone) AboveFold() bool {
	return z == ZoneTop || z == ZoneCenter || z == ZoneBottom
}

// BBox is a border box in CSS pixels relative to the viewport.
type BBox struct {
	X      float64 `json:"x"      yaml:"x"`
	Y      float64 `json:"y"      yaml:"y"`
	Width  float64 `json:"width"  yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Where locates a node semantically.
type Where struct {
	Region    Region   `json:"region"               yaml:"region"`
	GroupPath []string `json:"group_path,omitempty" yaml:"group_path,omitempty"`
}

// Layout is the geometric placement of a node.
type Layout struct {
	BBox *BBox      `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Zone ScreenZone `json:"zone"           yaml:"zone"`
}

// State is the interaction state of a node at capture time.
type State struct {
	Visible bool `json:"visible"           yaml:"visible"`
	Enabled bool `json:"enabled"           yaml:"enabled"`
	Focused bool `json:"focused,omitempty" yaml:"focused,omitempty"`
}

// Attributes are the kind-specific attributes surfaced for a node.
type Attributes struct {
	InputType    string `json:"input_type,omitempty"    yaml:"input_type,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"   yaml:"placeholder,omitempty"`
	Value        string `json:"value,omitempty"         yaml:"value,omitempty"`
	Href         string `json:"href,omitempty"          yaml:"href,omitempty"`
	Alt          string `json:"alt,omitempty"           yaml:"alt,omitempty"`
	Src          string `json:"src,omitempty"           yaml:"src,omitempty"`
	HeadingLevel int    `json:"heading_level,omitempty" yaml:"heading_level,omitempty"`
	Action       string `json:"action,omitempty"        yaml:"action,omitempty"`
	Method       string `json:"method,omitempty"        yaml:"method,omitempty"`
	Autocomplete string `json:"autocomplete,omitempty"  yaml:"autocomplete,omitempty"`
	TestID       string `json:"test_id,omitempty"       yaml:"test_id,omitempty"`
	Role         string `json:"role,omitempty"          yaml:"role,omitempty"`
}

// LocatorHints carries the raw attribute values the CSS fallback locator is
// built from.
type LocatorHints struct {
	DataTestID string `json:"data_testid,omitempty" yaml:"data_testid,omitempty"`
	Name       string `json:"name,omitempty"        yaml:"name,omitempty"`
	AriaLabel  string `json:"aria_label,omitempty"  yaml:"aria_label,omitempty"`
}

// ReadableNode is the unified semantic record of one page element.
type ReadableNode struct {
	NodeID        NodeID        `json:"node_id"             yaml:"node_id"`
	BackendNodeID BackendNodeID `json:"backend_node_id"     yaml:"backend_node_id"`
	FrameID       string        `json:"frame_id,omitempty"  yaml:"frame_id,omitempty"`
	LoaderID      string        `json:"loader_id,omitempty" yaml:"loader_id,omitempty"`
	Kind          NodeKind      `json:"kind"                yaml:"kind"`
	Label         string        `json:"label"               yaml:"label"`
	LabelSource   LabelSource   `json:"label_source"        yaml:"label_source"`
	Where         Where         `json:"where"               yaml:"where"`
	Layout        Layout        `json:"layout"              yaml:"layout"`
	State         State         `json:"state"               yaml:"state"`
	Attributes    *Attributes   `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Hints         LocatorHints  `json:"hints"               yaml:"hints,omitempty"`
}

// Layer derives the node's layer from its region.
func (n ReadableNode) Layer() Layer { return LayerForRegion(n.Where.Region) }

// Viewport is the visible viewport at capture time.
type Viewport struct {
	Width  float64 `json:"width"  yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Snapshot is one point-in-time observation of one page. Snapshots are
// never modified after the compiler returns them.
type Snapshot struct {
	ID               string         `json:"id"                yaml:"id"`
	PageID           string         `json:"page_id"           yaml:"page_id"`
	URL              string         `json:"url,omitempty"     yaml:"url,omitempty"`
	CapturedAt       time.Time      `json:"captured_at"       yaml:"captured_at"`
	Viewport         Viewport       `json:"viewport"          yaml:"viewport"`
	NodeCount        int            `json:"node_count"        yaml:"node_count"`
	InteractiveCount int            `json:"interactive_count" yaml:"interactive_count"`
	Nodes            []ReadableNode `json:"nodes"             yaml:"nodes"`
}

func newSnapshot(id, pageID, url string, at time.Time, vp Viewport, nodes []ReadableNode) *Snapshot {
	interactive := 0
	for _, n := range nodes {
		if IsInteractiveKind(n.Kind) {
			interactive++
		}
	}
	return &Snapshot{
		ID:               id,
		PageID:           pageID,
		URL:              url,
		CapturedAt:       at,
		Viewport:         vp,
		NodeCount:        len(nodes),
		InteractiveCount: interactive,
		Nodes:            nodes,
	}
}
