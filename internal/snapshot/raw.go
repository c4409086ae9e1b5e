package snapshot

import (
	"encoding/json"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	cdptypes "github.com/chromedp/cdproto/cdp"
)

// RawDomNode is one node of a DOM tree capture. It only lives for one
// compile pass.
type RawDomNode struct {
	NodeID        NodeID
	BackendNodeID BackendNodeID
	NodeType      int
	Tag           string
	Attrs         map[string]string
	// Text is the node value for text nodes and the joined direct text
	// children for elements.
	Text     string
	ChildIDs []NodeID
	ParentID NodeID
	FrameID  string
}

// Attr returns the trimmed value of attribute name.
func (n *RawDomNode) Attr(name string) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Attrs[name])
}

// HasAttr reports whether attribute name is present, even when empty.
func (n *RawDomNode) HasAttr(name string) bool {
	if n == nil {
		return false
	}
	_, ok := n.Attrs[name]
	return ok
}

func (n *RawDomNode) isElement() bool { return n.NodeType == int(cdptypes.NodeTypeElement) }
func (n *RawDomNode) isText() bool    { return n.NodeType == int(cdptypes.NodeTypeText) }

// AxProperty is one normalised accessibility property.
type AxProperty struct {
	Name  string
	Value string
}

// RawAxNode is one node of an accessibility tree capture with every value
// normalised to a string.
type RawAxNode struct {
	Role          string
	Name          string
	Value         string
	Properties    []AxProperty
	BackendNodeID BackendNodeID
	Ignored       bool
}

// Prop returns the value of the first property called name.
func (a *RawAxNode) Prop(name string) (string, bool) {
	if a == nil {
		return "", false
	}
	for _, p := range a.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func (a *RawAxNode) flag(name string) bool {
	v, ok := a.Prop(name)
	return ok && v == "true"
}

// DomTree is an ingested DOM capture indexed by node id.
type DomTree struct {
	Root  NodeID
	Nodes map[NodeID]*RawDomNode
	// ByElementID indexes element nodes by their id attribute for
	// aria-labelledby resolution. The first node with an id wins.
	ByElementID map[string]*RawDomNode
}

// Node returns the node with id, or nil.
func (t *DomTree) Node(id NodeID) *RawDomNode {
	if t == nil {
		return nil
	}
	return t.Nodes[id]
}

// IngestDOM flattens a DOM.getDocument result. Iframe content documents,
// shadow roots and template content are attached as children of their host
// so a single pre-order walk covers the whole pierced tree.
func IngestDOM(root *cdptypes.Node) *DomTree {
	t := &DomTree{
		Nodes:       make(map[NodeID]*RawDomNode),
		ByElementID: make(map[string]*RawDomNode),
	}
	if root == nil {
		return t
	}
	t.Root = NodeID(root.NodeID)
	t.ingest(root, 0, string(root.FrameID))
	return t
}

func (t *DomTree) ingest(n *cdptypes.Node, parent NodeID, frameID string) NodeID {
	if n.FrameID != "" {
		frameID = string(n.FrameID)
	}
	raw := &RawDomNode{
		NodeID:        NodeID(n.NodeID),
		BackendNodeID: BackendNodeID(n.BackendNodeID),
		NodeType:      int(n.NodeType),
		Tag:           strings.ToLower(n.LocalName),
		ParentID:      parent,
		FrameID:       frameID,
	}
	if raw.Tag == "" && n.NodeType == cdptypes.NodeTypeElement {
		raw.Tag = strings.ToLower(n.NodeName)
	}
	if len(n.Attributes) > 0 {
		raw.Attrs = make(map[string]string, len(n.Attributes)/2)
		for i := 0; i+1 < len(n.Attributes); i += 2 {
			key := strings.ToLower(n.Attributes[i])
			if _, dup := raw.Attrs[key]; !dup {
				raw.Attrs[key] = n.Attributes[i+1]
			}
		}
	}
	if n.NodeType == cdptypes.NodeTypeText {
		raw.Text = n.NodeValue
	}
	t.Nodes[raw.NodeID] = raw
	if id := raw.Attr("id"); id != "" && raw.isElement() {
		if _, seen := t.ByElementID[id]; !seen {
			t.ByElementID[id] = raw
		}
	}

	var direct []string
	visit := func(c *cdptypes.Node) {
		if c == nil {
			return
		}
		raw.ChildIDs = append(raw.ChildIDs, t.ingest(c, raw.NodeID, frameID))
		if c.NodeType == cdptypes.NodeTypeText {
			if s := strings.TrimSpace(c.NodeValue); s != "" {
				direct = append(direct, s)
			}
		}
	}
	for _, sr := range n.ShadowRoots {
		visit(sr)
	}
	if n.TemplateContent != nil {
		visit(n.TemplateContent)
	}
	for _, c := range n.Children {
		visit(c)
	}
	if n.ContentDocument != nil {
		visit(n.ContentDocument)
	}
	if raw.isElement() && len(direct) > 0 {
		raw.Text = strings.Join(direct, " ")
	}
	return raw.NodeID
}

// IngestAX normalises an Accessibility.getFullAXTree result.
func IngestAX(nodes []*accessibility.Node) []*RawAxNode {
	out := make([]*RawAxNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		ax := &RawAxNode{
			Role:          axString(n.Role),
			Name:          axString(n.Name),
			Value:         axString(n.Value),
			BackendNodeID: BackendNodeID(n.BackendDOMNodeID),
			Ignored:       n.Ignored,
		}
		for _, p := range n.Properties {
			if p == nil {
				continue
			}
			ax.Properties = append(ax.Properties, AxProperty{
				Name:  p.Name.String(),
				Value: axString(p.Value),
			})
		}
		out = append(out, ax)
	}
	return out
}

func axString(v *accessibility.Value) string {
	if v == nil {
		return ""
	}
	return NormalizeValue(v.Value)
}

// NormalizeValue turns a raw protocol value into a plain string. Strings
// lose their quotes, {type, value} wrappers are unwrapped, numbers and
// booleans keep their literal form and null becomes empty.
func NormalizeValue(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	switch s[0] {
	case '"':
		var str string
		if err := json.Unmarshal([]byte(s), &str); err == nil {
			return str
		}
	case '{':
		var wrapped struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal([]byte(s), &wrapped); err == nil {
			return NormalizeValue(wrapped.Value)
		}
	}
	return s
}

// axIndex correlates DOM nodes with accessibility nodes.
type axIndex struct {
	byBackend map[BackendNodeID]*RawAxNode
	// byRoleName holds AX nodes without a DOM link keyed by role and name.
	// Ambiguous keys map to nil.
	byRoleName map[string]*RawAxNode
}

func newAXIndex(nodes []*RawAxNode) *axIndex {
	idx := &axIndex{
		byBackend:  make(map[BackendNodeID]*RawAxNode, len(nodes)),
		byRoleName: make(map[string]*RawAxNode),
	}
	for _, ax := range nodes {
		if ax.BackendNodeID != 0 {
			if _, dup := idx.byBackend[ax.BackendNodeID]; !dup {
				idx.byBackend[ax.BackendNodeID] = ax
			}
			continue
		}
		if ax.Role == "" || ax.Name == "" {
			continue
		}
		key := roleNameKey(ax.Role, ax.Name)
		if _, dup := idx.byRoleName[key]; dup {
			idx.byRoleName[key] = nil
			continue
		}
		idx.byRoleName[key] = ax
	}
	return idx
}

// lookup finds the AX node for dom: by backend id first, then by explicit
// role plus aria-label. A miss means the node has no AX data.
func (idx *axIndex) lookup(dom *RawDomNode) *RawAxNode {
	if ax, ok := idx.byBackend[dom.BackendNodeID]; ok {
		if ax.Ignored {
			return nil
		}
		return ax
	}
	role, label := dom.Attr("role"), dom.Attr("aria-label")
	if role == "" || label == "" {
		return nil
	}
	return idx.byRoleName[roleNameKey(role, label)]
}

func roleNameKey(role, name string) string {
	return strings.ToLower(strings.TrimSpace(role)) + "\x00" + normalizeSpace(name)
}
