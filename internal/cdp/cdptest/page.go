package cdptest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

const (
	// FrameID and LoaderID are reported for the main frame of every Page.
	FrameID  = "F-MAIN"
	LoaderID = "L-MAIN"
)

// Node is one DOM node of a fake page plus the AX data and box the fake
// reports for it.
type Node struct {
	Tag      string
	Attrs    map[string]string
	Value    string
	Children []*Node

	axRole  string
	axName  string
	axValue string
	axProps [][2]any
	axNone  bool

	box       *[4]float64
	invisible bool

	nodeID    int64
	backendID int64
}

// El builds an element node.
func El(tag string, attrs map[string]string, children ...*Node) *Node {
	return &Node{Tag: strings.ToLower(tag), Attrs: attrs, Children: children}
}

// Text builds a text node.
func Text(s string) *Node {
	return &Node{Tag: "#text", Value: s}
}

// AX sets the accessibility role and computed name reported for n.
func (n *Node) AX(role, name string) *Node {
	n.axRole = role
	n.axName = name
	return n
}

// AXValue sets the accessibility value reported for n.
func (n *Node) AXValue(v string) *Node {
	n.axValue = v
	return n
}

// AXProp appends an accessibility property.
func (n *Node) AXProp(name string, value any) *Node {
	n.axProps = append(n.axProps, [2]any{name, value})
	return n
}

// NoAX suppresses the accessibility node for n.
func (n *Node) NoAX() *Node {
	n.axNone = true
	return n
}

// At pins the border box of n.
func (n *Node) At(x, y, w, h float64) *Node {
	n.box = &[4]float64{x, y, w, h}
	return n
}

// Invisible makes box model queries for n fail.
func (n *Node) Invisible() *Node {
	n.invisible = true
	return n
}

// BackendID returns the backend node id assigned when the page was built.
func (n *Node) BackendID() int64 { return n.backendID }

// Page is a fake browser page answering the DOM, Accessibility and Page
// domain queries the snapshot compiler issues, plus the input commands of
// the built-in actions. Runtime.evaluate always reports a stable DOM.
type Page struct {
	*Fake

	mu        sync.Mutex
	doc       *Node
	byBackend map[int64]*Node
	nextID    int64
	autoY     float64

	ViewportWidth  float64
	ViewportHeight float64
	URL            string
}

// NewPage builds a page whose body holds children.
func NewPage(children ...*Node) *Page {
	p := &Page{
		Fake:           New(),
		ViewportWidth:  1280,
		ViewportHeight: 720,
		URL:            "https://example.test/",
	}
	p.SetBody(children...)
	p.install()
	return p
}

// Has reports whether backendID resolves in the current document.
func (p *Page) Has(backendID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byBackend[backendID]
	return ok
}

// PageHandle returns a cdp.Handle for the page.
func (p *Page) PageHandle(pageID string) cdp.Handle {
	return cdp.Handle{PageID: pageID, Conn: p}
}

// SetBody replaces the document. Fresh node and backend ids are assigned so
// references into the previous tree go stale.
func (p *Page) SetBody(children ...*Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	body := El("body", nil, children...).NoAX()
	html := El("html", nil, body).NoAX()
	p.doc = &Node{Tag: "#document", Children: []*Node{html}}
	p.byBackend = make(map[int64]*Node)
	p.autoY = 10
	p.assign(p.doc)
}

func (p *Page) assign(n *Node) {
	p.nextID++
	n.nodeID = p.nextID
	n.backendID = p.nextID + 1000
	p.byBackend[n.backendID] = n
	if n.box == nil && n.Tag != "#text" && n.Tag != "#document" {
		n.box = &[4]float64{10, p.autoY, 120, 20}
		p.autoY += 30
	}
	for _, c := range n.Children {
		p.assign(c)
	}
}

func (p *Page) install() {
	p.Handle("DOM.getDocument", func(context.Context, json.RawMessage) (any, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return map[string]any{"root": p.domJSON(p.doc)}, nil
	})
	p.Handle("Accessibility.getFullAXTree", func(context.Context, json.RawMessage) (any, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		var nodes []map[string]any
		nodes = append(nodes, map[string]any{
			"nodeId":           "ax-root",
			"ignored":          false,
			"role":             map[string]any{"type": "role", "value": "RootWebArea"},
			"name":             map[string]any{"type": "computedString", "value": ""},
			"backendDOMNodeId": p.doc.backendID,
		})
		p.axJSON(p.doc, &nodes)
		return map[string]any{"nodes": nodes}, nil
	})
	p.Handle("DOM.getBoxModel", func(_ context.Context, params json.RawMessage) (any, error) {
		var req struct {
			BackendNodeID int64 `json:"backendNodeId"`
		}
		_ = json.Unmarshal(params, &req)
		p.mu.Lock()
		n, ok := p.byBackend[req.BackendNodeID]
		p.mu.Unlock()
		if !ok {
			return nil, &cdp.ProtocolError{Method: "DOM.getBoxModel", Code: -32000, Message: "No node found for given backend id"}
		}
		if n.invisible || n.box == nil {
			return nil, &cdp.ProtocolError{Method: "DOM.getBoxModel", Code: -32000, Message: "Could not compute box model."}
		}
		x, y, w, h := n.box[0], n.box[1], n.box[2], n.box[3]
		quad := []float64{x, y, x + w, y, x + w, y + h, x, y + h}
		return map[string]any{"model": map[string]any{
			"content": quad, "padding": quad, "border": quad, "margin": quad,
			"width": int64(w), "height": int64(h),
		}}, nil
	})
	p.Handle("DOM.scrollIntoViewIfNeeded", p.requireNode("DOM.scrollIntoViewIfNeeded", "Node is detached from document"))
	p.Handle("DOM.focus", p.requireNode("DOM.focus", "No node with given id found"))
	p.Reply("Input.dispatchMouseEvent", nil)
	p.Reply("Input.insertText", nil)
	p.Reply("Runtime.evaluate", map[string]any{"result": map[string]any{
		"type":  "object",
		"value": map[string]any{"status": "stable", "waitTimeMs": 100, "mutationCount": 0},
	}})
	p.Handle("Page.getLayoutMetrics", func(context.Context, json.RawMessage) (any, error) {
		vp := map[string]any{
			"offsetX": 0, "offsetY": 0, "pageX": 0, "pageY": 0,
			"clientWidth": p.ViewportWidth, "clientHeight": p.ViewportHeight,
			"scale": 1, "zoom": 1,
		}
		return map[string]any{
			"cssVisualViewport": vp,
			"cssLayoutViewport": map[string]any{"pageX": 0, "pageY": 0, "clientWidth": p.ViewportWidth, "clientHeight": p.ViewportHeight},
		}, nil
	})
	p.Handle("Page.getFrameTree", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"frameTree": map[string]any{
			"frame": map[string]any{
				"id": FrameID, "loaderId": LoaderID, "url": p.URL,
				"securityOrigin": "https://example.test", "mimeType": "text/html",
			},
		}}, nil
	})
}

func (p *Page) requireNode(method, message string) HandlerFunc {
	return func(_ context.Context, params json.RawMessage) (any, error) {
		var req struct {
			BackendNodeID int64 `json:"backendNodeId"`
		}
		_ = json.Unmarshal(params, &req)
		if !p.Has(req.BackendNodeID) {
			return nil, &cdp.ProtocolError{Method: method, Code: -32000, Message: message}
		}
		return nil, nil
	}
}

func (p *Page) domJSON(n *Node) map[string]any {
	out := map[string]any{
		"nodeId":        n.nodeID,
		"backendNodeId": n.backendID,
	}
	switch n.Tag {
	case "#document":
		out["nodeType"] = 9
		out["nodeName"] = "#document"
		out["localName"] = ""
		out["nodeValue"] = ""
		out["frameId"] = FrameID
		out["documentURL"] = p.URL
	case "#text":
		out["nodeType"] = 3
		out["nodeName"] = "#text"
		out["localName"] = ""
		out["nodeValue"] = n.Value
	default:
		out["nodeType"] = 1
		out["nodeName"] = strings.ToUpper(n.Tag)
		out["localName"] = n.Tag
		out["nodeValue"] = ""
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]string, 0, 2*len(keys))
		for _, k := range keys {
			attrs = append(attrs, k, n.Attrs[k])
		}
		out["attributes"] = attrs
	}
	if len(n.Children) > 0 {
		children := make([]map[string]any, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, p.domJSON(c))
		}
		out["children"] = children
		out["childNodeCount"] = len(n.Children)
	}
	return out
}

func (p *Page) axJSON(n *Node, out *[]map[string]any) {
	if n.axRole != "" && !n.axNone {
		ax := map[string]any{
			"nodeId":           "ax-" + jsonInt(n.backendID),
			"ignored":          false,
			"role":             map[string]any{"type": "role", "value": n.axRole},
			"name":             map[string]any{"type": "computedString", "value": n.axName},
			"backendDOMNodeId": n.backendID,
		}
		if n.axValue != "" {
			ax["value"] = map[string]any{"type": "string", "value": n.axValue}
		}
		if len(n.axProps) > 0 {
			props := make([]map[string]any, 0, len(n.axProps))
			for _, kv := range n.axProps {
				typ := "string"
				switch kv[1].(type) {
				case bool:
					typ = "boolean"
				case int, int64, float64:
					typ = "integer"
				}
				props = append(props, map[string]any{
					"name":  kv[0],
					"value": map[string]any{"type": typ, "value": kv[1]},
				})
			}
			ax["properties"] = props
		}
		*out = append(*out, ax)
	}
	for _, c := range n.Children {
		p.axJSON(c, out)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
