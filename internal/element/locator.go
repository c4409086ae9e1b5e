package element

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

// MaxLocatorLabel bounds the label fragment of a role locator.
const MaxLocatorLabel = 40

// LocatorInfo holds an accessibility locator and an optional CSS fallback,
// both scoped to the node's layer.
type LocatorInfo struct {
	Preferred string `json:"preferred"          yaml:"preferred"`
	Fallback  string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

var rolePrefixes = map[snapshot.Layer]string{
	snapshot.LayerModal:   `role=dialog[aria-modal="true"] >> `,
	snapshot.LayerDrawer:  `role=complementary >> `,
	snapshot.LayerPopover: `role=menu >> `,
}

var cssPrefixes = map[snapshot.Layer]string{
	snapshot.LayerModal:   `[role="dialog"][aria-modal="true"] `,
	snapshot.LayerDrawer:  `[role="complementary"] `,
	snapshot.LayerPopover: `[role="menu"] `,
}

// kindRoles maps kinds whose name is not an ARIA role.
var kindRoles = map[snapshot.NodeKind]string{
	snapshot.KindInput:    "textbox",
	snapshot.KindTextarea: "textbox",
	snapshot.KindSelect:   "combobox",
	snapshot.KindImage:    "img",
	snapshot.KindSection:  "region",
	snapshot.KindHeader:   "banner",
	snapshot.KindFooter:   "contentinfo",
	snapshot.KindAside:    "complementary",
}

// GenerateLocator builds the locators for node. A nil layer means the layer
// derived from the node's region.
func GenerateLocator(node snapshot.ReadableNode, layer *snapshot.Layer) LocatorInfo {
	l := node.Layer()
	if layer != nil {
		l = *layer
	}

	preferred := "role=" + roleFor(node)
	if label := strings.TrimSpace(node.Label); label != "" {
		preferred += fmt.Sprintf(`[name*="%s"]`, escapeValue(truncate(label, MaxLocatorLabel)))
	}

	info := LocatorInfo{Preferred: rolePrefixes[l] + preferred}
	if css := cssFallback(node.Hints); css != "" {
		info.Fallback = cssPrefixes[l] + css
	}
	return info
}

func roleFor(node snapshot.ReadableNode) string {
	if node.Attributes != nil && node.Attributes.Role != "" {
		return strings.Fields(node.Attributes.Role)[0]
	}
	if r, ok := kindRoles[node.Kind]; ok {
		return r
	}
	return string(node.Kind)
}

func cssFallback(h snapshot.LocatorHints) string {
	switch {
	case h.DataTestID != "":
		return fmt.Sprintf(`[data-testid="%s"]`, escapeValue(h.DataTestID))
	case h.Name != "":
		return fmt.Sprintf(`[name="%s"]`, escapeValue(h.Name))
	case h.AriaLabel != "":
		return fmt.Sprintf(`[aria-label*="%s"]`, escapeValue(h.AriaLabel))
	}
	return ""
}

func escapeValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
