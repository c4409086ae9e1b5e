package snapshot

import (
	"strings"
	"unicode/utf8"
)

// MaxLabelLength bounds resolved labels, in characters.
const MaxLabelLength = 160

// testIDAttrs is the priority list of test id attributes.
var testIDAttrs = []string{"data-testid", "data-test", "data-cy", "data-test-id"}

var formControlTags = map[string]bool{
	"input":    true,
	"select":   true,
	"textarea": true,
	"button":   true,
}

// ResolveLabel computes the accessible label of a node. The first non-empty
// source of the chain wins; a node with no usable source gets an empty
// label with SourceNone.
func ResolveLabel(dom *RawDomNode, ax *RawAxNode, byID map[string]*RawDomNode) (string, LabelSource) {
	if ax != nil && !ax.Ignored {
		if l := normalizeLabel(ax.Name); l != "" {
			return l, SourceAXName
		}
	}
	if dom == nil {
		return "", SourceNone
	}
	if l := normalizeLabel(labelledBy(dom, byID)); l != "" {
		return l, SourceAriaLabelledBy
	}
	if l := normalizeLabel(dom.Attr("aria-label")); l != "" {
		return l, SourceAriaLabel
	}
	if l := normalizeLabel(dom.Attr("title")); l != "" {
		return l, SourceTitle
	}
	if dom.Tag == "input" || dom.Tag == "textarea" {
		if l := normalizeLabel(dom.Attr("placeholder")); l != "" {
			return l, SourcePlaceholder
		}
	}
	if dom.Tag == "img" {
		if l := normalizeLabel(dom.Attr("alt")); l != "" {
			return l, SourceAlt
		}
	}
	if dom.Tag == "input" {
		switch strings.ToLower(dom.Attr("type")) {
		case "submit", "button", "reset":
			if l := normalizeLabel(dom.Attr("value")); l != "" {
				return l, SourceValue
			}
		}
	}
	if formControlTags[dom.Tag] {
		if l := normalizeLabel(dom.Attr("name")); l != "" {
			return l, SourceName
		}
	}
	if l := normalizeLabel(firstTestID(dom)); l != "" {
		return l, SourceTestID
	}
	return "", SourceNone
}

// labelledBy resolves aria-labelledby one level deep: each referenced node
// contributes its own aria-label, else its direct text.
func labelledBy(dom *RawDomNode, byID map[string]*RawDomNode) string {
	ids := strings.Fields(dom.Attr("aria-labelledby"))
	if len(ids) == 0 || byID == nil {
		return ""
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		ref, ok := byID[id]
		if !ok || ref == nil {
			continue
		}
		if l := ref.Attr("aria-label"); l != "" {
			parts = append(parts, l)
			continue
		}
		if t := strings.TrimSpace(ref.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func firstTestID(dom *RawDomNode) string {
	for _, a := range testIDAttrs {
		if v := dom.Attr(a); v != "" {
			return v
		}
	}
	return ""
}

func normalizeLabel(s string) string {
	return truncateRunes(normalizeSpace(s), MaxLabelLength)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
