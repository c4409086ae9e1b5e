package snapshot

import "strings"

// roleKinds maps ARIA and AX roles to kinds.
var roleKinds = map[string]NodeKind{
	"button":           KindButton,
	"link":             KindLink,
	"textbox":          KindInput,
	"searchbox":        KindInput,
	"spinbutton":       KindInput,
	"combobox":         KindCombobox,
	"listbox":          KindSelect,
	"checkbox":         KindCheckbox,
	"menuitemcheckbox": KindMenuItem,
	"radio":            KindRadio,
	"menuitemradio":    KindMenuItem,
	"switch":           KindSwitch,
	"slider":           KindSlider,
	"tab":              KindTab,
	"menuitem":         KindMenuItem,

	"heading":    KindHeading,
	"paragraph":  KindParagraph,
	"text":       KindText,
	"note":       KindText,
	"status":     KindText,
	"alert":      KindText,
	"list":       KindList,
	"listitem":   KindListItem,
	"img":        KindImage,
	"image":      KindImage,
	"figure":     KindImage,
	"table":      KindTable,
	"grid":       KindTable,
	"treegrid":   KindTable,
	"code":       KindCode,
	"video":      KindMedia,
	"audio":      KindMedia,

	"form":          KindForm,
	"search":        KindForm,
	"dialog":        KindDialog,
	"alertdialog":   KindDialog,
	"navigation":    KindNavigation,
	"region":        KindSection,
	"article":       KindSection,
	"main":          KindMain,
	"banner":        KindHeader,
	"contentinfo":   KindFooter,
	"complementary": KindAside,
	"group":         KindGroup,
	"radiogroup":    KindGroup,
	"toolbar":       KindGroup,
	"tablist":       KindGroup,
	"menu":          KindGroup,
	"menubar":       KindGroup,
}

var tagKinds = map[string]NodeKind{
	"button":     KindButton,
	"textarea":   KindTextarea,
	"select":     KindSelect,
	"summary":    KindButton,
	"h1":         KindHeading,
	"h2":         KindHeading,
	"h3":         KindHeading,
	"h4":         KindHeading,
	"h5":         KindHeading,
	"h6":         KindHeading,
	"p":          KindParagraph,
	"blockquote": KindParagraph,
	"figcaption": KindText,
	"caption":    KindText,
	"legend":     KindText,
	"ul":         KindList,
	"ol":         KindList,
	"dl":         KindList,
	"menu":       KindList,
	"li":         KindListItem,
	"img":        KindImage,
	"video":      KindMedia,
	"audio":      KindMedia,
	"table":      KindTable,
	"pre":        KindCode,
	"code":       KindCode,
	"form":       KindForm,
	"dialog":     KindDialog,
	"nav":        KindNavigation,
	"section":    KindSection,
	"article":    KindSection,
	"main":       KindMain,
	"header":     KindHeader,
	"footer":     KindFooter,
	"aside":      KindAside,
	"fieldset":   KindGroup,
}

// skippedTags are never classified and their subtrees are not walked.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"head":     true,
	"template": true,
	"noscript": true,
	"meta":     true,
	"link":     true,
}

// Classify picks the kind of a DOM node from its explicit role, then its
// tag and type, then its AX role. ok is false for nodes without semantics.
func Classify(dom *RawDomNode, ax *RawAxNode) (NodeKind, bool) {
	if dom == nil || !dom.isElement() || skippedTags[dom.Tag] {
		return "", false
	}

	if role := firstRole(dom.Attr("role")); role != "" {
		if role == "presentation" || role == "none" {
			if k, ok := tagKind(dom); ok && IsInteractiveKind(k) {
				return k, true
			}
			return "", false
		}
		if k, ok := roleKinds[role]; ok {
			return k, true
		}
	}
	if k, ok := tagKind(dom); ok {
		return k, true
	}
	if ax != nil && !ax.Ignored {
		if k, ok := roleKinds[strings.ToLower(ax.Role)]; ok {
			return k, true
		}
	}
	return "", false
}

func tagKind(dom *RawDomNode) (NodeKind, bool) {
	switch dom.Tag {
	case "a", "area":
		if dom.HasAttr("href") {
			return KindLink, true
		}
		return "", false
	case "input":
		return inputKind(dom)
	}
	if ce, ok := dom.Attrs["contenteditable"]; ok {
		switch strings.ToLower(strings.TrimSpace(ce)) {
		case "", "true", "plaintext-only":
			return KindTextarea, true
		}
	}
	k, ok := tagKinds[dom.Tag]
	return k, ok
}

func inputKind(dom *RawDomNode) (NodeKind, bool) {
	switch strings.ToLower(dom.Attr("type")) {
	case "hidden":
		return "", false
	case "checkbox":
		return KindCheckbox, true
	case "radio":
		return KindRadio, true
	case "range":
		return KindSlider, true
	case "submit", "button", "reset", "image":
		return KindButton, true
	}
	if dom.HasAttr("list") {
		return KindCombobox, true
	}
	return KindInput, true
}

// firstRole returns the first token of a role attribute, which is the one
// browsers honour.
func firstRole(role string) string {
	fields := strings.Fields(strings.ToLower(role))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// isDialogNode reports whether dom opens a modal layer.
func isDialogNode(dom *RawDomNode, kind NodeKind) bool {
	return kind == KindDialog || strings.EqualFold(dom.Attr("aria-modal"), "true")
}

// landmarkRegion returns the region a landmark kind establishes.
func landmarkRegion(kind NodeKind) (Region, bool) {
	switch kind {
	case KindNavigation:
		return RegionNav, true
	case KindMain:
		return RegionMain, true
	case KindHeader:
		return RegionHeader, true
	case KindFooter:
		return RegionFooter, true
	case KindAside:
		return RegionAside, true
	}
	return "", false
}

// groupingKinds contribute their label to the group path of descendants.
var groupingKinds = map[NodeKind]bool{
	KindForm:       true,
	KindSection:    true,
	KindGroup:      true,
	KindList:       true,
	KindTable:      true,
	KindNavigation: true,
	KindDialog:     true,
}
