package snapshot

import "slices"

// NodeKind classifies a semantic node. Every kind belongs to exactly one of
// the interactive, readable or structural groups.
type NodeKind string

// Interactive kinds.
const (
	KindButton   NodeKind = "button"
	KindLink     NodeKind = "link"
	KindInput    NodeKind = "input"
	KindTextarea NodeKind = "textarea"
	KindSelect   NodeKind = "select"
	KindCombobox NodeKind = "combobox"
	KindCheckbox NodeKind = "checkbox"
	KindRadio    NodeKind = "radio"
	KindSwitch   NodeKind = "switch"
	KindSlider   NodeKind = "slider"
	KindTab      NodeKind = "tab"
	KindMenuItem NodeKind = "menuitem"
)

// Readable kinds.
const (
	KindHeading   NodeKind = "heading"
	KindParagraph NodeKind = "paragraph"
	KindText      NodeKind = "text"
	KindList      NodeKind = "list"
	KindListItem  NodeKind = "listitem"
	KindImage     NodeKind = "image"
	KindMedia     NodeKind = "media"
	KindTable     NodeKind = "table"
	KindCode      NodeKind = "code"
)

// Structural kinds.
const (
	KindForm       NodeKind = "form"
	KindDialog     NodeKind = "dialog"
	KindNavigation NodeKind = "navigation"
	KindSection    NodeKind = "section"
	KindMain       NodeKind = "main"
	KindHeader     NodeKind = "header"
	KindFooter     NodeKind = "footer"
	KindAside      NodeKind = "aside"
	KindGroup      NodeKind = "group"
)

// KindClass names the capability group of a kind.
type KindClass int

const (
	ClassNone KindClass = iota
	ClassInteractive
	ClassReadable
	ClassStructural
)

var kindClasses = map[NodeKind]KindClass{
	KindButton:   ClassInteractive,
	KindLink:     ClassInteractive,
	KindInput:    ClassInteractive,
	KindTextarea: ClassInteractive,
	KindSelect:   ClassInteractive,
	KindCombobox: ClassInteractive,
	KindCheckbox: ClassInteractive,
	KindRadio:    ClassInteractive,
	KindSwitch:   ClassInteractive,
	KindSlider:   ClassInteractive,
	KindTab:      ClassInteractive,
	KindMenuItem: ClassInteractive,

	KindHeading:   ClassReadable,
	KindParagraph: ClassReadable,
	KindText:      ClassReadable,
	KindList:      ClassReadable,
	KindListItem:  ClassReadable,
	KindImage:     ClassReadable,
	KindMedia:     ClassReadable,
	KindTable:     ClassReadable,
	KindCode:      ClassReadable,

	KindForm:       ClassStructural,
	KindDialog:     ClassStructural,
	KindNavigation: ClassStructural,
	KindSection:    ClassStructural,
	KindMain:       ClassStructural,
	KindHeader:     ClassStructural,
	KindFooter:     ClassStructural,
	KindAside:      ClassStructural,
	KindGroup:      ClassStructural,
}

// Class returns the capability group of k, ClassNone for unknown kinds.
func (k NodeKind) Class() KindClass { return kindClasses[k] }

// Valid reports whether k is one of the declared kinds.
func (k NodeKind) Valid() bool { return kindClasses[k] != ClassNone }

// Kinds returns every declared kind in lexical order.
func Kinds() []NodeKind {
	out := make([]NodeKind, 0, len(kindClasses))
	for k := range kindClasses {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func IsInteractiveKind(k NodeKind) bool { return k.Class() == ClassInteractive }
func IsReadableKind(k NodeKind) bool    { return k.Class() == ClassReadable }
func IsStructuralKind(k NodeKind) bool  { return k.Class() == ClassStructural }

func IsInteractiveNode(n ReadableNode) bool { return IsInteractiveKind(n.Kind) }
func IsReadableNode(n ReadableNode) bool    { return IsReadableKind(n.Kind) }
func IsStructuralNode(n ReadableNode) bool  { return IsStructuralKind(n.Kind) }

// keptWithoutLabel lists the non-interactive kinds that stay in a snapshot
// even when no label could be resolved.
var keptWithoutLabel = map[NodeKind]bool{
	KindHeading:    true,
	KindForm:       true,
	KindDialog:     true,
	KindNavigation: true,
	KindMain:       true,
	KindList:       true,
	KindTable:      true,
	KindMedia:      true,
}

// textBearing kinds take their label from descendant text when the label
// chain finds nothing.
var textBearing = map[NodeKind]bool{
	KindParagraph: true,
	KindText:      true,
	KindListItem:  true,
	KindCode:      true,
	KindHeading:   true,
}
