package snapshot

import (
	"strconv"
	"strings"
)

// RedactedValue replaces password values.
const RedactedValue = "[REDACTED]"

// ExtractOptions controls what the attribute extractor surfaces.
type ExtractOptions struct {
	IncludeValues   bool `yaml:"include_values"`
	RedactPasswords bool `yaml:"redact_passwords"`
	SanitizeURLs    bool `yaml:"sanitize_urls"`
}

// DefaultExtractOptions keeps values hidden and enables redaction and URL
// sanitisation.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{RedactPasswords: true, SanitizeURLs: true}
}

// ExtractAttributes derives the kind-specific attributes of a node. It
// returns nil when nothing was found.
func ExtractAttributes(dom *RawDomNode, kind NodeKind, opts ExtractOptions, ax *RawAxNode) *Attributes {
	var a Attributes
	found := false
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
			found = true
		}
	}

	if kind == KindInput || kind == KindCombobox {
		set(&a.InputType, inputType(dom))
	}
	set(&a.Placeholder, dom.Attr("placeholder"))

	if opts.IncludeValues {
		v := dom.Attr("value")
		if v == "" && ax != nil {
			v = ax.Value
		}
		if v != "" && opts.RedactPasswords && strings.EqualFold(dom.Attr("type"), "password") {
			v = RedactedValue
		}
		set(&a.Value, v)
	}

	switch kind {
	case KindLink:
		href := dom.Attr("href")
		if href != "" {
			if opts.SanitizeURLs {
				href = SanitizeURL(href)
			} else {
				href = truncateURL(href)
			}
		}
		set(&a.Href, href)
	case KindImage:
		set(&a.Alt, dom.Attr("alt"))
		set(&a.Src, ReduceImageSrc(dom.Attr("src")))
	case KindHeading:
		if lvl := headingLevel(dom, ax); lvl > 0 {
			a.HeadingLevel = lvl
			found = true
		}
	case KindForm:
		set(&a.Action, dom.Attr("action"))
		set(&a.Method, strings.ToLower(dom.Attr("method")))
	}

	set(&a.Autocomplete, dom.Attr("autocomplete"))
	if dom != nil {
		set(&a.TestID, firstTestID(dom))
	}
	set(&a.Role, dom.Attr("role"))

	if !found {
		return nil
	}
	return &a
}

func inputType(dom *RawDomNode) string {
	if dom == nil {
		return ""
	}
	if t := strings.ToLower(dom.Attr("type")); t != "" {
		return t
	}
	if dom.Tag == "input" {
		return "text"
	}
	return ""
}

// headingLevel prefers the AX level property and falls back to the hN tag.
func headingLevel(dom *RawDomNode, ax *RawAxNode) int {
	if v, ok := ax.Prop("level"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 1 && n <= 6 {
			return n
		}
	}
	if dom != nil && len(dom.Tag) == 2 && dom.Tag[0] == 'h' {
		if n := int(dom.Tag[1] - '0'); n >= 1 && n <= 6 {
			return n
		}
	}
	return 0
}
