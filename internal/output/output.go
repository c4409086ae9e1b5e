// Package output renders command results for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents the output format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	// FormatText prints fmt.Stringer values as-is and falls back to YAML.
	FormatText Format = "text"
)

// ParseFormat accepts yaml, json or text, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatYAML, FormatJSON, FormatText:
		return f, nil
	case "":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (use yaml, json or text)", s)
	}
}

// Printer serializes values to one writer.
type Printer struct {
	w      io.Writer
	format Format
	pretty bool
}

func NewPrinter(w io.Writer, format Format, pretty bool) *Printer {
	return &Printer{w: w, format: format, pretty: pretty}
}

// Print serializes v in the printer's format.
func (p *Printer) Print(v any) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		if p.pretty {
			enc.SetIndent("", "  ")
		}
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case FormatText:
		if s, ok := v.(fmt.Stringer); ok {
			_, err := fmt.Fprintln(p.w, s.String())
			return err
		}
		return p.yaml(v)
	case FormatYAML:
		return p.yaml(v)
	default:
		return fmt.Errorf("unsupported output format: %s", p.format)
	}
}

func (p *Printer) yaml(v any) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}
	return enc.Close()
}
