package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// String renders the snapshot as a compact listing for agent prompts.
func (s *Snapshot) String() string {
	return s.Listing(nil)
}

// Listing is String with every line prefixed by idFor(node) in brackets.
// A nil idFor numbers the lines instead.
func (s *Snapshot) Listing(idFor func(ReadableNode) string) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nSNAPSHOT: %s\nNODES: %d (interactive %d)", s.URL, s.ID, s.NodeCount, s.InteractiveCount)
	for i, n := range s.Nodes {
		b.WriteByte('\n')
		if idFor != nil {
			fmt.Fprintf(&b, "[%s] ", idFor(n))
		} else {
			fmt.Fprintf(&b, "%d) ", i+1)
		}
		fmt.Fprintf(&b, "%s %q region=%s", n.Kind, n.Label, n.Where.Region)
		if len(n.Where.GroupPath) > 0 {
			fmt.Fprintf(&b, " group=%s", strings.Join(n.Where.GroupPath, " > "))
		}
		if n.Layout.BBox != nil {
			bb := n.Layout.BBox
			fmt.Fprintf(&b, " bbox=%.0f,%.0f,%.0f,%.0f", bb.X, bb.Y, bb.Width, bb.Height)
		}
		if !n.State.Visible {
			b.WriteString(" hidden")
		}
		if !n.State.Enabled {
			b.WriteString(" disabled")
		}
		if n.State.Focused {
			b.WriteString(" focused")
		}
	}
	return b.String()
}

// WithDeadline shortens ctx so a compile on a slow page cannot stall the
// caller. A non-positive dur leaves ctx unchanged.
func WithDeadline(ctx context.Context, dur time.Duration) (context.Context, context.CancelFunc) {
	if dur <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dur)
}
