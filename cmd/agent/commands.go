package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/element"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/tools"
)

func newSnapshotCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot URL...",
		Short: "Compile a snapshot of every page",
		Args:  cobra.MinimumNArgs(1),
	}
	stabilizeFirst := cmd.Flags().Bool("stabilize", true, "Wait for the DOM to settle before compiling")

	cmd.RunE = func(cmd *cobra.Command, urls []string) error {
		return run(cmd.Context(), g, urls, func(ctx context.Context, p *page) (tools.Result, error) {
			return p.tools.Invoke(ctx, "snapshot", map[string]any{"stabilize": *stabilizeFirst})
		})
	}
	return cmd
}

func newActionablesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actionables URL...",
		Short: "List the best interactive elements of every page",
		Args:  cobra.MinimumNArgs(1),
	}
	layer := cmd.Flags().String("layer", string(snapshot.LayerMain), "Layer: main, modal, drawer, popover")
	limit := cmd.Flags().Int("max", 0, "Maximum elements per page (0 uses max_actionables)")

	cmd.RunE = func(cmd *cobra.Command, urls []string) error {
		if _, err := snapshot.ParseLayer(*layer); err != nil {
			return err
		}
		return run(cmd.Context(), g, urls, func(ctx context.Context, p *page) (tools.Result, error) {
			if _, err := p.tools.Invoke(ctx, "snapshot", map[string]any{"stabilize": true}); err != nil {
				return tools.Result{}, err
			}
			return p.tools.Invoke(ctx, "actionables", map[string]any{"layer": *layer, "max": *limit})
		})
	}
	return cmd
}

// target selects the element a click acts on.
type target struct {
	eid   string
	label string
	kind  string
}

func (t target) validate() error {
	switch {
	case t.eid == "" && t.label == "":
		return errors.New("one of --eid or --label is required")
	case t.eid != "" && t.label != "":
		return errors.New("--eid and --label are mutually exclusive")
	case t.kind != "" && !snapshot.NodeKind(t.kind).Valid():
		return fmt.Errorf("unknown kind %q", t.kind)
	}
	return nil
}

// resolve returns the eid of the element t names in snap. Without a kind
// the first interactive node with the label wins.
func (t target) resolve(snap *snapshot.Snapshot) (string, error) {
	if t.eid != "" {
		return t.eid, nil
	}
	if snap == nil {
		return "", errors.New("no snapshot to resolve the label against")
	}
	for _, n := range snap.Nodes {
		if n.Label != t.label {
			continue
		}
		if (t.kind == "" && snapshot.IsInteractiveNode(n)) || (t.kind != "" && string(n.Kind) == t.kind) {
			return element.NodeEID(n), nil
		}
	}
	if t.kind != "" {
		return "", fmt.Errorf("no %s labelled %q", t.kind, t.label)
	}
	return "", fmt.Errorf("no interactive element labelled %q", t.label)
}

func newClickCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "click URL",
		Short: "Click an element by eid or label, or type into it with --text",
		Args:  cobra.ExactArgs(1),
	}
	var t target
	cmd.Flags().StringVar(&t.eid, "eid", "", "Element id from a snapshot of the same page")
	cmd.Flags().StringVar(&t.label, "label", "", "Element label")
	cmd.Flags().StringVar(&t.kind, "kind", "", "Element kind used with --label (button, link, input, ...)")
	text := cmd.Flags().String("text", "", "Type this text into the element instead of clicking")

	cmd.RunE = func(cmd *cobra.Command, urls []string) error {
		t.eid, t.label, t.kind = strings.TrimSpace(t.eid), strings.TrimSpace(t.label), strings.TrimSpace(t.kind)
		if err := t.validate(); err != nil {
			return err
		}
		return run(cmd.Context(), g, urls, func(ctx context.Context, p *page) (tools.Result, error) {
			res, err := p.tools.Invoke(ctx, "snapshot", map[string]any{"stabilize": true})
			if err != nil {
				return tools.Result{}, err
			}
			snap, _ := res.Data.(*snapshot.Snapshot)
			eid, err := t.resolve(snap)
			if err != nil {
				return tools.Result{}, err
			}
			if *text != "" {
				return p.tools.Invoke(ctx, "type", map[string]any{"eid": eid, "text": *text})
			}
			return p.tools.Invoke(ctx, "click", map[string]any{"eid": eid})
		})
	}
	return cmd
}

func run(ctx context.Context, g *globals, urls []string, fn pageFunc) error {
	e, err := newEngine(ctx, g.cfg, g.logger)
	if err != nil {
		return err
	}
	defer e.Close()

	results, runErr := e.forEachURL(ctx, urls, fn)
	for _, r := range results {
		if err := g.printer.Print(r); err != nil {
			return err
		}
	}
	return runErr
}
