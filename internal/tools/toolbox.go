package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/action"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/element"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/metrics"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/stabilize"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/store"
)

type Toolbox interface {
	Describe() []Tool
	Invoke(ctx context.Context, name string, input map[string]any) (Result, error)
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Result is what a tool hands back to the agent. Data carries the
// structured value behind Observation for callers that print it.
type Result struct {
	Observation string `json:"observation" yaml:"observation"`
	Data        any    `json:"data,omitempty" yaml:"data,omitempty"`
}

// Deps are the collaborators a toolbox drives. Store defaults to an
// in-memory store and Metrics may be nil.
type Deps struct {
	Compiler       action.Compiler
	Stabilizer     action.Stabilizer
	Executor       *action.Executor
	Store          store.Store
	Metrics        *metrics.Collector
	Stabilize      stabilize.Options
	MaxActionables int
	// CompileTimeout bounds one compile; zero leaves it unbounded.
	CompileTimeout time.Duration
	Logger         zerolog.Logger
}

type standard struct {
	h      cdp.Handle
	deps   Deps
	logger zerolog.Logger
	tools  []Tool
}

// New returns the toolbox for the page behind h.
func New(h cdp.Handle, deps Deps) Toolbox {
	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	return &standard{
		h:      h,
		deps:   deps,
		logger: deps.Logger.With().Str("comp", "tools").Str("page", h.PageID).Logger(),
		tools: []Tool{
			newTool("snapshot", "Capture the page as a list of elements with their eids", schema{"stabilize": boolean("wait for the DOM to settle first")}, nil),
			newTool("actionables", "List the best interactive elements of a layer", schema{"layer": str("main|modal|drawer|popover"), "max": integer("maximum number of elements")}, nil),
			newTool("locator", "Build a playwright locator for an element", schema{"eid": str("element id from the snapshot")}, []string{"eid"}),
			newTool("click", "Click an element by eid", schema{"eid": str("element id from the snapshot")}, []string{"eid"}),
			newTool("type", "Focus an element by eid and type text into it", schema{"eid": str("element id from the snapshot"), "text": str("text to type")}, []string{"eid", "text"}),
			newTool("stabilize", "Wait until the DOM stops changing", schema{"quiet_ms": integer("quiet window ms"), "timeout_ms": integer("timeout ms")}, nil),
		},
	}
}

func (s *standard) Describe() []Tool {
	return append([]Tool(nil), s.tools...)
}

func (s *standard) Invoke(ctx context.Context, name string, input map[string]any) (Result, error) {
	switch name {
	case "snapshot":
		if optionalBool(input, "stabilize") {
			if _, err := s.stabilize(ctx, s.deps.Stabilize); err != nil {
				return Result{}, err
			}
		}
		snap, err := s.compile(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: snap.Listing(element.NodeEID), Data: snap}, nil

	case "actionables":
		layer := snapshot.LayerMain
		if raw := optionalString(input, "layer"); raw != "" {
			l, err := snapshot.ParseLayer(raw)
			if err != nil {
				return Result{}, err
			}
			layer = l
		}
		limit := optionalInt(input, "max")
		if limit <= 0 {
			limit = s.deps.MaxActionables
		}
		snap, err := s.current(ctx)
		if err != nil {
			return Result{}, err
		}
		scored := element.SelectActionables(snap, layer, limit, nil)
		return Result{Observation: describeActionables(layer, scored), Data: scored}, nil

	case "locator":
		node, err := s.resolve(ctx, input)
		if err != nil {
			return Result{}, err
		}
		loc := element.GenerateLocator(node, nil)
		obs := "preferred: " + loc.Preferred
		if loc.Fallback != "" {
			obs += "\nfallback: " + loc.Fallback
		}
		return Result{Observation: obs, Data: loc}, nil

	case "click":
		node, err := s.resolve(ctx, input)
		if err != nil {
			return Result{}, err
		}
		return s.execute(ctx, name, node, action.Click())

	case "type":
		text, err := requiredString(input, "text")
		if err != nil {
			return Result{}, err
		}
		node, err := s.resolve(ctx, input)
		if err != nil {
			return Result{}, err
		}
		return s.execute(ctx, name, node, action.TypeText(text))

	case "stabilize":
		opts := s.deps.Stabilize
		if ms := optionalInt(input, "quiet_ms"); ms > 0 {
			opts.Quiet = time.Duration(ms) * time.Millisecond
		}
		if ms := optionalInt(input, "timeout_ms"); ms > 0 {
			opts.Timeout = time.Duration(ms) * time.Millisecond
		}
		res, err := s.stabilize(ctx, opts)
		if err != nil {
			return Result{}, err
		}
		obs := fmt.Sprintf("dom %s after %dms (%d mutations)", res.Status, res.WaitTimeMs, res.MutationCount)
		if res.Warning != "" {
			obs += ": " + res.Warning
		}
		return Result{Observation: obs, Data: res}, nil

	default:
		return Result{}, fmt.Errorf("unknown tool %s", name)
	}
}

// compile takes a fresh snapshot and stores it as the page's latest.
func (s *standard) compile(ctx context.Context) (*snapshot.Snapshot, error) {
	if s.deps.Compiler == nil {
		return nil, errors.New("snapshot compiler unavailable")
	}
	ctx, cancel := snapshot.WithDeadline(ctx, s.deps.CompileTimeout)
	defer cancel()
	start := time.Now()
	snap, err := s.deps.Compiler.Compile(ctx, s.h)
	if err != nil {
		s.deps.Metrics.RecordCompile(time.Since(start), 0, 0, err)
		return nil, err
	}
	s.deps.Metrics.RecordCompile(time.Since(start), snap.NodeCount, snap.InteractiveCount, nil)
	if err := s.deps.Store.Put(ctx, s.h.PageID, snap); err != nil {
		s.logger.Warn().Err(err).Str("snapshot", snap.ID).Msg("store snapshot")
	}
	return snap, nil
}

// current returns the stored snapshot, compiling one when there is none.
func (s *standard) current(ctx context.Context) (*snapshot.Snapshot, error) {
	snap, ok, err := s.deps.Store.GetByPageID(ctx, s.h.PageID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if ok {
		return snap, nil
	}
	return s.compile(ctx)
}

// resolve looks the input eid up in the stored snapshot. It never compiles.
func (s *standard) resolve(ctx context.Context, input map[string]any) (snapshot.ReadableNode, error) {
	eid, err := requiredString(input, "eid")
	if err != nil {
		return snapshot.ReadableNode{}, err
	}
	eid = strings.TrimSpace(eid)
	snap, ok, err := s.deps.Store.GetByPageID(ctx, s.h.PageID)
	if err != nil {
		return snapshot.ReadableNode{}, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return snapshot.ReadableNode{}, fmt.Errorf("no snapshot for page %s, call snapshot first", s.h.PageID)
	}
	node, ok := element.FindByEID(snap, eid)
	if !ok {
		return snapshot.ReadableNode{}, fmt.Errorf("eid %s not found in snapshot %s", eid, snap.ID)
	}
	return node, nil
}

func (s *standard) execute(ctx context.Context, tool string, node snapshot.ReadableNode, act action.Action) (Result, error) {
	if s.deps.Executor == nil {
		return Result{}, errors.New("action executor unavailable")
	}
	res, err := s.deps.Executor.ExecuteWithRetry(ctx, s.h, node, act, s.deps.Store)
	if err != nil {
		s.deps.Metrics.RecordAction(tool, "error", false)
		return Result{}, err
	}

	outcome := "failure"
	if res.Success {
		outcome = "success"
	}
	s.deps.Metrics.RecordAction(tool, outcome, res.Retried)
	st := res.Stabilization
	s.deps.Metrics.RecordStabilize(string(st.Status), time.Duration(st.WaitTimeMs)*time.Millisecond, st.MutationCount)

	var b strings.Builder
	if res.Success {
		fmt.Fprintf(&b, "%s on %s %q done", tool, res.Node.Kind, res.Node.Label)
	} else {
		fmt.Fprintf(&b, "%s failed: %s", tool, res.Error)
	}
	if res.Note != "" {
		fmt.Fprintf(&b, "\nnote: %s", res.Note)
	}
	fmt.Fprintf(&b, "\ndom %s after %dms", st.Status, st.WaitTimeMs)
	if res.Warning != "" {
		fmt.Fprintf(&b, "\nwarning: %s", res.Warning)
	}
	if res.Snapshot != nil {
		fmt.Fprintf(&b, "\nnew snapshot %s with %d nodes", res.Snapshot.ID, res.Snapshot.NodeCount)
	}
	return Result{Observation: b.String(), Data: res}, nil
}

func (s *standard) stabilize(ctx context.Context, opts stabilize.Options) (stabilize.Result, error) {
	if s.deps.Stabilizer == nil {
		return stabilize.Result{}, errors.New("stabilizer unavailable")
	}
	res, err := s.deps.Stabilizer.Stabilize(ctx, s.h, opts)
	if err != nil {
		return stabilize.Result{}, err
	}
	s.deps.Metrics.RecordStabilize(string(res.Status), time.Duration(res.WaitTimeMs)*time.Millisecond, res.MutationCount)
	return res, nil
}

func describeActionables(layer snapshot.Layer, scored []element.ScoredNode) string {
	if len(scored) == 0 {
		return fmt.Sprintf("no actionable elements in layer %s", layer)
	}
	var b strings.Builder
	for i, sn := range scored {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d) [%s] %s %q score=%.2f", i+1, sn.EID, sn.Node.Kind, sn.Node.Label, sn.Score)
	}
	return b.String()
}

// Helpers for schema and extraction.
type schema map[string]any

func newTool(name, desc string, props schema, required []string) Tool {
	return Tool{
		Name:        name,
		Description: desc,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func requiredString(input map[string]any, key string) (string, error) {
	val, ok := input[key]
	if !ok {
		return "", fmt.Errorf("field %s required", key)
	}
	switch v := val.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("field %s empty", key)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("field %s must be string", key)
	}
}

func optionalString(input map[string]any, key string) string {
	switch v := input[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func optionalBool(input map[string]any, key string) bool {
	switch v := input[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func optionalInt(input map[string]any, key string) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	default:
		return 0
	}
}
