// Package action runs element interactions and recovers once from stale
// element references by re-snapshotting the page.
package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/element"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/stabilize"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/store"
)

// staleSignatures mark errors meaning the targeted node no longer exists.
var staleSignatures = []string{
	"no node with given id",
	"no node found for given backend id",
	"could not find node with given id",
	"protocol error (dom.scrollintoviewifneeded)",
	"node is detached from document",
	"node has been deleted",
}

// IsStale reports whether err says the element reference went stale.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range staleSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// Compiler produces a fresh snapshot of a page.
type Compiler interface {
	Compile(ctx context.Context, h cdp.Handle) (*snapshot.Snapshot, error)
}

// Stabilizer waits for a page's DOM to settle.
type Stabilizer interface {
	Stabilize(ctx context.Context, h cdp.Handle, opts stabilize.Options) (stabilize.Result, error)
}

// Result describes one action execution. Failures of the action itself are
// reported here rather than as an error.
type Result struct {
	Success  bool   `json:"success"            yaml:"success"`
	Error    string `json:"error,omitempty"    yaml:"error,omitempty"`
	Note     string `json:"note,omitempty"     yaml:"note,omitempty"`
	Retried  bool   `json:"retried"            yaml:"retried"`
	Attempts int    `json:"attempts"           yaml:"attempts"`
	// Node is the node the last attempt targeted.
	Node          snapshot.ReadableNode `json:"node"               yaml:"node"`
	Stabilization stabilize.Result      `json:"stabilization"      yaml:"stabilization"`
	Snapshot      *snapshot.Snapshot    `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Warning       string                `json:"warning,omitempty"  yaml:"warning,omitempty"`
}

// Executor runs actions with a single staleness retry and always finishes
// with a stabilized, freshly compiled snapshot.
type Executor struct {
	logger     zerolog.Logger
	compiler   Compiler
	stabilizer Stabilizer
	opts       stabilize.Options
}

// NewExecutor wires an executor. opts bounds the final stabilization.
func NewExecutor(logger zerolog.Logger, compiler Compiler, stabilizer Stabilizer, opts stabilize.Options) *Executor {
	return &Executor{
		logger:     logger.With().Str("comp", "action").Logger(),
		compiler:   compiler,
		stabilizer: stabilizer,
		opts:       opts,
	}
}

// ExecuteWithRetry runs act against node. If it fails with a stale element
// reference the page is recompiled, a node with the same label and kind is
// looked up and act runs exactly once more. Snapshots compiled along the
// way are persisted to st when it is non-nil.
//
// An error is returned only when the page or session is gone, or ctx is
// done; every other failure is reported in the Result.
func (e *Executor) ExecuteWithRetry(ctx context.Context, h cdp.Handle, node snapshot.ReadableNode, act Action, st store.Store) (*Result, error) {
	if h.Conn == nil {
		return nil, fmt.Errorf("execute on %s %q: page %s has no transport", node.Kind, node.Label, h.PageID)
	}
	log := e.logger.With().Str("page", h.PageID).Str("kind", string(node.Kind)).Str("label", node.Label).Logger()
	res := &Result{Node: node, Attempts: 1}

	err := act(ctx, h, node.BackendNodeID)
	switch {
	case err == nil:
		res.Success = true
	case cdp.IsCritical(err) || ctx.Err() != nil:
		return nil, fmt.Errorf("%s %q: %w", node.Kind, node.Label, err)
	case !IsStale(err):
		res.Error = fmt.Sprintf("%s %q: %v", node.Kind, node.Label, err)
	default:
		log.Info().Err(err).Msg("stale element reference, retrying once")
		if rerr := e.retry(ctx, h, node, act, st, res); rerr != nil {
			return nil, rerr
		}
	}

	if err := e.finish(ctx, h, st, res); err != nil {
		return nil, err
	}
	log.Debug().
		Bool("success", res.Success).
		Bool("retried", res.Retried).
		Str("error", res.Error).
		Msg("action finished")
	return res, nil
}

func (e *Executor) retry(ctx context.Context, h cdp.Handle, node snapshot.ReadableNode, act Action, st store.Store, res *Result) error {
	res.Retried = true

	fresh, err := e.compiler.Compile(ctx, h)
	if err != nil {
		if cdp.IsCritical(err) || ctx.Err() != nil {
			return fmt.Errorf("recompile for %s %q: %w", node.Kind, node.Label, err)
		}
		res.Error = fmt.Sprintf("Retry failed: recompile for %s %q: %v", node.Kind, node.Label, err)
		return nil
	}
	e.persist(ctx, h.PageID, fresh, st, res)

	match, ok := element.FindByLabelKind(fresh, node.Label, node.Kind)
	if !ok {
		res.Error = fmt.Sprintf("Retry failed: no %s labelled %q in the refreshed snapshot", node.Kind, node.Label)
		return nil
	}

	res.Attempts++
	res.Node = match
	if err := act(ctx, h, match.BackendNodeID); err != nil {
		if cdp.IsCritical(err) || ctx.Err() != nil {
			return fmt.Errorf("retry %s %q: %w", node.Kind, node.Label, err)
		}
		res.Error = fmt.Sprintf("Retry failed: %s %q: %v", node.Kind, node.Label, err)
		return nil
	}
	res.Success = true
	res.Note = fmt.Sprintf("element reference went stale; retried against backend node %d", match.BackendNodeID)
	return nil
}

// finish re-stabilizes the page and compiles the snapshot handed back to
// the caller.
func (e *Executor) finish(ctx context.Context, h cdp.Handle, st store.Store, res *Result) error {
	stab, err := e.stabilizer.Stabilize(ctx, h, e.opts)
	if err != nil {
		return fmt.Errorf("stabilize after %s %q: %w", res.Node.Kind, res.Node.Label, err)
	}
	res.Stabilization = stab

	snap, err := e.compiler.Compile(ctx, h)
	if err != nil {
		if cdp.IsCritical(err) || ctx.Err() != nil {
			return fmt.Errorf("final snapshot after %s %q: %w", res.Node.Kind, res.Node.Label, err)
		}
		res.Warning = fmt.Sprintf("final snapshot: %v", err)
		return nil
	}
	res.Snapshot = snap
	e.persist(ctx, h.PageID, snap, st, res)
	return nil
}

func (e *Executor) persist(ctx context.Context, pageID string, snap *snapshot.Snapshot, st store.Store, res *Result) {
	if st == nil {
		return
	}
	if err := st.Put(ctx, pageID, snap); err != nil {
		e.logger.Warn().Err(err).Str("page", pageID).Msg("persist snapshot")
		res.Warning = fmt.Sprintf("store snapshot: %v", err)
	}
}
