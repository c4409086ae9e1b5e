// Package stabilize waits for a page's DOM to stop mutating before it is
// snapshotted or acted on.
package stabilize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

const (
	DefaultQuiet   = 100 * time.Millisecond
	DefaultTimeout = 2000 * time.Millisecond

	// defaultGrace is how long past the in-page timeout the Go side waits
	// for the evaluation to answer.
	defaultGrace = 500 * time.Millisecond
)

// Status is the outcome of one stabilization.
type Status string

const (
	StatusStable  Status = "stable"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Options bounds one stabilization.
type Options struct {
	Quiet   time.Duration `yaml:"quiet"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultOptions returns a 100ms quiet window and a 2s hard timeout.
func DefaultOptions() Options {
	return Options{Quiet: DefaultQuiet, Timeout: DefaultTimeout}
}

// Validate rejects ranges that could never resolve as stable.
func (o Options) Validate() error {
	switch {
	case o.Quiet <= 0:
		return fmt.Errorf("stabilize: quiet window must be positive, got %s", o.Quiet)
	case o.Timeout <= 0:
		return fmt.Errorf("stabilize: timeout must be positive, got %s", o.Timeout)
	case o.Quiet > o.Timeout:
		return fmt.Errorf("stabilize: quiet window %s exceeds timeout %s", o.Quiet, o.Timeout)
	}
	return nil
}

// Result reports how a stabilization ended.
type Result struct {
	Status        Status `json:"status"                  yaml:"status"`
	WaitTimeMs    int64  `json:"waitTimeMs"              yaml:"wait_time_ms"`
	MutationCount int    `json:"mutationCount,omitempty" yaml:"mutation_count,omitempty"`
	Warning       string `json:"warning,omitempty"       yaml:"warning,omitempty"`
}

// Stabilizer runs a MutationObserver inside the page and waits for a quiet
// window with no DOM mutations.
type Stabilizer struct {
	logger zerolog.Logger
	grace  time.Duration
}

// New returns a Stabilizer logging through logger.
func New(logger zerolog.Logger) *Stabilizer {
	return &Stabilizer{
		logger: logger.With().Str("comp", "stabilize").Logger(),
		grace:  defaultGrace,
	}
}

// Stabilize waits until the page in h has not mutated for opts.Quiet, or
// until opts.Timeout elapses. Failures to reach the page are reported in the
// result with StatusError. The only error returns are invalid options and
// cancellation of ctx by the caller.
func (s *Stabilizer) Stabilize(ctx context.Context, h cdp.Handle, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if h.Conn == nil {
		return Result{Status: StatusError, Warning: "no transport for page " + h.PageID}, nil
	}

	start := time.Now()
	guardCtx, cancel := context.WithTimeout(ctx, opts.Timeout+s.grace)
	defer cancel()

	type answer struct {
		res *runtime.EvaluateReturns
		err error
	}
	done := make(chan answer, 1)
	params := runtime.Evaluate(observerScript(opts)).
		WithAwaitPromise(true).
		WithReturnByValue(true)
	go func() {
		res, err := cdp.Call[*runtime.EvaluateReturns](guardCtx, h.Conn, runtime.CommandEvaluate, params)
		done <- answer{res: res, err: err}
	}()

	var out Result
	select {
	case a := <-done:
		out = s.interpret(a.res, a.err)
		if a.err != nil && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	case <-guardCtx.Done():
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		out = Result{
			Status:  StatusTimeout,
			Warning: fmt.Sprintf("page did not answer within %s", opts.Timeout+s.grace),
		}
	}
	if out.WaitTimeMs == 0 {
		out.WaitTimeMs = time.Since(start).Milliseconds()
	}

	s.logger.Debug().
		Str("page", h.PageID).
		Str("status", string(out.Status)).
		Int64("wait_ms", out.WaitTimeMs).
		Int("mutations", out.MutationCount).
		Str("warning", out.Warning).
		Msg("dom stabilization finished")
	return out, nil
}

func (s *Stabilizer) interpret(res *runtime.EvaluateReturns, err error) Result {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Status: StatusTimeout, Warning: "page did not answer before the hard timeout"}
		}
		return Result{Status: StatusError, Warning: fmt.Sprintf("stabilization script failed: %v", err)}
	}
	if res == nil || res.Result == nil {
		return Result{Status: StatusError, Warning: "stabilization script returned no result"}
	}
	if res.ExceptionDetails != nil {
		return Result{Status: StatusError, Warning: fmt.Sprintf("stabilization script threw: %s", res.ExceptionDetails.Error())}
	}

	var page struct {
		Status        string  `json:"status"`
		WaitTimeMs    float64 `json:"waitTimeMs"`
		MutationCount int     `json:"mutationCount"`
		Warning       string  `json:"warning"`
	}
	if err := json.Unmarshal(res.Result.Value, &page); err != nil {
		return Result{Status: StatusError, Warning: fmt.Sprintf("decode stabilization result: %v", err)}
	}
	out := Result{
		Status:        Status(page.Status),
		WaitTimeMs:    int64(page.WaitTimeMs),
		MutationCount: page.MutationCount,
		Warning:       page.Warning,
	}
	switch out.Status {
	case StatusStable, StatusTimeout:
	default:
		out.Status = StatusError
		if out.Warning == "" {
			out.Warning = fmt.Sprintf("unexpected stabilization status %q", page.Status)
		}
	}
	return out
}

// observerScript resolves once no mutation has been seen for the quiet
// window, or with "timeout" when the hard limit fires first.
func observerScript(opts Options) string {
	return fmt.Sprintf(`(() => new Promise((resolve) => {
	const quiet = %d;
	const limit = %d;
	const started = performance.now();
	const elapsed = () => Math.round(performance.now() - started);
	const root = document.body;
	if (!root) {
		resolve({status: "stable", waitTimeMs: 0, mutationCount: 0, warning: "document.body not available"});
		return;
	}
	let count = 0;
	let quietTimer;
	let hardTimer;
	let observer;
	let done = false;
	const finish = (status) => {
		if (done) return;
		done = true;
		clearTimeout(quietTimer);
		clearTimeout(hardTimer);
		if (observer) observer.disconnect();
		resolve({status: status, waitTimeMs: elapsed(), mutationCount: count});
	};
	try {
		observer = new MutationObserver((records) => {
			count += records.length;
			clearTimeout(quietTimer);
			quietTimer = setTimeout(() => finish("stable"), quiet);
		});
		observer.observe(root, {childList: true, subtree: true, attributes: true, characterData: true});
	} catch (e) {
		resolve({status: "stable", waitTimeMs: elapsed(), mutationCount: 0, warning: "mutation observer unavailable: " + e});
		return;
	}
	quietTimer = setTimeout(() => finish("stable"), quiet);
	hardTimer = setTimeout(() => finish("timeout"), limit);
}))()`, opts.Quiet.Milliseconds(), opts.Timeout.Milliseconds())
}
