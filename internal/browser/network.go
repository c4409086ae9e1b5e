package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

const (
	DefaultIdleQuiet   = 500 * time.Millisecond
	DefaultIdleTimeout = 5 * time.Second

	activePoll = 50 * time.Millisecond
)

// IdleOptions bounds a network-idle wait.
type IdleOptions struct {
	// Quiet is how long no request may be in flight.
	Quiet   time.Duration `yaml:"quiet"`
	Timeout time.Duration `yaml:"timeout"`
}

func (o IdleOptions) withDefaults() IdleOptions {
	if o.Quiet <= 0 {
		o.Quiet = DefaultIdleQuiet
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultIdleTimeout
	}
	return o
}

// WaitForNetworkIdle waits until no request has been in flight for
// opts.Quiet. Reaching opts.Timeout is a normal outcome and returns nil.
// Critical transport failures and page crashes are returned.
func WaitForNetworkIdle(ctx context.Context, conn cdp.Transport, opts IdleOptions, logger zerolog.Logger) error {
	opts = opts.withDefaults()

	var (
		mu       sync.Mutex
		inflight = make(map[string]struct{})
	)
	activity := make(chan struct{}, 1)
	crashed := make(chan struct{}, 1)
	notify := func(ch chan struct{}) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	track := func(add bool) cdp.EventHandler {
		return func(raw json.RawMessage) {
			var ev struct {
				RequestID string `json:"requestId"`
			}
			if json.Unmarshal(raw, &ev) != nil || ev.RequestID == "" {
				return
			}
			mu.Lock()
			if add {
				inflight[ev.RequestID] = struct{}{}
			} else {
				delete(inflight, ev.RequestID)
			}
			mu.Unlock()
			notify(activity)
		}
	}
	pending := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(inflight)
	}

	subs := []struct {
		event string
		id    cdp.ListenerID
	}{
		{event: "Network.requestWillBeSent", id: conn.On("Network.requestWillBeSent", track(true))},
		{event: "Network.loadingFinished", id: conn.On("Network.loadingFinished", track(false))},
		{event: "Network.loadingFailed", id: conn.On("Network.loadingFailed", track(false))},
		{event: "Inspector.targetCrashed", id: conn.On("Inspector.targetCrashed", func(json.RawMessage) { notify(crashed) })},
	}
	defer func() {
		for _, s := range subs {
			conn.Off(s.event, s.id)
		}
	}()

	if err := cdp.Exec(ctx, conn, network.CommandEnable, network.Enable()); err != nil {
		if cdp.IsCritical(err) || ctx.Err() != nil {
			return fmt.Errorf("wait for network idle: %w", err)
		}
		logger.Debug().Err(err).Msg("network domain unavailable, skipping idle wait")
		return nil
	}

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	quiet := time.NewTimer(opts.Quiet)
	defer quiet.Stop()
	poll := time.NewTicker(activePoll)
	defer poll.Stop()

	for {
		select {
		case <-quiet.C:
			if pending() == 0 {
				return nil
			}
		case <-activity:
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(opts.Quiet)
		case <-crashed:
			return fmt.Errorf("wait for network idle: page crashed")
		case <-poll.C:
			if !conn.IsActive() {
				return fmt.Errorf("wait for network idle: %w", cdp.ErrSessionClosed)
			}
		case <-deadline.C:
			logger.Debug().Int("inflight", pending()).Dur("timeout", opts.Timeout).Msg("network idle wait timed out")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
