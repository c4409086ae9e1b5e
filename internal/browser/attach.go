package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

// Attach connects to the first page of a browser already running with
// --remote-debugging-port at debuggerURL.
func Attach(ctx context.Context, debuggerURL string, navTimeout time.Duration, logger zerolog.Logger) (Session, error) {
	target, err := cdp.DiscoverPage(ctx, debuggerURL)
	if err != nil {
		return nil, err
	}
	conn, err := cdp.DialWS(ctx, target.WebSocketDebuggerURL, logger)
	if err != nil {
		return nil, err
	}
	return newAttachedSession(target.ID, conn, navTimeout, logger), nil
}

// attachedSession drives a page over a raw protocol transport. Closing it
// drops the connection but leaves the page open in the browser.
type attachedSession struct {
	handle     cdp.Handle
	navTimeout time.Duration
	logger     zerolog.Logger
	closed     closeHooks
}

func newAttachedSession(pageID string, conn cdp.Transport, navTimeout time.Duration, logger zerolog.Logger) *attachedSession {
	if navTimeout <= 0 {
		navTimeout = defaultNavTimeout
	}
	s := &attachedSession{
		handle:     cdp.Handle{PageID: pageID, Conn: conn},
		navTimeout: navTimeout,
		logger:     logger.With().Str("comp", "browser").Str("page", pageID).Logger(),
	}
	conn.On("Inspector.detached", func(json.RawMessage) {
		s.logger.Debug().Msg("inspector detached")
		s.closed.fire(pageID)
	})
	return s
}

func (s *attachedSession) Handle() cdp.Handle { return s.handle }

// Navigate loads url and waits for the load event.
func (s *attachedSession) Navigate(ctx context.Context, url string) error {
	conn := s.handle.Conn
	loaded := make(chan struct{}, 1)
	id := conn.Once("Page.loadEventFired", func(json.RawMessage) {
		select {
		case loaded <- struct{}{}:
		default:
		}
	})
	defer conn.Off("Page.loadEventFired", id)

	if err := cdp.Exec(ctx, conn, page.CommandEnable, page.Enable()); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	res, err := cdp.Call[page.NavigateReturns](ctx, conn, page.CommandNavigate, page.Navigate(url))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if res.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", url, res.ErrorText)
	}

	timer := time.NewTimer(s.navTimeout)
	defer timer.Stop()
	select {
	case <-loaded:
		return nil
	case <-timer.C:
		return fmt.Errorf("navigate %s: no load event within %s", url, s.navTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *attachedSession) WaitForNetworkIdle(ctx context.Context, opts IdleOptions) error {
	return WaitForNetworkIdle(ctx, s.handle.Conn, opts, s.logger)
}

func (s *attachedSession) OnClose(fn func(pageID string)) { s.closed.add(fn) }

func (s *attachedSession) Close(ctx context.Context) error {
	_ = ctx
	err := s.handle.Conn.Close()
	s.closed.fire(s.handle.PageID)
	return err
}
