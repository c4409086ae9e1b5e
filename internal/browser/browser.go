// Package browser owns browser lifecycles and hands out per-page sessions
// whose transport the snapshot engine drives.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
)

const defaultNavTimeout = 30 * time.Second

// Session is one browser page plus the protocol transport bound to it.
type Session interface {
	Handle() cdp.Handle
	Navigate(ctx context.Context, url string) error
	WaitForNetworkIdle(ctx context.Context, opts IdleOptions) error
	// OnClose registers fn to run once when the page goes away.
	OnClose(fn func(pageID string))
	Close(ctx context.Context) error
}

// LaunchOptions configures a playwright-managed Chromium.
type LaunchOptions struct {
	Headless   bool
	NavTimeout time.Duration
	Args       []string
}

// Launcher owns playwright lifecycle.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    LaunchOptions
	logger  zerolog.Logger
}

func NewLauncher(ctx context.Context, opts LaunchOptions, logger zerolog.Logger) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}
	args := append([]string{"--disable-dev-shm-usage", "--no-sandbox"}, opts.Args...)

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With().Str("comp", "browser").Logger(),
	}, nil
}

// NewSession opens a fresh context and page. storagePath optionally points
// at a saved playwright storage state.
func (l *Launcher) NewSession(ctx context.Context, storagePath string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if strings.TrimSpace(storagePath) != "" {
		if _, err := os.Stat(storagePath); err == nil {
			opts.StorageStatePath = playwright.String(storagePath)
		}
	}
	bctx, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	pg, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	pg.SetDefaultTimeout(float64(l.opts.NavTimeout.Milliseconds()))

	session, err := bctx.NewCDPSession(pg)
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new cdp session: %w", err)
	}
	conn := cdp.NewPlaywrightTransport(session)

	s := &pageSession{
		context:    bctx,
		page:       pg,
		handle:     cdp.Handle{PageID: mainFrameID(ctx, conn), Conn: conn},
		navTimeout: l.opts.NavTimeout,
		logger:     l.logger,
	}
	pg.OnClose(func(playwright.Page) { s.closed.fire(s.handle.PageID) })
	l.logger.Debug().Str("page", s.handle.PageID).Msg("page session opened")
	return s, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type pageSession struct {
	context    playwright.BrowserContext
	page       playwright.Page
	handle     cdp.Handle
	navTimeout time.Duration
	logger     zerolog.Logger
	closed     closeHooks
}

func (s *pageSession) Handle() cdp.Handle { return s.handle }

func (s *pageSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(s.navTimeout.Milliseconds())),
	})
	return wrap(err)
}

// WaitForNetworkIdle relies on playwright's networkidle load state, which
// fixes the quiet window at 500ms, so opts.Quiet is ignored here.
func (s *pageSession) WaitForNetworkIdle(ctx context.Context, opts IdleOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts = opts.withDefaults()
	err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(opts.Timeout.Milliseconds())),
	})
	return idleResult(ctx, err, s.logger)
}

// idleResult treats a timed out idle wait as done. Only failures that leave
// the page unusable reach the caller.
func idleResult(ctx context.Context, err error, logger zerolog.Logger) error {
	switch {
	case err == nil, errors.Is(err, playwright.ErrTimeout):
		return nil
	case cdp.IsCritical(err):
		return wrap(err)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	logger.Debug().Err(err).Msg("network idle wait failed, continuing")
	return nil
}

func (s *pageSession) OnClose(fn func(pageID string)) { s.closed.add(fn) }

func (s *pageSession) Close(ctx context.Context) error {
	_ = ctx
	_ = s.handle.Conn.Close()
	if s.page != nil {
		_ = s.page.Close()
	}
	s.closed.fire(s.handle.PageID)
	if s.context != nil {
		return wrap(s.context.Close())
	}
	return nil
}

// mainFrameID uses the main frame id as page id. It matches the target id
// the debugger endpoint reports, so attached and launched pages share one
// id space.
func mainFrameID(ctx context.Context, conn cdp.Transport) string {
	tree, err := cdp.Call[page.GetFrameTreeReturns](ctx, conn, page.CommandGetFrameTree, page.GetFrameTree())
	if err != nil || tree.FrameTree == nil || tree.FrameTree.Frame == nil || tree.FrameTree.Frame.ID == "" {
		return uuid.NewString()
	}
	return string(tree.FrameTree.Frame.ID)
}

// closeHooks runs registered callbacks exactly once.
type closeHooks struct {
	mu    sync.Mutex
	fns   []func(string)
	fired bool
}

func (h *closeHooks) add(fn func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *closeHooks) fire(pageID string) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	fns := h.fns
	h.mu.Unlock()
	for _, fn := range fns {
		fn(pageID)
	}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("playwright: %w", err)
}
