package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/action"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/browser"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/cdp"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/config"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/metrics"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/stabilize"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/store"
	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/tools"
)

const (
	maxConcurrentPages = 4
	shutdownTimeout    = 5 * time.Second
)

// engine owns everything shared by the pages of one command run.
type engine struct {
	cfg      config.Config
	logger   zerolog.Logger
	store    store.Store
	metrics  *metrics.Collector
	compiler *snapshot.Compiler
	stab     *stabilize.Stabilizer
	executor *action.Executor
	launcher *browser.Launcher

	closers []func()
}

func newEngine(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*engine, error) {
	e := &engine{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.NewCollector(prometheus.NewRegistry()),
		compiler: snapshot.NewCompiler(logger, cfg.SnapshotOptions()),
		stab:     stabilize.New(logger),
	}
	e.executor = action.NewExecutor(logger, e.compiler, e.stab, cfg.Stabilize)

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, closeStore)

	if cfg.Metrics.Addr != "" {
		e.closers = append(e.closers, serveMetrics(cfg.Metrics.Addr, e.metrics, logger))
	}

	if cfg.Browser.Mode == config.ModeLaunch {
		l, err := browser.NewLauncher(ctx, cfg.LaunchOptions(), logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.launcher = l
		e.closers = append(e.closers, func() {
			if err := l.Close(); err != nil {
				logger.Warn().Err(err).Msg("close browser")
			}
		})
	}
	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	if cfg.Backend != config.BackendRedis {
		return store.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return store.NewRedisStore(client, cfg.KeyPrefix, cfg.TTL), func() { _ = client.Close() }, nil
}

func serveMetrics(addr string, c *metrics.Collector, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// page is one open, navigated page with its toolbox.
type page struct {
	session browser.Session
	tools   tools.Toolbox
}

func (e *engine) openPage(ctx context.Context, url string) (*page, error) {
	var (
		s   browser.Session
		err error
	)
	if e.launcher != nil {
		s, err = e.launcher.NewSession(ctx, e.cfg.Browser.StorageState)
	} else {
		s, err = browser.Attach(ctx, e.cfg.Browser.DebuggerURL, e.cfg.Browser.NavTimeout, e.logger)
	}
	if err != nil {
		return nil, err
	}
	browser.RemoveOnClose(s, e.store, e.logger)

	if err := s.Navigate(ctx, url); err != nil {
		e.closeSession(s)
		return nil, err
	}
	if err := s.WaitForNetworkIdle(ctx, e.cfg.NetworkIdle); err != nil {
		if cdp.IsCritical(err) || ctx.Err() != nil {
			e.closeSession(s)
			return nil, err
		}
		e.logger.Warn().Err(err).Str("url", url).Msg("network idle wait")
	}

	box := tools.New(s.Handle(), tools.Deps{
		Compiler:       e.compiler,
		Stabilizer:     e.stab,
		Executor:       e.executor,
		Store:          e.store,
		Metrics:        e.metrics,
		Stabilize:      e.cfg.Stabilize,
		MaxActionables: e.cfg.MaxActionables,
		CompileTimeout: e.cfg.Browser.NavTimeout,
		Logger:         e.logger,
	})
	return &page{session: s, tools: box}, nil
}

func (e *engine) closeSession(s browser.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		e.logger.Debug().Err(err).Str("page", s.Handle().PageID).Msg("close page")
	}
}

// pageResult is what a command prints for one URL.
type pageResult struct {
	URL         string `json:"url"              yaml:"url"`
	Error       string `json:"error,omitempty"  yaml:"error,omitempty"`
	Result      any    `json:"result,omitempty" yaml:"result,omitempty"`
	observation string
}

func (r pageResult) String() string {
	if r.Error != "" {
		return fmt.Sprintf("== %s\nerror: %s", r.URL, r.Error)
	}
	return fmt.Sprintf("== %s\n%s", r.URL, r.observation)
}

type pageFunc func(ctx context.Context, p *page) (tools.Result, error)

// forEachURL opens every URL in its own page and runs fn on it, a few
// pages at a time. Results keep the order of urls. A failing page does not
// stop the others; the failures are joined into the returned error.
func (e *engine) forEachURL(ctx context.Context, urls []string, fn pageFunc) ([]pageResult, error) {
	if e.launcher == nil && len(urls) > 1 {
		return nil, fmt.Errorf("attach mode drives a single page, got %d urls", len(urls))
	}
	results := make([]pageResult, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(maxConcurrentPages)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			results[i] = pageResult{URL: url}
			res, err := e.runPage(ctx, url, fn)
			if err != nil {
				results[i].Error = err.Error()
				errs[i] = fmt.Errorf("%s: %w", url, err)
				return nil
			}
			results[i].Result = res.Data
			results[i].observation = res.Observation
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

func (e *engine) runPage(ctx context.Context, url string, fn pageFunc) (tools.Result, error) {
	log := e.logger.With().Str("url", url).Logger()
	p, err := e.openPage(ctx, url)
	if err != nil {
		return tools.Result{}, err
	}
	defer e.closeSession(p.session)

	log.Debug().Str("page", p.session.Handle().PageID).Msg("page ready")
	return fn(ctx, p)
}
