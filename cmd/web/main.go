package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/segmentio/encoding/json"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"finitefield.org/apifront/internal/apiconfig"
	"finitefield.org/apifront/internal/config"
	"finitefield.org/apifront/internal/handlers"
	"finitefield.org/apifront/internal/layout"
	"finitefield.org/apifront/internal/metadata"
	mw "finitefield.org/apifront/internal/middleware"
	"finitefield.org/apifront/internal/observability"
	"finitefield.org/apifront/internal/pagedata"
	"finitefield.org/apifront/internal/render"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "apifront:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "apifront",
		Usage: "Server-render pages from a JSON content API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file read before the process environment",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serve,
			},
			{
				Name:      "fetch",
				Usage:     "Fetch an endpoint and print the page data",
				ArgsUsage: "<endpoint>",
				Action:    fetchCommand,
			},
			{
				Name:      "metadata",
				Usage:     "Print the metadata generated for an endpoint",
				ArgsUsage: "<endpoint>",
				Action:    metadataCommand,
			},
		},
	}
}

// runtime bundles what every command builds from the configuration.
type runtime struct {
	cfg     config.Config
	logger  *zap.Logger
	fetcher *pagedata.Fetcher
	pages   []handlers.Page
}

func setup(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(config.WithEnvFile(c.String("env-file")))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.Dev {
		logger = logger.WithOptions(zap.Development())
	}
	endpoints := cfg.Endpoints()
	pages, err := handlers.LoadPages(cfg.Site.PagesFile, handlers.DefaultPages(endpoints))
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:     cfg,
		logger:  logger,
		fetcher: pagedata.NewFetcher(endpoints, pagedata.WithLogger(logger.Named("pagedata"))),
		pages:   pages,
	}, nil
}

func serve(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	router, err := newRouter(rt)
	if err != nil {
		return err
	}

	cfg := rt.cfg
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverLogger := rt.logger.Named("http").With(zap.String("addr", server.Addr))
	errCh := make(chan error, 1)
	go func() {
		serverLogger.Info("web listening",
			zap.String("api_base_url", cfg.API.BaseURL),
			zap.Int("pages", len(rt.pages)),
			zap.Bool("dev", cfg.Dev),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	rt.logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func newRouter(rt *runtime) (http.Handler, error) {
	cfg := rt.cfg

	var renderOpts []render.Option
	if cfg.Render.SanitizeMarkup {
		renderOpts = append(renderOpts, render.WithSanitizer(bluemonday.UGCPolicy()))
	}
	var layoutOpts []layout.Option
	if cfg.Render.Minify {
		layoutOpts = append(layoutOpts, layout.WithMinify())
	}
	lay, err := layout.New(layoutOpts...)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// RealIP trusts X-Forwarded-For; only run behind a proxy that sets it.
	r.Use(chimw.RealIP)
	r.Use(mw.HTMX)
	r.Use(mw.Logger(rt.logger.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	assetsDir := filepath.Join(cfg.Site.PublicDir, "assets")
	if info, err := os.Stat(assetsDir); err == nil && info.IsDir() {
		r.Handle("/assets/*", mw.AssetsWithCache("/assets", assetsDir))
	}

	h := handlers.New(handlers.Dependencies{
		Fetcher:  rt.fetcher,
		Renderer: render.New(renderOpts...),
		Layout:   lay,
		Site: handlers.Site{
			Name:          cfg.Site.Name,
			Lang:          cfg.Site.Lang,
			CanonicalBase: cfg.Site.CanonicalBase,
		},
		Logger: rt.logger,
	})
	h.Mount(r, rt.pages)
	return r, nil
}

func fetchCommand(c *cli.Context) error {
	endpoint := c.Args().First()
	if endpoint == "" {
		return cli.Exit("fetch needs an endpoint path, e.g. /api/home", 2)
	}
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	res := rt.fetcher.Fetch(c.Context, endpoint, apiconfig.FetchOptions{})
	return printJSON(c, res)
}

func metadataCommand(c *cli.Context) error {
	endpoint := c.Args().First()
	if endpoint == "" {
		return cli.Exit("metadata needs an endpoint path, e.g. /api/about", 2)
	}
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	var fallback metadata.Record
	for _, p := range rt.pages {
		if p.Endpoint == endpoint {
			fallback = p.Metadata
			break
		}
	}
	record := metadata.NewGenerator(rt.fetcher).Generate(c.Context, endpoint, fallback)
	return printJSON(c, record)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
