// Command sitebuilderd runs the site builder dev backend: the SQLite store,
// the simulated stage runner and the REST API.
//
// Usage: sitebuilderd [-env .env] [-addr :8080] [-seed]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Hamiltonwise/signalsai-sub006/internal/config"
	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/llm"
	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/server"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// editor is both halves of the LLM collaborator.
type editor interface {
	editsession.Editor
	worker.Writer
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sitebuilderd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("sitebuilderd", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "optional dotenv file")
	addr := fs.String("addr", "", "listen address (overrides SITEBUILDER_ADDR)")
	seed := fs.Bool("seed", false, "create a starter template when none exist")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}

	logger := logging.NewLogger(os.Stdout, "sitebuilderd", logging.ParseLevel(cfg.Log.Level))
	cfg.Server.Logger = logger

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ed, err := newEditor(cfg.LLM, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *seed {
		if err := seedTemplate(ctx, st, logger); err != nil {
			return err
		}
	}

	runner := worker.New(st, ed, cfg.Worker, logger)
	srv, err := server.New(cfg.Server, st, runner, ed)
	if err != nil {
		return err
	}
	httpSrv := srv.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", logging.Field{Key: "error", Value: err.Error()})
		}
		return runner.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newEditor(cfg llm.Config, logger logging.Logger) (editor, error) {
	if cfg.APIKey == "" {
		logger.Warn("no LLM API key configured, using the static editor")
		return llm.NewStaticEditor(), nil
	}
	e, err := llm.NewHTTPEditor(cfg, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("llm editor: %w", err)
	}
	return e, nil
}

func seedTemplate(ctx context.Context, st *store.Store, logger logging.Logger) error {
	existing, err := st.ListTemplates(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	t, err := st.CreateTemplate(ctx, "starter", []pipeline.TemplatePage{
		{Path: "/", Sections: []pages.Section{
			{Name: "hero", Content: `<section class="hero" style="background:{{primary_color}}"><h1>Welcome</h1><p>Your new website.</p></section>`},
			{Name: "cta", Content: `<a class="button" style="background:{{accent_color}}" href="/contact">Book a visit</a>`},
		}},
		{Path: "/about", Sections: []pages.Section{
			{Name: "body", Content: `<article><h2>About us</h2><p>Tell visitors who you are.</p></article>`},
		}},
		{Path: "/contact", Sections: []pages.Section{
			{Name: "body", Content: `<section><h2>Contact</h2><p>Call or drop by.</p></section>`},
		}},
	})
	if err != nil {
		return fmt.Errorf("seed template: %w", err)
	}
	logger.Info("seeded template", logging.Field{Key: "template_id", Value: t.ID})
	return nil
}
