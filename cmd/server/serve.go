package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/actionflow/internal/action/builtin"
	"github.com/gyaneshwarpardhi/actionflow/internal/api"
	"github.com/gyaneshwarpardhi/actionflow/internal/config"
	"github.com/gyaneshwarpardhi/actionflow/internal/engine"
	"github.com/gyaneshwarpardhi/actionflow/internal/history"
)

const defaultAddr = ":8080"

type serveOptions struct {
	Addr string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", defaultAddr, "HTTP listen address")
	return cmd
}

func runServe(parent context.Context, root *rootFlags, opts serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(root.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(cfg.Engine, engine.WithLogger(slog.Default().With("component", "engine")))
	defer eng.Shutdown()

	catalog := builtin.Default()
	if err := eng.Apply(cfg, catalog); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}

	// ── History store ─────────────────────────────────────────────────────────
	var hist api.HistoryReader
	if cfg.Engine.HistoryPath != "" {
		store, err := history.OpenAt(cfg.Engine.HistoryPath)
		if err != nil {
			return err
		}
		outcomes, cancel := eng.Subscribe(0)
		sinkDone := make(chan struct{})
		go func() {
			defer close(sinkDone)
			store.Sink(context.WithoutCancel(ctx), outcomes, slog.Default().With("component", "history"))
		}()
		// Shutdown closes the subscription, which ends the sink.
		defer func() {
			eng.Shutdown()
			cancel()
			<-sinkDone
			store.Close()
		}()
		hist = store
		slog.Info("history store opened", "path", cfg.Engine.HistoryPath)
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	// Engine tuning (concurrency, loop intervals) is fixed at startup; reloads
	// only change the declared actions.
	loader.OnChange(func(newCfg *config.Config) error {
		if newCfg.Engine != cfg.Engine {
			slog.Warn("engine settings changed on disk; restart to apply them")
		}
		return eng.Apply(newCfg, catalog)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      api.New(eng, loader, hist),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	return nil
}
