package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TFMV/graphview/config"
	"github.com/TFMV/graphview/ingest"
	"github.com/TFMV/graphview/metrics"
	"github.com/TFMV/graphview/server"
	"github.com/TFMV/graphview/session"
	"github.com/TFMV/graphview/viewer"
)

func newServeCommand() *cobra.Command {
	var (
		address  string
		dataFile string
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve interactive viewer sessions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			flags := cmd.Flags()
			if flags.Changed("address") {
				cfg.Address = address
			}
			if flags.Changed("data") {
				cfg.DataFile = dataFile
			}
			if flags.Changed("watch") {
				cfg.Watch = watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&dataFile, "data", "", "Graph export to serve")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the graph export when it changes")
	return cmd
}

func openStore(cfg *config.Config, logger *zap.Logger) (session.OverrideStore, error) {
	if cfg.StorePath == "" {
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}
	store, err := session.OpenBadgerStore(session.BadgerConfig{
		Path:   cfg.StorePath,
		TTL:    cfg.SessionTTL,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, nil
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close session store", zap.Error(err))
		}
	}()

	srv := server.New(server.Config{
		Address:        cfg.Address,
		AllowedOrigins: cfg.AllowedOrigins,
		Width:          cfg.Width,
		Height:         cfg.Height,
		Viewer: viewer.Options{
			Offload:         cfg.Offload,
			Layout:          cfg.Layout(),
			LargeThreshold:  cfg.LargeThreshold,
			EscalationBytes: cfg.EscalationBytes,
			CullPadding:     cfg.CullPadding,
			MinScale:        cfg.MinZoom,
			MaxScale:        cfg.MaxZoom,
		},
	}, server.Deps{
		Logger:     logger,
		Metrics:    metrics.DefaultRegistry(),
		Store:      store,
		Escalation: session.NewEscalationCache(cfg.EscalationFile),
	})

	g, gctx := errgroup.WithContext(ctx)

	switch {
	case cfg.DataFile != "" && cfg.Watch:
		w, err := ingest.NewWatcher(cfg.DataFile, func(exp *ingest.Export) {
			logger.Info("Graph export changed, reloading sessions",
				zap.Int("nodes", len(exp.Nodes)), zap.Int("edges", len(exp.Edges)))
			srv.SetGraph(gctx, exp)
		}, ingest.WithWatcherLogger(logger))
		if err != nil {
			return err
		}
		srv.SetGraph(gctx, w.Current())
		g.Go(func() error { return w.Run(gctx) })
	case cfg.DataFile != "":
		exp, err := ingest.LoadFile(cfg.DataFile)
		if err != nil {
			return fmt.Errorf("failed to process input file: %w", err)
		}
		srv.SetGraph(gctx, exp)
	}

	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
