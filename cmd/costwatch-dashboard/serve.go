package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/costwatch/costwatch-dashboard/api"
	"github.com/costwatch/costwatch-dashboard/dashboard"
	"github.com/costwatch/costwatch-dashboard/dataset"
	"github.com/costwatch/costwatch-dashboard/observability"
	"github.com/costwatch/costwatch-dashboard/source"
	"github.com/costwatch/costwatch-dashboard/threshold"
)

// app is the fully wired dashboard.
type app struct {
	holder     *source.Holder
	datasets   *dataset.Set
	thresholds *threshold.Controller
	builder    *dashboard.Builder
	views      *api.Views
	metrics    *observability.Metrics
	server     *api.Server
}

func buildApp(ctx context.Context, g *globals) (*app, error) {
	cfg, log := g.cfg, g.log
	clk := clock.New()

	sec, err := api.NewSecretProvider(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("secret provider: %w", err)
	}

	holder := source.NewHolder()
	name, provider, err := api.LoadSource(ctx, cfg.Source, sec)
	if err != nil {
		return nil, fmt.Errorf("source provider: %w", err)
	}
	if provider != nil {
		holder.Set(name, provider)
		log.Info("source provider configured", "provider", name)
	} else {
		log.Warn("no source provider configured; datasets will fail until one is set")
	}

	metrics := observability.NewMetrics()
	datasets := dataset.NewSet(holder, cfg.Intervals(), dataset.Options{
		Clock:   clk,
		Logger:  log,
		Observe: metrics.ObserveFetch,
	})

	var limiter *rate.Limiter
	if cfg.Threshold.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Threshold.RatePerSecond), max(cfg.Threshold.Burst, 1))
	}
	thresholds := threshold.NewController(holder, datasets, threshold.Options{
		Limiter: limiter,
		Logger:  log,
		OnWrite: metrics.ObserveThresholdWrite,
	})

	builder := dashboard.NewBuilder(datasets, thresholds, dashboard.Options{
		Clock:       clk,
		Location:    cfg.TimeLocation(),
		Consistency: dashboard.Consistency(cfg.Consistency),
	})
	views := api.NewViews(clk, cfg.ViewTTL(), metrics.SetViews)

	srv, err := api.NewServer(cfg, api.Deps{
		Secret:     sec,
		Source:     holder,
		Datasets:   datasets,
		Thresholds: thresholds,
		Builder:    builder,
		Views:      views,
		Metrics:    metrics,
		Logger:     log,
		Clock:      clk,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		holder:     holder,
		datasets:   datasets,
		thresholds: thresholds,
		builder:    builder,
		views:      views,
		metrics:    metrics,
		server:     srv,
	}, nil
}

func newServeCommand(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(sigCtx, g)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = g.cfg.Addr
			}

			eg, ctx := errgroup.WithContext(sigCtx)
			eg.Go(func() error { return a.datasets.Run(ctx) })
			eg.Go(func() error { return a.views.Run(ctx) })
			eg.Go(func() error {
				g.log.Info("costwatch dashboard api listening", "addr", addr, "tls", g.cfg.TLS.CertFile != "")
				return a.server.ListenAndServe(ctx, addr)
			})

			err = eg.Wait()
			if sigCtx.Err() != nil {
				g.log.Info("shutting down")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// refreshTimeout bounds the one-shot fetches done by CLI subcommands.
const refreshTimeout = 30 * time.Second
