package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/teamadmin/internal/config"
	"github.com/Sternrassler/teamadmin/pkg/cache"
	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/export"
	"github.com/Sternrassler/teamadmin/pkg/logging"
	"github.com/Sternrassler/teamadmin/pkg/progress"
	"github.com/Sternrassler/teamadmin/pkg/team"
)

// app is the state shared by all commands of one invocation.
type app struct {
	configPath  string
	token       string
	debug       bool
	metricsAddr string

	cfg     config.Config
	logger  zerolog.Logger
	redis   *redis.Client
	api     *client.Client
	svc     *team.Service
	metrics *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "teamadmin",
		Short:         "Team account administration",
		Long:          "teamadmin lists, exports and provisions team members, Paper documents, audit events, files and team folders.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  # Export active members
  teamadmin members list --csv members.csv

  # Export every Paper document with its metadata
  teamadmin paper list --metadata --csv PaperExport.csv

  # Audit sharing events of one member since January
  teamadmin audit events --category sharing --start 2024-01-01 --member ann@example.com`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&a.token, "token", "", "team access token (overrides "+config.EnvToken+")")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve /health and /metrics on this address")

	cmd.AddCommand(
		newMembersCmd(a),
		newPaperCmd(a),
		newAuditCmd(a),
		newFoldersCmd(a),
		newFilesCmd(a),
		newTeamFoldersCmd(a),
	)
	return cmd
}

// setup loads the configuration, applies flag overrides and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.token != "" {
		cfg.API.Token = a.token
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if a.debug {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	logging.Setup(lc)
	a.logger = logging.NewLogger(logging.ComponentCLI)

	if cfg.Metrics.Addr != "" {
		a.metrics = newMetricsServer(cfg.Metrics.Addr)
		errc := startMetricsServer(a.metrics)
		go func() {
			if err := <-errc; err != nil {
				a.logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics server failed")
			}
		}()
		a.logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving /health and /metrics")
	}
	return nil
}

// service connects to the API (and Redis when configured) on first use.
func (a *app) service(ctx context.Context) (*team.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if err := a.cfg.RequireToken(); err != nil {
		return nil, err
	}

	if a.cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		a.logger.Debug().Str("addr", a.cfg.Redis.Addr).Msg("Connected to Redis")
	}

	cc := a.cfg.ClientConfig()
	cc.Redis = a.redis
	api, err := client.New(cc)
	if err != nil {
		return nil, err
	}
	a.api = api

	var mc *cache.Manager
	if a.cfg.Cache.MetadataTTL > 0 {
		mc = cache.NewManager(a.redis, a.cfg.CacheConfig())
	}
	a.svc = team.NewService(api, mc, a.cfg.ServiceConfig())
	return a.svc, nil
}

func (a *app) close(ctx context.Context) error {
	if a.api != nil {
		_ = a.api.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.metrics != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return a.metrics.Shutdown(shutdownCtx)
	}
	return nil
}

// consoleSink prints every progress message on its own line.
func consoleSink(w io.Writer) progress.Sink {
	return progress.SinkFunc(func(e progress.Event) {
		if e.Message != "" {
			fmt.Fprintln(w, e.Message)
		}
	})
}

// withProgress runs fn on a worker goroutine and delivers its progress events
// on the calling goroutine, so console output is never interleaved.
func (a *app) withProgress(cmd *cobra.Command, fn func(sink progress.Sink) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	q := progress.NewQueue(64)
	sink := progress.Posted(progress.Multi(
		progress.LogSink{Logger: a.logger},
		consoleSink(cmd.ErrOrStderr()),
	), q)

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		err = fn(sink)
	}()

	if derr := q.Drain(ctx, done); derr != nil {
		// The worker sees the same cancellation; keep draining until it exits.
		_ = q.Drain(context.Background(), done)
	}
	<-done
	return err
}

// writeItems exports items to path, or to the command's stdout when path is
// empty.
func writeItems[T any](a *app, cmd *cobra.Command, columns []export.Column[T], headers []string, items []T, path string, sink progress.Sink, runID string) error {
	cols, err := export.Select(columns, headers...)
	if err != nil {
		return err
	}
	exp := export.New(cols, a.cfg.ServiceConfig().Progress)

	if path == "" {
		return exp.Write(cmd.Context(), cmd.OutOrStdout(), items, nil)
	}
	if !filepath.IsAbs(path) && a.cfg.OutputDir != "" {
		path = filepath.Join(a.cfg.OutputDir, path)
	}
	return exp.WriteFile(cmd.Context(), path, items, sink, runID)
}
