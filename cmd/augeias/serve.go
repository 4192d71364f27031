package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"augeias/pkg/admin"
	"augeias/pkg/api/rest"
	"augeias/pkg/config"
	"augeias/pkg/janitor"
	"augeias/pkg/obs/logging"
	"augeias/pkg/obs/metrics"
	"augeias/pkg/obs/tracing"
	"augeias/pkg/storage"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	flags := cmd.Flags()
	flags.String("listen", "", "address of the REST API, overrides config address")
	flags.String("admin-listen", "", "address of the admin API, overrides config adminAddress")
	flags.String("log-level", "", "debug, info, warn or error")
	bindFlags(v, flags, "listen", "admin-listen", "log-level")
	_ = v.BindEnv("listen", "AUGEIAS_LISTEN", "AUGEIAS_ADDR")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	var ready atomic.Bool

	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}

	traceShutdown, err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.Tracing.ServiceName,
	}, log)
	if err != nil {
		log.Warn("tracing init failed", zap.Error(err))
		traceShutdown = func(context.Context) error { return nil }
	}

	m := metrics.New()
	sm := metrics.NewStorageMetrics(m.Registry())
	reg, closer, err := openCollections(cfg, log, func(name string) storage.Observer { return sm.For(name) })
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Error("close stores", zap.Error(err))
		}
	}()

	api := rest.New(reg, rest.Limits{MaxObjectBytes: cfg.Limits.MaxObjectBytes},
		rest.WithLogger(log.Named("rest")))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", m.Middleware(tracing.Middleware(api.Handler())))

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var (
		jan      *janitor.Janitor
		pollStop func()
	)
	if cfg.Janitor.Enabled {
		jan, err = janitor.New(reg, janitor.Config{
			Interval:    cfg.Janitor.IntervalDuration(),
			OlderThan:   cfg.Janitor.OlderThanDuration(),
			Concurrency: cfg.Janitor.Concurrency,
		}, log.Named("janitor"))
		if err != nil {
			return err
		}
		if err := jan.Start(ctx); err != nil {
			return err
		}
		pollStop = metrics.NewJanitorMetrics(m.Registry()).StartPolling(jan, 10*time.Second)
		log.Info("janitor enabled",
			zap.Strings("collections", jan.Collections()),
			zap.Duration("interval", cfg.Janitor.IntervalDuration()),
			zap.Duration("olderThan", cfg.Janitor.OlderThanDuration()))
	}

	var adminSrv *http.Server
	if cfg.AdminAddress != "" {
		opts := admin.Options{
			Version:      version,
			Address:      cfg.Address,
			AdminAddress: cfg.AdminAddress,
			Registry:     reg,
			Ready:        ready.Load,
		}
		if jan != nil {
			opts.Janitor = jan
		}
		adminSrv = &http.Server{
			Addr:              cfg.AdminAddress,
			Handler:           admin.NewMux(opts),
			ReadHeaderTimeout: 15 * time.Second,
		}
	}

	errCh := make(chan error, 2)
	listen := func(name string, s *http.Server) {
		log.Info(name+" listening", zap.String("addr", s.Addr), zap.String("version", version))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}
	go listen("augeias", srv)
	if adminSrv != nil {
		go listen("admin", adminSrv)
	}
	ready.Store(true)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error("server error", zap.Error(runErr))
	}

	ready.Store(false)
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutCtx); err != nil {
			log.Error("admin shutdown error", zap.Error(err))
		}
	}
	if jan != nil {
		if err := jan.Stop(shutCtx); err != nil {
			log.Error("janitor stop error", zap.Error(err))
		}
		pollStop()
	}
	if err := traceShutdown(shutCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}
	log.Info("augeias stopped")
	return runErr
}
