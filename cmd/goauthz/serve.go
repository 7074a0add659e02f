package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	goAuthz "github.com/MrEthical07/goAuthz"
	"github.com/MrEthical07/goAuthz/broadcast"
	"github.com/MrEthical07/goAuthz/broadcast/kafkabus"
	"github.com/MrEthical07/goAuthz/broadcast/redisbus"
	"github.com/MrEthical07/goAuthz/metrics/export/prometheus"
	"github.com/MrEthical07/goAuthz/middleware"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/store/postgres"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(load func() (*appConfig, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			zl, log, err := newLogger(cfg.Env)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = zl.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			svc, err := newService(ctx, cfg, log)
			if err != nil {
				zl.Error("failed to init service", zap.Error(err))
				return err
			}
			defer svc.Close()

			zl.Info("goauthz serving",
				zap.String("env", cfg.Env),
				zap.String("address", cfg.HTTP.Addr),
				zap.String("broadcast", cfg.Broadcast.Transport),
			)
			return svc.Run(ctx)
		},
	}
}

type service struct {
	log     logr.Logger
	engine  *goAuthz.Engine
	server  *http.Server
	closers []func() error
}

func newService(ctx context.Context, cfg *appConfig, log logr.Logger) (*service, error) {
	svc := &service{log: log}
	b := goAuthz.New().WithConfig(cfg.engineConfig()).WithLogger(log.WithName("engine"))

	var client redis.UniversalClient
	if cfg.Redis.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			svc.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b.WithRedis(client)
	}

	if cfg.Postgres.DSN != "" {
		pg, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, pg.Close)
		b.WithActorProvider(pg).WithPermissionSource(pg).WithFindingSink(pg)
		if client == nil {
			b.WithSessionStore(pg).WithTwoFactorStore(pg)
		}
	} else {
		log.Info("no postgres.dsn set; actors are held in process memory and start empty")
	}

	if cfg.RolesFile != "" {
		table, err := loadRolesFile(cfg.RolesFile)
		if err != nil {
			svc.Close()
			return nil, err
		}
		b.WithPermissionSource(table)
	}

	sinks := goAuthz.FanoutSink{goAuthz.NewLogSink(log, 1)}
	if cfg.Audit.JSONFile != "" {
		f, err := os.OpenFile(cfg.Audit.JSONFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		svc.closers = append(svc.closers, f.Close)
		sinks = append(sinks, goAuthz.NewJSONLinesSink(f))
	}
	b.WithAuditSink(sinks)

	transport, err := newTransport(cfg, client, log)
	if err != nil {
		svc.Close()
		return nil, err
	}
	if transport != nil {
		b.WithTransport(transport)
	}

	engine, err := b.Build()
	if err != nil {
		if transport != nil {
			_ = transport.Close()
		}
		svc.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	svc.engine = engine

	for _, w := range engine.SecurityReport().Warnings {
		log.Info("security report", "warning", w)
	}

	svc.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.routes(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return svc, nil
}

func newTransport(cfg *appConfig, client redis.UniversalClient, log logr.Logger) (broadcast.Transport, error) {
	switch cfg.Broadcast.Transport {
	case transportRedis:
		return redisbus.New(client, cfg.Broadcast.Channel), nil
	case transportKafka:
		bus, err := kafkabus.New(kafkabus.Config{
			Brokers:  cfg.Broadcast.Kafka.Brokers,
			Topic:    cfg.Broadcast.Kafka.Topic,
			ClientID: cfg.Broadcast.Kafka.ClientID,
			Logger:   log.WithName("kafka"),
		})
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, nil
	}
}

func loadRolesFile(path string) (*permission.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roles file: %w", err)
	}
	defer f.Close()
	return permission.LoadTable(f, nil)
}

func (s *service) routes(cfg *appConfig) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(s.engine).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	var opts []middleware.Option
	if cfg.HTTP.SessionCookie != "" {
		opts = append(opts, middleware.WithCookie(cfg.HTTP.SessionCookie))
	}
	if cfg.HTTP.ForwardedFor != "" {
		opts = append(opts, middleware.WithForwardedHeader(cfg.HTTP.ForwardedFor))
	}
	guard := middleware.Guard(s.engine, opts...)
	mux.Handle("GET /v1/check", guard(http.HandlerFunc(s.handleCheck)))
	return mux
}

type checkResponse struct {
	ActorID  string `json:"actor_id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope,omitempty"`
	Allowed  bool   `json:"allowed"`
}

func (s *service) handleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resource, action, scope := q.Get("resource"), q.Get("action"), q.Get("scope")
	if resource == "" || action == "" {
		http.Error(w, "resource and action are required", http.StatusBadRequest)
		return
	}

	info, _ := goAuthz.SessionFromContext(r.Context())
	allowed, err := s.engine.Can(r.Context(), resource, action, scope)
	if err != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(checkResponse{
		ActorID:  info.ActorID,
		Resource: resource,
		Action:   action,
		Scope:    scope,
		Allowed:  allowed,
	})
}

// Run serves HTTP and consumes broadcast updates until ctx is done.
func (s *service) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		if err := s.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("broadcast: %w", err)
		}
	}()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Error(err, "http shutdown")
	}
	return runErr
}

// Close releases the engine and every backend in reverse order of creation.
func (s *service) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Error(err, "close backend")
		}
	}
}
