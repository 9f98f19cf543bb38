// Command phoneverifyd serves the phone verification engine over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	phoneverify "github.com/MrEthical07/phoneverify"
	"github.com/MrEthical07/phoneverify/accounts/pgaccounts"
	"github.com/MrEthical07/phoneverify/httpapi"
	"github.com/MrEthical07/phoneverify/internal/janitor"
	"github.com/MrEthical07/phoneverify/metrics/export/prometheus"
	"github.com/MrEthical07/phoneverify/pgstore"
	"github.com/MrEthical07/phoneverify/transport/twilio"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("phoneverifyd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	builder := phoneverify.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithAuditSink(phoneverify.NewSlogSink(logger))

	transport, err := newTransport(cfg.Twilio, logger)
	if err != nil {
		return err
	}
	builder.WithTransport(transport)

	jobs, err := janitor.New(logger)
	if err != nil {
		return fmt.Errorf("janitor: %w", err)
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()

		if cfg.Postgres.Migrate {
			if err := pgstore.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		codes, err := pgstore.New(pool)
		if err != nil {
			return err
		}
		accounts, err := pgaccounts.New(pool, cfg.HTTP.DefaultRealm)
		if err != nil {
			return err
		}
		builder.WithCodeStore(codes).WithAccountStore(accounts)

		retention := engineCfg.Store.Retention
		err = jobs.Every(ctx, "purge-verification-codes", cfg.Postgres.PurgeInterval, func(ctx context.Context) error {
			n, err := codes.PurgeExpired(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.InfoContext(ctx, "purged verification codes", "count", n)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("schedule purge: %w", err)
		}
	} else {
		logger.Warn("DATABASE_URL not set; codes live in Redis and account lookups are disabled")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:         logger,
		TrustForwarded: cfg.HTTP.TrustForwarded,
		RealmHeader:    cfg.HTTP.RealmHeader,
		DefaultRealm:   cfg.HTTP.DefaultRealm,
		Metrics:        prometheus.NewPrometheusExporter(engine).Handler(),
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Health: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			if pool != nil {
				return pool.Ping(ctx)
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	jobs.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = jobs.Shutdown()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := jobs.Shutdown(); err != nil {
		logger.Error("janitor shutdown", "error", err)
	}
	return nil
}

func newTransport(cfg twilio.Config, logger *slog.Logger) (phoneverify.Transport, error) {
	if cfg.AccountSID == "" {
		logger.Warn("TWILIO_ACCOUNT_SID not set; codes are not delivered")
		return phoneverify.TransportFunc(func(ctx context.Context, destination, _ string) error {
			logger.InfoContext(ctx, "delivery skipped", "phone", phoneverify.MaskPhoneNumber(destination))
			return nil
		}), nil
	}
	t, err := twilio.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}
