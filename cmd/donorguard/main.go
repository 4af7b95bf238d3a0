package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/MrEthical07/donorguard/abuse"
	"github.com/MrEthical07/donorguard/broker"
	"github.com/MrEthical07/donorguard/internal/config"
	promexport "github.com/MrEthical07/donorguard/metrics/export/prometheus"
	"github.com/MrEthical07/donorguard/notify"
	"github.com/MrEthical07/donorguard/transport/httpapi"
	"github.com/MrEthical07/donorguard/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load(".")
	if err != nil {
		return err
	}

	log, err := newLogger(settings)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := settings.GuardConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range cfg.Lint() {
		log.Warn("configuration lint", zap.String("code", w.Code), zap.Stringer("severity", w.Severity), zap.String("message", w.Message))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(ctx, settings, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	builder := donorguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(log)

	sinks := abuse.MultiSink{
		abuse.NewZapSink(log.Named("abuse")),
		abuse.NewRedisStreamSink(rdb, settings.AbuseStream, 0),
	}
	publisher, connected, err := newPublisher(settings, log.Named("broker"))
	if err != nil {
		return err
	}
	defer publisher.Close()
	sinks = append(sinks, abuse.NewAMQPSink(publisher, settings.AbuseExchange))

	if connected {
		builder.WithNotifier(notify.NewAMQPNotifier(publisher, settings.NotifyExchange))
	} else {
		log.Warn("RABBITMQ_URL not set; OTP codes are only logged")
		builder.WithNotifier(notify.LogNotifier{Log: log.Named("notify"), RevealCode: settings.LogDev})
	}

	builder.WithAbuseSink(sinks)

	if settings.DatabaseURL != "" {
		pool, err := users.Connect(ctx, users.PoolConfig{URL: settings.DatabaseURL})
		if err != nil {
			return err
		}
		defer pool.Close()
		builder.WithUserStore(users.NewPostgresStore(pool, settings.UsersTable))
	} else {
		log.Warn("DATABASE_URL not set; email uniqueness is not enforced")
	}

	guard, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build guard: %w", err)
	}
	defer guard.Close()

	metricsHandler, err := promexport.Handler(promexport.NewCollector(guard))
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	router := httpapi.NewRouter(httpapi.NewHandler(guard, log.Named("http")), httpapi.Options{
		AllowedOrigins: settings.Origins(),
		TrustProxy:     settings.TrustProxy,
		Metrics:        metricsHandler,
		Log:            log.Named("access"),
	})

	srv := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Captcha.Timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newPublisher connects to RabbitMQ when configured. Without a broker it
// returns a LogPublisher so abuse events still flow through the AMQP sink
// and are logged as unpublished.
func newPublisher(s config.Settings, log *zap.Logger) (broker.Publisher, bool, error) {
	if s.RabbitMQURL == "" {
		return broker.LogPublisher{Log: log}, false, nil
	}
	producer, err := broker.NewProducer(s.RabbitMQURL, log)
	if err != nil {
		return nil, false, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return producer, true, nil
}

func newLogger(s config.Settings) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if s.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func openRedis(ctx context.Context, s config.Settings, log *zap.Logger) (redis.UniversalClient, func(), error) {
	if s.RedisURL == "" {
		if !s.EmbeddedRedis {
			return nil, nil, errors.New("REDIS_URL is required (set EMBEDDED_REDIS=true for local runs)")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		log.Warn("using embedded redis; state is lost on exit and not shared between processes", zap.String("addr", mr.Addr()))
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	opts, err := redis.ParseURL(s.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}
