package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ignitia/internal/config"
	"ignitia/internal/handler"
	"ignitia/internal/infrastructure/cache"
	"ignitia/internal/infrastructure/database"
	"ignitia/internal/infrastructure/gateway"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/infrastructure/mq"
	"ignitia/internal/job"
	"ignitia/internal/model"
	"ignitia/internal/repository"
	"ignitia/internal/service"
	"ignitia/pkg/auth"
	"ignitia/pkg/idgen"
	"ignitia/pkg/logger"
	"ignitia/pkg/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "ignitia",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(log.WithContext(context.Background()))
	defer cancel()

	if err := idgen.Init(cfg.Server.NodeID); err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}
	if cfg.Database.Seed {
		if err := database.Seed(ctx, db); err != nil {
			return err
		}
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	lockRetry := time.Duration(cfg.Redis.LockRetryMillis) * time.Millisecond
	var (
		rdb    *redis.Client
		locker lock.Locker = lock.NewLocalLocker(lockRetry, cfg.Redis.LockMaxRetries)
	)
	if cfg.Redis.Enabled {
		rdb, err = cache.InitRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		locker = lock.NewRedisLocker(rdb,
			time.Duration(cfg.Redis.LockTTLSeconds)*time.Second,
			lockRetry,
			cfg.Redis.LockMaxRetries)
	} else {
		log.Warn().Msg("redis disabled, using in-process locks; run a single replica")
	}

	var publisher mq.Publisher = mq.NewLogPublisher(log)
	if cfg.Kafka.Enabled {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			return err
		}
		publisher = mq.NewKafkaPublisher(producer)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("kafka producer ready")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	jobMetrics := metrics.NewJobMetrics(reg)

	gw := gateway.NewSimulator(cfg.Gateway.Secret, cfg.Gateway.RequireSignature,
		model.PaymentMethodUPI, model.PaymentMethodCard, model.PaymentMethodNetbanking)
	svc := service.NewServices(db, cfg, locker, gw)
	outboxRepo := repository.NewOutboxRepository(db)

	router, err := handler.SetupRouter(svc, handler.RouterOptions{
		Mode:   cfg.Server.Mode,
		Logger: log,
		Auth: auth.Config{
			Secret: cfg.Auth.JWTSecret,
			Issuer: cfg.Auth.Issuer,
			TTL:    time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		},
		AdminRole: cfg.Auth.AdminRole,
		MaxAmount: cfg.Business.MaxAmount,
		Metrics:   metrics.NewHTTPMetrics(reg),
		Gatherer:  reg,
	})
	if err != nil {
		return err
	}

	batch := cfg.Business.JobBatchSize
	jobs := []interface {
		Start(context.Context)
		Stop()
	}{
		job.NewOutboxSender(outboxRepo, publisher, cfg.Business.MaxRetryCount, batch, jobMetrics),
		job.NewOrderExpiryJob(svc.Order, batch, jobMetrics),
		job.NewPaymentExpiryJob(svc.Payment, batch, jobMetrics),
		job.NewLedgerAuditJob(svc.Wallet, outboxRepo, cfg.Kafka.Topic.Wallet,
			time.Duration(cfg.Business.AuditIntervalMinutes)*time.Minute, batch, jobMetrics),
	}
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j interface{ Start(context.Context) }) {
			defer wg.Done()
			j.Start(ctx)
		}(j)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-serveErr:
		log.Error().Err(runErr).Msg("http server failed")
	}

	cancel()
	for _, j := range jobs {
		j.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()

	err = multierr.Append(runErr, server.Shutdown(shutdownCtx))
	wg.Wait()
	err = multierr.Append(err, publisher.Close())
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	err = multierr.Append(err, database.Close(db))
	if err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
