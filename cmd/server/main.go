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

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"kitchen_requests/internal/config"
	"kitchen_requests/internal/live"
	"kitchen_requests/internal/logger"
	"kitchen_requests/internal/queue"
	"kitchen_requests/internal/requests"
	"kitchen_requests/internal/router"
	"kitchen_requests/internal/store"
	rediskey "kitchen_requests/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.String("config", "", "YAML config file (overrides CONFIG_FILE)")
	mode := pflag.String("mode", "api", "api | relay | subscriber")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With("mode", *mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "api":
		err = runAPI(ctx, cfg, log)
	case "relay":
		err = runRelay(ctx, cfg, log)
	case "subscriber":
		err = runSubscriber(ctx, cfg, log)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Error("exit", "err", err)
		log.Sync()
		os.Exit(1)
	}
	log.Info("stopped")
}

func runAPI(ctx context.Context, cfg config.AppConfig, log *logger.Logger) error {
	st, closeDB, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	publisher, closePub, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePub()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	hub := live.NewHub(cfg.StreamBuffer, log)
	defer hub.Close()

	// With redis every instance publishes changes to the bus and feeds its own hub
	// from it; without redis the hub is announced to directly.
	var announcer requests.Announcer = hub
	var claimer queue.Claimer
	if rdb != nil {
		bus := rediskey.NewLiveBus(rdb, cfg.LiveChannel, log)
		if err := bus.Forward(ctx, hub); err != nil {
			return err
		}
		announcer = bus
		claimer = rediskey.NewOutboxClaim(rdb, 2*cfg.PublishTimeout)
	}

	pipeline := requests.NewPipeline(st, st, publisher, announcer, log, cfg.PublishTimeout)
	queries := requests.NewQueries(st, hub)

	relay := queue.NewRelay(st, publisher, claimer, log, cfg.RelayInterval, cfg.RelayGrace, cfg.RelayBatch, cfg.PublishTimeout)
	go relay.Run(ctx)

	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	router.Setup(r, router.Deps{
		Pipeline: pipeline,
		Queries:  queries,
		Redis:    rdb,
		Log:      log,
		Config:   cfg,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Streams never finish on their own; close them before draining the server.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runRelay(ctx context.Context, cfg config.AppConfig, log *logger.Logger) error {
	st, closeDB, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	publisher, closePub, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePub()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	var claimer queue.Claimer
	if rdb != nil {
		defer rdb.Close()
		claimer = rediskey.NewOutboxClaim(rdb, 2*cfg.PublishTimeout)
	}

	log.Info("outbox relay running", "interval", cfg.RelayInterval, "grace", cfg.RelayGrace)
	queue.NewRelay(st, publisher, claimer, log, cfg.RelayInterval, cfg.RelayGrace, cfg.RelayBatch, cfg.PublishTimeout).Run(ctx)
	return nil
}

func runSubscriber(ctx context.Context, cfg config.AppConfig, log *logger.Logger) error {
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID,
		func(_ context.Context, msg queue.StatusChange) error {
			log.Info("request status changed",
				"request_id", msg.RequestID,
				"packing_status", msg.PackingStatus,
				"request_status", msg.RequestStatus,
			)
			return nil
		}, log)
	defer consumer.Close()

	log.Info("subscriber running", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	consumer.Run(ctx)
	return nil
}

func openStore(ctx context.Context, cfg config.AppConfig, log *logger.Logger) (*store.Store, func(), error) {
	db, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(db)
	if err := st.UpsertMenuItems(ctx, cfg.MenuItems); err != nil {
		return nil, nil, fmt.Errorf("seed menu items: %w", err)
	}
	return st, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

func newPublisher(cfg config.AppConfig, log *logger.Logger) (queue.Publisher, func(), error) {
	switch cfg.NotifyBroker {
	case "kafka":
		p := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, func() { _ = p.Close() }, nil
	case "rabbitmq":
		p, err := queue.DialRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		return queue.NewLogPublisher(log), func() {}, nil
	}
}

// openRedis returns nil when no address is configured.
func openRedis(ctx context.Context, cfg config.AppConfig) (*rd.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	rdb := rd.NewClient(&rd.Options{
		Addr:        cfg.RedisAddr,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
