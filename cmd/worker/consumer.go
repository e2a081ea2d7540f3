package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mariks1/unipeople-notify/internal/cache"
	"github.com/mariks1/unipeople-notify/internal/config"
	"github.com/mariks1/unipeople-notify/internal/db"
	"github.com/mariks1/unipeople-notify/internal/kafka"
	"github.com/mariks1/unipeople-notify/internal/logger"
	"github.com/mariks1/unipeople-notify/internal/metrics"
	"github.com/mariks1/unipeople-notify/internal/repository"
	"github.com/mariks1/unipeople-notify/internal/service/delivery"
	"github.com/mariks1/unipeople-notify/internal/worker"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Run the event delivery consumer for all configured domain topics",
	RunE:  runConsumer,
}

func runConsumer(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	if len(cfg.Consumer.Topics) == 0 {
		return fmt.Errorf("no consumer topics configured")
	}

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// 3) redis (unread-count invalidation)
	rds, err := db.NewRedisClient(db.RedisOpts{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer func() { _ = rds.Close() }()

	// 4) clickhouse report sink (optional: consumer runs without it)
	var reports repository.CHDeliveriesRepository
	chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		logger.Log.Warn("clickhouse unavailable, delivery reports disabled", zap.Error(err))
	} else {
		defer func() { _ = chDB.Close() }()
		reports = repository.NewCHDeliveriesRepository(chDB)
	}

	// 5) repositories + delivery pipeline
	eventsRepo := repository.NewEventsRepository(dbx)
	inboxRepo := repository.NewInboxRepository(dbx)
	deliverySvc := delivery.New(dbx, eventsRepo, inboxRepo)
	unread := cache.NewUnreadCache(rds, cfg.Cache.UnreadTTL)

	// 6) dead-letter producer
	dlq := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: "unotify-dlq",
	})
	defer func() { _ = dlq.Close() }()

	// 7) one consumer per domain topic
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(cfg.Consumer.Topics))
	for _, topic := range cfg.Consumer.Topics {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})

		w := worker.NewDeliveryConsumer(consumer, dlq, deliverySvc, reports, unread, topic, cfg.Consumer.DLQSuffix)
		if cfg.Consumer.Workers > 0 {
			w.Workers = cfg.Consumer.Workers
		}
		if cfg.Consumer.MaxRetryAttempts > 0 {
			w.MaxRetryAttempts = cfg.Consumer.MaxRetryAttempts
		}
		if cfg.Consumer.RetryBackoff > 0 {
			w.RetryBackoff = cfg.Consumer.RetryBackoff
		}

		logger.Log.Info("delivery consumer started",
			zap.String("topic", topic),
			zap.String("group", cfg.Kafka.GroupID),
			zap.Int("workers", w.Workers))

		go func(c *kafka.Consumer, w *worker.DeliveryConsumer) {
			defer func() { _ = c.Close() }()
			errCh <- w.Run(ctx)
		}(consumer, w)
	}

	// block until shutdown; topic failures are independent of each other
	for range cfg.Consumer.Topics {
		if err := <-errCh; err != nil {
			logger.Log.Error("consumer exited", zap.Error(err))
		}
	}
	return nil
}
