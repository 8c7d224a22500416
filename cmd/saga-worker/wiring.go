package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"ordersaga/internal/pkg/bootstrap"
	"ordersaga/internal/pkg/httpclient"
	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/pkg/redis"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/port"
	"ordersaga/internal/service/order/infrastructure/adapter"
	"ordersaga/internal/service/order/infrastructure/memory"
	"ordersaga/internal/service/order/infrastructure/persistence"
	"ordersaga/internal/zookeeper"
)

type closer = func(ctx context.Context) error

func noop(context.Context) error { return nil }

func openStore(cfg *bootstrap.Config) (domain.Store, closer, error) {
	if cfg.Saga.Store == "memory" {
		return memory.NewStore(), noop, nil
	}
	db, err := persistence.Open(persistence.Options{
		DSN:          cfg.Infra.MySQL.DSN,
		AutoMigrate:  cfg.Infra.MySQL.AutoMigrate,
		MaxOpenConns: cfg.Infra.MySQL.MaxOpenConn,
	})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("mysql handle: %w", err)
	}
	return persistence.NewGormStore(db), func(context.Context) error { return sqlDB.Close() }, nil
}

func kafkaConfig(cfg *bootstrap.Config) mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:     cfg.Infra.Kafka.Brokers,
		ClientID:    cfg.App.Name,
		SendTimeout: cfg.Infra.Kafka.SendTimeout,
	}
}

func openBus(cfg *bootstrap.Config) mq.Bus {
	if cfg.Saga.Bus == "memory" {
		return mq.NewMemoryBus()
	}
	return mq.NewKafkaBus(kafkaConfig(cfg))
}

func openLocker(ctx context.Context, cfg *bootstrap.Config) (port.Locker, closer, error) {
	switch cfg.Saga.Locker {
	case "redis":
		client, err := redis.NewClient(ctx, redis.Config{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		locker, err := adapter.NewRedisLocker(client, cfg.Saga.LockTTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return locker, func(context.Context) error { return client.Close() }, nil
	case "zookeeper":
		zc := cfg.Infra.Zookeeper
		conn, err := zookeeper.Connect(ctx, zc.Servers, zc.SessionTimeout)
		if err != nil {
			return nil, nil, err
		}
		return adapter.NewZookeeperLocker(conn, zookeeper.DefaultLockRoot), func(context.Context) error {
			conn.Close()
			return nil
		}, nil
	default:
		return adapter.NewLocalLocker(), noop, nil
	}
}

func newGateway(cfg *bootstrap.Config, tracer trace.Tracer) port.PaymentGateway {
	if cfg.Payment.Driver == "http" {
		return adapter.NewHTTPPaymentGateway(httpclient.NewClient(tracer), cfg.Payment.Endpoint, cfg.Payment.APIKey, cfg.Payment.Timeout)
	}
	return adapter.NewMockPaymentGateway(cfg.Payment.DeclineMethods)
}

// newNotifier uses its own writer so notifications reach Kafka even when the
// saga runs on the in-memory bus.
func newNotifier(cfg *bootstrap.Config) (port.Notifier, closer) {
	if cfg.Notification.Driver != "kafka" {
		return adapter.LogNotifier{}, noop
	}
	writer := mq.NewKafkaWriter(kafkaConfig(cfg))
	return adapter.NewNotificationKafkaAdapter(writer, cfg.Notification.Topic), func(context.Context) error { return writer.Close() }
}
