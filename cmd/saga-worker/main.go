// cmd/saga-worker/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"ordersaga/internal/pkg/bootstrap"
	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/pkg/metrics"
	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/application"
	"ordersaga/internal/service/order/application/saga"
	"ordersaga/internal/service/order/domain/event"
	"ordersaga/internal/service/order/infrastructure/adapter"
	"ordersaga/internal/service/order/interfaces"
)

const serviceName = "saga-worker"

// main is the composition root: it builds every dependency from the config
// and hands the stage consumers to bootstrap.StartService.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "YAML config file")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogPretty)
	ctx := context.Background()
	tracer := otel.Tracer(serviceName)

	var closers []func(ctx context.Context) error

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Saga.Store).Msg("failed to open store")
	}
	closers = append(closers, closeStore)

	bus := openBus(cfg)
	closers = append(closers, func(context.Context) error { return bus.Close() })

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("locker", cfg.Saga.Locker).Msg("failed to set up locker")
	}
	closers = append(closers, closeLocker)

	notifier, closeNotifier := newNotifier(cfg)
	closers = append(closers, closeNotifier)

	gateway := newGateway(cfg, tracer)

	rules, err := adapter.NewCELRuleEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build coupon rule engine")
	}
	topics, err := event.DefaultTopics().WithOverrides(cfg.Infra.Kafka.Topics)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid topic overrides")
	}

	m := metrics.NewSaga(prometheus.DefaultRegisterer)
	s, err := saga.New(saga.Deps{
		Store:    store,
		Bus:      bus,
		Topics:   topics,
		Locker:   locker,
		Gateway:  gateway,
		Notifier: notifier,
		Rules:    rules,
		Tracer:   tracer,
		Metrics:  m,
		Currency: cfg.Saga.Currency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build saga")
	}

	failureHandler := mq.NewFailureHandler(bus, cfg.Infra.Kafka.DLTTopic)
	failureHandler.OnDeadLetter(m.DeadLettered)

	workers := make([]bootstrap.Worker, 0, len(cfg.Saga.Stages))
	for _, name := range cfg.Saga.Stages {
		route, err := s.Route(saga.Stage(name))
		if err != nil {
			log.Fatal().Err(err).Msg("unknown stage")
		}
		workers = append(workers, interfaces.NewStageConsumer(bus, failureHandler, interfaces.StageConsumerConfig{
			Route:             route,
			Topics:            topics.TopicsOf(route.Types...),
			Group:             cfg.Infra.Kafka.Group(name),
			Retry:             cfg.Saga.Retry,
			PollTimeout:       cfg.Infra.Kafka.PollTimeout,
			ProcessingTimeout: cfg.Saga.ProcessingTimeout,
		}))
	}

	svc := application.NewOrderApplicationService(store, s.Publisher(), gateway, application.WithTracer(tracer))
	orderHandler := interfaces.NewOrderHandler(svc, prometheus.DefaultGatherer)

	log.Info().Strs("stages", cfg.Saga.Stages).Str("bus", cfg.Saga.Bus).Str("store", cfg.Saga.Store).
		Str("locker", cfg.Saga.Locker).Msg("saga worker assembled")

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Config:           cfg,
		RegisterHandlers: orderHandler.RegisterRoutes,
		Workers:          workers,
		Closers:          closers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("saga worker stopped with error")
	}
}
