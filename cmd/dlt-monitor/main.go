// cmd/dlt-monitor/main.go
package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"ordersaga/internal/pkg/bootstrap"
	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/pkg/metrics"
	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/interfaces"
)

const serviceName = "dlt-monitor"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "YAML config file")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.LogPretty)

	bus := mq.NewKafkaBus(mq.KafkaConfig{
		Brokers:     cfg.Infra.Kafka.Brokers,
		ClientID:    serviceName,
		SendTimeout: cfg.Infra.Kafka.SendTimeout,
	})

	m := metrics.NewSaga(prometheus.DefaultRegisterer)
	consumer := interfaces.NewDltConsumer(bus, cfg.Infra.Kafka.DLTTopic, cfg.Infra.Kafka.DLTGroup, cfg.Infra.Kafka.PollTimeout)
	consumer.OnMessage(func(dl interfaces.DeadLetter) { m.DeadLettered(dl.OriginalTopic) })

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Config:      cfg,
		RegisterHandlers: func(mux *http.ServeMux) {
			mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			mux.Handle("GET /metrics", promhttp.Handler())
		},
		Workers: []bootstrap.Worker{consumer},
		Closers: []func(ctx context.Context) error{
			func(context.Context) error { return bus.Close() },
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("dlt monitor stopped with error")
	}
}
