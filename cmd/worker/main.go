// Command worker runs the browser-automation worker runtime: it consumes
// jobs from the broker's vendor queues, dispatches them to registered
// vendor handlers under resource admission control, and drives failures
// through the retry/DLQ pipeline.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/adapter/observability"
	"github.com/juanqu261/bots-brokerwiz/internal/admission"
	"github.com/juanqu261/bots-brokerwiz/internal/config"
	"github.com/juanqu261/bots-brokerwiz/internal/domain"
	"github.com/juanqu261/bots-brokerwiz/internal/handler"
	"github.com/juanqu261/bots-brokerwiz/internal/retry"
	"github.com/juanqu261/bots-brokerwiz/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	topics := broker.Topics{Prefix: cfg.TopicPrefix}
	qos := byte(cfg.QoS)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := broker.NewClient(broker.Options{
		Host:               cfg.BrokerHost,
		Port:               cfg.BrokerPort,
		ClientID:           cfg.MQTTClientID + "-worker",
		CleanSession:       false,
		Username:           cfg.MQTTUsername,
		Password:           cfg.MQTTPassword,
		KeepAlive:          cfg.BrokerKeepAlive(),
		UseTLS:             cfg.MQTTUseTLS,
		CACertPath:         cfg.MQTTCACertPath,
		ClientCertPath:     cfg.MQTTClientCertPath,
		ClientKeyPath:      cfg.MQTTClientKeyPath,
		InsecureSkipVerify: cfg.MQTTTLSInsecureSkipVerify,
		EnableWill:         true,
		ManualAck:          true,
		Topics:             topics,
	})
	if err != nil {
		slog.Error("broker client init failed", slog.Any("error", err))
		os.Exit(1)
	}

	adm := admission.NewController(cfg.MaxConcurrent, cfg.ResourceMaxCPUPercent, cfg.ResourceMaxMemPercent)

	registry := handler.NewRegistry()
	// Illustrative stub handlers exercising the runtime end-to-end; real
	// browser automation per vendor is out of scope here.
	for _, v := range domain.KnownVendors() {
		registry.Register(v, handler.NewAlwaysSucceedFactory())
	}

	retryMgr := retry.NewManager(client, topics, qos)

	rt := worker.NewRuntime(client, topics, adm, registry, retryMgr, worker.Options{
		Qos:            qos,
		ReconnectDelay: cfg.ReconnectMinDelay(),
		TaskTimeout:    cfg.WorkerTimeout(),
	})

	slog.Info("starting worker runtime", slog.Int("max_concurrent", cfg.MaxConcurrent))
	if err := rt.Run(ctx); err != nil {
		slog.Error("worker runtime exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
