// Command server starts the ingress dispatcher: the HTTP surface that
// accepts insurance-quotation jobs and publishes them onto the broker, and
// exposes DLQ/health/metrics operations endpoints.
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

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/adapter/httpserver"
	"github.com/juanqu261/bots-brokerwiz/internal/adapter/observability"
	"github.com/juanqu261/bots-brokerwiz/internal/app"
	"github.com/juanqu261/bots-brokerwiz/internal/config"
	"github.com/juanqu261/bots-brokerwiz/internal/dlqmanager"
	"github.com/juanqu261/bots-brokerwiz/internal/health"
	"github.com/juanqu261/bots-brokerwiz/internal/vendorconfig"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	topics := broker.Topics{Prefix: cfg.TopicPrefix}
	qos := byte(cfg.QoS)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ephemeral (clean-session) publisher for ingress.
	publisher, err := broker.NewClient(broker.Options{
		Host:               cfg.BrokerHost,
		Port:               cfg.BrokerPort,
		ClientID:           cfg.MQTTClientID,
		CleanSession:       true,
		Username:           cfg.MQTTUsername,
		Password:           cfg.MQTTPassword,
		KeepAlive:          cfg.BrokerKeepAlive(),
		UseTLS:             cfg.MQTTUseTLS,
		CACertPath:         cfg.MQTTCACertPath,
		ClientCertPath:     cfg.MQTTClientCertPath,
		ClientKeyPath:      cfg.MQTTClientKeyPath,
		InsecureSkipVerify: cfg.MQTTTLSInsecureSkipVerify,
		EnableWill:         true,
		Topics:             topics,
	})
	if err != nil {
		slog.Error("broker publisher init failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := publisher.Connect(ctx); err != nil {
		slog.Error("broker publisher connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer publisher.Disconnect()

	// Persistent-session subscriber feeding the DLQ manager's in-memory
	// index, distinct client id so reconnects don't collide with the
	// ingress publisher.
	dlqSubscriber, err := broker.NewClient(broker.Options{
		Host:               cfg.BrokerHost,
		Port:               cfg.BrokerPort,
		ClientID:           cfg.MQTTClientID + "-dlq-manager",
		CleanSession:       false,
		Username:           cfg.MQTTUsername,
		Password:           cfg.MQTTPassword,
		KeepAlive:          cfg.BrokerKeepAlive(),
		UseTLS:             cfg.MQTTUseTLS,
		CACertPath:         cfg.MQTTCACertPath,
		ClientCertPath:     cfg.MQTTClientCertPath,
		ClientKeyPath:      cfg.MQTTClientKeyPath,
		InsecureSkipVerify: cfg.MQTTTLSInsecureSkipVerify,
		ManualAck:          true,
		Topics:             topics,
	})
	if err != nil {
		slog.Error("dlq subscriber init failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := dlqSubscriber.Connect(ctx); err != nil {
		slog.Error("dlq subscriber connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dlqSubscriber.Disconnect()

	dlq := dlqmanager.NewManager(dlqSubscriber, publisher, topics, qos)
	dlq.Start(ctx)
	defer dlq.Stop()

	vendors := vendorconfig.NewManager(cfg.VendorConfigPath)
	vendorStop := make(chan struct{})
	go vendors.WatchReload(vendorStop, 30*time.Second)
	defer close(vendorStop)

	healthCache := health.NewCache(publisher)
	counters := health.NewCounters()
	queueProbe := health.NewSysQueueProber(publisher, 2*time.Second)
	aggregator := health.NewAggregator(healthCache, counters, queueProbe, cfg.MetricsLogDir, cfg.MetricsWindowHours, cfg.WorkerProcessMarker)

	srv := httpserver.NewServer(cfg, publisher, topics, qos, dlq, vendors, aggregator, "dev")
	handler := app.BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.String("addr", httpSrv.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
