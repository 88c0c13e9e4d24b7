// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment
// variables, covering the broker, ingress, worker, resource-admission,
// vendor-enablement, and metrics surfaces enumerated in this project's
// configuration reference.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Broker connection
	BrokerHost               string        `env:"BROKER_HOST" envDefault:"localhost"`
	BrokerPort               int           `env:"BROKER_PORT" envDefault:"1883"`
	MQTTUsername             string        `env:"MQTT_USERNAME"`
	MQTTPassword             string        `env:"MQTT_PASSWORD"`
	MQTTClientID             string        `env:"MQTT_CLIENT_ID" envDefault:"bots-brokerwiz-publisher"`
	MQTTCleanSessionDefault  bool          `env:"MQTT_CLEAN_SESSION_DEFAULT" envDefault:"true"`
	MQTTKeepAliveSeconds     int           `env:"MQTT_KEEPALIVE_S" envDefault:"60"`
	MQTTUseTLS               bool          `env:"MQTT_USE_TLS" envDefault:"false"`
	MQTTCACertPath           string        `env:"MQTT_CA_CERT_PATH"`
	MQTTClientCertPath       string        `env:"MQTT_CLIENT_CERT_PATH"`
	MQTTClientKeyPath        string        `env:"MQTT_CLIENT_KEY_PATH"`
	MQTTTLSInsecureSkipVerify bool         `env:"MQTT_TLS_INSECURE_SKIP_VERIFY" envDefault:"false"`
	MQTTReconnectMinDelayS   int           `env:"MQTT_RECONNECT_MIN_DELAY_S" envDefault:"5"`
	MQTTReconnectMaxDelayS   int           `env:"MQTT_RECONNECT_MAX_DELAY_S" envDefault:"5"`
	TopicPrefix              string        `env:"TOPIC_PREFIX" envDefault:"bots"`
	QoS                      int           `env:"QOS" envDefault:"1"`

	// Ingress HTTP surface
	APIHost             string        `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort             int           `env:"API_PORT" envDefault:"8080"`
	APIBearerToken      string        `env:"API_BEARER_TOKEN"`
	CORSAllowOrigins    string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	CORSAllowMethods    string        `env:"CORS_ALLOW_METHODS" envDefault:"GET,POST,OPTIONS"`
	CORSAllowHeaders    string        `env:"CORS_ALLOW_HEADERS" envDefault:"Authorization,Content-Type"`
	CORSAllowCredentials bool         `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	RateLimitPerMin     int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	HTTPReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Worker runtime
	NumWorkers       int           `env:"NUM_WORKERS" envDefault:"3"`
	MaxConcurrent    int           `env:"MAX_CONCURRENT" envDefault:"3"`
	WorkerTimeoutS   int           `env:"WORKER_TIMEOUT_S" envDefault:"300"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"2s"`

	// Resource admission
	ResourceMaxCPUPercent float64 `env:"RESOURCE_MAX_CPU_PCT" envDefault:"85.0"`
	ResourceMaxMemPercent float64 `env:"RESOURCE_MAX_MEM_PCT" envDefault:"85.0"`

	// Vendor enablement
	VendorConfigPath string `env:"VENDOR_CONFIG_PATH" envDefault:"config/vendors.json"`

	// Metrics / health
	MetricsLogDir       string `env:"METRICS_LOG_DIR" envDefault:"logs/bots"`
	MetricsWindowHours  int    `env:"METRICS_WINDOW_HOURS" envDefault:"24"`
	WorkerProcessMarker string `env:"WORKER_PROCESS_MARKER" envDefault:"bots-brokerwiz-worker"`

	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if cfg.MQTTTLSInsecureSkipVerify && !cfg.IsDev() {
		return Config{}, fmt.Errorf("op=config.Load: MQTT_TLS_INSECURE_SKIP_VERIFY is refused outside development")
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.Environment) == "development" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.Environment) == "production" }

// IsStaging reports whether the app is running in staging mode.
func (c Config) IsStaging() bool { return strings.ToLower(c.Environment) == "staging" }

// BrokerKeepAlive returns the MQTT keepalive interval as a time.Duration.
func (c Config) BrokerKeepAlive() time.Duration {
	return time.Duration(c.MQTTKeepAliveSeconds) * time.Second
}

// WorkerTimeout returns the per-job timeout as a time.Duration.
func (c Config) WorkerTimeout() time.Duration {
	return time.Duration(c.WorkerTimeoutS) * time.Second
}

// ReconnectMinDelay returns the MQTT reconnect lower bound as a time.Duration.
func (c Config) ReconnectMinDelay() time.Duration {
	return time.Duration(c.MQTTReconnectMinDelayS) * time.Second
}

// ReconnectMaxDelay returns the MQTT reconnect upper bound as a time.Duration.
func (c Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.MQTTReconnectMaxDelayS) * time.Second
}
