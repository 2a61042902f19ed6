package config

import "time"

// Config represents the complete hookq configuration.
//
// Values come from an optional YAML file and are then overridden by
// environment variables. The env names match the ones the gateway has always
// been deployed with (PORT, TOKEN, APP_SECRET, REDIS_URL, QUEUE_KEY, LOG_LEVEL).
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Server  ServerConfig  `yaml:"server"`
	Webhook WebhookConfig `yaml:"webhook"`
	Queue   QueueConfig   `yaml:"queue"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string `yaml:"name" env:"SERVICE_NAME"`
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" env:"LOG_FORMAT"`
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"HOST"`
	Port         string        `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// WebhookConfig defines the provider-facing endpoint.
type WebhookConfig struct {
	// Path serves both the subscription handshake (GET) and events (POST).
	Path string `yaml:"path" env:"WEBHOOK_PATH"`

	// VerifyToken is echoed back by the provider during the subscription handshake.
	VerifyToken string `yaml:"verify_token" env:"TOKEN"`

	// AppSecret is the HMAC key shared with the provider.
	AppSecret string `yaml:"app_secret" env:"APP_SECRET"`

	// SignatureAlgorithm is the pre-agreed HMAC algorithm (sha1 or sha256).
	SignatureAlgorithm string `yaml:"signature_algorithm" env:"SIGNATURE_ALGORITHM"`

	// SignatureHeader defaults to X-Hub-Signature for sha1 and
	// X-Hub-Signature-256 for sha256.
	SignatureHeader string `yaml:"signature_header" env:"SIGNATURE_HEADER"`

	// MaxBodySize accepts plain bytes or KB/MB/GB suffixes (e.g. "1MB").
	MaxBodySize string `yaml:"max_body_size" env:"MAX_BODY_SIZE"`
}

// QueueConfig defines the queue store connection.
type QueueConfig struct {
	// URL selects the backend by scheme: redis://, rediss://, nats://, sqlite://.
	URL string `yaml:"url" env:"REDIS_URL"`

	// Key names the queue (redis list key, sqlite queue_key, nats stream).
	Key string `yaml:"key" env:"QUEUE_KEY"`

	// EnqueueTimeout bounds a single append plus depth query.
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout" env:"ENQUEUE_TIMEOUT"`
}

// Defaults returns a Config with every optional setting filled in. Required
// settings (port, verify token, app secret, queue url, queue key, log level)
// are left empty so validation can catch them.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "hookq",
			LogFormat: "json",
		},
		Server: ServerConfig{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Webhook: WebhookConfig{
			Path:               "/whatsapp",
			SignatureAlgorithm: "sha1",
			MaxBodySize:        "1MB",
		},
		Queue: QueueConfig{
			EnqueueTimeout: 5 * time.Second,
		},
	}
}

// Listen returns the host:port address for the HTTP server.
func (c *Config) Listen() string {
	return c.Server.Host + ":" + c.Server.Port
}
