package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// GatewayConfig carries credentials and endpoints for every payment provider a
// binary talks to. Base URLs default to the provider sandboxes; production
// deployments must override them.
type GatewayConfig struct {
	AsaasAPIKey  string `envconfig:"ASAAS_API_KEY"`
	AsaasBaseURL string `envconfig:"ASAAS_BASE_URL" default:"https://sandbox.asaas.com/api"`

	InfinityPayAPIKey  string `envconfig:"INFINITYPAY_API_KEY"`
	InfinityPayBaseURL string `envconfig:"INFINITYPAY_BASE_URL" default:"https://api-sandbox.infinitypay.io"`

	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`
	GatewayRPS     float64       `envconfig:"GATEWAY_RPS" default:"5"`
	GatewayBurst   int           `envconfig:"GATEWAY_BURST" default:"10"`
}

// RetryConfig is the webhook retry schedule. The defaults give an immediate
// first attempt followed by waits of 1m, 5m, 25m, 1h (capped).
type RetryConfig struct {
	MaxAttempts       int           `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"5"`
	BackoffBase       time.Duration `envconfig:"WEBHOOK_BACKOFF_BASE" default:"60s"`
	BackoffMultiplier float64       `envconfig:"WEBHOOK_BACKOFF_MULTIPLIER" default:"5"`
	BackoffMax        time.Duration `envconfig:"WEBHOOK_BACKOFF_MAX" default:"3600s"`
	DeliveryTimeout   time.Duration `envconfig:"WEBHOOK_DELIVERY_TIMEOUT" default:"30s"`

	// How long a retrying delivery may sit without a status update before
	// another worker reclaims it. Must exceed BackoffMax + DeliveryTimeout.
	ClaimWindow time.Duration `envconfig:"WEBHOOK_CLAIM_WINDOW" default:"65m"`
}

type DBPoolConfig struct {
	MaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	MinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	MaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	MaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

type APIConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	DBPool DBPoolConfig
}

type WorkerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	// Must cover the whole retry schedule (default waits sum to ~91m) so
	// SQS does not redeliver a job whose attempt loop is still running.
	SQSVizTimeout int32 `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"6000"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"20"`

	DBPool DBPoolConfig
	Retry  RetryConfig
}

type SchedulerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"5m"`
	DLQDrainInterval  time.Duration `envconfig:"DLQ_DRAIN_INTERVAL" default:"6h"`
	DLQBatchSize      int           `envconfig:"DLQ_BATCH_SIZE" default:"50"`
	DLQAlertThreshold int           `envconfig:"DLQ_ALERT_THRESHOLD" default:"100"`
	DLQRetention      time.Duration `envconfig:"DLQ_RETENTION" default:"720h"`

	DBPool   DBPoolConfig
	Retry    RetryConfig
	Gateways GatewayConfig
}

type GatewayWebhookConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Shared token each provider is configured to send back on push
	// notifications; requests without it are rejected.
	AsaasWebhookToken       string `envconfig:"ASAAS_WEBHOOK_TOKEN" required:"true"`
	InfinityPayWebhookToken string `envconfig:"INFINITYPAY_WEBHOOK_TOKEN" required:"true"`

	DBPool   DBPoolConfig
	Gateways GatewayConfig
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadScheduler() SchedulerConfig {
	var cfg SchedulerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadGatewayWebhook() GatewayWebhookConfig {
	var cfg GatewayWebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
