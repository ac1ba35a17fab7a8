package config

import (
	"time"
)

// Compile time variables are set by -ldflags.
var (
	ServiceVersion string
	CommitSHA      string
)

type (
	ServiceConfig struct {
		AppConfig     AppConfig            `json:"app_config"`
		Logging       LoggingConfig        `json:"logging"`
		HTTPServer    HTTPServerConfig     `json:"http_server"`
		Storage       StorageConfig        `json:"storage"`
		Auth          AuthConfig           `json:"auth"`
		Worker        WorkerConfig         `json:"worker"`
		Retry         RetryConfig          `json:"retry"`
		Breaker       CircuitBreakerConfig `json:"circuit_breaker"`
		HTTPClient    HTTPClientConfig     `json:"http_client"`
		Tenancy       TenancyConfig        `json:"tenancy"`
		Email         EmailConfig          `json:"email"`
		DeviceService DeviceServiceConfig  `json:"device_service"`
		RateLimiting  RateLimitingConfig   `json:"rate_limiting"`
		Metrics       MetricsConfig        `json:"metrics"`
	}

	AppConfig struct {
		ServiceName    string `envconfig:"APP_SERVICE_NAME" default:"svc-device-manager" json:"service_name"`
		ServiceVersion string `envconfig:"APP_SERVICE_VERSION" default:"0.0.0" json:"service_version"`
		CommitSHA      string `envconfig:"APP_COMMIT_SHA" default:"unknown" json:"commit_sha"`
		Env            string `envconfig:"APP_ENVIRONMENT" default:"unknown" json:"env"`
	}

	LoggingConfig struct {
		Level     string          `envconfig:"LOGGING_LEVEL" default:"info" json:"level"`
		Format    string          `envconfig:"LOGGING_FORMAT" default:"json" json:"format"`
		AccessLog AccessLogConfig `json:"access_log"`
	}

	AccessLogConfig struct {
		Enabled         bool `envconfig:"ACCESS_LOG_ENABLED" default:"true" json:"enabled"`
		LogHealthChecks bool `envconfig:"ACCESS_LOG_HEALTH_CHECKS" default:"false" json:"log_health_checks"`
	}

	HTTPServerConfig struct {
		Port            int           `envconfig:"HTTP_SERVER_PORT" default:"8080" json:"port"`
		Host            string        `envconfig:"HTTP_SERVER_HOST" default:"0.0.0.0" json:"host"`
		ReadTimeout     time.Duration `envconfig:"HTTP_SERVER_READ_TIMEOUT" default:"30s" json:"read_timeout"`
		WriteTimeout    time.Duration `envconfig:"HTTP_SERVER_WRITE_TIMEOUT" default:"30s" json:"write_timeout"`
		IdleTimeout     time.Duration `envconfig:"HTTP_SERVER_IDLE_TIMEOUT" default:"120s" json:"idle_timeout"`
		ShutdownTimeout time.Duration `envconfig:"HTTP_SERVER_SHUTDOWN_TIMEOUT" default:"30s" json:"shutdown_timeout"`
	}

	StorageConfig struct {
		DatabaseURL     string        `envconfig:"DATABASE_URL" required:"true" json:"database_url,omitempty"`
		MaxOpenConns    int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"25" json:"max_open_conns"`
		MaxIdleConns    int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5" json:"max_idle_conns"`
		ConnMaxLifetime time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"5m" json:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `envconfig:"POSTGRES_CONN_MAX_IDLE_TIME" default:"5m" json:"conn_max_idle_time"`
		ConnectTimeout  time.Duration `envconfig:"POSTGRES_CONNECT_TIMEOUT" default:"10s" json:"connect_timeout"`
	}

	// AuthConfig carries the shared-secret contract for internal calls. It is
	// a deployment detail, not a security design.
	AuthConfig struct {
		InternalToken string `envconfig:"DEVICE_SERVICE_TOKEN" required:"true" json:"internal_token,omitempty"`
	}

	WorkerConfig struct {
		PollIntervalSeconds int `envconfig:"POLL_INTERVAL_SECONDS" default:"5" json:"poll_interval_seconds"`
		BatchSize           int `envconfig:"OUTBOX_BATCH_SIZE" default:"10" json:"batch_size"`
	}

	RetryConfig struct {
		BaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s" json:"base_delay"`
		MaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"60s" json:"max_delay"`
		MaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"5" json:"max_attempts"`
	}

	CircuitBreakerConfig struct {
		FailureThreshold uint32        `envconfig:"CB_FAILURE_THRESHOLD" default:"5" json:"failure_threshold"`
		RecoveryTimeout  time.Duration `envconfig:"CB_RECOVERY_TIMEOUT" default:"30s" json:"recovery_timeout"`
	}

	HTTPClientConfig struct {
		Timeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" json:"timeout"`
		ConnectTimeout time.Duration `envconfig:"HTTP_CONNECT_TIMEOUT" default:"5s" json:"connect_timeout"`
	}

	TenancyConfig struct {
		URL   string `envconfig:"TENANCY_SERVICE_URL" json:"url"`
		Token string `envconfig:"TENANCY_SERVICE_TOKEN" json:"token,omitempty"`
	}

	EmailConfig struct {
		APIKey string `envconfig:"RESEND_API_KEY" json:"api_key,omitempty"`
		From   string `envconfig:"RESEND_FROM" json:"from"`
	}

	DeviceServiceConfig struct {
		URL   string `envconfig:"DEVICE_SERVICE_URL" json:"url"`
		Token string `envconfig:"DEVICE_SERVICE_TOKEN" json:"token,omitempty"`
	}

	RateLimitingConfig struct {
		Enabled           bool `envconfig:"RATE_LIMITING_ENABLED" default:"false" json:"enabled"`
		RequestsPerSecond int  `envconfig:"RATE_LIMITING_REQUESTS_PER_SECOND" default:"10" json:"requests_per_second"`
		BurstSize         int  `envconfig:"RATE_LIMITING_BURST_SIZE" default:"20" json:"burst_size"`
		MaxKeys           int  `envconfig:"RATE_LIMITING_MAX_KEYS" default:"1000" json:"max_keys"`
	}

	MetricsConfig struct {
		Enabled bool `envconfig:"METRICS_ENABLED" default:"true" json:"enabled"`
	}
)

// PollInterval returns the worker polling cadence as a duration.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
