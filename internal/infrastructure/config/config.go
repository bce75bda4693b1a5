package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	Event      EventConfig
	HTTP       HTTPConfig
	Returns    ReturnsConfig
	Scheduler  SchedulerConfig
	Courier    CourierConfig
	Settlement SettlementConfig
	Storage    StorageConfig
	Telemetry  TelemetryConfig
	Metrics    MetricsConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for validating actor tokens
type JWTConfig struct {
	Secret          string
	Issuer          string
	TokenExpiration time.Duration
}

// EventConfig holds outbox processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	// ClaimTimeout is how long an entry may sit in PROCESSING before it is
	// handed to another processor
	ClaimTimeout     time.Duration
	RetryBaseBackoff time.Duration
	RetryMaxBackoff  time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	// RateLimit* throttle the public webhook and API per client IP.
	// RateLimitStore is memory or redis.
	RateLimitEnabled  bool
	RateLimitRequests int64
	RateLimitPeriod   time.Duration
	RateLimitStore    string
}

// ReturnsConfig holds the return workflow settings
type ReturnsConfig struct {
	SLA                  time.Duration
	ShopDecisionTimeout  time.Duration
	PackagingTimeout     time.Duration
	PickupTimeout        time.Duration
	TransitTimeout       time.Duration
	DispositionTimeout   time.Duration
	CASMaxRetries        int
	AutoApproveShopFault bool
}

// SchedulerConfig holds deadline scheduler configuration
type SchedulerConfig struct {
	Enabled        bool
	Workers        int
	QueueSize      int
	SweepInterval  time.Duration
	SweepBatchSize int
	FiringTimeout  time.Duration
}

// CourierConfig holds courier gateway settings
type CourierConfig struct {
	Provider        string // ghn
	BaseURL         string
	Token           string
	ShopID          int
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	WebhookToken    string
	PollEnabled     bool
	PollInterval    time.Duration
	PollConcurrency int
	PollBatchSize   int
}

// SettlementConfig holds Settlement Notifier settings
type SettlementConfig struct {
	Transport    string // http, kafka, log
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	KafkaBrokers []string
	KafkaTopic   string
	DedupeTTL    time.Duration
	MaxRetries   int
}

// StorageConfig holds S3 evidence storage settings
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
	MaxFileSize     int64
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
	MetricsInterval   time.Duration
}

// MetricsConfig holds Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load loads configuration from an optional .env file, config.toml and
// environment variables.
// Priority (highest to lowest):
// 1. Environment variables with RETURNS_ prefix (e.g., RETURNS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/returns")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("RETURNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			Issuer:          v.GetString("jwt.issuer"),
			TokenExpiration: v.GetDuration("jwt.token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			ClaimTimeout:     v.GetDuration("event.claim_timeout"),
			RetryBaseBackoff: v.GetDuration("event.retry_base_backoff"),
			RetryMaxBackoff:  v.GetDuration("event.retry_max_backoff"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt64("http.rate_limit_requests"),
			RateLimitPeriod:   v.GetDuration("http.rate_limit_period"),
			RateLimitStore:    v.GetString("http.rate_limit_store"),
		},
		Returns: ReturnsConfig{
			SLA:                  v.GetDuration("returns.sla"),
			ShopDecisionTimeout:  v.GetDuration("returns.shop_decision_timeout"),
			PackagingTimeout:     v.GetDuration("returns.packaging_timeout"),
			PickupTimeout:        v.GetDuration("returns.pickup_timeout"),
			TransitTimeout:       v.GetDuration("returns.transit_timeout"),
			DispositionTimeout:   v.GetDuration("returns.disposition_timeout"),
			CASMaxRetries:        v.GetInt("returns.cas_max_retries"),
			AutoApproveShopFault: v.GetBool("returns.auto_approve_shop_fault"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        !v.IsSet("scheduler.enabled") || v.GetBool("scheduler.enabled"),
			Workers:        v.GetInt("scheduler.workers"),
			QueueSize:      v.GetInt("scheduler.queue_size"),
			SweepInterval:  v.GetDuration("scheduler.sweep_interval"),
			SweepBatchSize: v.GetInt("scheduler.sweep_batch_size"),
			FiringTimeout:  v.GetDuration("scheduler.firing_timeout"),
		},
		Courier: CourierConfig{
			Provider:        v.GetString("courier.provider"),
			BaseURL:         v.GetString("courier.base_url"),
			Token:           v.GetString("courier.token"),
			ShopID:          v.GetInt("courier.shop_id"),
			Timeout:         v.GetDuration("courier.timeout"),
			MaxRetries:      v.GetInt("courier.max_retries"),
			RetryBackoff:    v.GetDuration("courier.retry_backoff"),
			WebhookToken:    v.GetString("courier.webhook_token"),
			PollEnabled:     v.GetBool("courier.poll_enabled"),
			PollInterval:    v.GetDuration("courier.poll_interval"),
			PollConcurrency: v.GetInt("courier.poll_concurrency"),
			PollBatchSize:   v.GetInt("courier.poll_batch_size"),
		},
		Settlement: SettlementConfig{
			Transport:    v.GetString("settlement.transport"),
			Endpoint:     v.GetString("settlement.endpoint"),
			APIKey:       v.GetString("settlement.api_key"),
			Timeout:      v.GetDuration("settlement.timeout"),
			KafkaBrokers: v.GetStringSlice("settlement.kafka_brokers"),
			KafkaTopic:   v.GetString("settlement.kafka_topic"),
			DedupeTTL:    v.GetDuration("settlement.dedupe_ttl"),
			MaxRetries:   v.GetInt("settlement.max_retries"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
			MaxFileSize:     v.GetInt64("storage.max_file_size"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
		Metrics: MetricsConfig{
			Enabled: !v.IsSet("metrics.enabled") || v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "returns-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "returns"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "returns.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "returns-service"
	}
	if cfg.JWT.TokenExpiration == 0 {
		cfg.JWT.TokenExpiration = time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 2 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 10
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.ClaimTimeout == 0 {
		cfg.Event.ClaimTimeout = 5 * time.Minute
	}
	if cfg.Event.RetryBaseBackoff == 0 {
		cfg.Event.RetryBaseBackoff = time.Second
	}
	if cfg.Event.RetryMaxBackoff == 0 {
		cfg.Event.RetryMaxBackoff = 30 * time.Minute
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20
	}
	// No CORS origin default: cross-origin requests stay disabled until configured.
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 300
	}
	if cfg.HTTP.RateLimitPeriod == 0 {
		cfg.HTTP.RateLimitPeriod = time.Minute
	}
	if cfg.HTTP.RateLimitStore == "" {
		cfg.HTTP.RateLimitStore = "memory"
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Returns.SLA == 0 {
		cfg.Returns.SLA = 48 * time.Hour
	}
	if cfg.Returns.ShopDecisionTimeout == 0 {
		cfg.Returns.ShopDecisionTimeout = cfg.Returns.SLA
	}
	if cfg.Returns.PackagingTimeout == 0 {
		cfg.Returns.PackagingTimeout = cfg.Returns.SLA
	}
	if cfg.Returns.PickupTimeout == 0 {
		cfg.Returns.PickupTimeout = cfg.Returns.SLA
	}
	if cfg.Returns.DispositionTimeout == 0 {
		cfg.Returns.DispositionTimeout = cfg.Returns.SLA
	}
	if cfg.Returns.TransitTimeout == 0 {
		cfg.Returns.TransitTimeout = 7 * 24 * time.Hour
	}
	if cfg.Returns.CASMaxRetries == 0 {
		cfg.Returns.CASMaxRetries = 5
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 1024
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = time.Minute
	}
	if cfg.Scheduler.SweepBatchSize == 0 {
		cfg.Scheduler.SweepBatchSize = 200
	}
	if cfg.Scheduler.FiringTimeout == 0 {
		cfg.Scheduler.FiringTimeout = 30 * time.Second
	}
	if cfg.Courier.Provider == "" {
		cfg.Courier.Provider = "ghn"
	}
	if cfg.Courier.BaseURL == "" {
		cfg.Courier.BaseURL = "https://dev-online-gateway.ghn.vn/shiip/public-api"
	}
	if cfg.Courier.Timeout == 0 {
		cfg.Courier.Timeout = 10 * time.Second
	}
	if cfg.Courier.MaxRetries == 0 {
		cfg.Courier.MaxRetries = 3
	}
	if cfg.Courier.RetryBackoff == 0 {
		cfg.Courier.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Courier.PollInterval == 0 {
		cfg.Courier.PollInterval = 10 * time.Minute
	}
	if cfg.Courier.PollConcurrency == 0 {
		cfg.Courier.PollConcurrency = 4
	}
	if cfg.Courier.PollBatchSize == 0 {
		cfg.Courier.PollBatchSize = 200
	}
	if cfg.Settlement.Transport == "" {
		cfg.Settlement.Transport = "log"
	}
	if cfg.Settlement.Timeout == 0 {
		cfg.Settlement.Timeout = 10 * time.Second
	}
	if cfg.Settlement.KafkaTopic == "" {
		cfg.Settlement.KafkaTopic = "returns.settlement"
	}
	if cfg.Settlement.DedupeTTL == 0 {
		cfg.Settlement.DedupeTTL = 30 * 24 * time.Hour
	}
	if cfg.Settlement.MaxRetries == 0 {
		cfg.Settlement.MaxRetries = 10
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 15 * time.Minute
	}
	if cfg.Storage.MaxFileSize == 0 {
		cfg.Storage.MaxFileSize = 50 << 20
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "returns-service"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Returns.SLA < 0 || c.Returns.ShopDecisionTimeout < 0 || c.Returns.PackagingTimeout < 0 ||
		c.Returns.PickupTimeout < 0 || c.Returns.TransitTimeout < 0 || c.Returns.DispositionTimeout < 0 {
		return fmt.Errorf("returns timeouts must be positive")
	}
	if c.Returns.CASMaxRetries < 1 {
		return fmt.Errorf("returns.cas_max_retries must be at least 1")
	}

	switch c.Settlement.Transport {
	case "log":
	case "http":
		if c.Settlement.Endpoint == "" {
			return fmt.Errorf("settlement.endpoint is required for the http transport")
		}
	case "kafka":
		if len(c.Settlement.KafkaBrokers) == 0 {
			return fmt.Errorf("settlement.kafka_brokers is required for the kafka transport")
		}
	default:
		return fmt.Errorf("settlement.transport must be http, kafka or log, got %q", c.Settlement.Transport)
	}

	if c.Courier.Provider != "ghn" {
		return fmt.Errorf("courier.provider %q is not supported", c.Courier.Provider)
	}

	if c.HTTP.RateLimitStore != "memory" && c.HTTP.RateLimitStore != "redis" {
		return fmt.Errorf("http.rate_limit_store must be memory or redis, got %q", c.HTTP.RateLimitStore)
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Courier.Token == "" {
			return fmt.Errorf("courier.token is required in production")
		}
		if c.Courier.WebhookToken == "" {
			return fmt.Errorf("courier.webhook_token is required in production")
		}
		if c.Settlement.Transport == "log" {
			return fmt.Errorf("settlement.transport cannot be 'log' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
