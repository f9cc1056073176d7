package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Accounting AccountingConfig
	Queue      QueueConfig
	Retention  RetentionConfig
	Storage    StorageConfig
	Telemetry  TelemetryConfig
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
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// AccountingConfig holds the accounting hub settings: the credential master
// key, connector pool bounds and the retry budget for vendor calls.
type AccountingConfig struct {
	// MasterKey encrypts tenant connection settings at rest. Set via
	// FINPLAT_ACCOUNTING_MASTER_KEY; never stored in config files.
	MasterKey string

	// Connector pool
	PoolMaxSize        int
	PoolMinSize        int
	PoolAcquireTimeout time.Duration
	PoolIdleTimeout    time.Duration
	PoolHealthInterval time.Duration

	// Retry executor
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryJitterFactor float64
}

// QueueConfig holds sync job queue and worker pool configuration
type QueueConfig struct {
	// Backend is "redis" or "memory"
	Backend        string
	KeyPrefix      string
	Workers        int
	PollInterval   time.Duration
	JobTimeout     time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// RetentionConfig holds audit/sync log retention configuration
type RetentionConfig struct {
	Enabled       bool
	Days          int // rows older than this are archived and deleted
	SweepInterval time.Duration
	BatchSize     int
	ArchiveToS3   bool
}

// StorageConfig holds S3-compatible object storage settings used for audit
// log archival
type StorageConfig struct {
	Bucket            string
	AccessKey         string
	SecretKey         string
	Endpoint          string
	Region            string
	UseSSL            bool
	UsePathStyle      bool
	Prefix            string
	PresignExpiration time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with FINPLAT_ prefix (e.g., FINPLAT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("FINPLAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Accounting: AccountingConfig{
			MasterKey:          v.GetString("accounting.master_key"),
			PoolMaxSize:        v.GetInt("accounting.pool_max_size"),
			PoolMinSize:        v.GetInt("accounting.pool_min_size"),
			PoolAcquireTimeout: v.GetDuration("accounting.pool_acquire_timeout"),
			PoolIdleTimeout:    v.GetDuration("accounting.pool_idle_timeout"),
			PoolHealthInterval: v.GetDuration("accounting.pool_health_interval"),
			RetryMaxAttempts:   v.GetInt("accounting.retry_max_attempts"),
			RetryInitialDelay:  v.GetDuration("accounting.retry_initial_delay"),
			RetryMaxDelay:      v.GetDuration("accounting.retry_max_delay"),
			RetryMultiplier:    v.GetFloat64("accounting.retry_multiplier"),
			RetryJitterFactor:  v.GetFloat64("accounting.retry_jitter_factor"),
		},
		Queue: QueueConfig{
			Backend:        v.GetString("queue.backend"),
			KeyPrefix:      v.GetString("queue.key_prefix"),
			Workers:        v.GetInt("queue.workers"),
			PollInterval:   v.GetDuration("queue.poll_interval"),
			JobTimeout:     v.GetDuration("queue.job_timeout"),
			RetryBaseDelay: v.GetDuration("queue.retry_base_delay"),
			RetryMaxDelay:  v.GetDuration("queue.retry_max_delay"),
		},
		Retention: RetentionConfig{
			Enabled:       v.GetBool("retention.enabled"),
			Days:          v.GetInt("retention.days"),
			SweepInterval: v.GetDuration("retention.sweep_interval"),
			BatchSize:     v.GetInt("retention.batch_size"),
			ArchiveToS3:   v.GetBool("retention.archive_to_s3"),
		},
		Storage: StorageConfig{
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			Prefix:            v.GetString("storage.prefix"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "finplat-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "finplat"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
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
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
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
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	// Accounting defaults
	if cfg.Accounting.PoolMaxSize == 0 {
		cfg.Accounting.PoolMaxSize = 10
	}
	if cfg.Accounting.PoolMinSize == 0 {
		cfg.Accounting.PoolMinSize = 2
	}
	if cfg.Accounting.PoolAcquireTimeout == 0 {
		cfg.Accounting.PoolAcquireTimeout = 10 * time.Second
	}
	if cfg.Accounting.PoolIdleTimeout == 0 {
		cfg.Accounting.PoolIdleTimeout = 5 * time.Minute
	}
	if cfg.Accounting.PoolHealthInterval == 0 {
		cfg.Accounting.PoolHealthInterval = time.Minute
	}
	if cfg.Accounting.RetryMaxAttempts == 0 {
		cfg.Accounting.RetryMaxAttempts = 3
	}
	if cfg.Accounting.RetryInitialDelay == 0 {
		cfg.Accounting.RetryInitialDelay = time.Second
	}
	if cfg.Accounting.RetryMaxDelay == 0 {
		cfg.Accounting.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Accounting.RetryMultiplier == 0 {
		cfg.Accounting.RetryMultiplier = 2.0
	}
	if cfg.Accounting.RetryJitterFactor == 0 {
		cfg.Accounting.RetryJitterFactor = 0.1
	}
	// Queue defaults
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "redis"
	}
	if cfg.Queue.KeyPrefix == "" {
		cfg.Queue.KeyPrefix = "accounting:queue:"
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 500 * time.Millisecond
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = 5 * time.Minute
	}
	if cfg.Queue.RetryBaseDelay == 0 {
		cfg.Queue.RetryBaseDelay = 2 * time.Second
	}
	if cfg.Queue.RetryMaxDelay == 0 {
		cfg.Queue.RetryMaxDelay = 5 * time.Minute
	}
	// Retention defaults
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 90
	}
	if cfg.Retention.SweepInterval == 0 {
		cfg.Retention.SweepInterval = 24 * time.Hour
	}
	if cfg.Retention.BatchSize == 0 {
		cfg.Retention.BatchSize = 500
	}
	// Storage defaults
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "audit-archive/"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "finplat-backend"
	}
	// Note: Insecure defaults to false for safety (TLS enabled by default)
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
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

	// Validate connector pool settings
	if c.Accounting.PoolMinSize > c.Accounting.PoolMaxSize {
		return fmt.Errorf("accounting.pool_min_size (%d) cannot exceed accounting.pool_max_size (%d)",
			c.Accounting.PoolMinSize, c.Accounting.PoolMaxSize)
	}
	if c.Accounting.RetryMultiplier < 1 {
		return fmt.Errorf("accounting.retry_multiplier must be at least 1, got %f", c.Accounting.RetryMultiplier)
	}
	if c.Accounting.RetryJitterFactor < 0 || c.Accounting.RetryJitterFactor > 1 {
		return fmt.Errorf("accounting.retry_jitter_factor must be between 0 and 1, got %f", c.Accounting.RetryJitterFactor)
	}

	if c.Queue.Backend != "redis" && c.Queue.Backend != "memory" {
		return fmt.Errorf("queue.backend must be \"redis\" or \"memory\", got %q", c.Queue.Backend)
	}

	// The master key guards every tenant credential at rest; there is no
	// environment where starting without one is acceptable.
	if c.Accounting.MasterKey == "" {
		return fmt.Errorf("accounting.master_key is required (set FINPLAT_ACCOUNTING_MASTER_KEY)")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if len(c.Accounting.MasterKey) < 32 {
			return fmt.Errorf("accounting.master_key must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Queue.Backend == "memory" {
			return fmt.Errorf("queue.backend cannot be 'memory' in production (jobs would not survive restarts)")
		}
		if c.Retention.ArchiveToS3 && c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when retention.archive_to_s3 is enabled")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
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

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
