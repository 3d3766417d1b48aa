package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application. All three
// binaries (cmd/api, cmd/worker, cmd/scheduler) load the same file and
// use the sections relevant to them.
type Config struct {
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Storage     Storage     `mapstructure:"storage"`
	Kafka       Kafka       `mapstructure:"kafka"`
	Retry       Retry       `mapstructure:"retry"`
	Job         Job         `mapstructure:"job"`
	Webhook     Webhook     `mapstructure:"webhook"`
	Workers     Workers     `mapstructure:"workers"`
	Idempotency Idempotency `mapstructure:"idempotency"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string `mapstructure:"http_port"`
	SharedKey    string `mapstructure:"shared_key"` // optional; empty disables the X-Shared-Key check
	MaxUploadMiB int64  `mapstructure:"max_upload_mib"`
}

// MaxUploadBytes returns the configured upload ceiling in bytes.
func (s Server) MaxUploadBytes() int64 {
	if s.MaxUploadMiB <= 0 {
		return 10 << 20
	}
	return s.MaxUploadMiB << 20
}

// Database holds database master and replica configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// Storage holds configuration for the object store (MinIO/S3-compatible).
type Storage struct {
	Endpoint          string `mapstructure:"endpoint"`
	AccessKey         string `mapstructure:"access_key"`
	SecretKey         string `mapstructure:"secret_key"`
	BucketName        string `mapstructure:"bucket_name"`
	UseSSL            bool   `mapstructure:"use_ssl"`
	PresignExpirySecs int    `mapstructure:"presigned_url_expiry_seconds"`
	RetentionDays     int    `mapstructure:"s3_retention_days"`
}

// PresignTTL returns the configured presigned URL lifetime.
func (s Storage) PresignTTL() time.Duration {
	if s.PresignExpirySecs <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.PresignExpirySecs) * time.Second
}

// Kafka holds configuration for the broker (topics, brokers, DLQ).
type Kafka struct {
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	StandardTopic   string   `mapstructure:"standard_topic"`
	MLTopic         string   `mapstructure:"ml_topic"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
}

// Retry defines the default retry policy for TransientUpstream boundaries.
type Retry struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Backoff  float64       `mapstructure:"backoff"`
}

// Job holds job lifecycle configuration.
type Job struct {
	RetentionHours int `mapstructure:"retention_hours"`
}

// Webhook holds circuit-breaker and delivery configuration.
type Webhook struct {
	FailThreshold  int           `mapstructure:"cb_fail_threshold"`
	ResetTimeout   time.Duration `mapstructure:"cb_reset_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Workers holds worker-pool concurrency and timeout settings.
type Workers struct {
	StandardConcurrency int           `mapstructure:"standard_queue_concurrency"`
	MLConcurrency       int           `mapstructure:"ml_queue_concurrency"`
	StandardTimeout     time.Duration `mapstructure:"standard_task_timeout"`
	MLTimeout           time.Duration `mapstructure:"ml_task_timeout"`
}

// Idempotency holds idempotency-cache TTL configuration.
type Idempotency struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// TTL returns the configured idempotency-record lifetime.
func (i Idempotency) TTL() time.Duration {
	if i.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(i.TTLSeconds) * time.Second
}

// mustBindEnv binds secrets to Viper keys so they can be supplied via the
// environment instead of the config file.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
		"storage.access_key":   "MINIO_ACCESS_KEY",
		"storage.secret_key":   "MINIO_SECRET_KEY",
		"server.shared_key":    "PIXTOOLS_SHARED_KEY",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the given directory (expects a
// config.yml file inside it) and panics if it cannot be loaded or
// unmarshaled.
func MustLoad(dir string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("server.max_upload_mib", 10)
	viper.SetDefault("storage.presigned_url_expiry_seconds", 900)
	viper.SetDefault("storage.s3_retention_days", 1)
	viper.SetDefault("job.retention_hours", 72)
	viper.SetDefault("idempotency.ttl_seconds", 86400)
	viper.SetDefault("webhook.cb_fail_threshold", 5)
	viper.SetDefault("webhook.cb_reset_timeout", "60s")
	viper.SetDefault("webhook.request_timeout", "5s")
	viper.SetDefault("workers.standard_queue_concurrency", 8)
	viper.SetDefault("workers.ml_queue_concurrency", 1)
	viper.SetDefault("workers.standard_task_timeout", "60s")
	viper.SetDefault("workers.ml_task_timeout", "300s")
	viper.SetDefault("retry.attempts", 3)
	viper.SetDefault("retry.delay", "200ms")
	viper.SetDefault("retry.backoff", 2.0)
}
