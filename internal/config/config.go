package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Storage      StorageConfig
	Queue        QueueConfig
	Orchestrator OrchestratorConfig
	Delivery     DeliveryConfig
	Auth         AuthConfig
	Logging      LoggingConfig
	Tracing      TracingConfig
	Metrics      MetricsConfig
	Worker       WorkerConfig
	Upload       UploadConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	RateLimitRPS    int
	RateLimitBurst  int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool

	// PublicEndpoint is the direct-storage base used when no CDN is configured
	PublicEndpoint string
	CDNBaseURL     string
	KeyPrefix      string
	RequestTimeout time.Duration
	MaxAttempts    int
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// OrchestratorConfig holds transcode job orchestration settings
type OrchestratorConfig struct {
	MaxAttempts    int
	PollAttempts   int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RequestTimeout time.Duration
	JobTimeout     time.Duration
	PollInterval   time.Duration
	LockTTL        time.Duration
}

// DeliveryConfig holds playback resolution settings
type DeliveryConfig struct {
	MaxSignedURLTTL     time.Duration
	DefaultSignedURLTTL time.Duration
	DefaultFormat       string

	// PlanCeilings maps plan tier to maximum bitrate in kbps
	PlanCeilings map[string]int

	// PublicURL is the externally visible API origin manifest links point at
	PublicURL string
	// LinkSecret signs manifest links; empty falls back to the JWT secret
	LinkSecret string
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	JWTSecret     string
	WebhookSecret string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// TracingConfig holds Jaeger settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// MetricsConfig holds the metrics listener settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// WorkerConfig holds settings for the reference encoder worker
type WorkerConfig struct {
	TempDir     string
	FFmpegPath  string
	FFprobePath string
	SegmentTime int
	Preset      string
	StatusTTL   time.Duration

	// CallbackURL receives signed status webhooks; empty disables them
	CallbackURL string
	Prefetch    int
}

// UploadConfig holds chunked source upload settings
type UploadConfig struct {
	TempDir    string
	PartSize   int64
	Expiration time.Duration
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Delivery.MaxSignedURLTTL <= 0 {
		return fmt.Errorf("delivery.maxSignedURLTTL must be positive")
	}
	if c.Delivery.DefaultSignedURLTTL <= 0 || c.Delivery.DefaultSignedURLTTL > c.Delivery.MaxSignedURLTTL {
		return fmt.Errorf("delivery.defaultSignedURLTTL must be in (0, %s]", c.Delivery.MaxSignedURLTTL)
	}
	if c.Orchestrator.MaxAttempts < 1 || c.Orchestrator.PollAttempts < 1 {
		return fmt.Errorf("orchestrator.maxAttempts and orchestrator.pollAttempts must be at least 1")
	}
	if c.Orchestrator.JobTimeout <= 0 {
		return fmt.Errorf("orchestrator.jobTimeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.maxUploadBytes", 2*1024*1024*1024) // 2GB
	v.SetDefault("server.rateLimitRPS", 20)
	v.SetDefault("server.rateLimitBurst", 40)

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "flenix")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "media")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.publicEndpoint", "http://localhost:9000")
	v.SetDefault("storage.cdnBaseURL", "")
	v.SetDefault("storage.keyPrefix", "uploads")
	v.SetDefault("storage.requestTimeout", "30s")
	v.SetDefault("storage.maxAttempts", 3)

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Orchestrator defaults
	v.SetDefault("orchestrator.maxAttempts", 5)
	v.SetDefault("orchestrator.pollAttempts", 3)
	v.SetDefault("orchestrator.backoffBase", "500ms")
	v.SetDefault("orchestrator.backoffMax", "10s")
	v.SetDefault("orchestrator.requestTimeout", "15s")
	v.SetDefault("orchestrator.jobTimeout", "2h")
	v.SetDefault("orchestrator.pollInterval", "15s")
	v.SetDefault("orchestrator.lockTTL", "1m")

	// Delivery defaults
	v.SetDefault("delivery.maxSignedURLTTL", "6h")
	v.SetDefault("delivery.defaultSignedURLTTL", "1h")
	v.SetDefault("delivery.defaultFormat", "hls")
	v.SetDefault("delivery.publicURL", "http://localhost:8080")
	v.SetDefault("delivery.linkSecret", "")
	v.SetDefault("delivery.planCeilings", map[string]int{
		"free":     1400,
		"standard": 2800,
		"premium":  15000,
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "flenix-delivery")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)

	// Worker defaults
	v.SetDefault("worker.tempDir", "/tmp/flenix-encode")
	v.SetDefault("worker.ffmpegPath", "ffmpeg")
	v.SetDefault("worker.ffprobePath", "ffprobe")
	v.SetDefault("worker.segmentTime", 6)
	v.SetDefault("worker.preset", "medium")
	v.SetDefault("worker.statusTTL", "72h")
	v.SetDefault("worker.callbackURL", "")
	v.SetDefault("worker.prefetch", 1)

	// Upload defaults
	v.SetDefault("upload.tempDir", "/tmp/flenix-uploads")
	v.SetDefault("upload.partSize", 8*1024*1024) // 8MB
	v.SetDefault("upload.expiration", "24h")
}
