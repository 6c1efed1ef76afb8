package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPipelineConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBURL             string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisURL string

	SnowflakeNodeID int64

	Queue      QueueConfig
	Worker     WorkerConfig
	Stripe     StripeConfig
	SubmitRate SubmitRateConfig
	Scheduler  SchedulerConfig

	CredentialSealKey string
	AuthCookieSecure  bool
}

type TelemetryConfig struct {
	LogLevel        string
	LogFormat       string
	OtelEnabled     bool
	OtelProtocol    string
	OtelSampleRatio float64
}

type QueueConfig struct {
	Name                  string
	JobName               string
	RemoveOnCompleteAge   time.Duration
	RemoveOnCompleteCount int
	RemoveOnFailAge       time.Duration
}

type WorkerConfig struct {
	Concurrency     int
	LeaseWait       time.Duration
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration
	// HeartbeatInterval is how often a running job refreshes its lease.
	HeartbeatInterval time.Duration
}

type StripeConfig struct {
	APIBase     string
	HTTPTimeout time.Duration
	MaxRetries  int
	PageSize    int
}

type SubmitRateConfig struct {
	Enabled   bool
	PerMinute float64
	Burst     int
}

type SchedulerConfig struct {
	Enabled        bool
	RunInterval    time.Duration
	StallThreshold time.Duration
	BatchSize      int
}

const (
	DefaultJobName = "stripe-scrape"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "revenuepulse"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:        strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:       strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:     getenvBool("OTEL_ENABLED", false),
			OtelProtocol:    strings.ToLower(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			OtelSampleRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBURL:             strings.TrimSpace(getenv("DATABASE_URL", "")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisURL: strings.TrimSpace(getenv("REDIS_URL", "")),

		SnowflakeNodeID: int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),

		Queue: QueueConfig{
			Name:                  getenv("QUEUE_NAME", DefaultJobName),
			JobName:               getenv("JOB_NAME", DefaultJobName),
			RemoveOnCompleteAge:   getenvDuration("QUEUE_REMOVE_ON_COMPLETE_AGE", time.Hour),
			RemoveOnCompleteCount: getenvInt("QUEUE_REMOVE_ON_COMPLETE_COUNT", 1000),
			RemoveOnFailAge:       getenvDuration("QUEUE_REMOVE_ON_FAIL_AGE", 24*time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency:       getenvInt("WORKER_CONCURRENCY", 3),
			LeaseWait:         getenvDuration("WORKER_LEASE_WAIT", 5*time.Second),
			JobTimeout:        getenvDuration("WORKER_JOB_TIMEOUT", 0),
			ShutdownTimeout:   getenvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
			HeartbeatInterval: getenvDuration("WORKER_HEARTBEAT_INTERVAL", 30*time.Second),
		},
		Stripe: StripeConfig{
			APIBase:     strings.TrimRight(getenv("STRIPE_API_BASE", "https://api.stripe.com"), "/"),
			HTTPTimeout: getenvDuration("STRIPE_HTTP_TIMEOUT", 20*time.Second),
			MaxRetries:  getenvInt("STRIPE_MAX_RETRIES", 3),
			PageSize:    getenvInt("STRIPE_PAGE_SIZE", 100),
		},
		SubmitRate: SubmitRateConfig{
			Enabled:   getenvBool("SUBMIT_RATE_LIMIT_ENABLED", false),
			PerMinute: getenvFloat("SUBMIT_RATE_PER_MINUTE", 6),
			Burst:     getenvInt("SUBMIT_BURST", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:    getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			StallThreshold: getenvDuration("SCHEDULER_STALL_THRESHOLD", 15*time.Minute),
			BatchSize:      getenvInt("SCHEDULER_BATCH_SIZE", 100),
		},

		CredentialSealKey: strings.TrimSpace(getenv("CREDENTIAL_SEAL_KEY", "")),
		AuthCookieSecure:  authCookieSecure,
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
