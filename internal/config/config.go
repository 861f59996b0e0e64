package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	NodeID      int64

	OpsAddr string

	DBType            string
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
	DBAutoMigrate     bool

	Lock LockConfig

	ExpirySweep ExpirySweepConfig
	Telemetry   TelemetryConfig

	PolicyPath string
}

// TelemetryConfig drives logging and the OTLP exporters. The endpoint is
// shared by traces and metrics.
type TelemetryConfig struct {
	LogLevel       string
	LogFormat      string
	TracesEnabled  bool
	MetricsEnabled bool
	Endpoint       string
	Protocol       string
	SamplingRatio  float64
}

// LockConfig selects the admission lock backend. An empty RedisAddr keeps
// locking in-process.
type LockConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	Wait          time.Duration
	RetryInterval time.Duration
}

type ExpirySweepConfig struct {
	Enabled     bool
	Interval    time.Duration
	HorizonDays int
	BatchSize   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "netbox-license"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE", 1),
		OpsAddr:           getenv("OPS_ADDR", ":9090"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "netbox"),
		DBUser:            getenv("DATABASE_USER", "netbox"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", false),
		Lock: LockConfig{
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			TTL:           getenvDuration("LICENSE_LOCK_TTL", 10*time.Second),
			Wait:          getenvDuration("LICENSE_LOCK_WAIT", 5*time.Second),
			RetryInterval: getenvDuration("LICENSE_LOCK_RETRY", 50*time.Millisecond),
		},
		ExpirySweep: ExpirySweepConfig{
			Enabled:     getenvBool("EXPIRY_SWEEP_ENABLED", true),
			Interval:    getenvDuration("EXPIRY_SWEEP_INTERVAL", time.Hour),
			HorizonDays: getenvInt("EXPIRY_SWEEP_HORIZON_DAYS", 90),
			BatchSize:   getenvInt("EXPIRY_SWEEP_BATCH_SIZE", 500),
		},
		Telemetry:  loadTelemetry(),
		PolicyPath: strings.TrimSpace(getenv("LICENSING_CONFIG", "")),
	}
}

func loadTelemetry() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	tracesEnabled := getenvBool("OTEL_ENABLED", false)
	return TelemetryConfig{
		LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		TracesEnabled:  tracesEnabled,
		MetricsEnabled: getenvBool("OTEL_METRICS_ENABLED", tracesEnabled),
		Endpoint:       strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		Protocol:       strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
