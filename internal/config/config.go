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
	HTTPAddr    string

	DefaultOrgName         string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	AuthJWTSecret string
	AuthTokenTTL  time.Duration

	WebhookSigningSecret string
	WebhookTolerance     time.Duration

	ReferralCookieName string
	ReferralCookieTTL  time.Duration
	CookieSecure       bool
	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string

	OTLPEndpoint         string
	OTLPProtocol         string
	TracingEnabled       bool
	TraceSamplingRatio   float64
	TraceAllSaleWebhooks bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ResolveRateLimit float64
	ResolveBurst     int
	WebhookLockTTL   time.Duration

	MetricsPushExporter     string
	MetricsRemoteWriteURL   string
	MetricsRemoteWriteToken string
	MetricsPushInterval     time.Duration

	PolicyFile string

	SchedulerEnabled   bool
	SchedulerInterval  time.Duration
	SchedulerBatchSize int
	SchedulerJobs      []string
	PendingSaleTTL     time.Duration

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
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cookieSecure := environment == "production"
	if !cookieSecure {
		cookieSecure = getenvBool("COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:                 getenv("APP_SERVICE", "nodeboss"),
		AppVersion:              getenv("APP_VERSION", "0.1.0"),
		Environment:             environment,
		HTTPAddr:                getenv("HTTP_ADDR", ":8080"),
		DefaultOrgName:          getenv("DEFAULT_ORG_NAME", "Default Organization"),
		BootstrapAdminEmail:     strings.ToLower(strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_EMAIL", ""))),
		BootstrapAdminPassword:  getenv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		AuthJWTSecret:           strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthTokenTTL:            getenvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		WebhookSigningSecret:    strings.TrimSpace(getenv("WEBHOOK_SIGNING_SECRET", "")),
		WebhookTolerance:        getenvDuration("WEBHOOK_TOLERANCE", 5*time.Minute),
		ReferralCookieName:      getenv("REFERRAL_COOKIE_NAME", "nodeboss_ref"),
		ReferralCookieTTL:       getenvDuration("REFERRAL_COOKIE_TTL", 30*24*time.Hour),
		CookieSecure:            cookieSecure,
		CORSAllowedOrigins:      splitList(getenv("CORS_ALLOWED_ORIGINS", "")),
		LogLevel:                strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:               strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OTLPEndpoint:            strings.TrimSpace(getenv("OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:            strings.ToLower(strings.TrimSpace(getenv("OTLP_PROTOCOL", "grpc"))),
		TracingEnabled:          getenvBool("TRACING_ENABLED", true),
		TraceSamplingRatio:      getenvFloat("TRACE_SAMPLING_RATIO", 0.1),
		TraceAllSaleWebhooks:    getenvBool("TRACE_ALL_SALE_WEBHOOKS", true),
		RedisAddr:               strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:           getenv("REDIS_PASSWORD", ""),
		RedisDB:                 getenvInt("REDIS_DB", 0),
		ResolveRateLimit:        getenvFloat("RESOLVE_RATE_LIMIT", 5),
		ResolveBurst:            getenvInt("RESOLVE_BURST", 20),
		WebhookLockTTL:          getenvDuration("WEBHOOK_LOCK_TTL", 30*time.Second),
		MetricsPushExporter:     strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", "prometheus_remote_write"))),
		MetricsRemoteWriteURL:   strings.TrimSpace(getenv("METRICS_REMOTE_WRITE_URL", "")),
		MetricsRemoteWriteToken: strings.TrimSpace(getenv("METRICS_REMOTE_WRITE_TOKEN", "")),
		MetricsPushInterval:     getenvDuration("METRICS_PUSH_INTERVAL", time.Minute),
		PolicyFile:              strings.TrimSpace(getenv("COMMISSION_POLICY_FILE", "")),
		SchedulerEnabled:        getenvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval:       getenvDuration("SCHEDULER_INTERVAL", time.Minute),
		SchedulerBatchSize:      getenvInt("SCHEDULER_BATCH_SIZE", 100),
		SchedulerJobs:           splitList(getenv("SCHEDULER_JOBS", "")),
		PendingSaleTTL:          getenvDuration("PENDING_SALE_TTL", 24*time.Hour),
		DBType:                  getenv("DATABASE_TYPE", "postgres"),
		DBHost:                  getenv("DATABASE_HOST", "localhost"),
		DBPort:                  getenv("DATABASE_PORT", "5432"),
		DBName:                  getenv("DATABASE_NAME", "nodeboss"),
		DBUser:                  getenv("DATABASE_USER", "postgres"),
		DBPassword:              getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:               getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:           getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:           getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:       getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:       getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:           getenvBool("DATABASE_AUTO_MIGRATE", true),
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
	if err != nil || parsed <= 0 {
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

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
