package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	ShutdownTimeout         time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTSecret         string
	JWTIssuer         string
	JWTAccessTTL      time.Duration
	JWTRefreshTTL     time.Duration
	RefreshReuseGrace time.Duration
	RefreshRetention  time.Duration
	SessionCheck      bool
	BcryptCost        int

	CSRFSecret string
	CSRFTTL    time.Duration

	CookieSecure bool
	CookieDomain string
	CORSOrigins  []string
	TrustProxy   bool

	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RateLimitWindow       time.Duration
	AuthRateLimit         int
	APIRateLimit          int
	RateLimitStoreTimeout time.Duration

	AuditQueueSize     int
	AuditBatchSize     int
	AuditFlushInterval time.Duration
	AuditWriteTimeout  time.Duration
	AuditRetention     time.Duration

	HousekeepingInterval time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	BootstrapAdminName     string

	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),
		ShutdownTimeout:         getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 20)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:         getEnv("JWT_ISSUER", "admin-portal"),
		JWTAccessTTL:      getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:     getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		RefreshReuseGrace: getDuration("REFRESH_REUSE_GRACE", 3*time.Second),
		RefreshRetention:  getDuration("REFRESH_RETENTION", 720*time.Hour),
		SessionCheck:      getBool("SESSION_CHECK", true),
		BcryptCost:        getInt("BCRYPT_COST", 12),

		CSRFSecret: strings.TrimSpace(os.Getenv("CSRF_SECRET")),
		CSRFTTL:    getDuration("CSRF_TTL", 2*time.Hour),

		CookieSecure: getBool("COOKIE_SECURE", true),
		CookieDomain: strings.TrimSpace(os.Getenv("COOKIE_DOMAIN")),
		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		TrustProxy:   getBool("TRUST_PROXY_HEADERS", false),

		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0),
		RateLimitWindow:       getDuration("RATE_LIMIT_WINDOW", time.Minute),
		AuthRateLimit:         getInt("AUTH_RATE_LIMIT", 10),
		APIRateLimit:          getInt("API_RATE_LIMIT", 100),
		RateLimitStoreTimeout: getDuration("RATE_LIMIT_STORE_TIMEOUT", 100*time.Millisecond),

		AuditQueueSize:     getInt("AUDIT_QUEUE_SIZE", 1024),
		AuditBatchSize:     getInt("AUDIT_BATCH_SIZE", 64),
		AuditFlushInterval: getDuration("AUDIT_FLUSH_INTERVAL", time.Second),
		AuditWriteTimeout:  getDuration("AUDIT_WRITE_TIMEOUT", 3*time.Second),
		AuditRetention:     getDuration("AUDIT_RETENTION", 8760*time.Hour),

		HousekeepingInterval: getDuration("HOUSEKEEPING_INTERVAL", time.Hour),

		BootstrapAdminEmail:    strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL")),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		BootstrapAdminName:     getEnv("BOOTSTRAP_ADMIN_NAME", "Administrator"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "pretty"),
		MetricsEnabled: getBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if len(c.CSRFSecret) < 32 {
		return fmt.Errorf("CSRF_SECRET must be at least 32 characters")
	}

	if c.CSRFSecret == c.JWTSecret {
		return fmt.Errorf("CSRF_SECRET must differ from JWT_SECRET")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= c.JWTAccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL must be longer than a positive JWT_ACCESS_TTL")
	}

	if c.RefreshReuseGrace < 0 {
		return fmt.Errorf("REFRESH_REUSE_GRACE cannot be negative")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.RateLimitWindow <= 0 || c.AuthRateLimit <= 0 || c.APIRateLimit <= 0 {
		return fmt.Errorf("rate limit window and limits must be positive")
	}

	if c.AuditQueueSize <= 0 || c.AuditBatchSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE and AUDIT_BATCH_SIZE must be positive")
	}

	if c.HousekeepingInterval <= 0 {
		return fmt.Errorf("HOUSEKEEPING_INTERVAL must be positive")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid DB_MAX_CONNS/DB_MIN_CONNS combination")
	}

	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	switch strings.ToLower(c.LogFormat) {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
