package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	Metrics  MetricsConfig
	OS       OSConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	QueryTimeout      time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	LoginRateLimit int
}

type AuthConfig struct {
	SessionDuration     time.Duration
	RememberMeDuration  time.Duration
	LockoutThreshold    int
	LockoutDuration     time.Duration
	SweepInterval       time.Duration
	BcryptCost          int
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
	CSRFSecret          string
	ChallengeSecret     string
	ChallengeTTL        time.Duration
	TOTPEncryptionKey   []byte
	TOTPIssuer          string
	CookieSecure        bool
	CookieDomain        string
	BootstrapUsername   string
	BootstrapEmail      string
	BootstrapPassword   string
}

type EmailConfig struct {
	AWSRegion       string
	FromAddress     string
	AlertRecipients []string
}

// Enabled reports whether SES notifications are configured.
func (c EmailConfig) Enabled() bool {
	return c.AWSRegion != "" && c.FromAddress != "" && len(c.AlertRecipients) > 0
}

type MetricsConfig struct {
	CollectorEnabled bool
	CollectInterval  time.Duration
	DiskPath         string
	CPUThreshold     float64
	MemoryThreshold  float64
	DiskThreshold    float64
	HistoryWindow    time.Duration
	Retention        time.Duration
}

type OSConfig struct {
	CommandTimeout time.Duration
	DryRun         bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: loadDatabaseConfig(),
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 45*time.Second),
			LoginRateLimit: getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		},
		Auth: AuthConfig{
			SessionDuration:     getEnvAsDuration("SESSION_DURATION", 8*time.Hour),
			RememberMeDuration:  getEnvAsDuration("REMEMBER_ME_DURATION", 30*24*time.Hour),
			LockoutThreshold:    getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:     getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			SweepInterval:       getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 12),
			TimingDelayBaseMs:   getEnvAsInt("AUTH_TIMING_DELAY_BASE_MS", 300),
			TimingDelayRandomMs: getEnvAsInt("AUTH_TIMING_DELAY_RANDOM_MS", 200),
			CSRFSecret:          getEnv("CSRF_SECRET", ""),
			ChallengeSecret:     getEnv("CHALLENGE_SECRET", ""),
			ChallengeTTL:        getEnvAsDuration("TWO_FACTOR_CHALLENGE_TTL", 5*time.Minute),
			TOTPIssuer:          getEnv("TOTP_ISSUER", "hostpanel"),
			CookieSecure:        getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieDomain:        getEnv("COOKIE_DOMAIN", ""),
			BootstrapUsername:   getEnv("ADMIN_USERNAME", ""),
			BootstrapEmail:      getEnv("ADMIN_EMAIL", ""),
			BootstrapPassword:   getEnv("ADMIN_PASSWORD", ""),
		},
		Email: EmailConfig{
			AWSRegion:       getEnv("AWS_REGION", ""),
			FromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
			AlertRecipients: getEnvAsList("ALERT_EMAIL_RECIPIENTS"),
		},
		Metrics: MetricsConfig{
			CollectorEnabled: getEnvAsBool("METRICS_COLLECTOR_ENABLED", true),
			CollectInterval:  getEnvAsDuration("METRICS_COLLECT_INTERVAL", 1*time.Minute),
			DiskPath:         getEnv("METRICS_DISK_PATH", "/"),
			CPUThreshold:     getEnvAsFloat("ALERT_CPU_THRESHOLD", 90),
			MemoryThreshold:  getEnvAsFloat("ALERT_MEMORY_THRESHOLD", 90),
			DiskThreshold:    getEnvAsFloat("ALERT_DISK_THRESHOLD", 90),
			HistoryWindow:    getEnvAsDuration("METRICS_HISTORY_WINDOW", 24*time.Hour),
			Retention:        getEnvAsDuration("METRICS_RETENTION", 30*24*time.Hour),
		},
		OS: OSConfig{
			CommandTimeout: getEnvAsDuration("OS_COMMAND_TIMEOUT", 30*time.Second),
			DryRun:         getEnvAsBool("OS_DRY_RUN", false),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecret("CSRF_SECRET", cfg.Auth.CSRFSecret, env); err != nil {
		return nil, err
	}
	if err := validateSecret("CHALLENGE_SECRET", cfg.Auth.ChallengeSecret, env); err != nil {
		return nil, err
	}

	key, err := parseEncryptionKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}
	cfg.Auth.TOTPEncryptionKey = key

	if cfg.Auth.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}
	if cfg.Auth.SessionDuration <= 0 || cfg.Auth.LockoutDuration <= 0 {
		return nil, fmt.Errorf("SESSION_DURATION and LOCKOUT_DURATION must be positive")
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings. Used by the migration
// tool, which needs no auth secrets.
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := loadDatabaseConfig()
	if cfg.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	return &cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "hostpanel"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		QueryTimeout:      getEnvAsDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
	}
}

// validateSecret enforces minimum length and rejects common weak values
func validateSecret(name, secret, env string) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

// parseEncryptionKey decodes the base64 AES-256 key for TOTP secrets
func parseEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
