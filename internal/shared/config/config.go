package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Aggregator AggregatorConfig
	Sync       SyncConfig
	Worker     WorkerConfig
	Scheduler  SchedulerConfig
	TLS        TLSConfig
	Firebase   FirebaseConfig
	Messages   MessagesConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

type JWTConfig struct {
	Secret string
}

type EncryptionConfig struct {
	Key string
}

type AggregatorConfig struct {
	BaseURL       string
	ClientID      string
	Secret        string
	Timeout       time.Duration
	RatePerSecond float64
	PageSize      int
}

type SyncConfig struct {
	MaxInstitutionsPerUser int
	WindowDays             int
}

type WorkerConfig struct {
	Enabled      bool
	Count        int
	PollInterval time.Duration
	JobTimeout   time.Duration
	JobLease     time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type FirebaseConfig struct {
	CredentialsFile string
}

type MessagesConfig struct {
	File string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRatio  float64
	MetricsPort  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	aggregatorTimeout, err := getDurationEnv("AGGREGATOR_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	aggregatorRate, err := getFloatEnv("AGGREGATOR_RATE_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}
	sampleRatio, err := getFloatEnv("OTEL_SAMPLE_RATIO", 1)
	if err != nil {
		return nil, err
	}
	aggregatorPageSize, err := getIntEnv("AGGREGATOR_PAGE_SIZE", 250)
	if err != nil {
		return nil, err
	}

	maxInstitutions, err := getIntEnv("MAX_INSTITUTIONS_PER_USER", 10)
	if err != nil {
		return nil, err
	}
	windowDays, err := getIntEnv("SYNC_WINDOW_DAYS", 30)
	if err != nil {
		return nil, err
	}

	workerCount, err := getIntEnv("WORKER_COUNT", 5)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getDurationEnv("WORKER_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	jobTimeout, err := getDurationEnv("JOB_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	jobLease, err := getDurationEnv("JOB_LEASE", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           dbPort,
			User:           getEnv("DB_USER", "budgetlink"),
			Password:       getEnv("DB_PASSWORD", ""),
			DBName:         getEnv("DB_NAME", "budgetlink"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Aggregator: AggregatorConfig{
			BaseURL:       getEnv("AGGREGATOR_BASE_URL", "https://sandbox.plaid.com"),
			ClientID:      getEnv("AGGREGATOR_CLIENT_ID", ""),
			Secret:        getEnv("AGGREGATOR_SECRET", ""),
			Timeout:       aggregatorTimeout,
			RatePerSecond: aggregatorRate,
			PageSize:      aggregatorPageSize,
		},
		Sync: SyncConfig{
			MaxInstitutionsPerUser: maxInstitutions,
			WindowDays:             windowDays,
		},
		Worker: WorkerConfig{
			Enabled:      getBoolEnv("WORKER_ENABLED", true),
			Count:        workerCount,
			PollInterval: pollInterval,
			JobTimeout:   jobTimeout,
			JobLease:     jobLease,
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			ScheduleTimes: splitList(getEnv("SCHEDULER_TIMES", "05:00,10:00,14:00,20:00")),
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Messages: MessagesConfig{
			File: getEnv("MESSAGES_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "budgetlink-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			OTLPInsecure: getBoolEnv("OTEL_EXPORTER_INSECURE", true),
			SampleRatio:  sampleRatio,
			MetricsPort:  getEnv("METRICS_PORT", "9464"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Encryption.Key == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.Sync.MaxInstitutionsPerUser < 1 {
		return fmt.Errorf("MAX_INSTITUTIONS_PER_USER must be positive")
	}
	if c.Sync.WindowDays < 1 {
		return fmt.Errorf("SYNC_WINDOW_DAYS must be positive")
	}
	if c.Aggregator.RatePerSecond <= 0 {
		return fmt.Errorf("AGGREGATOR_RATE_PER_SECOND must be positive")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}

	if c.Worker.Enabled {
		if c.Worker.Count < 1 {
			return fmt.Errorf("WORKER_COUNT must be positive when WORKER_ENABLED=true")
		}
		if c.Worker.PollInterval <= 0 || c.Worker.JobTimeout <= 0 || c.Worker.JobLease <= 0 {
			return fmt.Errorf("WORKER_POLL_INTERVAL, JOB_TIMEOUT and JOB_LEASE must be positive")
		}
		if c.Worker.JobLease <= c.Worker.JobTimeout {
			return fmt.Errorf("JOB_LEASE (%s) must exceed JOB_TIMEOUT (%s)", c.Worker.JobLease, c.Worker.JobTimeout)
		}
	}

	if c.Scheduler.Enabled {
		for _, t := range c.Scheduler.ScheduleTimes {
			if _, err := time.Parse("15:04", t); err != nil {
				return fmt.Errorf("invalid SCHEDULER_TIMES entry %q: expected HH:MM", t)
			}
		}
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL returns the connection string in the postgres:// form golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
