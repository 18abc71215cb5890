package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
)

// Config holds the application configuration
type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Site       SiteConfig       `mapstructure:"site"`
	Build      BuildConfig      `mapstructure:"build"`
	Validation ValidationConfig `mapstructure:"validation"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Freshness  FreshnessConfig  `mapstructure:"freshness"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Server     ServerConfig     `mapstructure:"server"`
}

// PathsConfig holds filesystem locations. Empty paths are derived from Root.
type PathsConfig struct {
	Root       string `mapstructure:"root"`
	Dist       string `mapstructure:"dist"`
	Data       string `mapstructure:"data"`
	SchoolsCSV string `mapstructure:"schools_csv"`
	RawData    string `mapstructure:"raw_data"`
}

// SiteConfig holds the public site settings
type SiteConfig struct {
	URL string `mapstructure:"url"`
}

// BuildConfig holds page build settings
type BuildConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	Incremental   bool          `mapstructure:"incremental"`
	SlugCacheSize int           `mapstructure:"slug_cache_size"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
}

// ValidationConfig holds link validation settings
type ValidationConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	QueueTimeout    time.Duration `mapstructure:"queue_timeout"`
	CheckExternal   bool          `mapstructure:"check_external"`
	ExternalTimeout time.Duration `mapstructure:"external_timeout"`
	ExternalRetries int           `mapstructure:"external_retries"`
	Strict          bool          `mapstructure:"strict"`
}

// ResilienceConfig holds circuit breaker and file operation settings
type ResilienceConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	FileTimeout      time.Duration `mapstructure:"file_timeout"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
}

// FreshnessConfig holds data freshness settings
type FreshnessConfig struct {
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// FetchConfig holds raw dataset download settings
type FetchConfig struct {
	URL               string        `mapstructure:"url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// ServerConfig holds preview server configuration
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	Host              string        `mapstructure:"host"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

const (
	defaultBuildConcurrency      = 100
	defaultValidationConcurrency = 50
)

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix("SEKOLAH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize derives empty paths from the root and clamps concurrency. A
// zero concurrency falls back to the default; a negative one becomes 1.
func (c *Config) normalize() {
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}
	if c.Paths.Dist == "" {
		c.Paths.Dist = filepath.Join(c.Paths.Root, "dist")
	}
	if c.Paths.Data == "" {
		c.Paths.Data = filepath.Join(c.Paths.Root, "data")
	}
	if c.Paths.SchoolsCSV == "" {
		c.Paths.SchoolsCSV = filepath.Join(c.Paths.Data, "schools.csv")
	}
	if c.Paths.RawData == "" {
		c.Paths.RawData = filepath.Join(c.Paths.Root, "external", "raw.csv")
	}

	c.Build.Concurrency = clampConcurrency(c.Build.Concurrency, defaultBuildConcurrency)
	c.Validation.Concurrency = clampConcurrency(c.Validation.Concurrency, defaultValidationConcurrency)
	c.Site.URL = strings.TrimRight(c.Site.URL, "/")
}

func clampConcurrency(n, def int) int {
	switch {
	case n == 0:
		return def
	case n < 1:
		return 1
	default:
		return n
	}
}

// Validate reports the first invalid setting as a CONFIGURATION_ERROR.
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"build.queue_timeout":         c.Build.QueueTimeout,
		"validation.queue_timeout":    c.Validation.QueueTimeout,
		"validation.external_timeout": c.Validation.ExternalTimeout,
		"resilience.reset_timeout":    c.Resilience.ResetTimeout,
		"resilience.file_timeout":     c.Resilience.FileTimeout,
		"fetch.timeout":               c.Fetch.Timeout,
	}
	for _, key := range []string{
		"build.queue_timeout",
		"validation.queue_timeout",
		"validation.external_timeout",
		"resilience.reset_timeout",
		"resilience.file_timeout",
		"fetch.timeout",
	} {
		if durations[key] <= 0 {
			return resilience.ConfigurationError(
				fmt.Sprintf("%s must be positive, got %s", key, durations[key]),
				map[string]any{"key": key})
		}
	}

	switch {
	case c.Paths.Dist == "":
		return resilience.ConfigurationError("paths.dist must not be empty", map[string]any{"key": "paths.dist"})
	case c.Resilience.FailureThreshold < 1:
		return resilience.ConfigurationError("resilience.failure_threshold must be at least 1",
			map[string]any{"key": "resilience.failure_threshold", "value": c.Resilience.FailureThreshold})
	case c.Validation.ExternalRetries < 0:
		return resilience.ConfigurationError("validation.external_retries must not be negative",
			map[string]any{"key": "validation.external_retries", "value": c.Validation.ExternalRetries})
	case c.Freshness.MaxAgeDays < 1:
		return resilience.ConfigurationError("freshness.max_age_days must be at least 1",
			map[string]any{"key": "freshness.max_age_days", "value": c.Freshness.MaxAgeDays})
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return resilience.ConfigurationError(fmt.Sprintf("server.port out of range: %d", c.Server.Port),
			map[string]any{"key": "server.port", "value": c.Server.Port})
	}
	return nil
}

// loadEnvFile loads the first .env file found. Variables already set in
// the environment win.
func loadEnvFile() error {
	for _, dir := range []string{".", "./config"} {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err == nil {
			return loadDotEnvFile(envFile)
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, value)
	}
	return scanner.Err()
}

// bindEnvVars binds the unprefixed variable names used by existing deployments
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("paths.raw_data", "SEKOLAH_PATHS_RAW_DATA", "RAW_DATA_PATH")
	v.BindEnv("site.url", "SEKOLAH_SITE_URL", "SITE_URL")
	v.BindEnv("build.concurrency", "SEKOLAH_BUILD_CONCURRENCY", "BUILD_CONCURRENCY_LIMIT")
	v.BindEnv("validation.concurrency", "SEKOLAH_VALIDATION_CONCURRENCY", "VALIDATION_CONCURRENCY_LIMIT")
	v.BindEnv("fetch.url", "SEKOLAH_FETCH_URL", "DATA_SOURCE_URL")
	v.BindEnv("logging.level", "SEKOLAH_LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("telemetry.endpoint", "SEKOLAH_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.service_name", "SEKOLAH_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("server.port", "SEKOLAH_SERVER_PORT", "PORT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.root", ".")
	v.SetDefault("paths.dist", "")
	v.SetDefault("paths.data", "")
	v.SetDefault("paths.schools_csv", "")
	v.SetDefault("paths.raw_data", "")

	v.SetDefault("site.url", "https://example.com")

	v.SetDefault("build.concurrency", defaultBuildConcurrency)
	v.SetDefault("build.incremental", true)
	v.SetDefault("build.slug_cache_size", 10000)
	v.SetDefault("build.queue_timeout", 30*time.Second)

	v.SetDefault("validation.concurrency", defaultValidationConcurrency)
	v.SetDefault("validation.queue_timeout", 30*time.Second)
	v.SetDefault("validation.check_external", false)
	v.SetDefault("validation.external_timeout", 5*time.Second)
	v.SetDefault("validation.external_retries", 1)
	v.SetDefault("validation.strict", false)

	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout", 60*time.Second)
	v.SetDefault("resilience.file_timeout", 30*time.Second)
	v.SetDefault("resilience.retry_delay", 100*time.Millisecond)

	v.SetDefault("freshness.max_age_days", 7)

	v.SetDefault("fetch.url", "")
	v.SetDefault("fetch.timeout", 2*time.Minute)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.requests_per_second", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "sekolah-pseo")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.requests_per_second", 50)
	v.SetDefault("server.burst", 100)
}
