package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for nps-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	LLM        LLMConfig        `yaml:"llm"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"nps"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"nps_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration. Redis is optional; an empty host
// keeps upload job state in process memory.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	JobTTL   time.Duration `yaml:"job_ttl" env:"REDIS_JOB_TTL" env-default:"24h"`
}

// LLMConfig selects the classification provider and model.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider      string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL       string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model         string        `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey        string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	PromptVersion string        `yaml:"prompt_version" env:"LLM_PROMPT_VERSION" env-default:"nl-v1"`
	Temperature   float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	MaxTokens     int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"400"`
	Timeout       time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
}

// IngestConfig controls the upload pipeline.
type IngestConfig struct {
	BatchSize       int   `yaml:"batch_size" env:"INGEST_BATCH_SIZE" env-default:"500"`
	MaxErrorDetails int   `yaml:"max_error_details" env:"INGEST_MAX_ERROR_DETAILS" env-default:"100"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes" env:"INGEST_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

// EnrichmentConfig controls the batch driver.
type EnrichmentConfig struct {
	BatchSize       int           `yaml:"batch_size" env:"ENRICH_BATCH_SIZE" env-default:"300"`
	MaxRPM          int           `yaml:"max_rpm" env:"ENRICH_MAX_RPM" env-default:"180"`
	MaxAttempts     int           `yaml:"max_attempts" env:"ENRICH_MAX_ATTEMPTS" env-default:"5"`
	BaseDelay       time.Duration `yaml:"base_delay" env:"ENRICH_BASE_DELAY" env-default:"1s"`
	MaxDelay        time.Duration `yaml:"max_delay" env:"ENRICH_MAX_DELAY" env-default:"32s"`
	MaxEmptyBatches int           `yaml:"max_empty_batches" env:"ENRICH_MAX_EMPTY_BATCHES" env-default:"3"`
	EmptyBatchPause time.Duration `yaml:"empty_batch_pause" env:"ENRICH_EMPTY_BATCH_PAUSE" env-default:"2s"`
	MaxCommentChars int           `yaml:"max_comment_chars" env:"ENRICH_MAX_COMMENT_CHARS" env-default:"4000"`
	MaxKnownThemes  int           `yaml:"max_known_themes" env:"ENRICH_MAX_KNOWN_THEMES" env-default:"200"`
	OtherTheme      string        `yaml:"other_theme" env:"ENRICH_OTHER_THEME" env-default:"overige"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error; environment variables and defaults apply.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive")
	}
	if c.Enrichment.BatchSize <= 0 {
		return fmt.Errorf("enrichment.batch_size must be positive")
	}
	if c.Enrichment.MaxRPM <= 0 {
		return fmt.Errorf("enrichment.max_rpm must be positive")
	}
	if c.Enrichment.MaxAttempts <= 0 {
		return fmt.Errorf("enrichment.max_attempts must be positive")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     joinHostPort(ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// RequireAPIKey reports a setup error when the provider needs a key and none is set.
func (c *LLMConfig) RequireAPIKey() error {
	if c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("LLM_API_KEY is required for provider %s", c.Provider)
	}
	return nil
}
