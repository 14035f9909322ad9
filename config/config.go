package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by the transcription and LLM sections.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Storage drivers for uploaded audio.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Storage       StorageConfig
	Transcription TranscriptionConfig
	LLM           LLMConfig
	Pipeline      PipelineConfig
	Worker        WorkerConfig
	Log           LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	UploadMaxMB        int
	EmbeddedWorker     bool // run the pipeline worker inside the API process
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/meetings?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the audio bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	AudioBucket     string
}

// StorageConfig selects where uploaded audio is kept.
type StorageConfig struct {
	Driver    string // local | s3
	UploadDir string // local driver root
}

// TranscriptionConfig configures the Whisper endpoint.
type TranscriptionConfig struct {
	Provider   string // openai | azure
	APIKey     string
	Endpoint   string // base URL; required for azure
	APIVersion string // azure only
	Model      string // model name, or deployment name on azure
	Timeout    time.Duration
}

// LLMConfig configures the generative text model.
type LLMConfig struct {
	Provider   string // openai | azure | anthropic | ollama
	APIKey     string
	Endpoint   string // base URL override; required for azure, server URL for ollama
	APIVersion string // azure only
	Model      string // model name, or deployment name on azure
	MaxTokens  int
}

// PipelineConfig bounds the pipeline run.
type PipelineConfig struct {
	SummaryAttempts int
	ExtractAttempts int
	RunTimeout      time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency   int
	LeaseTTL      time.Duration
	ResumeOnStart bool // re-enqueue non-terminal meetings at startup
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 60),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 60),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			UploadMaxMB:        getEnvInt("UPLOAD_MAX_MB", 200),
			EmbeddedWorker:     getEnvBool("EMBEDDED_WORKER", true),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "meetings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AudioBucket:     getEnv("AWS_S3_AUDIO_BUCKET", "meeting-audio"),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(getEnv("STORAGE_DRIVER", StorageLocal)),
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
		},
		Transcription: TranscriptionConfig{
			Provider:   strings.ToLower(getEnv("TRANSCRIPTION_PROVIDER", ProviderOpenAI)),
			APIKey:     getEnv("TRANSCRIPTION_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Endpoint:   getEnv("TRANSCRIPTION_ENDPOINT", ""),
			APIVersion: getEnv("TRANSCRIPTION_API_VERSION", "2024-06-01"),
			Model:      getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
			Timeout:    getEnvDuration("TRANSCRIPTION_TIMEOUT", 20*time.Minute),
		},
		LLM: LLMConfig{
			Provider:   strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			APIKey:     getEnv("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Endpoint:   getEnv("LLM_ENDPOINT", ""),
			APIVersion: getEnv("LLM_API_VERSION", "2024-06-01"),
			Model:      getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:  getEnvInt("LLM_MAX_TOKENS", 4096),
		},
		Pipeline: PipelineConfig{
			SummaryAttempts: getEnvInt("PIPELINE_SUMMARY_ATTEMPTS", 3),
			ExtractAttempts: getEnvInt("PIPELINE_EXTRACT_ATTEMPTS", 3),
			RunTimeout:      getEnvDuration("PIPELINE_RUN_TIMEOUT", 30*time.Minute),
		},
		Worker: WorkerConfig{
			Concurrency:   getEnvInt("WORKER_CONCURRENCY", 2),
			LeaseTTL:      getEnvDuration("WORKER_LEASE_TTL", 35*time.Minute),
			ResumeOnStart: getEnvBool("WORKER_RESUME_ON_START", true),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider names and the settings each provider needs.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Transcription.Provider {
	case ProviderOpenAI:
	case ProviderAzure:
		if c.Transcription.Endpoint == "" {
			return fmt.Errorf("TRANSCRIPTION_ENDPOINT is required for azure")
		}
	default:
		return fmt.Errorf("unsupported TRANSCRIPTION_PROVIDER %q", c.Transcription.Provider)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	case ProviderAzure:
		if c.LLM.Endpoint == "" {
			return fmt.Errorf("LLM_ENDPOINT is required for azure")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.Pipeline.SummaryAttempts < 1 || c.Pipeline.ExtractAttempts < 1 {
		return fmt.Errorf("pipeline attempts must be at least 1")
	}
	if c.Worker.LeaseTTL <= c.Pipeline.RunTimeout {
		return fmt.Errorf("WORKER_LEASE_TTL (%s) must exceed PIPELINE_RUN_TIMEOUT (%s)", c.Worker.LeaseTTL, c.Pipeline.RunTimeout)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "30m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
