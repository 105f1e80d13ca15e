package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docchat-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// EmbeddingProvider selects the embedding and chat backend: openai or gemini.
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	ChatModel         string `envconfig:"CHAT_MODEL"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	RabbitMQURL    string `envconfig:"RABBITMQ_URL"`
	IngestQueue    string `envconfig:"INGEST_QUEUE" default:"docchat.ingest"`
	IngestPrefetch int    `envconfig:"INGEST_PREFETCH" default:"4"`

	CallTimeout          time.Duration `envconfig:"CALL_TIMEOUT" default:"30s"`
	StaleProcessingAfter time.Duration `envconfig:"STALE_PROCESSING_AFTER" default:"15m"`

	// YouTubeTranscripts switches video ingestion on. When off, videos are
	// handed to the chat model as links.
	YouTubeTranscripts bool   `envconfig:"YOUTUBE_TRANSCRIPTS" default:"true"`
	YouTubeLanguage    string `envconfig:"YOUTUBE_LANGUAGE" default:"en"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCCHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.EmbeddingProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (expected openai or gemini)", cfg.EmbeddingProvider)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasRabbitMQ() bool {
	return c.RabbitMQURL != ""
}
