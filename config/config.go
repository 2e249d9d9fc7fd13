package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// MongoDB
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017/"`
	MongoDB  string `env:"MONGO_DB" envDefault:"fitview"`

	// Local asset storage (uploaded model/product/user images)
	AssetRoot string `env:"ASSET_ROOT" envDefault:"uploads"`

	// AWS / S3
	AWSRegion     string `env:"AWS_REGION" envDefault:"ap-south-1"`
	AWSBucketName string `env:"AWS_S3_BUCKET"`

	// Gemini
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_IMAGE_MODEL" envDefault:"gemini-2.0-flash-exp"`

	// Bedrock (second provider, disabled unless configured)
	BedrockEnabled bool   `env:"BEDROCK_ENABLED" envDefault:"false"`
	BedrockRegion  string `env:"BEDROCK_REGION" envDefault:"us-east-1"`
	BedrockModelID string `env:"BEDROCK_MODEL_ID" envDefault:"anthropic.claude-3-5-sonnet-20241022-v2:0"`

	// Provider call behavior
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`
	ProviderRetries int           `env:"PROVIDER_RETRIES" envDefault:"2"`

	// Result cache
	CacheTTL time.Duration `env:"TRYON_CACHE_TTL" envDefault:"1h"`

	// Image pipeline capabilities
	EnableSegmenter bool `env:"ENABLE_GARMENT_SEGMENTER" envDefault:"false"`
	EnableEnhancer  bool `env:"ENABLE_POSTPROCESS_ENHANCER" envDefault:"false"`

	// JWT (identity only; authentication itself lives in the gateway)
	JWTSecret string `env:"JWT_SECRET"`

	// SendGrid (optional batch-completion notifications)
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
