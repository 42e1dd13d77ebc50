package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	JWKSURL     string
	CORSOrigins string
	TablePrefix string

	// Provider API keys (a family without a key is simply not served)
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	GoogleAPIKey     string
	XAIAPIKey        string
	DeepSeekAPIKey   string
	PerplexityAPIKey string
	FireworksAPIKey  string

	// Academic search
	TavilyAPIKey string

	// Attachment storage
	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	S3Bucket     string

	DefaultModel string

	// Rate limiting (fixed window per client IP)
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWKSURL:     getEnv("JWKS_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		GoogleAPIKey:     getEnv("GOOGLE_API_KEY", ""),
		XAIAPIKey:        getEnv("XAI_API_KEY", ""),
		DeepSeekAPIKey:   getEnv("DEEPSEEK_API_KEY", ""),
		PerplexityAPIKey: getEnv("PERPLEXITY_API_KEY", ""),
		FireworksAPIKey:  getEnv("FIREWORKS_API_KEY", ""),

		TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),

		AWSRegion:    getEnv("AWS_REGION", ""),
		AWSAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		S3Bucket:     getEnv("S3_BUCKET", ""),

		DefaultModel: getEnv("DEFAULT_MODEL", "claude-haiku-4-5"),

		RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMax:    getInt("RATE_LIMIT_MAX", 30),
	}
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
