package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvConfig holds environment variable-based configuration
type EnvConfig struct {
	Port          int
	LogLevel      string
	ConfigFile    string
	SecretsDir    string
	WebhookSecret string
}

// LoadFromEnv reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func LoadFromEnv() *EnvConfig {
	_ = godotenv.Load(".env")

	return &EnvConfig{
		Port:          getEnvAsInt("PORT", 0),
		LogLevel:      getEnv("LOG_LEVEL", ""),
		ConfigFile:    getEnv("CONFIG_FILE", "config.yaml"),
		SecretsDir:    getEnv("SECRETS_DIR", "/secrets"),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
	}
}

// Apply overrides file configuration with values set in the environment
func (e *EnvConfig) Apply(cfg *Config) {
	if e.Port != 0 {
		cfg.Server.Port = e.Port
	}
	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}
	if e.WebhookSecret != "" {
		cfg.Webhook.Secret = e.WebhookSecret
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
