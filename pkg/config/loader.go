package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration file named by the environment
func LoadConfig() (*Config, error) {
	env := LoadFromEnv()
	return Load(env.ConfigFile, env)
}

// Load reads the YAML configuration file, resolves ${VAR} and ${FILE:name}
// references, applies environment overrides and defaults, then validates
func Load(filename string, env *EnvConfig) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parse(data, env)
}

func parse(data []byte, env *EnvConfig) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.resolveReferences(env.SecretsDir); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	env.Apply(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Path == "" {
		c.Server.Path = "/api/webhook"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "30s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.MaxRequestSize == 0 {
		c.Server.MaxRequestSize = 1 << 20 // 1MB
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "30s"
	}

	// Webhook defaults
	if c.Webhook.SignatureHeader == "" {
		c.Webhook.SignatureHeader = "X-Hub-Signature-256"
	}
	if c.Webhook.DeliveryHeader == "" {
		c.Webhook.DeliveryHeader = "X-GitHub-Delivery"
	}
	if c.Webhook.RequiredEvent == "" {
		c.Webhook.RequiredEvent = "push"
	}
	if c.Webhook.ValidationMode == "" {
		c.Webhook.ValidationMode = ValidationModeStrict
	}

	// Revalidation defaults
	if c.Revalidate.Path == "" {
		c.Revalidate.Path = "/index"
	}
	if c.Revalidate.Timeout == "" {
		c.Revalidate.Timeout = "10s"
	}

	// Deploy defaults
	if c.Deploy.Shell == "" {
		c.Deploy.Shell = "/bin/sh"
	}
	if c.Deploy.Workers == 0 {
		c.Deploy.Workers = 2
	}
	if c.Deploy.QueueSize == 0 {
		c.Deploy.QueueSize = 16
	}
}

// Validate checks the configuration for required fields and valid values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("webhook.secret is required")
	}
	if c.Webhook.ExpectedSender == "" {
		return fmt.Errorf("webhook.expected_sender is required")
	}
	if c.Webhook.ValidationMode != ValidationModeStrict && c.Webhook.ValidationMode != ValidationModeCompat {
		return fmt.Errorf("webhook.validation_mode must be 'strict' or 'compat', got: %s", c.Webhook.ValidationMode)
	}
	if err := validateURL(c.Revalidate.URL); err != nil {
		return fmt.Errorf("revalidate.url: %w", err)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with '/', got: %s", c.Server.Path)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if len(c.Actions) == 0 {
		return fmt.Errorf("at least one action must be configured")
	}

	repositories := make(map[string]bool)
	for i, action := range c.Actions {
		if action.Repository == "" {
			return fmt.Errorf("actions[%d]: repository is required", i)
		}
		if repositories[action.Repository] {
			return fmt.Errorf("duplicate action for repository: %s", action.Repository)
		}
		repositories[action.Repository] = true

		if strings.TrimSpace(action.Command) == "" {
			return fmt.Errorf("actions[%s]: command is required", action.Repository)
		}
	}

	if c.Deploy.Workers < 1 {
		return fmt.Errorf("deploy.workers must be positive, got: %d", c.Deploy.Workers)
	}
	if c.Deploy.QueueSize < 1 {
		return fmt.Errorf("deploy.queue_size must be positive, got: %d", c.Deploy.QueueSize)
	}

	// Validate duration strings
	durations := map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"revalidate.timeout":      c.Revalidate.Timeout,
	}
	if c.Deploy.CommandTimeout != "" {
		durations["deploy.command_timeout"] = c.Deploy.CommandTimeout
	}

	for name, value := range durations {
		if _, err := c.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got: %s", raw)
	}
	return nil
}
