package config

import "time"

// ValidationMode selects how the webhook handler evaluates its gates
type ValidationMode string

const (
	// ValidationModeStrict stops at the first failing gate and answers 401
	ValidationModeStrict ValidationMode = "strict"

	// ValidationModeCompat evaluates every gate, deploys whenever the signature
	// is valid and always answers 200 with the signature outcome as result
	ValidationModeCompat ValidationMode = "compat"
)

// Config represents the complete application configuration
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Revalidate RevalidateConfig `yaml:"revalidate"`
	Deploy     DeployConfig     `yaml:"deploy"`
	Actions    []ActionConfig   `yaml:"actions"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	Path            string `yaml:"path"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	MaxRequestSize  int64  `yaml:"max_request_size"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// WebhookConfig defines how inbound deliveries are authenticated and validated
type WebhookConfig struct {
	Secret          string         `yaml:"secret"`
	SignatureHeader string         `yaml:"signature_header"`
	DeliveryHeader  string         `yaml:"delivery_header"`
	ExpectedSender  string         `yaml:"expected_sender"`
	RequiredEvent   string         `yaml:"required_event"`
	ValidationMode  ValidationMode `yaml:"validation_mode"`
}

// RevalidateConfig holds settings for the upstream cache revalidation call
type RevalidateConfig struct {
	URL     string `yaml:"url"`
	Path    string `yaml:"path"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

// DeployConfig holds settings for running deployment commands
type DeployConfig struct {
	Shell          string `yaml:"shell"`
	WorkdirBase    string `yaml:"workdir_base"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	CommandTimeout string `yaml:"command_timeout"` // empty means no timeout
}

// ActionConfig maps a repository name to the shell command that deploys it
type ActionConfig struct {
	Repository string `yaml:"repository"`
	Command    string `yaml:"command"`
	Workdir    string `yaml:"workdir,omitempty"` // overrides deploy.workdir_base/<repository>
}

// ParseDuration converts string duration to time.Duration
func (c *Config) ParseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
