package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "PRWATCH_GITHUB_TOKEN"

	defaultPollIntervalSeconds   = 300
	defaultRequestTimeoutSeconds = 10
)

// Config represents the application configuration
type Config struct {
	// GitHub API token (optional; overrides the credential store,
	// and is itself overridden by the PRWATCH_GITHUB_TOKEN env var)
	GitHubToken string `json:"github_token,omitempty"`

	// Path to the SQLite credentials database
	CredentialsPath string `json:"credentials_path"`

	// GraphQL endpoint; empty means the public GitHub API
	GraphQLEndpoint string `json:"graphql_endpoint,omitempty"`

	// Seconds between poll cycles
	PollIntervalSeconds int `json:"poll_interval_seconds"`

	// Per-request timeout in seconds
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// Additional comment authors to treat as bots, on top of the
	// built-in blocklist
	ExtraBotAuthors []string `json:"extra_bot_authors,omitempty"`
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LoadConfig loads the configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Check for GitHub token in environment variable
	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHubToken = envToken
	}

	if config.PollIntervalSeconds <= 0 {
		config.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if config.RequestTimeoutSeconds <= 0 {
		config.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}

	// Set default credentials path if not specified
	if config.CredentialsPath == "" {
		config.CredentialsPath = "credentials.db"
	}

	// Make credentials path absolute if it's relative
	if !filepath.IsAbs(config.CredentialsPath) {
		configDir := filepath.Dir(path)
		config.CredentialsPath = filepath.Join(configDir, config.CredentialsPath)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a JSON file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	// Create default config
	config := &Config{
		CredentialsPath:       "credentials.db",
		PollIntervalSeconds:   defaultPollIntervalSeconds,
		RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Save the config
	return SaveConfig(config, path)
}
