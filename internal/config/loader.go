package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load builds the configuration from defaults, the optional YAML file at
// configPath, and the process environment (in that order of precedence,
// lowest first). An empty configPath means environment only.
func Load(configPath string) (*Config, error) {
	cfg, err := LoadRaw(configPath)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadRaw is Load without validation. Diagnostics use it to report every
// problem instead of stopping at the first failed check.
func LoadRaw(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}
		if err := loadConfigFile(absPath, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	normalize(cfg)
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it reads ./.env.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// loadConfigFile reads a YAML file, interpolates ${VAR} references and
// decodes it over cfg.
func loadConfigFile(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", path)
	}
	if info.IsDir() {
		path = filepath.Join(path, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with the environment value. Unset variables
// are left as-is so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func normalize(cfg *Config) {
	cfg.Service.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Service.LogLevel))
	cfg.Service.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Service.LogFormat))
	cfg.Webhook.SignatureAlgorithm = strings.ToLower(strings.TrimSpace(cfg.Webhook.SignatureAlgorithm))
	cfg.Server.Port = strings.TrimSpace(cfg.Server.Port)

	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = DefaultSignatureHeader(cfg.Webhook.SignatureAlgorithm)
	}
}

// DefaultSignatureHeader returns the header a Meta-style provider uses for
// the given algorithm.
func DefaultSignatureHeader(algorithm string) string {
	if algorithm == "sha256" {
		return "X-Hub-Signature-256"
	}
	return "X-Hub-Signature"
}

// required pairs a setting's env name with its value.
type required struct {
	env   string
	field string
	value string
}

// validate performs validation on the merged configuration. All missing
// required settings are reported together.
func validate(cfg *Config) error {
	settings := []required{
		{"PORT", "server.port", cfg.Server.Port},
		{"TOKEN", "webhook.verify_token", cfg.Webhook.VerifyToken},
		{"APP_SECRET", "webhook.app_secret", cfg.Webhook.AppSecret},
		{"REDIS_URL", "queue.url", cfg.Queue.URL},
		{"QUEUE_KEY", "queue.key", cfg.Queue.Key},
		{"LOG_LEVEL", "service.log_level", cfg.Service.LogLevel},
	}

	var missing []string
	for _, s := range settings {
		if s.value == "" {
			missing = append(missing, fmt.Sprintf("%s (%s)", s.env, s.field))
			continue
		}
		if m := envVarPattern.FindStringSubmatch(s.value); m != nil {
			return fmt.Errorf("%s: environment variable ${%s} is not set", s.field, m[1])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be a number between 1 and 65535 (got %q)", cfg.Server.Port)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Webhook.SignatureAlgorithm != "sha1" && cfg.Webhook.SignatureAlgorithm != "sha256" {
		return fmt.Errorf("webhook.signature_algorithm must be sha1 or sha256 (got %q)", cfg.Webhook.SignatureAlgorithm)
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with / (got %q)", cfg.Webhook.Path)
	}

	if cfg.Queue.EnqueueTimeout <= 0 {
		return fmt.Errorf("queue.enqueue_timeout must be positive")
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server read/write timeouts must be positive")
	}

	return nil
}
