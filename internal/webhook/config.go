package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattjoyce/hookq/internal/config"
)

// FromGlobalConfig converts the loaded service config into webhook.Config.
// Parses max body size and fills the signature header for the algorithm.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	wc := cfg.Webhook

	if _, err := LookupAlgorithm(wc.SignatureAlgorithm); err != nil {
		return Config{}, err
	}

	maxBodySize, err := parseMaxBodySize(wc.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("webhook: invalid max_body_size %q: %w", wc.MaxBodySize, err)
	}

	header := wc.SignatureHeader
	if header == "" {
		header = config.DefaultSignatureHeader(wc.SignatureAlgorithm)
	}

	return Config{
		Listen:          cfg.Listen(),
		Path:            wc.Path,
		VerifyToken:     wc.VerifyToken,
		Secret:          wc.AppSecret,
		Algorithm:       wc.SignatureAlgorithm,
		SignatureHeader: header,
		MaxBodySize:     maxBodySize,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
	}, nil
}

// parseMaxBodySize parses size strings like "1MB", "512KB", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
