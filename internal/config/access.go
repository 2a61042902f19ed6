package config

import (
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

const redactedValue = "********"

// Redacted returns a copy of the config with secrets masked: the verify token,
// the app secret and any password in the queue URL.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Webhook.VerifyToken != "" {
		out.Webhook.VerifyToken = redactedValue
	}
	if out.Webhook.AppSecret != "" {
		out.Webhook.AppSecret = redactedValue
	}
	out.Queue.URL = RedactURL(out.Queue.URL)
	return &out
}

// RedactURL masks the password of a URL. Values that do not parse as a URL
// with user info are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redactedValue)
	}
	return u.String()
}

// GetPath retrieves a value from the redacted configuration using a
// dot-notation path such as "webhook.path". An empty path returns everything.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
