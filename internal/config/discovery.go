package config

import (
	"os"
	"path/filepath"
)

// DiscoverConfigFile finds an optional config file by checking standard
// locations. Priority order: $HOOKQ_CONFIG, ~/.config/hookq/config.yaml,
// /etc/hookq/config.yaml, ./config.yaml.
//
// hookq can run from the environment alone, so finding nothing is not an
// error: the second return value reports whether a file was found.
func DiscoverConfigFile() (string, bool) {
	if path := os.Getenv("HOOKQ_CONFIG"); path != "" {
		if fileExists(path) {
			return path, true
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "hookq", "config.yaml")
		if fileExists(userConfig) {
			return userConfig, true
		}
	}

	if systemConfig := "/etc/hookq/config.yaml"; fileExists(systemConfig) {
		return systemConfig, true
	}

	if fileExists("./config.yaml") {
		return "./config.yaml", true
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
