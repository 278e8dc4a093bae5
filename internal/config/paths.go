package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "INVNORM_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "invnorm.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "invnorm"
)

// SearchPaths lists candidate config files in priority order:
// 1. $INVNORM_CONFIG (explicit path)
// 2. ./invnorm.yaml (working directory)
// 3. $XDG_CONFIG_HOME/invnorm/config.yaml
// 4. ~/.config/invnorm/config.yaml
// 5. /etc/invnorm/config.yaml
func SearchPaths() []string {
	var paths []string

	if path := os.Getenv(EnvConfigPath); path != "" {
		paths = append(paths, path)
	}

	if abs, err := filepath.Abs(ConfigFileName); err == nil {
		paths = append(paths, abs)
	} else {
		paths = append(paths, ConfigFileName)
	}

	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		paths = append(paths, filepath.Join(xdgHome, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}

	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the first existing file from SearchPaths,
// or an empty string if none exists
func FindConfigPath() string {
	for _, path := range SearchPaths() {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// DefaultConfigPath returns the preferred location for a new config file.
// The working directory wins so a project keeps its own settings.
func DefaultConfigPath() string {
	if abs, err := filepath.Abs(ConfigFileName); err == nil {
		return abs
	}
	return ConfigFileName
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
