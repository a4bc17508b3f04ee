package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".sitesnap.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .sitesnap.yaml in the current directory
// 3. Look for .sitesnap.yaml in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// ApplyFile copies file-level settings into the configuration.
// Values already set away from their defaults by the caller win, so the
// CLI can apply flags first and the file second.
func (c *Config) ApplyFile(cf *File) {
	if cf == nil {
		return
	}
	c.SiteConfigs = cf

	if cf.Cache.Backend != "" && c.CacheBackend == CacheBackendSQLite {
		c.CacheBackend = cf.Cache.Backend
	}
	if cf.Cache.Dir != "" && c.CacheDir == XDGCacheDir() {
		c.CacheDir = cf.Cache.Dir
	}
	if cf.Cache.RedisAddr != "" && c.RedisAddr == "" {
		c.RedisAddr = cf.Cache.RedisAddr
	}
	if cf.LicenseKey != "" && c.LicenseKey == "" {
		c.LicenseKey = cf.LicenseKey
	}
	if cf.Proxy != "" && c.ProxyAddress == "" {
		c.ProxyAddress = cf.Proxy
	}
}
