package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains connection settings for the repository HTTP API.
type API struct {
	BaseURL               string `toml:"base_url"`
	UserAgent             string `toml:"user_agent"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	StreamTimeoutSeconds  int    `toml:"stream_timeout_seconds"`
	MaxTries              int    `toml:"max_tries"`
	RetryMaxDelaySeconds  int    `toml:"retry_max_delay_seconds"`
	RequestPauseMS        int    `toml:"request_pause_ms"`
}

// Harvest contains settings for collection harvesting runs.
type Harvest struct {
	PageRows int `toml:"page_rows"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"`
	Destination string `toml:"destination"`
}

// Config encapsulates all configuration values for bdrtools.
type Config struct {
	API     API     `toml:"api"`
	Harvest Harvest `toml:"harvest"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bdrtools/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// yields the defaults. The second return is the resolved path, the third
// reports whether a file was actually read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bdrtools.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// RequestTimeout returns the buffered fetch timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSeconds) * time.Second
}

// StreamTimeout returns the text download timeout as a duration.
func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.API.StreamTimeoutSeconds) * time.Second
}

// RetryMaxDelay returns the backoff ceiling as a duration.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.API.RetryMaxDelaySeconds) * time.Second
}

// RequestPause returns the politeness pause enforced before each request.
func (c *Config) RequestPause() time.Duration {
	return time.Duration(c.API.RequestPauseMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
