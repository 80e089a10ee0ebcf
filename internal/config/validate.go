package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateHarvest(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", parsed.Scheme)
	}
	if err := ensurePositiveMap(map[string]int{
		"api.request_timeout_seconds": c.API.RequestTimeoutSeconds,
		"api.stream_timeout_seconds":  c.API.StreamTimeoutSeconds,
		"api.max_tries":               c.API.MaxTries,
		"api.retry_max_delay_seconds": c.API.RetryMaxDelaySeconds,
	}); err != nil {
		return err
	}
	if c.API.RequestPauseMS < 0 {
		return errors.New("api.request_pause_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateHarvest() error {
	if c.Harvest.PageRows <= 0 {
		return errors.New("harvest.page_rows must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
