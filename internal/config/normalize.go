package config

import (
	"os"
	"strings"
)

func (c *Config) normalize() {
	c.normalizeAPI()
	c.normalizeHarvest()
	c.normalizeLogging()
}

func (c *Config) normalizeAPI() {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		if value, ok := os.LookupEnv("BDR_BASE_URL"); ok {
			c.API.BaseURL = strings.TrimSpace(value)
		}
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")

	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultUserAgent
	}

	if c.API.RequestTimeoutSeconds <= 0 {
		c.API.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.API.StreamTimeoutSeconds <= 0 {
		c.API.StreamTimeoutSeconds = defaultStreamTimeoutSeconds
	}
	if c.API.MaxTries <= 0 {
		c.API.MaxTries = defaultMaxTries
	}
	if c.API.RetryMaxDelaySeconds <= 0 {
		c.API.RetryMaxDelaySeconds = defaultRetryMaxDelaySeconds
	}
	if c.API.RequestPauseMS < 0 {
		c.API.RequestPauseMS = defaultRequestPauseMS
	}
}

func (c *Config) normalizeHarvest() {
	if c.Harvest.PageRows <= 0 {
		c.Harvest.PageRows = defaultPageRows
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Destination = strings.TrimSpace(c.Logging.Destination)
	if c.Logging.Destination == "" {
		c.Logging.Destination = defaultLogDestination
	}
}
