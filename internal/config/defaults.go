package config

const (
	defaultBaseURL               = "https://repository.library.brown.edu"
	defaultUserAgent             = "bdrtools/1.0 (+https://repository.library.brown.edu/)"
	defaultRequestTimeoutSeconds = 30
	defaultStreamTimeoutSeconds  = 60
	defaultMaxTries              = 4
	defaultRetryMaxDelaySeconds  = 15
	defaultRequestPauseMS        = 200
	defaultPageRows              = 500
	defaultLogLevel              = "info"
	defaultLogFormat             = "console"
	defaultLogDestination        = "stderr"
)

// Default returns a Config populated with repository defaults. BaseURL is
// left empty; normalize fills it from BDR_BASE_URL before falling back, so
// a file value still beats the environment.
func Default() Config {
	return Config{
		API: API{
			UserAgent:             defaultUserAgent,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			StreamTimeoutSeconds:  defaultStreamTimeoutSeconds,
			MaxTries:              defaultMaxTries,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
			RequestPauseMS:        defaultRequestPauseMS,
		},
		Harvest: Harvest{
			PageRows: defaultPageRows,
		},
		Logging: Logging{
			Level:       defaultLogLevel,
			Format:      defaultLogFormat,
			Destination: defaultLogDestination,
		},
	}
}
