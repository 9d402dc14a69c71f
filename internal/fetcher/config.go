package fetcher

import "time"

// Default fetcher configuration values.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultRequestTimeout = 60 * time.Second
	DefaultDownloadDelay  = 7 * time.Second
	DefaultMaxBodySize    = 10 * 1024 * 1024
	DefaultParallelism    = 1
)

// Config holds HTTP fetch settings.
type Config struct {
	UserAgent      string        `env:"USER_AGENT" yaml:"user_agent"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout"`
	// DownloadDelay is the fixed pause between requests to the same domain.
	DownloadDelay time.Duration `env:"DOWNLOAD_DELAY" yaml:"download_delay"`
	// RandomDelay adds up to this much jitter on top of DownloadDelay.
	RandomDelay time.Duration `yaml:"random_delay"`
	MaxBodySize int           `yaml:"max_body_size"`
	// Parallelism is the number of concurrent requests per process. Each
	// concurrent slot observes DownloadDelay on its own.
	Parallelism int `yaml:"parallelism"`
}

// WithDefaults returns a copy with zero fields filled in. A zero
// DownloadDelay is kept as-is so tests can run without throttling.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.Parallelism <= 0 {
		c.Parallelism = DefaultParallelism
	}
	return c
}
