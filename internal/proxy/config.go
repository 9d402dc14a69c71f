package proxy

import "time"

// Default proxy and retry settings.
const (
	DefaultMaxTimeout   = 60 * time.Second
	DefaultRetryTimes   = 2
	DefaultRetryPenalty = 10
)

// DefaultRetryHTTPCodes are the statuses that earn another attempt.
var DefaultRetryHTTPCodes = []int{500, 502, 503, 504, 522, 524, 404, 408, 429}

// Config holds proxy routing and retry settings.
type Config struct {
	// URL is the FlareSolverr v1 endpoint. Empty means direct fetching.
	URL string `env:"PROXY_URL" yaml:"url"`
	// Pool lists additional proxy endpoints; workers are spread across them.
	Pool []string `env:"PROXY_POOL" yaml:"pool"`
	// PoolFile names a file with one proxy endpoint per line.
	PoolFile string `env:"PROXY_POOL_FILE" yaml:"pool_file"`
	// MaxTimeout is passed to the proxy as maxTimeout.
	MaxTimeout time.Duration `yaml:"max_timeout"`

	RetryTimes            int   `env:"RETRY_TIMES" yaml:"retry_times"`
	RetryHTTPCodes        []int `env:"RETRY_HTTP_CODES" yaml:"retry_http_codes"`
	RetryPenalty          int   `yaml:"retry_penalty"`
	RetryOnTransportError bool  `yaml:"retry_on_transport_error"`

	// Concurrent allows up to MaxConcurrent in-flight proxy calls per
	// endpoint. When false calls are strictly serialized.
	Concurrent    bool `env:"CONCURRENT_PROXY_REQUESTS" yaml:"concurrent_requests"`
	MaxConcurrent int  `yaml:"max_concurrent_requests"`
	// RequestsPerSecond caps dispatch rate per endpoint. Zero is unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultConfig returns the default proxy configuration.
func DefaultConfig() Config {
	return Config{
		MaxTimeout:            DefaultMaxTimeout,
		RetryTimes:            DefaultRetryTimes,
		RetryHTTPCodes:        append([]int(nil), DefaultRetryHTTPCodes...),
		RetryPenalty:          DefaultRetryPenalty,
		RetryOnTransportError: true,
	}
}

// Endpoints returns the configured proxy URLs, URL first, without duplicates.
func (c Config) Endpoints() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, u := range append([]string{c.URL}, c.Pool...) {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
