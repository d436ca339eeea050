// Package apiconfig describes the upstream content API: where it lives, which
// endpoints each page reads from and which headers every request carries.
package apiconfig

import (
	"strings"
	"time"
)

// Endpoint names understood by the default page set.
const (
	EndpointHome  = "home"
	EndpointAbout = "about"
)

const (
	defaultBaseURL = "http://localhost:3002"
	defaultTimeout = 10 * time.Second
)

// Config is the immutable description of the content API. Build it once with
// Default or New and pass it by value; accessors hand out copies so callers
// cannot mutate the shared maps.
type Config struct {
	baseURL        string
	endpoints      map[string]string
	defaultHeaders map[string]string
	timeout        time.Duration
}

// FetchOptions are per-request knobs applied on top of the defaults.
type FetchOptions struct {
	Headers map[string]string
}

// Default returns the compiled-in API configuration.
func Default() Config {
	return New(defaultBaseURL, map[string]string{
		EndpointHome:  "/api/home",
		EndpointAbout: "/api/about",
	}, map[string]string{
		"Content-Type": "application/json",
	}, defaultTimeout)
}

// New builds a Config from explicit values. Maps are copied.
func New(baseURL string, endpoints, headers map[string]string, timeout time.Duration) Config {
	return Config{
		baseURL:        strings.TrimSpace(baseURL),
		endpoints:      copyMap(endpoints),
		defaultHeaders: copyMap(headers),
		timeout:        timeout,
	}
}

// WithBaseURL returns a copy of c pointing at another API host.
func (c Config) WithBaseURL(baseURL string) Config {
	return New(baseURL, c.endpoints, c.defaultHeaders, c.timeout)
}

// WithTimeout returns a copy of c carrying a different timeout value.
func (c Config) WithTimeout(timeout time.Duration) Config {
	return New(c.baseURL, c.endpoints, c.defaultHeaders, timeout)
}

// BaseURL returns the API origin.
func (c Config) BaseURL() string { return c.baseURL }

// Timeout returns the configured request timeout. The fetcher does not apply
// it; it is surfaced for callers that want to.
func (c Config) Timeout() time.Duration { return c.timeout }

// Endpoints returns a copy of the logical-name to path map.
func (c Config) Endpoints() map[string]string { return copyMap(c.endpoints) }

// DefaultHeaders returns a copy of the headers sent with every request.
func (c Config) DefaultHeaders() map[string]string { return copyMap(c.defaultHeaders) }

// Endpoint resolves a logical endpoint name to its path.
func (c Config) Endpoint(name string) (string, bool) {
	p, ok := c.endpoints[name]
	return p, ok
}

// BuildURL joins the base URL and the endpoint path as-is. The path is neither
// encoded nor validated.
func (c Config) BuildURL(endpointPath string) string {
	return c.baseURL + endpointPath
}

// DefaultFetchOptions returns the options every request starts from.
func (c Config) DefaultFetchOptions() FetchOptions {
	return FetchOptions{Headers: c.DefaultHeaders()}
}

// Merge lays override over o. The merge is shallow: a non-nil override header
// map replaces the default headers entirely.
func (o FetchOptions) Merge(override FetchOptions) FetchOptions {
	out := FetchOptions{Headers: copyMap(o.Headers)}
	if override.Headers != nil {
		out.Headers = copyMap(override.Headers)
	}
	return out
}

func copyMap(src map[string]string) map[string]string {
	if src == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
