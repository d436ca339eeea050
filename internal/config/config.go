// Package config loads runtime settings for the web front end from the
// environment, an optional .env file and explicit overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"finitefield.org/apifront/internal/apiconfig"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultSiteName       = "apifront"
	defaultLang           = "en"
	defaultPublicDir      = "public"
	defaultLogLevel       = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	API      APIConfig
	Site     SiteConfig
	Render   RenderConfig
	Dev      bool
	LogLevel string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// APIConfig points at the upstream content API.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SiteConfig holds presentation settings shared by every page.
type SiteConfig struct {
	Name          string
	CanonicalBase string
	Lang          string
	PagesFile     string
	PublicDir     string
}

// RenderConfig toggles optional output processing.
type RenderConfig struct {
	Minify         bool
	SanitizeMarkup bool
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Server.Port
}

// Endpoints builds the immutable content API description from the loaded values.
func (c Config) Endpoints() apiconfig.Config {
	return apiconfig.Default().WithBaseURL(c.API.BaseURL).WithTimeout(c.API.Timeout)
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides. An empty
// path disables .env loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values; they take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, the .env file, the process
// environment and explicit overrides, in increasing precedence.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	var invalid []string
	duration := func(key string, fallback time.Duration) time.Duration {
		d, ok := durationWithDefault(lookup, key, fallback)
		if !ok {
			invalid = append(invalid, key)
		}
		return d
	}

	defaults := apiconfig.Default()
	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "WEB_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:    duration("WEB_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   duration("WEB_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    duration("WEB_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: duration("WEB_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "WEB_API_BASE_URL", defaults.BaseURL()), "/"),
			Timeout: duration("WEB_API_TIMEOUT", defaults.Timeout()),
		},
		Site: SiteConfig{
			Name:          stringWithDefault(lookup, "WEB_SITE_NAME", defaultSiteName),
			CanonicalBase: stringWithDefault(lookup, "WEB_CANONICAL_BASE", ""),
			Lang:          stringWithDefault(lookup, "WEB_LANG", defaultLang),
			PagesFile:     stringWithDefault(lookup, "WEB_PAGES_FILE", ""),
			PublicDir:     stringWithDefault(lookup, "WEB_PUBLIC_DIR", defaultPublicDir),
		},
		Render: RenderConfig{
			Minify:         boolWithDefault(lookup, "WEB_MINIFY", false),
			SanitizeMarkup: boolWithDefault(lookup, "WEB_SANITIZE_MARKUP", false),
		},
		Dev:      boolWithDefault(lookup, "WEB_DEV", false),
		LogLevel: stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port <= 0 || port > 65535 {
		missing = append(missing, "Server.Port")
	}
	if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		missing = append(missing, "API.BaseURL")
	}
	if base := cfg.Site.CanonicalBase; base != "" {
		if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
			missing = append(missing, "Site.CanonicalBase")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, bool) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, true
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d < 0 {
		return fallback, false
	}
	return d, true
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
