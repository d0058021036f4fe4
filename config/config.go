// Package config provides YAML configuration parsing for Statboard.
//
// This package enables running Statboard as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Stream Stats
//	port: 8080
//	poll_interval: 4s
//	notice_ttl: 7s
//
//	topology: path
//	base_url: ${STATS_BASE_URL:-http://localhost}
//	timeout: 3s
//
//	update_rate:
//	  per_second: 1
//	  burst: 3
//
//	sources:
//	  - slot: check
//	    url: https://checks.example.com/consistency_check/checks
//	    headers:
//	      Authorization: Bearer ${CHECK_TOKEN}
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/statboard/internal/display"
	"github.com/jpalmerr/statboard/internal/poller"
)

// minPollInterval is the minimum allowed polling interval for production configs.
// This prevents accidental DoS of the polled services with overly aggressive polling.
const minPollInterval = 1 * time.Second

// Defaults applied by [Parse].
const (
	DefaultPort         = 8080
	DefaultPollInterval = 4 * time.Second
	DefaultNoticeTTL    = 7 * time.Second
	DefaultUpdateBurst  = 3
)

// Topology names. They match the presets of the statboard package.
const (
	TopologyPath = "path"
	TopologyPort = "port"
)

// Config is the root configuration structure for Statboard.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Statboard" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the time between poll cycles.
	// Accepts duration strings like "4s", "1m", "1500ms".
	// Defaults to 4s.
	PollInterval Duration `yaml:"poll_interval"`

	// NoticeTTL is how long an error notice stays on screen. Defaults to 7s.
	NoticeTTL Duration `yaml:"notice_ttl"`

	// IndexRange bounds the random sample index used in event source URLs.
	// Zero keeps the built-in default.
	IndexRange int `yaml:"index_range"`

	// Topology selects a preset source layout: "path" or "port".
	// Empty means only the explicit Sources are polled.
	Topology string `yaml:"topology"`

	// BaseURL is the proxy base URL (path topology) or host (port topology).
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each request of the topology sources. Zero means none.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with every request of the topology sources.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// UpdateURL is the manual update endpoint. The path topology derives one
	// from BaseURL when this is empty.
	UpdateURL string `yaml:"update_url"`

	// UpdateRate limits manual updates triggered from the dashboard.
	UpdateRate *RateConfig `yaml:"update_rate"`

	// Sources lists extra sources. A source whose slot is also produced by
	// the topology replaces the topology's entry.
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig defines a single polled source.
type SourceConfig struct {
	// Slot is the display slot the response renders into.
	Slot string `yaml:"slot"`

	// URL is the source URL. It may contain {{.Index}}, replaced each cycle
	// by a random sample index.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout is the request timeout. Zero means none.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// RateConfig is a token bucket: PerSecond tokens refill per second, up to
// Burst. A PerSecond of zero disables the limit.
type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in BaseURL, UpdateURL, source URLs and
// header values. Defaults are applied for Port, PollInterval and NoticeTTL.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(DefaultPollInterval)
	}
	if cfg.NoticeTTL == 0 {
		cfg.NoticeTTL = Duration(DefaultNoticeTTL)
	}
	if cfg.UpdateRate != nil && cfg.UpdateRate.Burst == 0 {
		cfg.UpdateRate.Burst = DefaultUpdateBurst
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.NoticeTTL.Duration() < 0 {
		return fmt.Errorf("notice_ttl cannot be negative, got %s", c.NoticeTTL.Duration())
	}
	if c.IndexRange < 0 {
		return fmt.Errorf("index_range cannot be negative, got %d", c.IndexRange)
	}
	if err := validateTimeout(c.Timeout, "timeout"); err != nil {
		return err
	}
	if err := expandHeaders(c.Headers, "headers"); err != nil {
		return err
	}

	switch c.Topology {
	case "":
		if c.BaseURL != "" {
			return errors.New("base_url requires a topology (path or port)")
		}
	case TopologyPath, TopologyPort:
		if c.BaseURL == "" {
			return fmt.Errorf("topology %q requires base_url", c.Topology)
		}
		expanded, err := expandURL(c.BaseURL, "base_url")
		if err != nil {
			return err
		}
		c.BaseURL = expanded
	default:
		return fmt.Errorf("topology must be %q or %q, got %q", TopologyPath, TopologyPort, c.Topology)
	}

	if c.UpdateURL != "" {
		expanded, err := expandURL(c.UpdateURL, "update_url")
		if err != nil {
			return err
		}
		c.UpdateURL = expanded
	}

	if r := c.UpdateRate; r != nil {
		if r.PerSecond < 0 {
			return fmt.Errorf("update_rate: per_second cannot be negative, got %g", r.PerSecond)
		}
		if r.Burst < 1 {
			return fmt.Errorf("update_rate: burst must be at least 1, got %d", r.Burst)
		}
	}

	seen := make(map[string]int, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]

		if src.Slot == "" {
			return fmt.Errorf("sources[%d]: slot is required", i)
		}
		if src.Slot == display.SlotLastUpdated {
			return fmt.Errorf("sources[%d] (%s): slot is reserved for the last updated time", i, src.Slot)
		}
		if j, dup := seen[src.Slot]; dup {
			return fmt.Errorf("sources[%d] (%s): slot already used by sources[%d]", i, src.Slot, j)
		}
		seen[src.Slot] = i

		if src.URL == "" {
			return fmt.Errorf("sources[%d] (%s): url is required", i, src.Slot)
		}
		expanded, err := expandEnvVars(src.URL)
		if err != nil {
			return fmt.Errorf("sources[%d] (%s): url: %w", i, src.Slot, err)
		}
		src.URL = expanded

		// fail fast before the SDK tries to use an invalid template
		tmpl, err := poller.ParseURLTemplate(src.URL)
		if err != nil {
			return fmt.Errorf("sources[%d] (%s): %w", i, src.Slot, err)
		}
		sample, err := poller.RenderURL(tmpl, poller.URLParams{})
		if err != nil {
			return fmt.Errorf("sources[%d] (%s): %w", i, src.Slot, err)
		}
		if err := checkScheme(sample); err != nil {
			return fmt.Errorf("sources[%d] (%s): url: %w", i, src.Slot, err)
		}

		if err := expandHeaders(src.Headers, fmt.Sprintf("sources[%d] (%s): headers", i, src.Slot)); err != nil {
			return err
		}

		if src.Method != "" && src.Method != "GET" && src.Method != "POST" {
			return fmt.Errorf("sources[%d] (%s): method must be GET or POST", i, src.Slot)
		}

		if err := validateTimeout(src.Timeout, fmt.Sprintf("sources[%d] (%s): timeout", i, src.Slot)); err != nil {
			return err
		}
	}

	if c.Topology == "" && len(c.Sources) == 0 {
		return errors.New("at least one source or a topology must be defined")
	}

	return nil
}

// expandURL expands environment variables in raw and checks its scheme.
func expandURL(raw, field string) (string, error) {
	expanded, err := expandEnvVars(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	if err := checkScheme(expanded); err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return expanded, nil
}

func checkScheme(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}

// expandHeaders expands environment variables in header values in place.
func expandHeaders(headers map[string]string, context string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s[%s]: %w", context, k, err)
		}
		headers[k] = expanded
	}
	return nil
}

func validateTimeout(d Duration, context string) error {
	if d == 0 {
		return nil
	}
	if d.Duration() < 0 {
		return fmt.Errorf("%s cannot be negative, got %s", context, d.Duration())
	}
	if d.Duration() < 100*time.Millisecond {
		return fmt.Errorf("%s must be at least 100ms if specified, got %s", context, d.Duration())
	}
	return nil
}
