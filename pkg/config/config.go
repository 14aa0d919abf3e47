// Package config provides the server configuration:
// defaults, an optional YAML or JSON file, and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcp-ollama/pkg/backend"
	"github.com/effective-security/mcp-ollama/pkg/retry"
	"github.com/effective-security/mcp-ollama/pkg/validation"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultHost           = "http://127.0.0.1:11434"
	DefaultRequestTimeout = 300 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
	DefaultName           = "mcp-ollama"
	DefaultVersion        = "0.1.0"
	DefaultDescription    = "Advanced MCP server for Ollama"
	DefaultLogLevel       = "INFO"

	// NoDefaultModel is reported when DEFAULT_MODEL is not set.
	NoDefaultModel = "No default model configured. Set DEFAULT_MODEL environment variable."
)

// Environment variables
const (
	EnvOllamaHost     = "OLLAMA_HOST"
	EnvDefaultModel   = "DEFAULT_MODEL"
	EnvRequestTimeout = "OLLAMA_REQUEST_TIMEOUT"
	EnvMaxRetries     = "OLLAMA_MAX_RETRIES"
	EnvRetryDelay     = "OLLAMA_RETRY_DELAY"
	EnvDebug          = "DEBUG"
	EnvLogLevel       = "LOG_LEVEL"
)

// Config of the server. It is built once at startup and not modified afterwards.
type Config struct {
	Ollama Ollama `json:"ollama" yaml:"ollama"`
	Server Server `json:"server" yaml:"server"`
}

// Ollama specifies the connection to the Ollama endpoint.
type Ollama struct {
	Host         string `json:"host" yaml:"host" validate:"required,url"`
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	// RequestTimeout bounds every HTTP request to the endpoint.
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	// MaxRetries is the number of retries after a failed call.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0"`
	// RetryDelay is the wait before the first retry, doubled on each further retry.
	RetryDelay Duration `json:"retry_delay" yaml:"retry_delay" validate:"gt=0"`
}

// Server specifies the MCP server.
type Server struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
	Debug       bool   `json:"debug" yaml:"debug"`
	LogLevel    string `json:"log_level" yaml:"log_level" validate:"required"`
}

// Default returns the configuration with default values.
func Default() *Config {
	return &Config{
		Ollama: Ollama{
			Host:           DefaultHost,
			RequestTimeout: Duration(DefaultRequestTimeout),
			MaxRetries:     DefaultMaxRetries,
			RetryDelay:     Duration(DefaultRetryDelay),
		},
		Server: Server{
			Name:        DefaultName,
			Version:     DefaultVersion,
			Description: DefaultDescription,
			LogLevel:    DefaultLogLevel,
		},
	}
}

// Load returns the configuration from the defaults, the optional file and the environment.
// The environment takes precedence over the file.
func Load(file string) (*Config, error) {
	return load(file, os.LookupEnv)
}

// LookupEnvFunc returns the value of the environment variable.
type LookupEnvFunc func(key string) (string, bool)

func load(file string, lookup LookupEnvFunc) (*Config, error) {
	cfg := Default()
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config: %s", file)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	// OLLAMA_HOST may omit the scheme and port
	u, err := backend.ParseHost(cfg.Ollama.Host)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	cfg.Ollama.Host = u.String()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the configuration with the environment variables that are set.
func (c *Config) ApplyEnv(lookup LookupEnvFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvOllamaHost); ok {
		c.Ollama.Host = v
	}
	if v, ok := get(EnvDefaultModel); ok {
		c.Ollama.DefaultModel = v
	}
	if v, ok := get(EnvRequestTimeout); ok {
		d, err := ParseDuration(v)
		if err != nil {
			return errors.WithMessagef(err, "invalid %s", EnvRequestTimeout)
		}
		c.Ollama.RequestTimeout = d
	}
	if v, ok := get(EnvMaxRetries); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return errors.WithMessagef(err, "invalid %s", EnvMaxRetries)
		}
		c.Ollama.MaxRetries = n
	}
	if v, ok := get(EnvRetryDelay); ok {
		d, err := ParseDuration(v)
		if err != nil {
			return errors.WithMessagef(err, "invalid %s", EnvRetryDelay)
		}
		c.Ollama.RetryDelay = d
	}
	if v, ok := get(EnvDebug); ok {
		c.Server.Debug = strings.EqualFold(v, "true")
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Server.LogLevel = strings.ToUpper(v)
	}
	return nil
}

// Validate returns an error if the configuration is not usable.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	if _, err := ParseLogLevel(c.Server.LogLevel); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	return nil
}

// RetryPolicy returns the retry policy of backend calls.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: c.Ollama.MaxRetries,
		BaseDelay:  c.Ollama.RetryDelay.Duration(),
	}
}

// LogLevel returns the effective log level, DEBUG when Debug is set.
func (c *Config) LogLevel() xlog.LogLevel {
	if c.Server.Debug {
		return xlog.DEBUG
	}
	l, err := ParseLogLevel(c.Server.LogLevel)
	if err != nil {
		return xlog.INFO
	}
	return l
}

// Describe returns the human readable configuration.
func (c *Config) Describe() string {
	var b strings.Builder
	b.WriteString("Server Configuration:\n")
	fmt.Fprintf(&b, "Name: %s\n", c.Server.Name)
	fmt.Fprintf(&b, "Version: %s\n", c.Server.Version)
	fmt.Fprintf(&b, "Description: %s\n", c.Server.Description)
	fmt.Fprintf(&b, "Debug: %t\n", c.Server.Debug)
	fmt.Fprintf(&b, "Log Level: %s\n", c.Server.LogLevel)
	b.WriteString("\nOllama Configuration:\n")
	fmt.Fprintf(&b, "Host: %s\n", c.Ollama.Host)
	fmt.Fprintf(&b, "Default Model: %s\n", values.StringsCoalesce(c.Ollama.DefaultModel, "Not configured"))
	fmt.Fprintf(&b, "Request Timeout: %ss\n", c.Ollama.RequestTimeout.Seconds())
	fmt.Fprintf(&b, "Max Retries: %d\n", c.Ollama.MaxRetries)
	fmt.Fprintf(&b, "Retry Delay: %ss\n", c.Ollama.RetryDelay.DecimalSeconds())
	return b.String()
}

// YAML returns the configuration in YAML format.
func (c *Config) YAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(b), nil
}

var logLevels = map[string]xlog.LogLevel{
	"CRITICAL": xlog.CRITICAL,
	"ERROR":    xlog.ERROR,
	"WARNING":  xlog.WARNING,
	"WARN":     xlog.WARNING,
	"NOTICE":   xlog.NOTICE,
	"INFO":     xlog.INFO,
	"DEBUG":    xlog.DEBUG,
	"TRACE":    xlog.TRACE,
}

// ParseLogLevel returns the xlog level of the name, case insensitive.
func ParseLogLevel(name string) (xlog.LogLevel, error) {
	l, ok := logLevels[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return xlog.INFO, errors.Newf("unknown log level: %q", name)
	}
	return l, nil
}
