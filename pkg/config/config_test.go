package config

import (
	"testing"
	"time"

	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) LookupEnvFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func Test_Defaults(t *testing.T) {
	cfg, err := load("", envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:11434", cfg.Ollama.Host)
	assert.Empty(t, cfg.Ollama.DefaultModel)
	assert.Equal(t, 300*time.Second, cfg.Ollama.RequestTimeout.Duration())
	assert.Equal(t, 3, cfg.Ollama.MaxRetries)
	assert.Equal(t, time.Second, cfg.Ollama.RetryDelay.Duration())
	assert.Equal(t, "mcp-ollama", cfg.Server.Name)
	assert.False(t, cfg.Server.Debug)
	assert.Equal(t, xlog.INFO, cfg.LogLevel())

	p := cfg.RetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.BaseDelay)

	exp := `Server Configuration:
Name: mcp-ollama
Version: 0.1.0
Description: Advanced MCP server for Ollama
Debug: false
Log Level: INFO

Ollama Configuration:
Host: http://127.0.0.1:11434
Default Model: Not configured
Request Timeout: 300s
Max Retries: 3
Retry Delay: 1.0s
`
	assert.Equal(t, exp, cfg.Describe())
}

func Test_Env(t *testing.T) {
	cfg, err := load("", envOf(map[string]string{
		EnvOllamaHost:     "http://gpu-box:11434",
		EnvDefaultModel:   "mistral",
		EnvRequestTimeout: "60",
		EnvMaxRetries:     "0",
		EnvRetryDelay:     "0.5",
		EnvDebug:          "TRUE",
		EnvLogLevel:       "warning",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.Host)
	assert.Equal(t, "mistral", cfg.Ollama.DefaultModel)
	assert.Equal(t, time.Minute, cfg.Ollama.RequestTimeout.Duration())
	assert.Equal(t, 0, cfg.Ollama.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Ollama.RetryDelay.Duration())
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "WARNING", cfg.Server.LogLevel)
	assert.Equal(t, xlog.DEBUG, cfg.LogLevel())

	assert.Contains(t, cfg.Describe(), "Default Model: mistral\nRequest Timeout: 60s\nMax Retries: 0\nRetry Delay: 0.5s\n")
	assert.Contains(t, cfg.Describe(), "Debug: true\n")
}

func Test_Env_Invalid(t *testing.T) {
	tcases := []struct {
		env map[string]string
		err string
	}{
		{map[string]string{EnvMaxRetries: "many"}, "invalid OLLAMA_MAX_RETRIES"},
		{map[string]string{EnvMaxRetries: "-1"}, "invalid configuration"},
		{map[string]string{EnvRetryDelay: "soon"}, "invalid OLLAMA_RETRY_DELAY"},
		{map[string]string{EnvRetryDelay: "0"}, "invalid configuration"},
		{map[string]string{EnvRequestTimeout: "later"}, "invalid OLLAMA_REQUEST_TIMEOUT"},
		{map[string]string{EnvOllamaHost: "ftp://ollama"}, "invalid configuration: invalid host: ftp://ollama"},
		{map[string]string{EnvOllamaHost: "localhost:port"}, "invalid configuration: invalid host port: localhost:port"},
		{map[string]string{EnvLogLevel: "verbose"}, `invalid configuration: unknown log level: "VERBOSE"`},
	}
	for _, tc := range tcases {
		_, err := load("", envOf(tc.env))
		require.Error(t, err, tc.env)
		assert.Contains(t, err.Error(), tc.err)
	}

	// blank values are ignored
	cfg, err := load("", envOf(map[string]string{EnvOllamaHost: "  ", EnvMaxRetries: ""}))
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, cfg.Ollama.Host)
	assert.Equal(t, DefaultMaxRetries, cfg.Ollama.MaxRetries)
}

func Test_Env_HostForms(t *testing.T) {
	tcases := map[string]string{
		"127.0.0.1:11434":        "http://127.0.0.1:11434",
		"localhost:11434":        "http://localhost:11434",
		"0.0.0.0":                "http://0.0.0.0:11434",
		"gpu-box":                "http://gpu-box:11434",
		"https://ollama.example": "https://ollama.example:443",
	}
	for host, exp := range tcases {
		cfg, err := load("", envOf(map[string]string{EnvOllamaHost: host}))
		require.NoError(t, err, host)
		assert.Equal(t, exp, cfg.Ollama.Host)
		assert.Contains(t, cfg.Describe(), "Host: "+exp+"\n")
	}
}

func Test_File(t *testing.T) {
	cfg, err := load("testdata/config.yaml", envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://ollama.local:11434", cfg.Ollama.Host)
	assert.Equal(t, "llama3:8b", cfg.Ollama.DefaultModel)
	assert.Equal(t, 2*time.Minute, cfg.Ollama.RequestTimeout.Duration())
	assert.Equal(t, 5, cfg.Ollama.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Ollama.RetryDelay.Duration())
	assert.Equal(t, "mcp-ollama-test", cfg.Server.Name)
	// not in the file
	assert.Equal(t, DefaultDescription, cfg.Server.Description)
	assert.Equal(t, xlog.DEBUG, cfg.LogLevel())

	// environment wins
	cfg, err = load("testdata/config.yaml", envOf(map[string]string{EnvDefaultModel: "phi3"}))
	require.NoError(t, err)
	assert.Equal(t, "phi3", cfg.Ollama.DefaultModel)

	_, err = load("testdata/invalid.yaml", envOf(nil))
	assert.Error(t, err)

	_, err = load("testdata/missing.yaml", envOf(nil))
	assert.Error(t, err)
}

func Test_YAML(t *testing.T) {
	cfg := Default()
	cfg.Ollama.DefaultModel = "llama3"

	y, err := cfg.YAML()
	require.NoError(t, err)
	exp := `ollama:
    host: http://127.0.0.1:11434
    default_model: llama3
    request_timeout: 5m0s
    max_retries: 3
    retry_delay: 1s
server:
    name: mcp-ollama
    version: 0.1.0
    description: Advanced MCP server for Ollama
    debug: false
    log_level: INFO
`
	assert.Equal(t, exp, y)
}

func Test_ParseDuration(t *testing.T) {
	tcases := []struct {
		in  string
		exp time.Duration
	}{
		{"300", 300 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"250ms", 250 * time.Millisecond},
		{" 2m ", 2 * time.Minute},
	}
	for _, tc := range tcases {
		d, err := ParseDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.exp, d.Duration(), tc.in)
	}

	_, err := ParseDuration("")
	assert.EqualError(t, err, "empty duration")
	_, err = ParseDuration("abc")
	assert.Error(t, err)

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m"`)))
	assert.Equal(t, time.Minute, d.Duration())
	require.NoError(t, d.UnmarshalJSON([]byte(`2`)))
	assert.Equal(t, 2*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))

	js, err := Duration(90 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(js))
	assert.Equal(t, "90", Duration(90*time.Second).Seconds())
	assert.Equal(t, "90.0", Duration(90*time.Second).DecimalSeconds())
	assert.Equal(t, "0.25", Duration(250*time.Millisecond).DecimalSeconds())
}

func Test_ParseLogLevel(t *testing.T) {
	for name, exp := range map[string]xlog.LogLevel{
		"debug":    xlog.DEBUG,
		"INFO":     xlog.INFO,
		"Warning":  xlog.WARNING,
		"critical": xlog.CRITICAL,
		"trace":    xlog.TRACE,
	} {
		l, err := ParseLogLevel(name)
		require.NoError(t, err)
		assert.Equal(t, exp, l)
	}
}
