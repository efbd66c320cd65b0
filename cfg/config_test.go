package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := New()

	assert.Equal(t, 8001, c.Port)
	assert.Equal(t, "public", c.AssetsDir)
	assert.Equal(t, "gms.html", c.FallbackPage)
	assert.Equal(t, "https://cdn.surfdoge.pro/worker.js", c.Worker.URL)
	assert.Equal(t, 15*time.Second, c.Worker.Timeout)
	assert.False(t, c.Worker.Retry)
	assert.Equal(t, "/bear/", c.Bare.Prefix)
	assert.Equal(t, 10*time.Second, c.DrainTimeout)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, DefaultPages(), c.Pages)
	require.NoError(t, c.Validate())
}

func TestLoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "doge.yml")
	require.NoError(t, os.WriteFile(filename, []byte(`
port: 9090
staticRoot: /srv/doge
worker:
  url: http://example.com/w.js
  timeout: 2s
bare:
  prefix: ""
pages:
  - path: /home
    file: home.html
`), 0o644))

	c, err := Load(filename)
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Port, "should read port")
	assert.Equal(t, "/srv/doge", c.StaticRoot)
	assert.Equal(t, "http://example.com/w.js", c.Worker.URL)
	assert.Equal(t, 2*time.Second, c.Worker.Timeout)
	assert.Equal(t, "", c.Bare.Prefix, "explicit empty prefix disables the engine")
	assert.Equal(t, []Page{{Path: "/home", File: "home.html"}}, c.Pages)
	assert.Equal(t, 10*time.Second, c.DrainTimeout, "unset values keep defaults")
}

func TestLoadConfigWithoutPagesKeepsDefaults(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "doge.yml")
	require.NoError(t, os.WriteFile(filename, []byte("port: 1234\n"), 0o644))

	c, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, DefaultPages(), c.Pages)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	c := New()
	err := c.ApplyEnv(envLookup(map[string]string{
		"PORT":              "9999",
		"STATIC_ROOT":       "/var/www",
		"WORKER_SCRIPT_URL": "https://cdn.example.com/worker.js",
		"WORKER_TIMEOUT":    "3s",
		"WORKER_RETRY":      "true",
		"BARE_PREFIX":       "/bare/",
		"DRAIN_TIMEOUT":     "1m",
		"ENV":               "production",
		"SYSLOG_ADDR":       "localhost:514",
		"LOG_LEVEL":         "debug",
		"SENTRY_DSN":        "https://key@sentry.example.com/1",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9999, c.Port)
	assert.Equal(t, "/var/www", c.StaticRoot)
	assert.Equal(t, "https://cdn.example.com/worker.js", c.Worker.URL)
	assert.Equal(t, 3*time.Second, c.Worker.Timeout)
	assert.True(t, c.Worker.Retry)
	assert.Equal(t, "/bare/", c.Bare.Prefix)
	assert.Equal(t, time.Minute, c.DrainTimeout)
	assert.Equal(t, "production", c.Logging.Env)
	assert.Equal(t, "localhost:514", c.Logging.SyslogAddr)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, "https://key@sentry.example.com/1", c.SentryDSN)
}

func TestApplyEnvEmptyBarePrefix(t *testing.T) {
	c := New()
	require.NoError(t, c.ApplyEnv(envLookup(map[string]string{"BARE_PREFIX": ""})))
	assert.Equal(t, "", c.Bare.Prefix)
}

func TestApplyEnvErrors(t *testing.T) {
	for _, env := range []map[string]string{
		{"PORT": "eighty"},
		{"WORKER_TIMEOUT": "soon"},
		{"DRAIN_TIMEOUT": "10"},
		{"WORKER_RETRY": "maybe"},
	} {
		c := New()
		assert.Error(t, c.ApplyEnv(envLookup(env)), "env %v", env)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"ephemeral port", func(c *Config) { c.Port = 0 }, false},
		{"port too large", func(c *Config) { c.Port = 99999 }, true},
		{"bad address", func(c *Config) { c.Address = "not-an-ip" }, true},
		{"ipv6 address", func(c *Config) { c.Address = "::1" }, false},
		{"zero worker timeout", func(c *Config) { c.Worker.Timeout = 0 }, true},
		{"zero drain timeout", func(c *Config) { c.DrainTimeout = 0 }, true},
		{"relative worker url", func(c *Config) { c.Worker.URL = "/worker.js" }, true},
		{"bare prefix without slashes", func(c *Config) { c.Bare.Prefix = "bear" }, true},
		{"bare disabled", func(c *Config) { c.Bare.Prefix = "" }, false},
		{"no fallback", func(c *Config) { c.FallbackPage = "" }, true},
		{"relative page alias", func(c *Config) { c.Pages = []Page{{Path: "app", File: "index.html"}} }, true},
		{"duplicate page alias", func(c *Config) { c.Pages = append(c.Pages, Page{Path: "/app", File: "x.html"}) }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			tc.modify(c)
			err := c.Validate()
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListenAddress(t *testing.T) {
	c := New()
	assert.Equal(t, ":8001", c.ListenAddress())

	c.Address = "::1"
	c.Port = 9090
	assert.Equal(t, "[::1]:9090", c.ListenAddress())
}
