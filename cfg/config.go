package cfg

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Page maps a fixed request path to a file under the static root.
type Page struct {
	Path string `yaml:"path"`
	File string `yaml:"file"`
}

// WorkerConfig configures the worker script relay.
type WorkerConfig struct {
	// URL of the remote worker script
	URL string `yaml:"url" default:"https://cdn.surfdoge.pro/worker.js"`

	// Upper bound on a single outbound fetch, including reading the body
	Timeout time.Duration `yaml:"timeout" default:"15s"`

	// Retry 5xx responses and network failures with exponential backoff,
	// for at most Timeout in total
	Retry bool `yaml:"retry"`
}

// BareConfig configures the bare proxy engine.
type BareConfig struct {
	// Path prefix claimed by the engine.  An empty prefix disables the
	// engine entirely.
	Prefix string `yaml:"prefix" default:"/bear/"`

	// Upper bound on establishing a connection to a remote
	DialTimeout time.Duration `yaml:"dialTimeout" default:"30s"`
}

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	// "production" selects the mozlog JSON formatter
	Env        string `yaml:"env"`
	SyslogAddr string `yaml:"syslogAddr"`
	Level      string `yaml:"level" default:"info"`
}

// Config is the complete configuration of the server.  See Usage for a
// description of the file format.
type Config struct {
	Port    int    `yaml:"port" default:"8001"`
	Address string `yaml:"address"`

	// Directory containing the pages and the assets directory.  When empty,
	// the site embedded in the binary is served.
	StaticRoot   string `yaml:"staticRoot"`
	AssetsDir    string `yaml:"assetsDir" default:"public"`
	FallbackPage string `yaml:"fallbackPage" default:"gms.html"`
	Pages        []Page `yaml:"pages"`

	Worker WorkerConfig `yaml:"worker"`
	Bare   BareConfig   `yaml:"bare"`

	// Upper bound on draining in-flight requests during shutdown
	DrainTimeout time.Duration `yaml:"drainTimeout" default:"10s"`

	SupportURL string        `yaml:"supportUrl" default:"https://discord.gg/unblocking"`
	SentryDSN  string        `yaml:"sentryDsn"`
	Logging    LoggingConfig `yaml:"logging"`
}

// DefaultPages returns the page aliases served when the configuration does
// not list any.
func DefaultPages() []Page {
	return []Page{
		{Path: "/app", File: "index.html"},
		{Path: "/student", File: "loader.html"},
		{Path: "/apps", File: "apps.html"},
		{Path: "/gms", File: "gms.html"},
		{Path: "/lessons", File: "agloader.html"},
		{Path: "/info", File: "info.html"},
		{Path: "/go", File: "loading.html"},
	}
}

// Usage returns a fragment of a usage message describing the configuration
// file format.
func Usage() string {
	return `
Configuration is an optional YAML file with the following fields:

	port: port to listen on (default 8001)
	address: IP address to bind to (default: all interfaces)
	staticRoot: directory holding the HTML pages; the embedded site is used if empty
	assetsDir: directory under staticRoot served verbatim (default "public")
	fallbackPage: page served with 404 for unknown paths (default "gms.html")
	pages: list of {path, file} aliases (default: /app, /student, /apps, /gms,
		/lessons, /info and /go)
	worker:
		url: remote worker script relayed on /worker.js
		timeout: bound on each fetch (default 15s)
		retry: retry failed fetches with backoff (default false)
	bare:
		prefix: path prefix claimed by the bare engine (default "/bear/"; "" disables)
		dialTimeout: bound on connecting to remotes (default 30s)
	drainTimeout: bound on graceful shutdown (default 10s)
	supportUrl: link shown in the startup banner
	sentryDsn: report crashes to this Sentry DSN
	logging:
		env: "production" selects mozlog output
		syslogAddr: UDP syslog address
		level: logrus level (default "info")
`
}

// New returns a configuration with all defaults applied.
func New() *Config {
	c := new(Config)
	defaults.SetDefaults(c)
	c.Pages = DefaultPages()
	return c
}

// Load reads a YAML configuration file over the defaults.  An empty filename
// yields the defaults.
func Load(filename string) (*Config, error) {
	c := New()
	if filename == "" {
		return c, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	c.Pages = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", filename)
	}
	if len(c.Pages) == 0 {
		c.Pages = DefaultPages()
	}
	return c, nil
}

// ApplyEnv overrides configuration values from the environment.  lookup is
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "env var %s", key)
		}
		*dst = d
		return nil
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "env var PORT is not a number (%v)", v)
		}
		c.Port = port
	}
	str("STATIC_ROOT", &c.StaticRoot)
	str("WORKER_SCRIPT_URL", &c.Worker.URL)
	if v, ok := lookup("WORKER_RETRY"); ok && v != "" {
		retry, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "env var WORKER_RETRY")
		}
		c.Worker.Retry = retry
	}
	str("BARE_PREFIX", &c.Bare.Prefix)
	str("ENV", &c.Logging.Env)
	str("SYSLOG_ADDR", &c.Logging.SyslogAddr)
	str("LOG_LEVEL", &c.Logging.Level)
	str("SENTRY_DSN", &c.SentryDSN)

	if err := dur("WORKER_TIMEOUT", &c.Worker.Timeout); err != nil {
		return err
	}
	return dur("DRAIN_TIMEOUT", &c.DrainTimeout)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("port %v is not in range [0,65535]", c.Port)
	}
	if c.Address != "" && net.ParseIP(c.Address) == nil {
		return errors.Errorf("invalid IPv4/IPv6 address specified - cannot parse: %v", c.Address)
	}
	if c.Worker.Timeout <= 0 {
		return errors.New("worker timeout must be positive")
	}
	if c.DrainTimeout <= 0 {
		return errors.New("drain timeout must be positive")
	}
	u, err := url.Parse(c.Worker.URL)
	if err != nil {
		return errors.Wrap(err, "worker url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("worker url must be absolute http(s): %q", c.Worker.URL)
	}
	if p := c.Bare.Prefix; p != "" && (!strings.HasPrefix(p, "/") || !strings.HasSuffix(p, "/")) {
		return errors.Errorf("bare prefix must begin and end with '/': %q", p)
	}
	if c.FallbackPage == "" {
		return errors.New("fallback page must be set")
	}
	seen := map[string]bool{}
	for _, page := range c.Pages {
		if !strings.HasPrefix(page.Path, "/") || page.File == "" {
			return errors.Errorf("invalid page alias %q -> %q", page.Path, page.File)
		}
		if seen[page.Path] {
			return errors.Errorf("duplicate page alias %q", page.Path)
		}
		seen[page.Path] = true
	}
	return nil
}

// ListenAddress returns the host:port the server binds to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}
