package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	docopt "github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dogeunblocker/doge/v4/bare"
	"github.com/dogeunblocker/doge/v4/cfg"
	"github.com/dogeunblocker/doge/v4/gate"
	"github.com/dogeunblocker/doge/v4/internal"
	"github.com/dogeunblocker/doge/v4/internal/httputil"
	"github.com/dogeunblocker/doge/v4/lifecycle"
	"github.com/dogeunblocker/doge/v4/logging"
	"github.com/dogeunblocker/doge/v4/relay"
	"github.com/dogeunblocker/doge/v4/routes"
	"github.com/dogeunblocker/doge/v4/static"
	"github.com/dogeunblocker/doge/v4/web"
)

var (
	version = internal.Version
	usage   = `
Doge web server.  Serves the Doge pages and assets, relays the worker script
and hosts a bare proxy engine for the in-browser client.

  Usage:
    doge [options]
    doge -h|--help
    doge --version
    doge --short-version

  Options:
    -h --help                    Show this help screen.
    --version                    Show the doge version number.
    --short-version              Show only the semantic version.
    -c --config <file>           YAML configuration file, see below.
    -p --port <port>             Port to listen on, overriding PORT.
    -i --ip-address <address>    IPv4 or IPv6 address of network interface to bind
                                 listener to.  If not provided, will bind listener
                                 to all available network interfaces.
    --static-root <dir>          Serve pages and assets from this directory instead
                                 of the site built into the binary.

  Environment:
    PORT                 port to listen on (default 8001)
    STATIC_ROOT          directory holding the pages and the public/ assets
    WORKER_SCRIPT_URL    remote script relayed on /worker.js
    WORKER_TIMEOUT       bound on each worker script fetch, e.g. 15s
    WORKER_RETRY         "true" to retry failed worker script fetches
    BARE_PREFIX          path prefix of the bare engine (default /bear/; empty disables)
    DRAIN_TIMEOUT        bound on graceful shutdown, e.g. 10s
    ENV                  "production" for mozlog output
    SYSLOG_ADDR          address to which to send syslog output (production only)
    LOG_LEVEL            logrus level (default info)
    SENTRY_DSN           report crashes to this Sentry DSN
` + cfg.Usage()
)

// errShortVersion signals that --short-version was handled.
var errShortVersion = errors.New("short version requested")

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main without os.Exit: 0 after a graceful shutdown, 1 if the server
// could not start.
func run(argv []string) int {
	c, err := ParseCommandArgs(argv, true)
	if err == errShortVersion {
		fmt.Println(version)
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "doge: %v\n", err)
		return 1
	}

	logger, err := logging.New(c.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doge: %v\n", err)
		return 1
	}

	rt, err := newRuntime(c, logger)
	if err != nil {
		logger.WithError(err).Error("could not set up server")
		return 1
	}
	if err := rt.Start(); err != nil {
		logger.WithError(err).Error("could not start server")
		return 1
	}
	if err := rt.Run(context.Background()); err != nil {
		logger.WithError(err).Error("server stopped with error")
		return 1
	}
	return 0
}

// ParseCommandArgs builds the configuration from defaults, the optional
// config file, the environment and the command line, in increasing order of
// precedence.  With exit set, --help and --version exit the process.
func ParseCommandArgs(argv []string, exit bool) (*cfg.Config, error) {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpAndExit}
	if !exit {
		parser.HelpHandler = docopt.NoHelpHandler
	}
	arguments, err := parser.ParseArgs(usage, argv, "doge "+version)
	if err != nil {
		return nil, err
	}
	if short, _ := arguments.Bool("--short-version"); short {
		return nil, errShortVersion
	}

	configFile, _ := arguments.String("--config")
	c, err := cfg.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if portStr, _ := arguments.String("--port"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, errors.Wrapf(err, "--port %q is not a number", portStr)
		}
		c.Port = port
	}
	if ipAddress, _ := arguments.String("--ip-address"); ipAddress != "" {
		c.Address = ipAddress
	}
	if staticRoot, _ := arguments.String("--static-root"); staticRoot != "" {
		c.StaticRoot = staticRoot
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// siteRoot returns the configured static root, or the embedded site.
func siteRoot(c *cfg.Config) (fs.FS, error) {
	if c.StaticRoot == "" {
		return web.Site(), nil
	}
	info, err := os.Stat(c.StaticRoot)
	if err != nil {
		return nil, errors.Wrap(err, "static root")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("static root %s is not a directory", c.StaticRoot)
	}
	return os.DirFS(c.StaticRoot), nil
}

// newRuntime wires every component into a lifecycle.Runtime.  The route
// table is complete before the runtime can bind.
func newRuntime(c *cfg.Config, logger *log.Logger) (*lifecycle.Runtime, error) {
	root, err := siteRoot(c)
	if err != nil {
		return nil, err
	}
	staticServer, err := static.New(static.Config{
		Root:         root,
		AssetsDir:    c.AssetsDir,
		Pages:        c.Pages,
		FallbackPage: c.FallbackPage,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	workerRelay := relay.New(relay.Config{
		URL:     c.Worker.URL,
		Timeout: c.Worker.Timeout,
		Retry:   c.Worker.Retry,
		Logger:  logger,
	})

	var engine gate.Engine
	if c.Bare.Prefix != "" {
		engine = bare.New(bare.Config{
			Prefix:      c.Bare.Prefix,
			DialTimeout: c.Bare.DialTimeout,
			Logger:      logger,
		})
	}

	logger.WithFields(log.Fields{
		"version":     version,
		"address":     c.ListenAddress(),
		"static-root": c.StaticRoot,
		"bare-prefix": c.Bare.Prefix,
		"worker-url":  c.Worker.URL,
	}).Info("configuring server")

	var rt *lifecycle.Runtime
	handler := routes.New(routes.Config{
		Services: []httputil.ServiceProvider{staticServer, workerRelay},
		NotFound: http.HandlerFunc(staticServer.NotFound),
		Engine:   engine,
		OnPanic: func(crash interface{}) {
			rt.CapturePanic(crash)
		},
		Logger: logger,
	})
	rt = lifecycle.New(lifecycle.Config{
		Address:      c.ListenAddress(),
		Handler:      handler,
		DrainTimeout: c.DrainTimeout,
		SupportURL:   c.SupportURL,
		SentryDSN:    c.SentryDSN,
		Logger:       logger,
	})
	return rt, nil
}
