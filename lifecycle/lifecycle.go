// Package lifecycle owns the listening socket: it binds, reports, serves and
// drains on the first shutdown trigger.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dogeunblocker/doge/v4/internal"
	"github.com/dogeunblocker/doge/v4/logging"
)

const defaultDrainTimeout = 10 * time.Second

// Config contains the parameters of a Runtime.
type Config struct {
	// Address is the host:port to bind
	Address string

	// Handler serves every connection; it must be fully built before Start
	Handler http.Handler

	// DrainTimeout bounds graceful shutdown, after which connections are
	// closed forcibly
	DrainTimeout time.Duration

	SupportURL string
	SentryDSN  string
	Logger     *logrus.Logger

	// Out receives the banners; os.Stdout if nil
	Out io.Writer

	// Now is the clock shown in banners; time.Now if nil
	Now func() time.Time

	// Notify subscribes c to termination signals and returns a function
	// undoing the subscription.  SIGINT and SIGTERM are used if nil.
	Notify func(c chan<- os.Signal) (stop func())
}

// trigger is the cause of a shutdown.
type trigger struct {
	name string
	err  error
}

// Runtime is the process-wide server state.  Create it with New, bind with
// Start and serve with Run.
type Runtime struct {
	address      string
	drainTimeout time.Duration
	sentryDSN    string
	logger       *logrus.Logger
	notify       func(chan<- os.Signal) func()

	server   *http.Server
	listener net.Listener
	port     int
	reporter *Reporter
	crashes  *crashReporter
	state    *machine
	triggers chan trigger
}

// New creates a Runtime.  Nothing is bound until Start.
func New(c Config) *Runtime {
	logger := logging.OrNull(c.Logger)
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	drain := c.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	notify := c.Notify
	if notify == nil {
		notify = notifyTermination
	}
	return &Runtime{
		address:      c.Address,
		drainTimeout: drain,
		sentryDSN:    c.SentryDSN,
		logger:       logger,
		notify:       notify,
		server: &http.Server{
			Handler:           c.Handler,
			ReadHeaderTimeout: 30 * time.Second,
			ErrorLog:          newServerErrorLog(logger),
		},
		reporter: NewReporter(out, c.Now, internal.Version, c.SupportURL),
		state:    newMachine(),
		// holds the single winning trigger
		triggers: make(chan trigger, 1),
	}
}

// Start binds the listener and prints the startup banner.
func (rt *Runtime) Start() error {
	listener, err := net.Listen("tcp", rt.address)
	if err != nil {
		return errors.Wrapf(err, "binding %s", rt.address)
	}
	rt.listener = listener
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		rt.port = addr.Port
	}
	rt.crashes = newCrashReporter(rt.sentryDSN, rt.port, rt.logger)

	rt.reporter.Started(rt.port)
	rt.logger.Infof("Server running on http://localhost:%d", rt.port)
	return nil
}

// Port returns the bound port, which is only known after Start.
func (rt *Runtime) Port() int {
	return rt.port
}

// State returns the current phase.
func (rt *Runtime) State() State {
	return rt.state.get()
}

// Wait blocks until every connection is closed.
func (rt *Runtime) Wait() {
	rt.state.wait(Stopped)
}

// Run serves connections until a shutdown trigger arrives and the drain
// completes.  A signal, Fail, CapturePanic or cancellation of ctx each
// trigger shutdown; only the first one counts.  Run returns nil after a
// graceful or forced drain.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.listener == nil {
		return ErrNotStarted
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := rt.server.Serve(rt.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Fail(errors.Wrap(err, "serving"))
		}
		return nil
	})
	g.Go(func() error {
		return rt.watch(gctx)
	})
	return g.Wait()
}

// Fail reports an unrecoverable error and shuts down as a signal would.
func (rt *Runtime) Fail(err error) {
	rt.logger.WithError(err).Error("unrecoverable error")
	if rt.crashes != nil {
		rt.crashes.captureError(err)
	}
	rt.begin(trigger{name: "error", err: err})
}

// CapturePanic reports a recovered panic and shuts down.
func (rt *Runtime) CapturePanic(crash interface{}) {
	if rt.crashes != nil {
		rt.crashes.capturePanic(crash)
	}
	rt.begin(trigger{name: "panic", err: fmt.Errorf("panic: %v", crash)})
}

// begin moves Running to Draining, handing the trigger to the watcher.
func (rt *Runtime) begin(t trigger) {
	if !rt.state.transition(Running, Draining) {
		rt.logger.WithField("trigger", t.name).Info("shutdown already in progress; ignoring trigger")
		return
	}
	rt.triggers <- t
}

func (rt *Runtime) watch(ctx context.Context) error {
	sigs := make(chan os.Signal, 1)
	stop := rt.notify(sigs)
	defer stop()

	done := ctx.Done()
	for {
		select {
		case sig := <-sigs:
			rt.begin(trigger{name: signalName(sig)})
		case <-done:
			done = nil
			rt.begin(trigger{name: "context cancelled", err: ctx.Err()})
		case t := <-rt.triggers:
			rt.shutdown(t)
			return nil
		}
	}
}

// shutdown closes the listener, drains in-flight requests within the drain
// timeout, then forcibly closes whatever is left.
func (rt *Runtime) shutdown(t trigger) {
	rt.reporter.ShuttingDown(t.name)
	log := rt.logger.WithField("trigger", t.name)
	if t.err != nil {
		log = log.WithError(t.err)
	}
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), rt.drainTimeout)
	defer cancel()
	if err := rt.server.Shutdown(ctx); err != nil {
		log.Warnf("connections still open after %v; closing them: %v", rt.drainTimeout, err)
		_ = rt.server.Close()
	}

	rt.state.transition(Draining, Stopped)
	rt.reporter.Closed()
}
