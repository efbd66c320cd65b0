package lifecycle

import (
	"strconv"

	raven "github.com/getsentry/raven-go"
	"github.com/sirupsen/logrus"

	"github.com/dogeunblocker/doge/v4/internal"
)

// crashReporter sends crashes to Sentry.  Without a client it does nothing.
type crashReporter struct {
	client *raven.Client
	tags   map[string]string
	logger *logrus.Logger
}

func newCrashReporter(dsn string, port int, logger *logrus.Logger) *crashReporter {
	r := &crashReporter{
		tags: map[string]string{
			"version": internal.Version,
			"port":    strconv.Itoa(port),
		},
		logger: logger,
	}
	if dsn == "" {
		return r
	}
	client, err := raven.New(dsn)
	if err != nil {
		logger.Warnf("Could not create raven client for reporting to sentry: %v", err)
		return r
	}
	r.client = client
	return r
}

func (r *crashReporter) capturePanic(crash interface{}) {
	if r.client == nil {
		return
	}
	_, id := r.client.CapturePanicAndWait(
		func() {
			panic(crash)
		},
		r.tags,
	)
	r.logger.WithField("incidentId", id).Info("panic reported to sentry")
}

func (r *crashReporter) captureError(err error) {
	if r.client == nil {
		return
	}
	id := r.client.CaptureErrorAndWait(err, r.tags)
	r.logger.WithField("incidentId", id).Info("error reported to sentry")
}
