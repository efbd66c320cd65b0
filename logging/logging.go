// Package logging builds the logrus logger shared by every component of the
// server.
package logging

import (
	"io"
	"os"

	mozlog "github.com/mozilla-services/go-mozlogrus"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"

	"github.com/dogeunblocker/doge/v4/cfg"
)

// LoggerName identifies this service in mozlog output and syslog.
const LoggerName = "doge"

// New creates a logger writing to stderr according to the logging
// configuration.
func New(c cfg.LoggingConfig) (*logrus.Logger, error) {
	return newLogger(c, os.Stderr)
}

func newLogger(c cfg.LoggingConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Out = out

	level := logrus.InfoLevel
	if c.Level != "" {
		var err error
		level, err = logrus.ParseLevel(c.Level)
		if err != nil {
			return nil, errors.Wrap(err, "invalid log level")
		}
	}
	logger.SetLevel(level)

	if c.Env == "production" {
		logger.Formatter = &mozlog.MozLogFormatter{
			LoggerName: LoggerName,
		}

		if c.SyslogAddr != "" {
			hook, err := newSyslogHook(c.SyslogAddr)
			if err != nil {
				return nil, errors.Wrap(err, "syslog hook")
			}
			logger.Hooks.Add(hook)
		}
	}
	return logger, nil
}

// OrNull returns logger, or a logger that discards everything if logger is
// nil.
func OrNull(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	null, _ := nullLog.NewNullLogger()
	return null
}
