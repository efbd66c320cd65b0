//go:build unix

package logging

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	lSyslog "github.com/sirupsen/logrus/hooks/syslog"
)

func newSyslogHook(addr string) (logrus.Hook, error) {
	return lSyslog.NewSyslogHook("udp", addr, syslog.LOG_DEBUG, LoggerName)
}
