//go:build !unix

package logging

import (
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func newSyslogHook(addr string) (logrus.Hook, error) {
	return nil, errors.Errorf("syslog is not supported on %s", runtime.GOOS)
}
