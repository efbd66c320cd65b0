//go:build unix

package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogeunblocker/doge/v4/cfg"
)

func TestSyslogHook(t *testing.T) {
	// udp needs no listener to dial
	logger, err := newLogger(cfg.LoggingConfig{Env: "production", SyslogAddr: "127.0.0.1:514"}, new(bytes.Buffer))
	require.NoError(t, err)
	assert.Len(t, logger.Hooks[logrus.InfoLevel], 1)
}
