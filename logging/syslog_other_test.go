//go:build !unix

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dogeunblocker/doge/v4/cfg"
)

func TestSyslogHookUnsupported(t *testing.T) {
	_, err := newLogger(cfg.LoggingConfig{Env: "production", SyslogAddr: "127.0.0.1:514"}, new(bytes.Buffer))
	assert.Error(t, err)
}
