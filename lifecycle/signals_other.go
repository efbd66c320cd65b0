//go:build !(aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris || zos || windows)

package lifecycle

import (
	"os"
	"os/signal"
)

var terminationSignals = []os.Signal{os.Interrupt}

func notifyTermination(c chan<- os.Signal) (stop func()) {
	signal.Notify(c, terminationSignals...)
	return func() { signal.Stop(c) }
}

func signalName(sig os.Signal) string {
	if sig == os.Interrupt {
		return "SIGINT"
	}
	return sig.String()
}
