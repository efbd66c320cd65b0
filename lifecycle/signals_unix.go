//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris || zos

package lifecycle

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

var terminationSignals = []os.Signal{unix.SIGINT, unix.SIGTERM}

func notifyTermination(c chan<- os.Signal) (stop func()) {
	signal.Notify(c, terminationSignals...)
	return func() { signal.Stop(c) }
}

// signalName returns the conventional name of sig, such as SIGTERM.
func signalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
