package lifecycle

import (
	"os"
	"os/signal"
	"syscall"
)

// syscall.SIGTERM is delivered for console close and shutdown events.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func notifyTermination(c chan<- os.Signal) (stop func()) {
	signal.Notify(c, terminationSignals...)
	return func() { signal.Stop(c) }
}

func signalName(sig os.Signal) string {
	switch sig {
	case os.Interrupt:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return sig.String()
}
