package lifecycle

import "errors"

// ErrNotStarted is returned by Run when Start has not bound a listener.
var ErrNotStarted = errors.New("lifecycle: Run called before Start")
