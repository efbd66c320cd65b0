package static

import "errors"

// ErrNoRoot is returned by New when no root filesystem is given.
var ErrNoRoot = errors.New("static: no root filesystem")
