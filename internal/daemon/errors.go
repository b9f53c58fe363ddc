package daemon

import "errors"

var (
	ErrStopped     = errors.New("daemon: loop stopped")
	ErrUnsupported = errors.New("daemon: unsupported directive")
)
