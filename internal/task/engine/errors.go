package engine

import "errors"

var (
	ErrStopped  = errors.New("task engine stopped")
	ErrNoHelper = errors.New("task engine: helper not found")
	ErrNoArgv   = errors.New("task engine: empty command")
)
