package control

import "errors"

var (
	ErrTooManyConns = errors.New("control: connection slots exhausted")
	ErrRateLimited  = errors.New("control: accept rate exceeded")
	ErrBadRequest   = errors.New("control: malformed request")
	ErrNoPeer       = errors.New("control: peer credentials unavailable")
)
