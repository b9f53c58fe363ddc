//go:build linux

package control

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"echse/internal/task/scheduler"
)

// PeerCreds reads the uid and gid of the process on the other end of a
// unix socket.
func PeerCreds(c net.Conn) (scheduler.Peer, error) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return scheduler.Peer{}, fmt.Errorf("%w: %T", ErrNoPeer, c)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return scheduler.Peer{}, err
	}
	var cred *unix.Ucred
	var serr error
	if err := raw.Control(func(fd uintptr) {
		cred, serr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return scheduler.Peer{}, err
	}
	if serr != nil {
		return scheduler.Peer{}, fmt.Errorf("%w: %v", ErrNoPeer, serr)
	}
	return scheduler.Peer{UID: int(cred.Uid), GID: int(cred.Gid)}, nil
}
