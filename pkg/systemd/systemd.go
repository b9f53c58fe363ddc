// Package systemd is the daemon's side of the service manager protocol:
// readiness notification and socket activation.
package systemd

import (
	"net"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells the service manager that startup finished. It reports
// false when not running under one.
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping announces an orderly shutdown.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status publishes a one-line status text.
func Status(msg string) (bool, error) { return daemon.SdNotify(false, "STATUS="+msg) }

// Listener returns the first socket passed by the service manager, or
// nil when the process was not socket activated.
func Listener() (net.Listener, error) {
	ls, err := activation.Listeners()
	if err != nil {
		return nil, err
	}
	for _, l := range ls {
		if l != nil {
			return l, nil
		}
	}
	return nil, nil
}
