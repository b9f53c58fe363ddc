package systemd

import "testing"

func TestNotActivated(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")
	if ok, err := Ready(); ok || err != nil {
		t.Fatalf("Ready = %v, %v; want false, nil", ok, err)
	}
	l, err := Listener()
	if l != nil || err != nil {
		t.Fatalf("Listener = %v, %v; want nil, nil", l, err)
	}
}
