package identity

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const passwd = `# local users
root:x:0:0:root:/root:/bin/bash
daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin
alice:x:1000:1000:Alice:/home/alice:/bin/zsh
bob:x:1001:1001:Bob:/home/bob:
`

func TestShellFromPasswd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		uid  int
		want string
		ok   bool
	}{
		{0, "/bin/bash", true},
		{1000, "/bin/zsh", true},
		{1001, "", false},
		{4242, "", false},
	}
	for _, tt := range tests {
		got, ok := ShellFromPasswd(bufio.NewScanner(strings.NewReader(passwd)), tt.uid)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ShellFromPasswd(%d) = %q,%v, want %q,%v", tt.uid, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSystemShellFallback(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/passwd", []byte(passwd), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	s := &System{Fs: fs, Passwd: "/etc/passwd"}
	if got := s.shell(1000); got != "/bin/zsh" {
		t.Fatalf("shell(1000) = %q", got)
	}
	if got := s.shell(1001); got != DefaultShell {
		t.Fatalf("shell(1001) = %q, want %q", got, DefaultShell)
	}
	s.Passwd = "/missing"
	if got := s.shell(0); got != DefaultShell {
		t.Fatalf("shell without passwd = %q", got)
	}
}

func TestLookupRejectsNegative(t *testing.T) {
	t.Parallel()
	if _, err := NewSystem().Lookup(-1); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("Lookup(-1) err = %v", err)
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()
	s := Static{1000: {UID: 1000, GID: 100, Dir: "/home/a", Shell: "/bin/sh"}}
	if c, err := s.Lookup(1000); err != nil || c.GID != 100 {
		t.Fatalf("Lookup(1000) = %+v, %v", c, err)
	}
	if _, err := s.Lookup(7); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("Lookup(7) err = %v", err)
	}
	var _ Resolver = s
}
