// Package identity resolves owners to default run-as credentials.
package identity

import (
	"bufio"
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"echse/internal/task"
)

var ErrNoCredentials = errors.New("identity: cannot resolve credentials")

const DefaultShell = "/bin/sh"

// Resolver maps a uid to its default credentials.
type Resolver interface {
	Lookup(uid int) (task.Creds, error)
}

// System consults the OS user database.
type System struct {
	// Fs and Passwd locate the passwd file scanned for login shells.
	Fs     afero.Fs
	Passwd string
}

func NewSystem() *System {
	return &System{Fs: afero.NewOsFs(), Passwd: "/etc/passwd"}
}

func (s *System) Lookup(uid int) (task.Creds, error) {
	if uid < 0 {
		return task.Creds{}, fmt.Errorf("%w: uid %d", ErrNoCredentials, uid)
	}
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return task.Creds{}, fmt.Errorf("%w: uid %d: %v", ErrNoCredentials, uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return task.Creds{}, fmt.Errorf("%w: uid %d: gid %q", ErrNoCredentials, uid, u.Gid)
	}
	return task.Creds{UID: uid, GID: gid, Dir: u.HomeDir, Shell: s.shell(uid)}, nil
}

func (s *System) shell(uid int) string {
	if s.Fs == nil {
		return DefaultShell
	}
	f, err := s.Fs.Open(s.Passwd)
	if err != nil {
		return DefaultShell
	}
	defer f.Close()
	sh, ok := ShellFromPasswd(bufio.NewScanner(f), uid)
	if !ok {
		return DefaultShell
	}
	return sh
}

// ShellFromPasswd scans passwd(5) lines for the login shell of uid.
func ShellFromPasswd(sc *bufio.Scanner, uid int) (string, bool) {
	want := strconv.Itoa(uid)
	for sc.Scan() {
		l := sc.Text()
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		f := strings.Split(l, ":")
		if len(f) < 7 || f[2] != want {
			continue
		}
		if f[6] == "" {
			return "", false
		}
		return f[6], true
	}
	return "", false
}

// Static is a fixed uid table, for tests and dry runs.
type Static map[int]task.Creds

func (s Static) Lookup(uid int) (task.Creds, error) {
	c, ok := s[uid]
	if !ok {
		return task.Creds{}, fmt.Errorf("%w: uid %d", ErrNoCredentials, uid)
	}
	return c, nil
}
