package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"echse/internal/task"
)

// HelperName is the executable that runs a single occurrence.
const HelperName = "echsx"

// Args builds the helper command line for one occurrence of t.
func Args(t *task.Task, c task.Creds, noRun bool) []string {
	var a []string
	if noRun {
		a = append(a, "-n")
	}
	a = append(a,
		"-c", t.Command,
		"--uid", strconv.Itoa(c.UID),
		"--gid", strconv.Itoa(c.GID),
		"--cwd", c.Dir,
		"--shell", c.Shell,
		"--mailfrom", t.MailFrom(),
	)
	if t.MailOut {
		a = append(a, "--mailout")
	}
	if t.MailErr {
		a = append(a, "--mailerr")
	}
	if t.Stdin != "" {
		a = append(a, "--stdin", t.Stdin)
	}
	if t.Stdout != "" {
		a = append(a, "--stdout", t.Stdout)
	}
	if t.Stderr != "" {
		a = append(a, "--stderr", t.Stderr)
	}
	if len(t.Attendees) > 0 {
		a = append(a, "--mailto")
		a = append(a, t.Attendees...)
	}
	return a
}

// Env is the child environment: a minimal base plus the task's own
// assignments, which win on conflict.
func Env(t *task.Task, c task.Creds) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + c.Dir,
		"SHELL=" + c.Shell,
	}
	return append(env, t.Env...)
}

// LocateHelper looks for name next to the running executable, then on
// $PATH.
func LocateHelper(name string) (string, error) {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoHelper, name, err)
	}
	return p, nil
}
