package ical

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"echse/internal/instant"
	"echse/internal/stream"
	"echse/internal/task"
)

const ProdID = "-//echse//echsd//EN"

// Reply statuses.
const (
	StatusSuccess = "2.0;Success"
	StatusFailure = "5.1;Service unavailable"
)

// Writer emits calendar documents. Errors are sticky and reported by
// Flush.
type Writer struct {
	w   *bufio.Writer
	err error
	now func() time.Time
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), now: time.Now}
}

func (w *Writer) line(s ...string) {
	if w.err != nil {
		return
	}
	for _, p := range s {
		if _, err := w.w.WriteString(p); err != nil {
			w.err = err
			return
		}
	}
	if err := w.w.WriteByte('\n'); err != nil {
		w.err = err
	}
}

// Begin opens a calendar with the given METHOD.
func (w *Writer) Begin(method string) {
	w.line("BEGIN:VCALENDAR")
	w.line("VERSION:2.0")
	w.line("PRODID:", ProdID)
	w.line("METHOD:", method)
	w.line("CALSCALE:GREGORIAN")
}

// BeginReply opens a reply calendar.
func (w *Writer) BeginReply() {
	w.line("BEGIN:VCALENDAR")
	w.line("METHOD:REPLY")
}

func (w *Writer) End() { w.line("END:VCALENDAR") }

func (w *Writer) stamp() string {
	return instant.FromTime(w.now().UTC()).ICal() + "Z"
}

// Reply writes one reply item.
func (w *Writer) Reply(id string, ok bool) {
	st := StatusFailure
	if ok {
		st = StatusSuccess
	}
	w.line("BEGIN:VEVENT")
	w.line("UID:", id)
	w.line("DTSTAMP:", w.stamp())
	w.line("ATTENDEE:echse")
	w.line("REQUEST-STATUS:", st)
	w.line("END:VEVENT")
}

// Cancel writes a cancellation item.
func (w *Writer) Cancel(id string) {
	w.line("BEGIN:VEVENT")
	w.line("UID:", id)
	w.line("DTSTAMP:", w.stamp())
	w.line("STATUS:CANCELLED")
	w.line("END:VEVENT")
}

// Task writes t with its schedule taken from s (typically a clone of the
// live stream narrowed to what is still due). A nil s falls back to the
// task's declared schedule.
func (w *Writer) Task(t *task.Task, s stream.Stream) {
	w.line("BEGIN:VEVENT")
	w.line("UID:", t.ID)
	w.line("DTSTAMP:", w.stamp())
	if !t.Proto.From.IsNull() {
		w.line(dateProp("DTSTART", t.Proto.From))
	}
	if !t.Proto.Till.IsNull() {
		w.line(dateProp("DTEND", t.Proto.Till))
	}
	if s == nil {
		s = t.Stream()
	}
	if s != nil {
		seen := map[string]bool{}
		anchor := t.Proto.From.ICal()
		s.Serialize(stream.SinkFunc(func(name, value string) {
			if name == "RDATE" && value == anchor {
				return
			}
			l := name + ":" + value
			if t.Proto.From.IsAllDay() && (name == "RDATE" || name == "EXDATE") {
				l = name + ";VALUE=DATE:" + value
			}
			// rules sharing the same exceptions repeat them
			if seen[l] {
				return
			}
			seen[l] = true
			w.line(l)
		}))
	}
	if t.Command != "" {
		w.line("SUMMARY:", escape(t.Command))
	}
	if t.RunAs.Dir != "" {
		w.line("LOCATION:", escape(t.RunAs.Dir))
	}
	if t.Organizer != "" {
		w.line("ORGANIZER:mailto:", t.Organizer)
	}
	for _, a := range t.Attendees {
		w.line("ATTENDEE:mailto:", a)
	}
	if t.Owner != task.NoID {
		w.line("X-ECHS-OWNER:", strconv.Itoa(t.Owner))
	}
	if t.RunAs.UID != task.NoID {
		w.line("X-ECHS-RUN-AS-UID:", strconv.Itoa(t.RunAs.UID))
	}
	if t.RunAs.GID != task.NoID {
		w.line("X-ECHS-RUN-AS-GID:", strconv.Itoa(t.RunAs.GID))
	}
	if t.RunAs.Shell != "" {
		w.line("X-ECHS-SHELL:", t.RunAs.Shell)
	}
	if t.MaxSimul > 1 {
		w.line("X-ECHS-MAX-SIMUL:", strconv.Itoa(t.MaxSimul))
	}
	if t.MailOut {
		w.line("X-ECHS-MAIL-OUT:1")
	}
	if t.MailErr {
		w.line("X-ECHS-MAIL-ERR:1")
	}
	if t.Stdin != "" {
		w.line("X-ECHS-IFILE:", t.Stdin)
	}
	if t.Stdout != "" {
		w.line("X-ECHS-OFILE:", t.Stdout)
	}
	if t.Stderr != "" {
		w.line("X-ECHS-EFILE:", t.Stderr)
	}
	for _, e := range t.Env {
		w.line("X-ECHS-SETENV:", e)
	}
	w.line("END:VEVENT")
}

func dateProp(name string, i instant.Instant) string {
	if i.IsAllDay() {
		return name + ";VALUE=DATE:" + i.ICal()
	}
	return name + ":" + i.ICal()
}

var escaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ",", `\,`, ";", `\;`)

func escape(s string) string { return escaper.Replace(s) }

// Flush writes buffered output and returns the first error seen.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}
