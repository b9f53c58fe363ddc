// Package ical reads and writes the calendar documents spoken on the
// control socket and stored in queue files.
package ical

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"echse/internal/instant"
	"echse/internal/rrule"
	"echse/internal/task"
)

var (
	ErrSyntax  = errors.New("ical: malformed document")
	ErrTooLong = errors.New("ical: line too long")
	// ErrEndOfCalendar marks an END:VCALENDAR when Decoder.ReportEnd is set.
	ErrEndOfCalendar = errors.New("ical: end of calendar")
	maxLineSize      = 64 << 10
)

// Verb is what an instruction asks for.
type Verb uint8

const (
	VerbUnknown Verb = iota
	VerbSchedule
	VerbCancel
	VerbReply
)

func (v Verb) String() string {
	switch v {
	case VerbSchedule:
		return "schedule"
	case VerbCancel:
		return "cancel"
	case VerbReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Instruction is one VEVENT together with the intent of its calendar.
type Instruction struct {
	Verb   Verb
	ID     string
	Task   *task.Task
	Status string
}

// OK reports whether a reply carries a 2.x status.
func (i Instruction) OK() bool { return strings.HasPrefix(i.Status, "2.") }

// Decoder pulls instructions from a stream of calendar documents.
type Decoder struct {
	// ReportEnd makes Next return ErrEndOfCalendar as each calendar
	// closes, so a peer that keeps the stream open can be answered.
	ReportEnd bool

	r      *bufio.Reader
	look   string
	hasLk  bool
	eof    bool
	inCal  bool
	method string
	line   int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Line returns the number of physical lines consumed so far.
func (d *Decoder) Line() int { return d.line }

func (d *Decoder) raw() (string, error) {
	if d.hasLk {
		d.hasLk = false
		return d.look, nil
	}
	if d.eof {
		return "", io.EOF
	}
	var b strings.Builder
	for {
		chunk, isPrefix, err := d.r.ReadLine()
		if err != nil {
			if err == io.EOF && b.Len() > 0 {
				d.eof = true
				break
			}
			return "", err
		}
		b.Write(chunk)
		if b.Len() > maxLineSize {
			return "", ErrTooLong
		}
		if !isPrefix {
			break
		}
	}
	d.line++
	return b.String(), nil
}

// logical returns the next unfolded content line. END lines are taken
// as they are: waiting for a continuation there would stall a peer that
// sent its last line and now waits for replies.
func (d *Decoder) logical() (string, error) {
	l, err := d.raw()
	if err != nil {
		return "", err
	}
	if isEnd(l) {
		return l, nil
	}
	for {
		n, err := d.raw()
		if err != nil {
			if err == io.EOF {
				return l, nil
			}
			return "", err
		}
		if n != "" && (n[0] == ' ' || n[0] == '\t') {
			l += n[1:]
			if len(l) > maxLineSize {
				return "", ErrTooLong
			}
			continue
		}
		d.look, d.hasLk = n, true
		return l, nil
	}
}

func isEnd(l string) bool {
	l = strings.TrimSpace(l)
	return strings.EqualFold(l, "END:VEVENT") || strings.EqualFold(l, "END:VCALENDAR")
}

type prop struct {
	name   string
	params map[string]string
	value  string
}

func parseProp(l string) (prop, bool) {
	colon := -1
	quoted := false
	for i := 0; i < len(l); i++ {
		switch l[i] {
		case '"':
			quoted = !quoted
		case ':':
			if !quoted {
				colon = i
			}
		}
		if colon >= 0 {
			break
		}
	}
	if colon <= 0 {
		return prop{}, false
	}
	head, val := l[:colon], l[colon+1:]
	parts := strings.Split(head, ";")
	p := prop{name: strings.ToUpper(strings.TrimSpace(parts[0])), value: val}
	for _, kv := range parts[1:] {
		k, v, _ := strings.Cut(kv, "=")
		if p.params == nil {
			p.params = make(map[string]string)
		}
		p.params[strings.ToUpper(k)] = strings.Trim(v, `"`)
	}
	return p, p.name != ""
}

// Next returns the next instruction, or io.EOF. A VEVENT cut off by the
// end of input is discarded.
func (d *Decoder) Next() (Instruction, error) {
	var (
		cur     *Instruction
		nested  int
		badProp error
	)
	for {
		l, err := d.logical()
		if err != nil {
			if err == io.EOF {
				return Instruction{}, io.EOF
			}
			return Instruction{}, err
		}
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		p, ok := parseProp(l)
		if !ok {
			return Instruction{}, fmt.Errorf("%w: line %d", ErrSyntax, d.line)
		}
		val := strings.ToUpper(strings.TrimSpace(p.value))

		if !d.inCal {
			if p.name != "BEGIN" || val != "VCALENDAR" {
				return Instruction{}, fmt.Errorf("%w: line %d: expected BEGIN:VCALENDAR", ErrSyntax, d.line)
			}
			d.inCal, d.method = true, ""
			continue
		}
		if cur == nil {
			switch {
			case p.name == "METHOD":
				d.method = val
			case p.name == "END" && val == "VCALENDAR":
				d.inCal = false
				if d.ReportEnd {
					return Instruction{}, ErrEndOfCalendar
				}
			case p.name == "BEGIN" && val == "VEVENT":
				cur = &Instruction{Verb: d.verb(), Task: task.New("")}
			case p.name == "BEGIN":
				nested++
			case p.name == "END" && nested > 0:
				nested--
			}
			continue
		}
		switch {
		case p.name == "BEGIN":
			nested++
			continue
		case p.name == "END" && val != "VEVENT":
			if nested > 0 {
				nested--
			}
			continue
		case p.name == "END":
			if badProp != nil {
				return Instruction{}, badProp
			}
			if cur.ID == "" {
				cur.ID = uuid.NewString()
			}
			cur.Task.ID = cur.ID
			if cur.Verb != VerbSchedule {
				cur.Task = nil
			}
			return *cur, nil
		case nested > 0:
			continue
		}
		if err := apply(cur, p); err != nil && badProp == nil {
			badProp = fmt.Errorf("%w: line %d: %v", ErrSyntax, d.line, err)
		}
	}
}

func (d *Decoder) verb() Verb {
	switch d.method {
	case "CANCEL":
		return VerbCancel
	case "REPLY":
		return VerbReply
	default:
		return VerbSchedule
	}
}

func apply(in *Instruction, p prop) error {
	t := in.Task
	v := p.value
	switch p.name {
	case "UID":
		in.ID = strings.TrimSpace(v)
	case "STATUS":
		if strings.EqualFold(strings.TrimSpace(v), "CANCELLED") && in.Verb == VerbSchedule {
			in.Verb = VerbCancel
		}
	case "REQUEST-STATUS":
		in.Status, _, _ = strings.Cut(v, ";")
	case "DTSTART", "DTEND":
		i, err := instant.Parse(v)
		if err != nil {
			return err
		}
		if p.name == "DTSTART" {
			t.Proto.From = i
		} else {
			t.Proto.Till = i
		}
	case "RDATE", "EXDATE":
		for _, f := range strings.Split(v, ",") {
			i, err := instant.Parse(f)
			if err != nil {
				return err
			}
			if p.name == "RDATE" {
				t.RDates = append(t.RDates, i)
			} else {
				t.ExDates = append(t.ExDates, i)
			}
		}
	case "RRULE", "EXRULE":
		s, err := rrule.Parse(v)
		if err != nil {
			return err
		}
		if p.name == "RRULE" {
			t.Rules = append(t.Rules, s)
		} else {
			t.ExRules = append(t.ExRules, s)
		}
	case "SUMMARY":
		t.Command = unescape(v)
	case "LOCATION":
		t.RunAs.Dir = unescape(v)
	case "ORGANIZER":
		t.Organizer = mailto(v)
	case "ATTENDEE":
		t.Attendees = append(t.Attendees, mailto(v))
	case "X-ECHS-SHELL":
		t.RunAs.Shell = v
	case "X-ECHS-RUN-AS-UID":
		return atoi(v, &t.RunAs.UID)
	case "X-ECHS-RUN-AS-GID":
		return atoi(v, &t.RunAs.GID)
	case "X-ECHS-OWNER":
		return atoi(v, &t.Owner)
	case "X-ECHS-MAX-SIMUL":
		if err := atoi(v, &t.MaxSimul); err != nil {
			return err
		}
		if t.MaxSimul < 1 {
			t.MaxSimul = 1
		}
	case "X-ECHS-MAIL-OUT":
		t.MailOut = truthy(v)
	case "X-ECHS-MAIL-ERR":
		t.MailErr = truthy(v)
	case "X-ECHS-IFILE":
		t.Stdin = v
	case "X-ECHS-OFILE":
		t.Stdout = v
	case "X-ECHS-EFILE":
		t.Stderr = v
	case "X-ECHS-SETENV":
		if !strings.Contains(v, "=") {
			return fmt.Errorf("X-ECHS-SETENV without '=': %q", v)
		}
		t.Env = append(t.Env, v)
	}
	return nil
}

func atoi(s string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func mailto(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		return s[7:]
	}
	return s
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescape(s string) string { return unescaper.Replace(s) }
