package instant

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrSyntax = errors.New("instant: invalid syntax")

// Parse reads an instant in extended (2006-01-02[T15:04:05[.000]]) or
// basic (20060102[T150405]) notation. A space may stand in for the T and
// a trailing Z is accepted and ignored.
func Parse(s string) (Instant, error) {
	in := s
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "Z")

	var (
		i   Instant
		ok  bool
		ext bool
	)
	switch {
	case len(s) >= 10 && s[4] == '-' && s[7] == '-':
		ext = true
		i.Year, ok = num16(s[0:4])
		if ok {
			i.Month, ok = num8(s[5:7])
		}
		if ok {
			i.Day, ok = num8(s[8:10])
		}
		s = s[10:]
	case len(s) >= 8:
		i.Year, ok = num16(s[0:4])
		if ok {
			i.Month, ok = num8(s[4:6])
		}
		if ok {
			i.Day, ok = num8(s[6:8])
		}
		s = s[8:]
	}
	if !ok {
		return Instant{}, fmt.Errorf("%w: %q", ErrSyntax, in)
	}

	if s == "" {
		i.Hour = AllDay
	} else {
		if s[0] != 'T' && s[0] != ' ' {
			return Instant{}, fmt.Errorf("%w: %q", ErrSyntax, in)
		}
		s = s[1:]
		// basic date may still carry an extended time and vice versa
		if len(s) >= 8 && s[2] == ':' && s[5] == ':' {
			ext = true
		} else if len(s) >= 6 && isDigits(s[:6]) {
			ext = false
		} else {
			return Instant{}, fmt.Errorf("%w: %q", ErrSyntax, in)
		}
		var n int
		if ext {
			i.Hour, ok = num8(s[0:2])
			if ok {
				i.Minute, ok = num8(s[3:5])
			}
			if ok {
				i.Second, ok = num8(s[6:8])
			}
			n = 8
		} else {
			i.Hour, ok = num8(s[0:2])
			if ok {
				i.Minute, ok = num8(s[2:4])
			}
			if ok {
				i.Second, ok = num8(s[4:6])
			}
			n = 6
		}
		if !ok {
			return Instant{}, fmt.Errorf("%w: %q", ErrSyntax, in)
		}
		s = s[n:]
		i.Msec = AllSec
		if s != "" {
			if s[0] != '.' || len(s) < 2 || !isDigits(s[1:]) {
				return Instant{}, fmt.Errorf("%w: %q", ErrSyntax, in)
			}
			frac := s[1:]
			if len(frac) > 3 {
				frac = frac[:3]
			}
			for len(frac) < 3 {
				frac += "0"
			}
			ms, _ := strconv.Atoi(frac)
			i.Msec = uint16(ms)
		}
	}
	if !i.Valid() {
		return Instant{}, fmt.Errorf("%w: %q out of range", ErrSyntax, in)
	}
	return i, nil
}

func isDigits(s string) bool {
	for k := 0; k < len(s); k++ {
		if s[k] < '0' || s[k] > '9' {
			return false
		}
	}
	return s != ""
}

func num8(s string) (uint8, bool) {
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return uint8(n), err == nil
}

func num16(s string) (uint16, bool) {
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return uint16(n), err == nil
}

// String formats i in extended notation. The null instant prints empty.
func (i Instant) String() string {
	if i.IsNull() {
		return ""
	}
	if i.IsAllDay() {
		return fmt.Sprintf("%04d-%02d-%02d", i.Year, i.Month, i.Day)
	}
	if i.Msec == AllSec {
		return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d",
			i.Year, i.Month, i.Day, i.Hour, i.Minute, i.Second)
	}
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03d",
		i.Year, i.Month, i.Day, i.Hour, i.Minute, i.Second, i.Msec)
}

// ICal formats i in basic notation as used by calendar properties.
// Sub-second parts are dropped.
func (i Instant) ICal() string {
	if i.IsNull() {
		return ""
	}
	if i.IsAllDay() {
		return fmt.Sprintf("%04d%02d%02d", i.Year, i.Month, i.Day)
	}
	return fmt.Sprintf("%04d%02d%02dT%02d%02d%02d",
		i.Year, i.Month, i.Day, i.Hour, i.Minute, i.Second)
}

func (i Instant) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Instant) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*i = Instant{}
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
