package control

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Route names what a query asks for.
type Route uint8

const (
	RouteUnknown Route = iota
	RouteQueue         // persisted queue file
	RouteSched         // live schedule
)

func (r Route) String() string {
	switch r {
	case RouteQueue:
		return "queue"
	case RouteSched:
		return "sched"
	default:
		return "unknown"
	}
}

// Query is a parsed GET request.
type Query struct {
	Route Route
	// UID is the user named by a /u/<uid>/ prefix, -1 when absent.
	UID int
	IDs []string
}

// Status lines.
const (
	StatusOK       = "HTTP/1.1 200 Ok\r\n\r\n"
	StatusForbid   = "HTTP/1.1 403 Forbidden\r\n\r\n"
	StatusNotFound = "HTTP/1.1 404 Not Found\r\n\r\n"
	StatusError    = "HTTP/1.1 500 Internal Server Error\r\n\r\n"
)

// ParseQuery parses a request line such as
// "GET /u/1000/sched?tuid=a&tuid=b HTTP/1.1". An unknown path yields
// RouteUnknown without error; a line that is not a request at all is
// ErrBadRequest.
func ParseQuery(line string) (Query, error) {
	line = strings.TrimRight(line, "\r\n")
	f := strings.Fields(line)
	if len(f) != 3 || f[0] != "GET" || !strings.HasPrefix(f[2], "HTTP/") || !strings.HasPrefix(f[1], "/") {
		return Query{}, fmt.Errorf("%w: %q", ErrBadRequest, line)
	}
	q := Query{UID: -1}
	path, raw, _ := strings.Cut(f[1], "?")
	if raw != "" {
		vals, err := url.ParseQuery(raw)
		if err != nil {
			return Query{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		q.IDs = vals["tuid"]
	}
	if rest, ok := strings.CutPrefix(path, "/u/"); ok {
		num, tail, ok := strings.Cut(rest, "/")
		uid, err := strconv.Atoi(num)
		if !ok || err != nil || uid < 0 {
			return q, nil
		}
		q.UID = uid
		path = "/" + tail
	}
	switch path {
	case "/queue":
		q.Route = RouteQueue
	case "/sched":
		q.Route = RouteSched
	}
	return q, nil
}

// String renders q as a request line without the trailing CRLF.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("GET /")
	if q.UID >= 0 {
		b.WriteString("u/")
		b.WriteString(strconv.Itoa(q.UID))
		b.WriteString("/")
	}
	b.WriteString(q.Route.String())
	for i, id := range q.IDs {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString("tuid=")
		b.WriteString(url.QueryEscape(id))
	}
	b.WriteString(" HTTP/1.1")
	return b.String()
}
