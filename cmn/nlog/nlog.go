// Package nlog is the structured logger shared by every peerlink package:
// brokers, client sessions, and the server runtime shell all log through it
// instead of the stdlib "log" package directly.
package nlog

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) tag() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	mu           sync.Mutex
	out          io.Writer = os.Stderr
	title        string
	toStderr     bool
	alsoToStderr bool
)

// InitFlags registers the same two boolean switches the teacher's logger
// exposes, so server binaries can share one flag.FlagSet for logging knobs.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", true, "log to standard error instead of a file")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as the file")
}

// SetOutput redirects the logger to w. While -logtostderr is set (its
// default once InitFlags has run), lines still go to os.Stderr. Safe to
// call concurrently with logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// SetTitle prefixes every line with a short process tag, e.g. "peerlinkerd".
func SetTitle(s string) { title = s }

func log(sev severity, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	w := out
	if toStderr {
		w = os.Stderr
	}
	msg := format
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	if title != "" {
		fmt.Fprintf(w, "%s %s [%s] %s\n", sev.tag(), ts, title, msg)
	} else {
		fmt.Fprintf(w, "%s %s %s\n", sev.tag(), ts, msg)
	}
	if alsoToStderr && w != os.Stderr {
		fmt.Fprintf(os.Stderr, "%s %s %s\n", sev.tag(), ts, msg)
	}
}

func Infoln(args ...any)                  { log(sevInfo, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Warningln(args ...any)               { log(sevWarn, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Errorln(args ...any)                 { log(sevErr, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }

// Flush is a no-op placeholder kept for symmetry with buffered loggers;
// peerlink writes every line immediately, so there is nothing to drain.
func Flush() {}
