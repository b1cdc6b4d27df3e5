package builder

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Severity labels a log entry.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	}
	return "UNKNOWN"
}

// An Entry is one recorded log message.
type Entry struct {
	Time     time.Time
	Severity Severity
	Origin   string
	Body     string
}

// A Log collects severity-tagged entries so a caller can inspect, after a
// build returns, what happened and why. Entries are also mirrored to the
// standard log package as they are recorded. A Log is safe for use from
// multiple goroutines.
type Log struct {
	mu      sync.Mutex
	origin  string
	entries []Entry
}

// NewLog returns an empty Log whose entries carry the given origin tag.
func NewLog(origin string) *Log {
	return &Log{origin: origin}
}

// Infof records an informational entry.
func (l *Log) Infof(format string, args ...interface{}) {
	l.add(Info, fmt.Sprintf(format, args...))
}

// Warningf records a warning entry.
func (l *Log) Warningf(format string, args ...interface{}) {
	l.add(Warning, fmt.Sprintf(format, args...))
}

// Errorf records an error entry.
func (l *Log) Errorf(format string, args ...interface{}) {
	l.add(Error, fmt.Sprintf(format, args...))
}

func (l *Log) add(sev Severity, body string) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{
		Time:     time.Now(),
		Severity: sev,
		Origin:   l.origin,
		Body:     body,
	})
	l.mu.Unlock()
	log.Printf("%s [%s] %s", l.origin, sev, body)
}

// Entries returns the recorded entries having exactly the given severity,
// in the order they were recorded.
func (l *Log) Entries(sev Severity) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []Entry
	for _, e := range l.entries {
		if e.Severity == sev {
			result = append(result, e)
		}
	}
	return result
}

// All returns every recorded entry in order.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry{}, l.entries...)
}

// HasErrors reports whether any entry was recorded at Error severity.
func (l *Log) HasErrors() bool {
	return len(l.Entries(Error)) > 0
}

// String renders the whole log, one line per entry.
func (l *Log) String() string {
	var sb strings.Builder
	for _, e := range l.All() {
		fmt.Fprintf(&sb, "%s %s [%s] %s\n",
			e.Time.Format(time.RFC3339), e.Origin, e.Severity, e.Body)
	}
	return sb.String()
}
