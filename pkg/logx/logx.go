// Package logx provides structured logging with component prefixes and domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

type Logger struct {
	component string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // Which domains to enable debug for (nil = all)
}

// LogEntry is a captured log line kept in the recent-entries ring.
type LogEntry struct {
	Timestamp string    `json:"timestamp"`
	Component string    `json:"component"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Domain    string    `json:"domain,omitempty"`
	at        time.Time // unrounded, for since filters
}

// Ring keeps the last N log entries in a fixed slice.
type Ring struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRing returns a ring holding at most size entries.
func NewRing(size int) *Ring {
	return &Ring{entries: make([]LogEntry, size)}
}

type sessionKey struct{}

//nolint:gochecknoglobals // process-wide logging state, same as the standard log package
var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	logWriter     io.Writer
	logWriterLock sync.Mutex

	recent = NewRing(1000)
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// DEBUG_DOMAINS=contextbuf,archive,tokenizer
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(domains []string) map[string]bool {
	out := make(map[string]bool, len(domains))
	for _, domain := range domains {
		if d := strings.TrimSpace(domain); d != "" {
			out[d] = true
		}
	}
	return out
}

func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetOutput redirects all loggers. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	logWriterLock.Lock()
	logWriter = w
	logWriterLock.Unlock()
}

func writeLine(line string) {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	w := logWriter
	if w == nil {
		w = os.Stderr
	}
	_, _ = fmt.Fprintln(w, line)
}

// SetDebug enables or disables debug logging globally.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Enabled = enabled
}

// SetDebugDomains configures which domains should have debug logging enabled.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil // Enable all domains
		return
	}
	debugConfig.Domains = parseDomains(domains)
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// Add stores e, overwriting the oldest entry once the ring is full.
func (r *Ring) Add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return
	}
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the stored entries oldest first. An empty component
// matches every component and a zero since matches every time.
func (r *Ring) Entries(component string, since time.Time) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := r.entries[:r.next]
	if r.full {
		ordered = append(append([]LogEntry{}, r.entries[r.next:]...), r.entries[:r.next]...)
	}
	out := make([]LogEntry, 0, len(ordered))
	for _, e := range ordered {
		if component != "" && !strings.EqualFold(e.Component, component) {
			continue
		}
		if !since.IsZero() && e.at.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// GetRecentLogEntries returns recent log entries captured by any logger.
func GetRecentLogEntries(component string, since time.Time) []LogEntry {
	return recent.Entries(component, since)
}

func (l *Logger) log(level Level, domain, format string, args ...any) {
	now := time.Now().UTC()
	timestamp := now.Format(timestampFormat)
	message := fmt.Sprintf(format, args...)
	if domain != "" {
		writeLine(fmt.Sprintf("[%s] [%s] %s: [%s] %s", timestamp, l.component, level, domain, message))
	} else {
		writeLine(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, level, message))
	}

	recent.Add(LogEntry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
		Domain:    domain,
		at:        now,
	})
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabledForDomain(l.component) {
		return
	}
	l.log(LevelDebug, "", format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, "", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, "", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, "", format, args...)
}

func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for a sub-component, e.g. "contextbuf/archiver".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

// WithSession tags ctx so that Debug lines carry the session identifier.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFrom returns the session identifier stored by WithSession.
func SessionFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}

// Debug logs a debug message with context and domain filtering.
//
//	logx.Debug(ctx, "eviction", "tier %s exhausted, freed=%d", tier, freed)
//
// Environment variable control:
//
//	DEBUG=1                              # all domains
//	DEBUG=1 DEBUG_DOMAINS=eviction       # one domain
//	DEBUG=1 DEBUG_DOMAINS=eviction,archive
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	component := SessionFrom(ctx)
	if component == "" {
		component = "unknown"
	}
	NewLogger(component).log(LevelDebug, domain, format, args...)
}
