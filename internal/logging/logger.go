// Package logging provides the formatted, optionally colored logger used across
// mcp-toolrouter.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Logger writes human readable log lines with optional color and JSON-RPC
// traffic dumps. A nil *Logger is valid and discards everything.
type Logger struct {
	mu          sync.Mutex
	verbose     bool
	useColor    bool
	jsonRPCMode bool
	writer      io.Writer

	info    *color.Color
	success *color.Color
	warning *color.Color
	failure *color.Color
	debug   *color.Color
	traffic *color.Color
}

// NewLogger creates a logger writing to stderr. stdout is left untouched so
// the stdio MCP transport can own it.
func NewLogger(verbose, useColor, jsonRPCMode bool) *Logger {
	return NewLoggerWithWriter(verbose, useColor, jsonRPCMode, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(verbose, useColor, jsonRPCMode bool, w io.Writer) *Logger {
	l := &Logger{
		verbose:     verbose,
		useColor:    useColor,
		jsonRPCMode: jsonRPCMode,
		writer:      w,
		info:        color.New(color.FgCyan),
		success:     color.New(color.FgGreen),
		warning:     color.New(color.FgYellow),
		failure:     color.New(color.FgRed),
		debug:       color.New(color.FgHiBlack),
		traffic:     color.New(color.FgMagenta),
	}
	for _, c := range []*color.Color{l.info, l.success, l.warning, l.failure, l.debug, l.traffic} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return l
}

// SetVerbose toggles verbose output.
func (l *Logger) SetVerbose(verbose bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// Verbose reports whether verbose output is enabled.
func (l *Logger) Verbose() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verbose
}

// SetWriter redirects output.
func (l *Logger) SetWriter(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

func (l *Logger) write(c *color.Color, prefix, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("15:04:05.000")
	_, _ = fmt.Fprintf(l.writer, "%s %s\n", ts, c.Sprintf("%s %s", prefix, msg))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.write(l.info, "[INFO]", format, args...)
}

// Success logs a success message.
func (l *Logger) Success(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.write(l.success, "[OK]", format, args...)
}

// Warning logs a warning.
func (l *Logger) Warning(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.write(l.warning, "[WARN]", format, args...)
}

// Error logs an error.
func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.write(l.failure, "[ERROR]", format, args...)
}

// Debug logs only in verbose mode.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.Verbose() {
		return
	}
	l.write(l.debug, "[DEBUG]", format, args...)
}

// InfoVerbose logs an informational message only in verbose mode.
func (l *Logger) InfoVerbose(format string, args ...interface{}) {
	if !l.Verbose() {
		return
	}
	l.write(l.info, "[INFO]", format, args...)
}

// WarningVerbose logs a warning only in verbose mode.
func (l *Logger) WarningVerbose(format string, args ...interface{}) {
	if !l.Verbose() {
		return
	}
	l.write(l.warning, "[WARN]", format, args...)
}

// Request logs an outgoing request. The payload is dumped only in JSON-RPC mode.
func (l *Logger) Request(method string, params interface{}) {
	l.logTraffic("→", method, params)
}

// Response logs an incoming response. The payload is dumped only in JSON-RPC mode.
func (l *Logger) Response(method string, result interface{}) {
	l.logTraffic("←", method, result)
}

func (l *Logger) logTraffic(arrow, method string, payload interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	jsonRPC := l.jsonRPCMode
	verbose := l.verbose
	l.mu.Unlock()

	switch {
	case jsonRPC:
		l.write(l.traffic, arrow, "%s\n%s", method, Redact(PrettyJSON(payload)))
	case verbose:
		l.write(l.traffic, arrow, "%s", method)
	}
}

// PrettyJSON pretty-prints v for logging.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)

// Redact masks bearer credentials in free text.
func Redact(s string) string {
	return bearerPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
