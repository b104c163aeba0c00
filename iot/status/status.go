/*Package status provides sinks which present a device's connection state and telemetry

A Sink is selected once at startup, see New. The console sink writes prefixed lines
like

	[STATUS] connected
	[TELEMETRY] {"temperature":21.5}

while the logger sink forwards everything to logrus.
*/
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink presents connection status and telemetry
type Sink interface {
	Begin()
	SetStatus(status string)
	ShowTelemetry(payload string)
	LogInfo(msg string)
	LogError(msg string)
}

// Kind selects a sink implementation
type Kind string

// the supported sinks
const (
	KindConsole Kind = "console"
	KindLogger  Kind = "logger"
)

// New returns the sink of the given kind. Console sinks write to w.
func New(kind Kind, w io.Writer) (Sink, error) {
	switch kind {
	case KindConsole, "":
		return NewConsole(w, ""), nil
	case KindLogger:
		return NewLogger(logrus.NewEntry(logrus.StandardLogger())), nil
	}
	return nil, fmt.Errorf("unknown status sink %q", kind)
}

// Console writes one prefixed line per event
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewConsole returns a console sink. A non-empty prefix is put in front of every tag,
// e.g. "PANEL" gives "[PANEL STATUS] ...".
func NewConsole(w io.Writer, prefix string) *Console {
	return &Console{w: w, prefix: prefix}
}

func (c *Console) line(tag, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefix != "" {
		tag = c.prefix + " " + tag
	}
	fmt.Fprintf(c.w, "[%s] %s\n", tag, msg)
}

// Begin implements Sink
func (c *Console) Begin() { c.line("STATUS", "starting") }

// SetStatus implements Sink
func (c *Console) SetStatus(status string) { c.line("STATUS", status) }

// ShowTelemetry implements Sink
func (c *Console) ShowTelemetry(payload string) { c.line("TELEMETRY", payload) }

// LogInfo implements Sink
func (c *Console) LogInfo(msg string) { c.line("INFO", msg) }

// LogError implements Sink
func (c *Console) LogError(msg string) { c.line("ERROR", msg) }

// Logger forwards to a logrus entry
type Logger struct {
	log *logrus.Entry
}

// NewLogger returns a sink which logs to log
func NewLogger(log *logrus.Entry) *Logger {
	return &Logger{log: log}
}

// Begin implements Sink
func (l *Logger) Begin() { l.log.Debug("status sink started") }

// SetStatus implements Sink
func (l *Logger) SetStatus(status string) { l.log.WithField("status", status).Info("status changed") }

// ShowTelemetry implements Sink
func (l *Logger) ShowTelemetry(payload string) { l.log.WithField("payload", payload).Info("telemetry") }

// LogInfo implements Sink
func (l *Logger) LogInfo(msg string) { l.log.Info(msg) }

// LogError implements Sink
func (l *Logger) LogError(msg string) { l.log.Error(msg) }
