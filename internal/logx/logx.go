// Package logx provides the process-scoped labeled logger used by every
// engine component. Each label (coordinator, supervisor, worker:<path>, ...)
// is assigned a color from a fixed palette round-robin at first use; the
// assignment is stable for the lifetime of the Logger. Components receive a
// *Logger by injection rather than through package-level state.
package logx

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level is the severity of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "?"
	}
}

// palette is the fixed label color rotation. Order matters: labels are
// assigned colors by first-use order, wrapping when exhausted.
var palette = []lipgloss.Style{
	lipgloss.NewStyle().Foreground(lipgloss.Color("6")),  // cyan
	lipgloss.NewStyle().Foreground(lipgloss.Color("2")),  // green
	lipgloss.NewStyle().Foreground(lipgloss.Color("5")),  // magenta
	lipgloss.NewStyle().Foreground(lipgloss.Color("3")),  // yellow
	lipgloss.NewStyle().Foreground(lipgloss.Color("4")),  // blue
	lipgloss.NewStyle().Foreground(lipgloss.Color("12")), // bright blue
	lipgloss.NewStyle().Foreground(lipgloss.Color("13")), // bright magenta
	lipgloss.NewStyle().Foreground(lipgloss.Color("14")), // bright cyan
}

var warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

// Logger is a leveled writer with per-label coloring. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	min    Level
	labels map[string]lipgloss.Style
	next   int
	now    func() time.Time
}

// New creates a Logger writing to out, dropping lines below min.
func New(out io.Writer, min Level) *Logger {
	return &Logger{
		out:    out,
		min:    min,
		labels: make(map[string]lipgloss.Style),
		now:    time.Now,
	}
}

// With returns a label-bound view of the logger. The label's color is
// assigned on first use and never changes afterwards.
func (l *Logger) With(label string) *LabelLogger {
	l.mu.Lock()
	style, ok := l.labels[label]
	if !ok {
		style = palette[l.next%len(palette)]
		l.labels[label] = style
		l.next++
	}
	l.mu.Unlock()
	return &LabelLogger{l: l, label: label, style: style}
}

func (l *Logger) log(level Level, label string, style lipgloss.Style, format string, args ...any) {
	if level < l.min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case LevelWarn:
		msg = warnStyle.Render(msg)
	case LevelError:
		msg = errStyle.Render(msg)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %-5s %s %s\n",
		l.now().Format("15:04:05"), level, style.Render("["+label+"]"), msg)
}

// LabelLogger is a Logger bound to one label. Values are cheap to copy.
type LabelLogger struct {
	l     *Logger
	label string
	style lipgloss.Style
}

// Label returns the bound label.
func (ll *LabelLogger) Label() string { return ll.label }

func (ll *LabelLogger) Debugf(format string, args ...any) {
	ll.l.log(LevelDebug, ll.label, ll.style, format, args...)
}

func (ll *LabelLogger) Infof(format string, args ...any) {
	ll.l.log(LevelInfo, ll.label, ll.style, format, args...)
}

func (ll *LabelLogger) Warnf(format string, args ...any) {
	ll.l.log(LevelWarn, ll.label, ll.style, format, args...)
}

func (ll *LabelLogger) Errorf(format string, args ...any) {
	ll.l.log(LevelError, ll.label, ll.style, format, args...)
}
