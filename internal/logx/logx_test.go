package logx

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(min Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(&buf, min)
	l.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, &buf
}

func TestLoggerLevelFilter(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)
	ll := l.With("coordinator")

	ll.Debugf("dropped %d", 1)
	ll.Infof("kept %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept 2")
	assert.Contains(t, out, "[coordinator]")
	assert.Contains(t, out, "03:04:05")
}

func TestLoggerStableLabelColors(t *testing.T) {
	l, _ := newTestLogger(LevelDebug)

	a := l.With("worker:a.go")
	b := l.With("worker:b.go")
	again := l.With("worker:a.go")

	assert.Equal(t, a.style, again.style)
	assert.NotEqual(t, a.style, b.style)
}

func TestLoggerPaletteWraps(t *testing.T) {
	l, _ := newTestLogger(LevelDebug)

	first := l.With("label-0")
	for i := 1; i < len(palette); i++ {
		l.With("label-" + strings.Repeat("x", i))
	}
	wrapped := l.With("label-wrap")

	require.Equal(t, first.style, wrapped.style)
}

func TestLoggerConcurrentUse(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			ll := l.With("g")
			for j := 0; j < 20; j++ {
				ll.Infof("line %d-%d", n, j)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 160)
	for _, line := range lines {
		assert.Contains(t, line, "[g]")
	}
}
