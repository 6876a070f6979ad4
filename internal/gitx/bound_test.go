package gitx

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateShortInputUntouched(t *testing.T) {
	out, cut := Truncate("short", 100)
	assert.Equal(t, "short", out)
	assert.False(t, cut)

	exact := strings.Repeat("x", 100)
	out, cut = Truncate(exact, 100)
	assert.Equal(t, exact, out)
	assert.False(t, cut)
}

func TestTruncateAppendsMarker(t *testing.T) {
	in := strings.Repeat("a", 500)
	out, cut := Truncate(in, 120)

	require.True(t, cut)
	assert.LessOrEqual(t, len(out), 120)

	// The marker states the exact number of characters missing from the
	// output, including those the marker itself displaced.
	idx := strings.LastIndex(out, "\n[... truncated ")
	require.GreaterOrEqual(t, idx, 0)
	var n int
	_, err := fmt.Sscanf(out[idx:], "\n[... truncated %d chars]", &n)
	require.NoError(t, err)
	assert.Equal(t, len(in)-idx, n)
}

func TestTruncateNeverExceedsCap(t *testing.T) {
	for _, max := range []int{10, 50, 2000, 8000} {
		in := strings.Repeat("line of content\n", 1000)
		out, _ := Truncate(in, max)
		assert.LessOrEqual(t, len(out), max, "cap %d", max)
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	in := strings.Repeat("héllo wörld ", 1000)
	out, cut := Truncate(in, 200)

	require.True(t, cut)
	assert.LessOrEqual(t, len(out), 200)

	idx := strings.LastIndex(out, "\n[... truncated ")
	require.GreaterOrEqual(t, idx, 0)
	assert.True(t, strings.HasPrefix(in, out[:idx]), "kept prefix ends on a rune boundary")
}
