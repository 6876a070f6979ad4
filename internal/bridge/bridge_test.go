package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/conflux/internal/approval"
	"github.com/dusk-indust/conflux/internal/logx"
)

func bridgeLog() *logx.LabelLogger {
	return logx.New(io.Discard, logx.LevelError).With("bridge")
}

func startBridge(t *testing.T, handler Handler) (*Bridge, *LaunchInfo) {
	t.Helper()
	b := New(handler, bridgeLog())
	info, err := b.Start(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(b.Stop)
	return b, info
}

func dialBridge(t *testing.T, info *LaunchInfo) *Client {
	t.Helper()
	c, err := Dial(info.SocketPath, bridgeLog())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	_, info := startBridge(t, func(_ context.Context, p Payload) (any, error) {
		return &approval.Response{Approved: true, Reason: "action serves " + p.Context.ConflictPath}, nil
	})
	c := dialBridge(t, info)

	resp, err := c.RequestApproval(context.Background(), Payload{
		Action:  approval.ActionShell,
		Context: &approval.Context{ConflictPath: "pkg/demo/value.go"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Equal(t, "action serves pkg/demo/value.go", resp.Reason)
}

func TestHandlerResultNormalization(t *testing.T) {
	tests := []struct {
		name         string
		result       any
		err          error
		wantApproved bool
		wantReason   string
	}{
		{"plain bool", true, nil, true, ""},
		{"response value", approval.Response{Approved: false, Reason: "nope"}, nil, false, "nope"},
		{"duck-typed map", map[string]any{"approved": true, "reason": "fine"}, nil, true, "fine"},
		{"handler error", nil, errors.New("gate exploded"), false, "gate exploded"},
		{"unrecognized shape", struct{ X int }{42}, nil, false, "bridge: handler result carries no approval verdict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, info := startBridge(t, func(context.Context, Payload) (any, error) {
				return tt.result, tt.err
			})
			c := dialBridge(t, info)

			resp, err := c.RequestApproval(context.Background(), Payload{Action: approval.ActionOther})
			require.NoError(t, err)
			assert.Equal(t, tt.wantApproved, resp.Approved)
			assert.Equal(t, tt.wantReason, resp.Reason)
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	_, info := startBridge(t, func(context.Context, Payload) (any, error) {
		<-release
		return true, nil
	})
	defer close(release)

	c := dialBridge(t, info)
	c.SetTimeout(50 * time.Millisecond)

	_, err := c.RequestApproval(context.Background(), Payload{Action: approval.ActionShell})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDuplicateRequestIDDispatchedOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	_, info := startBridge(t, func(context.Context, Payload) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return true, nil
	})

	conn, err := net.Dial("unix", info.SocketPath)
	require.NoError(t, err)
	defer conn.Close()

	line := `{"type":"approval_request","requestId":"dup-1","payload":{"action":"shell"}}` + "\n"
	_, err = conn.Write([]byte(line + line))
	require.NoError(t, err)

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var msg Message
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
	assert.Equal(t, "dup-1", msg.RequestID)
	require.NotNil(t, msg.Approved)
	assert.True(t, *msg.Approved)

	// Give the second line time to be read and discarded.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestConcurrentRequestsCorrelate(t *testing.T) {
	_, info := startBridge(t, func(_ context.Context, p Payload) (any, error) {
		var n int
		if err := json.Unmarshal(p.Details, &n); err != nil {
			return nil, err
		}
		return approval.Response{Approved: n%2 == 0, Reason: fmt.Sprintf("request %d", n)}, nil
	})
	c := dialBridge(t, info)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			details, _ := json.Marshal(n)
			resp, err := c.RequestApproval(context.Background(), Payload{
				Action:  approval.ActionShell,
				Details: details,
			})
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("request %d", n), resp.Reason)
			assert.Equal(t, n%2 == 0, resp.Approved)
		}(i)
	}
	wg.Wait()
}

func TestStartWritesDiscoveryArtifacts(t *testing.T) {
	workspace := t.TempDir()
	binDir := filepath.Join(workspace, "node_modules", ".bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))

	b := New(func(context.Context, Payload) (any, error) { return true, nil }, bridgeLog())
	info, err := b.Start(context.Background(), workspace)
	require.NoError(t, err)
	defer b.Stop()

	script, err := os.ReadFile(info.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(script), info.SocketPath)

	st, err := os.Stat(info.ScriptPath)
	require.NoError(t, err)
	assert.NotZero(t, st.Mode()&0o111)

	manifest, err := os.ReadFile(info.ManifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(manifest), `"approve"`)

	assert.Contains(t, info.Env, "CONFLUX_APPROVAL_SOCKET="+info.SocketPath)
	foundPath := false
	for _, e := range info.Env {
		if len(e) > 5 && e[:5] == "PATH=" {
			foundPath = true
			assert.Contains(t, e, binDir)
		}
	}
	assert.True(t, foundPath, "PATH entry for workspace bin dir missing")
}

func TestStopRemovesArtifacts(t *testing.T) {
	b := New(func(context.Context, Payload) (any, error) { return true, nil }, bridgeLog())
	info, err := b.Start(context.Background(), t.TempDir())
	require.NoError(t, err)

	b.Stop()

	_, err = os.Stat(info.SocketPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(info.ManifestPath)
	assert.True(t, os.IsNotExist(err))

	// Idempotent.
	b.Stop()
}
