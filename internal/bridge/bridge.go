// Package bridge exposes the in-process approval gate to sandboxed worker
// processes over a local socket. The wire protocol is newline-delimited
// JSON: approval_request lines in, approval_response lines out, correlated
// by request identifier.
package bridge

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dusk-indust/conflux/internal/approval"
	"github.com/dusk-indust/conflux/internal/logx"
)

// Message kinds on the wire.
const (
	MsgApprovalRequest  = "approval_request"
	MsgApprovalResponse = "approval_response"
)

// DefaultTimeout bounds how long a stalled judgment can block a worker.
const DefaultTimeout = 2 * time.Minute

var (
	// ErrTimeout is returned when no response arrives inside the window.
	ErrTimeout = errors.New("bridge: approval request timed out")
	// ErrClosed is returned when the channel goes away mid-request.
	ErrClosed = errors.New("bridge: connection closed")
)

// Message is one NDJSON line in either direction.
type Message struct {
	Type      string   `json:"type"`
	RequestID string   `json:"requestId"`
	Payload   *Payload `json:"payload,omitempty"`
	Approved  *bool    `json:"approved,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// Payload carries the action under judgment.
type Payload struct {
	Action  approval.ActionType `json:"action"`
	Details json.RawMessage     `json:"details,omitempty"`
	Context *approval.Context   `json:"context,omitempty"`
}

// Handler judges one inbound request. The result may be a bool or any value
// carrying approved/reason fields; it is normalized before going on the
// wire.
type Handler func(ctx context.Context, p Payload) (any, error)

// LaunchInfo tells the sandboxed process how to reach the approve
// capability.
type LaunchInfo struct {
	SocketPath   string
	ScriptPath   string
	ManifestPath string
	// Env holds extra environment entries for the sandboxed process,
	// including a PATH carrying the workspace's dependency bin directory
	// when one exists.
	Env []string
}

// Bridge listens on an ephemeral unix socket and dispatches approval
// requests to its handler. One Bridge per orchestrator process instance;
// the socket is never reused across runs.
type Bridge struct {
	handler Handler
	log     *logx.LabelLogger

	mu           sync.Mutex
	listener     net.Listener
	socketPath   string
	artifactsDir string
	seen         map[string]bool
	closed       bool

	wg sync.WaitGroup
}

// New creates a Bridge backed by handler.
func New(handler Handler, log *logx.LabelLogger) *Bridge {
	return &Bridge{
		handler: handler,
		log:     log,
		seen:    make(map[string]bool),
	}
}

// Start provisions the socket and the discovery artifacts for the sandboxed
// process: a launcher script that pipes one NDJSON exchange over the socket,
// and a tool-registration manifest describing the approve capability.
// workspace is consulted for a node_modules/.bin directory to prepend to the
// child's PATH.
func (b *Bridge) Start(ctx context.Context, workspace string) (*LaunchInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener != nil {
		return nil, fmt.Errorf("bridge: already started")
	}

	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return nil, fmt.Errorf("bridge: socket suffix: %w", err)
	}
	socketPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("conflux-%d-%s.sock", os.Getpid(), hex.EncodeToString(suffix)))

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("bridge: listen %s: %w", socketPath, err)
	}

	dir, err := os.MkdirTemp("", "conflux-bridge-*")
	if err != nil {
		listener.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("bridge: artifacts dir: %w", err)
	}

	info := &LaunchInfo{
		SocketPath:   socketPath,
		ScriptPath:   filepath.Join(dir, "approve"),
		ManifestPath: filepath.Join(dir, "tools.json"),
	}
	if err := writeArtifacts(info); err != nil {
		listener.Close()
		os.Remove(socketPath)
		os.RemoveAll(dir)
		return nil, err
	}

	info.Env = []string{
		"CONFLUX_APPROVAL_SOCKET=" + socketPath,
		"CONFLUX_APPROVAL_MANIFEST=" + info.ManifestPath,
	}
	if binDir := filepath.Join(workspace, "node_modules", ".bin"); dirExists(binDir) {
		info.Env = append(info.Env,
			"PATH="+binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}

	b.listener = listener
	b.socketPath = socketPath
	b.artifactsDir = dir

	b.wg.Add(1)
	go b.accept(ctx, listener)

	b.log.Infof("approval bridge listening on %s", socketPath)
	return info, nil
}

// Stop tears down the listener and removes the socket and artifacts.
// Individual deletion failures are logged and tolerated.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	listener := b.listener
	socketPath := b.socketPath
	dir := b.artifactsDir
	b.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	b.wg.Wait()

	if socketPath != "" {
		if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
			b.log.Warnf("socket removal failed: %v", err)
		}
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			b.log.Warnf("artifact removal failed: %v", err)
		}
	}
}

func (b *Bridge) accept(ctx context.Context, listener net.Listener) {
	defer b.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		b.wg.Add(1)
		go b.serve(ctx, conn)
	}
}

func (b *Bridge) serve(ctx context.Context, conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	var writeMu sync.Mutex
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			b.log.Warnf("malformed message dropped: %v", err)
			continue
		}
		if msg.Type != MsgApprovalRequest {
			b.log.Warnf("unexpected message type %q dropped", msg.Type)
			continue
		}
		if msg.RequestID == "" {
			b.log.Warnf("request without identifier dropped")
			continue
		}
		if !b.markSeen(msg.RequestID) {
			b.log.Warnf("duplicate request %s dropped", msg.RequestID)
			continue
		}

		b.wg.Add(1)
		go func(msg Message) {
			defer b.wg.Done()
			resp := b.dispatch(ctx, msg)
			data, err := json.Marshal(resp)
			if err != nil {
				b.log.Errorf("response encoding failed for %s: %v", msg.RequestID, err)
				return
			}
			writeMu.Lock()
			_, err = conn.Write(append(data, '\n'))
			writeMu.Unlock()
			if err != nil {
				b.log.Warnf("response write failed for %s: %v", msg.RequestID, err)
			}
		}(msg)
	}
}

// markSeen records a request identifier, reporting false when it was
// already dispatched once.
func (b *Bridge) markSeen(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[id] {
		return false
	}
	b.seen[id] = true
	return true
}

// dispatch runs the handler and normalizes its result. The caller always
// gets a well-formed response; normalization failure produces a deny.
func (b *Bridge) dispatch(ctx context.Context, msg Message) Message {
	approved := false
	reason := ""

	var payload Payload
	if msg.Payload != nil {
		payload = *msg.Payload
	}
	result, err := b.handler(ctx, payload)
	if err != nil {
		reason = err.Error()
	} else {
		approved, reason = normalizeResult(result)
	}

	return Message{
		Type:      MsgApprovalResponse,
		RequestID: msg.RequestID,
		Approved:  &approved,
		Reason:    reason,
	}
}

// normalizeResult accepts a bool or any value carrying approved/reason
// fields. Anything else denies.
func normalizeResult(result any) (bool, string) {
	switch v := result.(type) {
	case bool:
		return v, ""
	case approval.Response:
		return v.Approved, v.Reason
	case *approval.Response:
		if v == nil {
			return false, "bridge: nil handler result"
		}
		return v.Approved, v.Reason
	}

	data, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Sprintf("bridge: unrecognized handler result: %v", err)
	}
	var shaped struct {
		Approved *bool  `json:"approved"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(data, &shaped); err != nil || shaped.Approved == nil {
		return false, "bridge: handler result carries no approval verdict"
	}
	return *shaped.Approved, shaped.Reason
}

func writeArtifacts(info *LaunchInfo) error {
	script := fmt.Sprintf(`#!/bin/sh
# Sends one approval request line from stdin to the conflux bridge socket
# and prints the matching response line.
exec socat - "UNIX-CONNECT:%s"
`, info.SocketPath)
	if err := os.WriteFile(info.ScriptPath, []byte(script), 0o755); err != nil {
		return fmt.Errorf("bridge: write launcher: %w", err)
	}

	manifest := map[string]any{
		"tools": []map[string]any{
			{
				"name":        "approve",
				"description": "Ask the supervisor to approve a risky operation before executing it.",
				"command":     info.ScriptPath,
				"socket":      info.SocketPath,
				"protocol":    "ndjson",
			},
		},
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("bridge: encode manifest: %w", err)
	}
	if err := os.WriteFile(info.ManifestPath, data, 0o644); err != nil {
		return fmt.Errorf("bridge: write manifest: %w", err)
	}
	return nil
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
