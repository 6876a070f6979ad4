package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/dusk-indust/conflux/internal/logx"
)

// ExecRuntime backs the reasoning boundary with a subprocess per session.
// The configured command is expected to speak newline-delimited JSON: one
// request object in on stdin, one result object out on stdout. This keeps
// the reasoning capability fully out of process; the engine only ever sees
// text, structured output, and usage counts.
type ExecRuntime struct {
	command string
	args    []string
	env     []string
	log     *logx.LabelLogger
}

// NewExecRuntime creates a runtime that launches command with args for each
// session. env entries are appended to the child's inherited environment.
func NewExecRuntime(command string, args, env []string, log *logx.LabelLogger) *ExecRuntime {
	return &ExecRuntime{command: command, args: args, env: env, log: log}
}

var _ Runtime = (*ExecRuntime)(nil)

// NewSession launches a fresh reasoning subprocess.
func (r *ExecRuntime) NewSession(ctx context.Context, opts Options) (Session, error) {
	return r.spawn(ctx, opts, "")
}

// ForkSession launches a subprocess continuing from the parent's state. The
// parent's identifier is handed to the child so the backend can branch its
// own conversation record.
func (r *ExecRuntime) ForkSession(ctx context.Context, parent Session, opts Options) (Session, error) {
	return r.spawn(ctx, opts, parent.ID())
}

func (r *ExecRuntime) spawn(ctx context.Context, opts Options, forkOf string) (Session, error) {
	id := uuid.NewString()
	args := append([]string{}, r.args...)
	args = append(args, "--session", id)
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if forkOf != "" {
		args = append(args, "--fork-of", forkOf)
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Env = append(cmd.Environ(), r.env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("session: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("session: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("session: start %s: %w", r.command, err)
	}
	r.log.Debugf("spawned %s session %s (fork of %q)", opts.Label, id, forkOf)

	return &execSession{
		id:           id,
		instructions: opts.Instructions,
		cmd:          cmd,
		stdin:        stdin,
		out:          bufio.NewScanner(stdout),
	}, nil
}

type execSession struct {
	id           string
	instructions string
	cmd          *exec.Cmd
	stdin        io.WriteCloser

	mu  sync.Mutex
	out *bufio.Scanner
}

var _ Session = (*execSession)(nil)

type wireRequest struct {
	Type         string          `json:"type"`
	Instructions string          `json:"instructions,omitempty"`
	Prompt       string          `json:"prompt"`
	Schema       json.RawMessage `json:"schema,omitempty"`
}

type wireResult struct {
	Text   string          `json:"text,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Usage  *Usage          `json:"usage,omitempty"`
}

func (s *execSession) ID() string { return s.id }

// Complete writes one request line and blocks for the matching result line.
// Requests are serialized per session; the protocol has one turn in flight.
func (s *execSession) Complete(ctx context.Context, req Request) (*Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instructions := req.Instructions
	if instructions == "" {
		instructions = s.instructions
	}
	line, err := json.Marshal(wireRequest{
		Type:         "complete",
		Instructions: instructions,
		Prompt:       req.Prompt,
		Schema:       req.Schema,
	})
	if err != nil {
		return nil, fmt.Errorf("session: encode request: %w", err)
	}
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("session: write request: %w", err)
	}

	type scanResult struct {
		res *wireResult
		err error
	}
	ch := make(chan scanResult, 1)
	go func() {
		if !s.out.Scan() {
			err := s.out.Err()
			if err == nil {
				err = io.EOF
			}
			ch <- scanResult{err: fmt.Errorf("session: read result: %w", err)}
			return
		}
		var res wireResult
		if err := json.Unmarshal(s.out.Bytes(), &res); err != nil {
			ch <- scanResult{err: fmt.Errorf("session: decode result: %w", err)}
			return
		}
		ch <- scanResult{res: &res}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &Completion{Text: r.res.Text, Output: r.res.Output, Usage: r.res.Usage}, nil
	}
}

// Notify writes a one-way line; no result is read.
func (s *execSession) Notify(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, err := json.Marshal(wireRequest{Type: "notify", Prompt: text})
	if err != nil {
		return fmt.Errorf("session: encode notify: %w", err)
	}
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("session: write notify: %w", err)
	}
	return nil
}

func (s *execSession) Close() error {
	s.stdin.Close()
	return s.cmd.Wait()
}
