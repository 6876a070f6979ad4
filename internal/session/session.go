// Package session defines the boundary to the external reasoning capability
// and the manager that guarantees uniform instrumentation of every session
// the engine creates.
package session

import (
	"context"
	"encoding/json"
)

// Usage reports token consumption for one completed turn.
type Usage struct {
	Input  int `json:"input"`
	Cached int `json:"cached"`
	Output int `json:"output"`
}

// Request is one judgment call to a reasoning session. Schema, when present,
// demands schema-validated structured output instead of free text.
type Request struct {
	Instructions string
	Prompt       string
	Schema       json.RawMessage
}

// Completion is the result of a Request. Output is populated when the
// request carried a schema; Text otherwise.
type Completion struct {
	Text   string
	Output json.RawMessage
	Usage  *Usage
}

// Session is one reasoning conversation.
type Session interface {
	// ID uniquely identifies this session within the process.
	ID() string
	// Complete sends a request and blocks for the result.
	Complete(ctx context.Context, req Request) (*Completion, error)
	// Notify pushes one-way information into the conversation.
	Notify(ctx context.Context, text string) error
	Close() error
}

// Options configure session creation.
type Options struct {
	// Label names the session for logging (coordinator, supervisor,
	// worker:<path>).
	Label string
	// Model is the model identifier, passed through opaquely.
	Model string
	// Instructions is the system role for the whole conversation.
	Instructions string
}

// Runtime is the external reasoning capability. Implementations create and
// branch conversations; the engine never constructs sessions directly.
type Runtime interface {
	NewSession(ctx context.Context, opts Options) (Session, error)
	// ForkSession branches parent at its current point into a fresh context
	// window carrying the conversation state forward.
	ForkSession(ctx context.Context, parent Session, opts Options) (Session, error)
}

// Diagnostics instruments a session for usage accounting. Attach must be
// safe to call more than once per session identity.
type Diagnostics interface {
	Attach(sessionID, model string)
}
