package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/conflux/internal/approval"
	"github.com/dusk-indust/conflux/internal/logx"
)

// Client is the worker-side end of the bridge. It multiplexes concurrent
// pending requests over one connection, correlated by request identifier.
type Client struct {
	conn    net.Conn
	log     *logx.LabelLogger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool

	writeMu sync.Mutex
}

// Dial connects to the bridge socket.
func Dial(socketPath string, log *logx.LabelLogger) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", socketPath, err)
	}
	c := &Client{
		conn:    conn,
		log:     log,
		timeout: DefaultTimeout,
		pending: make(map[string]chan Message),
	}
	go c.readLoop()
	return c, nil
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// RequestApproval sends one request and blocks until the matching response,
// the timeout, or cancellation. Identifiers are fresh per call and never
// reused within a session.
func (c *Client) RequestApproval(ctx context.Context, p Payload) (*approval.Response, error) {
	id := uuid.NewString()
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(Message{Type: MsgApprovalRequest, RequestID: id, Payload: &p})
	if err != nil {
		return nil, fmt.Errorf("bridge: encode request: %w", err)
	}
	c.writeMu.Lock()
	_, err = c.conn.Write(append(data, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("bridge: write request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		c.log.Warnf("request %s timed out after %s", id, c.timeout)
		return nil, ErrTimeout
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		resp := &approval.Response{Reason: msg.Reason}
		if msg.Approved != nil {
			resp.Approved = *msg.Approved
		}
		return resp, nil
	}
}

// readLoop routes inbound responses to their pending entries. Responses for
// unknown identifiers (late arrivals after timeout, or duplicates) are
// dropped with a warning.
func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.log.Warnf("malformed response dropped: %v", err)
			continue
		}
		if msg.Type != MsgApprovalResponse {
			c.log.Warnf("unexpected message type %q dropped", msg.Type)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		if ok {
			delete(c.pending, msg.RequestID)
		}
		c.mu.Unlock()
		if !ok {
			c.log.Warnf("response for unknown request %s dropped", msg.RequestID)
			continue
		}
		ch <- msg
	}

	// Connection is gone; wake every waiter.
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
