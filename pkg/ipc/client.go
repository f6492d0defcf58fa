package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/daemonkit/pkg/log"
)

// Client errors returned by Send.
var (
	// ErrNotConnected is returned by Send when Connect has not been called
	// or the client has been closed.
	ErrNotConnected = errors.New("ipc: not connected")

	// ErrConnectionClosed rejects every request still in flight when the
	// connection goes away, whether through Close or the peer.
	ErrConnectionClosed = errors.New("ipc: connection closed")
)

// ServerError carries the message of a TypeError reply back to the caller
// of Send.
type ServerError struct {
	Message string
}

// Error returns the message reported by the server's handler.
func (e *ServerError) Error() string {
	return e.Message
}

// ClientOption configures optional behavior of a Client.
type ClientOption func(*Client)

// WithClientLogger sets the structured logger used by the client.
// If not provided, a no-op logger is used.
func WithClientLogger(logger log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// pendingResult delivers the outcome of one in-flight request.
type pendingResult struct {
	payload json.RawMessage
	err     error
}

// Client dials a unix domain socket served by a Server and exchanges
// correlated request/response messages over it. A single connection
// multiplexes any number of concurrent Send calls.
//
// All methods are safe for concurrent use.
type Client struct {
	socketPath string
	logger     log.Logger

	mu      sync.Mutex
	conn    net.Conn
	pending map[string]chan pendingResult
}

// NewClient creates a client for the given socket path. Call Connect before
// Send.
func NewClient(socketPath string, opts ...ClientOption) *Client {
	c := &Client{
		socketPath: socketPath,
		logger:     log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server's socket and starts the read loop. It fails if
// no server is listening at the path. Connecting again after Close is
// supported and starts from a fresh receive buffer.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return err
	}

	c.conn = conn
	c.pending = make(map[string]chan pendingResult)

	go c.readLoop(conn)

	c.logger.Debug("ipc client connected", log.String("socket", c.socketPath))
	return nil
}

// Send frames payload as a request, writes it, and waits for the matching
// reply. It returns the response payload, a *ServerError if the handler
// failed, ErrConnectionClosed if the connection went away first, or the
// context's error if ctx expires. ctx is the per-request timeout mechanism;
// pass context.Background() to wait indefinitely.
func (c *Client) Send(ctx context.Context, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	msg := Message{
		ID:      uuid.NewString(),
		Type:    TypeRequest,
		Payload: raw,
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		return nil, err
	}

	ch := make(chan pendingResult, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[msg.ID] = ch
	// Write under the lock so concurrent sends cannot interleave frames.
	_, err = conn.Write(data)
	if err != nil {
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Close severs the connection and rejects all in-flight requests with
// ErrConnectionClosed. Idempotent. The client can Connect again afterwards.
func (c *Client) Close() error {
	conn, pending := c.detach(nil)
	if conn == nil {
		return nil
	}

	err := conn.Close()
	rejectAll(pending, ErrConnectionClosed)
	return err
}

// detach atomically clears the connection and takes ownership of its pending
// map. If expect is non-nil, detach only acts when the current connection is
// that one, so a stale read loop cannot tear down a successor connection.
func (c *Client) detach(expect net.Conn) (net.Conn, map[string]chan pendingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || (expect != nil && c.conn != expect) {
		return nil, nil
	}

	conn := c.conn
	pending := c.pending
	c.conn = nil
	c.pending = nil
	return conn, pending
}

// rejectAll settles every outstanding request with err.
func rejectAll(pending map[string]chan pendingResult, err error) {
	for _, ch := range pending {
		ch <- pendingResult{err: err}
	}
}

// readLoop decodes replies from the connection and settles the pending
// requests they correlate to. It exits when the connection closes for any
// reason, rejecting whatever is still in flight.
func (c *Client) readLoop(conn net.Conn) {
	var dec Decoder
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, msg := range dec.Feed(buf[:n]) {
				c.settle(msg)
			}
		}
		if err != nil {
			break
		}
	}

	if _, pending := c.detach(conn); pending != nil {
		rejectAll(pending, ErrConnectionClosed)
	}
}

// settle resolves or rejects the pending request matching msg, if any.
// Replies with unknown or already-settled ids are dropped.
func (c *Client) settle(msg Message) {
	if msg.Type != TypeResponse && msg.Type != TypeError {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("ipc reply for unknown id dropped", log.String("id", msg.ID))
		return
	}

	if msg.Type == TypeError {
		var p errorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Message == "" {
			p.Message = "unknown server error"
		}
		ch <- pendingResult{err: &ServerError{Message: p.Message}}
		return
	}

	ch <- pendingResult{payload: msg.Payload}
}
