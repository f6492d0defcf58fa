package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/bft-labs/daemonkit/pkg/log"
)

// Handler processes one request payload and returns the response payload.
// The result must be JSON-serializable. Returning an error sends a
// TypeError reply carrying the error's message to the requesting client.
//
// A Server holds exactly one handler; routing between commands happens
// inside the handler body, typically on a field of the payload.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// ServerOption configures optional behavior of a Server.
type ServerOption func(*Server)

// WithServerLogger sets the structured logger used by the server.
// If not provided, a no-op logger is used.
func WithServerLogger(logger log.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// serverConn tracks per-connection state: the decode buffer lives in the
// read loop, writes from concurrently completing handlers are serialized
// through writeMu.
type serverConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// write frames msg and sends it on the connection.
func (c *serverConn) write(msg Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// Server accepts connections on a unix domain socket and dispatches framed
// requests to the registered handler. Requests on the same connection are
// handled concurrently, so replies may be written out of arrival order;
// clients match them up by correlation id.
type Server struct {
	socketPath string
	logger     log.Logger

	mu       sync.Mutex
	listener net.Listener
	handler  Handler
	conns    map[*serverConn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a server bound to the given socket path once Listen is
// called. The server owns the socket file: it removes a stale one before
// binding and removes its own on Close.
func NewServer(socketPath string, opts ...ServerOption) *Server {
	s := &Server{
		socketPath: socketPath,
		logger:     log.NewNoopLogger(),
		conns:      make(map[*serverConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnMessage registers the handler invoked for every decoded request.
// A later call replaces the previous handler.
func (s *Server) OnMessage(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Listen binds the unix socket and starts accepting connections.
// A leftover socket file from an unclean shutdown is removed first.
// Calling Listen while already listening is a no-op.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Info("ipc server listening", log.String("socket", s.socketPath))

	s.wg.Add(1)
	go s.acceptLoop(ln)

	return nil
}

// Close stops accepting connections, closes every live connection, and
// removes the socket file. Idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}

	ln := s.listener
	s.listener = nil
	s.cancel()

	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	err := ln.Close()
	for _, c := range conns {
		_ = c.conn.Close()
	}

	s.wg.Wait()

	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}

	s.logger.Info("ipc server closed", log.String("socket", s.socketPath))
	return err
}

// acceptLoop accepts connections until the listener is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed or unrecoverable; Close handles cleanup.
			return
		}

		c := &serverConn{conn: conn}

		s.mu.Lock()
		if s.listener == nil {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(c)
	}
}

// serveConn owns one connection's read loop and decode buffer. Each request
// is dispatched in its own goroutine so a slow handler never stalls other
// requests on the same connection.
func (s *Server) serveConn(c *serverConn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.conn.Close()
		s.wg.Done()
	}()

	var dec Decoder
	buf := make([]byte, 4096)

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, msg := range dec.Feed(buf[:n]) {
				if msg.Type != TypeRequest {
					continue
				}
				s.wg.Add(1)
				go s.dispatch(c, msg)
			}
		}
		if err != nil {
			return
		}
	}
}

// dispatch invokes the handler for one request and writes the reply.
func (s *Server) dispatch(c *serverConn, req Message) {
	defer s.wg.Done()

	s.mu.Lock()
	handler := s.handler
	ctx := s.ctx
	s.mu.Unlock()

	reply := Message{ID: req.ID}

	if handler == nil {
		reply.Type = TypeError
		reply.Payload = mustMarshal(errorPayload{Message: "no handler registered"})
	} else if result, err := handler(ctx, req.Payload); err != nil {
		reply.Type = TypeError
		reply.Payload = mustMarshal(errorPayload{Message: err.Error()})
	} else if payload, err := json.Marshal(result); err != nil {
		reply.Type = TypeError
		reply.Payload = mustMarshal(errorPayload{Message: "encode response: " + err.Error()})
	} else {
		reply.Type = TypeResponse
		reply.Payload = payload
	}

	if err := c.write(reply); err != nil {
		s.logger.Warn("ipc reply write failed",
			log.String("id", req.ID),
			log.Err(err),
		)
	}
}

// mustMarshal encodes a value that cannot fail to serialize.
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
