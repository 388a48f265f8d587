package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one request's payload and returns the data to embed
// in a successful response, or an error to surface as {success:false}.
type Handler func(payload json.RawMessage) (interface{}, error)

// Server accepts connections on a Unix-domain socket and dispatches
// framed requests to registered handlers, one handler per MessageType.
type Server struct {
	socketPath string
	logger     *zap.Logger
	maxConns   int

	mu       sync.Mutex
	handlers map[MessageType]Handler

	listener net.Listener
	connSem  chan struct{}

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewServer constructs a Server bound to socketPath; call Serve to start
// accepting connections.
func NewServer(socketPath string, maxConns int, logger *zap.Logger) *Server {
	if maxConns <= 0 {
		maxConns = 256
	}
	return &Server{
		socketPath: socketPath,
		logger:     logger.Named("ipc-server"),
		maxConns:   maxConns,
		handlers:   make(map[MessageType]Handler),
		connSem:    make(chan struct{}, maxConns),
		closed:     make(chan struct{}),
	}
}

// Handle registers the handler invoked for requests of the given type.
// Every registered handler runs in request mode: it returns a response
// object and the server stamps the request's id onto it before writing
// it back. Fire-and-forget requests (no id) still invoke the handler but
// the return value is discarded and nothing is written back.
func (s *Server) Handle(msgType MessageType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgType] = h
}

// Serve removes any stale socket file, listens, and accepts connections
// until Close is called.
func (s *Server) Serve() error {
	_ = os.Remove(s.socketPath)
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen on %s: %w", s.socketPath, err)
	}
	s.listener = l

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.logger.Error("accept failed", zap.Error(err))
				return
			}
		}

		select {
		case s.connSem <- struct{}{}:
		default:
			s.logger.Warn("max connections reached, rejecting")
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { <-s.connSem }()
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		payload, err := readFrame(r)
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.logger.Debug("connection read error", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.logger.Warn("dropping unparseable request frame", zap.Error(err))
			continue
		}
		s.dispatch(conn, req)
	}
}

func (s *Server) dispatch(conn net.Conn, req Request) {
	s.mu.Lock()
	handler, ok := s.handlers[req.Type]
	s.mu.Unlock()

	if !ok {
		if req.ID == "" {
			return
		}
		s.writeResponse(conn, Response{ID: req.ID, Success: false, Error: fmt.Sprintf("no handler for type %q", req.Type)})
		return
	}

	start := time.Now()
	rawPayload, _ := json.Marshal(req.Payload)
	data, err := handler(rawPayload)
	elapsed := time.Since(start).Milliseconds()

	if req.ID == "" {
		// Fire-and-forget: handler already ran, nothing to write back.
		if err != nil {
			s.logger.Warn("fire-and-forget handler error", zap.String("type", string(req.Type)), zap.Error(err))
		}
		return
	}

	resp := Response{ID: req.ID, ProcessingTimeMs: elapsed}
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
	} else {
		resp.Success = true
		resp.Data = data
	}
	s.writeResponse(conn, resp)
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	if err := writeFrame(conn, resp); err != nil {
		s.logger.Warn("failed to write response frame", zap.Error(err))
	}
}

// Close stops accepting new connections and waits for in-flight handlers
// to finish.
func (s *Server) Close() error {
	close(s.closed)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	return err
}
