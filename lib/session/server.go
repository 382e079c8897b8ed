// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/spibroker/lib/codec"
)

// ID identifies one client session for the lifetime of the server.
// IDs are never reused.
type ID uint64

// ActionFunc processes one request. raw is the full CBOR request,
// including the "action" field; the handler decodes its own fields.
//
// Return a value to include in the success response, or an error. A
// nil value produces {ok: true} with no data.
type ActionFunc func(ctx context.Context, caller ID, raw []byte) (any, error)

// Response is the envelope written for every request.
type Response struct {
	OK         bool             `cbor:"ok"`
	Code       string           `cbor:"code"`
	Error      string           `cbor:"error,omitempty"`
	Data       codec.RawMessage `cbor:"data,omitempty"`
	Terminated bool             `cbor:"terminated,omitempty"`
}

// writeTimeout bounds writing one response.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request. The
// largest legitimate request is a transfer carrying the configured
// maximum payload, a few KiB.
const maxRequestSize = 1024 * 1024

var errRequestTooLarge = errors.New("request exceeds size limit")

// Server accepts session connections on a Unix socket and dispatches
// their requests to registered actions.
type Server struct {
	socketPath  string
	logger      *slog.Logger
	handlers    map[string]ActionFunc
	onClose     func(ID)
	idleTimeout time.Duration

	nextID atomic.Uint64

	mu       sync.Mutex
	sessions map[ID]net.Conn

	// activeConnections tracks session goroutines. Serve waits for all
	// of them, and therefore for every OnClose callback, before
	// returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath. Register
// actions and the close callback before calling Serve.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		logger:     logger,
		handlers:   make(map[string]ActionFunc),
		sessions:   make(map[ID]net.Conn),
	}
}

// SetIdleTimeout disconnects sessions that send no request for d.
// Zero, the default, never disconnects idle sessions.
func (s *Server) SetIdleTimeout(d time.Duration) {
	s.idleTimeout = d
}

// Handle registers a handler for the given action name. Panics if the
// action is already registered.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("session.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// OnClose registers the callback invoked once for every session when
// its connection ends. Panics if a callback is already registered.
func (s *Server) OnClose(callback func(ID)) {
	if s.onClose != nil {
		panic("session.Server: close callback already registered")
	}
	s.onClose = callback
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Serve accepts connections until ctx is cancelled, then closes every
// session and waits for their close callbacks to finish.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("session server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		id := ID(s.nextID.Add(1))
		s.mu.Lock()
		s.sessions[id] = conn
		s.mu.Unlock()

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.serveSession(ctx, id, conn)
		}()
	}

	s.closeSessions()
	s.activeConnections.Wait()
	return nil
}

// closeSessions closes every connection so that blocked reads return
// and each session runs its close path.
func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.sessions {
		conn.Close()
	}
}

// serveSession processes requests on one connection until it ends.
func (s *Server) serveSession(ctx context.Context, id ID, conn net.Conn) {
	logger := s.logger.With("session", uint64(id))
	logger.Info("session opened", peerAttributes(conn)...)

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose(id)
		}
		logger.Info("session closed")
	}()

	budget := &budgetReader{reader: conn}
	decoder := codec.NewDecoder(budget)
	encoder := codec.NewEncoder(conn)

	for {
		budget.remaining = maxRequestSize
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		var raw codec.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			s.endOnReadError(logger, conn, encoder, err)
			return
		}

		response := s.dispatch(ctx, logger, id, raw)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := encoder.Encode(response); err != nil {
			logger.Debug("failed to write response", "error", err)
			return
		}
		if response.Terminated {
			return
		}
	}
}

// endOnReadError logs why a session's request stream ended, telling
// the client when the stream ended because of something it sent.
func (s *Server) endOnReadError(logger *slog.Logger, conn net.Conn, encoder *codec.Encoder, err error) {
	var netError net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return
	case errors.As(err, &netError) && netError.Timeout():
		logger.Info("session idle timeout", "timeout", s.idleTimeout)
		return
	case errors.Is(err, errRequestTooLarge):
		logger.Warn("request too large", "limit", maxRequestSize)
	default:
		logger.Warn("malformed request", "error", err)
	}

	// The stream cannot be resynchronized after an oversized or
	// malformed item.
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := encoder.Encode(Response{
		Code:       CodeInvalidRequest,
		Error:      fmt.Sprintf("invalid request: %v", err),
		Terminated: true,
	}); err != nil {
		logger.Debug("failed to write error response", "error", err)
	}
}

// dispatch routes one decoded request to its handler and builds the
// response.
func (s *Server) dispatch(ctx context.Context, logger *slog.Logger, id ID, raw codec.RawMessage) Response {
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return Response{Code: CodeInvalidRequest, Error: fmt.Sprintf("invalid request: %v", err)}
	}
	if header.Action == "" {
		return Response{Code: CodeInvalidRequest, Error: "missing required field: action"}
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		return Response{Code: CodeInvalidRequest, Error: fmt.Sprintf("unknown action %q", header.Action)}
	}

	result, err := handler(ctx, id, []byte(raw))
	if err != nil {
		var terminate *TerminateError
		if errors.As(err, &terminate) {
			logger.Warn("terminating session",
				"action", header.Action,
				"code", terminate.Code,
				"error", terminate.Err,
			)
			return Response{Code: terminate.Code, Error: terminate.Err.Error(), Terminated: true}
		}

		code := CodeError
		var resultError *ResultError
		if errors.As(err, &resultError) {
			code = resultError.Code
		}
		logger.Debug("action failed",
			"action", header.Action,
			"code", code,
			"error", err,
		)
		return Response{Code: code, Error: err.Error()}
	}

	response := Response{OK: true, Code: CodeOK}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			return Response{Code: CodeError, Error: fmt.Sprintf("internal: marshaling response: %v", err)}
		}
		response.Data = data
	}
	return response
}

// budgetReader limits how many bytes the decoder may pull from the
// connection while decoding one request.
type budgetReader struct {
	reader    io.Reader
	remaining int64
}

func (b *budgetReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, errRequestTooLarge
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.reader.Read(p)
	b.remaining -= int64(n)
	return n, err
}
