// Package ipc is the newline-delimited JSON surface of spec 4.10: a
// bufio.Reader-over-stdin / io.Writer-to-stdout request/response loop,
// adapted from internal/mcp/server.go's JSON-RPC plumbing but
// re-pointed at the simpler {id, method, params} -> {id, success,
// result?|error?} envelope spec section 6 defines, with methods
// dispatched by their full dotted name (permissions.get,
// services.restart, blocklist.add, ...) rather than a single flat
// "tools/call" indirection.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
)

// Request is one line of input.
type Request struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one line of output.
type Response struct {
	ID      any    `json:"id"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// readyMessage is the one-shot handshake emitted before the request
// loop starts.
type readyMessage struct {
	Type     string   `json:"type"`
	Version  string   `json:"version"`
	Services []string `json:"services"`
}

// Handler answers one request's params and returns either a result or
// an error. Handlers run on the reader's own goroutine (matching the
// teacher's same-thread dispatch in internal/mcp/server.go); a handler
// that needs real work done should hand it to a worker and return
// promptly rather than blocking the reader loop, per spec 4.10.
type Handler func(params json.RawMessage) (any, error)

// Server dispatches newline-delimited JSON requests to registered
// handlers keyed by their full dotted method name.
type Server struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex // guards writes, since handlers may run in goroutines spawned by callers

	handlersMu sync.RWMutex
	handlers   map[string]Handler
}

// NewServer returns a Server reading newline-delimited requests from r
// and writing newline-delimited responses to w.
func NewServer(r io.Reader, w io.Writer) *Server {
	return &Server{
		reader:   bufio.NewReader(r),
		writer:   w,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to an exact method name, e.g. "services.restart".
func (s *Server) Register(method string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[method] = h
}

// RegisterGroup binds a whole prefix's worth of handlers at once, e.g.
// RegisterGroup("services", map[string]Handler{"start": ..., "stop": ...})
// registers "services.start" and "services.stop".
func (s *Server) RegisterGroup(prefix string, methods map[string]Handler) {
	for name, h := range methods {
		s.Register(prefix+"."+name, h)
	}
}

// Ready emits the one-shot startup handshake spec 4.10 requires.
func (s *Server) Ready(version string, services []string) error {
	return s.send(readyMessage{Type: "ready", Version: version, Services: services})
}

// Run reads requests line by line until EOF or a read error,
// dispatching each to its registered handler and writing back a
// Response. Unknown methods get success=false with a fixed error
// string rather than being dropped, so callers always get a reply.
func (s *Server) Run() error {
	for {
		line, err := s.reader.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ipc: read: %w", err)
		}
		if len(line) <= 1 {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			log.Printf("[ipc] malformed request: %v", err)
			continue
		}

		resp := s.dispatch(req)
		if err := s.send(resp); err != nil {
			log.Printf("[ipc] failed to write response: %v", err)
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.handlersMu.RLock()
	h, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()

	if !ok {
		return Response{ID: req.ID, Success: false, Error: "unknown method"}
	}

	result, err := h(req.Params)
	if err != nil {
		return Response{ID: req.ID, Success: false, Error: err.Error()}
	}
	return Response{ID: req.ID, Success: true, Result: result}
}

func (s *Server) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.writer, string(data))
	return err
}
