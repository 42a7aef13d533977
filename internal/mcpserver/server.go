// Package mcpserver exposes the coordination tool surface
// (internal/agenttools) as an MCP server, so any MCP-speaking client can
// reach agent coordination without going through a bespoke RPC. One Server
// is bound to a single calling agent at construction time; the caller
// identity is fixed at New rather than passed per-request.
package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/common/logger"
)

// Config controls the listening address for the dual-transport HTTP server.
type Config struct {
	// Port is the TCP port to bind. 0 selects any free port; BoundPort()
	// reports the port actually chosen.
	Port int
}

// Server wraps an MCP server bound to one agent's Agent Tools calls,
// reachable over both SSE (for clients expecting a long-lived event stream)
// and Streamable HTTP (for clients that POST a single request per call).
type Server struct {
	cfg      Config
	callerID string
	tools    *agenttools.Toolset
	logger   *logger.Logger

	mcpServer            *server.MCPServer
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	httpServer           *http.Server
	listener             net.Listener

	mu      sync.Mutex
	running bool
}

// New builds a Server that dispatches every tool call as callerID against
// tools.
func New(cfg Config, callerID string, tools *agenttools.Toolset, log *logger.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		callerID: callerID,
		tools:    tools,
		logger:   log.WithFields(zap.String("component", "mcpserver"), zap.String("agentId", callerID)),
	}

	s.mcpServer = server.NewMCPServer(
		"routa-agent-tools",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	registerTools(s.mcpServer, callerID, tools)

	s.sseServer = server.NewSSEServer(s.mcpServer)
	s.streamableHTTPServer = server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath("/mcp"))

	return s
}

// Start binds a listener and begins serving. It blocks only long enough to
// confirm the listener bound; serving happens on a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("mcpserver: already running")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("mcpserver: bind: %w", err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())
	mux.Handle("/mcp", s.streamableHTTPServer)

	s.httpServer = &http.Server{Handler: mux}

	ready := make(chan struct{})
	go func() {
		close(ready)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("mcp http server stopped", zap.Error(err))
		}
	}()
	<-ready

	s.running = true
	s.logger.Info("mcp server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts down every transport, tolerating any being nil or unstarted.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BoundPort returns the TCP port actually bound after Start, or 0 before it.
func (s *Server) BoundPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// SSEEndpoint returns the SSE connect URL for this server.
func (s *Server) SSEEndpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d/sse", s.BoundPort())
}

// StreamableHTTPEndpoint returns the Streamable HTTP endpoint for this
// server.
func (s *Server) StreamableHTTPEndpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d/mcp", s.BoundPort())
}
