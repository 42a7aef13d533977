package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/pipeline"
	"github.com/routa-dev/routa/internal/provider"
)

// relayEvent is one notification forwarded to connected observers: a phase
// transition or a streamed provider chunk. Transport shells stay out of
// the engine packages, so this lives only in the CLI shell; it is a
// minimal surface for local observation rather than a full API gateway.
type relayEvent struct {
	Kind      string `json:"kind"` // "phase" or "chunk"
	Phase     string `json:"phase,omitempty"`
	Wave      int    `json:"wave,omitempty"`
	TaskCount int    `json:"taskCount,omitempty"`
	Chunk     *struct {
		Type     string `json:"type"`
		Content  string `json:"content,omitempty"`
		ToolName string `json:"toolName,omitempty"`
		Status   string `json:"status,omitempty"`
	} `json:"chunk,omitempty"`
}

// relay fans phase/stream callbacks out to every connected websocket client.
type relay struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	httpServer *http.Server
}

func newRelay(log *logger.Logger) *relay {
	return &relay{
		logger: log.WithFields(zap.String("component", "relay")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (r *relay) broadcast(evt relayEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("marshal relay event", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			r.logger.Debug("relay write error, dropping client", zap.Error(err))
			conn.Close()
			delete(r.clients, conn)
		}
	}
}

func (r *relay) onPhaseChange(evt pipeline.PhaseEvent) {
	r.broadcast(relayEvent{Kind: "phase", Phase: string(evt.Phase), Wave: evt.Wave, TaskCount: evt.TaskCount})
}

func (r *relay) onStreamChunk(c provider.Chunk) {
	r.broadcast(relayEvent{Kind: "chunk", Chunk: &struct {
		Type     string `json:"type"`
		Content  string `json:"content,omitempty"`
		ToolName string `json:"toolName,omitempty"`
		Status   string `json:"status,omitempty"`
	}{Type: string(c.Type), Content: c.Content, ToolName: c.ToolName, Status: string(c.Status)}})
}

func (r *relay) handleWS(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Error("relay websocket upgrade failed", zap.Error(err))
		return
	}
	r.mu.Lock()
	r.clients[conn] = struct{}{}
	r.mu.Unlock()
}

// start binds a gin server exposing only the relay's websocket endpoint.
func (r *relay) start(port int) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/relay", r.handleWS)

	r.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: router}
	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("relay server stopped", zap.Error(err))
		}
	}()
	r.logger.Info("relay listening", zap.Int("port", port))
	return nil
}

func (r *relay) stop(ctx context.Context) error {
	r.mu.Lock()
	for conn := range r.clients {
		conn.Close()
	}
	r.clients = make(map[*websocket.Conn]struct{})
	r.mu.Unlock()

	if r.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.httpServer.Shutdown(shutdownCtx)
}
