package acp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coder/acp-go-sdk"
	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/pathsafe"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/routaerr"
	"go.uber.org/zap"
)

var errUnsupportedTerminal = routaerr.Validation("terminal extension not supported by this deployment")

// clientAdapter implements the acp.Client side of the connection: it answers
// the agent subprocess's requests (permission, file I/O, terminal) and
// receives session/update notifications, translating the latter into
// provider.Chunk values delivered to the turn's onChunk callback.
type clientAdapter struct {
	logger      *logger.Logger
	workDir     string
	autoApprove bool

	mu      sync.Mutex
	onChunk provider.OnChunk // set for the duration of a single turn
}

func newClientAdapter(log *logger.Logger, workDir string, autoApprove bool) *clientAdapter {
	return &clientAdapter{logger: log, workDir: workDir, autoApprove: autoApprove}
}

func (c *clientAdapter) setChunkSink(fn provider.OnChunk) {
	c.mu.Lock()
	c.onChunk = fn
	c.mu.Unlock()
}

func (c *clientAdapter) emit(ch provider.Chunk) {
	c.mu.Lock()
	sink := c.onChunk
	c.mu.Unlock()
	if sink != nil {
		sink(ch)
	}
}

// SessionUpdate handles the agent's session/update notification. Update is
// a union struct with one non-nil variant field per notification; each
// variant translates to a provider.Chunk.
func (c *clientAdapter) SessionUpdate(ctx context.Context, params acp.SessionNotification) error {
	u := params.Update
	switch {
	case u.AgentMessageChunk != nil:
		if u.AgentMessageChunk.Content.Text != nil {
			c.emit(provider.Chunk{Type: provider.ChunkText, Content: u.AgentMessageChunk.Content.Text.Text})
		}
	case u.AgentThoughtChunk != nil:
		if u.AgentThoughtChunk.Content.Text != nil {
			c.emit(provider.Chunk{Type: provider.ChunkThought, Content: u.AgentThoughtChunk.Content.Text.Text})
		}
	case u.ToolCall != nil:
		name := string(u.ToolCall.Kind)
		if name == "" {
			name = u.ToolCall.Title
		}
		status := string(u.ToolCall.Status)
		if status == "" {
			status = string(provider.ToolCallRunning)
		}
		c.emit(provider.Chunk{
			Type:     provider.ChunkToolCall,
			ToolName: name,
			ToolID:   string(u.ToolCall.ToolCallId),
			Status:   provider.ToolCallStatus(status),
		})
	case u.ToolCallUpdate != nil:
		status := ""
		if u.ToolCallUpdate.Status != nil {
			status = string(*u.ToolCallUpdate.Status)
		}
		c.emit(provider.Chunk{
			Type:   provider.ChunkToolResult,
			ToolID: string(u.ToolCallUpdate.ToolCallId),
			Status: provider.ToolCallStatus(status),
		})
	case u.Plan != nil:
		c.emit(provider.Chunk{Type: provider.ChunkPlan, Content: planText(u.Plan)})
	}
	return nil
}

// RequestPermission answers an agent's permission/request: auto-approved
// when the preset allows it, otherwise denied. Routa runs unattended, so
// there is no human in the loop to prompt.
func (c *clientAdapter) RequestPermission(ctx context.Context, params acp.RequestPermissionRequest) (acp.RequestPermissionResponse, error) {
	if !c.autoApprove {
		c.logger.Debug("denying permission request, auto-approve disabled",
			zap.Int("num_options", len(params.Options)))
		return acp.RequestPermissionResponse{
			Outcome: acp.RequestPermissionOutcome{
				Cancelled: &acp.RequestPermissionOutcomeCancelled{},
			},
		}, nil
	}
	for _, opt := range params.Options {
		if opt.Kind == acp.PermissionOptionKindAllowOnce || opt.Kind == acp.PermissionOptionKindAllowAlways {
			return acp.RequestPermissionResponse{
				Outcome: acp.RequestPermissionOutcome{
					Selected: &acp.RequestPermissionOutcomeSelected{OptionId: opt.OptionId},
				},
			}, nil
		}
	}
	return acp.RequestPermissionResponse{
		Outcome: acp.RequestPermissionOutcome{
			Cancelled: &acp.RequestPermissionOutcomeCancelled{},
		},
	}, nil
}

// ReadTextFile and WriteTextFile are scoped to workDir using the same
// path-escape guard as the agent tools (pathsafe.Resolve).
func (c *clientAdapter) ReadTextFile(ctx context.Context, params acp.ReadTextFileRequest) (acp.ReadTextFileResponse, error) {
	c.logger.Debug("reading file", zap.String("path", params.Path))
	abs, err := pathsafe.Resolve(c.workDir, params.Path)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return acp.ReadTextFileResponse{}, err
	}
	return acp.ReadTextFileResponse{Content: string(data)}, nil
}

func (c *clientAdapter) WriteTextFile(ctx context.Context, params acp.WriteTextFileRequest) (acp.WriteTextFileResponse, error) {
	c.logger.Debug("writing file", zap.String("path", params.Path))
	abs, err := pathsafe.Resolve(c.workDir, params.Path)
	if err != nil {
		return acp.WriteTextFileResponse{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return acp.WriteTextFileResponse{}, err
	}
	if err := os.WriteFile(abs, []byte(params.Content), 0o644); err != nil {
		return acp.WriteTextFileResponse{}, err
	}
	return acp.WriteTextFileResponse{}, nil
}

// Terminal operations are not offered to agents in this deployment: CRAFTER
// and GATE run shell commands through their own subprocess's native shell
// tool, not through the ACP terminal extension. These return a
// not-supported error rather than silently no-op'ing.
func (c *clientAdapter) CreateTerminal(ctx context.Context, params acp.CreateTerminalRequest) (acp.CreateTerminalResponse, error) {
	return acp.CreateTerminalResponse{}, errUnsupportedTerminal
}
func (c *clientAdapter) TerminalOutput(ctx context.Context, params acp.TerminalOutputRequest) (acp.TerminalOutputResponse, error) {
	return acp.TerminalOutputResponse{}, errUnsupportedTerminal
}
func (c *clientAdapter) ReleaseTerminal(ctx context.Context, params acp.ReleaseTerminalRequest) (acp.ReleaseTerminalResponse, error) {
	return acp.ReleaseTerminalResponse{}, errUnsupportedTerminal
}
func (c *clientAdapter) WaitForTerminalExit(ctx context.Context, params acp.WaitForTerminalExitRequest) (acp.WaitForTerminalExitResponse, error) {
	return acp.WaitForTerminalExitResponse{}, errUnsupportedTerminal
}
func (c *clientAdapter) KillTerminalCommand(ctx context.Context, params acp.KillTerminalCommandRequest) (acp.KillTerminalCommandResponse, error) {
	return acp.KillTerminalCommandResponse{}, errUnsupportedTerminal
}

func planText(p *acp.SessionUpdatePlan) string {
	var sb strings.Builder
	for _, entry := range p.Entries {
		sb.WriteString("- ")
		sb.WriteString(entry.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
