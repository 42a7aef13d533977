package acp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coder/acp-go-sdk"
	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/routaerr"
	"github.com/routa-dev/routa/internal/store"
)

// modeForRole maps a role to the ACP session mode id: ROUTA and GATE run in
// "plan" mode and are never permitted to edit files; CRAFTER runs in
// "build" mode.
func modeForRole(role provider.Role) acp.SessionModeId {
	if role == store.RoleCrafter {
		return "build"
	}
	return "plan"
}

// Provider drives external coding agents over ACP: one subprocess per
// agent id, speaking the protocol over stdio.
type Provider struct {
	caps    provider.Capabilities
	preset  Preset
	workDir string
	log     *logger.Logger

	mu        sync.Mutex
	processes map[string]*process // agentID -> process
}

var _ provider.Provider = (*Provider)(nil)

// New creates an ACP provider bound to a single external agent command
// (preset). caps should reflect what that concrete agent binary supports;
// the router uses it to decide whether this provider can serve a role.
func New(caps provider.Capabilities, preset Preset, log *logger.Logger) *Provider {
	return &Provider{
		caps:      caps,
		preset:    preset,
		log:       log,
		processes: make(map[string]*process),
	}
}

func (p *Provider) getOrSpawn(ctx context.Context, agentID string) (*process, error) {
	p.mu.Lock()
	proc, ok := p.processes[agentID]
	p.mu.Unlock()
	if ok && proc.alive() {
		return proc, nil
	}

	proc = newProcess(p.preset, p.log.WithAgentID(agentID))
	if err := proc.spawn(ctx, p.preset.WorkDir, nil); err != nil {
		return nil, routaerr.Transient(fmt.Errorf("spawn acp agent %s: %w", agentID, err))
	}

	p.mu.Lock()
	p.processes[agentID] = proc
	p.mu.Unlock()
	return proc, nil
}

func (p *Provider) Run(ctx context.Context, role provider.Role, agentID, prompt string) (string, error) {
	return p.RunStreaming(ctx, role, agentID, prompt, nil)
}

func (p *Provider) RunStreaming(ctx context.Context, role provider.Role, agentID, prompt string, onChunk provider.OnChunk) (string, error) {
	proc, err := p.getOrSpawn(ctx, agentID)
	if err != nil {
		return "", err
	}

	proc.turnMu.Lock()
	defer proc.turnMu.Unlock()

	if _, err := proc.conn.SetSessionMode(ctx, acp.SetSessionModeRequest{
		SessionId: proc.sessionID,
		ModeId:    modeForRole(role),
	}); err != nil {
		return "", routaerr.Transient(fmt.Errorf("acp session/set_mode: %w", err))
	}

	var collected strings.Builder
	sink := onChunk
	if sink == nil {
		sink = func(provider.Chunk) {}
	}
	proc.client.setChunkSink(func(c provider.Chunk) {
		if c.Type == provider.ChunkText {
			collected.WriteString(c.Content)
		}
		sink(c)
	})
	defer proc.client.setChunkSink(nil)

	resp, err := proc.conn.Prompt(ctx, acp.PromptRequest{
		SessionId: proc.sessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(prompt)},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", routaerr.Cancelled()
		}
		return "", routaerr.Transient(fmt.Errorf("acp session/prompt: %w", err))
	}

	switch string(resp.StopReason) {
	case "cancelled":
		return collected.String(), routaerr.Cancelled()
	case "refusal", "max_turn_requests", "max_tokens":
		return collected.String(), routaerr.PipelineFailure("acp_prompt", fmt.Errorf("agent stopped: %s", resp.StopReason))
	}
	return collected.String(), nil
}

func (p *Provider) IsHealthy(agentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	proc, ok := p.processes[agentID]
	return ok && proc.alive()
}

func (p *Provider) Interrupt(agentID string) {
	p.mu.Lock()
	proc, ok := p.processes[agentID]
	p.mu.Unlock()
	if !ok {
		return
	}
	_ = proc.conn.Cancel(context.Background(), acp.CancelNotification{SessionId: proc.sessionID})
}

func (p *Provider) Cleanup(agentID string) {
	p.mu.Lock()
	proc, ok := p.processes[agentID]
	delete(p.processes, agentID)
	p.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	proc.stop(ctx)
}

func (p *Provider) Shutdown() {
	p.mu.Lock()
	all := make([]*process, 0, len(p.processes))
	for _, proc := range p.processes {
		all = append(all, proc)
	}
	p.processes = make(map[string]*process)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, proc := range all {
		proc.stop(ctx)
	}
}

func (p *Provider) Capabilities() provider.Capabilities { return p.caps }
