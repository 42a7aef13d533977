// Package llm implements a direct (non-subprocess) provider backed by the
// Anthropic Claude Messages API. Unlike the ACP provider, which hands
// tool-calling off to an external agent binary speaking the Agent Client
// Protocol, this provider owns the tool-calling loop itself: it keeps a
// per-agent message history, sends it to Claude with the coordination tool
// surface (internal/agenttools) advertised as Claude tools, and feeds
// tool_use blocks back through the Toolset until the model stops asking
// for more.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/routaerr"
)

const (
	defaultMaxTokens = 4096
	// maxToolTurns bounds a single Run call's tool-calling loop so a model
	// stuck calling tools forever cannot hang a pipeline stage.
	maxToolTurns = 12
)

// MessagesClient is the subset of the Anthropic SDK's message service this
// provider calls, satisfied by *sdk.MessageService or a test double.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the provider.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// session is one agent's running conversation with Claude, built up across
// Run calls the way an ACP process's session persists across prompts.
type session struct {
	mu      sync.Mutex
	history []sdk.MessageParam
}

// Provider executes turns against the Anthropic Messages API.
type Provider struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
	tools       *agenttools.Toolset
	log         *logger.Logger
	caps        provider.Capabilities

	mu       sync.Mutex
	sessions map[string]*session
}

var _ provider.Provider = (*Provider)(nil)

// New builds an LLM provider from a Messages client, options, the Agent
// Tools surface it should dispatch tool calls to, and a logger.
func New(msg MessagesClient, opts Options, tools *agenttools.Toolset, log *logger.Logger) *Provider {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Provider{
		msg:         msg,
		model:       opts.Model,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		tools:       tools,
		log:         log,
		sessions:    make(map[string]*session),
		// SupportsTerminal is false: this provider has no terminal/command-
		// execution tool in its surface, only the Agent Tools file and
		// coordination operations, so the capability router only ever
		// selects it for ROUTA (SupportsToolCalling), never CRAFTER or GATE
		// (both require SupportsTerminal). Those roles route to an ACP
		// provider fronting a real coding agent binary instead.
		caps: provider.Capabilities{
			Name:                "anthropic-llm",
			SupportsStreaming:   true,
			SupportsInterrupt:   false,
			SupportsHealthCheck: true,
			SupportsFileEditing: true,
			SupportsTerminal:    false,
			SupportsToolCalling: true,
			MaxConcurrentAgents: 0,
			Priority:            50,
		},
	}
}

// NewFromAPIKey constructs a provider using the default Anthropic HTTP
// client, authenticating with apiKey via option.WithAPIKey.
func NewFromAPIKey(apiKey string, opts Options, tools *agenttools.Toolset, log *logger.Logger) *Provider {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, opts, tools, log)
}

func (p *Provider) sessionFor(agentID string) *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[agentID]
	if !ok {
		s = &session{}
		p.sessions[agentID] = s
	}
	return s
}

// Run executes one turn without streaming callbacks.
func (p *Provider) Run(ctx context.Context, role provider.Role, agentID, prompt string) (string, error) {
	return p.RunStreaming(ctx, role, agentID, prompt, nil)
}

// RunStreaming executes one turn, running Claude's tool-calling loop to
// completion and streaming TEXT/TOOL_CALL/TOOL_RESULT chunks as they occur.
// The returned string is the concatenation of every text block from all
// assistant turns of this call, tool-requesting ones included.
func (p *Provider) RunStreaming(ctx context.Context, role provider.Role, agentID, prompt string, onChunk provider.OnChunk) (string, error) {
	sess := p.sessionFor(agentID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sink := onChunk
	if sink == nil {
		sink = func(provider.Chunk) {}
	}

	sess.history = append(sess.history, sdk.NewUserMessage(sdk.NewTextBlock(prompt)))
	toolDefs := toolDefinitionsForRole(role)

	var final strings.Builder
	for turn := 0; turn < maxToolTurns; turn++ {
		if ctx.Err() != nil {
			return final.String(), routaerr.Cancelled()
		}

		params := sdk.MessageNewParams{
			Model:     sdk.Model(p.model),
			MaxTokens: int64(p.maxTokens),
			Messages:  sess.history,
		}
		if p.temperature > 0 {
			params.Temperature = sdk.Float(p.temperature)
		}
		if len(toolDefs) > 0 {
			params.Tools = toolDefs
		}

		msg, err := p.msg.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return final.String(), routaerr.Cancelled()
			}
			return final.String(), routaerr.Transient(fmt.Errorf("anthropic messages.new: %w", err))
		}

		assistantBlocks := make([]sdk.ContentBlockParamUnion, 0, len(msg.Content))
		type pendingCall struct {
			id, name string
			input    json.RawMessage
		}
		var calls []pendingCall

		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				if block.Text == "" {
					continue
				}
				final.WriteString(block.Text)
				sink(provider.Chunk{Type: provider.ChunkText, Content: block.Text})
				assistantBlocks = append(assistantBlocks, sdk.NewTextBlock(block.Text))
			case "tool_use":
				var args map[string]any
				_ = json.Unmarshal(block.Input, &args)
				sink(provider.Chunk{Type: provider.ChunkToolCall, ToolName: block.Name, ToolID: block.ID,
					Status: provider.ToolCallPending, Arguments: args})
				assistantBlocks = append(assistantBlocks, sdk.NewToolUseBlock(block.ID, block.Input, block.Name))
				calls = append(calls, pendingCall{id: block.ID, name: block.Name, input: block.Input})
			}
		}

		if len(assistantBlocks) > 0 {
			sess.history = append(sess.history, sdk.NewAssistantMessage(assistantBlocks...))
		}

		if string(msg.StopReason) != "tool_use" || len(calls) == 0 {
			return final.String(), nil
		}

		resultBlocks := make([]sdk.ContentBlockParamUnion, 0, len(calls))
		for _, c := range calls {
			var args map[string]any
			_ = json.Unmarshal(c.input, &args)
			result := dispatch(ctx, p.tools, agentID, c.name, args)
			resultJSON, _ := json.Marshal(result)
			sink(provider.Chunk{Type: provider.ChunkToolResult, ToolName: c.name, ToolID: c.id,
				Status: statusFor(result), Content: string(resultJSON)})
			resultBlocks = append(resultBlocks, sdk.NewToolResultBlock(c.id, string(resultJSON), !result.Success))
		}
		sess.history = append(sess.history, sdk.NewUserMessage(resultBlocks...))
	}

	return final.String(), routaerr.PipelineFailure("llm_provider",
		fmt.Errorf("agent %s exceeded %d tool-calling turns in a single request", agentID, maxToolTurns))
}

func statusFor(r agenttools.Result) provider.ToolCallStatus {
	if r.Success {
		return provider.ToolCallCompleted
	}
	return provider.ToolCallFailed
}

// IsHealthy reports whether agentID has a live session. There is no
// subprocess to crash, so an agent that has run a turn stays healthy until
// its session is dropped; an agent with no session reports false.
func (p *Provider) IsHealthy(agentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[agentID]
	return ok
}

// Interrupt is a no-op: a Messages.New call has no mid-flight cancel
// signal beyond the context passed to RunStreaming.
func (p *Provider) Interrupt(agentID string) {}

// Cleanup drops an agent's session history, freeing its memory.
func (p *Provider) Cleanup(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, agentID)
}

// Shutdown drops every session.
func (p *Provider) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[string]*session)
}

// Capabilities returns this provider's fixed capability record.
func (p *Provider) Capabilities() provider.Capabilities { return p.caps }
