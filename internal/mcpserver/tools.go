package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/store"
)

// registerTools re-exports every coordination tool operation as an MCP tool,
// dispatching each call as callerID against tools. The {success, data|error}
// envelope each Toolset method returns is marshalled unchanged into the MCP
// text-content result.
func registerTools(s *server.MCPServer, callerID string, tools *agenttools.Toolset) {
	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List every agent in a workspace, most recently created first."),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("The workspace ID")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.ListAgents(ctx, callerID, str(args, "workspace_id"))
		}),
	)

	s.AddTool(
		mcp.NewTool("read_agent_conversation",
			mcp.WithDescription("Read another agent's message history: the last N messages, a turn range, or everything."),
			mcp.WithString("target_agent_id", mcp.Required(), mcp.Description("Agent id to read")),
			mcp.WithNumber("last_n", mcp.Description("Return only the last N messages")),
			mcp.WithNumber("start_turn", mcp.Description("First turn of a turn-range query")),
			mcp.WithNumber("end_turn", mcp.Description("Last turn of a turn-range query")),
			mcp.WithBoolean("include_tool_calls", mcp.Description("Include TOOL-role messages; default false")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.ReadAgentConversation(ctx, callerID, str(args, "target_agent_id"), agenttools.ConversationQuery{
				LastN:            intArg(args, "last_n"),
				StartTurn:        intArg(args, "start_turn"),
				EndTurn:          intArg(args, "end_turn"),
				IncludeToolCalls: boolArg(args, "include_tool_calls"),
			})
		}),
	)

	s.AddTool(
		mcp.NewTool("create_agent",
			mcp.WithDescription("Spawn a new child agent under the caller."),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("The workspace ID")),
			mcp.WithString("name", mcp.Required(), mcp.Description("New agent's name")),
			mcp.WithString("role", mcp.Required(), mcp.Description("CRAFTER or GATE")),
			mcp.WithString("tier", mcp.Required(), mcp.Description("SMART or FAST")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.CreateAgent(ctx, callerID, str(args, "workspace_id"), str(args, "name"),
				store.AgentRole(str(args, "role")), store.ModelTier(str(args, "tier")))
		}),
	)

	s.AddTool(
		mcp.NewTool("delegate_task",
			mcp.WithDescription("Assign an existing task to an agent and mark it IN_PROGRESS."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("assignee_id", mcp.Required(), mcp.Description("Agent id to assign the task to")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.DelegateTask(ctx, callerID, str(args, "task_id"), str(args, "assignee_id"))
		}),
	)

	s.AddTool(
		mcp.NewTool("send_message_to_agent",
			mcp.WithDescription("Append a message to another agent's conversation."),
			mcp.WithString("target_agent_id", mcp.Required(), mcp.Description("Agent id to message")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message body")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.SendMessageToAgent(ctx, callerID, str(args, "target_agent_id"), str(args, "content"))
		}),
	)

	s.AddTool(
		mcp.NewTool("report_to_parent",
			mcp.WithDescription("Report a task's completion or failure to the caller's parent agent."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id being reported on")),
			mcp.WithString("summary", mcp.Required(), mcp.Description("Completion summary")),
			mcp.WithBoolean("success", mcp.Required(), mcp.Description("True if the task was completed successfully")),
			mcp.WithArray("files_modified", mcp.Description("Paths changed, if any")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.ReportToParent(ctx, callerID, str(args, "task_id"), str(args, "summary"),
				boolArg(args, "success"), stringSlice(args, "files_modified"))
		}),
	)

	s.AddTool(
		mcp.NewTool("wake_or_create_task_agent",
			mcp.WithDescription("Reactivate the agent assigned to a task with a context message, or spawn and delegate a fresh CRAFTER."),
			mcp.WithString("workspace_id", mcp.Required(), mcp.Description("The workspace ID")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("context_message", mcp.Required(), mcp.Description("Context appended to the agent's conversation")),
			mcp.WithString("name", mcp.Description("Agent name if one must be created")),
			mcp.WithString("tier", mcp.Description("SMART or FAST")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.WakeOrCreateTaskAgent(ctx, callerID, str(args, "workspace_id"), str(args, "task_id"),
				str(args, "context_message"), str(args, "name"), store.ModelTier(str(args, "tier")))
		}),
	)

	s.AddTool(
		mcp.NewTool("send_message_to_task_agent",
			mcp.WithDescription("Send a message to whichever agent a task is currently assigned to."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message body")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.SendMessageToTaskAgent(ctx, callerID, str(args, "task_id"), str(args, "content"))
		}),
	)

	s.AddTool(
		mcp.NewTool("get_agent_status",
			mcp.WithDescription("Get a target agent's identity, status, message count, and assigned tasks."),
			mcp.WithString("target_agent_id", mcp.Required(), mcp.Description("Agent id")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.GetAgentStatus(ctx, callerID, str(args, "target_agent_id"))
		}),
	)

	s.AddTool(
		mcp.NewTool("get_agent_summary",
			mcp.WithDescription("Get an agent's status, last assistant response excerpt, tool-call count, and active tasks."),
			mcp.WithString("target_agent_id", mcp.Required(), mcp.Description("Agent id")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.GetAgentSummary(ctx, callerID, str(args, "target_agent_id"))
		}),
	)

	s.AddTool(
		mcp.NewTool("subscribe_to_events",
			mcp.WithDescription("Subscribe to the workspace event bus, optionally filtered by event type."),
			mcp.WithArray("event_types", mcp.Description("Event type names to match; empty means all")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.SubscribeToEvents(ctx, callerID, eventbus.Filter{EventTypes: eventTypes(args, "event_types")})
		}),
	)

	s.AddTool(
		mcp.NewTool("unsubscribe_from_events",
			mcp.WithDescription("Cancel a previous event subscription."),
			mcp.WithString("subscription_id", mcp.Required(), mcp.Description("Subscription id returned by subscribe_to_events")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.UnsubscribeFromEvents(ctx, callerID, str(args, "subscription_id"))
		}),
	)

	s.AddTool(
		mcp.NewTool("read_file",
			mcp.WithDescription("Read a file relative to the workspace root."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative file path")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.ReadFile(ctx, callerID, str(args, "path"))
		}),
	)

	s.AddTool(
		mcp.NewTool("list_files",
			mcp.WithDescription("List entries directly under a workspace-relative directory."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative directory path")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.ListFiles(ctx, callerID, str(args, "path"))
		}),
	)

	s.AddTool(
		mcp.NewTool("write_file",
			mcp.WithDescription("Write content to a workspace-relative path, creating parent directories as needed."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative file path")),
			mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		),
		handle(func(ctx context.Context, args map[string]any) agenttools.Result {
			return tools.WriteFile(ctx, callerID, str(args, "path"), str(args, "content"))
		}),
	)
}

// handle adapts a (ctx, args) -> Result function into an MCP tool handler.
// Every Result, success or failure, is returned as tool text content rather
// than a protocol-level error, since a failed Agent Tools call (e.g. a
// role violation) is a normal, structured outcome a caller must branch on,
// not a transport fault.
func handle(fn func(ctx context.Context, args map[string]any) agenttools.Result) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fn(ctx, req.GetArguments())
		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func str(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func stringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func eventTypes(args map[string]any, key string) []eventbus.EventType {
	raw := stringSlice(args, key)
	if len(raw) == 0 {
		return nil
	}
	out := make([]eventbus.EventType, 0, len(raw))
	for _, s := range raw {
		out = append(out, eventbus.EventType(s))
	}
	return out
}
