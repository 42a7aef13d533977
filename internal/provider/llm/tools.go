package llm

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/store"
)

// toolSpec is one entry in the Agent Tools surface advertised to Claude.
type toolSpec struct {
	name        string
	description string
	schema      map[string]any
	// excludedFor lists roles that never see this tool offered at all, a
	// first line of defense ahead of agenttools.requireNotRole's
	// server-side enforcement: a model that is never offered create_agent
	// cannot accidentally call it.
	excludedFor []provider.Role
}

func strProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

var toolCatalog = []toolSpec{
	{
		name:        "list_agents",
		description: "List every agent in a workspace, most recently created first.",
		schema: object(map[string]any{
			"workspaceId": strProp("workspace id"),
		}, "workspaceId"),
	},
	{
		name:        "read_agent_conversation",
		description: "Read another agent's message history: the last N messages, a turn range, or everything.",
		schema: object(map[string]any{
			"targetAgentId":    strProp("agent id to read"),
			"lastN":            map[string]any{"type": "integer", "description": "return only the last N messages"},
			"startTurn":        map[string]any{"type": "integer", "description": "first turn of a turn-range query"},
			"endTurn":          map[string]any{"type": "integer", "description": "last turn of a turn-range query"},
			"includeToolCalls": map[string]any{"type": "boolean", "description": "include TOOL-role messages; default false"},
		}, "targetAgentId"),
	},
	{
		name:        "create_agent",
		description: "Spawn a new child agent under the caller.",
		excludedFor: []provider.Role{store.RoleCrafter},
		schema: object(map[string]any{
			"workspaceId": strProp("workspace id"),
			"name":        strProp("new agent's name"),
			"role":        map[string]any{"type": "string", "enum": []string{"CRAFTER", "GATE"}},
			"tier":        map[string]any{"type": "string", "enum": []string{"SMART", "FAST"}},
		}, "workspaceId", "name", "role", "tier"),
	},
	{
		name:        "delegate_task",
		description: "Assign an existing task to an agent and mark it IN_PROGRESS.",
		excludedFor: []provider.Role{store.RoleCrafter},
		schema: object(map[string]any{
			"taskId":     strProp("task id"),
			"assigneeId": strProp("agent id to assign the task to"),
		}, "taskId", "assigneeId"),
	},
	{
		name:        "send_message_to_agent",
		description: "Append a message to another agent's conversation.",
		schema: object(map[string]any{
			"targetAgentId": strProp("agent id to message"),
			"content":       strProp("message body"),
		}, "targetAgentId", "content"),
	},
	{
		name:        "report_to_parent",
		description: "Report a task's completion (or failure) to the caller's parent agent. Transitions the task to COMPLETED or NEEDS_FIX and marks the caller COMPLETED.",
		schema: object(map[string]any{
			"taskId":        strProp("task id being reported on"),
			"summary":       strProp("completion summary"),
			"success":       map[string]any{"type": "boolean", "description": "true if the task was completed successfully"},
			"filesModified": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "paths changed, if any"},
		}, "taskId", "summary", "success"),
	},
	{
		name:        "wake_or_create_task_agent",
		description: "Reactivate the agent assigned to a task with a context message, or spawn and delegate a fresh CRAFTER.",
		excludedFor: []provider.Role{store.RoleCrafter},
		schema: object(map[string]any{
			"workspaceId":    strProp("workspace id"),
			"taskId":         strProp("task id"),
			"contextMessage": strProp("context appended to the agent's conversation"),
			"name":           strProp("agent name if one must be created"),
			"tier":           map[string]any{"type": "string", "enum": []string{"SMART", "FAST"}},
		}, "workspaceId", "taskId", "contextMessage"),
	},
	{
		name:        "send_message_to_task_agent",
		description: "Send a message to whichever agent a task is currently assigned to.",
		schema: object(map[string]any{
			"taskId":  strProp("task id"),
			"content": strProp("message body"),
		}, "taskId", "content"),
	},
	{
		name:        "get_agent_status",
		description: "Get a target agent's identity, status, message count, and assigned tasks.",
		schema: object(map[string]any{
			"targetAgentId": strProp("agent id"),
		}, "targetAgentId"),
	},
	{
		name:        "get_agent_summary",
		description: "Get an agent's status, last assistant response excerpt, tool-call count, and active tasks.",
		schema: object(map[string]any{
			"targetAgentId": strProp("agent id"),
		}, "targetAgentId"),
	},
	{
		name:        "subscribe_to_events",
		description: "Subscribe to the workspace event bus, optionally filtered by event type.",
		schema: object(map[string]any{
			"eventTypes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "event type names to match; empty means all"},
		}),
	},
	{
		name:        "unsubscribe_from_events",
		description: "Cancel a previous event subscription.",
		schema: object(map[string]any{
			"subscriptionId": strProp("subscription id returned by subscribe_to_events"),
		}, "subscriptionId"),
	},
	{
		name:        "read_file",
		description: "Read a file relative to the workspace root.",
		schema: object(map[string]any{
			"path": strProp("workspace-relative file path"),
		}, "path"),
	},
	{
		name:        "list_files",
		description: "List entries directly under a workspace-relative directory.",
		schema: object(map[string]any{
			"path": strProp("workspace-relative directory path"),
		}, "path"),
	},
	{
		name:        "write_file",
		description: "Write content to a workspace-relative path, creating parent directories as needed.",
		excludedFor: []provider.Role{store.RoleRouta, store.RoleGate},
		schema: object(map[string]any{
			"path":    strProp("workspace-relative file path"),
			"content": strProp("file content"),
		}, "path", "content"),
	},
}

func object(properties map[string]any, required ...string) map[string]any {
	m := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

// toolDefinitionsForRole returns the Claude-facing tool list for role,
// dropping any tool excluded for it.
func toolDefinitionsForRole(role provider.Role) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(toolCatalog))
	for _, spec := range toolCatalog {
		skip := false
		for _, ex := range spec.excludedFor {
			if ex == role {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: spec.schema}, spec.name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(spec.description)
		}
		out = append(out, u)
	}
	return out
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

// dispatch routes one Claude tool_use call to the matching Toolset method.
// Unknown tool names and argument errors surface as a failed Result rather
// than a panic, since the input comes from model output.
func dispatch(ctx context.Context, tools *agenttools.Toolset, callerID, name string, args map[string]any) agenttools.Result {
	switch name {
	case "list_agents":
		return tools.ListAgents(ctx, callerID, str(args, "workspaceId"))
	case "read_agent_conversation":
		return tools.ReadAgentConversation(ctx, callerID, str(args, "targetAgentId"), agenttools.ConversationQuery{
			LastN:            intArg(args, "lastN"),
			StartTurn:        intArg(args, "startTurn"),
			EndTurn:          intArg(args, "endTurn"),
			IncludeToolCalls: boolArg(args, "includeToolCalls"),
		})
	case "create_agent":
		return tools.CreateAgent(ctx, callerID, str(args, "workspaceId"), str(args, "name"),
			store.AgentRole(str(args, "role")), store.ModelTier(str(args, "tier")))
	case "delegate_task":
		return tools.DelegateTask(ctx, callerID, str(args, "taskId"), str(args, "assigneeId"))
	case "send_message_to_agent":
		return tools.SendMessageToAgent(ctx, callerID, str(args, "targetAgentId"), str(args, "content"))
	case "report_to_parent":
		return tools.ReportToParent(ctx, callerID, str(args, "taskId"), str(args, "summary"),
			boolArg(args, "success"), stringSlice(args, "filesModified"))
	case "wake_or_create_task_agent":
		return tools.WakeOrCreateTaskAgent(ctx, callerID, str(args, "workspaceId"), str(args, "taskId"),
			str(args, "contextMessage"), str(args, "name"), store.ModelTier(str(args, "tier")))
	case "send_message_to_task_agent":
		return tools.SendMessageToTaskAgent(ctx, callerID, str(args, "taskId"), str(args, "content"))
	case "get_agent_status":
		return tools.GetAgentStatus(ctx, callerID, str(args, "targetAgentId"))
	case "get_agent_summary":
		return tools.GetAgentSummary(ctx, callerID, str(args, "targetAgentId"))
	case "subscribe_to_events":
		return tools.SubscribeToEvents(ctx, callerID, eventbus.Filter{EventTypes: eventTypes(args, "eventTypes")})
	case "unsubscribe_from_events":
		return tools.UnsubscribeFromEvents(ctx, callerID, str(args, "subscriptionId"))
	case "read_file":
		return tools.ReadFile(ctx, callerID, str(args, "path"))
	case "list_files":
		return tools.ListFiles(ctx, callerID, str(args, "path"))
	case "write_file":
		return tools.WriteFile(ctx, callerID, str(args, "path"), str(args, "content"))
	default:
		return agenttools.Result{Success: false, Error: "unknown tool: " + name}
	}
}
