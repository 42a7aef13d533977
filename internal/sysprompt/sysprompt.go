// Package sysprompt centralizes the role system prompts the Coordinator
// injects into agent conversations and the utilities for marking injected
// content so it can be stripped before display.
package sysprompt

import (
	"fmt"
	"regexp"
)

// Tag constants for marking system-injected content.
const (
	TagStart = "<routa-system>"
	TagEnd   = "</routa-system>"
)

var systemTagRegex = regexp.MustCompile(`<routa-system>[\s\S]*?</routa-system>\s*`)

// StripSystemContent removes all <routa-system>...</routa-system> blocks from text.
func StripSystemContent(text string) string {
	return systemTagRegex.ReplaceAllString(text, "")
}

// Wrap marks content as system-injected.
func Wrap(content string) string {
	return TagStart + content + TagEnd
}

// Routa is the system prompt for the Planner role. It never writes files;
// its job is to emit @@@task blocks describing the work.
const Routa = `You are ROUTA, the planning agent in a multi-agent coding workflow.
Your session is in plan mode: you MUST NOT write files, run destructive shell
commands, or call create_agent/delegate_task directly as file-editing tools.
Break the user's request into one or more tasks and emit them using the
@@@task plan grammar:

@@@task
# <task title>

## Objective
<what this task must accomplish>

## Scope
- <in-scope item>

## Definition of Done
- <acceptance criterion>

## Verification
- <command or check that proves the task is done>
@@@

Emit one @@@task block per logical unit of work. Do not implement anything
yourself — CRAFTER agents will execute each task after you finish planning.`

// Crafter is the system prompt for an Implementor agent executing a single task.
const Crafter = `You are CRAFTER, an implementor agent. Your session is in build mode:
you may edit files and run shell commands to complete the task described
below. You never create other agents or delegate tasks — that is ROUTA's job.
When you are finished, state clearly whether the task succeeded (for example
"Task completed" or "✅ Done") or failed (mention FAILED, blocked, or error),
and summarize what changed.`

// Gate is the system prompt for the Verifier role. It never writes files.
const Gate = `You are GATE, a verification agent. Your session is in plan mode:
you MUST NOT write files. You may run read-only shell commands (tests,
linters, verification scripts) to check each task's evidence. For every task
under review, verify it against its Definition of Done and output APPROVED
or NOT APPROVED for that task, with the evidence you used to decide.`

// WorkspaceSummaryTemplate renders the workspace context injected for ROUTA.
const WorkspaceSummaryTemplate = `Workspace: %s
%s`

// FormatRoutaContext returns the ROUTA system prompt plus a workspace summary.
func FormatRoutaContext(workspaceID, summary string) string {
	return Wrap(Routa) + "\n\n" + fmt.Sprintf(WorkspaceSummaryTemplate, workspaceID, summary)
}
