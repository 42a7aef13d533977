// Package reportparser extracts completion reports and verification
// verdicts from an agent's streamed text output, for the path where an
// agent states its result in prose instead of invoking report_to_parent as
// a tool call.
package reportparser

import (
	"regexp"
	"strings"

	"github.com/routa-dev/routa/internal/store"
)

// CompletionReport is the payload a crafter files when it finishes a task.
type CompletionReport struct {
	AgentID             string
	TaskID              string
	Summary             string
	FilesModified       []string
	VerificationResults string
	Success             bool
}

// Verdict is APPROVED or NOT_APPROVED for one task under review.
type Verdict string

const (
	VerdictApproved    Verdict = "APPROVED"
	VerdictNotApproved Verdict = "NOT_APPROVED"
)

var failureKeywords = []string{"FAILED", "blocked", "error"}

var completionMarkers = regexp.MustCompile(`(?i)(task completed|✅\s*done|done\.?\s*$)`)

// ParseCrafterCompletion locates a completion statement in output and
// returns a report with success=true unless a failure keyword appears
// within that statement. Returns nil if no completion statement is found at
// all; callers fall back to other signals (e.g. the agent status).
func ParseCrafterCompletion(agentID string, output string, task *store.Task) *CompletionReport {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil
	}

	statement := trimmed
	if loc := completionMarkers.FindStringIndex(trimmed); loc != nil {
		// Take the sentence/paragraph containing the marker through to the
		// end of the text; a real agent's completion statement is
		// typically the closing paragraph.
		start := loc[0]
		if nl := strings.LastIndex(trimmed[:start], "\n\n"); nl >= 0 {
			start = nl + 2
		}
		statement = trimmed[start:]
	} else {
		// No explicit marker: treat the final paragraph as the statement.
		parts := strings.Split(trimmed, "\n\n")
		statement = parts[len(parts)-1]
	}

	success := true
	lower := statement
	for _, kw := range failureKeywords {
		if containsFold(lower, kw) {
			success = false
			break
		}
	}

	taskID := ""
	if task != nil {
		taskID = task.ID
	}

	return &CompletionReport{
		AgentID: agentID,
		TaskID:  taskID,
		Summary: strings.TrimSpace(statement),
		Success: success,
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

var (
	approvedToken    = regexp.MustCompile(`(?i)\bAPPROVED\b`)
	checkMark        = "✅"
	notApprovedToken = regexp.MustCompile(`(?i)\bNOT\s+APPROVED\b`)
	crossMark        = "❌"
	needsFixToken    = regexp.MustCompile(`(?i)\bNEEDS\s+FIX\b`)
)

// reviewTask is the minimal shape the verdict parser needs per task under
// review: its id and title, so markers like "APPROVED for <title/id>" can
// bind to the right task.
type reviewTask struct {
	ID    string
	Title string
}

// ParseGateVerdicts scans output for per-task verdicts among reviewTasks
// (each a *store.Task currently REVIEW_REQUIRED). When no per-task marker
// is found anywhere but a blanket APPROVED/✅ appears, every task inherits
// APPROVED.
func ParseGateVerdicts(gateAgentID string, output string, reviewTasks []*store.Task) map[string]Verdict {
	result := make(map[string]Verdict, len(reviewTasks))
	tasks := make([]reviewTask, len(reviewTasks))
	for i, t := range reviewTasks {
		tasks[i] = reviewTask{ID: t.ID, Title: t.Title}
	}

	anyPerTaskMarker := false
	for _, t := range tasks {
		if verdict, found := findPerTaskVerdict(output, t); found {
			result[t.ID] = verdict
			anyPerTaskMarker = true
		}
	}

	if !anyPerTaskMarker {
		blanket := VerdictNotApproved
		if hasBlanketApproval(output) {
			blanket = VerdictApproved
		}
		for _, t := range tasks {
			result[t.ID] = blanket
		}
		return result
	}

	// Per-task markers found for some tasks; any task with no marker at all
	// defaults to NOT_APPROVED (never silently inherits an unrelated task's
	// verdict).
	for _, t := range tasks {
		if _, ok := result[t.ID]; !ok {
			result[t.ID] = VerdictNotApproved
		}
	}
	return result
}

func findPerTaskVerdict(output string, t reviewTask) (Verdict, bool) {
	posPattern := regexp.MustCompile(`(?i)APPROVED\s+for\s+` + regexp.QuoteMeta(t.Title))
	posPatternID := regexp.MustCompile(`(?i)APPROVED\s+for\s+` + regexp.QuoteMeta(t.ID))
	negPattern := regexp.MustCompile(`(?i)NOT\s+APPROVED\s+for\s+` + regexp.QuoteMeta(t.Title))
	negPatternID := regexp.MustCompile(`(?i)NOT\s+APPROVED\s+for\s+` + regexp.QuoteMeta(t.ID))

	if negPattern.MatchString(output) || negPatternID.MatchString(output) {
		return VerdictNotApproved, true
	}
	if posPattern.MatchString(output) || posPatternID.MatchString(output) {
		return VerdictApproved, true
	}
	return "", false
}

func hasBlanketApproval(output string) bool {
	if notApprovedToken.MatchString(output) || strings.Contains(output, crossMark) || needsFixToken.MatchString(output) {
		return false
	}
	return approvedToken.MatchString(output) || strings.Contains(output, checkMark)
}
