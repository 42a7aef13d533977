// Package taskparser extracts Task objects from free-form LLM plan text
// using the @@@task grammar. The scan is stateful and line-by-line so that
// fenced code blocks inside a task body, e.g. a bash comment inside a
// Verification section's fenced example, are never mistaken for a level-1
// heading or block terminator; a naive regex-only parser gets this wrong.
package taskparser

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/routa-dev/routa/internal/store"
)

var blockStartRe = regexp.MustCompile(`^#{0,6}\s*@@@tasks?\s*$`)

const fence = "```"

// sectionAlias maps every recognized (case-exact, stripped) heading spelling
// to its canonical section.
var sectionAlias = map[string]string{
	"Objective": "objective",
	"Goal":      "objective",
	"目标":        "objective",
	"目的":        "objective",

	"Scope": "scope",
	"范围":    "scope",
	"作用域":   "scope",

	"Definition of Done": "dod",
	"Acceptance Criteria": "dod",
	"Done Criteria":       "dod",
	"完成标准":                "dod",
	"验收标准":                "dod",
	"完成条件":                "dod",

	"Verification": "verification",
	"Verify":       "verification",
	"验证":           "verification",
	"验证方法":         "verification",
	"测试验证":         "verification",
}

// Parse extracts every task from plan text, normalizing CRLF to LF first.
// Blank input yields an empty (non-nil) slice. Malformed blocks (missing
// closing "@@@") are dropped entirely.
func Parse(planText, workspaceID string) []*store.Task {
	text := strings.ReplaceAll(planText, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return []*store.Task{}
	}

	lines := strings.Split(text, "\n")
	blocks := extractBlocks(lines)

	tasks := make([]*store.Task, 0)
	for _, block := range blocks {
		for _, sub := range splitBlockIntoSubBlocks(block) {
			if task := parseTask(sub, workspaceID); task != nil {
				tasks = append(tasks, task)
			}
		}
	}
	return tasks
}

// extractBlocks performs the stateful scan for rule 1/2/3: find
// @@@task(s)...@@@ spans, tracking fenced-code state inside each span so an
// internal ``` fence can hide a literal "@@@" terminator from bash examples
// without prematurely closing the block. Blocks never closed by EOF are
// dropped.
func extractBlocks(lines []string) [][]string {
	var blocks [][]string
	i := 0
	for i < len(lines) {
		if !blockStartRe.MatchString(strings.TrimSpace(lines[i])) {
			i++
			continue
		}
		i++ // consume the @@@task(s) line
		var body []string
		fenced := false
		closed := false
		for i < len(lines) {
			line := lines[i]
			trimmed := strings.TrimSpace(line)
			if !fenced && trimmed == "@@@" {
				closed = true
				i++
				break
			}
			if strings.HasPrefix(strings.TrimLeft(line, " \t"), fence) {
				fenced = !fenced
			}
			body = append(body, line)
			i++
		}
		if closed {
			blocks = append(blocks, body)
		}
		// If not closed (ran off EOF), the block is malformed and dropped.
	}
	return blocks
}

// splitBlockIntoSubBlocks implements rule 4: a single @@@task block may
// contain multiple tasks, split at each line outside fenced state starting
// with "# " (level-1, not "## ").
func splitBlockIntoSubBlocks(body []string) [][]string {
	var subBlocks [][]string
	var current []string
	fenced := false
	started := false

	isLevel1Heading := func(line string) bool {
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, "# ") {
			return false
		}
		return !strings.HasPrefix(trimmed, "## ")
	}

	for _, line := range body {
		if !fenced && isLevel1Heading(line) {
			if started {
				subBlocks = append(subBlocks, current)
			}
			current = []string{}
			started = true
		}
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), fence) {
			fenced = !fenced
		}
		if started {
			current = append(current, line)
		}
	}
	if started {
		subBlocks = append(subBlocks, current)
	}
	if len(subBlocks) == 0 {
		// No level-1 heading at all: treat whole block as one candidate
		// (will be discarded by parseTask for lack of a title).
		subBlocks = append(subBlocks, body)
	}
	return subBlocks
}

// parseTask extracts the title, objective, and list sections from a single
// sub-block. Returns nil if no level-1 heading title is found.
func parseTask(lines []string, workspaceID string) *store.Task {
	title := ""
	titleIdx := -1
	fenced := false
	for idx, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if !fenced && strings.HasPrefix(trimmed, "# ") && !strings.HasPrefix(trimmed, "## ") {
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			titleIdx = idx
			break
		}
		if strings.HasPrefix(trimmed, fence) {
			fenced = !fenced
		}
	}
	if titleIdx == -1 || title == "" {
		return nil
	}

	content := lines[titleIdx+1:]
	sections := extractSections(content)

	task := &store.Task{
		ID:                   uuid.New().String(),
		Title:                title,
		WorkspaceID:          workspaceID,
		Status:               store.TaskStatusPending,
		Objective:            strings.TrimSpace(sections["objective"]),
		Scope:                listItems(sections["scope"]),
		AcceptanceCriteria:   listItems(sections["dod"]),
		VerificationCommands: listItems(sections["verification"]),
	}
	return task
}

// extractSections scans content for "## SectionName" headings outside
// fenced state and returns the raw body text per canonical section key.
func extractSections(lines []string) map[string]string {
	sections := make(map[string]string)
	fenced := false
	current := ""
	var body []string

	flush := func() {
		if current != "" {
			sections[current] = strings.Join(body, "\n")
		}
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if !fenced && strings.HasPrefix(trimmed, "## ") {
			flush()
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			if canonical, ok := sectionAlias[name]; ok {
				current = canonical
			} else {
				current = ""
			}
			continue
		}
		if strings.HasPrefix(trimmed, fence) {
			fenced = !fenced
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()
	return sections
}

// listItems extracts every line whose trimmed form starts with "-" from a
// section body, stripping the prefix and skipping empties.
func listItems(sectionBody string) []string {
	if sectionBody == "" {
		return []string{}
	}
	var items []string
	for _, line := range strings.Split(sectionBody, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		if item != "" {
			items = append(items, item)
		}
	}
	if items == nil {
		return []string{}
	}
	return items
}
