package reportparser

import (
	"testing"

	"github.com/routa-dev/routa/internal/store"
	"github.com/stretchr/testify/require"
)

func TestParseCrafterCompletion_Success(t *testing.T) {
	report := ParseCrafterCompletion("agent1", "I added the function.\n\nTask completed. Everything passes.", &store.Task{ID: "t1"})
	require.NotNil(t, report)
	require.True(t, report.Success)
	require.Equal(t, "t1", report.TaskID)
}

func TestParseCrafterCompletion_FailureKeyword(t *testing.T) {
	report := ParseCrafterCompletion("agent1", "Task completed but tests FAILED to run.", &store.Task{ID: "t1"})
	require.NotNil(t, report)
	require.False(t, report.Success)
}

func TestParseCrafterCompletion_BlockedKeyword(t *testing.T) {
	report := ParseCrafterCompletion("agent1", "I'm blocked — missing credentials.", &store.Task{ID: "t1"})
	require.NotNil(t, report)
	require.False(t, report.Success)
}

func TestParseCrafterCompletion_EmptyOutput(t *testing.T) {
	report := ParseCrafterCompletion("agent1", "   ", &store.Task{ID: "t1"})
	require.Nil(t, report)
}

func TestParseGateVerdicts_BlanketApproved(t *testing.T) {
	tasks := []*store.Task{{ID: "t1", Title: "Add greet"}}
	verdicts := ParseGateVerdicts("gate1", "APPROVED", tasks)
	require.Equal(t, VerdictApproved, verdicts["t1"])
}

func TestParseGateVerdicts_BlanketNotApproved(t *testing.T) {
	tasks := []*store.Task{{ID: "t1", Title: "Add greet"}}
	verdicts := ParseGateVerdicts("gate1", "NOT APPROVED, missing tests", tasks)
	require.Equal(t, VerdictNotApproved, verdicts["t1"])
}

func TestParseGateVerdicts_PerTaskBinding(t *testing.T) {
	tasks := []*store.Task{
		{ID: "t1", Title: "Add greet"},
		{ID: "t2", Title: "Add farewell"},
	}
	output := "APPROVED for Add greet\nNOT APPROVED for Add farewell — missing test"
	verdicts := ParseGateVerdicts("gate1", output, tasks)
	require.Equal(t, VerdictApproved, verdicts["t1"])
	require.Equal(t, VerdictNotApproved, verdicts["t2"])
}

func TestParseGateVerdicts_UnmatchedTaskDefaultsNotApproved(t *testing.T) {
	tasks := []*store.Task{
		{ID: "t1", Title: "Add greet"},
		{ID: "t2", Title: "Add farewell"},
	}
	output := "APPROVED for Add greet"
	verdicts := ParseGateVerdicts("gate1", output, tasks)
	require.Equal(t, VerdictApproved, verdicts["t1"])
	require.Equal(t, VerdictNotApproved, verdicts["t2"])
}

func TestParseGateVerdicts_EmojiMarkers(t *testing.T) {
	tasks := []*store.Task{{ID: "t1", Title: "Add greet"}}
	verdicts := ParseGateVerdicts("gate1", "✅ looks good", tasks)
	require.Equal(t, VerdictApproved, verdicts["t1"])
}
