package specialists

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.onboarding/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC) // a Friday
}

func dueIn(days int) time.Time {
	return fixedNow().AddDate(0, 0, days)
}

func TestBuildTimelineBucketsByDueDate(t *testing.T) {
	tasks := []models.Task{
		{ID: 1, Title: "overdue task", Status: "NOT_STARTED", DueDate: dueIn(-2)},
		{ID: 2, Title: "today task", Status: "NOT_STARTED", DueDate: dueIn(0)},
		{ID: 3, Title: "this week task", Status: "NOT_STARTED", DueDate: dueIn(2)},
		{ID: 4, Title: "next week task", Status: "NOT_STARTED", DueDate: dueIn(9)},
		{ID: 5, Title: "later task", Status: "NOT_STARTED", DueDate: dueIn(30)},
		{ID: 6, Title: "done task", Status: "DONE", DueDate: dueIn(-5)},
	}

	tl := buildTimeline(tasks, fixedNow())
	require.Len(t, tl.Overdue, 1)
	assert.Equal(t, "overdue task", tl.Overdue[0].Title)
	require.Len(t, tl.Today, 1)
	require.Len(t, tl.ThisWeek, 1)
	require.Len(t, tl.NextWeek, 1)
	require.Len(t, tl.Later, 1)
}

func TestBuildTimelineOmitsDoneTasks(t *testing.T) {
	tasks := []models.Task{
		{ID: 1, Title: "done", Status: "DONE", DueDate: dueIn(-10)},
	}
	tl := buildTimeline(tasks, fixedNow())
	assert.Empty(t, tl.Overdue)
	assert.Empty(t, tl.Today)
	assert.Empty(t, tl.ThisWeek)
	assert.Empty(t, tl.NextWeek)
	assert.Empty(t, tl.Later)
}

func TestRecommendationsPrioritizesOverdueFirst(t *testing.T) {
	tasks := []models.Task{
		{ID: 1, Title: "Set up laptop and accounts", Status: "NOT_STARTED", DueDate: dueIn(20)},
		{ID: 2, Title: "Sign NDA and confidentiality agreement", Status: "NOT_STARTED", DueDate: dueIn(-3)},
	}
	recs := recommendations(tasks, fixedNow(), 5)
	require.NotEmpty(t, recs)
	assert.Equal(t, priorityCritical, recs[0].Priority)
	assert.Equal(t, "Sign NDA and confidentiality agreement", recs[0].Title)
}

func TestRecommendationsSkipTasksWithUnmetDependencies(t *testing.T) {
	tasks := []models.Task{
		{ID: 1, Title: "Set up MFA on Okta", Status: "NOT_STARTED", DueDate: dueIn(5)},
	}
	recs := recommendations(tasks, fixedNow(), 5)
	assert.Empty(t, recs, "Set up MFA on Okta depends on Set up laptop and accounts, which is not done")
}

func TestRecommendationsAllowTaskOnceDependencyDone(t *testing.T) {
	tasks := []models.Task{
		{ID: 1, Title: "Set up laptop and accounts", Status: "DONE", DueDate: dueIn(-10)},
		{ID: 2, Title: "Set up MFA on Okta", Status: "NOT_STARTED", DueDate: dueIn(5)},
	}
	recs := recommendations(tasks, fixedNow(), 5)
	require.Len(t, recs, 1)
	assert.Equal(t, "Set up MFA on Okta", recs[0].Title)
}

func TestRecommendationsCapAtMax(t *testing.T) {
	var tasks []models.Task
	for i := 0; i < 10; i++ {
		tasks = append(tasks, models.Task{ID: i, Title: "quick task", Status: "NOT_STARTED", DueDate: dueIn(30)})
	}
	recs := recommendations(tasks, fixedNow(), 3)
	assert.Len(t, recs, 3)
}

func TestExtractTaskUpdateParsesTrailingJSONBlock(t *testing.T) {
	raw := "Great job! Marking that done.\n\n```json\n{\"task_update\": {\"task_id\": 4, \"new_status\": \"DONE\"}}\n```"
	update := extractTaskUpdate(raw)
	require.NotNil(t, update)
	assert.Equal(t, 4, update.TaskID)
	assert.Equal(t, "DONE", update.NewStatus)
}

func TestExtractTaskUpdateReturnsNilWhenAbsent(t *testing.T) {
	assert.Nil(t, extractTaskUpdate("Here is your progress summary."))
}

func TestExtractTaskUpdateReturnsNilOnMalformedJSON(t *testing.T) {
	raw := "Done!\n\n```json\n{not valid json at all\n```"
	assert.Nil(t, extractTaskUpdate(raw))
}

func TestCleanResponseStripsTrailingJSONBlock(t *testing.T) {
	raw := "Marking that complete for you.\n\n```json\n{\"task_update\": {\"task_id\": 2, \"new_status\": \"DONE\"}}\n```"
	cleaned := cleanResponse(raw)
	assert.Equal(t, "Marking that complete for you.", cleaned)
	assert.NotContains(t, cleaned, "```")
}

func TestCleanResponseLeavesPlainTextUntouched(t *testing.T) {
	assert.Equal(t, "no directive here", cleanResponse("no directive here"))
}

type fakeProgressGenerator struct {
	response string
}

func (f *fakeProgressGenerator) Generate(_ context.Context, _, _ string, _ map[string]string) (string, error) {
	return f.response, nil
}

func TestProgressHandleReturnsSummaryAndTaskUpdate(t *testing.T) {
	generator := &fakeProgressGenerator{
		response: "Nice work finishing that task!\n\n```json\n{\"task_update\": {\"task_id\": 1, \"new_status\": \"DONE\"}}\n```",
	}
	memory := NewMemory()
	h := NewProgress(generator, memory, fixedNow)

	resp, err := h.Handle(context.Background(), State{
		UserID: "u1", UserName: "Dana", Message: "I finished setting up my laptop",
		Tasks: []models.Task{
			{ID: 1, Title: "Set up laptop and accounts", Status: "IN_PROGRESS", DueDate: dueIn(0)},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Nice work finishing that task!", resp.Content)
	require.Len(t, resp.TaskUpdates, 1)
	assert.Equal(t, 1, resp.TaskUpdates[0].TaskID)
	assert.Equal(t, "DONE", resp.TaskUpdates[0].NewStatus)
	assert.Equal(t, models.DepartmentProgress, h.Department())
}

func TestProgressHandleWithoutUpdateDirectiveReturnsNoTaskUpdates(t *testing.T) {
	generator := &fakeProgressGenerator{response: "Here's where things stand."}
	memory := NewMemory()
	h := NewProgress(generator, memory, fixedNow)

	resp, err := h.Handle(context.Background(), State{
		UserID: "u2", Message: "what's my progress",
		Tasks: []models.Task{{ID: 1, Title: "task a", Status: "NOT_STARTED", DueDate: dueIn(5)}},
	})

	require.NoError(t, err)
	assert.Empty(t, resp.TaskUpdates)
}

func TestFormatTasksSummaryComputesPercentage(t *testing.T) {
	tasks := []models.Task{
		{ID: 1, Status: "DONE"},
		{ID: 2, Status: "DONE"},
		{ID: 3, Status: "NOT_STARTED"},
		{ID: 4, Status: "IN_PROGRESS"},
	}
	summary := formatTasksSummary(tasks, fixedNow())
	assert.Contains(t, summary, "2/4")
	assert.Contains(t, summary, "50%")
}

func TestFormatTasksSummaryEmptyList(t *testing.T) {
	assert.Equal(t, "No tasks assigned yet.", formatTasksSummary(nil, fixedNow()))
}
