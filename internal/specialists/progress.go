package specialists

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"dev.helix.onboarding/internal/models"
	"dev.helix.onboarding/internal/textgen"
)

// taskPriority ranks a task's urgency, grounded on progress_agent.py's
// TaskPriority enum.
type taskPriority int

const (
	priorityCritical taskPriority = iota // overdue
	priorityHigh                         // due today or tomorrow
	priorityMedium                       // due this week
	priorityLow                          // due next week or later, or already done
)

// taskDependencies is a static mapping from task title to its prerequisite
// task titles (progress_agent.py's TASK_DEPENDENCIES).
var taskDependencies = map[string][]string{
	"Set up MFA on Okta":                    {"Set up laptop and accounts"},
	"Configure VPN access":                  {"Set up MFA on Okta"},
	"Install required software":             {"Set up laptop and accounts"},
	"Complete Security Awareness training":  {"Sign NDA and confidentiality agreement"},
	"Complete Data Protection training":     {"Complete Security Awareness training"},
	"Set up Expensify account":              {"Set up direct deposit"},
	"Review expense policy":                 {"Set up Expensify account"},
	"Enroll in benefits":                    {"Complete HR orientation session", "Submit W-4 and I-9 forms"},
}

// taskEstimatedTimes is a static mapping of common task titles to a duration
// estimate (progress_agent.py's TASK_ESTIMATED_TIMES).
var taskEstimatedTimes = map[string]string{
	"Complete HR orientation session":      "1-2 hours",
	"Review and sign employee handbook":    "30-45 minutes",
	"Submit W-4 and I-9 forms":             "15-20 minutes",
	"Set up direct deposit":                "10-15 minutes",
	"Enroll in benefits":                   "30-60 minutes",
	"Set up laptop and accounts":           "30-45 minutes",
	"Configure email and calendar":         "15-20 minutes",
	"Set up MFA on Okta":                   "10-15 minutes",
	"Install required software":            "20-30 minutes",
	"Configure VPN access":                 "15-20 minutes",
	"Sign NDA and confidentiality agreement": "15-20 minutes",
	"Complete Security Awareness training":  "45-60 minutes",
	"Complete Data Protection training":     "30-45 minutes",
	"Complete Phishing Prevention training": "20-30 minutes",
	"Set up Expensify account":             "10-15 minutes",
	"Review expense policy":                "15-20 minutes",
	"Set up Concur travel profile":         "15-20 minutes",
}

const defaultEstimatedTime = "15-30 minutes"

// Timeline buckets pending tasks by due date relative to today (spec §4.8
// Progress handler special case).
type Timeline struct {
	Overdue  []models.Task
	Today    []models.Task
	ThisWeek []models.Task
	NextWeek []models.Task
	Later    []models.Task
}

func buildTimeline(tasks []models.Task, now time.Time) Timeline {
	today := truncateToDate(now)
	weekday := int(today.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO-style: treat Sunday as end of week 7, matching Python's Monday=0..Sunday=6 distance-to-Sunday math
	}
	endOfWeek := today.AddDate(0, 0, 7-weekday)
	endOfNextWeek := endOfWeek.AddDate(0, 0, 7)

	var tl Timeline
	for _, t := range tasks {
		if t.Status == "DONE" {
			continue
		}
		if t.DueDate.IsZero() {
			tl.Later = append(tl.Later, t)
			continue
		}
		due := truncateToDate(t.DueDate)
		switch {
		case due.Before(today):
			tl.Overdue = append(tl.Overdue, t)
		case due.Equal(today):
			tl.Today = append(tl.Today, t)
		case !due.After(endOfWeek):
			tl.ThisWeek = append(tl.ThisWeek, t)
		case !due.After(endOfNextWeek):
			tl.NextWeek = append(tl.NextWeek, t)
		default:
			tl.Later = append(tl.Later, t)
		}
	}
	return tl
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func formatTimeline(tl Timeline) string {
	var lines []string
	if len(tl.Overdue) > 0 {
		lines = append(lines, "**OVERDUE** (needs immediate attention):")
		for _, t := range tl.Overdue {
			lines = append(lines, fmt.Sprintf("  - %s (was due: %s)", t.Title, t.DueDate.Format("2006-01-02")))
		}
	}
	if len(tl.Today) > 0 {
		lines = append(lines, "", "**DUE TODAY**:")
		for _, t := range tl.Today {
			lines = append(lines, fmt.Sprintf("  - %s", t.Title))
		}
	}
	if len(tl.ThisWeek) > 0 {
		lines = append(lines, "", "**THIS WEEK**:")
		for _, t := range tl.ThisWeek {
			day := ""
			if !t.DueDate.IsZero() {
				day = t.DueDate.Weekday().String()
			}
			lines = append(lines, fmt.Sprintf("  - %s (%s)", t.Title, day))
		}
	}
	if len(tl.NextWeek) > 0 {
		lines = append(lines, "", "**NEXT WEEK**:")
		for _, t := range tl.NextWeek {
			lines = append(lines, fmt.Sprintf("  - %s", t.Title))
		}
	}
	if len(tl.Overdue)+len(tl.Today)+len(tl.ThisWeek)+len(tl.NextWeek) == 0 {
		lines = append(lines, "No urgent tasks. Great progress!")
	}
	return strings.Join(lines, "\n")
}

// recommendation is one prioritized, dependency-gated pending task.
type recommendation struct {
	TaskID        int
	Title         string
	Reason        string
	Priority      taskPriority
	EstimatedTime string
}

func taskPriorityOf(t models.Task, now time.Time) taskPriority {
	if t.Status == "DONE" {
		return priorityLow
	}
	if t.DueDate.IsZero() {
		return priorityMedium
	}
	days := int(truncateToDate(t.DueDate).Sub(truncateToDate(now)).Hours() / 24)
	switch {
	case days < 0:
		return priorityCritical
	case days <= 1:
		return priorityHigh
	case days <= 7:
		return priorityMedium
	default:
		return priorityLow
	}
}

// recommendations priority-orders pending tasks whose dependencies are
// satisfied, with an explanation for each (spec §4.8: overdue > due-today >
// in-progress > unlocks-others > quick-win), grounded on
// progress_agent.py's get_task_recommendations.
func recommendations(tasks []models.Task, now time.Time, maxRecs int) []recommendation {
	completed := make(map[string]struct{})
	for _, t := range tasks {
		if t.Status == "DONE" {
			completed[t.Title] = struct{}{}
		}
	}

	var recs []recommendation
	for _, t := range tasks {
		if t.Status != "NOT_STARTED" && t.Status != "IN_PROGRESS" {
			continue
		}

		depsMet := true
		for _, dep := range taskDependencies[t.Title] {
			if _, ok := completed[dep]; !ok {
				depsMet = false
				break
			}
		}
		if !depsMet {
			continue
		}

		priority := taskPriorityOf(t, now)
		var reason string
		switch {
		case priority == priorityCritical:
			reason = "This task is overdue"
		case priority == priorityHigh:
			if truncateToDate(t.DueDate).Equal(truncateToDate(now)) {
				reason = "Due today"
			} else {
				reason = "Due tomorrow"
			}
		case t.Status == "IN_PROGRESS":
			reason = "Already in progress, finish what you started"
		default:
			var unlocks []string
			for title, deps := range taskDependencies {
				if _, done := completed[title]; done {
					continue
				}
				for _, dep := range deps {
					if dep == t.Title {
						unlocks = append(unlocks, title)
						break
					}
				}
			}
			if len(unlocks) > 0 {
				sort.Strings(unlocks)
				if len(unlocks) > 2 {
					unlocks = unlocks[:2]
				}
				reason = "Completing this unlocks: " + strings.Join(unlocks, ", ")
			} else {
				reason = "Quick win to build momentum"
			}
		}

		estimate, ok := taskEstimatedTimes[t.Title]
		if !ok {
			estimate = defaultEstimatedTime
		}

		recs = append(recs, recommendation{
			TaskID: t.ID, Title: t.Title, Reason: reason, Priority: priority, EstimatedTime: estimate,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority < recs[j].Priority })
	if maxRecs > 0 && len(recs) > maxRecs {
		recs = recs[:maxRecs]
	}
	return recs
}

func formatRecommendations(recs []recommendation) string {
	if len(recs) == 0 {
		return "All tasks completed!"
	}
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. **%s** (ID: %d)\n   %s\n   Estimated time: %s", i+1, r.Title, r.TaskID, r.Reason, r.EstimatedTime)
	}
	return b.String()
}

func formatTasksSummary(tasks []models.Task, now time.Time) string {
	if len(tasks) == 0 {
		return "No tasks assigned yet."
	}
	var notStarted, inProgress, done, overdue int
	for _, t := range tasks {
		switch t.Status {
		case "NOT_STARTED":
			notStarted++
		case "IN_PROGRESS":
			inProgress++
		case "DONE":
			done++
		}
		if t.Status != "DONE" && !t.DueDate.IsZero() && truncateToDate(t.DueDate).Before(truncateToDate(now)) {
			overdue++
		}
	}
	total := len(tasks)
	pct := 0
	if total > 0 {
		pct = done * 100 / total
	}

	lines := []string{
		fmt.Sprintf("**Overall progress: %d/%d tasks (%d%%)**", done, total, pct),
		"",
		fmt.Sprintf("Completed: %d", done),
		fmt.Sprintf("In progress: %d", inProgress),
		fmt.Sprintf("Not started: %d", notStarted),
	}
	if overdue > 0 {
		lines = append(lines, fmt.Sprintf("**Overdue: %d**", overdue))
	}
	return strings.Join(lines, "\n")
}

// progressSystemPrompt mirrors progress_agent.py's SYSTEM_PROMPT.
const progressSystemPrompt = `You are a Progress Tracking assistant helping new employees manage their onboarding tasks.
You can show tasks and progress, give personalized recommendations, show timeline views, explain dependencies, mark tasks complete when reported, and highlight overdue tasks.

IMPORTANT RULES:
1. Be encouraging about progress made.
2. Clearly highlight overdue tasks and their importance.
3. Consider dependencies when recommending tasks.
4. Provide estimated times when available.
5. Use Markdown formatting.

User Information:
- Name: {{user_name}}
- Role: {{user_role}}
- Department: {{user_department}}

CURRENT ONBOARDING STATUS:
{{tasks_summary}}

TIMELINE VIEW:
{{timeline_view}}

RECOMMENDED NEXT TASKS:
{{recommendations}}

TASK COMPLETION INSTRUCTIONS:
If the user mentions completing a task, respond with a JSON block like this at the END of your response:
` + "```json" + `
{"task_update": {"task_id": <id>, "new_status": "DONE"}}
` + "```" + `
Only include this if you're confident which task they completed.`

// progressHandler is the Progress pseudo-department's handler. It never
// calls retrieval (spec §4.8 Progress handler special case).
type progressHandler struct {
	generator textgen.Generator
	memory    *Memory
	now       func() time.Time
}

// NewProgress builds the Progress handler. now is injected so timeline
// bucketing is deterministic in tests; pass time.Now in production.
func NewProgress(generator textgen.Generator, memory *Memory, now func() time.Time) Handler {
	if now == nil {
		now = time.Now
	}
	return &progressHandler{generator: generator, memory: memory, now: now}
}

func (h *progressHandler) Department() models.Department { return models.DepartmentProgress }

func (h *progressHandler) Handle(ctx context.Context, state State) (AgentResponse, error) {
	now := h.now()
	timeline := buildTimeline(state.Tasks, now)
	recs := recommendations(state.Tasks, now, 3)

	systemPrompt := textgen.Render(progressSystemPrompt, map[string]string{
		"user_name":       state.UserName,
		"user_role":       state.UserRole,
		"user_department": state.UserDepartment,
		"tasks_summary":   formatTasksSummary(state.Tasks, now),
		"timeline_view":   formatTimeline(timeline),
		"recommendations": formatRecommendations(recs),
	})

	raw, err := h.generator.Generate(ctx, systemPrompt, state.Message, map[string]string{
		"question": state.Message,
	})
	if err != nil {
		return AgentResponse{}, fmt.Errorf("progress handler: text generation failed: %w", err)
	}

	update := extractTaskUpdate(raw)
	clean := cleanResponse(raw)

	var updates []models.TaskUpdate
	if update != nil {
		updates = append(updates, *update)
	}

	h.memory.Add(state.UserID, "user", state.Message, models.DepartmentProgress)
	h.memory.Add(state.UserID, "assistant", clean, models.DepartmentProgress)

	return AgentResponse{
		Content:         clean,
		TaskUpdates:     updates,
		ConfidenceLevel: models.ConfidenceHigh,
		ConfidenceScore: 0.8,
		Metadata: map[string]any{
			"tasks_count":          len(state.Tasks),
			"overdue_count":        len(timeline.Overdue),
			"recommendations_count": len(recs),
			"has_update":           update != nil,
		},
	}, nil
}

// extractTaskUpdate parses the trailing ```json block, per spec §4.8 and
// error kind MalformedTaskUpdate (silently dropped on parse failure).
func extractTaskUpdate(response string) *models.TaskUpdate {
	start := strings.Index(response, "```json")
	if start < 0 {
		return nil
	}
	bodyStart := start + len("```json")
	end := strings.Index(response[bodyStart:], "```")
	if end < 0 {
		return nil
	}
	raw := strings.TrimSpace(response[bodyStart : bodyStart+end])

	var payload struct {
		TaskUpdate *models.TaskUpdate `json:"task_update"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.TaskUpdate
}

// cleanResponse strips the trailing JSON block so it isn't shown to the user.
func cleanResponse(response string) string {
	start := strings.Index(response, "```json")
	if start < 0 {
		return response
	}
	rest := response[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(response[:start])
	}
	after := rest[end+len("```"):]
	return strings.TrimSpace(strings.TrimSpace(response[:start]) + after)
}
