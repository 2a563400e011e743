package specialists

import (
	"strings"
	"sync"
	"time"

	"dev.helix.onboarding/internal/models"
)

// maxHistoryLength bounds the per-user deque (grounded on base.py's
// ConversationMemory.MAX_HISTORY_LENGTH), shared across all handlers
// (spec §3 ConversationHistory). A single mutex in Memory guards the deques
// of all users together; there is no per-user lock.
const maxHistoryLength = 10

// Memory is the process-wide conversation memory every handler shares and
// updates after producing a response (spec §4.8).
type Memory struct {
	mu      sync.Mutex
	byUser  map[string][]models.ConversationMessage
}

// NewMemory builds an empty conversation memory.
func NewMemory() *Memory {
	return &Memory{byUser: make(map[string][]models.ConversationMessage)}
}

// Add appends one turn to userID's history, trimming to maxHistoryLength.
func (m *Memory) Add(userID, role, content string, department models.Department) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := models.ConversationMessage{
		UserID:     userID,
		Role:       role,
		Content:    content,
		Department: department,
		CreatedAt:  time.Now(),
	}
	history := append(m.byUser[userID], msg)
	if len(history) > maxHistoryLength {
		history = history[len(history)-maxHistoryLength:]
	}
	m.byUser[userID] = history
}

// History returns the last limit messages for userID (0 means all kept).
func (m *Memory) History(userID string, limit int) []models.ConversationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.byUser[userID]
	if limit > 0 && limit < len(history) {
		return append([]models.ConversationMessage(nil), history[len(history)-limit:]...)
	}
	return append([]models.ConversationMessage(nil), history...)
}

// ContextString renders the last maxMessages turns as a compact transcript
// for prompt interpolation (base.py's get_context_string).
func (m *Memory) ContextString(userID string, maxMessages int) string {
	history := m.History(userID, maxMessages)
	if len(history) == 0 {
		return "No previous conversation."
	}

	var b strings.Builder
	for i, msg := range history {
		role := "Assistant"
		if msg.Role == "user" {
			role = "User"
		}
		content := msg.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

// Clear drops userID's history entirely.
func (m *Memory) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
}
