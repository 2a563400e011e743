// Package specialists implements the Specialist Handler (C8): one per
// department, each composing a domain system prompt, calling Hybrid Search,
// and invoking the Text Generator. Grounded on app/agents/base.py's
// BaseAgent/AgentResponse shape, generalized from inheritance to
// composition per spec §9's design note.
package specialists

import (
	"context"
	"fmt"
	"strings"

	"dev.helix.onboarding/internal/confidence"
	"dev.helix.onboarding/internal/models"
	"dev.helix.onboarding/internal/textgen"
)

// Retriever is the subset of Hybrid Search a specialist handler depends on.
// *hybridsearch.Engine satisfies this; tests supply a fake.
type Retriever interface {
	Search(ctx context.Context, query string, k int, department string) (models.Retrieval, error)
}

// State is the read-only per-request context every handler sees (spec §9:
// "a shared read-only copy of the state" during fan-out).
type State struct {
	UserID         string
	UserName       string
	UserRole       string
	UserDepartment string
	Language       models.Language
	Message        string
	Tasks          []models.Task
}

// AgentResponse is what a handler returns (spec §4.8 step 5).
type AgentResponse struct {
	Content         string
	Sources         []models.Source
	TaskUpdates     []models.TaskUpdate
	ConfidenceLevel models.ConfidenceLevel
	ConfidenceScore float64
	Metadata        map[string]any
}

// Handler is the shared capability every department (and Progress)
// implements (spec §9): "{department() string; handle(state) → AgentResponse}".
type Handler interface {
	Department() models.Department
	Handle(ctx context.Context, state State) (AgentResponse, error)
}

// systemPromptTemplate mirrors base.py's BaseAgent.SYSTEM_PROMPT, templated
// per department via {{department}}.
const systemPromptTemplate = `You are a helpful AI assistant for employee onboarding, specialized in {{department}} matters.
You help new employees understand company policies and complete their onboarding tasks.

IMPORTANT RULES:
1. Only answer based on the provided context documents.
2. If you don't have information to answer, say "I don't have information about that. Please contact {{department}} for assistance."
3. Be concise but helpful.
4. Always cite your sources when providing policy information.
5. Never make up policies or information not in the documents.
6. Format your responses using Markdown for clarity.
7. If the question is clearly outside {{department}}'s domain, say so and point to the right department's contact instead of guessing.

User Information:
- Name: {{user_name}}
- Role: {{user_role}}
- Department: {{user_department}}

Recent Conversation Context:
{{conversation_context}}`

const arabicAnswerInstruction = "\n\nThe user wrote in Arabic. Answer in Arabic."

// arabicKeywordMap translates common onboarding terms so an Arabic query can
// retrieve from the English-only corpus (spec §4.8 language rule). Lossy by
// design (spec §9 open question): covers the terms the corpus's section
// headers actually use, not general-purpose machine translation.
var arabicKeywordMap = map[string]string{
	"إجازة":   "leave vacation time off annual",
	"اجازة":   "leave vacation time off annual",
	"عطلة":    "holiday vacation",
	"راتب":    "salary payroll pay",
	"رواتب":   "salary payroll pay",
	"تأمين":   "insurance benefits health",
	"تامين":   "insurance benefits health",
	"صحي":     "health medical",
	"مزايا":   "benefits",
	"كلمة المرور": "password reset",
	"كلمة السر":   "password reset",
	"حاسوب":   "computer laptop",
	"كمبيوتر":  "computer laptop",
	"لابتوب":  "laptop computer",
	"بريد":    "email",
	"إيميل":   "email",
	"ايميل":   "email",
	"شبكة":    "network vpn",
	"أمان":    "security",
	"امن":     "security",
	"أمن":     "security",
	"بطاقة":   "badge access card",
	"سرية":    "confidentiality nda",
	"مصاريف":  "expense reimbursement",
	"نفقات":   "expense reimbursement",
	"ضريبة":   "tax",
	"ميزانية":  "budget",
	"سفر":     "travel",
}

// translateQuery expands an Arabic query into English onboarding
// vocabulary so retrieval (which runs over an English-only corpus) finds
// relevant chunks (spec §4.8 language rule, scenario 4).
func translateQuery(text string, language models.Language) string {
	if language != models.LanguageArabic {
		return text
	}
	var matched []string
	seen := make(map[string]struct{})
	for term, expansion := range arabicKeywordMap {
		if strings.Contains(text, term) {
			if _, ok := seen[expansion]; !ok {
				seen[expansion] = struct{}{}
				matched = append(matched, expansion)
			}
		}
	}
	if len(matched) == 0 {
		return text
	}
	return strings.Join(matched, " ")
}

// formatContext renders retrieved chunks as numbered, headered context
// (spec §4.8 step 3 exact header format).
func formatContext(results []models.ScoredChunk) string {
	if len(results) == 0 {
		return "No relevant documents found."
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "[Document %d] Source: %s | Section: %s | Department: %s\n%s",
			i+1, r.Chunk.Source, r.Chunk.Section, r.Chunk.Department, r.Chunk.Text)
	}
	return b.String()
}

func dedupeSources(results []models.ScoredChunk) []models.Source {
	seen := make(map[string]struct{})
	var out []models.Source
	for _, r := range results {
		key := r.Chunk.Source + "|" + r.Chunk.Section
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.Source{
			Document:   r.Chunk.Source,
			Section:    r.Chunk.Section,
			Department: string(r.Chunk.Department),
		})
	}
	return out
}

// handler is the composed implementation shared by every department
// (spec §9: composition over inheritance).
type handler struct {
	department Department
	retrieval  Retriever
	generator  textgen.Generator
	memory     *Memory
	topK       int
}

// Department identifies which department label and config a handler uses;
// the generic handler type keeps these small enough to stay value types.
type Department = models.Department

// New builds a Specialist Handler for one department.
func New(department Department, retrieval Retriever, generator textgen.Generator, memory *Memory, topK int) Handler {
	if topK <= 0 {
		topK = 5
	}
	return &handler{department: department, retrieval: retrieval, generator: generator, memory: memory, topK: topK}
}

func (h *handler) Department() models.Department { return h.department }

func (h *handler) Handle(ctx context.Context, state State) (AgentResponse, error) {
	searchQuery := translateQuery(state.Message, state.Language)

	result, err := h.retrieval.Search(ctx, searchQuery, h.topK, string(h.department))
	if err != nil {
		return AgentResponse{}, fmt.Errorf("specialist %s: retrieval failed: %w", h.department, err)
	}
	if len(result.Results) == 0 {
		result, err = h.retrieval.Search(ctx, searchQuery, h.topK, "")
		if err != nil {
			return AgentResponse{}, fmt.Errorf("specialist %s: unfiltered retrieval failed: %w", h.department, err)
		}
	}

	contextStr := formatContext(result.Results)

	systemPrompt := textgen.Render(systemPromptTemplate, map[string]string{
		"department":           string(h.department),
		"user_name":            state.UserName,
		"user_role":            state.UserRole,
		"user_department":      state.UserDepartment,
		"conversation_context": h.memory.ContextString(state.UserID, 3),
	})
	if state.Language == models.LanguageArabic {
		systemPrompt += arabicAnswerInstruction
	}

	content, err := h.generator.Generate(ctx, systemPrompt, state.Message, map[string]string{
		"context":  contextStr,
		"question": state.Message,
	})
	if err != nil {
		return AgentResponse{}, fmt.Errorf("specialist %s: text generation failed: %w", h.department, err)
	}

	scores := make([]float64, len(result.Results))
	for i, r := range result.Results {
		scores[i] = r.CombinedScore
	}
	score, level := confidence.Score(scores)

	h.memory.Add(state.UserID, "user", state.Message, h.department)
	h.memory.Add(state.UserID, "assistant", content, h.department)

	return AgentResponse{
		Content:         content,
		Sources:         dedupeSources(result.Results),
		ConfidenceLevel: level,
		ConfidenceScore: score,
		Metadata: map[string]any{
			"department":   string(h.department),
			"docs_found":   len(result.Results),
			"search_query": searchQuery,
		},
	}, nil
}
