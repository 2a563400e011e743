// Package models defines the core data types shared across the retrieval,
// routing and orchestration subsystems: the chunk/embedding pair produced by
// ingestion, the ephemeral query and routing decision produced per request,
// the response returned to the boundary, and the durable records the
// relational store collaborator reads and writes.
package models

import "time"

// Department is the closed set of responsible departments a query can be
// routed to. Progress is a pseudo-department: it never triggers retrieval.
type Department string

const (
	DepartmentHR       Department = "HR"
	DepartmentIT       Department = "IT"
	DepartmentSecurity Department = "Security"
	DepartmentFinance  Department = "Finance"
	DepartmentGeneral  Department = "General"
	DepartmentProgress Department = "Progress"
)

// Language is the detected query language. Only English and Arabic are
// recognized; anything else degrades to English-only retrieval.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// ConfidenceLevel buckets a numeric confidence score for display purposes.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceNone   ConfidenceLevel = "NONE"
)

// Chunk is a leaf unit of retrieval, produced once by ingestion and
// immutable thereafter. ID (chunk_id) is stable and formatted
// "<filename without extension>_<ordinal>".
type Chunk struct {
	ID         string            `json:"chunk_id"`
	Text       string            `json:"text"`
	Source     string            `json:"filename"`
	Section    string            `json:"section_title"`
	Department Department        `json:"department"`
	ChunkIndex int               `json:"ordinal"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Embedding is a fixed-dimension dense vector sharing the lifetime of its Chunk.
type Embedding struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
}

// UserProfile is the subset of user data the core needs from the relational
// store collaborator: identity, role, home department and language preference.
type UserProfile struct {
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	Role       string   `json:"role"`
	Department string   `json:"department"`
	Type       string   `json:"type"`
	Language   Language `json:"language,omitempty"`
}

// Query is ephemeral: built once at the start of a request and never persisted as-is.
type Query struct {
	RawText          string
	UserID           string
	UserRole         string
	UserDepartment   string
	DetectedLanguage Language
	History          []ConversationMessage
}

// RoutingDecision records how the Router resolved a query to one or more
// departments, and why, for both the response payload and the routing log.
type RoutingDecision struct {
	PredictedDepartment  Department
	PredictionConfidence float64
	FinalDepartments     []Department
	WasOverridden        bool
	OverrideReason       string
	MatchedKeywords      map[Department][]string
	IsMultiIntent        bool
}

// ScoredChunk is one ranked entry out of a hybrid search response.
type ScoredChunk struct {
	Chunk         *Chunk
	SemanticScore float64
	BM25Score     float64
	CombinedScore float64
	Rank          int
}

// Retrieval is the full output of one Hybrid Search call.
type Retrieval struct {
	Results        []ScoredChunk
	SemanticTimeMs float64
	BM25TimeMs     float64
	TotalTimeMs    float64
	CacheHit       bool
}

// Source is a deduplicated citation surfaced in a Response.
type Source struct {
	Document   string `json:"document"`
	Section    string `json:"section"`
	Department string `json:"department"`
}

// TaskUpdate is parsed out of a Progress handler's trailing JSON block.
type TaskUpdate struct {
	TaskID    int    `json:"task_id"`
	NewStatus string `json:"new_status"`
}

// EscalationPriority ranks how urgently an escalation needs human attention.
type EscalationPriority string

const (
	EscalationLow    EscalationPriority = "low"
	EscalationMedium EscalationPriority = "medium"
	EscalationHigh   EscalationPriority = "high"
	EscalationUrgent EscalationPriority = "urgent"
)

// Escalation is the optional directive attached to a Response when the
// confidence/escalation engine decides the user should be routed to a human.
type Escalation struct {
	Reason             string             `json:"reason"`
	Priority           EscalationPriority `json:"priority"`
	Message            string             `json:"message"`
	ContactName        string             `json:"contact_name"`
	ContactEmail       string             `json:"contact_email"`
	ContactPhone       string             `json:"contact_phone"`
	ContactHours       string             `json:"contact_hours"`
	AlternativeActions []string           `json:"alternative_actions,omitempty"`
}

// Response is the value returned across the request surface boundary.
type Response struct {
	AnswerText      string          `json:"response"`
	Sources         []Source        `json:"sources"`
	TaskUpdates     []TaskUpdate    `json:"task_updates,omitempty"`
	Routing         RoutingDecision `json:"routing"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	ConfidenceScore float64         `json:"confidence_score"`
	Escalation      *Escalation     `json:"escalation,omitempty"`
	Agent           string          `json:"agent"`
	TotalTimeMs     float64         `json:"total_time_ms"`
	MessageID       string          `json:"message_id,omitempty"`
	CacheHit        bool            `json:"is_cached,omitempty"`
	CacheType       string          `json:"cache_type,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// CacheEntry is exclusively owned by the Two-tier Cache. Entries expire by
// TTL and are soft-invalidated by department.
type CacheEntry struct {
	QueryHash     string     `json:"query_hash"`
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	Response      Response   `json:"response"`
	Department    Department `json:"department"`
	HitCount      int64      `json:"hit_count"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAccessed  time.Time  `json:"last_accessed"`
	ExpiresAt     time.Time  `json:"expires_at"`
	IsValid       bool       `json:"is_valid"`
}

// ConversationMessage is one turn in a per-user ConversationHistory.
type ConversationMessage struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	SessionID  string     `json:"session_id,omitempty"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Department Department `json:"department,omitempty"`
	Language   Language   `json:"language,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RoutingLogEntry is a durable, denormalized record of one routing decision
// and its outcome, independent of the conversation message text.
type RoutingLogEntry struct {
	ID                   int64      `json:"id"`
	UserID               string     `json:"user_id"`
	Query                string     `json:"query"`
	Departments          []string   `json:"departments"`
	MatchedRule          string     `json:"matched_rule"`
	MatchedIntents       []string   `json:"matched_intents"`
	ClassifierConfidence float64    `json:"classifier_confidence"`
	FinalConfidence      float64    `json:"final_confidence"`
	ConfidenceLevel      string     `json:"confidence_level"`
	Escalated            bool       `json:"escalated"`
	EscalationReason     string     `json:"escalation_reason"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Task is one onboarding task item, as supplied by the caller on the request
// surface; the Progress handler never persists these itself.
type Task struct {
	ID      int       `json:"id"`
	Title   string    `json:"title"`
	Status  string    `json:"status"`
	DueDate time.Time `json:"due_date,omitempty"`
}

// AllDepartments enumerates every valid final_department value, including
// the Progress pseudo-department.
func AllDepartments() []Department {
	return []Department{
		DepartmentHR, DepartmentIT, DepartmentSecurity,
		DepartmentFinance, DepartmentGeneral, DepartmentProgress,
	}
}

// IsValidDepartment reports whether d belongs to the closed department set.
func IsValidDepartment(d Department) bool {
	for _, candidate := range AllDepartments() {
		if candidate == d {
			return true
		}
	}
	return false
}
