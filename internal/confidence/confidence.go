// Package confidence implements Confidence & Escalation (C11): it scores a
// retrieval result and decides whether the response needs to be escalated
// to a human, grounded on app/services/escalation.py's SENSITIVE_TOPICS
// regex set and DEPARTMENT_CONTACTS table, combined with the scoring
// formula in spec §4.11 (which supersedes escalation.py's own
// confidence_score/answer_confidence blend).
package confidence

import (
	"regexp"
	"strings"
	"sync"

	"dev.helix.onboarding/internal/models"
)

// Score computes the retrieval confidence score and level (spec §4.11).
func Score(combinedScores []float64) (float64, models.ConfidenceLevel) {
	nDocs := len(combinedScores)
	if nDocs == 0 {
		return 0, models.ConfidenceNone
	}

	top := combinedScores[0]
	var sum float64
	for _, s := range combinedScores {
		if s > top {
			top = s
		}
		sum += s
	}
	avg := sum / float64(nDocs)
	docsFactor := float64(nDocs) / 2
	if docsFactor > 1 {
		docsFactor = 1
	}

	score := 0.5*top + 0.3*avg + 0.2*docsFactor

	var level models.ConfidenceLevel
	switch {
	case score >= 0.70:
		level = models.ConfidenceHigh
	case score >= 0.40:
		level = models.ConfidenceMedium
	default:
		level = models.ConfidenceLow
	}
	return score, level
}

// sensitiveTopics mirrors escalation.py's SENSITIVE_TOPICS patterns.
var sensitiveTopics = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(harass|discriminat|bully|hostile|threat|legal|lawsuit|terminat|fire|resign)`),
	regexp.MustCompile(`(?i)\b(mental health|depress|anxiet|stress|burnout|suicide)`),
	regexp.MustCompile(`(?i)\b(complaint|grievance|whistle|report\s+misconduct)`),
	regexp.MustCompile(`(?i)\b(confidential|proprietary|trade\s+secret|classified)`),
}

// piiPatterns catch common PII shapes in a raw query (not present in the
// original escalation.py, which takes pii_detected as a caller-supplied
// flag; here the check has to happen somewhere, so it's inlined using the
// same regex idiom as the sensitive-topic set).
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),             // SSN
	regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`), // card number
}

func matchesSensitiveTopic(query string) bool {
	for _, p := range sensitiveTopics {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

func containsPII(query string) bool {
	for _, p := range piiPatterns {
		if p.MatchString(query) {
			return true
		}
	}
	return false
}

// DepartmentContacts mirrors escalation.py's DEPARTMENT_CONTACTS table.
var DepartmentContacts = map[models.Department]models.Escalation{
	models.DepartmentHR: {
		ContactName: "HR Support Team", ContactEmail: "hr@company.com",
		ContactPhone: "ext. 2000", ContactHours: "Monday-Friday, 9 AM - 5 PM",
	},
	models.DepartmentIT: {
		ContactName: "IT Help Desk", ContactEmail: "it-helpdesk@company.com",
		ContactPhone: "ext. 3000", ContactHours: "24/7 for emergencies",
	},
	models.DepartmentSecurity: {
		ContactName: "Security Team", ContactEmail: "security@company.com",
		ContactPhone: "ext. 4000", ContactHours: "24/7",
	},
	models.DepartmentFinance: {
		ContactName: "Finance Department", ContactEmail: "finance@company.com",
		ContactPhone: "ext. 5000", ContactHours: "Monday-Friday, 9 AM - 5 PM",
	},
	models.DepartmentGeneral: {
		ContactName: "General Support", ContactEmail: "support@company.com",
		ContactPhone: "ext. 1000", ContactHours: "Monday-Friday, 8 AM - 6 PM",
	},
}

func contactFor(department models.Department) models.Escalation {
	if c, ok := DepartmentContacts[department]; ok {
		return c
	}
	return DepartmentContacts[models.DepartmentGeneral]
}

// RepeatedQueryTracker keeps each user's recent query history for the
// repeated-query escalation check (spec §4.11: "same user asked >= 2
// near-duplicate queries ... Jaccard word-set similarity > 0.8").
type RepeatedQueryTracker struct {
	mu      sync.Mutex
	history map[string][]string
	maxKept int
}

// NewRepeatedQueryTracker builds a tracker bounded to the last N queries per user.
func NewRepeatedQueryTracker(maxKept int) *RepeatedQueryTracker {
	if maxKept <= 0 {
		maxKept = 10
	}
	return &RepeatedQueryTracker{history: make(map[string][]string), maxKept: maxKept}
}

func jaccard(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(strings.TrimSpace(s))) {
		out[w] = struct{}{}
	}
	return out
}

// IsRepeated reports whether query is a near-duplicate of >= threshold of
// the user's recent queries, then records it regardless of the outcome.
func (t *RepeatedQueryTracker) IsRepeated(userID string, query string, threshold int, similarity float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	normalized := strings.ToLower(strings.TrimSpace(query))
	similarCount := 0
	for _, past := range t.history[userID] {
		if jaccard(past, normalized) > similarity {
			similarCount++
		}
	}

	t.history[userID] = append(t.history[userID], normalized)
	if len(t.history[userID]) > t.maxKept {
		t.history[userID] = t.history[userID][len(t.history[userID])-t.maxKept:]
	}

	return similarCount >= threshold
}

// Input bundles what Evaluate needs beyond the retrieval score.
type Input struct {
	Query               string
	UserID              string
	Department          models.Department
	Score               float64
	NumDocs             int
	ScoreThreshold      float64
	RepeatedThreshold   int
	RepeatedSimilarity  float64
}

// Evaluate decides whether to escalate and, if so, builds the directive
// (spec §4.11). repeated may be nil to skip the repeated-query check.
func Evaluate(in Input, repeated *RepeatedQueryTracker) *models.Escalation {
	var reason string
	priority := models.EscalationLow

	if in.Score < in.ScoreThreshold {
		reason = "low_confidence"
		if in.Score < 0.3 {
			priority = models.EscalationMedium
		}
	}
	if in.NumDocs == 0 {
		reason = "no_documents_found"
		priority = models.EscalationMedium
	}
	if matchesSensitiveTopic(in.Query) {
		reason = "sensitive_topic"
		priority = models.EscalationHigh
	}
	if containsPII(in.Query) {
		if reason == "" {
			reason = "pii_detected"
		}
		if priority == models.EscalationLow {
			priority = models.EscalationMedium
		}
	}
	if repeated != nil && repeated.IsRepeated(in.UserID, in.Query, in.RepeatedThreshold, in.RepeatedSimilarity) {
		if reason == "" {
			reason = "repeated_query"
		}
		if priority == models.EscalationLow {
			priority = models.EscalationMedium
		}
	}

	if reason == "" {
		return nil
	}

	contact := contactFor(in.Department)
	contact.Reason = reason
	contact.Priority = priority
	contact.Message = escalationMessage(reason, contact)
	contact.AlternativeActions = alternativeActions(reason)
	return &contact
}

func escalationMessage(reason string, contact models.Escalation) string {
	switch reason {
	case "low_confidence":
		return "I'm not fully confident in my answer. For accurate information, please contact " +
			contact.ContactName + " at " + contact.ContactEmail + " or " + contact.ContactPhone + "."
	case "no_documents_found":
		return "I couldn't find relevant documentation for your question. Please reach out to " +
			contact.ContactName + " at " + contact.ContactEmail + " for assistance."
	case "sensitive_topic":
		return "This appears to be a sensitive matter that requires human attention. Please contact " +
			contact.ContactName + " directly at " + contact.ContactEmail + " or " + contact.ContactPhone +
			". They are available " + contact.ContactHours + "."
	case "pii_detected":
		return "Your message may contain sensitive personal information. For security, please contact " +
			contact.ContactName + " directly at " + contact.ContactPhone + "."
	case "repeated_query":
		return "I notice you've asked similar questions before. For personalized help, please contact " +
			contact.ContactName + " at " + contact.ContactEmail + "."
	default:
		return "For further assistance, please contact " + contact.ContactName + " at " + contact.ContactEmail + "."
	}
}

func alternativeActions(reason string) []string {
	switch reason {
	case "low_confidence":
		return []string{
			"Try rephrasing your question with more specific details",
			"Check the company intranet for related documentation",
			"Ask a colleague who might know the answer",
		}
	case "no_documents_found":
		return []string{
			"This might be a new topic not yet in our knowledge base",
			"Try searching with different keywords",
		}
	case "repeated_query":
		return []string{
			"Review previous answers you received",
			"Provide additional context about what's not clear",
		}
	default:
		return nil
	}
}
