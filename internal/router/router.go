// Package router implements the Router (C7): a rule+model hybrid that
// combines the Classifier's prediction with bilingual keyword overrides and
// multi-intent detection. The Router never calls the LLM and is pure except
// for the Classifier's model load (spec §4.7).
package router

import (
	"regexp"
	"strings"

	"dev.helix.onboarding/internal/classifier"
	"dev.helix.onboarding/internal/models"
)

// Predictor is the Classifier's contract as seen by the Router, so the
// Router can run against either a real artifact-backed classifier or a
// keyword-only stand-in (spec §7: ClassifierMissing degrades to keyword-only).
type Predictor interface {
	Predict(text string) classifier.Prediction
	TopK(text string, k int) []classifier.Prediction
}

// NoopPredictor is used when no classifier artifact is available. It always
// predicts General with zero confidence, per spec §4.7 rule 1.
type NoopPredictor struct{}

func (NoopPredictor) Predict(string) classifier.Prediction {
	return classifier.Prediction{Department: string(models.DepartmentGeneral), Confidence: 0}
}

func (NoopPredictor) TopK(string, int) []classifier.Prediction { return nil }

// keywordEntry pairs a compiled Latin-script word-boundary regex with its
// raw Arabic substrings (Arabic matching is substring-based, per spec §4.7 rule 2).
type keywordEntry struct {
	term    string
	latin   *regexp.Regexp
	arabic  bool
}

var keywordTable = map[models.Department][]keywordEntry{
	models.DepartmentHR: {
		latinEntry("pto"), latinEntry("vacation"), latinEntry("leave"), latinEntry("benefits"),
		latinEntry("payroll"), latinEntry("onboarding"), latinEntry("parental leave"),
		arabicEntry("إجازة"), arabicEntry("راتب"), arabicEntry("عطلة"),
	},
	models.DepartmentIT: {
		latinEntry("vpn"), latinEntry("password"), latinEntry("laptop"), latinEntry("wifi"),
		latinEntry("okta"), latinEntry("mfa"), latinEntry("software"), latinEntry("helpdesk"),
		arabicEntry("كلمة المرور"), arabicEntry("حاسوب"), arabicEntry("شبكة"),
	},
	models.DepartmentSecurity: {
		latinEntry("security"), latinEntry("badge"), latinEntry("incident"), latinEntry("phishing"),
		latinEntry("access card"), latinEntry("breach"),
		arabicEntry("أمان"), arabicEntry("حادث أمني"),
	},
	models.DepartmentFinance: {
		latinEntry("expense"), latinEntry("reimbursement"), latinEntry("invoice"), latinEntry("salary"),
		latinEntry("tax"), latinEntry("budget"),
		arabicEntry("راتب"), arabicEntry("فاتورة"), arabicEntry("ميزانية"),
	},
}

func latinEntry(term string) keywordEntry {
	pattern := `(?i)\b` + regexp.QuoteMeta(term) + `\b`
	return keywordEntry{term: term, latin: regexp.MustCompile(pattern)}
}

func arabicEntry(term string) keywordEntry {
	return keywordEntry{term: term, arabic: true}
}

func (k keywordEntry) matches(text, lower string) bool {
	if k.arabic {
		return strings.Contains(text, k.term)
	}
	return k.latin.MatchString(lower)
}

// progressKeywords trigger Override rule C (spec §4.7 rule 5).
var progressKeywords = []string{"my task", "my progress", "completed", "finished", "mark"}

// greetingPatterns trigger Override rule D (spec §4.7 rule 6).
var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good morning|good afternoon)\b`),
	regexp.MustCompile(`(?i)\b(thanks|thank you|thx)\b`),
	regexp.MustCompile(`(?i)\bwhat can you (do|help)\b`),
}

// Router combines classifier predictions with keyword overrides.
type Router struct {
	classifier                    Predictor
	classifierConfidenceThreshold float64
	secondaryIntentThreshold      float64
}

// New builds a Router. predictor may be NoopPredictor{} when no
// artifact is available.
func New(predictor Predictor, classifierConfidenceThreshold float64) *Router {
	if classifierConfidenceThreshold <= 0 {
		classifierConfidenceThreshold = 0.6
	}
	return &Router{
		classifier:                    predictor,
		classifierConfidenceThreshold: classifierConfidenceThreshold,
		secondaryIntentThreshold:      0.25,
	}
}

// detectKeywordMatches returns, for every department with at least one
// keyword hit, the set of matched keywords (spec §4.7 rule 2).
func detectKeywordMatches(text string) map[models.Department][]string {
	lower := strings.ToLower(text)
	matches := make(map[models.Department][]string)
	for dept, entries := range keywordTable {
		for _, e := range entries {
			if e.matches(text, lower) {
				matches[dept] = append(matches[dept], e.term)
			}
		}
	}
	return matches
}

func bestKeywordDepartment(matches map[models.Department][]string) models.Department {
	var best models.Department
	bestCount := -1
	// Deterministic order: iterate the fixed department list rather than the map.
	for _, dept := range []models.Department{models.DepartmentHR, models.DepartmentIT, models.DepartmentSecurity, models.DepartmentFinance} {
		if n := len(matches[dept]); n > bestCount {
			bestCount = n
			best = dept
		}
	}
	return best
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func matchesGreeting(text string) bool {
	for _, p := range greetingPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectDepartments returns the ordered set of departments with any keyword
// match, used by the Orchestrator's bypass rule (spec §4.7 rule 7, §4.10).
func (r *Router) DetectDepartments(text string) []models.Department {
	matches := detectKeywordMatches(text)
	var out []models.Department
	for _, dept := range []models.Department{models.DepartmentHR, models.DepartmentIT, models.DepartmentSecurity, models.DepartmentFinance} {
		if len(matches[dept]) > 0 {
			out = append(out, dept)
		}
	}
	return out
}

// Route classifies a query and applies the override rules in spec order.
func (r *Router) Route(text string) models.RoutingDecision {
	pred := r.classifier.Predict(text)
	decision := models.RoutingDecision{
		PredictedDepartment:  models.Department(pred.Department),
		PredictionConfidence: pred.Confidence,
		MatchedKeywords:      detectKeywordMatches(text),
	}

	keywordMatches := decision.MatchedKeywords
	final := decision.PredictedDepartment

	// Override rule A: classifier's pick confirmed by its own keyword matches.
	if _, confirmed := keywordMatches[decision.PredictedDepartment]; confirmed {
		final = decision.PredictedDepartment
	} else if pred.Confidence < r.classifierConfidenceThreshold && len(keywordMatches) > 0 {
		// Override rule B: low confidence, keyword evidence wins.
		final = bestKeywordDepartment(keywordMatches)
		decision.WasOverridden = true
		decision.OverrideReason = "low_confidence_keyword_override"
	}

	lower := strings.ToLower(text)

	// Override rule C: progress/task intent forces Progress.
	if containsAny(lower, progressKeywords) {
		final = models.DepartmentProgress
		decision.WasOverridden = true
		decision.OverrideReason = "progress_intent"
	}

	// Override rule D: greeting/general forces Progress.
	if matchesGreeting(text) {
		final = models.DepartmentProgress
		decision.WasOverridden = true
		decision.OverrideReason = "greeting"
	}

	// Multi-intent detection: union of classifier secondary intents above
	// threshold and departments with any keyword match (spec §4.7 rule 7).
	intentSet := map[models.Department]struct{}{}
	var ordered []models.Department
	add := func(d models.Department) {
		if _, ok := intentSet[d]; !ok {
			intentSet[d] = struct{}{}
			ordered = append(ordered, d)
		}
	}

	if final == models.DepartmentProgress {
		ordered = []models.Department{models.DepartmentProgress}
	} else {
		add(final)
		for _, secondary := range r.classifier.TopK(text, 3) {
			if secondary.Confidence >= r.secondaryIntentThreshold {
				add(models.Department(secondary.Department))
			}
		}
		for _, dept := range []models.Department{models.DepartmentHR, models.DepartmentIT, models.DepartmentSecurity, models.DepartmentFinance} {
			if len(keywordMatches[dept]) > 0 {
				add(dept)
			}
		}
	}

	decision.FinalDepartments = ordered
	decision.IsMultiIntent = len(ordered) > 1
	return decision
}
