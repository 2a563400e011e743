// Package orchestrator implements the Orchestrator (C10): the fixed
// five-stage pipeline that selects single-agent vs fan-out, merges
// responses, computes confidence, and gates the whole pipeline behind the
// Two-tier Cache (spec §4.10). A general graph executor was considered and
// rejected as the implementation basis: the request path has exactly one
// conditional branch (bypass-to-fan-out), not a configurable node/edge
// graph, so the state machine is written directly rather than through a
// graph abstraction nothing else in this package needs.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.helix.onboarding/internal/cache"
	"dev.helix.onboarding/internal/confidence"
	"dev.helix.onboarding/internal/database"
	"dev.helix.onboarding/internal/lang"
	"dev.helix.onboarding/internal/models"
	"dev.helix.onboarding/internal/router"
	"dev.helix.onboarding/internal/specialists"
)

// Request is the value the Orchestrator receives at its process(...) entry
// point (spec §6 "Request surface consumed by the core").
type Request struct {
	UserID      string
	Message     string
	History     []models.ConversationMessage
	Tasks       []models.Task
	UserProfile models.UserProfile
}

// Config bounds the Orchestrator's own thresholds, independent of the
// subsystems it wires together (spec §6, §4.11).
type Config struct {
	TopKRetrieval           int
	ConfidenceHighThreshold float64
	ConfidenceLowThreshold  float64
	EscalationScoreThreshold float64
	RepeatedQueryThreshold  int
	RepeatedQuerySimilarity float64
	HandlerDeadline         time.Duration
}

// Orchestrator owns every process-scoped collaborator and is constructed
// once at startup (spec §9: "make the Orchestrator the single owner").
type Orchestrator struct {
	cfg        Config
	router     *router.Router
	handlers   map[models.Department]specialists.Handler
	cache      *cache.TwoTierCache
	repeated   *confidence.RepeatedQueryTracker
	messages   *database.MessageRepository
	routingLog *database.RoutingLogRepository
	log        *logrus.Logger
}

// New builds an Orchestrator. messages and routingLog may be nil: async
// writes become no-ops, matching spec §6 ("failures are logged and do not
// fail the request").
func New(
	cfg Config,
	r *router.Router,
	handlers map[models.Department]specialists.Handler,
	twoTier *cache.TwoTierCache,
	messages *database.MessageRepository,
	routingLog *database.RoutingLogRepository,
	log *logrus.Logger,
) *Orchestrator {
	if log == nil {
		log = logrus.New()
	}
	return &Orchestrator{
		cfg:        cfg,
		router:     r,
		handlers:   handlers,
		cache:      twoTier,
		repeated:   confidence.NewRepeatedQueryTracker(50),
		messages:   messages,
		routingLog: routingLog,
		log:        log,
	}
}

// apologyResponse is the sentinel returned on any handler exception (spec
// §4.10 "Termination").
func apologyResponse(err error) models.Response {
	return models.Response{
		AnswerText: "I apologize, but I wasn't able to process your request right now. Please try again shortly.",
		Sources:    []models.Source{},
		Error:      err.Error(),
	}
}

// Process runs the full request state machine (spec §4.10).
func (o *Orchestrator) Process(ctx context.Context, req Request) models.Response {
	start := time.Now()

	// DETECT_LANG
	language := req.UserProfile.Language
	if language == "" {
		language = lang.Detect(req.Message)
	}

	// CACHE_LOOKUP
	if o.cache != nil {
		if cached, cacheType, hit := o.cache.Get(ctx, req.Message); hit {
			cached.CacheHit = true
			cached.CacheType = cacheType
			cached.TotalTimeMs = float64(time.Since(start).Milliseconds())
			return cached
		}
	}

	// DETECT_DEPTS
	keywordDepts := o.router.DetectDepartments(req.Message)
	decision := o.router.Route(req.Message)

	state := specialists.State{
		UserID:         req.UserID,
		UserName:       req.UserProfile.Name,
		UserRole:       req.UserProfile.Role,
		UserDepartment: req.UserProfile.Department,
		Language:       language,
		Message:        req.Message,
		Tasks:          req.Tasks,
	}

	// Bypass rule: any non-General keyword hit forces fan-out even for a
	// single department, so canonical terms route deterministically
	// regardless of classifier quality (spec §4.10 "Bypass rule").
	departments := decision.FinalDepartments
	if len(keywordDepts) > 0 {
		departments = unionOrdered(keywordDepts, departments)
	}
	if len(departments) == 0 {
		departments = []models.Department{models.DepartmentGeneral}
	}

	responses, err := o.runHandlers(ctx, departments, state)
	if err != nil {
		return apologyResponse(err)
	}

	merged := mergeResponses(departments, responses)

	scores := make([]float64, 0)
	for _, r := range responses {
		scores = append(scores, r.ConfidenceScore)
	}
	score, level := confidence.Score(scores)

	escalation := confidence.Evaluate(confidence.Input{
		Query:              req.Message,
		UserID:             req.UserID,
		Department:         departments[0],
		Score:              score,
		NumDocs:            countSources(merged.Sources),
		ScoreThreshold:     o.cfg.EscalationScoreThreshold,
		RepeatedThreshold:  o.cfg.RepeatedQueryThreshold,
		RepeatedSimilarity: o.cfg.RepeatedQuerySimilarity,
	}, o.repeated)

	response := models.Response{
		AnswerText:      merged.Content,
		Sources:         merged.Sources,
		TaskUpdates:     merged.TaskUpdates,
		ConfidenceLevel: level,
		ConfidenceScore: score,
		Escalation:      escalation,
		Agent:           agentLabel(departments),
		TotalTimeMs:     float64(time.Since(start).Milliseconds()),
	}
	response.Routing = models.RoutingDecision{
		PredictedDepartment:  decision.PredictedDepartment,
		PredictionConfidence: decision.PredictionConfidence,
		FinalDepartments:     departments,
		WasOverridden:        decision.WasOverridden,
		OverrideReason:       decision.OverrideReason,
		MatchedKeywords:      decision.MatchedKeywords,
		IsMultiIntent:        len(departments) > 1,
	}

	// CACHE_PUT (async, fire-and-forget) and durable writes: best-effort,
	// never fail the request (spec §6, §7 CacheBackendError).
	if o.cache != nil {
		o.cache.Put(ctx, req.Message, response, departments[0], score)
	}
	o.writeAsync(req, response, departments[0])

	return response
}

// runHandlers dispatches to one handler (single-agent graph) or fans out to
// all selected handlers concurrently, joining with a shared deadline (spec
// §4.10, §5 "Cancellation & timeouts").
func (o *Orchestrator) runHandlers(ctx context.Context, departments []models.Department, state specialists.State) ([]specialists.AgentResponse, error) {
	if o.cfg.HandlerDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.HandlerDeadline)
		defer cancel()
	}

	if len(departments) == 1 {
		h, ok := o.handlers[departments[0]]
		if !ok {
			return nil, fmt.Errorf("no handler registered for department %s", departments[0])
		}
		resp, err := h.Handle(ctx, state)
		if err != nil {
			return nil, err
		}
		return []specialists.AgentResponse{resp}, nil
	}

	responses := make([]specialists.AgentResponse, len(departments))
	g, gctx := errgroup.WithContext(ctx)
	for i, dept := range departments {
		i, dept := i, dept
		g.Go(func() error {
			h, ok := o.handlers[dept]
			if !ok {
				return fmt.Errorf("no handler registered for department %s", dept)
			}
			resp, err := h.Handle(gctx, state)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

type mergedResponse struct {
	Content     string
	Sources     []models.Source
	TaskUpdates []models.TaskUpdate
}

// mergeResponses implements the fan-out merge policy (spec §4.10).
func mergeResponses(departments []models.Department, responses []specialists.AgentResponse) mergedResponse {
	if len(responses) == 1 {
		return mergedResponse{
			Content:     responses[0].Content,
			Sources:     responses[0].Sources,
			TaskUpdates: responses[0].TaskUpdates,
		}
	}

	var sections []string
	var sources []models.Source
	var updates []models.TaskUpdate
	for i, resp := range responses {
		content := resp.Content
		if i > 0 {
			content = stripLeadingGreeting(content)
		}
		sections = append(sections, fmt.Sprintf("**%s Information:**\n%s", departments[i], content))
		sources = append(sources, resp.Sources...)
		updates = append(updates, resp.TaskUpdates...)
	}

	return mergedResponse{
		Content:     strings.Join(sections, "\n\n---\n\n"),
		Sources:     sources,
		TaskUpdates: updates,
	}
}

var leadingGreetings = []string{
	"hi ", "hi,", "hello ", "hello,", "hey ", "hey,",
	"thanks for", "thank you for", "sure,", "sure!", "of course,", "of course!",
}

// stripLeadingGreeting removes a leading greeting/acknowledgement clause so
// a fan-out merge doesn't repeat "Hi there!" once per department section.
func stripLeadingGreeting(content string) string {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)
	for _, g := range leadingGreetings {
		if strings.HasPrefix(lower, g) {
			if idx := strings.IndexAny(trimmed, ".!\n"); idx >= 0 && idx+1 < len(trimmed) {
				return strings.TrimSpace(trimmed[idx+1:])
			}
		}
	}
	return trimmed
}

func unionOrdered(primary, secondary []models.Department) []models.Department {
	seen := map[models.Department]struct{}{}
	var out []models.Department
	for _, d := range primary {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	for _, d := range secondary {
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

func countSources(sources []models.Source) int {
	return len(sources)
}

func agentLabel(departments []models.Department) string {
	labels := make([]string, len(departments))
	for i, d := range departments {
		labels[i] = strings.ToLower(string(d))
	}
	sort.Strings(labels)
	return strings.Join(labels, ",")
}

// writeAsync fires the durable message/routing-log writes on a detached
// goroutine; failures are logged and never surface to the caller (spec §6,
// §7 CacheBackendError's sibling policy for the relational store).
func (o *Orchestrator) writeAsync(req Request, resp models.Response, department models.Department) {
	if o.messages == nil && o.routingLog == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if o.messages != nil {
			userMsg := &models.ConversationMessage{UserID: req.UserID, Role: "user", Content: req.Message, Department: department}
			if err := o.messages.Append(ctx, userMsg); err != nil {
				o.log.WithError(err).Warn("failed to append user message")
			}
			assistantMsg := &models.ConversationMessage{UserID: req.UserID, Role: "assistant", Content: resp.AnswerText, Department: department}
			if err := o.messages.Append(ctx, assistantMsg); err != nil {
				o.log.WithError(err).Warn("failed to append assistant message")
			}
		}

		if o.routingLog != nil {
			entry := &models.RoutingLogEntry{
				UserID:               req.UserID,
				Query:                req.Message,
				Departments:          departmentStrings(resp.Routing.FinalDepartments),
				MatchedRule:          resp.Routing.OverrideReason,
				ClassifierConfidence: resp.Routing.PredictionConfidence,
				FinalConfidence:      resp.ConfidenceScore,
				ConfidenceLevel:      string(resp.ConfidenceLevel),
				Escalated:            resp.Escalation != nil,
			}
			if resp.Escalation != nil {
				entry.EscalationReason = resp.Escalation.Reason
			}
			if err := o.routingLog.Append(ctx, entry); err != nil {
				o.log.WithError(err).Warn("failed to append routing log")
			}
		}
	}()
}

func departmentStrings(departments []models.Department) []string {
	out := make([]string, len(departments))
	for i, d := range departments {
		out[i] = string(d)
	}
	return out
}
