// Command onboarding wires the retrieval-and-routing core together and
// serves queries from stdin, one per line, as JSON request/response pairs.
// The HTTP/API surface, authentication and the rest of the request
// boundary are explicitly out of scope for the core (spec §1); this is the
// minimal harness that exercises it end to end.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"dev.helix.onboarding/internal/bm25"
	"dev.helix.onboarding/internal/cache"
	"dev.helix.onboarding/internal/classifier"
	"dev.helix.onboarding/internal/config"
	"dev.helix.onboarding/internal/database"
	"dev.helix.onboarding/internal/embedding"
	"dev.helix.onboarding/internal/hybridsearch"
	"dev.helix.onboarding/internal/models"
	"dev.helix.onboarding/internal/orchestrator"
	"dev.helix.onboarding/internal/router"
	"dev.helix.onboarding/internal/specialists"
	"dev.helix.onboarding/internal/textgen"
	"dev.helix.onboarding/internal/vectorstore"
)

var configPath = flag.String("config", "", "path to YAML config file")

// requestLine is one line of stdin input: the request surface's input shape
// (spec §6), minus the conversation history the boundary normally owns.
type requestLine struct {
	UserID      string             `json:"user_id"`
	Message     string             `json:"message"`
	Tasks       []models.Task      `json:"tasks"`
	UserProfile models.UserProfile `json:"user_profile"`
}

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	orc, cleanup, err := build(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build orchestrator")
	}
	defer cleanup()

	ctx, stop := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		stop()
	}()

	serve(ctx, orc, log)
}

func build(cfg *config.Config, log *logrus.Logger) (*orchestrator.Orchestrator, func(), error) {
	store, err := vectorstore.New(vectorstore.Config{
		Host:           cfg.VectorStore.Host,
		Port:           portOrDefault(cfg.VectorStore.Port, 6334),
		Collection:     "onboarding_chunks",
		ConnectTimeout: cfg.VectorStore.Timeout,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}

	idx := bm25.New()
	embedder := embedding.New(embedding.NewHashingProvider(384), cfg.Retrieval.EmbeddingCacheCapacity, log)

	engine := hybridsearch.New(hybridsearch.Config{
		SemanticWeight: cfg.Retrieval.HybridSemanticWeight,
		BM25Weight:     cfg.Retrieval.HybridBM25Weight,
		CacheTTL:       time.Duration(cfg.Retrieval.HybridCacheTTLSeconds) * time.Second,
		CacheMaxSize:   cfg.Retrieval.HybridCacheMaxSize,
	}, store, idx, embedder, log)

	predictor, err := classifier.Load(cfg.Routing.ClassifierArtifactPath)
	var routerPredictor router.Predictor
	if err != nil {
		log.WithError(err).Warn("classifier artifact unavailable, degrading to keyword-only routing")
		routerPredictor = router.NoopPredictor{}
	} else {
		routerPredictor = predictor
	}
	r := router.New(routerPredictor, cfg.Routing.ClassifierConfidenceThreshold)

	generator := textgen.StubGenerator{}
	memory := specialists.NewMemory()

	handlers := map[models.Department]specialists.Handler{}
	for _, dept := range []models.Department{
		models.DepartmentHR, models.DepartmentIT, models.DepartmentSecurity,
		models.DepartmentFinance, models.DepartmentGeneral,
	} {
		handlers[dept] = specialists.New(dept, engine, generator, memory, cfg.Retrieval.TopKRetrieval)
	}
	handlers[models.DepartmentProgress] = specialists.NewProgress(generator, memory, time.Now)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.ResolvedURL()})
	}
	twoTier := cache.New(cache.Config{
		TTL:                 time.Duration(cfg.Cache.SemanticCacheTTLHours) * time.Hour,
		SimilarityThreshold: cfg.Cache.SemanticCacheSimilarityThreshold,
		ScanLimit:           cfg.Cache.SemanticCacheScanLimit,
	}, embedder, redisClient, log)

	var messages *database.MessageRepository
	var routingLog *database.RoutingLogRepository
	var closeDB func()
	if cfg.Postgres.Enabled {
		db, err := database.NewPostgresDB(cfg)
		if err != nil {
			log.WithError(err).Warn("postgres unavailable, durable writes disabled")
		} else {
			messages = database.NewMessageRepository(db.Pool(), log)
			routingLog = database.NewRoutingLogRepository(db.Pool(), log)
			closeDB = func() { _ = db.Close() }
		}
	}

	orc := orchestrator.New(orchestrator.Config{
		TopKRetrieval:            cfg.Retrieval.TopKRetrieval,
		ConfidenceHighThreshold:  cfg.Routing.ConfidenceHighThreshold,
		ConfidenceLowThreshold:   cfg.Routing.ConfidenceMediumThreshold,
		EscalationScoreThreshold: cfg.Escalation.ScoreThreshold,
		RepeatedQueryThreshold:   cfg.Escalation.RepeatedQueryThreshold,
		RepeatedQuerySimilarity:  cfg.Escalation.RepeatedQuerySimilarity,
		HandlerDeadline:          cfg.LLM.RequestTimeout,
	}, r, handlers, twoTier, messages, routingLog, log)

	cleanup := func() {
		_ = store.Close()
		if closeDB != nil {
			closeDB()
		}
	}
	return orc, cleanup, nil
}

func serve(ctx context.Context, orc *orchestrator.Orchestrator, log *logrus.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var req requestLine
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			log.WithError(err).Warn("failed to parse request line")
			continue
		}
		if len(req.Message) > 2000 {
			log.Warn("rejecting query exceeding 2000 characters")
			continue
		}

		resp := orc.Process(ctx, orchestrator.Request{
			UserID:      req.UserID,
			Message:     req.Message,
			Tasks:       req.Tasks,
			UserProfile: req.UserProfile,
		})

		out, err := json.Marshal(resp)
		if err != nil {
			log.WithError(err).Error("failed to marshal response")
			continue
		}
		fmt.Println(string(out))
	}
}

func portOrDefault(s string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}
