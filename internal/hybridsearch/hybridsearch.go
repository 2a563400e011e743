// Package hybridsearch implements the Hybrid Search subsystem (C5): it runs
// the Vector Store and BM25 Index concurrently, normalizes and fuses their
// scores, and TTL-caches responses.
package hybridsearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.helix.onboarding/internal/bm25"
	"dev.helix.onboarding/internal/embedding"
	"dev.helix.onboarding/internal/models"
	"dev.helix.onboarding/internal/vectorstore"
)

// Config tunes fusion weights and the query cache (spec §6 defaults).
type Config struct {
	SemanticWeight float64
	BM25Weight     float64
	CacheTTL       time.Duration
	CacheMaxSize   int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SemanticWeight: 0.7,
		BM25Weight:     0.3,
		CacheTTL:       300 * time.Second,
		CacheMaxSize:   1000,
	}
}

type cacheEntry struct {
	response  models.Retrieval
	expiresAt time.Time
}

// Engine is the Hybrid Search collaborator.
type Engine struct {
	cfg      Config
	store    vectorstore.VectorStore
	bm25     *bm25.Index
	embedder *embedding.Embedder
	log      *logrus.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string // insertion order, for bounded-size eviction
}

// New builds a Hybrid Search engine over the given collaborators.
func New(cfg Config, store vectorstore.VectorStore, idx *bm25.Index, embedder *embedding.Embedder, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		bm25:     idx,
		embedder: embedder,
		log:      log,
		cache:    make(map[string]cacheEntry),
	}
}

func cacheKey(query, department string, k int) string {
	dept := department
	if dept == "" {
		dept = "all"
	}
	raw := fmt.Sprintf("%s|%s|%d", strings.ToLower(strings.TrimSpace(query)), dept, k)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Search fuses semantic and BM25 retrieval for one query (spec §4.5).
func (e *Engine) Search(ctx context.Context, query string, k int, department string) (models.Retrieval, error) {
	key := cacheKey(query, department, k)
	if cached, ok := e.getCached(key); ok {
		cached.CacheHit = true
		return cached, nil
	}

	start := time.Now()
	semantic, semanticMs, bm25Results, bm25Ms := e.runBothSides(ctx, query, k, department)

	combined := e.fuse(semantic, bm25Results, k)
	total := float64(time.Since(start).Microseconds()) / 1000.0

	resp := models.Retrieval{
		Results:        combined,
		SemanticTimeMs: semanticMs,
		BM25TimeMs:     bm25Ms,
		TotalTimeMs:    total,
		CacheHit:       false,
	}
	e.putCached(key, resp)
	return resp, nil
}

type semanticHit struct {
	chunk      *models.Chunk
	similarity float64
}

// runBothSides fires the semantic and BM25 queries concurrently. Per spec
// §4.5 failure semantics, an error on one side degrades to the other rather
// than failing the whole search.
func (e *Engine) runBothSides(ctx context.Context, query string, k int, department string) ([]semanticHit, float64, []bm25.Match, float64) {
	var semantic []semanticHit
	var bm25Results []bm25.Match
	var semanticMs, bm25Ms float64

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t0 := time.Now()
		hits, err := e.semanticSearch(gctx, query, k*2, department)
		semanticMs = float64(time.Since(t0).Microseconds()) / 1000.0
		if err != nil {
			if e.log != nil {
				e.log.WithError(err).Warn("semantic search failed, falling back to BM25-only")
			}
			return nil // swallow: fallback semantics, not a fatal error
		}
		semantic = hits
		return nil
	})

	g.Go(func() error {
		t0 := time.Now()
		bm25Results = e.bm25.Search(query, k*2, department)
		bm25Ms = float64(time.Since(t0).Microseconds()) / 1000.0
		return nil
	})

	_ = g.Wait() // both goroutines swallow their own errors; nothing to propagate

	return semantic, semanticMs, bm25Results, bm25Ms
}

func (e *Engine) semanticSearch(ctx context.Context, query string, k int, department string) ([]semanticHit, error) {
	if e.embedder == nil || e.store == nil {
		return nil, fmt.Errorf("hybridsearch: semantic backend unavailable")
	}
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches, err := e.store.Query(ctx, vector, k, department)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}
	hits := make([]semanticHit, len(matches))
	for i, m := range matches {
		hits[i] = semanticHit{chunk: m.Chunk, similarity: 1 / (1 + m.Distance)}
	}
	return hits, nil
}

// digest returns a stable key for a chunk within the fusion union, so the
// same chunk found by both sides merges into one scored result.
func digest(c *models.Chunk) string {
	if c.ID != "" {
		return c.ID
	}
	sum := sha256.Sum256([]byte(c.Text))
	return hex.EncodeToString(sum[:])[:16]
}

func normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}

// fuse unions semantic and BM25 candidates keyed by chunk digest, min-max
// normalizes each side independently across the union, combines with the
// configured weights, and truncates to the top k (spec §4.5 steps 3-6).
func (e *Engine) fuse(semantic []semanticHit, bm25Results []bm25.Match, k int) []models.ScoredChunk {
	type entry struct {
		chunk    *models.Chunk
		semantic float64
		bm25     float64
	}
	union := make(map[string]*entry)
	var order []string

	for _, h := range semantic {
		key := digest(h.chunk)
		if _, ok := union[key]; !ok {
			union[key] = &entry{chunk: h.chunk}
			order = append(order, key)
		}
		union[key].semantic = h.similarity
	}
	for _, m := range bm25Results {
		chunk := e.bm25.Document(m.Index)
		if chunk == nil {
			continue
		}
		key := digest(chunk)
		if _, ok := union[key]; !ok {
			union[key] = &entry{chunk: chunk}
			order = append(order, key)
		}
		union[key].bm25 = m.Score
	}

	semScores := make([]float64, len(order))
	bmScores := make([]float64, len(order))
	for i, key := range order {
		semScores[i] = union[key].semantic
		bmScores[i] = union[key].bm25
	}
	normSem := normalize(semScores)
	normBM := normalize(bmScores)

	results := make([]models.ScoredChunk, len(order))
	for i, key := range order {
		ent := union[key]
		combined := e.cfg.SemanticWeight*normSem[i] + e.cfg.BM25Weight*normBM[i]
		results[i] = models.ScoredChunk{
			Chunk:         ent.chunk,
			SemanticScore: ent.semantic,
			BM25Score:     ent.bm25,
			CombinedScore: combined,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		if results[i].SemanticScore != results[j].SemanticScore {
			return results[i].SemanticScore > results[j].SemanticScore
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func (e *Engine) getCached(key string) (models.Retrieval, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.cache[key]
	if !ok || time.Now().After(ent.expiresAt) {
		return models.Retrieval{}, false
	}
	return ent.response, true
}

func (e *Engine) putCached(key string, resp models.Retrieval) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.cache[key]; !exists {
		e.order = append(e.order, key)
		if len(e.order) > e.cfg.CacheMaxSize {
			oldest := e.order[0]
			e.order = e.order[1:]
			delete(e.cache, oldest)
		}
	}
	e.cache[key] = cacheEntry{response: resp, expiresAt: time.Now().Add(e.cfg.CacheTTL)}
}

// ClearCache empties the query cache. Only tests call it; ingestion does not.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cacheEntry)
	e.order = nil
}
