// Package cache implements the Two-tier Cache (C9): an exact-hash cache
// layered over a semantic-similarity cache, backed by an in-memory map for
// the authoritative bookkeeping (needed for the tier-2 linear scan over
// embeddings) and also written to Redis; the cache never reads Redis back,
// so a process restart starts with an empty cache. This adapts the teacher's L1(memory)+L2(Redis) idiom in
// tiered_cache.go to the spec's exact-vs-semantic tiering rather than
// memory-vs-remote tiering.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"dev.helix.onboarding/internal/models"
)

// Embedder is the subset of the Embedder collaborator the cache needs to
// compute a query vector for tier-2 lookups.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes the two-tier cache (spec §6 defaults).
type Config struct {
	TTL                 time.Duration
	SimilarityThreshold float64
	ScanLimit           int
	QueueSize           int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		TTL:                 24 * time.Hour,
		SimilarityThreshold: 0.92,
		ScanLimit:           100,
		QueueSize:           256,
	}
}

type writeJob struct {
	hash  string
	entry *models.CacheEntry
}

// TwoTierCache answers Get/Put/Invalidate/CleanupExpired (spec §4.9).
type TwoTierCache struct {
	cfg      Config
	embedder Embedder
	redis    *redis.Client
	log      *logrus.Logger

	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
	order   []string // insertion order, most-recent-first not required; scanned from the tail

	queue         chan writeJob
	stop          chan struct{}
	droppedWrites int64
}

// New builds a Two-tier Cache. embedder and redisClient may both be nil: the
// cache degrades to tier-1-only, in-memory-only operation.
func New(cfg Config, embedder Embedder, redisClient *redis.Client, log *logrus.Logger) *TwoTierCache {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	c := &TwoTierCache{
		cfg:      cfg,
		embedder: embedder,
		redis:    redisClient,
		log:      log,
		entries:  make(map[string]*models.CacheEntry),
		queue:    make(chan writeJob, cfg.QueueSize),
		stop:     make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func queryHash(query string) string {
	sum := sha256.Sum256([]byte(normalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// Get looks up query first via tier 1 (exact hash), then tier 2 (semantic
// similarity) if tier 1 misses and an embedder is configured.
func (c *TwoTierCache) Get(ctx context.Context, query string) (models.Response, string, bool) {
	hash := queryHash(query)

	if entry, ok := c.getValidTier1(hash); ok {
		return entry.Response, "exact", true
	}

	if c.embedder == nil {
		return models.Response{}, "", false
	}

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("two-tier cache: failed to embed query for semantic lookup")
		}
		return models.Response{}, "", false
	}

	entry, similarity, ok := c.bestSemanticMatch(vector)
	if !ok {
		return models.Response{}, "", false
	}
	resp := entry.Response
	resp.ConfidenceScore = similarity
	resp.CacheType = "semantic"
	return resp, "semantic", true
}

func (c *TwoTierCache) getValidTier1(hash string) (*models.CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[hash]
	c.mu.RUnlock()
	if !ok || !entry.IsValid || time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	c.mu.Lock()
	entry.HitCount++
	entry.LastAccessed = time.Now()
	c.mu.Unlock()
	return entry, true
}

// bestSemanticMatch scans up to cfg.ScanLimit recent valid entries carrying
// stored embeddings (spec §4.9 tier 2).
func (c *TwoTierCache) bestSemanticMatch(vector []float32) (*models.CacheEntry, float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if len(c.order) > c.cfg.ScanLimit {
		start = len(c.order) - c.cfg.ScanLimit
	}

	var best *models.CacheEntry
	bestSim := 0.0
	now := time.Now()
	for _, hash := range c.order[start:] {
		entry, ok := c.entries[hash]
		if !ok || !entry.IsValid || now.After(entry.ExpiresAt) || len(entry.QueryEmbedding) == 0 {
			continue
		}
		sim := cosineSimilarity(vector, entry.QueryEmbedding)
		if sim > bestSim {
			bestSim = sim
			best = entry
		}
	}
	if best == nil || bestSim < c.cfg.SimilarityThreshold {
		return nil, 0, false
	}
	return best, bestSim, true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Put enqueues an asynchronous write (spec §4.9: "writes are asynchronous
// from the orchestrator's viewpoint"). An overflowing queue drops the write
// and increments droppedWrites rather than blocking the caller.
func (c *TwoTierCache) Put(ctx context.Context, query string, response models.Response, department models.Department, confidence float64) {
	hash := queryHash(query)
	entry := &models.CacheEntry{
		QueryHash:    hash,
		Response:     response,
		Department:   department,
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
		ExpiresAt:    time.Now().Add(c.cfg.TTL),
		IsValid:      true,
	}

	if c.embedder != nil {
		if vector, err := c.embedder.Embed(ctx, query); err == nil {
			entry.QueryEmbedding = vector
		}
	}

	select {
	case c.queue <- writeJob{hash: hash, entry: entry}:
	default:
		atomic.AddInt64(&c.droppedWrites, 1)
		if c.log != nil {
			c.log.Warn("two-tier cache: write queue full, dropping cache write")
		}
	}
}

func (c *TwoTierCache) writeLoop() {
	for {
		select {
		case <-c.stop:
			return
		case job := <-c.queue:
			c.commit(job)
		}
	}
}

func (c *TwoTierCache) commit(job writeJob) {
	c.mu.Lock()
	if _, exists := c.entries[job.hash]; !exists {
		c.order = append(c.order, job.hash)
	}
	c.entries[job.hash] = job.entry
	c.mu.Unlock()

	if c.redis != nil {
		data, err := json.Marshal(job.entry)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := c.redis.Set(ctx, "onboarding:cache:"+job.hash, data, c.cfg.TTL).Err(); err != nil && c.log != nil {
				c.log.WithError(err).Warn("two-tier cache: redis persistence failed")
			}
			cancel()
		}
	}
}

// Invalidate soft-marks entries for department (or all entries if department
// is empty) invalid; the cleanup pass removes them later (spec §4.9).
func (c *TwoTierCache) Invalidate(department models.Department) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, entry := range c.entries {
		if department == "" || entry.Department == department {
			if entry.IsValid {
				entry.IsValid = false
				count++
			}
		}
	}
	return count
}

// CleanupExpired removes entries whose TTL has elapsed or that were
// soft-invalidated, with no real-time guarantee (spec §4.9).
func (c *TwoTierCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	kept := c.order[:0]
	for _, hash := range c.order {
		entry := c.entries[hash]
		if entry == nil || !entry.IsValid || now.After(entry.ExpiresAt) {
			delete(c.entries, hash)
			removed++
			continue
		}
		kept = append(kept, hash)
	}
	c.order = kept
	return removed
}

// DroppedWrites reports how many Put calls were dropped due to a full queue.
func (c *TwoTierCache) DroppedWrites() int64 {
	return atomic.LoadInt64(&c.droppedWrites)
}

// Close stops the background write worker.
func (c *TwoTierCache) Close() {
	close(c.stop)
}
