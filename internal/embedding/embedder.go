// Package embedding implements the Embedder (C1): a thin, LRU-cached wrapper
// around a pluggable dense-vector provider. The provider is behind an
// interface so the process can run against a real embedding model or, in its
// absence, a deterministic local fallback — mirroring the spec's "model
// selection is a configuration option" contract.
package embedding

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrEmbedderUnavailable is the spec's <EmbedderUnavailable> error kind.
var ErrEmbedderUnavailable = fmt.Errorf("embedder: model unavailable")

// Provider produces dense vectors for already-normalized text. Real
// deployments back this with an HTTP call to a hosted embedding model; tests
// and offline development use the deterministic fallback below.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type lruEntry struct {
	key    string
	vector []float32
}

// Embedder normalizes input, caches text->vector by a hash of the normalized
// form, and delegates cache misses to a Provider. The cache is a classic
// doubly-linked-list LRU guarded by a mutex, safe for concurrent readers
// (spec §5: "the embedder LRU is concurrent-safe").
type Embedder struct {
	provider Provider
	capacity int
	log      *logrus.Logger

	mu    sync.Mutex
	index map[string]*list.Element
	order *list.List
}

// New builds an Embedder with the given cache capacity (spec default 10000).
func New(provider Provider, capacity int, log *logrus.Logger) *Embedder {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Embedder{
		provider: provider,
		capacity: capacity,
		log:      log,
		index:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Dimension returns the provider's fixed vector dimension.
func (e *Embedder) Dimension() int {
	return e.provider.Dimension()
}

func normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

func cacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Embed returns the vector for a single text, consulting the LRU first.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns vectors for each text, preserving order. Cache hits and
// misses within the same batch are both supported; only misses reach the
// provider, batched into a single call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.provider == nil {
		return nil, ErrEmbedderUnavailable
	}

	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	keys := make([]string, len(texts))

	e.mu.Lock()
	for i, t := range texts {
		key := cacheKey(normalize(t))
		keys[i] = key
		if el, ok := e.index[key]; ok {
			e.order.MoveToFront(el)
			results[i] = el.Value.(*lruEntry).vector
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, normalize(t))
	}
	e.mu.Unlock()

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := e.provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		if e.log != nil {
			e.log.WithError(err).Warn("embedding provider call failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedderUnavailable, err)
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder: provider returned %d vectors for %d inputs", len(vectors), len(missTexts))
	}

	e.mu.Lock()
	for j, idx := range missIdx {
		results[idx] = vectors[j]
		e.put(keys[idx], vectors[j])
	}
	e.mu.Unlock()

	return results, nil
}

// put inserts or refreshes a cache entry, evicting the least-recently-used
// entry if the capacity is exceeded. Caller must hold e.mu.
func (e *Embedder) put(key string, vector []float32) {
	if el, ok := e.index[key]; ok {
		e.order.MoveToFront(el)
		el.Value.(*lruEntry).vector = vector
		return
	}
	el := e.order.PushFront(&lruEntry{key: key, vector: vector})
	e.index[key] = el
	if e.order.Len() > e.capacity {
		oldest := e.order.Back()
		if oldest != nil {
			e.order.Remove(oldest)
			delete(e.index, oldest.Value.(*lruEntry).key)
		}
	}
}

// Len reports the current number of cached entries, used by tests and
// operator diagnostics.
func (e *Embedder) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order.Len()
}

// HashingProvider is a deterministic, dependency-free fallback used when no
// real embedding model is configured: it hashes n-grams into a fixed-width
// bag-of-features vector. It produces consistent, comparable vectors for
// development and tests but is not a substitute for a trained embedding model.
type HashingProvider struct {
	dim int
}

// NewHashingProvider builds a fallback provider with the given dimension.
func NewHashingProvider(dim int) *HashingProvider {
	if dim <= 0 {
		dim = 256
	}
	return &HashingProvider{dim: dim}
}

func (h *HashingProvider) Dimension() int { return h.dim }

func (h *HashingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *HashingProvider) embedOne(text string) []float32 {
	vec := make([]float32, h.dim)
	words := strings.Fields(normalize(text))
	if len(words) == 0 {
		return vec
	}
	for _, w := range words {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(w))
		bucket := int(hasher.Sum32()) % h.dim
		if bucket < 0 {
			bucket += h.dim
		}
		vec[bucket]++
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
