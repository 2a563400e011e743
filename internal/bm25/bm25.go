// Package bm25 implements the BM25 Index (C3): an in-memory tokenized
// keyword index over the same chunks the Vector Store holds, rebuilt
// wholesale on every Add — acceptable because corpus size stays small
// (spec §4.3: "O(N) in the corpus; corpus size is small (<= 10^4 chunks)").
package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"dev.helix.onboarding/internal/models"
)

// Okapi BM25 parameters (spec §4.3 defaults).
const (
	k1 = 1.5
	b  = 0.75
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize lowercases and splits on letter/digit runs, first normalizing to
// NFC so combining-mark variants of the same Arabic or accented-Latin word
// collapse to one token instead of splitting BM25's document frequency.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(norm.NFC.String(text)), -1)
}

// Match is one scored entry from Search: an index into the document slice
// held by the Index, and its raw BM25 score.
type Match struct {
	Index int
	Score float64
}

// Index is the BM25 keyword index. All state is guarded by mu so Add (writer)
// and Search (readers) are safe to call concurrently. Add rebuilds under the
// write lock and Search holds the read lock, so a search waits while a
// rebuild is in progress; there is no separate snapshot for readers.
type Index struct {
	mu      sync.RWMutex
	chunks  []*models.Chunk
	docs    [][]string // tokenized documents, parallel to chunks
	docFreq map[string]int
	avgLen  float64
}

// New returns an empty BM25 index.
func New() *Index {
	return &Index{docFreq: make(map[string]int)}
}

// Add upserts chunks into the index by chunk_id and rebuilds term
// statistics. Re-adding a chunk_id already present replaces that chunk in
// place instead of appending a duplicate, keeping re-ingestion of an
// edited file idempotent (spec §8: "ingestion is idempotent modulo
// chunk_id"), matching how the Vector Store's deterministic-UUID upsert
// already behaves.
func (idx *Index) Add(chunks []*models.Chunk) {
	if len(chunks) == 0 {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	byID := make(map[string]int, len(idx.chunks))
	for i, c := range idx.chunks {
		byID[c.ID] = i
	}
	for _, c := range chunks {
		if i, ok := byID[c.ID]; ok {
			idx.chunks[i] = c
			continue
		}
		idx.chunks = append(idx.chunks, c)
		byID[c.ID] = len(idx.chunks) - 1
	}
	idx.rebuild()
}

// Reset clears the index, used by ingestion's Reset and IngestFile's write retry.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.chunks = nil
	idx.docs = nil
	idx.docFreq = make(map[string]int)
	idx.avgLen = 0
}

// rebuild recomputes tokenized documents, document frequencies and average
// document length. Caller must hold idx.mu for writing.
func (idx *Index) rebuild() {
	idx.docs = make([][]string, len(idx.chunks))
	idx.docFreq = make(map[string]int)

	var totalLen int
	for i, c := range idx.chunks {
		tokens := tokenize(c.Text)
		idx.docs[i] = tokens
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			if _, ok := seen[t]; !ok {
				idx.docFreq[t]++
				seen[t] = struct{}{}
			}
		}
	}
	if len(idx.docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(idx.docs))
	}
}

// idf computes the standard Okapi BM25 inverse document frequency term.
func (idx *Index) idf(term string) float64 {
	n := float64(len(idx.docs))
	df := float64(idx.docFreq[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

func (idx *Index) scoreDoc(docIdx int, queryTerms []string) float64 {
	doc := idx.docs[docIdx]
	docLen := float64(len(doc))

	termFreq := make(map[string]int, len(doc))
	for _, t := range doc {
		termFreq[t]++
	}

	var score float64
	for _, term := range queryTerms {
		tf := float64(termFreq[term])
		if tf == 0 {
			continue
		}
		idfVal := idx.idf(term)
		denom := tf + k1*(1-b+b*(docLen/idx.avgLen))
		score += idfVal * (tf * (k1 + 1)) / denom
	}
	return score
}

// Search scores the query against every document and returns the top k
// matches, optionally restricted to a department by zeroing non-matching
// scores before selection (spec §4.3).
func (idx *Index) Search(query string, k int, department string) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docs) == 0 {
		return nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	scores := make([]float64, len(idx.docs))
	for i := range idx.docs {
		scores[i] = idx.scoreDoc(i, queryTerms)
	}

	if department != "" {
		for i, c := range idx.chunks {
			if !strings.EqualFold(string(c.Department), department) {
				scores[i] = 0
			}
		}
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	out := make([]Match, 0, k)
	for _, i := range order {
		if scores[i] <= 0 {
			continue
		}
		out = append(out, Match{Index: i, Score: scores[i]})
		if len(out) == k {
			break
		}
	}
	return out
}

// Document returns the chunk stored at the given index, as returned by Search matches.
func (idx *Index) Document(i int) *models.Chunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if i < 0 || i >= len(idx.chunks) {
		return nil
	}
	return idx.chunks[i]
}

// Len returns the number of documents currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}
