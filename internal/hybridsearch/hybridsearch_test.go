package hybridsearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.onboarding/internal/bm25"
	"dev.helix.onboarding/internal/embedding"
	"dev.helix.onboarding/internal/models"
	"dev.helix.onboarding/internal/vectorstore"
)

type fakeStore struct {
	matches []vectorstore.Match
	err     error
}

func (f *fakeStore) Query(_ context.Context, _ []float32, k int, _ string) ([]vectorstore.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.matches) {
		return f.matches[:k], nil
	}
	return f.matches, nil
}

func newTestEngine(t *testing.T, store vectorstore.VectorStore) (*Engine, *bm25.Index) {
	t.Helper()
	idx := bm25.New()
	idx.Add([]*models.Chunk{
		{ID: "hr_policies_0", Text: "Employees accrue PTO monthly based on tenure.", Department: models.DepartmentHR},
		{ID: "it_policies_0", Text: "Configure VPN access through the company portal.", Department: models.DepartmentIT},
	})
	emb := embedding.New(embedding.NewHashingProvider(32), 100, nil)
	engine := New(DefaultConfig(), store, idx, emb, nil)
	return engine, idx
}

func TestSearchCombinesAndRanks(t *testing.T) {
	store := &fakeStore{matches: []vectorstore.Match{
		{Chunk: &models.Chunk{ID: "hr_policies_0", Department: models.DepartmentHR}, Distance: 0.1},
	}}
	engine, _ := newTestEngine(t, store)

	resp, err := engine.Search(context.Background(), "PTO accrual", 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.CacheHit)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].CombinedScore, resp.Results[i].CombinedScore)
	}
}

func TestSearchTruncatesToK(t *testing.T) {
	idx := bm25.New()
	idx.Add([]*models.Chunk{
		{ID: "hr_1", Text: "benefits overview for new hires", Department: models.DepartmentHR},
		{ID: "hr_2", Text: "benefits enrollment guide for new hires", Department: models.DepartmentHR},
		{ID: "hr_3", Text: "benefits package summary for new hires", Department: models.DepartmentHR},
		{ID: "hr_4", Text: "benefits eligibility rules for new hires", Department: models.DepartmentHR},
	})
	store := &fakeStore{matches: []vectorstore.Match{
		{Chunk: &models.Chunk{ID: "hr_1", Department: models.DepartmentHR}, Distance: 0.1},
		{Chunk: &models.Chunk{ID: "hr_2", Department: models.DepartmentHR}, Distance: 0.2},
		{Chunk: &models.Chunk{ID: "hr_3", Department: models.DepartmentHR}, Distance: 0.3},
		{Chunk: &models.Chunk{ID: "hr_4", Department: models.DepartmentHR}, Distance: 0.4},
	}}
	emb := embedding.New(embedding.NewHashingProvider(32), 100, nil)
	engine := New(DefaultConfig(), store, idx, emb, nil)

	resp, err := engine.Search(context.Background(), "benefits for new hires", 2, "")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, 2, resp.Results[1].Rank)
}

func TestSearchCachesSecondCall(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(t, store)

	_, err := engine.Search(context.Background(), "vpn setup", 5, "")
	require.NoError(t, err)

	resp2, err := engine.Search(context.Background(), "vpn setup", 5, "")
	require.NoError(t, err)
	assert.True(t, resp2.CacheHit)
}

func TestSearchFallsBackWhenSemanticFails(t *testing.T) {
	store := &fakeStore{err: assertErr{"semantic backend down"}}
	engine, _ := newTestEngine(t, store)

	resp, err := engine.Search(context.Background(), "vpn access", 5, "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results) // BM25 side still produced results
}

func TestSearchBothFailReturnsEmptyNotError(t *testing.T) {
	store := &fakeStore{err: assertErr{"down"}}
	idx := bm25.New() // empty index -> bm25 side also yields nothing
	emb := embedding.New(embedding.NewHashingProvider(16), 10, nil)
	engine := New(DefaultConfig(), store, idx, emb, nil)

	resp, err := engine.Search(context.Background(), "anything", 5, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestCacheKeyDiffersOnDepartment(t *testing.T) {
	a := cacheKey("query", "HR", 5)
	b := cacheKey("query", "IT", 5)
	assert.NotEqual(t, a, b)
}

func TestNormalizeHandlesConstantScores(t *testing.T) {
	out := normalize([]float64{2, 2, 2})
	for _, v := range out {
		assert.Equal(t, 1.0, v)
	}
}

func TestClearCacheForcesRecompute(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(t, store)

	_, _ = engine.Search(context.Background(), "vpn setup", 5, "")
	engine.ClearCache()
	resp, err := engine.Search(context.Background(), "vpn setup", 5, "")
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestCacheExpiresAfterTTL(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(t, store)
	engine.cfg.CacheTTL = 1 * time.Millisecond

	_, _ = engine.Search(context.Background(), "vpn setup", 5, "")
	time.Sleep(5 * time.Millisecond)
	resp, err := engine.Search(context.Background(), "vpn setup", 5, "")
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}
