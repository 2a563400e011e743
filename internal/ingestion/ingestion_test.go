package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.onboarding/internal/bm25"
	"dev.helix.onboarding/internal/embedding"
	"dev.helix.onboarding/internal/models"
)

// fakeAdder is a no-op VectorAdder: the Vector Store side already upserts by
// deterministic UUID, so these tests only need to observe BM25 behavior.
type fakeAdder struct{}

func (fakeAdder) Add(_ context.Context, _ []*models.Chunk, _ [][]float32) error { return nil }
func (fakeAdder) DeleteCollection(_ context.Context) error                     { return nil }

func TestDepartmentForFilename(t *testing.T) {
	assert.Equal(t, models.DepartmentHR, departmentForFilename("hr_policies.md"))
	assert.Equal(t, models.DepartmentIT, departmentForFilename("it_policies.md"))
	assert.Equal(t, models.DepartmentSecurity, departmentForFilename("security_policies.md"))
	assert.Equal(t, models.DepartmentFinance, departmentForFilename("finance_policies.md"))
	assert.Equal(t, models.DepartmentGeneral, departmentForFilename("welcome.md"))
}

func TestExtractSectionsNoHeadersProducesRoot(t *testing.T) {
	sections := extractSections("just some plain text\nwith no headers")
	require.Len(t, sections, 1)
	assert.Equal(t, "root", sections[0].title)
}

func TestExtractSectionsEmptyProducesNone(t *testing.T) {
	assert.Empty(t, extractSections(""))
}

func TestExtractSectionsSplitsOnHeaders(t *testing.T) {
	content := "# Intro\nwelcome text\n\n## PTO\nPTO accrues monthly.\n\n## VPN\nUse the portal.\n"
	sections := extractSections(content)
	require.Len(t, sections, 3)
	assert.Equal(t, "Intro", sections[0].title)
	assert.Equal(t, "PTO", sections[1].title)
	assert.Equal(t, "VPN", sections[2].title)
}

func TestChunkSectionSmallBodyIsOneChunk(t *testing.T) {
	chunks := chunkSection("a short paragraph", 500, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0])
}

func TestChunkSectionSplitsLargeBodyWithOverlap(t *testing.T) {
	para := func(n int) string {
		s := ""
		for i := 0; i < n; i++ {
			s += "word "
		}
		return s
	}
	body := para(40) + "\n\n" + para(40) + "\n\n" + para(40)
	chunks := chunkSection(body, 100, 20)
	require.True(t, len(chunks) >= 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100+20+10) // allow overlap + paragraph slack
	}
}

func TestChunkFileAssignsStableIDs(t *testing.T) {
	p := &Pipeline{ChunkSize: 500, ChunkOverlap: 50}
	chunks := p.ChunkFile("hr_policies.md", "# PTO\nEmployees accrue PTO monthly.\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hr_policies_0", chunks[0].ID)
	assert.Equal(t, models.DepartmentHR, chunks[0].Department)
	assert.Equal(t, "PTO", chunks[0].Section)
}

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	out := cleanText("a\n\n\n\nb   c")
	assert.Equal(t, "a\n\nb c", out)
}

func TestReIngestingEditedFileDoesNotDuplicateBM25Entries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hr_policies.md")
	require.NoError(t, os.WriteFile(path, []byte("# PTO\nEmployees accrue PTO monthly.\n"), 0o644))

	idx := bm25.New()
	p := &Pipeline{
		ChunkSize: 500, ChunkOverlap: 50,
		Adder: fakeAdder{}, BM25: idx,
		Embedder: embedding.New(embedding.NewHashingProvider(32), 100, nil),
	}

	n1, err := p.IngestFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, n1)
	require.Equal(t, 1, idx.Len())

	require.NoError(t, os.WriteFile(path, []byte("# PTO\nEmployees accrue PTO monthly, revised policy.\n"), 0o644))
	n2, err := p.IngestFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, n2)

	assert.Equal(t, 1, idx.Len(), "re-ingesting an edited file must upsert by chunk_id, not duplicate")
	assert.Contains(t, idx.Document(0).Text, "revised policy")
}
