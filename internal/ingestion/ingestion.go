// Package ingestion implements the Ingestion subsystem (C4): loading
// markdown policy documents, extracting ATX-header sections, chunking with
// overlap, and writing the results to the Vector Store and BM25 Index.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"dev.helix.onboarding/internal/bm25"
	"dev.helix.onboarding/internal/embedding"
	"dev.helix.onboarding/internal/models"
	"dev.helix.onboarding/internal/vectorstore"
)

var departmentPrefixes = map[string]models.Department{
	"hr_":       models.DepartmentHR,
	"it_":       models.DepartmentIT,
	"security_": models.DepartmentSecurity,
	"finance_":  models.DepartmentFinance,
}

// departmentForFilename derives the department from the filename prefix
// (spec §4.4 step 1), defaulting to General.
func departmentForFilename(filename string) models.Department {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	for prefix, dept := range departmentPrefixes {
		if strings.HasPrefix(stem, prefix) {
			return dept
		}
	}
	return models.DepartmentGeneral
}

var headerPattern = regexp.MustCompile(`(?m)^(#{1,4})\s+(.+)$`)
var multiNewline = regexp.MustCompile(`\n{3,}`)
var multiSpace = regexp.MustCompile(` {2,}`)

type section struct {
	title string
	body  string
}

// extractSections splits markdown content on ATX headers. A file with no
// headers produces a single synthetic "root" section (spec §4.4 edge case).
func extractSections(content string) []section {
	locs := headerPattern.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []section{{title: "root", body: content}}
	}

	var sections []section
	for i, loc := range locs {
		titleStart, titleEnd := loc[4], loc[5]
		title := strings.TrimSpace(content[titleStart:titleEnd])

		bodyStart := loc[1]
		bodyEnd := len(content)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		sections = append(sections, section{title: title, body: content[bodyStart:bodyEnd]})
	}
	return sections
}

// cleanText normalizes whitespace per spec §4.4 step 4.
func cleanText(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// chunkSection packs one section's body into chunks of at most chunkSize
// characters, carrying chunkOverlap characters of trailing context between
// consecutive chunks of the same section (spec §4.4 step 3).
func chunkSection(body string, chunkSize, chunkOverlap int) []string {
	body = cleanText(body)
	if body == "" {
		return nil
	}
	if len(body) <= chunkSize {
		return []string{body}
	}

	// Cut paragraphs that cannot fit in one chunk beside the overlap.
	limit := chunkSize - chunkOverlap
	var paragraphs []string
	for _, para := range strings.Split(body, "\n\n") {
		for limit > 0 && len(para) > limit {
			cut := strings.LastIndex(para[:limit], " ")
			if cut <= 0 {
				for cut = limit; cut > 1 && !utf8.RuneStart(para[cut]); cut-- {
				}
			}
			paragraphs = append(paragraphs, strings.TrimSpace(para[:cut]))
			para = strings.TrimSpace(para[cut:])
		}
		paragraphs = append(paragraphs, para)
	}
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
		current.Reset()
	}

	for _, para := range paragraphs {
		if current.Len()+len(para) <= chunkSize {
			current.WriteString(para)
			current.WriteString("\n\n")
			continue
		}
		prev := current.String()
		flush()

		overlap := ""
		if len(prev) > chunkOverlap {
			overlap = prev[len(prev)-chunkOverlap:]
		} else {
			overlap = prev
		}
		current.WriteString(overlap)
		current.WriteString(para)
		current.WriteString("\n\n")
	}
	flush()

	return chunks
}

// Result reports how many chunks were produced per ingested file.
type Result map[string]int

// Pipeline wires ingestion to its two write targets: the vector store (with
// embeddings) and the BM25 index.
type Pipeline struct {
	ChunkSize    int
	ChunkOverlap int

	Store    vectorstore.VectorStore
	Adder    VectorAdder
	BM25     *bm25.Index
	Embedder *embedding.Embedder
	Log      *logrus.Logger
}

// VectorAdder is the write-side of the Vector Store; split out from
// vectorstore.VectorStore (the read-only query interface Hybrid Search uses)
// so ingestion and search depend on disjoint capabilities.
type VectorAdder interface {
	Add(ctx context.Context, chunks []*models.Chunk, vectors [][]float32) error
	DeleteCollection(ctx context.Context) error
}

// New builds an ingestion pipeline.
func New(chunkSize, chunkOverlap int, adder VectorAdder, idx *bm25.Index, embedder *embedding.Embedder, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Adder:        adder,
		BM25:         idx,
		Embedder:     embedder,
		Log:          log,
	}
}

// ChunkFile turns one markdown file's content into ordered chunks, deriving
// department from the given filename.
func (p *Pipeline) ChunkFile(filename, content string) []*models.Chunk {
	department := departmentForFilename(filename)
	sections := extractSections(content)

	var chunks []*models.Chunk
	ordinal := 0
	for _, sec := range sections {
		for _, body := range chunkSection(sec.body, p.ChunkSize, p.ChunkOverlap) {
			chunks = append(chunks, &models.Chunk{
				ID:         fmt.Sprintf("%s_%d", strings.TrimSuffix(filename, filepath.Ext(filename)), ordinal),
				Text:       body,
				Source:     filename,
				Section:    sec.title,
				Department: department,
				ChunkIndex: ordinal,
			})
			ordinal++
		}
	}
	return chunks
}

// IngestFile loads, chunks and writes a single markdown file to both write
// targets. On a partial write failure it resets the collection and retries
// once (spec §4.4 step 6).
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	filename := filepath.Base(path)
	chunks := p.ChunkFile(filename, string(data))
	if len(chunks) == 0 {
		if p.Log != nil {
			p.Log.Warnf("no chunks produced from %s", path)
		}
		return 0, nil
	}

	if err := p.writeChunks(ctx, chunks); err != nil {
		if p.Log != nil {
			p.Log.WithError(err).Warn("ingestion write failed, resetting collection and retrying once")
		}
		_ = p.Adder.DeleteCollection(ctx)
		p.BM25.Reset()
		if err := p.writeChunks(ctx, chunks); err != nil {
			return 0, fmt.Errorf("ingestion retry failed for %s: %w", path, err)
		}
	}

	return len(chunks), nil
}

func (p *Pipeline) writeChunks(ctx context.Context, chunks []*models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if err := p.Adder.Add(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("failed to write chunks to vector store: %w", err)
	}
	p.BM25.Add(chunks)
	return nil
}

// IngestDirectory ingests every *.md file in dir (spec §4.4 contract `ingest_directory`).
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("CorpusNotFound: failed to read policies directory %s: %w", dir, err)
	}

	result := make(Result)
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		found = true
		count, err := p.IngestFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			return result, err
		}
		result[entry.Name()] = count
	}
	if !found {
		return nil, fmt.Errorf("CorpusNotFound: no markdown policy files found in %s", dir)
	}
	return result, nil
}

// Reset drops the vector store collection and clears the BM25 index (spec §4.4 `reset`).
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.Adder.DeleteCollection(ctx); err != nil {
		return fmt.Errorf("failed to delete vector store collection: %w", err)
	}
	p.BM25.Reset()
	return nil
}
