// Package vectorstore implements the Vector Store (C2): a persistent
// cosine-similarity index over chunks with metadata filtering, backed by
// Qdrant. The core treats it as a black-box collaborator (spec §6) — this
// package is the only place that imports the Qdrant client.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"dev.helix.onboarding/internal/models"
)

// Config holds the connection settings for the Qdrant collaborator.
type Config struct {
	Host           string
	Port           int
	Collection     string
	VectorSize     uint64
	ConnectTimeout time.Duration
}

// DefaultConfig returns sane local-dev defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           6334,
		Collection:     "onboarding_policies",
		VectorSize:     256,
		ConnectTimeout: 5 * time.Second,
	}
}

// Match is one scored result from a similarity query: a chunk and its
// cosine distance (smaller = closer, per spec §4.2).
type Match struct {
	Chunk    *models.Chunk
	Distance float64
}

// Store is the Vector Store collaborator.
type Store struct {
	cfg        Config
	conn       *grpc.ClientConn
	points     qdrant.PointsClient
	collection qdrant.CollectionsClient
	log        *logrus.Logger
}

// New dials Qdrant and returns a ready Store. It does not create the
// collection; call EnsureCollection for that.
func New(cfg Config, log *logrus.Logger) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial qdrant at %s: %w", addr, err)
	}
	return &Store{
		cfg:        cfg,
		conn:       conn,
		points:     qdrant.NewPointsClient(conn),
		collection: qdrant.NewCollectionsClient(conn),
		log:        log,
	}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it does
// not already exist.
func (s *Store) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	_, err := s.collection.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     s.cfg.VectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		s.log.WithError(err).Debug("collection create returned an error; it may already exist")
	}
	return nil
}

// Add upserts chunks with their embeddings and department metadata (spec §4.2 `add`).
func (s *Store) Add(ctx context.Context, chunks []*models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("vectorstore: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		payload := map[string]*qdrant.Value{
			"chunk_id":    qdrant.NewValueString(c.ID),
			"text":        qdrant.NewValueString(c.Text),
			"filename":    qdrant.NewValueString(c.Source),
			"section":     qdrant.NewValueString(c.Section),
			"department":  qdrant.NewValueString(string(c.Department)),
			"chunk_index": qdrant.NewValueInt(int64(c.ChunkIndex)),
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(stableNumericID(c.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		})
	}

	wait := true
	_, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Query runs a k-nearest-neighbor search, optionally filtered by department
// equality (spec §4.2: `where` supports equality on department at minimum).
func (s *Store) Query(ctx context.Context, vector []float32, k int, department string) ([]Match, error) {
	req := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          ptrUint64(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if department != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("department", department),
			},
		}
	}

	resp, err := s.points.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	out := make([]Match, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		chunk := chunkFromPayload(p.GetPayload())
		out = append(out, Match{
			Chunk:    chunk,
			Distance: float64(1 - p.GetScore()), // cosine similarity -> distance
		})
	}
	return out, nil
}

// DeleteCollection drops the entire collection (spec §4.2 `delete_collection`, used by ingestion's Reset and IngestFile's write retry).
func (s *Store) DeleteCollection(ctx context.Context) error {
	_, err := s.collection.Delete(ctx, &qdrant.DeleteCollection{CollectionName: s.cfg.Collection})
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Count returns the number of points currently stored (spec §4.2 `count`).
func (s *Store) Count(ctx context.Context) (uint64, error) {
	resp, err := s.collection.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: s.cfg.Collection})
	if err != nil {
		return 0, fmt.Errorf("failed to get collection info: %w", err)
	}
	return resp.GetResult().GetPointsCount(), nil
}

func chunkFromPayload(payload map[string]*qdrant.Value) *models.Chunk {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	idx := 0
	if v, ok := payload["chunk_index"]; ok {
		idx = int(v.GetIntegerValue())
	}
	return &models.Chunk{
		ID:         get("chunk_id"),
		Text:       get("text"),
		Source:     get("filename"),
		Section:    get("section"),
		Department: models.Department(get("department")),
		ChunkIndex: idx,
	}
}

// stableNumericID derives a deterministic numeric point ID (the first 8 bytes
// of a name-based SHA-1 UUID) from a chunk's string ID so
// re-ingesting the same chunk_id overwrites rather than duplicates the point,
// matching the ingestion invariant that chunk_id is unique within the collection.
func stableNumericID(chunkID string) uint64 {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID))
	var n uint64
	for _, b := range u[:8] {
		n = n<<8 | uint64(b)
	}
	return n
}

func ptrUint64(v uint64) *uint64 { return &v }
