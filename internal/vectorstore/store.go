package vectorstore

import "context"

// VectorStore is the Hybrid Search subsystem's view of the Vector Store
// collaborator (spec §4.2). *Store implements it against real Qdrant; tests
// use an in-memory fake.
type VectorStore interface {
	Query(ctx context.Context, vector []float32, k int, department string) ([]Match, error)
}
