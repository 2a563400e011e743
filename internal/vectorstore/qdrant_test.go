package vectorstore

import (
	"testing"

	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestChunkFromPayloadRoundTrips(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"chunk_id":    qdrant.NewValueString("hr_policies_3"),
		"text":        qdrant.NewValueString("PTO accrues monthly."),
		"filename":    qdrant.NewValueString("hr_policies.md"),
		"section":     qdrant.NewValueString("Paid Time Off"),
		"department":  qdrant.NewValueString("HR"),
		"chunk_index": qdrant.NewValueInt(3),
	}

	chunk := chunkFromPayload(payload)

	assert.Equal(t, "hr_policies_3", chunk.ID)
	assert.Equal(t, "hr_policies.md", chunk.Source)
	assert.Equal(t, "Paid Time Off", chunk.Section)
	assert.Equal(t, "HR", string(chunk.Department))
	assert.Equal(t, 3, chunk.ChunkIndex)
}

func TestStableNumericIDIsDeterministic(t *testing.T) {
	a := stableNumericID("hr_policies_0")
	b := stableNumericID("hr_policies_0")
	c := stableNumericID("hr_policies_1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "onboarding_policies", cfg.Collection)
	assert.Equal(t, uint64(256), cfg.VectorSize)
}
