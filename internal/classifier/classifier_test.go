package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestArtifact(t *testing.T) string {
	t.Helper()
	artifact := Artifact{
		Vocabulary: map[string]int{"vpn": 0, "pto": 1, "vacation": 2},
		IDF:        []float64{1.2, 1.2, 1.2},
		Classes:    []string{"IT", "HR"},
		Weights: [][]float64{
			{3.0, -1.0, -1.0}, // IT leans on "vpn"
			{-1.0, 3.0, 3.0},  // HR leans on "pto"/"vacation"
		},
		Bias:     []float64{0, 0},
		NGramMax: 2,
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "router.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPredictPicksHighestScoringClass(t *testing.T) {
	path := writeTestArtifact(t)
	c, err := Load(path)
	require.NoError(t, err)

	pred := c.Predict("how do I set up vpn access")
	assert.Equal(t, "IT", pred.Department)
	assert.Greater(t, pred.Confidence, 0.5)
}

func TestPredictProbabilitiesSumToOne(t *testing.T) {
	path := writeTestArtifact(t)
	c, err := Load(path)
	require.NoError(t, err)

	pred := c.Predict("vacation and pto questions")
	var sum float64
	for _, p := range pred.Probabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestTopKOrdersDescending(t *testing.T) {
	path := writeTestArtifact(t)
	c, err := Load(path)
	require.NoError(t, err)

	top := c.TopK("vpn pto", 2)
	require.Len(t, top, 2)
	assert.GreaterOrEqual(t, top[0].Confidence, top[1].Confidence)
}

func TestLoadRejectsMismatchedArtifact(t *testing.T) {
	artifact := Artifact{Classes: []string{"IT", "HR"}, Weights: [][]float64{{1}}, Bias: []float64{0}}
	data, _ := json.Marshal(artifact)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
