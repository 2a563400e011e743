package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.onboarding/internal/models"
)

func TestScoreEmptyReturnsNone(t *testing.T) {
	score, level := Score(nil)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, models.ConfidenceNone, level)
}

func TestScoreHighConfidence(t *testing.T) {
	score, level := Score([]float64{0.95, 0.9, 0.85})
	assert.Equal(t, models.ConfidenceHigh, level)
	assert.Greater(t, score, 0.7)
}

func TestScoreLowConfidenceSingleWeakDoc(t *testing.T) {
	score, level := Score([]float64{0.1})
	assert.Equal(t, models.ConfidenceLow, level)
	assert.Less(t, score, 0.4)
	_ = score
}

func TestEvaluateNoEscalationWhenConfidentAndClean(t *testing.T) {
	esc := Evaluate(Input{
		Query: "how many vacation days do I get", Department: models.DepartmentHR,
		Score: 0.9, NumDocs: 3, ScoreThreshold: 0.5,
	}, nil)
	assert.Nil(t, esc)
}

func TestEvaluateEscalatesOnSensitiveTopic(t *testing.T) {
	esc := Evaluate(Input{
		Query: "I want to report harassment by my manager", Department: models.DepartmentHR,
		Score: 0.9, NumDocs: 3, ScoreThreshold: 0.5,
	}, nil)
	require.NotNil(t, esc)
	assert.Equal(t, "sensitive_topic", esc.Reason)
	assert.Equal(t, models.EscalationHigh, esc.Priority)
	assert.Equal(t, "hr@company.com", esc.ContactEmail)
}

func TestEvaluateEscalatesOnNoDocuments(t *testing.T) {
	esc := Evaluate(Input{
		Query: "some obscure question", Department: models.DepartmentIT,
		Score: 0, NumDocs: 0, ScoreThreshold: 0.5,
	}, nil)
	require.NotNil(t, esc)
	assert.Equal(t, "no_documents_found", esc.Reason)
}

func TestRepeatedQueryTrackerDetectsNearDuplicates(t *testing.T) {
	tracker := NewRepeatedQueryTracker(10)
	q1 := "how much PTO do I have left"
	q2 := "how much PTO do I have left now"

	assert.False(t, tracker.IsRepeated("u1", q1, 2, 0.8))
	assert.False(t, tracker.IsRepeated("u1", q2, 2, 0.8))
	assert.True(t, tracker.IsRepeated("u1", q1, 2, 0.8))
}

func TestJaccardSimilarityRange(t *testing.T) {
	assert.Equal(t, 1.0, jaccard("vpn setup", "vpn setup"))
	assert.Equal(t, 0.0, jaccard("vpn setup", "unrelated text"))
}
