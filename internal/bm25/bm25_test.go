package bm25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.onboarding/internal/models"
)

func chunk(id, text, dept string) *models.Chunk {
	return &models.Chunk{ID: id, Text: text, Department: models.Department(dept)}
}

func TestSearchRanksByRelevance(t *testing.T) {
	idx := New()
	idx.Add([]*models.Chunk{
		chunk("hr_1", "Employees accrue paid time off monthly based on tenure.", "HR"),
		chunk("it_1", "Set up VPN access using the company portal and your Okta credentials.", "IT"),
		chunk("hr_2", "Parental leave is available for all full-time employees.", "HR"),
	})

	matches := idx.Search("paid time off accrual", 5, "")
	require.NotEmpty(t, matches)
	assert.Equal(t, "hr_1", idx.Document(matches[0].Index).ID)
}

func TestSearchDepartmentFilterZeroesOthers(t *testing.T) {
	idx := New()
	idx.Add([]*models.Chunk{
		chunk("hr_1", "vpn vpn vpn access policy", "HR"),
		chunk("it_1", "vpn access policy for remote workers", "IT"),
	})

	matches := idx.Search("vpn access", 5, "IT")
	require.Len(t, matches, 1)
	assert.Equal(t, "it_1", idx.Document(matches[0].Index).ID)
}

func TestSearchEmptyIndexReturnsNil(t *testing.T) {
	idx := New()
	assert.Nil(t, idx.Search("anything", 5, ""))
}

func TestSearchEmptyQueryReturnsNil(t *testing.T) {
	idx := New()
	idx.Add([]*models.Chunk{chunk("a", "some text", "General")})
	assert.Nil(t, idx.Search("   ", 5, ""))
}

func TestResetClearsIndex(t *testing.T) {
	idx := New()
	idx.Add([]*models.Chunk{chunk("a", "hello world", "General")})
	require.Equal(t, 1, idx.Len())

	idx.Reset()
	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Search("hello", 5, ""))
}

func TestAddReplacesExistingChunkIDInsteadOfDuplicating(t *testing.T) {
	idx := New()
	idx.Add([]*models.Chunk{chunk("hr_1", "old PTO policy text", "HR")})
	require.Equal(t, 1, idx.Len())

	idx.Add([]*models.Chunk{chunk("hr_1", "revised PTO policy text", "HR")})
	require.Equal(t, 1, idx.Len())
	assert.Equal(t, "revised PTO policy text", idx.Document(0).Text)
}

func TestAddMixOfNewAndExistingIDsUpsertsEachOnce(t *testing.T) {
	idx := New()
	idx.Add([]*models.Chunk{
		chunk("hr_1", "PTO accrues monthly", "HR"),
		chunk("hr_2", "parental leave policy", "HR"),
	})
	require.Equal(t, 2, idx.Len())

	idx.Add([]*models.Chunk{
		chunk("hr_2", "updated parental leave policy", "HR"),
		chunk("hr_3", "new tuition reimbursement policy", "HR"),
	})

	require.Equal(t, 3, idx.Len())
	matches := idx.Search("updated parental leave", 5, "")
	require.NotEmpty(t, matches)
	assert.Equal(t, "hr_2", idx.Document(matches[0].Index).ID)
}

func TestSearchRespectsK(t *testing.T) {
	idx := New()
	idx.Add([]*models.Chunk{
		chunk("1", "benefits benefits benefits", "HR"),
		chunk("2", "benefits package overview", "HR"),
		chunk("3", "benefits enrollment guide", "HR"),
	})
	matches := idx.Search("benefits", 2, "")
	assert.Len(t, matches, 2)
}
