package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dev.helix.onboarding/internal/models"
)

func TestDetectEnglish(t *testing.T) {
	assert.Equal(t, models.LanguageEnglish, Detect("How much PTO do I get?"))
}

func TestDetectArabic(t *testing.T) {
	assert.Equal(t, models.LanguageArabic, Detect("كم عدد أيام الإجازة السنوية؟"))
}

func TestDetectEmptyDefaultsEnglish(t *testing.T) {
	assert.Equal(t, models.LanguageEnglish, Detect(""))
}
