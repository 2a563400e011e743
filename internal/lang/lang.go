// Package lang detects whether a query is English or Arabic, grounded on
// the original service's script-ratio heuristic (app/services/i18n.py's
// TranslationService.detect_language): count Arabic-range runes against
// Latin letters and pick whichever is more frequent.
package lang

import "dev.helix.onboarding/internal/models"

// Detect classifies text as Arabic or English based on Unicode script
// frequency. Anything that isn't predominantly Arabic degrades to English.
func Detect(text string) models.Language {
	var arabic, latin int
	for _, r := range text {
		switch {
		case (r >= 0x0600 && r <= 0x06FF) || (r >= 0x0750 && r <= 0x077F):
			arabic++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin++
		}
	}
	if arabic > latin {
		return models.LanguageArabic
	}
	return models.LanguageEnglish
}
