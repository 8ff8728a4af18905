package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejectTier(t *testing.T) {
	lex := New()

	tests := []struct {
		name string
		text string
		want RejectTier
	}{
		{"reject all", "Reject All", TierVeryHigh},
		{"only essential", "Only essential cookies", TierVeryHigh},
		{"german reject all", "Alle ablehnen", TierVeryHigh},
		{"plain reject", "Reject", TierHigh},
		{"continue without accepting", "Continue without accepting", TierHigh},
		{"opt out", "Opt out", TierHigh},
		{"disable", "Disable", TierMedium},
		{"close", "Close", TierMedium},
		{"accept", "Accept all", TierNone},
		{"unrelated", "Subscribe to newsletter", TierNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lex.RejectTier(tt.text))
		})
	}
}

func TestIsAcceptPhraseNegationGuard(t *testing.T) {
	lex := New()

	assert.True(t, lex.IsAcceptPhrase("Accept all cookies"))
	assert.True(t, lex.IsAcceptPhrase("Agree"))

	// Negated accept phrasing is reject intent and must not take the
	// accept penalty.
	assert.False(t, lex.IsAcceptPhrase("Do not accept"))
	assert.False(t, lex.IsAcceptPhrase("Continue without accepting"))
}

func TestSavePhraseExcludesAcceptAll(t *testing.T) {
	lex := New()

	assert.True(t, lex.IsSavePhrase("Save preferences"))
	assert.True(t, lex.IsSavePhrase("Confirm my choices"))
	assert.False(t, lex.IsSavePhrase("Subscribe"))

	// "Accept all" styled as a save button stays off-limits.
	assert.True(t, lex.IsAcceptAllPhrase("Save and accept all"))
}

func TestCategoryClassification(t *testing.T) {
	lex := New()

	assert.True(t, lex.IsEssentialCategory("Strictly Necessary Cookies"))
	assert.True(t, lex.IsNonEssentialCategory("Marketing"))
	assert.True(t, lex.IsNonEssentialCategory("Analytics & Statistics"))

	// A label matching both families counts as essential: the invariant is
	// that essential categories are never disabled.
	assert.True(t, lex.IsEssentialCategory("Necessary for advertising measurement"))
	assert.False(t, lex.IsNonEssentialCategory("Necessary for advertising measurement"))
}

func TestDetectLanguage(t *testing.T) {
	lex := New()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"english", "We use cookies to improve your experience. Accept or reject all.", "en"},
		{"german", "Wir verwenden Cookies. Alle akzeptieren oder alle ablehnen. Datenschutz.", "de"},
		{"french", "Nous utilisons des cookies. Tout accepter ou tout refuser. Consentement.", "fr"},
		{"empty", "", "en"},
		{"no signal", "zzz qqq", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lex.DetectLanguage(tt.text))
		})
	}
}

func TestDetectLanguageDeterministic(t *testing.T) {
	lex := New()
	text := "Wir verwenden Cookies. Alle ablehnen. Einstellungen verwalten."
	first := lex.DetectLanguage(text)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, lex.DetectLanguage(text))
	}
}

func TestIsConsentText(t *testing.T) {
	lex := New()

	assert.True(t, lex.IsConsentText("This site uses cookies for analytics"))
	assert.True(t, lex.IsConsentText("Politique de confidentialité et cookies"))
	assert.False(t, lex.IsConsentText("Add to cart and proceed to checkout"))
}

func TestRejectScoreBonus(t *testing.T) {
	lex := New()

	assert.InDelta(t, 0.2, lex.RejectScoreBonus("Reject all"), 1e-9)
	assert.InDelta(t, 0.1, lex.RejectScoreBonus("No thanks"), 1e-9)
	assert.Zero(t, lex.RejectScoreBonus("Accept all"))
}

func TestIsExcluded(t *testing.T) {
	lex := New()

	assert.True(t, lex.IsExcluded("Sign in to your account"))
	assert.True(t, lex.IsExcluded("Add to cart"))
	assert.False(t, lex.IsExcluded("We use cookies to personalize content"))
}

func TestAttributeHints(t *testing.T) {
	lex := New()

	assert.True(t, lex.HasRejectAttributeHint(map[string]string{
		"class": "cky-btn cky-btn-reject",
	}))
	assert.True(t, lex.HasAcceptAttributeHint(map[string]string{
		"id": "onetrust-accept-btn-handler",
	}))
	assert.False(t, lex.HasRejectAttributeHint(map[string]string{
		"class": "banner-title",
	}))
}

func TestManageAndContinuePhrases(t *testing.T) {
	lex := New()

	assert.True(t, lex.IsManagePhrase("Manage preferences"))
	assert.True(t, lex.IsManagePhrase("Cookie-Einstellungen"))
	assert.True(t, lex.IsContinuePhrase("Next"))
	assert.False(t, lex.IsManagePhrase("Reject all"))
}

func TestLanguageMixScore(t *testing.T) {
	lex := New()

	single := lex.LanguageMixScore("We use cookies. Accept or reject.")
	mixed := lex.LanguageMixScore("We use cookies. Wir verwenden Cookies. Nous utilisons des cookies. Zustimmen. Refuser.")
	assert.GreaterOrEqual(t, mixed, single)
	assert.GreaterOrEqual(t, mixed, 0.0)
	assert.LessOrEqual(t, mixed, 1.0)
}
