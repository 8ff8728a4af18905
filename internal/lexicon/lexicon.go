// Package lexicon holds the static multi-language keyword tables used for
// consent-banner classification and preference-center negotiation. All
// matchers are pure functions over normalized (lowercased, space-collapsed)
// text; the package keeps no state and performs no I/O.
package lexicon

import "strings"

// RejectTier grades how explicit a reject phrase is.
type RejectTier int

const (
	TierNone RejectTier = iota
	TierMedium
	TierHigh
	TierVeryHigh
)

// Lexicon implements the schemas.Lexicon collaborator plus the richer
// matchers used inside the core.
type Lexicon struct{}

// New returns the shared lexicon. It is stateless; a single instance can be
// shared freely.
func New() *Lexicon { return &Lexicon{} }

// Normalize lowercases and collapses whitespace for matching.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func countHits(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			n++
		}
	}
	return n
}

// IsConsentText reports whether text contains the primary consent vocabulary
// in any supported language.
func (l *Lexicon) IsConsentText(text string) bool {
	t := Normalize(text)
	for _, words := range primaryKeywords {
		if containsAny(t, words) {
			return true
		}
	}
	return false
}

// RejectScoreBonus returns the additive credit for localized reject-intent
// phrasing: 0.2 for very-high tier, 0.1 for high, 0 otherwise.
func (l *Lexicon) RejectScoreBonus(text string) float64 {
	switch l.RejectTier(text) {
	case TierVeryHigh:
		return 0.2
	case TierHigh:
		return 0.1
	default:
		return 0
	}
}

// PrimaryHits counts distinct primary-keyword matches across all languages.
func (l *Lexicon) PrimaryHits(text string) int {
	t := Normalize(text)
	n := 0
	seen := map[string]struct{}{}
	for _, words := range primaryKeywords {
		for _, w := range words {
			if _, dup := seen[w]; dup {
				continue
			}
			if strings.Contains(t, w) {
				seen[w] = struct{}{}
				n++
			}
		}
	}
	return n
}

// SecondaryHits counts distinct secondary-keyword matches.
func (l *Lexicon) SecondaryHits(text string) int {
	t := Normalize(text)
	n := 0
	seen := map[string]struct{}{}
	for _, words := range secondaryKeywords {
		for _, w := range words {
			if _, dup := seen[w]; dup {
				continue
			}
			if strings.Contains(t, w) {
				seen[w] = struct{}{}
				n++
			}
		}
	}
	return n
}

// PhraseHits counts characteristic banner-sentence matches.
func (l *Lexicon) PhraseHits(text string) int {
	t := Normalize(text)
	n := 0
	for _, phrases := range bannerPhrases {
		n += countHits(t, phrases)
	}
	return n
}

// LegalHits counts legal-term matches.
func (l *Lexicon) LegalHits(text string) int {
	return countHits(Normalize(text), legalTerms)
}

// IsExcluded reports whether text matches the exclusion list (commerce,
// auth, navigation, media, social, developer tooling).
func (l *Lexicon) IsExcluded(text string) bool {
	return containsAny(Normalize(text), exclusionPhrases)
}

// RejectTier grades text against the tiered reject-phrase lists. Longer,
// more explicit phrases win.
func (l *Lexicon) RejectTier(text string) RejectTier {
	t := Normalize(text)
	if containsAny(t, rejectVeryHigh) {
		return TierVeryHigh
	}
	if containsAny(t, rejectHigh) {
		return TierHigh
	}
	if containsAny(t, rejectMedium) {
		return TierMedium
	}
	return TierNone
}

// negatedAcceptGuards keep reject phrasings that merely mention accepting
// ("continue without accepting", "do not accept") from taking the accept
// penalty.
var negatedAcceptGuards = []string{
	"not accept", "without accept", "sans accepter", "ohne zu akzeptieren",
	"sin aceptar", "senza accettare", "zonder te accepteren", "sem aceitar",
}

// IsAcceptPhrase reports accept-intent wording.
func (l *Lexicon) IsAcceptPhrase(text string) bool {
	t := Normalize(text)
	if containsAny(t, negatedAcceptGuards) {
		return false
	}
	return containsAny(t, acceptPhrases)
}

// IsAmbiguousAction reports neutral action words (continue/confirm/save)
// that only score with reject context.
func (l *Lexicon) IsAmbiguousAction(text string) bool {
	return containsAny(Normalize(text), ambiguousActions)
}

// IsManagePhrase reports "manage preferences"-family wording.
func (l *Lexicon) IsManagePhrase(text string) bool {
	return containsAny(Normalize(text), managePhrases)
}

// IsSavePhrase reports save/confirm wording, explicitly excluding labels
// that also carry an accept-all phrase.
func (l *Lexicon) IsSavePhrase(text string) bool {
	t := Normalize(text)
	if containsAny(t, acceptAllPhrases) {
		return false
	}
	return containsAny(t, savePhrases)
}

// IsAcceptAllPhrase reports accept-all/allow-all wording.
func (l *Lexicon) IsAcceptAllPhrase(text string) bool {
	return containsAny(Normalize(text), acceptAllPhrases)
}

// IsContinuePhrase reports wizard-advance wording.
func (l *Lexicon) IsContinuePhrase(text string) bool {
	return containsAny(Normalize(text), continuePhrases)
}

// IsEssentialCategory reports whether a category label belongs to the
// essential family. Essential categories must never be disabled; when a
// label matches both families the essential match wins.
func (l *Lexicon) IsEssentialCategory(label string) bool {
	return containsAny(Normalize(label), essentialCategories)
}

// IsNonEssentialCategory reports marketing/analytics/tracking/
// personalization-family labels. Essential matches dominate.
func (l *Lexicon) IsNonEssentialCategory(label string) bool {
	t := Normalize(label)
	if containsAny(t, essentialCategories) {
		return false
	}
	return containsAny(t, nonEssentialCategories)
}

// HasRejectAttributeHint checks class/id style attribute values for
// reject-intent fragments.
func (l *Lexicon) HasRejectAttributeHint(attrs map[string]string) bool {
	return hasAttributeHint(attrs, rejectAttributeHints)
}

// HasAcceptAttributeHint checks attribute values for accept-intent fragments.
func (l *Lexicon) HasAcceptAttributeHint(attrs map[string]string) bool {
	return hasAttributeHint(attrs, acceptAttributeHints)
}

func hasAttributeHint(attrs map[string]string, hints []string) bool {
	for _, key := range []string{"class", "id", "data-testid", "name", "aria-label"} {
		v, ok := attrs[key]
		if !ok {
			continue
		}
		if containsAny(strings.ToLower(v), hints) {
			return true
		}
	}
	return false
}

// PreferenceIndicators returns the CSS selectors that identify an opened
// preference center.
func (l *Lexicon) PreferenceIndicators() []string {
	out := make([]string, len(preferenceIndicators))
	copy(out, preferenceIndicators)
	return out
}

// languageOrder fixes the vote iteration order so ties resolve
// deterministically, English first.
var languageOrder = []string{"en", "de", "fr", "es", "it", "nl", "pt", "pl"}

// DetectLanguage votes each supported language's keyword tables against the
// text and returns the best match, defaulting to "en". Mixed-language text
// resolves to the language with the most hits; ties keep the earlier entry
// in languageOrder.
func (l *Lexicon) DetectLanguage(text string) string {
	t := Normalize(text)
	best, bestHits := "en", 0
	for _, lang := range languageOrder {
		hits := countHits(t, primaryKeywords[lang]) +
			countHits(t, secondaryKeywords[lang]) +
			countHits(t, bannerPhrases[lang])
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	return best
}

// LanguageMixScore estimates multi-language mixing in [0,1]: 0 for a single
// dominant language, approaching 1 when several languages match equally.
func (l *Lexicon) LanguageMixScore(text string) float64 {
	t := Normalize(text)
	matched := 0
	// Primary keywords are shared across languages ("cookie" everywhere), so
	// only the language-specific action vocabulary and phrases vote here.
	for _, lang := range languageOrder {
		if countHits(t, secondaryKeywords[lang])+countHits(t, bannerPhrases[lang]) > 0 {
			matched++
		}
	}
	if matched <= 1 {
		return 0
	}
	score := float64(matched-1) / 4.0
	if score > 1 {
		score = 1
	}
	return score
}
