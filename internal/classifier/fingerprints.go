package classifier

import "strings"

// Fingerprint describes a recognized consent-management product. Markers are
// lowercase fragments matched against class/id/attribute values and ancestor
// naming. Difficulty feeds the complexity estimator; the selector hints feed
// the negotiation specializations.
type Fingerprint struct {
	Name       string
	Markers    []string
	Difficulty float64

	// Selector hints for the negotiation engine. Empty slices mean the
	// generic flow applies.
	RejectSelectors     []string
	PreferenceSelectors []string
	CategorySelectors   []string
	SaveSelectors       []string
}

// fingerprints is ordered: more specific products first so shared fragments
// ("cookie") never shadow a vendor match.
var fingerprints = []Fingerprint{
	{
		Name:       "onetrust",
		Markers:    []string{"onetrust", "ot-sdk", "optanon", "ot-pc-"},
		Difficulty: 0.6,
		RejectSelectors: []string{
			"#onetrust-reject-all-handler",
			".ot-pc-refuse-all-handler",
		},
		PreferenceSelectors: []string{"#onetrust-pc-btn-handler"},
		CategorySelectors:   []string{".ot-cat-item", ".ot-tgl input"},
		SaveSelectors:       []string{".save-preference-btn-handler", ".ot-pc-save-handler"},
	},
	{
		Name:       "cookiebot",
		Markers:    []string{"cookiebot", "cybotcookiebot", "cookieconsent_"},
		Difficulty: 0.5,
		RejectSelectors: []string{
			"#CybotCookiebotDialogBodyButtonDecline",
			"#CybotCookiebotDialogBodyLevelButtonLevelOptinDeclineAll",
		},
		PreferenceSelectors: []string{"#CybotCookiebotDialogBodyLevelDetailsButton"},
		CategorySelectors:   []string{".CybotCookiebotDialogBodyLevelButton"},
		SaveSelectors:       []string{"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowallSelection"},
	},
	{
		Name:       "didomi",
		Markers:    []string{"didomi"},
		Difficulty: 0.55,
		RejectSelectors: []string{
			"#didomi-notice-disagree-button",
			".didomi-continue-without-agreeing",
		},
		PreferenceSelectors: []string{"#didomi-notice-learn-more-button"},
		CategorySelectors:   []string{".didomi-components-radio__option--disagree"},
		SaveSelectors:       []string{".didomi-consent-popup-actions button"},
	},
	{
		Name:       "quantcast",
		Markers:    []string{"qc-cmp2", "quantcast"},
		Difficulty: 0.7,
		RejectSelectors: []string{
			".qc-cmp2-summary-buttons button[mode='secondary']",
		},
		PreferenceSelectors: []string{".qc-cmp2-toggle-switch"},
		SaveSelectors:       []string{".qc-cmp2-footer button[mode='primary']"},
	},
	{
		Name:       "trustarc",
		Markers:    []string{"trustarc", "truste-consent"},
		Difficulty: 0.8,
		RejectSelectors: []string{
			"#truste-consent-required",
		},
		PreferenceSelectors: []string{"#truste-show-consent"},
	},
	{
		Name:       "usercentrics",
		Markers:    []string{"usercentrics", "uc-banner", "uc-btn"},
		Difficulty: 0.6,
		RejectSelectors: []string{
			"[data-testid='uc-deny-all-button']",
		},
		PreferenceSelectors: []string{"[data-testid='uc-more-button']"},
		SaveSelectors:       []string{"[data-testid='uc-save-button']"},
	},
	{
		Name:       "sourcepoint",
		Markers:    []string{"sp_message", "sp_choice", "sourcepoint"},
		Difficulty: 0.75,
		RejectSelectors: []string{
			".sp_choice_type_13",
			".sp_choice_type_REJECT_ALL",
		},
		PreferenceSelectors: []string{".sp_choice_type_12"},
	},
	{
		Name:       "osano",
		Markers:    []string{"osano"},
		Difficulty: 0.4,
		RejectSelectors: []string{
			".osano-cm-denyAll", ".osano-cm-deny",
		},
		PreferenceSelectors: []string{".osano-cm-manage"},
		SaveSelectors:       []string{".osano-cm-save"},
	},
	{
		Name:       "cookieyes",
		Markers:    []string{"cookieyes", "cky-consent", "cky-btn"},
		Difficulty: 0.4,
		RejectSelectors: []string{
			".cky-btn-reject",
		},
		PreferenceSelectors: []string{".cky-btn-customize"},
		CategorySelectors:   []string{".cky-switch input"},
		SaveSelectors:       []string{".cky-btn-preferences"},
	},
	{
		Name:       "klaro",
		Markers:    []string{"klaro", "cm-btn"},
		Difficulty: 0.35,
		RejectSelectors: []string{
			".cm-btn-decline", ".cn-decline",
		},
		SaveSelectors: []string{".cm-btn-accept"},
	},
	{
		Name:       "complianz",
		Markers:    []string{"cmplz", "complianz"},
		Difficulty: 0.35,
		RejectSelectors: []string{
			".cmplz-deny",
		},
		PreferenceSelectors: []string{".cmplz-manage-options"},
		SaveSelectors:       []string{".cmplz-save-preferences"},
	},
	{
		Name:       "borlabs",
		Markers:    []string{"borlabs"},
		Difficulty: 0.45,
		RejectSelectors: []string{
			"[data-cookie-refuse]", ".brlbs-refuse-btn",
		},
		PreferenceSelectors: []string{"[data-cookie-individual]"},
		SaveSelectors:       []string{"[data-cookie-accept-individual]"},
	},
}

// unknownDifficulty is assumed for banners without a vendor fingerprint.
const unknownDifficulty = 0.5

// DetectFingerprint matches attribute values and ancestor naming against the
// vendor marker table. The boolean reports whether a vendor was recognized.
func DetectFingerprint(attrs map[string]string, ancestorNames []string) (Fingerprint, bool) {
	var haystack strings.Builder
	for _, key := range []string{"class", "id", "data-testid", "data-cc", "aria-describedby"} {
		if v, ok := attrs[key]; ok {
			haystack.WriteString(strings.ToLower(v))
			haystack.WriteByte(' ')
		}
	}
	for _, name := range ancestorNames {
		haystack.WriteString(strings.ToLower(name))
		haystack.WriteByte(' ')
	}
	joined := haystack.String()

	for _, fp := range fingerprints {
		for _, marker := range fp.Markers {
			if strings.Contains(joined, marker) {
				return fp, true
			}
		}
	}
	return Fingerprint{}, false
}

// FingerprintByName looks a vendor profile up for negotiation
// specializations. Unknown names return false.
func FingerprintByName(name string) (Fingerprint, bool) {
	for _, fp := range fingerprints {
		if fp.Name == name {
			return fp, true
		}
	}
	return Fingerprint{}, false
}

// FrameworkDifficulty returns the static difficulty for a vendor, or the
// neutral default when the framework is unknown.
func FrameworkDifficulty(name string) float64 {
	if fp, ok := FingerprintByName(name); ok {
		return fp.Difficulty
	}
	return unknownDifficulty
}
