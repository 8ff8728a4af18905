package negotiation

import "github.com/xkilldash9x/consentinel/internal/classifier"

// flowProfile carries the selector substitutions a framework specialization
// applies at each state. The transitions themselves never change; only where
// each state looks first.
type flowProfile struct {
	name                string
	rejectSelectors     []string
	preferenceSelectors []string
	categorySelectors   []string
	saveSelectors       []string
}

// genericProfile is the fallback when no vendor was fingerprinted. It has no
// selector shortcuts; every state falls through to label-based search.
var genericProfile = flowProfile{name: "generic"}

// profileFor resolves the specialization for a fingerprinted framework.
// OneTrust, Cookiebot and Didomi carry full specializations; other known
// vendors contribute whatever selector hints their fingerprint declares.
func profileFor(framework string) flowProfile {
	fp, ok := classifier.FingerprintByName(framework)
	if !ok {
		return genericProfile
	}
	return flowProfile{
		name:                fp.Name,
		rejectSelectors:     fp.RejectSelectors,
		preferenceSelectors: fp.PreferenceSelectors,
		categorySelectors:   fp.CategorySelectors,
		saveSelectors:       fp.SaveSelectors,
	}
}
