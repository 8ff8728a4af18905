package classifier

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
)

// Tiered base scores for reject phrasing.
const (
	baseVeryHigh = 0.95
	baseHigh     = 0.80
	baseMedium   = 0.55
)

// Bonuses and penalties applied on top of the tier base.
const (
	bonusCookiePhrasing = 0.10
	bonusRejectAttr     = 0.10
	penaltyAcceptText   = 0.70
	penaltyAcceptAttr   = 0.30
	penaltyAmbiguous    = 0.30
)

// ScoreAction computes the reject score for an action element, clamped to
// [0,1]. Scores above the configured safe threshold (default 0.7) are
// considered safe to click; everything below is advisory only.
func (c *Classifier) ScoreAction(a schemas.ActionElement) float64 {
	label := actionLabel(a)
	if strings.TrimSpace(label) == "" && len(a.Attributes) == 0 {
		return 0
	}

	score := 0.0
	tier := c.lex.RejectTier(label)
	switch tier {
	case lexicon.TierVeryHigh:
		score = baseVeryHigh
	case lexicon.TierHigh:
		score = baseHigh
	case lexicon.TierMedium:
		score = baseMedium
	}

	// Explicit cookie/privacy phrasing strengthens reject intent
	// ("reject all cookies" over a bare "reject").
	if score > 0 && c.lex.IsConsentText(label) {
		score += bonusCookiePhrasing
	}
	if c.lex.HasRejectAttributeHint(a.Attributes) {
		score += bonusRejectAttr
	}

	// Penalties. Accept phrasing dominates: an "Accept All" button must
	// never become clickable through attribute bonuses.
	if c.lex.IsAcceptPhrase(label) {
		score -= penaltyAcceptText
	}
	if c.lex.HasAcceptAttributeHint(a.Attributes) {
		score -= penaltyAcceptAttr
	}

	// Ambiguous action words (continue/confirm/save) without any reject
	// context are penalized rather than trusted.
	if tier == lexicon.TierNone && c.lex.IsAmbiguousAction(label) {
		score -= penaltyAmbiguous
	}

	return clamp01(score)
}

// AcceptPenalty exposes the accept-side pressure on an action in [0,1],
// used by callers that want to rank avoidance (e.g. save-button search).
func (c *Classifier) AcceptPenalty(a schemas.ActionElement) float64 {
	label := actionLabel(a)
	p := 0.0
	if c.lex.IsAcceptPhrase(label) {
		p += penaltyAcceptText
	}
	if c.lex.HasAcceptAttributeHint(a.Attributes) {
		p += penaltyAcceptAttr
	}
	return clamp01(p)
}

// SafeToClick reports whether the action's reject score clears the
// configured safety threshold.
func (c *Classifier) SafeToClick(a schemas.ActionElement) bool {
	return c.ScoreAction(a) > c.cfg.SafeActionScore
}

// SafeThreshold exposes the configured minimum safe-to-click score.
func (c *Classifier) SafeThreshold() float64 { return c.cfg.SafeActionScore }

// ScoredAction pairs an action with its computed reject score.
type ScoredAction struct {
	Action schemas.ActionElement
	Score  float64
}

// RankActions scores all visible actions and returns them best-first.
// Deterministic: ties keep the original order.
func (c *Classifier) RankActions(actions []schemas.ActionElement) []ScoredAction {
	ranked := make([]ScoredAction, 0, len(actions))
	for _, a := range actions {
		if !a.Visible {
			continue
		}
		ranked = append(ranked, ScoredAction{Action: a, Score: c.ScoreAction(a)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// BestRejectAction returns the highest-scoring safe action, if any.
func (c *Classifier) BestRejectAction(actions []schemas.ActionElement) (ScoredAction, bool) {
	ranked := c.RankActions(actions)
	if len(ranked) == 0 || ranked[0].Score <= c.cfg.SafeActionScore {
		return ScoredAction{}, false
	}
	return ranked[0], true
}

// FindManageAction locates a "manage preferences"-family action for the
// preference-search transition.
func (c *Classifier) FindManageAction(actions []schemas.ActionElement) (schemas.ActionElement, bool) {
	for _, a := range actions {
		if !a.Visible {
			continue
		}
		if c.lex.IsManagePhrase(actionLabel(a)) {
			return a, true
		}
	}
	return schemas.ActionElement{}, false
}

// actionLabel merges the visible text with the accessibility labels so that
// icon-only buttons still classify.
func actionLabel(a schemas.ActionElement) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{a.Text, a.AriaLabel, a.Title} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
