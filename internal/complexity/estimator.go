// Package complexity scores a banner/page/history tuple into a 0-1
// complexity value and a discrete level, which the strategy coordinator maps
// to a processing strategy. Profiles are cached per domain with a TTL to
// bound recomputation on chatty pages.
package complexity

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
)

// Fixed factor weights. They sum to 1.0.
const (
	weightSize      = 0.15
	weightActions   = 0.25
	weightText      = 0.15
	weightPage      = 0.15
	weightFramework = 0.15
	weightHistory   = 0.15
)

// Discrete level thresholds.
const (
	thresholdLow  = 0.3
	thresholdHigh = 0.7
)

// cacheTTL bounds how long a domain profile stays valid.
const cacheTTL = time.Hour

type cachedProfile struct {
	profile schemas.ComplexityProfile
	expires time.Time
}

// Estimator computes complexity profiles.
type Estimator struct {
	history schemas.HistoryStore
	lex     *lexicon.Lexicon
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedProfile
	now   func() time.Time
}

// New creates an estimator. history may be nil, in which case the historical
// factor stays at its neutral value.
func New(history schemas.HistoryStore, lex *lexicon.Lexicon, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lex == nil {
		lex = lexicon.New()
	}
	return &Estimator{
		history: history,
		lex:     lex,
		logger:  logger.Named("Complexity"),
		cache:   make(map[string]cachedProfile),
		now:     time.Now,
	}
}

// Estimate scores the candidate. Cached per domain for an hour; candidates
// from the same domain within the TTL reuse the cached profile.
func (e *Estimator) Estimate(ctx context.Context, candidate schemas.BannerCandidate) schemas.ComplexityProfile {
	domain := candidate.Page.Domain

	e.mu.Lock()
	if c, ok := e.cache[domain]; ok && e.now().Before(c.expires) {
		e.mu.Unlock()
		return c.profile
	}
	e.mu.Unlock()

	factors := map[string]float64{
		"size":      e.sizeFactor(candidate.View),
		"actions":   e.actionFactor(candidate.View.Actions),
		"text":      e.textFactor(candidate.View.Text),
		"page":      e.pageFactor(candidate.Page),
		"framework": classifier.FrameworkDifficulty(candidate.Verdict.Framework),
		"history":   e.historyFactor(ctx, domain),
	}

	score := weightSize*factors["size"] +
		weightActions*factors["actions"] +
		weightText*factors["text"] +
		weightPage*factors["page"] +
		weightFramework*factors["framework"] +
		weightHistory*factors["history"]

	profile := schemas.ComplexityProfile{
		Domain:     domain,
		Score:      score,
		Level:      levelFor(score),
		Factors:    factors,
		ComputedAt: e.now(),
	}
	profile.Recommended = recommendationFor(profile.Level)

	e.mu.Lock()
	e.cache[domain] = cachedProfile{profile: profile, expires: e.now().Add(cacheTTL)}
	e.mu.Unlock()

	e.logger.Debug("Complexity estimated",
		zap.String("domain", domain),
		zap.Float64("score", score),
		zap.String("level", string(profile.Level)))
	return profile
}

// Invalidate drops the cached profile for a domain, typically after an
// outcome shifted its history.
func (e *Estimator) Invalidate(domain string) {
	e.mu.Lock()
	delete(e.cache, domain)
	e.mu.Unlock()
}

// sizeFactor normalizes banner geometry, child count and nesting depth.
func (e *Estimator) sizeFactor(view schemas.ElementView) float64 {
	areaShare := 0.0
	if vw, vh := view.Position.ViewportWidth, view.Position.ViewportHeight; vw > 0 && vh > 0 {
		areaShare = view.Geometry.Area() / (vw * vh)
	}
	childLoad := capRatio(float64(len(view.Actions)), 12)
	depthLoad := capRatio(float64(view.NestingDepth), 15)
	return clamp01(0.4*clamp01(areaShare) + 0.3*childLoad + 0.3*depthLoad)
}

// actionFactor blends action count with the proportions of long-text,
// dynamically-marked and hidden action elements.
func (e *Estimator) actionFactor(actions []schemas.ActionElement) float64 {
	if len(actions) == 0 {
		return 0.2
	}
	var longText, dynamic, hidden int
	for _, a := range actions {
		if len(a.Text) > 30 {
			longText++
		}
		if hasDynamicMarker(a.Attributes) {
			dynamic++
		}
		if !a.Visible {
			hidden++
		}
	}
	n := float64(len(actions))
	countLoad := capRatio(n, 10)
	return clamp01(0.4*countLoad +
		0.2*(float64(longText)/n) +
		0.2*(float64(dynamic)/n) +
		0.2*(float64(hidden)/n))
}

// textFactor normalizes word volume and multi-language mixing.
func (e *Estimator) textFactor(text string) float64 {
	words := float64(len(strings.Fields(text)))
	return clamp01(0.7*capRatio(words, 200) + 0.3*e.lex.LanguageMixScore(text))
}

// pageFactor normalizes total page element, iframe and dynamic-framework
// marker counts.
func (e *Estimator) pageFactor(page schemas.PageContext) float64 {
	return clamp01(0.5*capRatio(float64(page.ElementCount), 3000) +
		0.25*capRatio(float64(page.IframeCount), 10) +
		0.25*capRatio(float64(page.DynamicMarkerCount), 20))
}

func (e *Estimator) historyFactor(ctx context.Context, domain string) float64 {
	if e.history == nil {
		return 0.5
	}
	return e.history.Difficulty(ctx, domain)
}

func levelFor(score float64) schemas.ComplexityLevel {
	switch {
	case score < thresholdLow:
		return schemas.ComplexityLow
	case score < thresholdHigh:
		return schemas.ComplexityMedium
	default:
		return schemas.ComplexityHigh
	}
}

func recommendationFor(level schemas.ComplexityLevel) schemas.StrategyKind {
	switch level {
	case schemas.ComplexityLow:
		return schemas.StrategyRuleOnly
	case schemas.ComplexityMedium:
		return schemas.StrategyParallel
	default:
		return schemas.StrategyLearningPrimary
	}
}

// hasDynamicMarker reports attribute patterns typical of CSS-in-JS or
// reactive frameworks (hashed class fragments, framework data attributes).
func hasDynamicMarker(attrs map[string]string) bool {
	for key := range attrs {
		switch {
		case strings.HasPrefix(key, "data-v-"),
			strings.HasPrefix(key, "data-react"),
			strings.HasPrefix(key, "ng-"),
			key == "data-emotion":
			return true
		}
	}
	if cls, ok := attrs["class"]; ok {
		for _, c := range strings.Fields(cls) {
			if strings.Contains(c, "__") && strings.ContainsAny(c, "0123456789") {
				return true
			}
		}
	}
	return false
}

func capRatio(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	r := v / limit
	if r > 1 {
		return 1
	}
	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
