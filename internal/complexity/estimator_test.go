package complexity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/history"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
)

func simpleCandidate(domain string) schemas.BannerCandidate {
	return schemas.BannerCandidate{
		ID: "c-1",
		View: schemas.ElementView{
			Text: "We use cookies. Accept or reject.",
			Geometry: schemas.Geometry{Width: 1280, Height: 100},
			Position: schemas.PositionHints{ViewportWidth: 1280, ViewportHeight: 800},
			Actions: []schemas.ActionElement{
				{Text: "Accept", Visible: true},
				{Text: "Reject All", Visible: true},
			},
			NestingDepth: 3,
		},
		Verdict: schemas.BannerVerdict{IsBanner: true, Confidence: 0.9},
		Page:    schemas.PageContext{Domain: domain, ElementCount: 400},
	}
}

func gnarlyCandidate(domain string) schemas.BannerCandidate {
	actions := make([]schemas.ActionElement, 0, 14)
	for i := 0; i < 14; i++ {
		actions = append(actions, schemas.ActionElement{
			Text:    fmt.Sprintf("A very long descriptive consent action label number %d", i),
			Visible: i%3 != 0,
			Attributes: map[string]string{
				"class": fmt.Sprintf("sc-banner__btn-%d42", i),
			},
		})
	}
	return schemas.BannerCandidate{
		ID: "c-2",
		View: schemas.ElementView{
			Text: "We use cookies. Wir verwenden Cookies und bitten um Zustimmung. " +
				"Nous utilisons des cookies, tout refuser. Utilizamos cookies, rechazar todo. " +
				"Accept, reject, manage preferences, settings, tracking.",
			Geometry:     schemas.Geometry{Width: 1100, Height: 700},
			Position:     schemas.PositionHints{ViewportWidth: 1280, ViewportHeight: 800},
			Actions:      actions,
			NestingDepth: 14,
		},
		Verdict: schemas.BannerVerdict{IsBanner: true, Confidence: 1.0, Framework: "trustarc"},
		Page: schemas.PageContext{
			Domain:             domain,
			ElementCount:       5000,
			IframeCount:        12,
			DynamicMarkerCount: 30,
		},
	}
}

func TestEstimateLevels(t *testing.T) {
	e := New(nil, lexicon.New(), nil)
	ctx := context.Background()

	t.Run("plain two-button banner is low or medium", func(t *testing.T) {
		p := e.Estimate(ctx, simpleCandidate("simple.example"))
		assert.Less(t, p.Score, thresholdHigh)
		assert.NotEqual(t, schemas.ComplexityHigh, p.Level)
	})

	t.Run("dense multi-language vendor banner is high", func(t *testing.T) {
		p := e.Estimate(ctx, gnarlyCandidate("gnarly.example"))
		assert.GreaterOrEqual(t, p.Score, thresholdHigh)
		assert.Equal(t, schemas.ComplexityHigh, p.Level)
		assert.Equal(t, schemas.StrategyLearningPrimary, p.Recommended)
	})

	t.Run("score stays in range", func(t *testing.T) {
		p := e.Estimate(ctx, gnarlyCandidate("range.example"))
		assert.GreaterOrEqual(t, p.Score, 0.0)
		assert.LessOrEqual(t, p.Score, 1.0)
	})
}

func TestEstimateUsesHistoryDifficulty(t *testing.T) {
	ctx := context.Background()
	hist := history.New(nil, nil)
	for i := 0; i < 10; i++ {
		hist.Record(ctx, schemas.ProcessingOutcome{
			Domain:   "hostile.example",
			Success:  false,
			Attempts: 3,
			At:       time.Now(),
		})
	}

	withHistory := New(hist, lexicon.New(), nil)
	without := New(nil, lexicon.New(), nil)

	pHard := withHistory.Estimate(ctx, simpleCandidate("hostile.example"))
	pNeutral := without.Estimate(ctx, simpleCandidate("hostile.example"))

	require.Greater(t, pHard.Factors["history"], pNeutral.Factors["history"])
	assert.Greater(t, pHard.Score, pNeutral.Score)
}

func TestEstimateCaching(t *testing.T) {
	e := New(nil, lexicon.New(), nil)
	ctx := context.Background()

	first := e.Estimate(ctx, simpleCandidate("cached.example"))
	// A radically different candidate from the same domain reuses the cache.
	second := e.Estimate(ctx, gnarlyCandidate("cached.example"))
	assert.Equal(t, first.Score, second.Score)

	e.Invalidate("cached.example")
	third := e.Estimate(ctx, gnarlyCandidate("cached.example"))
	assert.NotEqual(t, first.Score, third.Score)
}

func TestRecommendationMapping(t *testing.T) {
	assert.Equal(t, schemas.StrategyRuleOnly, recommendationFor(schemas.ComplexityLow))
	assert.Equal(t, schemas.StrategyParallel, recommendationFor(schemas.ComplexityMedium))
	assert.Equal(t, schemas.StrategyLearningPrimary, recommendationFor(schemas.ComplexityHigh))
}

func TestLevelThresholds(t *testing.T) {
	assert.Equal(t, schemas.ComplexityLow, levelFor(0.29))
	assert.Equal(t, schemas.ComplexityMedium, levelFor(0.3))
	assert.Equal(t, schemas.ComplexityMedium, levelFor(0.69))
	assert.Equal(t, schemas.ComplexityHigh, levelFor(0.7))
}

func TestHasDynamicMarker(t *testing.T) {
	assert.True(t, hasDynamicMarker(map[string]string{"data-v-12ab34": ""}))
	assert.True(t, hasDynamicMarker(map[string]string{"class": "styled__Button-x17 primary"}))
	assert.False(t, hasDynamicMarker(map[string]string{"class": "btn btn-primary"}))
}
