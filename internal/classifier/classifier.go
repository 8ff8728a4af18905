// Package classifier decides whether a UI element is a consent banner and
// scores its action elements for reject intent. All scoring is pure: the
// package never touches the page, and contradictory evidence resolves toward
// rejection of the candidate rather than a guess.
package classifier

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
)

// Content-evidence weights. Each category contributes a fixed weight, capped
// so no single family dominates.
const (
	weightPrimary       = 0.25
	capPrimary          = 0.50
	weightSecondary     = 0.10
	capSecondary        = 0.20
	weightPhrase        = 0.30
	capPhrase           = 0.30
	weightLegal         = 0.05
	capLegal            = 0.10
	weightLearnedPhrase = 0.20
)

// Contextual-evidence credits.
const (
	creditFixedSticky   = 0.30
	creditElevatedStack = 0.20
	creditEdgeBand      = 0.30
	creditCenteredModal = 0.30
	creditSideRail      = 0.20
	creditAncestorName  = 0.20
)

// elevatedZIndex is the stacking order above which an overlay is considered
// deliberately raised.
const elevatedZIndex = 999

// Classifier is the leaf scoring component. It holds no mutable state.
type Classifier struct {
	cfg    config.ClassifierConfig
	lex    *lexicon.Lexicon
	logger *zap.Logger
}

// New creates a classifier. A nil logger falls back to a no-op logger.
func New(cfg config.ClassifierConfig, lex *lexicon.Lexicon, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lex == nil {
		lex = lexicon.New()
	}
	return &Classifier{cfg: cfg, lex: lex, logger: logger.Named("Classifier")}
}

// ClassifyBanner runs the full banner decision for a single element view.
// learnedPhrases carries domain-specific phrases accumulated from earlier
// successes on the same domain; pass nil when none exist.
func (c *Classifier) ClassifyBanner(view schemas.ElementView, learnedPhrases []string) schemas.BannerVerdict {
	// Necessary conditions first: invisible or undersized elements can never
	// be banners, fingerprint or not.
	if !view.Visible {
		return schemas.BannerVerdict{}
	}
	if view.Geometry.Width < c.cfg.MinWidth || view.Geometry.Height < c.cfg.MinHeight {
		return schemas.BannerVerdict{}
	}

	// A recognized vendor fingerprint short-circuits to full confidence and
	// overrides the exclusion list.
	if fp, ok := DetectFingerprint(view.Attributes, view.AncestorNames); ok {
		return schemas.BannerVerdict{IsBanner: true, Confidence: 1.0, Framework: fp.Name}
	}

	// Explicit exclusion wins over any positive keyword evidence.
	if c.lex.IsExcluded(view.Text) {
		c.logger.Debug("Candidate excluded by phrase list", zap.String("ref", view.Ref))
		return schemas.BannerVerdict{}
	}

	content := c.contentConfidence(view.Text, learnedPhrases)
	if content < c.cfg.AcceptConfidence {
		return schemas.BannerVerdict{Confidence: content}
	}

	context := c.contextScore(view)
	if context < c.cfg.ContextThreshold {
		c.logger.Debug("Candidate failed contextual gate",
			zap.String("ref", view.Ref),
			zap.Float64("content", content),
			zap.Float64("context", context))
		return schemas.BannerVerdict{Confidence: content}
	}

	return schemas.BannerVerdict{IsBanner: true, Confidence: content}
}

// contentConfidence accumulates weighted keyword evidence, clamped to [0,1].
func (c *Classifier) contentConfidence(text string, learnedPhrases []string) float64 {
	score := 0.0
	score += capAt(float64(c.lex.PrimaryHits(text))*weightPrimary, capPrimary)
	score += capAt(float64(c.lex.SecondaryHits(text))*weightSecondary, capSecondary)
	score += capAt(float64(c.lex.PhraseHits(text))*weightPhrase, capPhrase)
	score += capAt(float64(c.lex.LegalHits(text))*weightLegal, capLegal)

	if len(learnedPhrases) > 0 {
		norm := lexicon.Normalize(text)
		for _, phrase := range learnedPhrases {
			if phrase == "" {
				continue
			}
			if containsNormalized(norm, phrase) {
				score += weightLearnedPhrase
				break
			}
		}
	}

	return clamp01(score)
}

// contextScore accumulates positional/contextual credit, clamped to [0,1].
func (c *Classifier) contextScore(view schemas.ElementView) float64 {
	score := 0.0
	g := view.Geometry
	p := view.Position

	if p.Fixed || p.Sticky {
		score += creditFixedSticky
	}
	if p.ZIndex > elevatedZIndex {
		score += creditElevatedStack
	}

	if p.ViewportWidth > 0 && p.ViewportHeight > 0 {
		fullWidth := g.Width >= p.ViewportWidth*0.85
		atTop := g.Y <= p.ViewportHeight*0.15
		atBottom := g.Y+g.Height >= p.ViewportHeight*0.85
		if fullWidth && (atTop || atBottom) {
			score += creditEdgeBand
		}

		// Centered modal: element roughly centered with margin on all sides.
		centerX := g.X + g.Width/2
		centerY := g.Y + g.Height/2
		if !fullWidth &&
			math.Abs(centerX-p.ViewportWidth/2) < p.ViewportWidth*0.15 &&
			math.Abs(centerY-p.ViewportHeight/2) < p.ViewportHeight*0.20 {
			score += creditCenteredModal
		}

		// Side rail: tall, narrow, hugging a vertical edge.
		narrow := g.Width <= p.ViewportWidth*0.40
		tall := g.Height >= p.ViewportHeight*0.50
		atEdge := g.X <= p.ViewportWidth*0.05 || g.X+g.Width >= p.ViewportWidth*0.95
		if narrow && tall && atEdge {
			score += creditSideRail
		}
	}

	// Ancestor-chain naming check, up to three levels.
	levels := view.AncestorNames
	if len(levels) > 3 {
		levels = levels[:3]
	}
	for _, name := range levels {
		if c.lex.IsConsentText(name) {
			score += creditAncestorName
			break
		}
	}

	return clamp01(score)
}

// ScreenPosition buckets where the view sits, for the Q-state signature.
func ScreenPosition(view schemas.ElementView) schemas.ScreenPosition {
	g := view.Geometry
	p := view.Position
	if p.ViewportWidth <= 0 || p.ViewportHeight <= 0 {
		return schemas.PositionUnknown
	}
	fullWidth := g.Width >= p.ViewportWidth*0.85
	switch {
	case fullWidth && g.Y <= p.ViewportHeight*0.15:
		return schemas.PositionTop
	case fullWidth && g.Y+g.Height >= p.ViewportHeight*0.85:
		return schemas.PositionBottom
	case g.Width <= p.ViewportWidth*0.40 &&
		(g.X <= p.ViewportWidth*0.05 || g.X+g.Width >= p.ViewportWidth*0.95):
		return schemas.PositionSide
	default:
		return schemas.PositionCenter
	}
}

func capAt(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
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

func containsNormalized(normalizedText, phrase string) bool {
	p := lexicon.Normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(normalizedText, p)
}
