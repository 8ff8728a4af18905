// Package session runs the per-page agent: scan the document for banner
// candidates, classify them, hand confirmed candidates to the strategy
// coordinator and keep watching for late-mounting banners until the session
// budget runs out. One goroutine owns the whole loop; candidates are
// processed sequentially, so a page never sees two overlapping negotiation
// flows.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
	"github.com/xkilldash9x/consentinel/internal/strategy"
)

// Agent drives one page session.
type Agent struct {
	cfg         config.Interface
	driver      schemas.PageDriver
	cls         *classifier.Classifier
	lex         *lexicon.Lexicon
	coordinator *strategy.Coordinator
	history     schemas.HistoryStore
	cache       schemas.QueryCache
	logger      *zap.Logger

	processed map[string]bool
}

// New creates a session agent. cache may be nil.
func New(
	cfg config.Interface,
	driver schemas.PageDriver,
	cls *classifier.Classifier,
	lex *lexicon.Lexicon,
	coordinator *strategy.Coordinator,
	history schemas.HistoryStore,
	cache schemas.QueryCache,
	logger *zap.Logger,
) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lex == nil {
		lex = lexicon.New()
	}
	return &Agent{
		cfg:         cfg,
		driver:      driver,
		cls:         cls,
		lex:         lex,
		coordinator: coordinator,
		history:     history,
		cache:       cache,
		logger:      logger.Named("Session"),
		processed:   make(map[string]bool),
	}
}

// Summary reports what a session did.
type Summary struct {
	Candidates int
	Dismissed  int
	Results    []schemas.Result
}

// Run executes the session: an initial sweep, then mutation-driven rescans
// until the session timeout. Returns the aggregate summary; the agent never
// fails the caller for in-page trouble.
func (a *Agent) Run(ctx context.Context) Summary {
	sessionCtx, cancel := context.WithTimeout(ctx, a.cfg.Engine().SessionTimeout)
	defer cancel()

	var summary Summary

	a.sweep(sessionCtx, &summary)

	mutations := a.subscribe(sessionCtx)
	if mutations == nil {
		// Static drivers cannot push changes; the initial sweep is all
		// there is.
		return summary
	}

	debounce := a.cfg.Browser().ScanDebounce
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-sessionCtx.Done():
			if timer != nil {
				timer.Stop()
			}
			return summary
		case ev, ok := <-mutations:
			if !ok {
				return summary
			}
			if !a.worthRescanning(ev) {
				continue
			}
			if a.cache != nil {
				a.cache.Invalidate()
			}
			// Collapse mutation bursts into one rescan.
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			a.sweep(sessionCtx, &summary)
		}
	}
}

// sweep scans once and processes every new confirmed candidate.
func (a *Agent) sweep(ctx context.Context, summary *Summary) {
	views, err := a.scan(ctx)
	if err != nil {
		a.logger.Debug("Scan failed", zap.Error(err))
		return
	}

	page, err := a.driver.Page(ctx)
	if err != nil {
		a.logger.Debug("Page context unavailable", zap.Error(err))
	}

	for _, view := range views {
		if err := ctx.Err(); err != nil {
			return
		}
		key := candidateKey(page.Domain, view)
		if a.processed[key] {
			continue
		}

		var learned []string
		if a.history != nil {
			learned = a.history.LearnedPhrases(ctx, page.Domain)
		}
		verdict := a.cls.ClassifyBanner(view, learned)
		if !verdict.IsBanner {
			continue
		}

		a.processed[key] = true
		summary.Candidates++

		candidate := schemas.BannerCandidate{
			ID:       uuid.NewString(),
			View:     view,
			Verdict:  verdict,
			Page:     page,
			Language: a.lex.DetectLanguage(view.Text),
			SeenAt:   time.Now(),
		}
		a.logger.Info("Banner candidate confirmed",
			zap.String("candidate", candidate.ID),
			zap.String("framework", verdict.Framework),
			zap.Float64("confidence", verdict.Confidence),
			zap.String("language", candidate.Language))

		result := a.coordinator.Process(ctx, candidate)
		summary.Results = append(summary.Results, result)
		if result.Success {
			summary.Dismissed++
		}
	}
}

// scan reads candidate views, through the memo cache when one is wired.
func (a *Agent) scan(ctx context.Context) ([]schemas.ElementView, error) {
	if a.cache == nil {
		return a.driver.Scan(ctx)
	}
	v, err := a.cache.CachedScan("scan", func() (any, error) {
		return a.driver.Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	views, _ := v.([]schemas.ElementView)
	return views, nil
}

// subscribe returns the mutation channel, or nil for drivers that cannot
// push changes.
func (a *Agent) subscribe(ctx context.Context) <-chan schemas.MutationEvent {
	source, ok := a.driver.(schemas.MutationSource)
	if !ok {
		return nil
	}
	ch, err := source.Mutations(ctx)
	if err != nil {
		a.logger.Debug("Mutation subscription failed", zap.Error(err))
		return nil
	}
	return ch
}

// worthRescanning pre-filters mutation events on their added-subtree naming
// hints. Events without hints always trigger a rescan.
func (a *Agent) worthRescanning(ev schemas.MutationEvent) bool {
	if len(ev.AddedHint) == 0 {
		return true
	}
	for _, hint := range ev.AddedHint {
		lower := strings.ToLower(hint)
		for _, marker := range []string{
			"cookie", "consent", "gdpr", "privacy", "cmp", "banner",
			"notice", "dialog", "modal", "overlay",
		} {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// candidateKey fingerprints a candidate so re-mounted banners are not
// processed twice in one session.
func candidateKey(domain string, view schemas.ElementView) string {
	text := view.Text
	if len(text) > 200 {
		text = text[:200]
	}
	sum := sha256.Sum256([]byte(domain + "|" + view.Tag + "|" + text))
	return hex.EncodeToString(sum[:8])
}
