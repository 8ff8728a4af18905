// Package strategy arbitrates between the rule-based and learning-augmented
// processing paths. The coordinator walks a fixed phase sequence
// (Idle -> ComplexityAssessed -> StrategySelected -> Executing ->
// OutcomeRecorded -> Done), never lets a panic or error escape to the
// caller, and records every execution into the domain history and, when
// initialized, the learning optimizer.
package strategy

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/complexity"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/negotiation"
)

// Phase names the coordinator's positions, for logging and tests.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseComplexityAssessed Phase = "complexity-assessed"
	PhaseStrategySelected   Phase = "strategy-selected"
	PhaseExecuting          Phase = "executing"
	PhaseOutcomeRecorded    Phase = "outcome-recorded"
	PhaseDone               Phase = "done"
)

// Arbitration constants.
const (
	// ruleAcceptConfidence is the bar for accepting the rule path outright
	// in rule-primary-with-fallback mode.
	ruleAcceptConfidence = 0.6
	// learningWinMargin is how much the learning path must beat the rule
	// path by in parallel evaluation. Ties favor the cheaper, deterministic
	// rule method.
	learningWinMargin = 0.2
	// ruleRecordWindow and ruleRecordMinWins gate the rule-primary
	// downgrade: a domain whose recent record holds this many rule-method
	// wins skips the parallel race entirely.
	ruleRecordWindow  = 5
	ruleRecordMinWins = 3
)

// Coordinator selects and executes processing strategies.
type Coordinator struct {
	cfg        config.Interface
	cls        *classifier.Classifier
	estimator  *complexity.Estimator
	negotiator *negotiation.Engine
	optimizer  schemas.Optimizer // nil or unready forces rule-only
	history    schemas.HistoryStore
	notifier   schemas.Notifier // nil means no toasts
	logger     *zap.Logger
}

// New creates a coordinator. optimizer and notifier may be nil.
func New(
	cfg config.Interface,
	cls *classifier.Classifier,
	estimator *complexity.Estimator,
	negotiator *negotiation.Engine,
	optimizer schemas.Optimizer,
	history schemas.HistoryStore,
	notifier schemas.Notifier,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:        cfg,
		cls:        cls,
		estimator:  estimator,
		negotiator: negotiator,
		optimizer:  optimizer,
		history:    history,
		notifier:   notifier,
		logger:     logger.Named("StrategyCoordinator"),
	}
}

// Process runs the full phase sequence for one candidate. It always returns
// a Result; unexpected faults are caught, logged and reported as failures.
func (c *Coordinator) Process(ctx context.Context, candidate schemas.BannerCandidate) (result schemas.Result) {
	started := time.Now()
	log := c.logger.With(
		zap.String("candidate", candidate.ID),
		zap.String("domain", candidate.Page.Domain))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Strategy execution panicked",
				zap.Any("panicValue", r),
				zap.String("stack", string(debug.Stack())))
			result = schemas.Result{
				Success:  false,
				Method:   "panic-recovery",
				Duration: time.Since(started),
				Reason:   schemas.ReasonStrategyExhausted,
			}
		}
	}()

	log.Debug("Phase", zap.String("phase", string(PhaseIdle)))

	profile := c.estimator.Estimate(ctx, candidate)
	log.Debug("Phase", zap.String("phase", string(PhaseComplexityAssessed)),
		zap.Float64("score", profile.Score), zap.String("level", string(profile.Level)))

	decision := c.selectStrategy(ctx, profile)
	log.Debug("Phase", zap.String("phase", string(PhaseStrategySelected)),
		zap.String("strategy", string(decision.Strategy)))

	log.Debug("Phase", zap.String("phase", string(PhaseExecuting)))
	result, attempts, action := c.execute(ctx, candidate, decision)
	result.Duration = time.Since(started)

	c.recordOutcome(ctx, candidate, result, attempts, action)
	log.Debug("Phase", zap.String("phase", string(PhaseOutcomeRecorded)))

	c.notify(candidate, result)
	log.Info("Candidate processed",
		zap.String("phase", string(PhaseDone)),
		zap.Bool("success", result.Success),
		zap.String("method", result.Method),
		zap.Duration("duration", result.Duration))
	return result
}

// selectStrategy turns the estimator's recommendation into an executable
// decision. An absent or uninitialized optimizer always forces rule-only,
// whatever the recommendation. A parallel recommendation is downgraded to
// rule-primary when the domain's recent record shows the rule method keeps
// winning; racing the learning path buys nothing on such a domain.
func (c *Coordinator) selectStrategy(ctx context.Context, profile schemas.ComplexityProfile) schemas.StrategyDecision {
	if c.optimizer == nil || !c.optimizer.Ready() {
		return schemas.StrategyDecision{
			Strategy:   schemas.StrategyRuleOnly,
			Confidence: 0.9,
		}
	}

	switch profile.Recommended {
	case schemas.StrategyParallel:
		if c.ruleTrackRecord(ctx, profile.Domain) {
			return schemas.StrategyDecision{
				Strategy:   schemas.StrategyRulePrimary,
				Fallback:   schemas.StrategyLearningPrimary,
				Confidence: 0.8,
			}
		}
		return schemas.StrategyDecision{
			Strategy:   schemas.StrategyParallel,
			Fallback:   schemas.StrategyRuleOnly,
			Confidence: 0.7,
			Timeout:    c.cfg.Engine().ParallelTimeout,
		}
	case schemas.StrategyLearningPrimary:
		return schemas.StrategyDecision{
			Strategy:   schemas.StrategyLearningPrimary,
			Fallback:   schemas.StrategyRuleOnly,
			Confidence: 0.6,
		}
	default:
		return schemas.StrategyDecision{
			Strategy:   schemas.StrategyRuleOnly,
			Confidence: 0.9,
		}
	}
}

// ruleTrackRecord reports whether the domain's recent outcomes show the rule
// method winning consistently on its own.
func (c *Coordinator) ruleTrackRecord(ctx context.Context, domain string) bool {
	if c.history == nil {
		return false
	}
	wins := 0
	for _, o := range c.history.Recent(ctx, domain, ruleRecordWindow) {
		if o.Success && !strings.HasPrefix(o.Method, "learning") {
			wins++
		}
	}
	return wins >= ruleRecordMinWins
}

// execute dispatches one decision. Returns the result, the attempt count and
// the learning action actually exercised (empty for pure rule paths).
func (c *Coordinator) execute(ctx context.Context, candidate schemas.BannerCandidate, decision schemas.StrategyDecision) (schemas.Result, int, schemas.QAction) {
	switch decision.Strategy {
	case schemas.StrategyRuleOnly:
		return c.rulePath(ctx, candidate), 1, ""
	case schemas.StrategyRulePrimary:
		return c.rulePrimaryWithFallback(ctx, candidate)
	case schemas.StrategyLearningPrimary:
		return c.learningPrimaryWithFallback(ctx, candidate)
	case schemas.StrategyParallel:
		return c.parallelEvaluation(ctx, candidate, decision.Timeout)
	default:
		return schemas.Result{
			Success: false,
			Method:  string(decision.Strategy),
			Reason:  schemas.ReasonStrategyExhausted,
		}, 0, ""
	}
}

// rulePath is the deterministic path: the full negotiation state machine.
func (c *Coordinator) rulePath(ctx context.Context, candidate schemas.BannerCandidate) schemas.Result {
	res := c.negotiator.Run(ctx, candidate)
	if res.Method == "" {
		res.Method = "rule-based"
	}
	return res
}

// rulePrimaryWithFallback accepts the rule path when it succeeds with
// confidence above the bar; otherwise the learning path's answer is adopted
// only when its confidence beats the rule path's.
func (c *Coordinator) rulePrimaryWithFallback(ctx context.Context, candidate schemas.BannerCandidate) (schemas.Result, int, schemas.QAction) {
	rule := c.rulePath(ctx, candidate)
	if rule.Success && rule.Confidence > ruleAcceptConfidence {
		return rule, 1, ""
	}
	learning, action := c.learningPath(ctx, candidate)
	if learning.Confidence > rule.Confidence {
		return learning, 2, action
	}
	return rule, 2, ""
}

// learningPrimaryWithFallback tries the learning path first and falls back
// to the rule path on failure.
func (c *Coordinator) learningPrimaryWithFallback(ctx context.Context, candidate schemas.BannerCandidate) (schemas.Result, int, schemas.QAction) {
	learning, action := c.learningPath(ctx, candidate)
	if learning.Success {
		return learning, 1, action
	}
	rule := c.rulePath(ctx, candidate)
	return rule, 2, action
}

// parallelEvaluation races both paths under a shared timeout. If both
// complete, the learning answer wins only when its confidence exceeds the
// rule answer's by more than the margin; otherwise the rule answer is kept.
// Timeout or error on either side falls back to a direct rule attempt.
// Losing branches are cancelled through the shared context rather than left
// running.
func (c *Coordinator) parallelEvaluation(ctx context.Context, candidate schemas.BannerCandidate, timeout time.Duration) (schemas.Result, int, schemas.QAction) {
	if timeout <= 0 {
		timeout = c.cfg.Engine().ParallelTimeout
	}
	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var ruleRes, learningRes schemas.Result
	var action schemas.QAction

	g, gctx := errgroup.WithContext(raceCtx)
	g.Go(func() error {
		ruleRes = c.rulePath(gctx, candidate)
		return nil
	})
	g.Go(func() error {
		learningRes, action = c.learningPath(gctx, candidate)
		return nil
	})
	err := g.Wait()

	timedOut := raceCtx.Err() != nil && ctx.Err() == nil
	if err != nil || timedOut {
		c.logger.Debug("Parallel evaluation degraded to direct rule attempt",
			zap.Error(err), zap.Bool("timed_out", timedOut))
		return c.rulePath(ctx, candidate), 2, ""
	}

	if learningRes.Confidence > ruleRes.Confidence+learningWinMargin {
		return learningRes, 2, action
	}
	return ruleRes, 2, ""
}

// learningPath asks the optimizer for an action and executes it. A failed
// or timed-out recommendation degrades to the rule path with zeroed
// confidence attribution, so arbitration never prefers a phantom answer.
func (c *Coordinator) learningPath(ctx context.Context, candidate schemas.BannerCandidate) (schemas.Result, schemas.QAction) {
	if c.optimizer == nil || !c.optimizer.Ready() {
		res := c.rulePath(ctx, candidate)
		res.Method = "learning-unavailable:" + res.Method
		return res, ""
	}

	state := StateSignature(candidate)
	recCtx, cancel := context.WithTimeout(ctx, c.cfg.Learning().CallTimeout)
	rec, err := c.optimizer.Recommend(recCtx, state)
	cancel()
	if err != nil {
		c.logger.Debug("Recommendation unavailable; proceeding rule-based", zap.Error(err))
		res := c.rulePath(ctx, candidate)
		res.Method = "learning-unavailable:" + res.Method
		return res, ""
	}

	res := c.executeAction(ctx, candidate, rec.Action)
	res.Method = fmt.Sprintf("learning:%s", rec.Action)
	return res, rec.Action
}

// executeAction maps a Q-action to concrete negotiation behavior.
func (c *Coordinator) executeAction(ctx context.Context, candidate schemas.BannerCandidate, action schemas.QAction) schemas.Result {
	switch action {
	case schemas.ActionRuleBasedPrimary:
		return c.negotiator.Run(ctx, candidate)
	case schemas.ActionLearningText:
		// Deep text analysis: trust the tiered phrase evidence further down
		// the ranking than the default safety bar.
		return c.negotiator.DirectReject(ctx, candidate, 0.6, 1)
	case schemas.ActionAggressiveClicks:
		return c.negotiator.DirectReject(ctx, candidate, -1, 3)
	case schemas.ActionConservativeClick:
		return c.negotiator.DirectReject(ctx, candidate, 0.85, 1)
	case schemas.ActionHybridNegotiation:
		res := c.negotiator.DirectReject(ctx, candidate, -1, 1)
		if res.Success {
			return res
		}
		return c.negotiator.Run(ctx, candidate)
	default:
		return c.negotiator.Run(ctx, candidate)
	}
}

// recordOutcome persists the outcome and feeds the experience loop.
func (c *Coordinator) recordOutcome(ctx context.Context, candidate schemas.BannerCandidate, result schemas.Result, attempts int, action schemas.QAction) {
	if attempts < 1 {
		attempts = 1
	}
	outcome := schemas.ProcessingOutcome{
		Domain:     candidate.Page.Domain,
		Success:    result.Success,
		Method:     result.Method,
		Confidence: result.Confidence,
		Duration:   result.Duration,
		ButtonText: result.ButtonText,
		Attempts:   attempts,
		At:         time.Now(),
	}
	if c.history != nil {
		c.history.Record(ctx, outcome)
		if result.Success {
			c.history.LearnPhrase(ctx, candidate.Page.Domain, learnableSnippet(candidate.View.Text))
		}
	}
	if c.optimizer != nil && c.optimizer.Ready() {
		if action == "" {
			action = schemas.ActionRuleBasedPrimary
		}
		c.optimizer.RecordExperience(ctx, StateSignature(candidate), action, outcome)
	}
}

func (c *Coordinator) notify(candidate schemas.BannerCandidate, result schemas.Result) {
	if c.notifier == nil {
		return
	}
	if result.Success {
		c.notifier.Notify(schemas.NotifySuccess,
			"Consent banner dismissed",
			fmt.Sprintf("%s via %s", candidate.Page.Domain, result.Method))
		return
	}
	if result.Reason == schemas.ReasonStrategyExhausted {
		// The banner is left visible and untouched; no destructive fallback.
		c.notifier.Notify(schemas.NotifyError,
			"Could not dismiss consent banner",
			fmt.Sprintf("%s: %s", candidate.Page.Domain, result.Reason))
	}
}

// StateSignature builds the Q-state for a candidate.
func StateSignature(candidate schemas.BannerCandidate) schemas.QState {
	return schemas.QState{
		Framework:    candidate.Verdict.Framework,
		Position:     classifier.ScreenPosition(candidate.View),
		ActionBucket: actionBucket(len(candidate.View.Actions)),
		Language:     candidate.Language,
	}
}

// actionBucket coarsens the action count: 0 for <=2, 1 for 3-5, 2 for 6+.
func actionBucket(n int) int {
	switch {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// learnableSnippet extracts a compact phrase from banner text for the
// domain-learned phrase store.
func learnableSnippet(text string) string {
	const maxLen = 60
	trimmed := []rune(text)
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen]
	}
	return string(trimmed)
}
