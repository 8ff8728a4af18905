// Package negotiation drives multi-step consent flows: direct rejection,
// preference-center discovery, category-by-category configuration and the
// final save. Framework specializations substitute vendor selectors at each
// state but preserve the same transitions. Every transition is guarded by a
// timeout; an unmet guard routes to Failure instead of hanging.
package negotiation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
)

// State names the negotiation machine's positions. Exposed for logging and
// tests.
type State string

const (
	StateBannerFound          State = "banner-found"
	StateDirectRejectAttempt  State = "direct-reject-attempted"
	StatePreferenceSearch     State = "preference-search"
	StatePreferenceOpened     State = "preference-opened"
	StateCategoryConfig       State = "category-configuration"
	StateSavePreferences      State = "save-preferences"
	StateSuccess              State = "success"
	StateFailure              State = "failure"
)

// Engine executes negotiation flows against a page driver.
type Engine struct {
	driver schemas.PageDriver
	cls    *classifier.Classifier
	lex    *lexicon.Lexicon
	cfg    config.NegotiationConfig
	verify time.Duration
	logger *zap.Logger
}

// New creates a negotiation engine.
func New(cfg config.Interface, driver schemas.PageDriver, cls *classifier.Classifier, lex *lexicon.Lexicon, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lex == nil {
		lex = lexicon.New()
	}
	return &Engine{
		driver: driver,
		cls:    cls,
		lex:    lex,
		cfg:    cfg.Negotiation(),
		verify: cfg.Engine().VerifyDelay,
		logger: logger.Named("Negotiation"),
	}
}

// Run drives the full flow for a candidate: direct reject first, then the
// preference-center path. It never returns an error; failures are expressed
// in the Result.
func (e *Engine) Run(ctx context.Context, candidate schemas.BannerCandidate) schemas.Result {
	started := time.Now()
	profile := profileFor(candidate.Verdict.Framework)
	log := e.logger.With(
		zap.String("candidate", candidate.ID),
		zap.String("framework", profile.name))

	log.Debug("Negotiation started", zap.String("state", string(StateBannerFound)))

	// -- DirectRejectAttempted --
	if res := e.directReject(ctx, candidate); res.Success {
		res.Duration = time.Since(started)
		return res
	} else if res.Reason == schemas.ReasonActionTimeout {
		res.Duration = time.Since(started)
		return res
	}

	// -- PreferenceSearch --
	log.Debug("Transition", zap.String("state", string(StatePreferenceSearch)))
	opened, err := e.openPreferences(ctx, candidate, profile)
	if err != nil || !opened {
		// Progressive branch: continue/next wizards hide both the reject and
		// the manage action behind intermediate steps.
		if res, ok := e.progressiveFlow(ctx, candidate, profile); ok {
			res.Duration = time.Since(started)
			return res
		}
		return failed(started, schemas.ReasonStrategyExhausted)
	}

	// -- PreferenceOpened (bounded await) --
	log.Debug("Transition", zap.String("state", string(StatePreferenceOpened)))
	if err := e.awaitPreferenceUI(ctx); err != nil {
		log.Debug("Preference UI never appeared", zap.Error(err))
		return failed(started, schemas.ReasonPreferenceTimeout)
	}

	// -- CategoryConfiguration --
	log.Debug("Transition", zap.String("state", string(StateCategoryConfig)))
	if err := e.configureCategories(ctx, profile); err != nil {
		log.Debug("Category configuration failed", zap.Error(err))
		return failed(started, schemas.ReasonForError(err))
	}

	// -- SavePreferences --
	log.Debug("Transition", zap.String("state", string(StateSavePreferences)))
	buttonText, err := e.savePreferences(ctx, profile)
	if err != nil {
		log.Debug("Save failed", zap.Error(err))
		return failed(started, schemas.ReasonForError(err))
	}

	// Terminal check is best-effort: multi-step flows count as success once
	// the save click is known to have fired, even when the vendor UI gives
	// no observable confirmation.
	gone := e.bannerGone(ctx, candidate)
	log.Info("Negotiation finished",
		zap.String("state", string(StateSuccess)),
		zap.Bool("banner_gone", gone))
	return schemas.Result{
		Success:    true,
		Method:     "preference-negotiation",
		Confidence: 0.8,
		Duration:   time.Since(started),
		ButtonText: buttonText,
	}
}

// DirectReject runs only the first state: score the banner's immediate
// actions and click the best safe reject. minScore raises the safety bar
// beyond the configured default; maxClicks > 1 retries down the ranking
// when the banner survives a click (aggressive mode).
func (e *Engine) DirectReject(ctx context.Context, candidate schemas.BannerCandidate, minScore float64, maxClicks int) schemas.Result {
	started := time.Now()
	profile := profileFor(candidate.Verdict.Framework)

	if maxClicks < 1 {
		maxClicks = 1
	}
	if minScore < 0 {
		minScore = e.cls.SafeThreshold()
	}

	// Vendor reject selectors first.
	for _, sel := range profile.rejectSelectors {
		if visible, err := e.driver.Visible(ctx, sel); err == nil && visible {
			if res := e.clickAndVerify(ctx, candidate, sel, "", 1.0); res.Success {
				res.Duration = time.Since(started)
				res.Method = "framework-reject"
				return res
			}
		}
		if ctx.Err() != nil {
			return failed(started, schemas.ReasonActionTimeout)
		}
	}

	ranked := e.cls.RankActions(candidate.View.Actions)
	clicks := 0
	for _, sa := range ranked {
		if clicks >= maxClicks {
			break
		}
		if sa.Score <= minScore {
			break
		}
		clicks++
		res := e.clickAndVerify(ctx, candidate, sa.Action.Ref, actionText(sa.Action), sa.Score)
		if res.Success {
			res.Duration = time.Since(started)
			return res
		}
		if res.Reason == schemas.ReasonActionTimeout {
			res.Duration = time.Since(started)
			return res
		}
	}

	if clicks == 0 {
		return failed(started, schemas.ReasonLowConfidence)
	}
	return failed(started, schemas.ReasonActionIneffective)
}

// directReject is Run's first transition with the default safety threshold.
func (e *Engine) directReject(ctx context.Context, candidate schemas.BannerCandidate) schemas.Result {
	e.logger.Debug("Transition", zap.String("state", string(StateDirectRejectAttempt)))
	return e.DirectReject(ctx, candidate, -1, 1)
}

// clickAndVerify clicks ref and confirms the banner actually went away.
func (e *Engine) clickAndVerify(ctx context.Context, candidate schemas.BannerCandidate, ref, text string, confidence float64) schemas.Result {
	if err := e.driver.Click(ctx, ref); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return schemas.Result{Reason: schemas.ReasonActionTimeout}
		}
		e.logger.Debug("Click failed", zap.String("ref", ref), zap.Error(err))
		return schemas.Result{Reason: schemas.ReasonActionIneffective}
	}
	if err := sleepCtx(ctx, e.verify); err != nil {
		return schemas.Result{Reason: schemas.ReasonActionTimeout}
	}
	if e.bannerGone(ctx, candidate) {
		return schemas.Result{
			Success:    true,
			Method:     "direct-reject",
			Confidence: confidence,
			ButtonText: text,
		}
	}
	return schemas.Result{Reason: schemas.ReasonActionIneffective, ButtonText: text}
}

// openPreferences clicks a manage-preferences entry point. Returns whether a
// preference surface was requested.
func (e *Engine) openPreferences(ctx context.Context, candidate schemas.BannerCandidate, profile flowProfile) (bool, error) {
	for _, sel := range profile.preferenceSelectors {
		if visible, err := e.driver.Visible(ctx, sel); err == nil && visible {
			if err := e.driver.Click(ctx, sel); err == nil {
				return true, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}

	if manage, ok := e.cls.FindManageAction(candidate.View.Actions); ok {
		if err := e.driver.Click(ctx, manage.Ref); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// awaitPreferenceUI polls for preference-center indicators with bounded
// retries. Exceeding the ceiling yields ErrActionTimeout, which Run maps to
// the distinct preference-timeout reason.
func (e *Engine) awaitPreferenceUI(ctx context.Context) error {
	deadline := time.Now().Add(e.cfg.PreferenceTimeout)
	indicators := e.lex.PreferenceIndicators()
	for {
		for _, sel := range indicators {
			if visible, err := e.driver.Visible(ctx, sel); err == nil && visible {
				return nil
			}
		}
		// Category controls appearing anywhere also count as an open center.
		if controls, err := e.driver.Controls(ctx, ""); err == nil && len(controls) > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return schemas.ErrActionTimeout
		}
		if err := sleepCtx(ctx, e.cfg.PreferencePollInterval); err != nil {
			return schemas.ErrActionTimeout
		}
	}
}

// configureCategories walks every discovered control and disables the
// non-essential ones. Essential categories are never altered: the invariant
// is enforced here by planning first and mutating only planned steps.
func (e *Engine) configureCategories(ctx context.Context, profile flowProfile) error {
	scope := ""
	if len(profile.categorySelectors) > 0 {
		scope = profile.categorySelectors[0]
	}
	controls, err := e.driver.Controls(ctx, scope)
	if err != nil || len(controls) == 0 {
		// Vendor scope may be stale; retry unscoped before giving up.
		controls, err = e.driver.Controls(ctx, "")
		if err != nil {
			return err
		}
	}

	steps := PlanCategorySteps(e.lex, controls)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return schemas.ErrActionTimeout
		}
		if step.Decision != schemas.DecisionDisableNonEssential {
			continue
		}
		if err := e.applyStep(ctx, step, controls); err != nil {
			e.logger.Debug("Category mutation failed",
				zap.String("category", step.Category), zap.Error(err))
			continue
		}
		// Reactive preference centers re-render after each change.
		if err := sleepCtx(ctx, e.cfg.SettleDelay); err != nil {
			return schemas.ErrActionTimeout
		}
	}
	return nil
}

// applyStep issues the mutation for one planned step.
func (e *Engine) applyStep(ctx context.Context, step schemas.ConsentFlowStep, controls []schemas.Control) error {
	switch step.Kind {
	case schemas.StepToggleSwitch, schemas.StepCheckbox:
		return e.driver.SetChecked(ctx, step.Ref, false)
	case schemas.StepDropdown:
		for _, c := range controls {
			if c.Ref != step.Ref {
				continue
			}
			if value, ok := rejectOption(e.lex, c.Options); ok {
				return e.driver.SelectOption(ctx, step.Ref, value)
			}
			return nil
		}
		return nil
	case schemas.StepCategoryButton:
		return e.driver.Click(ctx, step.Ref)
	default:
		return nil
	}
}

// savePreferences clicks the save/confirm control, refusing anything with
// accept-all phrasing. Returns the clicked label.
func (e *Engine) savePreferences(ctx context.Context, profile flowProfile) (string, error) {
	for _, sel := range profile.saveSelectors {
		if visible, err := e.driver.Visible(ctx, sel); err == nil && visible {
			if err := e.driver.Click(ctx, sel); err == nil {
				return sel, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return "", schemas.ErrActionTimeout
		}
	}

	actions, err := e.driver.FindActions(ctx, "")
	if err != nil {
		return "", err
	}
	for _, a := range actions {
		if !a.Visible {
			continue
		}
		label := actionText(a)
		if e.lex.IsSavePhrase(label) && !e.lex.IsAcceptAllPhrase(label) {
			if err := e.driver.Click(ctx, a.Ref); err != nil {
				return "", err
			}
			return label, nil
		}
	}
	return "", schemas.ErrStrategyExhausted
}

// bannerGone reports whether the candidate's root is no longer visible.
// A detached node counts as gone.
func (e *Engine) bannerGone(ctx context.Context, candidate schemas.BannerCandidate) bool {
	attached, err := e.driver.Attached(ctx, candidate.View.Ref)
	if err != nil || !attached {
		return true
	}
	visible, err := e.driver.Visible(ctx, candidate.View.Ref)
	if err != nil {
		return true
	}
	return !visible
}

func failed(started time.Time, reason schemas.FailureReason) schemas.Result {
	return schemas.Result{
		Success:  false,
		Method:   "negotiation",
		Duration: time.Since(started),
		Reason:   reason,
	}
}

func actionText(a schemas.ActionElement) string {
	if a.Text != "" {
		return a.Text
	}
	if a.AriaLabel != "" {
		return a.AriaLabel
	}
	return a.Title
}

// sleepCtx waits for d or the context, whichever ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
