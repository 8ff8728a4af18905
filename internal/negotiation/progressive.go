package negotiation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
)

// progressiveFlow handles "Continue/Next"-style wizards: banners that expose
// neither a reject nor a manage action up front and reveal them one step at
// a time. After each continue click the whole document is searched again,
// since wizards commonly swap the banner subtree out entirely.
//
// The boolean reports whether the branch applied at all; a false means the
// caller should fall through to its own failure handling.
func (e *Engine) progressiveFlow(ctx context.Context, candidate schemas.BannerCandidate, profile flowProfile) (schemas.Result, bool) {
	started := time.Now()

	cont, ok := e.findContinueAction(candidate.View.Actions)
	if !ok {
		return schemas.Result{}, false
	}

	log := e.logger.With(zap.String("candidate", candidate.ID))
	log.Debug("Entering progressive flow")

	for step := 0; step < e.cfg.MaxProgressiveSteps; step++ {
		if err := ctx.Err(); err != nil {
			return failed(started, schemas.ReasonActionTimeout), true
		}
		if err := e.driver.Click(ctx, cont.Ref); err != nil {
			log.Debug("Continue click failed", zap.Int("step", step), zap.Error(err))
			return failed(started, schemas.ReasonActionIneffective), true
		}
		if err := sleepCtx(ctx, e.cfg.SettleDelay); err != nil {
			return failed(started, schemas.ReasonActionTimeout), true
		}

		actions, err := e.driver.FindActions(ctx, "")
		if err != nil {
			return failed(started, schemas.ReasonActionIneffective), true
		}

		// A safe reject surfacing at any step ends the wizard immediately.
		if best, ok := e.cls.BestRejectAction(actions); ok {
			res := e.clickAndVerify(ctx, candidate, best.Action.Ref, actionText(best.Action), best.Score)
			if res.Success {
				res.Method = "progressive-reject"
				res.Duration = time.Since(started)
				return res, true
			}
		}

		// A manage action hands over to the preference-center path.
		if manage, ok := e.cls.FindManageAction(actions); ok {
			if err := e.driver.Click(ctx, manage.Ref); err == nil {
				if err := e.awaitPreferenceUI(ctx); err != nil {
					return failed(started, schemas.ReasonPreferenceTimeout), true
				}
				if err := e.configureCategories(ctx, profile); err != nil {
					return failed(started, schemas.ReasonForError(err)), true
				}
				buttonText, err := e.savePreferences(ctx, profile)
				if err != nil {
					return failed(started, schemas.ReasonForError(err)), true
				}
				return schemas.Result{
					Success:    true,
					Method:     "progressive-negotiation",
					Confidence: 0.75,
					Duration:   time.Since(started),
					ButtonText: buttonText,
				}, true
			}
		}

		// Otherwise look for the next continue control and keep walking.
		next, ok := e.findContinueAction(actions)
		if !ok {
			break
		}
		cont = next
	}

	return failed(started, schemas.ReasonStrategyExhausted), true
}

// findContinueAction locates a wizard-advance control that is not an accept
// phrase in disguise.
func (e *Engine) findContinueAction(actions []schemas.ActionElement) (schemas.ActionElement, bool) {
	for _, a := range actions {
		if !a.Visible {
			continue
		}
		label := actionText(a)
		if e.lex.IsContinuePhrase(label) && !e.lex.IsAcceptPhrase(label) && !e.lex.IsAcceptAllPhrase(label) {
			return a, true
		}
	}
	return schemas.ActionElement{}, false
}
