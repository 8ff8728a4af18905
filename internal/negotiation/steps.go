package negotiation

import (
	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
)

// PlanCategorySteps maps discovered preference controls to flow steps. Pure:
// planning is separated from mutation so the essential-category invariant
// can be tested without a driver.
//
// Rules: a label matching the essential family is always preserved, even
// when it also matches a non-essential keyword. Unclassifiable labels are
// preserved too; only a positive non-essential match earns a disable step.
func PlanCategorySteps(lex *lexicon.Lexicon, controls []schemas.Control) []schemas.ConsentFlowStep {
	steps := make([]schemas.ConsentFlowStep, 0, len(controls))
	for _, c := range controls {
		step := schemas.ConsentFlowStep{
			Kind:     stepKindFor(c.Kind),
			Category: c.Label,
			Ref:      c.Ref,
		}
		switch {
		case lex.IsEssentialCategory(c.Label):
			step.Decision = schemas.DecisionPreserveEssential
		case lex.IsNonEssentialCategory(c.Label):
			step.Decision = schemas.DecisionDisableNonEssential
		default:
			step.Decision = schemas.DecisionPreserveEssential
		}

		// Already-disabled toggles and checkboxes need no mutation.
		if step.Decision == schemas.DecisionDisableNonEssential &&
			(step.Kind == schemas.StepToggleSwitch || step.Kind == schemas.StepCheckbox) &&
			!c.Checked {
			step.Decision = schemas.DecisionPreserveEssential
		}
		steps = append(steps, step)
	}
	return steps
}

func stepKindFor(kind schemas.ActionKind) schemas.FlowStepKind {
	switch kind {
	case schemas.ActionToggle:
		return schemas.StepToggleSwitch
	case schemas.ActionCheckbox:
		return schemas.StepCheckbox
	case schemas.ActionDropdown:
		return schemas.StepDropdown
	default:
		return schemas.StepCategoryButton
	}
}

// rejectOption picks the reject-like option from a dropdown's values.
func rejectOption(lex *lexicon.Lexicon, options []string) (string, bool) {
	best := ""
	bestTier := lexicon.TierNone
	for _, opt := range options {
		if tier := lex.RejectTier(opt); tier > bestTier {
			best, bestTier = opt, tier
		}
	}
	if bestTier == lexicon.TierNone {
		return "", false
	}
	return best, true
}
