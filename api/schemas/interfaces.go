package schemas

import "context"

// -- Page Driver --

// PageDriver abstracts the live element tree supplied by the browser. The
// core never owns node lifecycles; it only reads views and issues the
// click/toggle/select mutations below. Implementations: the chromedp driver
// for live pages and the snapshot driver for saved HTML.
type PageDriver interface {
	// Scan returns the current top-level candidate regions (overlays, fixed
	// containers, dialogs) as element views with their action descendants.
	Scan(ctx context.Context) ([]ElementView, error)
	// FindActions searches for clickable elements under scope. An empty scope
	// searches the whole document.
	FindActions(ctx context.Context, scope string) ([]ActionElement, error)
	// Controls returns the preference-center inputs under scope with their
	// associated labels.
	Controls(ctx context.Context, scope string) ([]Control, error)
	// Click activates the element addressed by ref.
	Click(ctx context.Context, ref string) error
	// SetChecked drives a checkbox/toggle to the given state. It is a no-op
	// when the control is already in that state.
	SetChecked(ctx context.Context, ref string, checked bool) error
	// SelectOption picks the option with the given value on a dropdown.
	SelectOption(ctx context.Context, ref string, value string) error
	// Visible reports whether ref currently renders with non-zero size.
	Visible(ctx context.Context, ref string) (bool, error)
	// Attached reports whether ref still resolves to a live node.
	Attached(ctx context.Context, ref string) (bool, error)
	// Page summarizes the hosting document for complexity estimation.
	Page(ctx context.Context) (PageContext, error)
}

// MutationSource is implemented by drivers that can push change
// notifications. The snapshot driver does not; callers must feature-test.
type MutationSource interface {
	// Mutations delivers subtree-change events until ctx is done. The channel
	// is closed on teardown.
	Mutations(ctx context.Context) (<-chan MutationEvent, error)
}

// -- Optional Collaborators --

// Storage is the persistent key-value collaborator backing the domain
// history and the Q-table. Keys are scoped by the caller (e.g.
// "history/<domain>"). All components must degrade to in-memory operation
// when Storage is nil or erroring.
type Storage interface {
	// Get returns the stored value and whether the key existed.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// Notifier is the fire-and-forget toast collaborator. Implementations must
// never block or fail the caller.
type Notifier interface {
	Notify(kind NotifyKind, message, detail string)
}

// NotifyKind is the toast flavor.
type NotifyKind string

const (
	NotifySuccess NotifyKind = "success"
	NotifyError   NotifyKind = "error"
)

// Lexicon is the static multi-language keyword collaborator. Both methods
// are pure.
type Lexicon interface {
	// IsConsentText reports whether text matches the consent keyword family
	// in any supported language.
	IsConsentText(text string) bool
	// RejectScoreBonus returns the additive score credit for localized
	// reject-intent phrasing in text.
	RejectScoreBonus(text string) float64
}

// QueryCache memoizes expensive driver scans. Optional; a nil cache means
// every scan hits the driver.
type QueryCache interface {
	// CachedScan returns the memoized value for key or runs producer and
	// stores its result.
	CachedScan(key string, producer func() (any, error)) (any, error)
	// Invalidate drops all memoized entries, typically on a mutation event.
	Invalidate()
}

// -- Core Service Interfaces --

// Optimizer is the learning collaborator consulted by the strategy
// coordinator. A nil Optimizer forces rule-only processing.
type Optimizer interface {
	// Ready reports whether the optimizer loaded its table and may be
	// consulted.
	Ready() bool
	// Recommend returns the preferred action for the state signature.
	Recommend(ctx context.Context, state QState) (Recommendation, error)
	// RecordExperience feeds one (state, action, outcome) tuple back into
	// the value table.
	RecordExperience(ctx context.Context, state QState, action QAction, outcome ProcessingOutcome)
}

// HistoryStore is the per-domain rolling outcome log.
type HistoryStore interface {
	// Record appends an outcome, trimming the per-domain log to its cap.
	Record(ctx context.Context, outcome ProcessingOutcome)
	// LearnPhrase remembers a banner phrase observed on a successful
	// dismissal for domain.
	LearnPhrase(ctx context.Context, domain, phrase string)
	// Recent returns the most recent outcomes for domain, newest last.
	Recent(ctx context.Context, domain string, n int) []ProcessingOutcome
	// Difficulty derives the rolling historical difficulty in [0,1] for
	// domain; 0.5 with no usable history.
	Difficulty(ctx context.Context, domain string) float64
	// LearnedPhrases returns domain-specific banner phrases accumulated from
	// past successes.
	LearnedPhrases(ctx context.Context, domain string) []string
}
