package schemas

import "time"

// -- Element Views --

// Geometry holds the bounding box of an element in CSS pixels.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the covered surface. Zero or negative dimensions yield 0.
func (g Geometry) Area() float64 {
	if g.Width <= 0 || g.Height <= 0 {
		return 0
	}
	return g.Width * g.Height
}

// PositionHints carries the computed-style placement signals used by the
// classifier's contextual scoring.
type PositionHints struct {
	Fixed          bool    `json:"fixed"`
	Sticky         bool    `json:"sticky"`
	ZIndex         int     `json:"z_index"`
	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`
}

// ActionKind distinguishes how an action element is activated.
type ActionKind string

const (
	ActionButton   ActionKind = "button"
	ActionLink     ActionKind = "link"
	ActionToggle   ActionKind = "toggle"
	ActionCheckbox ActionKind = "checkbox"
	ActionDropdown ActionKind = "dropdown"
)

// ActionElement is a clickable descendant of a banner candidate. It is a
// transient view over the live tree; the Ref selector is only valid while the
// underlying node stays attached.
type ActionElement struct {
	Ref        string            `json:"ref"`
	Kind       ActionKind        `json:"kind"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	AriaLabel  string            `json:"aria_label"`
	Title      string            `json:"title"`
	Attributes map[string]string `json:"attributes"`
	Visible    bool              `json:"visible"`
}

// ElementView is the driver-independent projection of a DOM subtree that the
// classifier consumes. AncestorNames holds the class/id naming of up to three
// ancestor levels, outermost last.
type ElementView struct {
	Ref           string            `json:"ref"`
	Tag           string            `json:"tag"`
	Text          string            `json:"text"`
	Attributes    map[string]string `json:"attributes"`
	Geometry      Geometry          `json:"geometry"`
	Visible       bool              `json:"visible"`
	Position      PositionHints     `json:"position"`
	AncestorNames []string          `json:"ancestor_names"`
	NestingDepth  int               `json:"nesting_depth"`
	Actions       []ActionElement   `json:"actions"`
}

// Control is a preference-center input (toggle, checkbox, dropdown or
// category button) paired with its associated label text.
type Control struct {
	Ref        string            `json:"ref"`
	Kind       ActionKind        `json:"kind"`
	Label      string            `json:"label"`
	Checked    bool              `json:"checked"`
	Options    []string          `json:"options,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PageContext summarizes the hosting page for complexity estimation.
type PageContext struct {
	URL                string `json:"url"`
	Domain             string `json:"domain"`
	ElementCount       int    `json:"element_count"`
	IframeCount        int    `json:"iframe_count"`
	DynamicMarkerCount int    `json:"dynamic_marker_count"`
}

// MutationEvent signals that a watched subtree changed. AddedHint carries the
// tag/class naming of the added roots so cheap pre-filtering is possible
// before a full rescan.
type MutationEvent struct {
	At        time.Time `json:"at"`
	AddedHint []string  `json:"added_hint,omitempty"`
}

// -- Classification --

// BannerVerdict is the classifier's answer for a single element view.
type BannerVerdict struct {
	IsBanner   bool    `json:"is_banner"`
	Confidence float64 `json:"confidence"`
	// Framework is the fingerprinted consent-management product, empty when
	// none was recognized.
	Framework string `json:"framework,omitempty"`
}

// BannerCandidate binds an element view to its verdict and page context.
// Candidates are created per scan pass and dropped once processed.
type BannerCandidate struct {
	ID       string        `json:"id"`
	View     ElementView   `json:"view"`
	Verdict  BannerVerdict `json:"verdict"`
	Page     PageContext   `json:"page"`
	Language string        `json:"language"`
	SeenAt   time.Time     `json:"seen_at"`
}

// -- Complexity --

// ComplexityLevel buckets the continuous complexity score.
type ComplexityLevel string

const (
	ComplexityLow    ComplexityLevel = "low"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityHigh   ComplexityLevel = "high"
)

// StrategyKind names a processing strategy for a candidate.
type StrategyKind string

const (
	StrategyRuleOnly        StrategyKind = "rule-only"
	StrategyRulePrimary     StrategyKind = "rule-primary-with-fallback"
	StrategyLearningPrimary StrategyKind = "learning-primary-with-fallback"
	StrategyParallel        StrategyKind = "parallel-evaluation"
)

// ComplexityProfile is the estimator's output for one candidate/domain.
type ComplexityProfile struct {
	Domain      string          `json:"domain"`
	Score       float64         `json:"score"`
	Level       ComplexityLevel `json:"level"`
	Recommended StrategyKind    `json:"recommended"`
	Factors     map[string]float64 `json:"factors,omitempty"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// StrategyDecision is the coordinator's resolved plan for a candidate.
type StrategyDecision struct {
	Strategy   StrategyKind  `json:"strategy"`
	Fallback   StrategyKind  `json:"fallback,omitempty"`
	Confidence float64       `json:"confidence"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// -- Outcomes --

// FailureReason classifies why processing did not succeed. These mirror the
// error taxonomy: detection misses are not errors, persistence failures are
// logged and non-fatal.
type FailureReason string

const (
	ReasonNone               FailureReason = ""
	ReasonDetectionMiss      FailureReason = "detection-miss"
	ReasonLowConfidence      FailureReason = "low-confidence"
	ReasonActionTimeout      FailureReason = "action-timeout"
	ReasonActionIneffective  FailureReason = "action-ineffective"
	ReasonStrategyExhausted  FailureReason = "strategy-exhausted"
	ReasonPersistenceFailure FailureReason = "persistence-failure"
	ReasonPreferenceTimeout  FailureReason = "preference-timeout"
)

// Result is the terminal answer for one candidate. Coordinators never return
// errors to callers; failures are expressed here.
type Result struct {
	Success    bool          `json:"success"`
	Method     string        `json:"method"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
	ButtonText string        `json:"button_text,omitempty"`
	Reason     FailureReason `json:"reason,omitempty"`
}

// ProcessingOutcome is the durable record appended to the domain history.
type ProcessingOutcome struct {
	Domain     string        `json:"domain"`
	Success    bool          `json:"success"`
	Method     string        `json:"method"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
	ButtonText string        `json:"button_text,omitempty"`
	Attempts   int           `json:"attempts"`
	At         time.Time     `json:"at"`
}

// -- Q-Learning --

// ScreenPosition buckets where a banner sits in the viewport.
type ScreenPosition string

const (
	PositionTop     ScreenPosition = "top"
	PositionBottom  ScreenPosition = "bottom"
	PositionCenter  ScreenPosition = "center"
	PositionSide    ScreenPosition = "side"
	PositionUnknown ScreenPosition = "unknown"
)

// QState is the compact situation signature keyed into the Q-table.
type QState struct {
	Framework    string         `json:"framework"`
	Position     ScreenPosition `json:"position"`
	ActionBucket int            `json:"action_bucket"`
	Language     string         `json:"language"`
}

// QAction is one of the fixed action vocabulary entries. Vocabulary order is
// the deterministic tie-break for greedy selection.
type QAction string

const (
	ActionRuleBasedPrimary    QAction = "rule-based-primary"
	ActionLearningText        QAction = "learning-text-analysis"
	ActionAggressiveClicks    QAction = "aggressive-multi-click"
	ActionConservativeClick   QAction = "conservative-minimal-click"
	ActionHybridNegotiation   QAction = "hybrid"
)

// ActionVocabulary lists all valid QActions in tie-break order.
var ActionVocabulary = []QAction{
	ActionRuleBasedPrimary,
	ActionLearningText,
	ActionAggressiveClicks,
	ActionConservativeClick,
	ActionHybridNegotiation,
}

// Recommendation is the optimizer's answer for a state.
type Recommendation struct {
	Action     QAction `json:"action"`
	Confidence float64 `json:"confidence"`
	Explored   bool    `json:"explored"`
}

// -- Negotiation --

// FlowStepKind names the control classes handled during category configuration.
type FlowStepKind string

const (
	StepToggleSwitch   FlowStepKind = "toggle-switch"
	StepCheckbox       FlowStepKind = "checkbox"
	StepDropdown       FlowStepKind = "dropdown"
	StepCategoryButton FlowStepKind = "category-button"
	StepSaveButton     FlowStepKind = "save-button"
)

// CategoryDecision records what the negotiation engine resolved for a
// category control. Essential categories must never be disabled.
type CategoryDecision string

const (
	DecisionDisableNonEssential CategoryDecision = "disable-if-non-essential"
	DecisionPreserveEssential   CategoryDecision = "preserve-if-essential"
)

// ConsentFlowStep is one planned mutation in a preference-center flow.
type ConsentFlowStep struct {
	Kind     FlowStepKind     `json:"kind"`
	Category string           `json:"category"`
	Decision CategoryDecision `json:"decision"`
	Ref      string           `json:"ref"`
}
