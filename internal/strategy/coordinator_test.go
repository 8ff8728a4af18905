package strategy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/complexity"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
	"github.com/xkilldash9x/consentinel/internal/negotiation"
)

// scriptedDriver backs a real negotiation engine in coordinator tests.
// clickDelay simulates a slow page; panicOnClick simulates a driver fault.
type scriptedDriver struct {
	mu sync.Mutex

	visible      map[string]bool
	dismissOn    map[string]bool
	bannerRef    string
	clickDelay   time.Duration
	panicOnClick bool
	clicks       []string
}

func newScriptedDriver(bannerRef string) *scriptedDriver {
	return &scriptedDriver{
		visible:   map[string]bool{bannerRef: true},
		dismissOn: make(map[string]bool),
		bannerRef: bannerRef,
	}
}

func (d *scriptedDriver) Scan(ctx context.Context) ([]schemas.ElementView, error) { return nil, nil }

func (d *scriptedDriver) FindActions(ctx context.Context, scope string) ([]schemas.ActionElement, error) {
	return nil, nil
}

func (d *scriptedDriver) Controls(ctx context.Context, scope string) ([]schemas.Control, error) {
	return nil, nil
}

func (d *scriptedDriver) Click(ctx context.Context, ref string) error {
	if d.panicOnClick {
		panic("driver lost its page")
	}
	if d.clickDelay > 0 {
		select {
		case <-time.After(d.clickDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, ref)
	if d.dismissOn[ref] {
		d.visible[d.bannerRef] = false
	}
	return nil
}

func (d *scriptedDriver) SetChecked(ctx context.Context, ref string, checked bool) error { return nil }

func (d *scriptedDriver) SelectOption(ctx context.Context, ref string, value string) error {
	return nil
}

func (d *scriptedDriver) Visible(ctx context.Context, ref string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible[ref], nil
}

func (d *scriptedDriver) Attached(ctx context.Context, ref string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.visible[ref]
	return ok, nil
}

func (d *scriptedDriver) Page(ctx context.Context) (schemas.PageContext, error) {
	return schemas.PageContext{Domain: "example.com"}, nil
}

type fakeOptimizer struct {
	mu       sync.Mutex
	ready    bool
	rec      schemas.Recommendation
	err      error
	recorded []schemas.QAction
}

func (o *fakeOptimizer) Ready() bool { return o.ready }

func (o *fakeOptimizer) Recommend(ctx context.Context, state schemas.QState) (schemas.Recommendation, error) {
	if o.err != nil {
		return schemas.Recommendation{}, o.err
	}
	return o.rec, nil
}

func (o *fakeOptimizer) RecordExperience(ctx context.Context, state schemas.QState, action schemas.QAction, outcome schemas.ProcessingOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded = append(o.recorded, action)
}

type fakeHistory struct {
	mu       sync.Mutex
	outcomes []schemas.ProcessingOutcome
	phrases  map[string][]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{phrases: make(map[string][]string)}
}

func (h *fakeHistory) Record(ctx context.Context, outcome schemas.ProcessingOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, outcome)
}

func (h *fakeHistory) LearnPhrase(ctx context.Context, domain, phrase string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phrases[domain] = append(h.phrases[domain], phrase)
}

func (h *fakeHistory) Recent(ctx context.Context, domain string, n int) []schemas.ProcessingOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.outcomes) {
		n = len(h.outcomes)
	}
	return append([]schemas.ProcessingOutcome(nil), h.outcomes[len(h.outcomes)-n:]...)
}

func (h *fakeHistory) Difficulty(ctx context.Context, domain string) float64 { return 0.5 }

func (h *fakeHistory) LearnedPhrases(ctx context.Context, domain string) []string { return nil }

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []schemas.NotifyKind
}

func (n *fakeNotifier) Notify(kind schemas.NotifyKind, message, detail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

type fixture struct {
	coordinator *Coordinator
	driver      *scriptedDriver
	optimizer   *fakeOptimizer
	history     *fakeHistory
	notifier    *fakeNotifier
}

func newFixture(driver *scriptedDriver, optimizer schemas.Optimizer) *fixture {
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.VerifyDelay = time.Millisecond
	cfg.NegotiationCfg.SettleDelay = time.Millisecond
	cfg.NegotiationCfg.PreferencePollInterval = time.Millisecond
	cfg.NegotiationCfg.PreferenceTimeout = 20 * time.Millisecond

	lex := lexicon.New()
	cls := classifier.New(cfg.Classifier(), lex, nil)
	hist := newFakeHistory()
	not := &fakeNotifier{}
	est := complexity.New(nil, lex, nil)
	neg := negotiation.New(cfg, driver, cls, lex, nil)

	f := &fixture{
		driver:   driver,
		history:  hist,
		notifier: not,
	}
	if fo, ok := optimizer.(*fakeOptimizer); ok {
		f.optimizer = fo
	}
	f.coordinator = New(cfg, cls, est, neg, optimizer, hist, not, nil)
	return f
}

func button(ref, text string) schemas.ActionElement {
	return schemas.ActionElement{Ref: ref, Kind: schemas.ActionButton, Tag: "button", Text: text, Visible: true}
}

func simpleCandidate(actions ...schemas.ActionElement) schemas.BannerCandidate {
	return schemas.BannerCandidate{
		ID: "cand-1",
		View: schemas.ElementView{
			Ref:     "#banner",
			Tag:     "div",
			Text:    "We use cookies to improve your experience.",
			Visible: true,
			Actions: actions,
		},
		Verdict:  schemas.BannerVerdict{IsBanner: true, Confidence: 0.9},
		Page:     schemas.PageContext{Domain: "example.com", ElementCount: 400},
		Language: "en",
	}
}

// profileFor mirrors the estimator's level-to-recommendation mapping.
func profileFor(level schemas.ComplexityLevel, rec schemas.StrategyKind) schemas.ComplexityProfile {
	return schemas.ComplexityProfile{Domain: "example.com", Level: level, Recommended: rec}
}

func TestSelectStrategyWithoutOptimizer(t *testing.T) {
	f := newFixture(newScriptedDriver("#banner"), nil)

	for _, rec := range []schemas.StrategyKind{
		schemas.StrategyRuleOnly, schemas.StrategyParallel, schemas.StrategyLearningPrimary,
	} {
		d := f.coordinator.selectStrategy(context.Background(),
			profileFor(schemas.ComplexityHigh, rec))
		assert.Equal(t, schemas.StrategyRuleOnly, d.Strategy, "recommended %s", rec)
	}
}

func TestSelectStrategyUnreadyOptimizer(t *testing.T) {
	f := newFixture(newScriptedDriver("#banner"), &fakeOptimizer{ready: false})

	d := f.coordinator.selectStrategy(context.Background(),
		profileFor(schemas.ComplexityHigh, schemas.StrategyLearningPrimary))
	assert.Equal(t, schemas.StrategyRuleOnly, d.Strategy)
}

func TestSelectStrategyFollowsRecommendation(t *testing.T) {
	f := newFixture(newScriptedDriver("#banner"), &fakeOptimizer{ready: true})
	ctx := context.Background()

	low := f.coordinator.selectStrategy(ctx, profileFor(schemas.ComplexityLow, schemas.StrategyRuleOnly))
	assert.Equal(t, schemas.StrategyRuleOnly, low.Strategy)

	medium := f.coordinator.selectStrategy(ctx, profileFor(schemas.ComplexityMedium, schemas.StrategyParallel))
	assert.Equal(t, schemas.StrategyParallel, medium.Strategy)
	assert.Equal(t, schemas.StrategyRuleOnly, medium.Fallback)
	assert.Greater(t, medium.Timeout, time.Duration(0))

	high := f.coordinator.selectStrategy(ctx, profileFor(schemas.ComplexityHigh, schemas.StrategyLearningPrimary))
	assert.Equal(t, schemas.StrategyLearningPrimary, high.Strategy)
}

func TestSelectStrategyRuleTrackRecordPrefersRulePrimary(t *testing.T) {
	f := newFixture(newScriptedDriver("#banner"), &fakeOptimizer{ready: true})
	ctx := context.Background()

	// Three rule-method wins in the window downgrade a parallel
	// recommendation to rule-primary; the race adds nothing here.
	for i := 0; i < 3; i++ {
		f.history.Record(ctx, schemas.ProcessingOutcome{
			Domain: "example.com", Success: true, Method: "direct-reject",
		})
	}
	f.history.Record(ctx, schemas.ProcessingOutcome{Domain: "example.com", Success: false, Method: "direct-reject"})

	d := f.coordinator.selectStrategy(ctx, profileFor(schemas.ComplexityMedium, schemas.StrategyParallel))
	assert.Equal(t, schemas.StrategyRulePrimary, d.Strategy)
	assert.Equal(t, schemas.StrategyLearningPrimary, d.Fallback)
}

func TestSelectStrategyLearningWinsKeepParallel(t *testing.T) {
	f := newFixture(newScriptedDriver("#banner"), &fakeOptimizer{ready: true})
	ctx := context.Background()

	// Wins attributed to the learning path do not count toward the rule
	// track record.
	for i := 0; i < 5; i++ {
		f.history.Record(ctx, schemas.ProcessingOutcome{
			Domain: "example.com", Success: true, Method: "learning:aggressive-multi-click",
		})
	}

	d := f.coordinator.selectStrategy(ctx, profileFor(schemas.ComplexityMedium, schemas.StrategyParallel))
	assert.Equal(t, schemas.StrategyParallel, d.Strategy)
}

func TestProcessRuleOnlySuccess(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#reject"] = true
	f := newFixture(d, nil)

	res := f.coordinator.Process(context.Background(), simpleCandidate(
		button("#accept", "Accept All"),
		button("#reject", "Reject All"),
	))

	require.True(t, res.Success)
	assert.Equal(t, "direct-reject", res.Method)

	require.Len(t, f.history.outcomes, 1)
	want := schemas.ProcessingOutcome{
		Domain:     "example.com",
		Success:    true,
		Method:     "direct-reject",
		Confidence: 0.95,
		ButtonText: "Reject All",
		Attempts:   1,
	}
	if diff := cmp.Diff(want, f.history.outcomes[0],
		cmpopts.IgnoreFields(schemas.ProcessingOutcome{}, "Duration", "At")); diff != "" {
		t.Errorf("recorded outcome mismatch (-want +got):\n%s", diff)
	}
	assert.NotEmpty(t, f.history.phrases["example.com"])

	require.Len(t, f.notifier.kinds, 1)
	assert.Equal(t, schemas.NotifySuccess, f.notifier.kinds[0])
}

func TestProcessFailureNotifiesOnExhaustion(t *testing.T) {
	d := newScriptedDriver("#banner")
	f := newFixture(d, nil)

	res := f.coordinator.Process(context.Background(), simpleCandidate(
		button("#hero", "Learn more about our products"),
	))

	assert.False(t, res.Success)
	assert.Equal(t, schemas.ReasonStrategyExhausted, res.Reason)

	require.Len(t, f.history.outcomes, 1)
	assert.False(t, f.history.outcomes[0].Success)
	assert.Empty(t, f.history.phrases["example.com"])

	require.Len(t, f.notifier.kinds, 1)
	assert.Equal(t, schemas.NotifyError, f.notifier.kinds[0])
}

func TestProcessRecoversFromPanic(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.panicOnClick = true
	f := newFixture(d, nil)

	res := f.coordinator.Process(context.Background(), simpleCandidate(
		button("#reject", "Reject All"),
	))

	assert.False(t, res.Success)
	assert.Equal(t, "panic-recovery", res.Method)
	assert.Equal(t, schemas.ReasonStrategyExhausted, res.Reason)
}

func TestParallelEvaluationTieKeepsRule(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#reject"] = true
	// Recommendation errors degrade the learning branch to a rule attempt, so
	// both branches answer with identical confidence and the margin rule must
	// keep the plain rule result.
	opt := &fakeOptimizer{ready: true, err: errors.New("no recommendation")}
	f := newFixture(d, opt)

	res, attempts, action := f.coordinator.parallelEvaluation(
		context.Background(),
		simpleCandidate(button("#reject", "Reject All")),
		time.Second,
	)

	require.True(t, res.Success)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, schemas.QAction(""), action)
	assert.False(t, strings.HasPrefix(res.Method, "learning"))
}

func TestParallelEvaluationTimeoutDegrades(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#reject"] = true
	d.clickDelay = 80 * time.Millisecond
	opt := &fakeOptimizer{ready: true, rec: schemas.Recommendation{Action: schemas.ActionConservativeClick, Confidence: 0.9}}
	f := newFixture(d, opt)

	// The race window is far shorter than the page's click latency; the
	// direct retry afterwards has no such deadline and must land.
	res, attempts, _ := f.coordinator.parallelEvaluation(
		context.Background(),
		simpleCandidate(button("#reject", "Reject All")),
		10*time.Millisecond,
	)

	require.True(t, res.Success)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "direct-reject", res.Method)
}

func TestParallelEvaluationLearningWinsByMargin(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#dismiss"] = true
	// "Dismiss cookies" scores 0.65, below the 0.7 safety bar, so the rule
	// branch exhausts with zero confidence. The learning-text action lowers
	// the bar to 0.6, clicks it and wins by more than the margin.
	opt := &fakeOptimizer{ready: true, rec: schemas.Recommendation{Action: schemas.ActionLearningText, Confidence: 0.9}}
	f := newFixture(d, opt)

	res, attempts, action := f.coordinator.parallelEvaluation(
		context.Background(),
		simpleCandidate(button("#dismiss", "Dismiss cookies")),
		time.Second,
	)

	require.True(t, res.Success)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, schemas.ActionLearningText, action)
	assert.Equal(t, "learning:"+string(schemas.ActionLearningText), res.Method)
	assert.InDelta(t, 0.65, res.Confidence, 0.001)
	assert.Equal(t, []string{"#dismiss"}, d.clicks)
}

func TestRulePrimaryAcceptsConfidentRule(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#reject"] = true
	opt := &fakeOptimizer{ready: true, rec: schemas.Recommendation{Action: schemas.ActionAggressiveClicks, Confidence: 0.9}}
	f := newFixture(d, opt)

	res, attempts, action := f.coordinator.rulePrimaryWithFallback(
		context.Background(),
		simpleCandidate(button("#reject", "Reject All")),
	)

	require.True(t, res.Success)
	assert.Equal(t, "direct-reject", res.Method)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, schemas.QAction(""), action)
}

func TestRulePrimaryAdoptsBetterLearningAnswer(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#dismiss"] = true
	opt := &fakeOptimizer{ready: true, rec: schemas.Recommendation{Action: schemas.ActionLearningText, Confidence: 0.7}}
	f := newFixture(d, opt)

	res, attempts, action := f.coordinator.rulePrimaryWithFallback(
		context.Background(),
		simpleCandidate(button("#dismiss", "Dismiss cookies")),
	)

	require.True(t, res.Success)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, schemas.ActionLearningText, action)
	assert.Equal(t, "learning:"+string(schemas.ActionLearningText), res.Method)
}

func TestRulePrimaryKeepsRuleWhenLearningNoBetter(t *testing.T) {
	d := newScriptedDriver("#banner")
	// Recommendation errors degrade the learning side to a rule retry, so
	// both answers fail with equal confidence and the rule answer stands.
	opt := &fakeOptimizer{ready: true, err: errors.New("no recommendation")}
	f := newFixture(d, opt)

	res, attempts, action := f.coordinator.rulePrimaryWithFallback(
		context.Background(),
		simpleCandidate(button("#hero", "Learn more about our products")),
	)

	assert.False(t, res.Success)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, schemas.QAction(""), action)
	assert.False(t, strings.HasPrefix(res.Method, "learning"))
}

func TestLearningPathExecutesRecommendation(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#reject"] = true
	opt := &fakeOptimizer{ready: true, rec: schemas.Recommendation{Action: schemas.ActionAggressiveClicks, Confidence: 0.8}}
	f := newFixture(d, opt)

	res, action := f.coordinator.learningPath(context.Background(), simpleCandidate(
		button("#reject", "Reject All"),
	))

	require.True(t, res.Success)
	assert.Equal(t, schemas.ActionAggressiveClicks, action)
	assert.Equal(t, "learning:"+string(schemas.ActionAggressiveClicks), res.Method)
}

func TestLearningPathUnavailableFallsBack(t *testing.T) {
	d := newScriptedDriver("#banner")
	d.dismissOn["#reject"] = true
	opt := &fakeOptimizer{ready: true, err: errors.New("table load failed")}
	f := newFixture(d, opt)

	res, action := f.coordinator.learningPath(context.Background(), simpleCandidate(
		button("#reject", "Reject All"),
	))

	require.True(t, res.Success)
	assert.Equal(t, schemas.QAction(""), action)
	assert.True(t, strings.HasPrefix(res.Method, "learning-unavailable:"))
}

func TestRecordOutcomeDefaultsLearningAction(t *testing.T) {
	d := newScriptedDriver("#banner")
	opt := &fakeOptimizer{ready: true}
	f := newFixture(d, opt)

	cand := simpleCandidate(button("#reject", "Reject All"))
	f.coordinator.recordOutcome(context.Background(), cand,
		schemas.Result{Success: true, Method: "direct-reject", Confidence: 0.9}, 1, "")

	require.Len(t, opt.recorded, 1)
	assert.Equal(t, schemas.ActionRuleBasedPrimary, opt.recorded[0])
}

func TestStateSignature(t *testing.T) {
	cand := simpleCandidate(
		button("#a", "A"), button("#b", "B"), button("#c", "C"), button("#d", "D"),
	)
	cand.Verdict.Framework = "didomi"
	cand.View.Geometry = schemas.Geometry{Y: 700, Width: 1280, Height: 100}
	cand.View.Position = schemas.PositionHints{ViewportWidth: 1280, ViewportHeight: 800}

	state := StateSignature(cand)
	assert.Equal(t, "didomi", state.Framework)
	assert.Equal(t, 1, state.ActionBucket)
	assert.Equal(t, "en", state.Language)
	assert.Equal(t, schemas.PositionBottom, state.Position)
}

func TestActionBucket(t *testing.T) {
	assert.Equal(t, 0, actionBucket(0))
	assert.Equal(t, 0, actionBucket(2))
	assert.Equal(t, 1, actionBucket(3))
	assert.Equal(t, 1, actionBucket(5))
	assert.Equal(t, 2, actionBucket(6))
	assert.Equal(t, 2, actionBucket(40))
}

func TestLearnableSnippet(t *testing.T) {
	long := strings.Repeat("cookie consent ", 10)
	snippet := learnableSnippet(long)
	assert.Len(t, []rune(snippet), 60)
	assert.Equal(t, "short", learnableSnippet("short"))
}
