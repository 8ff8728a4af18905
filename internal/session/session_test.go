package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/consentinel/api/schemas"
	"github.com/xkilldash9x/consentinel/internal/classifier"
	"github.com/xkilldash9x/consentinel/internal/complexity"
	"github.com/xkilldash9x/consentinel/internal/config"
	"github.com/xkilldash9x/consentinel/internal/history"
	"github.com/xkilldash9x/consentinel/internal/lexicon"
	"github.com/xkilldash9x/consentinel/internal/negotiation"
	"github.com/xkilldash9x/consentinel/internal/strategy"
)

// pageDriver serves a fixed set of candidate views and tracks how often the
// page was scanned.
type pageDriver struct {
	mu        sync.Mutex
	views     []schemas.ElementView
	visible   map[string]bool
	dismissOn map[string]bool
	scans     int
}

func newPageDriver(views ...schemas.ElementView) *pageDriver {
	d := &pageDriver{
		views:     views,
		visible:   make(map[string]bool),
		dismissOn: make(map[string]bool),
	}
	for _, v := range views {
		d.visible[v.Ref] = true
	}
	return d
}

func (d *pageDriver) Scan(ctx context.Context) ([]schemas.ElementView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scans++
	return d.views, nil
}

func (d *pageDriver) FindActions(ctx context.Context, scope string) ([]schemas.ActionElement, error) {
	return nil, nil
}

func (d *pageDriver) Controls(ctx context.Context, scope string) ([]schemas.Control, error) {
	return nil, nil
}

func (d *pageDriver) Click(ctx context.Context, ref string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dismissOn[ref] {
		for _, v := range d.views {
			d.visible[v.Ref] = false
		}
	}
	return nil
}

func (d *pageDriver) SetChecked(ctx context.Context, ref string, checked bool) error { return nil }

func (d *pageDriver) SelectOption(ctx context.Context, ref string, value string) error { return nil }

func (d *pageDriver) Visible(ctx context.Context, ref string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible[ref], nil
}

func (d *pageDriver) Attached(ctx context.Context, ref string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.visible[ref]
	return ok, nil
}

func (d *pageDriver) Page(ctx context.Context) (schemas.PageContext, error) {
	return schemas.PageContext{Domain: "example.com", ElementCount: 500}, nil
}

func (d *pageDriver) scanCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}

// mutatingDriver adds a mutation feed on top of pageDriver.
type mutatingDriver struct {
	*pageDriver
	events chan schemas.MutationEvent
}

func newMutatingDriver(views ...schemas.ElementView) *mutatingDriver {
	return &mutatingDriver{
		pageDriver: newPageDriver(views...),
		events:     make(chan schemas.MutationEvent, 8),
	}
}

func (d *mutatingDriver) Mutations(ctx context.Context) (<-chan schemas.MutationEvent, error) {
	return d.events, nil
}

func bannerView(ref, text string, actions ...schemas.ActionElement) schemas.ElementView {
	return schemas.ElementView{
		Ref:        ref,
		Tag:        "div",
		Text:       text,
		Attributes: map[string]string{"class": "site-notice"},
		Geometry:   schemas.Geometry{X: 0, Y: 700, Width: 1280, Height: 100},
		Visible:    true,
		Position: schemas.PositionHints{
			Fixed:          true,
			ZIndex:         2000,
			ViewportWidth:  1280,
			ViewportHeight: 800,
		},
		Actions: actions,
	}
}

func rejectableBanner(ref string) schemas.ElementView {
	return bannerView(ref,
		"We use cookies to personalize content. Accept all or reject all.",
		schemas.ActionElement{Ref: ref + " .accept", Kind: schemas.ActionButton, Tag: "button", Text: "Accept All", Visible: true},
		schemas.ActionElement{Ref: ref + " .reject", Kind: schemas.ActionButton, Tag: "button", Text: "Reject All", Visible: true},
	)
}

func newAgent(t *testing.T, driver schemas.PageDriver, cache schemas.QueryCache) *Agent {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.EngineCfg.SessionTimeout = 250 * time.Millisecond
	cfg.EngineCfg.VerifyDelay = time.Millisecond
	cfg.BrowserCfg.ScanDebounce = 5 * time.Millisecond
	cfg.NegotiationCfg.SettleDelay = time.Millisecond
	cfg.NegotiationCfg.PreferencePollInterval = time.Millisecond
	cfg.NegotiationCfg.PreferenceTimeout = 20 * time.Millisecond

	lex := lexicon.New()
	cls := classifier.New(cfg.Classifier(), lex, nil)
	hist := history.New(nil, nil)
	est := complexity.New(hist, lex, nil)
	neg := negotiation.New(cfg, driver, cls, lex, nil)
	coord := strategy.New(cfg, cls, est, neg, nil, hist, nil, nil)
	return New(cfg, driver, cls, lex, coord, hist, cache, nil)
}

func TestRunStaticDriverSingleSweep(t *testing.T) {
	view := rejectableBanner("#banner")
	d := newPageDriver(view)
	d.dismissOn["#banner .reject"] = true

	agent := newAgent(t, d, nil)
	summary := agent.Run(context.Background())

	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Dismissed)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Success)
	// No mutation feed: exactly one scan.
	assert.Equal(t, 1, d.scanCount())
}

func TestRunIgnoresNonBannerRegions(t *testing.T) {
	hero := bannerView("#hero", "Welcome to our store, browse the catalogue.")
	hero.Position.Fixed = false
	hero.Position.ZIndex = 0
	hero.Geometry.Y = 2400

	d := newPageDriver(hero)
	agent := newAgent(t, d, nil)
	summary := agent.Run(context.Background())

	assert.Zero(t, summary.Candidates)
	assert.Empty(t, summary.Results)
}

func TestRunRescanDeduplicatesCandidates(t *testing.T) {
	view := rejectableBanner("#banner")
	d := newMutatingDriver(view)
	d.dismissOn["#banner .reject"] = true

	agent := newAgent(t, d, nil)

	done := make(chan Summary, 1)
	go func() { done <- agent.Run(context.Background()) }()

	// Give the initial sweep a moment, then push relevant mutations. The
	// rescan sees the same candidate and must not process it twice.
	time.Sleep(30 * time.Millisecond)
	d.events <- schemas.MutationEvent{At: time.Now(), AddedHint: []string{"cookie-banner"}}
	d.events <- schemas.MutationEvent{At: time.Now(), AddedHint: []string{"consent-overlay"}}

	summary := <-done
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Dismissed)
	assert.GreaterOrEqual(t, d.scanCount(), 2)
}

func TestRunMutationFilterSkipsIrrelevantHints(t *testing.T) {
	view := rejectableBanner("#banner")
	d := newMutatingDriver(view)
	d.dismissOn["#banner .reject"] = true

	agent := newAgent(t, d, nil)

	done := make(chan Summary, 1)
	go func() { done <- agent.Run(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	scansAfterSweep := d.scanCount()
	d.events <- schemas.MutationEvent{At: time.Now(), AddedHint: []string{"carousel-slide"}}
	d.events <- schemas.MutationEvent{At: time.Now(), AddedHint: []string{"promo-toolbar"}}

	<-done
	assert.Equal(t, scansAfterSweep, d.scanCount())
}

func TestWorthRescanning(t *testing.T) {
	agent := newAgent(t, newPageDriver(), nil)

	assert.True(t, agent.worthRescanning(schemas.MutationEvent{}))
	assert.True(t, agent.worthRescanning(schemas.MutationEvent{AddedHint: []string{"cmp-container"}}))
	assert.True(t, agent.worthRescanning(schemas.MutationEvent{AddedHint: []string{"GDPR-Notice"}}))
	assert.False(t, agent.worthRescanning(schemas.MutationEvent{AddedHint: []string{"search-suggestions"}}))
}

func TestCandidateKey(t *testing.T) {
	a := rejectableBanner("#banner")
	b := rejectableBanner("#banner")
	assert.Equal(t, candidateKey("example.com", a), candidateKey("example.com", b))

	b.Text = "Entirely different banner copy about cookies."
	assert.NotEqual(t, candidateKey("example.com", a), candidateKey("example.com", b))
	assert.NotEqual(t, candidateKey("example.com", a), candidateKey("other.org", a))
}

type servedCache struct {
	views []schemas.ElementView
	hits  int
}

func (c *servedCache) CachedScan(key string, producer func() (any, error)) (any, error) {
	c.hits++
	return c.views, nil
}

func (c *servedCache) Invalidate() {}

func TestScanGoesThroughCache(t *testing.T) {
	d := newPageDriver(rejectableBanner("#banner"))
	cache := &servedCache{views: nil}

	agent := newAgent(t, d, cache)
	summary := agent.Run(context.Background())

	assert.Equal(t, 1, cache.hits)
	assert.Zero(t, d.scanCount())
	assert.Zero(t, summary.Candidates)
}
