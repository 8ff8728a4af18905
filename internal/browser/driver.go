// Package browser provides the page drivers: a chromedp-backed driver for
// live tabs and a snapshot driver for saved HTML. Both expose the same
// element views, addressed by CSS selector refs, so the classifier and the
// negotiation engine never touch node lifecycles directly.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
)

var fastjson = jsoniter.ConfigCompatibleWithStandardLibrary

// Driver implements schemas.PageDriver and schemas.MutationSource over a
// single chromedp tab.
type Driver struct {
	tab    context.Context
	logger *zap.Logger

	mu   sync.Mutex
	subs []chan schemas.MutationEvent
}

// newDriver wires a driver to an existing tab context and installs the
// mutation observer binding. The manager owns tab lifecycle.
func newDriver(tab context.Context, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		tab:    tab,
		logger: logger.Named("PageDriver"),
	}
	if err := chromedp.Run(tab,
		runtime.AddBinding(mutationBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(mutationObserverJS).Do(ctx)
			return err
		}),
		chromedp.Evaluate(mutationObserverJS, nil),
	); err != nil {
		return nil, fmt.Errorf("installing mutation observer: %w", err)
	}

	chromedp.ListenTarget(tab, func(ev any) {
		bc, ok := ev.(*runtime.EventBindingCalled)
		if !ok || bc.Name != mutationBinding {
			return
		}
		d.dispatchMutation(bc.Payload)
	})
	return d, nil
}

// run executes chromedp actions on the tab while honoring the caller's
// context: cancelling ctx aborts the in-flight protocol calls.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// evaluate runs script and decodes its JSON result into out.
func (d *Driver) evaluate(ctx context.Context, script string, out any) error {
	var raw json.RawMessage
	if err := d.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return fastjson.Unmarshal(raw, out)
}

// Scan implements schemas.PageDriver.
func (d *Driver) Scan(ctx context.Context) ([]schemas.ElementView, error) {
	var views []schemas.ElementView
	if err := d.evaluate(ctx, scanJS, &views); err != nil {
		return nil, fmt.Errorf("scanning candidate regions: %w", err)
	}
	d.logger.Debug("Scan complete", zap.Int("candidates", len(views)))
	return views, nil
}

// FindActions implements schemas.PageDriver.
func (d *Driver) FindActions(ctx context.Context, scope string) ([]schemas.ActionElement, error) {
	var actions []schemas.ActionElement
	script := fmt.Sprintf(findActionsJS, strconv.Quote(scope))
	if err := d.evaluate(ctx, script, &actions); err != nil {
		return nil, fmt.Errorf("collecting actions: %w", err)
	}
	return actions, nil
}

// Controls implements schemas.PageDriver.
func (d *Driver) Controls(ctx context.Context, scope string) ([]schemas.Control, error) {
	var controls []schemas.Control
	script := fmt.Sprintf(controlsJS, strconv.Quote(scope))
	if err := d.evaluate(ctx, script, &controls); err != nil {
		return nil, fmt.Errorf("collecting controls: %w", err)
	}
	return controls, nil
}

// Click implements schemas.PageDriver. The node must currently resolve;
// chromedp scrolls it into view before dispatching real mouse events.
func (d *Driver) Click(ctx context.Context, ref string) error {
	attached, err := d.Attached(ctx, ref)
	if err != nil {
		return err
	}
	if !attached {
		return fmt.Errorf("click %q: %w", ref, schemas.ErrNodeDetached)
	}
	if err := d.run(ctx, chromedp.Click(ref, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", ref, err)
	}
	return nil
}

// SetChecked implements schemas.PageDriver.
func (d *Driver) SetChecked(ctx context.Context, ref string, checked bool) error {
	var ok bool
	script := fmt.Sprintf(setCheckedJS, strconv.Quote(ref), checked)
	if err := d.evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("set checked %q: %w", ref, err)
	}
	if !ok {
		return fmt.Errorf("set checked %q: %w", ref, schemas.ErrActionIneffective)
	}
	return nil
}

// SelectOption implements schemas.PageDriver.
func (d *Driver) SelectOption(ctx context.Context, ref string, value string) error {
	var ok bool
	script := fmt.Sprintf(selectOptionJS, strconv.Quote(ref), strconv.Quote(value))
	if err := d.evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("select option on %q: %w", ref, err)
	}
	if !ok {
		return fmt.Errorf("select option on %q: no matching option %q", ref, value)
	}
	return nil
}

// Visible implements schemas.PageDriver.
func (d *Driver) Visible(ctx context.Context, ref string) (bool, error) {
	var visible bool
	script := fmt.Sprintf(visibleJS, strconv.Quote(ref))
	if err := d.evaluate(ctx, script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// Attached implements schemas.PageDriver.
func (d *Driver) Attached(ctx context.Context, ref string) (bool, error) {
	var attached bool
	script := fmt.Sprintf(attachedJS, strconv.Quote(ref))
	if err := d.evaluate(ctx, script, &attached); err != nil {
		return false, err
	}
	return attached, nil
}

// Page implements schemas.PageDriver.
func (d *Driver) Page(ctx context.Context) (schemas.PageContext, error) {
	var pc schemas.PageContext
	if err := d.evaluate(ctx, pageContextJS, &pc); err != nil {
		return schemas.PageContext{}, fmt.Errorf("summarizing page: %w", err)
	}
	return pc, nil
}

// Mutations implements schemas.MutationSource. The channel closes when ctx
// ends or the tab is torn down.
func (d *Driver) Mutations(ctx context.Context) (<-chan schemas.MutationEvent, error) {
	ch := make(chan schemas.MutationEvent, 16)

	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-d.tab.Done():
		}
		d.mu.Lock()
		for i, sub := range d.subs {
			if sub == ch {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				break
			}
		}
		d.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// dispatchMutation fans a binding payload out to subscribers. Slow consumers
// drop events rather than stall the CDP listener.
func (d *Driver) dispatchMutation(payload string) {
	var hints []string
	if err := fastjson.UnmarshalFromString(payload, &hints); err != nil {
		d.logger.Debug("Malformed mutation payload", zap.Error(err))
		return
	}
	ev := schemas.MutationEvent{At: timeNow(), AddedHint: hints}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}
