package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/drover/page"
)

// rodPage adapts a *rod.Page to the page.Page contract. Queries are
// non-waiting: a selector that matches nothing returns immediately
// instead of blocking on Chrome's retry loop.
type rodPage struct {
	page      *rod.Page
	browser   *rod.Browser
	contextID proto.BrowserBrowserContextID
	timeout   time.Duration
	logger    *slog.Logger
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	nctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rp := p.page.Context(nctx)
	if err := rp.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := rp.WaitLoad(); err != nil {
		// DOM is usually usable even when the load event never fires
		// (long-polling beacons, hung third-party scripts).
		p.logger.Warn("browser: load event not reached", "url", url, "error", err)
	}
	return nil
}

func (p *rodPage) QueryOne(ctx context.Context, sel string) (page.Element, error) {
	els, err := p.page.Context(ctx).Elements(sel)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", sel, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &rodElement{el: els.First()}, nil
}

func (p *rodPage) QueryAll(ctx context.Context, sel string) ([]page.Element, error) {
	els, err := p.page.Context(ctx).Elements(sel)
	if err != nil {
		return nil, fmt.Errorf("browser: query all %q: %w", sel, err)
	}
	return wrapElements(els), nil
}

func (p *rodPage) QueryAllXPath(ctx context.Context, expr string) ([]page.Element, error) {
	els, err := p.page.Context(ctx).ElementsX(expr)
	if err != nil {
		return nil, fmt.Errorf("browser: query xpath %q: %w", expr, err)
	}
	return wrapElements(els), nil
}

func (p *rodPage) CurrentURL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// Close releases the page and, when the page carried its own proxy
// context, the disposable browser context with it.
func (p *rodPage) Close() error {
	err := p.page.Close()
	if p.contextID != "" {
		derr := proto.TargetDisposeBrowserContext{BrowserContextID: p.contextID}.Call(p.browser)
		if derr != nil {
			p.logger.Warn("browser: dispose context failed", "error", derr)
		}
	}
	if err != nil {
		return fmt.Errorf("browser: close page: %w", err)
	}
	return nil
}

func wrapElements(els rod.Elements) []page.Element {
	out := make([]page.Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out
}

// rodElement adapts a *rod.Element to the page.Element contract.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// Fill replaces the element's current content instead of appending to
// it, so re-running a step is idempotent.
func (e *rodElement) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (e *rodElement) SelectOption(ctx context.Context, value string) error {
	return e.el.Context(ctx).Select([]string{value}, true, rod.SelectorTypeText)
}

// Check sets the checked property through the DOM and fires a change
// event. Clicking would toggle, which is wrong when the box is already
// checked.
func (e *rodElement) Check(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => {
		this.checked = true;
		this.dispatchEvent(new Event("change", { bubbles: true }));
	}`)
	return err
}

func (e *rodElement) WaitVisible(ctx context.Context) error {
	return e.el.Context(ctx).WaitVisible()
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	return e.el.Context(ctx).HTML()
}

// Attribute returns the attribute's value, or "" when the attribute is
// absent.
func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}
