package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/hazyhaar/drover/cloak"
	"github.com/hazyhaar/drover/page"
	"github.com/hazyhaar/drover/selector"
)

// Config configures an Executor.
type Config struct {
	// Browser hands out pages for runs that do not bring their own.
	Browser page.Browser

	// Policy paces network-facing work and rotates identities. Nil
	// disables both.
	Policy *cloak.Policy

	// DisableGate skips the pacing gate while keeping identity
	// rotation. Meant for tests and replay against local fixtures.
	DisableGate bool

	Logger *slog.Logger
}

// Executor dispatches Descriptors against pages. One Executor serves
// any number of concurrent runs; each run owns its page exclusively.
type Executor struct {
	browser page.Browser
	policy  *cloak.Policy
	gate    bool
	logger  *slog.Logger
	md      *converter.Converter
}

// NewExecutor creates an Executor from cfg.
func NewExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		browser: cfg.Browser,
		policy:  cfg.Policy,
		gate:    cfg.Policy != nil && !cfg.DisableGate,
		logger:  cfg.Logger,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// ExecuteAction runs one descriptor against p. A nil p makes the
// executor acquire a page of its own, bind a freshly rotated identity
// to it, and release it before returning. Every failure, from invalid
// selectors to page faults to unknown verbs, is folded into the
// returned Result; ExecuteAction never returns a Go error.
func (e *Executor) ExecuteAction(ctx context.Context, desc Descriptor, p page.Page) Result {
	// The gate comes before everything else, including the first
	// action of a run.
	if e.gate {
		e.policy.Gate()
	}

	if p == nil {
		acquired, err := e.acquirePage(ctx)
		if err != nil {
			return failure(fmt.Errorf("action: acquire page: %w", err))
		}
		defer acquired.Close()
		p = acquired
	}

	result := e.dispatch(ctx, desc, p)
	if !result.OK() {
		e.logger.Warn("action: failed", "verb", desc.Verb, "selector", desc.Selector, "error", result.Message)
	} else {
		e.logger.Debug("action: done", "verb", desc.Verb, "selector", desc.Selector)
	}
	return result
}

// ExecuteWorkflow runs descriptors strictly in order on one page,
// stopping at the first error result. The returned ledger holds every
// executed action up to and including the first failure. The page is
// acquired once and released exactly once on every exit path; an empty
// descriptor list returns an empty ledger without touching the browser.
func (e *Executor) ExecuteWorkflow(ctx context.Context, descs []Descriptor) (results []Result) {
	// Named return: the recover defer below must reach the ledger the
	// caller sees.
	results = make([]Result, 0, len(descs))
	if len(descs) == 0 {
		return results
	}

	p, err := e.acquirePage(ctx)
	if err != nil {
		return append(results, failure(fmt.Errorf("action: acquire page: %w", err)))
	}
	defer p.Close()

	// The run must always come back as an ordered result list; a panic
	// escaping the loop becomes one final synthetic error result.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action: run panicked", "panic", r)
			results = append(results, failure(fmt.Errorf("action: run aborted: %v", r)))
		}
	}()

	for _, desc := range descs {
		result := e.ExecuteAction(ctx, desc, p)
		results = append(results, result)
		if !result.OK() {
			break
		}
	}
	return results
}

func (e *Executor) acquirePage(ctx context.Context) (page.Page, error) {
	var opts page.Options
	if e.policy != nil {
		id := e.policy.RandomIdentity()
		opts.UserAgent = id.UserAgent
		if id.Proxy != nil {
			opts.ProxyServer = id.Proxy.Server
			opts.ProxyBypass = id.Proxy.Bypass
		}
	}
	return e.browser.NewPage(ctx, opts)
}

func (e *Executor) dispatch(ctx context.Context, desc Descriptor, p page.Page) Result {
	eng := selector.NewEngine(p, e.logger)

	var el page.Element
	if desc.Verb.RequiresSelector() && desc.Verb != VerbExtractMultiple {
		found, err := eng.FindElement(ctx, desc.Selector)
		if err != nil {
			return failure(err)
		}
		el = found
	}

	switch desc.Verb {
	case VerbGoto:
		if err := p.Navigate(ctx, desc.Value); err != nil {
			return failure(fmt.Errorf("action: goto %s: %w", desc.Value, err))
		}
		r := success(fmt.Sprintf("navigated to %s", desc.Value))
		if url, err := p.CurrentURL(ctx); err == nil {
			r.URL = url
		}
		return r

	case VerbClick:
		if err := el.Click(ctx); err != nil {
			return failure(fmt.Errorf("action: click %s: %w", desc.Selector, err))
		}
		return success(fmt.Sprintf("clicked %s", desc.Selector))

	case VerbInput:
		if err := el.Fill(ctx, desc.Value); err != nil {
			return failure(fmt.Errorf("action: input on %s: %w", desc.Selector, err))
		}
		return success(fmt.Sprintf("filled %s", desc.Selector))

	case VerbSelect:
		if err := el.SelectOption(ctx, desc.Value); err != nil {
			return failure(fmt.Errorf("action: select %q on %s: %w", desc.Value, desc.Selector, err))
		}
		return success(fmt.Sprintf("selected %q on %s", desc.Value, desc.Selector))

	case VerbRadio, VerbCheckbox:
		if err := el.Check(ctx); err != nil {
			return failure(fmt.Errorf("action: check %s: %w", desc.Selector, err))
		}
		return success(fmt.Sprintf("checked %s", desc.Selector))

	case VerbWait:
		if err := el.WaitVisible(ctx); err != nil {
			return failure(fmt.Errorf("action: wait for %s: %w", desc.Selector, err))
		}
		return success(fmt.Sprintf("%s is visible", desc.Selector))

	case VerbExtractText:
		text, err := el.Text(ctx)
		if err != nil {
			return failure(fmt.Errorf("action: extract text from %s: %w", desc.Selector, err))
		}
		r := success(fmt.Sprintf("extracted text from %s", desc.Selector))
		r.Text = text
		return r

	case VerbExtractHTML:
		html, err := el.HTML(ctx)
		if err != nil {
			return failure(fmt.Errorf("action: extract html from %s: %w", desc.Selector, err))
		}
		r := success(fmt.Sprintf("extracted html from %s", desc.Selector))
		r.Text = html
		return r

	case VerbExtractAttribute:
		attr := desc.Attribute
		if attr == "" {
			attr = "value"
		}
		value, err := el.Attribute(ctx, attr)
		if err != nil {
			return failure(fmt.Errorf("action: extract attribute %q from %s: %w", attr, desc.Selector, err))
		}
		r := success(fmt.Sprintf("extracted attribute %q from %s", attr, desc.Selector))
		r.Text = value
		return r

	case VerbExtractURL:
		url, err := p.CurrentURL(ctx)
		if err != nil {
			return failure(fmt.Errorf("action: extract url: %w", err))
		}
		r := success("extracted current url")
		r.URL = url
		return r

	case VerbExtractMultiple:
		return e.extractMultiple(ctx, eng, desc)

	default:
		return failure(fmt.Errorf("action: unsupported verb %q", desc.Verb))
	}
}

func (e *Executor) extractMultiple(ctx context.Context, eng *selector.Engine, desc Descriptor) Result {
	els, err := eng.FindElements(ctx, desc.Selector)
	if err != nil {
		return failure(err)
	}

	kind := desc.ExtractType
	if kind == "" {
		kind = ExtractText
	}

	list := make([]string, 0, len(els))
	for _, el := range els {
		var content string
		var err error
		switch kind {
		case ExtractText:
			content, err = el.Text(ctx)
		case ExtractHTML:
			content, err = el.HTML(ctx)
		case ExtractAttribute:
			attr := desc.Attribute
			if attr == "" {
				attr = "value"
			}
			content, err = el.Attribute(ctx, attr)
		case ExtractMarkdown:
			var html string
			html, err = el.HTML(ctx)
			if err == nil {
				content, err = e.md.ConvertString(html)
			}
		default:
			return failure(fmt.Errorf("action: unknown extract type %q", kind))
		}
		if err != nil {
			return failure(fmt.Errorf("action: extract %s from %s: %w", kind, desc.Selector, err))
		}
		list = append(list, content)
	}

	r := success(fmt.Sprintf("extracted %d %s values from %s", len(list), kind, desc.Selector))
	r.List = list
	return r
}
