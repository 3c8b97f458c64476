package selector

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hazyhaar/drover/page"
)

// handler is the find-one/find-many contract each grammar implements.
// findOne returns (nil, nil) on zero matches; the Engine owns the
// decision that zero matches is an error.
type handler interface {
	findOne(ctx context.Context, p page.Page, value string) (page.Element, error)
	findAll(ctx context.Context, p page.Page, value string) ([]page.Element, error)
}

// handlers is indexed by Type. The array length pins it to the closed
// enum: a new Type without an entry fails to compile.
var handlers = [numTypes]handler{
	TypeCSS:   cssHandler{},
	TypeXPath: xpathHandler{},
	TypeID:    idHandler{},
	TypeName:  nameHandler{},
	TypeClass: classHandler{},
}

// Engine parses selector strings and routes them to the matching
// grammar handler against one page.
type Engine struct {
	page   page.Page
	logger *slog.Logger
}

// NewEngine binds an Engine to a page. A nil logger falls back to
// slog.Default().
func NewEngine(p page.Page, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{page: p, logger: logger}
}

// FindElement resolves raw to exactly one element: the first match in
// DOM order. Zero matches is *NotFoundError, never a nil element.
func (e *Engine) FindElement(ctx context.Context, raw string) (page.Element, error) {
	spec, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	el, err := handlers[spec.Type].findOne(ctx, e.page, spec.Value)
	if err != nil {
		return nil, e.wrap(raw, err)
	}
	if el == nil {
		e.logger.Debug("selector: no match", "selector", raw, "type", spec.Type.String())
		return nil, &NotFoundError{Selector: raw}
	}
	return el, nil
}

// FindElements resolves raw to all matches in DOM order. An empty match
// set is *NotFoundError; a successful return always holds at least one
// element.
func (e *Engine) FindElements(ctx context.Context, raw string) ([]page.Element, error) {
	spec, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	els, err := handlers[spec.Type].findAll(ctx, e.page, spec.Value)
	if err != nil {
		return nil, e.wrap(raw, err)
	}
	if len(els) == 0 {
		e.logger.Debug("selector: no matches", "selector", raw, "type", spec.Type.String())
		return nil, &NotFoundError{Selector: raw}
	}
	return els, nil
}

// wrap keeps typed selector errors intact and folds everything else
// into a LookupError chained to the original cause.
func (e *Engine) wrap(raw string, err error) error {
	var inv *InvalidError
	var nf *NotFoundError
	if errors.As(err, &inv) || errors.As(err, &nf) {
		return err
	}
	e.logger.Warn("selector: lookup failed", "selector", raw, "error", err)
	return &LookupError{Selector: raw, Err: err}
}

type cssHandler struct{}

func (cssHandler) findOne(ctx context.Context, p page.Page, value string) (page.Element, error) {
	return p.QueryOne(ctx, value)
}

func (cssHandler) findAll(ctx context.Context, p page.Page, value string) ([]page.Element, error) {
	return p.QueryAll(ctx, value)
}

// xpathHandler requires an already-anchored expression. find-one takes
// the first entry of the ordered multi-match lookup rather than a
// dedicated single-element query.
type xpathHandler struct{}

func (h xpathHandler) findOne(ctx context.Context, p page.Page, value string) (page.Element, error) {
	els, err := h.findAll(ctx, p, value)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func (xpathHandler) findAll(ctx context.Context, p page.Page, value string) ([]page.Element, error) {
	if !strings.HasPrefix(value, "//") && !strings.HasPrefix(value, "(") {
		return nil, &InvalidError{Selector: value, Reason: "xpath must start with // or ("}
	}
	return p.QueryAllXPath(ctx, value)
}

type idHandler struct{}

func (idHandler) findOne(ctx context.Context, p page.Page, value string) (page.Element, error) {
	return p.QueryOne(ctx, Spec{Type: TypeID, Value: value}.Normalized())
}

func (idHandler) findAll(ctx context.Context, p page.Page, value string) ([]page.Element, error) {
	return p.QueryAll(ctx, Spec{Type: TypeID, Value: value}.Normalized())
}

type nameHandler struct{}

func (nameHandler) findOne(ctx context.Context, p page.Page, value string) (page.Element, error) {
	return p.QueryOne(ctx, Spec{Type: TypeName, Value: value}.Normalized())
}

func (nameHandler) findAll(ctx context.Context, p page.Page, value string) ([]page.Element, error) {
	return p.QueryAll(ctx, Spec{Type: TypeName, Value: value}.Normalized())
}

type classHandler struct{}

func (classHandler) findOne(ctx context.Context, p page.Page, value string) (page.Element, error) {
	return p.QueryOne(ctx, Spec{Type: TypeClass, Value: value}.Normalized())
}

func (classHandler) findAll(ctx context.Context, p page.Page, value string) ([]page.Element, error) {
	return p.QueryAll(ctx, Spec{Type: TypeClass, Value: value}.Normalized())
}
