package selector_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/drover/page"
	"github.com/hazyhaar/drover/selector"
)

func TestParse_Prefixed(t *testing.T) {
	tests := []struct {
		raw       string
		wantType  selector.Type
		wantValue string
	}{
		{"css:#login > input[type=text]", selector.TypeCSS, "#login > input[type=text]"},
		{"css:.btn:hover", selector.TypeCSS, ".btn:hover"},
		{"xpath://div[@class='row']", selector.TypeXPath, "//div[@class='row']"},
		{"xpath:(//a[@href])[1]", selector.TypeXPath, "(//a[@href])[1]"},
		{"id:login", selector.TypeID, "login"},
		{"name:username", selector.TypeName, "username"},
		{"class:btn-primary", selector.TypeClass, "btn-primary"},
	}
	for _, tt := range tests {
		spec, err := selector.Parse(tt.raw)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.raw, err)
			continue
		}
		if spec.Type != tt.wantType || spec.Value != tt.wantValue {
			t.Errorf("Parse(%q) = (%v, %q), want (%v, %q)",
				tt.raw, spec.Type, spec.Value, tt.wantType, tt.wantValue)
		}
	}
}

func TestParse_Shorthand(t *testing.T) {
	tests := []struct {
		raw       string
		wantType  selector.Type
		wantValue string
	}{
		{"#submit", selector.TypeID, "submit"},
		{".container", selector.TypeClass, "container"},
		{`[name="q"]`, selector.TypeName, "q"},
		{"div.row", selector.TypeCSS, "div.row"},
		{"input", selector.TypeCSS, "input"},
	}
	for _, tt := range tests {
		spec, err := selector.Parse(tt.raw)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.raw, err)
			continue
		}
		if spec.Type != tt.wantType || spec.Value != tt.wantValue {
			t.Errorf("Parse(%q) = (%v, %q), want (%v, %q)",
				tt.raw, spec.Type, spec.Value, tt.wantType, tt.wantValue)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	raws := []string{
		"",
		"css:",
		"xpath:",
		"id:",
		"name:",
		"class:",
		"css:plainword",           // no css construct
		"css:div[unbalanced",      // bracket mismatch
		"xpath:div[@id='x']",      // missing // or ( anchor
		"xpath://div",             // no predicate construct
		"xpath://div[@a][",        // bracket mismatch
		"unsupported:x",           // unknown prefix
		"data-test:value",         // unknown prefix, valid css remainder
		"#",
		".",
	}
	for _, raw := range raws {
		_, err := selector.Parse(raw)
		var inv *selector.InvalidError
		if !errors.As(err, &inv) {
			t.Errorf("Parse(%q): got %v, want *InvalidError", raw, err)
		}
	}
}

func TestParse_IDNormalizationAgreement(t *testing.T) {
	a, err := selector.Parse("#foo")
	if err != nil {
		t.Fatal(err)
	}
	b, err := selector.Parse("id:foo")
	if err != nil {
		t.Fatal(err)
	}
	if a.Normalized() != "#foo" || b.Normalized() != "#foo" {
		t.Fatalf("normalized values differ: %q vs %q", a.Normalized(), b.Normalized())
	}
}

func TestSpec_Normalized(t *testing.T) {
	tests := []struct {
		spec selector.Spec
		want string
	}{
		{selector.Spec{Type: selector.TypeID, Value: "foo"}, "#foo"},
		{selector.Spec{Type: selector.TypeID, Value: "#foo"}, "#foo"},
		{selector.Spec{Type: selector.TypeClass, Value: "bar"}, ".bar"},
		{selector.Spec{Type: selector.TypeName, Value: "q"}, `[name="q"]`},
		{selector.Spec{Type: selector.TypeCSS, Value: "div > a"}, "div > a"},
		{selector.Spec{Type: selector.TypeXPath, Value: "//a[@id]"}, "//a[@id]"},
	}
	for _, tt := range tests {
		if got := tt.spec.Normalized(); got != tt.want {
			t.Errorf("Normalized(%v, %q) = %q, want %q", tt.spec.Type, tt.spec.Value, got, tt.want)
		}
	}
}

// fakePage serves canned elements keyed by the normalized selector the
// engine is expected to produce.
type fakePage struct {
	css   map[string][]page.Element
	xpath map[string][]page.Element
	err   error
}

func (f *fakePage) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakePage) CurrentURL(ctx context.Context) (string, error) { return "", nil }
func (f *fakePage) Close() error                                   { return nil }

func (f *fakePage) QueryOne(ctx context.Context, sel string) (page.Element, error) {
	if f.err != nil {
		return nil, f.err
	}
	els := f.css[sel]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (f *fakePage) QueryAll(ctx context.Context, sel string) ([]page.Element, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.css[sel], nil
}

func (f *fakePage) QueryAllXPath(ctx context.Context, expr string) ([]page.Element, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.xpath[expr], nil
}

type fakeElement struct{ id string }

func (e *fakeElement) Click(ctx context.Context) error                  { return nil }
func (e *fakeElement) Fill(ctx context.Context, v string) error         { return nil }
func (e *fakeElement) SelectOption(ctx context.Context, v string) error { return nil }
func (e *fakeElement) Check(ctx context.Context) error                  { return nil }
func (e *fakeElement) WaitVisible(ctx context.Context) error            { return nil }
func (e *fakeElement) Text(ctx context.Context) (string, error)         { return e.id, nil }
func (e *fakeElement) HTML(ctx context.Context) (string, error)         { return "<div></div>", nil }

func (e *fakeElement) Attribute(ctx context.Context, n string) (string, error) { return "", nil }

func TestEngine_FindElementByName(t *testing.T) {
	p := &fakePage{css: map[string][]page.Element{
		`[name="q"]`: {&fakeElement{id: "search"}},
	}}
	eng := selector.NewEngine(p, nil)

	el, err := eng.FindElement(context.Background(), "name:q")
	if err != nil {
		t.Fatalf("FindElement(name:q): %v", err)
	}
	if el == nil {
		t.Fatal("FindElement(name:q): nil element on success")
	}

	_, err = eng.FindElement(context.Background(), "name:missing")
	var nf *selector.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("FindElement(name:missing): got %v, want *NotFoundError", err)
	}
	if !strings.Contains(err.Error(), "name:missing") {
		t.Fatalf("NotFoundError message %q does not contain the raw selector", err.Error())
	}
}

func TestEngine_FindElementsNeverEmpty(t *testing.T) {
	p := &fakePage{css: map[string][]page.Element{
		".row": {&fakeElement{id: "a"}, &fakeElement{id: "b"}},
	}}
	eng := selector.NewEngine(p, nil)

	els, err := eng.FindElements(context.Background(), ".row")
	if err != nil {
		t.Fatalf("FindElements(.row): %v", err)
	}
	if len(els) != 2 {
		t.Fatalf("FindElements(.row): got %d elements, want 2", len(els))
	}

	_, err = eng.FindElements(context.Background(), ".absent")
	var nf *selector.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("FindElements(.absent): got %v, want *NotFoundError", err)
	}
}

func TestEngine_XPathFirstMatch(t *testing.T) {
	first := &fakeElement{id: "first"}
	p := &fakePage{xpath: map[string][]page.Element{
		"//a[@href]": {first, &fakeElement{id: "second"}},
	}}
	eng := selector.NewEngine(p, nil)

	el, err := eng.FindElement(context.Background(), "xpath://a[@href]")
	if err != nil {
		t.Fatal(err)
	}
	if el != first {
		t.Fatal("xpath find-one did not return the first ordered match")
	}
}

func TestEngine_WrapsUnexpectedPageErrors(t *testing.T) {
	cause := errors.New("websocket: connection reset")
	eng := selector.NewEngine(&fakePage{err: cause}, nil)

	_, err := eng.FindElement(context.Background(), "#boom")
	var le *selector.LookupError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want *LookupError", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("LookupError does not chain the original cause")
	}
	if !strings.Contains(err.Error(), "#boom") {
		t.Fatalf("LookupError message %q does not carry the selector", err.Error())
	}
}

func TestEngine_InvalidSelectorPassesThrough(t *testing.T) {
	eng := selector.NewEngine(&fakePage{}, nil)
	_, err := eng.FindElement(context.Background(), "unsupported:x")
	var inv *selector.InvalidError
	if !errors.As(err, &inv) {
		t.Fatalf("got %v, want *InvalidError", err)
	}
}
