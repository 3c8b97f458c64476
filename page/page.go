// Package page defines the contracts drover expects from a page-rendering
// target. The core packages (selector, action, workflow) consume these
// interfaces and never touch a concrete browser; the browser package
// provides the Rod-backed implementation.
package page

import "context"

// Options carries the identity bound to a freshly acquired page.
// An empty UserAgent keeps the browser default; an empty ProxyServer
// means a direct connection.
type Options struct {
	UserAgent   string
	ProxyServer string
	ProxyBypass string
}

// Browser hands out pages. Each page is exclusively owned by the caller
// until Close.
type Browser interface {
	NewPage(ctx context.Context, opts Options) (Page, error)
}

// Page is one browsing context. QueryOne returns (nil, nil) when nothing
// matches; zero matches is not an error at this layer. The selector
// engine decides what "not found" means.
type Page interface {
	Navigate(ctx context.Context, url string) error
	QueryOne(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	QueryAllXPath(ctx context.Context, expr string) ([]Element, error)
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// Element is a handle to one matched DOM node.
type Element interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	SelectOption(ctx context.Context, value string) error
	Check(ctx context.Context) error
	WaitVisible(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
}
