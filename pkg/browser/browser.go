// Package browser defines the page-automation capability the scraper drives
// and a chromedp-backed implementation of it.
//
// Selectors are CSS unless they start with "//", in which case they are XPath.
package browser

import (
	"context"
	"strings"
	"time"
)

// Element is a snapshot of one matched DOM element
type Element struct {
	Tag     string            `json:"tag"`
	Text    string            `json:"text"`
	Attrs   map[string]string `json:"attrs"`
	Visible bool              `json:"visible"`
}

// Attr returns the named attribute or ""
func (e Element) Attr(name string) string {
	return e.Attrs[name]
}

// Cookie is a browser cookie. A zero Expires marks a session cookie.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// Session is one live browser tab. Implementations are not safe for
// concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Markup(ctx context.Context) (string, error)

	// Query returns every element matching selector without waiting
	Query(ctx context.Context, selector string) ([]Element, error)
	// WaitVisible blocks until selector matches a visible element or timeout elapses
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	Click(ctx context.Context, selector string) error
	Hover(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, keys string) error
	PressEnter(ctx context.Context, selector string) error

	// Evaluate runs script and decodes its result into res, which may be nil
	Evaluate(ctx context.Context, script string, res interface{}) error

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	ClearCookies(ctx context.Context) error

	Identity() Identity
	Close() error
}

// Factory builds a fresh session per attempt
type Factory interface {
	Create(ctx context.Context, attempt int) (Session, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, attempt int) (Session, error)

func (f FactoryFunc) Create(ctx context.Context, attempt int) (Session, error) { return f(ctx, attempt) }

// IsXPath reports whether selector is an XPath expression
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "(//")
}
