// Package browsertest provides a scriptable in-memory browser.Session.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"igharvest/pkg/browser"
	errs "igharvest/pkg/errors"
)

// Page is what the fake serves for one URL
type Page struct {
	// RedirectTo replaces the current URL after navigation, e.g. a login wall
	RedirectTo string
	Markup     string
	Elements   map[string][]browser.Element
	// Eval answers Evaluate calls; a nil result leaves res untouched
	Eval func(script string) (interface{}, error)
	// OnClick runs after a click or Enter on the selector
	OnClick map[string]func(s *Session)
}

// Session is a fake browser tab. Unknown URLs render an empty page.
type Session struct {
	mu sync.Mutex

	Pages       map[string]*Page
	NavigateErr func(url string) error
	ID          browser.Identity

	url     string
	cookies []browser.Cookie
	calls   []string
	closed  bool
}

// NewSession creates a fake serving pages
func NewSession(pages map[string]*Page) *Session {
	if pages == nil {
		pages = map[string]*Page{}
	}
	return &Session{
		Pages: pages,
		ID:    browser.Identity{UserAgent: "fake-agent", Width: 1280, Height: 720},
	}
}

func (s *Session) record(format string, args ...interface{}) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *Session) page() *Page {
	if p, ok := s.Pages[s.url]; ok {
		return p
	}
	return &Page{}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.record("navigate:%s", url)
	if s.NavigateErr != nil {
		if err := s.NavigateErr(url); err != nil {
			return err
		}
	}
	s.url = url
	if p, ok := s.Pages[url]; ok && p.RedirectTo != "" {
		s.url = p.RedirectTo
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *Session) Markup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page().Markup, nil
}

func (s *Session) Query(ctx context.Context, selector string) ([]browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Element(nil), s.page().Elements[selector]...), nil
}

// WaitVisible never blocks; it fails with a timeout when nothing matches
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, el := range s.page().Elements[selector] {
		if el.Visible {
			return nil
		}
	}
	return errs.New(errs.ErrorTypeTimeout, "wait for %s", selector)
}

func (s *Session) interact(action, selector, extra string) error {
	s.mu.Lock()
	page := s.page()
	if len(page.Elements[selector]) == 0 {
		s.mu.Unlock()
		return errs.New(errs.ErrorTypeNotFound, "%s %s: no element", action, selector)
	}
	if extra != "" {
		s.record("%s:%s:%s", action, selector, extra)
	} else {
		s.record("%s:%s", action, selector)
	}
	s.mu.Unlock()

	if action == "click" || action == "enter" {
		if fn := page.OnClick[selector]; fn != nil {
			fn(s)
		}
	}
	return nil
}

// Goto moves the fake to url without recording a navigation
func (s *Session) Goto(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// SetPage replaces the page served for url
func (s *Session) SetPage(url string, p *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pages[url] = p
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.interact("click", selector, "")
}

func (s *Session) Hover(ctx context.Context, selector string) error {
	return s.interact("hover", selector, "")
}

func (s *Session) Clear(ctx context.Context, selector string) error {
	return s.interact("clear", selector, "")
}

func (s *Session) SendKeys(ctx context.Context, selector, keys string) error {
	return s.interact("keys", selector, keys)
}

func (s *Session) PressEnter(ctx context.Context, selector string) error {
	return s.interact("enter", selector, "")
}

func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	s.mu.Lock()
	eval := s.page().Eval
	s.mu.Unlock()
	if eval == nil {
		return nil
	}
	v, err := eval(script)
	if err != nil || v == nil || res == nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

func (s *Session) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Cookie(nil), s.cookies...), nil
}

func (s *Session) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = append(s.cookies, cookies...)
	return nil
}

func (s *Session) ClearCookies(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = nil
	return nil
}

func (s *Session) Identity() browser.Identity {
	return s.ID
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns the recorded navigation and input actions
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Factory hands out fake sessions and counts them
type Factory struct {
	mu sync.Mutex

	// Build returns the session for an attempt; returning an error fails Create
	Build func(attempt int) (*Session, error)

	sessions []*Session
}

func (f *Factory) Create(ctx context.Context, attempt int) (browser.Session, error) {
	s, err := f.Build(attempt)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Sessions returns every session created so far
func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}

// Visible builds a visible element with attributes given as key/value pairs
func Visible(text string, attrs ...string) browser.Element {
	el := browser.Element{Text: text, Visible: true, Attrs: map[string]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.Attrs[attrs[i]] = attrs[i+1]
	}
	return el
}
