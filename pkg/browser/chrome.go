package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"igharvest/pkg/config"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

const webdriverMask = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// findAll resolves CSS or XPath selectors to an element array inside the page
const findAll = `const findAll = (sel) => {
	if (sel.startsWith("//") || sel.startsWith("(//")) {
		const snap = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		const out = [];
		for (let i = 0; i < snap.snapshotLength; i++) out.push(snap.snapshotItem(i));
		return out;
	}
	return Array.from(document.querySelectorAll(sel));
};`

const querySnapshot = `(() => {
	%s
	return findAll(%s).map((el) => {
		const attrs = {};
		for (const a of el.attributes || []) attrs[a.name] = a.value;
		return {
			tag: (el.tagName || "").toLowerCase(),
			text: (el.innerText || el.textContent || "").trim(),
			attrs: attrs,
			visible: !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length),
		};
	});
})()`

const hoverFirst = `(() => {
	%s
	const el = findAll(%s)[0];
	if (!el) return false;
	el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
	return true;
})()`

// ChromeFactory launches one headless Chrome per session
type ChromeFactory struct {
	cfg        config.BrowserConfig
	identities *IdentityPool
	proxies    ProxySource
	log        logger.Logger
}

// NewChromeFactory builds a factory; proxies may be nil
func NewChromeFactory(cfg config.BrowserConfig, proxies ProxySource, log logger.Logger) (*ChromeFactory, error) {
	identities, err := NewIdentityPool(cfg.UserAgents, cfg.Viewports, nil)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &ChromeFactory{
		cfg:        cfg,
		identities: identities,
		proxies:    proxies,
		log:        log,
	}, nil
}

// Flags returns the command-line switches for a browser with identity and
// optional proxy. A false value removes the switch.
func (f *ChromeFactory) Flags(identity Identity, proxy *ProxyConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                 f.cfg.Headless,
		"no-sandbox":               true,
		"disable-dev-shm-usage":    true,
		"disable-blink-features":   "AutomationControlled",
		"disable-extensions":       true,
		"disable-plugins":          true,
		"disable-gpu":              true,
		"enable-automation":        false,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"disable-notifications":    true,
		"disable-features":         "VizDisplayCompositor",
		"user-agent":               identity.UserAgent,
		"window-size":              fmt.Sprintf("%d,%d", identity.Width, identity.Height),
	}
	if f.cfg.Locale != "" {
		flags["lang"] = f.cfg.Locale
	}
	if proxy != nil {
		flags["proxy-server"] = proxy.Server()
		flags["proxy-bypass-list"] = "<-loopback>"
	}
	return flags
}

// Create launches a browser, masks the webdriver flag and returns the tab
func (f *ChromeFactory) Create(ctx context.Context, attempt int) (Session, error) {
	identity := f.identities.Next()

	var proxy *ProxyConfig
	if f.proxies != nil {
		if p, ok := f.proxies.Next(); ok {
			proxy = &p
		}
	}

	opts := make([]chromedp.ExecAllocatorOption, 0, 20)
	for name, value := range f.Flags(identity, proxy) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}

	log := f.log.WithFields(map[string]interface{}{
		"attempt":    attempt,
		"user_agent": identity.UserAgent,
		"viewport":   identity.Viewport(),
	})
	if proxy != nil {
		log = log.WithField("proxy", proxy.String())
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			log.Debug(fmt.Sprintf(format, args...))
		}),
	)

	s := &chromeSession{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		identity:    identity,
		pageLoad:    f.cfg.PageLoadTimeout,
		elementWait: f.cfg.ElementWait,
	}

	setup := chromedp.Tasks{
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(webdriverMask).Do(c)
			return err
		}),
	}
	if proxy != nil && proxy.HasAuth() {
		listenProxyAuth(tabCtx, *proxy)
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}

	if err := chromedp.Run(tabCtx, setup); err != nil {
		s.Close()
		return nil, errs.Wrap(errs.ErrorTypeSession, err, "failed to start browser")
	}

	log.Info("Browser session created")
	return s, nil
}

// listenProxyAuth answers proxy credential challenges and releases paused requests
func listenProxyAuth(ctx context.Context, proxy ProxyConfig) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				_ = chromedp.Run(ctx, fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				}))
			}()
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(ctx, fetch.ContinueRequest(ev.RequestID))
			}()
		}
	})
}

type chromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	identity    Identity
	pageLoad    time.Duration
	elementWait time.Duration

	closeOnce sync.Once
}

// run executes actions in the tab bounded by timeout and the caller's ctx
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func classify(t errs.ErrorType, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrorTypeTimeout, err, format, args...)
	}
	return errs.Wrap(t, err, format, args...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return classify(errs.ErrorTypeNavigation, s.run(ctx, s.pageLoad, chromedp.Navigate(url)), "navigate to %s", url)
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, s.pageLoad, chromedp.Location(&loc))
	return loc, classify(errs.ErrorTypeNavigation, err, "read location")
}

func (s *chromeSession) Markup(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.pageLoad, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, classify(errs.ErrorTypeNavigation, err, "read markup")
}

func (s *chromeSession) Query(ctx context.Context, selector string) ([]Element, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var out []Element
	err = s.run(ctx, s.elementWait, chromedp.Evaluate(fmt.Sprintf(querySnapshot, findAll, sel), &out))
	return out, classify(errs.ErrorTypeExtraction, err, "query %s", selector)
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.BySearch))
	return classify(errs.ErrorTypeTimeout, err, "wait for %s", selector)
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	err := s.run(ctx, s.elementWait, chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible))
	return classify(errs.ErrorTypeNavigation, err, "click %s", selector)
}

func (s *chromeSession) Hover(ctx context.Context, selector string) error {
	sel, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	var found bool
	if err := s.run(ctx, s.elementWait, chromedp.Evaluate(fmt.Sprintf(hoverFirst, findAll, sel), &found)); err != nil {
		return classify(errs.ErrorTypeNavigation, err, "hover %s", selector)
	}
	if !found {
		return errs.New(errs.ErrorTypeNotFound, "hover %s: no element", selector)
	}
	return nil
}

func (s *chromeSession) Clear(ctx context.Context, selector string) error {
	err := s.run(ctx, s.elementWait, chromedp.Clear(selector, chromedp.BySearch))
	return classify(errs.ErrorTypeNavigation, err, "clear %s", selector)
}

func (s *chromeSession) SendKeys(ctx context.Context, selector, keys string) error {
	err := s.run(ctx, s.elementWait, chromedp.SendKeys(selector, keys, chromedp.BySearch))
	return classify(errs.ErrorTypeNavigation, err, "type into %s", selector)
}

func (s *chromeSession) PressEnter(ctx context.Context, selector string) error {
	return s.SendKeys(ctx, selector, kb.Enter)
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, res interface{}) error {
	err := s.run(ctx, s.pageLoad, chromedp.Evaluate(script, res))
	return classify(errs.ErrorTypeExtraction, err, "evaluate script")
}

func (s *chromeSession) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, s.elementWait, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, classify(errs.ErrorTypeSession, err, "read cookies")
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite.String(),
		}
		if !c.Session && c.Expires > 0 {
			sec := int64(c.Expires)
			cookie.Expires = time.Unix(sec, int64((c.Expires-float64(sec))*1e9))
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (s *chromeSession) SetCookies(ctx context.Context, cookies []Cookie) error {
	actions := make([]chromedp.Action, 0, len(cookies))
	for _, c := range cookies {
		params := network.SetCookie(c.Name, c.Value).
			WithDomain(c.Domain).
			WithPath(c.Path).
			WithSecure(c.Secure).
			WithHTTPOnly(c.HTTPOnly)
		if c.SameSite != "" {
			params = params.WithSameSite(network.CookieSameSite(c.SameSite))
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires)
			params = params.WithExpires(&exp)
		}
		actions = append(actions, params)
	}
	return classify(errs.ErrorTypeSession, s.run(ctx, s.elementWait, actions...), "set cookies")
}

func (s *chromeSession) ClearCookies(ctx context.Context) error {
	return classify(errs.ErrorTypeSession, s.run(ctx, s.elementWait, network.ClearBrowserCookies()), "clear cookies")
}

func (s *chromeSession) Identity() Identity {
	return s.identity
}

// Close shuts the browser down; safe to call more than once
func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
