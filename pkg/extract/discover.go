package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"igharvest/pkg/browser"
	"igharvest/pkg/logger"
)

// Strategy names reported to observers
const (
	StrategyDOM     = "dom"
	StrategyScript  = "script"
	StrategyPattern = "pattern"
)

// scriptCap bounds how many anchors the in-page script returns
const scriptCap = 20

var anchorSelectors = []string{
	"a[href*='/p/']",
	"a[href*='/reel/']",
	"[data-testid='post'] a",
	"article a[href*='/p/']",
	"div[style*='post'] a",
}

const anchorScript = `(() => {
	const links = [];
	const anchors = document.querySelectorAll('a[href*="/p/"], a[href*="/reel/"]');
	for (let i = 0; i < anchors.length && i < 20; i++) {
		if (anchors[i].href) links.push(anchors[i].href);
	}
	return links;
})()`

// Observer is told how many new URLs each strategy contributed
type Observer func(strategy string, added int)

// Chain discovers candidate post URLs with three escalating strategies:
// a DOM query, an in-page script and a regex over the rendered markup.
type Chain struct {
	base     *url.URL
	limit    int
	script   bool
	pattern  bool
	patterns []*regexp.Regexp
	observe  Observer
	log      logger.Logger
}

// ChainOption configures a Chain
type ChainOption func(*Chain)

// WithScriptStrategy toggles the in-page script tier
func WithScriptStrategy(enabled bool) ChainOption {
	return func(c *Chain) { c.script = enabled }
}

// WithPatternStrategy toggles the markup regex tier
func WithPatternStrategy(enabled bool) ChainOption {
	return func(c *Chain) { c.pattern = enabled }
}

// WithObserver registers a per-strategy callback
func WithObserver(o Observer) ChainOption {
	return func(c *Chain) { c.observe = o }
}

// WithChainLogger sets the logger
func WithChainLogger(l logger.Logger) ChainOption {
	return func(c *Chain) { c.log = l }
}

// NewChain creates a chain that stops collecting at twice batchTarget.
// Relative links are resolved against baseURL.
func NewChain(baseURL string, batchTarget int, opts ...ChainOption) *Chain {
	if batchTarget <= 0 {
		batchTarget = 1
	}
	c := &Chain{
		limit:   batchTarget * 2,
		script:  true,
		pattern: true,
		log:     logger.NewNopLogger(),
	}
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		c.base = u
	}
	c.patterns = markupPatterns(c.base)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Limit is the maximum number of candidates Discover returns
func (c *Chain) Limit() int {
	return c.limit
}

func markupPatterns(base *url.URL) []*regexp.Regexp {
	host := "https://www.instagram.com"
	if base != nil {
		host = base.Scheme + "://" + base.Host
	}
	quoted := regexp.QuoteMeta(host)
	return []*regexp.Regexp{
		regexp.MustCompile(quoted + `/p/[A-Za-z0-9_-]+/`),
		regexp.MustCompile(quoted + `/reel/[A-Za-z0-9_-]+/`),
		regexp.MustCompile(`"/p/[A-Za-z0-9_-]+/"`),
		regexp.MustCompile(`"/reel/[A-Za-z0-9_-]+/"`),
	}
}

// candidates is an insertion-ordered set of normalized URLs
type candidates struct {
	seen  map[string]bool
	urls  []string
	limit int
}

func (cs *candidates) full() bool {
	return len(cs.urls) >= cs.limit
}

func (cs *candidates) add(u string) bool {
	if cs.full() || u == "" {
		return false
	}
	u = Normalize(u)
	if cs.seen[u] {
		return false
	}
	cs.seen[u] = true
	cs.urls = append(cs.urls, u)
	return true
}

// Discover returns normalized candidate URLs in discovery order. The DOM tier
// always runs; the script tier runs when nothing was found or attempt > 1;
// the pattern tier runs when still empty or attempt > 2. A failing tier is
// logged and never stops the others.
func (c *Chain) Discover(ctx context.Context, s browser.Session, attempt int) []string {
	set := &candidates{seen: map[string]bool{}, limit: c.limit}

	c.report(StrategyDOM, c.fromDOM(ctx, s, set))

	if c.script && (len(set.urls) == 0 || attempt > 1) && ctx.Err() == nil {
		c.report(StrategyScript, c.fromScript(ctx, s, set))
	}
	if c.pattern && (len(set.urls) == 0 || attempt > 2) && ctx.Err() == nil {
		c.report(StrategyPattern, c.fromMarkup(ctx, s, set))
	}

	c.log.InfoWithFields("Candidate discovery finished", map[string]interface{}{
		"attempt":    attempt,
		"candidates": len(set.urls),
	})
	return set.urls
}

func (c *Chain) report(strategy string, added int) {
	c.log.DebugWithFields("Discovery strategy finished", map[string]interface{}{
		"strategy": strategy,
		"added":    added,
	})
	if c.observe != nil {
		c.observe(strategy, added)
	}
}

func (c *Chain) fromDOM(ctx context.Context, s browser.Session, set *candidates) int {
	added := 0
	for _, sel := range anchorSelectors {
		if set.full() {
			break
		}
		elems, err := s.Query(ctx, sel)
		if err != nil {
			c.log.WithError(err).DebugWithFields("Anchor query failed", map[string]interface{}{"selector": sel})
			continue
		}
		for _, el := range elems {
			href := el.Attr("href")
			if !IsCandidate(href) {
				continue
			}
			if set.add(absolute(c.base, href)) {
				added++
			}
		}
	}
	return added
}

func (c *Chain) fromScript(ctx context.Context, s browser.Session, set *candidates) int {
	var links []string
	if err := s.Evaluate(ctx, anchorScript, &links); err != nil {
		c.log.WithError(err).Debug("Anchor script failed")
		return 0
	}
	if len(links) > scriptCap {
		links = links[:scriptCap]
	}
	added := 0
	for _, href := range links {
		if IsCandidate(href) && set.add(absolute(c.base, href)) {
			added++
		}
	}
	return added
}

func (c *Chain) fromMarkup(ctx context.Context, s browser.Session, set *candidates) int {
	markup, err := s.Markup(ctx)
	if err != nil {
		c.log.WithError(err).Debug("Markup read failed")
		return 0
	}
	added := 0
	for _, re := range c.patterns {
		for _, match := range re.FindAllString(markup, -1) {
			if set.full() {
				return added
			}
			if set.add(absolute(c.base, strings.Trim(match, `"`))) {
				added++
			}
		}
	}
	return added
}
