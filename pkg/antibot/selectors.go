package antibot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"igharvest/pkg/browser"
)

// button:contains('Log in'), div[role='button']:contains('Entrar'), [role='button']:contains('X')
var containsSelector = regexp.MustCompile(`^([a-z]*)(?:\[([a-z-]+)='([^']*)'\])?:contains\('([^']+)'\)$`)

// BrowserSelector converts a :contains selector to XPath; anything else is
// returned unchanged.
func BrowserSelector(sel string) string {
	m := containsSelector.FindStringSubmatch(sel)
	if m == nil {
		return sel
	}
	tag := m[1]
	if tag == "" {
		tag = "*"
	}
	var pred string
	if m[2] != "" {
		pred = fmt.Sprintf("[@%s='%s']", m[2], m[3])
	}
	return fmt.Sprintf("//%s%s[contains(text(), '%s')]", tag, pred, m[4])
}

// snapshot parses the current markup; a failure yields nil, which disables prefiltering
func snapshot(ctx context.Context, s browser.Session) *goquery.Document {
	markup, err := s.Markup(ctx)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	return doc
}

// present reports whether sel matches in doc. A nil doc matches everything.
func present(doc *goquery.Document, sel string) bool {
	if doc == nil {
		return true
	}
	return doc.Find(sel).Length() > 0
}

// firstVisible returns the browser form of the first selector that is in the
// markup and becomes visible within wait.
func firstVisible(ctx context.Context, s browser.Session, doc *goquery.Document, selectors []string, wait time.Duration) (string, bool) {
	for _, sel := range selectors {
		if ctx.Err() != nil {
			return "", false
		}
		if !present(doc, sel) {
			continue
		}
		target := BrowserSelector(sel)
		if err := s.WaitVisible(ctx, target, wait); err == nil {
			return target, true
		}
	}
	return "", false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
