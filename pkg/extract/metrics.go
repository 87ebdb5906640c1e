package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"igharvest/pkg/models"
)

var (
	likeTokens    = []string{"like", "curtir", "curtida"}
	commentTokens = []string{"comment", "comentário"}
	viewTokens    = []string{"view", "visualiza"}
)

func hasToken(text string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// Metrics reads engagement counters from a post page: accessible labels
// first, then visible text when likes or comments are still zero, then the
// video:views meta tag when views are still zero.
func Metrics(doc *goquery.Document) models.EngagementMetrics {
	var m models.EngagementMetrics
	if doc == nil {
		return m
	}

	doc.Find("section button[aria-label], section span[aria-label]").Each(func(_ int, sel *goquery.Selection) {
		label := strings.ToLower(sel.AttrOr("aria-label", ""))
		if hasToken(label, likeTokens) {
			m.Likes = ParseCount(label)
		}
		if hasToken(label, commentTokens) {
			m.Comments = ParseCount(label)
		}
		if hasToken(label, viewTokens) {
			m.Views = ParseCount(label)
		}
	})

	if m.Likes == 0 || m.Comments == 0 {
		doc.Find("section span, section a").Each(func(_ int, sel *goquery.Selection) {
			text := strings.ToLower(sel.Text())
			n := ParseCount(text)
			if n == 0 {
				return
			}
			if hasToken(text, likeTokens) {
				m.Likes = n
			}
			if hasToken(text, commentTokens) {
				m.Comments = n
			}
			if hasToken(text, viewTokens) {
				m.Views = n
			}
		})
	}

	if m.Views == 0 {
		if content, ok := doc.Find("meta[property='video:views']").First().Attr("content"); ok {
			m.Views = ParseCount(content)
		}
	}
	return m
}

// ParseCount turns a human formatted number into an integer by keeping only
// its digits, so both "1,234" and "12.345" read as thousands. Text without
// digits, or too many of them, yields 0.
func ParseCount(text string) int64 {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
