package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultCaption is stored when no caption could be read
	DefaultCaption = "Sem descrição disponível"
	// MaxCaptionLength is the stored caption cap, ellipsis included
	MaxCaptionLength = 2000
)

// Step reads one candidate value from a parsed page
type Step func(doc *goquery.Document) (string, bool)

// CaptionSteps are tried in order against the post page
var CaptionSteps = []Step{
	metaDescription,
	mediaAlt,
	articleHeading,
	autoDirSpan,
	longestSpan,
}

// BackupSteps run after the embedded-data script found nothing
var BackupSteps = []Step{
	genericCaption,
}

// UI chrome that must not be mistaken for a caption, in both languages
var chromeTokens = []string{"curtir", "comment", "compartilhar", "like", "share"}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// First returns the first value any step produces
func First(doc *goquery.Document, steps []Step) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, step := range steps {
		if v, ok := step(doc); ok {
			return v, true
		}
	}
	return "", false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func metaDescription(doc *goquery.Document) (string, bool) {
	content, ok := doc.Find("meta[property='og:description']").First().Attr("content")
	if !ok || runeLen(content) <= 5 {
		return "", false
	}
	return content, true
}

func mediaAlt(doc *goquery.Document) (string, bool) {
	alt, ok := doc.Find("article img[alt]").First().Attr("alt")
	if !ok || runeLen(alt) <= 5 {
		return "", false
	}
	lower := strings.ToLower(alt)
	if strings.Contains(lower, "photo by") || strings.Contains(lower, "image may contain") {
		return "", false
	}
	return alt, true
}

func articleHeading(doc *goquery.Document) (string, bool) {
	text := strings.TrimSpace(doc.Find("article h1").First().Text())
	if runeLen(text) <= 5 {
		return "", false
	}
	return text, true
}

func autoDirSpan(doc *goquery.Document) (string, bool) {
	var found string
	doc.Find("article span[dir='auto']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if runeLen(text) > 10 && !digitsOnly.MatchString(text) {
			found = text
			return false
		}
		return true
	})
	return found, found != ""
}

func longestSpan(doc *goquery.Document) (string, bool) {
	var longest string
	doc.Find("article span").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if runeLen(text) <= 10 || runeLen(text) <= runeLen(longest) {
			return
		}
		lower := strings.ToLower(text)
		for _, tok := range chromeTokens {
			if strings.Contains(lower, tok) {
				return
			}
		}
		longest = text
	})
	return longest, longest != ""
}

var genericSelectors = []string{
	"article img[alt]",
	"[data-testid='post-caption']",
	"article h1",
	"span[dir='auto']",
	"article span:not([class*='icon'])",
	"figure + div span",
	"h2 + div span",
}

func genericCaption(doc *goquery.Document) (string, bool) {
	for _, css := range genericSelectors {
		var found string
		doc.Find(css).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text, ok := sel.Attr("alt")
			if !ok {
				text = sel.Text()
			}
			text = strings.TrimSpace(text)
			lower := strings.ToLower(text)
			if runeLen(text) > 10 &&
				!strings.Contains(lower, "instagram") &&
				!strings.Contains(lower, "photo") &&
				!strings.Contains(lower, "image") {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\t`, " ", `\"`, `"`)

// CleanCaption trims and de-escapes raw caption text and caps it at
// MaxCaptionLength runes. Blank input yields DefaultCaption.
func CleanCaption(raw string) string {
	caption := unescaper.Replace(strings.TrimSpace(raw))
	if caption == "" {
		return DefaultCaption
	}
	if runes := []rune(caption); len(runes) > MaxCaptionLength {
		caption = string(runes[:MaxCaptionLength-3]) + "..."
	}
	return caption
}

// MediaURL reads the og:image of a post page
func MediaURL(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	content, _ := doc.Find("meta[property='og:image']").First().Attr("content")
	return strings.TrimSpace(content)
}
