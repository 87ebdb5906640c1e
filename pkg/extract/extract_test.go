package extract

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/browser"
	"igharvest/pkg/browser/browsertest"
	"igharvest/pkg/models"
	"igharvest/pkg/pacing"
)

const base = "https://www.instagram.com/"

type sleeps struct {
	delays []time.Duration
}

func (s *sleeps) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newPolicy() (*pacing.Policy, *sleeps) {
	rec := &sleeps{}
	return pacing.New(rec, pacing.WithRand(rand.New(rand.NewSource(11)))), rec
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func anchors(hrefs ...string) []browser.Element {
	out := make([]browser.Element, 0, len(hrefs))
	for _, h := range hrefs {
		out = append(out, browsertest.Visible("", "href", h))
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.instagram.com/p/abc/", "https://www.instagram.com/p/abc"},
		{"https://www.instagram.com/p/abc/?img_index=1", "https://www.instagram.com/p/abc"},
		{"https://www.instagram.com/p/abc?utm=x&y=z", "https://www.instagram.com/p/abc"},
		{"https://www.instagram.com/reel/xyz/#comments", "https://www.instagram.com/reel/xyz"},
		{"https://www.instagram.com/p/abc//", "https://www.instagram.com/p/abc"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "idempotent")
		})
	}

	assert.Equal(t,
		Normalize("https://www.instagram.com/p/abc/?a=1"),
		Normalize("https://www.instagram.com/p/abc/?b=2"))
}

func TestShortcodeAndKind(t *testing.T) {
	assert.Equal(t, "Cx1_a-B", Shortcode("https://www.instagram.com/p/Cx1_a-B"))
	assert.Equal(t, "R33l", Shortcode("https://www.instagram.com/reel/R33l/?x=1"))
	assert.Equal(t, models.KindPost, KindOf("https://www.instagram.com/p/abc"))
	assert.Equal(t, models.KindReel, KindOf("https://www.instagram.com/reel/abc"))
	assert.Equal(t, models.KindUnknown, KindOf("https://www.instagram.com/tv/abc"))

	odd := Shortcode("https://www.instagram.com/stories/demo")
	assert.NotEmpty(t, odd)
	assert.Equal(t, odd, Shortcode("https://www.instagram.com/stories/demo"), "stable fallback")

	long := Shortcode("https://www.instagram.com/p/" + strings.Repeat("a", 150))
	assert.Len(t, long, models.MaxExternalIDLength)
}

func TestDiscoverDOMOnlyOnFirstAttempt(t *testing.T) {
	s := browsertest.NewSession(map[string]*browsertest.Page{
		base + "demoacct/": {
			Elements: map[string][]browser.Element{
				"a[href*='/p/']":         anchors("/p/one/", "https://www.instagram.com/p/two/?img_index=1", "/explore/"),
				"article a[href*='/p/']": anchors("/p/one/"),
			},
			Eval: func(string) (interface{}, error) {
				return []string{base + "p/script/"}, nil
			},
			Markup: `"/p/pattern/"`,
		},
	})
	s.Goto(base + "demoacct/")

	var report []string
	chain := NewChain(base, 6, WithObserver(func(strategy string, added int) {
		report = append(report, strategy)
	}))

	got := chain.Discover(context.Background(), s, 1)
	want := []string{base + "p/one", base + "p/two"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Discover() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{StrategyDOM}, report)
}

func TestDiscoverEscalatesWithAttempts(t *testing.T) {
	page := &browsertest.Page{
		Elements: map[string][]browser.Element{
			"a[href*='/reel/']": anchors("/reel/dom/"),
		},
		Eval: func(string) (interface{}, error) {
			return []string{base + "p/script/", base + "reel/dom/?x=1"}, nil
		},
		Markup: `<a href="https://www.instagram.com/p/pattern/">x</a> {"url":"/reel/embedded/"}`,
	}
	s := browsertest.NewSession(map[string]*browsertest.Page{base + "demoacct/": page})
	s.Goto(base + "demoacct/")
	chain := NewChain(base, 6)

	second := chain.Discover(context.Background(), s, 2)
	if diff := cmp.Diff([]string{base + "reel/dom", base + "p/script"}, second); diff != "" {
		t.Errorf("attempt 2 mismatch (-want +got):\n%s", diff)
	}

	third := chain.Discover(context.Background(), s, 3)
	want := []string{base + "reel/dom", base + "p/script", base + "p/pattern", base + "reel/embedded"}
	if diff := cmp.Diff(want, third); diff != "" {
		t.Errorf("attempt 3 mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverFallsThroughWhenEmpty(t *testing.T) {
	page := &browsertest.Page{
		Eval: func(string) (interface{}, error) {
			return nil, errors.New("script blocked")
		},
		Markup: `<script>{"href":"/p/fromjson/"}</script>`,
	}
	s := browsertest.NewSession(map[string]*browsertest.Page{base + "demoacct/": page})
	s.Goto(base + "demoacct/")

	got := NewChain(base, 6).Discover(context.Background(), s, 1)
	assert.Equal(t, []string{base + "p/fromjson"}, got)

	off := NewChain(base, 6, WithScriptStrategy(false), WithPatternStrategy(false))
	assert.Empty(t, off.Discover(context.Background(), s, 3))
}

func TestDiscoverCapsAtTwiceBatch(t *testing.T) {
	var hrefs []string
	for i := 0; i < 10; i++ {
		hrefs = append(hrefs, "/p/item"+string(rune('a'+i))+"/")
	}
	s := browsertest.NewSession(map[string]*browsertest.Page{
		base + "demoacct/": {Elements: map[string][]browser.Element{"a[href*='/p/']": anchors(hrefs...)}},
	})
	s.Goto(base + "demoacct/")

	chain := NewChain(base, 2)
	got := chain.Discover(context.Background(), s, 3)
	assert.Len(t, got, 4)
	assert.Equal(t, 4, chain.Limit())
}

func TestCleanCaption(t *testing.T) {
	assert.Equal(t, DefaultCaption, CleanCaption("   "))
	assert.Equal(t, "line one\nline two \"quoted\" tab here",
		CleanCaption(`  line one\nline two \"quoted\"\ttab here `))

	long := strings.Repeat("é", 2500)
	got := CleanCaption(long)
	assert.Equal(t, MaxCaptionLength, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("é", 1997)+"...", got)

	exact := strings.Repeat("x", MaxCaptionLength)
	assert.Equal(t, exact, CleanCaption(exact))
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1,234 likes", 1234},
		{"12.345 comentários", 12345},
		{"no digits here", 0},
		{"", 0},
		{"99999999999999999999999 views", 0},
		{"7 comments", 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCount(tt.in), tt.in)
	}
}

func TestMetrics(t *testing.T) {
	t.Run("aria labels", func(t *testing.T) {
		doc := parse(t, `<section>
			<button aria-label="1,234 likes"></button>
			<span aria-label="56 comments"></span>
		</section>`)
		assert.Equal(t, models.EngagementMetrics{Likes: 1234, Comments: 56}, Metrics(doc))
	})

	t.Run("visible text and meta views", func(t *testing.T) {
		doc := parse(t, `<html><head><meta property="video:views" content="8.901"></head><body><section>
			<span>12.345 curtidas</span>
			<a>89 comentários</a>
		</section></body></html>`)
		assert.Equal(t, models.EngagementMetrics{Likes: 12345, Comments: 89, Views: 8901}, Metrics(doc))
	})

	t.Run("nothing to read", func(t *testing.T) {
		assert.Equal(t, models.EngagementMetrics{}, Metrics(parse(t, `<p>hello</p>`)))
		assert.Equal(t, models.EngagementMetrics{}, Metrics(nil))
	})
}

func TestCaptionSteps(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "meta description wins",
			html: `<head><meta property="og:description" content="Sunset at the beach"></head><article><h1>Another heading</h1></article>`,
			want: "Sunset at the beach",
		},
		{
			name: "alt text skips generated descriptions",
			html: `<article><img alt="Photo by demo on May 1"><h1>Heading caption</h1></article>`,
			want: "Heading caption",
		},
		{
			name: "media alt",
			html: `<article><img alt="Morning coffee ritual"></article>`,
			want: "Morning coffee ritual",
		},
		{
			name: "auto dir span ignores counters",
			html: `<article><span dir="auto">12345678901</span><span dir="auto">A proper caption text</span></article>`,
			want: "A proper caption text",
		},
		{
			name: "longest span without ui chrome",
			html: `<article><span>Like this post and share it</span><span>short</span><span>Hiking the northern ridge today</span></article>`,
			want: "Hiking the northern ridge today",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := First(parse(t, tt.html), CaptionSteps)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := First(parse(t, `<article><span>tiny</span></article>`), CaptionSteps)
	assert.False(t, ok)
}

func TestBackupStep(t *testing.T) {
	got, ok := First(parse(t, `<div data-testid="post-caption">Backup caption text</div>`), BackupSteps)
	require.True(t, ok)
	assert.Equal(t, "Backup caption text", got)

	_, ok = First(parse(t, `<div data-testid="post-caption">Instagram photo</div>`), BackupSteps)
	assert.False(t, ok)
}

func TestMediaURL(t *testing.T) {
	doc := parse(t, `<head><meta property="og:image" content=" https://cdn.example/img.jpg "></head>`)
	assert.Equal(t, "https://cdn.example/img.jpg", MediaURL(doc))
	assert.Empty(t, MediaURL(parse(t, `<p></p>`)))
}

func TestPostReaderRead(t *testing.T) {
	profile := base + "demoacct/"
	postURL := base + "p/abc"
	s := browsertest.NewSession(map[string]*browsertest.Page{
		postURL: {Markup: `<html><head>
			<meta property="og:description" content="Caption with \nescape">
			<meta property="og:image" content="https://cdn.example/abc.jpg">
			</head><body><section><button aria-label="42 likes"></button></section></body></html>`},
	})
	s.Goto(profile)
	policy, rec := newPolicy()

	reader := NewPostReader(policy, WithRenderWait(10, time.Second))
	post, err := reader.Read(context.Background(), s, postURL)
	require.NoError(t, err)

	assert.Equal(t, "Caption with \nescape", post.Caption)
	assert.True(t, post.Captioned)
	assert.Equal(t, "https://cdn.example/abc.jpg", post.MediaURL)
	assert.Equal(t, int64(42), post.Metrics.Likes)
	assert.Equal(t, []string{"navigate:" + postURL, "navigate:" + profile}, s.Calls())

	require.Len(t, rec.delays, 2)
	assert.GreaterOrEqual(t, rec.delays[0], 3*time.Second)
	assert.LessOrEqual(t, rec.delays[0], 5*time.Second)
}

func TestPostReaderFallbacks(t *testing.T) {
	postURL := base + "reel/xyz"

	t.Run("embedded data", func(t *testing.T) {
		s := browsertest.NewSession(map[string]*browsertest.Page{
			postURL: {
				Markup: `<p>thin</p>`,
				Eval: func(script string) (interface{}, error) {
					return "Caption from embedded data", nil
				},
			},
		})
		policy, rec := newPolicy()
		post, err := NewPostReader(policy, WithRenderWait(1000, 2*time.Second)).Read(context.Background(), s, postURL)
		require.NoError(t, err)
		assert.Equal(t, "Caption from embedded data", post.Caption)
		// 4 render polls plus the settle delay
		assert.Len(t, rec.delays, 5)
	})

	t.Run("placeholder", func(t *testing.T) {
		s := browsertest.NewSession(map[string]*browsertest.Page{postURL: {Markup: `<p>thin</p>`}})
		policy, _ := newPolicy()
		post, err := NewPostReader(policy, WithRenderWait(0, 0)).Read(context.Background(), s, postURL)
		require.NoError(t, err)
		assert.Equal(t, DefaultCaption, post.Caption)
		assert.False(t, post.Captioned)
	})

	t.Run("navigation error", func(t *testing.T) {
		s := browsertest.NewSession(nil)
		s.NavigateErr = func(string) error { return errors.New("net::ERR_CONNECTION_RESET") }
		policy, _ := newPolicy()
		_, err := NewPostReader(policy).Read(context.Background(), s, postURL)
		assert.Error(t, err)
	})
}
