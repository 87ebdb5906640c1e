package antibot

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/browser"
	"igharvest/pkg/browser/browsertest"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
)

const (
	base       = "https://www.instagram.com/"
	profileURL = base + "demoacct/"
	loginURL   = base + "accounts/login/"
	homePage   = `<html><head><title>Instagram</title></head><body><main>feed</main></body></html>`
)

type sleeps struct {
	delays []time.Duration
}

func (s *sleeps) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *sleeps) total() time.Duration {
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

func newPolicy() (*pacing.Policy, *sleeps) {
	rec := &sleeps{}
	return pacing.New(rec, pacing.WithRand(rand.New(rand.NewSource(3)))), rec
}

func newDetector(auth Authenticator) (*Detector, *sleeps) {
	policy, rec := newPolicy()
	log := logger.NewNopLogger()
	return NewDetector(base, policy, auth, NewChallenges(policy, DefaultMarkers(), log), WithLogger(log)), rec
}

type fakeCreds struct {
	user, pass string
	err        error
}

func (f fakeCreds) Credentials(ctx context.Context) (string, string, error) {
	return f.user, f.pass, f.err
}

type savedCookies struct {
	ids []string
}

func (s *savedCookies) Save(ctx context.Context, sess browser.Session, id string) error {
	s.ids = append(s.ids, id)
	return nil
}

func TestNeedsLogin(t *testing.T) {
	d, _ := newDetector(nil)

	tests := []struct {
		name   string
		url    string
		markup string
		want   bool
	}{
		{"login path", loginURL + "?next=/demoacct/", homePage, true},
		{"login form marker", profileURL, `<form id="loginForm"></form>`, true},
		{"portuguese heading", profileURL, `<h1>Entrar no Instagram</h1>`, true},
		{"both field tokens", profileURL, `<input name="username"><input name="password">`, true},
		{"only username token", profileURL, `<span>username</span>`, false},
		{"plain profile", profileURL, homePage, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.NeedsLogin(tt.url, tt.markup))
		})
	}
}

func TestValidateLoaded(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   errs.ErrorType
	}{
		{"loaded", homePage, ""},
		{"not found", `<html><title>Instagram</title>Sorry, this page isn't available. Page not found</html>`, errs.ErrorTypeNotFound},
		{"portuguese not found", `<html>Instagram Esta página não está disponível</html>`, errs.ErrorTypeNotFound},
		{"rate limited", `<html>Instagram Please wait a few minutes before you try again.</html>`, errs.ErrorTypeRateLimit},
		{"portuguese rate limit", `<html>Instagram Aguarde alguns minutos</html>`, errs.ErrorTypeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDetector(nil)
			s := browsertest.NewSession(map[string]*browsertest.Page{profileURL: {Markup: tt.markup}})
			require.NoError(t, s.Navigate(context.Background(), profileURL))

			err := d.ValidateLoaded(context.Background(), s, "demoacct")
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errs.IsType(err, tt.want), "got %v", err)
		})
	}
}

func TestValidateLoadedTimesOutWithoutPlatformMarker(t *testing.T) {
	d, rec := newDetector(nil)
	s := browsertest.NewSession(map[string]*browsertest.Page{profileURL: {Markup: `<html><body>blank</body></html>`}})
	require.NoError(t, s.Navigate(context.Background(), profileURL))

	err := d.ValidateLoaded(context.Background(), s, "demoacct")
	assert.True(t, errs.IsType(err, errs.ErrorTypeTimeout))
	assert.Equal(t, 15*time.Second, rec.total())
}

func TestValidateLoadedWithLoginDisabled(t *testing.T) {
	d, _ := newDetector(NoLogin{})
	s := browsertest.NewSession(map[string]*browsertest.Page{
		profileURL: {RedirectTo: loginURL},
		loginURL:   {Markup: `<form id="loginForm"></form>`},
	})
	require.NoError(t, s.Navigate(context.Background(), profileURL))

	err := d.ValidateLoaded(context.Background(), s, "demoacct")
	assert.True(t, errs.IsType(err, errs.ErrorTypeAuth))
}

func loginPages() map[string]*browsertest.Page {
	return map[string]*browsertest.Page{
		profileURL: {RedirectTo: loginURL},
		loginURL: {
			Markup: `<html><body><form id="loginForm">
				<input name="username"><input name="password" type="password">
				<button type="submit">Log in</button></form></body></html>`,
			Elements: map[string][]browser.Element{
				"input":                  {browsertest.Visible("")},
				"input[name='username']": {browsertest.Visible("")},
				"input[name='password']": {browsertest.Visible("")},
				"button[type='submit']":  {browsertest.Visible("Log in")},
			},
			OnClick: map[string]func(*browsertest.Session){
				"button[type='submit']": func(s *browsertest.Session) {
					s.SetPage(profileURL, &browsertest.Page{Markup: homePage})
					s.Goto(base)
				},
			},
		},
		base: {Markup: homePage},
	}
}

func TestFormLoginThroughValidateLoaded(t *testing.T) {
	policy, _ := newPolicy()
	log := logger.NewNopLogger()
	challenges := NewChallenges(policy, DefaultMarkers(), log)
	saver := &savedCookies{}

	login := NewFormLogin(base, fakeCreds{user: "scout", pass: "Pw!"}, policy, challenges, saver, log)
	var states []LoginState
	login.OnTransition = func(from, to LoginState) { states = append(states, to) }

	d := NewDetector(base, policy, login, challenges, WithLogger(log))

	s := browsertest.NewSession(loginPages())
	require.NoError(t, s.Navigate(context.Background(), profileURL))

	require.NoError(t, d.ValidateLoaded(context.Background(), s, "demoacct"))

	assert.Equal(t, []LoginState{FormLocated, CredentialsEntered, Submitted, ChallengeCheck, Authenticated}, states)
	assert.Equal(t, []string{"instagram_demoacct"}, saver.ids)

	calls := s.Calls()
	assert.Contains(t, calls, "clear:input[name='username']")
	assert.Contains(t, calls, "keys:input[name='username']:s")
	assert.Contains(t, calls, "keys:input[name='password']:!")
	assert.Contains(t, calls, "hover:button[type='submit']")
	assert.Contains(t, calls, "click:button[type='submit']")
	assert.Equal(t, "navigate:"+profileURL, calls[len(calls)-1])
}

func TestFormLoginFailures(t *testing.T) {
	policy, _ := newPolicy()
	log := logger.NewNopLogger()

	t.Run("credentials unavailable", func(t *testing.T) {
		login := NewFormLogin(base, fakeCreds{err: errors.New("no account")}, policy, nil, nil, log)
		err := login.Login(context.Background(), browsertest.NewSession(nil), "instagram_demoacct")
		assert.True(t, errs.IsType(err, errs.ErrorTypeAuth))
	})

	t.Run("fields missing", func(t *testing.T) {
		login := NewFormLogin(base, fakeCreds{user: "scout", pass: "pw"}, policy, nil, nil, log)
		var last LoginState
		login.OnTransition = func(from, to LoginState) { last = to }

		s := browsertest.NewSession(map[string]*browsertest.Page{loginURL: {Markup: `<html>Instagram</html>`}})
		err := login.Login(context.Background(), s, "instagram_demoacct")
		assert.True(t, errs.IsType(err, errs.ErrorTypeAuth))
		assert.Contains(t, err.Error(), "username field not found")
		assert.Equal(t, LoginFailed, last)
	})

	t.Run("still on login page after enter", func(t *testing.T) {
		login := NewFormLogin(base, fakeCreds{user: "scout", pass: "pw"}, policy, nil, nil, log)
		s := browsertest.NewSession(map[string]*browsertest.Page{loginURL: {
			Markup: `<input name="username"><input name="password">`,
			Elements: map[string][]browser.Element{
				"input[name='username']": {browsertest.Visible("")},
				"input[name='password']": {browsertest.Visible("")},
			},
		}})
		require.NoError(t, s.Navigate(context.Background(), loginURL))

		err := login.Login(context.Background(), s, "instagram_demoacct")
		assert.True(t, errs.IsType(err, errs.ErrorTypeAuth))
		assert.Contains(t, s.Calls(), "enter:input[name='password']")
	})
}

func TestDetectChallenge(t *testing.T) {
	d, _ := newDetector(nil)
	ctx := context.Background()

	s := browsertest.NewSession(map[string]*browsertest.Page{base + "challenge/": {Markup: homePage}})
	require.NoError(t, s.Navigate(ctx, base+"challenge/"))
	assert.True(t, d.DetectChallenge(ctx, s))

	s = browsertest.NewSession(map[string]*browsertest.Page{profileURL: {
		Markup:   `<html><div aria-label="security prompt"></div></html>`,
		Elements: map[string][]browser.Element{"[aria-label*='security']": {browsertest.Visible("")}},
	}})
	require.NoError(t, s.Navigate(ctx, profileURL))
	assert.True(t, d.DetectChallenge(ctx, s))

	s = browsertest.NewSession(map[string]*browsertest.Page{profileURL: {Markup: homePage}})
	require.NoError(t, s.Navigate(ctx, profileURL))
	assert.False(t, d.DetectChallenge(ctx, s))
}

func TestResolveChallenge(t *testing.T) {
	ctx := context.Background()
	challengeURL := base + "challenge/"

	t.Run("skip control clears it", func(t *testing.T) {
		d, _ := newDetector(nil)
		skip := BrowserSelector("button:contains('Skip')")
		s := browsertest.NewSession(map[string]*browsertest.Page{
			challengeURL: {
				Markup:   `<html><button>Skip</button> challenge</html>`,
				Elements: map[string][]browser.Element{skip: {browsertest.Visible("Skip")}},
				OnClick:  map[string]func(*browsertest.Session){skip: func(s *browsertest.Session) { s.Goto(base) }},
			},
			base: {Markup: homePage},
		})
		require.NoError(t, s.Navigate(ctx, challengeURL))

		assert.True(t, d.ResolveChallenge(ctx, s))
		assert.Contains(t, s.Calls(), "click:"+skip)
	})

	t.Run("passive wait that never clears", func(t *testing.T) {
		d, rec := newDetector(nil)
		s := browsertest.NewSession(map[string]*browsertest.Page{challengeURL: {Markup: `<html>captcha</html>`}})
		require.NoError(t, s.Navigate(ctx, challengeURL))

		assert.False(t, d.ResolveChallenge(ctx, s))
		require.Len(t, rec.delays, 2)
		assert.GreaterOrEqual(t, rec.delays[1], 15*time.Second)
		assert.LessOrEqual(t, rec.delays[1], 25*time.Second)
	})
}

func TestBrowserSelector(t *testing.T) {
	tests := map[string]string{
		"button:contains('Log in')":                  "//button[contains(text(), 'Log in')]",
		"div[role='button']:contains('Entrar')":      "//div[@role='button'][contains(text(), 'Entrar')]",
		"[role='button']:contains('Not now')":        "//*[@role='button'][contains(text(), 'Not now')]",
		"button[type='submit']":                      "button[type='submit']",
		"[data-testid='turnOnNotifications'] button": "[data-testid='turnOnNotifications'] button",
	}
	for in, want := range tests {
		assert.Equal(t, want, BrowserSelector(in), in)
	}
}

func TestDismissConsentAndPopups(t *testing.T) {
	policy, _ := newPolicy()
	log := logger.NewNopLogger()
	ctx := context.Background()

	accept := "button[data-cookiebanner='accept_button']"
	notNow := BrowserSelector("button:contains('Not now')")
	s := browsertest.NewSession(map[string]*browsertest.Page{profileURL: {
		Markup: `<html><button data-cookiebanner="accept_button">Allow</button><button>Not now</button></html>`,
		Elements: map[string][]browser.Element{
			accept: {browsertest.Visible("Allow")},
			notNow: {browsertest.Visible("Not now")},
		},
	}})
	require.NoError(t, s.Navigate(ctx, profileURL))

	assert.True(t, DismissConsent(ctx, s, policy, log))
	assert.Equal(t, 1, DismissPopups(ctx, s, policy, time.Second, log))
	assert.Contains(t, s.Calls(), "click:"+accept)
	assert.Contains(t, s.Calls(), "click:"+notNow)
}
