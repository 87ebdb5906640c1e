package antibot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"igharvest/pkg/browser"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
	"igharvest/pkg/pacing"
)

// Authenticator gets a session past a login wall and saves its cookies under sessionID
type Authenticator interface {
	Login(ctx context.Context, s browser.Session, sessionID string) error
}

// CredentialsProvider resolves the account to log in with at call time
type CredentialsProvider interface {
	Credentials(ctx context.Context) (username, password string, err error)
}

// CookieSaver persists a session's cookies
type CookieSaver interface {
	Save(ctx context.Context, s browser.Session, id string) error
}

// NoLogin refuses every login wall
type NoLogin struct{}

func (NoLogin) Login(ctx context.Context, s browser.Session, sessionID string) error {
	return errs.New(errs.ErrorTypeAuth, "login required but login is disabled")
}

// LoginState is a step of the form login
type LoginState int

const (
	NeedLogin LoginState = iota
	FormLocated
	CredentialsEntered
	Submitted
	ChallengeCheck
	Authenticated
	LoginFailed
)

func (s LoginState) String() string {
	switch s {
	case NeedLogin:
		return "NEED_LOGIN"
	case FormLocated:
		return "FORM_LOCATED"
	case CredentialsEntered:
		return "CREDENTIALS_ENTERED"
	case Submitted:
		return "SUBMITTED"
	case ChallengeCheck:
		return "CHALLENGE_CHECK"
	case Authenticated:
		return "AUTHENTICATED"
	case LoginFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("LoginState(%d)", int(s))
	}
}

// FormLogin fills and submits the platform's login form
type FormLogin struct {
	creds      CredentialsProvider
	policy     *pacing.Policy
	challenges *Challenges
	cookies    CookieSaver
	markers    Markers
	loginURL   string
	log        logger.Logger

	formWait    time.Duration
	elementWait time.Duration
	popupWait   time.Duration

	// OnTransition observes every state change
	OnTransition func(from, to LoginState)
}

// NewFormLogin creates the login flow; cookies may be nil to skip saving
func NewFormLogin(baseURL string, creds CredentialsProvider, policy *pacing.Policy, challenges *Challenges, cookies CookieSaver, log logger.Logger) *FormLogin {
	if log == nil {
		log = logger.GetLogger()
	}
	return &FormLogin{
		creds:       creds,
		policy:      policy,
		challenges:  challenges,
		cookies:     cookies,
		markers:     DefaultMarkers(),
		loginURL:    strings.TrimSuffix(baseURL, "/") + "/accounts/login/",
		log:         log,
		formWait:    20 * time.Second,
		elementWait: 5 * time.Second,
		popupWait:   5 * time.Second,
	}
}

func (f *FormLogin) move(state *LoginState, to LoginState) {
	from := *state
	*state = to
	f.log.DebugWithFields("Login state", map[string]interface{}{"from": from.String(), "to": to.String()})
	if f.OnTransition != nil {
		f.OnTransition(from, to)
	}
}

func (f *FormLogin) fail(state *LoginState, cause error, format string, args ...interface{}) error {
	at := *state
	f.move(state, LoginFailed)
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		return errs.Wrap(errs.ErrorTypeAuth, cause, "login failed at %s: %s", at, msg)
	}
	return errs.New(errs.ErrorTypeAuth, "login failed at %s: %s", at, msg)
}

// Login runs NEED_LOGIN through AUTHENTICATED or FAILED
func (f *FormLogin) Login(ctx context.Context, s browser.Session, sessionID string) error {
	state := NeedLogin
	f.log.Info("Starting form login")

	username, password, err := f.creds.Credentials(ctx)
	if err != nil {
		return f.fail(&state, err, "no credentials")
	}

	current, err := s.CurrentURL(ctx)
	if err != nil {
		return f.fail(&state, err, "read location")
	}
	if !strings.Contains(current, "/accounts/login/") {
		if err := s.Navigate(ctx, f.loginURL); err != nil {
			return f.fail(&state, err, "open login page")
		}
		if err := f.policy.RandomDelay(ctx, 3*time.Second, 5*time.Second); err != nil {
			return err
		}
	}

	// wait for the form to render before snapshotting it
	_ = s.WaitVisible(ctx, "input", f.formWait)
	doc := snapshot(ctx, s)

	userField, ok := firstVisible(ctx, s, doc, usernameSelectors, f.elementWait)
	if !ok {
		return f.fail(&state, nil, "username field not found")
	}
	passField, ok := firstVisible(ctx, s, doc, passwordSelectors, f.elementWait)
	if !ok {
		return f.fail(&state, nil, "password field not found")
	}
	f.move(&state, FormLocated)

	if err := f.fill(ctx, s, userField, username, 300*time.Millisecond, 800*time.Millisecond); err != nil {
		return f.fail(&state, err, "enter username")
	}
	if err := f.policy.HumanDelay(ctx, 800*time.Millisecond, 1500*time.Millisecond); err != nil {
		return err
	}
	if err := f.fill(ctx, s, passField, password, 400*time.Millisecond, 900*time.Millisecond); err != nil {
		return f.fail(&state, err, "enter password")
	}
	if err := f.policy.HumanDelay(ctx, 1200*time.Millisecond, 2500*time.Millisecond); err != nil {
		return err
	}
	f.move(&state, CredentialsEntered)

	if button, ok := firstVisible(ctx, s, doc, submitSelectors, f.elementWait); ok {
		if err := f.policy.Click(ctx, s, button); err != nil {
			return f.fail(&state, err, "click submit")
		}
	} else {
		f.log.Debug("Submit button not found, pressing Enter")
		if err := f.policy.HumanDelay(ctx, 300*time.Millisecond, 700*time.Millisecond); err != nil {
			return err
		}
		if err := s.PressEnter(ctx, passField); err != nil {
			return f.fail(&state, err, "submit with Enter")
		}
	}
	f.move(&state, Submitted)

	if err := f.policy.HumanDelay(ctx, 3*time.Second, 5*time.Second); err != nil {
		return err
	}
	f.move(&state, ChallengeCheck)
	if f.challenges != nil && f.challenges.Detect(ctx, s) {
		if f.challenges.Resolve(ctx, s) {
			if err := f.policy.HumanDelay(ctx, 2*time.Second, 4*time.Second); err != nil {
				return err
			}
		}
	}
	if err := f.policy.HumanDelay(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}

	url, err := s.CurrentURL(ctx)
	if err != nil {
		return f.fail(&state, err, "read location")
	}
	markup, err := s.Markup(ctx)
	if err != nil {
		return f.fail(&state, err, "read markup")
	}
	if strings.Contains(url, "/accounts/login/") || containsAny(markup, f.markers.LoginFailure) {
		return f.fail(&state, nil, "still on login page or error shown")
	}
	f.move(&state, Authenticated)
	f.log.InfoWithFields("Login succeeded", map[string]interface{}{"account": username})

	if f.cookies != nil {
		if err := f.cookies.Save(ctx, s, sessionID); err != nil {
			f.log.WithError(err).Warn("Failed to save session cookies")
		}
	}

	DismissPopups(ctx, s, f.policy, f.popupWait, f.log)
	return nil
}

func (f *FormLogin) fill(ctx context.Context, s browser.Session, selector, text string, min, max time.Duration) error {
	if err := s.Clear(ctx, selector); err != nil {
		return err
	}
	if err := f.policy.HumanDelay(ctx, min, max); err != nil {
		return err
	}
	return f.policy.TypeText(ctx, s, selector, text)
}
