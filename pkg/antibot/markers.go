package antibot

// Markers are the substrings and selectors used to classify a page. English
// and Portuguese variants are included.
type Markers struct {
	LoginURL       []string
	LoginMarkup    []string
	NotFound       []string
	RateLimit      []string
	Platform       []string
	Challenge      []string
	ChallengeURL   []string
	ChallengeProbe []string
	LoginFailure   []string
}

// DefaultMarkers returns the built-in marker set
func DefaultMarkers() Markers {
	return Markers{
		LoginURL: []string{"/accounts/login", "login"},
		LoginMarkup: []string{
			"loginForm",
			"Log in to Instagram",
			"Entrar no Instagram",
		},
		NotFound: []string{
			"Esta página não está disponível",
			"Page not found",
			"User not found",
			"Sorry, this page isn't available",
		},
		RateLimit: []string{
			"Please wait a few minutes",
			"Try again later",
			"Aguarde alguns minutos",
		},
		Platform: []string{"instagram", "Instagram"},
		Challenge: []string{
			"captcha",
			"challenge",
			"security check",
			"verificação",
		},
		ChallengeURL: []string{"challenge", "captcha"},
		ChallengeProbe: []string{
			"[data-testid*='captcha']",
			".captcha",
			"#captcha",
			"[aria-label*='captcha']",
			"[aria-label*='security']",
			"iframe[src*='captcha']",
			"iframe[src*='recaptcha']",
		},
		LoginFailure: []string{
			"loginForm",
			"incorrect",
			"erro",
			"challenge",
			"captcha",
		},
	}
}

var (
	usernameSelectors = []string{
		"input[name='username']",
		"input[type='text'][autocomplete='username']",
		"input[aria-label*='usuário']",
		"input[aria-label*='username']",
		"input[placeholder*='usuário']",
		"input[placeholder*='username']",
	}

	passwordSelectors = []string{
		"input[name='password']",
		"input[type='password']",
		"input[aria-label*='senha']",
		"input[aria-label*='password']",
	}

	submitSelectors = []string{
		"button[type='submit']",
		"button:contains('Entrar')",
		"button:contains('Log in')",
		"div[role='button']:contains('Entrar')",
		"div[role='button']:contains('Log in')",
	}

	skipSelectors = []string{
		"button:contains('Skip')",
		"button:contains('Pular')",
		"button:contains('Continue')",
		"button:contains('Continuar')",
		"button[data-testid*='skip']",
		"button[data-testid*='continue']",
		"[role='button']:contains('Not now')",
		"[role='button']:contains('Agora não')",
	}

	popupSelectors = []string{
		"button:contains('Agora não')",
		"button:contains('Not now')",
		"button:contains('Não')",
		"button:contains('No')",
		"button[role='button']:contains('Dismiss')",
		"[data-testid='turnOnNotifications'] button",
		"div[role='dialog'] button",
	}

	consentSelectors = []string{
		"button[data-cookiebanner='accept_button']",
		"button:contains('Accept')",
		"button:contains('Aceitar')",
		"[data-testid='cookie-banner'] button",
		".cookie-banner button",
	}
)
