// Package antibot recognises login walls, challenge interstitials and
// rate-limit pages, and runs the scripted remediations for them: the form
// login flow, challenge skipping and dismissal of consent and notification
// dialogs.
//
// Selector lists use CSS, optionally with the :contains('text') pseudo-class.
// Before a selector reaches the browser it is checked against a goquery
// snapshot of the page markup, and :contains selectors are translated to
// XPath, so absent controls cost no wait.
package antibot
