// Package policy masks personal data and secrets before they reach logs.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
)

var piiRules = []struct {
	pattern *regexp.Regexp
	marker  string
}{
	{emailPattern, "[REDACTED_EMAIL]"},
	// Cards and SSNs go before phones, which would otherwise swallow them.
	{cardPattern, "[REDACTED_CARD]"},
	{ssnPattern, "[REDACTED_SSN]"},
	{phonePattern, "[REDACTED_PHONE]"},
}

// RedactPII masks emails, card numbers, SSNs and phone numbers in
// conversation text.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range piiRules {
		next := rule.pattern.ReplaceAllString(out, rule.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// RedactURIPassword hides the password in the userinfo of a connection URI.
// Multi-host mongo URIs do not always survive net/url, so the scan is done by
// hand.
func RedactURIPassword(uri string) string {
	scheme := strings.Index(uri, "://")
	if scheme < 0 {
		return uri
	}
	rest := uri[scheme+3:]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	userinfo := rest[:at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		userinfo = userinfo[:colon] + ":xxxxx"
	}
	return uri[:scheme+3] + userinfo + rest[at:]
}
