package sanitize

import (
	"regexp"
	"strings"
)

var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Phone-like runs: digits with spaces, dashes, dots, parens or a leading plus.
// Only runs holding 10 to 15 digits are masked so dates and badge numbers survive.
var rePhone = regexp.MustCompile(`\+?\(?\d[\d\s\-\.\(\)]{7,}\d`)

var reSSN = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

// RedactPII masks emails, SSNs and phone numbers before text leaves the service.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = reSSN.ReplaceAllString(s, "[redacted ssn]")
	s = rePhone.ReplaceAllStringFunc(s, func(m string) string {
		n := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				n++
			}
		}
		if n < 10 || n > 15 {
			return m
		}
		return "[redacted phone]"
	})
	return s
}

// Summary cuts s at a word boundary no later than max bytes.
func Summary(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return strings.TrimRight(s[:i], " ") + "…"
}

// CollapseSpace trims s and folds runs of whitespace to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
