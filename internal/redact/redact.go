// Package redact masks identity-bearing values before they reach the logs.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\(?\d[\d\s\-().]{6,}\d`)
)

// SetEnabled toggles redaction; it is on by default.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled reports whether redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text replaces phone numbers and email addresses inside free text.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	return phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
}

// Name keeps only the first rune of a personal name.
func Name(in string) string {
	if !enabled.Load() || in == "" {
		return in
	}
	r, _ := utf8.DecodeRuneInString(in)
	return string(r) + "***"
}

// Truncate shortens text to at most n runes for log lines.
func Truncate(in string, n int) string {
	if n < 0 || utf8.RuneCountInString(in) <= n {
		return in
	}
	runes := []rune(in)
	return string(runes[:n]) + "..."
}

// Secret hides a value entirely, keeping only its length.
func Secret(in string) string {
	if !enabled.Load() {
		return in
	}
	return strings.Repeat("*", utf8.RuneCountInString(in))
}
