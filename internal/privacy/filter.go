// Package privacy detects and redacts personally identifiable information
// in free-form text before it is cached, persisted, or logged.
//
// Detection is best-effort regex matching, not a compliance guarantee.
package privacy

import (
	"regexp"
	"sort"
)

// Result describes what Detect found in a piece of text.
type Result struct {
	HasPII    bool
	Sanitized string
	Types     []string
}

// matcher is one PII pattern with its type label and replacement tag.
type matcher struct {
	label       string
	pattern     *regexp.Regexp
	replacement string
}

// Matchers run in a fixed order and are cumulative: text triggering several
// patterns is redacted for all of them. Order matters — the SSN pattern must
// run before the generic digit-run pattern so SSNs keep their own tag.
var matchers = []matcher{
	{
		label:       "ssn",
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: "[SSN_REDACTED]",
	},
	{
		label:       "email",
		pattern:     regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		replacement: "[EMAIL_REDACTED]",
	},
	{
		label:       "phone",
		pattern:     regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		replacement: "[PHONE_REDACTED]",
	},
	{
		label:       "credit_card",
		pattern:     regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
		replacement: "[CARD_REDACTED]",
	},
	{
		label:       "id_number",
		pattern:     regexp.MustCompile(`\b\d{9,}\b`),
		replacement: "[ID_REDACTED]",
	},
}

// Detect scans text for PII and returns a sanitized copy with every match
// replaced by a type-tagged placeholder. It is pure: same input, same
// output, no side effects, and it never fails.
func Detect(text string) Result {
	res := Result{Sanitized: text}
	seen := make(map[string]bool)

	for _, m := range matchers {
		if !m.pattern.MatchString(res.Sanitized) {
			continue
		}
		res.HasPII = true
		if !seen[m.label] {
			seen[m.label] = true
			res.Types = append(res.Types, m.label)
		}
		res.Sanitized = m.pattern.ReplaceAllString(res.Sanitized, m.replacement)
	}

	sort.Strings(res.Types)
	return res
}

// Warnings renders user-facing notices for the detected PII types.
func Warnings(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	warnings := make([]string, 0, len(types))
	for _, t := range types {
		msg, ok := warningText[t]
		if !ok {
			msg = "Personal information was removed from your message for your protection."
		}
		warnings = append(warnings, msg)
	}
	return warnings
}

var warningText = map[string]string{
	"ssn":         "A Social Security number was removed from your message. Never share your SSN in chat.",
	"email":       "An email address was removed from your message.",
	"phone":       "A phone number was removed from your message.",
	"credit_card": "A payment card number was removed from your message.",
	"id_number":   "An identification number was removed from your message.",
}
