package policy

import "regexp"

var (
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern    = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	aadhaarPattern = regexp.MustCompile(`\b\d{4}[ -]\d{4}[ -]\d{4}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card before phone so long digit runs are not classified as phone numbers.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = aadhaarPattern.ReplaceAllString(out, "[REDACTED_ID]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Transcript returns text safe to put in a log line.
func Transcript(text string) string {
	out, _ := RedactPII(text)
	return out
}
