package compliance

import "regexp"

type scrubRule struct {
	pattern *regexp.Regexp
	repl    string
	// valid, when set, must accept a match before it is replaced.
	valid func(match string) bool
}

func (r scrubRule) apply(text string) string {
	if r.valid == nil {
		return r.pattern.ReplaceAllString(text, r.repl)
	}
	return r.pattern.ReplaceAllStringFunc(text, func(m string) string {
		if r.valid(m) {
			return r.repl
		}
		return m
	})
}

// Order matters: cards before phones so long digit runs are tagged as cards.
// Street and phone rules need an address or phone shape; bare numbers next to
// units ("12 ct", "2 packs of Dr Pepper", "ids 1001 2002 3003") are kept.
var scrubRules = []scrubRule{
	{pattern: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), repl: "[EMAIL]"},
	{pattern: regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`), repl: "[CARD]", valid: luhn},
	{pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), repl: "[ID]"},
	{
		pattern: regexp.MustCompile(`\+\d{1,3}[ .\-]?\d{2,5}(?:[ .\-]\d{2,5}){1,3}\b` +
			`|\(\d{2,4}\)[ .\-]?\d{3,4}[ .\-]\d{4}\b` +
			`|\b\d{3}[ .\-]\d{3}[ .\-]\d{4}\b`),
		repl: "[PHONE]",
	},
	{
		// number, one to three capitalised name words, then a street suffix;
		// abbreviations only count before punctuation or the end of text
		pattern: regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][A-Za-z'\-]*\s+){1,3}` +
			`(?:(?i:street|avenue|road|boulevard|lane|drive|court|way|place|terrace)\b` +
			`|(?:St|Ave|Rd|Blvd|Ln|Dr|Ct|Pl)(?P<tail>[.,;!?]|$))`),
		repl: "[ADDRESS]${tail}",
	},
}

// Scrub replaces emails, card and ID numbers, phone numbers and street
// addresses with bracketed tags. It is deterministic and idempotent.
func Scrub(text string) string {
	for _, r := range scrubRules {
		text = r.apply(text)
	}
	return text
}

// luhn reports whether the digits in s pass the card checksum.
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n > 0 && sum%10 == 0
}
