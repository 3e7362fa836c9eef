// Package names extracts self-introduced participant names from transcript text.
package names

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Candidate is a name found in text with the confidence of the pattern that found it.
type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

const maxNameTokens = 4

var blockedTokens = map[string]bool{
	"a": true, "am": true, "an": true, "and": true, "at": true, "be": true,
	"because": true, "but": true, "by": true, "currently": true, "doing": true,
	"for": true, "from": true, "going": true, "happy": true, "here": true,
	"hi": true, "hello": true, "i": true, "im": true, "in": true,
	"interested": true, "is": true, "it": true, "my": true, "name": true,
	"now": true, "of": true, "on": true, "our": true, "please": true,
	"really": true, "studying": true, "that": true, "the": true, "this": true,
	"to": true, "just": true, "uh": true, "um": true, "we": true, "with": true,
}

var patterns = []struct {
	re         *regexp.Regexp
	confidence float64
}{
	{regexp.MustCompile(`(?i)\bmy name is\s+([a-z][a-z\s'\-]{1,80})`), 0.95},
	{regexp.MustCompile(`(?i)\bi\s+am\s+([a-z][a-z\s'\-]{1,80})`), 0.90},
	{regexp.MustCompile(`(?i)\bi'm\s+([a-z][a-z\s'\-]{1,80})`), 0.90},
	{regexp.MustCompile(`(?i)\b(?:please\s+)?call me\s+([a-z][a-z\s'\-]{1,80})`), 0.88},
}

var (
	phraseBreak = regexp.MustCompile(`[,.;:!?()\[\]\n\r]`)
	nameToken   = regexp.MustCompile(`^[a-z][a-z'\-]{0,29}$`)
)

// Extract returns name candidates in text ordered by descending confidence.
// The same name found by several patterns keeps its highest confidence.
func Extract(text string) []Candidate {
	if text == "" {
		return nil
	}
	best := make(map[string]float64)
	var order []string
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			name, ok := normalize(m[1])
			if !ok {
				continue
			}
			prev, seen := best[name]
			if !seen {
				order = append(order, name)
			}
			if !seen || prev < p.confidence {
				best[name] = p.confidence
			}
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, n := range order {
		out = append(out, Candidate{Name: n, Confidence: best[n]})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return out
}

// Best returns the highest confidence candidate in text.
func Best(text string) (Candidate, bool) {
	c := Extract(text)
	if len(c) == 0 {
		return Candidate{}, false
	}
	return c[0], true
}

func normalize(raw string) (string, bool) {
	clipped := phraseBreak.Split(raw, 2)[0]
	fields := strings.Fields(clipped)
	if len(fields) == 0 {
		return "", false
	}

	var parts []string
	for _, f := range fields {
		tok := strings.ToLower(strings.Trim(f, ` '"-`))
		if tok == "" {
			continue
		}
		if blockedTokens[tok] || !nameToken.MatchString(tok) {
			if len(parts) > 0 {
				break
			}
			return "", false
		}
		parts = append(parts, tok)
		if len(parts) > maxNameTokens {
			return "", false
		}
	}
	if len(parts) == 0 {
		return "", false
	}

	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	name := strings.Join(parts, " ")
	if len(name) < 2 {
		return "", false
	}
	return name, true
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
