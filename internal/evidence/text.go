package evidence

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/go-dedup/simhash"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// QuoteLimit caps quote length in runes.
const QuoteLimit = 160

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "was": true, "one": true, "our": true,
	"has": true, "had": true, "his": true, "her": true, "she": true, "him": true,
	"they": true, "them": true, "this": true, "that": true, "with": true,
	"from": true, "have": true, "were": true, "been": true, "will": true,
	"would": true, "could": true, "should": true, "about": true, "there": true,
	"their": true, "what": true, "when": true, "which": true, "some": true,
	"very": true, "just": true, "really": true, "also": true, "into": true,
	"than": true, "then": true, "like": true, "well": true, "yeah": true,
}

// quote collapses whitespace and truncates to QuoteLimit runes with an ellipsis.
func quote(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	r := []rune(normalized)
	if len(r) <= QuoteLimit {
		return normalized
	}
	return strings.TrimRight(string(r[:QuoteLimit-1]), " ") + "…"
}

func isHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// keywords returns the content words of text. Han runs contribute rune bigrams.
func keywords(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range splitWords(text) {
		r := []rune(w)
		if isHan(r[0]) {
			if len(r) == 1 {
				continue
			}
			for i := 0; i+1 < len(r); i++ {
				out[string(r[i:i+2])] = true
			}
			continue
		}
		w = strings.Trim(w, "'")
		if len([]rune(w)) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// overlapRatio is the share of query keywords present in target.
func overlapRatio(query, target map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hit := 0
	for k := range query {
		if target[k] {
			hit++
		}
	}
	return float64(hit) / float64(len(query))
}

var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// fuzzyEqual accepts exact matches and, for tokens of four or more runes, a
// single edit.
func fuzzyEqual(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 4 || len(rb) < 4 {
		return false
	}
	return levenshtein.DistanceForStrings(ra, rb, editOptions) <= 1
}

// quoteFeatures implements simhash.FeatureSet with word unigrams and rune bigrams.
type quoteFeatures struct {
	text string
}

func (q quoteFeatures) GetFeatures() []simhash.Feature {
	var features []simhash.Feature
	for _, w := range splitWords(q.text) {
		features = append(features, simhash.NewFeature([]byte(w)))
		r := []rune(w)
		for i := 0; i+1 < len(r); i++ {
			features = append(features, simhash.NewFeature([]byte(string(r[i:i+2]))))
		}
	}
	return features
}

func fingerprint(text string) uint64 {
	return simhash.NewSimhash().GetSimhash(quoteFeatures{text: text})
}

func hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
