package symptoms

import (
	"strings"
	"unicode"
)

// Detector marks symptom categories present in a message.
// A category is present when any of its keywords occurs in the text after
// normalization. The zero value is not usable; use NewDetector.
type Detector struct {
	categories []compiledCategory
	positive   []string
}

type compiledCategory struct {
	key      string
	keywords []string
}

// NewDetector builds a detector over the given categories. Nil uses Categories.
func NewDetector(categories []Category) *Detector {
	if categories == nil {
		categories = Categories
	}
	d := &Detector{
		categories: make([]compiledCategory, 0, len(categories)),
		positive:   make([]string, 0, len(PositivePhrases)),
	}
	for _, c := range categories {
		cc := compiledCategory{key: c.Key, keywords: make([]string, 0, len(c.Keywords))}
		for _, kw := range c.Keywords {
			if n := Normalize(kw); n != "" {
				cc.keywords = append(cc.keywords, n)
			}
		}
		d.categories = append(d.categories, cc)
	}
	for _, p := range PositivePhrases {
		d.positive = append(d.positive, Normalize(p))
	}
	return d
}

// Detect returns every category key mapped to 1 when present and 0 otherwise.
func (d *Detector) Detect(text string) map[string]int {
	norm := Normalize(text)
	out := make(map[string]int, len(d.categories))
	for _, c := range d.categories {
		out[c.key] = 0
		for _, kw := range c.keywords {
			if strings.Contains(norm, kw) {
				out[c.key] = 1
				break
			}
		}
	}
	return out
}

// HasPositivePhrase reports whether the text contains a reassuring phrase.
func (d *Detector) HasPositivePhrase(text string) bool {
	norm := Normalize(text)
	for _, p := range d.positive {
		if strings.Contains(norm, p) {
			return true
		}
	}
	return false
}

// Count returns how many categories are present.
func Count(symptoms map[string]int) int {
	n := 0
	for _, v := range symptoms {
		if v > 0 {
			n++
		}
	}
	return n
}

// Normalize lowercases text, unifies alef forms, strips diacritics and
// tatweel, and collapses whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case r == 'أ' || r == 'إ' || r == 'آ' || r == 'ٱ':
			r = 'ا'
		case r == 'ـ' || (r >= 0x064B && r <= 0x0652):
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
