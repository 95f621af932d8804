// Package vocab fixes speech-to-text errors in interview vocabulary.
//
// Speech recognisers reliably mishear the words an interview depends on
// most: the candidate's name, the company, and technology names such as
// "Kubernetes" or "PostgreSQL". A [Corrector] compares windows of transcript
// tokens against a fixed term list and replaces a window with the term it
// most resembles.
//
// Matching runs in two passes per window:
//
//  1. Phonetic: every token of the window must share a Double Metaphone code
//     with the term. Candidates are then ranked by Jaro-Winkler similarity
//     and accepted above the phonetic threshold (default 0.70).
//  2. Fuzzy: when no term matches phonetically, pure Jaro-Winkler similarity
//     is accepted above the stricter fuzzy threshold (default 0.85).
//
// A window never has fewer tokens than the term it is matched to, and at most
// one more, so a recogniser that splits "Kubernetes" into two words is still
// corrected while a lone "acme" is never expanded to "Acme Robotics".
package vocab

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minTokenLen skips short function words ("ve", "at", "is") that would
	// otherwise match anything.
	minTokenLen = 3
)

// Correction records one substitution.
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	// Method is "phonetic" or "fuzzy".
	Method string `json:"method"`
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum similarity for a phonetic match.
func WithPhoneticThreshold(t float64) Option {
	return func(c *Corrector) {
		if t > 0 {
			c.phoneticThreshold = t
		}
	}
}

// WithFuzzyThreshold sets the minimum similarity for a match without
// phonetic overlap.
func WithFuzzyThreshold(t float64) Option {
	return func(c *Corrector) {
		if t > 0 {
			c.fuzzyThreshold = t
		}
	}
}

type term struct {
	text   string
	lower  string
	concat string
	words  int
	codes  map[string]struct{}
}

// Corrector replaces misheard vocabulary in transcripts. It is read-only after
// construction and safe for concurrent use.
type Corrector struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New prepares a corrector for terms. Blank and duplicate terms are ignored.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.Join(strings.Fields(t), " ")
		lower := strings.ToLower(t)
		if t == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			text:   t,
			lower:  lower,
			concat: strings.Join(tokens, ""),
			words:  len(tokens),
			codes:  codesFor(tokens),
		})
		c.maxWords = max(c.maxWords, len(tokens))
	}
	return c
}

// Terms returns the prepared term list.
func (c *Corrector) Terms() []string {
	out := make([]string, len(c.terms))
	for i, t := range c.terms {
		out[i] = t.text
	}
	return out
}

// Correct returns text with every recognised term restored to its canonical
// spelling, and the substitutions made. Punctuation around a replaced window
// is kept. A window that already equals a term apart from letter case is
// rewritten to the term's casing without being reported.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(c.terms) == 0 {
		return text, nil
	}

	var out []string
	var corrections []Correction
	for i := 0; i < len(tokens); {
		n, tm, conf, method := c.bestAt(tokens, i)
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		window := tokens[i : i+n]
		lead, _, _ := splitPunct(window[0])
		_, _, trail := splitPunct(window[len(window)-1])
		out = append(out, lead+tm.text+trail)

		orig := coreWindow(window)
		if !strings.EqualFold(orig, tm.text) {
			corrections = append(corrections, Correction{
				Original:   orig,
				Corrected:  tm.text,
				Confidence: conf,
				Method:     method,
			})
		}
		i += n
	}
	return strings.Join(out, " "), corrections
}

// CorrectTranscript implements the turn orchestrator's transcript hook.
func (c *Corrector) CorrectTranscript(text string) string {
	s, _ := c.Correct(text)
	return s
}

// bestAt picks the window starting at tokens[i] with the best match: a
// phonetic match beats a fuzzy one, then the higher score wins, then the
// longer window. n is 0 when nothing matches.
func (c *Corrector) bestAt(tokens []string, i int) (n int, best term, conf float64, method string) {
	for size := min(c.maxWords+1, len(tokens)-i); size >= 1; size-- {
		lowered := make([]string, 0, size)
		for _, tok := range tokens[i : i+size] {
			_, core, _ := splitPunct(tok)
			lowered = append(lowered, strings.ToLower(core))
		}
		if slices.Contains(lowered, "") || (size == 1 && utf8.RuneCountInString(lowered[0]) < minTokenLen) {
			continue
		}
		tm, score, m, ok := c.match(lowered)
		if !ok {
			continue
		}
		if n == 0 || (m == "phonetic" && method == "fuzzy") || (m == method && score > conf) {
			n, best, conf, method = size, tm, score, m
		}
	}
	return n, best, conf, method
}

// match compares one window, already lowercased and stripped of punctuation,
// against every term. Fuzzy matches need the same number of words as the
// term.
func (c *Corrector) match(window []string) (best term, score float64, method string, ok bool) {
	full := strings.Join(window, " ")
	concat := strings.Join(window, "")
	wordCodes := make([]map[string]struct{}, len(window))
	for i, w := range window {
		wordCodes[i] = codesFor([]string{w})
	}

	var phonetic bool
	for _, t := range c.terms {
		if len(window) < t.words || len(window) > t.words+1 {
			continue
		}
		s := matchr.JaroWinkler(full, t.lower, false)
		if cs := matchr.JaroWinkler(concat, t.concat, false); cs > s {
			s = cs
		}

		if allOverlap(wordCodes, t.codes) {
			if s >= c.phoneticThreshold && (!phonetic || s > score) {
				best, score, phonetic, ok = t, s, true, true
			}
			continue
		}
		if !phonetic && len(window) == t.words && s >= c.fuzzyThreshold && s > score {
			best, score, ok = t, s, true
		}
	}
	if !ok {
		return term{}, 0, "", false
	}
	if phonetic {
		return best, score, "phonetic", true
	}
	return best, score, "fuzzy", true
}

// codesFor returns the union of the Double Metaphone codes of tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// allOverlap reports whether every window token shares a code with the term.
func allOverlap(words []map[string]struct{}, termCodes map[string]struct{}) bool {
	for _, wc := range words {
		if len(wc) == 0 {
			return false
		}
		found := false
		for code := range wc {
			if _, ok := termCodes[code]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// splitPunct splits tok into leading punctuation, the word, and trailing
// punctuation.
func splitPunct(tok string) (lead, core, trail string) {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(tok, isWord)
	if start < 0 {
		return tok, "", ""
	}
	end := strings.LastIndexFunc(tok, isWord)
	_, size := utf8.DecodeRuneInString(tok[end:])
	return tok[:start], tok[start : end+size], tok[end+size:]
}

func coreWindow(window []string) string {
	cores := make([]string, len(window))
	for i, tok := range window {
		_, cores[i], _ = splitPunct(tok)
	}
	return strings.Join(cores, " ")
}
