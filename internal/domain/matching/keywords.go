package matching

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Short terms ("go", "c#", "ui") only match between these characters so that
// they do not fire inside ordinary words or dotted identifiers. A trailing
// period is allowed ("... and Go."), a leading one is not (".go").
const (
	strictLead  = `(?:^|[\s,;:/()\[\]|!?"'])`
	strictTrail = `(?:[\s,;:/()\[\]|!?"'.]|$)`
	looseLead   = `(?:^|[^a-z0-9])`
	looseTrail  = `(?:[^a-z0-9]|$)`
)

var termCache sync.Map // string -> *regexp.Regexp

// termPattern compiles a whole-word (or whole-phrase) matcher for a
// lower-cased term. Multi-word terms tolerate any run of whitespace.
func termPattern(term string) *regexp.Regexp {
	term = strings.ToLower(strings.TrimSpace(term))
	if v, ok := termCache.Load(term); ok {
		return v.(*regexp.Regexp)
	}

	words := strings.Fields(term)
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	body := strings.Join(quoted, `\s+`)

	var re *regexp.Regexp
	if utf8.RuneCountInString(term) <= 3 {
		re = regexp.MustCompile(strictLead + body + strictTrail)
	} else {
		re = regexp.MustCompile(looseLead + body + looseTrail)
	}
	termCache.Store(term, re)
	return re
}

// ContainsTerm reports a whole-word/phrase match of term in text. text must
// already be lower-cased.
func ContainsTerm(text, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" || text == "" {
		return false
	}
	return termPattern(term).MatchString(text)
}

func cleanTerms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func matchedTerms(text string, terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if ContainsTerm(text, t) {
			out = append(out, t)
		}
	}
	return out
}

var tokenRe = regexp.MustCompile(`[a-z0-9][a-z0-9+#.]*[a-z0-9+#]|[a-z0-9]`)

// tokens returns the distinct significant tokens of a lower-cased text.
func tokens(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range tokenRe.FindAllString(text, -1) {
		if len(t) < 3 {
			continue
		}
		if _, stop := tokenStopWords[t]; stop {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

// significantWords splits a category-like label into words longer than three
// characters that are not generic role words.
func significantWords(label string) []string {
	out := make([]string, 0)
	for _, w := range strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(w) <= 3 {
			continue
		}
		if _, stop := categoryStopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
