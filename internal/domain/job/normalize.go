package job

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var legalSuffixes = map[string]struct{}{
	"inc": {}, "llc": {}, "ltd": {}, "limited": {}, "gmbh": {}, "corp": {},
	"corporation": {}, "co": {}, "plc": {}, "ag": {}, "sa": {}, "bv": {},
	"pvt": {}, "pte": {}, "srl": {}, "oy": {}, "ab": {},
}

var stripPolicy = bluemonday.StrictPolicy()

// NormalizeKey folds a company name to its comparison form: lower-case,
// diacritics removed, punctuation dropped and trailing legal-entity suffixes
// ("Inc", "GmbH", ...) stripped. "Acme, Inc." and "ACME inc" both give "acme".
func NormalizeKey(s string) string {
	tokens := tokenize(s)
	for len(tokens) > 1 {
		if _, ok := legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, "")
}

// NormalizeTitle is NormalizeKey without suffix stripping.
func NormalizeTitle(s string) string {
	return strings.Join(tokenize(s), "")
}

// DedupKey is the cross-source identity of a listing.
func DedupKey(title, company string) string {
	t := NormalizeTitle(title)
	if t == "" {
		return ""
	}
	return t + "|" + NormalizeKey(company)
}

// StripHTML removes all markup and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	clean := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.Join(strings.Fields(clean), " ")
}

// Canonicalize trims and sanitizes a raw listing. It does not assign an ID or
// timestamps; persistence owns those.
func Canonicalize(r RawListing) CanonicalListing {
	c := CanonicalListing{
		Source:      strings.TrimSpace(r.Source),
		SourceID:    strings.TrimSpace(r.SourceID),
		Title:       strings.Join(strings.Fields(r.Title), " "),
		Company:     strings.Join(strings.Fields(r.Company), " "),
		Location:    strings.TrimSpace(r.Location),
		Description: StripHTML(r.Description),
		SalaryText:  strings.TrimSpace(r.SalaryText),
		JobType:     strings.TrimSpace(r.JobType),
		Category:    strings.TrimSpace(r.Category),
		Skills:      []string(NewSkillList(r.Skills...)),
		URL:         strings.TrimSpace(r.URL),
		IsFresh:     true,
		IsActive:    true,
	}
	if r.PostedAt != nil && !r.PostedAt.IsZero() {
		c.FirstSeenAt = r.PostedAt.UTC()
	}
	c.DedupKey = DedupKey(c.Title, c.Company)
	if c.SourceID == "" {
		c.SourceID = stableSourceID(c.URL, c.DedupKey)
	}
	return c
}

// Deduplicate merges a batch from several sources into one record per
// (source, source id) and then one per dedup key. On collision the record
// with the longer description wins wholesale. Records without a usable title
// are dropped. Output order is unspecified.
func Deduplicate(raw []RawListing) []CanonicalListing {
	bySourceID := make(map[string]CanonicalListing, len(raw))
	for _, r := range raw {
		c := Canonicalize(r)
		if c.Title == "" || c.DedupKey == "" {
			continue
		}
		id := c.Source + "\x00" + c.SourceID
		if prev, ok := bySourceID[id]; ok && !longer(c, prev) {
			continue
		}
		bySourceID[id] = c
	}

	byKey := make(map[string]CanonicalListing, len(bySourceID))
	for _, c := range bySourceID {
		if prev, ok := byKey[c.DedupKey]; ok && !longer(c, prev) {
			continue
		}
		byKey[c.DedupKey] = c
	}

	out := make([]CanonicalListing, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, c)
	}
	return out
}

// longer breaks ties on equal description length by source identity so the
// result does not depend on map iteration order.
func longer(a, b CanonicalListing) bool {
	la, lb := len(a.Description), len(b.Description)
	if la != lb {
		return la > lb
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.SourceID < b.SourceID
}

func tokenize(s string) []string {
	folded, _, err := transform.String(foldTransformer(), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func foldTransformer() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func stableSourceID(url, key string) string {
	seed := strings.TrimSpace(url)
	if seed == "" {
		seed = key
	}
	if seed == "" {
		return ""
	}
	h := sha1.Sum([]byte(seed))
	return "sha1-" + hex.EncodeToString(h[:])
}
