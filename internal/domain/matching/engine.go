package matching

import (
	"fmt"
	"math"
	"strings"
	"time"

	"autoapply/internal/domain/job"
	"autoapply/internal/domain/user"

	"github.com/google/uuid"
)

const (
	maxKeywordPoints   = 30.0
	titleHitPoints     = 10
	maxTitleHits       = 2
	maxResumePoints    = 20.0
	categoryDirectPts  = 10
	categoryFuzzyPts   = 3
	locationCity       = 10
	locationCountry    = 7
	locationRemote     = 5
	locationPenalty    = -15
	experiencePoints   = 5
	categoryOverrideAt = 15
)

const (
	ReasonNoKeywordMatch = "No keyword match"
)

type Input struct {
	Listing job.CanonicalListing
	Profile user.Profile
	Resumes []user.Resume
	Now     time.Time
}

type Result struct {
	Score      int
	Reasons    []string
	Rejected   bool
	ResumeID   uuid.UUID
	ResumeName string
}

// Score rates one listing for one user. Hard filters run first, in order,
// and the first failure returns a zero score with that single reason.
// Otherwise points are summed and clamped to 0..100.
func Score(in Input) Result {
	l := in.Listing
	p := in.Profile

	title := strings.ToLower(l.Title)
	text := strings.TrimSpace(title + " " + strings.ToLower(l.Description))
	keywords := cleanTerms(p.Keywords)

	if reason, ok := platformFilter(l, p); !ok {
		return rejected(reason)
	}

	matchedKeywords := matchedTerms(text, keywords)
	if len(keywords) > 0 && len(matchedKeywords) == 0 {
		return rejected(ReasonNoKeywordMatch)
	}

	cat := evaluateCategory(l, p)
	if cat.active && cat.kind == categoryNone {
		return rejected("Category not preferred: " + displayCategory(l))
	}

	if reason, ok := locationFilter(l, p); !ok {
		return rejected(reason)
	}

	var total float64
	reasons := make([]string, 0, 8)

	if len(keywords) > 0 {
		pts := maxKeywordPoints * float64(len(matchedKeywords)) / float64(len(keywords)) * keywordPenalty(len(keywords))
		total += pts
		reasons = append(reasons, fmt.Sprintf("Keyword match %d/%d: %s", len(matchedKeywords), len(keywords), strings.Join(matchedKeywords, ", ")))
	}

	titleHits := matchedTerms(title, keywords)
	if len(titleHits) > 0 {
		n := len(titleHits)
		if n > maxTitleHits {
			n = maxTitleHits
		}
		total += float64(n * titleHitPoints)
		reasons = append(reasons, "Title mentions "+strings.Join(titleHits, ", "))
	}

	var res Result
	if best, ok := bestResume(l, text, in.Resumes); ok {
		pts := math.Round(maxResumePoints * best.combined)
		total += pts
		res.ResumeID = best.resume.ID
		res.ResumeName = best.resume.Name
		reasons = append(reasons, fmt.Sprintf("Best resume: %s (%d%% fit)", best.resume.Name, int(math.Round(best.combined*100))))
	}

	switch cat.kind {
	case categoryDirect:
		total += categoryDirectPts
		reasons = append(reasons, "Preferred category: "+l.Category)
	case categoryFuzzy:
		total += categoryFuzzyPts
		reasons = append(reasons, "Related category: "+cat.via)
	}

	if pts, reason := locationPoints(l, p); reason != "" {
		total += float64(pts)
		reasons = append(reasons, reason)
	}

	if level, ok := experienceMatch(text, p.ExperienceLevel); ok {
		total += experiencePoints
		reasons = append(reasons, "Experience level: "+level)
	}

	if len(titleHits) > 0 {
		if pts, reason := freshnessPoints(l, in.Now); pts > 0 {
			total += float64(pts)
			reasons = append(reasons, reason)
		}
	}

	res.Score = clampInt(int(math.Round(total)), 0, 100)
	res.Reasons = reasons
	return res
}

func rejected(reason string) Result {
	return Result{Score: 0, Reasons: []string{reason}, Rejected: true}
}

// keywordPenalty dampens coverage for users with many keywords.
func keywordPenalty(n int) float64 {
	if n <= 10 {
		return 1
	}
	return math.Max(0.7, 1-0.03*float64(n-10))
}

func platformFilter(l job.CanonicalListing, p user.Profile) (string, bool) {
	platforms := cleanTerms(p.PreferredPlatforms)
	if len(platforms) == 0 {
		return "", true
	}
	src := strings.ToLower(strings.TrimSpace(l.Source))
	for _, pl := range platforms {
		if pl == src {
			return "", true
		}
	}
	return "Platform not selected: " + l.Source, false
}

type categoryKind int

const (
	categoryNone categoryKind = iota
	categoryDirect
	categoryFuzzy
)

type categoryEval struct {
	active bool
	kind   categoryKind
	via    string
}

func evaluateCategory(l job.CanonicalListing, p user.Profile) categoryEval {
	prefs := make([]string, 0, len(p.PreferredCategories))
	for _, c := range p.PreferredCategories {
		if c = strings.TrimSpace(c); c != "" {
			prefs = append(prefs, c)
		}
	}
	if len(prefs) == 0 {
		return categoryEval{}
	}
	out := categoryEval{active: len(prefs) < categoryOverrideAt}

	cat := strings.TrimSpace(l.Category)
	if cat != "" {
		for _, pref := range prefs {
			if strings.EqualFold(pref, cat) {
				out.kind = categoryDirect
				return out
			}
		}
	}

	target := cat
	if target == "" {
		target = l.Title
	}
	targetWords := map[string]struct{}{}
	for _, w := range significantWords(target) {
		targetWords[w] = struct{}{}
	}
	for _, pref := range prefs {
		for _, w := range significantWords(pref) {
			if _, ok := targetWords[w]; ok {
				out.kind = categoryFuzzy
				out.via = pref
				return out
			}
		}
	}
	return out
}

func displayCategory(l job.CanonicalListing) string {
	if c := strings.TrimSpace(l.Category); c != "" {
		return c
	}
	return "uncategorized"
}

func locationFilter(l job.CanonicalListing, p user.Profile) (string, bool) {
	userCountry := strings.ToLower(strings.TrimSpace(p.Country))
	loc := strings.ToLower(strings.TrimSpace(l.Location))
	if userCountry == "" || isSentinel(loc) || isRemote(loc) {
		return "", true
	}
	found, ok := countryIn(loc)
	if !ok {
		return "", true
	}
	if mentionsCountry(loc, userCountry) || sameCountry(found, userCountry) {
		return "", true
	}
	return "Location mismatch: " + found, false
}

func locationPoints(l job.CanonicalListing, p user.Profile) (int, string) {
	loc := strings.ToLower(strings.TrimSpace(l.Location))
	if isSentinel(loc) {
		return 0, ""
	}

	if city := strings.ToLower(strings.TrimSpace(p.City)); city != "" && ContainsTerm(loc, city) {
		return locationCity, "Same city: " + p.City
	}
	if country := strings.ToLower(strings.TrimSpace(p.Country)); country != "" {
		if mentionsCountry(loc, country) {
			return locationCountry, "Same country: " + p.Country
		}
	}
	if isRemote(loc) && p.AcceptsRemote() {
		return locationRemote, "Remote friendly"
	}
	return locationPenalty, "Location outside preference: " + l.Location
}

func isSentinel(loc string) bool {
	_, ok := locationSentinels[strings.TrimSpace(loc)]
	return ok
}

func isRemote(loc string) bool {
	for _, t := range remoteTerms {
		if ContainsTerm(loc, t) {
			return true
		}
	}
	return false
}

// countryIn returns the canonical name of the first recognized country in loc.
// Longer spellings are tried first so "south korea" wins over "korea".
func countryIn(loc string) (string, bool) {
	best := ""
	bestLen := 0
	for alias, name := range countries {
		if len(alias) < bestLen || (len(alias) == bestLen && name >= best) {
			continue
		}
		if ContainsTerm(loc, alias) {
			best, bestLen = name, len(alias)
		}
	}
	return best, best != ""
}

// mentionsCountry checks the user's country by its own spelling and by any
// alias sharing its canonical name.
func mentionsCountry(loc, userCountry string) bool {
	if ContainsTerm(loc, userCountry) {
		return true
	}
	canon, ok := countries[userCountry]
	if !ok {
		return false
	}
	for alias, name := range countries {
		if name == canon && ContainsTerm(loc, alias) {
			return true
		}
	}
	return false
}

func sameCountry(canonical, userCountry string) bool {
	if strings.EqualFold(canonical, userCountry) {
		return true
	}
	return countries[userCountry] == canonical
}

func experienceMatch(text, level string) (string, bool) {
	level = strings.ToLower(strings.TrimSpace(level))
	terms, ok := experienceTerms[level]
	if !ok {
		return "", false
	}
	for _, t := range terms {
		if ContainsTerm(text, t) {
			return level, true
		}
	}
	return "", false
}

func freshnessPoints(l job.CanonicalListing, now time.Time) (int, string) {
	if !l.FirstSeenAt.IsZero() && !now.IsZero() {
		age := now.Sub(l.FirstSeenAt)
		switch {
		case age < 24*time.Hour:
			return 5, "Fresh: posted within a day"
		case age < 3*24*time.Hour:
			return 3, "Fresh: posted within 3 days"
		case age < 7*24*time.Hour:
			return 1, "Fresh: posted within a week"
		}
		return 0, ""
	}
	if l.IsFresh {
		return 3, "Fresh: newly discovered"
	}
	return 0, ""
}

type resumeFit struct {
	resume   user.Resume
	combined float64
}

// bestResume compares each resume against the listing's skills (tags, or
// terms from the vocabulary found in the text) and against the listing's
// general vocabulary. The first resume wins ties.
func bestResume(l job.CanonicalListing, text string, resumes []user.Resume) (resumeFit, bool) {
	if len(resumes) == 0 {
		return resumeFit{}, false
	}

	skills := cleanTerms(l.Skills)
	if len(skills) == 0 {
		skills = matchedTerms(text, techVocabulary)
	}
	listingTokens := tokens(text)

	var best resumeFit
	found := false
	for _, r := range resumes {
		content := strings.ToLower(r.Content + " " + strings.Join(r.Skills, " "))

		skillFrac := 0.0
		if len(skills) > 0 {
			skillFrac = float64(len(matchedTerms(content, skills))) / float64(len(skills))
		}

		overlap := 0.0
		if len(listingTokens) > 0 {
			rt := tokens(content)
			shared := 0
			for t := range listingTokens {
				if _, ok := rt[t]; ok {
					shared++
				}
			}
			overlap = float64(shared) / float64(len(listingTokens))
		}

		combined := 0.7*skillFrac + 0.3*overlap
		if !found || combined > best.combined {
			best = resumeFit{resume: r, combined: combined}
			found = true
		}
	}
	return best, true
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
