package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalListing is a posting deduplicated across sources.
type CanonicalListing struct {
	ID          uuid.UUID
	Source      string
	SourceID    string
	Title       string
	Company     string
	Location    string
	Description string
	SalaryText  string
	JobType     string
	Category    string
	Skills      []string
	URL         string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	IsFresh     bool
	IsActive    bool
	DedupKey    string
}

// RawListing is what a source fetcher returns, before normalization.
type RawListing struct {
	Source      string     `json:"source"`
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	SalaryText  string     `json:"salary_text"`
	JobType     string     `json:"job_type"`
	Category    string     `json:"category"`
	Skills      SkillList  `json:"skills"`
	URL         string     `json:"url"`
	PostedAt    *time.Time `json:"posted_at"`
}

// SkillList accepts the shapes sources emit for skill tags: a JSON array of
// strings, a single comma separated string, or null. Anything else is
// rejected at decode time.
type SkillList []string

func (s *SkillList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}

	switch b[0] {
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("skills: expected array of strings: %w", err)
		}
		*s = NewSkillList(items...)
		return nil
	case '"':
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("skills: %w", err)
		}
		*s = NewSkillList(strings.Split(raw, ",")...)
		return nil
	default:
		return fmt.Errorf("skills: unsupported shape %q", string(b[:1]))
	}
}

// NewSkillList trims, drops empties and removes case-insensitive duplicates
// while keeping first-seen order.
func NewSkillList(items ...string) SkillList {
	out := make(SkillList, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		k := strings.ToLower(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}
