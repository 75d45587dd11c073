package domain

import (
	"net/url"
	"strings"
	"time"
)

// SourceType is the external origin category of a post or case.
type SourceType string

const (
	SourceForum     SourceType = "forum"
	SourceLaunch    SourceType = "launch"
	SourceCommunity SourceType = "community"
	SourceOther     SourceType = "other"
)

// ParseSourceType coerces a raw value into the closed enumeration.
func ParseSourceType(raw string) SourceType {
	switch SourceType(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceForum:
		return SourceForum
	case SourceLaunch:
		return SourceLaunch
	case SourceCommunity:
		return SourceCommunity
	default:
		return SourceOther
	}
}

// Domain lists per source type, checked in precedence order.
var (
	forumDomains     = []string{"reddit.com", "redd.it"}
	launchDomains    = []string{"producthunt.com"}
	communityDomains = []string{"indiehackers.com"}
)

// DeriveSourceType maps a source URL to its type: forum > launch > community > other.
func DeriveSourceType(sourceURL string) SourceType {
	raw := strings.ToLower(strings.TrimSpace(sourceURL))
	if raw == "" {
		return SourceOther
	}

	host := ""
	if parsed, err := url.Parse(raw); err == nil {
		host = parsed.Hostname()
	}

	match := func(domains []string) bool {
		for _, d := range domains {
			if host != "" {
				if host == d || strings.HasSuffix(host, "."+d) {
					return true
				}
				continue
			}
			if strings.Contains(raw, d) {
				return true
			}
		}
		return false
	}

	switch {
	case match(forumDomains):
		return SourceForum
	case match(launchDomains):
		return SourceLaunch
	case match(communityDomains):
		return SourceCommunity
	default:
		return SourceOther
	}
}

// Difficulty is the closed set of effort levels; empty means unknown.
type Difficulty string

const (
	DifficultyUnknown      Difficulty = ""
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// ParseDifficulty returns false for values outside the enumeration.
func ParseDifficulty(raw string) (Difficulty, bool) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(raw))); d {
	case DifficultyUnknown, DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return d, true
	default:
		return DifficultyUnknown, false
	}
}

// RawPost is an ephemeral connector record consumed by the extractor.
type RawPost struct {
	SourceID      string
	SourceType    SourceType
	Title         string
	Body          string
	URL           string
	Upvotes       int
	CommentsCount int
	FetchedAt     time.Time
}

// Text returns the content handed to the extractor.
func (p RawPost) Text() string {
	if strings.TrimSpace(p.Body) == "" {
		return p.Title
	}
	return p.Title + "\n\n" + p.Body
}

// Prefix returns the connector part of the source id (reddit_abc -> reddit).
func (p RawPost) Prefix() string {
	if i := strings.Index(p.SourceID, "_"); i > 0 {
		return p.SourceID[:i]
	}
	return p.SourceID
}

// CaseContent groups the extracted, human-readable fields of a case.
type CaseContent struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Income             string     `json:"income"`
	TimeRequired       string     `json:"time_required"`
	Tools              []string   `json:"tools"`
	Steps              []string   `json:"steps"`
	Category           string     `json:"category"`
	Difficulty         Difficulty `json:"difficulty"`
	InvestmentRequired string     `json:"investment_required"`
	SkillsNeeded       string     `json:"skills_needed"`
	TargetAudience     string     `json:"target_audience"`
	PotentialRisks     string     `json:"potential_risks"`
	SuccessRate        string     `json:"success_rate"`
	TimeToProfit       string     `json:"time_to_profit"`
	Scalability        string     `json:"scalability"`
	LocationFlexible   bool       `json:"location_flexible"`
	AgeRestriction     string     `json:"age_restriction"`
	RevenueModel       string     `json:"revenue_model"`
	CompetitionLevel   string     `json:"competition_level"`
	MarketTrend        string     `json:"market_trend"`
	KeyMetrics         string     `json:"key_metrics"`
	Tags               []string   `json:"tags"`
}

// CaseDraft is the extractor output before admission.
type CaseDraft struct {
	CaseContent
	SourceID      string
	SourceURL     string
	SourceType    SourceType
	RawContent    string
	Upvotes       int
	CommentsCount int
}

// Case is the persisted, moderated write-up.
type Case struct {
	ID int64 `json:"id"`
	CaseContent
	SourceURL     string     `json:"source_url"`
	SourceType    SourceType `json:"source_type"`
	RawContent    string     `json:"raw_content"`
	Upvotes       int        `json:"upvotes"`
	CommentsCount int        `json:"comments_count"`
	Published     bool       `json:"published"`
	AdminApproved *bool      `json:"admin_approved"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewCaseFromDraft builds an unpublished, pending case.
func NewCaseFromDraft(d CaseDraft) Case {
	st := d.SourceType
	if st == "" {
		st = DeriveSourceType(d.SourceURL)
	}
	return Case{
		CaseContent:   d.CaseContent,
		SourceURL:     d.SourceURL,
		SourceType:    ParseSourceType(string(st)),
		RawContent:    d.RawContent,
		Upvotes:       d.Upvotes,
		CommentsCount: d.CommentsCount,
	}
}

// Status reports the moderation state derived from the publish flags.
func (c Case) Status() ModerationStatus {
	switch {
	case c.AdminApproved == nil:
		return StatusPending
	case *c.AdminApproved:
		return StatusApproved
	default:
		return StatusRejected
	}
}

// ModerationStatus is a list filter over the moderation flags.
type ModerationStatus string

const (
	StatusAny       ModerationStatus = ""
	StatusPending   ModerationStatus = "pending"
	StatusApproved  ModerationStatus = "approved"
	StatusRejected  ModerationStatus = "rejected"
	StatusPublished ModerationStatus = "published"
)

// ParseModerationStatus accepts the filter values; anything else means no filter.
func ParseModerationStatus(raw string) ModerationStatus {
	switch s := ModerationStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusApproved, StatusRejected, StatusPublished:
		return s
	default:
		return StatusAny
	}
}

// DedupRecord is the slice of a stored case the deduplicator needs.
type DedupRecord struct {
	ID          int64
	SourceURL   string
	SourceType  SourceType
	Title       string
	Description string
}

// Record projects a case onto its dedup features.
func (c Case) Record() DedupRecord {
	return DedupRecord{
		ID:          c.ID,
		SourceURL:   c.SourceURL,
		SourceType:  c.SourceType,
		Title:       c.Title,
		Description: c.Description,
	}
}

// Record projects a draft onto its dedup features.
func (d CaseDraft) Record() DedupRecord {
	return DedupRecord{
		SourceURL:   d.SourceURL,
		SourceType:  d.SourceType,
		Title:       d.Title,
		Description: d.Description,
	}
}
