package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"HustleCollector/internal/domain"
)

const maxTags = 12

var numberExpr = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// flexString accepts JSON strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		*f = flexString(data)
	default:
		return fmt.Errorf("expected string, got %s", data)
	}
	return nil
}

// flexList accepts an array of strings or a single delimited string.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, string(item))
		}
		*f = out
		return nil
	}
	var single flexString
	if err := single.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = strings.FieldsFunc(string(single), func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	return nil
}

// flexBool accepts booleans and yes/no style strings.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "remote", "anywhere":
		*f = true
	case "false", "no", "0", "":
		*f = false
	default:
		return fmt.Errorf("expected boolean, got %s", data)
	}
	return nil
}

type rawDraft struct {
	Relevant           *flexBool  `json:"relevant"`
	Title              flexString `json:"title"`
	Description        flexString `json:"description"`
	Income             flexString `json:"income"`
	TimeRequired       flexString `json:"time_required"`
	Tools              flexList   `json:"tools"`
	Steps              flexList   `json:"steps"`
	Category           flexString `json:"category"`
	Difficulty         flexString `json:"difficulty"`
	InvestmentRequired flexString `json:"investment_required"`
	SkillsNeeded       flexString `json:"skills_needed"`
	TargetAudience     flexString `json:"target_audience"`
	PotentialRisks     flexString `json:"potential_risks"`
	SuccessRate        flexString `json:"success_rate"`
	TimeToProfit       flexString `json:"time_to_profit"`
	Scalability        flexString `json:"scalability"`
	LocationFlexible   flexBool   `json:"location_flexible"`
	AgeRestriction     flexString `json:"age_restriction"`
	RevenueModel       flexString `json:"revenue_model"`
	CompetitionLevel   flexString `json:"competition_level"`
	MarketTrend        flexString `json:"market_trend"`
	KeyMetrics         flexString `json:"key_metrics"`
	Tags               flexList   `json:"tags"`
}

// ValidateDraft maps a model answer onto a CaseDraft, rejecting payloads
// that are not a JSON object, lack a description or carry an unknown
// difficulty. Provenance and counters always come from the post.
func ValidateDraft(content string, post domain.RawPost) (domain.CaseDraft, error) {
	payload := stripFences(content)
	if !strings.HasPrefix(payload, "{") {
		return domain.CaseDraft{}, fmt.Errorf("%w: answer is not a JSON object", domain.ErrInvalidResponse)
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return domain.CaseDraft{}, fmt.Errorf("%w: decode draft: %v", domain.ErrInvalidResponse, err)
	}

	if raw.Relevant != nil && !bool(*raw.Relevant) {
		return domain.CaseDraft{}, fmt.Errorf("%w: post %s is not a side-hustle case", domain.ErrExtractionFailed, post.SourceID)
	}

	description := clean(raw.Description)
	if description == "" {
		return domain.CaseDraft{}, fmt.Errorf("%w: empty description", domain.ErrInvalidResponse)
	}

	difficulty, ok := domain.ParseDifficulty(string(raw.Difficulty))
	if !ok {
		return domain.CaseDraft{}, fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidResponse, raw.Difficulty)
	}

	title := clean(raw.Title)
	if title == "" {
		title = strings.TrimSpace(post.Title)
	}

	sourceType := post.SourceType
	if sourceType == "" {
		sourceType = domain.DeriveSourceType(post.URL)
	}

	text := post.Text()
	return domain.CaseDraft{
		CaseContent: domain.CaseContent{
			Title:              title,
			Description:        description,
			Income:             clean(raw.Income),
			TimeRequired:       clean(raw.TimeRequired),
			Tools:              cleanList(raw.Tools, false),
			Steps:              cleanList(raw.Steps, false),
			Category:           clean(raw.Category),
			Difficulty:         difficulty,
			InvestmentRequired: clean(raw.InvestmentRequired),
			SkillsNeeded:       clean(raw.SkillsNeeded),
			TargetAudience:     clean(raw.TargetAudience),
			PotentialRisks:     clean(raw.PotentialRisks),
			SuccessRate:        grounded(clean(raw.SuccessRate), text),
			TimeToProfit:       clean(raw.TimeToProfit),
			Scalability:        clean(raw.Scalability),
			LocationFlexible:   bool(raw.LocationFlexible),
			AgeRestriction:     clean(raw.AgeRestriction),
			RevenueModel:       clean(raw.RevenueModel),
			CompetitionLevel:   clean(raw.CompetitionLevel),
			MarketTrend:        clean(raw.MarketTrend),
			KeyMetrics:         clean(raw.KeyMetrics),
			Tags:               cleanList(raw.Tags, true),
		},
		SourceID:      post.SourceID,
		SourceURL:     post.URL,
		SourceType:    domain.ParseSourceType(string(sourceType)),
		RawContent:    text,
		Upvotes:       post.Upvotes,
		CommentsCount: post.CommentsCount,
	}, nil
}

func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clean(v flexString) string {
	s := strings.Join(strings.Fields(string(v)), " ")
	switch strings.ToLower(s) {
	case "unknown", "n/a", "none", "null", "-":
		return ""
	}
	return s
}

func cleanList(items []string, asTags bool) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(items))
	for _, item := range items {
		v := clean(flexString(item))
		if asTags {
			v = strings.ToLower(strings.TrimPrefix(v, "#"))
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if asTags && len(out) == maxTags {
			break
		}
	}
	return out
}

// grounded drops a value whose numbers do not all appear in the source text.
func grounded(value, text string) string {
	if value == "" {
		return ""
	}
	normalized := strings.ReplaceAll(text, ",", "")
	for _, num := range numberExpr.FindAllString(value, -1) {
		plain := strings.ReplaceAll(num, ",", "")
		if _, err := strconv.ParseFloat(plain, 64); err != nil {
			return ""
		}
		if !strings.Contains(normalized, plain) {
			return ""
		}
	}
	return value
}
