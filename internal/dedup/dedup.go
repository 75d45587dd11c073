// Package dedup decides whether a freshly extracted draft repeats a case
// that is already stored.
package dedup

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"HustleCollector/internal/domain"
)

const (
	// DefaultThreshold is the similarity at or above which two texts of the
	// same source type are considered the same case.
	DefaultThreshold = 0.85

	maxCompareRunes = 600
)

// Deduplicator compares drafts against stored dedup records.
type Deduplicator struct {
	threshold float64
}

// New returns a deduplicator; thresholds outside (0, 1] fall back to the default.
func New(threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{threshold: threshold}
}

// Threshold reports the configured similarity threshold.
func (d *Deduplicator) Threshold() float64 {
	return d.threshold
}

// IsDuplicate reports whether draft matches any existing record by exact
// source URL, or by text similarity within the same source type.
func (d *Deduplicator) IsDuplicate(draft domain.CaseDraft, existing []domain.DedupRecord) bool {
	candidate := draft.Record()
	url := strings.TrimSpace(candidate.SourceURL)
	text := Normalize(candidate.Title + " " + candidate.Description)

	for _, rec := range existing {
		if url != "" && url == strings.TrimSpace(rec.SourceURL) {
			return true
		}
		if rec.SourceType != candidate.SourceType {
			continue
		}
		if d.similar(text, Normalize(rec.Title+" "+rec.Description)) {
			return true
		}
	}
	return false
}

func (d *Deduplicator) similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := len([]rune(a)), len([]rune(b))
	shorter, longer := min(la, lb), max(la, lb)
	// distance >= longer-shorter, so the ratio bounds the best similarity.
	if float64(shorter)/float64(longer) < d.threshold {
		return false
	}
	return Similarity(a, b) >= d.threshold
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	longer := max(len([]rune(a)), len([]rune(b)))
	if longer == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longer)
}

// Normalize lower-cases, strips punctuation, collapses whitespace and caps
// the result so comparisons stay bounded.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	runes := 0
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
				runes++
			}
			space = false
			b.WriteRune(r)
			runes++
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			space = true
		}
		if runes >= maxCompareRunes {
			break
		}
	}
	return b.String()
}
