package dedup

import (
	"context"
	"strings"
	"sync"

	"HustleCollector/internal/domain"
)

// Index holds the dedup features of every known case for one collection
// run. All methods are safe for concurrent use.
type Index struct {
	dedup *Deduplicator

	mu     sync.Mutex
	urls   map[string]struct{}
	byType map[domain.SourceType][]domain.DedupRecord
}

// NewIndex seeds an index with existing records.
func NewIndex(d *Deduplicator, records []domain.DedupRecord) *Index {
	idx := &Index{
		dedup:  d,
		urls:   make(map[string]struct{}, len(records)),
		byType: make(map[domain.SourceType][]domain.DedupRecord),
	}
	for _, rec := range records {
		idx.add(rec)
	}
	return idx
}

// Size returns the number of indexed records.
func (i *Index) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, recs := range i.byType {
		n += len(recs)
	}
	return n
}

// HasURL reports whether a case with this source URL is already indexed.
func (i *Index) HasURL(sourceURL string) bool {
	key := strings.TrimSpace(sourceURL)
	if key == "" {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.urls[key]
	return ok
}

// Admit checks draft against the index and, when it is new, calls persist
// and indexes the stored record. The check and the insert happen under one
// lock so two near-identical drafts in a run cannot both be admitted.
// It returns domain.ErrDuplicate when the draft repeats a known case.
func (i *Index) Admit(ctx context.Context, draft domain.CaseDraft, persist func(context.Context) (int64, error)) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.duplicateLocked(draft) {
		return 0, domain.ErrDuplicate
	}

	id, err := persist(ctx)
	if err != nil {
		return 0, err
	}

	rec := draft.Record()
	rec.ID = id
	i.add(rec)
	return id, nil
}

func (i *Index) duplicateLocked(draft domain.CaseDraft) bool {
	if _, ok := i.urls[strings.TrimSpace(draft.SourceURL)]; ok && draft.SourceURL != "" {
		return true
	}
	return i.dedup.IsDuplicate(draft, i.byType[draft.SourceType])
}

func (i *Index) add(rec domain.DedupRecord) {
	if key := strings.TrimSpace(rec.SourceURL); key != "" {
		i.urls[key] = struct{}{}
	}
	i.byType[rec.SourceType] = append(i.byType[rec.SourceType], rec)
}
