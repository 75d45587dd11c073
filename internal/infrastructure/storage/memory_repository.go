package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"HustleCollector/internal/domain"
	"HustleCollector/internal/ports"
)

// MemoryRepository keeps cases in process memory. It backs the "memory"
// database driver and serves as the repository fake in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	cases  map[int64]domain.Case
	now    func() time.Time
}

var _ ports.CaseRepository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cases: make(map[int64]domain.Case), now: time.Now}
}

// Create stores c as pending and unpublished, assigning id and created_at.
func (r *MemoryRepository) Create(ctx context.Context, c *domain.Case) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = r.now().UTC()
	c.Published = false
	c.AdminApproved = nil
	r.cases[c.ID] = cloneCase(*c)
	return nil
}

// Get returns one case by id, or domain.ErrNotFound.
func (r *MemoryRepository) Get(_ context.Context, id int64) (domain.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return domain.Case{}, fmt.Errorf("case %d: %w", id, domain.ErrNotFound)
	}
	return cloneCase(c), nil
}

// Query filters, sorts and pages the stored cases.
func (r *MemoryRepository) Query(_ context.Context, q domain.CaseQuery) (domain.CasePage, error) {
	q = q.Normalize()

	r.mu.RLock()
	matched := make([]domain.Case, 0, len(r.cases))
	for _, c := range r.cases {
		if matchesFilter(c, q.Filter) {
			matched = append(matched, cloneCase(c))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Case) int {
		order := compareBy(a, b, q.SortBy)
		if !q.Ascending {
			order = -order
		}
		if order != 0 {
			return order
		}
		return cmp.Compare(b.ID, a.ID)
	})

	page := domain.CasePage{Cases: []domain.Case{}, Total: len(matched)}
	if q.Offset < len(matched) {
		end := min(q.Offset+q.Limit, len(matched))
		page.Cases = matched[q.Offset:end]
	}
	return page, nil
}

// Count returns the number of stored cases.
func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cases), nil
}

// ExistsSourceURL reports whether a case with this source URL is stored.
func (r *MemoryRepository) ExistsSourceURL(_ context.Context, sourceURL string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cases {
		if c.SourceURL == sourceURL {
			return true, nil
		}
	}
	return false, nil
}

// DedupRecords returns the dedup features of every case ordered by id.
func (r *MemoryRepository) DedupRecords(_ context.Context) ([]domain.DedupRecord, error) {
	return r.records(func(domain.Case) bool { return true }), nil
}

// MissingSourceType lists cases whose source type was never recorded.
func (r *MemoryRepository) MissingSourceType(_ context.Context) ([]domain.DedupRecord, error) {
	return r.records(func(c domain.Case) bool { return c.SourceType == "" }), nil
}

func (r *MemoryRepository) records(keep func(domain.Case) bool) []domain.DedupRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DedupRecord, 0, len(r.cases))
	for _, c := range r.cases {
		if keep(c) {
			out = append(out, c.Record())
		}
	}
	slices.SortFunc(out, func(a, b domain.DedupRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// SetModeration updates every listed case under one lock. Unknown ids are
// skipped and repeated ids count once.
func (r *MemoryRepository) SetModeration(_ context.Context, ids []int64, approved bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int64]struct{}, len(ids))
	updated := 0
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		c, ok := r.cases[id]
		if !ok {
			continue
		}
		v := approved
		c.AdminApproved = &v
		c.Published = approved
		r.cases[id] = c
		updated++
	}
	return updated, nil
}

// Categories returns distinct non-empty categories in alphabetical order.
func (r *MemoryRepository) Categories(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := map[string]struct{}{}
	for _, c := range r.cases {
		if c.Category != "" {
			set[c.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for category := range set {
		out = append(out, category)
	}
	slices.Sort(out)
	return out, nil
}

// DeleteAll removes every case and returns how many were removed.
func (r *MemoryRepository) DeleteAll(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.cases)
	r.cases = make(map[int64]domain.Case)
	return n, nil
}

// SetSourceType fills the source type of a case that has none.
func (r *MemoryRepository) SetSourceType(_ context.Context, id int64, st domain.SourceType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok || c.SourceType != "" {
		return false, nil
	}
	c.SourceType = st
	r.cases[id] = c
	return true, nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Seed inserts a case verbatim, keeping its moderation flags and source
// type. It exists for fixtures and legacy-row scenarios.
func (r *MemoryRepository) Seed(c domain.Case) domain.Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	r.cases[c.ID] = cloneCase(c)
	return cloneCase(c)
}

func matchesFilter(c domain.Case, f domain.CaseFilter) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		hit := strings.Contains(strings.ToLower(c.Title), term) ||
			strings.Contains(strings.ToLower(c.Description), term) ||
			strings.Contains(strings.ToLower(c.Category), term) ||
			slices.ContainsFunc(c.Tags, func(tag string) bool {
				return strings.Contains(strings.ToLower(tag), term)
			})
		if !hit {
			return false
		}
	}
	if f.SourceType != "" && c.SourceType != f.SourceType {
		return false
	}
	if category := strings.TrimSpace(f.Category); category != "" && c.Category != category {
		return false
	}
	switch f.Status {
	case domain.StatusPending:
		return c.AdminApproved == nil
	case domain.StatusApproved:
		return c.AdminApproved != nil && *c.AdminApproved
	case domain.StatusRejected:
		return c.AdminApproved != nil && !*c.AdminApproved
	case domain.StatusPublished:
		return c.Published
	}
	return true
}

func compareBy(a, b domain.Case, field domain.SortField) int {
	switch field {
	case domain.SortUpvotes:
		return cmp.Compare(a.Upvotes, b.Upvotes)
	case domain.SortCommentsCount:
		return cmp.Compare(a.CommentsCount, b.CommentsCount)
	case domain.SortTitle:
		return strings.Compare(a.Title, b.Title)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cloneCase(c domain.Case) domain.Case {
	c.Tools = slices.Clone(c.Tools)
	c.Steps = slices.Clone(c.Steps)
	c.Tags = slices.Clone(c.Tags)
	if c.AdminApproved != nil {
		v := *c.AdminApproved
		c.AdminApproved = &v
	}
	return c
}
