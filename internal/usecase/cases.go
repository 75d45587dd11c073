package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"HustleCollector/internal/domain"
	"HustleCollector/internal/metrics"
	"HustleCollector/internal/ports"
)

// CaseService exposes moderation and query operations over the repository.
type CaseService struct {
	repository ports.CaseRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewCaseService wires the repository; metrics may be nil.
func NewCaseService(repository ports.CaseRepository, m *metrics.Metrics, logger *slog.Logger) *CaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseService{repository: repository, metrics: m, logger: logger}
}

// CaseListing is one page of cases plus everything a listing screen needs.
type CaseListing struct {
	Cases      []domain.Case
	Total      int
	Categories []string
	Page       int
	Limit      int
	TotalPages int
}

// GetAllCases pages through every case, newest first. A non-positive limit
// means domain.DefaultLimit and anything above domain.MaxLimit is capped.
func (s *CaseService) GetAllCases(ctx context.Context, limit, offset int) (domain.CasePage, error) {
	return s.repository.Query(ctx, domain.CaseQuery{Limit: limit, Offset: offset})
}

// GetPublishedCases pages through the publicly visible cases, newest first.
// limit is capped at domain.MaxLimit.
func (s *CaseService) GetPublishedCases(ctx context.Context, limit, offset int) (domain.CasePage, error) {
	return s.repository.Query(ctx, domain.CaseQuery{
		Filter: domain.CaseFilter{Status: domain.StatusPublished},
		Limit:  limit,
		Offset: offset,
	})
}

// GetAllCasesWithFilters pages through cases matching filter; limit is
// capped at domain.MaxLimit.
func (s *CaseService) GetAllCasesWithFilters(ctx context.Context, filter domain.CaseFilter, limit, offset int) (domain.CasePage, error) {
	return s.repository.Query(ctx, domain.CaseQuery{Filter: filter, Limit: limit, Offset: offset})
}

// GetCaseByID returns any case regardless of moderation state.
func (s *CaseService) GetCaseByID(ctx context.Context, id int64) (domain.Case, error) {
	return s.repository.Get(ctx, id)
}

// GetPublishedCaseByID hides unpublished cases behind domain.ErrNotFound.
func (s *CaseService) GetPublishedCaseByID(ctx context.Context, id int64) (domain.Case, error) {
	c, err := s.repository.Get(ctx, id)
	if err != nil {
		return domain.Case{}, err
	}
	if !c.Published {
		return domain.Case{}, fmt.Errorf("case %d: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

// BatchUpdatePublishStatus approves (publishes) or rejects (unpublishes)
// every listed case. Unknown ids are skipped; the count covers rows that existed.
func (s *CaseService) BatchUpdatePublishStatus(ctx context.Context, ids []int64, approved bool) (int, error) {
	n, err := s.repository.SetModeration(ctx, ids, approved)
	if err != nil {
		return 0, err
	}

	action := "reject"
	if approved {
		action = "approve"
	}
	s.metrics.Moderated(action, n)
	s.logger.Info("moderation applied", "action", action, "requested", len(ids), "updated", n)
	return n, nil
}

// ClearAllData irreversibly deletes every case and returns how many were removed.
func (s *CaseService) ClearAllData(ctx context.Context) (int, error) {
	n, err := s.repository.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.metrics.Moderated("clear_data", n)
	s.logger.Warn("all cases deleted", "removed", n)
	return n, nil
}

// GetAllCategories lists the distinct categories in use.
func (s *CaseService) GetAllCategories(ctx context.Context) ([]string, error) {
	return s.repository.Categories(ctx)
}

// CountCases returns the total number of stored cases.
func (s *CaseService) CountCases(ctx context.Context) (int, error) {
	return s.repository.Count(ctx)
}

// BackfillSourceTypes derives source_type from source_url for every case
// stored without one and returns how many rows were updated.
func (s *CaseService) BackfillSourceTypes(ctx context.Context) (int, error) {
	records, err := s.repository.MissingSourceType(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, rec := range records {
		ok, err := s.repository.SetSourceType(ctx, rec.ID, domain.DeriveSourceType(rec.SourceURL))
		if err != nil {
			return updated, fmt.Errorf("backfill case %d: %w", rec.ID, err)
		}
		if ok {
			updated++
		}
	}

	s.logger.Info("source type backfill finished", "candidates", len(records), "updated", updated)
	return updated, nil
}

// ListCases runs one filtered, sorted, paginated query and attaches the
// category list and pagination summary.
func (s *CaseService) ListCases(ctx context.Context, q domain.CaseQuery) (CaseListing, error) {
	q = q.Normalize()

	page, err := s.repository.Query(ctx, q)
	if err != nil {
		return CaseListing{}, err
	}
	categories, err := s.repository.Categories(ctx)
	if err != nil {
		return CaseListing{}, err
	}

	return CaseListing{
		Cases:      page.Cases,
		Total:      page.Total,
		Categories: categories,
		Page:       q.Offset/q.Limit + 1,
		Limit:      q.Limit,
		TotalPages: (page.Total + q.Limit - 1) / q.Limit,
	}, nil
}
