package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"HustleCollector/internal/domain"
	"HustleCollector/internal/ports"
)

const casesTable = "cases"

var caseColumns = []string{
	"id", "title", "description", "income", "time_required", "tools", "steps",
	"category", "difficulty", "investment_required", "skills_needed",
	"target_audience", "potential_risks", "success_rate", "time_to_profit",
	"scalability", "location_flexible", "age_restriction", "revenue_model",
	"competition_level", "market_trend", "key_metrics", "tags",
	"source_url", "source_type", "raw_content", "upvotes", "comments_count",
	"published", "admin_approved", "created_at",
}

var sortColumns = map[domain.SortField]string{
	domain.SortCreatedAt:     "created_at",
	domain.SortUpvotes:       "upvotes",
	domain.SortCommentsCount: "comments_count",
	domain.SortTitle:         "title",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists cases into Postgres.
type PostgresRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
}

var _ ports.CaseRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation. Every statement is
// bounded by queryTimeout when it is positive.
func NewPostgresRepository(db *sql.DB, queryTimeout time.Duration) *PostgresRepository {
	return &PostgresRepository{db: db, queryTimeout: queryTimeout}
}

func (r *PostgresRepository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}

// Create inserts c as a new row and fills in its id and created_at.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Case) error {
	query, args, err := insertCase(*c).ToSql()
	if err != nil {
		return fmt.Errorf("%w: build insert: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("%w: insert case: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Get returns one case by id, or domain.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (domain.Case, error) {
	query, args, err := psql.Select(caseColumns...).From(casesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Case{}, fmt.Errorf("%w: build select: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	c, err := scanCase(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Case{}, fmt.Errorf("case %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Case{}, fmt.Errorf("%w: get case: %v", domain.ErrPersistence, err)
	}
	return c, nil
}

// Query returns one filtered, sorted page plus the unpaged total.
func (r *PostgresRepository) Query(ctx context.Context, q domain.CaseQuery) (domain.CasePage, error) {
	q = q.Normalize()

	countSQL, countArgs, err := countCases(q.Filter).ToSql()
	if err != nil {
		return domain.CasePage{}, fmt.Errorf("%w: build count: %v", domain.ErrPersistence, err)
	}
	listSQL, listArgs, err := selectCases(q).ToSql()
	if err != nil {
		return domain.CasePage{}, fmt.Errorf("%w: build select: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return domain.CasePage{}, fmt.Errorf("%w: count cases: %v", domain.ErrPersistence, err)
	}

	rows, err := r.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return domain.CasePage{}, fmt.Errorf("%w: query cases: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	cases := make([]domain.Case, 0, q.Limit)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return domain.CasePage{}, fmt.Errorf("%w: scan case: %v", domain.ErrPersistence, err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return domain.CasePage{}, fmt.Errorf("%w: rows iteration: %v", domain.ErrPersistence, err)
	}

	return domain.CasePage{Cases: cases, Total: total}, nil
}

// Count returns the number of stored cases regardless of moderation state.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	query, args, err := countCases(domain.CaseFilter{}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: build count: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count cases: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

// ExistsSourceURL reports whether a case with this source URL is stored.
func (r *PostgresRepository) ExistsSourceURL(ctx context.Context, sourceURL string) (bool, error) {
	query, args, err := psql.Select("1").From(casesTable).Where(sq.Eq{"source_url": sourceURL}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("%w: build exists: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: source url lookup: %v", domain.ErrPersistence, err)
	}
	return true, nil
}

// DedupRecords loads the dedup features of every stored case.
func (r *PostgresRepository) DedupRecords(ctx context.Context) ([]domain.DedupRecord, error) {
	return r.records(ctx, psql.Select("id", "source_url", "source_type", "title", "description").
		From(casesTable).
		OrderBy("id"))
}

// MissingSourceType lists cases stored before source types were recorded.
func (r *PostgresRepository) MissingSourceType(ctx context.Context) ([]domain.DedupRecord, error) {
	return r.records(ctx, psql.Select("id", "source_url", "source_type", "title", "description").
		From(casesTable).
		Where(sq.Eq{"source_type": nil}).
		OrderBy("id"))
}

func (r *PostgresRepository) records(ctx context.Context, b sq.SelectBuilder) ([]domain.DedupRecord, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build select: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.DedupRecord
	for rows.Next() {
		var (
			rec        domain.DedupRecord
			sourceType sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SourceURL, &sourceType, &rec.Title, &rec.Description); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", domain.ErrPersistence, err)
		}
		if sourceType.Valid {
			rec.SourceType = domain.SourceType(sourceType.String)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows iteration: %v", domain.ErrPersistence, err)
	}
	return out, nil
}

// SetModeration approves or rejects every listed case in one transaction.
// Unknown ids are skipped; the count covers rows that existed.
func (r *PostgresRepository) SetModeration(ctx context.Context, ids []int64, approved bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := moderateCases(ids, approved).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: build update: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin moderation: %v", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: moderate cases: %v", domain.ErrPersistence, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", domain.ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit moderation: %v", domain.ErrPersistence, err)
	}
	return int(affected), nil
}

// Categories returns the distinct non-empty categories in alphabetical order.
func (r *PostgresRepository) Categories(ctx context.Context) ([]string, error) {
	query, args, err := psql.Select("DISTINCT category").
		From(casesTable).
		Where(sq.NotEq{"category": ""}).
		OrderBy("category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build categories: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query categories: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("%w: scan category: %v", domain.ErrPersistence, err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows iteration: %v", domain.ErrPersistence, err)
	}
	return categories, nil
}

// DeleteAll removes every case and returns how many rows were deleted.
func (r *PostgresRepository) DeleteAll(ctx context.Context) (int, error) {
	query, args, err := psql.Delete(casesTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: build delete: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete cases: %v", domain.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", domain.ErrPersistence, err)
	}
	return int(n), nil
}

// SetSourceType fills source_type for a row that still lacks one. It
// reports false when the row was already set or no longer exists.
func (r *PostgresRepository) SetSourceType(ctx context.Context, id int64, st domain.SourceType) (bool, error) {
	query, args, err := psql.Update(casesTable).
		Set("source_type", string(st)).
		Where(sq.Eq{"id": id, "source_type": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%w: build backfill: %v", domain.ErrPersistence, err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: backfill source type: %v", domain.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", domain.ErrPersistence, err)
	}
	return n > 0, nil
}

// Ping checks database reachability.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("%w: no database handle", domain.ErrPersistence)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.db.PingContext(ctx)
}

func insertCase(c domain.Case) sq.InsertBuilder {
	return psql.Insert(casesTable).
		SetMap(map[string]any{
			"title":               c.Title,
			"description":         c.Description,
			"income":              c.Income,
			"time_required":       c.TimeRequired,
			"tools":               pq.Array(nonNil(c.Tools)),
			"steps":               pq.Array(nonNil(c.Steps)),
			"category":            c.Category,
			"difficulty":          string(c.Difficulty),
			"investment_required": c.InvestmentRequired,
			"skills_needed":       c.SkillsNeeded,
			"target_audience":     c.TargetAudience,
			"potential_risks":     c.PotentialRisks,
			"success_rate":        c.SuccessRate,
			"time_to_profit":      c.TimeToProfit,
			"scalability":         c.Scalability,
			"location_flexible":   c.LocationFlexible,
			"age_restriction":     c.AgeRestriction,
			"revenue_model":       c.RevenueModel,
			"competition_level":   c.CompetitionLevel,
			"market_trend":        c.MarketTrend,
			"key_metrics":         c.KeyMetrics,
			"tags":                pq.Array(nonNil(c.Tags)),
			"source_url":          c.SourceURL,
			"source_type":         nullableSourceType(c.SourceType),
			"raw_content":         c.RawContent,
			"upvotes":             c.Upvotes,
			"comments_count":      c.CommentsCount,
			"published":           false,
			"admin_approved":      nil,
		}).
		Suffix("RETURNING id, created_at")
}

func selectCases(q domain.CaseQuery) sq.SelectBuilder {
	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}
	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = sortColumns[domain.SortCreatedAt]
	}

	b := psql.Select(caseColumns...).From(casesTable)
	b = applyFilter(b, q.Filter)
	return b.OrderBy(column+" "+dir, "id DESC").
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset))
}

func countCases(f domain.CaseFilter) sq.SelectBuilder {
	return applyFilter(psql.Select("COUNT(*)").From(casesTable), f)
}

func moderateCases(ids []int64, approved bool) sq.UpdateBuilder {
	return psql.Update(casesTable).
		Set("published", approved).
		Set("admin_approved", approved).
		Where("id = ANY(?)", pq.Array(ids))
}

func applyFilter(b sq.SelectBuilder, f domain.CaseFilter) sq.SelectBuilder {
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		b = b.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"description": pattern},
			sq.ILike{"category": pattern},
			sq.Expr("EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE ?)", pattern),
		})
	}
	if f.SourceType != "" {
		b = b.Where(sq.Eq{"source_type": string(f.SourceType)})
	}
	if category := strings.TrimSpace(f.Category); category != "" {
		b = b.Where(sq.Eq{"category": category})
	}
	switch f.Status {
	case domain.StatusPending:
		b = b.Where(sq.Eq{"admin_approved": nil})
	case domain.StatusApproved:
		b = b.Where(sq.Eq{"admin_approved": true})
	case domain.StatusRejected:
		b = b.Where(sq.Eq{"admin_approved": false})
	case domain.StatusPublished:
		b = b.Where(sq.Eq{"published": true})
	}
	return b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.Case, error) {
	var (
		c             domain.Case
		difficulty    string
		sourceType    sql.NullString
		adminApproved sql.NullBool
		tools         pq.StringArray
		steps         pq.StringArray
		tags          pq.StringArray
	)
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Income, &c.TimeRequired, &tools, &steps,
		&c.Category, &difficulty, &c.InvestmentRequired, &c.SkillsNeeded,
		&c.TargetAudience, &c.PotentialRisks, &c.SuccessRate, &c.TimeToProfit,
		&c.Scalability, &c.LocationFlexible, &c.AgeRestriction, &c.RevenueModel,
		&c.CompetitionLevel, &c.MarketTrend, &c.KeyMetrics, &tags,
		&c.SourceURL, &sourceType, &c.RawContent, &c.Upvotes, &c.CommentsCount,
		&c.Published, &adminApproved, &c.CreatedAt,
	)
	if err != nil {
		return domain.Case{}, err
	}

	c.Difficulty = domain.Difficulty(difficulty)
	c.Tools, c.Steps, c.Tags = []string(tools), []string(steps), []string(tags)
	if sourceType.Valid {
		c.SourceType = domain.SourceType(sourceType.String)
	}
	if adminApproved.Valid {
		v := adminApproved.Bool
		c.AdminApproved = &v
	}
	return c, nil
}

func nullableSourceType(st domain.SourceType) any {
	if st == "" {
		return nil
	}
	return string(st)
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
