package domain

// Pagination bounds applied to every list query.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// SortField is a whitelisted ORDER BY column.
type SortField string

const (
	SortCreatedAt     SortField = "created_at"
	SortUpvotes       SortField = "upvotes"
	SortCommentsCount SortField = "comments_count"
	SortTitle         SortField = "title"
)

// ParseSortField falls back to created_at for unknown columns.
func ParseSortField(raw string) SortField {
	switch f := SortField(raw); f {
	case SortUpvotes, SortCommentsCount, SortTitle:
		return f
	case "upvotes_count", "upvotesCount":
		return SortUpvotes
	case "commentsCount":
		return SortCommentsCount
	default:
		return SortCreatedAt
	}
}

// CaseFilter narrows a listing; zero values are unconstrained.
type CaseFilter struct {
	Search     string
	SourceType SourceType
	Status     ModerationStatus
	Category   string
}

// CaseQuery is the single filtered, sorted, paginated listing request.
type CaseQuery struct {
	Filter    CaseFilter
	SortBy    SortField
	Ascending bool
	Limit     int
	Offset    int
}

// Normalize clamps pagination and fills sort defaults.
func (q CaseQuery) Normalize() CaseQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.SortBy == "" {
		q.SortBy = SortCreatedAt
	}
	return q
}

// CasePage is one page of a listing plus the unpaginated total.
type CasePage struct {
	Cases []Case
	Total int
}
