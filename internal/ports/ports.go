package ports

import (
	"context"
	"iter"
	"time"

	"HustleCollector/internal/domain"
)

// Connector pulls raw posts from one external source.
type Connector interface {
	Name() string
	SourceType() domain.SourceType
	// Fetch yields up to limit posts lazily, in source order. A yielded error
	// ends the sequence.
	Fetch(ctx context.Context, limit int) iter.Seq2[domain.RawPost, error]
}

// Extractor turns free-form post text into a structured draft.
type Extractor interface {
	Extract(ctx context.Context, post domain.RawPost) (domain.CaseDraft, error)
}

// ProviderProbe reports AI provider reachability for health checks.
type ProviderProbe interface {
	TestConnection(ctx context.Context) bool
	CurrentProvider() string
}

// CaseRepository persists cases and serves moderation and public queries.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	Get(ctx context.Context, id int64) (domain.Case, error)
	Query(ctx context.Context, q domain.CaseQuery) (domain.CasePage, error)
	Count(ctx context.Context) (int, error)
	ExistsSourceURL(ctx context.Context, sourceURL string) (bool, error)
	DedupRecords(ctx context.Context) ([]domain.DedupRecord, error)
	SetModeration(ctx context.Context, ids []int64, approved bool) (int, error)
	Categories(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) (int, error)
	MissingSourceType(ctx context.Context) ([]domain.DedupRecord, error)
	SetSourceType(ctx context.Context, id int64, st domain.SourceType) (bool, error)
	Ping(ctx context.Context) error
}

// Notifier streams moderation digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when collection runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
