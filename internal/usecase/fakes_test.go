package usecase

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
)

var phrases = []string{
	"Selling handmade candles at weekend farmers markets",
	"Freelance bookkeeping for three local restaurants",
	"Reselling vintage sneakers bought at estate sales",
	"Teaching guitar lessons over video calls",
	"Flipping used furniture found on curb alerts",
	"Writing niche newsletters sponsored by software tools",
	"Renting out camera gear to wedding photographers",
	"Building spreadsheet templates sold on Gumroad",
	"Mowing lawns for elderly neighbours every Saturday",
	"Translating product manuals from German to English",
}

type fakeConnector struct {
	name  string
	st    domain.SourceType
	posts []domain.RawPost
	err   error
	hang  bool
	calls atomic.Int32
}

func newFakeConnector(name string, st domain.SourceType, first, n int) *fakeConnector {
	c := &fakeConnector{name: name, st: st}
	for i := first; i < first+n; i++ {
		c.posts = append(c.posts, domain.RawPost{
			SourceID:   fmt.Sprintf("%s_%d", name, i),
			SourceType: st,
			Title:      phrases[i%len(phrases)],
			Body:       phrases[i%len(phrases)] + " brings in a few hundred dollars a month.",
			URL:        fmt.Sprintf("https://%s.example/post/%d", name, i),
		})
	}
	return c
}

func (c *fakeConnector) Name() string                  { return c.name }
func (c *fakeConnector) SourceType() domain.SourceType { return c.st }

func (c *fakeConnector) Fetch(ctx context.Context, limit int) iter.Seq2[domain.RawPost, error] {
	c.calls.Add(1)
	return func(yield func(domain.RawPost, error) bool) {
		if c.hang {
			<-ctx.Done()
			yield(domain.RawPost{}, ctx.Err())
			return
		}
		if c.err != nil {
			yield(domain.RawPost{}, c.err)
			return
		}
		for i, p := range c.posts {
			if i >= limit {
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

// fakeExtractor turns a post into a draft whose text is the post text.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   int
	fail    map[string]error
	rewrite map[string]string
	block   chan struct{}
	after   func(domain.RawPost)
}

func (e *fakeExtractor) Extract(ctx context.Context, post domain.RawPost) (domain.CaseDraft, error) {
	if err := ctx.Err(); err != nil {
		return domain.CaseDraft{}, err
	}
	e.mu.Lock()
	e.calls++
	err := e.fail[post.SourceID]
	description := post.Body
	if v, ok := e.rewrite[post.SourceID]; ok {
		description = v
	}
	block := e.block
	after := e.after
	e.mu.Unlock()
	if after != nil {
		defer after(post)
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.CaseDraft{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.CaseDraft{}, err
	}
	return domain.CaseDraft{
		CaseContent: domain.CaseContent{Title: post.Title, Description: description, Category: "Services"},
		SourceID:    post.SourceID,
		SourceURL:   post.URL,
		SourceType:  post.SourceType,
		RawContent:  post.Text(),
	}, nil
}

func (e *fakeExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type recordingSleep struct {
	mu   sync.Mutex
	naps []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.naps = append(s.naps, d)
	s.mu.Unlock()
	return ctx.Err()
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	n.messages = append(n.messages, digest)
	n.mu.Unlock()
	return nil
}

func testCollectionConfig() config.CollectionConfig {
	return config.CollectionConfig{
		Target:              5,
		MaxRounds:           3,
		PerSourceLimit:      10,
		Workers:             3,
		SourceTimeout:       time.Second,
		RoundTimeout:        2 * time.Second,
		ItemTimeout:         time.Second,
		SettlePeriod:        2 * time.Second,
		RestInterval:        30 * time.Second,
		SimilarityThreshold: 0.85,
	}
}
