package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"HustleCollector/internal/config"
	"HustleCollector/internal/dedup"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/metrics"
	"HustleCollector/internal/ports"
)

const keptReports = 20

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// CollectorDeps wires the driven adapters into the collection orchestrator.
type CollectorDeps struct {
	Connectors []ports.Connector
	Extractor  ports.Extractor
	Repository ports.CaseRepository
	Notifier   ports.Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Config     config.CollectionConfig

	// Sleep and Now default to the wall clock.
	Sleep SleepFunc
	Now   func() time.Time
}

// RunOptions overrides the configured target and round budget for one run.
type RunOptions struct {
	Target    int
	MaxRounds int
}

// Collector runs round-based collection: fetch from every connector,
// extract, deduplicate and admit until the stored count reaches the target.
type Collector struct {
	connectors []ports.Connector
	extractor  ports.Extractor
	repository ports.CaseRepository
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        config.CollectionConfig
	dedup      *dedup.Deduplicator
	sleep      SleepFunc
	now        func() time.Time

	mu     sync.Mutex
	active *runTracker
	runs   map[string]*runTracker
	order  []string
	wg     sync.WaitGroup
}

// NewCollector constructs the orchestrator.
func NewCollector(deps CollectorDeps) *Collector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Collector{
		connectors: deps.Connectors,
		extractor:  deps.Extractor,
		repository: deps.Repository,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        deps.Config,
		dedup:      dedup.New(deps.Config.SimilarityThreshold),
		sleep:      sleep,
		now:        now,
		runs:       make(map[string]*runTracker),
	}
}

// Run executes one collection run synchronously.
func (c *Collector) Run(ctx context.Context, opts RunOptions) (domain.RunReport, error) {
	tracker, err := c.acquire(opts, nil)
	if err != nil {
		return domain.RunReport{}, err
	}
	return c.execute(ctx, tracker)
}

// Start launches a run in the background and returns its id. The run
// outlives ctx's cancellation; Close aborts it.
func (c *Collector) Start(ctx context.Context, opts RunOptions) (string, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tracker, err := c.acquire(opts, cancel)
	if err != nil {
		cancel()
		return "", err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		if _, err := c.execute(runCtx, tracker); err != nil {
			c.logger.Warn("background collection run ended with error", "run_id", tracker.id, "error", err)
		}
	}()
	return tracker.id, nil
}

// Status returns a snapshot of a recent run.
func (c *Collector) Status(runID string) (domain.RunReport, bool) {
	c.mu.Lock()
	tracker, ok := c.runs[runID]
	c.mu.Unlock()
	if !ok {
		return domain.RunReport{}, false
	}
	return tracker.snapshot(), true
}

// Active returns the snapshot of the run in progress, if any.
func (c *Collector) Active() (domain.RunReport, bool) {
	c.mu.Lock()
	tracker := c.active
	c.mu.Unlock()
	if tracker == nil {
		return domain.RunReport{}, false
	}
	return tracker.snapshot(), true
}

// Close aborts a background run and waits for it to finish or for ctx.
func (c *Collector) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.active != nil && c.active.cancel != nil {
		c.active.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) acquire(opts RunOptions, cancel context.CancelFunc) (*runTracker, error) {
	target := opts.Target
	if target <= 0 {
		target = c.cfg.Target
	}
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = max(c.cfg.MaxRounds, 1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunInProgress, c.active.id)
	}

	tracker := newRunTracker(uuid.NewString(), target, maxRounds, c.now(), cancel)
	c.active = tracker
	c.runs[tracker.id] = tracker
	c.order = append(c.order, tracker.id)
	if len(c.order) > keptReports {
		delete(c.runs, c.order[0])
		c.order = c.order[1:]
	}
	return tracker, nil
}

func (c *Collector) release(tracker *runTracker) {
	c.mu.Lock()
	if c.active == tracker {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Collector) execute(ctx context.Context, tracker *runTracker) (domain.RunReport, error) {
	defer c.release(tracker)

	logger := c.logger.With("run_id", tracker.id)
	started := c.now()
	c.metrics.RunStarted()
	logger.Info("collection run started", "target", tracker.target, "max_rounds", tracker.maxRounds, "sources", len(c.connectors))

	err := c.rounds(ctx, tracker, logger)

	outcome := "completed"
	if err != nil {
		outcome = "aborted"
		tracker.abort(err)
		logger.Error("collection run aborted", "kind", domain.ErrorKind(err), "error", err)
	}
	report := tracker.finish(c.now())
	c.metrics.RunFinished(outcome, c.now().Sub(started).Seconds())

	logger.Info("collection run finished",
		"state", report.State,
		"rounds", report.Rounds,
		"admitted", report.Admitted,
		"duplicates", report.Duplicates,
		"final_count", report.FinalCount,
	)

	if report.Admitted > 0 {
		c.notify(ctx, report, tracker.admittedCases(), logger)
	}
	return report, err
}

func (c *Collector) rounds(ctx context.Context, tracker *runTracker, logger *slog.Logger) error {
	records, err := c.repository.DedupRecords(ctx)
	if err != nil {
		return fmt.Errorf("load dedup index: %w", err)
	}
	index := dedup.NewIndex(c.dedup, records)
	seen := make(map[string]struct{})

	for round := 1; round <= tracker.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := tracker.transition(domain.RunFetching); err != nil {
			return err
		}
		tracker.startRound(round)
		batches := c.fetchRound(ctx, tracker, logger)
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := tracker.transition(domain.RunExtracting); err != nil {
			return err
		}
		jobs := c.screen(ctx, batches, seen, index, tracker, logger)
		results := c.extractAll(ctx, jobs)

		if err := tracker.transition(domain.RunAdmitting); err != nil {
			return err
		}
		// Drafts finished before a cancellation are still stored.
		admitCtx := ctx
		if ctx.Err() != nil {
			admitCtx = context.WithoutCancel(ctx)
		}
		c.admitAll(admitCtx, results, index, tracker, logger)
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := tracker.transition(domain.RunIdle); err != nil {
			return err
		}

		if err := c.sleep(ctx, c.cfg.SettlePeriod); err != nil {
			return err
		}
		count, err := c.repository.Count(ctx)
		if err != nil {
			tracker.failure(domain.ErrorKind(err))
			c.metrics.Failure("count", domain.ErrorKind(err))
			logger.Warn("count cases failed", "round", round, "kind", domain.ErrorKind(err), "error", err)
		} else {
			tracker.setCount(count)
			c.metrics.RoundFinished(count)
			logger.Info("round finished", "round", round, "count", count, "target", tracker.target)
			if count >= tracker.target {
				return nil
			}
		}

		if round < tracker.maxRounds {
			if err := c.sleep(ctx, c.cfg.RestInterval); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchRound drains every connector concurrently. A failing source keeps
// whatever it yielded before the error and never affects the others.
func (c *Collector) fetchRound(ctx context.Context, tracker *runTracker, logger *slog.Logger) [][]domain.RawPost {
	roundCtx, cancel := withTimeout(ctx, c.cfg.RoundTimeout)
	defer cancel()

	batches := make([][]domain.RawPost, len(c.connectors))
	var g errgroup.Group
	for i, conn := range c.connectors {
		g.Go(func() error {
			srcCtx, srcCancel := withTimeout(roundCtx, c.cfg.SourceTimeout)
			defer srcCancel()

			name := conn.Name()
			var posts []domain.RawPost
			for post, err := range conn.Fetch(srcCtx, c.cfg.PerSourceLimit) {
				if err != nil {
					kind := domain.ErrorKind(err)
					tracker.failure(kind)
					c.metrics.Failure("fetch", kind)
					logger.Warn("source fetch failed", "source", name, "kind", kind, "fetched", len(posts), "error", err)
					break
				}
				posts = append(posts, post)
				c.metrics.PostFetched(name)
			}
			tracker.fetched(name, len(posts))
			batches[i] = posts
			return nil
		})
	}
	_ = g.Wait()
	return batches
}

// screen drops posts already seen in this run and posts whose URL is
// stored, before any AI call is spent on them.
func (c *Collector) screen(ctx context.Context, batches [][]domain.RawPost, seen map[string]struct{}, index *dedup.Index, tracker *runTracker, logger *slog.Logger) []domain.RawPost {
	var jobs []domain.RawPost
	for _, posts := range batches {
		for _, post := range posts {
			if _, ok := seen[post.SourceID]; ok {
				continue
			}
			seen[post.SourceID] = struct{}{}

			if index.HasURL(post.URL) {
				tracker.duplicate()
				c.metrics.DuplicateRejected()
				continue
			}
			exists, err := c.sourceURLExists(ctx, post.URL)
			if err != nil {
				kind := domain.ErrorKind(err)
				tracker.failure(kind)
				c.metrics.Failure("admit", kind)
				logger.Warn("source url lookup failed", "source", post.Prefix(), "source_id", post.SourceID, "kind", kind, "error", err)
				continue
			}
			if exists {
				tracker.duplicate()
				c.metrics.DuplicateRejected()
				continue
			}
			jobs = append(jobs, post)
		}
	}
	return jobs
}

func (c *Collector) sourceURLExists(ctx context.Context, sourceURL string) (bool, error) {
	if sourceURL == "" {
		return false, nil
	}
	itemCtx, cancel := withTimeout(ctx, c.cfg.ItemTimeout)
	defer cancel()
	return c.repository.ExistsSourceURL(itemCtx, sourceURL)
}

type extraction struct {
	post  domain.RawPost
	draft domain.CaseDraft
	err   error
}

// extractAll runs the extractor over jobs with at most Workers calls in
// flight. Results keep the order of jobs.
func (c *Collector) extractAll(ctx context.Context, jobs []domain.RawPost) []extraction {
	results := make([]extraction, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(c.cfg.Workers, 1))

	for i, post := range jobs {
		g.Go(func() error {
			itemCtx, cancel := withTimeout(ctx, c.cfg.ItemTimeout)
			defer cancel()

			began := c.now()
			draft, err := c.extractor.Extract(itemCtx, post)
			c.metrics.ExtractionObserved(c.now().Sub(began).Seconds())
			if err != nil && itemCtx.Err() != nil && !errors.Is(err, domain.ErrTimeout) {
				err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
			}
			results[i] = extraction{post: post, draft: draft, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Collector) admitAll(ctx context.Context, results []extraction, index *dedup.Index, tracker *runTracker, logger *slog.Logger) {
	for _, res := range results {
		post := res.post
		if res.err != nil {
			kind := domain.ErrorKind(res.err)
			tracker.failure(kind)
			c.metrics.Failure("extract", kind)
			logger.Warn("extraction failed", "source", post.Prefix(), "source_id", post.SourceID, "kind", kind, "error", res.err)
			continue
		}

		stored := domain.NewCaseFromDraft(res.draft)
		_, err := index.Admit(ctx, res.draft, func(ctx context.Context) (int64, error) {
			itemCtx, cancel := withTimeout(ctx, c.cfg.ItemTimeout)
			defer cancel()
			if err := c.repository.Create(itemCtx, &stored); err != nil {
				return 0, err
			}
			return stored.ID, nil
		})
		switch {
		case errors.Is(err, domain.ErrDuplicate):
			tracker.duplicate()
			c.metrics.DuplicateRejected()
			logger.Debug("duplicate rejected", "source", post.Prefix(), "source_id", post.SourceID)
		case err != nil:
			kind := domain.ErrorKind(err)
			tracker.failure(kind)
			c.metrics.Failure("admit", kind)
			logger.Warn("admission failed", "source", post.Prefix(), "source_id", post.SourceID, "kind", kind, "error", err)
		default:
			tracker.admitted(stored)
			c.metrics.CaseAdmitted()
			logger.Debug("case admitted", "source", post.Prefix(), "source_id", post.SourceID, "case_id", stored.ID)
		}
	}
}

func (c *Collector) notify(ctx context.Context, report domain.RunReport, admitted []domain.Case, logger *slog.Logger) {
	if c.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.notifier.PublishDigest(notifyCtx, buildDigestMessage(report, admitted)); err != nil {
		logger.Warn("publish moderation digest failed", "error", err)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
