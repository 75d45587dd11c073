package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/infrastructure/storage"
	"HustleCollector/internal/logging"
	"HustleCollector/internal/ports"
)

type harness struct {
	collector  *Collector
	repo       *storage.MemoryRepository
	extractor  *fakeExtractor
	sleep      *recordingSleep
	notifier   *recordingNotifier
	connectors []*fakeConnector
}

func newHarness(cfg config.CollectionConfig, connectors ...*fakeConnector) *harness {
	h := &harness{
		repo:       storage.NewMemoryRepository(),
		extractor:  &fakeExtractor{},
		sleep:      &recordingSleep{},
		notifier:   &recordingNotifier{},
		connectors: connectors,
	}
	conns := make([]ports.Connector, 0, len(connectors))
	for _, c := range connectors {
		conns = append(conns, c)
	}
	h.collector = NewCollector(CollectorDeps{
		Connectors: conns,
		Extractor:  h.extractor,
		Repository: h.repo,
		Notifier:   h.notifier,
		Logger:     logging.Discard(),
		Config:     cfg,
		Sleep:      h.sleep.sleep,
	})
	return h
}

func threeSources(perSource int) []*fakeConnector {
	return []*fakeConnector{
		newFakeConnector("reddit", domain.SourceForum, 0, perSource),
		newFakeConnector("producthunt", domain.SourceLaunch, perSource, perSource),
		newFakeConnector("indiehackers", domain.SourceCommunity, 2*perSource, perSource),
	}
}

func TestCollectorStopsAfterRoundReachingTarget(t *testing.T) {
	t.Parallel()

	h := newHarness(testCollectionConfig(), threeSources(2)...)
	report, err := h.collector.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Rounds != 1 {
		t.Fatalf("expected 1 round, got %d", report.Rounds)
	}
	if report.FinalCount != 6 || report.Admitted != 6 {
		t.Fatalf("expected 6 admitted and counted, got %+v", report)
	}
	if report.State != domain.RunIdle || report.Running {
		t.Fatalf("expected finished idle run, got state=%s running=%v", report.State, report.Running)
	}
	wantFetched := map[string]int{"reddit": 2, "producthunt": 2, "indiehackers": 2}
	if diff := cmp.Diff(wantFetched, report.Fetched); diff != "" {
		t.Fatalf("fetched mismatch (-want +got):\n%s", diff)
	}
	for _, c := range h.connectors {
		if c.calls.Load() != 1 {
			t.Fatalf("connector %s fetched %d times", c.name, c.calls.Load())
		}
	}
	if diff := cmp.Diff([]time.Duration{2 * time.Second}, h.sleep.naps); diff != "" {
		t.Fatalf("sleeps mismatch (-want +got):\n%s", diff)
	}

	page, _ := h.repo.Query(context.Background(), domain.CaseQuery{Filter: domain.CaseFilter{Status: domain.StatusPending}})
	if page.Total != 6 {
		t.Fatalf("admitted cases must be pending, got %d pending", page.Total)
	}
}

func TestCollectorAdmissionIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(testCollectionConfig(), threeSources(2)...)
	ctx := context.Background()

	if _, err := h.collector.Run(ctx, RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := h.extractor.callCount()

	report, err := h.collector.Run(ctx, RunOptions{MaxRounds: 1})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Admitted != 0 || report.Duplicates != 6 {
		t.Fatalf("expected 0 admitted / 6 duplicates, got %+v", report)
	}
	if report.FinalCount != 6 {
		t.Fatalf("expected count to stay 6, got %d", report.FinalCount)
	}
	if got := h.extractor.callCount(); got != callsAfterFirst {
		t.Fatalf("known URLs must not reach the extractor: %d calls, want %d", got, callsAfterFirst)
	}
}

func TestCollectorIsolatesFailures(t *testing.T) {
	t.Parallel()

	sources := threeSources(2)
	sources[0].err = domain.ErrRateLimited
	h := newHarness(testCollectionConfig(), sources...)
	h.extractor.fail = map[string]error{"producthunt_2": domain.ErrInvalidResponse}

	report, err := h.collector.Run(context.Background(), RunOptions{MaxRounds: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Admitted != 3 {
		t.Fatalf("expected 3 admitted, got %d", report.Admitted)
	}
	wantFailures := map[string]int{"rate_limited": 1, "invalid_response": 1}
	if diff := cmp.Diff(wantFailures, report.Failures); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if report.Fetched["reddit"] != 0 {
		t.Fatalf("failed source should report 0 fetched, got %d", report.Fetched["reddit"])
	}
}

func TestCollectorSurvivesHangingSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		adjust func(*config.CollectionConfig)
	}{
		{
			name:   "source deadline",
			adjust: func(cfg *config.CollectionConfig) { cfg.SourceTimeout = 50 * time.Millisecond },
		},
		{
			name: "round deadline",
			adjust: func(cfg *config.CollectionConfig) {
				cfg.SourceTimeout = 10 * time.Second
				cfg.RoundTimeout = 50 * time.Millisecond
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testCollectionConfig()
			tt.adjust(&cfg)
			sources := threeSources(2)
			sources[0].hang = true
			h := newHarness(cfg, sources...)

			report, err := h.collector.Run(context.Background(), RunOptions{MaxRounds: 1})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.State != domain.RunIdle {
				t.Fatalf("expected idle state, got %s", report.State)
			}
			if report.Admitted != 4 {
				t.Fatalf("expected the two healthy sources to admit 4, got %d", report.Admitted)
			}
			if diff := cmp.Diff(map[string]int{"timeout": 1}, report.Failures); diff != "" {
				t.Fatalf("failures mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCollectorStoresFinishedDraftsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testCollectionConfig()
	cfg.Workers = 1
	h := newHarness(cfg, newFakeConnector("reddit", domain.SourceForum, 0, 3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.extractor.after = func(domain.RawPost) { cancel() }

	report, err := h.collector.Run(ctx, RunOptions{MaxRounds: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.State != domain.RunAborted {
		t.Fatalf("expected aborted state, got %s", report.State)
	}
	if report.Admitted != 1 {
		t.Fatalf("expected the finished draft to be admitted, got %d", report.Admitted)
	}
	stored, err := h.repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if stored != 1 {
		t.Fatalf("expected 1 stored case, got %d", stored)
	}
}

func TestRunTrackerKeepsAdmittedCases(t *testing.T) {
	t.Parallel()

	tracker := newRunTracker("run-1", 5, 1, time.Now(), nil)
	tracker.admitted(domain.Case{ID: 1})
	tracker.admitted(domain.Case{ID: 2})

	got := tracker.admittedCases()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("unexpected admitted cases: %+v", got)
	}
	got[0].ID = 99
	if tracker.admittedCases()[0].ID != 1 {
		t.Fatal("admittedCases must return a copy")
	}
	if report := tracker.snapshot(); report.Admitted != 2 {
		t.Fatalf("expected 2 admitted in report, got %d", report.Admitted)
	}
}

func TestCollectorRejectsNearDuplicateInSameRound(t *testing.T) {
	t.Parallel()

	reddit := newFakeConnector("reddit", domain.SourceForum, 0, 2)
	reddit.posts[1].Title = reddit.posts[0].Title
	reddit.posts[1].Body = reddit.posts[0].Body

	h := newHarness(testCollectionConfig(), reddit)
	report, err := h.collector.Run(context.Background(), RunOptions{MaxRounds: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Admitted != 1 || report.Duplicates != 1 {
		t.Fatalf("expected 1 admitted and 1 duplicate, got %+v", report)
	}
}

func TestCollectorRunsUntilMaxRounds(t *testing.T) {
	t.Parallel()

	cfg := testCollectionConfig()
	cfg.Target = 100
	h := newHarness(cfg, threeSources(2)...)

	report, err := h.collector.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Rounds != 3 {
		t.Fatalf("expected 3 rounds, got %d", report.Rounds)
	}
	if report.Admitted != 6 {
		t.Fatalf("later rounds must not re-admit, got %d", report.Admitted)
	}
	want := []time.Duration{2 * time.Second, 30 * time.Second, 2 * time.Second, 30 * time.Second, 2 * time.Second}
	if diff := cmp.Diff(want, h.sleep.naps); diff != "" {
		t.Fatalf("sleeps mismatch (-want +got):\n%s", diff)
	}
	if got := h.extractor.callCount(); got != 6 {
		t.Fatalf("posts seen in an earlier round must be skipped, got %d extractions", got)
	}
}

func TestCollectorAbortsOnCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(testCollectionConfig(), threeSources(1)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.collector.Run(ctx, RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.State != domain.RunAborted {
		t.Fatalf("expected aborted state, got %s", report.State)
	}
	if report.Error == "" {
		t.Fatal("aborted report should carry the error")
	}
}

func TestCollectorSingleRunAtATime(t *testing.T) {
	t.Parallel()

	h := newHarness(testCollectionConfig(), threeSources(1)...)
	h.extractor.block = make(chan struct{})

	runID, err := h.collector.Start(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := h.collector.Run(context.Background(), RunOptions{}); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if _, err := h.collector.Start(context.Background(), RunOptions{}); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress from Start, got %v", err)
	}

	active, ok := h.collector.Active()
	if !ok || active.RunID != runID || !active.Running {
		t.Fatalf("unexpected active run: %+v", active)
	}

	close(h.extractor.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.collector.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	report, ok := h.collector.Status(runID)
	if !ok {
		t.Fatal("finished run should stay queryable")
	}
	if report.Running {
		t.Fatalf("run should be finished: %+v", report)
	}
	if _, ok := h.collector.Status("missing"); ok {
		t.Fatal("unknown run id should not resolve")
	}
}

func TestCollectorSendsDigest(t *testing.T) {
	t.Parallel()

	h := newHarness(testCollectionConfig(), threeSources(2)...)
	if _, err := h.collector.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(h.notifier.messages) != 1 {
		t.Fatalf("expected one digest, got %d", len(h.notifier.messages))
	}
	msg := h.notifier.messages[0]
	if !strings.HasPrefix(msg, "6 new cases awaiting moderation") {
		t.Fatalf("unexpected digest header: %q", msg)
	}
	if !strings.Contains(msg, "https://reddit.example/post/0") {
		t.Fatalf("digest should list admitted urls: %q", msg)
	}
}

func TestBuildDigestMessageTruncates(t *testing.T) {
	t.Parallel()

	admitted := make([]domain.Case, 12)
	for i := range admitted {
		admitted[i] = domain.Case{ID: int64(i + 1), SourceType: domain.SourceOther}
	}
	msg := buildDigestMessage(domain.RunReport{Admitted: 12, Failures: map[string]int{"timeout": 2, "duplicate": 1}}, admitted)
	if !strings.Contains(msg, "...and 2 more") {
		t.Fatalf("expected truncation note: %q", msg)
	}
	if !strings.Contains(msg, "Failures: duplicate=1, timeout=2") {
		t.Fatalf("expected sorted failures: %q", msg)
	}
}
