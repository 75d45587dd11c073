package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"HustleCollector/internal/domain"
)

const digestItems = 10

// runTracker guards the mutable state of one run behind a mutex so that
// Status can snapshot it while fetch goroutines report progress.
type runTracker struct {
	id        string
	target    int
	maxRounds int
	cancel    context.CancelFunc

	mu     sync.Mutex
	state  domain.RunState
	report domain.RunReport
	stored []domain.Case
}

func newRunTracker(id string, target, maxRounds int, started time.Time, cancel context.CancelFunc) *runTracker {
	return &runTracker{
		id:        id,
		target:    target,
		maxRounds: maxRounds,
		cancel:    cancel,
		state:     domain.RunIdle,
		report: domain.RunReport{
			RunID:     id,
			State:     domain.RunIdle,
			Running:   true,
			Target:    target,
			Fetched:   map[string]int{},
			Failures:  map[string]int{},
			StartedAt: started,
		},
	}
}

func (t *runTracker) transition(next domain.RunState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, err := t.state.Transition(next)
	if err != nil {
		return err
	}
	t.state = state
	t.report.State = state
	return nil
}

func (t *runTracker) abort(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, err := t.state.Transition(domain.RunAborted); err == nil {
		t.state = state
		t.report.State = state
	}
	if cause != nil {
		t.report.Error = cause.Error()
	}
}

func (t *runTracker) startRound(round int) {
	t.mu.Lock()
	t.report.Rounds = round
	t.mu.Unlock()
}

func (t *runTracker) fetched(source string, n int) {
	t.mu.Lock()
	t.report.Fetched[source] += n
	t.mu.Unlock()
}

func (t *runTracker) failure(kind string) {
	t.mu.Lock()
	t.report.Failures[kind]++
	t.mu.Unlock()
}

func (t *runTracker) duplicate() {
	t.mu.Lock()
	t.report.Duplicates++
	t.mu.Unlock()
}

func (t *runTracker) admitted(c domain.Case) {
	t.mu.Lock()
	t.report.Admitted++
	t.stored = append(t.stored, c)
	t.mu.Unlock()
}

func (t *runTracker) admittedCases() []domain.Case {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Case(nil), t.stored...)
}

func (t *runTracker) setCount(n int) {
	t.mu.Lock()
	t.report.FinalCount = n
	t.mu.Unlock()
}

func (t *runTracker) finish(at time.Time) domain.RunReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Running = false
	t.report.FinishedAt = at
	return t.report.Clone()
}

func (t *runTracker) snapshot() domain.RunReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report.Clone()
}

// buildDigestMessage renders the moderation digest sent after a run.
func buildDigestMessage(report domain.RunReport, admitted []domain.Case) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new cases awaiting moderation (total %d, target %d)\n\n",
		report.Admitted, report.FinalCount, report.Target)

	for i, c := range admitted {
		if i == digestItems {
			fmt.Fprintf(&b, "...and %d more\n", len(admitted)-digestItems)
			break
		}
		fmt.Fprintf(&b, "- #%d %s [%s]\n%s\n", c.ID, c.Title, c.SourceType, c.SourceURL)
	}

	if len(report.Failures) > 0 {
		kinds := make([]string, 0, len(report.Failures))
		for kind, n := range report.Failures {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
		}
		slices.Sort(kinds)
		fmt.Fprintf(&b, "\nFailures: %s\n", strings.Join(kinds, ", "))
	}
	return b.String()
}
