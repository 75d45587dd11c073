// Package health aggregates database, AI provider and process status.
package health

import (
	"context"
	"runtime"
	"time"

	"HustleCollector/internal/ports"
)

// Status values reported at the top level.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Pinger is the slice of the repository the database check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report is the health payload.
type Report struct {
	Status   string          `json:"status"`
	Database ComponentStatus `json:"database"`
	AI       AIStatus        `json:"ai"`
	Process  ProcessStatus   `json:"process"`
	Time     time.Time       `json:"timestamp"`
}

// ComponentStatus describes one dependency.
type ComponentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// AIStatus reports extraction provider reachability.
type AIStatus struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider"`
}

// ProcessStatus is a snapshot of runtime counters.
type ProcessStatus struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	NumGC          uint32  `json:"num_gc"`
}

// Checker runs every probe under a shared timeout.
type Checker struct {
	db      Pinger
	ai      ports.ProviderProbe
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

// NewChecker wires the probes; ai may be nil when extraction is not configured.
func NewChecker(db Pinger, ai ports.ProviderProbe, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{db: db, ai: ai, timeout: timeout, started: time.Now(), now: time.Now}
}

// Check runs the database and AI probes concurrently. The report is healthy
// only when both succeed.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dbDone := make(chan ComponentStatus, 1)
	go func() {
		if c.db == nil {
			dbDone <- ComponentStatus{Error: "not configured"}
			return
		}
		if err := c.db.Ping(ctx); err != nil {
			dbDone <- ComponentStatus{Error: err.Error()}
			return
		}
		dbDone <- ComponentStatus{OK: true}
	}()

	ai := AIStatus{Provider: "none"}
	if c.ai != nil {
		ai.OK = c.ai.TestConnection(ctx)
		ai.Provider = c.ai.CurrentProvider()
	}
	db := <-dbDone

	report := Report{
		Status:   StatusHealthy,
		Database: db,
		AI:       ai,
		Process:  c.process(),
		Time:     c.now().UTC(),
	}
	if !db.OK || !ai.OK {
		report.Status = StatusUnhealthy
	}
	return report
}

func (c *Checker) process() ProcessStatus {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return ProcessStatus{
		UptimeSeconds:  c.now().Sub(c.started).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		NumGC:          mem.NumGC,
	}
}
