// Package monitoring tracks engine activity counters and evaluates alert
// thresholds over them.
package monitoring

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of engine activity, served by the
// metrics endpoint.
type Snapshot struct {
	ScoreCalculations int64            `json:"score_calculations"`
	Transitions       map[string]int64 `json:"transitions"`

	JobsStarted   int64            `json:"jobs_started"`
	JobsCompleted int64            `json:"jobs_completed"`
	JobsFailed    int64            `json:"jobs_failed"`
	SourceErrors  map[string]int64 `json:"source_errors"`

	BreakerStates map[string]string `json:"breaker_states,omitempty"`

	UptimeSeconds int64     `json:"uptime_seconds"`
	CollectedAt   time.Time `json:"collected_at"`
}

// JobFailRate is the fraction of finished jobs that failed.
func (s *Snapshot) JobFailRate() float64 {
	finished := s.JobsCompleted + s.JobsFailed
	if finished == 0 {
		return 0
	}
	return float64(s.JobsFailed) / float64(finished)
}

// BreakerStater supplies breaker positions for the snapshot. Satisfied by
// resilience.SourceBreakers.
type BreakerStater interface {
	States() map[string]string
}

// Collector accumulates in-process counters. All methods are safe for
// concurrent use.
type Collector struct {
	mu sync.Mutex

	scoreCalcs  int64
	transitions map[string]int64

	jobsStarted   int64
	jobsCompleted int64
	jobsFailed    int64
	sourceErrors  map[string]int64

	breakers  BreakerStater
	startedAt time.Time
}

// NewCollector builds a Collector. breakers may be nil.
func NewCollector(breakers BreakerStater) *Collector {
	return &Collector{
		transitions:  map[string]int64{},
		sourceErrors: map[string]int64{},
		breakers:     breakers,
		startedAt:    time.Now().UTC(),
	}
}

// ScoreCalculated counts one full score recalculation.
func (c *Collector) ScoreCalculated() {
	c.mu.Lock()
	c.scoreCalcs++
	c.mu.Unlock()
}

// TransitionApplied counts one successful workflow action.
func (c *Collector) TransitionApplied(action string) {
	c.mu.Lock()
	c.transitions[action]++
	c.mu.Unlock()
}

// JobStarted counts an enrichment job claimed by the worker.
func (c *Collector) JobStarted() {
	c.mu.Lock()
	c.jobsStarted++
	c.mu.Unlock()
}

// JobFinished counts a terminal job outcome.
func (c *Collector) JobFinished(failed bool) {
	c.mu.Lock()
	if failed {
		c.jobsFailed++
	} else {
		c.jobsCompleted++
	}
	c.mu.Unlock()
}

// SourceError counts one per-candidate source failure.
func (c *Collector) SourceError(source string) {
	c.mu.Lock()
	c.sourceErrors[source]++
	c.mu.Unlock()
}

// Collect snapshots the counters.
func (c *Collector) Collect() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	snap := &Snapshot{
		ScoreCalculations: c.scoreCalcs,
		Transitions:       make(map[string]int64, len(c.transitions)),
		JobsStarted:       c.jobsStarted,
		JobsCompleted:     c.jobsCompleted,
		JobsFailed:        c.jobsFailed,
		SourceErrors:      make(map[string]int64, len(c.sourceErrors)),
		UptimeSeconds:     int64(now.Sub(c.startedAt).Seconds()),
		CollectedAt:       now,
	}
	for k, v := range c.transitions {
		snap.Transitions[k] = v
	}
	for k, v := range c.sourceErrors {
		snap.SourceErrors[k] = v
	}
	if c.breakers != nil {
		snap.BreakerStates = c.breakers.States()
	}
	return snap
}
