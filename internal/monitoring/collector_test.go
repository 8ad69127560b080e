package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBreakers map[string]string

func (s staticBreakers) States() map[string]string { return s }

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(staticBreakers{"receita-ws": "open", "serasa": "closed"})

	c.ScoreCalculated()
	c.ScoreCalculated()
	c.TransitionApplied("convert")
	c.TransitionApplied("convert")
	c.TransitionApplied("reject")
	c.JobStarted()
	c.JobFinished(false)
	c.JobStarted()
	c.JobFinished(true)
	c.SourceError("receita-ws")

	snap := c.Collect()
	assert.Equal(t, int64(2), snap.ScoreCalculations)
	assert.Equal(t, int64(2), snap.Transitions["convert"])
	assert.Equal(t, int64(1), snap.Transitions["reject"])
	assert.Equal(t, int64(2), snap.JobsStarted)
	assert.Equal(t, int64(1), snap.JobsCompleted)
	assert.Equal(t, int64(1), snap.JobsFailed)
	assert.Equal(t, int64(1), snap.SourceErrors["receita-ws"])
	assert.Equal(t, "open", snap.BreakerStates["receita-ws"])
	// 1 of 2 finished jobs failed.
	assert.Equal(t, 0.5, snap.JobFailRate())
}

func TestCollectorSnapshotIsolation(t *testing.T) {
	c := NewCollector(nil)
	c.TransitionApplied("convert")

	snap := c.Collect()
	snap.Transitions["convert"] = 99

	assert.Equal(t, int64(1), c.Collect().Transitions["convert"])
}

func TestAlerterEvaluate(t *testing.T) {
	a := NewAlerter(Thresholds{MaxJobFailRate: 0.25, MaxSourceErrors: 5})

	snap := &Snapshot{
		JobsCompleted: 1,
		JobsFailed:    1,
		SourceErrors:  map[string]int64{"receita-ws": 6, "serasa": 2},
		BreakerStates: map[string]string{"receita-ws": "open"},
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 3)

	names := make(map[string]bool, len(alerts))
	for _, al := range alerts {
		names[al.Name] = true
	}
	assert.True(t, names["job_fail_rate"])
	assert.True(t, names["source_errors"])
	assert.True(t, names["breaker_open"])
}

func TestAlerterQuietWhenHealthy(t *testing.T) {
	a := NewAlerter(Thresholds{MaxJobFailRate: 0.25, MaxSourceErrors: 5})

	snap := &Snapshot{
		JobsCompleted: 10,
		SourceErrors:  map[string]int64{"serasa": 1},
		BreakerStates: map[string]string{"serasa": "closed"},
	}
	assert.Empty(t, a.Evaluate(snap))
}
