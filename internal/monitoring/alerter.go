package monitoring

import (
	"fmt"

	"go.uber.org/zap"
)

// Alert is one triggered threshold.
type Alert struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Thresholds configure when the alerter fires.
type Thresholds struct {
	// MaxJobFailRate is the tolerated fraction of failed jobs (0 disables).
	MaxJobFailRate float64 `yaml:"max_job_fail_rate" mapstructure:"max_job_fail_rate"`
	// MaxSourceErrors is the tolerated error count per source (0 disables).
	MaxSourceErrors int64 `yaml:"max_source_errors" mapstructure:"max_source_errors"`
}

// Alerter evaluates thresholds against activity snapshots.
type Alerter struct {
	thresholds Thresholds
}

// NewAlerter builds an Alerter with the given thresholds.
func NewAlerter(t Thresholds) *Alerter {
	return &Alerter{thresholds: t}
}

// Evaluate returns every threshold breach in the snapshot.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert

	if max := a.thresholds.MaxJobFailRate; max > 0 {
		if rate := snap.JobFailRate(); rate > max && snap.JobsFailed > 0 {
			alerts = append(alerts, Alert{
				Name:    "job_fail_rate",
				Message: fmt.Sprintf("enrichment job failure rate %.2f exceeds %.2f", rate, max),
			})
		}
	}

	if max := a.thresholds.MaxSourceErrors; max > 0 {
		for source, n := range snap.SourceErrors {
			if n > max {
				alerts = append(alerts, Alert{
					Name:    "source_errors",
					Message: fmt.Sprintf("source %s accumulated %d errors (limit %d)", source, n, max),
				})
			}
		}
	}

	for source, state := range snap.BreakerStates {
		if state == "open" {
			alerts = append(alerts, Alert{
				Name:    "breaker_open",
				Message: fmt.Sprintf("circuit for source %s is open", source),
			})
		}
	}

	return alerts
}

// Report logs every alert at warn level.
func (a *Alerter) Report(alerts []Alert) {
	for _, alert := range alerts {
		zap.L().Warn("monitoring: alert",
			zap.String("name", alert.Name),
			zap.String("message", alert.Message),
		)
	}
}
