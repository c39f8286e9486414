// Package observe provides engine observability for scamintel.
//
// Two core capabilities:
// - Stats: sessions by status, collected intelligence, freshness, guardrail alerts
// - Stale detection: live sessions that stopped receiving turns
//
// Prometheus collectors for the extraction path live in metrics.go.
package observe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hurttlocker/scamintel/internal/intel"
)

// Sample is the observable view of one session.
type Sample struct {
	ID           string
	Status       string
	Turns        int
	ScamDetected bool
	CallbackSent bool
	Intelligence intel.Record
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Source lists the live sessions to observe.
type Source interface {
	Samples(ctx context.Context) ([]Sample, error)
}

// Stats holds aggregate session statistics.
type Stats struct {
	TotalSessions     int            `json:"sessions"`
	TotalTurns        int            `json:"turns"`
	AvgTurns          float64        `json:"avg_turns"`
	ScamsDetected     int            `json:"scams_detected"`
	Reported          int            `json:"reported"`
	SessionsByStatus  map[string]int `json:"sessions_by_status"`
	IntelByCategory   map[string]int `json:"intel_by_category"`
	Freshness         Freshness      `json:"freshness"`
	Alerts            []string       `json:"alerts,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
	UnreportedFlagged int            `json:"unreported_flagged"`
}

// Freshness holds the distribution of sessions by last activity.
type Freshness struct {
	LastHour int `json:"last_hour"`
	Today    int `json:"today"`
	ThisWeek int `json:"this_week"`
	Older    int `json:"older"`
}

// StaleSession is a live session that has been idle past the threshold.
type StaleSession struct {
	ID     string        `json:"session_id"`
	Status string        `json:"status"`
	Turns  int           `json:"turns"`
	Idle   time.Duration `json:"idle_ns"`
}

// StaleOpts configures stale session detection.
type StaleOpts struct {
	MaxIdle time.Duration // idle threshold (default: 30m)
	Limit   int           // max results (default: 50)
}

// Engine computes statistics over a session source.
type Engine struct {
	source  Source
	metrics *Metrics
	now     func() time.Time
}

// NewEngine creates a new observability engine. metrics may be nil.
func NewEngine(src Source, metrics *Metrics) *Engine {
	return &Engine{source: src, metrics: metrics, now: time.Now}
}

// GetStats returns aggregate statistics and refreshes the session gauge.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	samples, err := e.source.Samples(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	now := e.now()
	stats := &Stats{
		TotalSessions:    len(samples),
		SessionsByStatus: make(map[string]int),
		IntelByCategory:  make(map[string]int, len(intel.Categories)),
		GeneratedAt:      now.UTC(),
	}
	for _, c := range intel.Categories {
		stats.IntelByCategory[string(c)] = 0
	}

	for _, s := range samples {
		stats.TotalTurns += s.Turns
		stats.SessionsByStatus[s.Status]++
		if s.ScamDetected {
			stats.ScamsDetected++
			if !s.CallbackSent {
				stats.UnreportedFlagged++
			}
		}
		if s.CallbackSent {
			stats.Reported++
		}
		for c, n := range s.Intelligence.Counts() {
			stats.IntelByCategory[string(c)] += n
		}

		idle := now.Sub(s.UpdatedAt)
		switch {
		case idle < time.Hour:
			stats.Freshness.LastHour++
		case idle < 24*time.Hour:
			stats.Freshness.Today++
		case idle < 7*24*time.Hour:
			stats.Freshness.ThisWeek++
		default:
			stats.Freshness.Older++
		}
	}
	if stats.TotalSessions > 0 {
		stats.AvgTurns = float64(stats.TotalTurns) / float64(stats.TotalSessions)
	}
	stats.Alerts = buildAlerts(stats)

	e.metrics.SetActiveSessions(stats.TotalSessions)
	return stats, nil
}

func buildAlerts(stats *Stats) []string {
	alerts := make([]string, 0)

	const (
		warnSessions = 10000
		warnBacklog  = 25
	)

	if stats.TotalSessions >= warnSessions {
		alerts = append(alerts, "session_count_high: over 10k live sessions; check store TTL")
	}
	if stats.UnreportedFlagged >= warnBacklog {
		alerts = append(alerts, "report_backlog: many flagged sessions are unreported; check the callback endpoint")
	}
	if stats.ScamsDetected > 0 && stats.Reported == 0 && stats.UnreportedFlagged > 0 {
		alerts = append(alerts, "no_reports: scams detected but nothing reported yet")
	}
	return alerts
}

// GetStale returns live, non-expired sessions idle for at least MaxIdle,
// longest idle first.
func (e *Engine) GetStale(ctx context.Context, opts StaleOpts) ([]StaleSession, error) {
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 30 * time.Minute
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	samples, err := e.source.Samples(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	now := e.now()
	stale := make([]StaleSession, 0)
	for _, s := range samples {
		if s.Status == "expired" {
			continue
		}
		idle := now.Sub(s.UpdatedAt)
		if idle < opts.MaxIdle {
			continue
		}
		stale = append(stale, StaleSession{ID: s.ID, Status: s.Status, Turns: s.Turns, Idle: idle})
	}

	sort.Slice(stale, func(i, j int) bool {
		if stale[i].Idle != stale[j].Idle {
			return stale[i].Idle > stale[j].Idle
		}
		return stale[i].ID < stale[j].ID
	})
	if len(stale) > opts.Limit {
		stale = stale[:opts.Limit]
	}
	return stale, nil
}
