package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hurttlocker/scamintel/internal/intel"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type staticSource struct {
	samples []Sample
	err     error
}

func (s staticSource) Samples(context.Context) ([]Sample, error) {
	return s.samples, s.err
}

func newTestEngine(t *testing.T, samples []Sample, m *Metrics) *Engine {
	t.Helper()
	e := NewEngine(staticSource{samples: samples}, m)
	e.now = func() time.Time { return now }
	return e
}

func testSamples() []Sample {
	var rich intel.Record
	rich.Add(intel.UPIIDs, "verify@ybl")
	rich.Add(intel.PhoneNumbers, "9876543210", "9123456789")
	rich.Add(intel.SuspiciousKeywords, "urgent")

	var thin intel.Record
	thin.Add(intel.PhishingLinks, "http://kyc-check.xyz")

	return []Sample{
		{ID: "a", Status: "active", Turns: 4, Intelligence: rich, UpdatedAt: now.Add(-5 * time.Minute)},
		{ID: "b", Status: "flagged", Turns: 8, ScamDetected: true, Intelligence: thin, UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Status: "flagged", Turns: 6, ScamDetected: true, CallbackSent: true, UpdatedAt: now.Add(-72 * time.Hour)},
		{ID: "d", Status: "expired", Turns: 2, UpdatedAt: now.Add(-30 * 24 * time.Hour)},
	}
}

func TestGetStats(t *testing.T) {
	e := newTestEngine(t, testSamples(), nil)
	stats, err := e.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}

	if stats.TotalSessions != 4 {
		t.Errorf("sessions = %d, want 4", stats.TotalSessions)
	}
	if stats.TotalTurns != 20 || stats.AvgTurns != 5 {
		t.Errorf("turns = %d avg %.1f, want 20 avg 5", stats.TotalTurns, stats.AvgTurns)
	}
	if stats.ScamsDetected != 2 || stats.Reported != 1 || stats.UnreportedFlagged != 1 {
		t.Errorf("scams/reported/unreported = %d/%d/%d, want 2/1/1",
			stats.ScamsDetected, stats.Reported, stats.UnreportedFlagged)
	}
	if stats.SessionsByStatus["flagged"] != 2 || stats.SessionsByStatus["active"] != 1 {
		t.Errorf("by status = %v", stats.SessionsByStatus)
	}
	if stats.IntelByCategory["phoneNumbers"] != 2 || stats.IntelByCategory["phishingLinks"] != 1 {
		t.Errorf("by category = %v", stats.IntelByCategory)
	}
	if _, ok := stats.IntelByCategory["emails"]; !ok {
		t.Error("empty categories should still be reported")
	}
	want := Freshness{LastHour: 1, Today: 1, ThisWeek: 1, Older: 1}
	if stats.Freshness != want {
		t.Errorf("freshness = %+v, want %+v", stats.Freshness, want)
	}
	if len(stats.Alerts) != 0 {
		t.Errorf("unexpected alerts: %v", stats.Alerts)
	}
}

func TestGetStats_Empty(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	stats, err := e.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalSessions != 0 || stats.AvgTurns != 0 {
		t.Errorf("unexpected stats for empty source: %+v", stats)
	}
}

func TestGetStats_SourceError(t *testing.T) {
	e := NewEngine(staticSource{err: errors.New("boom")}, nil)
	if _, err := e.GetStats(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetStats_NoReportsAlert(t *testing.T) {
	samples := []Sample{{ID: "x", Status: "flagged", ScamDetected: true, UpdatedAt: now}}
	stats, err := newTestEngine(t, samples, nil).GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if len(stats.Alerts) != 1 || stats.Alerts[0][:10] != "no_reports" {
		t.Errorf("alerts = %v", stats.Alerts)
	}
}

func TestGetStats_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	if _, err := newTestEngine(t, testSamples(), m).GetStats(context.Background()); err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 4 {
		t.Errorf("active sessions gauge = %v, want 4", got)
	}
}

func TestGetStale(t *testing.T) {
	e := newTestEngine(t, testSamples(), nil)

	stale, err := e.GetStale(context.Background(), StaleOpts{})
	if err != nil {
		t.Fatalf("GetStale: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("stale = %+v, want 2 sessions", stale)
	}
	if stale[0].ID != "c" || stale[1].ID != "b" {
		t.Errorf("order = %s,%s, want c,b", stale[0].ID, stale[1].ID)
	}

	limited, err := e.GetStale(context.Background(), StaleOpts{MaxIdle: time.Minute, Limit: 1})
	if err != nil {
		t.Fatalf("GetStale: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "c" {
		t.Errorf("limited = %+v", limited)
	}
}
