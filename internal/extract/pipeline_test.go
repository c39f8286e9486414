package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/observe"
)

const scenarioText = "Call +91-9876543210 or use account 1234567890123456"

func TestPipeline_PatternOnly(t *testing.T) {
	p := NewPipeline(nil)
	got := p.Extract(context.Background(), scenarioText, nil)
	want := intel.Record{
		PhoneNumbers: []string{"+91-9876543210"},
		BankAccounts: []string{"1234567890123456"},
	}
	if diff := cmp.Diff(want, got, equateEmpty); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_MergesExternal(t *testing.T) {
	provider := &fakeProvider{reply: `{"phoneNumbers":["+91-9876543210"],"upiIds":["backup@okaxis"],"bankAccounts":["1234567890123456"]}`}
	metrics := observe.MustNewMetrics(prometheus.NewRegistry())
	p := NewPipeline(NewExtractor(),
		WithExternal(NewExternalExtractor(provider, WithMetrics(metrics))),
		WithPipelineMetrics(metrics))

	got := p.Extract(context.Background(), scenarioText, nil)
	want := intel.Record{
		PhoneNumbers: []string{"+91-9876543210"},
		BankAccounts: []string{"1234567890123456"},
		UPIIDs:       []string{"backup@okaxis"},
	}
	if diff := cmp.Diff(want, got, equateEmpty); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_ExternalTimeoutFallsBackToPattern(t *testing.T) {
	provider := &fakeProvider{reply: `{"upiIds":["late@ybl"]}`, delay: 5 * time.Second}
	p := NewPipeline(NewExtractor(),
		WithExternal(NewExternalExtractor(provider)),
		WithExternalTimeout(30*time.Millisecond))

	start := time.Now()
	got := p.Extract(context.Background(), scenarioText, nil)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("pipeline blocked for %v", elapsed)
	}
	want := NewExtractor().Extract(scenarioText)
	if diff := cmp.Diff(want, got, equateEmpty); diff != "" {
		t.Errorf("expected pattern-only record (-want +got):\n%s", diff)
	}
}

func TestPipeline_ExternalCannotBypassCleanse(t *testing.T) {
	provider := &fakeProvider{reply: `{"phoneNumbers":["9876543210"],"bankAccounts":["55559876543210"]}`}
	p := NewPipeline(NewExtractor(), WithExternal(NewExternalExtractor(provider)))

	got := p.Extract(context.Background(), "hello", nil)
	if len(got.PhoneNumbers) != 0 {
		t.Errorf("expected phone inside account to be dropped, got %v", got.PhoneNumbers)
	}
	if !got.Contains(intel.BankAccounts, "55559876543210") {
		t.Errorf("expected account kept, got %v", got.BankAccounts)
	}
}

func TestPipeline_LongAndOddURLsMatchPatternOnly(t *testing.T) {
	p := NewPipeline(nil)
	for _, text := range []string{
		"Open https://kyc-verify.xyz/login?token=" + strings.Repeat("a", 600) + " now",
		"Open http://evil.xyz/a\vb now",
	} {
		want := NewExtractor().Extract(text)
		if len(want.PhishingLinks) != 1 {
			t.Fatalf("pattern extractor found %v, want one link", want.PhishingLinks)
		}
		got := p.Extract(context.Background(), text, nil)
		if diff := cmp.Diff(want, got, equateEmpty); diff != "" {
			t.Errorf("pipeline without external differs from pattern record (-want +got):\n%s", diff)
		}
	}
}
