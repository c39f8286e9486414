package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/llm"
)

// fakeProvider is a scripted llm.Provider.
type fakeProvider struct {
	reply     string
	err       error
	delay     time.Duration
	ignoreCtx bool
	finished  chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	last  string
	opts  llm.CompletionOpts
}

func (f *fakeProvider) Name() string { return "fake/test" }

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = prompt
	f.opts = opts
	f.mu.Unlock()
	if f.finished != nil {
		defer close(f.finished)
	}

	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return f.reply, f.err
}

func (f *fakeProvider) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func TestParseExternalReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    intel.Record
		wantErr bool
	}{
		{
			name:  "plain object",
			reply: `{"phoneNumbers":["+91-9876543210"],"upiIds":["scammer@paytm"],"bankAccounts":[],"phishingLinks":[],"emails":[],"suspiciousKeywords":["pay"]}`,
			want: intel.Record{
				PhoneNumbers:       []string{"+91-9876543210"},
				UPIIDs:             []string{"scammer@paytm"},
				SuspiciousKeywords: []string{"pay"},
			},
		},
		{
			name:  "markdown fence",
			reply: "```json\n{\"emails\": [\" a@b.com \"]}\n```",
			want:  intel.Record{Emails: []string{"a@b.com"}},
		},
		{
			name:  "prose around the object",
			reply: `Sure! Here you go: {"upiIds":["x@ybl"]} Hope that helps.`,
			want:  intel.Record{UPIIDs: []string{"x@ybl"}},
		},
		{
			name:  "trailing commas are repaired",
			reply: `{"upiIds":["x@ybl",],}`,
			want:  intel.Record{UPIIDs: []string{"x@ybl"}},
		},
		{
			name:  "numbers kept exactly",
			reply: `{"bankAccounts":[123456789012345678, 1.50], "phoneNumbers":[9876543210]}`,
			want: intel.Record{
				BankAccounts: []string{"1.50", "123456789012345678"},
				PhoneNumbers: []string{"9876543210"},
			},
		},
		{
			name:  "other element types dropped",
			reply: `{"emails":["a@b.com", true, null, {"x":1}, ["y"], "  "]}`,
			want:  intel.Record{Emails: []string{"a@b.com"}},
		},
		{
			name:  "non-array field becomes empty",
			reply: `{"phoneNumbers":"9876543210","emails":{"a":"b"}}`,
			want:  intel.Record{},
		},
		{
			name:  "unknown keys ignored",
			reply: `{"threatLevel":"high","upiIds":["a@ybl"]}`,
			want:  intel.Record{UPIIDs: []string{"a@ybl"}},
		},
		{name: "no object", reply: `I could not find anything.`, wantErr: true},
		{name: "top-level array", reply: `["a@ybl"]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExternalReply(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, equateEmpty); diff != "" {
				t.Errorf("ParseExternalReply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExternal_NotReady(t *testing.T) {
	x := NewExternalExtractor(nil)
	if x.Ready() {
		t.Fatal("expected adapter without provider to be not ready")
	}
	if got := x.Extract(context.Background(), "pay me at a@ybl", nil, 0); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}

	var nilAdapter *ExternalExtractor
	if nilAdapter.Ready() {
		t.Error("nil adapter must not be ready")
	}
}

func TestExternal_Success(t *testing.T) {
	p := &fakeProvider{reply: `{"upiIds":["fraud@ybl"],"suspiciousKeywords":["urgent"]}`}
	x := NewExternalExtractor(p)

	got := x.Extract(context.Background(), "urgent, pay fraud@ybl", nil, time.Second)
	if got == nil {
		t.Fatal("expected a record")
	}
	want := intel.Record{UPIIDs: []string{"fraud@ybl"}, SuspiciousKeywords: []string{"urgent"}}
	if diff := cmp.Diff(want, *got, equateEmpty); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}

	p.mu.Lock()
	opts := p.opts
	p.mu.Unlock()
	if opts.Format != "json" || opts.MaxTokens != externalMaxTokens || opts.Temperature != externalTemperature {
		t.Errorf("unexpected completion opts: %+v", opts)
	}
	if opts.System == "" {
		t.Error("expected a system prompt")
	}
}

func TestExternal_FailuresCollapseToNil(t *testing.T) {
	tests := []struct {
		name string
		p    *fakeProvider
	}{
		{"transport error", &fakeProvider{err: errors.New("connection refused")}},
		{"auth error", &fakeProvider{err: fmt.Errorf("calling: %w", &llm.APIError{Provider: "openai", StatusCode: 401})}},
		{"empty reply", &fakeProvider{reply: "   "}},
		{"no json", &fakeProvider{reply: "nothing to report"}},
		{"not an object", &fakeProvider{reply: `[1, 2, 3]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewExternalExtractor(tt.p)
			if got := x.Extract(context.Background(), "text 9876543210", nil, time.Second); got != nil {
				t.Errorf("expected nil, got %+v", got)
			}
		})
	}
}

func TestExternal_EmptyTextSkipsCall(t *testing.T) {
	p := &fakeProvider{reply: `{}`}
	x := NewExternalExtractor(p)
	if got := x.Extract(context.Background(), "  ", nil, time.Second); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	if n := p.calls.Load(); n != 0 {
		t.Errorf("expected no provider call, got %d", n)
	}
}

func TestExternal_TimeoutReturnsNil(t *testing.T) {
	p := &fakeProvider{reply: `{"upiIds":["late@ybl"]}`, delay: 5 * time.Second}
	x := NewExternalExtractor(p)

	start := time.Now()
	got := x.Extract(context.Background(), "pay late@ybl", nil, 30*time.Millisecond)
	if got != nil {
		t.Errorf("expected nil on timeout, got %+v", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Extract blocked for %v", elapsed)
	}
}

func TestExternal_ProviderIgnoringCancellation(t *testing.T) {
	finished := make(chan struct{})
	p := &fakeProvider{
		reply:     `{"upiIds":["late@ybl"]}`,
		delay:     300 * time.Millisecond,
		ignoreCtx: true,
		finished:  finished,
	}
	x := NewExternalExtractor(p)

	start := time.Now()
	got := x.Extract(context.Background(), "pay late@ybl", nil, 20*time.Millisecond)
	elapsed := time.Since(start)
	if got != nil {
		t.Errorf("expected nil on timeout, got %+v", got)
	}
	if elapsed >= 300*time.Millisecond {
		t.Errorf("caller was held by the provider for %v", elapsed)
	}

	// The provider goroutine exits once the provider returns.
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("provider never returned")
	}
}

func TestExternal_CallerCancellation(t *testing.T) {
	p := &fakeProvider{reply: `{}`, delay: 5 * time.Second}
	x := NewExternalExtractor(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := x.Extract(ctx, "pay a@ybl", nil, time.Second); got != nil {
		t.Errorf("expected nil for canceled context, got %+v", got)
	}
}

func TestExternal_CacheAvoidsSecondCall(t *testing.T) {
	p := &fakeProvider{reply: `{"upiIds":["fraud@ybl"]}`}
	x := NewExternalExtractor(p, WithCacheSize(16))
	history := []intel.Message{{Sender: intel.Operator, Text: "hello?"}}

	first := x.Extract(context.Background(), "pay fraud@ybl", history, time.Second)
	second := x.Extract(context.Background(), "pay fraud@ybl", history, time.Second)
	if first == nil || second == nil {
		t.Fatal("expected records from both calls")
	}
	if !first.Equal(*second) {
		t.Errorf("cached record differs: %+v vs %+v", first, second)
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("expected 1 provider call, got %d", n)
	}

	// A mutated result must not leak into the cache.
	first.Add(intel.Emails, "mutated@example.com")
	third := x.Extract(context.Background(), "pay fraud@ybl", history, time.Second)
	if third.Contains(intel.Emails, "mutated@example.com") {
		t.Error("cache entry was aliased by the caller")
	}
}

func TestExternal_CacheDisabled(t *testing.T) {
	p := &fakeProvider{reply: `{"upiIds":["fraud@ybl"]}`}
	x := NewExternalExtractor(p, WithCacheSize(16), WithCacheSize(0))
	x.Extract(context.Background(), "pay fraud@ybl", nil, time.Second)
	x.Extract(context.Background(), "pay fraud@ybl", nil, time.Second)
	if n := p.calls.Load(); n != 2 {
		t.Errorf("expected 2 provider calls, got %d", n)
	}
}

func TestExternal_NoCacheByDefault(t *testing.T) {
	p := &fakeProvider{reply: `{"upiIds":["fraud@ybl"]}`}
	x := NewExternalExtractor(p)
	x.Extract(context.Background(), "pay fraud@ybl", nil, time.Second)
	x.Extract(context.Background(), "pay fraud@ybl", nil, time.Second)
	if n := p.calls.Load(); n != 2 {
		t.Errorf("expected every call to reach the provider, got %d calls", n)
	}
}

func TestPromptKey_IncludesProvider(t *testing.T) {
	if promptKey("openai", "p") == promptKey("groq", "p") {
		t.Error("expected different keys for different providers")
	}
	if promptKey("openai", "p") != promptKey("openai", "p") {
		t.Error("expected stable key")
	}
}

func TestExternal_HistoryWindow(t *testing.T) {
	p := &fakeProvider{reply: `{}`}
	x := NewExternalExtractor(p, WithCacheSize(0))

	var history []intel.Message
	for i := 1; i <= 7; i++ {
		sender := intel.Counterpart
		if i%2 == 0 {
			sender = intel.Operator
		}
		history = append(history, intel.Message{Sender: sender, Text: fmt.Sprintf("turn-%d", i)})
	}
	x.Extract(context.Background(), "newest message", history, time.Second)

	prompt := p.lastPrompt()
	for i := 1; i <= 2; i++ {
		if strings.Contains(prompt, fmt.Sprintf("turn-%d", i)) {
			t.Errorf("prompt should not contain turn-%d", i)
		}
	}
	for i := 3; i <= 7; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("turn-%d", i)) {
			t.Errorf("prompt should contain turn-%d", i)
		}
	}
	if !strings.Contains(prompt, "operator: turn-4") {
		t.Error("expected sender-prefixed history lines")
	}
	if !strings.Contains(prompt, "counterpart: newest message") {
		t.Error("expected the new message as a counterpart line")
	}
}
