package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/scamintel/internal/extract"
	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/llm"
)

type stubProvider struct {
	reply string
	delay time.Duration
}

func (s stubProvider) Name() string { return "stub/test" }

func (s stubProvider) Complete(ctx context.Context, _ string, _ llm.CompletionOpts) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, nil
}

func counterpart(text string) intel.Message {
	return intel.Message{Sender: intel.Counterpart, Text: text}
}

func operator(text string) intel.Message {
	return intel.Message{Sender: intel.Operator, Text: text}
}

func TestAggregate_NoLossAcrossTurns(t *testing.T) {
	agg := NewAggregator(nil)
	ctx := context.Background()

	transcript := []intel.Message{
		counterpart("Sir your account is blocked, call 9876543210"),
		operator("Which bank is this?"),
		counterpart("Pay the fine to verify@ybl immediately"),
		operator("Where do I send proof?"),
		counterpart("Email fraud.desk@example.com and visit http://kyc-check.xyz"),
	}

	var acc intel.Record
	for i, msg := range transcript {
		acc = agg.Aggregate(ctx, transcript[:i], msg, acc)
	}

	assert.True(t, acc.Contains(intel.PhoneNumbers, "9876543210"))
	assert.True(t, acc.Contains(intel.UPIIDs, "verify@ybl"))
	assert.True(t, acc.Contains(intel.Emails, "fraud.desk@example.com"))
	assert.True(t, acc.Contains(intel.PhishingLinks, "http://kyc-check.xyz"))
	assert.True(t, acc.Contains(intel.SuspiciousKeywords, "immediately"))
	assert.True(t, acc.Contains(intel.SuspiciousKeywords, "fine"))
}

func TestAggregate_HistoryIsMinedEvenWithoutPrior(t *testing.T) {
	agg := NewAggregator(nil)
	history := []intel.Message{
		counterpart("send money to first@paytm"),
		operator("my number is 9123456789"),
	}
	got := agg.Aggregate(context.Background(), history, counterpart("hello?"), intel.Record{})

	assert.Equal(t, []string{"first@paytm"}, got.UPIIDs)
	assert.Empty(t, got.PhoneNumbers, "operator turns must not be mined")
}

func TestAggregate_SupersetOfPrior(t *testing.T) {
	agg := NewAggregator(nil)
	prior := intel.Record{
		PhoneNumbers: []string{"9876543210"},
		BankAccounts: []string{"98765432101234"},
		Emails:       []string{"odd-but-kept"},
	}
	got := agg.Aggregate(context.Background(), nil, counterpart("ok"), prior)

	for _, cat := range intel.Categories {
		for _, v := range prior.Values(cat) {
			assert.True(t, got.Contains(cat, v), "lost %s value %q", cat, v)
		}
	}
}

func TestAggregate_RedeliveryIsIdempotent(t *testing.T) {
	agg := NewAggregator(nil)
	ctx := context.Background()
	history := []intel.Message{counterpart("acct no 123456789012")}
	msg := counterpart("or pay at refund@okicici, urgent")

	once := agg.Aggregate(ctx, history, msg, intel.Record{})
	twice := agg.Aggregate(ctx, history, msg, once)
	assert.True(t, once.Equal(twice), "redelivered turn changed the record:\n%+v\n%+v", once, twice)
}

func TestAggregate_OperatorMessageAddsNothing(t *testing.T) {
	agg := NewAggregator(nil)
	prior := intel.Record{UPIIDs: []string{"a@ybl"}}
	got := agg.Aggregate(context.Background(), nil, operator("call me on 9876543210"), prior)
	assert.True(t, got.Equal(prior))
}

func TestAggregate_ExternalTimeoutIsPatternOnly(t *testing.T) {
	ext := extract.NewExternalExtractor(stubProvider{reply: `{"upiIds":["late@ybl"]}`, delay: 5 * time.Second})
	pipeline := extract.NewPipeline(nil,
		extract.WithExternal(ext),
		extract.WithExternalTimeout(25*time.Millisecond))
	agg := NewAggregator(pipeline)

	text := "Call +91-9876543210 or use account 1234567890123456"
	got := agg.Aggregate(context.Background(), nil, counterpart(text), intel.Record{})
	want := extract.NewExtractor().Extract(text)
	assert.True(t, got.Equal(want), "got %+v, want %+v", got, want)
	assert.NotContains(t, got.UPIIDs, "late@ybl")
}

func TestAggregate_ExternalContributes(t *testing.T) {
	ext := extract.NewExternalExtractor(stubProvider{reply: `{"bankAccounts":["5555 6666 7777"]}`})
	agg := NewAggregator(extract.NewPipeline(nil, extract.WithExternal(ext)))

	got := agg.Aggregate(context.Background(), nil, counterpart("deposit in five five five five..."), intel.Record{})
	require.Len(t, got.BankAccounts, 1)
	assert.Equal(t, "5555 6666 7777", got.BankAccounts[0])
}
