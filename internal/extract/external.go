package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/hurttlocker/scamintel/internal/intel"
	"github.com/hurttlocker/scamintel/internal/llm"
	"github.com/hurttlocker/scamintel/internal/observe"
)

const (
	// DefaultExternalTimeout bounds one external extraction call.
	DefaultExternalTimeout = 5 * time.Second
	// DefaultHistoryWindow is the number of prior turns sent as context.
	DefaultHistoryWindow = 5

	externalMaxTokens   = 512
	externalTemperature = 0.1
)

const externalSystemPrompt = `You are a precise intelligence extraction system. Return ONLY valid JSON, no markdown, no explanation.`

const externalPromptTemplate = `You are an intelligence extraction system for a scam detection honeypot.

Analyze this conversation and extract ALL scam-related intelligence.

%s

Extract and return ONLY a JSON object with these fields (use empty arrays when nothing is found):
{
  "phoneNumbers": [],
  "upiIds": [],
  "bankAccounts": [],
  "phishingLinks": [],
  "emails": [],
  "suspiciousKeywords": []
}

RULES:
1. Copy values exactly as they appear (do not reformat phone numbers, handles or links)
2. Include uncertain items; they are validated afterwards
3. phoneNumbers: any format (+91-9876543210, 9876543210, +91 98765 43210)
4. upiIds: payment handles of the form name@provider
5. bankAccounts: runs of 10-18 digits, possibly grouped with spaces or dashes
6. phishingLinks: any http://, https://, www. or domain-like text
7. suspiciousKeywords: short scam indicators such as "urgent", "otp", "blocked"
8. Return ONLY the JSON object

EXAMPLE:
Input: "Call me at +91-9876543210 or pay to scammer@paytm"
Output: {"phoneNumbers":["+91-9876543210"],"upiIds":["scammer@paytm"],"bankAccounts":[],"phishingLinks":[],"emails":[],"suspiciousKeywords":["pay"]}`

// ExternalExtractor asks a language model for an intelligence record. Every
// failure (not configured, timeout, transport, auth, malformed reply)
// collapses to a nil result; callers fall back to pattern extraction.
type ExternalExtractor struct {
	provider      llm.Provider
	timeout       time.Duration
	historyWindow int
	cache         *lru.Cache[string, intel.Record]
	logger        *zap.Logger
	metrics       *observe.Metrics
}

// ExternalOption configures an ExternalExtractor.
type ExternalOption func(*ExternalExtractor)

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) ExternalOption {
	return func(x *ExternalExtractor) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithHistoryWindow sets how many prior turns are rendered as context.
func WithHistoryWindow(n int) ExternalOption {
	return func(x *ExternalExtractor) {
		if n >= 0 {
			x.historyWindow = n
		}
	}
}

// WithCacheSize keeps up to n successful results keyed by provider and
// prompt, so a redelivered turn costs no second call. The cache is off unless
// this option is given; 0 disables it again.
func WithCacheSize(n int) ExternalOption {
	return func(x *ExternalExtractor) {
		x.cache = nil
		if n > 0 {
			// lru.New only errors on non-positive size.
			x.cache, _ = lru.New[string, intel.Record](n)
		}
	}
}

// WithLogger sets the logger for degradation warnings.
func WithLogger(l *zap.Logger) ExternalOption {
	return func(x *ExternalExtractor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithMetrics records call outcomes on m.
func WithMetrics(m *observe.Metrics) ExternalOption {
	return func(x *ExternalExtractor) {
		x.metrics = m
	}
}

// NewExternalExtractor creates an adapter around provider. A nil provider
// yields an adapter that is never ready.
func NewExternalExtractor(provider llm.Provider, opts ...ExternalOption) *ExternalExtractor {
	x := &ExternalExtractor{
		provider:      provider,
		timeout:       DefaultExternalTimeout,
		historyWindow: DefaultHistoryWindow,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Ready reports whether a provider is configured.
func (x *ExternalExtractor) Ready() bool {
	return x != nil && x.provider != nil
}

// Name returns the provider name, or "" when not ready.
func (x *ExternalExtractor) Name() string {
	if !x.Ready() {
		return ""
	}
	return x.provider.Name()
}

type completion struct {
	reply string
	err   error
}

// Extract asks the provider for the record of text, with the last few
// history turns as context. A timeout <= 0 uses the configured default.
// It returns nil on any failure and never blocks past the timeout.
func (x *ExternalExtractor) Extract(ctx context.Context, text string, history []intel.Message, timeout time.Duration) *intel.Record {
	if !x.Ready() {
		x.metrics.ExternalCall("not_ready", 0)
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = x.timeout
	}

	prompt := x.renderPrompt(text, history)
	key := promptKey(x.provider.Name(), prompt)
	if x.cache != nil {
		if rec, ok := x.cache.Get(key); ok {
			x.metrics.ExternalCall("cached", 0)
			out := rec.Clone()
			return &out
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan completion, 1)
	go func() {
		reply, err := x.provider.Complete(callCtx, prompt, llm.CompletionOpts{
			MaxTokens:   externalMaxTokens,
			Temperature: externalTemperature,
			Format:      "json",
			System:      externalSystemPrompt,
		})
		done <- completion{reply: reply, err: err}
	}()

	var res completion
	select {
	case <-callCtx.Done():
		outcome := "timeout"
		if !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = "canceled"
		}
		x.metrics.ExternalCall(outcome, time.Since(start))
		x.logger.Warn("external extraction abandoned",
			zap.String("provider", x.provider.Name()),
			zap.String("outcome", outcome),
			zap.Duration("timeout", timeout))
		return nil
	case res = <-done:
	}
	elapsed := time.Since(start)

	if res.err != nil {
		outcome := "error"
		if llm.IsAuthError(res.err) {
			outcome = "auth_error"
		}
		x.metrics.ExternalCall(outcome, elapsed)
		x.logger.Warn("external extraction failed",
			zap.String("provider", x.provider.Name()),
			zap.String("outcome", outcome),
			zap.Error(res.err))
		return nil
	}
	if strings.TrimSpace(res.reply) == "" {
		x.metrics.ExternalCall("empty", elapsed)
		x.logger.Warn("external extraction returned an empty reply", zap.String("provider", x.provider.Name()))
		return nil
	}

	rec, err := ParseExternalReply(res.reply)
	if err != nil {
		x.metrics.ExternalCall("unparseable", elapsed)
		x.logger.Warn("external extraction reply rejected",
			zap.String("provider", x.provider.Name()),
			zap.Error(err))
		return nil
	}

	x.metrics.ExternalCall("ok", elapsed)
	x.metrics.Extracted("external", rec)
	x.logger.Debug("external extraction complete",
		zap.String("provider", x.provider.Name()),
		zap.Int("values", rec.Len()),
		zap.Duration("elapsed", elapsed))
	if x.cache != nil {
		x.cache.Add(key, rec.Clone())
	}
	return &rec
}

// renderPrompt renders the last historyWindow turns as "sender: text" lines
// followed by the new counterpart message.
func (x *ExternalExtractor) renderPrompt(text string, history []intel.Message) string {
	if len(history) > x.historyWindow {
		history = history[len(history)-x.historyWindow:]
	}
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Sender, m.Text)
		}
		b.WriteString("\nNew message:\n")
	}
	fmt.Fprintf(&b, "%s: %s", intel.Counterpart, text)
	return fmt.Sprintf(externalPromptTemplate, b.String())
}

func promptKey(provider, prompt string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// ParseExternalReply decodes a model reply into a record. Markdown code
// fences are ignored and the text from the first '{' to the last '}' is
// decoded, with one repair attempt if it is malformed. Each of the six
// categories is coerced to a string list: missing or non-array fields become
// empty, strings are trimmed, numbers are kept exactly as written, and any
// other element is dropped.
func ParseExternalReply(reply string) (intel.Record, error) {
	cleaned := strings.ReplaceAll(reply, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return intel.Record{}, errors.New("no JSON object in reply")
	}
	body := cleaned[start : end+1]

	obj, err := decodeObject(body)
	if err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return intel.Record{}, fmt.Errorf("decoding reply: %w", err)
		}
		obj, err = decodeObject(repaired)
		if err != nil {
			return intel.Record{}, fmt.Errorf("decoding repaired reply: %w", err)
		}
	}

	var rec intel.Record
	for _, cat := range intel.Categories {
		rec.Set(cat, coerceStrings(obj[string(cat)]))
	}
	return rec, nil
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("reply is %T, not an object", v)
	}
	return obj, nil
}

func coerceStrings(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		switch t := el.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case json.Number:
			out = append(out, t.String())
		}
	}
	return out
}
