// Package extract turns free-form counterpart text into an intelligence
// record.
//
// The pipeline has two independent extractors and one reconciliation step:
//   - Extractor: deterministic typed matchers plus a single conflict reducer
//     (phones, payment handles, bank accounts, URLs, emails, keywords)
//   - ExternalExtractor: optional model-backed extraction that degrades to
//     nil on any failure
//   - Merge/Cleanse: set union of both results followed by a validity pass
//
// Nothing in this package returns an error or panics on input; malformed
// input yields an empty record and malformed entries are dropped one by one.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hurttlocker/scamintel/internal/intel"
)

// HandlePolicy decides how an undotted local@handle token is classified when
// the handle is neither a known payment provider nor a mailbox provider.
type HandlePolicy string

const (
	// HandleAsUPI treats the token as a payment handle (default).
	HandleAsUPI HandlePolicy = "upi"
	// HandleAsEmail treats the token as an email address.
	HandleAsEmail HandlePolicy = "email"
	// HandleDrop discards the token.
	HandleDrop HandlePolicy = "drop"
)

// ParseHandlePolicy parses a policy name. Empty input yields the default.
func ParseHandlePolicy(s string) (HandlePolicy, error) {
	switch HandlePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", HandleAsUPI:
		return HandleAsUPI, nil
	case HandleAsEmail:
		return HandleAsEmail, nil
	case HandleDrop:
		return HandleDrop, nil
	default:
		return "", fmt.Errorf("unknown handle policy %q (supported: upi, email, drop)", s)
	}
}

// Extractor is the deterministic pattern extractor. It is safe for concurrent
// use; all state is fixed at construction.
type Extractor struct {
	policy   HandlePolicy
	handles  map[string]bool
	keywords []string
	governor *Governor
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHandlePolicy sets the classification of ambiguous undotted handles.
func WithHandlePolicy(p HandlePolicy) Option {
	return func(e *Extractor) {
		if p != "" {
			e.policy = p
		}
	}
}

// WithPaymentHandles adds provider handles to the payment-handle allowlist.
func WithPaymentHandles(handles ...string) Option {
	return func(e *Extractor) {
		for _, h := range handles {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				e.handles[h] = true
			}
		}
	}
}

// WithKeywords appends phrases to the scam-indicator vocabulary.
func WithKeywords(phrases ...string) Option {
	return func(e *Extractor) {
		for _, p := range phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				e.keywords = append(e.keywords, p)
			}
		}
	}
}

// WithGovernor replaces the entry governor used by Cleanse and Merge.
func WithGovernor(cfg GovernorConfig) Option {
	return func(e *Extractor) {
		e.governor = NewGovernor(cfg)
	}
}

// NewExtractor creates a pattern extractor with the default vocabularies.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		policy:   HandleAsUPI,
		handles:  make(map[string]bool, len(DefaultPaymentHandles)),
		keywords: append([]string(nil), DefaultKeywords...),
		governor: NewGovernor(DefaultGovernorConfig()),
	}
	for _, h := range DefaultPaymentHandles {
		e.handles[h] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the configured handle policy.
func (e *Extractor) Policy() HandlePolicy {
	return e.policy
}

// Keywords returns a copy of the keyword vocabulary.
func (e *Extractor) Keywords() []string {
	return append([]string(nil), e.keywords...)
}

// PaymentHandles returns the payment-handle allowlist, sorted.
func (e *Extractor) PaymentHandles() []string {
	out := make([]string, 0, len(e.handles))
	for h := range e.handles {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Extract scans text and returns the resolved record. Empty or whitespace-only
// text yields an empty record.
func (e *Extractor) Extract(text string) intel.Record {
	if strings.TrimSpace(text) == "" {
		return intel.New()
	}

	var cands []candidate
	for _, m := range matchers {
		cands = append(cands, m.scan(e, text)...)
	}
	rec := resolve(cands)
	rec.Add(intel.SuspiciousKeywords, matchKeywords(e.keywords, text)...)
	return rec
}

// isPaymentDomain reports whether a token's domain marks it as a payment
// handle: an allowlisted provider as the first label, or a bank handle written
// without a dot.
func (e *Extractor) isPaymentDomain(domain string) bool {
	if domain == "" {
		return false
	}
	if e.handles[firstLabel(domain)] {
		return true
	}
	return !strings.Contains(domain, ".") && bankHandles[strings.ToLower(domain)]
}

// classifyHandle applies the handle rules to a local@domain token:
//   - allowlisted provider (dotted or not) or undotted bank handle: payment handle
//   - dotted domain with an alphabetic TLD: email
//   - undotted mailbox provider: email under HandleAsEmail, otherwise dropped
//   - any other undotted handle: per policy
func (e *Extractor) classifyHandle(token string) (intel.Category, bool) {
	at := strings.LastIndexByte(token, '@')
	if at <= 0 || at == len(token)-1 {
		return "", false
	}
	domain := token[at+1:]
	if e.isPaymentDomain(domain) {
		return intel.UPIIDs, true
	}
	if dot := strings.LastIndexByte(domain, '.'); dot >= 0 {
		if isAlphaTLD(domain[dot+1:]) {
			return intel.Emails, true
		}
		return "", false
	}
	if emailProviders[strings.ToLower(domain)] {
		if e.policy == HandleAsEmail {
			return intel.Emails, true
		}
		return "", false
	}
	switch e.policy {
	case HandleAsEmail:
		return intel.Emails, true
	case HandleDrop:
		return "", false
	default:
		return intel.UPIIDs, true
	}
}

func isAlphaTLD(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
