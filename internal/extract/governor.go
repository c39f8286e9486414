package extract

import (
	"sort"
	"strings"
	"unicode"

	"github.com/hurttlocker/scamintel/internal/intel"
)

// GovernorConfig controls entry quality filtering and caps.
type GovernorConfig struct {
	// MaxPerCategory caps the number of entries kept per category.
	// Entries are ranked by quality score; lowest-quality entries are dropped.
	// 0 means unlimited (default).
	MaxPerCategory int

	// MaxEntryLength drops entries longer than this many bytes. 0 disables
	// the check. Default: 512.
	MaxEntryLength int

	// DropMarkdownJunk removes entries that are pure markdown formatting
	// artifacts (e.g., "**", "---", "```"). Default: true.
	DropMarkdownJunk bool

	// DropControlChars removes entries containing control characters.
	// Default: true.
	DropControlChars bool
}

// DefaultGovernorConfig returns the recommended default governor settings.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		MaxPerCategory:   0,
		MaxEntryLength:   512,
		DropMarkdownJunk: true,
		DropControlChars: true,
	}
}

// Governor filters and ranks record entries to enforce quality standards.
// It is applied to externally produced records before they are merged, since
// pattern output is already well-formed by construction.
type Governor struct {
	config GovernorConfig
}

// NewGovernor creates a Governor with the given config.
func NewGovernor(cfg GovernorConfig) *Governor {
	return &Governor{config: cfg}
}

// Config returns the governor's settings.
func (g *Governor) Config() GovernorConfig {
	return g.config
}

// Apply runs all quality filters and caps on a record and returns the
// surviving entries.
func (g *Governor) Apply(rec intel.Record) intel.Record {
	var out intel.Record
	for _, cat := range intel.Categories {
		vals := rec.Values(cat)
		if len(vals) == 0 {
			continue
		}

		// Phase 1: Drop garbage entries
		scored := make([]scoredEntry, 0, len(vals))
		for _, v := range vals {
			v = strings.TrimSpace(v)
			if g.isNoise(v) {
				continue
			}
			scored = append(scored, scoredEntry{value: v, score: qualityScore(cat, v)})
		}

		// Phase 2: Rank, ties broken by value so the cap is deterministic
		sort.SliceStable(scored, func(i, j int) bool {
			if scored[i].score != scored[j].score {
				return scored[i].score > scored[j].score
			}
			return scored[i].value < scored[j].value
		})

		// Phase 3: Cap
		if limit := g.config.MaxPerCategory; limit > 0 && len(scored) > limit {
			scored = scored[:limit]
		}

		kept := make([]string, 0, len(scored))
		for _, s := range scored {
			kept = append(kept, s.value)
		}
		out.Set(cat, kept)
	}
	return out
}

type scoredEntry struct {
	value string
	score float64
}

// isNoise returns true if the entry should be dropped as garbage.
func (g *Governor) isNoise(v string) bool {
	if v == "" {
		return true
	}
	if g.config.MaxEntryLength > 0 && len(v) > g.config.MaxEntryLength {
		return true
	}
	if g.config.DropControlChars && hasControl(v) {
		return true
	}
	if g.config.DropMarkdownJunk && (isMarkdownJunk(v) || isOnlyFormatting(v)) {
		return true
	}
	return false
}

func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// isMarkdownJunk detects entries that are pure markdown artifacts.
func isMarkdownJunk(s string) bool {
	stripped := strings.TrimSpace(s)
	if stripped == "" {
		return true
	}

	// Pure formatting tokens
	junk := []string{
		"**", "***", "---", "___", "```", "~~~",
		"|", "|-", "-|", "--|--", "|---|",
		"#", "##", "###", "####",
	}
	for _, j := range junk {
		if stripped == j {
			return true
		}
	}

	// All stars/dashes/pipes (table separators, horizontal rules)
	for _, r := range stripped {
		if r != '*' && r != '-' && r != '_' && r != '|' && r != ' ' && r != ':' {
			return false
		}
	}
	return true
}

// isOnlyFormatting returns true if the string is only markdown formatting characters.
func isOnlyFormatting(s string) bool {
	stripped := strings.TrimSpace(s)
	if stripped == "" {
		return true
	}
	for _, r := range stripped {
		if r != '*' && r != '_' && r != '`' && r != '#' && r != '~' && r != ' ' {
			return false
		}
	}
	return true
}

// qualityScore assigns a 0-1 score used only for ranking when capping.
// Entries that already look like their category rank first.
func qualityScore(cat intel.Category, v string) float64 {
	score := 0.5

	switch cat {
	case intel.PhoneNumbers:
		if _, ok := intel.NormalizePhone(v); ok {
			score += 0.4
		}
	case intel.BankAccounts:
		if n := len(intel.Digits(v)); n >= 10 && n <= 18 {
			score += 0.4
		}
	case intel.PhishingLinks:
		lower := strings.ToLower(v)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			score += 0.3
		} else if strings.Contains(lower, ".") {
			score += 0.15
		}
	case intel.Emails, intel.UPIIDs:
		if strings.Count(v, "@") == 1 {
			score += 0.3
		}
	case intel.SuspiciousKeywords:
		// Short phrases carry more signal than model-written sentences.
		if len(v) <= 32 {
			score += 0.2
		}
	}

	// Penalize whitespace inside non-keyword identifiers.
	if cat != intel.SuspiciousKeywords && cat != intel.BankAccounts && cat != intel.PhoneNumbers &&
		strings.ContainsAny(v, " \t") {
		score -= 0.3
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}
