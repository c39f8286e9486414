package extract

import (
	"regexp"
	"strings"

	"github.com/hurttlocker/scamintel/internal/intel"
)

// DefaultKeywords is the scam-indicator vocabulary. Matching is a
// case-insensitive containment test; the vocabulary entry itself is reported.
var DefaultKeywords = []string{
	"urgent", "immediately", "verify now", "account blocked", "kyc expired",
	"click here", "suspended", "fine", "penalty", "last warning",
	"within 24 hours", "action required", "download", "install",
	"quick support", "anydesk", "team viewer", "teamviewer", "remote access",
	"otp", "share otp", "send otp", "one time password",
	"registration fee", "processing fee", "pay now", "transfer",
	"congratulations", "won", "prize", "lottery", "reward",
	"cashback", "refund", "claim", "activate",
	"police", "cyber cell", "arrest", "legal action", "court",
	"rbi", "reserve bank", "income tax", "government",
}

// DefaultPaymentHandles are UPI provider handles. A token whose domain's first
// label is one of these is a payment handle even when the domain is dotted.
var DefaultPaymentHandles = []string{
	"paytm", "ptyes", "ptaxis", "pthdfc", "ptsbi",
	"ybl", "ibl", "axl", "phonepe",
	"oksbi", "okaxis", "okicici", "okhdfcbank", "gpay",
	"upi", "apl", "yapl", "rapl",
	"waaxis", "wahdfcbank", "waicici", "wasbi",
	"ikwik", "axisb", "jupiteraxis", "naviaxis", "pingpay", "abfspay", "barodampay",
}

// bankHandles are bank and wallet names that also serve as UPI handles. They
// own real mail domains ("care@hdfcbank.com"), so they only mark undotted
// tokens as payment handles.
var bankHandles = map[string]bool{
	"sbi": true, "icici": true, "hdfcbank": true, "axisbank": true, "kotak": true,
	"kbl": true, "kvb": true, "pnb": true, "unionbank": true, "uboi": true,
	"boi": true, "cnrb": true, "idbi": true, "idfcbank": true, "idfcfirst": true,
	"yesbank": true, "indus": true, "federal": true, "rbl": true, "aubank": true,
	"postbank": true, "freecharge": true, "airtel": true, "airtelpaymentsbank": true,
	"jio": true, "mobikwik": true, "amazonpay": true, "fam": true, "slice": true,
	"fbl": true,
}

// emailProviders name well-known mailbox providers. An undotted handle on one
// of these ("name@gmail") is a truncated email, never a payment handle.
var emailProviders = map[string]bool{
	"gmail": true, "googlemail": true, "yahoo": true, "ymail": true,
	"hotmail": true, "outlook": true, "live": true, "msn": true,
	"mail": true, "protonmail": true, "proton": true, "rediffmail": true,
	"icloud": true, "aol": true, "zoho": true, "gmx": true,
}

// rank orders candidates for the reducer. Lower ranks claim spans first.
type rank int

const (
	rankURLScheme rank = iota
	rankURLWWW
	rankURLBare
	rankEmail
	rankHandle
	rankBankLabeled
	rankBankUnlabeled
	rankPhone
)

var (
	urlSchemeRE = regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s"'<>]+`)
	urlWWWRE    = regexp.MustCompile(`(?i)\bwww\.[a-z0-9-]+(?:\.[a-z0-9-]+)+[^\s"'<>]*`)
	urlBareRE   = regexp.MustCompile(
		`(?i)\b[a-z0-9](?:[a-z0-9-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]*[a-z0-9])?)*` +
			`\.(?:co\.in|com|net|org|in|info|xyz|online|site|click|link|top|live|app|io|me|biz|shop|tk|ly|gl)\b` +
			`(?:[/?#][^\s"'<>]*)?`,
	)

	emailRE  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}\b`)
	handleRE = regexp.MustCompile(`[A-Za-z0-9._-]{2,}@[A-Za-z][A-Za-z0-9]*(?:\.[A-Za-z][A-Za-z0-9]*)*`)

	// Digit runs: 4-4-4(-2..6) grouped with single separators, or contiguous.
	digitRun         = `(?:\d{4}(?:[ -]\d{4}){2}(?:[ -]\d{2,6})?|\d{10,18})`
	bankLabeledRE    = regexp.MustCompile(`(?i)\b(?:bank\s+)?(?:account|acct|a/c|acc)\.?(?:\s*(?:number|num|no)\.?)?\s*(?:is\s*)?[:#-]?\s*(` + digitRun + `)\b`)
	bankUnlabeledRE  = regexp.MustCompile(`\b` + digitRun + `\b`)
	phoneRE          = regexp.MustCompile(`(?:\+91[\s-]?|\b91[\s-]?|\b0)?(?:[6-9]\d{9}|[6-9]\d{4}[\s-]\d{5}|[6-9]\d{2}[\s-]\d{3}[\s-]\d{4})\b`)
	urlTrailingPunct = ".,;:!?"
)

type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// candidate is one tagged match produced by a matcher. The reducer decides
// which candidates survive.
type candidate struct {
	category intel.Category
	rank     rank
	value    string
	span     span
	digits   string
	labeled  bool
}

// matcher scans text for one kind of token.
type matcher struct {
	name string
	scan func(e *Extractor, text string) []candidate
}

// matchers run in this order; their ranks encode the tie-break policy.
var matchers = []matcher{
	{name: "url_scheme", scan: scanURLs(urlSchemeRE, rankURLScheme, false)},
	{name: "url_www", scan: scanURLs(urlWWWRE, rankURLWWW, false)},
	{name: "url_bare", scan: scanURLs(urlBareRE, rankURLBare, true)},
	{name: "email", scan: scanEmails},
	{name: "payment_handle", scan: scanHandles},
	{name: "bank_labeled", scan: scanLabeledBanks},
	{name: "bank_unlabeled", scan: scanUnlabeledBanks},
	{name: "phone", scan: scanPhones},
}

func scanURLs(re *regexp.Regexp, r rank, bare bool) func(*Extractor, string) []candidate {
	return func(_ *Extractor, text string) []candidate {
		var out []candidate
		for _, loc := range re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			// A bare domain glued to '@' is the domain half of an email or handle.
			if bare && ((start > 0 && text[start-1] == '@') || (end < len(text) && text[end] == '@')) {
				continue
			}
			value := trimURL(text[start:end])
			if value == "" {
				continue
			}
			out = append(out, candidate{
				category: intel.PhishingLinks,
				rank:     r,
				value:    value,
				span:     span{start, start + len(value)},
			})
		}
		return out
	}
}

// trimURL drops trailing sentence punctuation and an unbalanced closing paren.
func trimURL(u string) string {
	for {
		trimmed := strings.TrimRight(u, urlTrailingPunct)
		if strings.HasSuffix(trimmed, ")") && strings.Count(trimmed, "(") < strings.Count(trimmed, ")") {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if trimmed == u {
			return u
		}
		u = trimmed
	}
}

func scanEmails(e *Extractor, text string) []candidate {
	var out []candidate
	for _, loc := range emailRE.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		if e.isPaymentDomain(domainOf(value)) {
			continue
		}
		out = append(out, candidate{
			category: intel.Emails,
			rank:     rankEmail,
			value:    value,
			span:     span{loc[0], loc[1]},
		})
	}
	return out
}

func scanHandles(e *Extractor, text string) []candidate {
	var out []candidate
	for _, loc := range handleRE.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		domain := domainOf(value)
		// Dotted, non-allowlisted domains belong to the email matcher.
		if strings.Contains(domain, ".") && !e.isPaymentDomain(domain) {
			continue
		}
		cat, ok := e.classifyHandle(value)
		if !ok {
			continue
		}
		out = append(out, candidate{
			category: cat,
			rank:     rankHandle,
			value:    value,
			span:     span{loc[0], loc[1]},
		})
	}
	return out
}

func scanLabeledBanks(_ *Extractor, text string) []candidate {
	var out []candidate
	for _, m := range bankLabeledRE.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		value := text[start:end]
		out = append(out, candidate{
			category: intel.BankAccounts,
			rank:     rankBankLabeled,
			value:    value,
			span:     span{start, end},
			digits:   intel.Digits(value),
			labeled:  true,
		})
	}
	return out
}

func scanUnlabeledBanks(_ *Extractor, text string) []candidate {
	var out []candidate
	for _, loc := range bankUnlabeledRE.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		value := text[start:end]
		digits := intel.Digits(value)
		// A run directly after '+' is a country-coded phone. Otherwise only a
		// 10-digit mobile-shaped run is left for the phone matcher; longer
		// unlabeled runs are accounts even when a 91 or 0 prefix would make
		// them phone-shaped.
		if start > 0 && text[start-1] == '+' {
			continue
		}
		if intel.IsMobileShape(digits) {
			continue
		}
		out = append(out, candidate{
			category: intel.BankAccounts,
			rank:     rankBankUnlabeled,
			value:    value,
			span:     span{start, end},
			digits:   digits,
		})
	}
	return out
}

func scanPhones(_ *Extractor, text string) []candidate {
	var out []candidate
	for _, loc := range phoneRE.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if text[start] != '+' && start > 0 && isAlnum(text[start-1]) {
			continue
		}
		value := text[start:end]
		digits, ok := intel.NormalizePhone(value)
		if !ok {
			continue
		}
		out = append(out, candidate{
			category: intel.PhoneNumbers,
			rank:     rankPhone,
			value:    value,
			span:     span{start, end},
			digits:   digits,
		})
	}
	return out
}

// matchKeywords returns the vocabulary entries contained in text, each once,
// in vocabulary order.
func matchKeywords(vocab []string, text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool, len(vocab))
	var out []string
	for _, kw := range vocab {
		if kw == "" || seen[kw] {
			continue
		}
		if strings.Contains(lower, kw) {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	return out
}

// domainOf returns the part after the last '@', or "" when there is none.
func domainOf(token string) string {
	i := strings.LastIndexByte(token, '@')
	if i < 0 {
		return ""
	}
	return token[i+1:]
}

func firstLabel(domain string) string {
	domain = strings.ToLower(domain)
	if i := strings.IndexByte(domain, '.'); i >= 0 {
		return domain[:i]
	}
	return domain
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
