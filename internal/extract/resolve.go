package extract

import (
	"sort"
	"strings"

	"github.com/hurttlocker/scamintel/internal/intel"
)

// resolve is the single conflict reducer. Candidates are visited in rank
// order (then by position); a candidate is accepted only when its span does
// not overlap a span already claimed. This encodes the tie-break policy:
//
//	URL > email > payment handle > labeled bank > unlabeled bank > phone
//
// Phones get one extra rule: a phone whose normalized digits occur inside
// any accepted bank account's digits is rejected even without overlap.
func resolve(cands []candidate) intel.Record {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].rank != cands[j].rank {
			return cands[i].rank < cands[j].rank
		}
		return cands[i].span.start < cands[j].span.start
	})

	var (
		rec      intel.Record
		claimed  []span
		bankNums []string
	)
	for _, c := range cands {
		if overlapsAny(c.span, claimed) {
			continue
		}
		if c.category == intel.PhoneNumbers && insideAny(c.digits, bankNums) {
			continue
		}
		claimed = append(claimed, c.span)
		if c.category == intel.BankAccounts {
			bankNums = append(bankNums, c.digits)
		}
		rec.Add(c.category, c.value)
	}
	return rec
}

func overlapsAny(s span, claimed []span) bool {
	for _, o := range claimed {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}

// insideAny reports whether digits is a substring of any of haystacks.
func insideAny(digits string, haystacks []string) bool {
	if digits == "" {
		return false
	}
	for _, h := range haystacks {
		if strings.Contains(h, digits) {
			return true
		}
	}
	return false
}
