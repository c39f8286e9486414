package extract

import (
	"github.com/hurttlocker/scamintel/internal/intel"
)

var defaultExtractor = NewExtractor()

// Cleanse validates a merged record with the default extractor settings.
func Cleanse(rec intel.Record) intel.Record {
	return defaultExtractor.Cleanse(rec)
}

// Cleanse drops invalid entries from rec one by one:
//   - bank accounts that are not 10-18 digits once separators are removed,
//     or that contain anything besides digits, spaces and hyphens
//   - phone numbers that do not normalize to a 10-digit mobile number, or
//     whose digits occur inside a surviving bank account
//
// A literal present in both emails and upiIds is reclassified with the handle
// rules so it ends up in exactly one of them. URLs, keywords and all other
// entries pass unchanged apart from trimming. Noise filtering belongs to the
// governor, which only sees external results.
func (e *Extractor) Cleanse(rec intel.Record) intel.Record {
	out := rec.Normalize()

	var banks, bankDigits []string
	for _, v := range out.BankAccounts {
		if !validBank(v) {
			continue
		}
		banks = append(banks, v)
		bankDigits = append(bankDigits, intel.Digits(v))
	}
	out.Set(intel.BankAccounts, banks)

	var phones []string
	for _, v := range out.PhoneNumbers {
		digits, ok := intel.NormalizePhone(v)
		if !ok || insideAny(digits, bankDigits) {
			continue
		}
		phones = append(phones, v)
	}
	out.Set(intel.PhoneNumbers, phones)

	e.splitHandles(&out)
	return out
}

func validBank(v string) bool {
	n := 0
	for i := 0; i < len(v); i++ {
		switch c := v[i]; {
		case c >= '0' && c <= '9':
			n++
		case c == ' ' || c == '-':
		default:
			return false
		}
	}
	return n >= 10 && n <= 18
}

// splitHandles resolves literals listed as both an email and a payment
// handle. Tokens the handle rules cannot place stay payment handles.
func (e *Extractor) splitHandles(rec *intel.Record) {
	if len(rec.Emails) == 0 || len(rec.UPIIDs) == 0 {
		return
	}
	var emails, upis []string
	for _, v := range rec.Emails {
		if !rec.Contains(intel.UPIIDs, v) {
			emails = append(emails, v)
			continue
		}
		if cat, ok := e.classifyHandle(v); ok && cat == intel.Emails {
			emails = append(emails, v)
		}
	}
	for _, v := range rec.UPIIDs {
		if !rec.Contains(intel.Emails, v) {
			upis = append(upis, v)
			continue
		}
		if cat, ok := e.classifyHandle(v); !ok || cat == intel.UPIIDs {
			upis = append(upis, v)
		}
	}
	rec.Set(intel.Emails, emails)
	rec.Set(intel.UPIIDs, upis)
}
