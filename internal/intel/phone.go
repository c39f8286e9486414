package intel

import "strings"

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// NormalizePhone strips separators and a leading +91, 91 or 0 prefix and
// reports whether what remains is a national mobile number: ten digits with a
// leading 6, 7, 8 or 9.
func NormalizePhone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c == ' ', c == '-', c == '.', c == '(', c == ')':
		case c == '+' && i == 0:
		default:
			return "", false
		}
	}
	d := Digits(s)
	switch {
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		d = d[2:]
	case len(d) == 11 && d[0] == '0':
		d = d[1:]
	}
	if !IsMobileShape(d) {
		return "", false
	}
	return d, true
}

// IsMobileShape reports whether d is exactly ten digits with a valid leading
// national-mobile digit.
func IsMobileShape(d string) bool {
	if len(d) != 10 || d[0] < '6' || d[0] > '9' {
		return false
	}
	for i := 1; i < len(d); i++ {
		if d[i] < '0' || d[i] > '9' {
			return false
		}
	}
	return true
}

// PhoneKeys returns the distinct normalized digits of the record's phone
// numbers. Storage stays format preserving; this is a read-only view for
// callers that want to count logically distinct numbers.
func (r Record) PhoneKeys() []string {
	seen := make(map[string]struct{}, len(r.PhoneNumbers))
	var out []string
	for _, p := range r.PhoneNumbers {
		d, ok := NormalizePhone(p)
		if !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
