package service

import (
	"strings"

	"github.com/unclebandit/targetup-dispatch/internal/model"
)

// NormalizePhone reduces a Korean mobile number to its digits-only form.
// It returns "" when the number is not a valid mobile number.
func NormalizePhone(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	v = strings.TrimPrefix(v, "+")
	v = digitsOnly(v)
	if strings.HasPrefix(v, "82") {
		v = "0" + v[2:]
	}
	// spreadsheets drop the leading zero
	if !strings.HasPrefix(v, "0") && len(v) >= 2 && v[0] == '1' && strings.ContainsRune("016789", rune(v[1])) {
		v = "0" + v
	}
	if !validMobile(v) {
		return ""
	}
	return v
}

func validMobile(v string) bool {
	if !strings.HasPrefix(v, "01") || len(v) < 10 || len(v) > 11 {
		return false
	}
	switch v[2] {
	case '0':
		return len(v) == 11
	case '1', '6', '7', '8', '9':
		return true
	}
	return false
}

// NormalizeRecipients normalizes phones, dropping invalid numbers and
// duplicates. It returns the kept recipients and the number dropped as
// invalid.
func NormalizeRecipients(in []model.Recipient) ([]model.Recipient, int) {
	out := make([]model.Recipient, 0, len(in))
	seen := make(map[string]bool, len(in))
	invalid := 0
	for _, r := range in {
		phone := NormalizePhone(r.Phone)
		if phone == "" {
			invalid++
			continue
		}
		if seen[phone] {
			continue
		}
		seen[phone] = true
		r.Phone = phone
		if r.Callback != "" {
			r.Callback = digitsOnly(r.Callback)
		}
		out = append(out, r)
	}
	return out, invalid
}

func phonesOf(recipients []model.Recipient) []string {
	phones := make([]string, len(recipients))
	for i, r := range recipients {
		phones[i] = r.Phone
	}
	return phones
}
