package payment

import (
	"errors"
	"strings"
)

// DigitsOnly strips everything but 0-9.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var errBadGabonMSISDN = errors.New("invalid Gabon MSISDN, expected 06XXXXXXX or 07XXXXXXX")

func isGabonMobile(sub string) bool {
	return len(sub) == 8 && (sub[0] == '6' || sub[0] == '7')
}

// NormalizeGabonMSISDN returns 241 followed by the 8-digit subscriber number.
// It accepts +241 7XXXXXXX, 241 07XXXXXXX, 07XXXXXXX and 7XXXXXXX forms.
func NormalizeGabonMSISDN(raw string) (string, error) {
	d := DigitsOnly(raw)
	d = strings.TrimPrefix(d, "241")
	d = strings.TrimPrefix(d, "0")
	if isGabonMobile(d) {
		return "241" + d, nil
	}
	// 0743998524 style: a 9-digit local number with one extra trailing digit.
	if len(d) == 9 && (d[0] == '6' || d[0] == '7') {
		return "241" + d[:8], nil
	}
	return "", errBadGabonMSISDN
}

// LocalGabonMSISDN turns 241XXXXXXXX into 0XXXXXXXX.
func LocalGabonMSISDN(normalized string) string {
	if sub, ok := strings.CutPrefix(normalized, "241"); ok {
		if strings.HasPrefix(sub, "0") {
			return sub
		}
		return "0" + sub
	}
	return normalized
}

// GabonPaymentSystem picks the eBilling payment system from a normalized MSISDN.
func GabonPaymentSystem(normalized string) (string, error) {
	switch {
	case strings.HasPrefix(normalized, "2417"):
		return "airtelmoney", nil
	case strings.HasPrefix(normalized, "2416"):
		return "moovmoney4", nil
	}
	return "", errors.New("unsupported MSISDN prefix, expected 06 or 07")
}

// ShapMSISDN formats a payee number the way SHAP expects it: local form with a leading 0.
func ShapMSISDN(raw string) string {
	d := DigitsOnly(raw)
	switch {
	case strings.HasPrefix(d, "241") && len(d) == 11:
		return "0" + d[3:]
	case len(d) == 8 && strings.HasPrefix(d, "0"):
		return d
	case len(d) == 7:
		return "0" + d
	case len(d) == 9 && strings.HasPrefix(d, "0"):
		return d
	case len(d) >= 8:
		return "0" + d[len(d)-8:]
	}
	return raw
}

// MonerooMSISDN drops a leading trunk 0 and keeps the remaining digits.
func MonerooMSISDN(raw string) string {
	d := DigitsOnly(raw)
	return strings.TrimPrefix(d, "0")
}
