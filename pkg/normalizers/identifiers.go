package normalizers

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrEmptyIdentifier = errors.New("identifier is empty")
	ErrInvalidGTIN     = errors.New("invalid GTIN")
)

// NormalizeGTIN validates an EAN-8, UPC-A, EAN-13 or GTIN-14 barcode and returns
// it left-padded to 14 digits. Spaces and hyphens are ignored; any other
// non-digit character is rejected.
func NormalizeGTIN(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyIdentifier
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidGTIN, r)
		}
	}
	digits := b.String()

	switch len(digits) {
	case 8, 12, 13, 14:
	default:
		return "", fmt.Errorf("%w: length %d", ErrInvalidGTIN, len(digits))
	}

	if CheckDigit(digits[:len(digits)-1]) != digits[len(digits)-1] {
		return "", fmt.Errorf("%w: check digit", ErrInvalidGTIN)
	}

	return strings.Repeat("0", 14-len(digits)) + digits, nil
}

// CheckDigit computes the GS1 mod-10 check digit for body.
func CheckDigit(body string) byte {
	sum := 0
	weight := 3
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return byte('0' + (10-sum%10)%10)
}

// NormalizeSKU upper-cases a supplier SKU and removes whitespace.
func NormalizeSKU(raw string) string {
	return strings.ToUpper(RemoveWhitespace(raw))
}
