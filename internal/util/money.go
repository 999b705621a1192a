package util

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reCurrency     = regexp.MustCompile(`[$%\s\x{00A0}]`)
	reDotThousands = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)
	reCmaThousands = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+$`)
)

// CleanNumericString strips currency symbols, percent signs, spaces and
// thousands separators so the remainder parses as a plain decimal number.
// Accounting-style parentheses become a leading minus.
func CleanNumericString(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = reCurrency.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}

	switch {
	case reDotThousands.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case reCmaThousands.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}

	if negative {
		s = "-" + s
	}
	return s
}

// ParseMoney returns nil for blank or unparseable input, never zero.
func ParseMoney(input string) *decimal.Decimal {
	cleaned := CleanNumericString(input)
	if cleaned == "" || cleaned == "-" {
		return nil
	}
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &parsed
}

// ParsePercent parses a percentage cell into a fraction. Values greater than
// one are assumed to be written on the 0-100 scale and are divided by 100;
// a value of exactly 1.0 is left untouched, which is ambiguous for cells
// meaning "100%" (known edge case, kept for parity with existing sheets).
func ParsePercent(input string) *float64 {
	parsed := ParseMoney(input)
	if parsed == nil {
		return nil
	}
	value := *parsed
	if value.GreaterThan(decimal.NewFromInt(1)) {
		value = value.Div(decimal.NewFromInt(100))
	}
	f, _ := value.Float64()
	return FloatPtr(f)
}

// ParseHours parses a plain numeric cell such as worked hours.
func ParseHours(input string) *float64 {
	parsed := ParseMoney(input)
	if parsed == nil {
		return nil
	}
	f, _ := parsed.Float64()
	return FloatPtr(f)
}
