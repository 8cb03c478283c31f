// Package money parses locale-formatted amounts and normalizes console text for comparison.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrNotNumeric is returned when an input carries no digit at all.
	ErrNotNumeric = errors.New("no digits in amount")
	// ErrMultipleNumbers is returned when an input carries more than one digit group.
	ErrMultipleNumbers = errors.New("more than one number in amount")
)

// DotConvention decides how a lone '.' separator is read when no ',' is present.
type DotConvention int

const (
	// DotAuto reads "12.345" and "1.234.567" as grouping and "12.5" as a decimal point.
	DotAuto DotConvention = iota
	// DotThousands always reads '.' as a thousands separator. Console row balances use it.
	DotThousands
)

// ParseLocalizedMoney parses amounts such as "1.234,56", "$ 12.345" or "0,00" using DotAuto.
func ParseLocalizedMoney(s string) (float64, error) {
	return ParseLocalizedMoneyWith(s, DotAuto)
}

// ParseLocalizedMoneyWith parses a locale-formatted amount. When both separators are present the
// last one is the decimal separator. A single ',' is decimal; repeated ',' are grouping.
// The input must hold exactly one number; a '-' next to it (currency symbols and spaces may sit
// in between) or enclosing parentheses make it negative.
func ParseLocalizedMoneyWith(s string, dot DotConvention) (float64, error) {
	runes := []rune(strings.TrimSpace(s))
	start, end, err := numericToken(runes)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}

	var b strings.Builder
	for _, r := range runes[start:end] {
		if isDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(canonicalize(b.String(), dot), 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if isNegative(runes, start, end) {
		v = -v
	}
	return v, nil
}

// numericToken locates the single number in runes. A number starts and ends with a digit;
// '.' and ',' continue it when a digit follows, and a space continues it only as a thousands
// separator before exactly three digits.
func numericToken(runes []rune) (start, end int, err error) {
	start, end = -1, -1
	for i := 0; i < len(runes); {
		if !isDigit(runes[i]) {
			i++
			continue
		}
		if start >= 0 {
			return 0, 0, ErrMultipleNumbers
		}
		start = i
		for i < len(runes) {
			switch {
			case isDigit(runes[i]):
				i++
				continue
			case (runes[i] == '.' || runes[i] == ',') && i+1 < len(runes) && isDigit(runes[i+1]):
				i++
				continue
			case isSpace(runes[i]) && groupOfThree(runes, i+1):
				i++
				continue
			}
			break
		}
		end = i
	}
	if start < 0 {
		return 0, 0, ErrNotNumeric
	}
	return start, end, nil
}

func groupOfThree(runes []rune, i int) bool {
	if i+3 > len(runes) {
		return false
	}
	for _, r := range runes[i : i+3] {
		if !isDigit(r) {
			return false
		}
	}
	return i+3 == len(runes) || !isDigit(runes[i+3])
}

func isNegative(runes []rune, start, end int) bool {
	for i := start - 1; i >= 0; i-- {
		r := runes[i]
		if isMinus(r) {
			return true
		}
		if !isSpace(r) && !unicode.Is(unicode.Sc, r) && !unicode.IsLetter(r) {
			break
		}
	}
	for i := end; i < len(runes); i++ {
		r := runes[i]
		if isMinus(r) {
			return true
		}
		if !isSpace(r) && !unicode.Is(unicode.Sc, r) && !unicode.IsLetter(r) {
			break
		}
	}
	return len(runes) > 1 && runes[0] == '(' && runes[len(runes)-1] == ')'
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isSpace(r rune) bool { return unicode.IsSpace(r) || r == '\u00a0' || r == '\u202f' }

func isMinus(r rune) bool { return r == '-' || r == '\u2212' }

func canonicalize(num string, dot DotConvention) string {
	lastDot := strings.LastIndexByte(num, '.')
	lastComma := strings.LastIndexByte(num, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal, group := ",", "."
		if lastDot > lastComma {
			decimal, group = ".", ","
		}
		num = strings.ReplaceAll(num, group, "")
		return strings.Replace(num, decimal, ".", 1)
	case lastComma >= 0:
		if strings.Count(num, ",") > 1 {
			return strings.ReplaceAll(num, ",", "")
		}
		return strings.Replace(num, ",", ".", 1)
	case lastDot >= 0:
		if dot == DotThousands || strings.Count(num, ".") > 1 || len(num)-lastDot-1 == 3 {
			return strings.ReplaceAll(num, ".", "")
		}
		return num
	default:
		return num
	}
}

// FormatAmount renders an amount the way console amount inputs accept it.
func FormatAmount(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol float64) bool {
	if tol < 0 {
		tol = 0
	}
	return math.Abs(a-b) <= tol+1e-9
}

func isIdentityRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
