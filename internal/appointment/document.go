package appointment

import (
	"strings"
)

const (
	cpfLength = 11
	rfLength  = 7
)

// documentDigits strips the punctuation people type into CPF/RF numbers.
func documentDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidDocument accepts a CPF with valid check digits or a 7-digit RF.
// Dots, dashes, slashes and spaces are allowed as separators.
func ValidDocument(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && !strings.ContainsRune(".-/ ", r) {
			return false
		}
	}

	digits := documentDigits(s)
	switch len(digits) {
	case rfLength:
		return true
	case cpfLength:
		return validCPF(digits)
	}
	return false
}

func validCPF(digits string) bool {
	if strings.Count(digits, digits[:1]) == cpfLength {
		return false
	}

	d := make([]int, cpfLength)
	for i := range digits {
		d[i] = int(digits[i] - '0')
	}

	return cpfCheckDigit(d[:9]) == d[9] && cpfCheckDigit(d[:10]) == d[10]
}

func cpfCheckDigit(d []int) int {
	sum := 0
	weight := len(d) + 1
	for _, v := range d {
		sum += v * weight
		weight--
	}
	r := sum * 10 % 11
	if r == 10 {
		return 0
	}
	return r
}
