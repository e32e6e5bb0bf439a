// Package utils provides utility functions for the application.
package utils

import (
	"strings"
)

func ToPtr[T any](v T) *T {
	return &v
}

// Deref returns the value behind p or the zero value when p is nil
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// DigitsOnly strips every non-digit rune from s
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LocalPhone formats a stored phone number for domestic delivery: digits only with a leading 0
func LocalPhone(phone string) string {
	digits := DigitsOnly(phone)
	if digits == "" || strings.HasPrefix(digits, "0") {
		return digits
	}
	return "0" + digits
}
