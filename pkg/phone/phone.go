// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package phone folds free-form phone numbers into +<digits>.
package phone

import (
	"errors"
	"strings"
)

const minDigits = 7

var (
	ErrMissing = errors.New("license has no phone number")
	ErrInvalid = errors.New("phone number is invalid")
)

// Normalize converts raw into +<digits>. A "00" prefix is an international
// prefix. Numbers without one get countryCode unless they already start
// with it.
func Normalize(raw, countryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	plus := strings.HasPrefix(trimmed, "+")

	digits := Digits(trimmed)
	if !plus && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
		plus = true
	}
	if digits == "" {
		return "", ErrMissing
	}

	if !plus {
		cc := Digits(countryCode)
		if cc != "" && !(strings.HasPrefix(digits, cc) && len(digits) > len(cc)+minDigits) {
			digits = cc + strings.TrimLeft(digits, "0")
		}
	}

	if len(digits) < minDigits {
		return "", ErrInvalid
	}
	return "+" + digits, nil
}

// Canonical is Normalize for identity keys: numbers that cannot be
// normalized fall back to their digits.
func Canonical(raw, countryCode string) string {
	if n, err := Normalize(raw, countryCode); err == nil {
		return n
	}
	return Digits(raw)
}

// Digits keeps only ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
