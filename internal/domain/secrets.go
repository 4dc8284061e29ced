// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// RedactString replaces a string with asterisks of the same length
func RedactString(s string) string {
	if len(s) == 0 {
		return ""
	}

	return strings.Repeat("*", len(s))
}

// MaskSecret keeps the last four characters visible, for log lines where the
// operator needs to tell credentials apart.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return RedactString(s)
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
