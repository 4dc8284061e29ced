// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrLicenseConflict is returned when a license key or domain is already taken.
	ErrLicenseConflict = errors.New("license key or domain already exists")

	// ErrInvalidTransition is returned for status changes out of a terminal state.
	ErrInvalidTransition = errors.New("invalid license status transition")
)

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	// Index is the position of the offending item in a batch, -1 otherwise.
	Index int `json:"index"`
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("item %d: %s: %s", e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Index: -1}
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
