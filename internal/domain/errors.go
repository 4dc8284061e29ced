// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
)

// ExternalServiceError is a non-2xx answer from an outbound provider. Body
// holds the provider's raw error text.
type ExternalServiceError struct {
	Provider string `json:"provider"`
	Op       string `json:"op,omitempty"`
	Status   int    `json:"status"`
	Body     string `json:"body,omitempty"`
}

func (e *ExternalServiceError) Error() string {
	op := e.Provider
	if e.Op != "" {
		op = e.Provider + " " + e.Op
	}
	if e.Body == "" {
		return fmt.Sprintf("%s failed with status %d", op, e.Status)
	}
	return fmt.Sprintf("%s failed with status %d: %s", op, e.Status, e.Body)
}

func AsExternalServiceError(err error) (*ExternalServiceError, bool) {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext, true
	}
	return nil, false
}
