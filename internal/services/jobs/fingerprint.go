// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/licenseops/dunning/pkg/phone"
)

const fingerprintVersion = "v1"

// Fingerprint returns the deduplication hash of a payload.
//
// The digest covers, one per line: the format version, the lower-cased tax
// id, the phone number folded to +<digits> with countryCode applied to local
// numbers, the lower-cased email, the sorted and de-duplicated license ids
// joined by commas, the lower-cased severity and the message with runs of
// whitespace collapsed. License id order and phone formatting do not affect
// it.
func Fingerprint(p *Payload, countryCode string) string {
	ids := cleanIDs(p.LicenseIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	parts := []string{
		fingerprintVersion,
		strings.ToLower(strings.TrimSpace(p.RucOrDni)),
		phone.Canonical(p.PhoneNumber, countryCode),
		strings.ToLower(strings.TrimSpace(p.Email)),
		strings.Join(ids, ","),
		strings.ToLower(strings.TrimSpace(p.Severity)),
		strings.Join(strings.Fields(p.Message), " "),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
