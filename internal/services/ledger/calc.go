// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ledger

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ProratedAmount returns the partial first-cycle charge. An explicit
// ProratedAmountDue wins; otherwise Amount x ProratedDays / BillingCycleDays
// when both day counts are positive.
func ProratedAmount(l *models.License) (decimal.Decimal, bool) {
	if l.ProratedAmountDue.Valid {
		return l.ProratedAmountDue.Decimal, true
	}
	if l.ProratedDays == nil || l.BillingCycleDays == nil {
		return decimal.Zero, false
	}
	days, cycle := *l.ProratedDays, *l.BillingCycleDays
	if days <= 0 || cycle <= 0 {
		return decimal.Zero, false
	}
	return l.Amount.Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(int64(cycle))), true
}

// InitialCharge is the prorated amount, else the outstanding balance, else
// the full recurring amount.
func InitialCharge(l *models.License) decimal.Decimal {
	if prorated, ok := ProratedAmount(l); ok {
		return prorated
	}
	if l.OutstandingBalance.Valid {
		return l.OutstandingBalance.Decimal
	}
	return l.Amount
}

// ProrateFromStart fills ProratedDays and BillingCycleDays for a license that
// starts part way into a cycle ending at periodEnd. Explicit values are kept.
func ProrateFromStart(l *models.License, periodEnd time.Time) {
	if l.BillingCycleDays == nil {
		cycle := l.Frequency.CycleDays()
		l.BillingCycleDays = &cycle
	}
	if l.ProratedDays != nil || l.ProratedAmountDue.Valid {
		return
	}

	days := int(math.Ceil(periodEnd.Sub(l.StartDate).Hours() / 24))
	days = min(max(days, 0), *l.BillingCycleDays)
	l.ProratedDays = &days
}

// LateFee applies the percentage rule unless an explicit amount overrides it.
func LateFee(l *models.License) decimal.Decimal {
	if l.LateFeeAmount.Valid {
		return l.LateFeeAmount.Decimal
	}
	if l.LateFeePercentage.Valid {
		return l.Amount.Mul(l.LateFeePercentage.Decimal).Div(hundred)
	}
	return decimal.Zero
}

type ValidityState string

const (
	StateActive    ValidityState = "active"
	StateGrace     ValidityState = "grace"
	StateExpired   ValidityState = "expired"
	StateCancelled ValidityState = "cancelled"
)

type Validity struct {
	Valid       bool          `json:"valid"`
	State       ValidityState `json:"state"`
	Anchor      *time.Time    `json:"anchor,omitempty"`
	GraceEndsAt *time.Time    `json:"graceEndsAt,omitempty"`
	DaysOverdue int           `json:"daysOverdue"`
}

// Anchor is the date validity is measured from: EndDate, falling back to
// NextPaymentDue.
func Anchor(l *models.License) *time.Time {
	if l.EndDate != nil && !l.EndDate.IsZero() {
		return l.EndDate
	}
	if l.NextPaymentDue != nil && !l.NextPaymentDue.IsZero() {
		return l.NextPaymentDue
	}
	return nil
}

// CheckValidity evaluates the license at now. Without an anchor a
// non-cancelled license is valid.
func CheckValidity(l *models.License, now time.Time) Validity {
	if l.Status == models.LicenseStatusCancelled {
		return Validity{State: StateCancelled, Anchor: Anchor(l)}
	}

	anchor := Anchor(l)
	if anchor == nil {
		return Validity{Valid: true, State: StateActive}
	}

	graceEnds := anchor.AddDate(0, 0, max(l.GracePeriodDays, 0))
	v := Validity{Anchor: anchor, GraceEndsAt: &graceEnds}

	switch {
	case !now.After(*anchor):
		v.Valid = true
		v.State = StateActive
	case !now.After(graceEnds):
		v.Valid = true
		v.State = StateGrace
		v.DaysOverdue = daysBetween(*anchor, now)
	default:
		v.State = StateExpired
		v.DaysOverdue = daysBetween(*anchor, now)
	}

	return v
}

// daysBetween counts started days from a to b.
func daysBetween(a, b time.Time) int {
	if !b.After(a) {
		return 0
	}
	return int(math.Ceil(b.Sub(a).Hours() / 24))
}

// Summary collects every derived amount for one license.
type Summary struct {
	InitialCharge  decimal.Decimal     `json:"initialCharge"`
	ProratedAmount decimal.NullDecimal `json:"proratedAmount"`
	LateFee        decimal.Decimal     `json:"lateFee"`
	BaseDue        decimal.Decimal     `json:"baseDue"`
	TotalDue       decimal.Decimal     `json:"totalDue"`
	Validity       Validity            `json:"validity"`
}

// Summarize computes the Summary at now. The late fee is only added to the
// total once the anchor has passed.
func Summarize(l *models.License, now time.Time) Summary {
	s := Summary{
		InitialCharge: InitialCharge(l),
		LateFee:       LateFee(l),
		Validity:      CheckValidity(l, now),
	}
	if prorated, ok := ProratedAmount(l); ok {
		s.ProratedAmount = decimal.NewNullDecimal(prorated)
	}

	s.BaseDue = l.Amount
	if l.OutstandingBalance.Valid {
		s.BaseDue = l.OutstandingBalance.Decimal
	}

	s.TotalDue = s.BaseDue
	if s.Validity.DaysOverdue > 0 {
		s.TotalDue = s.TotalDue.Add(s.LateFee)
	}

	return s
}
