// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/dbinterface"
)

var ErrLicenseNotFound = errors.New("license not found")

type LicenseFrequency string

const (
	FrequencyMonthly LicenseFrequency = "monthly"
	FrequencyAnnual  LicenseFrequency = "annual"
)

func (f LicenseFrequency) Valid() bool {
	return f == FrequencyMonthly || f == FrequencyAnnual
}

// CycleDays is the default billing cycle length for the frequency.
func (f LicenseFrequency) CycleDays() int {
	if f == FrequencyAnnual {
		return 365
	}
	return 30
}

type LicenseStatus string

const (
	LicenseStatusPending   LicenseStatus = "pending"
	LicenseStatusPaid      LicenseStatus = "paid"
	LicenseStatusOverdue   LicenseStatus = "overdue"
	LicenseStatusCancelled LicenseStatus = "cancelled"
)

func (s LicenseStatus) Valid() bool {
	switch s {
	case LicenseStatusPending, LicenseStatusPaid, LicenseStatusOverdue, LicenseStatusCancelled:
		return true
	}
	return false
}

// License is a billable software license.
type License struct {
	ID                 int64               `json:"id"`
	LicenseKey         string              `json:"licenseKey"`
	RucOrDni           string              `json:"rucOrDni"`
	CompanyName        string              `json:"companyName"`
	ServiceName        string              `json:"serviceName"`
	Domain             string              `json:"domain,omitempty"`
	Email              string              `json:"email,omitempty"`
	PhoneNumber        string              `json:"phoneNumber,omitempty"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           string              `json:"currency"`
	Frequency          LicenseFrequency    `json:"frequency"`
	OutstandingBalance decimal.NullDecimal `json:"outstandingBalance"`
	ProratedAmountDue  decimal.NullDecimal `json:"proratedAmountDue"`
	ProratedDays       *int                `json:"proratedDays,omitempty"`
	BillingCycleDays   *int                `json:"billingCycleDays,omitempty"`
	LateFeePercentage  decimal.NullDecimal `json:"lateFeePercentage"`
	LateFeeAmount      decimal.NullDecimal `json:"lateFeeAmount"`
	StartDate          time.Time           `json:"startDate"`
	EndDate            *time.Time          `json:"endDate,omitempty"`
	NextPaymentDue     *time.Time          `json:"nextPaymentDue,omitempty"`
	GracePeriodDays    int                 `json:"gracePeriodDays"`
	PaidAt             *time.Time          `json:"paidAt,omitempty"`
	Status             LicenseStatus       `json:"status"`
	AutoRenew          bool                `json:"autoRenew"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// LicenseFilter narrows List results. Zero values are ignored.
type LicenseFilter struct {
	Status   LicenseStatus
	RucOrDni string
	Domain   string
	Limit    int
	Offset   int
}

type LicenseStore struct {
	db dbinterface.Querier
}

func NewLicenseStore(db dbinterface.Querier) *LicenseStore {
	return &LicenseStore{db: db}
}

const licenseColumns = `id, license_key, ruc_or_dni, company_name, service_name, domain, email, phone_number,
	amount, currency, frequency, outstanding_balance, prorated_amount_due, prorated_days, billing_cycle_days,
	late_fee_percentage, late_fee_amount, start_date, end_date, next_payment_due, grace_period_days, paid_at,
	status, auto_renew, created_at, updated_at`

func (s *LicenseStore) Create(ctx context.Context, l *License) (*License, error) {
	if l == nil {
		return nil, errors.New("license is nil")
	}

	now := dbTime(time.Now())
	if l.Status == "" {
		l.Status = LicenseStatusPending
	}
	if l.Currency == "" {
		l.Currency = "USD"
	}

	query := `
		INSERT INTO licenses (
			license_key, ruc_or_dni, company_name, service_name, domain, email, phone_number,
			amount, currency, frequency, outstanding_balance, prorated_amount_due, prorated_days, billing_cycle_days,
			late_fee_percentage, late_fee_amount, start_date, end_date, next_payment_due, grace_period_days, paid_at,
			status, auto_renew, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		l.LicenseKey,
		l.RucOrDni,
		l.CompanyName,
		l.ServiceName,
		nullString(strings.ToLower(l.Domain)),
		l.Email,
		l.PhoneNumber,
		l.Amount,
		l.Currency,
		string(l.Frequency),
		l.OutstandingBalance,
		l.ProratedAmountDue,
		nullInt(l.ProratedDays),
		nullInt(l.BillingCycleDays),
		l.LateFeePercentage,
		l.LateFeeAmount,
		dbTime(l.StartDate),
		nullTime(l.EndDate),
		nullTime(l.NextPaymentDue),
		l.GracePeriodDays,
		nullTime(l.PaidAt),
		string(l.Status),
		boolToInt(l.AutoRenew),
		now,
		now,
	).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrLicenseConflict
		}
		if isCheckConstraintError(err) {
			return nil, NewValidationError("status", "frequency or status is not an allowed value")
		}
		return nil, fmt.Errorf("failed to create license: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *LicenseStore) GetByID(ctx context.Context, id int64) (*License, error) {
	return s.getOne(ctx, "id = ?", id)
}

func (s *LicenseStore) GetByDomain(ctx context.Context, domain string) (*License, error) {
	return s.getOne(ctx, "domain = ?", strings.ToLower(strings.TrimSpace(domain)))
}

func (s *LicenseStore) GetByKey(ctx context.Context, key string) (*License, error) {
	return s.getOne(ctx, "license_key = ?", strings.TrimSpace(key))
}

func (s *LicenseStore) getOne(ctx context.Context, where string, arg any) (*License, error) {
	query := "SELECT " + licenseColumns + " FROM licenses WHERE " + where

	l, err := scanLicense(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return l, nil
}

// Update overwrites every mutable column of the license identified by l.ID.
func (s *LicenseStore) Update(ctx context.Context, l *License) (*License, error) {
	query := `
		UPDATE licenses SET
			license_key = ?, ruc_or_dni = ?, company_name = ?, service_name = ?, domain = ?, email = ?, phone_number = ?,
			amount = ?, currency = ?, frequency = ?, outstanding_balance = ?, prorated_amount_due = ?,
			prorated_days = ?, billing_cycle_days = ?, late_fee_percentage = ?, late_fee_amount = ?,
			start_date = ?, end_date = ?, next_payment_due = ?, grace_period_days = ?, paid_at = ?,
			status = ?, auto_renew = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		l.LicenseKey,
		l.RucOrDni,
		l.CompanyName,
		l.ServiceName,
		nullString(strings.ToLower(l.Domain)),
		l.Email,
		l.PhoneNumber,
		l.Amount,
		l.Currency,
		string(l.Frequency),
		l.OutstandingBalance,
		l.ProratedAmountDue,
		nullInt(l.ProratedDays),
		nullInt(l.BillingCycleDays),
		l.LateFeePercentage,
		l.LateFeeAmount,
		dbTime(l.StartDate),
		nullTime(l.EndDate),
		nullTime(l.NextPaymentDue),
		l.GracePeriodDays,
		nullTime(l.PaidAt),
		string(l.Status),
		boolToInt(l.AutoRenew),
		dbTime(time.Now()),
		l.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrLicenseConflict
		}
		if isCheckConstraintError(err) {
			return nil, NewValidationError("status", "frequency or status is not an allowed value")
		}
		return nil, fmt.Errorf("failed to update license: %w", err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrLicenseNotFound
	}

	return s.GetByID(ctx, l.ID)
}

func (s *LicenseStore) List(ctx context.Context, filter LicenseFilter) ([]*License, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RucOrDni != "" {
		where = append(where, "ruc_or_dni = ?")
		args = append(args, strings.TrimSpace(filter.RucOrDni))
	}
	if filter.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(filter.Domain)))
	}

	query := "SELECT " + licenseColumns + " FROM licenses"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	return s.queryLicenses(ctx, query, args...)
}

// ListPastDue returns non-cancelled licenses whose end date or next payment
// date lies before now, oldest anchor first.
func (s *LicenseStore) ListPastDue(ctx context.Context, now time.Time, limit int) ([]*License, error) {
	query := "SELECT " + licenseColumns + ` FROM licenses
		WHERE status != ?
		  AND ((end_date IS NOT NULL AND end_date < ?) OR (next_payment_due IS NOT NULL AND next_payment_due < ?))
		ORDER BY COALESCE(end_date, next_payment_due) ASC, id ASC
		LIMIT ?`

	cutoff := dbTime(now)
	return s.queryLicenses(ctx, query, string(LicenseStatusCancelled), cutoff, cutoff, limit)
}

func (s *LicenseStore) queryLicenses(ctx context.Context, query string, args ...any) ([]*License, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*License, 0)
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}

	return licenses, nil
}

func scanLicense(scanner interface{ Scan(dest ...any) error }) (*License, error) {
	var (
		l                License
		domain           sql.NullString
		frequency        string
		status           string
		proratedDays     sql.NullInt64
		billingCycleDays sql.NullInt64
		endDate          sql.NullTime
		nextPaymentDue   sql.NullTime
		paidAt           sql.NullTime
		autoRenew        int
	)

	if err := scanner.Scan(
		&l.ID,
		&l.LicenseKey,
		&l.RucOrDni,
		&l.CompanyName,
		&l.ServiceName,
		&domain,
		&l.Email,
		&l.PhoneNumber,
		&l.Amount,
		&l.Currency,
		&frequency,
		&l.OutstandingBalance,
		&l.ProratedAmountDue,
		&proratedDays,
		&billingCycleDays,
		&l.LateFeePercentage,
		&l.LateFeeAmount,
		&l.StartDate,
		&endDate,
		&nextPaymentDue,
		&l.GracePeriodDays,
		&paidAt,
		&status,
		&autoRenew,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return nil, err
	}

	l.Domain = domain.String
	l.Frequency = LicenseFrequency(frequency)
	l.Status = LicenseStatus(status)
	l.ProratedDays = intPtr(proratedDays)
	l.BillingCycleDays = intPtr(billingCycleDays)
	l.EndDate = timePtr(endDate)
	l.NextPaymentDue = timePtr(nextPaymentDue)
	l.PaidAt = timePtr(paidAt)
	l.AutoRenew = autoRenew == 1

	return &l, nil
}
