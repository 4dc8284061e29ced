// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ledger owns license records and their financial state.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/internal/models"
)

var ErrPaymentDeclined = errors.New("payment declined")

// Repository is the persistence the ledger needs. *models.LicenseStore
// satisfies it.
type Repository interface {
	Create(ctx context.Context, l *models.License) (*models.License, error)
	GetByID(ctx context.Context, id int64) (*models.License, error)
	GetByDomain(ctx context.Context, domain string) (*models.License, error)
	GetByKey(ctx context.Context, key string) (*models.License, error)
	Update(ctx context.Context, l *models.License) (*models.License, error)
	List(ctx context.Context, filter models.LicenseFilter) ([]*models.License, error)
	ListPastDue(ctx context.Context, now time.Time, limit int) ([]*models.License, error)
}

type Service struct {
	repo     Repository
	payments PaymentProcessor
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPaymentProcessor(p PaymentProcessor) Option {
	return func(s *Service) { s.payments = p }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		payments: SimulatedPaymentProcessor{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOptions struct {
	// Prorate derives ProratedDays from StartDate up to NextPaymentDue.
	Prorate bool
}

func (s *Service) Create(ctx context.Context, l *models.License, opts CreateOptions) (*models.License, error) {
	if err := validateLicense(l); err != nil {
		return nil, err
	}

	now := s.now()
	if l.StartDate.IsZero() {
		l.StartDate = now
	}
	if l.NextPaymentDue == nil {
		next := nextCycle(l.StartDate, l.Frequency)
		l.NextPaymentDue = &next
	}
	if strings.TrimSpace(l.LicenseKey) == "" {
		l.LicenseKey = generateLicenseKey()
	}
	l.Status = models.LicenseStatusPending
	l.Currency = strings.ToUpper(strings.TrimSpace(l.Currency))

	if opts.Prorate {
		ProrateFromStart(l, *l.NextPaymentDue)
	} else if l.ProratedDays != nil && l.BillingCycleDays == nil {
		cycle := l.Frequency.CycleDays()
		l.BillingCycleDays = &cycle
	}

	created, err := s.repo.Create(ctx, l)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("licenseID", created.ID).
		Str("licenseKey", domain.MaskSecret(created.LicenseKey)).
		Str("company", created.CompanyName).
		Msg("License created")

	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.License, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByDomain(ctx context.Context, host string) (*models.License, error) {
	return s.repo.GetByDomain(ctx, host)
}

func (s *Service) GetByKey(ctx context.Context, key string) (*models.License, error) {
	return s.repo.GetByKey(ctx, key)
}

func (s *Service) Find(ctx context.Context, filter models.LicenseFilter) ([]*models.License, error) {
	return s.repo.List(ctx, filter)
}

// Update replaces the stored license. Cancelled licenses cannot be revived.
func (s *Service) Update(ctx context.Context, l *models.License) (*models.License, error) {
	current, err := s.repo.GetByID(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if err := validateLicense(l); err != nil {
		return nil, err
	}
	if l.Status == "" {
		l.Status = current.Status
	}
	if !l.Status.Valid() {
		return nil, models.NewValidationError("status", "unknown status")
	}
	if current.Status == models.LicenseStatusCancelled && l.Status != models.LicenseStatusCancelled {
		return nil, models.ErrInvalidTransition
	}
	if l.StartDate.IsZero() {
		l.StartDate = current.StartDate
	}
	if strings.TrimSpace(l.LicenseKey) == "" {
		l.LicenseKey = current.LicenseKey
	}

	return s.repo.Update(ctx, l)
}

// Validity evaluates the license at the service clock.
func (s *Service) Validity(l *models.License) Validity {
	return CheckValidity(l, s.now())
}

func (s *Service) Summary(l *models.License) Summary {
	return Summarize(l, s.now())
}

type VerifyResult struct {
	Valid    bool            `json:"valid"`
	License  *models.License `json:"license"`
	Validity Validity        `json:"validity"`
}

// Verify looks a license up by domain or key and reports whether it is
// currently usable.
func (s *Service) Verify(ctx context.Context, host, key string) (*VerifyResult, error) {
	var (
		l   *models.License
		err error
	)
	switch {
	case strings.TrimSpace(host) != "":
		l, err = s.repo.GetByDomain(ctx, host)
	case strings.TrimSpace(key) != "":
		l, err = s.repo.GetByKey(ctx, key)
	default:
		return nil, models.NewValidationError("domain", "domain or licenseKey is required")
	}
	if err != nil {
		return nil, err
	}

	v := s.Validity(l)
	return &VerifyResult{Valid: v.Valid, License: l, Validity: v}, nil
}

type RenewResult struct {
	License *models.License `json:"license"`
	Payment PaymentOutcome  `json:"payment"`
}

// Renew charges the amount due through the payment processor and marks the
// license paid.
func (s *Service) Renew(ctx context.Context, id int64) (*RenewResult, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status == models.LicenseStatusCancelled {
		return nil, models.ErrInvalidTransition
	}

	amount := Summarize(l, s.now()).TotalDue
	outcome, err := s.payments.Charge(ctx, l, amount)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to charge license %d", id)
	}
	if !outcome.Approved {
		return &RenewResult{License: l, Payment: outcome}, ErrPaymentDeclined
	}

	paidAt := s.now().UTC()
	l.Status = models.LicenseStatusPaid
	l.PaidAt = &paidAt

	updated, err := s.repo.Update(ctx, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to mark license paid")
	}

	log.Info().
		Int64("licenseID", id).
		Str("reference", outcome.Reference).
		Str("amount", outcome.Amount).
		Msg("License renewed")

	return &RenewResult{License: updated, Payment: outcome}, nil
}

// Cancel moves the license to the terminal cancelled state.
func (s *Service) Cancel(ctx context.Context, id int64) (*models.License, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status == models.LicenseStatusCancelled {
		return l, nil
	}

	l.Status = models.LicenseStatusCancelled
	l.AutoRenew = false
	return s.repo.Update(ctx, l)
}

// MarkOverdue flags licenses whose grace period has ended. Paid and
// cancelled licenses are left alone. It returns how many were changed.
func (s *Service) MarkOverdue(ctx context.Context, licenses []*models.License) (int, error) {
	now := s.now()
	marked := 0
	for _, l := range licenses {
		if l.Status != models.LicenseStatusPending {
			continue
		}
		if CheckValidity(l, now).State != StateExpired {
			continue
		}
		l.Status = models.LicenseStatusOverdue
		if _, err := s.repo.Update(ctx, l); err != nil {
			return marked, errors.Wrapf(err, "failed to mark license %d overdue", l.ID)
		}
		marked++
	}
	return marked, nil
}

func validateLicense(l *models.License) error {
	if l == nil {
		return models.NewValidationError("license", "body is required")
	}
	if strings.TrimSpace(l.CompanyName) == "" {
		return models.NewValidationError("companyName", "is required")
	}
	if !l.Amount.IsPositive() {
		return models.NewValidationError("amount", "is required and must be greater than zero")
	}
	if l.Frequency == "" {
		return models.NewValidationError("frequency", "is required")
	}
	if !l.Frequency.Valid() {
		return models.NewValidationError("frequency", fmt.Sprintf("unknown frequency %q", l.Frequency))
	}
	if l.GracePeriodDays < 0 {
		return models.NewValidationError("gracePeriodDays", "must not be negative")
	}
	if l.LateFeePercentage.Valid && (l.LateFeePercentage.Decimal.IsNegative() || l.LateFeePercentage.Decimal.GreaterThan(decimal.NewFromInt(100))) {
		return models.NewValidationError("lateFeePercentage", "must be between 0 and 100")
	}
	return nil
}

func nextCycle(start time.Time, f models.LicenseFrequency) time.Time {
	if f == models.FrequencyAnnual {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

func generateLicenseKey() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("LIC-%s-%s-%s", raw[0:4], raw[4:8], raw[8:12])
}
