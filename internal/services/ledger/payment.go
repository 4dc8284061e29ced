// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/models"
)

type PaymentOutcome struct {
	Approved  bool      `json:"approved"`
	Reference string    `json:"reference"`
	Amount    string    `json:"amount"`
	ChargedAt time.Time `json:"chargedAt"`
	Reason    string    `json:"reason,omitempty"`
}

// PaymentProcessor settles a renewal charge.
type PaymentProcessor interface {
	Charge(ctx context.Context, l *models.License, amount decimal.Decimal) (PaymentOutcome, error)
}

// SimulatedPaymentProcessor approves every charge without moving funds.
type SimulatedPaymentProcessor struct{}

func (SimulatedPaymentProcessor) Charge(_ context.Context, _ *models.License, amount decimal.Decimal) (PaymentOutcome, error) {
	return PaymentOutcome{
		Approved:  true,
		Reference: "sim-" + uuid.NewString(),
		Amount:    amount.StringFixed(2),
		ChargedAt: time.Now().UTC(),
	}, nil
}
