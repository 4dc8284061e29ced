// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package money renders monetary amounts for reminder messages.
package money

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Placeholder is rendered for missing or unparseable amounts.
const Placeholder = "—"

var printer = message.NewPrinter(language.English)

// Format renders value as "<ISO code> <amount>" using the currency's standard
// scale. Unknown currency codes fall back to USD. It never fails; nil, NaN
// and garbage input yield Placeholder.
func Format(value any, code string) string {
	amount, ok := ToDecimal(value)
	if !ok {
		return Placeholder
	}

	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		unit = currency.USD
	}

	scale, _ := currency.Standard.Rounding(unit)
	rounded := amount.Round(int32(scale))
	f, _ := rounded.Float64()

	return unit.String() + " " + printer.Sprint(number.Decimal(f, number.Scale(scale)))
}

// ToDecimal converts the loosely typed amounts found in payloads.
func ToDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Decimal{}, false
		}
		return *v, true
	case decimal.NullDecimal:
		return v.Decimal, v.Valid
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return ToDecimal(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}
