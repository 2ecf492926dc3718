// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the thresholds of the decision policy.
type Config struct {
	HighConfidence      float64           `yaml:"high_confidence"       json:"high_confidence"`
	MediumConfidence    float64           `yaml:"medium_confidence"     json:"medium_confidence"`
	LowConfidence       float64           `yaml:"low_confidence"        json:"low_confidence"`
	DuplicateWindowDays int               `yaml:"duplicate_window_days" json:"duplicate_window_days"`
	MinAmount           decimal.Decimal   `yaml:"min_amount"            json:"min_amount"`
	MaxAmount           decimal.Decimal   `yaml:"max_amount"            json:"max_amount"`
	MinVatRate          decimal.Decimal   `yaml:"min_vat_rate"          json:"min_vat_rate"`
	MaxVatRate          decimal.Decimal   `yaml:"max_vat_rate"          json:"max_vat_rate"`
	StandardRates       []decimal.Decimal `yaml:"standard_rates"        json:"standard_rates"`
	RateTolerance       decimal.Decimal   `yaml:"rate_tolerance"        json:"rate_tolerance"`
	VatTolerance        decimal.Decimal   `yaml:"vat_tolerance"         json:"vat_tolerance"`
}

// DefaultConfig returns the German invoice defaults.
func DefaultConfig() Config {
	return Config{
		HighConfidence:      0.8,
		MediumConfidence:    0.5,
		LowConfidence:       0.3,
		DuplicateWindowDays: 7,
		MinAmount:           decimal.RequireFromString("0.01"),
		MaxAmount:           decimal.NewFromInt(1_000_000),
		MinVatRate:          decimal.Zero,
		MaxVatRate:          decimal.NewFromInt(50),
		StandardRates: []decimal.Decimal{
			decimal.Zero,
			decimal.NewFromInt(7),
			decimal.NewFromInt(19),
			decimal.NewFromInt(21),
		},
		RateTolerance: decimal.RequireFromString("0.1"),
		VatTolerance:  decimal.RequireFromString("0.02"),
	}
}

// DuplicateWindow is the largest date distance between duplicates.
func (c Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowDays) * 24 * time.Hour
}

// Validate checks the thresholds are ordered and the bounds make sense.
func (c Config) Validate() error {
	if c.LowConfidence < 0 || c.HighConfidence > 1 ||
		c.LowConfidence >= c.MediumConfidence || c.MediumConfidence >= c.HighConfidence {
		return fmt.Errorf("confidence thresholds must satisfy 0 <= low < medium < high <= 1 (got %g, %g, %g)",
			c.LowConfidence, c.MediumConfidence, c.HighConfidence)
	}

	if c.DuplicateWindowDays < 0 {
		return errors.New("duplicate window must not be negative")
	}

	if !c.MinAmount.LessThan(c.MaxAmount) {
		return fmt.Errorf("min amount %s must be lower than max amount %s", c.MinAmount, c.MaxAmount)
	}

	if c.MinVatRate.GreaterThan(c.MaxVatRate) {
		return fmt.Errorf("vat rate bounds [%s, %s] are empty", c.MinVatRate, c.MaxVatRate)
	}

	if c.RateTolerance.IsNegative() || c.VatTolerance.IsNegative() {
		return errors.New("tolerances must not be negative")
	}

	return nil
}
