// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package features

import (
	"errors"
	"fmt"
)

var (
	errThresholds = errors.New("header threshold must be lower than footer threshold, both within [0, 1]")
	errTolerance  = errors.New("alignment tolerance must not be negative")
	errIsolation  = errors.New("isolation factor must be positive")
)

// Config holds the layout parameters of the extractor.
type Config struct {
	// Blocks whose relative top is below HeaderThreshold are in the header.
	HeaderThreshold float64 `yaml:"header_threshold" json:"header_threshold"`
	// Blocks whose relative top is above FooterThreshold are in the footer.
	FooterThreshold float64 `yaml:"footer_threshold" json:"footer_threshold"`
	// AlignmentTolerance is in page units.
	AlignmentTolerance float64 `yaml:"alignment_tolerance" json:"alignment_tolerance"`
	// IsolationFactor multiplies the median line height of the page.
	IsolationFactor float64 `yaml:"isolation_factor" json:"isolation_factor"`
}

// DefaultConfig returns the default layout parameters.
func DefaultConfig() Config {
	return Config{
		HeaderThreshold:    0.15,
		FooterThreshold:    0.85,
		AlignmentTolerance: 2,
		IsolationFactor:    2,
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.HeaderThreshold < 0 || c.FooterThreshold > 1 || c.HeaderThreshold >= c.FooterThreshold {
		return fmt.Errorf("%w: header=%g footer=%g", errThresholds, c.HeaderThreshold, c.FooterThreshold)
	}

	if c.AlignmentTolerance < 0 {
		return fmt.Errorf("%w: %g", errTolerance, c.AlignmentTolerance)
	}

	if c.IsolationFactor <= 0 {
		return fmt.Errorf("%w: %g", errIsolation, c.IsolationFactor)
	}

	return nil
}
