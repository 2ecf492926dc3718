// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"errors"
	"fmt"
	"math"
)

// Options configures training and evaluation.
type Options struct {
	TrainPct      float64 `yaml:"train_pct" json:"train_pct"`
	ValidationPct float64 `yaml:"validation_pct" json:"validation_pct"`
	TestPct       float64 `yaml:"test_pct" json:"test_pct"`
	Folds         int     `yaml:"folds" json:"folds"`
	MinSamples    int     `yaml:"min_samples" json:"min_samples"`
	Epochs        int     `yaml:"epochs" json:"epochs"`
	LearningRate  float64 `yaml:"learning_rate" json:"learning_rate"`
	L2            float64 `yaml:"l2" json:"l2"`
	Seed          uint64  `yaml:"seed" json:"seed"`
	// ModelVersion names the trained model. A timestamp is used when empty.
	ModelVersion string `yaml:"-" json:"model_version"`
}

// DefaultOptions returns the default training options.
func DefaultOptions() Options {
	return Options{
		TrainPct:      0.8,
		ValidationPct: 0.1,
		TestPct:       0.1,
		Folds:         5,
		MinSamples:    20,
		Epochs:        400,
		LearningRate:  0.1,
		L2:            1e-4,
		Seed:          1,
	}
}

const pctTolerance = 1e-6

// Validate reports configuration errors before any work starts.
func (o Options) Validate() error {
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"train_pct", o.TrainPct},
		{"validation_pct", o.ValidationPct},
		{"test_pct", o.TestPct},
	} {
		if p.v < 0 || p.v > 1 || math.IsNaN(p.v) {
			return &ConfigError{Field: p.name, Message: fmt.Sprintf("%g is outside [0, 1]", p.v)}
		}
	}

	if o.TrainPct == 0 {
		return &ConfigError{Field: "train_pct", Message: "must be positive"}
	}

	if sum := o.TrainPct + o.ValidationPct + o.TestPct; math.Abs(sum-1) > pctTolerance {
		return &ConfigError{Field: "train_pct", Message: fmt.Sprintf("split percentages sum to %g, want 1", sum)}
	}

	if o.Folds <= 0 {
		return &ConfigError{Field: "folds", Message: fmt.Sprintf("%d is not positive", o.Folds)}
	}

	if o.MinSamples < 0 {
		return &ConfigError{Field: "min_samples", Message: "must not be negative"}
	}

	if o.Epochs <= 0 {
		return &ConfigError{Field: "epochs", Message: "must be positive"}
	}

	if !(o.LearningRate > 0) {
		return &ConfigError{Field: "learning_rate", Message: "must be positive"}
	}

	if o.L2 < 0 {
		return &ConfigError{Field: "l2", Message: "must not be negative"}
	}

	return nil
}

// ConfigError is a fatal configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid training option %s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var cErr *ConfigError

	return errors.As(err, &cErr)
}

// InsufficientDataError is returned when there are fewer samples than
// required. It is returned before any model work is attempted.
type InsufficientDataError struct {
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: %d samples, at least %d required", e.Actual, e.Required)
}

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var dErr *InsufficientDataError

	return errors.As(err, &dErr)
}

func (o Options) checkSize(n int) error {
	if n < o.MinSamples {
		return &InsufficientDataError{Required: o.MinSamples, Actual: n}
	}

	if n == 0 {
		return &InsufficientDataError{Required: 1, Actual: 0}
	}

	return nil
}
