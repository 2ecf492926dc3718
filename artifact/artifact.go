// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact stores versioned classifier models.
package artifact

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/jcodagnone/fieldex/classifier"
)

// ErrNotFound is returned when no model matches.
var ErrNotFound = errors.New("model not found")

// extension of a stored model: gzip compressed JSON.
const extension = ".json.gz"

var reVersion = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// Info describes a stored model.
type Info struct {
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
	Samples   int       `json:"samples"`
	Size      int64     `json:"size"`
}

// Store persists models by version.
type Store interface {
	// Save stores m under m.Version, replacing any previous artifact.
	Save(ctx context.Context, m *classifier.Model) error
	// Load returns the model stored under version.
	Load(ctx context.Context, version string) (*classifier.Model, error)
	// Latest returns the most recently trained model.
	Latest(ctx context.Context) (*classifier.Model, error)
	// List returns the stored models, most recent first.
	List(ctx context.Context) ([]Info, error)
}

// Loader adapts a store to the engine. An empty version loads the latest
// model.
func Loader(s Store, version string) classifier.Loader {
	return func(ctx context.Context) (*classifier.Model, error) {
		if version == "" {
			return s.Latest(ctx)
		}

		return s.Load(ctx, version)
	}
}

// ValidateVersion checks that a version can be used as an artifact name.
func ValidateVersion(version string) error {
	if !reVersion.MatchString(version) {
		return fmt.Errorf("invalid model version %q", version)
	}

	return nil
}

// sortInfos orders by training time, newest first, then by version.
func sortInfos(infos []Info) {
	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Or(b.TrainedAt.Compare(a.TrainedAt), cmp.Compare(b.Version, a.Version))
	})
}
