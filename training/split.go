// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/jcodagnone/fieldex/fields"
)

// minStratified is the smallest class that is spread over all partitions.
const minStratified = 3

// Partition holds sample indices, each list ascending.
type Partition struct {
	Train      []int `json:"train"`
	Validation []int `json:"validation"`
	Test       []int `json:"test"`
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// byLabel returns the indices of every label, shuffled deterministically.
func byLabel(labels []fields.Label, seed uint64) [fields.Count][]int {
	var ret [fields.Count][]int

	for i, l := range labels {
		if l.Valid() {
			ret[l] = append(ret[l], i)
		}
	}

	r := newRand(seed)
	for _, idx := range ret {
		r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}

	return ret
}

// Split partitions sample indices by label so every partition keeps the label
// proportions. Classes too small to be spread go to the training partition
// and are reported as warnings.
func Split(labels []fields.Label, opts Options) (Partition, []string) {
	var (
		p        Partition
		warnings []string
	)

	for l, idx := range byLabel(labels, opts.Seed) {
		n := len(idx)
		if n == 0 {
			continue
		}

		if n < minStratified {
			p.Train = append(p.Train, idx...)
			warnings = append(warnings, fmt.Sprintf("label %s has %d samples, all used for training", fields.Label(l), n))

			continue
		}

		nVal := share(n, opts.ValidationPct)
		nTest := share(n, opts.TestPct)

		for nVal+nTest >= n {
			if nTest >= nVal && nTest > 0 {
				nTest--
			} else {
				nVal--
			}
		}

		p.Validation = append(p.Validation, idx[:nVal]...)
		p.Test = append(p.Test, idx[nVal:nVal+nTest]...)
		p.Train = append(p.Train, idx[nVal+nTest:]...)
	}

	slices.Sort(p.Train)
	slices.Sort(p.Validation)
	slices.Sort(p.Test)

	return p, warnings
}

// share is the rounded share of n, at least one when pct is positive.
func share(n int, pct float64) int {
	if pct <= 0 {
		return 0
	}

	return max(1, int(math.Round(float64(n)*pct)))
}

// Folds deals the indices of every label round robin into k disjoint folds.
// Each fold list is ascending.
func Folds(labels []fields.Label, k int, seed uint64) [][]int {
	folds := make([][]int, k)

	next := 0

	for _, idx := range byLabel(labels, seed) {
		for _, i := range idx {
			folds[next] = append(folds[next], i)
			next = (next + 1) % k
		}
	}

	for _, f := range folds {
		slices.Sort(f)
	}

	return folds
}

func pick[T any](items []T, idx []int) []T {
	ret := make([]T, len(idx))
	for j, i := range idx {
		ret[j] = items[i]
	}

	return ret
}
