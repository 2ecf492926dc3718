// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jcodagnone/fieldex/fields"
)

// ConfusionMatrix counts predictions by actual and predicted label.
// The sum of all cells equals Total and the diagonal equals Correct.
type ConfusionMatrix struct {
	cells   [fields.Count][fields.Count]int
	known   [fields.Count]bool
	total   int
	correct int
}

// NewConfusionMatrix returns an empty matrix that already knows classes, so
// classes without samples still show up in the metrics.
func NewConfusionMatrix(classes ...fields.Label) *ConfusionMatrix {
	cm := &ConfusionMatrix{}
	for _, c := range classes {
		if c.Valid() {
			cm.known[c] = true
		}
	}

	return cm
}

// Add records one prediction. Invalid labels are ignored.
func (cm *ConfusionMatrix) Add(actual, predicted fields.Label) {
	if !actual.Valid() || !predicted.Valid() {
		return
	}

	cm.cells[actual][predicted]++
	cm.known[actual] = true
	cm.known[predicted] = true
	cm.total++

	if actual == predicted {
		cm.correct++
	}
}

// Merge adds the counts of o.
func (cm *ConfusionMatrix) Merge(o *ConfusionMatrix) *ConfusionMatrix {
	for a := range o.cells {
		for p, n := range o.cells[a] {
			cm.cells[a][p] += n
		}

		cm.known[a] = cm.known[a] || o.known[a]
	}

	cm.total += o.total
	cm.correct += o.correct

	return cm
}

// Count returns matrix[actual][predicted].
func (cm *ConfusionMatrix) Count(actual, predicted fields.Label) int {
	if !actual.Valid() || !predicted.Valid() {
		return 0
	}

	return cm.cells[actual][predicted]
}

func (cm *ConfusionMatrix) Total() int     { return cm.total }
func (cm *ConfusionMatrix) Correct() int   { return cm.correct }
func (cm *ConfusionMatrix) Incorrect() int { return cm.total - cm.correct }

// Classes returns the known classes, ascending.
func (cm *ConfusionMatrix) Classes() []fields.Label {
	var ret []fields.Label

	for l, ok := range cm.known {
		if ok {
			ret = append(ret, fields.Label(l))
		}
	}

	return ret
}

// CellSum adds up every cell.
func (cm *ConfusionMatrix) CellSum() int {
	var ret int

	for a := range cm.cells {
		for _, n := range cm.cells[a] {
			ret += n
		}
	}

	return ret
}

// DiagonalSum adds up the cells where actual equals predicted.
func (cm *ConfusionMatrix) DiagonalSum() int {
	var ret int
	for l := range cm.cells {
		ret += cm.cells[l][l]
	}

	return ret
}

// Support is the number of samples whose actual label is l.
func (cm *ConfusionMatrix) Support(l fields.Label) int {
	var ret int
	for _, n := range cm.cells[l] {
		ret += n
	}

	return ret
}

// Predicted is the number of samples predicted as l.
func (cm *ConfusionMatrix) Predicted(l fields.Label) int {
	var ret int
	for a := range cm.cells {
		ret += cm.cells[a][l]
	}

	return ret
}

// Rows returns the non-zero cells as actual -> predicted -> count.
func (cm *ConfusionMatrix) Rows() map[fields.Label]map[fields.Label]int {
	ret := make(map[fields.Label]map[fields.Label]int)

	for _, a := range cm.Classes() {
		row := make(map[fields.Label]int)

		for _, p := range cm.Classes() {
			if n := cm.cells[a][p]; n > 0 {
				row[p] = n
			}
		}

		ret[a] = row
	}

	return ret
}

type confusionJSON struct {
	Classes   []fields.Label                        `json:"classes"`
	Matrix    map[fields.Label]map[fields.Label]int `json:"matrix"`
	Total     int                                   `json:"total"`
	Correct   int                                   `json:"correct"`
	Incorrect int                                   `json:"incorrect"`
}

// MarshalJSON encodes the matrix with label names as keys.
func (cm *ConfusionMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(confusionJSON{
		Classes:   cm.Classes(),
		Matrix:    cm.Rows(),
		Total:     cm.total,
		Correct:   cm.correct,
		Incorrect: cm.Incorrect(),
	})
}

// UnmarshalJSON decodes the MarshalJSON format.
func (cm *ConfusionMatrix) UnmarshalJSON(b []byte) error {
	var in confusionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*cm = *NewConfusionMatrix(in.Classes...)

	for a, row := range in.Matrix {
		for p, n := range row {
			for range n {
				cm.Add(a, p)
			}
		}
	}

	if cm.total != in.Total || cm.correct != in.Correct {
		return fmt.Errorf("confusion matrix totals %d/%d do not match cells %d/%d",
			in.Total, in.Correct, cm.total, cm.correct)
	}

	return nil
}

// String renders the matrix as a table, actual labels as rows.
func (cm *ConfusionMatrix) String() string {
	classes := cm.Classes()

	var sb strings.Builder

	fmt.Fprintf(&sb, "%-20s", "actual \\ predicted")

	for _, p := range classes {
		fmt.Fprintf(&sb, " %8.8s", p)
	}

	sb.WriteByte('\n')

	for _, a := range classes {
		fmt.Fprintf(&sb, "%-20s", a)

		for _, p := range classes {
			fmt.Fprintf(&sb, " %8d", cm.cells[a][p])
		}

		sb.WriteByte('\n')
	}

	return sb.String()
}
