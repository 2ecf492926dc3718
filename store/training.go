// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/training"
)

func (r *sqlRepository) SaveSamples(set *training.Set) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction for set %s: %w", set.Name, err)
	}

	defer rollback(tx, set.Name)

	if _, err := tx.Exec("DELETE FROM samples WHERE set_name = ?", set.Name); err != nil {
		return fmt.Errorf("deleting samples of %s: %w", set.Name, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO samples (
			set_name, seq, document_id, text, label, page, line_index, position,
			bbox, page_width, page_height, overrides
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, s := range set.Samples {
		var overrides any

		if len(s.Overrides) > 0 {
			if overrides, err = marshal(s.Overrides); err != nil {
				return fmt.Errorf("encoding overrides of sample %d: %w", i, err)
			}
		}

		if _, err := stmt.Exec(
			set.Name, i, nve(s.DocumentID), s.Text, s.Label.String(), s.Page, s.LineIndex, s.Position,
			s.Box, s.PageWidth, s.PageHeight, overrides,
		); err != nil {
			return fmt.Errorf("inserting sample %d of %s: %w", i, set.Name, err)
		}
	}

	return tx.Commit()
}

func (r *sqlRepository) LoadSamples(name string) (*training.Set, error) {
	rows, err := r.db.Query(`
		SELECT coalesce(document_id, ''), text, label, page, line_index, position,
		       bbox, page_width, page_height, overrides
		FROM samples
		WHERE set_name = ?
		ORDER BY seq
	`, name)
	if err != nil {
		return nil, fmt.Errorf("querying samples of %s: %w", name, err)
	}
	defer rows.Close()

	set := &training.Set{Name: name}

	for rows.Next() {
		var (
			s         training.Sample
			label     string
			overrides sql.NullString
		)

		if err := rows.Scan(
			&s.DocumentID, &s.Text, &label, &s.Page, &s.LineIndex, &s.Position,
			&s.Box, &s.PageWidth, &s.PageHeight, &overrides,
		); err != nil {
			return nil, fmt.Errorf("scanning sample of %s: %w", name, err)
		}

		if s.Label, err = fields.Parse(label); err != nil {
			return nil, fmt.Errorf("sample of %s: %w", name, err)
		}

		if overrides.Valid {
			if err := json.Unmarshal([]byte(overrides.String), &s.Overrides); err != nil {
				return nil, fmt.Errorf("decoding overrides of %s: %w", name, err)
			}
		}

		set.Samples = append(set.Samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(set.Samples) == 0 {
		return nil, fmt.Errorf("sample set %s: %w", name, ErrNotFound)
	}

	return set, nil
}

func (r *sqlRepository) SampleSets() (map[string]int, error) {
	rows, err := r.db.Query("SELECT set_name, COUNT(*) FROM samples GROUP BY set_name")
	if err != nil {
		return nil, fmt.Errorf("querying sample sets: %w", err)
	}
	defer rows.Close()

	ret := make(map[string]int)

	for rows.Next() {
		var (
			name string
			n    int
		)

		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning sample set: %w", err)
		}

		ret[name] = n
	}

	return ret, rows.Err()
}

func (r *sqlRepository) SaveEvaluation(ev *training.Evaluation) error {
	metrics, err := marshal(ev.Metrics)
	if err != nil {
		return fmt.Errorf("encoding metrics of %s: %w", ev.ModelVersion, err)
	}

	mis, err := marshal(ev.Misclassifications)
	if err != nil {
		return fmt.Errorf("encoding misclassifications of %s: %w", ev.ModelVersion, err)
	}

	m := ev.Metrics

	_, err = r.db.Exec(`
		INSERT INTO evaluations (
			model_version, set_name, evaluated_at, samples,
			accuracy, micro_f1, macro_f1, weighted_f1, log_loss,
			metrics, misclassifications
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ModelVersion, nve(ev.SetName), ev.EvaluatedAt.UTC(), m.Samples,
		m.Accuracy, m.MicroF1, m.MacroF1, m.WeightedF1, m.LogLoss,
		metrics, mis,
	)
	if err != nil {
		return fmt.Errorf("inserting evaluation of %s: %w", ev.ModelVersion, err)
	}

	return nil
}

func (r *sqlRepository) ListEvaluations(modelVersion string) ([]*training.Evaluation, error) {
	query := `
		SELECT model_version, coalesce(set_name, ''), evaluated_at, metrics, misclassifications
		FROM evaluations
	`

	var args []any

	if modelVersion != "" {
		query += " WHERE model_version = ?"

		args = append(args, modelVersion)
	}

	query += " ORDER BY evaluated_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evaluations: %w", err)
	}
	defer rows.Close()

	var ret []*training.Evaluation

	for rows.Next() {
		var (
			ev      training.Evaluation
			metrics string
			mis     sql.NullString
		)

		if err := rows.Scan(&ev.ModelVersion, &ev.SetName, &ev.EvaluatedAt, &metrics, &mis); err != nil {
			return nil, fmt.Errorf("scanning evaluation: %w", err)
		}

		if err := json.Unmarshal([]byte(metrics), &ev.Metrics); err != nil {
			return nil, fmt.Errorf("decoding metrics of %s: %w", ev.ModelVersion, err)
		}

		if mis.Valid {
			if err := json.Unmarshal([]byte(mis.String), &ev.Misclassifications); err != nil {
				return nil, fmt.Errorf("decoding misclassifications of %s: %w", ev.ModelVersion, err)
			}
		}

		ret = append(ret, &ev)
	}

	return ret, rows.Err()
}
