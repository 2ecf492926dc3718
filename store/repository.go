// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists processed documents, candidate invoices, labeled
// samples and evaluation snapshots in DuckDB.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jcodagnone/fieldex/document"
	"github.com/jcodagnone/fieldex/fields"
	"github.com/jcodagnone/fieldex/invoice"
	"github.com/jcodagnone/fieldex/pipeline"
	"github.com/jcodagnone/fieldex/policy"
	"github.com/jcodagnone/fieldex/training"
	"github.com/jcodagnone/fieldex/utils/textutils"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for database operations.
type Repository interface {
	// CreateSchema creates the database schema.
	CreateSchema() error

	//////// Processing
	// SaveDocumentResult replaces the blocks, invoice and decision of a document.
	SaveDocumentResult(res *pipeline.Result) error
	// ListInvoices returns the invoices matching f, ordered by date and number.
	ListInvoices(f Filter) ([]*invoice.Invoice, error)
	// DuplicateCandidates returns the stored invoices a new invoice can
	// duplicate: not rejected, with a number, a date and a gross total, and
	// not belonging to excludeDocumentID.
	DuplicateCandidates(excludeDocumentID string) ([]*invoice.Invoice, error)
	// GetDecision returns the stored decision of a document.
	GetDecision(documentID string) (*policy.Result, error)
	// ListBlocks returns the stored blocks of a document in reading order.
	ListBlocks(documentID string) ([]document.LabeledBlock, error)
	// SetActualLabel records the reviewed label of a stored block.
	SetActualLabel(documentID string, page, lineIndex, position int, l fields.Label) error
	// ReviewedSamples returns every block with a reviewed label as a sample set.
	ReviewedSamples(name string) (*training.Set, error)

	//////// Training
	// SaveSamples replaces the samples of a named set.
	SaveSamples(set *training.Set) error
	// LoadSamples returns a named set in its original order.
	LoadSamples(name string) (*training.Set, error)
	// SampleSets returns the stored set names with their sizes.
	SampleSets() (map[string]int, error)
	// SaveEvaluation stores an evaluation snapshot.
	SaveEvaluation(ev *training.Evaluation) error
	// ListEvaluations returns the snapshots of a model version, newest
	// first. An empty version returns every snapshot.
	ListEvaluations(modelVersion string) ([]*training.Evaluation, error)
}

type sqlRepository struct {
	db *sql.DB
}

// NewSQLRepository returns a repository over a DuckDB connection.
func NewSQLRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id VARCHAR PRIMARY KEY,
			model_version VARCHAR NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			blocks INTEGER NOT NULL,
			failed_blocks INTEGER NOT NULL,
			decision VARCHAR NOT NULL,
			level VARCHAR NOT NULL,
			confidence DOUBLE NOT NULL,
			reasons VARCHAR,
			duplicates VARCHAR[]
		);

		CREATE TABLE IF NOT EXISTS blocks (
			document_id VARCHAR NOT NULL,
			page INTEGER NOT NULL,
			line_index INTEGER NOT NULL,
			position INTEGER NOT NULL,
			text VARCHAR NOT NULL,
			bbox VARCHAR,
			page_width DOUBLE,
			page_height DOUBLE,
			predicted VARCHAR,
			confidence DOUBLE,
			actual VARCHAR,
			error VARCHAR
		);

		CREATE TABLE IF NOT EXISTS invoices (
			id VARCHAR PRIMARY KEY,
			document_id VARCHAR NOT NULL,
			number VARCHAR,
			date DATE,
			issuer_name VARCHAR,
			issuer_street VARCHAR,
			issuer_postal_code VARCHAR,
			issuer_city VARCHAR,
			net_total DECIMAL(18, 2),
			vat_total DECIMAL(18, 2),
			gross_total DECIMAL(18, 2),
			confidence DOUBLE NOT NULL,
			field_confidence VARCHAR,
			model_version VARCHAR,
			decision VARCHAR,
			created_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS samples (
			set_name VARCHAR NOT NULL,
			seq INTEGER NOT NULL,
			document_id VARCHAR,
			text VARCHAR NOT NULL,
			label VARCHAR NOT NULL,
			page INTEGER,
			line_index INTEGER,
			position INTEGER,
			bbox VARCHAR,
			page_width DOUBLE,
			page_height DOUBLE,
			overrides VARCHAR,
			PRIMARY KEY (set_name, seq)
		);

		CREATE TABLE IF NOT EXISTS evaluations (
			model_version VARCHAR NOT NULL,
			set_name VARCHAR,
			evaluated_at TIMESTAMP NOT NULL,
			samples INTEGER NOT NULL,
			accuracy DOUBLE,
			micro_f1 DOUBLE,
			macro_f1 DOUBLE,
			weighted_f1 DOUBLE,
			log_loss DOUBLE,
			metrics VARCHAR NOT NULL,
			misclassifications VARCHAR
		);
	`)

	return err
}

// nve maps the empty string to NULL.
func nve(v string) any {
	if v == "" {
		return nil
	}

	return v
}

func nullList(v []string) any {
	if len(v) == 0 {
		return nil
	}

	return v
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}

	return d.Decimal.StringFixed(2)
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.Format(time.DateOnly)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func rollback(tx *sql.Tx, what string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Printf("failed to rollback transaction for %s: %v", what, err)
	}
}

func (r *sqlRepository) SaveDocumentResult(res *pipeline.Result) error {
	if res == nil || res.Invoice == nil {
		return errors.New("saving document: incomplete result")
	}

	reasons, err := marshal(res.Decision.Reasons)
	if err != nil {
		return fmt.Errorf("encoding reasons of %s: %w", res.DocumentID, err)
	}

	fieldConf, err := marshal(res.Invoice.FieldConfidence)
	if err != nil {
		return fmt.Errorf("encoding field confidence of %s: %w", res.DocumentID, err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction for %s: %w", res.DocumentID, err)
	}

	defer rollback(tx, res.DocumentID)

	for _, table := range []string{"blocks", "invoices"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE document_id = ?", res.DocumentID); err != nil {
			return fmt.Errorf("deleting %s of %s: %w", table, res.DocumentID, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", res.DocumentID); err != nil {
		return fmt.Errorf("deleting document %s: %w", res.DocumentID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO documents (
			id, model_version, processed_at, blocks, failed_blocks,
			decision, level, confidence, reasons, duplicates
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.DocumentID,
		res.ModelVersion,
		time.Now().UTC(),
		res.Metrics.Blocks,
		res.Metrics.FailedBlocks,
		res.Decision.Decision.String(),
		res.Decision.Level.String(),
		res.Decision.Confidence,
		reasons,
		nullList(res.Decision.Duplicates),
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", res.DocumentID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO blocks (
			document_id, page, line_index, position, text, bbox,
			page_width, page_height, predicted, confidence, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range res.Blocks {
		var predicted, confidence any
		if !b.Failed() {
			predicted, confidence = b.Prediction.Label.String(), b.Prediction.Confidence
		}

		_, err := stmt.Exec(
			res.DocumentID,
			b.Block.Page,
			b.Block.LineIndex,
			b.Block.Position,
			b.Block.Text,
			b.Block.Box,
			b.Block.PageWidth,
			b.Block.PageHeight,
			predicted,
			confidence,
			nve(b.Error),
		)
		if err != nil {
			return fmt.Errorf("inserting block for %s: %w", res.DocumentID, err)
		}
	}

	inv := res.Invoice

	_, err = tx.Exec(`
		INSERT INTO invoices (
			id, document_id, number, date,
			issuer_name, issuer_street, issuer_postal_code, issuer_city,
			net_total, vat_total, gross_total,
			confidence, field_confidence, model_version, decision, created_at
		) VALUES (
			?, ?, ?, CAST(? AS DATE), ?, ?, ?, ?,
			CAST(? AS DECIMAL(18, 2)), CAST(? AS DECIMAL(18, 2)), CAST(? AS DECIMAL(18, 2)),
			?, ?, ?, ?, ?
		)`,
		inv.ID,
		res.DocumentID,
		nve(inv.Number),
		nullDate(inv.Date),
		nve(inv.IssuerName),
		nve(inv.IssuerStreet),
		nve(inv.IssuerPostalCode),
		nve(inv.IssuerCity),
		nullDecimal(inv.NetTotal),
		nullDecimal(inv.VatTotal),
		nullDecimal(inv.GrossTotal),
		inv.Confidence,
		fieldConf,
		inv.ModelVersion,
		res.Decision.Decision.String(),
		inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting invoice for %s: %w", res.DocumentID, err)
	}

	return tx.Commit()
}

const invoiceSelect = `
	SELECT id, document_id, coalesce(number, ''), date,
	       coalesce(issuer_name, ''), coalesce(issuer_street, ''),
	       coalesce(issuer_postal_code, ''), coalesce(issuer_city, ''),
	       CAST(net_total AS VARCHAR), CAST(vat_total AS VARCHAR), CAST(gross_total AS VARCHAR),
	       confidence, field_confidence, coalesce(model_version, ''), created_at
	FROM invoices
`

func (r *sqlRepository) ListInvoices(f Filter) ([]*invoice.Invoice, error) {
	if f == nil {
		f = All()
	}

	where, args := f.Predicate()

	return r.queryInvoices(where, args...)
}

func (r *sqlRepository) DuplicateCandidates(excludeDocumentID string) ([]*invoice.Invoice, error) {
	return r.queryInvoices(`
		number IS NOT NULL AND date IS NOT NULL AND gross_total IS NOT NULL
		AND coalesce(decision, '') <> ? AND document_id <> ?`,
		policy.Reject.String(), excludeDocumentID)
}

func (r *sqlRepository) queryInvoices(where string, args ...any) ([]*invoice.Invoice, error) {
	rows, err := r.db.Query(invoiceSelect+" WHERE "+where+" ORDER BY date NULLS LAST, number, id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying invoices: %w", err)
	}
	defer rows.Close()

	var ret []*invoice.Invoice

	for rows.Next() {
		inv := &invoice.Invoice{}

		var (
			date      sql.NullTime
			fieldConf sql.NullString
		)

		if err := rows.Scan(
			&inv.ID, &inv.DocumentID, &inv.Number, &date,
			&inv.IssuerName, &inv.IssuerStreet, &inv.IssuerPostalCode, &inv.IssuerCity,
			&inv.NetTotal, &inv.VatTotal, &inv.GrossTotal,
			&inv.Confidence, &fieldConf, &inv.ModelVersion, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}

		if date.Valid {
			inv.Date = date.Time.UTC()
		}

		if fieldConf.Valid && fieldConf.String != "null" {
			if err := json.Unmarshal([]byte(fieldConf.String), &inv.FieldConfidence); err != nil {
				return nil, fmt.Errorf("decoding field confidence of %s: %w", inv.ID, err)
			}
		}

		ret = append(ret, inv)
	}

	return ret, rows.Err()
}

func (r *sqlRepository) GetDecision(documentID string) (*policy.Result, error) {
	var (
		res      policy.Result
		decision string
		level    string
		reasons  sql.NullString
		dups     any
	)

	err := r.db.QueryRow(`
		SELECT decision, level, confidence, reasons, duplicates
		FROM documents
		WHERE id = ?
	`, documentID).Scan(&decision, &level, &res.Confidence, &reasons, &dups)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision of %s: %w", documentID, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("querying decision of %s: %w", documentID, err)
	}

	if res.Decision, err = policy.ParseDecision(decision); err != nil {
		return nil, err
	}

	if res.Level, err = policy.ParseLevel(level); err != nil {
		return nil, err
	}

	if reasons.Valid {
		if err := json.Unmarshal([]byte(reasons.String), &res.Reasons); err != nil {
			return nil, fmt.Errorf("decoding reasons of %s: %w", documentID, err)
		}
	}

	if ids, ok := textutils.AnyToStringSlice(dups); ok && len(ids) > 0 {
		res.Duplicates = ids
	}

	return &res, nil
}

func (r *sqlRepository) ListBlocks(documentID string) ([]document.LabeledBlock, error) {
	rows, err := r.db.Query(`
		SELECT page, line_index, position, text, bbox, page_width, page_height,
		       predicted, confidence, actual
		FROM blocks
		WHERE document_id = ?
		ORDER BY page, line_index, position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying blocks of %s: %w", documentID, err)
	}
	defer rows.Close()

	var ret []document.LabeledBlock

	for rows.Next() {
		var (
			lb                document.LabeledBlock
			predicted, actual sql.NullString
			confidence        sql.NullFloat64
		)

		b := &lb.Block
		if err := rows.Scan(
			&b.Page, &b.LineIndex, &b.Position, &b.Text, &b.Box, &b.PageWidth, &b.PageHeight,
			&predicted, &confidence, &actual,
		); err != nil {
			return nil, fmt.Errorf("scanning block: %w", err)
		}

		if predicted.Valid {
			l, err := fields.Parse(predicted.String)
			if err != nil {
				return nil, err
			}

			lb.SetPrediction(l, confidence.Float64)
		}

		if actual.Valid {
			l, err := fields.Parse(actual.String)
			if err != nil {
				return nil, err
			}

			lb.SetActualLabel(l)
		}

		ret = append(ret, lb)
	}

	return ret, rows.Err()
}

func (r *sqlRepository) SetActualLabel(documentID string, page, lineIndex, position int, l fields.Label) error {
	if !l.Valid() {
		return fmt.Errorf("invalid label %v", l)
	}

	res, err := r.db.Exec(`
		UPDATE blocks SET actual = ?
		WHERE document_id = ? AND page = ? AND line_index = ? AND position = ?
	`, l.String(), documentID, page, lineIndex, position)
	if err != nil {
		return fmt.Errorf("labeling block of %s: %w", documentID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("block %s %d/%d/%d: %w", documentID, page, lineIndex, position, ErrNotFound)
	}

	return nil
}

func (r *sqlRepository) ReviewedSamples(name string) (*training.Set, error) {
	// blocks of a reviewed document that were not relabeled keep their
	// predicted label
	rows, err := r.db.Query(`
		SELECT document_id, page, line_index, position, text, bbox, page_width, page_height,
		       coalesce(actual, predicted)
		FROM blocks
		WHERE document_id IN (SELECT document_id FROM blocks WHERE actual IS NOT NULL)
		  AND coalesce(actual, predicted) IS NOT NULL
		ORDER BY document_id, page, line_index, position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying reviewed blocks: %w", err)
	}
	defer rows.Close()

	set := &training.Set{Name: name}

	for rows.Next() {
		var (
			lb    document.LabeledBlock
			docID string
			label string
		)

		b := &lb.Block
		if err := rows.Scan(
			&docID, &b.Page, &b.LineIndex, &b.Position, &b.Text, &b.Box, &b.PageWidth, &b.PageHeight, &label,
		); err != nil {
			return nil, fmt.Errorf("scanning reviewed block: %w", err)
		}

		l, err := fields.Parse(label)
		if err != nil {
			return nil, err
		}

		lb.SetActualLabel(l)
		set.Samples = append(set.Samples, training.FromLabeledBlock(docID, lb))
	}

	return set, rows.Err()
}
