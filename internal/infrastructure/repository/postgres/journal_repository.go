package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
)

const schemaLockID int64 = 2026101901

// JournalRepository appends classification records to an audit table. Nothing
// in the service reads results back from it.
type JournalRepository struct {
	db *sql.DB
}

var _ ports.ClassificationRecorder = (*JournalRepository)(nil)

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS classification_journal (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	format TEXT NOT NULL,
	mode TEXT NOT NULL,
	label TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	all_scores JSONB NOT NULL DEFAULT '{}'::jsonb,
	labels JSONB NOT NULL DEFAULT '[]'::jsonb,
	labels_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	scores_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	text_length INTEGER NOT NULL,
	duration_ms DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classification_journal_created_at ON classification_journal(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_classification_journal_label ON classification_journal(label);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Record inserts record. Redelivered records with a known id are ignored.
func (r *JournalRepository) Record(ctx context.Context, record domain.ClassificationRecord) error {
	if record.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record classification", errors.New("record id is required"))
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	scoresJSON, err := json.Marshal(record.AllScores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	labels := record.Labels
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO classification_journal (
	id, file_name, format, mode, label, confidence, all_scores, labels, labels_fallback, scores_fallback, text_length, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING
`,
		record.ID, record.FileName, string(record.Format), string(record.Mode), record.Label, record.Confidence,
		scoresJSON, labelsJSON, record.LabelsFallback, record.ScoresFallback, record.TextLength, record.DurationMs, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert classification record: %w", err)
	}
	return nil
}
