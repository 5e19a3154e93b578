package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

const defaultHistoryLimit = 50

// ImportHistoryRepository persists summaries of produced import reports.
type ImportHistoryRepository struct {
	db *sqlx.DB
}

// NewImportHistoryRepository constructs the repository.
func NewImportHistoryRepository(db *sqlx.DB) *ImportHistoryRepository {
	return &ImportHistoryRepository{db: db}
}

// Record inserts a report summary. Re-recording the same report is a no-op.
func (r *ImportHistoryRepository) Record(ctx context.Context, report *models.ImportReport) error {
	if report == nil {
		return fmt.Errorf("record import history: nil report")
	}
	errs, err := json.Marshal(nonNil(report.Errors))
	if err != nil {
		return fmt.Errorf("encode import errors: %w", err)
	}
	entry := models.ImportHistoryEntry{
		ID:           report.ID,
		Source:       string(report.Source),
		SuccessCount: report.SuccessCount,
		FailureCount: report.FailureCount,
		Errors:       errs,
		Staged:       report.Staged,
		CreatedBy:    report.CreatedBy,
		CreatedAt:    report.CreatedAt,
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO import_history (id, source, success_count, failure_count, errors, staged, created_by, created_at)
VALUES (:id, :source, :success_count, :failure_count, :errors, :staged, :created_by, :created_at)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert import history: %w", err)
	}
	return nil
}

// List returns the most recent reports, optionally restricted to one author.
func (r *ImportHistoryRepository) List(ctx context.Context, createdBy string, limit int) ([]models.ImportReport, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	query := `SELECT id, source, success_count, failure_count, errors, staged, created_by, created_at FROM import_history`
	args := []interface{}{}
	if createdBy != "" {
		query += " WHERE created_by = $1"
		args = append(args, createdBy)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	var rows []models.ImportHistoryEntry
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}

	reports := make([]models.ImportReport, 0, len(rows))
	for _, row := range rows {
		report := models.ImportReport{
			ID:           row.ID,
			Source:       models.ImportSource(row.Source),
			SuccessCount: row.SuccessCount,
			FailureCount: row.FailureCount,
			Errors:       []string{},
			Accepted:     []models.ImportRecord{},
			Staged:       row.Staged,
			CreatedBy:    row.CreatedBy,
			CreatedAt:    row.CreatedAt,
		}
		if len(row.Errors) > 0 {
			if err := json.Unmarshal(row.Errors, &report.Errors); err != nil {
				return nil, fmt.Errorf("decode import errors for %s: %w", row.ID, err)
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
