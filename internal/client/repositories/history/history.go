// Package history keeps a local record of try-ons run from this machine so
// the CLI can list past results without calling the server.
package history

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/stylist/internal/client/models"
	"github.com/dmitrijs2005/stylist/internal/dbx"
)

type Repository interface {
	// Add inserts an entry or replaces the one with the same job id.
	Add(ctx context.Context, e models.HistoryEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error)
	Clear(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, e models.HistoryEntry) error {
	query := `INSERT INTO tryon_history (job_id, person_path, garment_path, output_path, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			output_path = excluded.output_path,
			status = excluded.status`
	_, err := r.db.ExecContext(ctx, query,
		e.JobID, e.PersonPath, e.GarmentPath, e.OutputPath, e.Status, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to add history entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	query := `SELECT job_id, person_path, garment_path, output_path, status, created_at
		FROM tryon_history ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.JobID, &e.PersonPath, &e.GarmentPath, &e.OutputPath, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tryon_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
