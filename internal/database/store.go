package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmagar/editcount/internal/models"
)

// Store persists RAW file history and scan runs
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Record adds any stems not yet known for the album and returns the full
// history of the album in first-seen order.
func (s *Store) Record(ctx context.Context, group, album string, stems []string) ([]string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(stems) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO raw_history (group_name, album_name, stem)
			VALUES (?, ?, ?)
		`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare history insert: %w", err)
		}
		defer stmt.Close()

		for _, stem := range stems {
			if _, err := stmt.ExecContext(ctx, group, album, stem); err != nil {
				return nil, fmt.Errorf("failed to record %s/%s/%s: %w", group, album, stem, err)
			}
		}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT stem FROM raw_history
		WHERE group_name = ? AND album_name = ?
		ORDER BY id
	`, group, album)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []string
	for rows.Next() {
		var stem string
		if err := rows.Scan(&stem); err != nil {
			return nil, err
		}
		history = append(history, stem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit history: %w", err)
	}

	return history, nil
}

// RecordScan persists a scan run and returns its id
func (s *Store) RecordScan(ctx context.Context, run models.ScanRun) (int64, error) {
	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}

	result, err := s.DB.ExecContext(ctx, `
		INSERT INTO scan_runs (job_id, triggered_by, started_at, finished_at, albums, edited, deleted, total, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.JobID, run.Trigger, run.StartedAt, finishedAt,
		run.Albums, run.Edited, run.Deleted, run.Total, run.Error)
	if err != nil {
		return 0, fmt.Errorf("failed to record scan run: %w", err)
	}

	return result.LastInsertId()
}

// RecentScans returns up to limit scan runs, newest first
func (s *Store) RecentScans(ctx context.Context, limit int) ([]models.ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, COALESCE(job_id, ''), triggered_by, started_at, finished_at,
		       albums, edited, deleted, total, error
		FROM scan_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	runs := []models.ScanRun{}
	for rows.Next() {
		var run models.ScanRun
		var finishedAt sql.NullTime

		if err := rows.Scan(
			&run.ID, &run.JobID, &run.Trigger, &run.StartedAt, &finishedAt,
			&run.Albums, &run.Edited, &run.Deleted, &run.Total, &run.Error,
		); err != nil {
			return nil, err
		}

		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
