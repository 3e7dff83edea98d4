// Package store persists per-user tour completion in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/glebarez/go-sqlite"
)

type StatusStore struct {
	DB *sql.DB
}

func NewStatusStore(dbPath string) (*StatusStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS tour_status (
			user_id TEXT NOT NULL,
			tour_name TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, tour_name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tour_status_tour ON tour_status (tour_name);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &StatusStore{DB: db}, nil
}

func (s *StatusStore) Close() error {
	return s.DB.Close()
}

const upsertStatus = `
	INSERT INTO tour_status (user_id, tour_name, completed, updated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (user_id, tour_name) DO UPDATE SET
		completed = excluded.completed,
		updated_at = CURRENT_TIMESTAMP`

// SetStatus records whether userID has completed tourName.
func (s *StatusStore) SetStatus(ctx context.Context, userID, tourName string, completed bool) error {
	if _, err := s.DB.ExecContext(ctx, upsertStatus, userID, tourName, completed); err != nil {
		return fmt.Errorf("set tour status: %w", err)
	}
	return nil
}

// BulkSetStatus applies every entry of tours in one transaction.
func (s *StatusStore) BulkSetStatus(ctx context.Context, userID string, tours map[string]bool) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bulk set tour status: begin tx: %w", err)
	}
	defer tx.Rollback()

	names := make([]string, 0, len(tours))
	for name := range tours {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, upsertStatus, userID, name, tours[name]); err != nil {
			return fmt.Errorf("bulk set tour status %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bulk set tour status: commit: %w", err)
	}
	return nil
}

// GetStatus returns the completion flag of every tour recorded for userID.
func (s *StatusStore) GetStatus(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT tour_name, completed FROM tour_status WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("get tour status: %w", err)
	}
	defer rows.Close()

	status := make(map[string]bool)
	for rows.Next() {
		var name string
		var completed bool
		if err := rows.Scan(&name, &completed); err != nil {
			return nil, err
		}
		status[name] = completed
	}
	return status, rows.Err()
}

// Stats summarizes completion across all users.
func (s *StatusStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT user_id, tour_name, completed FROM tour_status ORDER BY user_id, tour_name`)
	if err != nil {
		return nil, fmt.Errorf("tour stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{Completed: make(map[string]int)}
	var current *UserStatus
	for rows.Next() {
		var userID, name string
		var completed bool
		if err := rows.Scan(&userID, &name, &completed); err != nil {
			return nil, err
		}
		if current == nil || current.UserID != userID {
			stats.Details = append(stats.Details, UserStatus{UserID: userID, Tours: make(map[string]bool)})
			current = &stats.Details[len(stats.Details)-1]
		}
		current.Tours[name] = completed
		if completed {
			stats.Completed[name]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.TotalUsers = len(stats.Details)
	return stats, nil
}
