package status

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// defaultRecentLimit caps Recent when no positive limit is given.
const defaultRecentLimit = 100

// SQLStore persists status records in the status_reports table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database whose schema has been
// migrated.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Save inserts a record.
func (s *SQLStore) Save(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_reports (correlation_id, category, severity, item_key, message, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.CorrelationID,
		r.Category,
		string(r.Severity),
		r.Key,
		r.Message,
		r.Detail,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting status report: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, category, severity, item_key, message, detail, created_at
		FROM status_reports
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying status reports: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var severity, createdAt string
		if err := rows.Scan(&r.ID, &r.CorrelationID, &r.Category, &severity, &r.Key, &r.Message, &r.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning status report: %w", err)
		}
		r.Severity = Severity(severity)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status reports: %w", err)
	}
	return records, nil
}
