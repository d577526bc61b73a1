package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tandem/internal/domain"
)

// activityLayout matches the task store so created_at sorts lexically.
const activityLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Writer appends activity records. It only ever runs inside the caller's
// transaction so a record becomes visible together with its task change.
type Writer struct {
	Now func() time.Time
}

// Append inserts rec and returns its sequence id. CreatedAt defaults to Now.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec domain.ActivityRecord) (domain.ActivityRecord, error) {
	if tx == nil {
		return rec, errors.New("activity append requires a transaction")
	}
	if rec.CreatedAt.IsZero() {
		now := time.Now
		if w.Now != nil {
			now = w.Now
		}
		rec.CreatedAt = now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO activities(created_at,type,actor,todo_id,title) VALUES (?,?,?,?,?)`,
		rec.CreatedAt.Format(activityLayout), string(rec.Type), string(rec.Actor), nullable(rec.TodoID), rec.Title)
	if err != nil {
		return rec, fmt.Errorf("append activity: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return rec, fmt.Errorf("append activity id: %w", err)
	}
	return rec, nil
}

// Log reads committed activity records.
type Log struct {
	DB *sql.DB
}

// Latest returns the most recently committed record, or nil when the log is empty.
func (l Log) Latest(ctx context.Context) (*domain.ActivityRecord, error) {
	recs, err := l.Recent(ctx, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// Recent returns up to n records, newest first.
func (l Log) Recent(ctx context.Context, n int) ([]domain.ActivityRecord, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := l.DB.QueryContext(ctx, `SELECT id,created_at,type,actor,COALESCE(todo_id,''),title FROM activities ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ActivityRecord{}
	for rows.Next() {
		var (
			rec     domain.ActivityRecord
			created string
		)
		if err := rows.Scan(&rec.ID, &created, &rec.Type, &rec.Actor, &rec.TodoID, &rec.Title); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = time.Parse(activityLayout, created); err != nil {
			return nil, fmt.Errorf("activity %d created_at: %w", rec.ID, err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
