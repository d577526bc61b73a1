package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tandem/internal/domain"
)

// Repo is pure data access over the SQLite store; it enforces no business rules.
type Repo struct {
	DB *sql.DB
}

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = domain.ErrNotFound

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timeLayout is fixed width so lexical order in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const taskColumns = `id,title,done,created_at,author,assignee,priority,deadline,pinned,completed_at,completed_by,version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                            domain.Task
		done, pinned                 int
		createdAt                    string
		deadline, completedAt, byRaw sql.NullString
	)
	err := row.Scan(&t.ID, &t.Title, &done, &createdAt, &t.Author, &t.Assignee, &t.Priority,
		&deadline, &pinned, &completedAt, &byRaw, &t.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.ErrTaskNotFound
	}
	if err != nil {
		return t, err
	}
	t.Done = done == 1
	t.Pinned = pinned == 1
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.Deadline, err = parseNullTime(deadline); err != nil {
		return t, fmt.Errorf("task %s deadline: %w", t.ID, err)
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return t, fmt.Errorf("task %s completed_at: %w", t.ID, err)
	}
	if byRaw.Valid {
		p := domain.Person(byRaw.String)
		t.CompletedBy = &p
	}
	t.Tags = []domain.Tag{}
	return t, nil
}

// InsertTask writes a new task row inside tx.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, boolInt(t.Done), formatTime(t.CreatedAt), string(t.Author), string(t.Assignee), string(t.Priority),
		nullableTime(t.Deadline), boolInt(t.Pinned), nullableTime(t.CompletedAt), nullablePerson(t.CompletedBy), t.Version)
	return err
}

func nullablePerson(p *domain.Person) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

// GetTask loads a task with its tags from committed state.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

// GetTaskTx loads a task with its tags as seen by tx.
func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

func getTask(ctx context.Context, q querier, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	tags, err := tagsForTasks(ctx, q, []string{t.ID})
	if err != nil {
		return t, err
	}
	if ts, ok := tags[t.ID]; ok {
		t.Tags = ts
	}
	return t, nil
}

// TaskFields is a column-level update; nil entries are left untouched.
type TaskFields struct {
	Title       *string
	Done        *bool
	Assignee    *domain.Assignee
	Priority    *domain.Priority
	Deadline    domain.OptionalTime
	Pinned      *bool
	CompletedAt domain.OptionalTime
	CompletedBy **domain.Person
}

// UpdateTaskFields writes only the supplied columns and bumps the version.
// It returns ErrNotFound when no row matches.
func (r Repo) UpdateTaskFields(ctx context.Context, tx *sql.Tx, id string, f TaskFields) error {
	var (
		fields []string
		args   []any
	)
	if f.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *f.Title)
	}
	if f.Done != nil {
		fields = append(fields, "done=?")
		args = append(args, boolInt(*f.Done))
	}
	if f.Assignee != nil {
		fields = append(fields, "assignee=?")
		args = append(args, string(*f.Assignee))
	}
	if f.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, string(*f.Priority))
	}
	if f.Deadline.Set {
		fields = append(fields, "deadline=?")
		args = append(args, nullableTime(f.Deadline.Value))
	}
	if f.Pinned != nil {
		fields = append(fields, "pinned=?")
		args = append(args, boolInt(*f.Pinned))
	}
	if f.CompletedAt.Set {
		fields = append(fields, "completed_at=?")
		args = append(args, nullableTime(f.CompletedAt.Value))
	}
	if f.CompletedBy != nil {
		fields = append(fields, "completed_by=?")
		args = append(args, nullablePerson(*f.CompletedBy))
	}
	fields = append(fields, "version=version+1")
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// TaskFilters narrows ListTasks at the storage level.
type TaskFilters struct {
	Done *bool
}

// ListTasks returns tasks with tags, newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if f.Done != nil {
		query += ` WHERE done=?`
		args = append(args, boolInt(*f.Done))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return r.listTasks(ctx, query, args...)
}

// ListCompleted returns the most recently completed tasks.
func (r Repo) ListCompleted(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE done=1 AND completed_at IS NOT NULL
ORDER BY completed_at DESC, id DESC LIMIT ?`, limit)
}

func (r Repo) listTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var (
		res []domain.Task
		ids []string
	)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Task{}, nil
	}
	tags, err := tagsForTasks(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if ts, ok := tags[res[i].ID]; ok {
			res[i].Tags = ts
		}
	}
	return res, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
