package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"tandem/internal/domain"
)

// UpsertTag creates a tag by name if missing and returns it.
func (r Repo) UpsertTag(ctx context.Context, name string) (domain.Tag, error) {
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO tags(id,name) VALUES (?,?) ON CONFLICT(name) DO NOTHING`,
		uuid.NewString(), name); err != nil {
		return domain.Tag{}, err
	}
	var tag domain.Tag
	err := r.DB.QueryRowContext(ctx, `SELECT id,name FROM tags WHERE name=?`, name).Scan(&tag.ID, &tag.Name)
	return tag, err
}

// ListTags returns all tags ordered by name.
func (r Repo) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Tag{}
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		res = append(res, tag)
	}
	return res, rows.Err()
}

// MissingTags returns the ids from the input that have no tag row.
func (r Repo) MissingTags(ctx context.Context, tx *sql.Tx, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tags WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ReplaceTaskTags swaps the full tag set of a task inside tx. The delete and
// the inserts share the caller's transaction, so no reader sees the empty
// intermediate set. Repeated ids collapse onto one association.
func (r Repo) ReplaceTaskTags(ctx context.Context, tx *sql.Tx, taskID string, tagIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id=?`, taskID); err != nil {
		return err
	}
	return insertTaskTags(ctx, tx, taskID, tagIDs)
}

// AddTaskTags links tags to a freshly inserted task.
func (r Repo) AddTaskTags(ctx context.Context, tx *sql.Tx, taskID string, tagIDs []string) error {
	return insertTaskTags(ctx, tx, taskID, tagIDs)
}

func insertTaskTags(ctx context.Context, tx *sql.Tx, taskID string, tagIDs []string) error {
	for i, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_tags(task_id,tag_id,position) VALUES (?,?,?)`,
			taskID, tagID, i); err != nil {
			return err
		}
	}
	return nil
}

func tagsForTasks(ctx context.Context, q querier, taskIDs []string) (map[string][]domain.Tag, error) {
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `SELECT tt.task_id, t.id, t.name FROM task_tags tt
JOIN tags t ON t.id = tt.tag_id
WHERE tt.task_id IN (`+placeholders(len(taskIDs))+`)
ORDER BY tt.task_id, tt.position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[string][]domain.Tag)
	for rows.Next() {
		var (
			taskID string
			tag    domain.Tag
		)
		if err := rows.Scan(&taskID, &tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		res[taskID] = append(res[taskID], tag)
	}
	return res, rows.Err()
}
