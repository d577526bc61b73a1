package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tandem/internal/domain"
	"tandem/internal/events"
	"tandem/internal/repo"
)

const defaultStoreTimeout = 5 * time.Second

// Notifier receives the post-commit notification for the other person.
// Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, target domain.Person, rec domain.ActivityRecord, task domain.Task)
}

type Engine struct {
	DB           *sql.DB
	Repo         repo.Repo
	Events       events.Writer
	Notifier     Notifier
	Logger       *zap.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

func New(db *sql.DB, notifier Notifier, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := Engine{
		DB:           db,
		Repo:         repo.Repo{DB: db},
		Notifier:     notifier,
		Logger:       logger,
		StoreTimeout: defaultStoreTimeout,
		Now:          time.Now,
	}
	e.Events = events.Writer{Now: e.now}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// CreateInput are the parameters for a new task.
type CreateInput struct {
	Title    string
	Author   domain.Person
	Assignee domain.Assignee
	Priority domain.Priority
	Deadline *time.Time
	TagIDs   []string
}

func (in CreateInput) normalize() (CreateInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, domain.Validation("title", "title must not be empty")
	}
	if !in.Author.Valid() {
		return in, domain.Validation("author", "invalid author "+string(in.Author))
	}
	if !in.Assignee.Valid() {
		return in, domain.Validation("assignee", "invalid assignee "+string(in.Assignee))
	}
	if !in.Priority.Valid() {
		return in, domain.Validation("priority", "invalid priority "+string(in.Priority))
	}
	return in, nil
}

// CreateTask stores a new open task together with its ADDED activity and
// then notifies the other person.
func (e Engine) CreateTask(ctx context.Context, in CreateInput) (domain.Task, error) {
	in, err := in.normalize()
	if err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:        uuid.NewString(),
		Title:     in.Title,
		CreatedAt: e.now().UTC(),
		Author:    in.Author,
		Assignee:  in.Assignee,
		Priority:  in.Priority,
		Deadline:  in.Deadline,
		Version:   1,
	}

	var rec domain.ActivityRecord
	err = e.inTx(ctx, "create task", func(ctx context.Context, tx *sql.Tx) error {
		if err := e.checkTags(ctx, tx, in.TagIDs); err != nil {
			return err
		}
		if err := e.Repo.InsertTask(ctx, tx, task); err != nil {
			return err
		}
		if err := e.Repo.AddTaskTags(ctx, tx, task.ID, in.TagIDs); err != nil {
			return err
		}
		stored, err := e.Repo.GetTaskTx(ctx, tx, task.ID)
		if err != nil {
			return err
		}
		task = stored
		rec, err = e.Events.Append(ctx, tx, domain.ActivityRecord{
			CreatedAt: task.CreatedAt,
			Type:      domain.ActivityAdded,
			Actor:     in.Author,
			TodoID:    task.ID,
			Title:     task.Title,
		})
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.logger().Info("task created",
		zap.String("task_id", task.ID),
		zap.String("actor", string(in.Author)),
		zap.Int64("activity_id", rec.ID))
	e.notify(ctx, in.Author, rec, task)
	return task, nil
}

// ApplyPatch changes only the fields present in p and records exactly one
// activity for the change. The other person is notified after commit.
func (e Engine) ApplyPatch(ctx context.Context, taskID string, p domain.Patch, actor domain.Person) (domain.Task, error) {
	if !actor.Valid() {
		return domain.Task{}, domain.Validation("actor", "invalid actor "+string(actor))
	}
	p, err := p.Normalize()
	if err != nil {
		return domain.Task{}, err
	}

	var (
		task domain.Task
		rec  domain.ActivityRecord
	)
	err = e.inTx(ctx, "apply patch", func(ctx context.Context, tx *sql.Tx) error {
		current, err := e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if p.ExpectedVersion != nil && *p.ExpectedVersion != current.Version {
			return domain.ErrStaleVersion
		}
		if p.TagIDs != nil {
			if err := e.checkTags(ctx, tx, *p.TagIDs); err != nil {
				return err
			}
		}
		now := e.now().UTC()
		if err := e.Repo.UpdateTaskFields(ctx, tx, taskID, e.fields(p, actor, now)); err != nil {
			return err
		}
		if p.TagIDs != nil {
			if err := e.Repo.ReplaceTaskTags(ctx, tx, taskID, *p.TagIDs); err != nil {
				return err
			}
		}
		if task, err = e.Repo.GetTaskTx(ctx, tx, taskID); err != nil {
			return err
		}
		rec, err = e.Events.Append(ctx, tx, domain.ActivityRecord{
			CreatedAt: now,
			Type:      p.ActivityType(),
			Actor:     actor,
			TodoID:    task.ID,
			Title:     task.Title,
		})
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.logger().Info("task updated",
		zap.String("task_id", task.ID),
		zap.String("actor", string(actor)),
		zap.String("activity", string(rec.Type)),
		zap.Int64("version", task.Version))
	e.notify(ctx, actor, rec, task)
	return task, nil
}

// fields maps a patch onto columns. done is the only path that touches the
// completion stamp.
func (e Engine) fields(p domain.Patch, actor domain.Person, now time.Time) repo.TaskFields {
	f := repo.TaskFields{
		Title:    p.Title,
		Done:     p.Done,
		Assignee: p.Assignee,
		Priority: p.Priority,
		Deadline: p.Deadline,
		Pinned:   p.Pinned,
	}
	if p.Done != nil {
		var by *domain.Person
		f.CompletedAt = domain.OptionalTime{Set: true}
		if *p.Done {
			who := actor
			by = &who
			f.CompletedAt.Value = &now
		}
		f.CompletedBy = &by
	}
	return f
}

func (e Engine) checkTags(ctx context.Context, tx *sql.Tx, ids []string) error {
	missing, err := e.Repo.MissingTags(ctx, tx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return domain.Validation("tag_ids", "unknown tag "+strings.Join(missing, ", "))
	}
	return nil
}

// inTx runs fn in one bounded transaction. Domain errors pass through;
// anything else from the store is reported as unavailable.
func (e Engine) inTx(ctx context.Context, op string, fn func(context.Context, *sql.Tx) error) error {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreUnavailable(op, err)
	}
	defer tx.Rollback()
	if err := fn(ctx, tx); err != nil {
		var dErr *domain.Error
		if errors.As(err, &dErr) {
			return err
		}
		return domain.StoreUnavailable(op, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.StoreUnavailable(op, err)
	}
	return nil
}

func (e Engine) notify(ctx context.Context, actor domain.Person, rec domain.ActivityRecord, task domain.Task) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(ctx, actor.Other(), rec, task)
}
