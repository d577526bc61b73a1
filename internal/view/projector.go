package view

import (
	"context"
	"time"

	"tandem/internal/config"
	"tandem/internal/domain"
	"tandem/internal/events"
	"tandem/internal/repo"
)

// CompletedLimit is the size of the completed view.
const CompletedLimit = 20

// Projector reads committed state and applies the pure projections above.
type Projector struct {
	Repo    repo.Repo
	Log     events.Log
	Config  *config.Config
	Timeout time.Duration
	Now     func() time.Time
}

func (p Projector) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Projector) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// Location is the timezone used for calendar comparisons.
func (p Projector) Location() *time.Location {
	if p.Config == nil {
		return time.Local
	}
	return p.Config.Location()
}

func (p Projector) locale() Locale {
	if p.Config == nil {
		return LocaleDE
	}
	return Locale(p.Config.Locale)
}

func (p Projector) labeler() Labeler {
	if p.Config == nil {
		return nil
	}
	return p.Config.Label
}

// Tasks returns the active list for q with counts.
func (p Projector) Tasks(ctx context.Context, q Query) (TaskList, error) {
	if !q.Requester.Valid() {
		return TaskList{}, domain.Validation("person", "missing or invalid person")
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()
	tasks, err := p.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return TaskList{}, domain.StoreUnavailable("list tasks", err)
	}
	return Project(tasks, q, p.now(), p.Location()), nil
}

// Completed returns the most recently finished tasks.
func (p Projector) Completed(ctx context.Context) ([]domain.Task, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	tasks, err := p.Repo.ListCompleted(ctx, CompletedLimit)
	if err != nil {
		return nil, domain.StoreUnavailable("list completed", err)
	}
	return tasks, nil
}

// Latest returns the newest committed activity, nil when there is none.
func (p Projector) Latest(ctx context.Context) (*domain.ActivityRecord, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	rec, err := p.Log.Latest(ctx)
	if err != nil {
		return nil, domain.StoreUnavailable("latest activity", err)
	}
	return rec, nil
}

// Recent returns up to n activity records, newest first.
func (p Projector) Recent(ctx context.Context, n int) ([]domain.ActivityRecord, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	recs, err := p.Log.Recent(ctx, n)
	if err != nil {
		return nil, domain.StoreUnavailable("recent activity", err)
	}
	return recs, nil
}

func (p Projector) Ticker(ctx context.Context) (TickerView, error) {
	rec, err := p.Latest(ctx)
	if err != nil {
		return TickerView{}, err
	}
	return Ticker(rec, p.labeler(), p.locale()), nil
}

// Sentence renders rec with the configured labels and locale.
func (p Projector) Sentence(rec domain.ActivityRecord) string {
	return Sentence(rec, p.labeler(), p.locale())
}

// NotificationTitle is the localized push heading.
func (p Projector) NotificationTitle() string {
	return Title(p.locale())
}

func (p Projector) Tags(ctx context.Context) ([]domain.Tag, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	tags, err := p.Repo.ListTags(ctx)
	if err != nil {
		return nil, domain.StoreUnavailable("list tags", err)
	}
	return tags, nil
}

// Overdue evaluates t against the current day.
func (p Projector) Overdue(t domain.Task) bool {
	return IsOverdue(t, p.now(), p.Location())
}

// Recommend suggests a priority for a deadline relative to now.
func (p Projector) Recommend(deadline time.Time) domain.Priority {
	return RecommendPriority(deadline, p.now())
}
