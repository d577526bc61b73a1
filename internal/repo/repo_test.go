package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tandem/internal/db"
	"tandem/internal/domain"
	"tandem/internal/migrate"
	"tandem/internal/repo"
)

func setup(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return repo.Repo{DB: conn}
}

func inTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func newTask(id string, created time.Time) domain.Task {
	return domain.Task{
		ID:        id,
		Title:     "task " + id,
		CreatedAt: created,
		Author:    domain.PersonMann,
		Assignee:  domain.AssigneeBoth,
		Priority:  domain.PriorityB,
		Version:   1,
	}
}

func TestInsertAndGetTask(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	dl := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	task := newTask("t1", created)
	task.Deadline = &dl

	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertTask(ctx, tx, task))
	})

	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "task t1", got.Title)
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.Deadline)
	assert.True(t, dl.Equal(*got.Deadline))
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.Tags)
	assert.Equal(t, int64(1), got.Version)

	_, err = r.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateTaskFieldsIsFieldGranular(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertTask(ctx, tx, newTask("t1", time.Now())))
	})

	title := "renamed"
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpdateTaskFields(ctx, tx, "t1", repo.TaskFields{Title: &title}))
	})
	pinned := true
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpdateTaskFields(ctx, tx, "t1", repo.TaskFields{Pinned: &pinned}))
	})

	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.True(t, got.Pinned)
	assert.Equal(t, int64(3), got.Version)

	inTx(t, r, func(tx *sql.Tx) {
		err := r.UpdateTaskFields(ctx, tx, "missing", repo.TaskFields{Title: &title})
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestCompletionColumnsMoveTogether(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertTask(ctx, tx, newTask("t1", time.Now())))
	})

	done := true
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	err = r.UpdateTaskFields(ctx, tx, "t1", repo.TaskFields{Done: &done})
	assert.Error(t, err, "done without completion stamp violates the check")
	require.NoError(t, tx.Rollback())

	now := time.Now()
	by := domain.PersonFrau
	byPtr := &by
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpdateTaskFields(ctx, tx, "t1", repo.TaskFields{
			Done:        &done,
			CompletedAt: domain.OptionalTime{Set: true, Value: &now},
			CompletedBy: &byPtr,
		}))
	})
	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Done)
	require.NotNil(t, got.CompletedBy)
	assert.Equal(t, domain.PersonFrau, *got.CompletedBy)
}

func TestReplaceTaskTags(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	x, err := r.UpsertTag(ctx, "Haushalt")
	require.NoError(t, err)
	y, err := r.UpsertTag(ctx, "Finanzen")
	require.NoError(t, err)
	z, err := r.UpsertTag(ctx, "Termine")
	require.NoError(t, err)

	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertTask(ctx, tx, newTask("t1", time.Now())))
		require.NoError(t, r.AddTaskTags(ctx, tx, "t1", []string{x.ID, y.ID}))
	})
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.ReplaceTaskTags(ctx, tx, "t1", []string{z.ID, z.ID}))
	})

	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Tag{z}, got.Tags)

	inTx(t, r, func(tx *sql.Tx) {
		missing, err := r.MissingTags(ctx, tx, []string{z.ID, "nope"})
		require.NoError(t, err)
		assert.Equal(t, []string{"nope"}, missing)
	})
}

func TestUpsertTagIsIdempotentAndListedByName(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	first, err := r.UpsertTag(ctx, "Wohnung")
	require.NoError(t, err)
	again, err := r.UpsertTag(ctx, "Wohnung")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	_, err = r.UpsertTag(ctx, "Fahrzeuge")
	require.NoError(t, err)

	tags, err := r.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Fahrzeuge", tags[0].Name)
	assert.Equal(t, "Wohnung", tags[1].Name)
}

func TestListCompletedOrdering(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	by := domain.PersonMann
	for i, id := range []string{"a", "b", "c"} {
		task := newTask(id, base)
		task.Done = true
		completed := base.Add(time.Duration(i) * time.Hour)
		task.CompletedAt = &completed
		task.CompletedBy = &by
		inTx(t, r, func(tx *sql.Tx) {
			require.NoError(t, r.InsertTask(ctx, tx, task))
		})
	}
	inTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertTask(ctx, tx, newTask("open", base)))
	})

	got, err := r.ListCompleted(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	open := false
	list, err := r.ListTasks(ctx, repo.TaskFilters{Done: &open})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "open", list[0].ID)
}

func TestSubscriptionsUpsertByEndpoint(t *testing.T) {
	r := setup(t)
	ctx := context.Background()
	sub := domain.PushSubscription{Endpoint: "https://push.example/1", Person: domain.PersonMann, P256dh: "k", Auth: "a"}
	require.NoError(t, r.UpsertSubscription(ctx, sub))
	sub.Person = domain.PersonFrau
	sub.P256dh = "k2"
	require.NoError(t, r.UpsertSubscription(ctx, sub))

	mann, err := r.ListSubscriptions(ctx, domain.PersonMann)
	require.NoError(t, err)
	assert.Empty(t, mann)
	frau, err := r.ListSubscriptions(ctx, domain.PersonFrau)
	require.NoError(t, err)
	require.Len(t, frau, 1)
	assert.Equal(t, "k2", frau[0].P256dh)

	require.NoError(t, r.DeleteSubscription(ctx, sub.Endpoint))
	require.NoError(t, r.DeleteSubscription(ctx, sub.Endpoint))
	frau, err = r.ListSubscriptions(ctx, domain.PersonFrau)
	require.NoError(t, err)
	assert.Empty(t, frau)
}
