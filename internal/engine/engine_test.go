package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tandem/internal/db"
	"tandem/internal/domain"
	"tandem/internal/engine"
	"tandem/internal/events"
	"tandem/internal/migrate"
)

type sentNote struct {
	Target domain.Person
	Record domain.ActivityRecord
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []sentNote
}

func (n *recordingNotifier) Notify(_ context.Context, target domain.Person, rec domain.ActivityRecord, _ domain.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, sentNote{Target: target, Record: rec})
}

func (n *recordingNotifier) last(t *testing.T) sentNote {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notes) == 0 {
		t.Fatalf("no notification sent")
	}
	return n.notes[len(n.notes)-1]
}

type testEnv struct {
	Engine   engine.Engine
	Log      events.Log
	Notifier *recordingNotifier
	Ctx      context.Context
	Clock    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		Notifier: &recordingNotifier{},
		Log:      events.Log{DB: conn},
		Ctx:      context.Background(),
		Clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	env.Engine = engine.New(conn, env.Notifier, nil)
	env.Engine.Now = func() time.Time { return env.Clock }
	env.Engine.Events.Now = env.Engine.Now
	return env
}

func (env *testEnv) create(t *testing.T, title string, author domain.Person) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateInput{
		Title:    title,
		Author:   author,
		Assignee: domain.Assignee(author),
		Priority: domain.PriorityB,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env *testEnv) countActivities(t *testing.T) int {
	t.Helper()
	recs, err := env.Log.Recent(env.Ctx, 1000)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	return len(recs)
}

func (env *testEnv) tag(t *testing.T, name string) domain.Tag {
	t.Helper()
	tag, err := env.Engine.Repo.UpsertTag(env.Ctx, name)
	if err != nil {
		t.Fatalf("upsert tag: %v", err)
	}
	return tag
}

func boolPtr(v bool) *bool          { return &v }
func strPtr(v string) *string       { return &v }
func tagsPtr(v ...string) *[]string { return &v }

func TestCreateTaskRecordsAddedActivity(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "  Call insurer ", domain.PersonMann)

	if task.Title != "Call insurer" || task.Done || task.Pinned {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.CompletedAt != nil || task.CompletedBy != nil {
		t.Fatalf("new task must not carry a completion stamp")
	}
	latest, err := env.Log.Latest(env.Ctx)
	if err != nil || latest == nil {
		t.Fatalf("latest: %v %v", latest, err)
	}
	if latest.Type != domain.ActivityAdded || latest.Actor != domain.PersonMann || latest.TodoID != task.ID {
		t.Fatalf("unexpected activity %+v", latest)
	}
	note := env.Notifier.last(t)
	if note.Target != domain.PersonFrau || note.Record.ID != latest.ID {
		t.Fatalf("unexpected notification %+v", note)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.CreateInput{
		{Title: "   ", Author: domain.PersonMann, Assignee: domain.AssigneeMann, Priority: domain.PriorityA},
		{Title: "x", Author: "KIND", Assignee: domain.AssigneeMann, Priority: domain.PriorityA},
		{Title: "x", Author: domain.PersonMann, Assignee: "ALLE", Priority: domain.PriorityA},
		{Title: "x", Author: domain.PersonMann, Assignee: domain.AssigneeMann, Priority: "D"},
		{Title: "x", Author: domain.PersonMann, Assignee: domain.AssigneeMann, Priority: domain.PriorityA, TagIDs: []string{"missing"}},
	}
	for i, in := range cases {
		if _, err := env.Engine.CreateTask(env.Ctx, in); !domain.IsCode(err, domain.ErrCodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if n := env.countActivities(t); n != 0 {
		t.Fatalf("rejected creates wrote %d activities", n)
	}
}

func TestCompleteByOtherPerson(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "Call insurer", domain.PersonMann)
	env.Clock = env.Clock.Add(time.Hour)

	task, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Done: boolPtr(true)}, domain.PersonFrau)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !task.Done || task.CompletedBy == nil || *task.CompletedBy != domain.PersonFrau {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(env.Clock) {
		t.Fatalf("completed_at = %v, want %v", task.CompletedAt, env.Clock)
	}
	latest, _ := env.Log.Latest(env.Ctx)
	if latest.Type != domain.ActivityCompleted || latest.Actor != domain.PersonFrau {
		t.Fatalf("unexpected activity %+v", latest)
	}
	if note := env.Notifier.last(t); note.Target != domain.PersonMann {
		t.Fatalf("notified %s, want MANN", note.Target)
	}
}

func TestToggleDoneLeavesNoResidue(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "Müll", domain.PersonFrau)
	for i := 0; i < 3; i++ {
		var err error
		task, err = env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Done: boolPtr(true)}, domain.PersonMann)
		if err != nil || !task.Done || task.CompletedAt == nil || task.CompletedBy == nil {
			t.Fatalf("complete %d: %+v %v", i, task, err)
		}
		task, err = env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Done: boolPtr(false)}, domain.PersonMann)
		if err != nil || task.Done || task.CompletedAt != nil || task.CompletedBy != nil {
			t.Fatalf("reopen %d: %+v %v", i, task, err)
		}
	}
	latest, _ := env.Log.Latest(env.Ctx)
	if latest.Type != domain.ActivityReopened {
		t.Fatalf("latest type %s, want REOPENED", latest.Type)
	}
	if n := env.countActivities(t); n != 7 {
		t.Fatalf("got %d activities, want 7", n)
	}
}

func TestActivityTypePriority(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "Reifen wechseln", domain.PersonMann)
	cases := []struct {
		patch domain.Patch
		want  domain.ActivityType
	}{
		{domain.Patch{Done: boolPtr(true), Pinned: boolPtr(true), Title: strPtr("a")}, domain.ActivityCompleted},
		{domain.Patch{Done: boolPtr(false), Pinned: boolPtr(false)}, domain.ActivityReopened},
		{domain.Patch{Pinned: boolPtr(true), Title: strPtr("b")}, domain.ActivityPinned},
		{domain.Patch{Pinned: boolPtr(false)}, domain.ActivityUnpinned},
		{domain.Patch{Title: strPtr("c")}, domain.ActivityEdited},
	}
	for _, tc := range cases {
		before := env.countActivities(t)
		if _, err := env.Engine.ApplyPatch(env.Ctx, task.ID, tc.patch, domain.PersonFrau); err != nil {
			t.Fatalf("patch: %v", err)
		}
		if n := env.countActivities(t); n != before+1 {
			t.Fatalf("patch wrote %d activities, want 1", n-before)
		}
		latest, _ := env.Log.Latest(env.Ctx)
		if latest.Type != tc.want {
			t.Fatalf("type %s, want %s", latest.Type, tc.want)
		}
	}
}

func TestActivityKeepsTitleSnapshot(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "old", domain.PersonMann)
	if _, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Title: strPtr("new")}, domain.PersonMann); err != nil {
		t.Fatal(err)
	}
	recs, _ := env.Log.Recent(env.Ctx, 2)
	if recs[0].Title != "new" || recs[1].Title != "old" {
		t.Fatalf("titles %q %q", recs[0].Title, recs[1].Title)
	}
}

func TestPatchOnlyTouchesPresentFields(t *testing.T) {
	env := newTestEnv(t)
	deadline := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateInput{
		Title: "Steuer", Author: domain.PersonMann, Assignee: domain.AssigneeBoth,
		Priority: domain.PriorityC, Deadline: &deadline,
	})
	if err != nil {
		t.Fatal(err)
	}
	prio := domain.PriorityA
	task, err = env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Priority: &prio}, domain.PersonMann)
	if err != nil {
		t.Fatal(err)
	}
	if task.Priority != domain.PriorityA || task.Title != "Steuer" || task.Assignee != domain.AssigneeBoth {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Deadline == nil || !task.Deadline.Equal(deadline) {
		t.Fatalf("deadline changed: %v", task.Deadline)
	}

	task, err = env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Deadline: domain.OptionalTime{Set: true}}, domain.PersonMann)
	if err != nil {
		t.Fatal(err)
	}
	if task.Deadline != nil {
		t.Fatalf("deadline not cleared: %v", task.Deadline)
	}
}

func TestReplaceTagsIsFullReplace(t *testing.T) {
	env := newTestEnv(t)
	x, y, z := env.tag(t, "X"), env.tag(t, "Y"), env.tag(t, "Z")
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateInput{
		Title: "tagged", Author: domain.PersonMann, Assignee: domain.AssigneeMann,
		Priority: domain.PriorityB, TagIDs: []string{x.ID, y.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(task.Tags) != 2 {
		t.Fatalf("tags %+v", task.Tags)
	}
	task, err = env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{TagIDs: tagsPtr(z.ID)}, domain.PersonMann)
	if err != nil {
		t.Fatal(err)
	}
	if len(task.Tags) != 1 || task.Tags[0].ID != z.ID {
		t.Fatalf("tags %+v, want only Z", task.Tags)
	}
	task, err = env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{TagIDs: tagsPtr()}, domain.PersonMann)
	if err != nil || len(task.Tags) != 0 {
		t.Fatalf("clear tags: %+v %v", task.Tags, err)
	}
}

func TestRejectedPatchLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "keep", domain.PersonMann)
	before := env.countActivities(t)
	bad := domain.Assignee("NIEMAND")

	rejects := []struct {
		id    string
		patch domain.Patch
		code  domain.ErrorCode
	}{
		{"missing", domain.Patch{Done: boolPtr(true)}, domain.ErrCodeNotFound},
		{task.ID, domain.Patch{Title: strPtr("   ")}, domain.ErrCodeValidation},
		{task.ID, domain.Patch{Assignee: &bad}, domain.ErrCodeValidation},
		{task.ID, domain.Patch{}, domain.ErrCodeValidation},
		{task.ID, domain.Patch{Title: strPtr("new"), TagIDs: tagsPtr("ghost")}, domain.ErrCodeValidation},
	}
	for i, r := range rejects {
		_, err := env.Engine.ApplyPatch(env.Ctx, r.id, r.patch, domain.PersonMann)
		if !domain.IsCode(err, r.code) {
			t.Fatalf("case %d: got %v, want %s", i, err, r.code)
		}
	}
	if _, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Done: boolPtr(true)}, "KIND"); !domain.IsCode(err, domain.ErrCodeValidation) {
		t.Fatalf("invalid actor accepted: %v", err)
	}
	if n := env.countActivities(t); n != before {
		t.Fatalf("rejected patches wrote %d activities", n-before)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || got.Title != "keep" || got.Version != task.Version {
		t.Fatalf("task changed: %+v %v", got, err)
	}
}

func TestExpectedVersion(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "v", domain.PersonMann)
	stale := task.Version

	if _, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Title: strPtr("v2"), ExpectedVersion: &stale}, domain.PersonMann); err != nil {
		t.Fatalf("first patch: %v", err)
	}
	_, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Title: strPtr("v3"), ExpectedVersion: &stale}, domain.PersonFrau)
	if !errors.Is(err, domain.ErrStaleVersion) {
		t.Fatalf("expected conflict, got %v", err)
	}
	// without a version the later write wins
	got, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Title: strPtr("v3")}, domain.PersonFrau)
	if err != nil || got.Title != "v3" {
		t.Fatalf("last write: %+v %v", got, err)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "x", domain.PersonMann)
	env.Engine.DB.Close()
	_, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Done: boolPtr(true)}, domain.PersonMann)
	if !domain.IsCode(err, domain.ErrCodeStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestFailedActivityAppendRollsBackPatch(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "keep", domain.PersonMann)
	before := env.countActivities(t)
	notes := len(env.Notifier.notes)

	if _, err := env.Engine.DB.Exec(`CREATE TRIGGER activities_fail BEFORE INSERT ON activities
BEGIN SELECT RAISE(ABORT, 'boom'); END`); err != nil {
		t.Fatalf("install trigger: %v", err)
	}
	_, err := env.Engine.ApplyPatch(env.Ctx, task.ID, domain.Patch{Title: strPtr("changed"), Done: boolPtr(true)}, domain.PersonFrau)
	if !domain.IsCode(err, domain.ErrCodeStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Title != "keep" || got.Done || got.CompletedAt != nil || got.CompletedBy != nil {
		t.Fatalf("partial write visible: %+v", got)
	}
	if got.Version != task.Version {
		t.Fatalf("version moved from %d to %d", task.Version, got.Version)
	}
	if n := env.countActivities(t); n != before {
		t.Fatalf("expected %d activities, got %d", before, n)
	}
	if len(env.Notifier.notes) != notes {
		t.Fatalf("failed patch must not notify")
	}
}
