package view

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tandem/internal/domain"
)

var (
	berlin, _ = time.LoadLocation("Europe/Berlin")
	now       = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
)

func at(hoursAgo int) time.Time { return now.Add(-time.Duration(hoursAgo) * time.Hour) }

func deadline(t time.Time) *time.Time { return &t }

func task(id string, assignee domain.Assignee, created time.Time) domain.Task {
	return domain.Task{
		ID:        id,
		Title:     id,
		Author:    domain.PersonMann,
		Assignee:  assignee,
		Priority:  domain.PriorityB,
		CreatedAt: created,
		Tags:      []domain.Tag{},
	}
}

func ids(views []TaskView) []string {
	res := make([]string, 0, len(views))
	for _, v := range views {
		res = append(res, v.ID)
	}
	return res
}

func TestActiveSortOrder(t *testing.T) {
	plain := task("plain", domain.AssigneeBoth, at(1))
	older := task("older", domain.AssigneeBoth, at(5))
	overdue := task("overdue", domain.AssigneeBoth, at(2))
	overdue.Deadline = deadline(now.AddDate(0, 0, -3))
	pinned := task("pinned", domain.AssigneeBoth, at(10))
	pinned.Pinned = true
	pinnedOverdue := task("pinned-overdue", domain.AssigneeBoth, at(20))
	pinnedOverdue.Pinned = true
	pinnedOverdue.Deadline = deadline(now.AddDate(0, 0, -1))
	done := task("done", domain.AssigneeBoth, at(0))
	done.Done = true

	got := Active([]domain.Task{plain, older, overdue, pinned, pinnedOverdue, done}, Query{Requester: domain.PersonMann, Scope: ScopeAll}, now, time.UTC)

	assert.Equal(t, []string{"pinned-overdue", "pinned", "overdue", "plain", "older"}, ids(got))
	assert.True(t, got[0].Overdue)
	assert.False(t, got[1].Overdue)
}

func TestActiveSortIsStableForTies(t *testing.T) {
	a := task("a", domain.AssigneeBoth, now)
	b := task("b", domain.AssigneeBoth, now)
	c := task("c", domain.AssigneeBoth, now)
	got := Active([]domain.Task{a, b, c}, Query{Requester: domain.PersonFrau, Scope: ScopeAll}, now, time.UTC)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestScopeMine(t *testing.T) {
	tasks := []domain.Task{
		task("mann", domain.AssigneeMann, at(1)),
		task("frau", domain.AssigneeFrau, at(2)),
		task("both", domain.AssigneeBoth, at(3)),
	}
	for _, p := range domain.People {
		got := Active(tasks, Query{Requester: p, Scope: ScopeMine}, now, time.UTC)
		for _, v := range got {
			assert.True(t, v.Assignee.Includes(p), "%s sees %s", p, v.ID)
			assert.NotEqual(t, domain.Assignee(p.Other()), v.Assignee)
		}
		assert.Len(t, got, 2)
	}
	assert.Len(t, Active(tasks, Query{Requester: domain.PersonMann, Scope: ScopeAll}, now, time.UTC), 3)
}

func TestTagFilter(t *testing.T) {
	x := domain.Tag{ID: "x", Name: "Haushalt"}
	tagged := task("tagged", domain.AssigneeBoth, at(1))
	tagged.Tags = []domain.Tag{x}
	bare := task("bare", domain.AssigneeBoth, at(2))
	tasks := []domain.Task{tagged, bare}
	q := Query{Requester: domain.PersonMann, Scope: ScopeAll}

	q.Tag = TagUntagged
	assert.Equal(t, []string{"bare"}, ids(Active(tasks, q, now, time.UTC)))
	q.Tag = "x"
	assert.Equal(t, []string{"tagged"}, ids(Active(tasks, q, now, time.UTC)))
	q.Tag = "nope"
	assert.Empty(t, Active(tasks, q, now, time.UTC))
}

func TestProjectCounts(t *testing.T) {
	open := task("open", domain.AssigneeMann, at(1))
	done := task("done", domain.AssigneeMann, at(2))
	done.Done = true
	other := task("other", domain.AssigneeFrau, at(3))
	other.Done = true

	list := Project([]domain.Task{open, done, other}, Query{Requester: domain.PersonMann, Scope: ScopeMine}, now, time.UTC)
	assert.Equal(t, Counts{Open: 1, Done: 1}, list.Counts)
	assert.Len(t, list.Tasks, 1)
}

func TestIsOverdue(t *testing.T) {
	yesterday := task("y", domain.AssigneeMann, at(48))
	yesterday.Deadline = deadline(now.AddDate(0, 0, -1))
	assert.True(t, IsOverdue(yesterday, now, time.UTC))

	yesterday.Done = true
	assert.False(t, IsOverdue(yesterday, now, time.UTC))

	today := task("t", domain.AssigneeMann, at(48))
	today.Deadline = deadline(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	assert.False(t, IsOverdue(today, now, time.UTC), "deadline today is not overdue")

	none := task("n", domain.AssigneeMann, at(48))
	assert.False(t, IsOverdue(none, now, time.UTC))
}

func TestIsOverdueUsesLocationCalendar(t *testing.T) {
	require.NotNil(t, berlin)
	// 23:30 UTC on the 9th is already the 10th in Berlin.
	late := task("late", domain.AssigneeMann, at(48))
	late.Deadline = deadline(time.Date(2024, 5, 9, 23, 30, 0, 0, time.UTC))
	assert.True(t, IsOverdue(late, now, time.UTC))
	assert.False(t, IsOverdue(late, now, berlin))
}

func TestRecommendPriority(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want domain.Priority
	}{
		{"past", now.Add(-24 * time.Hour), domain.PriorityA},
		{"tomorrow", now.Add(24 * time.Hour), domain.PriorityA},
		{"two days", now.Add(48 * time.Hour), domain.PriorityA},
		{"just over two days", now.Add(49 * time.Hour), domain.PriorityB},
		{"one week", now.AddDate(0, 0, 7), domain.PriorityB},
		{"eight days", now.AddDate(0, 0, 8), domain.PriorityC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RecommendPriority(tc.in, now))
		})
	}
}

func TestParseScope(t *testing.T) {
	assert.Equal(t, ScopeAll, ParseScope("all"))
	assert.Equal(t, ScopeAll, ParseScope(" ALL "))
	assert.Equal(t, ScopeMine, ParseScope(""))
	assert.Equal(t, ScopeMine, ParseScope("whatever"))
}

func TestTicker(t *testing.T) {
	label := func(p domain.Person) string {
		if p == domain.PersonFrau {
			return "Frau"
		}
		return "Mann"
	}

	empty := Ticker(nil, label, LocaleDE)
	assert.True(t, empty.Empty)
	assert.Equal(t, "Noch keine Aktivität. Entweder sehr ruhig oder der Server schläft noch.", empty.Text)

	rec := &domain.ActivityRecord{ID: 7, CreatedAt: now, Type: domain.ActivityCompleted, Actor: domain.PersonFrau, Title: "Müll"}
	got := Ticker(rec, label, LocaleDE)
	assert.False(t, got.Empty)
	assert.Equal(t, int64(7), got.ActivityID)
	assert.Equal(t, "Frau hat „Müll“ erledigt", got.Text)

	assert.Equal(t, "Frau completed “Müll”", Sentence(*rec, label, LocaleEN))
	assert.Equal(t, "Frau hat „Müll“ erledigt", Sentence(*rec, label, Locale("fr")))
}

func TestSentenceCoversEveryType(t *testing.T) {
	types := []domain.ActivityType{
		domain.ActivityAdded, domain.ActivityCompleted, domain.ActivityReopened,
		domain.ActivityEdited, domain.ActivityPinned, domain.ActivityUnpinned,
	}
	for _, locale := range []Locale{LocaleDE, LocaleEN} {
		seen := map[string]bool{}
		for _, typ := range types {
			s := Sentence(domain.ActivityRecord{Type: typ, Actor: domain.PersonMann, Title: "x"}, nil, locale)
			assert.Contains(t, s, "MANN")
			assert.False(t, seen[s], "duplicate wording for %s", typ)
			seen[s] = true
		}
	}
}
