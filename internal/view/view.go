// Package view derives what one person sees from the stored tasks and activity.
// Everything except Projector is a pure function of its arguments.
package view

import (
	"math"
	"sort"
	"strings"
	"time"

	"tandem/internal/domain"
)

type Scope string

const (
	ScopeMine Scope = "mine"
	ScopeAll  Scope = "all"
)

// ParseScope accepts "all"; anything else falls back to "mine".
func ParseScope(v string) Scope {
	if strings.EqualFold(strings.TrimSpace(v), string(ScopeAll)) {
		return ScopeAll
	}
	return ScopeMine
}

// TagUntagged selects tasks without any tag.
const TagUntagged = "untagged"

type Query struct {
	Requester domain.Person
	Scope     Scope
	// Tag is empty for no filter, TagUntagged, or a tag id.
	Tag string
}

type TaskView struct {
	domain.Task
	Overdue bool `json:"overdue"`
}

type Counts struct {
	Open int `json:"open"`
	Done int `json:"done"`
}

type TaskList struct {
	Tasks  []TaskView `json:"tasks"`
	Counts Counts     `json:"counts"`
}

// Matches applies the scope and tag filters.
func (q Query) Matches(t domain.Task) bool {
	if q.Scope != ScopeAll && !t.Assignee.Includes(q.Requester) {
		return false
	}
	switch q.Tag {
	case "":
		return true
	case TagUntagged:
		return len(t.Tags) == 0
	default:
		return t.HasTag(q.Tag)
	}
}

// Active filters tasks, drops finished ones and sorts: pinned first, then
// overdue, then newest. Ties keep their input order.
func Active(tasks []domain.Task, q Query, now time.Time, loc *time.Location) []TaskView {
	return Project(tasks, q, now, loc).Tasks
}

// Project is Active plus the open/done counts for the same filter.
func Project(tasks []domain.Task, q Query, now time.Time, loc *time.Location) TaskList {
	list := TaskList{Tasks: []TaskView{}}
	for _, t := range tasks {
		if !q.Matches(t) {
			continue
		}
		if t.Done {
			list.Counts.Done++
			continue
		}
		list.Counts.Open++
		list.Tasks = append(list.Tasks, TaskView{Task: t, Overdue: IsOverdue(t, now, loc)})
	}
	sort.SliceStable(list.Tasks, func(i, j int) bool {
		return less(list.Tasks[i], list.Tasks[j])
	})
	return list
}

func less(a, b TaskView) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	if a.Overdue != b.Overdue {
		return a.Overdue
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// IsOverdue compares calendar dates in loc: the deadline's day must be
// strictly before today. Finished tasks are never overdue.
func IsOverdue(t domain.Task, now time.Time, loc *time.Location) bool {
	if t.Done || t.Deadline == nil {
		return false
	}
	if loc == nil {
		loc = time.Local
	}
	return dateOf(*t.Deadline, loc).Before(dateOf(now, loc))
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// RecommendPriority suggests a priority from the days left until deadline,
// rounded up: two days or less is A, a week or less is B.
func RecommendPriority(deadline, now time.Time) domain.Priority {
	days := math.Ceil(deadline.Sub(now).Hours() / 24)
	switch {
	case days <= 2:
		return domain.PriorityA
	case days <= 7:
		return domain.PriorityB
	default:
		return domain.PriorityC
	}
}
