package domain

import (
	"fmt"
	"strings"
	"time"
)

// Person is one of the two collaborating identities.
type Person string

const (
	PersonMann Person = "MANN"
	PersonFrau Person = "FRAU"
)

// People lists both identities in a stable order.
var People = []Person{PersonMann, PersonFrau}

func ParsePerson(v string) (Person, error) {
	switch p := Person(strings.ToUpper(strings.TrimSpace(v))); p {
	case PersonMann, PersonFrau:
		return p, nil
	}
	return "", Validation("person", fmt.Sprintf("invalid person %q", v))
}

func (p Person) Valid() bool {
	return p == PersonMann || p == PersonFrau
}

// Other returns the identity that is not p.
func (p Person) Other() Person {
	if p == PersonMann {
		return PersonFrau
	}
	return PersonMann
}

// Slug is the lower-case form used in page paths.
func (p Person) Slug() string {
	return strings.ToLower(string(p))
}

// Assignee is a Person or the shared "both" sentinel.
type Assignee string

const (
	AssigneeMann Assignee = Assignee(PersonMann)
	AssigneeFrau Assignee = Assignee(PersonFrau)
	AssigneeBoth Assignee = "BEIDE"
)

func ParseAssignee(v string) (Assignee, error) {
	switch a := Assignee(strings.ToUpper(strings.TrimSpace(v))); a {
	case AssigneeMann, AssigneeFrau, AssigneeBoth:
		return a, nil
	}
	return "", Validation("assignee", fmt.Sprintf("invalid assignee %q", v))
}

func (a Assignee) Valid() bool {
	return a == AssigneeMann || a == AssigneeFrau || a == AssigneeBoth
}

// Includes reports whether p is responsible for a task with this assignee.
func (a Assignee) Includes(p Person) bool {
	return a == AssigneeBoth || a == Assignee(p)
}

// Priority ranks urgency; A is the most urgent.
type Priority string

const (
	PriorityA Priority = "A"
	PriorityB Priority = "B"
	PriorityC Priority = "C"
)

func ParsePriority(v string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(v))); p {
	case PriorityA, PriorityB, PriorityC:
		return p, nil
	}
	return "", Validation("priority", fmt.Sprintf("invalid priority %q", v))
}

func (p Priority) Valid() bool {
	return p == PriorityA || p == PriorityB || p == PriorityC
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"created_at" format:"date-time"`
	Author      Person     `json:"author" enum:"MANN,FRAU"`
	Assignee    Assignee   `json:"assignee" enum:"MANN,FRAU,BEIDE"`
	Priority    Priority   `json:"priority" enum:"A,B,C"`
	Deadline    *time.Time `json:"deadline,omitempty" format:"date-time"`
	Pinned      bool       `json:"pinned"`
	CompletedAt *time.Time `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy *Person    `json:"completed_by,omitempty" enum:"MANN,FRAU"`
	Tags        []Tag      `json:"tags"`
	Version     int64      `json:"version"`
}

// HasTag reports whether the task carries the tag id.
func (t Task) HasTag(id string) bool {
	for _, tag := range t.Tags {
		if tag.ID == id {
			return true
		}
	}
	return false
}

// ActivityType names the kind of accepted mutation an activity describes.
type ActivityType string

const (
	ActivityAdded     ActivityType = "ADDED"
	ActivityCompleted ActivityType = "COMPLETED"
	ActivityReopened  ActivityType = "REOPENED"
	ActivityEdited    ActivityType = "EDITED"
	ActivityPinned    ActivityType = "PINNED"
	ActivityUnpinned  ActivityType = "UNPINNED"
)

type ActivityRecord struct {
	ID        int64        `json:"id"`
	CreatedAt time.Time    `json:"created_at" format:"date-time"`
	Type      ActivityType `json:"type" enum:"ADDED,COMPLETED,REOPENED,EDITED,PINNED,UNPINNED"`
	Actor     Person       `json:"actor" enum:"MANN,FRAU"`
	TodoID    string       `json:"todo_id,omitempty"`
	Title     string       `json:"title"`
}

type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	Person    Person    `json:"person" enum:"MANN,FRAU"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// ParseDeadline accepts RFC 3339 or a plain calendar date, which is read as
// midnight in loc. Blank input means no deadline.
func ParseDeadline(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return nil, Validation("deadline", fmt.Sprintf("invalid deadline %q", raw))
	}
	return &t, nil
}
