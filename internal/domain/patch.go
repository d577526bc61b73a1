package domain

import (
	"strings"
	"time"
)

// OptionalTime separates "not supplied" from an explicit null.
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

// Patch is a sparse task mutation; nil fields are left untouched.
type Patch struct {
	Done     *bool
	Title    *string
	Assignee *Assignee
	Priority *Priority
	Deadline OptionalTime
	Pinned   *bool
	TagIDs   *[]string

	// ExpectedVersion, when set, rejects the patch if the task moved on.
	ExpectedVersion *int64
}

func (p Patch) Empty() bool {
	return p.Done == nil && p.Title == nil && p.Assignee == nil && p.Priority == nil &&
		!p.Deadline.Set && p.Pinned == nil && p.TagIDs == nil
}

// Normalize trims the title and checks enumerated fields.
func (p Patch) Normalize() (Patch, error) {
	if p.Empty() {
		return p, Validation("patch", "patch has no fields")
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return p, Validation("title", "title must not be empty")
		}
		p.Title = &title
	}
	if p.Assignee != nil && !p.Assignee.Valid() {
		return p, Validation("assignee", "invalid assignee "+string(*p.Assignee))
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return p, Validation("priority", "invalid priority "+string(*p.Priority))
	}
	return p, nil
}

// ActivityType picks the single activity recorded for the patch:
// done wins over pinned, which wins over any other edit.
func (p Patch) ActivityType() ActivityType {
	switch {
	case p.Done != nil && *p.Done:
		return ActivityCompleted
	case p.Done != nil:
		return ActivityReopened
	case p.Pinned != nil && *p.Pinned:
		return ActivityPinned
	case p.Pinned != nil:
		return ActivityUnpinned
	default:
		return ActivityEdited
	}
}
