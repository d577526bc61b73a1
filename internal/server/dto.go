package server

import (
	"time"

	"tandem/internal/domain"
	"tandem/internal/view"
)

// Request payloads

type CreateTaskRequest struct {
	Title    string `json:"title" minLength:"1"`
	Assignee string `json:"assignee" enum:"MANN,FRAU,BEIDE"`
	Priority string `json:"priority" enum:"A,B,C"`
	// Deadline is RFC 3339 or a plain date (YYYY-MM-DD) in the configured timezone.
	Deadline *string  `json:"deadline,omitempty" nullable:"true"`
	TagIDs   []string `json:"tag_ids,omitempty"`
}

type UpdateTaskRequest struct {
	Done            *bool    `json:"done,omitempty"`
	Title           *string  `json:"title,omitempty"`
	Assignee        *string  `json:"assignee,omitempty" enum:"MANN,FRAU,BEIDE"`
	Priority        *string  `json:"priority,omitempty" enum:"A,B,C"`
	Deadline        *string  `json:"deadline,omitempty" nullable:"true"`
	Pinned          *bool    `json:"pinned,omitempty"`
	TagIDs          []string `json:"tag_ids,omitempty"`
	ExpectedVersion *int64   `json:"expected_version,omitempty"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type SubscribeRequest struct {
	Person   string           `json:"person,omitempty" enum:"MANN,FRAU"`
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// Response payloads

type TagResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TaskResponse struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Done        bool          `json:"done"`
	CreatedAt   time.Time     `json:"created_at" format:"date-time"`
	Author      string        `json:"author" enum:"MANN,FRAU"`
	Assignee    string        `json:"assignee" enum:"MANN,FRAU,BEIDE"`
	Priority    string        `json:"priority" enum:"A,B,C"`
	Deadline    *time.Time    `json:"deadline,omitempty" format:"date-time"`
	Pinned      bool          `json:"pinned"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy *string       `json:"completed_by,omitempty" enum:"MANN,FRAU"`
	Tags        []TagResponse `json:"tags"`
	Version     int64         `json:"version"`
	Overdue     bool          `json:"overdue"`
}

type CountsResponse struct {
	Open int `json:"open"`
	Done int `json:"done"`
}

type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Counts CountsResponse `json:"counts"`
}

type ActivityResponse struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
	Type      string    `json:"type" enum:"ADDED,COMPLETED,REOPENED,EDITED,PINNED,UNPINNED"`
	Actor     string    `json:"actor" enum:"MANN,FRAU"`
	TodoID    string    `json:"todo_id,omitempty"`
	Title     string    `json:"title"`
}

type LatestActivityResponse struct {
	Activity *ActivityResponse `json:"activity"`
}

type TickerResponse struct {
	ActivityID int64      `json:"activity_id"`
	Text       string     `json:"text"`
	CreatedAt  *time.Time `json:"created_at,omitempty" format:"date-time"`
	Empty      bool       `json:"empty"`
}

type PriorityResponse struct {
	Priority string `json:"priority" enum:"A,B,C"`
}

type SubscriptionResponse struct {
	Endpoint string `json:"endpoint"`
	Person   string `json:"person" enum:"MANN,FRAU"`
}

type PublicKeyResponse struct {
	Enabled   bool   `json:"enabled"`
	PublicKey string `json:"public_key"`
}

func mapTags(items []domain.Tag) []TagResponse {
	out := make([]TagResponse, 0, len(items))
	for _, t := range items {
		out = append(out, TagResponse{ID: t.ID, Name: t.Name})
	}
	return out
}

func taskResponse(t domain.Task, overdue bool) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Done:        t.Done,
		CreatedAt:   t.CreatedAt,
		Author:      string(t.Author),
		Assignee:    string(t.Assignee),
		Priority:    string(t.Priority),
		Deadline:    t.Deadline,
		Pinned:      t.Pinned,
		CompletedAt: t.CompletedAt,
		Tags:        mapTags(t.Tags),
		Version:     t.Version,
		Overdue:     overdue,
	}
	if t.CompletedBy != nil {
		by := string(*t.CompletedBy)
		resp.CompletedBy = &by
	}
	return resp
}

func taskListResponse(list view.TaskList) TaskListResponse {
	out := TaskListResponse{
		Tasks:  make([]TaskResponse, 0, len(list.Tasks)),
		Counts: CountsResponse{Open: list.Counts.Open, Done: list.Counts.Done},
	}
	for _, tv := range list.Tasks {
		out.Tasks = append(out.Tasks, taskResponse(tv.Task, tv.Overdue))
	}
	return out
}

func activityResponse(rec domain.ActivityRecord) ActivityResponse {
	return ActivityResponse{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		Type:      string(rec.Type),
		Actor:     string(rec.Actor),
		TodoID:    rec.TodoID,
		Title:     rec.Title,
	}
}

func tickerResponse(tv view.TickerView) TickerResponse {
	return TickerResponse{
		ActivityID: tv.ActivityID,
		Text:       tv.Text,
		CreatedAt:  tv.CreatedAt,
		Empty:      tv.Empty,
	}
}
