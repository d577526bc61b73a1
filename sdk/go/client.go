package tandemsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal tandem HTTP API client.
type Client struct {
	BaseURL string
	// BasePath defaults to /api.
	BasePath string
	// Person names the requester when the server runs without tokens.
	Person      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, person string) *Client {
	return &Client{
		BaseURL: baseURL,
		Person:  person,
		Timeout: 10 * time.Second,
	}
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task represents the API task model.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"created_at"`
	Author      string     `json:"author"`
	Assignee    string     `json:"assignee"`
	Priority    string     `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Pinned      bool       `json:"pinned"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy *string    `json:"completed_by,omitempty"`
	Tags        []Tag      `json:"tags"`
	Version     int64      `json:"version"`
	Overdue     bool       `json:"overdue"`
}

type TaskList struct {
	Tasks  []Task `json:"tasks"`
	Counts struct {
		Open int `json:"open"`
		Done int `json:"done"`
	} `json:"counts"`
}

// Activity is one audit record.
type Activity struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	TodoID    string    `json:"todo_id,omitempty"`
	Title     string    `json:"title"`
}

type Ticker struct {
	ActivityID int64      `json:"activity_id"`
	Text       string     `json:"text"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	Empty      bool       `json:"empty"`
}

// CreateTask describes a new task. Deadline accepts RFC 3339 or YYYY-MM-DD.
type CreateTask struct {
	Title    string   `json:"title"`
	Assignee string   `json:"assignee"`
	Priority string   `json:"priority"`
	Deadline string   `json:"deadline,omitempty"`
	TagIDs   []string `json:"tag_ids,omitempty"`
}

// Patch is a sparse update; only set entries are sent. ClearDeadline sends
// an explicit null.
type Patch struct {
	Done            *bool
	Title           *string
	Assignee        *string
	Priority        *string
	Deadline        *string
	ClearDeadline   bool
	Pinned          *bool
	TagIDs          *[]string
	ExpectedVersion *int64
}

func (p Patch) body() map[string]any {
	body := map[string]any{}
	if p.Done != nil {
		body["done"] = *p.Done
	}
	if p.Title != nil {
		body["title"] = *p.Title
	}
	if p.Assignee != nil {
		body["assignee"] = *p.Assignee
	}
	if p.Priority != nil {
		body["priority"] = *p.Priority
	}
	switch {
	case p.ClearDeadline:
		body["deadline"] = nil
	case p.Deadline != nil:
		body["deadline"] = *p.Deadline
	}
	if p.Pinned != nil {
		body["pinned"] = *p.Pinned
	}
	if p.TagIDs != nil {
		body["tag_ids"] = *p.TagIDs
	}
	if p.ExpectedVersion != nil {
		body["expected_version"] = *p.ExpectedVersion
	}
	return body
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Tasks returns the requester's active list. Empty scope means "mine".
func (c *Client) Tasks(ctx context.Context, scope, tag string) (TaskList, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", scope)
	}
	if tag != "" {
		q.Set("tag", tag)
	}
	var resp TaskList
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q), nil, &resp)
	return resp, err
}

// CreateTask creates a task authored by the requester.
func (c *Client) CreateTask(ctx context.Context, in CreateTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

// UpdateTask applies a sparse patch as the requester.
func (c *Client) UpdateTask(ctx context.Context, id string, p Patch) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), p.body(), &resp)
	return resp, err
}

// Completed returns the most recently finished tasks.
func (c *Client) Completed(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "completed", nil, &resp)
	return resp, err
}

// LatestActivity returns nil when nothing has happened yet.
func (c *Client) LatestActivity(ctx context.Context) (*Activity, error) {
	var resp struct {
		Activity *Activity `json:"activity"`
	}
	err := c.do(ctx, http.MethodGet, "activity", nil, &resp)
	return resp.Activity, err
}

func (c *Client) Ticker(ctx context.Context) (Ticker, error) {
	var resp Ticker
	err := c.do(ctx, http.MethodGet, "activity/ticker", nil, &resp)
	return resp, err
}

func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var resp []Tag
	err := c.do(ctx, http.MethodGet, "tags", nil, &resp)
	return resp, err
}

// RecommendPriority asks the server for the advisory priority of a deadline.
func (c *Client) RecommendPriority(ctx context.Context, deadline string) (string, error) {
	var resp struct {
		Priority string `json:"priority"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("priority/recommend", url.Values{"deadline": {deadline}}), nil, &resp)
	return resp.Priority, err
}

// Subscribe registers a browser push subscription. An empty person means
// the requester.
func (c *Client) Subscribe(ctx context.Context, person, endpoint, p256dh, auth string) error {
	body := map[string]any{
		"endpoint": endpoint,
		"keys":     map[string]string{"p256dh": p256dh, "auth": auth},
	}
	if person != "" {
		body["person"] = person
	}
	return c.do(ctx, http.MethodPost, "push/subscribe", body, nil)
}

// PublicKey returns the VAPID key, empty when push is disabled.
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"public_key"`
	}
	err := c.do(ctx, http.MethodGet, "push/public-key", nil, &resp)
	return resp.PublicKey, err
}

// Watch polls the latest activity every interval and calls fn whenever the
// record id changes. It returns when ctx is done.
func (c *Client) Watch(ctx context.Context, interval time.Duration, fn func(*Activity)) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	var last int64 = -1
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rec, err := c.LatestActivity(ctx)
		if err == nil {
			var id int64
			if rec != nil {
				id = rec.ID
			}
			if id != last {
				last = id
				fn(rec)
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		basePath = "api"
	}
	target := c.base() + "/" + basePath + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.Person != "":
		req.Header.Set("X-Person", c.Person)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
