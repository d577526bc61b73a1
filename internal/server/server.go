package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tandem/internal/domain"
	"tandem/internal/engine"
	"tandem/internal/logger"
	"tandem/internal/push"
	"tandem/internal/view"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    engine.Engine
	Projector view.Projector
	Push      *push.Dispatcher
	// PublicKey is the VAPID key handed to browsers; empty when push is off.
	PublicKey string
	BasePath  string
	Auth      AuthConfig
	Logger    *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation"`
	Message string         `json:"message" example:"title must not be empty"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"title\"}"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the task API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Push == nil {
		return nil, errors.New("push dispatcher required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		code := ""
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
			code = "validation"
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, code, msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Logger))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(data))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, data)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newIdentityMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Tandem API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTasks(group, cfg)
	registerCompleted(group, cfg)
	registerActivity(group, cfg)
	registerTags(group, cfg)
	registerPriority(group, cfg)
	registerPush(group, cfg)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := logger.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.WithRequestID(ctx, base).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps coded domain errors onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var dErr *domain.Error
	if !errors.As(err, &dErr) {
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
	var details map[string]any
	if dErr.Field != "" {
		details = map[string]any{"field": dErr.Field}
	}
	switch dErr.Code {
	case domain.ErrCodeValidation:
		return newAPIError(http.StatusBadRequest, "validation", dErr.Message, details)
	case domain.ErrCodeNotFound:
		return newAPIError(http.StatusNotFound, "not_found", dErr.Error(), details)
	case domain.ErrCodeConflict:
		return newAPIError(http.StatusConflict, "conflict", dErr.Message, details)
	case domain.ErrCodeStoreUnavailable:
		return newAPIError(http.StatusServiceUnavailable, "store_unavailable", "store unavailable, retry", map[string]any{"op": dErr.Message})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", dErr.Error(), details)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation"
	case http.StatusServiceUnavailable:
		return "store_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		spec []byte
		once sync.Once
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ErrorEnvelope"},
					},
				},
			}
		}
	}
	if oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	oas.Components.Schemas.Map()["ErrorEnvelope"] = &huma.Schema{
		Type: huma.TypeObject,
		Properties: map[string]*huma.Schema{
			"error": {
				Type: huma.TypeObject,
				Properties: map[string]*huma.Schema{
					"code":    {Type: huma.TypeString},
					"message": {Type: huma.TypeString},
					"details": {Type: huma.TypeObject},
				},
				Required: []string{"code", "message"},
			},
		},
		Required: []string{"error"},
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "Active tasks for the requester",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Scope string `query:"scope" enum:"mine,all" default:"mine"`
		Tag   string `query:"tag"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		person, err := requester(ctx)
		if err != nil {
			return nil, err
		}
		list, err := cfg.Projector.Tasks(ctx, view.Query{
			Requester: person,
			Scope:     view.ParseScope(input.Scope),
			Tag:       strings.TrimSpace(input.Tag),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: taskListResponse(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		author, err := requester(ctx)
		if err != nil {
			return nil, err
		}
		in := engine.CreateInput{
			Title:    input.Body.Title,
			Author:   author,
			Assignee: domain.Assignee(input.Body.Assignee),
			Priority: domain.Priority(input.Body.Priority),
			TagIDs:   input.Body.TagIDs,
		}
		if input.Body.Deadline != nil {
			dl, err := domain.ParseDeadline(*input.Body.Deadline, cfg.Projector.Location())
			if err != nil {
				return nil, handleError(err)
			}
			in.Deadline = dl
		}
		task, err := cfg.Engine.CreateTask(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: cfg.taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Apply a sparse patch to a task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, err := requester(ctx)
		if err != nil {
			return nil, err
		}
		patch, err := patchFromRequest(ctx, input.Body, cfg.Projector.Location())
		if err != nil {
			return nil, handleError(err)
		}
		task, err := cfg.Engine.ApplyPatch(ctx, input.ID, patch, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: cfg.taskResponse(task)}, nil
	})
}

// patchFromRequest keeps absent fields absent and turns an explicit
// "deadline": null into a clear.
func patchFromRequest(ctx context.Context, body UpdateTaskRequest, loc *time.Location) (domain.Patch, error) {
	bodyMap := rawBodyMap(ctx)
	p := domain.Patch{
		Done:            body.Done,
		Title:           body.Title,
		Pinned:          body.Pinned,
		ExpectedVersion: body.ExpectedVersion,
	}
	if body.Assignee != nil {
		a := domain.Assignee(*body.Assignee)
		p.Assignee = &a
	}
	if body.Priority != nil {
		pr := domain.Priority(*body.Priority)
		p.Priority = &pr
	}
	if raw, ok := bodyMap["deadline"]; ok {
		p.Deadline.Set = true
		if !isNullRaw(raw) && body.Deadline != nil {
			dl, err := domain.ParseDeadline(*body.Deadline, loc)
			if err != nil {
				return p, err
			}
			p.Deadline.Value = dl
		}
	}
	if raw, ok := bodyMap["tag_ids"]; ok {
		if isNullRaw(raw) {
			return p, domain.Validation("tag_ids", "tag_ids must be array")
		}
		ids := body.TagIDs
		if ids == nil {
			ids = []string{}
		}
		p.TagIDs = &ids
	}
	return p, nil
}

func (cfg Config) taskResponse(t domain.Task) TaskResponse {
	return taskResponse(t, cfg.Projector.Overdue(t))
}

func registerCompleted(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-completed",
		Method:      http.MethodGet,
		Path:        "/completed",
		Summary:     "Most recently completed tasks",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		tasks, err := cfg.Projector.Completed(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]TaskResponse, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, cfg.taskResponse(t))
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerActivity(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "latest-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Latest committed activity record",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body LatestActivityResponse `json:"body"`
	}, error) {
		rec, err := cfg.Projector.Latest(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := LatestActivityResponse{}
		if rec != nil {
			a := activityResponse(*rec)
			resp.Activity = &a
		}
		return &struct {
			Body LatestActivityResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-ticker",
		Method:      http.MethodGet,
		Path:        "/activity/ticker",
		Summary:     "Latest activity rendered as a sentence",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TickerResponse `json:"body"`
	}, error) {
		tv, err := cfg.Projector.Ticker(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TickerResponse `json:"body"`
		}{Body: tickerResponse(tv)}, nil
	})
}

func registerTags(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tags",
		Method:      http.MethodGet,
		Path:        "/tags",
		Summary:     "Tags ordered by name",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TagResponse `json:"body"`
	}, error) {
		tags, err := cfg.Projector.Tags(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TagResponse `json:"body"`
		}{Body: mapTags(tags)}, nil
	})
}

func registerPriority(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "recommend-priority",
		Method:      http.MethodGet,
		Path:        "/priority/recommend",
		Summary:     "Suggest a priority for a deadline",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Deadline string `query:"deadline" required:"true"`
	}) (*struct {
		Body PriorityResponse `json:"body"`
	}, error) {
		dl, err := domain.ParseDeadline(input.Deadline, cfg.Projector.Location())
		if err != nil {
			return nil, handleError(err)
		}
		if dl == nil {
			return nil, handleError(domain.Validation("deadline", "deadline required"))
		}
		return &struct {
			Body PriorityResponse `json:"body"`
		}{Body: PriorityResponse{Priority: string(cfg.Projector.Recommend(*dl))}}, nil
	})
}

func registerPush(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "push-subscribe",
		Method:        http.MethodPost,
		Path:          "/push/subscribe",
		Summary:       "Register a device for push notifications",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body SubscribeRequest `json:"body"`
	}) (*struct {
		Body SubscriptionResponse `json:"body"`
	}, error) {
		person := domain.Person(input.Body.Person)
		if person == "" {
			p, err := requester(ctx)
			if err != nil {
				return nil, err
			}
			person = p
		}
		sub, err := cfg.Push.Subscribe(ctx, person, push.SubscriptionInput{
			Endpoint: input.Body.Endpoint,
			P256dh:   input.Body.Keys.P256dh,
			Auth:     input.Body.Keys.Auth,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubscriptionResponse `json:"body"`
		}{Body: SubscriptionResponse{Endpoint: sub.Endpoint, Person: string(sub.Person)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "push-public-key",
		Method:      http.MethodGet,
		Path:        "/push/public-key",
		Summary:     "VAPID application server key",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PublicKeyResponse `json:"body"`
	}, error) {
		resp := PublicKeyResponse{Enabled: cfg.Push.Enabled()}
		if resp.Enabled {
			resp.PublicKey = cfg.PublicKey
		}
		return &struct {
			Body PublicKeyResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}
