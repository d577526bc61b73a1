package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"tandem/internal/auth"
	"tandem/internal/domain"
)

const personHeader = "X-Person"

type AuthConfig struct {
	// JWTSecret switches identity to verified bearer tokens. When empty the
	// X-Person header or the person query parameter names the requester.
	JWTSecret string
	Logger    *zap.Logger
}

type identity struct {
	Person domain.Person
	Source string
}

type identityKey struct{}

func withIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}

// requester returns the calling person or a 400 when none was named.
func requester(ctx context.Context) (domain.Person, error) {
	if id, ok := identityFromContext(ctx); ok && id.Person.Valid() {
		return id.Person, nil
	}
	return "", newAPIError(http.StatusBadRequest, "validation", "missing or invalid person",
		map[string]any{"field": "person", "header": personHeader})
}

func newIdentityMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):          true,
		path.Join(basePath, "push/public-key"): true,
		path.Join(basePath, "openapi.json"):    true,
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if cfg.JWTSecret == "" {
				raw := strings.TrimSpace(req.Header.Get(personHeader))
				if raw == "" {
					raw = req.URL.Query().Get("person")
				}
				if raw != "" {
					person, err := domain.ParsePerson(raw)
					if err != nil {
						respondStatusError(w, newAPIError(http.StatusBadRequest, "validation", err.Error(), map[string]any{"field": "person"}))
						return
					}
					req = req.WithContext(withIdentity(req.Context(), identity{Person: person, Source: "header"}))
				}
				next.ServeHTTP(w, req)
				return
			}

			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := auth.BearerToken(strings.TrimSpace(req.Header.Get("Authorization")))
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "bearer token required", nil))
				return
			}
			person, err := auth.ParseToken(cfg.JWTSecret, token)
			if err != nil {
				log.Debug("rejected token", zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), identity{Person: person, Source: "jwt"})))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
