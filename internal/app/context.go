package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tandem/internal/config"
	"tandem/internal/db"
	"tandem/internal/domain"
	"tandem/internal/engine"
	"tandem/internal/events"
	"tandem/internal/migrate"
	"tandem/internal/push"
	"tandem/internal/repo"
	"tandem/internal/server"
	"tandem/internal/view"
)

// App bundles the wired components for one workspace.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Engine    engine.Engine
	Projector view.Projector
	Push      *push.Dispatcher
	Logger    *zap.Logger
}

// Open opens the workspace database, applies migrations, seeds the configured
// tags and wires the engine to the push dispatcher.
func Open(ctx context.Context, workspace string, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace, BusyTimeout: cfg.Store.Timeout.Std()})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("schema ready", zap.Int("version", version))
	r := repo.Repo{DB: conn}
	if err := SeedTags(ctx, r, cfg.Tags); err != nil {
		conn.Close()
		return nil, err
	}

	sender := push.NewWebPushSender(push.VAPID{
		Subject:    cfg.Push.Subject,
		PublicKey:  cfg.Push.PublicKey,
		PrivateKey: cfg.Push.PrivateKey,
		TTL:        cfg.Push.TTL,
		Timeout:    cfg.Push.Timeout.Std(),
	})
	dispatcher := push.New(r, sender, push.Options{
		Timeout: cfg.Push.Timeout.Std(),
		Logger:  log.Named("push"),
	})
	if !dispatcher.Enabled() {
		log.Info("push disabled: VAPID keys not configured")
	}

	projector := view.Projector{
		Repo:    r,
		Log:     events.Log{DB: conn},
		Config:  cfg,
		Timeout: cfg.Store.Timeout.Std(),
	}
	eng := engine.New(conn, Notifier{Push: dispatcher, Projector: projector}, log.Named("engine"))
	if d := cfg.Store.Timeout.Std(); d > 0 {
		eng.StoreTimeout = d
	}

	return &App{
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Engine:    eng,
		Projector: projector,
		Push:      dispatcher,
		Logger:    log,
	}, nil
}

// SeedTags makes sure every configured tag name exists.
func SeedTags(ctx context.Context, r repo.Repo, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := r.UpsertTag(ctx, name); err != nil {
			return fmt.Errorf("seed tag %q: %w", name, err)
		}
	}
	return nil
}

// Handler returns the HTTP API for the app.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:    a.Engine,
		Projector: a.Projector,
		Push:      a.Push,
		PublicKey: a.Config.Push.PublicKey,
		BasePath:  a.Config.Server.BasePath,
		Auth:      server.AuthConfig{JWTSecret: a.Config.Auth.JWTSecret},
		Logger:    a.Logger.Named("http"),
	})
}

// Close waits for in-flight pushes, then closes the database.
func (a *App) Close() error {
	a.Push.Wait()
	return a.DB.Close()
}

// Notifier turns committed activity into a push for the other person.
type Notifier struct {
	Push      *push.Dispatcher
	Projector view.Projector
}

func (n Notifier) Notify(ctx context.Context, target domain.Person, rec domain.ActivityRecord, _ domain.Task) {
	n.Push.Notify(ctx, target, Message(n.Projector, target, rec))
}

// Message builds the push payload for rec addressed to target.
func Message(p view.Projector, target domain.Person, rec domain.ActivityRecord) push.Message {
	return push.Message{
		Title:      p.NotificationTitle(),
		Body:       p.Sentence(rec),
		URL:        "/" + target.Slug(),
		ActivityID: rec.ID,
	}
}
