package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tandem/internal/app"
	"tandem/internal/auth"
	"tandem/internal/config"
	"tandem/internal/db"
	"tandem/internal/domain"
	"tandem/internal/engine"
	"tandem/internal/logger"
	"tandem/internal/push"
	"tandem/internal/view"
	tandemsdk "tandem/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Tandem shared todo list",
	Long: `Tandem keeps one todo list for two people, MANN and FRAU.
Every change is written together with an activity record, and the other
person gets a push notification about it.
- Tasks: a title, an assignee (MANN, FRAU or BEIDE), a priority A-C, an optional deadline and tags.
- Activity: the append-only log behind the ticker; 'td activity ticker' shows the newest entry.
- Identity: pass --as MANN|FRAU (or TANDEM_AS) for commands that change something.
- Workspace: tandem.yml, .env and the .tandem database live in the workspace directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TANDEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "acting person (MANN or FRAU)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(completedCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(priorityCmd())
	rootCmd.AddCommand(pushCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write tandem.yml and create the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s already exists, keeping it\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("database ready at %s\n", db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing tandem.yml")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr != "" {
					a.Config.Server.Addr = addr
				}
				if basePath != "" {
					a.Config.Server.BasePath = basePath
				}
				handler, err := a.Handler()
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: a.Config.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving tandem api",
					zap.String("addr", a.Config.Server.Addr),
					zap.String("base_path", a.Config.Server.BasePath),
					zap.Bool("push", a.Push.Enabled()),
					zap.Bool("jwt", a.Config.Auth.JWTSecret != ""))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from tandem.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from tandem.yml)")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks belong to MANN, FRAU or BEIDE. Each change records one activity and notifies the other person.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskEditCmd())
	task.AddCommand(taskFlagCmd("done", "Mark a task done", func(p *domain.Patch) { p.Done = boolPtr(true) }))
	task.AddCommand(taskFlagCmd("reopen", "Reopen a finished task", func(p *domain.Patch) { p.Done = boolPtr(false) }))
	task.AddCommand(taskFlagCmd("pin", "Pin a task to the top", func(p *domain.Patch) { p.Pinned = boolPtr(true) }))
	task.AddCommand(taskFlagCmd("unpin", "Unpin a task", func(p *domain.Patch) { p.Pinned = boolPtr(false) }))
	return task
}

func taskListCmd() *cobra.Command {
	var scope, tag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active tasks for a person",
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := actingPerson()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if tag != "" && tag != view.TagUntagged {
					ids, err := resolveTags(ctx, a, []string{tag})
					if err != nil {
						return err
					}
					tag = ids[0]
				}
				list, err := a.Projector.Tasks(ctx, view.Query{
					Requester: person,
					Scope:     view.ParseScope(scope),
					Tag:       tag,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				printTasks(a, list.Tasks)
				fmt.Printf("%d open, %d done\n", list.Counts.Open, list.Counts.Done)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "mine", "mine or all")
	cmd.Flags().StringVar(&tag, "tag", "", "tag id or name, or 'untagged'")
	return cmd
}

func taskAddCmd() *cobra.Command {
	var title, assignee, priority, deadline string
	var tags []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := actingPerson()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				in := engine.CreateInput{
					Title:    title,
					Author:   person,
					Assignee: domain.Assignee(strings.ToUpper(assignee)),
					Priority: domain.Priority(strings.ToUpper(priority)),
				}
				if assignee == "" {
					in.Assignee = domain.Assignee(person)
				}
				if deadline != "" {
					dl, err := domain.ParseDeadline(deadline, a.Projector.Location())
					if err != nil {
						return err
					}
					in.Deadline = dl
					if !cmd.Flags().Changed("priority") {
						in.Priority = a.Projector.Recommend(*dl)
					}
				}
				ids, err := resolveTags(ctx, a, tags)
				if err != nil {
					return err
				}
				in.TagIDs = ids
				t, err := a.Engine.CreateTask(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&assignee, "assignee", "", "MANN, FRAU or BEIDE (defaults to the acting person)")
	cmd.Flags().StringVar(&priority, "priority", "B", "A, B or C (suggested from --deadline when omitted)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "tag id or name (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskEditCmd() *cobra.Command {
	var title, assignee, priority, deadline string
	var tags []string
	var clearDeadline, clearTags bool
	var expected int64
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := actingPerson()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var p domain.Patch
				if cmd.Flags().Changed("title") {
					p.Title = &title
				}
				if cmd.Flags().Changed("assignee") {
					v := domain.Assignee(strings.ToUpper(assignee))
					p.Assignee = &v
				}
				if cmd.Flags().Changed("priority") {
					v := domain.Priority(strings.ToUpper(priority))
					p.Priority = &v
				}
				switch {
				case clearDeadline:
					p.Deadline = domain.OptionalTime{Set: true}
				case cmd.Flags().Changed("deadline"):
					dl, err := domain.ParseDeadline(deadline, a.Projector.Location())
					if err != nil {
						return err
					}
					p.Deadline = domain.OptionalTime{Set: true, Value: dl}
				}
				switch {
				case clearTags:
					empty := []string{}
					p.TagIDs = &empty
				case cmd.Flags().Changed("tag"):
					ids, err := resolveTags(ctx, a, tags)
					if err != nil {
						return err
					}
					p.TagIDs = &ids
				}
				if cmd.Flags().Changed("expected-version") {
					p.ExpectedVersion = &expected
				}
				t, err := a.Engine.ApplyPatch(ctx, args[0], p, person)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&assignee, "assignee", "", "MANN, FRAU or BEIDE")
	cmd.Flags().StringVar(&priority, "priority", "", "A, B or C")
	cmd.Flags().StringVar(&deadline, "deadline", "", "YYYY-MM-DD or RFC 3339")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "remove the deadline")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "replace tags (repeatable)")
	cmd.Flags().BoolVar(&clearTags, "clear-tags", false, "remove all tags")
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "reject the edit if the task moved past this version")
	return cmd
}

func taskFlagCmd(use, short string, apply func(*domain.Patch)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := actingPerson()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var p domain.Patch
				apply(&p)
				t, err := a.Engine.ApplyPatch(ctx, args[0], p, person)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func completedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completed",
		Short: "Recently completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Projector.Completed(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Completed", "By"})
				for _, t := range tasks {
					var at, by string
					if t.CompletedAt != nil {
						at = t.CompletedAt.In(a.Projector.Location()).Format("2006-01-02 15:04")
					}
					if t.CompletedBy != nil {
						by = a.Config.Label(*t.CompletedBy)
					}
					tw.AppendRow(table.Row{t.ID, t.Title, at, by})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Read the activity log"}
	act.AddCommand(&cobra.Command{
		Use:   "ticker",
		Short: "Latest activity as a sentence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tv, err := a.Projector.Ticker(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tv)
				}
				fmt.Println(tv.Text)
				return nil
			})
		},
	})
	act.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Latest activity record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rec, err := a.Projector.Latest(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})
	act.AddCommand(activityRecentCmd())
	act.AddCommand(activityWatchCmd())
	return act
}

func activityRecentCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Newest activity records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				recs, err := a.Projector.Recent(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "When", "Type", "Text"})
				for _, rec := range recs {
					tw.AppendRow(table.Row{rec.ID, rec.CreatedAt.In(a.Projector.Location()).Format("2006-01-02 15:04"), rec.Type, a.Projector.Sentence(rec)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of records")
	return cmd
}

func activityWatchCmd() *cobra.Command {
	var serverURL string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a running server and print each new activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if serverURL == "" {
				serverURL = "http://" + cfg.Server.Addr
			}
			client := tandemsdk.New(serverURL, viper.GetString("as"))
			client.BasePath = cfg.Server.BasePath
			client.BearerToken = viper.GetString("token")
			err = client.Watch(cmd.Context(), interval, func(*tandemsdk.Activity) {
				tv, err := client.Ticker(cmd.Context())
				if err != nil {
					fmt.Fprintln(os.Stderr, "ticker:", err)
					return
				}
				fmt.Println(tv.Text)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL (default from tandem.yml)")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")
	cmd.Flags().String("token", "", "bearer token")
	_ = viper.BindPFlag("token", cmd.Flags().Lookup("token"))
	return cmd
}

func tagCmd() *cobra.Command {
	tag := &cobra.Command{Use: "tag", Short: "Manage tags"}
	tag.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tags, err := a.Projector.Tags(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tags)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name"})
				for _, t := range tags {
					tw.AppendRow(table.Row{t.ID, t.Name})
				}
				tw.Render()
				return nil
			})
		},
	})
	tag.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create the tags listed in tandem.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := app.SeedTags(ctx, a.Repo, a.Config.Tags); err != nil {
					return err
				}
				fmt.Printf("%d tags seeded\n", len(a.Config.Tags))
				return nil
			})
		},
	})
	tag.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a tag if it does not exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				name := strings.TrimSpace(args[0])
				if name == "" {
					return domain.Validation("name", "tag name must not be empty")
				}
				t, err := a.Repo.UpsertTag(ctx, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})
	return tag
}

func priorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "priority <deadline>",
		Short: "Suggest a priority for a deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			p := view.Projector{Config: cfg}
			dl, err := domain.ParseDeadline(args[0], p.Location())
			if err != nil {
				return err
			}
			if dl == nil {
				return domain.Validation("deadline", "deadline required")
			}
			fmt.Println(p.Recommend(*dl))
			return nil
		},
	}
}

func pushCmd() *cobra.Command {
	p := &cobra.Command{Use: "push", Short: "Web push notifications"}
	p.AddCommand(pushKeysCmd())
	p.AddCommand(pushSubscribeCmd())
	p.AddCommand(pushTestCmd())
	return p
}

func pushKeysCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateKeys()
			if err != nil {
				return err
			}
			if write {
				envPath := filepath.Join(viper.GetString("workspace"), ".env")
				if err := setEnvValue(envPath, config.EnvVAPIDPublicKey, pub); err != nil {
					return err
				}
				if err := setEnvValue(envPath, config.EnvVAPIDPrivateKey, priv); err != nil {
					return err
				}
				fmt.Printf("wrote VAPID keys to %s\n", envPath)
				return nil
			}
			return printJSONOrTable(map[string]string{"public_key": pub, "private_key": priv})
		},
	}
	cmd.Flags().BoolVar(&write, "write-env", false, "store the keys in <workspace>/.env")
	return cmd
}

func pushSubscribeCmd() *cobra.Command {
	var in push.SubscriptionInput
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Register a device subscription for the acting person",
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := actingPerson()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sub, err := a.Push.Subscribe(ctx, person, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(sub)
			})
		},
	}
	cmd.Flags().StringVar(&in.Endpoint, "endpoint", "", "push service endpoint")
	cmd.Flags().StringVar(&in.P256dh, "p256dh", "", "client public key")
	cmd.Flags().StringVar(&in.Auth, "auth", "", "client auth secret")
	return cmd
}

func pushTestCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test notification and report delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParsePerson(to)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !a.Push.Enabled() {
					return errors.New("push disabled: set VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY")
				}
				report := a.Push.Deliver(ctx, target, push.Message{
					Title: a.Projector.NotificationTitle(),
					Body:  "Test",
					URL:   "/" + target.Slug(),
				})
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "MANN or FRAU")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Bearer tokens for the HTTP API"}
	tok.AddCommand(tokenIssueCmd())
	return tok
}

func tokenIssueCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for the acting person",
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := actingPerson()
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(cfg.Auth.JWTSecret, person, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 365*24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func loadConfig(workspace string) (*config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(workspace); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, nil, err
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, log, err := loadConfig(workspace)
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.Open(ctx, workspace, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actingPerson() (domain.Person, error) {
	raw := viper.GetString("as")
	if raw == "" {
		return "", domain.Validation("person", "--as MANN|FRAU (or TANDEM_AS) is required")
	}
	return domain.ParsePerson(raw)
}

// resolveTags accepts tag ids or names. Unknown values are passed through so
// the engine reports them.
func resolveTags(ctx context.Context, a *app.App, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	tags, err := a.Projector.Tags(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		id := v
		for _, t := range tags {
			if t.ID == v || strings.EqualFold(t.Name, v) {
				id = t.ID
				break
			}
		}
		out = append(out, id)
	}
	return out, nil
}

func printTasks(a *app.App, tasks []view.TaskView) {
	loc := a.Projector.Location()
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Assignee", "Prio", "Deadline", "Tags", ""})
	for _, t := range tasks {
		var deadline string
		if t.Deadline != nil {
			deadline = t.Deadline.In(loc).Format(time.DateOnly)
		}
		names := make([]string, 0, len(t.Tags))
		for _, tag := range t.Tags {
			names = append(names, tag.Name)
		}
		var marks []string
		if t.Pinned {
			marks = append(marks, "pinned")
		}
		if t.Overdue {
			marks = append(marks, "overdue")
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Assignee, t.Priority, deadline, strings.Join(names, ", "), strings.Join(marks, " ")})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func boolPtr(v bool) *bool { return &v }
