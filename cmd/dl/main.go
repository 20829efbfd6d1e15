package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"draftline/internal/app"
	"draftline/internal/config"
	"draftline/internal/coordinator"
	"draftline/internal/db"
	"draftline/internal/domain"
	"draftline/internal/engine"
	"draftline/internal/generate"
	"draftline/internal/migrate"
	"draftline/internal/repo"
	"draftline/internal/server"
	"draftline/internal/views"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "Draftline CLI",
	Long: `Draftline coordinates a small content team around AI-generated drafts.
Core concepts:
- Workspace: your .draftline directory with the database; the team roster and
  workflow rules live in draftline.yml and are synced into the DB.
- Project: one piece of content (an image or a text) moving through the
  workflow: initiated -> in_editing -> in_review -> approved, with returned,
  rejected and cancelled as the other exits.
- Request: the marketing lead asks for content; it lands assigned to the
  configured producer, who attends or delegates it.
- Draft: a producer starts a piece directly; generation happens first, the
  piece only exists once there is an output.
- Iterations: each editing round gives the producer a small budget of
  refinement calls; a returned review resets it.
- Log: every action is recorded, view with 'dl log tail'.`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("DRAFTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting team member id")
	rootCmd.PersistentFlags().String("pin", "", "acting team member PIN")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("pin", rootCmd.PersistentFlags().Lookup("pin"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(actorsCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(attendCmd())
	rootCmd.AddCommand(delegateCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(iterateCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(glossaryCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var workspaceID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace with the default team and workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(workspaceID)), 0o644); err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := config.Load(workspace)
				if err != nil {
					return err
				}
				if err := app.SyncConfig(ctx, r, cfg); err != nil {
					return err
				}
				fmt.Printf("Initialized workspace %s (%s)\n", cfg.Workspace.ID, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workspaceID, "id", "default", "workspace id")
	return cmd
}

func actorsCmd() *cobra.Command {
	actors := &cobra.Command{Use: "actors", Short: "Team roster"}
	var role string
	list := &cobra.Command{
		Use:   "list",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActors(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "ROLE")
				for _, a := range items {
					t.AppendRow(table.Row{a.ID, a.Name, a.Role})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	list.Flags().StringVar(&role, "role", "", "filter by role")
	actors.AddCommand(list)
	return actors
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Lead-initiated content requests"}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestQuestionsCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var contentType, prompt string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a request and assign it to the configured producer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.CreateRequest(ctx, actor, domain.ContentType(contentType), prompt)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "content type (image, text)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "what the content should be")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func requestQuestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions <project-id>",
		Short: "Briefing questions before attending a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *coordinator.Coordinator, actor domain.Actor) error {
				qs, err := c.AttendQuestions(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printQuestions(qs)
			})
		},
	}
	return cmd
}

func draftCmd() *cobra.Command {
	draft := &cobra.Command{Use: "draft", Short: "Producer-initiated drafts"}
	draft.AddCommand(draftQuestionsCmd())
	draft.AddCommand(draftCreateCmd())
	return draft
}

func draftQuestionsCmd() *cobra.Command {
	var contentType, prompt string
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Briefing questions for a new draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *coordinator.Coordinator, actor domain.Actor) error {
				qs, err := c.DraftQuestions(ctx, actor, domain.ContentType(contentType), prompt)
				if err != nil {
					return err
				}
				return printQuestions(qs)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "content type (image, text)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "what the content should be")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func draftCreateCmd() *cobra.Command {
	var contentType, prompt, refImage string
	var brief domain.ContextBrief
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate and store a new draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *coordinator.Coordinator, actor domain.Actor) error {
				p, err := c.CreateDraft(ctx, actor, domain.ContentType(contentType), prompt, brief, refImage)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "content type (image, text)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "what the content should be")
	cmd.Flags().StringVar(&refImage, "reference-image", "", "data URI of a visual for text generation to match")
	addBriefFlags(cmd, &brief)
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func attendCmd() *cobra.Command {
	var brief domain.ContextBrief
	var refImage string
	cmd := &cobra.Command{
		Use:   "attend <project-id>",
		Short: "Generate the first draft for a request assigned to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *coordinator.Coordinator, actor domain.Actor) error {
				p, err := c.Attend(ctx, actor, args[0], brief, refImage)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	addBriefFlags(cmd, &brief)
	cmd.Flags().StringVar(&refImage, "reference-image", "", "data URI of a visual for text generation to match")
	return cmd
}

func delegateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delegate <project-id>",
		Short: "Hand a request to your configured successor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.Delegate(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <project-id>",
		Short: "Submit a piece for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.SubmitForReview(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <project-id>",
		Short: "Cancel a piece you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.Cancel(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func reviewCmd() *cobra.Command {
	var verdict, comments string
	cmd := &cobra.Command{
		Use:   "review <project-id>",
		Short: "Approve, return or reject a piece in review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.Review(ctx, actor, args[0], engine.Verdict(verdict), comments)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&verdict, "verdict", "", "approve, return or reject")
	cmd.Flags().StringVar(&comments, "comments", "", "reviewer comments")
	_ = cmd.MarkFlagRequired("verdict")
	return cmd
}

func iterateCmd() *cobra.Command {
	var instruction string
	cmd := &cobra.Command{
		Use:   "iterate <project-id>",
		Short: "Refine the current output with an instruction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *coordinator.Coordinator, actor domain.Actor) error {
				p, err := c.Iterate(ctx, actor, args[0], instruction)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&instruction, "instruction", "", "what to change")
	_ = cmd.MarkFlagRequired("instruction")
	return cmd
}

func boardCmd() *cobra.Command {
	var tab string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "List projects by tab",
		Long:  "Tabs: all (what you can follow), my-tasks (what needs your action), repository (approved pieces).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				filters, err := views.Filters(e.Config, views.Tab(tab), actor)
				if err != nil {
					return err
				}
				items, err := e.Repo.ListProjects(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "TITLE", "TYPE", "STATUS", "OWNER", "ITER", "UPDATED")
				for _, p := range items {
					t.AppendRow(table.Row{p.ID, p.Title, p.Type, p.Status, p.CreatorID, p.Iterations, p.UpdatedAt})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "all", "all, my-tasks or repository")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Activity log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var projectID, actorID, action string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent activity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Actor) error {
				items, err := e.Repo.ListLogs(ctx, repo.LogFilters{
					ProjectID: projectID,
					ActorID:   actorID,
					Action:    action,
					Limit:     n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("TS", "ACTOR", "ACTION", "PROJECT", "DETAILS")
				for _, l := range items {
					t.AppendRow(table.Row{l.TS, l.ActorName, l.Action, l.ProjectID, l.Details})
				}
				fmt.Println(t.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&projectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	cmd.Flags().StringVar(&action, "action", "", "filter by action")
	return cmd
}

func glossaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Workflow state glossary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				return printJSON(domain.Glossary)
			}
			t := newTable("STATUS", "MEANING")
			for _, g := range domain.Glossary {
				t.AppendRow(table.Row{g.Status, g.Description})
			}
			fmt.Println(t.Render())
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ResolveWorkspaceAndConfig(ctx, viper.GetString("workspace"), r)
				if err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	})
	var filePath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from YAML and sync the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := app.SyncConfig(ctx, r, cfg); err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}
	importCmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = importCmd.MarkFlagRequired("file")
	cfg.AddCommand(importCmd)
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveWorkspaceAndConfig(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			coord := coordinator.New(e, newGenerator(cfg))
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("DRAFTLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:      e,
				Coordinator: coord,
				BasePath:    basePath,
				Auth:        authCfg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Draftline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func addBriefFlags(cmd *cobra.Command, brief *domain.ContextBrief) {
	cmd.Flags().StringVar(&brief.Objective, "objective", "", "what the content should achieve")
	cmd.Flags().StringVar(&brief.Audience, "audience", "", "who it is for")
	cmd.Flags().StringVar(&brief.Tone, "tone", "", "tone of voice")
	cmd.Flags().StringVar(&brief.Style, "style", "", "visual or writing style")
	cmd.Flags().StringVar(&brief.Restrictions, "restrictions", "", "what to avoid")
}

func newGenerator(cfg *config.Config) generate.Generator {
	key := viper.GetString("gemini-api-key")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	return generate.NewGemini(key, cfg)
}

// requireActor verifies the acting member's PIN against storage. The check
// runs on every invocation so switching --actor-id always re-authenticates.
func requireActor(ctx context.Context, r repo.Repo) (domain.Actor, error) {
	actorID := strings.TrimSpace(viper.GetString("actor-id"))
	pin := viper.GetString("pin")
	if actorID == "" || pin == "" {
		return domain.Actor{}, fmt.Errorf("--actor-id and --pin are required (or DRAFTLINE_ACTOR_ID / DRAFTLINE_PIN)")
	}
	actor, err := r.VerifyActorPIN(ctx, actorID, repo.HashPIN(pin))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Actor{}, fmt.Errorf("unknown actor or wrong PIN")
		}
		return domain.Actor{}, err
	}
	return actor, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveWorkspaceAndConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	actor, err := requireActor(ctx, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e, actor)
}

func withCoordinator(ctx context.Context, fn func(context.Context, *coordinator.Coordinator, domain.Actor) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
		return fn(ctx, coordinator.New(e, newGenerator(e.Config)), actor)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(headers))
	return t
}

func printQuestions(qs []string) error {
	if viper.GetBool("json") {
		return printJSON(qs)
	}
	for i, q := range qs {
		fmt.Printf("%d. %s\n", i+1, q)
	}
	return nil
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
