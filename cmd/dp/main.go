package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dayplan/internal/app"
	"dayplan/internal/classifier"
	"dayplan/internal/config"
	"dayplan/internal/domain"
	"dayplan/internal/logx"
	"dayplan/internal/planner"
	"dayplan/internal/prototype"
	"dayplan/internal/repo"
	"dayplan/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dp",
	Short: "Dayplan CLI",
	Long: `Dayplan lays out a working day and labels free-text tasks.
- Planner: pending tasks are placed greedily into a day window by priority, due date and category balance, with short rests in between.
- Classifier: text is embedded with a pretrained word-vector file and compared to one prototype vector per category.
- Prototypes: built offline from the taxonomy seeds in dayplan.yml ('dp prototypes build'), stored next to meta.json.
- Service: 'dp serve' exposes health, classify, categories and schedule over HTTP (OpenAPI at /openapi.json, Swagger UI at /docs).`,
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
	viper.SetEnvPrefix("DAYPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/dayplan.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(prototypesCmd())
	rootCmd.AddCommand(preloadCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
}

func planCmd() *cobra.Command {
	var file, start, end, date string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Schedule tasks into a day window",
		Long:  "Plan reads tasks from a JSON or YAML file (a list, or an object with a tasks key) and prints the day's events followed by stats. The window defaults to planner.day_start/day_end from config and today's date.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt runtime) error {
				tasks, err := readTasks(file)
				if err != nil {
					return err
				}
				window, err := planWindow(rt.cfg, start, end, date)
				if err != nil {
					return err
				}
				events, stats := planner.Planner{Log: rt.log}.Schedule(tasks, window)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"events": events, "stats": stats})
				}
				printEvents(events)
				printStats(window, stats)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "tasks file (.json, .yml, .yaml)")
	cmd.Flags().StringVar(&start, "start", "", "window start (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "", "window end (HH:MM)")
	cmd.Flags().StringVar(&date, "date", "", "reference date (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func classifyCmd() *cobra.Command {
	var topK int
	var threshold, url string
	var remote bool
	cmd := &cobra.Command{
		Use:   "classify <text...>",
		Short: "Classify a task title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt runtime) error {
				if remote {
					rt.cfg.Classifier.Mode = config.ModeRemote
				}
				if url != "" {
					rt.cfg.Classifier.RemoteURL = url
				}
				opts := app.ClassifyOptions(rt.cfg)
				opts.Block = true
				if cmd.Flags().Changed("top-k") {
					opts.TopK = topK
				}
				if threshold != "" {
					th, err := parseThreshold(threshold)
					if err != nil {
						return err
					}
					opts.UnknownThreshold = th
				}
				c, err := app.NewClassifier(rt.workspace, rt.cfg, rt.log)
				if err != nil {
					return err
				}
				if err := c.Preload(ctx); err != nil {
					return fmt.Errorf("classifier not ready: %w", err)
				}
				res := c.Classify(ctx, strings.Join(args, " "), opts)
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.ModelReady {
					return fmt.Errorf("classifier not ready")
				}
				fmt.Printf("Category: %s\n", res.Category)
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Category", "Similarity"})
				for i, s := range res.Scores {
					tw.AppendRow(table.Row{i + 1, s.Category, fmt.Sprintf("%.4f", s.Similarity)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of scores to return (0 for all)")
	cmd.Flags().StringVar(&threshold, "threshold", "", "unknown threshold in [-1,1], or none")
	cmd.Flags().BoolVar(&remote, "remote", false, "classify through a running dayplan service")
	cmd.Flags().StringVar(&url, "url", "", "service URL for --remote (default classifier.remote_url)")
	return cmd
}

func prototypesCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "prototypes",
		Short: "Build and inspect category prototypes",
		Long:  "Prototypes are the mean embedding of each category's seed phrases. They are stored in prototypes.db with meta.json alongside and must come from the same embedding model the classifier loads.",
	}
	p.AddCommand(prototypesBuildCmd())
	p.AddCommand(prototypesShowCmd())
	return p
}

func prototypesBuildCmd() *cobra.Command {
	var out, embeddings string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build prototypes from the taxonomy seeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt runtime) error {
				if embeddings != "" {
					rt.cfg.Classifier.Embeddings = embeddings
				}
				dir := app.ArtifactsDir(rt.workspace, rt.cfg)
				if out != "" {
					dir = out
				}
				started := time.Now()
				tbl, err := app.Resolver(rt.workspace, rt.cfg).Open(rt.cfg.Taxonomy.EmbeddingModel)
				if err != nil {
					return err
				}
				set, err := prototype.Builder{Log: rt.log}.Build(rt.cfg.Taxonomy, tbl)
				if err != nil {
					return err
				}
				if err := prototype.Save(ctx, dir, set); err != nil {
					return err
				}
				summary := map[string]any{
					"build_id":        set.Meta.BuildID,
					"embedding_model": set.Meta.EmbeddingModel,
					"vector_dim":      set.Meta.VectorDim,
					"categories":      len(set.Prototypes),
					"dir":             dir,
					"elapsed":         time.Since(started).Round(time.Millisecond).String(),
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Built %d prototypes (%s, dim %d) into %s in %s\n",
					len(set.Prototypes), set.Meta.EmbeddingModel, set.Meta.VectorDim, dir, summary["elapsed"])
				fmt.Printf("Build: %s\n", set.Meta.BuildID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory (default classifier.artifacts_dir)")
	cmd.Flags().StringVar(&embeddings, "embeddings", "", "embedding file (default: resolved from models_dir)")
	return cmd
}

func prototypesShowCmd() *cobra.Command {
	var dir string
	var n int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored prototypes and build history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt runtime) error {
				if dir == "" {
					dir = app.ArtifactsDir(rt.workspace, rt.cfg)
				}
				a, err := prototype.OpenArchive(ctx, dir, false)
				if err != nil {
					return err
				}
				defer a.Close()
				set, err := a.Load(ctx)
				if err != nil {
					return err
				}
				history, err := a.History(ctx, n)
				if err != nil {
					return err
				}
				var lastBuild *domain.ArchiveEvent
				if ev, err := a.LastBuild(ctx); err == nil {
					lastBuild = &ev
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"meta":       set.Meta,
						"prototypes": set.Prototypes,
						"last_build": lastBuild,
						"history":    history,
					})
				}
				fmt.Printf("Model: %s  dim: %d  build: %s  built: %s\n",
					set.Meta.EmbeddingModel, set.Meta.VectorDim, set.Meta.BuildID, set.Meta.BuiltAt)
				if lastBuild != nil && lastBuild.BuildID != set.Meta.BuildID {
					fmt.Printf("warning: meta.json is build %s but the archive last recorded %s at %s\n",
						set.Meta.BuildID, lastBuild.BuildID, lastBuild.TS)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Category", "Color", "Seeds", "Seeds Used"})
				for _, p := range set.Prototypes {
					tw.AppendRow(table.Row{p.Position, p.Category, p.Color, len(set.Meta.Seeds[p.Category]), p.SeedsUsed})
				}
				tw.Render()
				if len(history) > 0 {
					ht := newTable()
					ht.AppendHeader(table.Row{"ID", "Time", "Build", "Payload"})
					for _, ev := range history {
						b, _ := json.Marshal(ev.Payload)
						ht.AppendRow(table.Row{ev.ID, ev.TS, ev.BuildID, string(b)})
					}
					ht.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "artifact directory (default classifier.artifacts_dir)")
	cmd.Flags().IntVar(&n, "n", 10, "number of builds to list")
	return cmd
}

func preloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preload",
		Short: "Load the classifier and report how long it took",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt runtime) error {
				c, err := app.NewClassifier(rt.workspace, rt.cfg, rt.log)
				if err != nil {
					return err
				}
				started := time.Now()
				err = c.Preload(ctx)
				elapsed := time.Since(started)
				if viper.GetBool("json") {
					out := map[string]any{"ok": err == nil, "elapsed_ms": elapsed.Milliseconds()}
					if err != nil {
						out["error"] = err.Error()
					}
					if perr := printJSON(out); perr != nil {
						return perr
					}
					return err
				}
				if err != nil {
					return fmt.Errorf("preload failed after %s: %w", elapsed.Round(time.Millisecond), err)
				}
				fmt.Printf("classifier ready in %s\n", elapsed.Round(time.Millisecond))
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt runtime) error {
				if addr == "" {
					addr = rt.cfg.Server.Addr
				}
				if basePath == "" {
					basePath = rt.cfg.Server.BasePath
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				c, err := app.NewClassifier(rt.workspace, rt.cfg, rt.log)
				if err != nil {
					return err
				}
				handler, err := server.New(server.Config{
					Classifier:  c,
					Planner:     planner.Planner{Log: rt.log},
					Defaults:    app.ClassifyOptions(rt.cfg),
					BasePath:    basePath,
					CORSOrigins: rt.cfg.Server.CORSOrigins,
					RatePerSec:  rt.cfg.Server.RatePerSec,
					Burst:       rt.cfg.Server.Burst,
					Log:         rt.log,
				})
				if err != nil {
					return err
				}

				go warmUp(ctx, c, rt.log)
				if local, ok := c.(*classifier.Local); ok && rt.cfg.Classifier.Watch {
					go func() {
						if err := local.Watch(ctx); err != nil {
							rt.log.Warn("artifact watch stopped", logx.Err(err))
						}
					}()
				}

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(sctx); err != nil {
						rt.log.Warn("shutdown", logx.Err(err))
					}
				}()
				fmt.Printf("Serving dayplan API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				rt.log.Info("http listening", logx.String("addr", addr), logx.String("base_path", basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				rt.log.Info("http stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

// warmUp loads the classifier off the request path. The service keeps
// answering with degraded results if the load fails.
func warmUp(ctx context.Context, c classifier.Classifier, log logx.Logger) {
	started := time.Now()
	err := c.Preload(ctx)
	elapsed := time.Since(started)
	status := "STATUS=classifier ready"
	if err != nil {
		log.Error("classifier preload failed", logx.Err(err), logx.Duration("elapsed", elapsed))
		status = "STATUS=classifier unavailable: " + err.Error()
	} else {
		log.Info("classifier ready", logx.Duration("elapsed", elapsed))
	}
	sent, nerr := daemon.SdNotify(false, daemon.SdNotifyReady+"\n"+status)
	if nerr != nil {
		log.Warn("sd_notify failed", logx.Err(nerr))
	} else if sent {
		log.Debug("sd_notify ready sent")
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect dayplan.yml",
		Long:  "Config holds the taxonomy (categories, colors, seed phrases, embedding model), the classifier mode and paths, the default day window, the HTTP service settings and logging. Without a dayplan.yml the built-in defaults apply.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				var doc map[string]any
				if err := yaml.Unmarshal(data, &doc); err != nil {
					return err
				}
				return printJSON(doc)
			}
			fmt.Print(string(data))
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default dayplan.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

type runtime struct {
	workspace string
	cfg       *config.Config
	log       logx.Logger
}

func loadConfig() (*config.Config, error) {
	return app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
}

func withRuntime(ctx context.Context, fn func(context.Context, runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(ctx, runtime{workspace: viper.GetString("workspace"), cfg: cfg, log: log})
}

type taskFile struct {
	Tasks []domain.Task `json:"tasks" yaml:"tasks"`
}

func readTasks(path string) ([]domain.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tasks []domain.Task
	var wrapped taskFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &tasks); err != nil {
			if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			tasks = wrapped.Tasks
		}
	default:
		if err := json.Unmarshal(data, &tasks); err != nil {
			if werr := json.Unmarshal(data, &wrapped); werr != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			tasks = wrapped.Tasks
		}
	}
	return tasks, nil
}

func planWindow(cfg *config.Config, start, end, date string) (domain.Window, error) {
	startMin, endMin, err := cfg.Window()
	if err != nil {
		return domain.Window{}, err
	}
	if start != "" {
		if startMin, err = planner.ParseClock(start); err != nil {
			return domain.Window{}, fmt.Errorf("--start: %w", err)
		}
	}
	if end != "" {
		if endMin, err = planner.ParseClock(end); err != nil {
			return domain.Window{}, fmt.Errorf("--end: %w", err)
		}
	}
	if endMin <= startMin {
		return domain.Window{}, fmt.Errorf("window end %s must be after start %s",
			planner.FormatClock(endMin), planner.FormatClock(startMin))
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, ok := planner.ParseDate(date); !ok {
		return domain.Window{}, fmt.Errorf("--date %q: want YYYY-MM-DD", date)
	}
	return domain.Window{StartMinute: startMin, EndMinute: endMin, ReferenceDate: date}, nil
}

func parseThreshold(raw string) (float64, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "none") {
		return classifier.NoThreshold, nil
	}
	th, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || th < -1 || th > 1 {
		return 0, fmt.Errorf("--threshold %q: want a number in [-1,1] or none", raw)
	}
	return th, nil
}

func printEvents(events []domain.Event) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Start", "End", "Length", "Title", "Category", "Priority", "Task"})
	for _, e := range events {
		tw.AppendRow(table.Row{
			planner.FormatClock(e.StartMinute),
			planner.FormatClock(e.EndMinute),
			planner.FormatDuration(e.Minutes()),
			e.Title, e.Category, e.Priority, e.TaskID,
		})
	}
	tw.Render()
}

func printStats(w domain.Window, s domain.Stats) {
	fmt.Printf("Window %s-%s (%s): %d scheduled, %d unscheduled, work %s, rest %s, ends %s\n",
		planner.FormatClock(w.StartMinute), planner.FormatClock(w.EndMinute), w.ReferenceDate,
		s.ScheduledCount, s.UnscheduledCount,
		planner.FormatDuration(s.TotalWorkMinutes), planner.FormatDuration(s.TotalRestMinutes),
		planner.FormatClock(s.EndMinute))
	if len(s.CategoryDistribution) == 0 {
		return
	}
	names := make([]string, 0, len(s.CategoryDistribution))
	for name := range s.CategoryDistribution {
		names = append(names, name)
	}
	sort.Strings(names)
	tw := newTable()
	tw.AppendHeader(table.Row{"Category", "Tasks"})
	for _, name := range names {
		tw.AppendRow(table.Row{name, s.CategoryDistribution[name]})
	}
	tw.Render()
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
