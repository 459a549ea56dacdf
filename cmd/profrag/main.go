package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"profrag/internal/config"
	"profrag/internal/domain"
	"profrag/internal/embedding"
	"profrag/internal/service"
	"profrag/internal/tui"
	"profrag/internal/vectorstore"
)

const configKey = "config"

// tuiOptions are passed to the progress view program.
var tuiOptions []tea.ProgramOption

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "profrag",
		Usage:  "Embed professor reviews and load them into a vector index",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (uses ./config.yaml or ~/.config/profrag/config.yaml if not provided)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides log.level",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json); overrides log.format",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Create the index, embed every review and upsert the records",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "corpus",
						Usage: "Path to the reviews JSON file; overrides corpus.path",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of concurrent embedding calls; overrides embedder.concurrency",
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Show an interactive progress view",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Use the in-memory store and the local tfidf embedder",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print statistics for the configured index",
				Action: statsCommand,
			},
			{
				Name:   "init-config",
				Usage:  "Write the default configuration file",
				Action: initConfigCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Destination file (defaults to ~/.config/profrag/config.yaml)",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
			},
		},
	}
}

// setup loads the configuration and installs the process logger.
func setup(c *cli.Context) error {
	var (
		cfg  *config.AppConfig
		path string
		err  error
	)
	if path = c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, path, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}

	logger, err := newLogger(c.App.ErrWriter, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger.With("run_id", uuid.NewString()))
	if path != "" {
		slog.Debug("config loaded", "path", path)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", lc.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(lc.Format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", lc.Format)
	}
}

func appConfig(c *cli.Context) *config.AppConfig {
	if cfg, ok := c.App.Metadata[configKey].(*config.AppConfig); ok {
		return cfg
	}
	return config.Default()
}

func ingestCommand(c *cli.Context) error {
	cfg := appConfig(c)
	if v := c.String("corpus"); v != "" {
		cfg.Corpus.Path = v
	}
	if c.IsSet("concurrency") {
		cfg.Embedder.Concurrency = c.Int("concurrency")
	}
	if c.Bool("dry-run") {
		cfg.VectorStore.Type = "memory"
		cfg.Embedder.Type = "tfidf"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := c.Context
	emb, err := embedding.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("embedder init failed: %w", err)
	}
	store, err := vectorstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("vector store init failed: %w", err)
	}
	defer store.Close()

	opts := []service.Option{
		service.WithConcurrency(cfg.Embedder.Concurrency),
		service.WithTaskType(domain.TaskType(cfg.Embedder.TaskType)),
		service.WithCompositeText(cfg.Embedder.CompositeText),
		service.WithSchemaValidation(cfg.SchemaValidation()),
	}
	slog.Info("starting ingestion",
		"corpus", cfg.Corpus.Path,
		"embedder", emb.Name(),
		"vector_store", cfg.VectorStore.Type,
		"index", cfg.Index.Name,
		"namespace", cfg.Index.Namespace,
	)

	var res *service.Result
	showTUI := c.Bool("tui")
	if showTUI {
		title := fmt.Sprintf("profrag: %s / %s", cfg.Index.Name, cfg.Index.Namespace)
		res, err = tui.Run(ctx, title, func(ctx context.Context, progress service.ProgressFunc) (*service.Result, error) {
			svc := service.NewIngestService(emb, store, cfg.IndexSpec(), cfg.Index.Namespace,
				append(opts, service.WithProgress(progress))...)
			return svc.Run(ctx, cfg.Corpus.Path)
		}, tuiOptions...)
	} else {
		svc := service.NewIngestService(emb, store, cfg.IndexSpec(), cfg.Index.Namespace, opts...)
		res, err = svc.Run(ctx, cfg.Corpus.Path)
	}
	if err != nil {
		if errors.Is(err, domain.ErrIndexAlreadyExists) {
			return fmt.Errorf("ingest failed: %w (delete the index or choose another index.name)", err)
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	// The final TUI frame already shows the summary.
	if showTUI {
		slog.Info("ingestion finished", "upserted", res.Upserted, "total_vectors", res.Stats.TotalVectorCount)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "Upserted count: %d\n", res.Upserted)
	fmt.Fprintln(c.App.Writer, tui.StatsTable(res.Stats))
	return nil
}

func statsCommand(c *cli.Context) error {
	cfg := appConfig(c)
	store, err := vectorstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("vector store init failed: %w", err)
	}
	defer store.Close()

	stats, err := store.DescribeIndexStats(c.Context)
	if err != nil {
		return fmt.Errorf("describe index stats: %w", err)
	}
	fmt.Fprintln(c.App.Writer, tui.StatsTable(stats))
	return nil
}

func initConfigCommand(c *cli.Context) error {
	path := c.String("path")
	if path == "" {
		p, err := config.DefaultUserConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
