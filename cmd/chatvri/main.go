package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatvri/internal/agent"
	"chatvri/internal/config"
	"chatvri/internal/knowledge"
	"chatvri/internal/provider"
	"chatvri/internal/store"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "chatvri",
		Short: "ChatVRI: WhatsApp assistant for the UNA Puno research vice-rectorate",
		Long: "ChatVRI answers WhatsApp queries about faculties, contacts and research\n" +
			"procedures using a local knowledge base and an LLM backend.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.chatvri/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(kbCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfigOrDefaults loads the config, falling back to defaults with
// a warning when the file is missing.
func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

// buildLogger applies the configured log level and optional log file.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Config written to %s\n", cfgPath)
			fmt.Println("Set DEEPSEEK_API_KEY and place the knowledge snapshot before serving.")
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot from the terminal (no gateway)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			log := buildLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pipeline, err := buildPipeline(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer pipeline.close()

			fmt.Println("ChatVRI terminal chat. Empty line or Ctrl+C to quit.")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					return nil
				}
				fmt.Println(pipeline.dispatcher.Answer(ctx, "cli", line))
			}
		},
	}
}

func statsCmd() *cobra.Command {
	var dayFlag string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show daily usage statistics from the conversation store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			st, err := store.Open(ctx, cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			sp, ok := st.(store.StatsProvider)
			if !ok {
				return fmt.Errorf("store driver %q cannot aggregate stats", cfg.Store.Driver)
			}

			day := time.Now()
			if dayFlag != "" {
				day, err = time.Parse("2006-01-02", dayFlag)
				if err != nil {
					return fmt.Errorf("bad --day (want YYYY-MM-DD): %w", err)
				}
			}

			stats, err := sp.Stats(ctx, day)
			if err != nil {
				return err
			}
			fmt.Printf("Stats for %s\n", stats.Day.Format("2006-01-02"))
			fmt.Printf("  exchanges:     %d\n", stats.Exchanges)
			fmt.Printf("  unique users:  %d\n", stats.Users)
			fmt.Printf("  searches:      %d\n", stats.Searches)
			fmt.Printf("  errors:        %d\n", stats.Errors)
			fmt.Printf("  avg latency:   %.0f ms\n", stats.AvgLatencyMs)
			fmt.Printf("  no-context:    %.0f%%\n", stats.NoContextRate*100)
			return nil
		},
	}
	cmd.Flags().StringVar(&dayFlag, "day", "", "day to report (YYYY-MM-DD, default today)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.defaultProvider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. retrieval.topK 8)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Inspect and query the knowledge snapshot",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show snapshot statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			snap, err := knowledge.LoadSnapshot(cfg.Retrieval.SnapshotPath)
			if err != nil {
				return err
			}

			byCategory := map[string]int{}
			byType := map[string]int{}
			for _, d := range snap.Docs {
				byCategory[d.Category]++
				byType[d.DocType]++
			}
			fmt.Printf("Snapshot: %s\n", cfg.Retrieval.SnapshotPath)
			fmt.Printf("  documents:  %d\n", len(snap.Docs))
			fmt.Printf("  dimensions: %d\n", snap.Dim)
			fmt.Println("  by category:")
			for cat, n := range byCategory {
				fmt.Printf("    %-14s %d\n", cat, n)
			}
			fmt.Println("  by type:")
			for dt, n := range byType {
				fmt.Printf("    %-14s %d\n", dt, n)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "Run a retrieval query against the snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()
			query := strings.Join(args, " ")

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			engine, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			docs, err := engine.Retrieve(ctx, query, cfg.Retrieval.TopK)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents above the score threshold.")
				return nil
			}
			for i, d := range docs {
				fmt.Printf("%d. [%.3f sim %.3f] (%s/%s) %s\n", i+1, d.Score, d.Similarity, d.Category, d.DocType, d.Title)
			}
			return nil
		},
	})

	return cmd
}

// buildEngine wires the retrieval stack outside of serve (kb, doctor).
func buildEngine(cfg *config.Config, log *slog.Logger) (*knowledge.Engine, error) {
	snap, err := knowledge.LoadSnapshot(cfg.Retrieval.SnapshotPath)
	if err != nil {
		return nil, err
	}
	catalog, err := knowledge.LoadCatalog(cfg.Retrieval.CatalogPath)
	if err != nil {
		return nil, err
	}
	embedder := knowledge.NewOllamaEmbedder(knowledge.OllamaEmbedderConfig{
		APIBase: cfg.Retrieval.EmbedBase,
		Model:   cfg.Retrieval.EmbedModel,
		Logger:  log,
	})
	return knowledge.NewEngine(knowledge.EngineOptions{
		Snapshot:       snap,
		Catalog:        catalog,
		Embedder:       embedder,
		Logger:         log,
		TopK:           cfg.Retrieval.TopK,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		SimWeight:      cfg.Retrieval.SimilarityWeight,
		CategoryBonus:  cfg.Retrieval.CategoryBonus,
		TypeBonus:      cfg.Retrieval.TypeBonus,
		KeywordBonus:   cfg.Retrieval.KeywordBonus,
		CategoryFilter: cfg.Retrieval.CategoryFilter,
		CacheSize:      cfg.Retrieval.CacheSize,
	})
}

// buildSynthesizer assembles the generation side of the pipeline.
func buildSynthesizer(cfg *config.Config, log *slog.Logger) (*agent.Synthesizer, error) {
	chain, err := provider.NewFactory(cfg, log).Chain()
	if err != nil {
		return nil, err
	}
	return agent.NewSynthesizer(agent.SynthesizerOptions{
		Provider: chain,
		Prompt:   agent.NewPromptBuilder(cfg.General.HistoryLimit),
		Logger:   log,
		Timeout:  time.Duration(cfg.General.GenerateTimeoutS) * time.Second,
		MaxChars: cfg.General.ReplyMaxChars,
	}), nil
}
