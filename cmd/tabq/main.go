// Tabq answers natural-language questions about CSV files.
//
// It loads a CSV into an in-process table, exposes a fixed set of
// analysis tools to a hosted or local LLM, and serves both an HTTP API
// with a browser UI and an interactive terminal chat. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	tabq serve                Start the API server and web UI
//	tabq chat [file.csv]      Interactive question session
//	tabq ask <question>       Ask a single question (use -csv to load data)
//	tabq info <file.csv>      Inspect a CSV file without asking anything
//	tabq init [dir]           Initialize a working directory with defaults
//	tabq version              Print version and build information
//	tabq -o json version      Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tabq/tabq/internal/agent"
	"github.com/tabq/tabq/internal/api"
	"github.com/tabq/tabq/internal/buildinfo"
	"github.com/tabq/tabq/internal/config"
	"github.com/tabq/tabq/internal/dataset"
	"github.com/tabq/tabq/internal/llm"
	"github.com/tabq/tabq/internal/memory"
	"github.com/tabq/tabq/internal/tools"
	"github.com/tabq/tabq/internal/web"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the tabq command. All OS-level
// dependencies are injected as parameters so tests can drive the full
// lifecycle. Arguments are parsed by hand: the flag package relies on
// package-level globals, and the argument surface here is small.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var csvPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-csv" && i+1 < len(args):
			csvPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-csv="):
			csvPath = strings.TrimPrefix(args[i], "-csv=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "chat":
		if len(cmdArgs) > 0 {
			csvPath = cmdArgs[0]
		}
		return runChat(ctx, stdin, stdout, configPath, csvPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: tabq ask [-csv file.csv] <question>")
		}
		return runAsk(ctx, stdout, configPath, csvPath, outputFmt, cmdArgs)
	case "info":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: tabq info <file.csv>")
		}
		return runInfo(stdout, configPath, cmdArgs[0])
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "tabq - ask questions about CSV files in plain language")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: tabq [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve             Start the API server and web UI")
	fmt.Fprintln(w, "  chat [file.csv]   Interactive question session")
	fmt.Fprintln(w, "  ask <question>    Ask a single question (use -csv to load data)")
	fmt.Fprintln(w, "  info <file.csv>   Inspect a CSV file")
	fmt.Fprintln(w, "  init [dir]        Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version           Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -csv <path>       CSV file to load before asking")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/tabq/config.yaml, /etc/tabq/config.yaml")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level. All log output goes through slog; this helper standardizes the
// handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the config file. Missing config is not
// fatal for local commands; they fall back to defaults.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// createLLMClient wires up the configured providers behind a single
// model-routing client. Ollama is always available as the fallback for
// unrecognized model names.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	ollamaClient := llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.OpenAI.APIKey != "" {
		multi.AddProvider("openai", llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger))
		logger.Info("OpenAI provider configured")
	}
	if cfg.Anthropic.APIKey != "" {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger))
		logger.Info("Anthropic provider configured")
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	logger.Info("LLM client initialized", "default_model", cfg.Models.Default)
	return multi
}

// runtime bundles the components assembled from config.
type runtime struct {
	agent    *agent.Agent
	table    *dataset.Table
	registry *tools.Registry
	store    *memory.Store
	archive  *memory.Archive
	client   llm.Client
}

// buildRuntime assembles the table, tool registry, memory, LLM client,
// and agent from config. The archive is optional and left for the
// caller to close.
func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	table := dataset.New(dataset.Options{
		Delimiter:     delimiterRune(cfg.Dataset.Delimiter),
		MaxFileSizeMB: cfg.Dataset.MaxFileSizeMB,
		MaxResultRows: cfg.Dataset.MaxResultRows,
	}, logger)

	registry := tools.NewRegistry(table)
	store := memory.NewStore(cfg.Memory.MaxMessages)

	var archive *memory.Archive
	archivePath := cfg.Memory.ArchivePath
	if archivePath == "" && cfg.DataDir != "" {
		archivePath = cfg.DataDir + "/archive.db"
	}
	if archivePath != "" {
		db, err := sql.Open("sqlite3", archivePath+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
		}
		archive, err = memory.NewArchive(db, cfg.Memory.MaxMessages)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		logger.Info("archive enabled", "path", archivePath)
	}

	client := createLLMClient(cfg, logger)
	ag := agent.New(logger, client, registry, table, store, archive, agent.Config{
		Model:             cfg.Models.Default,
		MaxToolIterations: cfg.Agent.MaxToolIterations,
		Gate:              cfg.Agent.Gate,
	})
	return &runtime{
		agent:    ag,
		table:    table,
		registry: registry,
		store:    store,
		archive:  archive,
		client:   client,
	}, nil
}

func delimiterRune(s string) rune {
	if s == "" {
		return ','
	}
	return []rune(s)[0]
}

// runServe handles the "tabq serve" subcommand: load config, build the
// agent, start the HTTP server, and block until a shutdown signal.
func runServe(ctx context.Context, stdout, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting tabq", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
	)

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
		}
	}

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	if rt.archive != nil {
		defer rt.archive.Close()
	}

	if cfg.Dataset.Path != "" {
		if err := rt.table.Load(cfg.Dataset.Path); err != nil {
			logger.Warn("initial dataset load failed", "path", cfg.Dataset.Path, "error", err)
		}
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, rt.agent, rt.table, rt.registry, rt.store, rt.client, logger)
	if rt.archive != nil {
		server.SetArchive(rt.archive)
	}
	server.SetWebUI(web.NewWebServer(web.Config{
		Agent: rt.agent,
		Table: rt.table,
		Store: rt.store,
		StatsFunc: func() web.StatsSnapshot {
			snap := server.Stats()
			return web.StatsSnapshot{
				TotalRequests:     snap.TotalRequests,
				TotalInputTokens:  snap.TotalInputTokens,
				TotalOutputTokens: snap.TotalOutputTokens,
				EstimatedCostUSD:  snap.EstimatedCostUSD,
				Build:             buildinfo.Info(),
			}
		},
		Logger: logger,
	}))

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("tabq stopped")
	return nil
}

// runAsk handles the "tabq ask" subcommand. It boots a minimal agent
// (in-memory store, no archive) and processes a single question.
func runAsk(ctx context.Context, stdout io.Writer, configPath, csvPath, outputFmt string, args []string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.Memory.ArchivePath = ""
	cfg.DataDir = ""

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}

	if csvPath != "" {
		if err := rt.table.Load(csvPath); err != nil {
			return fmt.Errorf("load %s: %w", csvPath, err)
		}
	}

	resp, err := rt.agent.Ask(ctx, &agent.Request{Question: question, ConversationID: "cli"})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintln(stdout, resp.Answer)
	if len(resp.ToolCalls) > 0 {
		names := make([]string, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			names[i] = tc.Tool
		}
		fmt.Fprintf(stdout, "\n[tools used: %s]\n", strings.Join(names, ", "))
	}
	return nil
}

// runInfo handles the "tabq info <file.csv>" subcommand: load the file
// and print its summary and per-column detail without involving a model.
func runInfo(stdout io.Writer, configPath, csvPath string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	table := dataset.New(dataset.Options{
		Delimiter:     delimiterRune(cfg.Dataset.Delimiter),
		MaxFileSizeMB: cfg.Dataset.MaxFileSizeMB,
		MaxResultRows: cfg.Dataset.MaxResultRows,
	}, logger)

	if err := table.Load(csvPath); err != nil {
		return err
	}

	summary, err := table.Summary()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, summary)
	fmt.Fprintln(stdout)

	meta, err := table.Metadata()
	if err != nil {
		return err
	}
	for _, col := range meta.Columns {
		info, err := table.ColumnInfo(col)
		if err != nil {
			return err
		}
		role := "dimension"
		if info.IsMeasure {
			role = "measure"
		}
		fmt.Fprintf(stdout, "%-20s %-8s %-10s %s\n", info.Name, info.Type, role, info.Description)
	}
	return nil
}
