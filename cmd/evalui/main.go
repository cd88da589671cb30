// Package main is the evalui CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/JingePHA/eval-ui/internal/cli"
	"github.com/JingePHA/eval-ui/internal/config"
	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/navigation"
	"github.com/JingePHA/eval-ui/internal/registry"
	"github.com/JingePHA/eval-ui/internal/server"
	"github.com/JingePHA/eval-ui/internal/source"
	"github.com/JingePHA/eval-ui/internal/storage"
	"github.com/JingePHA/eval-ui/internal/watcher"
	"github.com/JingePHA/eval-ui/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/evalui/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "documents":
		runDocuments()
	case "export":
		runExport()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("evalui version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watcher events, saves, fetch fallbacks)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLoggerWithFile(debugMode, cfg.LogFile)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sessionID := uuid.New().String()
	logger = logger.With(zap.String("session_id", sessionID))
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	components, err := initializeComponents(cfg, logger, debugMode, sessionID)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	controller := navigation.NewController(
		registry.New(components.IDs),
		components.Source,
		components.Source,
		components.Gateway,
		navigation.WithLogger(logger),
		navigation.WithModes(components.Modes...),
		navigation.WithQueueSize(cfg.Review.SaveQueueSize),
		navigation.WithSaveObserver(func(r models.SaveResult) {
			if !r.OK {
				logger.Warn("annotation save failed", zap.String("key", r.Key), zap.String("error", r.Error))
			}
		}),
	)
	if err := controller.Open(context.Background()); err != nil {
		logger.Fatal("Failed to open first document", zap.Error(err))
	}
	logger.Info("review session started", zap.Int("documents", len(components.IDs)))

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Documents.WatchOrDefault() {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.New(
			cfg.Documents.Directory,
			components.Source.Matches,
			func(names []string) {
				ids := make([]models.DocumentID, 0, len(names))
				for _, name := range names {
					ids = append(ids, models.DocumentID(name))
				}
				if n := controller.AddDocuments(watchCtx, ids...); n > 0 {
					logger.Info("documents added", zap.Strings("names", names))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(controller, components.Gateway, components.Source, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := controller.Close(ctx); err != nil {
		logger.Warn("pending saves did not finish", zap.Error(err))
	}
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat, cli.OutputText, cli.OutputJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; use text or json\n", err)
		os.Exit(1)
	}
	components := mustComponents(*configPath)
	defer components.Close()

	rows, err := cli.CollectDocuments(context.Background(), components.Gateway, components.IDs, components.Modes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List documents failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, rows, components.Modes, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	formatFlag := fs.String("format", "text", "output format: text, json or xlsx")
	outPath := fs.String("out", "", "output file (default: stdout; required for xlsx)")
	modeFlag := fs.String("mode", "", "annotation mode: indicator or range (default: first configured mode)")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*formatFlag, cli.OutputText, cli.OutputJSON, cli.OutputXLSX)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; use text, json or xlsx\n", err)
		os.Exit(1)
	}
	if format == cli.OutputXLSX && *outPath == "" {
		fmt.Fprintln(os.Stderr, "xlsx export requires --out")
		os.Exit(1)
	}
	components := mustComponents(*configPath)
	defer components.Close()

	mode := components.Modes[0]
	if *modeFlag != "" {
		if mode, err = models.ParseMode(*modeFlag); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	snaps, err := cli.CollectSnapshots(context.Background(), components.Gateway, components.IDs, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Create output failed: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	if err := cli.WriteExport(out, snaps, format); err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
	if *outPath != "" {
		fmt.Printf("Exported %d snapshots to %s\n", len(snaps), *outPath)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat, cli.OutputText, cli.OutputJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; use text or json\n", err)
		os.Exit(1)
	}

	var status *cli.StatusReport
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components := mustComponents(*configPath)
		defer components.Close()
		status, err = directStatus(context.Background(), components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func directStatus(ctx context.Context, c *Components) (*cli.StatusReport, error) {
	count, err := c.Gateway.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}
	status := &cli.StatusReport{
		Snapshots: count,
		Documents: len(c.IDs),
		Config: &cli.StatusConfig{
			StorageBackend:    c.Config.Storage.Backend,
			DocumentDirectory: c.Config.Documents.Directory,
		},
	}
	for _, m := range c.Modes {
		status.Modes = append(status.Modes, string(m))
	}
	if c.Config.Storage.Backend == "sqlite" {
		status.Config.DatabasePath = c.Config.Storage.DatabasePath
		if diskBytes, err := storage.DatabaseDiskUsage(c.Config.Storage.DatabasePath); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*cli.StatusReport, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s cli.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds the collaborators shared by the subcommands.
type Components struct {
	Config  *config.Config
	Gateway storage.Gateway
	Source  *source.Source
	IDs     []models.DocumentID
	Modes   []models.Mode
}

func (c *Components) Close() {
	if c.Gateway != nil {
		_ = c.Gateway.Close()
	}
}

func mustComponents(configPath string) *Components {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, cfg.Debug, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool, sessionID string) (*Components, error) {
	modes := make([]models.Mode, 0, len(cfg.Review.Modes))
	for _, m := range cfg.Review.Modes {
		mode, err := models.ParseMode(m)
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}

	srcOpts := []source.Option{}
	if debug && logger != nil {
		srcOpts = append(srcOpts, source.WithLogger(logger))
	}
	src := source.New(source.Layout{
		DocumentDir:      cfg.Documents.Directory,
		TranscriptDir:    cfg.Documents.TranscriptDirectory,
		FieldsDir:        cfg.Documents.FieldsDirectory,
		Extension:        cfg.Documents.Extension,
		TranscriptSuffix: cfg.Documents.TranscriptSuffix,
		FieldsSuffix:     cfg.Documents.FieldsSuffix,
	}, srcOpts...)

	ids, err := src.List(context.Background())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		if logger != nil {
			logger.Warn("document directory does not exist yet", zap.String("path", cfg.Documents.Directory))
		}
	}

	gateway, err := storage.Open(storage.Options{
		Backend:      cfg.Storage.Backend,
		DatabasePath: cfg.Storage.DatabasePath,
		RedisURL:     cfg.Storage.RedisURL,
		RedisPrefix:  cfg.Storage.RedisPrefix,
		SessionID:    sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &Components{
		Config:  cfg,
		Gateway: gateway,
		Source:  src,
		IDs:     ids,
		Modes:   modes,
	}, nil
}

func printUsage() {
	fmt.Println(`evalui - Document review and annotation server

Usage:
  evalui server [flags]       Start the review HTTP server
  evalui documents [flags]    List documents and whether their annotations are saved
  evalui export [flags]       Export saved annotations
  evalui status [flags]       Show session/storage status
  evalui version              Show version
  evalui help                 Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/evalui/config.yaml)
  --debug            Enable debug logging

Documents Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Export Flags:
  --config string    Config file path
  --format string    Output format: text, json or xlsx (default: text)
  --out string       Output file (default: stdout; required for xlsx)
  --mode string      indicator or range (default: first configured mode)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Environment:
  EVALUI_STORAGE_BACKEND, EVALUI_REDIS_URL, EVALUI_DOCUMENTS_DIR, EVALUI_DEBUG
  (also read from a .env file in the working directory)

Examples:
  evalui server
  evalui documents
  evalui export --format xlsx --out annotations.xlsx
  evalui export --mode range --format json
  evalui status --server ""`)
}
