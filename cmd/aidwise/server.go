package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/aidwise/aidwise/internal/api"
	"github.com/aidwise/aidwise/internal/cache"
	"github.com/aidwise/aidwise/internal/chat"
	"github.com/aidwise/aidwise/internal/composer"
	"github.com/aidwise/aidwise/internal/config"
	"github.com/aidwise/aidwise/internal/generation"
	"github.com/aidwise/aidwise/internal/ingest"
	"github.com/aidwise/aidwise/internal/knowledge"
	"github.com/aidwise/aidwise/internal/retry"
	"github.com/aidwise/aidwise/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aidwise server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aidwise system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "aidwise.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "aidwise version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("aidwise is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("aidwise is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the answer pipeline.
	genClient := generation.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Model, cfg.Backend.EmbedModel)
	vectorStore := knowledge.NewSQLiteStore(store.DB())
	embedder := knowledge.NewEmbedder(genClient)
	searcher := knowledge.NewSearcher(embedder, vectorStore, cfg.Search.TopK)
	respCache := cache.New(cfg.Cache.Capacity)

	orchestrator := chat.New(chat.Options{
		Cache:         respCache,
		Generator:     genClient,
		Searcher:      searcher,
		Composer:      composer.New(0),
		Conversations: store,
		Progress:      store,
		Retry: retry.Options{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:  2,
		},
	})
	go orchestrator.Run(ctx)

	// Start ingest worker.
	worker := ingest.NewWorker(store, embedder, vectorStore, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build HTTP handler and server.
	handler := api.NewHandler(orchestrator, store, cfg.API.Token)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Assistant: orchestrator,
		Docs:      store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "aidwise listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status on config errors.
		printWarning("config: %v", err)
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Backend", "%s", cfg.Backend.BaseURL)
	printStatus("Model", "%s", cfg.Backend.Model)
	printStatus("Embed model", "%s", cfg.Backend.EmbedModel)

	// Show cache and document stats if server is running.
	if running {
		api, err := newAPIClient()
		if err == nil {
			if statsResp, err := api.get(context.Background(), "/v1/cache/stats"); err == nil {
				var stats struct {
					Entries int   `json:"entries"`
					Hits    int64 `json:"hits"`
					Misses  int64 `json:"misses"`
				}
				if decodeJSON(statsResp, &stats) == nil {
					printStatus("Cache", "%d entries (%d hits, %d misses)", stats.Entries, stats.Hits, stats.Misses)
				}
			}
			if docsResp, err := api.get(context.Background(), "/v1/documents"); err == nil {
				var docs struct {
					Documents []json.RawMessage `json:"documents"`
				}
				if decodeJSON(docsResp, &docs) == nil {
					printStatus("Form docs", "%s", countLabel(len(docs.Documents), 100))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
