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
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/hypewatch/internal/api"
	"github.com/kalambet/hypewatch/internal/classifier"
	"github.com/kalambet/hypewatch/internal/collector"
	"github.com/kalambet/hypewatch/internal/config"
	"github.com/kalambet/hypewatch/internal/deepseek"
	"github.com/kalambet/hypewatch/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hypewatch server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hypewatch server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func setupLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// buildClassifier wires the full pipeline from config: DeepSeek client,
// collector registry, result cache, orchestrator.
func buildClassifier(cfg config.Config, store *storage.Store) *classifier.Classifier {
	ds := deepseek.NewClientWithBaseURL(cfg.DeepSeek.APIKey, cfg.DeepSeek.BaseURL)
	collectors := collector.New(nil, ds, collector.Settings{
		PatentsViewAPIKey: cfg.Providers.PatentsViewAPIKey,
	})
	return classifier.New(collectors, ds, store, cfg.Analysis)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "hypewatch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	cls := buildClassifier(cfg, store)

	handler := api.NewHandler(api.Deps{
		Classifier: cls,
		Store:      store,
		Version:    version,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio in parallel with HTTP.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Classifier: cls,
		Store:      store,
		Version:    version,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "hypewatch listening on %s\n", addr)
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
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/api/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		defer resp.Body.Close()
		var health struct {
			Status   string `json:"status"`
			Database string `json:"database"`
			Version  string `json:"version"`
		}
		if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&health) == nil {
			printStatus("Server", "running on port %d (version %s)", cfg.Server.Port, health.Version)
			printStatus("Database", "%s", health.Database)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Cache TTL", "%s", cfg.Analysis.CacheTTL())
	printStatus("Quorum", "%d of 5 sources", cfg.Analysis.Quorum)
	return nil
}
