package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/usorama/pingmem/internal/config"
	"github.com/usorama/pingmem/internal/core"
	"github.com/usorama/pingmem/internal/logging"
	"github.com/usorama/pingmem/internal/mcp"
	"github.com/usorama/pingmem/internal/watcher"
)

const defaultWatcherStartupTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		debug     bool
		transport string
		session   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the PingMem MCP server.

The server speaks the Model Context Protocol over stdio, exposing
context_save, context_hybrid_search, codebase_ingest, and the rest of
PingMem's tools to any MCP-speaking agent (Claude Code, Cursor, etc).

MCP requires stdout be reserved exclusively for JSON-RPC messages, so
serve never writes status output to stdout; use 'pingmem doctor' or
the debug-level log serve always writes under ~/.pingmem/logs/ for
diagnostics instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = debug
			_ = session
			if err := verifyStdinForMCP(); err != nil {
				return err
			}
			return runServe(cmd.Context(), transport, 0)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Has no effect: serve always logs at debug level to ~/.pingmem/logs/")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve on (stdio)")
	cmd.Flags().StringVar(&session, "session", "", "Session identifier (accepted but unused; memories are not scoped by it)")

	return cmd
}

// runServe opens a Core against the current project's data directory and
// serves the MCP tool surface on transport until ctx is canceled. port is
// accepted for forward compatibility with network transports; stdio
// ignores it.
func runServe(ctx context.Context, transport string, port int) error {
	_ = port

	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve project root: %w", err)
		}
	}
	dataDir := filepath.Join(root, ".pingmem")

	c, err := core.Open(core.Config{DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("open core: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			slog.Error("error closing core", slog.String("error", closeErr.Error()))
		}
	}()

	server, err := mcp.NewServer(c)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	startFileWatcher(ctx, c, root)

	return server.Serve(ctx, transport)
}

// startFileWatcher starts the hybrid file watcher in the background so a
// slow filesystem (or a watcher that fails outright) never delays the MCP
// handshake. Watcher events are drained and discarded: they trigger no
// ingestion and mark nothing stale, so the index changes only on an
// explicit codebase_ingest call.
func startFileWatcher(ctx context.Context, c *core.Core, root string) {
	timeout := defaultWatcherStartupTimeout
	if v := os.Getenv("PINGMEM_WATCHER_STARTUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}

	go func() {
		startCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		w, err := watcher.NewHybridWatcher(watcher.Options{})
		if err != nil {
			slog.Warn("file watcher unavailable", slog.String("error", err.Error()))
			return
		}

		if err := w.Start(startCtx, root); err != nil {
			slog.Warn("file watcher failed to start", slog.String("error", err.Error()))
			return
		}

		slog.Info("file watcher started", slog.String("root", root))

		go func() {
			<-ctx.Done()
			_ = w.Stop()
		}()

		for range w.Events() {
			// Events are discarded; codebase_ingest recomputes the tree
			// hash on demand.
		}
	}()
}

// verifyStdinForMCP rejects interactive terminal stdin: the MCP protocol
// expects a pipe from the calling agent, and a server waiting on a TTY for
// JSON-RPC input just hangs with no indication why.
func verifyStdinForMCP() error {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil
	}
	if (info.Mode() & os.ModeCharDevice) != 0 {
		return fmt.Errorf("stdin is a terminal; pingmem serve expects an MCP client piping JSON-RPC over stdio")
	}
	return nil
}
