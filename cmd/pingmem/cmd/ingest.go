package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/usorama/pingmem/internal/config"
	"github.com/usorama/pingmem/internal/core"
	"github.com/usorama/pingmem/internal/output"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "index [path]",
		Aliases: []string{"ingest"},
		Short:   "Ingest a project into the knowledge graph and search index",
		Long: `Scan a project directory, chunk and embed its files, and link them
into the knowledge graph.

The pipeline hashes the working tree and skips the whole run when the
tree hash is unchanged since the last ingest; when anything changed,
every file is re-ingested. Use --force to re-ingest everything
regardless of the tree hash.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIngest(ctx, cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest every file regardless of tree hash")

	cmd.AddCommand(newVerifyCmd())
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [path]",
		Short: "Check whether a project's tree matches its last ingest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runVerify(cmd.Context(), cmd, path)
		},
	}
	return cmd
}

func resolveProjectRoot(path string) (string, string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolve path: %w", err)
	}
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}
	return root, filepath.Join(root, ".pingmem"), nil
}

func runIngest(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	root, dataDir, err := resolveProjectRoot(path)
	if err != nil {
		return err
	}

	c, err := core.Open(core.Config{DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("open core: %w", err)
	}
	defer func() { _ = c.Close() }()

	out.Status("", fmt.Sprintf("Ingesting %s...", root))

	result, err := c.Pipeline.Ingest(ctx, root, force)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if result == nil {
		out.Success("Tree unchanged since last ingest (use --force to re-ingest)")
		return nil
	}

	out.Successf("Ingested %d files, %d chunks, %d commits (project %s)",
		result.FilesIndexed, result.ChunksIndexed, result.CommitsIndexed, result.ProjectID)
	return nil
}

func runVerify(ctx context.Context, cmd *cobra.Command, path string) error {
	out := output.New(cmd.OutOrStdout())

	root, dataDir, err := resolveProjectRoot(path)
	if err != nil {
		return err
	}

	c, err := core.Open(core.Config{DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("open core: %w", err)
	}
	defer func() { _ = c.Close() }()

	result, err := c.Pipeline.Verify(ctx, root)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if result.Valid {
		out.Success(result.Message)
		return nil
	}
	out.Warning(result.Message)
	return fmt.Errorf("tree does not match last ingest")
}
