package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usorama/pingmem/internal/core"
	"github.com/usorama/pingmem/internal/output"
)

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete [path]",
		Short: "Delete a project's ingested data",
		Long: `Delete a project's graph entities, relationships, and vector/keyword
index entries, along with any memories saved under its sessions.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete without --yes")
			}
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runDelete(cmd.Context(), cmd, path)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, path string) error {
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

	projectID := c.ProjectID(root)
	if err := c.Pipeline.Delete(ctx, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if _, err := c.Memories.DeleteBySession(projectID); err != nil {
		return fmt.Errorf("delete project memories: %w", err)
	}

	out.Successf("Deleted project %s", projectID)
	return nil
}
