package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/usorama/pingmem/internal/core"
	"github.com/usorama/pingmem/internal/output"
	"github.com/usorama/pingmem/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	format   string // "text", "json"
	bm25Only bool   // skip semantic and graph modes, use BM25 only
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the ingested codebase",
		Long: `Search code chunks ingested by 'pingmem index', fusing keyword and
semantic ranking signals with Reciprocal Rank Fusion.

Examples:
  pingmem search "authentication middleware"
  pingmem search "handleRequest" --limit 5
  pingmem search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword search only (skip semantic search)")

	return cmd
}

type searchResultView struct {
	ChunkID  string  `json:"chunk_id"`
	FilePath string  `json:"file_path"`
	Type     string  `json:"type"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	root, dataDir, err := resolveProjectRoot(".")
	if err != nil {
		return err
	}

	c, err := core.Open(core.Config{DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("open core: %w", err)
	}
	defer func() { _ = c.Close() }()

	modes := []search.SearchMode{search.ModeKeyword, search.ModeSemantic}
	if opts.bm25Only {
		modes = []search.SearchMode{search.ModeKeyword}
	}

	hits, err := c.Hybrid.Search(ctx, query, search.HybridOptions{
		Limit: opts.limit,
		Modes: modes,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	views := make([]searchResultView, 0, len(hits))
	for _, h := range hits {
		ent, gerr := c.Graph.GetEntity(h.MemoryID)
		if gerr != nil || ent.Properties["node-kind"] != "chunk" {
			continue
		}
		views = append(views, searchResultView{
			ChunkID:  h.MemoryID,
			FilePath: ent.Properties["file-path"],
			Type:     ent.Properties["chunk-type"],
			Content:  ent.Properties["content"],
			Score:    h.HybridScore,
		})
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		out.Status("", fmt.Sprintf("No results for %q in %s", query, root))
		return nil
	}

	for i, v := range views {
		out.Statusf("", "%d. %s (%s)  score=%.3f", i+1, v.FilePath, v.Type, v.Score)
		out.Code(v.Content)
	}
	return nil
}
