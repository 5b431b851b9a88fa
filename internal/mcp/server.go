// Package mcp implements the Model Context Protocol (MCP) server for PingMem.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usorama/pingmem/internal/core"
	"github.com/usorama/pingmem/internal/graph"
	"github.com/usorama/pingmem/internal/search"
	"github.com/usorama/pingmem/pkg/version"
)

// Server bridges MCP clients (Claude Code, Cursor, any MCP-speaking agent)
// to a Core: eleven tools covering memory save/search, graph traversal,
// temporal queries, and codebase ingestion/search.
type Server struct {
	mcp    *mcp.Server
	core   *core.Core
	logger *slog.Logger
}

// NewServer wires every spec tool against c and returns a Server ready to
// Serve. c must already be open; the Server never closes it.
func NewServer(c *core.Core) (*Server, error) {
	if c == nil {
		return nil, fmt.Errorf("mcp: core is required")
	}

	s := &Server{core: c, logger: slog.Default()}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "PingMem", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) { return "PingMem", version.Version }

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_save",
		Description: "Save a piece of context (a decision, a task, a fact, an error) as a memory. Optionally extracts entities from its text into the knowledge graph.",
	}, s.handleContextSave)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_search",
		Description: "Search saved memories by keyword, filtered by category or channel.",
	}, s.handleContextSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_hybrid_search",
		Description: "Search saved memories by fusing semantic, keyword, and graph-expansion ranking signals. Use this over context_search when recall matters more than exact-term matching.",
	}, s.handleContextHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_query_relationships",
		Description: "Walk the knowledge graph outward from one entity, returning its neighborhood's entities, relationships, and connecting paths.",
	}, s.handleContextQueryRelationships)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_get_lineage",
		Description: "Find an entity's ancestors (what it depends on or derives from) and descendants (what depends on or derives from it).",
	}, s.handleContextGetLineage)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_query_evolution",
		Description: "Walk an entity's version history over time, optionally bounded to a time window.",
	}, s.handleContextQueryEvolution)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_ingest",
		Description: "Scan a project directory, chunk and embed its files, and link them into the knowledge graph. A no-op if the tree has not changed since the last ingest.",
	}, s.handleCodebaseIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_verify",
		Description: "Check whether a project's on-disk tree still matches what was last ingested.",
	}, s.handleCodebaseVerify)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_search",
		Description: "Search ingested code chunks by keyword and semantic similarity, optionally filtered to a project or file.",
	}, s.handleCodebaseSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_timeline",
		Description: "List the commit history ingested for a project, optionally filtered to one file.",
	}, s.handleCodebaseTimeline)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_delete",
		Description: "Delete a project's ingested data: its graph entities, relationships, vector and keyword index entries, and any memories saved under its sessions.",
	}, s.handleProjectDelete)

	s.logger.Info("MCP tools registered", slog.Int("count", 11))
}

// Serve starts the server on the given transport. Only "stdio" is
// implemented; it is the only transport MCP clients in the wild speak.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close checkpoints the vector index. It does not close the underlying
// Core; the caller that opened it owns its lifetime.
func (s *Server) Close() error {
	return s.core.Checkpoint(context.Background())
}

// relationshipDirection is the direction a relationship traversal follows.
type relationshipDirection string

const (
	dirIncoming relationshipDirection = "incoming"
	dirOutgoing relationshipDirection = "outgoing"
	dirBoth     relationshipDirection = "both"
)

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func relTypesFrom(raw []string) []graph.RelationshipType {
	if len(raw) == 0 {
		return nil
	}
	out := make([]graph.RelationshipType, 0, len(raw))
	for _, r := range raw {
		out = append(out, graph.RelationshipType(r))
	}
	return out
}

func modeWeightsFrom(w map[string]float64) search.ModeWeights {
	if len(w) == 0 {
		return nil
	}
	out := make(search.ModeWeights, len(w))
	for k, v := range w {
		out[search.SearchMode(k)] = v
	}
	return out
}
