package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usorama/pingmem/internal/graph"
	"github.com/usorama/pingmem/internal/memstore"
	"github.com/usorama/pingmem/internal/search"
)

// --- context_save ---

type ContextSaveInput struct {
	Key             string            `json:"key" jsonschema:"the memory's lookup key"`
	Value           string            `json:"value" jsonschema:"the content to remember"`
	Category        string            `json:"category,omitempty" jsonschema:"one of task, decision, progress, note, error, warning, fact, observation"`
	Priority        string            `json:"priority,omitempty" jsonschema:"one of high, normal, low"`
	Channel         string            `json:"channel,omitempty" jsonschema:"a free-form grouping label, e.g. a project or topic"`
	Metadata        map[string]string `json:"metadata,omitempty" jsonschema:"arbitrary caller-supplied key/value tags"`
	ExtractEntities bool              `json:"extractEntities,omitempty" jsonschema:"also extract and link entities from the saved text into the knowledge graph"`
}

type ContextSaveOutput struct {
	MemoryID  string   `json:"memoryId"`
	EntityIDs []string `json:"entityIds,omitempty"`
}

func (s *Server) handleContextSave(ctx context.Context, _ *mcp.CallToolRequest, input ContextSaveInput) (*mcp.CallToolResult, ContextSaveOutput, error) {
	if input.Key == "" || input.Value == "" {
		return nil, ContextSaveOutput{}, NewInvalidParamsError("key and value are required")
	}

	rec, err := s.core.Memories.Save(&memstore.Record{
		Key:      input.Key,
		Value:    input.Value,
		Category: input.Category,
		Priority: input.Priority,
		Channel:  input.Channel,
		Metadata: input.Metadata,
	})
	if err != nil {
		return nil, ContextSaveOutput{}, MapError(fmt.Errorf("save memory: %w", err))
	}

	if err := s.core.Hybrid.IndexDocument(ctx, rec.ID, "", input.Value, rec.CreatedAt, input.Category); err != nil {
		return nil, ContextSaveOutput{}, MapError(fmt.Errorf("index memory: %w", err))
	}

	out := ContextSaveOutput{MemoryID: rec.ID}
	if input.ExtractEntities {
		entityIDs, err := s.extractAndLink(rec.Key, input.Value, input.Category)
		if err != nil {
			return nil, ContextSaveOutput{}, MapError(err)
		}
		out.EntityIDs = entityIDs
		if len(entityIDs) > 0 {
			rec.EntityIDs = entityIDs
			if _, err := s.core.Memories.Save(rec); err != nil {
				return nil, ContextSaveOutput{}, MapError(fmt.Errorf("record extracted entities: %w", err))
			}
		}
	}
	return nil, out, nil
}

// extractAndLink runs the extractor over text, merges every candidate
// entity into the graph, infers relationships among them, and creates
// whichever of those relationships do not already exist.
func (s *Server) extractAndLink(key, value, category string) ([]string, error) {
	result := s.core.Extractor.ExtractFromContext(graph.ExtractionContext{Key: key, Value: value, Category: category})
	if len(result.Entities) == 0 {
		return nil, nil
	}

	entityIDs := make([]string, 0, len(result.Entities))
	for _, e := range result.Entities {
		ent, _, err := s.core.Graph.MergeEntity(&graph.Entity{
			ID:         e.ID,
			Type:       e.Type,
			Name:       e.Name,
			Properties: e.Properties,
		})
		if err != nil {
			return nil, fmt.Errorf("merge entity %q: %w", e.Name, err)
		}
		entityIDs = append(entityIDs, ent.ID)
	}

	inferred := s.core.Inferencer.Infer(result.Entities, value, graph.DefaultInferenceOptions())
	for _, rel := range inferred.Relationships {
		relID := graph.GenerateID("rel", string(rel.Type), rel.SourceID, rel.TargetID)
		if _, err := s.core.Graph.GetRelationship(relID); err == nil {
			continue
		}
		if _, err := s.core.Graph.CreateRelationship(&graph.Relationship{
			ID:       relID,
			SourceID: rel.SourceID,
			TargetID: rel.TargetID,
			Type:     rel.Type,
			Weight:   rel.Weight,
		}); err != nil {
			if _, ok := err.(graph.ErrEndpointMissing); ok {
				continue
			}
			return nil, fmt.Errorf("create relationship %s->%s: %w", rel.SourceID, rel.TargetID, err)
		}
	}
	return entityIDs, nil
}

// --- context_search ---

type ContextSearchInput struct {
	Query         string  `json:"query" jsonschema:"the search query"`
	MinSimilarity float64 `json:"minSimilarity,omitempty" jsonschema:"minimum hybrid score, 0 to 1"`
	Category      string  `json:"category,omitempty" jsonschema:"restrict to memories saved under this category"`
	Channel       string  `json:"channel,omitempty" jsonschema:"restrict to memories saved under this channel"`
	Limit         int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

type MemoryResult struct {
	MemoryID  string  `json:"memoryId"`
	Key       string  `json:"key"`
	Value     string  `json:"value"`
	Category  string  `json:"category,omitempty"`
	Priority  string  `json:"priority,omitempty"`
	Channel   string  `json:"channel,omitempty"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"createdAt"`
}

type ContextSearchOutput struct {
	Count   int            `json:"count"`
	Results []MemoryResult `json:"results"`
}

func (s *Server) handleContextSearch(ctx context.Context, _ *mcp.CallToolRequest, input ContextSearchInput) (*mcp.CallToolResult, ContextSearchOutput, error) {
	if input.Query == "" {
		return nil, ContextSearchOutput{}, NewInvalidParamsError("query is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.core.Hybrid.Search(ctx, input.Query, search.HybridOptions{
		Limit:     limit,
		Threshold: input.MinSimilarity,
		Category:  input.Category,
		Modes:     []search.SearchMode{search.ModeKeyword},
		Weights:   search.ModeWeights{search.ModeKeyword: 1},
	})
	if err != nil {
		return nil, ContextSearchOutput{}, MapError(err)
	}

	out := ContextSearchOutput{Results: make([]MemoryResult, 0, len(results))}
	for _, r := range results {
		rec := s.core.Memories.Get(r.MemoryID)
		if rec == nil {
			continue
		}
		if input.Channel != "" && rec.Channel != input.Channel {
			continue
		}
		out.Results = append(out.Results, MemoryResult{
			MemoryID:  rec.ID,
			Key:       rec.Key,
			Value:     rec.Value,
			Category:  rec.Category,
			Priority:  rec.Priority,
			Channel:   rec.Channel,
			Score:     r.HybridScore,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}
	out.Count = len(out.Results)
	return nil, out, nil
}

// --- context_hybrid_search ---

type ContextHybridSearchInput struct {
	Query     string             `json:"query" jsonschema:"the search query"`
	Limit     int                `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Weights   map[string]float64 `json:"weights,omitempty" jsonschema:"per-mode weight override, keys semantic, keyword, graph"`
	SessionID string             `json:"sessionId,omitempty" jsonschema:"restrict to memories saved under this session"`
}

type HybridSearchResult struct {
	MemoryResult
	Modes []string `json:"modes"`
}

type ContextHybridSearchOutput struct {
	Query   string                `json:"query"`
	Count   int                   `json:"count"`
	Results []HybridSearchResult `json:"results"`
}

func (s *Server) handleContextHybridSearch(ctx context.Context, _ *mcp.CallToolRequest, input ContextHybridSearchInput) (*mcp.CallToolResult, ContextHybridSearchOutput, error) {
	if input.Query == "" {
		return nil, ContextHybridSearchOutput{}, NewInvalidParamsError("query is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.core.Hybrid.Search(ctx, input.Query, search.HybridOptions{
		Limit:     limit,
		SessionID: input.SessionID,
		Weights:   modeWeightsFrom(input.Weights),
	})
	if err != nil {
		return nil, ContextHybridSearchOutput{}, MapError(err)
	}

	out := ContextHybridSearchOutput{Query: input.Query, Results: make([]HybridSearchResult, 0, len(results))}
	for _, r := range results {
		rec := s.core.Memories.Get(r.MemoryID)
		hr := HybridSearchResult{MemoryResult: MemoryResult{MemoryID: r.MemoryID, Value: r.Content, Score: r.HybridScore}}
		if rec != nil {
			hr.Key = rec.Key
			hr.Category = rec.Category
			hr.Priority = rec.Priority
			hr.Channel = rec.Channel
			hr.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
		}
		for _, m := range r.SearchModes {
			hr.Modes = append(hr.Modes, string(m))
		}
		out.Results = append(out.Results, hr)
	}
	out.Count = len(out.Results)
	return nil, out, nil
}

// --- context_query_relationships ---

type ContextQueryRelationshipsInput struct {
	EntityID          string   `json:"entityId" jsonschema:"the entity to expand from"`
	Depth             int      `json:"depth,omitempty" jsonschema:"hop count to expand, default 1"`
	RelationshipTypes []string `json:"relationshipTypes,omitempty" jsonschema:"restrict expansion to these relationship types"`
	Direction         string   `json:"direction,omitempty" jsonschema:"one of incoming, outgoing, both; default both"`
}

type EntityOutput struct {
	ID   string            `json:"id"`
	Type string            `json:"type"`
	Name string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

type RelationshipOutput struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	SourceID string  `json:"sourceId"`
	TargetID string  `json:"targetId"`
	Weight   float64 `json:"weight"`
}

type PathOutput struct {
	EntityIDs []string `json:"entityIds"`
}

type ContextQueryRelationshipsOutput struct {
	Entities      []EntityOutput       `json:"entities"`
	Relationships []RelationshipOutput `json:"relationships"`
	Paths         []PathOutput         `json:"paths"`
}

func (s *Server) handleContextQueryRelationships(_ context.Context, _ *mcp.CallToolRequest, input ContextQueryRelationshipsInput) (*mcp.CallToolResult, ContextQueryRelationshipsOutput, error) {
	if input.EntityID == "" {
		return nil, ContextQueryRelationshipsOutput{}, NewInvalidParamsError("entityId is required")
	}
	depth := input.Depth
	if depth <= 0 {
		depth = 1
	}
	direction := relationshipDirection(input.Direction)
	if direction == "" {
		direction = dirBoth
	}
	allowed := make(map[graph.RelationshipType]bool)
	for _, t := range relTypesFrom(input.RelationshipTypes) {
		allowed[t] = true
	}

	center, err := s.core.Graph.GetEntity(input.EntityID)
	if err != nil {
		return nil, ContextQueryRelationshipsOutput{}, MapError(err)
	}

	seenEntities := map[string]*graph.Entity{center.ID: center}
	seenRels := map[string]*graph.Relationship{}
	paths := [][]string{{center.ID}}

	frontier := []string{center.ID}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, r := range s.core.Graph.FindByEntity(id) {
				if len(allowed) > 0 && !allowed[r.Type] {
					continue
				}
				switch direction {
				case dirIncoming:
					if r.TargetID != id {
						continue
					}
				case dirOutgoing:
					if r.SourceID != id {
						continue
					}
				}
				seenRels[r.ID] = r
				other := r.SourceID
				if other == id {
					other = r.TargetID
				}
				if _, ok := seenEntities[other]; ok {
					continue
				}
				ent, err := s.core.Graph.GetEntity(other)
				if err != nil {
					continue
				}
				seenEntities[other] = ent
				paths = append(paths, []string{center.ID, other})
				next = append(next, other)
			}
		}
		frontier = next
	}

	out := ContextQueryRelationshipsOutput{}
	for _, e := range seenEntities {
		out.Entities = append(out.Entities, toEntityOutput(e))
	}
	for _, r := range seenRels {
		out.Relationships = append(out.Relationships, toRelationshipOutput(r))
	}
	for _, p := range paths {
		out.Paths = append(out.Paths, PathOutput{EntityIDs: p})
	}
	return nil, out, nil
}

func toEntityOutput(e *graph.Entity) EntityOutput {
	return EntityOutput{ID: e.ID, Type: string(e.Type), Name: e.Name, Properties: e.Properties}
}

func toRelationshipOutput(r *graph.Relationship) RelationshipOutput {
	return RelationshipOutput{ID: r.ID, Type: string(r.Type), SourceID: r.SourceID, TargetID: r.TargetID, Weight: r.Weight}
}

// --- context_get_lineage ---

type ContextGetLineageInput struct {
	EntityID  string `json:"entityId" jsonschema:"the entity to trace"`
	Direction string `json:"direction,omitempty" jsonschema:"one of upstream, downstream, both; default both"`
	MaxDepth  int    `json:"maxDepth,omitempty" jsonschema:"maximum traversal depth"`
}

type LineageCounts struct {
	Upstream   int `json:"upstream"`
	Downstream int `json:"downstream"`
}

type ContextGetLineageOutput struct {
	Upstream   []EntityOutput `json:"upstream"`
	Downstream []EntityOutput `json:"downstream"`
	Counts     LineageCounts  `json:"counts"`
}

func (s *Server) handleContextGetLineage(_ context.Context, _ *mcp.CallToolRequest, input ContextGetLineageInput) (*mcp.CallToolResult, ContextGetLineageOutput, error) {
	if input.EntityID == "" {
		return nil, ContextGetLineageOutput{}, NewInvalidParamsError("entityId is required")
	}

	direction := input.Direction
	if direction == "" {
		direction = "both"
	}

	out := ContextGetLineageOutput{}
	if direction == "upstream" || direction == "both" {
		ancestors, err := s.core.Lineage.Ancestors(input.EntityID, input.MaxDepth)
		if err != nil {
			return nil, ContextGetLineageOutput{}, MapError(err)
		}
		for _, e := range ancestors {
			out.Upstream = append(out.Upstream, toEntityOutput(e))
		}
	}
	if direction == "downstream" || direction == "both" {
		descendants, err := s.core.Lineage.Descendants(input.EntityID, input.MaxDepth)
		if err != nil {
			return nil, ContextGetLineageOutput{}, MapError(err)
		}
		for _, e := range descendants {
			out.Downstream = append(out.Downstream, toEntityOutput(e))
		}
	}
	out.Counts = LineageCounts{Upstream: len(out.Upstream), Downstream: len(out.Downstream)}
	return nil, out, nil
}

// --- context_query_evolution ---

type ContextQueryEvolutionInput struct {
	EntityID  string `json:"entityId" jsonschema:"the entity to trace"`
	StartTime string `json:"startTime,omitempty" jsonschema:"ISO-8601 lower bound"`
	EndTime   string `json:"endTime,omitempty" jsonschema:"ISO-8601 upper bound"`
}

type EntityChangeOutput struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Version   int    `json:"version"`
}

type ContextQueryEvolutionOutput struct {
	EntityID    string               `json:"entityId"`
	EntityName  string               `json:"entityName"`
	StartTime   string               `json:"startTime"`
	EndTime     string               `json:"endTime"`
	TotalChanges int                 `json:"totalChanges"`
	Changes     []EntityChangeOutput `json:"changes"`
}

func (s *Server) handleContextQueryEvolution(_ context.Context, _ *mcp.CallToolRequest, input ContextQueryEvolutionInput) (*mcp.CallToolResult, ContextQueryEvolutionOutput, error) {
	if input.EntityID == "" {
		return nil, ContextQueryEvolutionOutput{}, NewInvalidParamsError("entityId is required")
	}

	opts := graph.EvolutionOptions{}
	if input.StartTime != "" {
		t, err := parseTime(input.StartTime)
		if err != nil {
			return nil, ContextQueryEvolutionOutput{}, NewInvalidParamsError("startTime must be RFC3339")
		}
		opts.StartTime = &t
	}
	if input.EndTime != "" {
		t, err := parseTime(input.EndTime)
		if err != nil {
			return nil, ContextQueryEvolutionOutput{}, NewInvalidParamsError("endTime must be RFC3339")
		}
		opts.EndTime = &t
	}

	timeline, err := s.core.Evolution.GetEvolution(input.EntityID, opts)
	if err != nil {
		return nil, ContextQueryEvolutionOutput{}, MapError(err)
	}

	entityName := input.EntityID
	if ent, err := s.core.Graph.GetEntity(input.EntityID); err == nil {
		entityName = ent.Name
	}

	out := ContextQueryEvolutionOutput{
		EntityID:     timeline.EntityID,
		EntityName:   entityName,
		StartTime:    timeline.StartTime.Format(time.RFC3339),
		EndTime:      timeline.EndTime.Format(time.RFC3339),
		TotalChanges: len(timeline.Changes),
	}
	for _, ch := range timeline.Changes {
		out.Changes = append(out.Changes, EntityChangeOutput{
			Timestamp: ch.Timestamp.Format(time.RFC3339),
			Type:      string(ch.Type),
			Version:   ch.Version,
		})
	}
	return nil, out, nil
}

// --- codebase_ingest ---

type CodebaseIngestInput struct {
	ProjectDir    string `json:"projectDir" jsonschema:"absolute path to the project to ingest"`
	ForceReingest bool   `json:"forceReingest,omitempty" jsonschema:"re-ingest even if the tree has not changed"`
}

type CodebaseIngestOutput struct {
	HadChanges     bool   `json:"hadChanges"`
	ProjectID      string `json:"projectId,omitempty"`
	FilesIndexed   int    `json:"filesIndexed,omitempty"`
	ChunksIndexed  int    `json:"chunksIndexed,omitempty"`
	CommitsIndexed int    `json:"commitsIndexed,omitempty"`
}

func (s *Server) handleCodebaseIngest(ctx context.Context, _ *mcp.CallToolRequest, input CodebaseIngestInput) (*mcp.CallToolResult, CodebaseIngestOutput, error) {
	if input.ProjectDir == "" {
		return nil, CodebaseIngestOutput{}, NewInvalidParamsError("projectDir is required")
	}

	res, err := s.core.Pipeline.Ingest(ctx, input.ProjectDir, input.ForceReingest)
	if err != nil {
		return nil, CodebaseIngestOutput{}, MapError(fmt.Errorf("ingest %s: %w", input.ProjectDir, err))
	}
	if res == nil {
		return nil, CodebaseIngestOutput{HadChanges: false}, nil
	}
	return nil, CodebaseIngestOutput{
		HadChanges:     true,
		ProjectID:      res.ProjectID,
		FilesIndexed:   res.FilesIndexed,
		ChunksIndexed:  res.ChunksIndexed,
		CommitsIndexed: res.CommitsIndexed,
	}, nil
}

// --- codebase_verify ---

type CodebaseVerifyInput struct {
	ProjectDir string `json:"projectDir" jsonschema:"absolute path to the project to verify"`
}

type CodebaseVerifyOutput struct {
	ProjectID        string `json:"projectId"`
	Valid            bool   `json:"valid"`
	ManifestTreeHash string `json:"manifestTreeHash,omitempty"`
	CurrentTreeHash  string `json:"currentTreeHash,omitempty"`
	Message          string `json:"message"`
}

func (s *Server) handleCodebaseVerify(ctx context.Context, _ *mcp.CallToolRequest, input CodebaseVerifyInput) (*mcp.CallToolResult, CodebaseVerifyOutput, error) {
	if input.ProjectDir == "" {
		return nil, CodebaseVerifyOutput{}, NewInvalidParamsError("projectDir is required")
	}

	res, err := s.core.Pipeline.Verify(ctx, input.ProjectDir)
	if err != nil {
		return nil, CodebaseVerifyOutput{}, MapError(fmt.Errorf("verify %s: %w", input.ProjectDir, err))
	}
	return nil, CodebaseVerifyOutput{
		ProjectID:        res.ProjectID,
		Valid:            res.Valid,
		ManifestTreeHash: res.ManifestTreeHash,
		CurrentTreeHash:  res.CurrentTreeHash,
		Message:          res.Message,
	}, nil
}

// --- codebase_search ---

type CodebaseSearchInput struct {
	Query     string `json:"query" jsonschema:"the search query"`
	ProjectID string `json:"projectId,omitempty" jsonschema:"restrict to this project"`
	FilePath  string `json:"filePath,omitempty" jsonschema:"restrict to this file"`
	Type      string `json:"type,omitempty" jsonschema:"one of code, comment, docstring"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

type CodeSearchResult struct {
	ChunkID  string  `json:"chunkId"`
	FilePath string  `json:"filePath"`
	Type     string  `json:"type"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

type CodebaseSearchOutput struct {
	Query       string             `json:"query"`
	ResultCount int                `json:"resultCount"`
	Results     []CodeSearchResult `json:"results"`
}

func (s *Server) handleCodebaseSearch(ctx context.Context, _ *mcp.CallToolRequest, input CodebaseSearchInput) (*mcp.CallToolResult, CodebaseSearchOutput, error) {
	if input.Query == "" {
		return nil, CodebaseSearchOutput{}, NewInvalidParamsError("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := s.core.Hybrid.Search(ctx, input.Query, search.HybridOptions{
		Limit: limit * 4, // over-fetch; non-chunk hits and filtered-out chunks are dropped below
		Modes: []search.SearchMode{search.ModeKeyword, search.ModeSemantic},
	})
	if err != nil {
		return nil, CodebaseSearchOutput{}, MapError(err)
	}

	out := CodebaseSearchOutput{Query: input.Query, Results: make([]CodeSearchResult, 0, limit)}
	for _, r := range results {
		if len(out.Results) >= limit {
			break
		}
		ent, err := s.core.Graph.GetEntity(r.MemoryID)
		if err != nil || ent.Properties["node-kind"] != "chunk" {
			continue
		}
		if input.ProjectID != "" && ent.Properties["project-id"] != input.ProjectID {
			continue
		}
		if input.FilePath != "" && ent.Properties["file-path"] != input.FilePath {
			continue
		}
		if input.Type != "" && ent.Properties["chunk-type"] != input.Type {
			continue
		}
		out.Results = append(out.Results, CodeSearchResult{
			ChunkID:  ent.ID,
			FilePath: ent.Properties["file-path"],
			Type:     ent.Properties["chunk-type"],
			Content:  ent.Properties["content"],
			Score:    r.HybridScore,
		})
	}
	out.ResultCount = len(out.Results)
	return nil, out, nil
}

// --- codebase_timeline ---

type CodebaseTimelineInput struct {
	ProjectID string `json:"projectId" jsonschema:"the project whose commit history to list"`
	FilePath  string `json:"filePath,omitempty" jsonschema:"echoed back in the result; events are not filtered by file"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of events, default 50"`
}

type TimelineEvent struct {
	CommitID  string `json:"commitId"`
	SHA       string `json:"sha"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type CodebaseTimelineOutput struct {
	ProjectID  string          `json:"projectId"`
	FilePath   string          `json:"filePath,omitempty"`
	EventCount int             `json:"eventCount"`
	Events     []TimelineEvent `json:"events"`
}

func (s *Server) handleCodebaseTimeline(_ context.Context, _ *mcp.CallToolRequest, input CodebaseTimelineInput) (*mcp.CallToolResult, CodebaseTimelineOutput, error) {
	if input.ProjectID == "" {
		return nil, CodebaseTimelineOutput{}, NewInvalidParamsError("projectId is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	commits := s.core.Graph.FindByType(graph.EntityEvent)
	events := make([]TimelineEvent, 0, len(commits))
	for _, e := range commits {
		if e.Properties["node-kind"] != "commit" || e.Properties["project-id"] != input.ProjectID {
			continue
		}
		events = append(events, TimelineEvent{
			CommitID:  e.ID,
			SHA:       e.Properties["sha"],
			Author:    e.Properties["author"],
			Message:   e.Properties["message"],
			Timestamp: e.EventTime.UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp > events[j].Timestamp })
	if len(events) > limit {
		events = events[:limit]
	}

	return nil, CodebaseTimelineOutput{
		ProjectID:  input.ProjectID,
		FilePath:   input.FilePath,
		EventCount: len(events),
		Events:     events,
	}, nil
}

// --- project_delete ---

type ProjectDeleteInput struct {
	ProjectDir string `json:"projectDir" jsonschema:"absolute path to the project to delete"`
}

type ProjectDeleteOutput struct {
	Success         bool   `json:"success"`
	ProjectID       string `json:"projectId"`
	ProjectDir      string `json:"projectDir"`
	SessionsDeleted int    `json:"sessionsDeleted"`
}

func (s *Server) handleProjectDelete(ctx context.Context, _ *mcp.CallToolRequest, input ProjectDeleteInput) (*mcp.CallToolResult, ProjectDeleteOutput, error) {
	if input.ProjectDir == "" {
		return nil, ProjectDeleteOutput{}, NewInvalidParamsError("projectDir is required")
	}

	projectID := s.core.ProjectID(input.ProjectDir)
	if err := s.core.Pipeline.Delete(ctx, projectID); err != nil {
		return nil, ProjectDeleteOutput{}, MapError(fmt.Errorf("delete project %s: %w", projectID, err))
	}
	sessionsDeleted, err := s.core.Memories.DeleteBySession(projectID)
	if err != nil {
		return nil, ProjectDeleteOutput{}, MapError(fmt.Errorf("delete project memories: %w", err))
	}

	return nil, ProjectDeleteOutput{
		Success:         true,
		ProjectID:       projectID,
		ProjectDir:      input.ProjectDir,
		SessionsDeleted: sessionsDeleted,
	}, nil
}
