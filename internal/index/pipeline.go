package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/sync/errgroup"

	"github.com/usorama/pingmem/internal/chunk"
	"github.com/usorama/pingmem/internal/graph"
	"github.com/usorama/pingmem/internal/scanner"
	"github.com/usorama/pingmem/internal/store"
	"github.com/usorama/pingmem/internal/vectorize"
)

// DefaultPipelineConcurrency bounds how many files are chunked, vectorized,
// and upserted into the graph concurrently during a single ingest run.
const DefaultPipelineConcurrency = 8

// PipelineConfig wires the components an ingestion run needs: the project
// scanner (C11), the graph store (C5) chunks and files are linked into, the
// vector and keyword indexes chunks are upserted into (C3/C4), and the
// vectorizer used to embed chunk content (C1).
type PipelineConfig struct {
	Scanner        *scanner.Scanner
	Graph          *graph.Store
	Vectors        store.VectorStore
	Keyword        store.BM25Index
	Vectorizer     *vectorize.Vectorizer
	MaxConcurrency int
}

// Pipeline implements the codebase ingestion/verify/delete operations:
// scan a project tree, chunk and embed its files, link everything into the
// graph store, and keep a manifest so unchanged trees are a no-op.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline constructs a Pipeline from cfg, applying defaults for any
// unset concurrency bound.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultPipelineConcurrency
	}
	return &Pipeline{cfg: cfg}
}

// IngestResult is what Ingest returns on a real (non-no-op) run.
type IngestResult struct {
	ProjectID      string
	TreeHash       string
	FilesIndexed   int
	ChunksIndexed  int
	CommitsIndexed int
	IngestedAt     time.Time
}

// Ingest scans projectDir, diffs it against the previously persisted
// manifest, and (unless the tree is unchanged and forceReingest is false)
// chunks, embeds, and links every retained file into the graph and vector/
// keyword indexes, then walks commit history and persists the new
// manifest. A nil, nil result means the tree had not changed since the
// last ingest.
func (p *Pipeline) Ingest(ctx context.Context, projectDir string, forceReingest bool) (*IngestResult, error) {
	absRoot, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	now := time.Now().UTC()
	manifest, err := scanner.ManifestFor(ctx, p.cfg.Scanner, absRoot, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}

	prev, err := scanner.LoadManifest(absRoot)
	if err != nil {
		return nil, fmt.Errorf("load previous manifest: %w", err)
	}
	if !forceReingest && !scanner.HasChanges(prev, manifest) {
		return nil, nil
	}

	projectID := manifest.ProjectID
	chunksIndexed, err := p.ingestFiles(ctx, projectID, absRoot, manifest.Files)
	if err != nil {
		return nil, err
	}

	commitsIndexed, err := p.ingestCommits(ctx, projectID, absRoot)
	if err != nil {
		return nil, fmt.Errorf("ingest commit history: %w", err)
	}

	if err := scanner.SaveManifest(absRoot, manifest); err != nil {
		return nil, fmt.Errorf("persist manifest: %w", err)
	}

	return &IngestResult{
		ProjectID:      projectID,
		TreeHash:       manifest.TreeHash,
		FilesIndexed:   len(manifest.Files),
		ChunksIndexed:  chunksIndexed,
		CommitsIndexed: commitsIndexed,
		IngestedAt:     now,
	}, nil
}

func (p *Pipeline) ingestFiles(ctx context.Context, projectID, absRoot string, files []scanner.ManifestFile) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)

	counts := make([]int, len(files))
	for i, f := range files {
		g.Go(func() error {
			n, err := p.ingestFile(gctx, projectID, absRoot, f)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", f.Path, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// ingestFile upserts a file entity, chunks its content, and upserts one
// chunk entity plus one vector plus one keyword document per chunk. Both
// the file entity and every chunk entity are idempotent by id: re-ingesting
// an unchanged file or chunk leaves their graph nodes as they are, while
// the vector and keyword entries are written again.
func (p *Pipeline) ingestFile(ctx context.Context, projectID, absRoot string, f scanner.ManifestFile) (int, error) {
	content, err := os.ReadFile(filepath.Join(absRoot, f.Path))
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	language := scanner.DetectLanguage(f.Path)

	fileID := graph.GenerateID("file", projectID, f.Path)
	if err := p.upsertFileEntity(fileID, projectID, f, language); err != nil {
		return 0, fmt.Errorf("upsert file entity: %w", err)
	}

	chunks := chunk.ChunkFile(projectID, f.Path, content, language, time.Now().UTC())
	for _, c := range chunks {
		if err := p.upsertChunk(ctx, fileID, projectID, c); err != nil {
			return 0, fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	return len(chunks), nil
}

func (p *Pipeline) upsertFileEntity(fileID, projectID string, f scanner.ManifestFile, language string) error {
	props := map[string]string{
		"node-kind":  "file",
		"project-id": projectID,
		"path":       f.Path,
		"sha256":     f.SHA256,
		"bytes":      fmt.Sprintf("%d", f.Bytes),
		"language":   language,
	}

	existing, err := p.cfg.Graph.GetEntity(fileID)
	if err != nil {
		if _, ok := err.(graph.ErrNotFound); !ok {
			return err
		}
		_, createErr := p.cfg.Graph.CreateEntity(&graph.Entity{
			ID:         fileID,
			Type:       graph.EntityCodeFile,
			Name:       f.Path,
			Properties: props,
		})
		return createErr
	}
	if existing.Properties["sha256"] == f.SHA256 {
		return nil
	}
	_, err = p.cfg.Graph.UpdateEntity(fileID, props)
	return err
}

// upsertChunk links a chunk node to its file entity and indexes its content
// for semantic and keyword search. Chunk nodes are content-addressed by
// ChunkID, so identical content (even across files) collapses to one node;
// re-ingesting the same content creates no new graph node or relationship,
// but the vector and keyword entries are upserted again.
func (p *Pipeline) upsertChunk(ctx context.Context, fileID, projectID string, c chunk.SpecChunk) error {
	chunkID := c.ChunkID

	if _, err := p.cfg.Graph.GetEntity(chunkID); err != nil {
		if _, ok := err.(graph.ErrNotFound); !ok {
			return err
		}
		_, createErr := p.cfg.Graph.CreateEntity(&graph.Entity{
			ID:   chunkID,
			Type: graph.EntityCodeFile,
			Name: chunkID,
			Properties: map[string]string{
				"node-kind":  "chunk",
				"project-id": projectID,
				"file-path":  c.FilePath,
				"chunk-type": string(c.Type),
				"content":    c.Content,
				"byte-start": fmt.Sprintf("%d", c.Start),
				"byte-end":   fmt.Sprintf("%d", c.End),
				"line-start": fmt.Sprintf("%d", c.LineStart),
				"line-end":   fmt.Sprintf("%d", c.LineEnd),
			},
		})
		if createErr != nil {
			return createErr
		}
	}

	relID := graph.GenerateID("rel", string(graph.RelContains), fileID, chunkID)
	if _, err := p.cfg.Graph.GetRelationship(relID); err != nil {
		if _, ok := err.(graph.ErrNotFound); !ok {
			return err
		}
		if _, err := p.cfg.Graph.CreateRelationship(&graph.Relationship{
			ID:         relID,
			SourceID:   fileID,
			TargetID:   chunkID,
			Type:       graph.RelContains,
			Weight:     1,
			Properties: map[string]string{"project-id": projectID},
		}); err != nil {
			return err
		}
	}

	vec := p.cfg.Vectorizer.Vectorize(c.Content)
	if err := p.cfg.Vectors.Add(ctx, []string{chunkID}, [][]float32{vec}); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	if err := p.cfg.Keyword.Index(ctx, []*store.Document{{ID: chunkID, Content: c.Content}}); err != nil {
		return fmt.Errorf("keyword upsert: %w", err)
	}
	return nil
}

// ingestCommits walks the project's commit history, if a .git directory is
// present, creating one event entity per commit linked to no particular
// parent (commits are scoped to the project purely via the project-id
// property, matching the graph's project-scoped cascade delete). A missing
// .git directory is logged, not an error.
func (p *Pipeline) ingestCommits(ctx context.Context, projectID, absRoot string) (int, error) {
	repo, err := git.PlainOpen(absRoot)
	if err != nil {
		slog.Info("no git history found, skipping commit ingestion",
			slog.String("root", absRoot), slog.String("reason", err.Error()))
		return 0, nil
	}

	head, err := repo.Head()
	if err != nil {
		slog.Info("git repository has no HEAD, skipping commit ingestion",
			slog.String("root", absRoot))
		return 0, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, fmt.Errorf("walk commit log: %w", err)
	}
	defer iter.Close()

	count := 0
	walkErr := iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.upsertCommit(projectID, c); err != nil {
			return err
		}
		count++
		return nil
	})
	if walkErr != nil {
		return count, walkErr
	}
	return count, nil
}

func (p *Pipeline) upsertCommit(projectID string, c *object.Commit) error {
	sha := c.Hash.String()
	id := graph.GenerateID("commit", projectID, sha)
	if _, err := p.cfg.Graph.GetEntity(id); err == nil {
		return nil
	}
	_, err := p.cfg.Graph.CreateEntity(&graph.Entity{
		ID:        id,
		Type:      graph.EntityEvent,
		Name:      sha,
		EventTime: c.Author.When,
		Properties: map[string]string{
			"node-kind":  "commit",
			"project-id": projectID,
			"sha":        sha,
			"author":     c.Author.Name,
			"email":      c.Author.Email,
			"message":    c.Message,
		},
	})
	return err
}

// VerifyResult reports whether a project's on-disk tree still matches its
// persisted manifest.
type VerifyResult struct {
	ProjectID        string
	Valid            bool
	ManifestTreeHash string
	CurrentTreeHash  string
	Message          string
}

// Verify recomputes the current tree-hash for projectDir and compares it
// against the persisted manifest.
func (p *Pipeline) Verify(ctx context.Context, projectDir string) (*VerifyResult, error) {
	absRoot, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	prev, err := scanner.LoadManifest(absRoot)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if prev == nil {
		return &VerifyResult{
			ProjectID: scanner.ProjectID(absRoot),
			Valid:     false,
			Message:   "no manifest found; project has not been ingested",
		}, nil
	}

	current, err := scanner.ManifestFor(ctx, p.cfg.Scanner, absRoot, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("recompute manifest: %w", err)
	}

	valid := !scanner.HasChanges(prev, current)
	msg := "tree matches last ingest"
	if !valid {
		msg = "tree has changed since last ingest"
	}
	return &VerifyResult{
		ProjectID:        prev.ProjectID,
		Valid:            valid,
		ManifestTreeHash: prev.TreeHash,
		CurrentTreeHash:  current.TreeHash,
		Message:          msg,
	}, nil
}

// Delete cascades the removal of a project's data from the vector store
// (C3) and the keyword index (C4), for the ids of the graph's chunk
// entities carrying project-id, and from the graph store (C5, every entity
// and relationship carrying project-id). It does not touch the on-disk manifest; callers that also
// want the manifest removed should delete projectDir/.ping-mem themselves.
func (p *Pipeline) Delete(ctx context.Context, projectID string) error {
	chunkIDs := make([]string, 0)
	for _, e := range p.cfg.Graph.FindByType(graph.EntityCodeFile) {
		if e.Properties["project-id"] == projectID && e.Properties["node-kind"] == "chunk" {
			chunkIDs = append(chunkIDs, e.ID)
		}
	}

	if len(chunkIDs) > 0 {
		if err := p.cfg.Vectors.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
		if err := p.cfg.Keyword.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete keyword documents: %w", err)
		}
	}

	if _, _, err := p.cfg.Graph.DeleteProject(projectID); err != nil {
		return fmt.Errorf("delete graph project data: %w", err)
	}
	return nil
}
