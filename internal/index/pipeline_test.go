package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/pingmem/internal/graph"
	"github.com/usorama/pingmem/internal/scanner"
	"github.com/usorama/pingmem/internal/store"
	"github.com/usorama/pingmem/internal/vectorize"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	s, err := scanner.New()
	require.NoError(t, err)
	vec, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(64))
	require.NoError(t, err)
	return NewPipeline(PipelineConfig{
		Scanner:    s,
		Graph:      graph.NewStore(),
		Vectors:    vec,
		Keyword:    store.NewMemoryBM25Index(store.DefaultBM25Config()),
		Vectorizer: vectorize.New(64),
	})
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"),
		[]byte("// Package main does a thing.\npackage main\n\nfunc main() {}\n"), 0o644))
	return dir
}

func TestIngest_FirstRunIndexesFileAndChunks(t *testing.T) {
	p := newTestPipeline(t)
	dir := writeProject(t)

	res, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.FilesIndexed)
	assert.Greater(t, res.ChunksIndexed, 0)
	assert.NotEmpty(t, res.TreeHash)

	files := p.cfg.Graph.FindByType(graph.EntityCodeFile)
	var sawFile, sawChunk bool
	for _, e := range files {
		switch e.Properties["node-kind"] {
		case "file":
			sawFile = true
		case "chunk":
			sawChunk = true
			assert.NotEmpty(t, e.Properties["content"])
		}
	}
	assert.True(t, sawFile)
	assert.True(t, sawChunk)
}

func TestIngest_UnchangedTreeIsNoOp(t *testing.T) {
	p := newTestPipeline(t)
	dir := writeProject(t)

	_, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)

	res, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestIngest_ForceReingestRunsEvenWhenUnchanged(t *testing.T) {
	p := newTestPipeline(t)
	dir := writeProject(t)

	_, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)

	res, err := p.Ingest(context.Background(), dir, true)
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestIngest_IsIdempotentInChunkCount(t *testing.T) {
	p := newTestPipeline(t)
	dir := writeProject(t)

	res1, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.go"), []byte("package main\n"), 0o644))
	res2, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)
	require.NotNil(t, res2)

	assert.Equal(t, 2, res2.FilesIndexed)
	assert.GreaterOrEqual(t, res2.ChunksIndexed+res1.ChunksIndexed, res2.ChunksIndexed)
}

func TestVerify_DetectsDriftAfterManualEdit(t *testing.T) {
	p := newTestPipeline(t)
	dir := writeProject(t)

	_, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)

	v, err := p.Verify(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() { println(1) }\n"), 0o644))
	v2, err := p.Verify(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, v2.Valid)
	assert.NotEqual(t, v2.ManifestTreeHash, v2.CurrentTreeHash)
}

func TestVerify_NoManifestIsInvalid(t *testing.T) {
	p := newTestPipeline(t)
	dir := writeProject(t)

	v, err := p.Verify(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestDelete_RemovesGraphAndIndexEntries(t *testing.T) {
	p := newTestPipeline(t)
	dir := writeProject(t)

	res, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.NoError(t, p.Delete(context.Background(), res.ProjectID))

	remaining := p.cfg.Graph.FindByType(graph.EntityCodeFile)
	for _, e := range remaining {
		assert.NotEqual(t, res.ProjectID, e.Properties["project-id"])
	}
	assert.Equal(t, 0, p.cfg.Vectors.Count())
}
