package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkFile_ClassifiesLeadingCommentAsDocstring(t *testing.T) {
	src := []byte("// Package widgets does widget things.\n// It is small.\npackage widgets\n\nfunc DoThing() {}\n")
	chunks := ChunkFile("proj-1", "widgets.go", src, "go", time.Now())
	require.NotEmpty(t, chunks)
	assert.Equal(t, KindDocstring, chunks[0].Type)
}

func TestChunkFile_PromotesCommentPrecedingFuncToDocstring(t *testing.T) {
	src := []byte("package widgets\n\n// Compute adds two numbers.\nfunc Compute(a, b int) int {\n\treturn a + b\n}\n")
	chunks := ChunkFile("proj-1", "widgets.go", src, "go", time.Now())

	var sawDocstring bool
	for _, c := range chunks {
		if c.Type == KindDocstring && strings.Contains(c.Content, "Compute adds") {
			sawDocstring = true
		}
	}
	assert.True(t, sawDocstring)
}

func TestChunkFile_ChunksCoverFileWithoutOverlapOrGaps(t *testing.T) {
	src := []byte("// header\npackage widgets\n\nfunc A() {}\n\n// doc for B\nfunc B() {}\n")
	chunks := ChunkFile("proj-1", "widgets.go", src, "go", time.Now())
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End, chunks[i].Start, "chunk %d must start exactly where %d ended", i, i-1)
	}
	assert.Equal(t, len(src), chunks[len(chunks)-1].End)
}

func TestChunkFile_IDIsDeterministicForSameNormalizedContent(t *testing.T) {
	src1 := []byte("func A() {}\n")
	src2 := []byte("func A() {}  \n") // trailing whitespace normalized away
	c1 := ChunkFile("proj-1", "a.go", src1, "go", time.Now())
	c2 := ChunkFile("proj-1", "a.go", src2, "go", time.Now())
	require.Len(t, c1, 1)
	require.Len(t, c2, 1)
	assert.Equal(t, c1[0].ChunkID, c2[0].ChunkID)
}

func TestChunkFile_SplitsOversizedRunWithoutExceedingHighBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("var x = 1\n")
	}
	chunks := ChunkFile("proj-1", "big.go", []byte(b.String()), "go", time.Now())
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.End-c.Start, SpecChunkHighBytes+len("var x = 1\n"))
	}
}

func TestChunkFile_EmptyFileProducesNoChunks(t *testing.T) {
	chunks := ChunkFile("proj-1", "empty.go", []byte{}, "go", time.Now())
	assert.Empty(t, chunks)
}
