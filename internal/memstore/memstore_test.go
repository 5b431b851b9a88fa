package memstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_AssignsIDAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.json")
	s, err := Open(path)
	require.NoError(t, err)

	rec, err := s.Save(&Record{Key: "k1", Value: "v1", Category: "fact"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	reopened, err := Open(path)
	require.NoError(t, err)
	got := reopened.Get(rec.ID)
	require.NotNil(t, got)
	assert.Equal(t, "v1", got.Value)
}

func TestList_FiltersByCategoryAndChannel(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "memories.json"))
	require.NoError(t, err)

	_, err = s.Save(&Record{Key: "a", Value: "1", Category: "task", Channel: "ch1"})
	require.NoError(t, err)
	_, err = s.Save(&Record{Key: "b", Value: "2", Category: "note", Channel: "ch1"})
	require.NoError(t, err)
	_, err = s.Save(&Record{Key: "c", Value: "3", Category: "task", Channel: "ch2"})
	require.NoError(t, err)

	assert.Len(t, s.List("task", ""), 2)
	assert.Len(t, s.List("task", "ch1"), 1)
	assert.Len(t, s.List("", "ch2"), 1)
	assert.Len(t, s.List("", ""), 3)
}

func TestDelete_ReportsWhetherRecordExisted(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "memories.json"))
	require.NoError(t, err)

	rec, err := s.Save(&Record{Key: "k", Value: "v"})
	require.NoError(t, err)

	removed, err := s.Delete(rec.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := s.Delete(rec.ID)
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

func TestDeleteBySession_RemovesOnlyMatchingRecords(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "memories.json"))
	require.NoError(t, err)

	_, err = s.Save(&Record{Key: "a", SessionID: "S1"})
	require.NoError(t, err)
	_, err = s.Save(&Record{Key: "b", SessionID: "S1"})
	require.NoError(t, err)
	_, err = s.Save(&Record{Key: "c", SessionID: "S2"})
	require.NoError(t, err)

	n, err := s.DeleteBySession("S1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, s.List("", ""), 1)
}
