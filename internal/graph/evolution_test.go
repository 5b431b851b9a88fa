package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvolutionEngine_GetEvolution_FirstVersionIsCreated(t *testing.T) {
	s := NewStore()
	ts := NewTemporalStore(s)
	e, err := ts.StoreEntity(&Entity{Type: EntityTask, Name: "ship it"}, nil)
	require.NoError(t, err)

	engine := NewEvolutionEngine(s)
	timeline, err := engine.GetEvolution(e.ID, EvolutionOptions{})
	require.NoError(t, err)
	require.Len(t, timeline.Changes, 1)
	assert.Equal(t, ChangeCreated, timeline.Changes[0].Type)
	assert.Nil(t, timeline.Changes[0].PreviousState)
}

func TestEvolutionEngine_GetEvolution_SubsequentOpenVersionIsUpdated(t *testing.T) {
	s := NewStore()
	ts := NewTemporalStore(s)
	e, err := ts.StoreEntity(&Entity{Type: EntityTask, Name: "ship it"}, nil)
	require.NoError(t, err)
	_, err = ts.UpdateEntity(e.ID, map[string]string{"status": "done"}, nil)
	require.NoError(t, err)

	engine := NewEvolutionEngine(s)
	timeline, err := engine.GetEvolution(e.ID, EvolutionOptions{})
	require.NoError(t, err)
	require.Len(t, timeline.Changes, 2)
	assert.Equal(t, ChangeCreated, timeline.Changes[0].Type)
	assert.Equal(t, ChangeUpdated, timeline.Changes[1].Type)
	assert.NotNil(t, timeline.Changes[1].CurrentState)
}

func TestEvolutionEngine_GetEvolution_FiltersByChangeType(t *testing.T) {
	s := NewStore()
	ts := NewTemporalStore(s)
	e, err := ts.StoreEntity(&Entity{Type: EntityTask, Name: "ship it"}, nil)
	require.NoError(t, err)
	_, err = ts.UpdateEntity(e.ID, map[string]string{"status": "done"}, nil)
	require.NoError(t, err)

	engine := NewEvolutionEngine(s)
	timeline, err := engine.GetEvolution(e.ID, EvolutionOptions{ChangeTypes: []ChangeType{ChangeCreated}})
	require.NoError(t, err)
	require.Len(t, timeline.Changes, 1)
	assert.Equal(t, ChangeCreated, timeline.Changes[0].Type)
}

func TestEvolutionEngine_CompareEvolution_FindsCorrelatedPairsAndCommonRelated(t *testing.T) {
	s := NewStore()
	ts := NewTemporalStore(s)

	shared, err := ts.StoreEntity(&Entity{Type: EntityConcept, Name: "auth"}, nil)
	require.NoError(t, err)
	e1, err := ts.StoreEntity(&Entity{Type: EntityTask, Name: "task-1"}, nil)
	require.NoError(t, err)
	e2, err := ts.StoreEntity(&Entity{Type: EntityTask, Name: "task-2"}, nil)
	require.NoError(t, err)

	_, err = s.CreateRelationship(&Relationship{Type: RelRelatedTo, SourceID: e1.ID, TargetID: shared.ID})
	require.NoError(t, err)
	_, err = s.CreateRelationship(&Relationship{Type: RelRelatedTo, SourceID: e2.ID, TargetID: shared.ID})
	require.NoError(t, err)

	engine := NewEvolutionEngine(s)
	cmp, err := engine.CompareEvolution(e1.ID, e2.ID, EvolutionOptions{IncludeRelated: true, MaxDepth: 1})
	require.NoError(t, err)
	assert.Contains(t, cmp.CommonRelatedIDs, shared.ID)
	require.NotEmpty(t, cmp.CorrelatedPairs)
}
