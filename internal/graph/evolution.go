package graph

import (
	"sort"
	"time"
)

// ChangeType classifies a single EntityChange.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// relatedWindow is the ±1 hour window within which a neighbor's version is
// considered contemporaneous with a change.
const relatedWindow = 3600 * 1000 * time.Millisecond

// EntityChange is one point in an entity's evolution timeline.
type EntityChange struct {
	EntityID      string
	Timestamp     time.Time
	Type          ChangeType
	Version       int
	PreviousState *Entity
	CurrentState  *Entity
	Related       []RelatedChange
}

// RelatedChange is a neighbor entity's version attached to a change because
// it falls within the relatedWindow of the change's timestamp.
type RelatedChange struct {
	EntityID  string
	Timestamp time.Time
	Version   *Entity
}

// Timeline is the full evolution of one entity.
type Timeline struct {
	EntityID  string
	Changes   []EntityChange
	StartTime time.Time
	EndTime   time.Time
}

// EvolutionOptions controls getEvolution's filtering and related-entity
// expansion.
type EvolutionOptions struct {
	StartTime        *time.Time
	EndTime          *time.Time
	ChangeTypes      []ChangeType
	MaxTimelineDepth int
	IncludeRelated   bool
	MaxDepth         int // related-entity fan-out depth; caps per-change related count at MaxDepth*10
}

// EvolutionEngine builds and compares per-entity timelines from version
// chains kept by TemporalStore.
type EvolutionEngine struct {
	store *Store
}

func NewEvolutionEngine(store *Store) *EvolutionEngine {
	return &EvolutionEngine{store: store}
}

// GetEvolution walks an entity's version history chronologically and emits
// an EntityChange per version.
func (e *EvolutionEngine) GetEvolution(id string, opts EvolutionOptions) (*Timeline, error) {
	history, err := e.store.GetHistory(id) // newest first
	if err != nil {
		return nil, err
	}

	chronological := make([]*Entity, len(history))
	for i, v := range history {
		chronological[len(history)-1-i] = v
	}

	changes := make([]EntityChange, 0, len(chronological))
	for i, v := range chronological {
		ch := EntityChange{
			EntityID:  id,
			Timestamp: v.ValidFrom,
			Version:   v.Version,
		}
		switch {
		case i == 0:
			ch.Type = ChangeCreated
			ch.PreviousState = nil
			ch.CurrentState = v
		case v.ValidTo != nil:
			ch.Type = ChangeDeleted
			ch.PreviousState = chronological[i-1]
			ch.CurrentState = nil
		default:
			ch.Type = ChangeUpdated
			ch.PreviousState = chronological[i-1]
			ch.CurrentState = v
		}
		changes = append(changes, ch)
	}

	if opts.StartTime != nil || opts.EndTime != nil {
		filtered := changes[:0:0]
		for _, ch := range changes {
			if opts.StartTime != nil && ch.Timestamp.Before(*opts.StartTime) {
				continue
			}
			if opts.EndTime != nil && ch.Timestamp.After(*opts.EndTime) {
				continue
			}
			filtered = append(filtered, ch)
		}
		changes = filtered
	}

	if len(opts.ChangeTypes) > 0 {
		allowed := make(map[ChangeType]struct{}, len(opts.ChangeTypes))
		for _, t := range opts.ChangeTypes {
			allowed[t] = struct{}{}
		}
		filtered := changes[:0:0]
		for _, ch := range changes {
			if _, ok := allowed[ch.Type]; ok {
				filtered = append(filtered, ch)
			}
		}
		changes = filtered
	}

	if opts.MaxTimelineDepth > 0 && len(changes) > opts.MaxTimelineDepth {
		changes = changes[:opts.MaxTimelineDepth]
	}

	if opts.IncludeRelated {
		maxRelated := opts.MaxDepth * 10
		if maxRelated <= 0 {
			maxRelated = 10
		}
		for i := range changes {
			changes[i].Related = e.relatedFor(id, changes[i].Timestamp, maxRelated)
		}
	}

	start := time.Now().UTC()
	end := start
	if len(changes) > 0 {
		start = changes[0].Timestamp
		end = changes[len(changes)-1].Timestamp
	}

	return &Timeline{EntityID: id, Changes: changes, StartTime: start, EndTime: end}, nil
}

// relatedFor fetches neighbors of id and, for each, attaches any version
// within relatedWindow of ts, up to cap entries.
func (e *EvolutionEngine) relatedFor(id string, ts time.Time, maxRelated int) []RelatedChange {
	neighbors := e.store.FindByEntity(id)
	out := make([]RelatedChange, 0)
	for _, r := range neighbors {
		neighborID := r.SourceID
		if neighborID == id {
			neighborID = r.TargetID
		}
		history, err := e.store.GetHistory(neighborID)
		if err != nil {
			continue
		}
		for _, v := range history {
			if len(out) >= maxRelated {
				return out
			}
			delta := v.ValidFrom.Sub(ts)
			if delta < 0 {
				delta = -delta
			}
			if delta <= relatedWindow {
				out = append(out, RelatedChange{EntityID: neighborID, Timestamp: v.ValidFrom, Version: v})
			}
		}
	}
	return out
}

// CorrelatedPair is one (c1, c2) pair from two timelines whose timestamps
// fall within relatedWindow of each other.
type CorrelatedPair struct {
	First  EntityChange
	Second EntityChange
	Delta  time.Duration
}

// Comparison is the result of compareEvolution.
type Comparison struct {
	Timeline1        *Timeline
	Timeline2        *Timeline
	CorrelatedPairs  []CorrelatedPair
	CommonRelatedIDs []string
}

// CompareEvolution builds both timelines and correlates their changes.
func (e *EvolutionEngine) CompareEvolution(id1, id2 string, opts EvolutionOptions) (*Comparison, error) {
	t1, err := e.GetEvolution(id1, opts)
	if err != nil {
		return nil, err
	}
	t2, err := e.GetEvolution(id2, opts)
	if err != nil {
		return nil, err
	}

	pairs := make([]CorrelatedPair, 0)
	for _, c1 := range t1.Changes {
		for _, c2 := range t2.Changes {
			delta := c1.Timestamp.Sub(c2.Timestamp)
			if delta < 0 {
				delta = -delta
			}
			if delta <= relatedWindow {
				pairs = append(pairs, CorrelatedPair{First: c1, Second: c2, Delta: delta})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Delta < pairs[j].Delta })

	set1 := relatedIDSet(t1)
	set2 := relatedIDSet(t2)
	common := make([]string, 0)
	for id := range set1 {
		if _, ok := set2[id]; ok {
			common = append(common, id)
		}
	}
	sort.Strings(common)

	return &Comparison{
		Timeline1:        t1,
		Timeline2:        t2,
		CorrelatedPairs:  pairs,
		CommonRelatedIDs: common,
	}, nil
}

func relatedIDSet(t *Timeline) map[string]struct{} {
	set := make(map[string]struct{})
	for _, ch := range t.Changes {
		for _, r := range ch.Related {
			set[r.EntityID] = struct{}{}
		}
	}
	return set
}
