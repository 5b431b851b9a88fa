package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is an in-process labeled property graph: entities and relationships
// keyed by id, with secondary indexes on type and name the way a real graph
// database would maintain them. It holds the full version history for every
// id; Store itself exposes only the "current" CRUD surface (C5) — the
// versioning protocol (valid-from/valid-to chains, point-in-time reads) is
// layered on top by TemporalStore.
type Store struct {
	mu sync.RWMutex

	entities    map[string][]*Entity // id -> versions, ascending by Version
	entityByTN  map[EntityType]map[string]string // type -> name -> id, current only
	typeIndex   map[EntityType]map[string]struct{} // type -> set of ids

	relationships map[string][]*Relationship
	bySource      map[string]map[string]struct{} // source id -> relationship ids, current only
	byTarget      map[string]map[string]struct{} // target id -> relationship ids, current only
}

// NewStore creates an empty graph store.
func NewStore() *Store {
	return &Store{
		entities:      make(map[string][]*Entity),
		entityByTN:    make(map[EntityType]map[string]string),
		typeIndex:     make(map[EntityType]map[string]struct{}),
		relationships: make(map[string][]*Relationship),
		bySource:      make(map[string]map[string]struct{}),
		byTarget:      make(map[string]map[string]struct{}),
	}
}

// GenerateID derives a stable synthetic id from a type and name, used when
// callers don't supply one (extractor output, merge-created entities).
func GenerateID(kind string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return kind + "-" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (s *Store) indexEntity(e *Entity) {
	if s.typeIndex[e.Type] == nil {
		s.typeIndex[e.Type] = make(map[string]struct{})
	}
	s.typeIndex[e.Type][e.ID] = struct{}{}
	if s.entityByTN[e.Type] == nil {
		s.entityByTN[e.Type] = make(map[string]string)
	}
	s.entityByTN[e.Type][e.Name] = e.ID
}

func (s *Store) unindexEntity(e *Entity) {
	if m, ok := s.typeIndex[e.Type]; ok {
		delete(m, e.ID)
	}
	if m, ok := s.entityByTN[e.Type]; ok {
		if m[e.Name] == e.ID {
			delete(m, e.Name)
		}
	}
}

// currentEntityLocked returns the version with ValidTo == nil, or the last
// version if every row happens to be closed (should not occur under the
// one-current-row invariant, but callers must not panic on corrupt state).
func currentEntityLocked(versions []*Entity) *Entity {
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].IsCurrent() {
			return versions[i]
		}
	}
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

// CreateEntity inserts a brand new entity as version 1. If e.ID is empty, an
// id is generated from type+name.
func (s *Store) CreateEntity(e *Entity) (*Entity, error) {
	if !e.Type.Valid() {
		return nil, ErrInvalidType{Value: string(e.Type)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEntityLocked(e)
}

func (s *Store) createEntityLocked(e *Entity) (*Entity, error) {
	now := time.Now().UTC()
	cp := e.Clone()
	if cp.ID == "" {
		cp.ID = GenerateID(string(cp.Type), cp.Name)
	}
	if cp.Properties == nil {
		cp.Properties = make(map[string]string)
	}
	cp.Version = 1
	cp.IngestionTime = now
	cp.ValidFrom = now
	cp.ValidTo = nil
	if cp.EventTime.IsZero() {
		cp.EventTime = now
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now

	s.entities[cp.ID] = append(s.entities[cp.ID], cp)
	s.indexEntity(cp)
	return cp.Clone(), nil
}

// GetEntity returns the current version of an entity.
func (s *Store) GetEntity(id string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.entities[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "entity", ID: id}
	}
	return currentEntityLocked(versions).Clone(), nil
}

// UpdateEntity overwrites fields on the current row in place (the
// versioning-OFF path of the temporal protocol; versioning-ON is
// implemented by TemporalStore using AppendVersion below).
func (s *Store) UpdateEntity(id string, patch map[string]string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.entities[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "entity", ID: id}
	}
	cur := currentEntityLocked(versions)
	for k, v := range patch {
		cur.Properties[k] = v
	}
	cur.UpdatedAt = time.Now().UTC()
	return cur.Clone(), nil
}

// AppendVersion closes the current row (sets ValidTo) and appends newVersion
// as the new current row for the same id. Used by TemporalStore to implement
// versioned updates atomically under the store's single lock.
func (s *Store) AppendVersion(id string, newVersion *Entity) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.entities[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "entity", ID: id}
	}
	cur := currentEntityLocked(versions)
	if !cur.IsCurrent() {
		return nil, ErrVersionConflict{ID: id}
	}

	now := time.Now().UTC()
	validTo := now
	cur.ValidTo = &validTo
	cur.UpdatedAt = now

	s.unindexEntity(cur)

	cp := newVersion.Clone()
	cp.ID = id
	cp.Version = cur.Version + 1
	cp.ValidFrom = now
	cp.ValidTo = nil
	cp.IngestionTime = now
	cp.UpdatedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cur.CreatedAt
	}

	s.entities[id] = append(s.entities[id], cp)
	s.indexEntity(cp)
	return cp.Clone(), nil
}

// InvalidateEntity closes the current row without writing a replacement.
func (s *Store) InvalidateEntity(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.entities[id]
	if !ok || len(versions) == 0 {
		return ErrNotFound{Kind: "entity", ID: id}
	}
	cur := currentEntityLocked(versions)
	if !cur.IsCurrent() {
		return nil
	}
	now := time.Now().UTC()
	cur.ValidTo = &now
	cur.UpdatedAt = now
	s.unindexEntity(cur)
	return nil
}

// DeleteEntity hard-deletes every version of an entity (project cascade
// delete), along with any relationships touching it.
func (s *Store) DeleteEntity(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.entities[id]
	if !ok {
		return ErrNotFound{Kind: "entity", ID: id}
	}
	if cur := currentEntityLocked(versions); cur != nil {
		s.unindexEntity(cur)
	}
	delete(s.entities, id)

	for relID := range s.bySource[id] {
		s.deleteRelationshipLocked(relID)
	}
	for relID := range s.byTarget[id] {
		s.deleteRelationshipLocked(relID)
	}
	return nil
}

// FindByType returns all current entities of a given type.
func (s *Store) FindByType(t EntityType) []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.typeIndex[t]
	out := make([]*Entity, 0, len(ids))
	for id := range ids {
		if cur := currentEntityLocked(s.entities[id]); cur != nil {
			out = append(out, cur.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetHistory returns every version of an entity, newest (highest version)
// first.
func (s *Store) GetHistory(id string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.entities[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "entity", ID: id}
	}
	out := make([]*Entity, len(versions))
	for i, v := range versions {
		out[len(versions)-1-i] = v.Clone()
	}
	return out, nil
}

// GetEntityAtTime selects the version valid at asOf: valid-from <= asOf <
// (valid-to ?? +inf) and event-time <= asOf, preferring the highest version
// among ties.
func (s *Store) GetEntityAtTime(id string, asOf time.Time) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound{Kind: "entity", ID: id}
	}
	var best *Entity
	for _, v := range versions {
		if v.EventTime.After(asOf) {
			continue
		}
		if v.ValidFrom.After(asOf) {
			continue
		}
		if v.ValidTo != nil && !v.ValidTo.After(asOf) {
			continue
		}
		if best == nil || v.Version > best.Version {
			best = v
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

// existsAtTimeLocked reports whether an entity has any version valid at t,
// used to enforce the relationship endpoint-existence invariant.
func (s *Store) existsAtTimeLocked(id string, t time.Time) bool {
	versions := s.entities[id]
	for _, v := range versions {
		if v.EventTime.After(t) {
			continue
		}
		if v.ValidFrom.After(t) {
			continue
		}
		if v.ValidTo != nil && !v.ValidTo.After(t) {
			continue
		}
		return true
	}
	return false
}

// MergeEntity matches on (name, type). On a match it keeps the existing id,
// overwrites properties, and bumps updated-at/event-time/ingestion-time. On
// no match it creates a new entity.
func (s *Store) MergeEntity(e *Entity) (entity *Entity, created bool, err error) {
	if !e.Type.Valid() {
		return nil, false, ErrInvalidType{Value: string(e.Type)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if byName, ok := s.entityByTN[e.Type]; ok {
		if id, ok := byName[e.Name]; ok {
			versions := s.entities[id]
			cur := currentEntityLocked(versions)
			now := time.Now().UTC()
			for k, v := range e.Properties {
				cur.Properties[k] = v
			}
			cur.UpdatedAt = now
			cur.EventTime = now
			cur.IngestionTime = now
			return cur.Clone(), false, nil
		}
	}

	created_, err := s.createEntityLocked(e)
	if err != nil {
		return nil, false, err
	}
	return created_, true, nil
}

// BatchCreate creates multiple entities, stopping and returning the first
// error encountered. Entities created before the failure remain in the
// store; callers wanting all-or-nothing semantics should pre-validate types.
func (s *Store) BatchCreate(entities []*Entity) ([]*Entity, error) {
	out := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		created, err := s.CreateEntity(e)
		if err != nil {
			return out, fmt.Errorf("batch create %q: %w", e.Name, err)
		}
		out = append(out, created)
	}
	return out, nil
}

// --- Relationships ---

func (s *Store) indexRelationship(r *Relationship) {
	if s.bySource[r.SourceID] == nil {
		s.bySource[r.SourceID] = make(map[string]struct{})
	}
	s.bySource[r.SourceID][r.ID] = struct{}{}
	if s.byTarget[r.TargetID] == nil {
		s.byTarget[r.TargetID] = make(map[string]struct{})
	}
	s.byTarget[r.TargetID][r.ID] = struct{}{}
}

func (s *Store) unindexRelationship(r *Relationship) {
	delete(s.bySource[r.SourceID], r.ID)
	delete(s.byTarget[r.TargetID], r.ID)
}

// CreateRelationship inserts a relationship as version 1, rejecting it if
// either endpoint does not exist at the relationship's event-time.
func (s *Store) CreateRelationship(r *Relationship) (*Relationship, error) {
	if !r.Type.Valid() {
		return nil, ErrInvalidType{Value: string(r.Type)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	eventTime := r.EventTime
	if eventTime.IsZero() {
		eventTime = now
	}
	if !s.existsAtTimeLocked(r.SourceID, eventTime) {
		return nil, ErrEndpointMissing{EntityID: r.SourceID}
	}
	if !s.existsAtTimeLocked(r.TargetID, eventTime) {
		return nil, ErrEndpointMissing{EntityID: r.TargetID}
	}

	cp := r.Clone()
	if cp.ID == "" {
		cp.ID = GenerateID("rel", string(cp.Type), cp.SourceID, cp.TargetID)
	}
	if cp.Properties == nil {
		cp.Properties = make(map[string]string)
	}
	cp.Version = 1
	cp.IngestionTime = now
	cp.ValidFrom = now
	cp.ValidTo = nil
	cp.EventTime = eventTime
	cp.CreatedAt = now
	cp.UpdatedAt = now

	s.relationships[cp.ID] = append(s.relationships[cp.ID], cp)
	s.indexRelationship(cp)
	return cp.Clone(), nil
}

// UpdateRelationship overwrites properties (and optionally weight) on the
// current row in place, the versioning-OFF path of the temporal protocol.
func (s *Store) UpdateRelationship(id string, patch map[string]string, weight *float64) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.relationships[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "relationship", ID: id}
	}
	cur := currentRelationshipLocked(versions)
	for k, v := range patch {
		cur.Properties[k] = v
	}
	if weight != nil {
		cur.Weight = *weight
	}
	cur.UpdatedAt = time.Now().UTC()
	return cur.Clone(), nil
}

func (s *Store) GetRelationship(id string) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.relationships[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "relationship", ID: id}
	}
	return currentRelationshipLocked(versions).Clone(), nil
}

func currentRelationshipLocked(versions []*Relationship) *Relationship {
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].IsCurrent() {
			return versions[i]
		}
	}
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

func (s *Store) deleteRelationshipLocked(id string) {
	versions, ok := s.relationships[id]
	if !ok {
		return
	}
	if cur := currentRelationshipLocked(versions); cur != nil {
		s.unindexRelationship(cur)
	}
	delete(s.relationships, id)
}

func (s *Store) DeleteRelationship(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relationships[id]; !ok {
		return ErrNotFound{Kind: "relationship", ID: id}
	}
	s.deleteRelationshipLocked(id)
	return nil
}

// FindByEntity returns every current relationship touching id, incoming
// union outgoing.
func (s *Store) FindByEntity(id string) []*Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]*Relationship, 0)
	for relID := range s.bySource[id] {
		if _, ok := seen[relID]; ok {
			continue
		}
		seen[relID] = struct{}{}
		if cur := currentRelationshipLocked(s.relationships[relID]); cur != nil {
			out = append(out, cur.Clone())
		}
	}
	for relID := range s.byTarget[id] {
		if _, ok := seen[relID]; ok {
			continue
		}
		seen[relID] = struct{}{}
		if cur := currentRelationshipLocked(s.relationships[relID]); cur != nil {
			out = append(out, cur.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Neighborhood enumerates the 1-hop (source, type, target) triples touching
// id, in both directions.
func (s *Store) Neighborhood(id string) ([]Triple, error) {
	center, err := s.GetEntity(id)
	if err != nil {
		return nil, err
	}
	rels := s.FindByEntity(id)
	out := make([]Triple, 0, len(rels))
	for _, r := range rels {
		var src, tgt *Entity
		if r.SourceID == id {
			src = center
		} else if e, err := s.GetEntity(r.SourceID); err == nil {
			src = e
		}
		if r.TargetID == id {
			tgt = center
		} else if e, err := s.GetEntity(r.TargetID); err == nil {
			tgt = e
		}
		if src == nil || tgt == nil {
			continue
		}
		out = append(out, Triple{Source: src, Type: r.Type, Target: tgt})
	}
	return out, nil
}

// AppendRelationshipVersion is the relationship analogue of AppendVersion,
// used by TemporalStore's storeRelationship versioning path.
func (s *Store) AppendRelationshipVersion(id string, newVersion *Relationship) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.relationships[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "relationship", ID: id}
	}
	cur := currentRelationshipLocked(versions)
	if !cur.IsCurrent() {
		return nil, ErrVersionConflict{ID: id}
	}

	now := time.Now().UTC()
	validTo := now
	cur.ValidTo = &validTo
	cur.UpdatedAt = now
	s.unindexRelationship(cur)

	cp := newVersion.Clone()
	cp.ID = id
	cp.SourceID = cur.SourceID
	cp.TargetID = cur.TargetID
	cp.Version = cur.Version + 1
	cp.ValidFrom = now
	cp.ValidTo = nil
	cp.IngestionTime = now
	cp.UpdatedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cur.CreatedAt
	}

	s.relationships[id] = append(s.relationships[id], cp)
	s.indexRelationship(cp)
	return cp.Clone(), nil
}

// GetRelationshipHistory returns every version of a relationship, newest
// first.
func (s *Store) GetRelationshipHistory(id string) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.relationships[id]
	if !ok || len(versions) == 0 {
		return nil, ErrNotFound{Kind: "relationship", ID: id}
	}
	out := make([]*Relationship, len(versions))
	for i, v := range versions {
		out[len(versions)-1-i] = v.Clone()
	}
	return out, nil
}

// DeleteProject hard-deletes every entity and relationship carrying the
// given project-id property, the cascade used by the ingestion pipeline's
// delete(projectId) operation.
func (s *Store) DeleteProject(projectID string) (int, int, error) {
	s.mu.Lock()
	ids := make([]string, 0)
	for id, versions := range s.entities {
		cur := currentEntityLocked(versions)
		if cur != nil && cur.Properties["project-id"] == projectID {
			ids = append(ids, id)
		}
	}
	relIDs := make([]string, 0)
	for id, versions := range s.relationships {
		cur := currentRelationshipLocked(versions)
		if cur != nil && cur.Properties["project-id"] == projectID {
			relIDs = append(relIDs, id)
		}
	}
	s.mu.Unlock()

	for _, id := range relIDs {
		_ = s.DeleteRelationship(id)
	}
	for _, id := range ids {
		_ = s.DeleteEntity(id)
	}
	return len(ids), len(relIDs), nil
}
