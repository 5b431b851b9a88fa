package graph

import "time"

// TemporalStore is a façade over Store enforcing the bi-temporal versioning
// protocol: every update either appends a new version (versioning on) or
// mutates the current row in place (versioning off), point-in-time reads,
// and full history retrieval.
type TemporalStore struct {
	store      *Store
	versioning bool
}

// NewTemporalStore wraps store with versioning enabled by default.
func NewTemporalStore(store *Store) *TemporalStore {
	return &TemporalStore{store: store, versioning: true}
}

// WithVersioning toggles whether UpdateEntity/UpdateRelationship append a
// new version or mutate the current row in place.
func (t *TemporalStore) WithVersioning(on bool) *TemporalStore {
	t.versioning = on
	return t
}

// StoreEntity writes a brand new entity as version 1.
func (t *TemporalStore) StoreEntity(e *Entity, eventTime *time.Time) (*Entity, error) {
	cp := e.Clone()
	if eventTime != nil {
		cp.EventTime = *eventTime
	}
	return t.store.CreateEntity(cp)
}

// UpdateEntity applies patch to entity id. With versioning on, the current
// row is closed and a new row is written with version+1; unspecified fields
// carry over from the current row. With versioning off, the current row's
// properties are mutated in place.
func (t *TemporalStore) UpdateEntity(id string, patch map[string]string, eventTime *time.Time) (*Entity, error) {
	if !t.versioning {
		return t.store.UpdateEntity(id, patch)
	}

	cur, err := t.store.GetEntity(id)
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	for k, v := range patch {
		next.Properties[k] = v
	}
	if eventTime != nil {
		next.EventTime = *eventTime
	}
	return t.store.AppendVersion(id, next)
}

// InvalidateEntity closes the current row without writing a replacement.
func (t *TemporalStore) InvalidateEntity(id string) error {
	return t.store.InvalidateEntity(id)
}

// GetEntityAtTime returns the version valid at asOf, with bi-temporal
// bookkeeping fields stripped as the contract requires (callers needing
// them should use GetEntityHistory instead).
func (t *TemporalStore) GetEntityAtTime(id string, asOf time.Time) (*Entity, error) {
	e, err := t.store.GetEntityAtTime(id, asOf)
	if err != nil || e == nil {
		return nil, err
	}
	stripped := e.Clone()
	stripped.ValidFrom = time.Time{}
	stripped.ValidTo = nil
	stripped.IngestionTime = time.Time{}
	return stripped, nil
}

// GetEntityHistory returns every version, ordered by version descending.
func (t *TemporalStore) GetEntityHistory(id string) ([]*Entity, error) {
	return t.store.GetHistory(id)
}

// StoreRelationship writes a brand new relationship as version 1.
func (t *TemporalStore) StoreRelationship(r *Relationship, eventTime *time.Time) (*Relationship, error) {
	cp := r.Clone()
	if eventTime != nil {
		cp.EventTime = *eventTime
	}
	return t.store.CreateRelationship(cp)
}

// UpdateRelationship is the relationship analogue of UpdateEntity.
func (t *TemporalStore) UpdateRelationship(id string, patch map[string]string, weight *float64, eventTime *time.Time) (*Relationship, error) {
	if !t.versioning {
		return t.store.UpdateRelationship(id, patch, weight)
	}

	cur, err := t.store.GetRelationship(id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	for k, v := range patch {
		next.Properties[k] = v
	}
	if weight != nil {
		next.Weight = *weight
	}
	if eventTime != nil {
		next.EventTime = *eventTime
	}
	return t.store.AppendRelationshipVersion(id, next)
}

// GetRelationshipHistory returns every version, ordered by version
// descending.
func (t *TemporalStore) GetRelationshipHistory(id string) ([]*Relationship, error) {
	return t.store.GetRelationshipHistory(id)
}

// Store exposes the underlying Store for operations the temporal façade
// does not wrap (neighborhood queries, find-by-type, merge).
func (t *TemporalStore) Store() *Store { return t.store }
