package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/alphamesh/alphamesh/logging"
)

// Graph is the in-memory knowledge store shared by all agents. All methods
// are safe for concurrent use; mutations are serialized behind a RWMutex so
// callers never coordinate locking themselves.
type Graph struct {
	mu        sync.RWMutex
	entities  map[string]*Entity
	relations map[string]*Relation
	typeIndex map[EntityType]map[string]struct{}
	bySource  map[string][]string // entity id -> relation ids
	byTarget  map[string][]string
	logger    logging.Logger
}

// Options configures a Graph.
type Options struct {
	// Logger receives diagnostic output. Defaults to logging.NoOpLogger.
	Logger logging.Logger
}

// New creates an empty Graph.
func New(optFns ...func(o *Options)) *Graph {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	g := &Graph{logger: opts.Logger}
	g.reset()
	return g
}

// reset reinitializes all tables. Callers must hold the write lock (or have
// exclusive access during construction).
func (g *Graph) reset() {
	g.entities = make(map[string]*Entity)
	g.relations = make(map[string]*Relation)
	g.typeIndex = make(map[EntityType]map[string]struct{})
	g.bySource = make(map[string][]string)
	g.byTarget = make(map[string][]string)
}

// AddEntity stores a new entity and indexes it by type. It always succeeds
// and returns a copy of the stored entity.
func (g *Graph) AddEntity(t EntityType, properties map[string]any, embedding []float64) *Entity {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	e := &Entity{
		ID:         NewID(),
		Type:       t,
		Properties: copyProps(properties),
		Embedding:  copyVec(embedding),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	g.entities[e.ID] = e
	if g.typeIndex[t] == nil {
		g.typeIndex[t] = make(map[string]struct{})
	}
	g.typeIndex[t][e.ID] = struct{}{}

	g.logger.Debug("entity added", "entity_id", e.ID, "type", t)
	return e.clone()
}

// UpdateEntity merges the partial property map into the entity (shallow
// merge, last write wins per key) and bumps UpdatedAt. The embedding is
// replaced only when a non-nil one is supplied. The second return is false
// when no entity with that id exists.
func (g *Graph) UpdateEntity(id string, partial map[string]any, embedding []float64) (*Entity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entities[id]
	if !ok {
		return nil, false
	}
	for k, v := range partial {
		e.Properties[k] = v
	}
	if embedding != nil {
		e.Embedding = copyVec(embedding)
	}
	e.UpdatedAt = time.Now().UTC()
	return e.clone(), true
}

// GetEntity returns a copy of the entity, or false when absent.
func (g *Graph) GetEntity(id string) (*Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entities[id]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// AddRelation stores a new immutable relation between two existing entities.
// When either endpoint is absent the operation is rejected: the second return
// is false and nothing is stored. A rejection is an expected outcome, not an
// error.
func (g *Graph) AddRelation(t RelationType, sourceID, targetID string, properties map[string]any, weight *float64) (*Relation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[sourceID]; !ok {
		g.logger.Debug("relation rejected, missing source", "type", t, "source_id", sourceID)
		return nil, false
	}
	if _, ok := g.entities[targetID]; !ok {
		g.logger.Debug("relation rejected, missing target", "type", t, "target_id", targetID)
		return nil, false
	}

	r := &Relation{
		ID:         NewID(),
		Type:       t,
		SourceID:   sourceID,
		TargetID:   targetID,
		Properties: copyProps(properties),
		CreatedAt:  time.Now().UTC(),
	}
	if weight != nil {
		w := *weight
		r.Weight = &w
	}
	g.relations[r.ID] = r
	g.bySource[sourceID] = append(g.bySource[sourceID], r.ID)
	g.byTarget[targetID] = append(g.byTarget[targetID], r.ID)

	g.logger.Debug("relation added", "relation_id", r.ID, "type", t)
	return r.clone(), true
}

// FindEntities returns entities matching the filter. The type list is a
// union (match any), property checks are an intersection (match all), and
// the time range bounds CreatedAt. Results are sorted oldest first for
// stable output.
func (g *Graph) FindEntities(f EntityFilter) []*Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var candidates []*Entity
	if len(f.Types) > 0 {
		seen := make(map[string]struct{})
		for _, t := range f.Types {
			for id := range g.typeIndex[t] {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				candidates = append(candidates, g.entities[id])
			}
		}
	} else {
		candidates = make([]*Entity, 0, len(g.entities))
		for _, e := range g.entities {
			candidates = append(candidates, e)
		}
	}

	out := make([]*Entity, 0, len(candidates))
	for _, e := range candidates {
		if !matchProps(e.Properties, f.PropertyEquals) {
			continue
		}
		if !inRange(e.CreatedAt, f.From, f.To) {
			continue
		}
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// FindRelations returns relations matching the filter, with the same
// union/intersection semantics as FindEntities plus optional endpoint
// pinning.
func (g *Graph) FindRelations(f RelationFilter) []*Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Relation, 0)
	for _, r := range g.relations {
		if len(f.Types) > 0 && !containsRelType(f.Types, r.Type) {
			continue
		}
		if f.SourceID != "" && r.SourceID != f.SourceID {
			continue
		}
		if f.TargetID != "" && r.TargetID != f.TargetID {
			continue
		}
		if !matchProps(r.Properties, f.PropertyEquals) {
			continue
		}
		if !inRange(r.CreatedAt, f.From, f.To) {
			continue
		}
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ConnectedEntities walks relations from the origin entity treating every
// relation as undirected, visiting each entity at most once so cycles
// terminate, and stopping a branch once it reaches maxDepth. The reported
// path is the chain of relations along the first discovered route, which is
// not necessarily the shortest. When relTypes is non-empty only those
// relation kinds are walked. The origin itself is not part of the result.
func (g *Graph) ConnectedEntities(entityID string, relTypes []RelationType, maxDepth int) []ConnectedEntity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.entities[entityID]; !ok || maxDepth <= 0 {
		return nil
	}

	visited := map[string]struct{}{entityID: {}}
	var out []ConnectedEntity
	g.walk(entityID, relTypes, nil, 1, maxDepth, visited, &out)
	return out
}

func (g *Graph) walk(id string, relTypes []RelationType, path []*Relation, depth, maxDepth int, visited map[string]struct{}, out *[]ConnectedEntity) {
	if depth > maxDepth {
		return
	}
	for _, relID := range append(append([]string{}, g.bySource[id]...), g.byTarget[id]...) {
		r := g.relations[relID]
		if len(relTypes) > 0 && !containsRelType(relTypes, r.Type) {
			continue
		}
		next := r.TargetID
		if next == id {
			next = r.SourceID
		}
		if _, seen := visited[next]; seen {
			continue
		}
		e, ok := g.entities[next]
		if !ok {
			// Stale endpoint left behind by a clear; tolerated.
			continue
		}
		visited[next] = struct{}{}
		nextPath := append(append([]*Relation{}, path...), r.clone())
		*out = append(*out, ConnectedEntity{Entity: e.clone(), Path: nextPath, Depth: depth})
		g.walk(next, relTypes, nextPath, depth+1, maxDepth, visited, out)
	}
}

// FindSimilar ranks entities by cosine similarity to the query embedding,
// descending. Entities with no embedding or a different dimensionality are
// skipped. Results below threshold are dropped and at most limit entries are
// returned; limit <= 0 means no limit. An optional type restricts the
// candidate set.
func (g *Graph) FindSimilar(query []float64, t EntityType, limit int, threshold float64) []SimilarEntity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var candidates map[string]struct{}
	if t != "" {
		candidates = g.typeIndex[t]
	}

	out := make([]SimilarEntity, 0)
	consider := func(e *Entity) {
		if len(e.Embedding) == 0 || len(e.Embedding) != len(query) {
			return
		}
		sim := Cosine(query, e.Embedding)
		if sim < threshold {
			return
		}
		out = append(out, SimilarEntity{Entity: e.clone(), Similarity: sim})
	}
	if candidates != nil {
		for id := range candidates {
			consider(g.entities[id])
		}
	} else if t == "" {
		for _, e := range g.entities {
			consider(e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Export returns a deep-copied snapshot of the full graph.
func (g *Graph) Export() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{
		Entities:  make([]*Entity, 0, len(g.entities)),
		Relations: make([]*Relation, 0, len(g.relations)),
	}
	for _, e := range g.entities {
		snap.Entities = append(snap.Entities, e.clone())
	}
	for _, r := range g.relations {
		snap.Relations = append(snap.Relations, r.clone())
	}
	sort.Slice(snap.Entities, func(i, j int) bool { return snap.Entities[i].CreatedAt.Before(snap.Entities[j].CreatedAt) })
	sort.Slice(snap.Relations, func(i, j int) bool { return snap.Relations[i].CreatedAt.Before(snap.Relations[j].CreatedAt) })
	return snap
}

// Import replaces the entire graph with the snapshot contents. It clears the
// prior state first so the indices are rebuilt consistently.
func (g *Graph) Import(snap Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reset()
	for _, e := range snap.Entities {
		ec := e.clone()
		g.entities[ec.ID] = ec
		if g.typeIndex[ec.Type] == nil {
			g.typeIndex[ec.Type] = make(map[string]struct{})
		}
		g.typeIndex[ec.Type][ec.ID] = struct{}{}
	}
	for _, r := range snap.Relations {
		rc := r.clone()
		g.relations[rc.ID] = rc
		g.bySource[rc.SourceID] = append(g.bySource[rc.SourceID], rc.ID)
		g.byTarget[rc.TargetID] = append(g.byTarget[rc.TargetID], rc.ID)
	}
	g.logger.Info("graph imported", "entities", len(g.entities), "relations", len(g.relations))
}

// Clear empties entities, relations and all indices atomically from the
// caller's point of view.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// Stats returns a snapshot of entity and relation counts.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		Entities:        len(g.entities),
		Relations:       len(g.relations),
		EntitiesByType:  make(map[EntityType]int),
		RelationsByType: make(map[RelationType]int),
	}
	for t, set := range g.typeIndex {
		if len(set) > 0 {
			s.EntitiesByType[t] = len(set)
		}
	}
	for _, r := range g.relations {
		s.RelationsByType[r.Type]++
	}
	return s
}

func (e *Entity) clone() *Entity {
	c := *e
	c.Properties = copyProps(e.Properties)
	c.Embedding = copyVec(e.Embedding)
	return &c
}

func (r *Relation) clone() *Relation {
	c := *r
	c.Properties = copyProps(r.Properties)
	if r.Weight != nil {
		w := *r.Weight
		c.Weight = &w
	}
	return &c
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyVec(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

func matchProps(props, want map[string]any) bool {
	for k, v := range want {
		if props[k] != v {
			return false
		}
	}
	return true
}

func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

func containsRelType(types []RelationType, t RelationType) bool {
	for _, rt := range types {
		if rt == t {
			return true
		}
	}
	return false
}
