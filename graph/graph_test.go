package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRelation_RejectsDanglingEndpoints(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityAsset, map[string]any{"symbol": "SPX"}, nil)

	_, ok := g.AddRelation(RelationExposedTo, a.ID, "no-such-entity", nil, nil)
	assert.False(t, ok)
	_, ok = g.AddRelation(RelationExposedTo, "no-such-entity", a.ID, nil, nil)
	assert.False(t, ok)

	assert.Empty(t, g.FindRelations(RelationFilter{}), "rejected relations must not be stored")
}

func TestUpdateEntity_MergesProperties(t *testing.T) {
	g := New()
	e := g.AddEntity(EntityFactor, map[string]any{"name": "momentum", "score": 0.4}, []float64{1, 0})

	updated, ok := g.UpdateEntity(e.ID, map[string]any{"score": 0.7, "status": "active"}, nil)
	require.True(t, ok)
	assert.Equal(t, "momentum", updated.Properties["name"], "untouched keys survive the merge")
	assert.Equal(t, 0.7, updated.Properties["score"])
	assert.Equal(t, "active", updated.Properties["status"])
	assert.Equal(t, []float64{1, 0}, updated.Embedding, "nil embedding leaves the old one in place")
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))

	replaced, ok := g.UpdateEntity(e.ID, nil, []float64{0, 1})
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1}, replaced.Embedding)

	_, ok = g.UpdateEntity("no-such-entity", map[string]any{"x": 1}, nil)
	assert.False(t, ok)
}

func TestFindEntities_FilterSemantics(t *testing.T) {
	g := New()
	g.AddEntity(EntityAsset, map[string]any{"symbol": "SPX", "region": "us"}, nil)
	g.AddEntity(EntityAsset, map[string]any{"symbol": "DAX", "region": "eu"}, nil)
	g.AddEntity(EntityFactor, map[string]any{"region": "us"}, nil)
	g.AddEntity(EntityStrategy, nil, nil)

	// Types are a union.
	assert.Len(t, g.FindEntities(EntityFilter{Types: []EntityType{EntityAsset, EntityFactor}}), 3)

	// Properties are an intersection.
	both := g.FindEntities(EntityFilter{PropertyEquals: map[string]any{"symbol": "SPX", "region": "us"}})
	require.Len(t, both, 1)
	assert.Equal(t, EntityAsset, both[0].Type)
	assert.Empty(t, g.FindEntities(EntityFilter{PropertyEquals: map[string]any{"symbol": "SPX", "region": "eu"}}))

	// Combined: type union AND property intersection.
	us := g.FindEntities(EntityFilter{
		Types:          []EntityType{EntityAsset, EntityFactor},
		PropertyEquals: map[string]any{"region": "us"},
	})
	assert.Len(t, us, 2)

	// Empty filter returns everything, oldest first.
	all := g.FindEntities(EntityFilter{})
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}
}

func TestFindEntities_TimeRange(t *testing.T) {
	g := New()
	g.AddEntity(EntityAsset, nil, nil)
	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	late := g.AddEntity(EntityAsset, nil, nil)

	recent := g.FindEntities(EntityFilter{From: cutoff})
	require.Len(t, recent, 1)
	assert.Equal(t, late.ID, recent[0].ID)
	assert.Len(t, g.FindEntities(EntityFilter{To: cutoff}), 1)
}

func TestFindRelations_EndpointPinning(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityStrategy, nil, nil)
	b := g.AddEntity(EntityFactor, nil, nil)
	c := g.AddEntity(EntityFactor, nil, nil)
	mustRelate(t, g, RelationStrategyUsesFactor, a.ID, b.ID)
	mustRelate(t, g, RelationStrategyUsesFactor, a.ID, c.ID)
	mustRelate(t, g, RelationSimilarTo, b.ID, c.ID)

	assert.Len(t, g.FindRelations(RelationFilter{SourceID: a.ID}), 2)
	assert.Len(t, g.FindRelations(RelationFilter{Types: []RelationType{RelationSimilarTo}}), 1)
	assert.Len(t, g.FindRelations(RelationFilter{SourceID: a.ID, TargetID: c.ID}), 1)
	assert.Empty(t, g.FindRelations(RelationFilter{SourceID: b.ID, TargetID: a.ID}), "pinning is directional")
}

func TestConnectedEntities_CycleTerminates(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityStrategy, map[string]any{"name": "a"}, nil)
	b := g.AddEntity(EntityFactor, map[string]any{"name": "b"}, nil)
	c := g.AddEntity(EntityRegime, map[string]any{"name": "c"}, nil)
	mustRelate(t, g, RelationStrategyUsesFactor, a.ID, b.ID)
	mustRelate(t, g, RelationFactorActiveInRegime, b.ID, c.ID)
	mustRelate(t, g, RelationObservedIn, c.ID, a.ID) // closes the cycle

	got := g.ConnectedEntities(a.ID, nil, 10)
	require.Len(t, got, 2, "each entity appears at most once; the origin is excluded")
	seen := map[string]bool{}
	for _, ce := range got {
		assert.False(t, seen[ce.Entity.ID], "duplicate entity in traversal result")
		seen[ce.Entity.ID] = true
		assert.NotEqual(t, a.ID, ce.Entity.ID)
		assert.Len(t, ce.Path, ce.Depth, "path length tracks depth")
	}
}

func TestConnectedEntities_DepthAndDirection(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityStrategy, nil, nil)
	b := g.AddEntity(EntityFactor, nil, nil)
	c := g.AddEntity(EntityRegime, nil, nil)
	// Edge pointing INTO a; traversal is undirected so b is still reachable.
	mustRelate(t, g, RelationDerivedFrom, b.ID, a.ID)
	mustRelate(t, g, RelationFactorActiveInRegime, b.ID, c.ID)

	depth1 := g.ConnectedEntities(a.ID, nil, 1)
	require.Len(t, depth1, 1)
	assert.Equal(t, b.ID, depth1[0].Entity.ID)

	depth2 := g.ConnectedEntities(a.ID, nil, 2)
	assert.Len(t, depth2, 2)

	assert.Nil(t, g.ConnectedEntities(a.ID, nil, 0))
	assert.Nil(t, g.ConnectedEntities("no-such-entity", nil, 3))
}

func TestConnectedEntities_RelationTypeFilter(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityStrategy, nil, nil)
	b := g.AddEntity(EntityFactor, nil, nil)
	c := g.AddEntity(EntityFailureMode, nil, nil)
	mustRelate(t, g, RelationStrategyUsesFactor, a.ID, b.ID)
	mustRelate(t, g, RelationExposedTo, a.ID, c.ID)

	only := g.ConnectedEntities(a.ID, []RelationType{RelationExposedTo}, 3)
	require.Len(t, only, 1)
	assert.Equal(t, c.ID, only[0].Entity.ID)
}

func TestFindSimilar_SkipsAndRanks(t *testing.T) {
	g := New()
	exact := g.AddEntity(EntityFactor, map[string]any{"name": "exact"}, []float64{1, 0, 0})
	close_ := g.AddEntity(EntityFactor, map[string]any{"name": "close"}, []float64{0.9, 0.1, 0})
	g.AddEntity(EntityFactor, map[string]any{"name": "orthogonal"}, []float64{0, 1, 0})
	g.AddEntity(EntityFactor, map[string]any{"name": "no-embedding"}, nil)
	g.AddEntity(EntityFactor, map[string]any{"name": "wrong-dim"}, []float64{1, 0})
	g.AddEntity(EntityStrategy, map[string]any{"name": "other-type"}, []float64{1, 0, 0})

	got := g.FindSimilar([]float64{1, 0, 0}, EntityFactor, 10, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, exact.ID, got[0].Entity.ID)
	assert.Equal(t, close_.ID, got[1].Entity.ID)
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)

	// Limit truncates after ranking.
	top := g.FindSimilar([]float64{1, 0, 0}, EntityFactor, 1, 0.0)
	require.Len(t, top, 1)
	assert.Equal(t, exact.ID, top[0].Entity.ID)

	// Untyped search considers every entity. cosine(query, close) is about
	// 0.994, so the threshold must sit above it to keep only the exact hits.
	all := g.FindSimilar([]float64{1, 0, 0}, "", 0, 0.999)
	assert.Len(t, all, 2)
}

func TestExportImport_RoundTrip(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityAsset, map[string]any{"symbol": "SPX"}, []float64{0.5, 0.5})
	b := g.AddEntity(EntityFactor, map[string]any{"name": "carry"}, nil)
	w := 0.8
	_, ok := g.AddRelation(RelationSimilarTo, a.ID, b.ID, map[string]any{"note": "x"}, &w)
	require.True(t, ok)

	snap := g.Export()

	fresh := New()
	fresh.AddEntity(EntityScenario, nil, nil) // wiped by the import
	fresh.Import(snap)

	stats := fresh.Stats()
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.Relations)
	assert.Equal(t, 1, stats.EntitiesByType[EntityAsset])
	assert.Zero(t, stats.EntitiesByType[EntityScenario])

	got, ok := fresh.GetEntity(a.ID)
	require.True(t, ok)
	assert.Equal(t, "SPX", got.Properties["symbol"])
	assert.Equal(t, []float64{0.5, 0.5}, got.Embedding)

	rels := fresh.FindRelations(RelationFilter{SourceID: a.ID})
	require.Len(t, rels, 1)
	require.NotNil(t, rels[0].Weight)
	assert.Equal(t, 0.8, *rels[0].Weight)
}

func TestExport_ReturnsDeepCopies(t *testing.T) {
	g := New()
	e := g.AddEntity(EntityAsset, map[string]any{"symbol": "SPX"}, nil)

	snap := g.Export()
	snap.Entities[0].Properties["symbol"] = "tampered"

	stored, ok := g.GetEntity(e.ID)
	require.True(t, ok)
	assert.Equal(t, "SPX", stored.Properties["symbol"])
}

func TestClear(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityAsset, nil, nil)
	b := g.AddEntity(EntityFactor, nil, nil)
	mustRelate(t, g, RelationSimilarTo, a.ID, b.ID)

	g.Clear()

	stats := g.Stats()
	assert.Zero(t, stats.Entities)
	assert.Zero(t, stats.Relations)
	_, ok := g.GetEntity(a.ID)
	assert.False(t, ok)
}

func TestStats_Breakdown(t *testing.T) {
	g := New()
	a := g.AddEntity(EntityAsset, nil, nil)
	g.AddEntity(EntityAsset, nil, nil)
	b := g.AddEntity(EntityFactor, nil, nil)
	mustRelate(t, g, RelationSimilarTo, a.ID, b.ID)

	stats := g.Stats()
	assert.Equal(t, 3, stats.Entities)
	assert.Equal(t, 2, stats.EntitiesByType[EntityAsset])
	assert.Equal(t, 1, stats.EntitiesByType[EntityFactor])
	assert.Equal(t, 1, stats.RelationsByType[RelationSimilarTo])
}

func mustRelate(t *testing.T, g *Graph, rt RelationType, source, target string) *Relation {
	t.Helper()
	r, ok := g.AddRelation(rt, source, target, nil, nil)
	require.True(t, ok)
	return r
}
