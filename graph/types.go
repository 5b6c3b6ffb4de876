package graph

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the closed enumeration of node kinds stored in the graph.
type EntityType string

const (
	EntityAsset       EntityType = "asset"
	EntityFactor      EntityType = "factor"
	EntityStrategy    EntityType = "strategy"
	EntityRegime      EntityType = "regime"
	EntityNarrative   EntityType = "narrative"
	EntityScenario    EntityType = "scenario"
	EntityVariant     EntityType = "variant"
	EntityFailureMode EntityType = "failure_mode"
)

// RelationType is the closed enumeration of edge kinds stored in the graph.
type RelationType string

const (
	RelationStrategyUsesFactor   RelationType = "strategy_uses_factor"
	RelationFactorActiveInRegime RelationType = "factor_active_in_regime"
	RelationCausedBy             RelationType = "caused_by"
	RelationSimilarTo            RelationType = "similar_to"
	RelationDerivedFrom          RelationType = "derived_from"
	RelationMitigatedBy          RelationType = "mitigated_by"
	RelationExposedTo            RelationType = "exposed_to"
	RelationObservedIn           RelationType = "observed_in"
)

// Entity is a typed node. Properties is an open key/value bag; Embedding is
// an optional fixed-length vector used by similarity search. Entities are
// mutated only through Graph.UpdateEntity and removed only by Clear or a
// destructive Import.
type Entity struct {
	ID         string         `json:"id"`
	Type       EntityType     `json:"type"`
	Properties map[string]any `json:"properties"`
	Embedding  []float64      `json:"embedding,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Relation is a typed edge between two entities. Relations are immutable
// after creation. A relation may outlive its endpoints after Clear; readers
// must tolerate stale endpoint ids.
type Relation struct {
	ID         string         `json:"id"`
	Type       RelationType   `json:"type"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Weight     *float64       `json:"weight,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EntityFilter selects entities. Types is a union (an entity must match one
// of the requested types); PropertyEquals is an intersection of exact
// equality checks. The time range applies to CreatedAt.
type EntityFilter struct {
	Types          []EntityType   `json:"types,omitempty"`
	PropertyEquals map[string]any `json:"property_equals,omitempty"`
	From           time.Time      `json:"from,omitempty"`
	To             time.Time      `json:"to,omitempty"`
}

// RelationFilter selects relations with the same union/intersection rules as
// EntityFilter, plus optional endpoint pinning.
type RelationFilter struct {
	Types          []RelationType `json:"types,omitempty"`
	SourceID       string         `json:"source_id,omitempty"`
	TargetID       string         `json:"target_id,omitempty"`
	PropertyEquals map[string]any `json:"property_equals,omitempty"`
	From           time.Time      `json:"from,omitempty"`
	To             time.Time      `json:"to,omitempty"`
}

// ConnectedEntity is one traversal result: the reached entity, the relations
// along the first discovered route from the origin, and the depth at which it
// was found.
type ConnectedEntity struct {
	Entity *Entity     `json:"entity"`
	Path   []*Relation `json:"path"`
	Depth  int         `json:"depth"`
}

// SimilarEntity pairs an entity with its cosine similarity to a query
// embedding.
type SimilarEntity struct {
	Entity     *Entity `json:"entity"`
	Similarity float64 `json:"similarity"`
}

// Snapshot is the full export/import shape. It round-trips losslessly through
// Graph.Export and Graph.Import.
type Snapshot struct {
	Entities  []*Entity   `json:"entities"`
	Relations []*Relation `json:"relations"`
}

// Stats summarizes graph contents for the status surface.
type Stats struct {
	Entities        int                  `json:"entities"`
	Relations       int                  `json:"relations"`
	EntitiesByType  map[EntityType]int   `json:"entities_by_type"`
	RelationsByType map[RelationType]int `json:"relations_by_type"`
}

// NewID generates a unique identifier for entities and relations.
func NewID() string { return uuid.NewString() }
