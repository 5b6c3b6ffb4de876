// Package graph implements the shared knowledge graph: an append-mostly,
// in-memory store of typed entities and typed relations with type indices,
// exact-match property filters, bounded-depth traversal and
// embedding-similarity search.
//
// The graph is volatile by design. The only persisted shape is the Snapshot
// produced by Export and consumed by Import; Import is destructive so that
// the type indices are always consistent with the entity table.
//
// Rejected operations (updating a missing entity, adding a relation with a
// dangling endpoint) are reported through an ok bool, not an error; callers
// must check it.
package graph
