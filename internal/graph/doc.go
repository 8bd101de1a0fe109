// Package graph tracks typed relationships between indexed entities
// and answers traversal queries over them.
//
// Edges are directed, typed (calls, inherits, imports, uses,
// contains), and carry a confidence in [0, 1]. Persistence lives in
// the storage layer; this package owns validation and traversal.
//
// # Traversal
//
// Dependencies and Dependents walk the graph breadth-first from an
// entity, up to a depth bound. The visited set is on nodes, so cyclic
// graphs terminate. FindPaths enumerates simple paths between two
// entities with duplicate routes collapsed.
//
//	tracker := graph.NewTracker(store, logger)
//	edges, err := tracker.Dependencies(ctx, symbolID, 3, nil)
//	paths, err := tracker.FindPaths(ctx, callerID, calleeID, 5)
package graph
