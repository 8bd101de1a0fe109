// Package types provides shared type definitions for the CodeIndex MCP server.
//
// This package defines domain types used across multiple components of
// CodeIndex, including symbols, relationships, metadata payloads, and
// search results.
//
// # Core Types
//
// Symbol represents a code construct (function, method, class, etc.)
// extracted from source by an external parser:
//
//	symbol := &types.Symbol{
//	    Name:      "ParseFile",
//	    Kind:      types.KindFunction,
//	    Signature: "func ParseFile(path string) (*ParseResult, error)",
//	}
//
// Relationship represents a typed, directed, confidence-weighted edge
// between two entity IDs in the dependency graph:
//
//	rel := &types.Relationship{
//	    SourceID:   callerID,
//	    TargetID:   calleeID,
//	    Type:       types.RelCalls,
//	    Confidence: 1.0,
//	}
//
// # Validation
//
// Domain types implement validation methods that reject bad input
// before any I/O happens:
//
//	if err := rel.Validate(); err != nil {
//	    var verr *types.ValidationError
//	    if errors.As(err, &verr) {
//	        // caller can correct the input and retry
//	    }
//	}
//
// # Metadata
//
// Metadata is an opaque key/value payload serialized only at the
// storage edge. Upstream code never depends on the serialization
// format:
//
//	meta := types.Metadata{"source": "tree-sitter", "pass": 2}
//	encoded, _ := meta.Encode()
package types
