package types

// RelationshipType classifies a directed edge between two entities
// in the dependency graph.
type RelationshipType string

const (
	RelCalls    RelationshipType = "calls"
	RelInherits RelationshipType = "inherits"
	RelImports  RelationshipType = "imports"
	RelUses     RelationshipType = "uses"
	RelContains RelationshipType = "contains"
)

// AllRelationshipTypes lists every valid relationship type.
var AllRelationshipTypes = []RelationshipType{
	RelCalls, RelInherits, RelImports, RelUses, RelContains,
}

// IsValid reports whether the type is a member of the closed enum
func (t RelationshipType) IsValid() bool {
	switch t {
	case RelCalls, RelInherits, RelImports, RelUses, RelContains:
		return true
	default:
		return false
	}
}

// Relationship is a typed, weighted, directed edge between two opaque
// entity IDs. Source and target are usually symbol IDs, but the graph
// layer treats them as plain integers and never requires matching rows
// elsewhere.
type Relationship struct {
	ID         int64
	SourceID   int64
	TargetID   int64
	Type       RelationshipType
	Confidence float64
	Metadata   Metadata
}

// Validate checks the edge before any I/O happens
func (r *Relationship) Validate() error {
	if !r.Type.IsValid() {
		return &ValidationError{
			Field:  "relationship_type",
			Value:  string(r.Type),
			Reason: "must be one of calls, inherits, imports, uses, contains",
		}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &ValidationError{
			Field:  "confidence_score",
			Value:  r.Confidence,
			Reason: "must be between 0.0 and 1.0",
		}
	}
	return nil
}
